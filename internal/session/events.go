package session

import (
	"github.com/MrWong99/nutrivision/internal/catalog"
	"github.com/MrWong99/nutrivision/internal/scoring"
)

// Inbound message types.
const (
	MsgSessionStart = "session_start"
	MsgFrame        = "frame"
	MsgAudioChunk   = "audio_chunk"
	MsgBargeIn      = "barge_in"
	MsgUserQuery    = "user_query"
	MsgSessionEnd   = "session_end"
)

// Outbound event types, carried in the event_type field.
const (
	EventSessionState = "session_state"
	EventToolCall     = "tool_call"
	EventHUDUpdate    = "hud_update"
	EventSpeechText   = "speech_text"
	EventSpeechAudio  = "speech_audio"
	EventUncertain    = "uncertain_match"
	EventBargeAck     = "barge_ack"
	EventError        = "error"
)

// Query sources reported by the client.
const (
	SourceManual = "manual"
	SourceVoice  = "voice"
)

// Inbound is a client message. Only the fields relevant to Type are set.
type Inbound struct {
	Type     string `json:"type"`
	Domain   string `json:"domain,omitempty"`
	Language string `json:"language,omitempty"`

	// ImageB64 and AudioB64 are base64 data URLs.
	ImageB64 string `json:"image_b64,omitempty"`
	AudioB64 string `json:"audio_b64,omitempty"`

	Text    string `json:"text,omitempty"`
	Barcode string `json:"barcode,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Event is a status, tool-trace, clarification or error event.
type Event struct {
	EventType string         `json:"event_type"`
	SessionID string         `json:"session_id"`
	TurnID    string         `json:"turn_id,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// HUDUpdate carries the structured verdict of a turn.
type HUDUpdate struct {
	EventType          string            `json:"event_type"`
	SessionID          string            `json:"session_id"`
	TurnID             string            `json:"turn_id"`
	Domain             catalog.Domain    `json:"domain"`
	PolicyVersion      string            `json:"policy_version"`
	ProductIdentity    catalog.Identity  `json:"product_identity"`
	GradeOrTier        string            `json:"grade_or_tier"`
	Warnings           []scoring.Warning `json:"warnings"`
	Metrics            []scoring.Metric  `json:"metrics"`
	Confidence         float64           `json:"confidence"`
	DataSources        []string          `json:"data_sources"`
	ExplanationBullets []string          `json:"explanation_bullets"`
}

// SpeechText is the final spoken text of a turn.
type SpeechText struct {
	EventType string `json:"event_type"`
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	Text      string `json:"text"`
	Language  string `json:"language"`
}

// SpeechAudio is one playable audio payload, sent before the matching
// [SpeechText].
type SpeechAudio struct {
	EventType string `json:"event_type"`
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	AudioB64  string `json:"audio_b64"`
	MIMEType  string `json:"mime_type"`
	Language  string `json:"language"`
}

// nonNil keeps empty lists rendered as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
