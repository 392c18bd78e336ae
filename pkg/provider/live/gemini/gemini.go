// Package gemini implements live.Provider for Google's Gemini Live API.
//
// Each Generate call dials the BidiGenerateContent WebSocket endpoint, sends
// the setup message and waits for setupComplete, streams the optional frame
// and audio as realtime input, sends the prompt as a complete client turn and
// then collects serverContent messages until turnComplete or
// generationComplete arrives.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/nutrivision/pkg/audio"
	"github.com/MrWong99/nutrivision/pkg/provider/live"
)

var _ live.Provider = (*Provider)(nil)

const (
	// DefaultModel is the native-audio Live model on the Gemini API.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

	// DefaultVertexModel is the equivalent model name on Vertex AI.
	DefaultVertexModel = "gemini-live-2.5-flash-native-audio"

	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"
	bidiPath       = "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// maxMessageBytes bounds a single server frame. Audio parts of a two
	// sentence answer stay well below this.
	maxMessageBytes = 8 << 20
)

// ErrClosedEarly is returned when the server closes the socket before the
// turn completes.
var ErrClosedEarly = errors.New("gemini: connection closed before turn complete")

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Live model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the WebSocket base URL. Used in tests to point at a
// local server.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the client used for the WebSocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements [live.Provider] for Gemini Live.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a Gemini Live provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Generate implements [live.Provider].
func (p *Provider) Generate(ctx context.Context, req live.Request) (*live.Response, error) {
	wsURL := p.baseURL + bidiPath + "?key=" + url.QueryEscape(p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: p.httpClient,
		HTTPHeader: http.Header{"Content-Type": []string{"application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageBytes)

	s := &exchange{conn: conn}
	if err := s.write(ctx, p.setup(req)); err != nil {
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}
	if err := s.awaitSetup(ctx); err != nil {
		return nil, err
	}
	if err := s.sendInputs(ctx, req); err != nil {
		return nil, err
	}
	resp, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}
	conn.Close(websocket.StatusNormalClosure, "turn complete")
	return resp, nil
}

func (p *Provider) setup(req live.Request) setupMessage {
	modality := "TEXT"
	if req.OutputAudio {
		modality = "AUDIO"
	}
	msg := setupMessage{Setup: setupConfig{
		Model: "models/" + p.model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{modality},
			Temperature:        req.Temperature,
			MaxOutputTokens:    req.MaxOutputTokens,
		},
		InputAudioTranscription: &struct{}{},
	}}
	if req.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}
	if req.OutputAudio {
		msg.Setup.OutputAudioTranscription = &struct{}{}
		if req.Voice != "" {
			msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: req.Voice}},
			}
		}
	}
	return msg
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	Temperature        float64       `json:"temperature"`
	MaxOutputTokens    int           `json:"maxOutputTokens,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []blob `json:"mediaChunks,omitempty"`
	Audio       *blob  `json:"audio,omitempty"`
}

type clientContentMessage struct {
	ClientContent clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	GenerationComplete  bool           `json:"generationComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

// ── exchange ───────────────────────────────────────────────────────────────────

// exchange is a single request/response conversation over conn.
type exchange struct {
	conn *websocket.Conn
}

func (s *exchange) write(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// read returns the next decodable server message. Malformed frames are
// skipped.
func (s *exchange) read(ctx context.Context) (*serverMessage, error) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.CloseStatus(err) != -1 {
				return nil, fmt.Errorf("%w: %w", ErrClosedEarly, err)
			}
			return nil, fmt.Errorf("gemini: read: %w", err)
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != nil {
			return nil, msg.Error.err()
		}
		return &msg, nil
	}
}

func (ge *geminiError) err() error {
	msg := ge.Message
	if msg == "" {
		msg = "unknown error"
	}
	if ge.Status != "" {
		return fmt.Errorf("gemini: %s (%s)", msg, ge.Status)
	}
	return fmt.Errorf("gemini: %s", msg)
}

func (s *exchange) awaitSetup(ctx context.Context) error {
	for {
		msg, err := s.read(ctx)
		if err != nil {
			return fmt.Errorf("gemini: await setup: %w", err)
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

func (s *exchange) sendInputs(ctx context.Context, req live.Request) error {
	if req.Frame != nil && len(req.Frame.Data) > 0 {
		in := realtimeInputMessage{RealtimeInput: realtimeInput{
			MediaChunks: []blob{encode(*req.Frame)},
		}}
		if err := s.write(ctx, in); err != nil {
			return fmt.Errorf("gemini: send frame: %w", err)
		}
	}
	if req.Audio != nil && len(req.Audio.Data) > 0 && strings.HasPrefix(req.Audio.MIMEType, "audio/") {
		a := encode(*req.Audio)
		if err := s.write(ctx, realtimeInputMessage{RealtimeInput: realtimeInput{Audio: &a}}); err != nil {
			return fmt.Errorf("gemini: send audio: %w", err)
		}
	}
	turn := clientContentMessage{ClientContent: clientContent{
		Turns:        []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		TurnComplete: true,
	}}
	if err := s.write(ctx, turn); err != nil {
		return fmt.Errorf("gemini: send prompt: %w", err)
	}
	return nil
}

func encode(b live.Blob) blob {
	return blob{MIMEType: b.MIMEType, Data: base64.StdEncoding.EncodeToString(b.Data)}
}

// collect gathers the reply until the turn completes. Consecutive duplicate
// text pieces are dropped; native-audio models repeat the transcription in
// model text parts.
func (s *exchange) collect(ctx context.Context) (*live.Response, error) {
	var (
		pieces []string
		chunks []audio.Chunk
	)
	add := func(text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		if n := len(pieces); n > 0 && pieces[n-1] == text {
			return
		}
		pieces = append(pieces, text)
	}

	for {
		msg, err := s.read(ctx)
		if err != nil {
			return nil, fmt.Errorf("gemini: receive: %w", err)
		}
		sc := msg.ServerContent
		if sc == nil {
			continue
		}
		if sc.ModelTurn != nil {
			var sb strings.Builder
			for _, p := range sc.ModelTurn.Parts {
				sb.WriteString(p.Text)
				if c, ok := decodeAudio(p.InlineData); ok {
					chunks = append(chunks, c)
				}
			}
			add(sb.String())
		}
		if sc.OutputTranscription != nil {
			add(sc.OutputTranscription.Text)
		}
		if sc.TurnComplete || sc.GenerationComplete {
			return &live.Response{
				Text:  strings.Join(strings.Fields(strings.Join(pieces, "")), " "),
				Audio: chunks,
			}, nil
		}
	}
}

func decodeAudio(b *blob) (audio.Chunk, bool) {
	if b == nil || b.Data == "" {
		return audio.Chunk{}, false
	}
	data, err := base64.StdEncoding.DecodeString(b.Data)
	if err != nil || len(data) == 0 {
		return audio.Chunk{}, false
	}
	mime := b.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return audio.Chunk{MIMEType: mime, Data: data}, true
}
