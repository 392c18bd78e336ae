// Package session runs the per-connection turn state machine of a live
// NutriVision session.
//
// A [Handler] serves one [Conn] at a time from a single goroutine. Client
// messages are processed strictly in order; media messages only update the
// buffered frame or audio, and each user_query runs one turn through intent
// detection, product resolution, scoring and spoken synthesis. All
// connection-scoped data lives in a [State] owned by that goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/nutrivision/internal/catalog"
	"github.com/MrWong99/nutrivision/internal/intent"
	"github.com/MrWong99/nutrivision/internal/locale"
	"github.com/MrWong99/nutrivision/internal/observe"
	"github.com/MrWong99/nutrivision/internal/resolve"
	"github.com/MrWong99/nutrivision/internal/scoring"
	"github.com/MrWong99/nutrivision/internal/vision"
	"github.com/MrWong99/nutrivision/internal/voice"
	"github.com/MrWong99/nutrivision/pkg/audio"
	"github.com/MrWong99/nutrivision/pkg/provider/live"
)

// Status and trace messages sent to the client.
const (
	msgConnected      = "WebSocket connected"
	msgStarted        = "Live session started"
	msgStopped        = "Live session stopped"
	msgBargeAck       = "Barge-in acknowledged; current response interrupted"
	msgTurnComplete   = "Turn complete"
	msgDuplicate      = "Duplicate query ignored"
	msgExpiry         = "Expiration guidance returned"
	msgVoiceUnclear   = "Voice query unclear; waiting for clearer product signal"
	msgHintBarcode    = "Frame fallback inferred barcode"
	msgHintName       = "Frame fallback inferred product name"
	msgHintVoice      = "Voice query corrected by frame hint"
	msgWholeFood      = "Whole-food nutrition fallback selected"
	msgMalformed      = "Malformed message payload"
	msgUnhandled      = "Unhandled backend error"
	msgUnsupportedFmt = "Unsupported message type: %s"
)

// Resolver identifies products. *resolve.Pipeline implements it.
type Resolver interface {
	Resolve(ctx context.Context, req resolve.Request, trace resolve.Tracer) resolve.Outcome
}

// Speaker produces and delivers spoken answers. *voice.Synthesizer
// implements it.
type Speaker interface {
	Synthesize(ctx context.Context, req voice.Request) voice.Result
	Deliver(ctx context.Context, e voice.Emitter, r voice.Result) error
}

// Handler serves live sessions. It is safe for concurrent use; every call
// to [Handler.Serve] owns its own [State].
type Handler struct {
	resolver Resolver
	speaker  Speaker
	hints    resolve.FrameHinter
	policy   func() Policy
	now      func() time.Time
	metrics  *observe.Metrics
}

// Option configures a [Handler].
type Option func(*Handler)

// WithFrameHinter enables pre-turn frame hinting for low-signal and noisy
// voice queries.
func WithFrameHinter(h resolve.FrameHinter) Option {
	return func(hd *Handler) { hd.hints = h }
}

// WithPolicy sets the source of the turn policy. It is consulted once per
// connection, so a reloaded policy applies to new sessions only.
func WithPolicy(fn func() Policy) Option {
	return func(hd *Handler) { hd.policy = fn }
}

// WithClock overrides time.Now for duplicate suppression and expiry dates.
func WithClock(now func() time.Time) Option {
	return func(hd *Handler) { hd.now = now }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(hd *Handler) { hd.metrics = m }
}

// NewHandler creates a Handler that resolves products with r and speaks
// through s.
func NewHandler(r Resolver, s Speaker, opts ...Option) *Handler {
	h := &Handler{
		resolver: r,
		speaker:  s,
		policy:   DefaultPolicy,
		now:      time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// Serve runs one session on conn until the client ends it, disconnects, or
// ctx is cancelled. A clean end returns nil; only transport failures are
// reported.
func (h *Handler) Serve(ctx context.Context, conn Conn) error {
	st := NewState(NewSessionID())
	ctx = observe.WithSession(ctx, st.SessionID)
	r := &run{
		h:      h,
		conn:   conn,
		st:     st,
		policy: h.policy().withDefaults(),
		log:    observe.Logger(ctx),
	}

	h.metrics.ActiveSessions.Add(ctx, 1)
	defer h.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	r.log.Info("live session connected")
	if err := r.emit(ctx, EventSessionState, "", msgConnected, nil); err != nil {
		return err
	}

	for {
		msg, err := conn.Read(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrMalformed):
			r.log.Debug("dropping malformed message", "err", err)
			if err := r.emit(ctx, EventError, "", msgMalformed, nil); err != nil {
				return err
			}
			continue
		case errors.Is(err, io.EOF), ctx.Err() != nil:
			r.log.Info("live session disconnected", "turns", st.TurnCounter)
			return nil
		default:
			return err
		}

		done, err := r.handle(ctx, msg)
		if err != nil {
			return err
		}
		if done {
			r.log.Info("live session stopped", "turns", st.TurnCounter)
			return nil
		}
	}
}

// run is one connection's view of the handler.
type run struct {
	h      *Handler
	conn   Conn
	st     *State
	policy Policy
	log    *slog.Logger
}

func (r *run) emit(ctx context.Context, eventType, turnID, message string, details map[string]any) error {
	return r.conn.Write(ctx, Event{
		EventType: eventType,
		SessionID: r.st.SessionID,
		TurnID:    turnID,
		Message:   message,
		Details:   details,
	})
}

// handle processes one message. Faults inside a message are recovered and
// reported as a generic error event; the session keeps running.
func (r *run) handle(ctx context.Context, msg Inbound) (done bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("unhandled fault in live session", "type", msg.Type, "panic", p, "stack", string(debug.Stack()))
			done, err = false, r.emit(ctx, EventError, "", msgUnhandled, nil)
		}
	}()

	switch msg.Type {
	case MsgSessionStart:
		return false, r.start(ctx, msg)

	case MsgFrame:
		if mime, data, err := audio.DecodeDataURL(msg.ImageB64); err == nil && len(data) > 0 {
			r.st.LatestFrame = &vision.Frame{MIMEType: mime, Data: data}
		}
		return false, nil

	case MsgAudioChunk:
		if mime, data, err := audio.DecodeDataURL(msg.AudioB64); err == nil && len(data) > 0 {
			if c, ok := audio.ToLiveInput(audio.Chunk{MIMEType: mime, Data: data}); ok {
				r.st.LatestAudio = &live.Blob{MIMEType: c.MIMEType, Data: c.Data}
			}
		}
		return false, nil

	case MsgBargeIn:
		return false, r.emit(ctx, EventBargeAck, "", msgBargeAck, nil)

	case MsgSessionEnd:
		if err := r.emit(ctx, EventSessionState, "", msgStopped, nil); err != nil {
			return true, err
		}
		r.st.Active = false
		if err := r.conn.Close("session ended"); err != nil {
			r.log.Debug("close after session_end", "err", err)
		}
		return true, nil

	case MsgUserQuery:
		return false, r.userQuery(ctx, msg)

	default:
		return false, r.emit(ctx, EventError, "", fmt.Sprintf(msgUnsupportedFmt, msg.Type), nil)
	}
}

func (r *run) start(ctx context.Context, msg Inbound) error {
	lang := msg.Language
	if strings.TrimSpace(lang) == "" {
		lang = locale.Default
	}
	lang = locale.Negotiate(lang)
	r.st.Start(catalog.ParseDomain(msg.Domain), lang)
	r.log.Info("live session started", "domain", r.st.Domain, "language", lang)

	if err := r.emit(ctx, EventSessionState, "", msgStarted, map[string]any{
		"domain":   r.st.Domain,
		"language": lang,
	}); err != nil {
		return err
	}
	// The greeting carries no media; nothing has been buffered yet.
	return r.speak(ctx, TurnID(0), Greeting(lang), "", false)
}

// userQuery runs one turn and records its outcome.
func (r *run) userQuery(ctx context.Context, msg Inbound) error {
	turnID := r.st.NextTurn()
	ctx, span := observe.StartSpan(ctx, "session.turn", trace.WithAttributes(
		attribute.String("session.id", r.st.SessionID),
		attribute.String("turn.id", turnID),
	))
	defer span.End()
	ctx = observe.WithTurn(ctx, turnID)

	start := time.Now()
	t := &turn{run: r, id: turnID, log: observe.Logger(ctx)}
	outcome, err := t.process(ctx, msg)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.String("turn.outcome", outcome))
	r.h.metrics.RecordTurn(ctx, outcome, string(r.st.Domain), time.Since(start))
	return nil
}

// speak synthesizes draft and delivers it as turnID. With media set the
// buffered frame and audio accompany the refinement request, and the audio
// is consumed so the next turn never replays it.
func (r *run) speak(ctx context.Context, turnID, draft, query string, media bool) error {
	res := r.h.speaker.Synthesize(ctx, r.voiceRequest(draft, query, media))
	if media {
		r.st.LatestAudio = nil
	}
	return r.h.speaker.Deliver(ctx, r.emitter(turnID), res)
}

func (r *run) voiceRequest(draft, query string, media bool) voice.Request {
	req := voice.Request{
		Draft:    draft,
		Language: r.st.Language,
		Domain:   string(r.st.Domain),
		Query:    query,
	}
	if media {
		req.Frame = r.st.frameBlob()
		req.Audio = r.st.LatestAudio
	}
	return req
}

func (r *run) emitter(turnID string) voice.Emitter {
	return speechEmitter{run: r, turnID: turnID}
}

// speechEmitter stamps speech events with the session, turn and language.
type speechEmitter struct {
	run    *run
	turnID string
}

var _ voice.Emitter = speechEmitter{}

func (e speechEmitter) SpeechAudio(ctx context.Context, c audio.Chunk) error {
	return e.run.conn.Write(ctx, SpeechAudio{
		EventType: EventSpeechAudio,
		SessionID: e.run.st.SessionID,
		TurnID:    e.turnID,
		AudioB64:  audio.EncodeDataURL(c.MIMEType, c.Data),
		MIMEType:  c.MIMEType,
		Language:  e.run.st.Language,
	})
}

func (e speechEmitter) SpeechText(ctx context.Context, text string) error {
	return e.run.conn.Write(ctx, SpeechText{
		EventType: EventSpeechText,
		SessionID: e.run.st.SessionID,
		TurnID:    e.turnID,
		Text:      text,
		Language:  e.run.st.Language,
	})
}

// ── Turn ────────────────────────────────────────────────────────────────────

// turn is a single user_query.
type turn struct {
	*run
	id  string
	log *slog.Logger
}

func (t *turn) event(ctx context.Context, eventType, message string, details map[string]any) error {
	return t.emit(ctx, eventType, t.id, message, details)
}

// process runs the turn and returns its outcome label.
func (t *turn) process(ctx context.Context, msg Inbound) (string, error) {
	st := t.st
	raw := strings.TrimSpace(msg.Text)
	source := strings.ToLower(strings.TrimSpace(msg.Source))
	if source == "" {
		source = SourceManual
	}
	query := intent.NormalizeQueryN(raw, t.policy.MaxQueryTokens)
	barcode := strings.TrimSpace(msg.Barcode)
	if barcode == "" {
		barcode = intent.ExtractBarcode(raw)
	}
	noise := intent.IsVoiceNoise(raw)
	t.log.Debug("user query", "raw", raw, "query", query, "barcode", barcode, "source", source, "voice_noise", noise)

	// ── Pre-turn frame hint ──
	if barcode == "" && st.LatestFrame != nil && (intent.IsLowSignal(query) || noise) {
		hint := t.frameHint(ctx)
		switch {
		case hint != "":
			if b := intent.ExtractBarcode(hint); b != "" {
				barcode = b
				if err := t.event(ctx, EventToolCall, msgHintBarcode, map[string]any{"barcode": b}); err != nil {
					return "", err
				}
				break
			}
			query = hint
			if n := intent.NormalizeQueryN(hint, t.policy.MaxQueryTokens); n != "" {
				query = n
			}
			label := msgHintName
			if source == SourceVoice || noise {
				label = msgHintVoice
			}
			if err := t.event(ctx, EventToolCall, label, map[string]any{"query_text": query, "source": source}); err != nil {
				return "", err
			}
		case noise:
			query = ""
			if err := t.event(ctx, EventSessionState, msgVoiceUnclear, nil); err != nil {
				return "", err
			}
		}
	}

	// ── Duplicate suppression ──
	if st.Duplicate(signatureOf(barcode, query), t.h.now(), t.policy.DuplicateWindow) {
		return observe.OutcomeDuplicate, t.event(ctx, EventSessionState, msgDuplicate, nil)
	}

	// ── Short-circuits ──
	if barcode == "" {
		if guidance, ok := intent.ExpiryGuidance(raw, st.Language, t.h.now()); ok {
			st.UncertainStreak = 0
			if err := t.emitter(t.id).SpeechText(ctx, guidance); err != nil {
				return "", err
			}
			return observe.OutcomeExpiry, t.event(ctx, EventSessionState, msgExpiry, nil)
		}

		if raw != "" {
			if kind := intent.ClassifySocial(raw); kind != intent.SocialNone {
				st.UncertainStreak = 0
				t.log.Debug("social intent", "kind", kind)
				if err := t.speak(ctx, t.id, intent.SocialPrompt(st.Language, kind), raw, true); err != nil {
					return "", err
				}
				return observe.OutcomeSocial, t.event(ctx, EventSessionState, msgTurnComplete, nil)
			}
		}

		if query == "" {
			return observe.OutcomeUncertain, t.clarify(ctx, raw)
		}

		if profile, ok := intent.LookupWholeFood(query); ok {
			st.UncertainStreak = 0
			if err := t.event(ctx, EventToolCall, msgWholeFood, nil); err != nil {
				return "", err
			}
			v := intent.WholeFoodVerdict(profile, st.Language)
			comp := ComposeWholeFood(profile.Identity(st.Language), v, st.Domain, st.Language)
			return observe.OutcomeWholeFood, t.deliverVerdict(ctx, comp, query)
		}
	}

	// ── Resolution ──
	out := t.h.resolver.Resolve(ctx, resolve.Request{
		Barcode:        barcode,
		Query:          query,
		Domain:         st.Domain,
		Language:       st.Language,
		Frame:          st.LatestFrame,
		Margin:         t.policy.Margin,
		MaxQueryTokens: t.policy.MaxQueryTokens,
	}, t.trace)

	spokenQuery := raw
	if spokenQuery == "" {
		spokenQuery = out.Query
	}

	switch out.Status {
	case resolve.Disambiguation:
		if err := t.event(ctx, EventUncertain, out.Prompt, map[string]any{"candidates": out.Candidates}); err != nil {
			return "", err
		}
		return observe.OutcomeDisambiguation, t.speak(ctx, t.id, out.Prompt, spokenQuery, true)

	case resolve.Unresolved:
		return observe.OutcomeUncertain, t.clarify(ctx, spokenQuery)
	}

	st.UncertainStreak = 0
	v := scoring.Score(out.Product, st.Domain)
	comp := Compose(out.Identity, out.Product, out.Confidence, v, st.Domain, st.Language)
	return observe.OutcomeResolved, t.deliverVerdict(ctx, comp, out.Query)
}

// frameHint reads the buffered frame, or returns "" without a hinter.
func (t *turn) frameHint(ctx context.Context) string {
	if t.h.hints == nil {
		return ""
	}
	return t.h.hints.Hint(ctx, *t.st.LatestFrame, t.st.Domain, t.st.Language)
}

// clarify escalates the uncertainty streak and asks for a clearer signal.
func (t *turn) clarify(ctx context.Context, query string) error {
	t.st.UncertainStreak++
	prompt := resolve.ClarificationPrompt(t.st.Language, t.st.UncertainStreak)
	t.log.Debug("no product identified", "streak", t.st.UncertainStreak)
	if err := t.event(ctx, EventUncertain, prompt, nil); err != nil {
		return err
	}
	return t.speak(ctx, t.id, prompt, query, true)
}

// deliverVerdict sends the HUD, then the spoken answer, then completes the
// turn. The buffered audio is consumed by the refinement request.
func (t *turn) deliverVerdict(ctx context.Context, comp Composition, query string) error {
	res := t.h.speaker.Synthesize(ctx, t.voiceRequest(comp.Draft, query, true))
	t.st.LatestAudio = nil

	hud := comp.HUD
	hud.SessionID = t.st.SessionID
	hud.TurnID = t.id
	if err := t.conn.Write(ctx, hud); err != nil {
		return err
	}
	if err := t.h.speaker.Deliver(ctx, t.emitter(t.id), res); err != nil {
		return err
	}
	return t.event(ctx, EventSessionState, msgTurnComplete, nil)
}

// trace forwards pipeline stages to the client as tool_call events.
func (t *turn) trace(ctx context.Context, message string, details map[string]any) {
	if err := t.event(ctx, EventToolCall, message, details); err != nil {
		t.log.Debug("dropping tool_call trace", "message", message, "err", err)
	}
}
