package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/nutrivision/internal/catalog"
	"github.com/MrWong99/nutrivision/internal/intent"
	"github.com/MrWong99/nutrivision/internal/locale"
	"github.com/MrWong99/nutrivision/internal/resolve"
	"github.com/MrWong99/nutrivision/internal/vision"
	"github.com/MrWong99/nutrivision/pkg/provider/live"
)

// DefaultDuplicateWindow is how long an identical turn signature is
// suppressed after it was last accepted.
const DefaultDuplicateWindow = 4 * time.Second

// Policy holds the tunable thresholds of the turn state machine. A session
// reads its policy once when the connection opens.
type Policy struct {
	// Margin is the confidence gap under which the top two search
	// candidates are treated as a tie.
	Margin float64

	// DuplicateWindow suppresses repeated identical turns.
	DuplicateWindow time.Duration

	// MaxQueryTokens caps normalized catalog queries.
	MaxQueryTokens int
}

// DefaultPolicy returns the built-in thresholds.
func DefaultPolicy() Policy {
	return Policy{
		Margin:          resolve.DefaultMargin,
		DuplicateWindow: DefaultDuplicateWindow,
		MaxQueryTokens:  intent.DefaultMaxQueryTokens,
	}
}

// withDefaults fills zero fields from [DefaultPolicy].
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Margin <= 0 {
		p.Margin = d.Margin
	}
	if p.DuplicateWindow <= 0 {
		p.DuplicateWindow = d.DuplicateWindow
	}
	if p.MaxQueryTokens <= 0 {
		p.MaxQueryTokens = d.MaxQueryTokens
	}
	return p
}

// Signature identifies a turn for duplicate suppression.
type Signature struct {
	Barcode string
	Query   string
}

func signatureOf(barcode, query string) Signature {
	return Signature{
		Barcode: strings.TrimSpace(barcode),
		Query:   strings.ToLower(strings.TrimSpace(query)),
	}
}

// State is the mutable state of one live connection. It is owned by the
// connection's goroutine and is not safe for concurrent use.
type State struct {
	SessionID string
	Domain    catalog.Domain
	Language  string

	// Active is set by session_start.
	Active bool

	TurnCounter int

	// LatestFrame and LatestAudio are the most recently buffered media, or
	// nil. Audio is consumed by the first turn that delivers a verdict.
	LatestFrame *vision.Frame
	LatestAudio *live.Blob

	// UncertainStreak counts consecutive turns that resolved nothing.
	UncertainStreak int

	lastSignature Signature
	lastSeen      time.Time
	hasSignature  bool
}

// NewSessionID returns a short random session id of the form "S-1a2b3c4d".
func NewSessionID() string {
	return "S-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewState returns the state of a freshly connected session: food domain,
// default language, no buffered media.
func NewState(id string) *State {
	return &State{
		SessionID: id,
		Domain:    catalog.DomainFood,
		Language:  locale.Default,
	}
}

// Start applies a session_start message. Buffers and the uncertainty
// streak are cleared; the turn counter keeps running.
func (s *State) Start(domain catalog.Domain, lang string) {
	s.Domain = domain
	s.Language = lang
	s.Active = true
	s.LatestFrame = nil
	s.LatestAudio = nil
	s.UncertainStreak = 0
}

// NextTurn advances the turn counter and returns the new turn id.
func (s *State) NextTurn() string {
	s.TurnCounter++
	return TurnID(s.TurnCounter)
}

// TurnID formats n as "T-001". Turn 0 is the session greeting.
func TurnID(n int) string {
	return fmt.Sprintf("T-%03d", n)
}

// Duplicate reports whether sig repeats the previous turn's signature within
// window. A non-duplicate signature becomes the new reference.
func (s *State) Duplicate(sig Signature, now time.Time, window time.Duration) bool {
	if s.hasSignature && sig == s.lastSignature && now.Sub(s.lastSeen) < window {
		return true
	}
	s.lastSignature = sig
	s.lastSeen = now
	s.hasSignature = true
	return false
}

// frameBlob converts the buffered frame for the refinement model.
func (s *State) frameBlob() *live.Blob {
	if s.LatestFrame == nil {
		return nil
	}
	return &live.Blob{MIMEType: s.LatestFrame.MIMEType, Data: s.LatestFrame.Data}
}
