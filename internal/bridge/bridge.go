package bridge

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"voice-bridge/internal/auth"
	"voice-bridge/internal/calls"
	"voice-bridge/internal/functions"
	"voice-bridge/internal/realtime"
	"voice-bridge/internal/tenants"
	"voice-bridge/pkg/logger"
)

// Hanguper ends a live call with a spoken message. telephony.Provider implements it.
type Hanguper interface {
	HangupWithMessage(ctx context.Context, callSID, message string) error
}

// StreamVerifier checks the token carried in the start frame. *auth.Manager implements it.
type StreamVerifier interface {
	VerifyStreamToken(token string, now time.Time) (auth.StreamGrant, error)
}

// Deps are the shared, read-mostly collaborators of every call.
type Deps struct {
	Resolver   *tenants.Resolver
	Recorder   *calls.Recorder
	Dispatcher *functions.Dispatcher
	Model      ModelDialer

	// Optional.
	Telephony Hanguper
	Slots     SlotLimiter
	Streams   StreamVerifier
	Tracker   *Tracker
	// ToolClient posts tenant custom tool calls. Each request is bounded by
	// the tool's own timeout through its context, so the client sets none.
	ToolClient *http.Client
}

type Settings struct {
	DefaultModel string
	DefaultVoice string

	// HandshakeTimeout bounds the model dial.
	HandshakeTimeout time.Duration
	// StartTimeout bounds the wait for the start frame.
	StartTimeout time.Duration
	// HangupTimeout bounds the REST call that speaks the apology.
	HangupTimeout time.Duration

	Clock func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.DefaultModel == "" {
		s.DefaultModel = realtime.DefaultModel
	}
	if s.DefaultVoice == "" {
		s.DefaultVoice = "alloy"
	}
	if s.HandshakeTimeout <= 0 {
		s.HandshakeTimeout = 5 * time.Second
	}
	if s.StartTimeout <= 0 {
		s.StartTimeout = 10 * time.Second
	}
	if s.HangupTimeout <= 0 {
		s.HangupTimeout = 5 * time.Second
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	return s
}

// Bridge relays media-stream calls to the speech model.
type Bridge struct {
	deps     Deps
	settings Settings
}

func New(deps Deps, settings Settings) *Bridge {
	if deps.Dispatcher == nil {
		deps.Dispatcher = functions.NewDispatcher(functions.MustRegistry(), 0)
	}
	if deps.ToolClient == nil {
		deps.ToolClient = &http.Client{}
	}
	return &Bridge{deps: deps, settings: settings.withDefaults()}
}

func (b *Bridge) Tracker() *Tracker { return b.deps.Tracker }

// Serve runs one call on an accepted telephony connection and returns when
// the call has been torn down. tel is closed on return.
func (b *Bridge) Serve(ctx context.Context, tel Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	connID := uuid.NewString()
	unregister := b.deps.Tracker.Register(connID, cancel)
	defer unregister()

	log := logger.From(ctx).With("conn_id", connID)
	c := &call{
		b:        b,
		ctx:      logger.With(ctx, log),
		cancel:   cancel,
		log:      log,
		tel:      tel,
		sess:     newSession(),
		toolDone: make(chan toolResult, 4),
	}
	c.run()
}
