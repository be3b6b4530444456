package calls

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"voice-bridge/internal/events"
	"voice-bridge/internal/summary"
	"voice-bridge/pkg/logger"
)

// FinalizeInput is what the bridge knows when a call ends.
type FinalizeInput struct {
	CallID   string
	TenantID string
	// BusinessName is passed to the summarizer.
	BusinessName string
	StartedAt    time.Time
	EndedAt      time.Time
	Transcript   string
	// ReachedActive reports whether audio ever flowed to the model.
	ReachedActive bool
	// Reason is a short end cause for logs and the completion event
	// (stop, telephony_closed, model_error, handshake_timeout, capacity).
	Reason string
}

// Recorder persists the call lifecycle.
//
// Persistence and event failures are logged and swallowed; they never reach
// the caller's audio path.
type Recorder struct {
	repo       Repository
	events     *events.Service
	summarizer summary.Summarizer

	clock          func() time.Time
	summaryTimeout time.Duration

	// inflight holds call ids whose Finalize is running. Once the store has
	// answered, its conditional update is the guard.
	mu       sync.Mutex
	inflight map[string]struct{}

	// wg tracks background work (events, summaries) so shutdown and tests can wait.
	wg sync.WaitGroup
}

type RecorderOption func(*Recorder)

func WithEvents(s *events.Service) RecorderOption {
	return func(r *Recorder) { r.events = s }
}

func WithSummarizer(s summary.Summarizer, timeout time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.summarizer = s
		if timeout > 0 {
			r.summaryTimeout = timeout
		}
	}
}

func WithClock(clock func() time.Time) RecorderOption {
	return func(r *Recorder) { r.clock = clock }
}

func NewRecorder(repo Repository, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		repo:           repo,
		clock:          time.Now,
		summaryTimeout: 30 * time.Second,
		inflight:       map[string]struct{}{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Begin creates the in_progress record. The error is returned for logging
// only; the call proceeds regardless.
func (r *Recorder) Begin(ctx context.Context, s Session) error {
	log := logger.From(ctx)
	s.Status = StatusInProgress
	if s.StartedAt.IsZero() {
		s.StartedAt = r.clock().UTC()
	}
	if s.Direction == "" {
		s.Direction = DirectionInbound
	}
	if err := r.repo.Create(ctx, s); err != nil {
		log.Error("call session create failed", "err", err)
		return err
	}
	log.Info("call session started", "direction", s.Direction, "fallback_tenant", s.FallbackTenant)
	r.emitAsync(ctx, events.TypeCallStarted, s.TenantID, s.CallID, map[string]any{
		"direction":     s.Direction,
		"caller_number": s.CallerNumber,
		"called_number": s.CalledNumber,
		"started_at":    s.StartedAt,
	})
	return nil
}

// Finalize records the terminal state of a call. Repeated calls for the same
// call id are no-ops: the conditional store update lets only the first win.
// It reports whether this invocation applied the update.
func (r *Recorder) Finalize(ctx context.Context, in FinalizeInput) bool {
	if in.CallID == "" {
		return false
	}
	r.mu.Lock()
	if _, busy := r.inflight[in.CallID]; busy {
		r.mu.Unlock()
		return false
	}
	r.inflight[in.CallID] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inflight, in.CallID)
		r.mu.Unlock()
	}()

	log := logger.From(ctx)

	ended := in.EndedAt
	if ended.IsZero() {
		ended = r.clock()
	}
	if ended.Before(in.StartedAt) {
		ended = in.StartedAt
	}
	status := StatusFailed
	if in.ReachedActive {
		status = StatusCompleted
	}
	c := Completion{
		Status:          status,
		EndedAt:         ended.UTC(),
		DurationSeconds: Duration(in.StartedAt, ended),
		Transcript:      in.Transcript,
	}

	// Teardown often runs after the call context is canceled.
	wctx := context.WithoutCancel(ctx)
	applied, err := r.repo.Finalize(wctx, in.CallID, c)
	if err != nil {
		log.Error("call session finalize failed", "err", err, "status", status)
		return false
	}
	if !applied {
		if r.missing(wctx, in) {
			// Begin never persisted the row. Consumers still learn the call ended.
			log.Warn("call session missing at finalize; start was not recorded", "status", status, "reason", in.Reason)
			r.emitCompleted(wctx, in, c, false)
		} else {
			log.Debug("call session already finalized", "status", status)
		}
		return false
	}
	log.Info("call session finalized", "status", status, "duration_seconds", c.DurationSeconds, "reason", in.Reason)

	r.emitCompleted(wctx, in, c, true)
	r.summarizeAsync(wctx, log, in)
	return true
}

// missing reports whether the store has no row for the call. Without a
// tenant id the read cannot be scoped, so the row is assumed present.
func (r *Recorder) missing(ctx context.Context, in FinalizeInput) bool {
	if in.TenantID == "" {
		return false
	}
	_, err := r.repo.Get(ctx, in.TenantID, in.CallID)
	return errors.Is(err, ErrNotFound)
}

func (r *Recorder) emitCompleted(ctx context.Context, in FinalizeInput, c Completion, recorded bool) {
	r.emitAsync(ctx, events.TypeCallCompleted, in.TenantID, in.CallID, map[string]any{
		"status":           c.Status,
		"duration_seconds": c.DurationSeconds,
		"ended_at":         c.EndedAt,
		"reason":           in.Reason,
		"recorded":         recorded,
	})
}

// Wait blocks until background events and summaries are done.
func (r *Recorder) Wait() { r.wg.Wait() }

// Duration is whole seconds between start and end, rounded, never negative.
func Duration(start, end time.Time) int {
	if start.IsZero() || end.Before(start) {
		return 0
	}
	return int(math.Round(end.Sub(start).Seconds()))
}

func (r *Recorder) emitAsync(ctx context.Context, t events.Type, tenantID, callID string, payload any) {
	if r.events == nil {
		return
	}
	log := logger.From(ctx)
	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ectx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := r.events.EmitJSON(ectx, t, tenantID, callID, payload); err != nil {
			log.Warn("lifecycle event emit failed", "event_type", t, "err", err)
		}
	}()
}

func (r *Recorder) summarizeAsync(ctx context.Context, log *slog.Logger, in FinalizeInput) {
	if r.summarizer == nil {
		return
	}
	if _, off := r.summarizer.(summary.Noop); off {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("call summary panicked", "panic", rec)
			}
		}()
		sctx, cancel := context.WithTimeout(ctx, r.summaryTimeout)
		defer cancel()

		res, err := r.summarizer.Summarize(sctx, summary.Input{
			TenantID:     in.TenantID,
			BusinessName: in.BusinessName,
			Transcript:   in.Transcript,
		})
		if err != nil {
			log.Warn("call summary failed", "err", err)
			return
		}
		if err := r.repo.UpdateSummary(sctx, in.CallID, res.Summary, res.ActionItems); err != nil {
			log.Error("call summary persist failed", "err", err)
			return
		}
		log.Info("call summarized", "action_items", len(res.ActionItems))
		r.emitAsync(ctx, events.TypeCallSummarized, in.TenantID, in.CallID, map[string]any{
			"summary":      res.Summary,
			"action_items": res.ActionItems,
		})
	}()
}
