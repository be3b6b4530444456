package calls

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"voice-bridge/internal/events"
	"voice-bridge/internal/summary"
)

type stubSummarizer struct {
	res summary.Result
	err error
}

func (s stubSummarizer) Summarize(context.Context, summary.Input) (summary.Result, error) {
	return s.res, s.err
}

func newTestRecorder(t *testing.T, opts ...RecorderOption) (*Recorder, *MemoryRepo, *events.MemorySink) {
	t.Helper()
	repo := NewMemoryRepo()
	sink := events.NewMemorySink()
	opts = append([]RecorderOption{WithEvents(events.NewService(sink))}, opts...)
	return NewRecorder(repo, opts...), repo, sink
}

func begin(t *testing.T, r *Recorder, start time.Time) {
	t.Helper()
	if err := r.Begin(context.Background(), Session{CallID: "CA1", TenantID: "t1", StartedAt: start}); err != nil {
		t.Fatalf("begin: %v", err)
	}
}

func TestRecorder_BeginCreatesInProgress(t *testing.T) {
	r, repo, _ := newTestRecorder(t)
	begin(t, r, time.Now())

	s, err := repo.Get(context.Background(), "t1", "CA1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Status != StatusInProgress || s.Direction != DirectionInbound {
		t.Fatalf("unexpected session %+v", s)
	}
	if _, err := repo.Get(context.Background(), "other-tenant", "CA1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected tenant-scoped read to miss, got %v", err)
	}
}

func TestRecorder_FinalizeOnce(t *testing.T) {
	r, repo, sink := newTestRecorder(t)
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	begin(t, r, start)

	in := FinalizeInput{
		CallID: "CA1", TenantID: "t1", StartedAt: start,
		EndedAt: start.Add(61600 * time.Millisecond), Transcript: "caller: hi", ReachedActive: true, Reason: "stop",
	}

	var wg sync.WaitGroup
	applied := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied <- r.Finalize(context.Background(), in)
		}()
	}
	wg.Wait()
	close(applied)
	n := 0
	for a := range applied {
		if a {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("expected exactly one applied finalize, got %d", n)
	}
	r.Wait()

	s, _ := repo.Get(context.Background(), "t1", "CA1")
	if s.Status != StatusCompleted || s.DurationSeconds != 62 || s.EndedAt == nil {
		t.Fatalf("unexpected session %+v", s)
	}
	if got := len(sink.OfType(events.TypeCallCompleted)); got != 1 {
		t.Fatalf("expected one call.completed event, got %d", got)
	}
}

func TestRecorder_FinalizeKeepsNoPerCallState(t *testing.T) {
	r, repo, _ := newTestRecorder(t)
	for i := 0; i < 1000; i++ {
		id := "CA" + strconv.Itoa(i)
		start := time.Now()
		if err := r.Begin(context.Background(), Session{CallID: id, TenantID: "t1", StartedAt: start}); err != nil {
			t.Fatalf("begin: %v", err)
		}
		if !r.Finalize(context.Background(), FinalizeInput{CallID: id, TenantID: "t1", StartedAt: start}) {
			t.Fatalf("finalize %s not applied", id)
		}
	}
	r.Wait()
	r.mu.Lock()
	n := len(r.inflight)
	r.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no retained finalize state, got %d entries", n)
	}
	// A repeat after the guard is released is stopped by the store.
	if r.Finalize(context.Background(), FinalizeInput{CallID: "CA7", TenantID: "t1", StartedAt: time.Now(), ReachedActive: true}) {
		t.Fatalf("repeat finalize must not apply")
	}
	if s, _ := repo.Get(context.Background(), "t1", "CA7"); s.Status != StatusFailed {
		t.Fatalf("repeat finalize overwrote status: %s", s.Status)
	}
}

func TestRecorder_FinalizeWithoutBeginStillEmits(t *testing.T) {
	r, repo, sink := newTestRecorder(t)
	repo.Err = errors.New("db down")
	if err := r.Begin(context.Background(), Session{CallID: "CA1", TenantID: "t1"}); err == nil {
		t.Fatalf("expected begin error")
	}
	repo.Err = nil

	if r.Finalize(context.Background(), FinalizeInput{CallID: "CA1", TenantID: "t1", StartedAt: time.Now(), Reason: "stop"}) {
		t.Fatalf("nothing to finalize in storage")
	}
	r.Wait()
	got := sink.OfType(events.TypeCallCompleted)
	if len(got) != 1 {
		t.Fatalf("expected call.completed for the unrecorded call, got %d", len(got))
	}
	var payload struct {
		Recorded bool   `json:"recorded"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(got[0].Payload, &payload); err != nil || payload.Recorded || payload.Reason != "stop" {
		t.Fatalf("unexpected payload %s (%v)", got[0].Payload, err)
	}

	// An already final row emits nothing more.
	begin(t, r, time.Now())
	r.Finalize(context.Background(), FinalizeInput{CallID: "CA1", TenantID: "t1", StartedAt: time.Now()})
	r.Finalize(context.Background(), FinalizeInput{CallID: "CA1", TenantID: "t1", StartedAt: time.Now()})
	r.Wait()
	if got := len(sink.OfType(events.TypeCallCompleted)); got != 2 {
		t.Fatalf("expected one more call.completed, got %d", got)
	}
}

func TestRecorder_FinalizeBeforeActiveIsFailed(t *testing.T) {
	r, repo, _ := newTestRecorder(t)
	start := time.Now()
	begin(t, r, start)

	r.Finalize(context.Background(), FinalizeInput{CallID: "CA1", TenantID: "t1", StartedAt: start, EndedAt: start.Add(-time.Second)})
	s, _ := repo.Get(context.Background(), "t1", "CA1")
	if s.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", s.Status)
	}
	if s.DurationSeconds != 0 {
		t.Fatalf("expected zero duration, got %d", s.DurationSeconds)
	}
}

func TestRecorder_StoreConditionGuardsAcrossRecorders(t *testing.T) {
	repo := NewMemoryRepo()
	a := NewRecorder(repo)
	b := NewRecorder(repo)
	start := time.Now()
	if err := a.Begin(context.Background(), Session{CallID: "CA1", TenantID: "t1", StartedAt: start}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !a.Finalize(context.Background(), FinalizeInput{CallID: "CA1", TenantID: "t1", StartedAt: start, ReachedActive: true}) {
		t.Fatalf("expected first finalize to apply")
	}
	if b.Finalize(context.Background(), FinalizeInput{CallID: "CA1", TenantID: "t1", StartedAt: start}) {
		t.Fatalf("expected second process finalize to be a no-op")
	}
	s, _ := repo.Get(context.Background(), "t1", "CA1")
	if s.Status != StatusCompleted {
		t.Fatalf("second finalize overwrote status: %s", s.Status)
	}
}

func TestRecorder_PersistenceErrorsAreSwallowed(t *testing.T) {
	r, repo, _ := newTestRecorder(t)
	repo.Err = errors.New("db down")
	if err := r.Begin(context.Background(), Session{CallID: "CA1", TenantID: "t1"}); err == nil {
		t.Fatalf("expected begin error to be reported")
	}
	if r.Finalize(context.Background(), FinalizeInput{CallID: "CA1", TenantID: "t1", StartedAt: time.Now()}) {
		t.Fatalf("expected finalize to report not applied")
	}
}

func TestRecorder_SummaryIsStoredAndEmitted(t *testing.T) {
	sum := stubSummarizer{res: summary.Result{Summary: "Booked a cleaning.", ActionItems: []string{"Send reminder"}}}
	r, repo, sink := newTestRecorder(t, WithSummarizer(sum, time.Second))
	start := time.Now()
	begin(t, r, start)

	r.Finalize(context.Background(), FinalizeInput{CallID: "CA1", TenantID: "t1", StartedAt: start, Transcript: "caller: book me", ReachedActive: true})
	r.Wait()

	s, _ := repo.Get(context.Background(), "t1", "CA1")
	if s.Summary != "Booked a cleaning." || len(s.ActionItems) != 1 {
		t.Fatalf("summary not stored: %+v", s)
	}
	if got := len(sink.OfType(events.TypeCallSummarized)); got != 1 {
		t.Fatalf("expected one call.summarized event, got %d", got)
	}
}

func TestRecorder_SummaryFailureLeavesSessionFinal(t *testing.T) {
	r, repo, sink := newTestRecorder(t, WithSummarizer(stubSummarizer{err: errors.New("provider down")}, time.Second))
	start := time.Now()
	begin(t, r, start)
	r.Finalize(context.Background(), FinalizeInput{CallID: "CA1", TenantID: "t1", StartedAt: start, ReachedActive: true})
	r.Wait()

	s, _ := repo.Get(context.Background(), "t1", "CA1")
	if s.Status != StatusCompleted || s.Summary != "" {
		t.Fatalf("unexpected session %+v", s)
	}
	if len(sink.OfType(events.TypeCallSummarized)) != 0 {
		t.Fatalf("did not expect call.summarized")
	}
}

func TestDuration(t *testing.T) {
	start := time.Unix(100, 0)
	if d := Duration(start, start.Add(1499*time.Millisecond)); d != 1 {
		t.Fatalf("expected 1, got %d", d)
	}
	if d := Duration(start, start.Add(1500*time.Millisecond)); d != 2 {
		t.Fatalf("expected 2, got %d", d)
	}
	if d := Duration(start, start.Add(-time.Second)); d != 0 {
		t.Fatalf("expected 0, got %d", d)
	}
}
