package bridge

import (
	"context"
	"sync"
)

// Tracker tracks live calls so shutdown can cancel and drain them.
type Tracker struct {
	mu    sync.Mutex
	calls map[string]*trackedCall
	wg    sync.WaitGroup
}

type trackedCall struct {
	cancel func()
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{calls: make(map[string]*trackedCall)}
}

// Register adds a call. The returned func must be called when the call ends.
func (t *Tracker) Register(id string, cancel func()) (unregister func()) {
	if t == nil {
		return func() {}
	}
	entry := &trackedCall{cancel: cancel}

	t.mu.Lock()
	if t.calls == nil {
		t.calls = make(map[string]*trackedCall)
	}
	old := t.calls[id]
	t.calls[id] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(id, old)
	}
	return func() { t.unregister(id, entry) }
}

func (t *Tracker) unregister(id string, entry *trackedCall) {
	entry.once.Do(func() {
		t.mu.Lock()
		if t.calls[id] == entry {
			delete(t.calls, id)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// CancelAll cancels every live call's context.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}
	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.calls {
		if entry.cancel != nil {
			cancels = append(cancels, entry.cancel)
		}
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered call has unregistered or ctx ends.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
