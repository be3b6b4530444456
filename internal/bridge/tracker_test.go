package bridge

import (
	"context"
	"testing"
	"time"
)

func TestTracker_RegisterCancelWait(t *testing.T) {
	tr := NewTracker()
	canceled := 0
	un1 := tr.Register("a", func() { canceled++ })
	un2 := tr.Register("b", func() { canceled++ })
	if tr.Count() != 2 {
		t.Fatalf("expected 2 calls, got %d", tr.Count())
	}
	if n := tr.CancelAll(); n != 2 || canceled != 2 {
		t.Fatalf("expected 2 canceled, got %d/%d", n, canceled)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if tr.Wait(ctx) {
		t.Fatalf("wait must not finish while calls are registered")
	}

	un1()
	un1()
	un2()
	if !tr.Wait(context.Background()) || tr.Count() != 0 {
		t.Fatalf("expected tracker drained")
	}
}

func TestTracker_ReRegisterReplaces(t *testing.T) {
	tr := NewTracker()
	un1 := tr.Register("a", nil)
	un2 := tr.Register("a", nil)
	if tr.Count() != 1 {
		t.Fatalf("expected replacement, got %d", tr.Count())
	}
	un1()
	if tr.Count() != 1 {
		t.Fatalf("stale unregister must not remove the new entry")
	}
	un2()
	if !tr.Wait(context.Background()) {
		t.Fatalf("expected drained")
	}
}

func TestTracker_NilIsSafe(t *testing.T) {
	var tr *Tracker
	tr.Register("a", nil)()
	if tr.Count() != 0 || tr.CancelAll() != 0 || !tr.Wait(context.Background()) {
		t.Fatalf("nil tracker must be inert")
	}
}
