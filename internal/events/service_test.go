package events

import (
	"context"
	"encoding/json"
	"testing"
)

func TestService_EmitRequiresTenantCallAndType(t *testing.T) {
	svc := NewService(NewMemorySink())

	if err := svc.Emit(context.Background(), Event{Type: TypeCallCompleted, CallID: "c"}); err == nil {
		t.Fatalf("expected error without tenant")
	}
	if err := svc.Emit(context.Background(), Event{TenantID: "t", CallID: "c"}); err == nil {
		t.Fatalf("expected error without type")
	}
	if err := svc.Emit(context.Background(), Event{TenantID: "t", Type: TypeCallCompleted}); err == nil {
		t.Fatalf("expected error without call id")
	}
}

func TestService_EmitJSONStampsEvent(t *testing.T) {
	sink := NewMemorySink()
	svc := NewService(sink)

	if err := svc.EmitJSON(context.Background(), TypeCallCompleted, "t1", "CA1", map[string]any{"status": "completed"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := sink.OfType(TypeCallCompleted)
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be stamped")
	}
	var body map[string]string
	if err := json.Unmarshal(evs[0].Payload, &body); err != nil || body["status"] != "completed" {
		t.Fatalf("unexpected payload %s (%v)", evs[0].Payload, err)
	}
}

func TestService_NilSink(t *testing.T) {
	var svc *Service
	if err := svc.Emit(context.Background(), Event{TenantID: "t", CallID: "c", Type: TypeCallStarted}); err == nil {
		t.Fatalf("expected error for nil service")
	}
}

func TestRedisStreamSink_NilClient(t *testing.T) {
	s := NewRedisStreamSink(nil, "")
	if s.stream != DefaultStream {
		t.Fatalf("expected default stream, got %q", s.stream)
	}
	if err := s.Publish(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error for nil redis client")
	}
}
