package functions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voice-bridge/internal/crm"
	"voice-bridge/internal/tenants"
)

// Monday 2025-03-03 07:00 UTC.
var fixedNow = time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC)

func newBuiltinDispatcher(t *testing.T) (*Dispatcher, *crm.MemoryRepo) {
	t.Helper()
	repo := crm.NewMemoryRepo()
	svc := crm.NewService(repo, crm.WithClock(func() time.Time { return fixedNow }))
	reg, err := NewRegistry(Builtins(svc)...)
	if err != nil {
		t.Fatalf("builtins must validate: %v", err)
	}
	return NewDispatcher(reg, time.Second), repo
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("output is not json: %q", s)
	}
	return m
}

func TestBuiltins_BookingFlow(t *testing.T) {
	d, repo := newBuiltinDispatcher(t)
	ctx := context.Background()
	call := CallContext{TenantID: "t1", CallID: "CA1", Caller: "+15551112222", Location: time.UTC}

	r := d.Dispatch(ctx, call, NameCheckAvailability, json.RawMessage(`{"date":"2025-03-03"}`))
	m := decode(t, r.Output)
	if m["available"] != true || len(m["slots"].([]any)) != 16 {
		t.Fatalf("unexpected availability %s", r.Output)
	}

	r = d.Dispatch(ctx, call, NameCreateBooking, json.RawMessage(`{"name":"Dana","start_time":"2025-03-03T10:00","service":"cleaning"}`))
	m = decode(t, r.Output)
	if m["booked"] != true || m["starts_at"] != "2025-03-03T10:00" {
		t.Fatalf("unexpected booking %s", r.Output)
	}
	clients := repo.Clients()
	if len(clients) != 1 || clients[0].Phone != "+15551112222" {
		t.Fatalf("expected caller number to be used, got %+v", clients)
	}

	r = d.Dispatch(ctx, call, NameCreateBooking, json.RawMessage(`{"name":"Eve","start_time":"2025-03-03T10:00"}`))
	if m = decode(t, r.Output); m["booked"] != false || m["reason"] != "slot_taken" {
		t.Fatalf("expected slot_taken, got %s", r.Output)
	}

	r = d.Dispatch(ctx, call, NameCreateBooking, json.RawMessage(`{"name":"Eve","start_time":"tomorrow at 3"}`))
	if m = decode(t, r.Output); m["booked"] != false {
		t.Fatalf("expected unparsable time to be reported, got %s", r.Output)
	}
}

func TestBuiltins_SaveLeadAndDataLayerFailure(t *testing.T) {
	d, repo := newBuiltinDispatcher(t)
	ctx := context.Background()

	r := d.Dispatch(ctx, CallContext{TenantID: "t1", Caller: "+15553334444"}, NameSaveLead, json.RawMessage(`{"name":"Lee","notes":"wants pricing"}`))
	if m := decode(t, r.Output); m["saved"] != true {
		t.Fatalf("unexpected lead result %s", r.Output)
	}

	r = d.Dispatch(ctx, CallContext{TenantID: "t1"}, NameSaveLead, json.RawMessage(`{"name":"Anon"}`))
	if m := decode(t, r.Output); m["saved"] != false {
		t.Fatalf("expected missing contact to be reported, got %s", r.Output)
	}

	repo.Err = errors.New("db down")
	r = d.Dispatch(ctx, CallContext{TenantID: "t1"}, NameCheckAvailability, json.RawMessage(`{"date":"2025-03-03"}`))
	if r.Output != "Unable to check availability right now." || r.Err == nil {
		t.Fatalf("expected failure text, got %+v", r)
	}
}

func TestParseLocalTime(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	got, err := ParseLocalTime("2025-03-03T10:00", loc)
	if err != nil || got.UTC().Hour() != 9 {
		t.Fatalf("unexpected %v (%v)", got, err)
	}
	got, err = ParseLocalTime("2025-03-03T10:00:00Z", loc)
	if err != nil || got.UTC().Hour() != 10 {
		t.Fatalf("unexpected %v (%v)", got, err)
	}
}

func TestCustomTools_PostToWebhook(t *testing.T) {
	var got webhookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write([]byte(`{"order":"shipped"}`))
	}))
	defer srv.Close()

	defs := []tenants.CustomTool{
		{Name: "lookupOrder", Description: "Find an order", WebhookURL: srv.URL, TimeoutMS: 500},
		{Name: "noHook", WebhookURL: "not a url"},
	}
	d, _ := newBuiltinDispatcher(t)
	d = d.WithTools(context.Background(), CustomTools(defs, srv.Client())...)

	if _, ok := d.Registry().Lookup("noHook"); ok {
		t.Fatalf("tool without a valid webhook should be skipped")
	}
	r := d.Dispatch(context.Background(), CallContext{TenantID: "t1", CallID: "CA1", Caller: "+1555"}, "lookupOrder", json.RawMessage(`{"id":"42"}`))
	if r.Err != nil || r.Output != `{"order":"shipped"}` {
		t.Fatalf("unexpected result %+v", r)
	}
	if got.TenantID != "t1" || got.CallID != "CA1" || got.Name != "lookupOrder" || !strings.Contains(string(got.Arguments), "42") {
		t.Fatalf("unexpected webhook body %+v", got)
	}
}

func TestCustomTools_WebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	reg := MustRegistry()
	d := NewDispatcher(reg, time.Second).WithTools(context.Background(), CustomTools([]tenants.CustomTool{{Name: "x", WebhookURL: srv.URL}}, srv.Client())...)
	r := d.Dispatch(context.Background(), CallContext{TenantID: "t1"}, "x", nil)
	if r.Err == nil || r.Output != "Unable to complete x right now." {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestCustomTools_TimeoutFires(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	defs := []tenants.CustomTool{{Name: "slowLookup", WebhookURL: srv.URL, TimeoutMS: 50}}
	d := NewDispatcher(MustRegistry(), 5*time.Second).WithTools(context.Background(), CustomTools(defs, &http.Client{})...)

	r := d.Dispatch(context.Background(), CallContext{TenantID: "t1"}, "slowLookup", nil)
	if !errors.Is(r.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %+v", r)
	}
	if r.Output != "Unable to complete slowLookup right now." {
		t.Fatalf("unexpected output %q", r.Output)
	}
	if r.Duration > time.Second {
		t.Fatalf("tool ran past its 50ms timeout: %s", r.Duration)
	}
}
