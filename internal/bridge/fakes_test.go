package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voice-bridge/internal/auth"
	"voice-bridge/internal/calls"
	"voice-bridge/internal/functions"
	"voice-bridge/internal/tenants"
)

// fakeConn is an in-memory websocket. Tests push frames with send and read
// what the bridge wrote with frames.
type fakeConn struct {
	in chan []byte

	mu     sync.Mutex
	writes [][]byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m, ok := <-f.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, m, nil
	case <-f.closed:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) send(t *testing.T, v any) {
	t.Helper()
	var b []byte
	switch m := v.(type) {
	case string:
		b = []byte(m)
	default:
		var err error
		if b, err = json.Marshal(v); err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	f.in <- b
}

// hangup simulates the remote side going away.
func (f *fakeConn) hangup() { close(f.in) }

// typed returns written frames whose "event" or "type" equals name.
func (f *fakeConn) typed(name string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, w := range f.writes {
		var m map[string]any
		if json.Unmarshal(w, &m) != nil {
			continue
		}
		if m["event"] == name || m["type"] == name {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeConn) count(name string) int { return len(f.typed(name)) }

// types lists the "type" of every written frame in write order.
func (f *fakeConn) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.writes))
	for _, w := range f.writes {
		var m struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(w, &m)
		out = append(out, m.Type)
	}
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	model string

	// beforeDial runs on the call's goroutine before the connection is made.
	beforeDial func()
}

func (d *fakeDialer) Dial(ctx context.Context, model string) (Conn, error) {
	if d.beforeDial != nil {
		d.beforeDial()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.model = model
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) conn(t *testing.T) *fakeConn {
	t.Helper()
	var c *fakeConn
	waitFor(t, "model dial", func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		if len(d.conns) > 0 {
			c = d.conns[0]
			return true
		}
		return false
	})
	return c
}

type fakeHanguper struct {
	mu       sync.Mutex
	messages map[string]string
}

func (h *fakeHanguper) HangupWithMessage(ctx context.Context, callSID, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.messages == nil {
		h.messages = map[string]string{}
	}
	h.messages[callSID] = message
	return nil
}

func (h *fakeHanguper) message(callSID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.messages[callSID]
}

type fakeSlots struct {
	allow    bool
	err      error
	mu       sync.Mutex
	released []string
}

func (s *fakeSlots) Acquire(ctx context.Context, tenantID string) (bool, error) {
	return s.allow, s.err
}

func (s *fakeSlots) Release(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, tenantID)
	return nil
}

type fakeVerifier struct {
	grants map[string]auth.StreamGrant
}

func (v fakeVerifier) VerifyStreamToken(token string, now time.Time) (auth.StreamGrant, error) {
	g, ok := v.grants[token]
	if !ok {
		return auth.StreamGrant{}, errors.New("bad token")
	}
	return g, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func alphaTenant() tenants.Config {
	return tenants.Config{TenantID: "alpha", BusinessName: "Alpha Dental", PhoneNumber: "+15550000001", WelcomeMessage: "Alpha here", VoiceID: "shimmer"}
}

func testTenants() *tenants.MemoryStore {
	return tenants.NewMemoryStore(
		alphaTenant(),
		tenants.Config{TenantID: "beta", BusinessName: "Beta Salon", PhoneNumber: "+15550000002", WelcomeMessage: "Beta here"},
	)
}

type harness struct {
	bridge *Bridge
	store  *tenants.MemoryStore
	repo   *calls.MemoryRepo
	rec    *calls.Recorder
	dialer *fakeDialer
	hang   *fakeHanguper
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		store:  testTenants(),
		repo:   calls.NewMemoryRepo(),
		dialer: &fakeDialer{},
		hang:   &fakeHanguper{},
	}
	h.rec = calls.NewRecorder(h.repo)
	deps := Deps{
		Resolver:   tenants.NewResolver(h.store),
		Recorder:   h.rec,
		Dispatcher: functions.NewDispatcher(functions.MustRegistry(), time.Second),
		Model:      h.dialer,
		Telephony:  h.hang,
		Tracker:    NewTracker(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.bridge = New(deps, Settings{StartTimeout: time.Second})
	return h
}

// serve runs a call in the background; the returned channel closes when Serve returns.
func (h *harness) serve(tel *fakeConn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.bridge.Serve(context.Background(), tel)
	}()
	return done
}

func startFrame(callSID, streamSID, to string, params map[string]string) map[string]any {
	custom := map[string]string{"to": to, "from": "+15559990000", "direction": "inbound", "callSid": callSID}
	for k, v := range params {
		custom[k] = v
	}
	return map[string]any{
		"event":     "start",
		"streamSid": streamSID,
		"start": map[string]any{
			"streamSid":        streamSID,
			"callSid":          callSID,
			"customParameters": custom,
		},
	}
}

func mediaFrame(streamSID string, ts int64) map[string]any {
	return map[string]any{
		"event":     "media",
		"streamSid": streamSID,
		"media":     map[string]any{"timestamp": strconv.FormatInt(ts, 10), "payload": "AAAA"},
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("call did not end")
	}
}
