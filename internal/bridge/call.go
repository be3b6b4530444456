package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"voice-bridge/internal/calls"
	"voice-bridge/internal/functions"
	"voice-bridge/internal/realtime"
	"voice-bridge/internal/telephony"
	"voice-bridge/internal/tenants"
	"voice-bridge/pkg/logger"
)

// End reasons recorded on the call.
const (
	ReasonStop             = "stop"
	ReasonTelephonyClosed  = "telephony_closed"
	ReasonModelClosed      = "model_closed"
	ReasonModelError       = "model_error"
	ReasonHandshakeFailed  = "handshake_failed"
	ReasonCapacity         = "capacity"
	ReasonInvalidToken     = "invalid_stream_token"
	ReasonStartTimeout     = "start_timeout"
	ReasonShutdown         = "shutdown"
	ReasonInternal         = "internal_error"
	ReasonTelephonyWrite   = "telephony_write_failed"
)

const inboundBuffer = 64

type toolResult struct {
	modelCallID string
	name        string
	result      functions.Result
}

// call is the actor for one media stream. Only run's goroutine touches its
// fields after construction.
type call struct {
	b      *Bridge
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	tel   Conn
	model Conn
	out   *telephony.Outbound

	sess       *Session
	tenant     *tenants.CallResolver
	dispatcher *functions.Dispatcher

	telIn    chan []byte
	telErr   error
	modelIn  chan []byte
	modelErr error
	toolDone chan toolResult

	began    bool
	slotHeld bool

	done      bool
	reason    string
	hangupMsg string
}

func (c *call) run() {
	defer c.teardown()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("call actor panic", "panic", r, "stack", string(debug.Stack()))
			c.end(ReasonInternal, telephony.ApologyMessage)
		}
	}()

	c.telIn = make(chan []byte, inboundBuffer)
	go readLoop(c.ctx, c.tel, c.telIn, &c.telErr)

	startTimer := time.NewTimer(c.b.settings.StartTimeout)
	defer startTimer.Stop()
	startC := startTimer.C

	for !c.done {
		if c.sess.State() != StateIdle {
			startC = nil
		}
		select {
		case <-c.ctx.Done():
			c.end(ReasonShutdown, telephony.ApologyMessage)
		case <-startC:
			c.log.Warn("no start frame before timeout")
			c.end(ReasonStartTimeout, "")
		case msg, ok := <-c.telIn:
			if !ok {
				if c.telErr != nil {
					c.log.Debug("telephony read ended", "err", c.telErr)
				}
				c.end(ReasonTelephonyClosed, "")
				continue
			}
			c.handleTelephony(msg)
		case msg, ok := <-c.modelIn:
			if !ok {
				c.log.Warn("model connection closed", "err", c.modelErr)
				c.end(ReasonModelClosed, telephony.ApologyMessage)
				continue
			}
			c.handleModel(msg)
		case r := <-c.toolDone:
			c.sendToolResult(r)
		}
	}
}

// end marks the call for teardown. The first reason wins.
func (c *call) end(reason, hangupMsg string) {
	if c.done {
		return
	}
	c.done = true
	c.reason = reason
	c.hangupMsg = hangupMsg
}

func (c *call) transition(to State) {
	from := c.sess.State()
	if err := c.sess.transition(to); err != nil {
		c.log.Debug("state transition rejected", "from", from.String(), "to", to.String())
		return
	}
	c.log.Debug("state transition", "from", from.String(), "to", to.String())
}

/* ===================== TELEPHONY ===================== */

func (c *call) handleTelephony(msg []byte) {
	f, err := telephony.ParseFrame(msg)
	if err != nil {
		c.log.Debug("ignoring malformed telephony frame", "err", err)
		return
	}
	switch f.Event {
	case telephony.EventConnected:
	case telephony.EventStart:
		c.handleStart(f)
	case telephony.EventMedia:
		c.handleMedia(f)
	case telephony.EventMark:
		if f.Mark != nil {
			c.sess.ackMark(f.Mark.Name)
		}
	case telephony.EventDTMF:
		if f.DTMF != nil {
			c.log.Info("dtmf received", "digit", f.DTMF.Digit)
		}
	case telephony.EventStop:
		c.log.Info("telephony stream stopped")
		c.end(ReasonStop, "")
	default:
		c.log.Debug("ignoring unknown telephony event", "event", f.Event)
	}
}

func (c *call) handleStart(f telephony.Frame) {
	if c.sess.State() != StateIdle {
		c.log.Warn("duplicate start frame ignored")
		return
	}
	st := f.Start
	if st == nil {
		c.log.Debug("start frame without start block ignored")
		return
	}

	s := c.sess
	s.StreamID = f.StreamSID
	s.CallID = st.CallSID
	if s.CallID == "" {
		s.CallID = st.Param(telephony.ParamCallSID)
	}
	s.CalledNumber = tenants.NormalizePhone(st.Param(telephony.ParamTo))
	s.CallerNumber = st.Param(telephony.ParamFrom)
	s.Direction = calls.ParseDirection(st.Param(telephony.ParamDirection))
	s.StartedAt = c.b.settings.Clock().UTC()
	c.out = telephony.NewOutbound(s.StreamID)
	c.log = logger.ForCall(c.log, s.CallID, s.StreamID, "")
	c.ctx = logger.With(c.ctx, c.log)
	c.transition(StateStreamStarted)

	tenantID, ok := c.authorizeStream(st)
	if !ok {
		c.end(ReasonInvalidToken, telephony.ApologyMessage)
		return
	}

	c.tenant = c.b.deps.Resolver.ForCall()
	cfg := c.tenant.Resolve(c.ctx, tenants.Lookup{TenantID: tenantID, CalledNumber: s.CalledNumber})
	s.Tenant = cfg
	c.log = c.log.With("tenant_id", cfg.TenantID)
	c.ctx = logger.With(c.ctx, c.log)

	if c.b.deps.Recorder != nil {
		_ = c.b.deps.Recorder.Begin(c.ctx, calls.Session{
			CallID:         s.CallID,
			TenantID:       cfg.TenantID,
			StreamID:       s.StreamID,
			CallerNumber:   s.CallerNumber,
			CalledNumber:   s.CalledNumber,
			Direction:      s.Direction,
			FallbackTenant: cfg.Fallback,
			StartedAt:      s.StartedAt,
		})
		c.began = true
	}

	if !c.acquireSlot(cfg.TenantID) {
		c.end(ReasonCapacity, telephony.BusyMessage)
		return
	}

	if err := c.connectModel(); err != nil {
		c.log.Error("model connect failed", "err", err)
		c.end(ReasonHandshakeFailed, telephony.ApologyMessage)
		return
	}
}

// authorizeStream checks the stream token and returns the tenant id it grants.
// Without a verifier the tenantId parameter is trusted.
func (c *call) authorizeStream(st *telephony.StartInfo) (string, bool) {
	v := c.b.deps.Streams
	if v == nil {
		return st.Param(telephony.ParamTenantID), true
	}
	grant, err := v.VerifyStreamToken(st.Param(telephony.ParamToken), c.b.settings.Clock())
	if err != nil {
		c.log.Warn("stream token rejected", "err", err)
		return "", false
	}
	bound := st.Param(telephony.ParamCallSID)
	if bound == "" {
		bound = st.CallSID
	}
	if grant.CallSID != bound {
		c.log.Warn("stream token bound to another call", "token_call_sid", grant.CallSID)
		return "", false
	}
	if grant.Direction != "" {
		c.sess.Direction = calls.ParseDirection(grant.Direction)
	}
	return grant.TenantID, true
}

func (c *call) acquireSlot(tenantID string) bool {
	slots := c.b.deps.Slots
	if slots == nil {
		return true
	}
	ok, err := slots.Acquire(c.ctx, tenantID)
	if err != nil {
		c.log.Warn("call slot check failed; allowing call", "err", err)
		return true
	}
	if !ok {
		c.log.Warn("tenant at concurrent call limit")
		return false
	}
	c.slotHeld = true
	return true
}

func (c *call) connectModel() error {
	cfg := c.sess.Tenant
	model := cfg.Model
	if model == "" {
		model = c.b.settings.DefaultModel
	}

	dctx, cancel := context.WithTimeout(c.ctx, c.b.settings.HandshakeTimeout)
	conn, err := c.b.deps.Model.Dial(dctx, model)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", model, err)
	}
	c.model = conn
	c.modelIn = make(chan []byte, inboundBuffer)
	go readLoop(c.ctx, conn, c.modelIn, &c.modelErr)
	c.transition(StateModelConnected)

	// Pick up edits made since the call started; the tenant stays pinned.
	cfg = c.tenant.Refresh(c.ctx)
	c.sess.Tenant = cfg

	c.dispatcher = c.b.deps.Dispatcher.WithTools(c.ctx, functions.CustomTools(cfg.CustomTools, c.b.deps.ToolClient)...)

	voice := cfg.VoiceID
	if voice == "" {
		voice = c.b.settings.DefaultVoice
	}
	update := realtime.NewSessionUpdate(tenants.BuildInstructions(cfg, ""), voice, c.dispatcher.Registry().Definitions())
	if err := c.sendModel(update); err != nil {
		return err
	}
	if err := c.sendModel(realtime.NewGreetingItem(tenants.Greeting(cfg))); err != nil {
		return err
	}
	if err := c.sendModel(realtime.Bare{Type: realtime.EventResponseCreate}); err != nil {
		return err
	}
	c.log.Info("model session configured", "model", model, "voice", voice, "tools", len(update.Session.Tools))
	return nil
}

func (c *call) handleMedia(f telephony.Frame) {
	if f.Media == nil {
		return
	}
	c.sess.latestMedia = int64(f.Media.Timestamp)
	if c.model == nil {
		return
	}
	frame, err := realtime.AppendAudio(f.Media.Payload)
	if err != nil {
		c.log.Debug("dropping caller audio", "err", err)
		return
	}
	if err := writeText(c.model, frame); err != nil {
		c.log.Warn("model write failed", "err", err)
		c.end(ReasonModelError, telephony.ApologyMessage)
		return
	}
	c.markActive()
}

func (c *call) markActive() {
	if c.sess.State() == StateModelConnected {
		c.transition(StateActive)
	}
}

/* ===================== MODEL ===================== */

func (c *call) handleModel(msg []byte) {
	ev, err := realtime.ParseServerEvent(msg)
	if err != nil {
		c.log.Debug("ignoring malformed model event", "err", err)
		return
	}
	switch {
	case ev.IsAudioDelta():
		c.relayAudio(ev)
	case ev.IsAssistantTranscript():
		c.sess.appendTranscript("assistant", ev.Transcript)
	case ev.Type == realtime.EventInputTranscriptCompleted:
		c.sess.appendTranscript("caller", ev.Transcript)
	case ev.Type == realtime.EventSpeechStarted:
		c.bargeIn()
	case ev.Type == realtime.EventFunctionCallArgumentsDone:
		c.startTool(ev)
	case ev.Type == realtime.EventResponseCreated:
		c.sess.responseCreated(ev.ResponseRef())
		c.log.Debug("model event", "type", ev.Type, "response_id", ev.ResponseRef())
	case ev.Type == realtime.EventResponseDone:
		c.log.Debug("model event", "type", ev.Type, "response_id", ev.ResponseRef())
		if c.sess.responseDone() {
			c.sendResponseCreate()
		}
	case ev.Type == realtime.EventError:
		c.handleModelError(ev.Error)
	case ev.Type == realtime.EventSessionCreated, ev.Type == realtime.EventSessionUpdated:
		c.log.Debug("model event", "type", ev.Type)
	}
}

func (c *call) handleModelError(e *realtime.ErrorInfo) {
	if e == nil {
		c.log.Warn("model error event")
		return
	}
	switch e.Code {
	case realtime.ErrCodeActiveResponse:
		// Retry once the running response finishes.
		c.sess.responseQueued = true
		c.log.Debug("response.create deferred", "code", e.Code)
	case realtime.ErrCodeCancelNotActive:
		c.log.Debug("nothing to cancel", "code", e.Code)
	default:
		c.log.Warn("model error event", "code", e.Code, "type", e.Type, "message", e.Message)
	}
}

func (c *call) relayAudio(ev realtime.ServerEvent) {
	s := c.sess
	if s.interrupted(ev.ItemID, ev.ResponseID) {
		c.log.Debug("dropping audio from interrupted response", "item_id", ev.ItemID, "response_id", ev.ResponseID)
		return
	}
	frame, err := c.out.Media(ev.Delta)
	if err != nil {
		c.log.Debug("dropping model audio", "err", err)
		return
	}
	if s.responseStart < 0 {
		s.responseStart = s.latestMedia
	}
	if ev.ItemID != "" {
		s.lastAssistantItem = ev.ItemID
	}
	if ev.ResponseID != "" {
		s.playingResponse = ev.ResponseID
	}
	if err := c.sendTelephony(frame); err != nil {
		return
	}
	if err := c.sendTelephony(c.out.Mark(s.nextMark())); err != nil {
		return
	}
	c.markActive()
}

// bargeIn stops playback when the caller starts talking over the assistant:
// one clear to the caller, then the running response is canceled and the
// played part of the item kept.
func (c *call) bargeIn() {
	s := c.sess
	if len(s.markQueue) == 0 {
		return
	}
	if err := c.sendTelephony(c.out.Clear()); err != nil {
		return
	}
	var err error
	canceled := false
	if s.activeResponse != "" {
		err = c.sendModel(realtime.Bare{Type: realtime.EventResponseCancel})
		canceled = true
	}
	if err == nil {
		switch {
		case s.lastAssistantItem != "" && s.responseStart >= 0:
			elapsed := s.latestMedia - s.responseStart
			err = c.sendModel(realtime.NewTruncate(s.lastAssistantItem, elapsed))
			c.log.Debug("barge-in truncate", "item_id", s.lastAssistantItem, "audio_end_ms", elapsed, "canceled", canceled)
		case !canceled:
			err = c.sendModel(realtime.Bare{Type: realtime.EventResponseCancel})
			c.log.Debug("barge-in cancel")
		}
	}
	s.interrupt()
	if err != nil {
		c.log.Warn("model write failed", "err", err)
		c.end(ReasonModelError, telephony.ApologyMessage)
	}
}

func (c *call) startTool(ev realtime.ServerEvent) {
	cc := functions.CallContext{
		TenantID: c.sess.Tenant.TenantID,
		CallID:   c.sess.CallID,
		Caller:   c.sess.CallerNumber,
		Location: c.sess.Tenant.Location(),
	}
	d := c.dispatcher
	ctx := c.ctx
	out := c.toolDone
	c.log.Info("function call", "function", ev.Name, "model_call_id", ev.CallID)
	go func() {
		res := d.Dispatch(ctx, cc, ev.Name, json.RawMessage(ev.Arguments))
		select {
		case out <- toolResult{modelCallID: ev.CallID, name: ev.Name, result: res}:
		case <-ctx.Done():
		}
	}()
}

func (c *call) sendToolResult(r toolResult) {
	if c.model == nil {
		return
	}
	c.log.Info("function call finished", "function", r.name, "timed_out", r.result.TimedOut, "duration_ms", r.result.Duration.Milliseconds(), "failed", r.result.Err != nil)
	if err := c.sendModel(realtime.NewFunctionOutput(r.modelCallID, r.result.Output)); err != nil {
		c.log.Warn("model write failed", "err", err)
		c.end(ReasonModelError, telephony.ApologyMessage)
		return
	}
	if c.sess.activeResponse != "" {
		c.sess.responseQueued = true
		c.log.Debug("response.create queued behind active response", "response_id", c.sess.activeResponse)
		return
	}
	c.sendResponseCreate()
}

func (c *call) sendResponseCreate() {
	if err := c.sendModel(realtime.Bare{Type: realtime.EventResponseCreate}); err != nil {
		c.log.Warn("model write failed", "err", err)
		c.end(ReasonModelError, telephony.ApologyMessage)
	}
}

/* ===================== WRITES ===================== */

func (c *call) sendModel(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeText(c.model, b)
}

func (c *call) sendTelephony(b []byte) error {
	if err := writeText(c.tel, b); err != nil {
		c.log.Warn("telephony write failed", "err", err)
		c.end(ReasonTelephonyWrite, "")
		return err
	}
	return nil
}

/* ===================== TEARDOWN ===================== */

func (c *call) teardown() {
	c.transition(StateClosing)
	if c.reason == "" {
		c.reason = ReasonInternal
	}
	c.log.Info("call ending", "reason", c.reason, "reached_active", c.sess.ReachedActive())

	// Detached from the call context, which may already be canceled.
	bg := context.WithoutCancel(c.ctx)

	if c.hangupMsg != "" && c.sess.CallID != "" && c.b.deps.Telephony != nil {
		hctx, cancel := context.WithTimeout(bg, c.b.settings.HangupTimeout)
		if err := c.b.deps.Telephony.HangupWithMessage(hctx, c.sess.CallID, c.hangupMsg); err != nil {
			c.log.Warn("hangup with message failed", "err", err)
		}
		cancel()
	}

	c.cancel()
	_ = c.tel.Close()
	if c.model != nil {
		_ = c.model.Close()
	}

	if c.slotHeld {
		if err := c.b.deps.Slots.Release(bg, c.sess.Tenant.TenantID); err != nil {
			c.log.Warn("call slot release failed", "err", err)
		}
	}

	if c.began {
		c.b.deps.Recorder.Finalize(bg, calls.FinalizeInput{
			CallID:        c.sess.CallID,
			TenantID:      c.sess.Tenant.TenantID,
			BusinessName:  c.sess.Tenant.BusinessName,
			StartedAt:     c.sess.StartedAt,
			EndedAt:       c.b.settings.Clock().UTC(),
			Transcript:    c.sess.Transcript(),
			ReachedActive: c.sess.ReachedActive(),
			Reason:        c.reason,
		})
	}
	c.transition(StateTerminated)
}
