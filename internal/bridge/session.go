package bridge

import (
	"fmt"
	"strings"
	"time"

	"voice-bridge/internal/calls"
	"voice-bridge/internal/tenants"
)

type State int

const (
	StateIdle State = iota
	StateStreamStarted
	StateModelConnected
	StateActive
	StateClosing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreamStarted:
		return "stream_started"
	case StateModelConnected:
		return "model_connected"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// allowed lists forward transitions; terminated is reachable from anywhere.
var allowed = map[State][]State{
	StateIdle:           {StateStreamStarted, StateClosing},
	StateStreamStarted:  {StateModelConnected, StateClosing},
	StateModelConnected: {StateActive, StateClosing},
	StateActive:         {StateClosing},
	StateClosing:        {},
}

func canTransition(from, to State) bool {
	if to == StateTerminated {
		return from != StateTerminated
	}
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session is the per-call state owned by the call's event loop. It is never
// shared between goroutines.
type Session struct {
	CallID       string
	StreamID     string
	CallerNumber string
	CalledNumber string
	Direction    calls.Direction
	Tenant       tenants.Config
	StartedAt    time.Time

	state         State
	reachedActive bool

	transcript []string

	// Playback tracking for barge-in. Timestamps are media-stream
	// milliseconds; responseStart is -1 when no response audio is playing.
	markQueue         []string
	markSeq           int
	lastAssistantItem string
	playingResponse   string
	responseStart     int64
	latestMedia       int64

	// Audio still in flight for an interrupted item or response is dropped.
	interruptedItem     string
	interruptedResponse string

	// activeResponse is set between response.created and response.done. A
	// response.create asked for meanwhile is held in responseQueued.
	activeResponse string
	responseQueued bool
}

func newSession() *Session {
	return &Session{state: StateIdle, responseStart: -1}
}

func (s *Session) State() State { return s.state }

// ReachedActive reports whether audio was ever exchanged.
func (s *Session) ReachedActive() bool { return s.reachedActive }

func (s *Session) transition(to State) error {
	if !canTransition(s.state, to) {
		return fmt.Errorf("bridge: invalid transition %s -> %s", s.state, to)
	}
	s.state = to
	if to == StateActive {
		s.reachedActive = true
	}
	return nil
}

func (s *Session) appendTranscript(speaker, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.transcript = append(s.transcript, speaker+": "+text)
}

func (s *Session) Transcript() string { return strings.Join(s.transcript, "\n") }

func (s *Session) nextMark() string {
	s.markSeq++
	name := fmt.Sprintf("a%d", s.markSeq)
	s.markQueue = append(s.markQueue, name)
	return name
}

// ackMark pops the oldest pending mark; Twilio echoes marks in order.
func (s *Session) ackMark(name string) {
	if len(s.markQueue) == 0 {
		return
	}
	if s.markQueue[0] == name || name == "" {
		s.markQueue = s.markQueue[1:]
		return
	}
	for i, m := range s.markQueue {
		if m == name {
			s.markQueue = s.markQueue[i+1:]
			return
		}
	}
}

func (s *Session) resetPlayback() {
	s.markQueue = nil
	s.lastAssistantItem = ""
	s.playingResponse = ""
	s.responseStart = -1
}

// interrupt remembers what was playing so late deltas for it are dropped,
// then resets playback.
func (s *Session) interrupt() {
	if s.lastAssistantItem != "" {
		s.interruptedItem = s.lastAssistantItem
	}
	resp := s.playingResponse
	if resp == "" {
		resp = s.activeResponse
	}
	if resp != "" {
		s.interruptedResponse = resp
	}
	s.resetPlayback()
}

func (s *Session) interrupted(itemID, responseID string) bool {
	return (itemID != "" && itemID == s.interruptedItem) ||
		(responseID != "" && responseID == s.interruptedResponse)
}

func (s *Session) responseCreated(id string) {
	if id == "" {
		id = "unknown"
	}
	s.activeResponse = id
}

// responseDone clears the active response and reports whether a queued
// response.create should go out now.
func (s *Session) responseDone() bool {
	s.activeResponse = ""
	queued := s.responseQueued
	s.responseQueued = false
	return queued
}
