package telephony

import (
	"encoding/json"
	"errors"
	"strconv"

	"voice-bridge/pkg/utils"
)

// Media stream event names (Twilio Media Streams).
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventDTMF      = "dtmf"
	EventStop      = "stop"
	EventClear     = "clear"
)

// Frame is one inbound media-stream message. Only the block matching Event is set.
type Frame struct {
	Event          string `json:"event"`
	StreamSID      string `json:"streamSid,omitempty"`
	SequenceNumber string `json:"sequenceNumber,omitempty"`

	Start *StartInfo `json:"start,omitempty"`
	Media *MediaInfo `json:"media,omitempty"`
	Mark  *MarkInfo  `json:"mark,omitempty"`
	DTMF  *DTMFInfo  `json:"dtmf,omitempty"`
	Stop  *StopInfo  `json:"stop,omitempty"`
}

type StartInfo struct {
	AccountSID       string            `json:"accountSid"`
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

type MediaInfo struct {
	Track string `json:"track,omitempty"`
	Chunk string `json:"chunk,omitempty"`
	// Timestamp is milliseconds since the stream started.
	Timestamp Millis `json:"timestamp"`
	Payload   string `json:"payload"`
}

type MarkInfo struct {
	Name string `json:"name"`
}

type DTMFInfo struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

type StopInfo struct {
	AccountSID string `json:"accountSid,omitempty"`
	CallSID    string `json:"callSid,omitempty"`
}

// Millis decodes a millisecond count sent either as a JSON string or number.
type Millis int64

func (m *Millis) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*m = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*m = Millis(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*m = Millis(n)
	return nil
}

// Param returns a custom parameter from the start frame.
func (s *StartInfo) Param(name string) string {
	if s == nil || s.CustomParameters == nil {
		return ""
	}
	return s.CustomParameters[name]
}

// ParseFrame decodes an inbound frame. Callers ignore frames whose Event they
// do not know.
func ParseFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, err
	}
	if f.StreamSID == "" && f.Start != nil {
		f.StreamSID = f.Start.StreamSID
	}
	return f, nil
}

var ErrBadPayload = errors.New("telephony: media payload is not base64")

// Outbound builds frames for one stream. The stream sid is encoded once and
// audio payloads are spliced in without re-encoding.
type Outbound struct {
	streamSID   string
	mediaPrefix []byte
}

func NewOutbound(streamSID string) *Outbound {
	sid, _ := json.Marshal(streamSID)
	prefix := make([]byte, 0, 64)
	prefix = append(prefix, `{"event":"media","streamSid":`...)
	prefix = append(prefix, sid...)
	prefix = append(prefix, `,"media":{"payload":"`...)
	return &Outbound{streamSID: streamSID, mediaPrefix: prefix}
}

func (o *Outbound) StreamSID() string { return o.streamSID }

// Media wraps a base64 µ-law payload.
func (o *Outbound) Media(payload string) ([]byte, error) {
	if !utils.IsStdBase64(payload) {
		return nil, ErrBadPayload
	}
	b := make([]byte, 0, len(o.mediaPrefix)+len(payload)+3)
	b = append(b, o.mediaPrefix...)
	b = append(b, payload...)
	b = append(b, `"}}`...)
	return b, nil
}

func (o *Outbound) Mark(name string) []byte {
	b, _ := json.Marshal(struct {
		Event     string   `json:"event"`
		StreamSID string   `json:"streamSid"`
		Mark      MarkInfo `json:"mark"`
	}{EventMark, o.streamSID, MarkInfo{Name: name}})
	return b
}

// Clear flushes audio Twilio has buffered but not yet played.
func (o *Outbound) Clear() []byte {
	b, _ := json.Marshal(struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
	}{EventClear, o.streamSID})
	return b
}
