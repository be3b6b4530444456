package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"sort"
	"strings"
)

// Minimal TwiML builder. Only the verbs the bridge answers with.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlReject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlConnect struct {
	XMLName xml.Name    `xml:"Connect"`
	Stream  twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// StreamTwiML connects the call to a bidirectional media stream, passing
// params as custom parameters (sorted by name).
func StreamTwiML(streamURL string, params map[string]string) (string, error) {
	if !strings.HasPrefix(streamURL, "wss://") && !strings.HasPrefix(streamURL, "ws://") {
		return "", errors.New("telephony: stream url must be ws:// or wss://")
	}
	names := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	s := twimlStream{URL: streamURL}
	for _, n := range names {
		s.Parameters = append(s.Parameters, twimlParameter{Name: n, Value: params[n]})
	}
	return render(twimlConnect{Stream: s})
}

// SayHangupTwiML speaks message and hangs up. Used for apologies.
func SayHangupTwiML(message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return render(twimlHangup{})
	}
	return render(twimlSay{Text: message}, twimlHangup{})
}

func RejectTwiML(reason string) (string, error) {
	return render(twimlReject{Reason: reason})
}

func render(verbs ...any) (string, error) {
	r := twimlResponse{Verbs: verbs}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
