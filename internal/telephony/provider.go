package telephony

import "context"

// Provider is the call-control surface the bridge needs from a telephony
// platform. Media flows over the media-stream WebSocket, not through here.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// CreateCall places an outbound call whose leg is answered with twiml.
	CreateCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error)

	// HangupWithMessage replaces the live call's instructions with a spoken
	// message followed by a hangup.
	HangupWithMessage(ctx context.Context, callSID, message string) error
}

type OutboundCallRequest struct {
	To    string `json:"to"`
	From  string `json:"from"`
	TwiML string `json:"-"`
	// StatusCallback is optional.
	StatusCallback string `json:"status_callback,omitempty"`
}

type OutboundCallResult struct {
	CallSID string `json:"call_sid"`
	Status  string `json:"status"`
}
