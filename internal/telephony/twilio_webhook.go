package telephony

import (
	"net/http"
	"strings"

	"voice-bridge/internal/tenants"
)

// TwilioInboundForm captures the voice webhook fields the bridge uses.
// Twilio sends application/x-www-form-urlencoded.
type TwilioInboundForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	Direction  string
	CallStatus string
	CallerName string
}

func ParseTwilioInboundCall(r *http.Request) (TwilioInboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioInboundForm{}, err
	}
	return TwilioInboundForm{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid: r.PostFormValue("AccountSid"),
		From:       callerNumber(r.PostFormValue("From")),
		To:         tenants.NormalizePhone(r.PostFormValue("To")),
		Direction:  r.PostFormValue("Direction"),
		CallStatus: r.PostFormValue("CallStatus"),
		CallerName: r.PostFormValue("CallerName"),
	}, nil
}

// callerNumber keeps withheld callers ("anonymous", "") as sent.
func callerNumber(s string) string {
	s = strings.TrimSpace(s)
	if n := tenants.NormalizePhone(s); n != "" {
		return n
	}
	return s
}

// Stream custom parameter names.
const (
	ParamTo        = "to"
	ParamFrom      = "from"
	ParamDirection = "direction"
	ParamCallSID   = "callSid"
	ParamToken     = "token"
	ParamTenantID  = "tenantId"
)

// StreamParams are the custom parameters sent with <Stream>.
func (f TwilioInboundForm) StreamParams(token string) map[string]string {
	return map[string]string{
		ParamTo:        f.To,
		ParamFrom:      f.From,
		ParamDirection: f.Direction,
		ParamCallSID:   f.CallSid,
		ParamToken:     token,
	}
}
