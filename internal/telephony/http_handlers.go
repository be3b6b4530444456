package telephony

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voice-bridge/internal/auth"
	"voice-bridge/pkg/logger"
)

// StreamTokenIssuer mints media-stream tokens. *auth.Manager implements it.
type StreamTokenIssuer interface {
	IssueStreamToken(now time.Time, g auth.StreamGrant) (string, error)
}

// VoiceWebhookHandler answers Twilio's voice webhook by connecting the call
// to the media-stream endpoint. Tenant resolution happens on the stream, not
// here.
type VoiceWebhookHandler struct {
	StreamURL string
	// Tokens is optional; without it no token parameter is sent.
	Tokens StreamTokenIssuer
	Now    func() time.Time
}

func (h VoiceWebhookHandler) HandleInboundCall(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Now == nil {
		h.Now = time.Now
	}

	form, err := ParseTwilioInboundCall(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	if form.CallSid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "CallSid required"})
		return
	}
	log = logger.ForCall(log, form.CallSid, "", "")

	var token string
	if h.Tokens != nil {
		token, err = h.Tokens.IssueStreamToken(h.Now(), auth.StreamGrant{
			CallSID:   form.CallSid,
			To:        form.To,
			Direction: form.Direction,
		})
		if err != nil {
			log.Error("stream token issue failed", "err", err)
			writeTwiML(c, apologyOrEmpty())
			return
		}
	}

	twiml, err := StreamTwiML(h.StreamURL, form.StreamParams(token))
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	log.Info("inbound call connected to media stream", "to", form.To, "direction", form.Direction)
	writeTwiML(c, twiml)
}

// ApologyMessage is spoken when the assistant cannot take the call.
const ApologyMessage = "Sorry, we are unable to take your call right now. Please try again later. Goodbye."

// BusyMessage is spoken when a tenant is at its concurrent call limit.
const BusyMessage = "Sorry, all of our lines are busy right now. Please try again in a few minutes. Goodbye."

func apologyOrEmpty() string {
	s, err := SayHangupTwiML(ApologyMessage)
	if err != nil {
		return "<Response><Hangup/></Response>"
	}
	return s
}

func writeTwiML(c *gin.Context, twiml string) {
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, twiml)
}
