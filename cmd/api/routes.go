package main

import (
	"context"

	"voice-bridge/internal/auth"
	"voice-bridge/internal/bridge"
	"voice-bridge/internal/calls"
	"voice-bridge/internal/config"
	"voice-bridge/internal/httpapi"
	"voice-bridge/internal/telephony"
	"voice-bridge/internal/tenants"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	cfg       config.Config
	auth      *auth.Manager
	bridge    *bridge.Bridge
	calls     calls.Repository
	tenants   *tenants.Resolver
	telephony telephony.Provider
	checks    map[string]func(context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	health := httpapi.Health{Checks: map[string]httpapi.Check{}, Active: d.bridge.Tracker().Count}
	for name, check := range d.checks {
		health.Checks[name] = check
	}
	r.GET("/healthz", health.Handle)

	// Provider webhooks (public, signed).
	{
		voice := telephony.VoiceWebhookHandler{
			StreamURL: d.cfg.MediaStreamURL(),
			Tokens:    d.auth,
		}
		hooks := r.Group("/webhooks/twilio")
		if d.cfg.Twilio.ValidateSignatures {
			hooks.Use(telephony.RequireTwilioSignature(d.cfg.Twilio.AuthToken, d.cfg.App.PublicBaseURL))
		}
		hooks.POST("/voice", voice.HandleInboundCall)
	}

	// Media stream; access is checked on the start frame.
	r.GET("/media-stream", httpapi.NewMediaStream(d.bridge).Handle)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	{
		h := httpapi.Handlers{
			Calls:      d.calls,
			Tenants:    d.tenants,
			Telephony:  d.telephony,
			Tokens:     d.auth,
			StreamURL:  d.cfg.MediaStreamURL(),
			FromNumber: d.cfg.Twilio.FromNumber,
		}

		v1.GET("/tenant", h.GetTenant)

		callsGroup := v1.Group("/calls")
		{
			callsGroup.POST("/outbound", h.CreateOutboundCall)
			callsGroup.GET("/:call_id", h.GetCall)
		}
	}
}
