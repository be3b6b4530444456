package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voice-bridge/internal/auth"
	"voice-bridge/internal/calls"
	"voice-bridge/internal/telephony"
	"voice-bridge/internal/tenants"
	"voice-bridge/pkg/logger"
)

// Handlers groups the REST handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls     calls.Repository
	Tenants   TenantLookup
	Telephony telephony.Provider
	// Tokens is optional; without it outbound streams carry only the tenant id.
	Tokens telephony.StreamTokenIssuer

	StreamURL  string
	FromNumber string
	Now        func() time.Time
}

// TenantLookup reads a tenant by id. *tenants.Resolver implements it.
type TenantLookup interface {
	ByID(ctx context.Context, tenantID string) (tenants.Config, error)
}

func (h Handlers) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func (h Handlers) lookupTenant(c *gin.Context, tenantID string) (tenants.Config, bool) {
	cfg, err := h.Tenants.ByID(c.Request.Context(), tenantID)
	if errors.Is(err, tenants.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return tenants.Config{}, false
	}
	if err != nil {
		logger.FromGin(c).Error("tenant lookup failed", "tenant_id", tenantID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tenant lookup failed"})
		return tenants.Config{}, false
	}
	return cfg, true
}

func tenantFromContext(c *gin.Context) (string, bool) {
	tenantID, err := auth.TenantID(c.Request.Context())
	if err != nil || tenantID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return "", false
	}
	return tenantID, true
}

// --- Calls ---

type outboundCallRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
}

type outboundCallResponse struct {
	CallSID string `json:"call_sid"`
	Status  string `json:"status"`
	To      string `json:"to"`
	From    string `json:"from"`
}

// CreateOutboundCall places a call that is answered by the assistant of the
// caller's tenant.
func (h Handlers) CreateOutboundCall(c *gin.Context) {
	if h.Telephony == nil || h.Tenants == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "telephony not configured"})
		return
	}
	tenantID, ok := tenantFromContext(c)
	if !ok {
		return
	}
	log := logger.FromGin(c).With("tenant_id", tenantID)
	if id, ok := auth.IdentityFrom(c.Request.Context()); ok {
		log = log.With("user_id", id.UserID)
	}

	var req outboundCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	to := tenants.NormalizePhone(req.To)
	if to == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be a phone number"})
		return
	}

	cfg, ok := h.lookupTenant(c, tenantID)
	if !ok {
		return
	}
	from := firstNonEmpty(tenants.NormalizePhone(req.From), cfg.PhoneNumber, h.FromNumber)
	if from == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from number required"})
		return
	}

	// The platform call sid is unknown until the call exists, so the token
	// binds to a reference carried in the same TwiML. Stream parameters
	// always name the tenant line "to" and the other party "from".
	ref := "out-" + uuid.NewString()
	params := map[string]string{
		telephony.ParamTo:        from,
		telephony.ParamFrom:      to,
		telephony.ParamDirection: string(calls.DirectionOutbound),
		telephony.ParamCallSID:   ref,
		telephony.ParamTenantID:  tenantID,
	}
	if h.Tokens != nil {
		token, err := h.Tokens.IssueStreamToken(h.now(), auth.StreamGrant{
			CallSID:   ref,
			TenantID:  tenantID,
			To:        to,
			Direction: string(calls.DirectionOutbound),
		})
		if err != nil {
			log.Error("stream token issue failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
			return
		}
		params[telephony.ParamToken] = token
	}
	twiml, err := telephony.StreamTwiML(h.StreamURL, params)
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}

	res, err := h.Telephony.CreateCall(c.Request.Context(), telephony.OutboundCallRequest{To: to, From: from, TwiML: twiml})
	if err != nil {
		log.Error("outbound call failed", "err", err, "to", to)
		var apiErr *telephony.APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apiErr.Message})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "telephony provider failed"})
		return
	}
	log.Info("outbound call placed", "call_sid", res.CallSID, "to", to)
	c.JSON(http.StatusAccepted, outboundCallResponse{CallSID: res.CallSID, Status: res.Status, To: to, From: from})
}

// GetCall returns a call session of the caller's tenant.
func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	tenantID, ok := tenantFromContext(c)
	if !ok {
		return
	}
	callID := strings.TrimSpace(c.Param("call_id"))
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	s, err := h.Calls.Get(c.Request.Context(), tenantID, callID)
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("call lookup failed", "err", err, "call_id", callID)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	c.JSON(http.StatusOK, s)
}

// --- Tenant ---

type tenantView struct {
	TenantID     string    `json:"tenant_id"`
	BusinessName string    `json:"business_name"`
	PhoneNumber  string    `json:"phone_number"`
	AIName       string    `json:"ai_name,omitempty"`
	Greeting     string    `json:"greeting"`
	Voice        string    `json:"voice,omitempty"`
	Model        string    `json:"model,omitempty"`
	Timezone     string    `json:"timezone,omitempty"`
	Instructions string    `json:"instructions"`
	CustomTools  []string  `json:"custom_tools"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GetTenant shows the caller's tenant the way the assistant will use it on
// the next call. Empty voice and model mean the bridge defaults apply.
func (h Handlers) GetTenant(c *gin.Context) {
	if h.Tenants == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "tenants not configured"})
		return
	}
	tenantID, ok := tenantFromContext(c)
	if !ok {
		return
	}
	cfg, ok := h.lookupTenant(c, tenantID)
	if !ok {
		return
	}
	tools := make([]string, 0, len(cfg.CustomTools))
	for _, t := range cfg.CustomTools {
		tools = append(tools, t.Name)
	}
	c.JSON(http.StatusOK, tenantView{
		TenantID:     cfg.TenantID,
		BusinessName: cfg.BusinessName,
		PhoneNumber:  cfg.PhoneNumber,
		AIName:       cfg.AIName,
		Greeting:     tenants.Greeting(cfg),
		Voice:        cfg.VoiceID,
		Model:        cfg.Model,
		Timezone:     cfg.Timezone,
		Instructions: tenants.BuildInstructions(cfg, ""),
		CustomTools:  tools,
		UpdatedAt:    cfg.UpdatedAt,
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
