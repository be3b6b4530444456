package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// Health reports liveness, plus readiness of the named checks.
type Health struct {
	Checks  map[string]Check
	Timeout time.Duration
	// Active reports live calls; optional.
	Active func() int
}

func (h Health) Handle(c *gin.Context) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	body := gin.H{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if h.Active != nil {
		body["active_calls"] = h.Active()
	}
	c.JSON(status, body)
}
