package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"voice-bridge/internal/tenants"
)

// CustomTools turns a tenant's configured tools into dispatchable tools that
// POST to the tenant webhook. Structural validation happens in Registry.With.
func CustomTools(defs []tenants.CustomTool, client *http.Client) []Tool {
	if client == nil {
		client = http.DefaultClient
	}
	out := make([]Tool, 0, len(defs))
	for _, d := range defs {
		params := d.Parameters
		if len(bytes.TrimSpace(params)) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		t := Tool{
			Name:           d.Name,
			Description:    d.Description,
			Parameters:     params,
			Timeout:        d.Timeout(),
			FailureMessage: fmt.Sprintf("Unable to complete %s right now.", d.Name),
		}
		if u, err := url.Parse(d.WebhookURL); err == nil && (u.Scheme == "https" || u.Scheme == "http") && u.Host != "" {
			t.Handler = webhookHandler(client, d.Name, u.String())
		}
		out = append(out, t)
	}
	return out
}

type webhookRequest struct {
	TenantID  string          `json:"tenant_id"`
	CallID    string          `json:"call_id"`
	Caller    string          `json:"caller,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func webhookHandler(client *http.Client, name, endpoint string) Handler {
	return func(ctx context.Context, call CallContext, args json.RawMessage) (string, error) {
		body, err := json.Marshal(webhookRequest{
			TenantID:  call.TenantID,
			CallID:    call.CallID,
			Caller:    call.Caller,
			Name:      name,
			Arguments: args,
		})
		if err != nil {
			return "", err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "voice-bridge")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("functions: %s webhook: %w", name, err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, MaxOutputBytes+1))
		if err != nil {
			return "", fmt.Errorf("functions: %s webhook read: %w", name, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", fmt.Errorf("functions: %s webhook status %d", name, resp.StatusCode)
		}
		out := strings.TrimSpace(string(b))
		if out == "" {
			out = `{"ok":true}`
		}
		return out, nil
	}
}
