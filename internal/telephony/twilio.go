package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioProvider calls the Twilio REST API.
type TwilioProvider struct {
	accountSID string
	authToken  string
	baseURL    string
	client     *http.Client
}

func NewTwilioProvider(accountSID, authToken, baseURL string, client *http.Client) *TwilioProvider {
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TwilioProvider{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     client,
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

// HealthCheck fetches the account resource.
func (p *TwilioProvider) HealthCheck(ctx context.Context) error {
	_, err := p.do(ctx, http.MethodGet, p.accountPath(".json"), nil)
	return err
}

func (p *TwilioProvider) CreateCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error) {
	if req.To == "" || req.From == "" || req.TwiML == "" {
		return OutboundCallResult{}, errors.New("telephony: to, from and twiml are required")
	}
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Twiml", req.TwiML)
	if req.StatusCallback != "" {
		form.Set("StatusCallback", req.StatusCallback)
	}
	body, err := p.do(ctx, http.MethodPost, p.accountPath("/Calls.json"), form)
	if err != nil {
		return OutboundCallResult{}, err
	}
	var out struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return OutboundCallResult{}, fmt.Errorf("telephony: decode call: %w", err)
	}
	return OutboundCallResult{CallSID: out.SID, Status: out.Status}, nil
}

func (p *TwilioProvider) HangupWithMessage(ctx context.Context, callSID, message string) error {
	if callSID == "" {
		return errors.New("telephony: call sid is required")
	}
	twiml, err := SayHangupTwiML(message)
	if err != nil {
		return err
	}
	form := url.Values{}
	form.Set("Twiml", twiml)
	_, err = p.do(ctx, http.MethodPost, p.accountPath("/Calls/"+url.PathEscape(callSID)+".json"), form)
	return err
}

func (p *TwilioProvider) accountPath(suffix string) string {
	return p.baseURL + "/2010-04-01/Accounts/" + url.PathEscape(p.accountSID) + suffix
}

// APIError is Twilio's JSON error body.
type APIError struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telephony: twilio %d (code %d): %s", e.Status, e.Code, e.Message)
}

func (p *TwilioProvider) do(ctx context.Context, method, endpoint string, form url.Values) ([]byte, error) {
	if p.accountSID == "" || p.authToken == "" {
		return nil, errors.New("telephony: twilio credentials not configured")
	}
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telephony: twilio request: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("telephony: twilio read: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(b, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, apiErr
	}
	return b, nil
}
