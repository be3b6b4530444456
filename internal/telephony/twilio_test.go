package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTwilioProvider_CreateCall(t *testing.T) {
	var gotPath, gotUser, gotTo, gotTwiml string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		_ = r.ParseForm()
		gotTo = r.PostFormValue("To")
		gotTwiml = r.PostFormValue("Twiml")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA999","status":"queued"}`))
	}))
	defer srv.Close()

	p := NewTwilioProvider("AC1", "tok", srv.URL, srv.Client())
	res, err := p.CreateCall(context.Background(), OutboundCallRequest{To: "+15550000002", From: "+15550000001", TwiML: "<Response/>"})
	if err != nil {
		t.Fatalf("create call: %v", err)
	}
	if res.CallSID != "CA999" || res.Status != "queued" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotPath != "/2010-04-01/Accounts/AC1/Calls.json" || gotUser != "AC1" || gotTo != "+15550000002" || gotTwiml != "<Response/>" {
		t.Fatalf("unexpected request path=%q user=%q to=%q twiml=%q", gotPath, gotUser, gotTo, gotTwiml)
	}
}

func TestTwilioProvider_HangupWithMessage(t *testing.T) {
	var gotPath, gotTwiml string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseForm()
		gotTwiml = r.PostFormValue("Twiml")
		_, _ = w.Write([]byte(`{"sid":"CA1","status":"in-progress"}`))
	}))
	defer srv.Close()

	p := NewTwilioProvider("AC1", "tok", srv.URL, srv.Client())
	if err := p.HangupWithMessage(context.Background(), "CA1", "Sorry, please call back."); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC1/Calls/CA1.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotTwiml, "<Say>Sorry, please call back.</Say><Hangup>") {
		t.Fatalf("unexpected twiml %q", gotTwiml)
	}
}

func TestTwilioProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":20404,"message":"The requested resource was not found","status":404}`))
	}))
	defer srv.Close()

	p := NewTwilioProvider("AC1", "tok", srv.URL, srv.Client())
	err := p.HangupWithMessage(context.Background(), "CAgone", "bye")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 20404 {
		t.Fatalf("expected APIError 20404, got %v", err)
	}
}

func TestTwilioProvider_RequiresCredentials(t *testing.T) {
	p := NewTwilioProvider("", "", "", nil)
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Fatalf("expected error without credentials")
	}
	var _ Provider = p
}
