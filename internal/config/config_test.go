package config

import (
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:      AppConfig{Env: "local", Port: 8080, PublicBaseURL: "https://bridge.example.com"},
		DB:       DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voice"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379},
		Auth:     AuthConfig{JWTSecret: "secret"},
		Twilio:   TwilioConfig{AccountSID: "AC123", AuthToken: "tok"},
		Realtime: RealtimeConfig{APIKey: "sk-test"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLModeAndSignatures(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE and signature validation")
	}

	c = validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.DB.SSLMode = "require"
	c.Twilio.ValidateSignatures = true
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Realtime.HandshakeTimeout != 5*time.Second {
		t.Fatalf("expected 5s handshake default, got %s", c.Realtime.HandshakeTimeout)
	}
	if c.Functions.DefaultTimeout != 10*time.Second {
		t.Fatalf("expected 10s function timeout default, got %s", c.Functions.DefaultTimeout)
	}
	if c.Summary.Provider != "none" {
		t.Fatalf("expected summary provider none, got %q", c.Summary.Provider)
	}
	if c.Twilio.APIBaseURL != "https://api.twilio.com" {
		t.Fatalf("unexpected twilio api base %q", c.Twilio.APIBaseURL)
	}
}

func TestValidate_SummaryProviderNeedsKey(t *testing.T) {
	c := validLocal()
	c.Summary.Provider = "openai"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for openai summary without key")
	}
	c = validLocal()
	c.Summary.Provider = "bogus"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown summary provider")
	}
}

func TestMediaStreamURL(t *testing.T) {
	c := validLocal()
	if got := c.MediaStreamURL(); got != "wss://bridge.example.com/media-stream" {
		t.Fatalf("unexpected media stream url %q", got)
	}
	c.App.PublicBaseURL = "http://localhost:8080"
	if got := c.MediaStreamURL(); got != "ws://localhost:8080/media-stream" {
		t.Fatalf("unexpected media stream url %q", got)
	}
}
