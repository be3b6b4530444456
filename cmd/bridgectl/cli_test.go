package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-bridge/internal/auth"
	"voice-bridge/internal/config"
	"voice-bridge/internal/tenants"
)

func testApp(configs ...tenants.Config) *app {
	return &app{
		v:   viper.New(),
		now: time.Now,
		openDB: func(ctx context.Context, dsn string) (*sql.DB, error) {
			return nil, errors.New("no database in tests")
		},
		tenantStore: func(ctx context.Context) (tenants.Store, func(), error) {
			return tenants.NewMemoryStore(configs...), func() {}, nil
		},
	}
}

func executeCLI(t *testing.T, a *app, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd(a)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func alphaTenant() tenants.Config {
	return tenants.Config{
		TenantID:       "alpha",
		BusinessName:   "Alpha Dental",
		PhoneNumber:    "+15550000001",
		WelcomeMessage: "Thanks for calling Alpha Dental!",
		VoiceID:        "shimmer",
		Timezone:       "America/New_York",
		CustomTools:    []tenants.CustomTool{{Name: "lookupOrder"}},
	}
}

func TestTenantResolveByNumber(t *testing.T) {
	stdout, _, err := executeCLI(t, testApp(alphaTenant()), "tenant", "resolve", "+1 555 000 0001")
	require.NoError(t, err)
	assert.Contains(t, stdout, "tenant: alpha (Alpha Dental)")
	assert.Contains(t, stdout, "fallback: false")
	assert.Contains(t, stdout, "voice: shimmer")
	assert.Contains(t, stdout, "model: (default)")
	assert.Contains(t, stdout, "custom tools: 1")
}

func TestTenantResolveFallbackJSON(t *testing.T) {
	stdout, _, err := executeCLI(t, testApp(alphaTenant()), "tenant", "resolve", "+19999999999", "--json", "--instructions")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))

	var out resolveOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.True(t, out.Fallback)
	assert.Equal(t, tenants.FallbackTenantID, out.TenantID)
	assert.Equal(t, tenants.DefaultConfig().WelcomeMessage, out.Greeting)
	assert.NotEmpty(t, out.Instructions)
}

func TestTenantResolveExplicitTenant(t *testing.T) {
	beta := tenants.Config{TenantID: "beta", BusinessName: "Beta Salon"}
	stdout, _, err := executeCLI(t, testApp(alphaTenant(), beta), "tenant", "resolve", "+15550000001", "--tenant", "beta")
	require.NoError(t, err)
	assert.Contains(t, stdout, "tenant: beta (Beta Salon)")
}

func TestTenantResolveRequiresNumber(t *testing.T) {
	_, _, err := executeCLI(t, testApp(), "tenant", "resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestMigrateNeedsDatabaseConfig(t *testing.T) {
	for _, k := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_NAME"} {
		t.Setenv(k, "")
	}
	_, _, err := executeCLI(t, testApp(), "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database config")

	_, _, err = executeCLI(t, testApp(), "migrate", "status", "--dsn", "postgres://x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database in tests")
}

func TestTokenIssue(t *testing.T) {
	stdout, _, err := executeCLI(t, testApp(),
		"token", "issue",
		"--jwt-secret", "s3cret",
		"--user", "ops",
		"--tenant", "alpha",
		"--role", "owner",
	)
	require.NoError(t, err)

	var access string
	for _, line := range strings.Split(stdout, "\n") {
		if v, ok := strings.CutPrefix(line, "access_token: "); ok {
			access = v
		}
	}
	require.NotEmpty(t, access)

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "s3cret"})
	require.NoError(t, err)
	claims, err := m.Verify(access, auth.TokenTypeAccess, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "alpha", claims.TenantID)
	assert.Equal(t, "owner", claims.Role)
}

func TestTokenIssueRequiresSecret(t *testing.T) {
	t.Setenv("BRIDGECTL_JWT_SECRET", "")
	_, _, err := executeCLI(t, testApp(), "token", "issue", "--user", "ops", "--tenant", "alpha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret required")
}
