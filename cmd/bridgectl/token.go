package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"voice-bridge/internal/auth"
	"voice-bridge/internal/config"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint API tokens for operators and integrations",
	}

	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue an access/refresh token pair for a tenant user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.AuthConfig{
				JWTSecret:       a.v.GetString("jwt-secret"),
				JWTIssuer:       a.v.GetString("jwt-issuer"),
				JWTAudience:     a.v.GetString("jwt-audience"),
				AccessTokenTTL:  a.v.GetDuration("access-ttl"),
				RefreshTokenTTL: a.v.GetDuration("refresh-ttl"),
			}
			if cfg.JWTSecret == "" {
				return errors.New("jwt secret required (--jwt-secret or BRIDGECTL_JWT_SECRET)")
			}
			m, err := auth.NewManager(cfg)
			if err != nil {
				return err
			}
			user, tenant, role := a.v.GetString("user"), a.v.GetString("tenant"), a.v.GetString("role")
			if user == "" || tenant == "" {
				return errors.New("--user and --tenant are required")
			}
			pair, err := m.IssuePair(a.now(), user, tenant, role)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "access_token: %s\nrefresh_token: %s\n", pair.AccessToken, pair.RefreshToken)
			return err
		},
	}
	f := issue.Flags()
	f.String("jwt-secret", "", "signing secret (JWT_SECRET of the API)")
	f.String("jwt-issuer", "", "issuer claim")
	f.String("jwt-audience", "", "audience claim")
	f.Duration("access-ttl", 15*time.Minute, "access token lifetime")
	f.Duration("refresh-ttl", 30*24*time.Hour, "refresh token lifetime")
	f.String("user", "", "user id")
	f.String("tenant", "", "tenant id")
	f.String("role", "member", "role claim")
	for _, name := range []string{"jwt-secret", "jwt-issuer", "jwt-audience", "access-ttl", "refresh-ttl", "user", "tenant", "role"} {
		_ = a.v.BindPFlag(name, f.Lookup(name))
	}

	cmd.AddCommand(issue)
	return cmd
}
