package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"voice-bridge/internal/config"
	"voice-bridge/internal/tenants"
	"voice-bridge/pkg/utils"
)

// app carries the CLI's dependencies so tests can swap storage.
type app struct {
	v   *viper.Viper
	now func() time.Time

	openDB func(ctx context.Context, dsn string) (*sql.DB, error)
	// tenantStore opens the tenant store; the returned func releases it.
	tenantStore func(ctx context.Context) (tenants.Store, func(), error)
}

func defaultApp() *app {
	v := viper.New()
	v.SetEnvPrefix("BRIDGECTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	a := &app{
		v:   v,
		now: time.Now,
		openDB: func(ctx context.Context, dsn string) (*sql.DB, error) {
			return utils.OpenPostgres(ctx, dsn, utils.PostgresPoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
		},
	}
	a.tenantStore = func(ctx context.Context) (tenants.Store, func(), error) {
		db, err := a.connect(ctx)
		if err != nil {
			return nil, nil, err
		}
		return tenants.NewPostgresStore(db), func() { _ = db.Close() }, nil
	}
	return a
}

// dsn prefers --dsn / BRIDGECTL_DSN, then the API's DB_* variables.
func (a *app) dsn() (string, error) {
	if dsn := strings.TrimSpace(a.v.GetString("dsn")); dsn != "" {
		return dsn, nil
	}
	db, err := config.LoadDB()
	if err != nil {
		return "", fmt.Errorf("database config: %w", err)
	}
	return db.DSN(), nil
}

func (a *app) connect(ctx context.Context) (*sql.DB, error) {
	dsn, err := a.dsn()
	if err != nil {
		return nil, err
	}
	return a.openDB(ctx, dsn)
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bridgectl",
		Short:         "Operate the voice bridge: migrations, tenant checks, tokens",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String("dsn", "", "Postgres DSN (defaults to DB_* environment)")
	_ = a.v.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))

	rootCmd.AddCommand(
		newMigrateCmd(a),
		newTenantCmd(a),
		newTokenCmd(a),
	)
	return rootCmd
}
