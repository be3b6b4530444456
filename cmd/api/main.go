package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-bridge/internal/auth"
	"voice-bridge/internal/bridge"
	"voice-bridge/internal/calls"
	"voice-bridge/internal/config"
	"voice-bridge/internal/crm"
	"voice-bridge/internal/events"
	"voice-bridge/internal/functions"
	"voice-bridge/internal/realtime"
	"voice-bridge/internal/store"
	"voice-bridge/internal/summary"
	"voice-bridge/internal/telephony"
	"voice-bridge/internal/tenants"
	"voice-bridge/pkg/logger"
	"voice-bridge/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if v, err := store.Version(rootCtx, db); err != nil {
		log.Warn("schema version unknown; run bridgectl migrate up", "err", err)
	} else {
		log.Info("schema version", "version", v)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	summarizer, err := summary.New(rootCtx, cfg.Summary)
	if err != nil {
		log.Error("summary init failed", "err", err)
		os.Exit(1)
	}

	callRepo := calls.NewPostgresRepo(db)
	recorder := calls.NewRecorder(
		callRepo,
		calls.WithEvents(events.NewService(events.NewRedisStreamSink(rdb, events.DefaultStream))),
		calls.WithSummarizer(summarizer, cfg.Summary.Timeout),
	)
	resolver := tenants.NewResolver(tenants.NewPostgresStore(db))

	registry, err := functions.NewRegistry(functions.Builtins(crm.NewService(crm.NewPostgresRepo(db)))...)
	if err != nil {
		log.Error("function registry invalid", "err", err)
		os.Exit(1)
	}

	twilio := telephony.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.APIBaseURL, &http.Client{Timeout: 10 * time.Second})

	var slots bridge.SlotLimiter
	if cfg.Calls.MaxConcurrentPerTenant > 0 {
		slots = bridge.NewRedisSlots(rdb, cfg.Calls.MaxConcurrentPerTenant, cfg.Calls.SlotTTL)
	}
	tracker := bridge.NewTracker()
	br := bridge.New(bridge.Deps{
		Resolver:   resolver,
		Recorder:   recorder,
		Dispatcher: functions.NewDispatcher(registry, cfg.Functions.DefaultTimeout),
		Model: bridge.RealtimeDialer{Dialer: realtime.Dialer{
			URL:              cfg.Realtime.URL,
			APIKey:           cfg.Realtime.APIKey,
			HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		}},
		Telephony: twilio,
		Slots:     slots,
		Streams:   authManager,
		Tracker:   tracker,
	}, bridge.Settings{
		DefaultModel:     cfg.Realtime.DefaultModel,
		DefaultVoice:     cfg.Realtime.DefaultVoice,
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
	})

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:       cfg,
		auth:      authManager,
		bridge:    br,
		calls:     callRepo,
		tenants:   resolver,
		telephony: twilio,
		checks: map[string]func(context.Context) error{
			"postgres": func(ctx context.Context) error { return utils.HealthCheck(ctx, db, time.Second) },
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "media_stream_url", cfg.MediaStreamURL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated", "active_calls", tracker.Count())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Media streams are hijacked connections; Shutdown does not wait for them.
	if n := tracker.CancelAll(); n > 0 {
		log.Info("canceling live calls", "count", n)
	}
	if !tracker.Wait(shutdownCtx) {
		log.Warn("calls still active at shutdown deadline", "count", tracker.Count())
	}

	done := make(chan struct{})
	go func() {
		recorder.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("call summaries still pending at shutdown deadline")
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
