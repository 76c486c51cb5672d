package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/internal/auth/oauth"
	"github.com/tradepost/tradepost/internal/config"
	"github.com/tradepost/tradepost/internal/gate"
	"github.com/tradepost/tradepost/internal/httpapi"
	"github.com/tradepost/tradepost/internal/mail"
	"github.com/tradepost/tradepost/internal/metrics"
	"github.com/tradepost/tradepost/internal/storage/migrations"
	"github.com/tradepost/tradepost/internal/storage/postgres"
	"github.com/tradepost/tradepost/pkg/logger"
	"github.com/tradepost/tradepost/pkg/pg"
	"github.com/tradepost/tradepost/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(
		logger.WithLevel(parseLevel(cfg.LogLevel)),
		logger.WithFormat(logger.Format(cfg.LogFormat)),
		logger.WithAttr(slog.String("app", "tradepost-api")),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, migrations.FS, ".", log); err != nil {
		return err
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	storage := postgres.New(pool)

	svc := auth.NewService(storage, auth.NewBcryptHasher(0),
		auth.WithLogger(log),
		auth.WithSessionTTL(cfg.Session.TTL),
		auth.WithResetTokenTTL(cfg.Session.ResetTTL),
	)

	m := metrics.New()

	sessionGate := gate.New(storage.Sessions(), cfg.Session.CookieName,
		gate.WithLogger(log),
		gate.WithObserver(m.GateAccept, m.GateReject),
	)

	sender := buildSender(cfg.Mail, log)
	resetMailer := mail.NewResetMailer(sender, cfg.FrontendURL)

	providers := oauth.NewRegistry(
		oauth.NewGoogleProvider(cfg.Google),
		oauth.NewGitHubProvider(cfg.GitHub),
	)
	states := oauth.NewStateStore(redisClient)

	server := httpapi.NewServer(svc, sessionGate, providers, states, resetMailer,
		httpapi.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.IsProduction(),
			MaxAge: cfg.Session.TTL,
		},
		cfg.FrontendURL,
		httpapi.WithLogger(log),
		httpapi.WithMetrics(m),
		httpapi.WithHealthCheck("postgres", pool.Ping),
		httpapi.WithHealthCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildSender picks Postmark when configured and falls back to the logging
// sender for local development.
func buildSender(cfg mail.Config, log *slog.Logger) mail.Sender {
	sender, err := mail.NewPostmarkSender(cfg)
	if err != nil {
		log.Warn("postmark not configured, using dev mail sender")
		return mail.NewDevSender(log)
	}
	return sender
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
