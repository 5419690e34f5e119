package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/formroute/formroute/internal/config"
	"github.com/formroute/formroute/internal/db"
	"github.com/formroute/formroute/internal/forms"
	"github.com/formroute/formroute/internal/notify"
	"github.com/formroute/formroute/internal/pipeline"
	"github.com/formroute/formroute/internal/ratelimit"
	"github.com/formroute/formroute/internal/server"
	"github.com/formroute/formroute/internal/server/routes"
	"github.com/formroute/formroute/internal/spam"
	"github.com/formroute/formroute/internal/storage"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	limiter := ratelimit.New(cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window,
		ratelimit.WithRetention(cfg.RateLimit.Retention),
		ratelimit.WithSweepEvery(cfg.RateLimit.SweepEvery))

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	limiter.StartJanitor(janitorCtx)

	repo := forms.NewSQLiteRepository(database)

	var notifier notify.Notifier
	if cfg.SMTP.Enabled() {
		notifier = notify.NewEmailNotifier(cfg.SMTP)
	} else {
		slog.Warn("SMTP_HOST not set, submission notifications disabled")
	}

	p := pipeline.New(repo, limiter,
		spam.NewGuard(cfg.Timeouts.CaptchaVerify),
		storage.NewRegistry(database, cfg.Timeouts.Storage),
		notifier, cfg.Timeouts, log)

	srv := server.New(log)
	srv.RegisterRouter(routes.NewSubmitRoutes(p))
	srv.RegisterRouter(routes.NewFormRoutes(repo, cfg.Server.PublicURL))
	srv.RegisterRouter(routes.NewHealthRoutes(database))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	slog.Info("Starting server", "port", cfg.Server.Port, "env", cfg.Environment)
	slog.Error("Closing server", "error", srv.Start(addr))
}
