package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bchapman/wednesday/internal/config"
	"github.com/bchapman/wednesday/internal/database"
	apihttp "github.com/bchapman/wednesday/internal/http"
	"github.com/bchapman/wednesday/internal/komga"
	"github.com/bchapman/wednesday/internal/mylar"
	"github.com/bchapman/wednesday/internal/notifications"
	"github.com/bchapman/wednesday/internal/pulllist"
	"github.com/bchapman/wednesday/internal/repository"
	"github.com/bchapman/wednesday/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	db, err := database.Open(cfg.SQLitePath)
	if err != nil {
		slog.Error("failed to open sqlite", "path", cfg.SQLitePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.ApplyMigrations(db, cfg.MigrationsPath); err != nil {
		slog.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	komgaClient := komga.NewClient(cfg.Komga)
	mylarClient := mylar.NewClient(cfg.Mylar)

	var mailer notifications.Mailer = notifications.NoopMailer{}
	if cfg.SMTP.Configured() {
		smtpMailer, err := notifications.NewSMTPMailer(cfg.SMTP, cfg.NotificationEmail)
		if err != nil {
			slog.Error("failed to set up smtp", "error", err)
			os.Exit(1)
		}
		mailer = smtpMailer
	} else {
		slog.Warn("smtp not configured, emails are disabled")
	}

	generator := pulllist.NewGenerator(
		repository.NewSeriesRepository(db),
		repository.NewRunRepository(db),
		repository.NewNotificationRepository(db),
		komgaClient,
		mylarClient,
		mailer,
		logger,
		cfg.Schedule.Location(),
	)

	weekly, err := scheduler.New(generator, cfg.Schedule, logger)
	if err != nil {
		slog.Error("failed to set up scheduler", "error", err)
		os.Exit(1)
	}

	app := apihttp.NewServer(cfg, db, apihttp.Dependencies{
		Komga:     komgaClient,
		Mylar:     mylarClient,
		Generator: generator,
		Scheduler: weekly,
		Mailer:    mailer,
		Logger:    logger,
	})

	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	if err := weekly.Start(schedulerCtx); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		schedulerCancel()
		os.Exit(1)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server stopped", "error", err)
		}
	}()

	slog.Info("server started", "port", cfg.Port, "env", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("shutting down server")
	schedulerCancel()
	weekly.StopWait(2 * time.Second)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
