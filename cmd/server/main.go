package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webAdapter "inventory-engine/internal/adapters/web"
	"inventory-engine/internal/app"
	"inventory-engine/internal/config"
	"inventory-engine/internal/db"
	"inventory-engine/internal/logger"
	"inventory-engine/internal/notify"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	var sender notify.EmailSender
	if cfg.Notify.ResendAPIKey != "" {
		sender = notify.NewResendSender(cfg.Notify.ResendBaseURL, cfg.Notify.ResendAPIKey)
	} else {
		log.Warn("RESEND_API_KEY is not set, notifications are only logged")
		sender = notify.NewLogSender(logger.Named(log, "mail"))
	}
	dispatcher := notify.NewDispatcher(sender, cfg.Notify.QueueSize, cfg.Notify.EmailFrom, cfg.Notify.EmailTo,
		logger.Named(log, "notify"))

	svc := app.NewAppService(app.NewServices(pool, logger.Named(log, "core")), dispatcher, logger.Named(log, "app"))
	handler := webAdapter.NewHandler(svc, cfg.Server.AllowedOrigins, cfg.Server.JWTSecret, logger.Named(log, "http"))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	// Requests are drained, so no further events can be enqueued.
	dispatcher.Close()
	log.Info("notifications drained", zap.Int64("dropped", dispatcher.Dropped()))
}
