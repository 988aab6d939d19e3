package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"topup-api/internal/app"
	"topup-api/internal/config"
	"topup-api/pkg/logging"
)

func main() {
	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to initialize config:", err)
	}

	// Initialize logging
	logging.InitLogging(cfg.LogLevel)

	if missing := cfg.MissingForIntake(); len(missing) > 0 {
		logging.Warnf("Payment submissions will fail until configured: %v", missing)
	}
	if missing := cfg.MissingForReconciliation(); len(missing) > 0 {
		logging.Warnf("Operator actions will fail until configured: %v", missing)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatal("Failed to initialize application:", err)
	}
	defer application.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.Infof("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logging.Infof("Received signal: %v", sig)
	case err := <-serverErr:
		logging.Errorf("Server error: %v", err)
	}

	logging.Infof("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Errorf("Error during server shutdown: %v", err)
	}

	logging.Infof("Server stopped")
}
