package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tutor_gateway/internal/config"
	"tutor_gateway/internal/httpapi"
	"tutor_gateway/internal/logging"
	"tutor_gateway/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Failed to load config: %v", err)
	}

	// Process-wide logging picks up LOG_LEVEL and LOCAL on init
	utils.SetDefaultLogLevel(utils.ParseLogLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, deps, err := httpapi.NewRouter(ctx, cfg)
	if err != nil {
		logging.Fatalf("Failed to build router: %v", err)
	}

	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No write timeout: chat streams last as long as the provider keeps sending
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logging.Infof("Tutor gateway listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	stop()
	logging.Infof("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Errorf("Server forced to shutdown: %v", err)
	}

	// Flush chat logs and pending usage records, stop the registry reloader
	if err := deps.Shutdown(shutdownCtx); err != nil {
		logging.Errorf("Shutdown finished with errors: %v", err)
		os.Exit(1)
	}

	logging.Infof("Server exited")
}
