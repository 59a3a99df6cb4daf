package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreschagin/monitor-dw/internal/app"
	"github.com/dreschagin/monitor-dw/internal/cycle"
	"github.com/dreschagin/monitor-dw/pkg/config"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

// monitor-worker гоняет цикл мониторинга без дашборда и WebSocket
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := app.Build(ctx, cfg, log, app.Options{Headless: true, Service: "monitor-worker"})
	if err != nil {
		log.Error("Failed to initialize worker", err)
		os.Exit(1)
	}
	log.Info(
		"Starting monitor worker",
		"interval", components.Cycle.Interval.String(),
		"port", components.Cycle.Port,
	)

	// Первый проход выполняется сразу внутри Start
	go components.Runner.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/", cycle.NewHandler(components.Runner).Routes())
	mux.Handle("/metrics", components.Metrics.Handler())

	server := &http.Server{
		Addr:         ":" + components.Cycle.Port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: components.Cycle.Timeout + 5*time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Info("Monitor worker HTTP server started", "port", components.Cycle.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Monitor worker HTTP server failed", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Monitor worker HTTP server shutdown failed", err)
	}
	if err := components.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to release resources", err)
	}

	log.Info("Monitor worker stopped")
}
