package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreschagin/monitor-dw/internal/app"
	"github.com/dreschagin/monitor-dw/internal/infrastructure/notification/slack"

	// Interfaces
	httpInterface "github.com/dreschagin/monitor-dw/internal/interfaces/http"
	"github.com/dreschagin/monitor-dw/internal/interfaces/http/handler"
	"github.com/dreschagin/monitor-dw/internal/interfaces/http/middleware"
	"github.com/dreschagin/monitor-dw/internal/interfaces/view"

	// Shared
	"github.com/dreschagin/monitor-dw/pkg/config"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

func main() {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Error("Failed to load config", err)
		os.Exit(1)
	}

	// 2. Инициализируем logger
	log := logger.New(cfg.LogLevel)
	log.Info("Starting Monitor DW", "port", cfg.Server.Port, "interval", cfg.Alerting.CycleInterval.String())

	authConfig := middleware.AuthConfig{
		Enabled:     cfg.Security.AuthEnabled,
		BearerToken: strings.TrimSpace(cfg.Security.AuthToken),
	}
	if authConfig.Enabled && authConfig.BearerToken == "" {
		log.Error("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true", nil)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 3. Собираем зависимости (хранилища, сборщики, доставка, цикл)
	components, err := app.Build(ctx, cfg, log, app.Options{Service: "monitor-dw"})
	if err != nil {
		log.Error("Failed to initialize application", err)
		os.Exit(1)
	}

	// 4. Dependency Injection - Interfaces Layer (HTTP Handlers)
	var archiveLinker handler.ArchiveLinker
	if components.Archive != nil {
		archiveLinker = components.Archive
	}

	historyUC := components.HistoryUseCase()
	prefix := cfg.Slack.AllowedPrefix
	if prefix == "" {
		prefix = slack.DefaultWebhookPrefix
	}

	handlers := httpInterface.Handlers{
		Dashboard: handler.NewDashboardHandler(components.Hub, view.PageData{
			Title:           "Monitor DW",
			RefreshInterval: cfg.Alerting.CycleInterval,
			KestraEnabled:   components.Workflows != nil,
			HistoryEnabled:  historyUC != nil,
			WebhookPrefix:   prefix,
			RedshiftConsole: cfg.Alerting.WarehouseConsoleURL,
			JiraFilterURL:   cfg.Jira.FilterURL,
			AuthEnabled:     authConfig.Enabled,
			DisplayLocation: cfg.Alerting.Location,
		}, log),
		WebSocket: handler.NewWebSocketHandler(components.Hub, cfg.Security.AllowedOrigins, authConfig, log),
		Status:    handler.NewStatusAPIHandler(components.Runner, components.Monitor, log),
		Alerts:    handler.NewAlertsAPIHandler(components.Dispatcher, components.LedgerUseCase(), archiveLinker, log),
		History:   handler.NewHistoryAPIHandler(historyUC, log),
		Kestra:    handler.NewKestraAPIHandler(components.Workflows, cfg.Kestra.Namespace, log),
		Auth:      handler.NewAuthAPIHandler(authConfig, log),
	}

	probes := httpInterface.Probes{
		Ready:   func() (bool, string) { return components.Runner.Ready(time.Now()) },
		Metrics: components.Metrics.Handler(),
		Observe: components.Metrics.Middleware,
	}

	testLimiter := middleware.NewIPRateLimiter(ctx, cfg.Security.TestSendRatePerMin, cfg.Security.TestSendBurst)
	router := httpInterface.NewRouter(handlers, probes, authConfig, testLimiter, log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 5. Запускаем фоновые процессы и HTTP сервер
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		components.Hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("Monitor cycle started", "interval", cfg.Alerting.CycleInterval.String())
		components.Runner.Start(gctx)
		log.Info("Monitor cycle stopped")
		return nil
	})
	g.Go(func() error {
		log.Info("HTTP server starting", "port", cfg.Server.Port)
		log.Info("Dashboard available at http://localhost:" + cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 6. Ожидаем сигнал для graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown signal received, starting graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", err)
	}

	// Сбрасываем буферы CloudWatch и закрываем соединения
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := components.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to release resources", err)
	}

	log.Info("Server stopped gracefully")
}
