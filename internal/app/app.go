// Package app собирает зависимости монитора для cmd/monitor-dw и cmd/monitor-worker.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/application/usecase"
	"github.com/dreschagin/monitor-dw/internal/cycle"
	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/repository"
	"github.com/dreschagin/monitor-dw/internal/domain/service"
	redisCache "github.com/dreschagin/monitor-dw/internal/infrastructure/cache/redis"
	"github.com/dreschagin/monitor-dw/internal/infrastructure/collector"
	natsInfra "github.com/dreschagin/monitor-dw/internal/infrastructure/messaging/nats"
	"github.com/dreschagin/monitor-dw/internal/infrastructure/notification/slack"
	wsInfra "github.com/dreschagin/monitor-dw/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/monitor-dw/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/monitor-dw/internal/infrastructure/observability/metrics"
	dynamodbRepo "github.com/dreschagin/monitor-dw/internal/infrastructure/persistence/dynamodb"
	"github.com/dreschagin/monitor-dw/internal/infrastructure/persistence/postgres"
	s3storage "github.com/dreschagin/monitor-dw/internal/infrastructure/storage/s3"
	"github.com/dreschagin/monitor-dw/internal/infrastructure/workflow/kestra"
	"github.com/dreschagin/monitor-dw/pkg/config"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

// historyRetention срок хранения журнала инцидентов в Postgres
const historyRetention = 90 * 24 * time.Hour

// Options режим сборки
type Options struct {
	// Headless без WebSocket hub'а (monitor-worker)
	Headless bool
	// Service имя сервиса в CloudWatch Logs
	Service string
}

// Components собранный граф зависимостей. Необязательные компоненты равны nil.
type Components struct {
	Config *config.Config
	Logger *logger.Logger

	Metrics    *metrics.Metrics
	Hub        *wsInfra.Hub
	Cache      port.Cache
	History    repository.HistoryRepository
	Ledger     port.DispatchLedger
	Archive    *s3storage.AlertArchive
	Workflows  port.WorkflowClient
	Delivery   *slack.WebhookClient
	Dispatcher *usecase.AlertDispatcher
	Monitor    *usecase.MonitorCycleUseCase
	Runner     *cycle.Runner
	Cycle      cycle.Config
	Aggregator *service.HistoryAggregator

	flushers []func(ctx context.Context) error
	closers  []func() error
}

// Build подключает внешние системы и собирает use case'ы.
// Обязательной является только конфигурация; недоступные хранилища отключаются с предупреждением.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Components, error) {
	c := &Components{Config: cfg, Logger: log}

	// 1. Наблюдаемость
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.New(registry)
	publishers := port.CycleMetricsPublishers{c.Metrics}

	if cfg.CloudWatch.Enabled {
		metricsPublisher, err := cloudwatch.NewMetricsPublisher(ctx, cloudwatch.MetricsPublisherConfig{
			Namespace:         cfg.CloudWatch.Namespace,
			Region:            cfg.CloudWatch.Region,
			Endpoint:          cfg.CloudWatch.Endpoint,
			AccessKeyID:       cfg.CloudWatch.AccessKeyID,
			SecretAccessKey:   cfg.CloudWatch.SecretAccessKey,
			DefaultDimensions: map[string]string{"Service": opts.Service},
			FlushInterval:     cfg.CloudWatch.FlushInterval,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize CloudWatch metrics publisher: %w", err)
		}
		publishers = append(publishers, metricsPublisher)
		c.flushers = append(c.flushers, metricsPublisher.Close)
		log.Info("CloudWatch metrics publisher initialized", "namespace", cfg.CloudWatch.Namespace)
	}

	if cfg.CloudWatch.Enabled && cfg.CloudWatch.LogsEnabled {
		logsPublisher, err := cloudwatch.NewLogsPublisher(ctx, cloudwatch.LogsPublisherConfig{
			LogGroupName:    cfg.CloudWatch.LogGroupName,
			LogStreamName:   cfg.CloudWatch.LogStreamName,
			Service:         opts.Service,
			Region:          cfg.CloudWatch.Region,
			Endpoint:        cfg.CloudWatch.Endpoint,
			AccessKeyID:     cfg.CloudWatch.AccessKeyID,
			SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
			FlushInterval:   cfg.CloudWatch.FlushInterval,
			AutoCreate:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize CloudWatch logs publisher: %w", err)
		}
		log.SetLogPublisher(logsPublisher)
		c.flushers = append(c.flushers, func(ctx context.Context) error {
			log.SetLogPublisher(nil)
			return logsPublisher.Close(ctx)
		})
		log.Info("CloudWatch logs publisher initialized", "group", cfg.CloudWatch.LogGroupName)
	}

	// 2. Кеш и брокер
	if cfg.Redis.Enabled {
		cache, err := redisCache.NewRedisCache(redisCache.Options{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			TTL:          cfg.Alerting.CollectorCacheTTL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("Redis is unavailable, continuing without cache", "error", err.Error())
		} else {
			c.Cache = cache
			c.closers = append(c.closers, cache.Close)
			log.Info("Redis cache connected", "addr", cfg.Redis.Host+":"+cfg.Redis.Port)
		}
	}

	var events port.EventPublisher
	if cfg.NATS.Enabled {
		publisher, err := natsInfra.NewNATSPublisher(cfg.NATS.URL, log)
		if err != nil {
			log.Warn("Failed to connect to NATS, continuing without event publishing", "error", err.Error())
		} else {
			events = publisher
			c.closers = append(c.closers, publisher.Close)
			log.Info("NATS event publisher initialized", "url", cfg.NATS.URL)
		}
	}

	// 3. Хранилища
	if cfg.Database.Enabled {
		db, err := openDB(ctx, cfg.Database)
		if err != nil {
			log.Warn("History database is unavailable, history is disabled", "error", err.Error())
		} else {
			c.closers = append(c.closers, db.Close)
			if err := postgres.EnsureSchema(ctx, db); err != nil {
				return nil, err
			}
			historyRepo := postgres.NewPostgresHistoryRepository(db)
			if removed, err := historyRepo.DeleteOlderThan(ctx, time.Now().Add(-historyRetention)); err != nil {
				log.Warn("Failed to prune incident history", "error", err.Error())
			} else if removed > 0 {
				log.Info("Pruned incident history", "removed", removed)
			}
			c.History = historyRepo
		}
	}

	if cfg.Dynamo.Enabled {
		ledger, err := dynamodbRepo.NewDispatchLedgerRepository(ctx, dynamodbRepo.Config{
			TableName:       cfg.Dynamo.TableName,
			Region:          cfg.Dynamo.Region,
			Endpoint:        cfg.Dynamo.Endpoint,
			AccessKeyID:     cfg.Dynamo.AccessKeyID,
			SecretAccessKey: cfg.Dynamo.SecretAccessKey,
			RetentionDays:   cfg.Dynamo.RetentionDays,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize dispatch ledger: %w", err)
		}
		c.Ledger = ledger
		log.Info("Dispatch ledger initialized", "table", cfg.Dynamo.TableName)
	}

	var archive port.AlertArchive
	if cfg.S3.Enabled {
		alertArchive, err := s3storage.NewAlertArchive(ctx, s3storage.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			URLMode:         s3storage.URLModePresigned,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize alert archive: %w", err)
		}
		c.Archive = alertArchive
		archive = alertArchive
		log.Info("Alert archive initialized", "bucket", cfg.S3.Bucket)
	}

	if cfg.Kestra.Enabled {
		c.Workflows = kestra.NewClient(kestra.Config{
			BaseURL:      cfg.Kestra.BaseURL,
			Tenant:       cfg.Kestra.Tenant,
			APIKey:       cfg.Kestra.APIKey,
			APIKeyHeader: cfg.Kestra.APIKeyHeader,
			Timeout:      cfg.Kestra.Timeout,
		})
	}

	// 4. Сборщики
	warehouse, refresh, tickets, err := c.buildCollectors(ctx)
	if err != nil {
		return nil, err
	}

	// 5. Доставка и диспетчер
	var notifier port.StatusNotifier
	if !opts.Headless {
		c.Hub = wsInfra.NewHub(log)
		notifier = c.Hub
	}

	c.Delivery = slack.NewWebhookClient(slack.WebhookConfig{
		URL:         cfg.Slack.WebhookURL,
		Prefix:      cfg.Slack.AllowedPrefix,
		Timeout:     cfg.Slack.Timeout,
		MaxAttempts: cfg.Slack.MaxAttempts,
	}, log)
	if !c.Delivery.Configured() {
		log.Warn("SLACK_WEBHOOK_URL is not set, alerts will not be delivered")
	}

	composer := service.NewAlertComposer(service.ComposerConfig{
		Location:            cfg.Alerting.Location,
		KpiMinPct:           cfg.Alerting.KPIAlertPct,
		WarehouseConsoleURL: cfg.Alerting.WarehouseConsoleURL,
		JiraFilterURL:       cfg.Jira.FilterURL,
	})
	auditor := usecase.NewDispatchAuditTrail(c.Ledger, archive, events, c.Metrics, notifier,
		usecase.DispatchAuditConfig{ArchiveKeyPrefix: cfg.S3.KeyPrefix}, log)
	c.Dispatcher = usecase.NewAlertDispatcher(entity.NewDispatchState(), c.Delivery, composer, auditor,
		usecase.AlertDispatcherConfig{
			Location:          cfg.Alerting.Location,
			TestCooldown:      cfg.Alerting.TestCooldown,
			WebhookConfigured: c.Delivery.Configured(),
		}, log)

	// 6. Цикл мониторинга
	c.Aggregator = service.NewHistoryAggregator()
	c.Monitor = usecase.NewMonitorCycleUseCase(usecase.MonitorCycleDeps{
		Warehouse:  warehouse,
		Refresh:    refresh,
		Tickets:    tickets,
		Kpi:        collector.NewKpiCollector(),
		Host:       collector.NewHostStatsCollector(0),
		Evaluator:  service.NewAnomalyEvaluator(cfg.Alerting.KPIAlertPct),
		Aggregator: c.Aggregator,
		Dispatcher: c.Dispatcher,
		History:    c.History,
		Metrics:    publishers,
		Events:     events,
		Notifier:   notifier,
	}, usecase.MonitorCycleConfig{
		ThresholdMinutes: cfg.Alerting.RedshiftThresholdMinutes,
		Location:         cfg.Alerting.Location,
	}, log)

	cycleCfg, err := cycle.ConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	c.Cycle = cycleCfg
	c.Runner = cycle.NewRunner(c.Monitor, c.Dispatcher, log, cycleCfg)

	c.flushers = append(c.flushers, publishers.Flush)

	return c, nil
}

// buildCollectors возвращает интерфейсы, а не указатели: выключенный источник должен быть nil-интерфейсом.
func (c *Components) buildCollectors(ctx context.Context) (port.WarehouseCollector, port.RefreshCollector, port.TicketCollector, error) {
	cfg, log := c.Config, c.Logger

	var warehouse port.WarehouseCollector
	if cfg.Warehouse.Enabled {
		db, err := openDB(ctx, cfg.Warehouse)
		if err != nil {
			// Пустой сборщик упадет на каждом цикле и покажет ошибку на карточке
			log.Warn("Redshift is unavailable at startup", "error", err.Error())
		}
		if db != nil {
			c.closers = append(c.closers, db.Close)
			warehouse = collector.NewRedshiftCollector(db, cfg.Alerting.QueryListLimit)
		}
	}

	var refresh port.RefreshCollector
	if cfg.BI.Enabled {
		db, err := openDB(ctx, cfg.BI.DatabaseConfig)
		if err != nil {
			log.Warn("BI database is unavailable at startup", "error", err.Error())
		}
		if db != nil {
			c.closers = append(c.closers, db.Close)
			refreshCollector, err := collector.NewRefreshCollector(db, cfg.BI.RefreshTable, cfg.BI.RefreshColumn)
			if err != nil {
				return nil, nil, nil, err
			}
			refresh = refreshCollector
		}
	}

	var tickets port.TicketCollector
	if cfg.Jira.Enabled && cfg.Jira.BaseURL != "" {
		tickets = collector.NewJiraCollector(collector.JiraConfig{
			BaseURL:    cfg.Jira.BaseURL,
			Email:      cfg.Jira.Email,
			APIToken:   cfg.Jira.APIToken,
			JQL:        cfg.Jira.JQL,
			MaxResults: cfg.Jira.MaxResults,
			Timeout:    cfg.Jira.Timeout,
		})
	}

	if c.Cache != nil {
		ttl := cfg.Alerting.CollectorCacheTTL
		if warehouse != nil {
			warehouse = collector.NewCachedWarehouseCollector(warehouse, c.Cache, ttl, log)
		}
		if refresh != nil {
			refresh = collector.NewCachedRefreshCollector(refresh, c.Cache, ttl, log)
		}
		if tickets != nil {
			tickets = collector.NewCachedTicketCollector(tickets, c.Cache, ttl, log)
		}
	}

	return warehouse, refresh, tickets, nil
}

// HistoryUseCase nil, если журнал инцидентов отключен
func (c *Components) HistoryUseCase() *usecase.GetHistoryUseCase {
	if c.History == nil {
		return nil
	}
	return usecase.NewGetHistoryUseCase(c.History, c.Aggregator, c.Cache, c.Config.Alerting.Location, c.Logger)
}

// LedgerUseCase выборка журнала отправок; без DynamoDB отвечает ErrLedgerDisabled
func (c *Components) LedgerUseCase() *usecase.ListDispatchLedgerUseCase {
	return usecase.NewListDispatchLedgerUseCase(c.Ledger, usecase.ListDispatchLedgerConfig{}, c.Logger)
}

// Shutdown сбрасывает буферы и закрывает соединения в обратном порядке
func (c *Components) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(c.flushers) - 1; i >= 0; i-- {
		if err := c.flushers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return db, fmt.Errorf("failed to ping %s@%s: %w", cfg.Database, cfg.Host, err)
	}
	return db, nil
}
