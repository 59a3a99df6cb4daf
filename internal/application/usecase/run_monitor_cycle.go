package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreschagin/monitor-dw/internal/application/dto"
	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/repository"
	"github.com/dreschagin/monitor-dw/internal/domain/service"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

const hostStatsKey = "host"

// postDispatchTimeout ограничивает запись истории и публикацию после отправки
const postDispatchTimeout = 15 * time.Second

// MonitorCycleConfig настройки цикла мониторинга
type MonitorCycleConfig struct {
	ThresholdMinutes int
	Location         *time.Location
	Now              func() time.Time
}

// MonitorCycleDeps зависимости цикла. Любой сборщик и любой выход могут быть nil.
type MonitorCycleDeps struct {
	Warehouse port.WarehouseCollector
	Refresh   port.RefreshCollector
	Tickets   port.TicketCollector
	Kpi       port.KpiCollector
	Host      port.HostStatsProvider

	Evaluator  *service.AnomalyEvaluator
	Validator  *service.SnapshotValidator
	Aggregator *service.HistoryAggregator
	Dispatcher *AlertDispatcher

	History  repository.HistoryRepository
	Metrics  port.CycleMetricsPublisher
	Events   port.EventPublisher
	Notifier port.StatusNotifier
}

// CycleReport итог одного прохода
type CycleReport struct {
	StartedAt       time.Time                  `json:"started_at"`
	Duration        time.Duration              `json:"duration"`
	Snapshot        valueobject.MetricSnapshot `json:"snapshot"`
	Flags           valueobject.AnomalyFlags   `json:"flags"`
	Dispatch        DispatchResult             `json:"dispatch"`
	Host            *valueobject.HostStats     `json:"host,omitempty"`
	CollectorErrors map[string]string          `json:"collector_errors,omitempty"`
	Disabled        []valueobject.AnomalyKind  `json:"disabled,omitempty"`
	HistoryRecorded []valueobject.AnomalyKind  `json:"history_recorded,omitempty"`
}

// CycleCompletedEvent событие завершения цикла для брокера
type CycleCompletedEvent struct {
	CollectedAt     time.Time                `json:"collected_at"`
	Flags           valueobject.AnomalyFlags `json:"flags"`
	Outcome         string                   `json:"outcome"`
	Digest          string                   `json:"digest,omitempty"`
	CollectorErrors map[string]string        `json:"collector_errors,omitempty"`
	DurationMs      int64                    `json:"duration_ms"`
}

// ToStatusDTO собирает статус для REST и WebSocket
func (r *CycleReport) ToStatusDTO(kpiMinPct float64, alerting dto.AlertingDTO) *dto.StatusDTO {
	return &dto.StatusDTO{
		Timestamp:       r.StartedAt,
		Snapshot:        r.Snapshot,
		Flags:           r.Flags,
		Cards:           dto.NewSourceCards(r.Snapshot, r.Flags, kpiMinPct, r.CollectorErrors, r.Disabled),
		Summary:         dto.NewStatusSummaryDTO(r.Flags),
		Dispatch:        r.Dispatch.ToDTO(),
		Alerting:        alerting,
		Host:            r.Host,
		CollectorErrors: r.CollectorErrors,
	}
}

// MonitorCycleUseCase выполняет один проход: сбор, оценка, отправка, история, публикация
type MonitorCycleUseCase struct {
	deps   MonitorCycleDeps
	cfg    MonitorCycleConfig
	logger *logger.Logger
}

// NewMonitorCycleUseCase создает новый use case
func NewMonitorCycleUseCase(deps MonitorCycleDeps, cfg MonitorCycleConfig, logger *logger.Logger) *MonitorCycleUseCase {
	if cfg.ThresholdMinutes <= 0 {
		cfg.ThresholdMinutes = service.MinQueryThresholdMinutes
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Evaluator == nil {
		deps.Evaluator = service.NewAnomalyEvaluator(service.DefaultKpiMinPct)
	}
	if deps.Validator == nil {
		deps.Validator = service.NewSnapshotValidator()
	}
	if deps.Aggregator == nil {
		deps.Aggregator = service.NewHistoryAggregator()
	}

	return &MonitorCycleUseCase{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
	}
}

// Execute выполняет цикл. Ошибки сборщиков не прерывают цикл,
// источник получает безопасное значение по умолчанию.
//
// Дедлайн ctx ограничивает только сбор. Начатая доставка в Slack доходит до
// конца или исчерпывает попытки: иначе digest уже записан, а алерт потерян.
// Отмена ctx до отправки прерывает цикл целиком.
func (uc *MonitorCycleUseCase) Execute(ctx context.Context) (*CycleReport, error) {
	now := uc.cfg.Now()
	report := &CycleReport{
		StartedAt:       now,
		CollectorErrors: make(map[string]string),
		Disabled:        uc.disabledSources(),
	}

	// 1. Сбор
	snapshot, host, err := uc.collect(ctx, now, report.CollectorErrors)
	if err == nil && errors.Is(ctx.Err(), context.Canceled) {
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("cycle cancelled: %w", err)
	}
	report.Host = host

	// 2. Нормализация и оценка
	snapshot = uc.deps.Validator.Normalize(snapshot, now)
	if err := uc.deps.Validator.Validate(snapshot); err != nil {
		uc.logger.Warn("Snapshot still invalid after normalization", "error", err.Error())
	}
	report.Snapshot = snapshot
	report.Flags = withoutDisabled(uc.deps.Evaluator.Evaluate(snapshot, now), report.Disabled)

	// 3. Решение об отправке вне дедлайна цикла
	detached := context.WithoutCancel(ctx)
	if uc.deps.Dispatcher != nil {
		report.Dispatch = uc.deps.Dispatcher.Dispatch(detached, report.Flags, snapshot, now)
	}

	postCtx, cancel := context.WithTimeout(detached, postDispatchTimeout)
	defer cancel()

	// 4. История инцидентов
	report.HistoryRecorded = uc.recordHistory(postCtx, report.Flags, snapshot, now)

	report.Duration = uc.cfg.Now().Sub(now)

	// 5. Публикация
	uc.publish(postCtx, report)

	uc.logger.Info("Monitor cycle completed",
		"anomalies", report.Flags.Count(),
		"outcome", string(report.Dispatch.Outcome),
		"collector_errors", len(report.CollectorErrors),
		"duration", report.Duration.String())

	return report, nil
}

// disabledSources возвращает источники без настроенного сборщика
func (uc *MonitorCycleUseCase) disabledSources() []valueobject.AnomalyKind {
	var disabled []valueobject.AnomalyKind
	if uc.deps.Warehouse == nil {
		disabled = append(disabled, valueobject.AnomalyQueries)
	}
	if uc.deps.Refresh == nil {
		disabled = append(disabled, valueobject.AnomalyRefresh)
	}
	if uc.deps.Tickets == nil {
		disabled = append(disabled, valueobject.AnomalyTickets)
	}
	if uc.deps.Kpi == nil {
		disabled = append(disabled, valueobject.AnomalyKpi)
	}
	return disabled
}

// withoutDisabled снимает флаги с отключенных источников: отключенный источник не аномалия
func withoutDisabled(flags valueobject.AnomalyFlags, disabled []valueobject.AnomalyKind) valueobject.AnomalyFlags {
	for _, kind := range disabled {
		switch kind {
		case valueobject.AnomalyQueries:
			flags.QueryBad = false
		case valueobject.AnomalyRefresh:
			flags.RefreshBad = false
		case valueobject.AnomalyTickets:
			flags.TicketBad = false
		case valueobject.AnomalyKpi:
			flags.KpiBad = false
		}
	}
	return flags
}

// collect опрашивает источники параллельно. Ошибка возвращается только
// при отмене ctx; по истечении дедлайна источники получают значения по умолчанию.
func (uc *MonitorCycleUseCase) collect(
	ctx context.Context,
	now time.Time,
	collectorErrors map[string]string,
) (valueobject.MetricSnapshot, *valueobject.HostStats, error) {
	snapshot := valueobject.MetricSnapshot{
		CollectedAt: now,
		Redshift:    valueobject.RedshiftMetric{ThresholdMinutes: uc.cfg.ThresholdMinutes},
	}
	var host *valueobject.HostStats

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	run := func(key string, collectFn func(ctx context.Context) error) {
		g.Go(func() error {
			err := collectFn(gctx)
			if err == nil {
				return nil
			}
			// Остановка сервиса: прерываем остальные сборщики
			if errors.Is(ctx.Err(), context.Canceled) {
				return fmt.Errorf("collect %s: %w", key, err)
			}
			mu.Lock()
			collectorErrors[key] = err.Error()
			mu.Unlock()
			uc.logger.Warn("Collector failed, using safe default", "source", key, "error", err.Error())
			return nil
		})
	}

	if uc.deps.Warehouse != nil {
		run(valueobject.AnomalyQueries.String(), func(ctx context.Context) error {
			metric, err := uc.deps.Warehouse.CollectQueries(ctx, uc.cfg.ThresholdMinutes)
			if err != nil {
				return err
			}
			metric.ThresholdMinutes = uc.cfg.ThresholdMinutes
			mu.Lock()
			snapshot.Redshift = metric
			mu.Unlock()
			return nil
		})
	}

	if uc.deps.Refresh != nil {
		run(valueobject.AnomalyRefresh.String(), func(ctx context.Context) error {
			last, err := uc.deps.Refresh.CollectRefresh(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			snapshot.Refresh = valueobject.NewRefreshMetric(last, now)
			mu.Unlock()
			return nil
		})
	}

	if uc.deps.Tickets != nil {
		run(valueobject.AnomalyTickets.String(), func(ctx context.Context) error {
			metric, err := uc.deps.Tickets.CollectTickets(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			snapshot.Tickets = metric
			mu.Unlock()
			return nil
		})
	}

	if uc.deps.Kpi != nil {
		run(valueobject.AnomalyKpi.String(), func(ctx context.Context) error {
			metric, err := uc.deps.Kpi.CollectKpi(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			snapshot.Kpi = metric
			mu.Unlock()
			return nil
		})
	}

	if uc.deps.Host != nil {
		run(hostStatsKey, func(ctx context.Context) error {
			stats, err := uc.deps.Host.HostStats(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			host = &stats
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return snapshot, host, err
}

// recordHistory пишет ошибку по каждой активной аномалии. Дневные счетчики
// увеличиваются только для типов, которые не были записаны за последние 30 минут.
func (uc *MonitorCycleUseCase) recordHistory(
	ctx context.Context,
	flags valueobject.AnomalyFlags,
	snapshot valueobject.MetricSnapshot,
	now time.Time,
) []valueobject.AnomalyKind {
	if uc.deps.History == nil || !flags.AnyBad() {
		return nil
	}

	var recorded []valueobject.AnomalyKind
	for _, kind := range flags.Active() {
		inserted, err := uc.deps.History.RecordError(ctx, entity.ErrorRecord{
			ErrorType:  kind.ErrorType(),
			Count:      errorCount(kind, snapshot),
			Details:    errorDetails(kind, snapshot),
			OccurredAt: now,
		})
		if err != nil {
			uc.logger.Error("Failed to record error history", err, "error_type", kind.ErrorType())
			continue
		}
		if inserted {
			recorded = append(recorded, kind)
		}
	}

	if len(recorded) == 0 {
		return nil
	}

	var only valueobject.AnomalyFlags
	for _, kind := range recorded {
		switch kind {
		case valueobject.AnomalyQueries:
			only.QueryBad = true
		case valueobject.AnomalyRefresh:
			only.RefreshBad = true
		case valueobject.AnomalyTickets:
			only.TicketBad = true
		case valueobject.AnomalyKpi:
			only.KpiBad = true
		}
	}

	inc := uc.deps.Aggregator.IncrementFor(only, snapshot)
	if !inc.IsZero() {
		day := now.In(uc.cfg.Location)
		if err := uc.deps.History.AddDailyCounters(ctx, day, inc); err != nil {
			uc.logger.Error("Failed to update daily summary", err, "date", day.Format("2006-01-02"))
		}
	}

	return recorded
}

// publish отправляет метрики, событие и статус. Ошибки только логируются.
func (uc *MonitorCycleUseCase) publish(ctx context.Context, report *CycleReport) {
	if uc.deps.Metrics != nil {
		err := uc.deps.Metrics.PublishCycle(ctx, port.CycleMetrics{
			CollectedAt:       report.StartedAt,
			Flags:             report.Flags,
			RunningOver:       report.Snapshot.Redshift.RunningOver,
			RefreshAgeMinutes: report.Snapshot.Refresh.AgeMinutes,
			OpenTickets:       report.Snapshot.Tickets.OpenCount,
			KpiPercentage:     report.Snapshot.Kpi.Percentage,
			Outcome:           report.Dispatch.Outcome,
			CollectorErrors:   len(report.CollectorErrors),
			Duration:          report.Duration,
		})
		if err != nil {
			uc.logger.Warn("Failed to publish cycle metrics", "error", err.Error())
		}
	}

	if uc.deps.Events != nil {
		event := CycleCompletedEvent{
			CollectedAt:     report.StartedAt,
			Flags:           report.Flags,
			Outcome:         string(report.Dispatch.Outcome),
			Digest:          report.Dispatch.Digest.String(),
			CollectorErrors: report.CollectorErrors,
			DurationMs:      report.Duration.Milliseconds(),
		}
		if err := uc.deps.Events.PublishEvent(ctx, port.SubjectCycleCompleted, event); err != nil {
			uc.logger.Warn("Failed to publish cycle event", "error", err.Error())
		}
	}

	if uc.deps.Notifier != nil {
		uc.deps.Notifier.BroadcastStatus(uc.StatusFor(report))
		uc.logger.Debug("Status broadcasted to clients", "client_count", uc.deps.Notifier.ClientCount())
	}
}

// StatusFor строит статус отчета с текущим состоянием алертинга
func (uc *MonitorCycleUseCase) StatusFor(report *CycleReport) *dto.StatusDTO {
	alerting := dto.AlertingDTO{}
	if uc.deps.Dispatcher != nil {
		status := uc.deps.Dispatcher.Status()
		alerting = dto.NewAlertingDTO(status.WebhookConfigured, status.State)
	}
	return report.ToStatusDTO(uc.deps.Evaluator.KpiMinPct(), alerting)
}

func errorCount(kind valueobject.AnomalyKind, snapshot valueobject.MetricSnapshot) int {
	switch kind {
	case valueobject.AnomalyQueries:
		return snapshot.Redshift.RunningOver
	case valueobject.AnomalyTickets:
		return snapshot.Tickets.OpenCount
	default:
		return 1
	}
}

func errorDetails(kind valueobject.AnomalyKind, snapshot valueobject.MetricSnapshot) string {
	switch kind {
	case valueobject.AnomalyQueries:
		return fmt.Sprintf("Count: %d, Threshold: %dmin", snapshot.Redshift.RunningOver, snapshot.Redshift.ThresholdMinutes)
	case valueobject.AnomalyRefresh:
		if snapshot.Refresh.LastRefreshUTC == nil {
			return "Last refresh: unknown"
		}
		return "Last refresh: " + snapshot.Refresh.LastRefreshUTC.UTC().Format(time.RFC3339)
	case valueobject.AnomalyTickets:
		return fmt.Sprintf("Open tickets: %d", snapshot.Tickets.OpenCount)
	case valueobject.AnomalyKpi:
		if snapshot.Kpi.Percentage == nil {
			return "KPI: n/a"
		}
		return fmt.Sprintf("KPI: %.2f%%", *snapshot.Kpi.Percentage*100)
	default:
		return ""
	}
}
