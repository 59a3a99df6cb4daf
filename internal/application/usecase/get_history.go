package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/dto"
	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/repository"
	"github.com/dreschagin/monitor-dw/internal/domain/service"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

// historyCacheTTL история меняется не чаще раза в цикл
const historyCacheTTL = 30 * time.Second

// GetHistoryUseCase возвращает историю инцидентов за N дней с кешированием
type GetHistoryUseCase struct {
	repository repository.HistoryRepository
	aggregator *service.HistoryAggregator
	cache      port.Cache
	location   *time.Location
	now        func() time.Time
	logger     *logger.Logger
}

// NewGetHistoryUseCase создает новый use case. cache может быть nil.
func NewGetHistoryUseCase(
	repository repository.HistoryRepository,
	aggregator *service.HistoryAggregator,
	cache port.Cache,
	location *time.Location,
	logger *logger.Logger,
) *GetHistoryUseCase {
	if location == nil {
		location = time.UTC
	}
	return &GetHistoryUseCase{
		repository: repository,
		aggregator: aggregator,
		cache:      cache,
		location:   location,
		now:        time.Now,
		logger:     logger,
	}
}

// Execute возвращает историю. days == 0 означает окно по умолчанию.
func (uc *GetHistoryUseCase) Execute(ctx context.Context, days int) (*dto.HistoryDTO, error) {
	if days == 0 {
		days = valueobject.DefaultHistoryDays
	}

	now := uc.now().In(uc.location)
	timeRange, err := valueobject.NewTimeRangeFromDays(days, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	// Без кеша идем напрямую в БД
	if uc.cache == nil {
		return uc.load(ctx, days, timeRange)
	}

	cacheKey := fmt.Sprintf("history:%d:%s", days, now.Format("2006-01-02"))

	var cached dto.HistoryDTO
	if err := uc.cache.Get(ctx, cacheKey, &cached); err == nil {
		uc.logger.Debug("Cache hit for history", "days", days)
		return &cached, nil
	}

	history, err := uc.load(ctx, days, timeRange)
	if err != nil {
		return nil, err
	}

	// Сохраняем в кеш асинхронно, не блокируем ответ
	go func() {
		if err := uc.cache.SetWithTTL(context.Background(), cacheKey, history, historyCacheTTL); err != nil {
			uc.logger.Warn("Failed to cache history", "error", err.Error())
		}
	}()

	return history, nil
}

func (uc *GetHistoryUseCase) load(
	ctx context.Context,
	days int,
	timeRange valueobject.TimeRange,
) (*dto.HistoryDTO, error) {
	stats, err := uc.repository.FindErrorStats(ctx, timeRange)
	if err != nil {
		uc.logger.Error("Failed to fetch error stats", err)
		return nil, fmt.Errorf("failed to fetch error stats: %w", err)
	}

	summaries, err := uc.repository.FindDailySummaries(ctx, timeRange)
	if err != nil {
		uc.logger.Error("Failed to fetch daily summaries", err)
		return nil, fmt.Errorf("failed to fetch daily summaries: %w", err)
	}

	history := &dto.HistoryDTO{
		Days:       days,
		From:       timeRange.Start(),
		To:         timeRange.End(),
		ErrorStats: make([]dto.ErrorStatDTO, 0, len(stats)),
		Daily:      make([]dto.DailySummaryDTO, 0, len(summaries)),
	}

	for _, stat := range uc.aggregator.SortStats(stats) {
		history.ErrorStats = append(history.ErrorStats, dto.FromErrorStat(stat))
	}
	for _, summary := range summaries {
		history.Daily = append(history.Daily, dto.FromDailySummary(summary))
	}

	totals := uc.aggregator.Totals(summaries)
	history.Totals = dto.HistoryTotalsDTO{
		RedshiftQueriesOver: totals.RedshiftQueriesOver,
		JiraTicketsOpened:   totals.JiraTicketsOpened,
		RefreshDelays:       totals.RefreshDelays,
		KpiAnomalies:        totals.KpiAnomalies,
	}

	if peak, err := uc.aggregator.PeakDay(summaries); err == nil {
		peakDTO := dto.FromDailySummary(peak)
		history.PeakDay = &peakDTO
	}

	return history, nil
}
