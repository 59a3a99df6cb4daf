package repository

import (
	"context"
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

// ErrorDedupWindow окно, в течение которого повторная ошибка того же типа не пишется
const ErrorDedupWindow = 30 * time.Minute

// DailyIncrement приращение счетчиков дневной сводки
type DailyIncrement struct {
	RedshiftQueriesOver int
	JiraTicketsOpened   int
	RefreshDelays       int
	KpiAnomalies        int
}

// IsZero true, если приращать нечего
func (d DailyIncrement) IsZero() bool {
	return d.RedshiftQueriesOver == 0 && d.JiraTicketsOpened == 0 && d.RefreshDelays == 0 && d.KpiAnomalies == 0
}

// HistoryRepository определяет интерфейс журнала инцидентов (Port)
// Реализация будет в Infrastructure слое
type HistoryRepository interface {
	// RecordError пишет ошибку, если за ErrorDedupWindow такого же типа не было.
	// Возвращает true, если запись добавлена.
	RecordError(ctx context.Context, record entity.ErrorRecord) (bool, error)

	// AddDailyCounters увеличивает счетчики сводки за день
	AddDailyCounters(ctx context.Context, day time.Time, inc DailyIncrement) error

	// FindErrorStats агрегирует ошибки по типу за диапазон
	FindErrorStats(ctx context.Context, timeRange valueobject.TimeRange) ([]entity.ErrorStat, error)

	// FindDailySummaries возвращает сводки за диапазон, новые первыми
	FindDailySummaries(ctx context.Context, timeRange valueobject.TimeRange) ([]entity.DailySummary, error)
}
