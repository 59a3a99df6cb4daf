package port

import (
	"context"
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

// WarehouseCollector читает длительные запросы хранилища (Port)
type WarehouseCollector interface {
	// CollectQueries считает запросы дольше thresholdMinutes и возвращает самые долгие
	CollectQueries(ctx context.Context, thresholdMinutes int) (valueobject.RedshiftMetric, error)
}

// RefreshCollector читает время последнего обновления BI
type RefreshCollector interface {
	// CollectRefresh возвращает время обновления в UTC или nil, если оно неизвестно
	CollectRefresh(ctx context.Context) (*time.Time, error)
}

// TicketCollector читает открытые задачи
type TicketCollector interface {
	CollectTickets(ctx context.Context) (valueobject.TicketMetric, error)
}

// KpiCollector читает KPI
type KpiCollector interface {
	CollectKpi(ctx context.Context) (valueobject.KpiMetric, error)
}

// HostStatsProvider собирает загрузку хоста
type HostStatsProvider interface {
	HostStats(ctx context.Context) (valueobject.HostStats, error)
}
