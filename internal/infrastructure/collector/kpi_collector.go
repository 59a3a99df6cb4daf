package collector

import (
	"context"

	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

// KpiCollector источник KPI. Пока источник не подключен, процент всегда отсутствует
// и kpi-аномалия не поднимается.
type KpiCollector struct{}

func NewKpiCollector() *KpiCollector {
	return &KpiCollector{}
}

func (c *KpiCollector) CollectKpi(_ context.Context) (valueobject.KpiMetric, error) {
	return valueobject.KpiMetric{}, nil
}
