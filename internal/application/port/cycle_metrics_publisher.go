package port

import (
	"context"
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

// CycleMetrics numeric outcome of one monitoring cycle.
type CycleMetrics struct {
	CollectedAt       time.Time
	Flags             valueobject.AnomalyFlags
	RunningOver       int
	RefreshAgeMinutes *int
	OpenTickets       int
	KpiPercentage     *float64
	Outcome           valueobject.DispatchOutcome
	CollectorErrors   int
	Duration          time.Duration
}

// CycleMetricsPublisher ships cycle metrics to an external observability platform.
type CycleMetricsPublisher interface {
	// PublishCycle buffers the metrics of one cycle.
	PublishCycle(ctx context.Context, metrics CycleMetrics) error

	// Flush forces publication of buffered metrics. Called on shutdown.
	Flush(ctx context.Context) error
}

// CycleMetricsPublishers fans one cycle out to several publishers.
// Every publisher is called; the first error is returned.
type CycleMetricsPublishers []CycleMetricsPublisher

func (ps CycleMetricsPublishers) PublishCycle(ctx context.Context, metrics CycleMetrics) error {
	var first error
	for _, p := range ps {
		if err := p.PublishCycle(ctx, metrics); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (ps CycleMetricsPublishers) Flush(ctx context.Context) error {
	var first error
	for _, p := range ps {
		if err := p.Flush(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
