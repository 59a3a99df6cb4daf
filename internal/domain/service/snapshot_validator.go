package service

import (
	"errors"
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

// SnapshotValidator приводит снимок к инвариантам модели (Domain Service)
type SnapshotValidator struct{}

// NewSnapshotValidator создает новый SnapshotValidator
func NewSnapshotValidator() *SnapshotValidator {
	return &SnapshotValidator{}
}

// Validate проверяет снимок без исправлений
func (v *SnapshotValidator) Validate(snapshot valueobject.MetricSnapshot) error {
	if snapshot.CollectedAt.IsZero() {
		return errors.New("collected_at cannot be zero")
	}

	if snapshot.Redshift.RunningOver < 0 {
		return errors.New("running_over cannot be negative")
	}

	if snapshot.Redshift.ThresholdMinutes < 1 {
		return errors.New("threshold_minutes must be >= 1")
	}

	if snapshot.Tickets.OpenCount < 0 {
		return errors.New("open_count cannot be negative")
	}

	if len(snapshot.Tickets.Rows) > valueobject.MaxTicketRows {
		return errors.New("too many ticket rows")
	}

	if pct := snapshot.Kpi.Percentage; pct != nil && (*pct < 0 || *pct > 1) {
		return errors.New("kpi percentage must be within [0, 1]")
	}

	return nil
}

// Normalize исправляет значения, которые источники иногда отдают вне диапазона.
// KPI вне [0,1] считается отсутствующим, отрицательные счетчики обнуляются,
// время обновления из будущего дает нулевой возраст.
func (v *SnapshotValidator) Normalize(snapshot valueobject.MetricSnapshot, now time.Time) valueobject.MetricSnapshot {
	if snapshot.CollectedAt.IsZero() {
		snapshot.CollectedAt = now
	}

	if snapshot.Redshift.RunningOver < 0 {
		snapshot.Redshift.RunningOver = 0
	}
	if len(snapshot.Redshift.Samples) > valueobject.MaxQuerySamples {
		snapshot.Redshift.Samples = snapshot.Redshift.Samples[:valueobject.MaxQuerySamples]
	}

	snapshot.Tickets = valueobject.NewTicketMetric(snapshot.Tickets.OpenCount, snapshot.Tickets.Rows)

	if pct := snapshot.Kpi.Percentage; pct != nil && (*pct < 0 || *pct > 1) {
		snapshot.Kpi.Percentage = nil
	}

	if snapshot.Refresh.LastRefreshUTC != nil {
		snapshot.Refresh = valueobject.NewRefreshMetric(snapshot.Refresh.LastRefreshUTC, now)
	} else {
		snapshot.Refresh.AgeMinutes = nil
	}

	return snapshot
}
