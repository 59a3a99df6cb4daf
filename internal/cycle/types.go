package cycle

import (
	"context"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/usecase"
)

// Executor runs one monitoring pass.
type Executor interface {
	Execute(ctx context.Context) (*usecase.CycleReport, error)
}

// Cooldown reports whether automatic passes are paused after a manual test send.
type Cooldown interface {
	CoolingDown(now time.Time) bool
}

type Snapshot struct {
	StartedAt    time.Time            `json:"started_at"`
	Interval     time.Duration        `json:"interval"`
	LastRunAt    time.Time            `json:"last_run_at"`
	LastError    string               `json:"last_error,omitempty"`
	Runs         int                  `json:"runs"`
	SkippedTicks int                  `json:"skipped_ticks"`
	LastReport   *usecase.CycleReport `json:"last_report,omitempty"`
}
