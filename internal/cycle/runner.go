package cycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/usecase"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

type Runner struct {
	executor Executor
	cooldown Cooldown
	log      *logger.Logger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	runMu sync.Mutex

	mu           sync.RWMutex
	startedAt    time.Time
	lastRunAt    time.Time
	lastError    string
	lastReport   *usecase.CycleReport
	runs         int
	skippedTicks int
}

// NewRunner builds a runner. cooldown may be nil.
func NewRunner(executor Executor, cooldown Cooldown, log *logger.Logger, cfg Config) *Runner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = cfg.Interval
	}
	return &Runner{
		executor:  executor,
		cooldown:  cooldown,
		log:       log,
		interval:  cfg.Interval,
		timeout:   timeout,
		now:       time.Now,
		startedAt: time.Now(),
	}
}

// Start runs one pass immediately and then one per interval until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// tick is an automatic pass; it is skipped while a manual test cooldown is active.
func (r *Runner) tick(ctx context.Context) {
	if r.cooldown != nil && r.cooldown.CoolingDown(r.now()) {
		r.mu.Lock()
		r.skippedTicks++
		r.mu.Unlock()
		r.log.Debug("Monitor cycle skipped, test send cooldown active")
		return
	}

	// RunOnce already stores error state and logs context.
	_, _ = r.RunOnce(ctx)
}

// RunOnce executes a pass now. Concurrent callers are serialized.
// The cycle timeout bounds source collection; a started Slack delivery
// runs to completion past it.
func (r *Runner) RunOnce(ctx context.Context) (*usecase.CycleReport, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	cycleCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	report, err := r.executor.Execute(cycleCtx)
	runAt := r.now()

	if err != nil {
		wrappedErr := fmt.Errorf("monitor cycle failed: %w", err)
		r.updateFailure(runAt, wrappedErr)
		r.log.Error("Monitor cycle failed", wrappedErr)
		return nil, wrappedErr
	}

	r.updateSuccess(runAt, report)
	return report, nil
}

func (r *Runner) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := Snapshot{
		StartedAt:    r.startedAt,
		Interval:     r.interval,
		LastRunAt:    r.lastRunAt,
		LastError:    r.lastError,
		Runs:         r.runs,
		SkippedTicks: r.skippedTicks,
	}

	if r.lastReport != nil {
		copied := *r.lastReport
		snapshot.LastReport = &copied
	}

	return snapshot
}

// Ready reports whether a pass succeeded recently enough to serve traffic.
func (r *Runner) Ready(now time.Time) (bool, string) {
	snapshot := r.Snapshot()
	switch {
	case snapshot.LastRunAt.IsZero():
		return false, "no successful cycle yet"
	case now.Sub(snapshot.LastRunAt) > snapshot.Interval*3:
		return false, "stale monitor cycle"
	case snapshot.LastError != "":
		return false, "last cycle failed"
	default:
		return true, ""
	}
}

func (r *Runner) updateFailure(runAt time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastRunAt = runAt
	r.lastError = err.Error()
	r.runs++
}

func (r *Runner) updateSuccess(runAt time.Time, report *usecase.CycleReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastRunAt = runAt
	r.lastError = ""
	r.lastReport = report
	r.runs++
}
