package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/repository"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

type fakeWarehouse struct {
	metric valueobject.RedshiftMetric
	err    error
}

func (f *fakeWarehouse) CollectQueries(_ context.Context, _ int) (valueobject.RedshiftMetric, error) {
	return f.metric, f.err
}

// blockingWarehouse отвечает только после отмены или дедлайна ctx
type blockingWarehouse struct{}

func (blockingWarehouse) CollectQueries(ctx context.Context, _ int) (valueobject.RedshiftMetric, error) {
	<-ctx.Done()
	return valueobject.RedshiftMetric{}, ctx.Err()
}

type fakeRefresh struct {
	last *time.Time
	err  error
}

func (f *fakeRefresh) CollectRefresh(_ context.Context) (*time.Time, error) {
	return f.last, f.err
}

type fakeTickets struct {
	metric valueobject.TicketMetric
	err    error
}

func (f *fakeTickets) CollectTickets(_ context.Context) (valueobject.TicketMetric, error) {
	return f.metric, f.err
}

type fakeKpi struct {
	metric valueobject.KpiMetric
}

func (f *fakeKpi) CollectKpi(_ context.Context) (valueobject.KpiMetric, error) {
	return f.metric, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	errors  []entity.ErrorRecord
	daily   map[string]repository.DailyIncrement
	failErr error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{daily: make(map[string]repository.DailyIncrement)}
}

func (f *fakeHistory) RecordError(_ context.Context, record entity.ErrorRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return false, f.failErr
	}
	for _, existing := range f.errors {
		if existing.ErrorType == record.ErrorType && record.OccurredAt.Sub(existing.OccurredAt) < repository.ErrorDedupWindow {
			return false, nil
		}
	}
	f.errors = append(f.errors, record)
	return true, nil
}

func (f *fakeHistory) AddDailyCounters(_ context.Context, day time.Time, inc repository.DailyIncrement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := day.Format("2006-01-02")
	cur := f.daily[key]
	cur.RedshiftQueriesOver += inc.RedshiftQueriesOver
	cur.JiraTicketsOpened += inc.JiraTicketsOpened
	cur.RefreshDelays += inc.RefreshDelays
	cur.KpiAnomalies += inc.KpiAnomalies
	f.daily[key] = cur
	return nil
}

func (f *fakeHistory) FindErrorStats(_ context.Context, _ valueobject.TimeRange) ([]entity.ErrorStat, error) {
	return nil, nil
}

func (f *fakeHistory) FindDailySummaries(_ context.Context, _ valueobject.TimeRange) ([]entity.DailySummary, error) {
	return nil, nil
}

type fakeCycleMetrics struct {
	published []port.CycleMetrics
}

func (f *fakeCycleMetrics) PublishCycle(_ context.Context, metrics port.CycleMetrics) error {
	f.published = append(f.published, metrics)
	return nil
}

func (f *fakeCycleMetrics) Flush(_ context.Context) error { return nil }

type cycleFixture struct {
	warehouse port.WarehouseCollector
	refresh   *fakeRefresh
	tickets   *fakeTickets
	delivery  *fakeDelivery
	history   *fakeHistory
	metrics   *fakeCycleMetrics
	events    *mockEvents
	notifier  *mockNotifier
	now       time.Time

	refreshDisabled bool
}

func newCycleFixture(now time.Time) *cycleFixture {
	yesterday := now.Add(-24 * time.Hour)
	return &cycleFixture{
		warehouse: &fakeWarehouse{metric: valueobject.RedshiftMetric{RunningOver: 3}},
		refresh:   &fakeRefresh{last: &yesterday},
		tickets:   &fakeTickets{},
		delivery:  &fakeDelivery{},
		history:   newFakeHistory(),
		metrics:   &fakeCycleMetrics{},
		events:    &mockEvents{},
		notifier:  &mockNotifier{},
		now:       now,
	}
}

func (f *cycleFixture) useCase() *MonitorCycleUseCase {
	dispatcher, _ := newTestDispatcher(f.delivery, nil)
	deps := MonitorCycleDeps{
		Warehouse:  f.warehouse,
		Refresh:    f.refresh,
		Tickets:    f.tickets,
		Kpi:        &fakeKpi{},
		Dispatcher: dispatcher,
		History:    f.history,
		Metrics:    f.metrics,
		Events:     f.events,
		Notifier:   f.notifier,
	}
	if f.refreshDisabled {
		deps.Refresh = nil
	}
	return NewMonitorCycleUseCase(deps, MonitorCycleConfig{
		ThresholdMinutes: 10,
		Location:         time.UTC,
		Now:              func() time.Time { return f.now },
	}, logger.New("error"))
}

func TestMonitorCycleSendsQueriesAndRefreshAlert(t *testing.T) {
	fx := newCycleFixture(time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC))

	report, err := fx.useCase().Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := valueobject.AnomalyFlags{QueryBad: true, RefreshBad: true}
	if report.Flags != want {
		t.Fatalf("expected flags %+v, got %+v", want, report.Flags)
	}
	if report.Dispatch.Outcome != valueobject.OutcomeSent {
		t.Fatalf("expected sent outcome, got %+v", report.Dispatch)
	}
	if fx.delivery.callCount() != 1 {
		t.Fatalf("expected 1 delivery, got %d", fx.delivery.callCount())
	}

	msg := fx.delivery.calls[0].msg
	if !msg.HasSection(valueobject.AnomalyQueries) || !msg.HasSection(valueobject.AnomalyRefresh) {
		t.Fatalf("expected queries and refresh sections, got %v", msg.Kinds())
	}
	if msg.HasSection(valueobject.AnomalyTickets) || msg.HasSection(valueobject.AnomalyKpi) {
		t.Fatalf("unexpected sections %v", msg.Kinds())
	}
}

func TestMonitorCycleRecordsHistoryWithDedup(t *testing.T) {
	fx := newCycleFixture(time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC))
	uc := fx.useCase()

	first, err := uc.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.HistoryRecorded) != 2 {
		t.Fatalf("expected 2 recorded kinds, got %v", first.HistoryRecorded)
	}

	fx.now = fx.now.Add(10 * time.Minute)
	second, err := uc.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second.HistoryRecorded) != 0 {
		t.Fatalf("expected dedup within 30 minutes, got %v", second.HistoryRecorded)
	}

	day := fx.history.daily["2025-03-10"]
	if day.RedshiftQueriesOver != 3 || day.RefreshDelays != 1 {
		t.Fatalf("unexpected daily counters %+v", day)
	}
	if len(fx.history.errors) != 2 {
		t.Fatalf("expected 2 error records, got %d", len(fx.history.errors))
	}
	if fx.history.errors[0].ErrorType != "redshift_queries_over_10min" {
		t.Fatalf("unexpected first error type %q", fx.history.errors[0].ErrorType)
	}
}

func TestMonitorCycleCollectorFailureDegradesToDefault(t *testing.T) {
	fx := newCycleFixture(time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC))
	fx.warehouse = &fakeWarehouse{err: errors.New("connection refused")}
	fx.tickets.err = errors.New("jira unavailable")

	report, err := fx.useCase().Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Snapshot.Redshift.RunningOver != 0 || report.Snapshot.Redshift.ThresholdMinutes != 10 {
		t.Fatalf("expected safe redshift default, got %+v", report.Snapshot.Redshift)
	}
	if report.Flags.QueryBad || report.Flags.TicketBad {
		t.Fatalf("failed collectors must not raise flags, got %+v", report.Flags)
	}
	if !report.Flags.RefreshBad {
		t.Fatalf("expected refresh flag from stale refresh")
	}
	if report.CollectorErrors["queries"] == "" || report.CollectorErrors["tickets"] == "" {
		t.Fatalf("expected collector errors recorded, got %v", report.CollectorErrors)
	}
}

func TestMonitorCycleRefreshFailureIsRefreshBad(t *testing.T) {
	fx := newCycleFixture(time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC))
	fx.warehouse = &fakeWarehouse{}
	fx.refresh.last = nil
	fx.refresh.err = errors.New("timeout")

	report, err := fx.useCase().Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !report.Flags.RefreshBad || report.Snapshot.Refresh.AgeMinutes != nil {
		t.Fatalf("expected unknown refresh to be bad, got %+v / %+v", report.Flags, report.Snapshot.Refresh)
	}
}

func TestMonitorCycleHealthyPublishesWithoutHistory(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC)
	fx := newCycleFixture(now)
	fx.warehouse = &fakeWarehouse{}
	today := now.Add(-30 * time.Minute)
	fx.refresh.last = &today

	report, err := fx.useCase().Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Dispatch.Outcome != valueobject.OutcomeHealthy {
		t.Fatalf("expected healthy, got %+v", report.Dispatch)
	}
	if len(fx.history.errors) != 0 {
		t.Fatalf("expected no history on healthy cycle")
	}
	if len(fx.metrics.published) != 1 || fx.metrics.published[0].Outcome != valueobject.OutcomeHealthy {
		t.Fatalf("expected 1 published cycle metric, got %+v", fx.metrics.published)
	}
	if len(fx.events.events) != 1 || fx.events.events[0].subject != port.SubjectCycleCompleted {
		t.Fatalf("expected cycle completed event, got %+v", fx.events.events)
	}
	if len(fx.notifier.statuses) != 1 {
		t.Fatalf("expected 1 status broadcast, got %d", len(fx.notifier.statuses))
	}

	status := fx.notifier.statuses[0]
	if status.Summary.OverallStatus != "healthy" || len(status.Cards) != 4 {
		t.Fatalf("unexpected status %+v", status.Summary)
	}
	if status.Dispatch.Caption != "✅ No errors detected. Nothing sent." {
		t.Fatalf("unexpected caption %q", status.Dispatch.Caption)
	}
}

func TestMonitorCycleHistoryFailureDoesNotAbort(t *testing.T) {
	fx := newCycleFixture(time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC))
	fx.history.failErr = errors.New("db down")

	report, err := fx.useCase().Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Dispatch.Outcome != valueobject.OutcomeSent {
		t.Fatalf("expected dispatch despite history failure, got %+v", report.Dispatch)
	}
	if len(report.HistoryRecorded) != 0 {
		t.Fatalf("expected nothing recorded")
	}
}

func TestMonitorCycleCancelledContext(t *testing.T) {
	fx := newCycleFixture(time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fx.useCase().Execute(ctx); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
	if fx.delivery.callCount() != 0 {
		t.Fatalf("expected no delivery after cancellation")
	}
}

func TestMonitorCycleDisabledRefreshIsNotAnAnomaly(t *testing.T) {
	fx := newCycleFixture(time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC))
	fx.warehouse = &fakeWarehouse{}
	fx.refreshDisabled = true

	for i := 0; i < 3; i++ {
		report, err := fx.useCase().Execute(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Flags.AnyBad() {
			t.Fatalf("disabled refresh must not raise flags, got %+v", report.Flags)
		}
		if report.Dispatch.Outcome != valueobject.OutcomeHealthy {
			t.Fatalf("expected healthy outcome, got %+v", report.Dispatch)
		}
		fx.now = fx.now.Add(time.Minute)
	}

	if fx.delivery.callCount() != 0 {
		t.Fatalf("expected no delivery, got %d", fx.delivery.callCount())
	}

	status := fx.notifier.statuses[len(fx.notifier.statuses)-1]
	refresh := status.Cards[1]
	if refresh.Kind != valueobject.AnomalyRefresh.String() || !refresh.Disabled || refresh.Bad || refresh.Value != "disabled" {
		t.Fatalf("expected disabled refresh card, got %+v", refresh)
	}
	if status.Cards[0].Disabled {
		t.Fatalf("queries card must stay enabled, got %+v", status.Cards[0])
	}
}

func TestMonitorCycleDeadlineBoundsOnlyCollection(t *testing.T) {
	fx := newCycleFixture(time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC))
	fx.warehouse = blockingWarehouse{}
	fx.delivery.delay = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	report, err := fx.useCase().Execute(ctx)
	if err != nil {
		t.Fatalf("deadline during collection must not abort the cycle: %v", err)
	}
	if report.CollectorErrors["queries"] == "" {
		t.Fatalf("expected queries collector error, got %v", report.CollectorErrors)
	}
	if !report.Flags.RefreshBad || report.Flags.QueryBad {
		t.Fatalf("unexpected flags %+v", report.Flags)
	}
	if report.Dispatch.Outcome != valueobject.OutcomeSent {
		t.Fatalf("expected delivery past the deadline, got %+v", report.Dispatch)
	}
	if len(report.HistoryRecorded) != 1 {
		t.Fatalf("expected refresh recorded after the deadline, got %v", report.HistoryRecorded)
	}
}

func TestMonitorCycleCancellationStopsCollectors(t *testing.T) {
	fx := newCycleFixture(time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC))
	fx.warehouse = blockingWarehouse{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := fx.useCase().Execute(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if fx.delivery.callCount() != 0 {
		t.Fatalf("expected no delivery after cancellation")
	}
	if len(fx.notifier.statuses) != 0 {
		t.Fatalf("expected no status broadcast after cancellation")
	}
}
