package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/service"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

type deliveryCall struct {
	url string
	msg *entity.AlertMessage
}

type fakeDelivery struct {
	mu    sync.Mutex
	calls []deliveryCall
	errs  []error
	delay time.Duration
}

func (f *fakeDelivery) Deliver(ctx context.Context, msg *entity.AlertMessage) error {
	return f.DeliverTo(ctx, "", msg)
}

func (f *fakeDelivery) DeliverTo(_ context.Context, url string, msg *entity.AlertMessage) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, deliveryCall{url: url, msg: msg})
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeDelivery) Render(msg *entity.AlertMessage) ([]byte, error) {
	return json.Marshal(map[string]string{"text": msg.Text})
}

func (f *fakeDelivery) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type auditCall struct {
	result  DispatchResult
	payload []byte
}

type fakeAuditor struct {
	mu       sync.Mutex
	records  []auditCall
	breakers []bool
}

func (f *fakeAuditor) RecordDispatch(_ context.Context, result DispatchResult, _ *entity.AlertMessage, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, auditCall{result: result, payload: payload})
}

func (f *fakeAuditor) RecordBreaker(_ context.Context, suspended bool, _ string, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breakers = append(f.breakers, suspended)
}

func newTestDispatcher(delivery *fakeDelivery, auditor DispatchAuditor) (*AlertDispatcher, *entity.DispatchState) {
	state := entity.NewDispatchState()
	composer := service.NewAlertComposer(service.ComposerConfig{Location: time.UTC, KpiMinPct: service.DefaultKpiMinPct})
	dispatcher := NewAlertDispatcher(state, delivery, composer, auditor, AlertDispatcherConfig{
		Location:          time.UTC,
		TestCooldown:      8 * time.Second,
		WebhookConfigured: true,
	}, logger.New("error"))
	return dispatcher, state
}

func queriesSnapshot(runningOver int) valueobject.MetricSnapshot {
	return valueobject.MetricSnapshot{
		Redshift: valueobject.RedshiftMetric{RunningOver: runningOver, ThresholdMinutes: 10},
	}
}

var queriesBad = valueobject.AnomalyFlags{QueryBad: true}

func TestDispatchHealthyMakesNoCall(t *testing.T) {
	delivery := &fakeDelivery{}
	dispatcher, _ := newTestDispatcher(delivery, nil)

	result := dispatcher.Dispatch(context.Background(), valueobject.AnomalyFlags{}, queriesSnapshot(0), time.Now())

	if result.Attempted || result.Success != nil {
		t.Fatalf("expected no attempt, got %+v", result)
	}
	if result.Outcome != valueobject.OutcomeHealthy || result.Reason == "" {
		t.Fatalf("unexpected outcome %+v", result)
	}
	if delivery.callCount() != 0 {
		t.Fatalf("expected no delivery calls")
	}
}

func TestDispatchIdempotentWithinBucket(t *testing.T) {
	delivery := &fakeDelivery{}
	dispatcher, _ := newTestDispatcher(delivery, nil)
	base := time.Date(2025, 3, 10, 14, 1, 0, 0, time.UTC)

	first := dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(2), base)
	second := dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(2), base.Add(10*time.Minute))

	if first.Outcome != valueobject.OutcomeSent || first.Success == nil || !*first.Success {
		t.Fatalf("expected first send to succeed, got %+v", first)
	}
	if second.Outcome != valueobject.OutcomeUnchanged || second.Attempted {
		t.Fatalf("expected unchanged second result, got %+v", second)
	}
	if delivery.callCount() != 1 {
		t.Fatalf("expected exactly 1 call, got %d", delivery.callCount())
	}
}

func TestDispatchDigestSensitivity(t *testing.T) {
	delivery := &fakeDelivery{}
	dispatcher, _ := newTestDispatcher(delivery, nil)
	now := time.Date(2025, 3, 10, 14, 1, 0, 0, time.UTC)

	dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(2), now)
	result := dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(3), now.Add(time.Minute))

	if result.Outcome != valueobject.OutcomeSent {
		t.Fatalf("expected second send, got %+v", result)
	}
	if delivery.callCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", delivery.callCount())
	}
}

func TestDispatchBucketRolloverResends(t *testing.T) {
	delivery := &fakeDelivery{}
	dispatcher, _ := newTestDispatcher(delivery, nil)
	now := time.Date(2025, 3, 10, 14, 14, 0, 0, time.UTC)

	dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(2), now)
	dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(2), now.Add(time.Minute))

	if delivery.callCount() != 2 {
		t.Fatalf("expected resend after bucket rollover, got %d calls", delivery.callCount())
	}
}

func TestDispatchFailedAttemptStillRecordsDigest(t *testing.T) {
	delivery := &fakeDelivery{errs: []error{&port.DeliveryError{Kind: port.DeliveryServerError, StatusCode: 503}}}
	dispatcher, state := newTestDispatcher(delivery, nil)
	now := time.Date(2025, 3, 10, 14, 1, 0, 0, time.UTC)

	first := dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(2), now)
	if first.Outcome != valueobject.OutcomeFailed || first.Success == nil || *first.Success {
		t.Fatalf("expected failed attempt, got %+v", first)
	}
	if first.ErrorKind != port.DeliveryServerError || first.StatusCode != 503 {
		t.Fatalf("expected server error classification, got %+v", first)
	}
	if _, ok := state.LastSentDigest(); !ok {
		t.Fatalf("expected digest recorded after failed attempt")
	}

	second := dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(2), now.Add(time.Minute))
	if second.Outcome != valueobject.OutcomeUnchanged {
		t.Fatalf("expected unchanged after failed attempt, got %+v", second)
	}
	if state.AlertsSuspended() {
		t.Fatalf("server errors must not trip the breaker")
	}
}

func TestDispatchCircuitBreaker(t *testing.T) {
	delivery := &fakeDelivery{errs: []error{&port.DeliveryError{Kind: port.DeliveryWebhookRevoked, StatusCode: 404, Body: "no_service"}}}
	auditor := &fakeAuditor{}
	dispatcher, state := newTestDispatcher(delivery, auditor)
	now := time.Date(2025, 3, 10, 14, 1, 0, 0, time.UTC)

	first := dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(2), now)
	if first.ErrorKind != port.DeliveryWebhookRevoked {
		t.Fatalf("expected revoked classification, got %+v", first)
	}
	if !state.AlertsSuspended() {
		t.Fatalf("expected alerts suspended")
	}

	for i, running := range []int{3, 4, 5} {
		result := dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(running), now.Add(time.Duration(i+1)*20*time.Minute))
		if result.Outcome != valueobject.OutcomeSuspended || result.Attempted {
			t.Fatalf("expected suppressed result, got %+v", result)
		}
		if result.Reason == reasonHealthy {
			t.Fatalf("suppressed reason must differ from healthy reason")
		}
	}
	if delivery.callCount() != 1 {
		t.Fatalf("expected no further calls while suspended, got %d", delivery.callCount())
	}

	dispatcher.Resume(context.Background(), now)
	result := dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(6), now.Add(2*time.Hour))
	if result.Outcome != valueobject.OutcomeSent {
		t.Fatalf("expected send after resume, got %+v", result)
	}

	if len(auditor.breakers) != 2 || !auditor.breakers[0] || auditor.breakers[1] {
		t.Fatalf("unexpected breaker events %v", auditor.breakers)
	}
}

func TestDispatchAuditsEveryDecision(t *testing.T) {
	delivery := &fakeDelivery{}
	auditor := &fakeAuditor{}
	dispatcher, _ := newTestDispatcher(delivery, auditor)
	now := time.Date(2025, 3, 10, 14, 1, 0, 0, time.UTC)

	dispatcher.Dispatch(context.Background(), valueobject.AnomalyFlags{}, queriesSnapshot(0), now)
	dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(1), now)

	if len(auditor.records) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(auditor.records))
	}
	if auditor.records[0].payload != nil {
		t.Fatalf("expected no payload for healthy decision")
	}
	if len(auditor.records[1].payload) == 0 {
		t.Fatalf("expected rendered payload for attempted send")
	}
}

func TestSendTestClearsSuspensionAndSetsCooldown(t *testing.T) {
	delivery := &fakeDelivery{}
	auditor := &fakeAuditor{}
	dispatcher, state := newTestDispatcher(delivery, auditor)
	now := time.Date(2025, 3, 10, 14, 1, 0, 0, time.UTC)
	state.Suspend("webhook revoked", now)

	result := dispatcher.SendTest(context.Background(), "ping", "https://hooks.slack.com/services/T/B/new", now)

	if result.Outcome != valueobject.OutcomeSent || result.Trigger != valueobject.TriggerTest {
		t.Fatalf("unexpected test result %+v", result)
	}
	if state.AlertsSuspended() {
		t.Fatalf("expected successful test to clear suspension")
	}
	if !dispatcher.CoolingDown(now.Add(7*time.Second)) || dispatcher.CoolingDown(now.Add(9*time.Second)) {
		t.Fatalf("expected 8s cooldown after test send")
	}
	if delivery.calls[0].url != "https://hooks.slack.com/services/T/B/new" {
		t.Fatalf("expected override url, got %q", delivery.calls[0].url)
	}
	if _, ok := state.LastSentDigest(); ok {
		t.Fatalf("test send must not touch the digest")
	}
	if len(auditor.breakers) != 1 || auditor.breakers[0] {
		t.Fatalf("expected resume breaker event, got %v", auditor.breakers)
	}
}

func TestSendTestFailureKeepsOrSetsSuspension(t *testing.T) {
	delivery := &fakeDelivery{errs: []error{
		&port.DeliveryError{Kind: port.DeliveryClientError, StatusCode: 400},
		&port.DeliveryError{Kind: port.DeliveryWebhookRevoked, StatusCode: 404},
	}}
	dispatcher, state := newTestDispatcher(delivery, nil)
	now := time.Date(2025, 3, 10, 14, 1, 0, 0, time.UTC)

	result := dispatcher.SendTest(context.Background(), "", "", now)
	if result.Outcome != valueobject.OutcomeFailed || state.AlertsSuspended() {
		t.Fatalf("client error must fail without suspending, got %+v", result)
	}
	if !dispatcher.CoolingDown(now.Add(time.Second)) {
		t.Fatalf("expected cooldown even after failed test")
	}

	dispatcher.SendTest(context.Background(), "", "", now.Add(time.Minute))
	if !state.AlertsSuspended() {
		t.Fatalf("expected revoked test webhook to suspend alerts")
	}
}

func TestDispatchSerializesConcurrentCalls(t *testing.T) {
	delivery := &fakeDelivery{delay: 20 * time.Millisecond}
	dispatcher, _ := newTestDispatcher(delivery, nil)
	now := time.Date(2025, 3, 10, 14, 1, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(2), now)
		}()
	}
	wg.Wait()

	if delivery.callCount() != 1 {
		t.Fatalf("expected exactly 1 call under concurrency, got %d", delivery.callCount())
	}
}

func TestDispatcherStatus(t *testing.T) {
	delivery := &fakeDelivery{}
	dispatcher, _ := newTestDispatcher(delivery, nil)
	now := time.Date(2025, 3, 10, 14, 1, 0, 0, time.UTC)

	if dispatcher.Status().LastResult != nil {
		t.Fatalf("expected no last result initially")
	}

	dispatcher.Dispatch(context.Background(), queriesBad, queriesSnapshot(2), now)
	status := dispatcher.Status()
	if status.LastResult == nil || status.LastResult.Outcome != valueobject.OutcomeSent {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.State.LastSentDigest == "" || !status.WebhookConfigured {
		t.Fatalf("unexpected state %+v", status.State)
	}

	dto := status.LastResult.ToDTO()
	if dto.Caption != "🔔 Slack alert: ok" {
		t.Fatalf("unexpected caption %q", dto.Caption)
	}
}
