package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/dto"
	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

type putCall struct {
	key         string
	contentType string
	body        []byte
}

type mockArchive struct {
	calls []putCall
	err   error
}

func (m *mockArchive) PutObject(_ context.Context, key, contentType string, body []byte) (string, error) {
	m.calls = append(m.calls, putCall{key: key, contentType: contentType, body: body})
	if m.err != nil {
		return "", m.err
	}
	return "https://example.com/" + key, nil
}

type mockLedger struct {
	records []*entity.DispatchRecord
}

func (m *mockLedger) PutBatch(_ context.Context, records []*entity.DispatchRecord) error {
	m.records = append(m.records, records...)
	return nil
}

func (m *mockLedger) List(_ context.Context, _ port.DispatchLedgerQuery) (port.DispatchLedgerPage, error) {
	return port.DispatchLedgerPage{Items: m.records}, nil
}

type publishedEvent struct {
	subject string
	event   interface{}
}

type mockEvents struct {
	events []publishedEvent
}

func (m *mockEvents) PublishEvent(_ context.Context, subject string, event interface{}) error {
	m.events = append(m.events, publishedEvent{subject: subject, event: event})
	return nil
}

func (m *mockEvents) Close() error { return nil }

type mockObserver struct {
	outcomes  []string
	suspended []bool
}

func (m *mockObserver) ObserveDispatch(trigger, outcome string) {
	m.outcomes = append(m.outcomes, trigger+"/"+outcome)
}

func (m *mockObserver) SetAlertsSuspended(suspended bool) {
	m.suspended = append(m.suspended, suspended)
}

type mockNotifier struct {
	statuses []*dto.StatusDTO
	alerts   []*dto.AlertEventDTO
}

func (m *mockNotifier) BroadcastStatus(status *dto.StatusDTO) {
	m.statuses = append(m.statuses, status)
}

func (m *mockNotifier) BroadcastAlert(alert *dto.AlertEventDTO) {
	m.alerts = append(m.alerts, alert)
}

func (m *mockNotifier) ClientCount() int {
	return 1
}

func TestBuildArchiveKey(t *testing.T) {
	at := time.Date(2026, 2, 7, 12, 34, 56, 0, time.FixedZone("BRT", -3*3600))

	got := BuildArchiveKey("alerts", "abc", at)
	if got != "alerts/2026/02/07/20260207T153456Z_abc.json" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestDispatchAuditTrailRecordsAttempt(t *testing.T) {
	archive := &mockArchive{}
	ledger := &mockLedger{}
	events := &mockEvents{}
	observer := &mockObserver{}
	notifier := &mockNotifier{}
	trail := NewDispatchAuditTrail(ledger, archive, events, observer, notifier, DispatchAuditConfig{ArchiveKeyPrefix: "/alerts/"}, logger.New("error"))

	success := false
	result := DispatchResult{
		Attempted:   true,
		Success:     &success,
		Outcome:     valueobject.OutcomeFailed,
		Reason:      "server_error: http 503",
		ErrorKind:   port.DeliveryServerError,
		StatusCode:  503,
		Trigger:     valueobject.TriggerCycle,
		Digest:      valueobject.AlertDigest(`{"q":2}`),
		AttemptedAt: time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC),
	}
	msg := &entity.AlertMessage{Sections: []entity.AlertSection{{Kind: valueobject.AnomalyQueries}}}

	trail.RecordDispatch(context.Background(), result, msg, []byte(`{"text":"x"}`))

	if len(archive.calls) != 1 || !strings.HasPrefix(archive.calls[0].key, "alerts/2026/02/07/20260207T120000Z_") {
		t.Fatalf("unexpected archive calls %+v", archive.calls)
	}
	if archive.calls[0].contentType != "application/json" {
		t.Fatalf("unexpected content type %s", archive.calls[0].contentType)
	}
	if len(ledger.records) != 1 {
		t.Fatalf("expected 1 ledger record, got %d", len(ledger.records))
	}
	record := ledger.records[0]
	if record.ArchiveKey() != archive.calls[0].key || record.ErrorKind() != "server_error" || record.StatusCode() != 503 {
		t.Fatalf("unexpected ledger record %+v", dto.FromDispatchRecord(record))
	}
	if len(record.Kinds()) != 1 || record.Kinds()[0] != valueobject.AnomalyQueries {
		t.Fatalf("unexpected kinds %v", record.Kinds())
	}
	if len(events.events) != 1 || events.events[0].subject != port.SubjectAlertDispatched {
		t.Fatalf("unexpected events %+v", events.events)
	}
	if len(observer.outcomes) != 1 || observer.outcomes[0] != "cycle/failed" {
		t.Fatalf("unexpected observer outcomes %v", observer.outcomes)
	}
	if len(notifier.alerts) != 1 || notifier.alerts[0].Success {
		t.Fatalf("unexpected notifier alerts %+v", notifier.alerts)
	}
}

func TestDispatchAuditTrailSkipsStorageForNonAttempts(t *testing.T) {
	archive := &mockArchive{}
	ledger := &mockLedger{}
	observer := &mockObserver{}
	trail := NewDispatchAuditTrail(ledger, archive, nil, observer, nil, DispatchAuditConfig{}, logger.New("error"))

	trail.RecordDispatch(context.Background(), DispatchResult{
		Outcome: valueobject.OutcomeUnchanged,
		Trigger: valueobject.TriggerCycle,
	}, nil, nil)

	if len(archive.calls) != 0 || len(ledger.records) != 0 {
		t.Fatalf("expected no storage writes for unchanged decision")
	}
	if len(observer.outcomes) != 1 || observer.outcomes[0] != "cycle/unchanged" {
		t.Fatalf("expected outcome counted, got %v", observer.outcomes)
	}
}

func TestDispatchAuditTrailArchiveFailureStillWritesLedger(t *testing.T) {
	archive := &mockArchive{err: errors.New("s3 down")}
	ledger := &mockLedger{}
	trail := NewDispatchAuditTrail(ledger, archive, nil, nil, nil, DispatchAuditConfig{}, logger.New("error"))

	success := true
	trail.RecordDispatch(context.Background(), DispatchResult{
		Attempted:   true,
		Success:     &success,
		Outcome:     valueobject.OutcomeSent,
		Trigger:     valueobject.TriggerTest,
		AttemptedAt: time.Now(),
	}, nil, []byte(`{}`))

	if len(ledger.records) != 1 || ledger.records[0].ArchiveKey() != "" {
		t.Fatalf("expected ledger record without archive key, got %+v", ledger.records)
	}
}

func TestDispatchAuditTrailBreakerEvents(t *testing.T) {
	events := &mockEvents{}
	observer := &mockObserver{}
	trail := NewDispatchAuditTrail(nil, nil, events, observer, nil, DispatchAuditConfig{}, logger.New("error"))

	trail.RecordBreaker(context.Background(), true, "webhook revoked", time.Now())

	if len(events.events) != 1 || events.events[0].subject != port.SubjectBreakerChanged {
		t.Fatalf("unexpected events %+v", events.events)
	}
	event, ok := events.events[0].event.(BreakerEvent)
	if !ok || !event.Suspended {
		t.Fatalf("unexpected breaker event %+v", events.events[0].event)
	}
	if len(observer.suspended) != 1 || !observer.suspended[0] {
		t.Fatalf("unexpected observer state %v", observer.suspended)
	}
}
