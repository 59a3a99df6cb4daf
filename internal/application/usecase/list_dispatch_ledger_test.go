package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

type queryLedger struct {
	lastQuery port.DispatchLedgerQuery
	page      port.DispatchLedgerPage
	err       error
}

func (m *queryLedger) PutBatch(_ context.Context, _ []*entity.DispatchRecord) error {
	return nil
}

func (m *queryLedger) List(_ context.Context, query port.DispatchLedgerQuery) (port.DispatchLedgerPage, error) {
	m.lastQuery = query
	return m.page, m.err
}

func TestListDispatchLedgerUseCase_Success(t *testing.T) {
	at := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	record := entity.NewDispatchRecord(
		valueobject.TriggerCycle,
		valueobject.OutcomeSent,
		"delivered",
		valueobject.AlertDigest(`{"q":3}`),
		[]valueobject.AnomalyKind{valueobject.AnomalyQueries},
		at,
	)
	ledger := &queryLedger{page: port.DispatchLedgerPage{Items: []*entity.DispatchRecord{record}, NextCursor: "next"}}
	uc := NewListDispatchLedgerUseCase(ledger, ListDispatchLedgerConfig{}, logger.New("error"))

	page, err := uc.Execute(context.Background(), ListDispatchLedgerCommand{Trigger: " cycle ", Cursor: " abc "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ledger.lastQuery.Limit != 25 || ledger.lastQuery.Trigger != "cycle" || ledger.lastQuery.Cursor != "abc" {
		t.Fatalf("unexpected query %+v", ledger.lastQuery)
	}
	if len(page.Items) != 1 || page.NextCursor != "next" {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Items[0].Outcome != "sent" || page.Items[0].Kinds[0] != "queries" || !page.Items[0].Success {
		t.Fatalf("unexpected item %+v", page.Items[0])
	}
}

func TestListDispatchLedgerUseCase_ValidationAndLimit(t *testing.T) {
	ledger := &queryLedger{}
	uc := NewListDispatchLedgerUseCase(ledger, ListDispatchLedgerConfig{DefaultLimit: 10, MaxLimit: 50}, logger.New("error"))

	if _, err := uc.Execute(context.Background(), ListDispatchLedgerCommand{Trigger: "manual"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid trigger error, got %v", err)
	}

	from := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if _, err := uc.Execute(context.Background(), ListDispatchLedgerCommand{From: from, To: from.Add(-time.Hour)}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid range error, got %v", err)
	}

	if _, err := uc.Execute(context.Background(), ListDispatchLedgerCommand{Limit: 500}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ledger.lastQuery.Limit != 50 {
		t.Fatalf("expected limit clamped to 50, got %d", ledger.lastQuery.Limit)
	}
}

func TestListDispatchLedgerUseCase_Errors(t *testing.T) {
	uc := NewListDispatchLedgerUseCase(nil, ListDispatchLedgerConfig{}, logger.New("error"))
	if _, err := uc.Execute(context.Background(), ListDispatchLedgerCommand{}); !errors.Is(err, ErrLedgerDisabled) {
		t.Fatalf("expected disabled error, got %v", err)
	}

	ledger := &queryLedger{err: errors.New("throttled")}
	uc = NewListDispatchLedgerUseCase(ledger, ListDispatchLedgerConfig{}, logger.New("error"))
	if _, err := uc.Execute(context.Background(), ListDispatchLedgerCommand{}); err == nil {
		t.Fatalf("expected ledger error")
	}
}
