package port

import (
	"context"
	"errors"
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/entity"
)

// ErrInvalidCursor курсор поврежден или выдан для других фильтров
var ErrInvalidCursor = errors.New("invalid cursor")

// DispatchLedgerQuery параметры выборки журнала отправок
type DispatchLedgerQuery struct {
	Trigger string
	Limit   int
	Cursor  string
	From    time.Time
	To      time.Time
}

// DispatchLedgerPage страница журнала и курсор следующей страницы
type DispatchLedgerPage struct {
	Items      []*entity.DispatchRecord
	NextCursor string
}

// DispatchLedger хранит журнал попыток отправки алертов
type DispatchLedger interface {
	PutBatch(ctx context.Context, records []*entity.DispatchRecord) error
	List(ctx context.Context, query DispatchLedgerQuery) (DispatchLedgerPage, error)
}
