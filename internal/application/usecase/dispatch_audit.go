package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/dto"
	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

// DispatchAuditConfig настройки журнала отправок
type DispatchAuditConfig struct {
	ArchiveKeyPrefix string
	Timeout          time.Duration
}

// BreakerEvent событие смены состояния circuit breaker'а
type BreakerEvent struct {
	Suspended bool      `json:"suspended"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// DispatchAuditTrail раскладывает попытки отправки по журналу (DynamoDB),
// архиву payload'ов (S3), брокеру (NATS), счетчикам (Prometheus) и WebSocket.
// Любая зависимость может быть nil.
type DispatchAuditTrail struct {
	ledger   port.DispatchLedger
	archive  port.AlertArchive
	events   port.EventPublisher
	observer port.DispatchObserver
	notifier port.StatusNotifier
	cfg      DispatchAuditConfig
	logger   *logger.Logger
}

// NewDispatchAuditTrail создает новый audit trail
func NewDispatchAuditTrail(
	ledger port.DispatchLedger,
	archive port.AlertArchive,
	events port.EventPublisher,
	observer port.DispatchObserver,
	notifier port.StatusNotifier,
	cfg DispatchAuditConfig,
	logger *logger.Logger,
) *DispatchAuditTrail {
	cfg.ArchiveKeyPrefix = strings.Trim(strings.TrimSpace(cfg.ArchiveKeyPrefix), "/")
	if cfg.ArchiveKeyPrefix == "" {
		cfg.ArchiveKeyPrefix = "alerts"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &DispatchAuditTrail{
		ledger:   ledger,
		archive:  archive,
		events:   events,
		observer: observer,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// RecordDispatch фиксирует решение диспетчера. Журнал и архив пишутся только для попыток с сетевым вызовом.
func (a *DispatchAuditTrail) RecordDispatch(
	ctx context.Context,
	result DispatchResult,
	msg *entity.AlertMessage,
	payload []byte,
) {
	if a.observer != nil {
		a.observer.ObserveDispatch(string(result.Trigger), string(result.Outcome))
	}

	if !result.Attempted {
		return
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Timeout)
	defer cancel()

	record := entity.NewDispatchRecord(result.Trigger, result.Outcome, result.Reason, result.Digest, msgKinds(msg), result.AttemptedAt)
	if result.ErrorKind != "" || result.StatusCode != 0 {
		record.SetFailure(string(result.ErrorKind), result.StatusCode)
	}

	// 1. Архив payload'а
	if a.archive != nil && len(payload) > 0 {
		key := BuildArchiveKey(a.cfg.ArchiveKeyPrefix, record.ID(), result.AttemptedAt)
		if _, err := a.archive.PutObject(auditCtx, key, "application/json", payload); err != nil {
			a.logger.Error("Failed to archive alert payload", err, "key", key)
		} else {
			record.SetArchiveKey(key)
		}
	}

	// 2. Журнал попыток
	if a.ledger != nil {
		if err := a.ledger.PutBatch(auditCtx, []*entity.DispatchRecord{record}); err != nil {
			a.logger.Error("Failed to write dispatch ledger", err, "id", record.ID())
		}
	}

	event := dto.FromDispatchRecord(record)

	// 3. Событие в брокер
	if a.events != nil {
		if err := a.events.PublishEvent(auditCtx, port.SubjectAlertDispatched, event); err != nil {
			a.logger.Error("Failed to publish dispatch event", err, "id", record.ID())
		}
	}

	// 4. WebSocket
	if a.notifier != nil {
		a.notifier.BroadcastAlert(event)
	}
}

// RecordBreaker фиксирует смену состояния circuit breaker'а
func (a *DispatchAuditTrail) RecordBreaker(ctx context.Context, suspended bool, reason string, at time.Time) {
	if a.observer != nil {
		a.observer.SetAlertsSuspended(suspended)
	}

	if a.events == nil {
		return
	}

	eventCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Timeout)
	defer cancel()

	event := BreakerEvent{Suspended: suspended, Reason: reason, At: at}
	if err := a.events.PublishEvent(eventCtx, port.SubjectBreakerChanged, event); err != nil {
		a.logger.Error("Failed to publish breaker event", err)
	}
}

// BuildArchiveKey строит ключ вида prefix/YYYY/MM/DD/YYYYMMDDTHHMMSSZ_id.json
func BuildArchiveKey(prefix, id string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s_%s.json",
		prefix, at.Year(), int(at.Month()), at.Day(), at.Format("20060102T150405Z"), id)
}

func msgKinds(msg *entity.AlertMessage) []valueobject.AnomalyKind {
	if msg == nil {
		return nil
	}
	return msg.Kinds()
}
