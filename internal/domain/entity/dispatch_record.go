package entity

import (
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
	"github.com/google/uuid"
)

// DispatchRecord запись журнала попыток отправки (Aggregate Root)
type DispatchRecord struct {
	id          string
	trigger     valueobject.DispatchTrigger
	outcome     valueobject.DispatchOutcome
	reason      string
	digest      valueobject.AlertDigest
	kinds       []valueobject.AnomalyKind
	errorKind   string
	statusCode  int
	archiveKey  string
	attemptedAt time.Time
}

// NewDispatchRecord создает запись о попытке отправки (Factory Method)
func NewDispatchRecord(
	trigger valueobject.DispatchTrigger,
	outcome valueobject.DispatchOutcome,
	reason string,
	digest valueobject.AlertDigest,
	kinds []valueobject.AnomalyKind,
	attemptedAt time.Time,
) *DispatchRecord {
	return &DispatchRecord{
		id:          uuid.New().String(),
		trigger:     trigger,
		outcome:     outcome,
		reason:      reason,
		digest:      digest,
		kinds:       append([]valueobject.AnomalyKind(nil), kinds...),
		attemptedAt: attemptedAt,
	}
}

// ReconstructDispatchRecord восстанавливает запись из хранилища (для Repository)
func ReconstructDispatchRecord(
	id string,
	trigger valueobject.DispatchTrigger,
	outcome valueobject.DispatchOutcome,
	reason string,
	digest valueobject.AlertDigest,
	kinds []valueobject.AnomalyKind,
	errorKind string,
	statusCode int,
	archiveKey string,
	attemptedAt time.Time,
) *DispatchRecord {
	return &DispatchRecord{
		id:          id,
		trigger:     trigger,
		outcome:     outcome,
		reason:      reason,
		digest:      digest,
		kinds:       kinds,
		errorKind:   errorKind,
		statusCode:  statusCode,
		archiveKey:  archiveKey,
		attemptedAt: attemptedAt,
	}
}

// ID возвращает идентификатор записи
func (r *DispatchRecord) ID() string {
	return r.id
}

// Trigger возвращает источник попытки
func (r *DispatchRecord) Trigger() valueobject.DispatchTrigger {
	return r.trigger
}

// Outcome возвращает итог
func (r *DispatchRecord) Outcome() valueobject.DispatchOutcome {
	return r.outcome
}

// Success true, если доставка прошла
func (r *DispatchRecord) Success() bool {
	return r.outcome == valueobject.OutcomeSent
}

func (r *DispatchRecord) Reason() string {
	return r.reason
}

func (r *DispatchRecord) Digest() valueobject.AlertDigest {
	return r.digest
}

// Kinds возвращает копию списка аномалий
func (r *DispatchRecord) Kinds() []valueobject.AnomalyKind {
	return append([]valueobject.AnomalyKind(nil), r.kinds...)
}

func (r *DispatchRecord) ErrorKind() string {
	return r.errorKind
}

func (r *DispatchRecord) StatusCode() int {
	return r.statusCode
}

func (r *DispatchRecord) ArchiveKey() string {
	return r.archiveKey
}

func (r *DispatchRecord) AttemptedAt() time.Time {
	return r.attemptedAt
}

// SetFailure фиксирует классификацию ошибки доставки
func (r *DispatchRecord) SetFailure(errorKind string, statusCode int) {
	r.errorKind = errorKind
	r.statusCode = statusCode
}

// SetArchiveKey привязывает ключ архива payload'а
func (r *DispatchRecord) SetArchiveKey(key string) {
	r.archiveKey = key
}
