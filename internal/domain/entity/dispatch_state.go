package entity

import (
	"sync"
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

// DispatchState состояние дедупликации и circuit breaker'а отправки алертов.
// Живет в памяти процесса; рестарт сбрасывает состояние.
// Методы безопасны для конкурентного вызова, но последовательность
// "прочитать дайджест, решить, отправить, записать" сериализует вызывающий.
type DispatchState struct {
	mu sync.RWMutex

	lastSentDigest  valueobject.AlertDigest
	lastAttemptAt   time.Time
	alertsSuspended bool
	suspendReason   string
	suspendedAt     time.Time
	suspendUntil    *time.Time
}

// DispatchStateSnapshot копия состояния для отображения
type DispatchStateSnapshot struct {
	LastSentDigest  string     `json:"last_sent_digest,omitempty"`
	LastAttemptAt   *time.Time `json:"last_attempt_at,omitempty"`
	AlertsSuspended bool       `json:"alerts_suspended"`
	SuspendReason   string     `json:"suspend_reason,omitempty"`
	SuspendedAt     *time.Time `json:"suspended_at,omitempty"`
	SuspendUntil    *time.Time `json:"suspend_until,omitempty"`
}

// NewDispatchState создает пустое состояние: дайджеста нет, алерты включены
func NewDispatchState() *DispatchState {
	return &DispatchState{}
}

// LastSentDigest возвращает дайджест последней попытки отправки
func (s *DispatchState) LastSentDigest() (valueobject.AlertDigest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSentDigest, !s.lastSentDigest.IsZero()
}

// RecordAttempt запоминает дайджест после попытки (успешной или нет)
func (s *DispatchState) RecordAttempt(digest valueobject.AlertDigest, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSentDigest = digest
	s.lastAttemptAt = at
}

// AlertsSuspended true, если circuit breaker разомкнут
func (s *DispatchState) AlertsSuspended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alertsSuspended
}

// Suspend размыкает circuit breaker
func (s *DispatchState) Suspend(reason string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertsSuspended = true
	s.suspendReason = reason
	s.suspendedAt = at
}

// Resume замыкает circuit breaker (ручной сброс)
func (s *DispatchState) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertsSuspended = false
	s.suspendReason = ""
	s.suspendedAt = time.Time{}
}

// SetSuspendUntil приостанавливает автоматические циклы до указанного момента
func (s *DispatchState) SetSuspendUntil(until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspendUntil = &until
}

// CoolingDown true, пока действует пауза после ручного теста
func (s *DispatchState) CoolingDown(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suspendUntil != nil && now.Before(*s.suspendUntil)
}

// Reset возвращает состояние к начальному
func (s *DispatchState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSentDigest = ""
	s.lastAttemptAt = time.Time{}
	s.alertsSuspended = false
	s.suspendReason = ""
	s.suspendedAt = time.Time{}
	s.suspendUntil = nil
}

// Snapshot возвращает копию состояния
func (s *DispatchState) Snapshot() DispatchStateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := DispatchStateSnapshot{
		LastSentDigest:  s.lastSentDigest.String(),
		AlertsSuspended: s.alertsSuspended,
		SuspendReason:   s.suspendReason,
	}
	if !s.lastAttemptAt.IsZero() {
		at := s.lastAttemptAt
		snapshot.LastAttemptAt = &at
	}
	if !s.suspendedAt.IsZero() {
		at := s.suspendedAt
		snapshot.SuspendedAt = &at
	}
	if s.suspendUntil != nil {
		until := *s.suspendUntil
		snapshot.SuspendUntil = &until
	}
	return snapshot
}
