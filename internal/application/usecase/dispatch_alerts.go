package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/dto"
	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/service"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

const (
	reasonHealthy   = "no errors detected"
	reasonUnchanged = "unchanged since last alert, not resent"
	reasonDelivered = "delivered"
)

// DispatchResult результат одного решения диспетчера
type DispatchResult struct {
	Attempted   bool
	Success     *bool
	Reason      string
	Outcome     valueobject.DispatchOutcome
	Digest      valueobject.AlertDigest
	ErrorKind   port.DeliveryErrorKind
	StatusCode  int
	Trigger     valueobject.DispatchTrigger
	AttemptedAt time.Time
}

// ToDTO конвертирует результат в DTO
func (r DispatchResult) ToDTO() *dto.DispatchResultDTO {
	return &dto.DispatchResultDTO{
		Attempted:   r.Attempted,
		Success:     r.Success,
		Outcome:     string(r.Outcome),
		Reason:      r.Reason,
		Digest:      r.Digest.String(),
		ErrorKind:   string(r.ErrorKind),
		AttemptedAt: r.AttemptedAt,
		Caption:     dto.CaptionFor(r.Outcome, r.Reason),
	}
}

// DispatchAuditor получает каждую попытку отправки и смену состояния breaker'а.
// Ошибки аудита не влияют на результат диспетчера.
type DispatchAuditor interface {
	RecordDispatch(ctx context.Context, result DispatchResult, msg *entity.AlertMessage, payload []byte)
	RecordBreaker(ctx context.Context, suspended bool, reason string, at time.Time)
}

// AlertDispatcherConfig настройки диспетчера
type AlertDispatcherConfig struct {
	Location          *time.Location
	TestCooldown      time.Duration
	WebhookConfigured bool
}

// DispatchStatus состояние диспетчера для API и баннера
type DispatchStatus struct {
	State             entity.DispatchStateSnapshot
	LastResult        *DispatchResult
	WebhookConfigured bool
}

// AlertDispatcher решает, отправлять ли алерт, и обновляет состояние дедупликации
type AlertDispatcher struct {
	state    *entity.DispatchState
	delivery port.AlertDelivery
	composer *service.AlertComposer
	auditor  DispatchAuditor
	cfg      AlertDispatcherConfig
	logger   *logger.Logger

	// runMu сериализует "прочитать дайджест, решить, отправить, записать дайджест"
	runMu sync.Mutex

	mu         sync.RWMutex
	lastResult *DispatchResult
}

// NewAlertDispatcher создает новый use case. auditor может быть nil.
func NewAlertDispatcher(
	state *entity.DispatchState,
	delivery port.AlertDelivery,
	composer *service.AlertComposer,
	auditor DispatchAuditor,
	cfg AlertDispatcherConfig,
	logger *logger.Logger,
) *AlertDispatcher {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TestCooldown <= 0 {
		cfg.TestCooldown = 8 * time.Second
	}

	return &AlertDispatcher{
		state:    state,
		delivery: delivery,
		composer: composer,
		auditor:  auditor,
		cfg:      cfg,
		logger:   logger,
	}
}

// Dispatch выполняет одно решение по флагам и снимку цикла
func (d *AlertDispatcher) Dispatch(
	ctx context.Context,
	flags valueobject.AnomalyFlags,
	snapshot valueobject.MetricSnapshot,
	now time.Time,
) DispatchResult {
	result, msg := d.decideAndSend(ctx, flags, snapshot, now)
	d.remember(result)

	if d.auditor != nil {
		var payload []byte
		if result.Attempted && msg != nil {
			payload, _ = d.delivery.Render(msg)
		}
		d.auditor.RecordDispatch(ctx, result, msg, payload)
		if result.ErrorKind == port.DeliveryWebhookRevoked {
			d.auditor.RecordBreaker(ctx, true, result.Reason, now)
		}
	}

	return result
}

func (d *AlertDispatcher) decideAndSend(
	ctx context.Context,
	flags valueobject.AnomalyFlags,
	snapshot valueobject.MetricSnapshot,
	now time.Time,
) (DispatchResult, *entity.AlertMessage) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	result := DispatchResult{Trigger: valueobject.TriggerCycle, AttemptedAt: now}

	// 1. Нет аномалий
	if !flags.AnyBad() {
		result.Outcome = valueobject.OutcomeHealthy
		result.Reason = reasonHealthy
		return result, nil
	}

	// 2. Circuit breaker разомкнут
	if d.state.AlertsSuspended() {
		reason := d.state.Snapshot().SuspendReason
		if reason == "" {
			reason = "unknown"
		}
		result.Outcome = valueobject.OutcomeSuspended
		result.Reason = "alerts suspended until manually re-enabled (" + reason + ")"
		return result, nil
	}

	// 3. Дедупликация
	digest := valueobject.NewAlertDigest(flags, snapshot, now, d.cfg.Location)
	result.Digest = digest
	if last, ok := d.state.LastSentDigest(); ok && last == digest {
		result.Outcome = valueobject.OutcomeUnchanged
		result.Reason = reasonUnchanged
		return result, nil
	}

	// 4. Отправка
	msg := d.composer.Compose(flags, snapshot, now)
	err := d.delivery.Deliver(ctx, msg)
	d.state.RecordAttempt(digest, now)

	d.applyDeliveryResult(&result, err, now)

	if err != nil {
		d.logger.Error("Alert delivery failed", err, "digest", digest.String(), "error_kind", string(result.ErrorKind))
	} else {
		d.logger.Info("Alert delivered", "digest", digest.String(), "anomalies", flags.Count())
	}

	return result, msg
}

// SendTest отправляет тестовое сообщение. Успех снимает блокировку алертов,
// отозванный webhook ее выставляет. Автоматические циклы приостанавливаются на TestCooldown.
func (d *AlertDispatcher) SendTest(ctx context.Context, text, webhookOverride string, now time.Time) DispatchResult {
	result, msg, resumed := d.sendTest(ctx, text, webhookOverride, now)
	d.remember(result)

	if d.auditor != nil {
		payload, _ := d.delivery.Render(msg)
		d.auditor.RecordDispatch(ctx, result, msg, payload)
		switch {
		case resumed:
			d.auditor.RecordBreaker(ctx, false, "test message delivered", now)
		case result.ErrorKind == port.DeliveryWebhookRevoked:
			d.auditor.RecordBreaker(ctx, true, result.Reason, now)
		}
	}

	return result
}

func (d *AlertDispatcher) sendTest(
	ctx context.Context,
	text, webhookOverride string,
	now time.Time,
) (DispatchResult, *entity.AlertMessage, bool) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	msg := d.composer.ComposeTest(text, now)

	var err error
	if webhookOverride != "" {
		err = d.delivery.DeliverTo(ctx, webhookOverride, msg)
	} else {
		err = d.delivery.Deliver(ctx, msg)
	}

	d.state.SetSuspendUntil(now.Add(d.cfg.TestCooldown))

	result := DispatchResult{Trigger: valueobject.TriggerTest, AttemptedAt: now}
	wasSuspended := d.state.AlertsSuspended()
	d.applyDeliveryResult(&result, err, now)

	resumed := false
	if err == nil && wasSuspended {
		d.state.Resume()
		resumed = true
		d.logger.Info("Alerts re-enabled after successful test message")
	}
	if err != nil {
		d.logger.Warn("Test message failed", "error_kind", string(result.ErrorKind), "reason", result.Reason)
	}

	return result, msg, resumed
}

// applyDeliveryResult заполняет результат попытки и размыкает breaker на отозванном webhook
func (d *AlertDispatcher) applyDeliveryResult(result *DispatchResult, err error, now time.Time) {
	result.Attempted = true
	success := err == nil
	result.Success = &success

	if success {
		result.Outcome = valueobject.OutcomeSent
		result.Reason = reasonDelivered
		return
	}

	result.Outcome = valueobject.OutcomeFailed
	result.Reason = err.Error()
	if deliveryErr, ok := port.AsDeliveryError(err); ok {
		result.ErrorKind = deliveryErr.Kind
		result.StatusCode = deliveryErr.StatusCode
	}

	if port.IsWebhookRevoked(err) {
		d.state.Suspend("webhook revoked", now)
		d.logger.Warn("Webhook revoked, alerts suspended until a successful test message")
	}
}

// Resume вручную замыкает circuit breaker
func (d *AlertDispatcher) Resume(ctx context.Context, now time.Time) {
	d.runMu.Lock()
	wasSuspended := d.state.AlertsSuspended()
	d.state.Resume()
	d.runMu.Unlock()

	if wasSuspended {
		d.logger.Info("Alerts manually re-enabled")
		if d.auditor != nil {
			d.auditor.RecordBreaker(ctx, false, "manual resume", now)
		}
	}
}

// CoolingDown true, пока действует пауза после ручного теста
func (d *AlertDispatcher) CoolingDown(now time.Time) bool {
	return d.state.CoolingDown(now)
}

// Status возвращает копию состояния и последний результат
func (d *AlertDispatcher) Status() DispatchStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := DispatchStatus{
		State:             d.state.Snapshot(),
		WebhookConfigured: d.cfg.WebhookConfigured,
	}
	if d.lastResult != nil {
		copied := *d.lastResult
		status.LastResult = &copied
	}
	return status
}

func (d *AlertDispatcher) remember(result DispatchResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastResult = &result
}
