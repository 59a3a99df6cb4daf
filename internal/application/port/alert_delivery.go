package port

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreschagin/monitor-dw/internal/domain/entity"
)

// DeliveryErrorKind классификация ошибки доставки
type DeliveryErrorKind string

const (
	// DeliveryConfigError URL пустой или не похож на webhook; сети не было
	DeliveryConfigError DeliveryErrorKind = "config_error"
	// DeliveryClientError 4xx, повтор не поможет
	DeliveryClientError DeliveryErrorKind = "client_error"
	// DeliveryWebhookRevoked webhook отозван; размыкает circuit breaker
	DeliveryWebhookRevoked DeliveryErrorKind = "webhook_revoked"
	// DeliveryRateLimited 429 на последней попытке
	DeliveryRateLimited DeliveryErrorKind = "rate_limited"
	// DeliveryServerError 5xx на последней попытке
	DeliveryServerError DeliveryErrorKind = "server_error"
	// DeliveryTransportError таймаут или сетевой сбой на последней попытке
	DeliveryTransportError DeliveryErrorKind = "transport_error"
)

// DeliveryError ошибка доставки алерта
type DeliveryError struct {
	Kind       DeliveryErrorKind
	StatusCode int
	Body       string
	Network    string
	Attempts   int
	Err        error
}

func (e *DeliveryError) Error() string {
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: http %d", msg, e.StatusCode)
	}
	if e.Network != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Network)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// AsDeliveryError извлекает DeliveryError из цепочки
func AsDeliveryError(err error) (*DeliveryError, bool) {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr, true
	}
	return nil, false
}

// IsWebhookRevoked true, если ошибка означает отозванный webhook
func IsWebhookRevoked(err error) bool {
	deliveryErr, ok := AsDeliveryError(err)
	return ok && deliveryErr.Kind == DeliveryWebhookRevoked
}

// AlertDelivery отправляет сообщение во внешний канал (Port)
type AlertDelivery interface {
	// Deliver отправляет на настроенный webhook
	Deliver(ctx context.Context, msg *entity.AlertMessage) error

	// DeliverTo отправляет на явно указанный URL (ручной тест)
	DeliverTo(ctx context.Context, webhookURL string, msg *entity.AlertMessage) error

	// Render возвращает тело запроса, которое будет отправлено
	Render(msg *entity.AlertMessage) ([]byte, error)
}

// DispatchObserver счетчики решений диспетчера (Prometheus)
type DispatchObserver interface {
	ObserveDispatch(trigger, outcome string)
	SetAlertsSuspended(suspended bool)
}
