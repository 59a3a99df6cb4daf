package port

import (
	"context"
)

const (
	// SubjectAlertDispatched carries one event per delivery attempt
	SubjectAlertDispatched = "monitor.alerts.dispatched"
	// SubjectCycleCompleted carries one event per monitoring cycle
	SubjectCycleCompleted = "monitor.cycle.completed"
	// SubjectBreakerChanged is emitted when alerting is suspended or resumed
	SubjectBreakerChanged = "monitor.alerts.breaker"
)

// EventPublisher defines the interface for publishing events to a message broker
type EventPublisher interface {
	// PublishEvent publishes an event to the specified subject
	PublishEvent(ctx context.Context, subject string, event interface{}) error

	// Close closes the connection to the message broker
	Close() error
}
