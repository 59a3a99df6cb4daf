package valueobject

// DispatchOutcome итог одного решения диспетчера
type DispatchOutcome string

const (
	OutcomeHealthy   DispatchOutcome = "healthy"
	OutcomeSuspended DispatchOutcome = "suspended"
	OutcomeUnchanged DispatchOutcome = "unchanged"
	OutcomeSent      DispatchOutcome = "sent"
	OutcomeFailed    DispatchOutcome = "failed"
)

// Attempted true для исходов, при которых был сетевой вызов
func (o DispatchOutcome) Attempted() bool {
	return o == OutcomeSent || o == OutcomeFailed
}

// DispatchTrigger источник попытки отправки
type DispatchTrigger string

const (
	TriggerCycle DispatchTrigger = "cycle"
	TriggerTest  DispatchTrigger = "test"
)
