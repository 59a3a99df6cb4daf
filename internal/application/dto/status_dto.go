package dto

import (
	"fmt"
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

// SourceCardDTO карточка одного источника на дашборде
type SourceCardDTO struct {
	Kind   string `json:"kind"`
	Title  string `json:"title"`
	Value  string `json:"value"`
	Detail string `json:"detail,omitempty"`
	Bad    bool   `json:"bad"`
	Error  string `json:"error,omitempty"`

	// Disabled источник не настроен и не оценивается
	Disabled bool `json:"disabled,omitempty"`
}

// DispatchResultDTO результат решения диспетчера
type DispatchResultDTO struct {
	Attempted   bool      `json:"attempted"`
	Success     *bool     `json:"success"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason"`
	Digest      string    `json:"digest,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
	Caption     string    `json:"caption"`
}

// AlertingDTO состояние алертинга для баннера
type AlertingDTO struct {
	WebhookConfigured bool                         `json:"webhook_configured"`
	State             entity.DispatchStateSnapshot `json:"state"`
	Banner            string                       `json:"banner,omitempty"`
}

// StatusSummaryDTO содержит сводную информацию
type StatusSummaryDTO struct {
	AnomalyCount  int    `json:"anomaly_count"`
	AnyBad        bool   `json:"any_bad"`
	OverallStatus string `json:"overall_status"` // "healthy", "critical"
}

// StatusDTO статус последнего цикла
// Используется для передачи через WebSocket и REST
type StatusDTO struct {
	Timestamp       time.Time                  `json:"timestamp"`
	Snapshot        valueobject.MetricSnapshot `json:"snapshot"`
	Flags           valueobject.AnomalyFlags   `json:"flags"`
	Cards           []SourceCardDTO            `json:"cards"`
	Summary         *StatusSummaryDTO          `json:"summary"`
	Dispatch        *DispatchResultDTO         `json:"dispatch,omitempty"`
	Alerting        AlertingDTO                `json:"alerting"`
	Host            *valueobject.HostStats     `json:"host,omitempty"`
	CollectorErrors map[string]string          `json:"collector_errors,omitempty"`
}

// SuspendedBanner текст баннера при разомкнутом circuit breaker
const SuspendedBanner = "🔕 Slack alerts disabled: the webhook was revoked. Send a test with a valid webhook to re-enable."

// NewStatusSummaryDTO вычисляет сводку по флагам
func NewStatusSummaryDTO(flags valueobject.AnomalyFlags) *StatusSummaryDTO {
	summary := &StatusSummaryDTO{
		AnomalyCount:  flags.Count(),
		AnyBad:        flags.AnyBad(),
		OverallStatus: "healthy",
	}
	if summary.AnyBad {
		summary.OverallStatus = "critical"
	}
	return summary
}

// NewAlertingDTO собирает состояние алертинга
func NewAlertingDTO(webhookConfigured bool, state entity.DispatchStateSnapshot) AlertingDTO {
	alerting := AlertingDTO{
		WebhookConfigured: webhookConfigured,
		State:             state,
	}
	if state.AlertsSuspended {
		alerting.Banner = SuspendedBanner
	}
	return alerting
}

// NewSourceCards строит карточки источников в порядке отображения
func NewSourceCards(
	snapshot valueobject.MetricSnapshot,
	flags valueobject.AnomalyFlags,
	kpiMinPct float64,
	collectorErrors map[string]string,
	disabled []valueobject.AnomalyKind,
) []SourceCardDTO {
	queries := SourceCardDTO{
		Kind:  valueobject.AnomalyQueries.String(),
		Title: fmt.Sprintf("Queries over %d min", snapshot.Redshift.ThresholdMinutes),
		Value: fmt.Sprintf("%d", snapshot.Redshift.RunningOver),
		Bad:   flags.QueryBad,
		Error: collectorErrors[valueobject.AnomalyQueries.String()],
	}

	refresh := SourceCardDTO{
		Kind:  valueobject.AnomalyRefresh.String(),
		Title: "Power BI last refresh (UTC)",
		Value: "unknown",
		Bad:   flags.RefreshBad,
		Error: collectorErrors[valueobject.AnomalyRefresh.String()],
	}
	if snapshot.Refresh.LastRefreshUTC != nil {
		refresh.Value = snapshot.Refresh.LastRefreshUTC.UTC().Format("02/01/2006 15:04:05")
	}
	if snapshot.Refresh.AgeMinutes != nil {
		refresh.Detail = fmt.Sprintf("%d min ago", *snapshot.Refresh.AgeMinutes)
	}

	tickets := SourceCardDTO{
		Kind:  valueobject.AnomalyTickets.String(),
		Title: "Open tickets (Jira)",
		Value: fmt.Sprintf("%d", snapshot.Tickets.OpenCount),
		Bad:   flags.TicketBad,
		Error: collectorErrors[valueobject.AnomalyTickets.String()],
	}

	kpi := SourceCardDTO{
		Kind:   valueobject.AnomalyKpi.String(),
		Title:  "KPI",
		Value:  "n/a",
		Detail: fmt.Sprintf("minimum %.0f%%", kpiMinPct*100),
		Bad:    flags.KpiBad,
		Error:  collectorErrors[valueobject.AnomalyKpi.String()],
	}
	if snapshot.Kpi.Percentage != nil {
		kpi.Value = fmt.Sprintf("%.2f%%", *snapshot.Kpi.Percentage*100)
	}

	cards := []SourceCardDTO{queries, refresh, tickets, kpi}
	for i := range cards {
		for _, kind := range disabled {
			if cards[i].Kind == kind.String() {
				cards[i] = disabledCard(cards[i])
			}
		}
	}
	return cards
}

func disabledCard(card SourceCardDTO) SourceCardDTO {
	return SourceCardDTO{
		Kind:     card.Kind,
		Title:    card.Title,
		Value:    "disabled",
		Detail:   "source is not configured",
		Disabled: true,
	}
}

// CaptionFor подпись для результата диспетчера
func CaptionFor(outcome valueobject.DispatchOutcome, reason string) string {
	switch outcome {
	case valueobject.OutcomeHealthy:
		return "✅ No errors detected. Nothing sent."
	case valueobject.OutcomeUnchanged:
		return "🔕 No changes since the last alert. Not resent."
	case valueobject.OutcomeSuspended:
		return "🔕 Slack alerts are suspended. " + reason
	case valueobject.OutcomeSent:
		return "🔔 Slack alert: ok"
	case valueobject.OutcomeFailed:
		return "🔔 Slack alert: failed — " + reason
	default:
		return reason
	}
}
