package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

const (
	// MaxQueryRows строк с запросами в сообщении
	MaxQueryRows = 5
	// MaxTicketMessageRows строк с задачами в сообщении
	MaxTicketMessageRows = 6

	queryPreviewLen = 120
)

// ComposerConfig параметры оформления сообщения
type ComposerConfig struct {
	Location            *time.Location
	KpiMinPct           float64
	WarehouseConsoleURL string
	JiraFilterURL       string
}

// AlertComposer собирает сообщение по активным аномалиям (Domain Service)
type AlertComposer struct {
	cfg ComposerConfig
}

// NewAlertComposer создает новый AlertComposer
func NewAlertComposer(cfg ComposerConfig) *AlertComposer {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &AlertComposer{cfg: cfg}
}

// Compose формирует сообщение: одна секция на каждую активную аномалию
func (c *AlertComposer) Compose(
	flags valueobject.AnomalyFlags,
	snapshot valueobject.MetricSnapshot,
	now time.Time,
) *entity.AlertMessage {
	msg := &entity.AlertMessage{
		Title:       "🚨 Monitor DW — Errors",
		GeneratedAt: now,
		Footer:      fmt.Sprintf("⏱️ %s • sent automatically", now.In(c.cfg.Location).Format("2006-01-02 15:04")),
	}

	for _, kind := range flags.Active() {
		switch kind {
		case valueobject.AnomalyQueries:
			msg.Sections = append(msg.Sections, c.querySection(snapshot.Redshift))
			if c.cfg.WarehouseConsoleURL != "" {
				msg.Links = append(msg.Links, entity.AlertLink{Label: "Open Redshift console", URL: c.cfg.WarehouseConsoleURL})
			}
		case valueobject.AnomalyRefresh:
			msg.Sections = append(msg.Sections, c.refreshSection(snapshot.Refresh))
		case valueobject.AnomalyTickets:
			msg.Sections = append(msg.Sections, c.ticketSection(snapshot.Tickets))
			if c.cfg.JiraFilterURL != "" {
				msg.Links = append(msg.Links, entity.AlertLink{Label: "Open Jira filter", URL: c.cfg.JiraFilterURL})
			}
		case valueobject.AnomalyKpi:
			msg.Sections = append(msg.Sections, c.kpiSection(snapshot.Kpi))
		}
	}

	kinds := make([]string, 0, len(msg.Sections))
	for _, section := range msg.Sections {
		kinds = append(kinds, section.Kind.String())
	}
	msg.Text = fmt.Sprintf("Monitor DW: %d anomaly(ies) detected (%s)", len(kinds), strings.Join(kinds, ", "))

	return msg
}

// TestMessageTitle заголовок тестового сообщения; текст оператора идет в тело
const TestMessageTitle = "🧪 Monitor DW test message"

// ComposeTest формирует тестовое сообщение без секций
func (c *AlertComposer) ComposeTest(text string, now time.Time) *entity.AlertMessage {
	if strings.TrimSpace(text) == "" {
		text = "✅ Monitor DW test message"
	}
	return &entity.AlertMessage{
		Title:       TestMessageTitle,
		Text:        text,
		GeneratedAt: now,
		Footer:      fmt.Sprintf("⏱️ %s • manual test", now.In(c.cfg.Location).Format("2006-01-02 15:04")),
	}
}

func (c *AlertComposer) querySection(metric valueobject.RedshiftMetric) entity.AlertSection {
	section := entity.AlertSection{
		Kind:    valueobject.AnomalyQueries,
		Title:   fmt.Sprintf("Queries over %d min", metric.ThresholdMinutes),
		Summary: fmt.Sprintf("*Queries over %d min:* %d", metric.ThresholdMinutes, metric.RunningOver),
	}

	for i, sample := range metric.Samples {
		if i == MaxQueryRows {
			break
		}
		section.Rows = append(section.Rows, fmt.Sprintf("• `pid:%d` (%s, %.1fm) — %s",
			sample.PID, sample.User, sample.DurationMinutes, Preview(sample.Query, queryPreviewLen)))
	}

	return section
}

func (c *AlertComposer) refreshSection(metric valueobject.RefreshMetric) entity.AlertSection {
	section := entity.AlertSection{
		Kind:  valueobject.AnomalyRefresh,
		Title: "Power BI refresh",
	}

	if metric.LastRefreshUTC == nil {
		section.Summary = "*Power BI last refresh (UTC):* unknown"
		return section
	}

	section.Summary = fmt.Sprintf("*Power BI last refresh (UTC):* %s UTC",
		metric.LastRefreshUTC.UTC().Format("02/01/2006 15:04:05"))
	if metric.AgeMinutes != nil {
		section.Rows = append(section.Rows, fmt.Sprintf("• %s ago", FormatAge(*metric.AgeMinutes)))
	}

	return section
}

func (c *AlertComposer) ticketSection(metric valueobject.TicketMetric) entity.AlertSection {
	section := entity.AlertSection{
		Kind:    valueobject.AnomalyTickets,
		Title:   "Open tickets (Jira)",
		Summary: fmt.Sprintf("*Open tickets (Jira):* %d", metric.OpenCount),
	}

	for i, ticket := range metric.Rows {
		if i == MaxTicketMessageRows {
			break
		}

		key := ticket.Key
		if ticket.URL != "" {
			key = fmt.Sprintf("<%s|%s>", ticket.URL, ticket.Key)
		}
		assignee := ticket.Assignee
		if assignee == "" {
			assignee = "unassigned"
		}
		section.Rows = append(section.Rows, fmt.Sprintf("• %s %s (%s, %s)",
			key, Preview(ticket.Summary, queryPreviewLen), ticket.Status, assignee))
	}

	return section
}

func (c *AlertComposer) kpiSection(metric valueobject.KpiMetric) entity.AlertSection {
	section := entity.AlertSection{
		Kind:  valueobject.AnomalyKpi,
		Title: "KPI below minimum",
	}
	if metric.Percentage != nil {
		section.Summary = fmt.Sprintf("*KPI below minimum:* %.2f%% < %.2f%%", *metric.Percentage*100, c.cfg.KpiMinPct*100)
	}
	return section
}

// Preview сжимает пробелы и обрезает текст до limit рун
func Preview(text string, limit int) string {
	compact := strings.Join(strings.Fields(text), " ")
	runes := []rune(compact)
	if len(runes) <= limit {
		return compact
	}
	return string(runes[:limit]) + "…"
}

// FormatAge форматирует возраст в минутах как "2h 05m" или "45m"
func FormatAge(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	if minutes < 24*60 {
		return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
	}
	return fmt.Sprintf("%dd %02dh", minutes/(24*60), (minutes%(24*60))/60)
}
