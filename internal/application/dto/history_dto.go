package dto

import (
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/entity"
)

// ErrorStatDTO агрегат ошибок одного типа
type ErrorStatDTO struct {
	ErrorType   string    `json:"error_type"`
	Occurrences int       `json:"occurrences"`
	TotalCount  int       `json:"total_count"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// DailySummaryDTO дневная сводка
type DailySummaryDTO struct {
	Date                string `json:"date"`
	RedshiftQueriesOver int    `json:"redshift_queries_over"`
	JiraTicketsOpened   int    `json:"jira_tickets_opened"`
	RefreshDelays       int    `json:"refresh_delays"`
	KpiAnomalies        int    `json:"kpi_anomalies"`
	Total               int    `json:"total"`
}

// HistoryTotalsDTO итоги за период
type HistoryTotalsDTO struct {
	RedshiftQueriesOver int `json:"redshift_queries_over"`
	JiraTicketsOpened   int `json:"jira_tickets_opened"`
	RefreshDelays       int `json:"refresh_delays"`
	KpiAnomalies        int `json:"kpi_anomalies"`
}

// HistoryDTO история инцидентов за N дней
type HistoryDTO struct {
	Days       int               `json:"days"`
	From       time.Time         `json:"from"`
	To         time.Time         `json:"to"`
	ErrorStats []ErrorStatDTO    `json:"error_stats"`
	Daily      []DailySummaryDTO `json:"daily"`
	Totals     HistoryTotalsDTO  `json:"totals"`
	PeakDay    *DailySummaryDTO  `json:"peak_day,omitempty"`
}

// FromDailySummary конвертирует сводку в DTO
func FromDailySummary(summary entity.DailySummary) DailySummaryDTO {
	return DailySummaryDTO{
		Date:                summary.Date.Format("2006-01-02"),
		RedshiftQueriesOver: summary.RedshiftQueriesOver,
		JiraTicketsOpened:   summary.JiraTicketsOpened,
		RefreshDelays:       summary.RefreshDelays,
		KpiAnomalies:        summary.KpiAnomalies,
		Total:               summary.Total(),
	}
}

// FromErrorStat конвертирует агрегат ошибок в DTO
func FromErrorStat(stat entity.ErrorStat) ErrorStatDTO {
	return ErrorStatDTO{
		ErrorType:   stat.ErrorType,
		Occurrences: stat.Occurrences,
		TotalCount:  stat.TotalCount,
		LastSeenAt:  stat.LastSeenAt,
	}
}
