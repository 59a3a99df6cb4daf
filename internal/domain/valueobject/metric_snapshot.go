package valueobject

import "time"

// MaxTicketRows ограничивает число задач, которое хранит снимок Jira.
const MaxTicketRows = 20

// MaxQuerySamples ограничивает число длительных запросов в снимке Redshift.
const MaxQuerySamples = 20

// QuerySample описывает один выполняющийся запрос хранилища
type QuerySample struct {
	PID             int64     `json:"pid"`
	User            string    `json:"user"`
	DurationMinutes float64   `json:"duration_minutes"`
	StartedAt       time.Time `json:"started_at"`
	Query           string    `json:"query"`
}

// RedshiftMetric количество запросов дольше порога
type RedshiftMetric struct {
	RunningOver      int           `json:"running_over"`
	ThresholdMinutes int           `json:"threshold_minutes"`
	Samples          []QuerySample `json:"samples,omitempty"`
}

// RefreshMetric время последнего обновления BI (в UTC) и его возраст.
// Оба поля пустые, если источник недоступен.
type RefreshMetric struct {
	LastRefreshUTC *time.Time `json:"last_refresh_utc"`
	AgeMinutes     *int       `json:"age_minutes"`
}

// NewRefreshMetric вычисляет возраст обновления относительно now.
func NewRefreshMetric(lastRefresh *time.Time, now time.Time) RefreshMetric {
	if lastRefresh == nil {
		return RefreshMetric{}
	}

	ts := lastRefresh.UTC()
	age := int(now.UTC().Sub(ts) / time.Minute)
	if age < 0 {
		age = 0
	}

	return RefreshMetric{LastRefreshUTC: &ts, AgeMinutes: &age}
}

// TicketSummary краткое описание задачи Jira
type TicketSummary struct {
	Key       string    `json:"key"`
	Summary   string    `json:"summary"`
	Status    string    `json:"status"`
	Assignee  string    `json:"assignee"`
	UpdatedAt time.Time `json:"updated_at"`
	URL       string    `json:"url"`
}

// TicketMetric количество открытых задач и ограниченная выборка строк
type TicketMetric struct {
	OpenCount int             `json:"open_count"`
	Rows      []TicketSummary `json:"rows,omitempty"`
}

// NewTicketMetric обрезает выборку до MaxTicketRows.
func NewTicketMetric(openCount int, rows []TicketSummary) TicketMetric {
	if openCount < 0 {
		openCount = 0
	}
	if len(rows) > MaxTicketRows {
		rows = rows[:MaxTicketRows]
	}
	return TicketMetric{OpenCount: openCount, Rows: rows}
}

// KpiMetric доля в диапазоне [0,1]; nil означает отсутствие данных
type KpiMetric struct {
	Percentage *float64 `json:"percentage"`
}

// MetricSnapshot снимок всех источников за один цикл (Value Object)
type MetricSnapshot struct {
	CollectedAt time.Time      `json:"collected_at"`
	Redshift    RedshiftMetric `json:"redshift"`
	Refresh     RefreshMetric  `json:"refresh"`
	Tickets     TicketMetric   `json:"tickets"`
	Kpi         KpiMetric      `json:"kpi"`
}
