package entity

import "time"

// ErrorRecord запись журнала ошибок мониторинга
type ErrorRecord struct {
	ErrorType  string
	Count      int
	Details    string
	OccurredAt time.Time
}

// DailySummary дневная сводка инцидентов
type DailySummary struct {
	Date                time.Time
	RedshiftQueriesOver int
	JiraTicketsOpened   int
	RefreshDelays       int
	KpiAnomalies        int
}

// Total суммарное число инцидентов за день
func (s DailySummary) Total() int {
	return s.RedshiftQueriesOver + s.JiraTicketsOpened + s.RefreshDelays + s.KpiAnomalies
}

// ErrorStat агрегат ошибок одного типа за период
type ErrorStat struct {
	ErrorType   string
	Occurrences int
	TotalCount  int
	LastSeenAt  time.Time
}
