package postgres

import (
	"database/sql"
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/entity"
)

// dateLayout формат колонки summary_date
const dateLayout = "2006-01-02"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// dayKey дата дня в его собственной зоне. Сводки ведутся по локальной дате.
func dayKey(t time.Time) string {
	return t.Format(dateLayout)
}

// scanErrorStatRow сканирует агрегат error_counts в ErrorStat
func scanErrorStatRow(row rowScanner) (entity.ErrorStat, error) {
	var stat entity.ErrorStat
	var lastSeen sql.NullTime

	if err := row.Scan(&stat.ErrorType, &stat.Occurrences, &stat.TotalCount, &lastSeen); err != nil {
		return entity.ErrorStat{}, err
	}
	if lastSeen.Valid {
		stat.LastSeenAt = lastSeen.Time.UTC()
	}

	return stat, nil
}

// scanDailySummaryRow сканирует строку daily_summaries
func scanDailySummaryRow(row rowScanner) (entity.DailySummary, error) {
	var summary entity.DailySummary
	var date time.Time

	err := row.Scan(
		&date,
		&summary.RedshiftQueriesOver,
		&summary.JiraTicketsOpened,
		&summary.RefreshDelays,
		&summary.KpiAnomalies,
	)
	if err != nil {
		return entity.DailySummary{}, err
	}

	summary.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return summary, nil
}
