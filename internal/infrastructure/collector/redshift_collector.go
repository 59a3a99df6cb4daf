package collector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

// stv_recents.duration хранится в микросекундах
const microsPerMinute = 60000000

const runningOverCountQuery = `
	SELECT COUNT(*)
	FROM stv_recents
	WHERE status = 'Running'
	  AND duration > $1
`

const runningOverListQuery = `
	SELECT r.pid, TRIM(r.user_name), r.starttime, r.duration / 60000000.0, TRIM(r.query)
	FROM stv_recents r
	WHERE r.status = 'Running'
	  AND r.duration > $1
	ORDER BY r.duration DESC
	LIMIT $2
`

// RedshiftCollector считает запросы хранилища, выполняющиеся дольше порога.
// Реализует port.WarehouseCollector
type RedshiftCollector struct {
	db        *sql.DB
	listLimit int
}

// NewRedshiftCollector создает collector поверх подключения к Redshift
func NewRedshiftCollector(db *sql.DB, listLimit int) *RedshiftCollector {
	if listLimit <= 0 || listLimit > valueobject.MaxQuerySamples {
		listLimit = valueobject.MaxQuerySamples
	}
	return &RedshiftCollector{db: db, listLimit: listLimit}
}

// CollectQueries возвращает число долгих запросов и самые долгие из них.
// Список читается только если счетчик больше нуля.
func (c *RedshiftCollector) CollectQueries(ctx context.Context, thresholdMinutes int) (valueobject.RedshiftMetric, error) {
	metric := valueobject.RedshiftMetric{ThresholdMinutes: thresholdMinutes}
	limitMicros := thresholdMicros(thresholdMinutes)

	if err := c.db.QueryRowContext(ctx, runningOverCountQuery, limitMicros).Scan(&metric.RunningOver); err != nil {
		return metric, fmt.Errorf("failed to count running queries: %w", err)
	}
	if metric.RunningOver == 0 {
		return metric, nil
	}

	rows, err := c.db.QueryContext(ctx, runningOverListQuery, limitMicros, c.listLimit)
	if err != nil {
		return metric, fmt.Errorf("failed to list running queries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s valueobject.QuerySample
		if err := rows.Scan(&s.PID, &s.User, &s.StartedAt, &s.DurationMinutes, &s.Query); err != nil {
			return metric, fmt.Errorf("failed to scan running query: %w", err)
		}
		s.User = strings.TrimSpace(s.User)
		s.Query = strings.TrimSpace(s.Query)
		metric.Samples = append(metric.Samples, s)
	}

	if err := rows.Err(); err != nil {
		return metric, fmt.Errorf("failed to read running queries: %w", err)
	}

	return metric, nil
}

func thresholdMicros(thresholdMinutes int) int64 {
	if thresholdMinutes < 0 {
		thresholdMinutes = 0
	}
	return int64(thresholdMinutes) * microsPerMinute
}
