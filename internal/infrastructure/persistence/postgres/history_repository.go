package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/repository"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

// PostgresHistoryRepository реализует repository.HistoryRepository для PostgreSQL
type PostgresHistoryRepository struct {
	db          *sql.DB
	dedupWindow time.Duration
}

// NewPostgresHistoryRepository создает новый PostgreSQL repository
func NewPostgresHistoryRepository(db *sql.DB) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{
		db:          db,
		dedupWindow: repository.ErrorDedupWindow,
	}
}

// RecordError вставляет запись одним запросом: строка пишется, только если
// за окно дедупликации ошибки того же типа не было.
func (r *PostgresHistoryRepository) RecordError(ctx context.Context, record entity.ErrorRecord) (bool, error) {
	if record.ErrorType == "" {
		return false, fmt.Errorf("error type is required")
	}
	if record.Count <= 0 {
		record.Count = 1
	}

	query := `
		INSERT INTO error_counts (error_type, count, details, occurred_at)
		SELECT $1::text, $2::integer, $3::text, $4::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM error_counts
			WHERE error_type = $1::text AND occurred_at > $5::timestamptz
		)
	`

	result, err := r.db.ExecContext(ctx, query,
		record.ErrorType,
		record.Count,
		record.Details,
		record.OccurredAt.UTC(),
		record.OccurredAt.Add(-r.dedupWindow).UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert error record: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return inserted > 0, nil
}

// AddDailyCounters увеличивает счетчики сводки за день (upsert)
func (r *PostgresHistoryRepository) AddDailyCounters(ctx context.Context, day time.Time, inc repository.DailyIncrement) error {
	if inc.IsZero() {
		return nil
	}

	query := `
		INSERT INTO daily_summaries (summary_date, redshift_queries_over, jira_tickets_opened, refresh_delays, kpi_anomalies)
		VALUES ($1::date, $2, $3, $4, $5)
		ON CONFLICT (summary_date) DO UPDATE SET
			redshift_queries_over = daily_summaries.redshift_queries_over + EXCLUDED.redshift_queries_over,
			jira_tickets_opened   = daily_summaries.jira_tickets_opened + EXCLUDED.jira_tickets_opened,
			refresh_delays        = daily_summaries.refresh_delays + EXCLUDED.refresh_delays,
			kpi_anomalies         = daily_summaries.kpi_anomalies + EXCLUDED.kpi_anomalies
	`

	_, err := r.db.ExecContext(ctx, query,
		dayKey(day),
		inc.RedshiftQueriesOver,
		inc.JiraTicketsOpened,
		inc.RefreshDelays,
		inc.KpiAnomalies,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily summary: %w", err)
	}

	return nil
}

// FindErrorStats агрегирует ошибки по типу за диапазон
func (r *PostgresHistoryRepository) FindErrorStats(ctx context.Context, timeRange valueobject.TimeRange) ([]entity.ErrorStat, error) {
	query := `
		SELECT error_type, COUNT(*), COALESCE(SUM(count), 0), MAX(occurred_at)
		FROM error_counts
		WHERE occurred_at BETWEEN $1 AND $2
		GROUP BY error_type
		ORDER BY error_type
	`

	rows, err := r.db.QueryContext(ctx, query, timeRange.Start().UTC(), timeRange.End().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query error stats: %w", err)
	}
	defer rows.Close()

	var stats []entity.ErrorStat
	for rows.Next() {
		stat, err := scanErrorStatRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan error stat row: %w", err)
		}
		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return stats, nil
}

// FindDailySummaries возвращает сводки за диапазон, новые первыми.
// Границы берутся как локальные даты начала и конца диапазона.
func (r *PostgresHistoryRepository) FindDailySummaries(ctx context.Context, timeRange valueobject.TimeRange) ([]entity.DailySummary, error) {
	query := `
		SELECT summary_date, redshift_queries_over, jira_tickets_opened, refresh_delays, kpi_anomalies
		FROM daily_summaries
		WHERE summary_date BETWEEN $1::date AND $2::date
		ORDER BY summary_date DESC
	`

	rows, err := r.db.QueryContext(ctx, query, dayKey(timeRange.Start()), dayKey(timeRange.End()))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily summaries: %w", err)
	}
	defer rows.Close()

	var summaries []entity.DailySummary
	for rows.Next() {
		summary, err := scanDailySummaryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily summary row: %w", err)
		}
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return summaries, nil
}

// DeleteOlderThan удаляет записи журнала старше cutoff. Возвращает число удаленных ошибок.
func (r *PostgresHistoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM error_counts WHERE occurred_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old error records: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM daily_summaries WHERE summary_date < $1::date`, dayKey(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to delete old daily summaries: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}
