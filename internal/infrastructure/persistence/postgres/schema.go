package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema таблицы журнала инцидентов
const Schema = `
CREATE TABLE IF NOT EXISTS error_counts (
	id          BIGSERIAL PRIMARY KEY,
	error_type  TEXT        NOT NULL,
	count       INTEGER     NOT NULL DEFAULT 1,
	details     TEXT        NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_error_counts_type_time ON error_counts (error_type, occurred_at DESC);

CREATE TABLE IF NOT EXISTS daily_summaries (
	summary_date          DATE    PRIMARY KEY,
	redshift_queries_over INTEGER NOT NULL DEFAULT 0,
	jira_tickets_opened   INTEGER NOT NULL DEFAULT 0,
	refresh_delays        INTEGER NOT NULL DEFAULT 0,
	kpi_anomalies         INTEGER NOT NULL DEFAULT 0
);
`

// EnsureSchema создает таблицы, если их нет
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply history schema: %w", err)
	}
	return nil
}
