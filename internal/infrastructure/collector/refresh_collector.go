package collector

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// RefreshCollector читает время последней загрузки материализованного представления BI.
// Реализует port.RefreshCollector
type RefreshCollector struct {
	db    *sql.DB
	query string
}

// NewRefreshCollector создает collector. table и column подставляются в SQL,
// поэтому принимаются только простые идентификаторы.
func NewRefreshCollector(db *sql.DB, table, column string) (*RefreshCollector, error) {
	query, err := buildRefreshQuery(table, column)
	if err != nil {
		return nil, err
	}
	return &RefreshCollector{db: db, query: query}, nil
}

func buildRefreshQuery(table, column string) (string, error) {
	if !identifierPattern.MatchString(table) {
		return "", fmt.Errorf("invalid refresh table %q", table)
	}
	if !identifierPattern.MatchString(column) || strings.Contains(column, ".") {
		return "", fmt.Errorf("invalid refresh column %q", column)
	}

	return fmt.Sprintf(
		"SELECT DATE_TRUNC('minute', MAX(src.%s AT TIME ZONE 'UTC')) FROM %s AS src",
		column, table,
	), nil
}

// CollectRefresh возвращает время обновления в UTC или nil, если записей нет
func (c *RefreshCollector) CollectRefresh(ctx context.Context) (*time.Time, error) {
	var last sql.NullTime
	if err := c.db.QueryRowContext(ctx, c.query).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to read last refresh: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}

	ts := asUTC(last.Time)
	return &ts, nil
}

// asUTC трактует timestamp without time zone как UTC независимо от локации драйвера
func asUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}
