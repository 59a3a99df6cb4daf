package service

import (
	"testing"
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

func TestHistoryTotalsAndPeak(t *testing.T) {
	a := NewHistoryAggregator()
	day := func(d int) time.Time { return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC) }

	summaries := []entity.DailySummary{
		{Date: day(8), RedshiftQueriesOver: 2, RefreshDelays: 1},
		{Date: day(9), JiraTicketsOpened: 5},
		{Date: day(10), RedshiftQueriesOver: 1, JiraTicketsOpened: 3, KpiAnomalies: 1},
	}

	totals := a.Totals(summaries)
	if totals.RedshiftQueriesOver != 3 || totals.JiraTicketsOpened != 8 || totals.RefreshDelays != 1 || totals.KpiAnomalies != 1 || totals.Days != 3 {
		t.Fatalf("unexpected totals %+v", totals)
	}

	peak, err := a.PeakDay(summaries)
	if err != nil {
		t.Fatalf("PeakDay() error = %v", err)
	}
	if !peak.Date.Equal(day(10)) {
		t.Fatalf("expected latest of tied peaks, got %s", peak.Date)
	}

	if _, err := a.PeakDay(nil); err == nil {
		t.Fatalf("expected error on empty input")
	}
}

func TestSortStats(t *testing.T) {
	a := NewHistoryAggregator()
	sorted := a.SortStats([]entity.ErrorStat{
		{ErrorType: "b", Occurrences: 1},
		{ErrorType: "c", Occurrences: 4},
		{ErrorType: "a", Occurrences: 1},
	})

	if sorted[0].ErrorType != "c" || sorted[1].ErrorType != "a" || sorted[2].ErrorType != "b" {
		t.Fatalf("unexpected order %+v", sorted)
	}
}

func TestIncrementFor(t *testing.T) {
	a := NewHistoryAggregator()
	inc := a.IncrementFor(
		valueobject.AnomalyFlags{QueryBad: true, RefreshBad: true},
		valueobject.MetricSnapshot{
			Redshift: valueobject.RedshiftMetric{RunningOver: 3},
			Tickets:  valueobject.TicketMetric{OpenCount: 7},
		},
	)

	if inc.RedshiftQueriesOver != 3 || inc.RefreshDelays != 1 || inc.JiraTicketsOpened != 0 || inc.KpiAnomalies != 0 {
		t.Fatalf("unexpected increment %+v", inc)
	}
	if a.IncrementFor(valueobject.AnomalyFlags{}, valueobject.MetricSnapshot{}).IsZero() != true {
		t.Fatalf("expected zero increment for healthy cycle")
	}
}
