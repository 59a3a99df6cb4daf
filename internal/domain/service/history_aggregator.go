package service

import (
	"errors"
	"sort"

	"github.com/dreschagin/monitor-dw/internal/domain/entity"
	"github.com/dreschagin/monitor-dw/internal/domain/repository"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

// HistoryTotals суммарные счетчики за период
type HistoryTotals struct {
	RedshiftQueriesOver int
	JiraTicketsOpened   int
	RefreshDelays       int
	KpiAnomalies        int
	Days                int
}

// HistoryAggregator предоставляет сервисы агрегации истории (Domain Service)
type HistoryAggregator struct{}

// NewHistoryAggregator создает новый HistoryAggregator
func NewHistoryAggregator() *HistoryAggregator {
	return &HistoryAggregator{}
}

// Totals суммирует дневные сводки
func (a *HistoryAggregator) Totals(summaries []entity.DailySummary) HistoryTotals {
	totals := HistoryTotals{Days: len(summaries)}
	for _, s := range summaries {
		totals.RedshiftQueriesOver += s.RedshiftQueriesOver
		totals.JiraTicketsOpened += s.JiraTicketsOpened
		totals.RefreshDelays += s.RefreshDelays
		totals.KpiAnomalies += s.KpiAnomalies
	}
	return totals
}

// PeakDay находит день с наибольшим числом инцидентов
func (a *HistoryAggregator) PeakDay(summaries []entity.DailySummary) (entity.DailySummary, error) {
	if len(summaries) == 0 {
		return entity.DailySummary{}, errors.New("no summaries to aggregate")
	}

	peak := summaries[0]
	for _, s := range summaries[1:] {
		if s.Total() > peak.Total() || (s.Total() == peak.Total() && s.Date.After(peak.Date)) {
			peak = s
		}
	}
	return peak, nil
}

// SortStats упорядочивает статистику по числу срабатываний, затем по имени
func (a *HistoryAggregator) SortStats(stats []entity.ErrorStat) []entity.ErrorStat {
	sorted := append([]entity.ErrorStat(nil), stats...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Occurrences != sorted[j].Occurrences {
			return sorted[i].Occurrences > sorted[j].Occurrences
		}
		return sorted[i].ErrorType < sorted[j].ErrorType
	})
	return sorted
}

// IncrementFor переводит флаги и снимок в приращение дневной сводки.
// Запросы и задачи учитываются количеством, обновление и KPI фактом аномалии.
func (a *HistoryAggregator) IncrementFor(
	flags valueobject.AnomalyFlags,
	snapshot valueobject.MetricSnapshot,
) repository.DailyIncrement {
	var inc repository.DailyIncrement
	if flags.QueryBad {
		inc.RedshiftQueriesOver = snapshot.Redshift.RunningOver
	}
	if flags.TicketBad {
		inc.JiraTicketsOpened = snapshot.Tickets.OpenCount
	}
	if flags.RefreshBad {
		inc.RefreshDelays = 1
	}
	if flags.KpiBad {
		inc.KpiAnomalies = 1
	}
	return inc
}
