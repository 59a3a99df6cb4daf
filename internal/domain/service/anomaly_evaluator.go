package service

import (
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

const (
	// MinQueryThresholdMinutes нижняя граница настроенного порога запросов.
	// При пороге ниже 10 минут алерты по запросам не выставляются вообще.
	MinQueryThresholdMinutes = 10

	// DefaultKpiMinPct минимальная допустимая доля KPI
	DefaultKpiMinPct = 0.20
)

// AnomalyEvaluator классифицирует снимок метрик (Domain Service)
// Чистые функции без побочных эффектов и без ошибок
type AnomalyEvaluator struct {
	kpiMinPct float64
}

// NewAnomalyEvaluator создает новый AnomalyEvaluator
func NewAnomalyEvaluator(kpiMinPct float64) *AnomalyEvaluator {
	return &AnomalyEvaluator{kpiMinPct: kpiMinPct}
}

// QueryBad true, если есть хотя бы один долгий запрос и порог не ниже 10 минут
func (e *AnomalyEvaluator) QueryBad(runningOver, thresholdMinutes int) bool {
	return runningOver >= 1 && thresholdMinutes >= MinQueryThresholdMinutes
}

// RefreshBad true, если время обновления неизвестно или его UTC-дата отличается от текущей.
// Сравнение по календарному дню, а не по возрасту.
func (e *AnomalyEvaluator) RefreshBad(lastRefreshUTC *time.Time, now time.Time) bool {
	if lastRefreshUTC == nil {
		return true
	}

	ry, rm, rd := lastRefreshUTC.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	return ry != ny || rm != nm || rd != nd
}

// TicketBad true при любой открытой задаче
func (e *AnomalyEvaluator) TicketBad(openCount int) bool {
	return openCount > 0
}

// KpiBad true, если доля известна и ниже минимума. Отсутствие данных не аномалия.
func (e *AnomalyEvaluator) KpiBad(pct *float64, minPct float64) bool {
	return pct != nil && *pct < minPct
}

// Evaluate вычисляет все флаги снимка
func (e *AnomalyEvaluator) Evaluate(snapshot valueobject.MetricSnapshot, now time.Time) valueobject.AnomalyFlags {
	return valueobject.AnomalyFlags{
		QueryBad:   e.QueryBad(snapshot.Redshift.RunningOver, snapshot.Redshift.ThresholdMinutes),
		RefreshBad: e.RefreshBad(snapshot.Refresh.LastRefreshUTC, now),
		TicketBad:  e.TicketBad(snapshot.Tickets.OpenCount),
		KpiBad:     e.KpiBad(snapshot.Kpi.Percentage, e.kpiMinPct),
	}
}

// KpiMinPct возвращает настроенный минимум KPI
func (e *AnomalyEvaluator) KpiMinPct() float64 {
	return e.kpiMinPct
}
