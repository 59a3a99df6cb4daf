package valueobject

// AnomalyKind представляет тип отслеживаемой аномалии (Value Object)
type AnomalyKind string

const (
	AnomalyQueries AnomalyKind = "queries"
	AnomalyRefresh AnomalyKind = "refresh"
	AnomalyTickets AnomalyKind = "tickets"
	AnomalyKpi     AnomalyKind = "kpi"
)

// String возвращает строковое представление
func (k AnomalyKind) String() string {
	return string(k)
}

// IsValid проверяет валидность типа аномалии
func (k AnomalyKind) IsValid() bool {
	switch k {
	case AnomalyQueries, AnomalyRefresh, AnomalyTickets, AnomalyKpi:
		return true
	default:
		return false
	}
}

// ErrorType возвращает имя типа ошибки для журнала истории.
// Для KPI журнал ведется только в дневной сводке.
func (k AnomalyKind) ErrorType() string {
	switch k {
	case AnomalyQueries:
		return "redshift_queries_over_10min"
	case AnomalyRefresh:
		return "powerbi_refresh_delay"
	case AnomalyTickets:
		return "jira_tickets_opened"
	case AnomalyKpi:
		return "kpi_anomaly"
	default:
		return ""
	}
}

// AllAnomalyKinds возвращает все типы в порядке отображения
func AllAnomalyKinds() []AnomalyKind {
	return []AnomalyKind{AnomalyQueries, AnomalyRefresh, AnomalyTickets, AnomalyKpi}
}
