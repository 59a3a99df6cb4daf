package valueobject

// AnomalyFlags результат оценки снимка. Не сохраняется между циклами.
type AnomalyFlags struct {
	QueryBad   bool `json:"query_bad"`
	RefreshBad bool `json:"refresh_bad"`
	TicketBad  bool `json:"ticket_bad"`
	KpiBad     bool `json:"kpi_bad"`
}

// AnyBad true, если хотя бы один флаг выставлен
func (f AnomalyFlags) AnyBad() bool {
	return f.QueryBad || f.RefreshBad || f.TicketBad || f.KpiBad
}

// Has проверяет флаг конкретного типа аномалии
func (f AnomalyFlags) Has(kind AnomalyKind) bool {
	switch kind {
	case AnomalyQueries:
		return f.QueryBad
	case AnomalyRefresh:
		return f.RefreshBad
	case AnomalyTickets:
		return f.TicketBad
	case AnomalyKpi:
		return f.KpiBad
	default:
		return false
	}
}

// Active возвращает активные аномалии в порядке отображения
func (f AnomalyFlags) Active() []AnomalyKind {
	active := make([]AnomalyKind, 0, 4)
	for _, kind := range AllAnomalyKinds() {
		if f.Has(kind) {
			active = append(active, kind)
		}
	}
	return active
}

// Count количество активных аномалий
func (f AnomalyFlags) Count() int {
	return len(f.Active())
}
