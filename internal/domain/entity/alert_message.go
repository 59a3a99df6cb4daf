package entity

import (
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

// AlertSection одна секция сообщения на активную аномалию
type AlertSection struct {
	Kind    valueobject.AnomalyKind
	Title   string
	Summary string
	Rows    []string
}

// AlertLink кнопка со ссылкой
type AlertLink struct {
	Label string
	URL   string
}

// AlertMessage сообщение, независимое от формата канала доставки
type AlertMessage struct {
	Title       string
	Text        string
	GeneratedAt time.Time
	Sections    []AlertSection
	Links       []AlertLink
	Footer      string
}

// HasSection проверяет наличие секции для типа аномалии
func (m *AlertMessage) HasSection(kind valueobject.AnomalyKind) bool {
	for _, section := range m.Sections {
		if section.Kind == kind {
			return true
		}
	}
	return false
}

// Kinds возвращает типы аномалий в сообщении
func (m *AlertMessage) Kinds() []valueobject.AnomalyKind {
	kinds := make([]valueobject.AnomalyKind, 0, len(m.Sections))
	for _, section := range m.Sections {
		kinds = append(kinds, section.Kind)
	}
	return kinds
}
