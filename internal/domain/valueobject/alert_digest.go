package valueobject

import (
	"encoding/json"
	"math"
	"time"
)

// DigestBucket ширина временного окна дедупликации
const DigestBucket = 15 * time.Minute

// AlertDigest каноническое представление алертящих величин и 15-минутного окна.
// Сравнивается только на равенство.
type AlertDigest string

// digestPayload поля объявлены в алфавитном порядке, поэтому json.Marshal
// дает один и тот же текст для одинаковых величин.
type digestPayload struct {
	Jira  int     `json:"jira"`
	Kpi   float64 `json:"kpi"`
	PbAge *int    `json:"pb_age"`
	Q     int     `json:"q"`
	T     string  `json:"t"`
}

// NewAlertDigest строит дайджест. В дайджест попадают только величины аномалий,
// у которых выставлен флаг; остальные заменяются нейтральными значениями.
func NewAlertDigest(flags AnomalyFlags, snapshot MetricSnapshot, now time.Time, loc *time.Location) AlertDigest {
	payload := digestPayload{
		Kpi: 1.0,
		T:   FloorToBucket(now, loc).Format(time.RFC3339),
	}

	if flags.QueryBad {
		payload.Q = snapshot.Redshift.RunningOver
	}
	if flags.RefreshBad {
		payload.PbAge = snapshot.Refresh.AgeMinutes
	} else {
		zero := 0
		payload.PbAge = &zero
	}
	if flags.TicketBad {
		payload.Jira = snapshot.Tickets.OpenCount
	}
	if flags.KpiBad && snapshot.Kpi.Percentage != nil {
		payload.Kpi = math.Round(*snapshot.Kpi.Percentage*10000) / 10000
	}

	raw, _ := json.Marshal(payload)
	return AlertDigest(raw)
}

// FloorToBucket округляет момент вниз до 15-минутной границы в указанной зоне
func FloorToBucket(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	minute := local.Minute() - local.Minute()%int(DigestBucket/time.Minute)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), minute, 0, 0, loc)
}

// String возвращает строковое представление
func (d AlertDigest) String() string {
	return string(d)
}

// IsZero true для пустого дайджеста
func (d AlertDigest) IsZero() bool {
	return d == ""
}
