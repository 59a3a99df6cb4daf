package valueobject

import (
	"errors"
	"time"
)

const (
	// DefaultHistoryDays окно истории по умолчанию
	DefaultHistoryDays = 7
	// MaxHistoryDays максимальное окно истории
	MaxHistoryDays = 90
)

// TimeRange представляет временной диапазон (Value Object)
// Иммутабельный объект
type TimeRange struct {
	start time.Time
	end   time.Time
}

// NewTimeRange создает новый TimeRange с валидацией
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if start.IsZero() || end.IsZero() {
		return TimeRange{}, errors.New("start and end times cannot be zero")
	}

	if start.After(end) {
		return TimeRange{}, errors.New("start time must be before end time")
	}

	return TimeRange{
		start: start,
		end:   end,
	}, nil
}

// NewTimeRangeFromDays создает окно в N календарных дней, заканчивающееся в now.
// Начало выравнивается на полночь в зоне now.
func NewTimeRangeFromDays(days int, now time.Time) (TimeRange, error) {
	if days <= 0 {
		return TimeRange{}, errors.New("days must be positive")
	}
	if days > MaxHistoryDays {
		return TimeRange{}, errors.New("days must not exceed 90")
	}

	startDay := now.AddDate(0, 0, -(days - 1))
	start := time.Date(startDay.Year(), startDay.Month(), startDay.Day(), 0, 0, 0, 0, now.Location())

	return NewTimeRange(start, now)
}

// Start возвращает начальное время
func (tr TimeRange) Start() time.Time {
	return tr.start
}

// End возвращает конечное время
func (tr TimeRange) End() time.Time {
	return tr.end
}

// Duration возвращает длительность диапазона
func (tr TimeRange) Duration() time.Duration {
	return tr.end.Sub(tr.start)
}

// Contains проверяет, попадает ли указанное время в диапазон
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.start) && !t.After(tr.end)
}
