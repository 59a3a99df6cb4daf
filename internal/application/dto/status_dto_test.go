package dto

import (
	"testing"
	"time"

	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

func TestNewSourceCardsMarksDisabledSources(t *testing.T) {
	last := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	snapshot := valueobject.MetricSnapshot{
		Redshift: valueobject.RedshiftMetric{RunningOver: 2, ThresholdMinutes: 10},
		Refresh:  valueobject.RefreshMetric{LastRefreshUTC: &last},
	}
	flags := valueobject.AnomalyFlags{QueryBad: true, RefreshBad: true}
	errs := map[string]string{"refresh": "timeout"}

	cards := NewSourceCards(snapshot, flags, 0.1, errs, []valueobject.AnomalyKind{valueobject.AnomalyRefresh})

	if len(cards) != 4 {
		t.Fatalf("expected 4 cards, got %d", len(cards))
	}
	if !cards[0].Bad || cards[0].Disabled {
		t.Errorf("queries card must stay enabled and bad, got %+v", cards[0])
	}

	refresh := cards[1]
	if !refresh.Disabled || refresh.Bad || refresh.Value != "disabled" || refresh.Error != "" {
		t.Errorf("expected disabled refresh card, got %+v", refresh)
	}
	if refresh.Title != "Power BI last refresh (UTC)" {
		t.Errorf("expected title kept, got %q", refresh.Title)
	}
}
