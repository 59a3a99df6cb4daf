package valueobject

import (
	"strings"
	"testing"
	"time"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func intPtr(v int) *int { return &v }

func TestFloorToBucket(t *testing.T) {
	loc := mustLocation(t, "America/Sao_Paulo")

	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{name: "start of bucket", in: time.Date(2025, 3, 10, 14, 0, 0, 0, loc), want: "2025-03-10T14:00:00-03:00"},
		{name: "middle of bucket", in: time.Date(2025, 3, 10, 14, 7, 59, 0, loc), want: "2025-03-10T14:00:00-03:00"},
		{name: "last second", in: time.Date(2025, 3, 10, 14, 44, 59, 999, loc), want: "2025-03-10T14:30:00-03:00"},
		{name: "utc input converted", in: time.Date(2025, 3, 10, 17, 52, 0, 0, time.UTC), want: "2025-03-10T14:45:00-03:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FloorToBucket(tt.in, loc).Format(time.RFC3339)
			if got != tt.want {
				t.Fatalf("FloorToBucket() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAlertDigestStableWithinBucket(t *testing.T) {
	loc := mustLocation(t, "America/Sao_Paulo")
	flags := AnomalyFlags{QueryBad: true}
	snapshot := MetricSnapshot{Redshift: RedshiftMetric{RunningOver: 2, ThresholdMinutes: 10}}

	first := NewAlertDigest(flags, snapshot, time.Date(2025, 3, 10, 14, 1, 0, 0, loc), loc)
	second := NewAlertDigest(flags, snapshot, time.Date(2025, 3, 10, 14, 14, 0, 0, loc), loc)
	if first != second {
		t.Fatalf("expected equal digests, got %s and %s", first, second)
	}

	next := NewAlertDigest(flags, snapshot, time.Date(2025, 3, 10, 14, 15, 0, 0, loc), loc)
	if first == next {
		t.Fatalf("expected bucket rollover to change digest")
	}
}

func TestAlertDigestSensitivity(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 3, 10, 14, 1, 0, 0, loc)
	flags := AnomalyFlags{QueryBad: true}

	two := NewAlertDigest(flags, MetricSnapshot{Redshift: RedshiftMetric{RunningOver: 2}}, now, loc)
	three := NewAlertDigest(flags, MetricSnapshot{Redshift: RedshiftMetric{RunningOver: 3}}, now, loc)
	if two == three {
		t.Fatalf("expected running_over change to alter digest")
	}
}

func TestAlertDigestIgnoresNonAlertingMagnitudes(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 1, 0, 0, time.UTC)
	flags := AnomalyFlags{TicketBad: true}
	pct := 0.5

	a := MetricSnapshot{
		Redshift: RedshiftMetric{RunningOver: 0},
		Refresh:  RefreshMetric{AgeMinutes: intPtr(30)},
		Tickets:  TicketMetric{OpenCount: 4},
	}
	b := MetricSnapshot{
		Redshift: RedshiftMetric{RunningOver: 7},
		Refresh:  RefreshMetric{AgeMinutes: intPtr(90)},
		Tickets:  TicketMetric{OpenCount: 4},
		Kpi:      KpiMetric{Percentage: &pct},
	}

	if NewAlertDigest(flags, a, now, time.UTC) != NewAlertDigest(flags, b, now, time.UTC) {
		t.Fatalf("magnitudes of healthy sources must not affect the digest")
	}
}

func TestAlertDigestCanonicalForm(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 1, 0, 0, time.UTC)
	pct := 0.123456
	flags := AnomalyFlags{QueryBad: true, RefreshBad: true, TicketBad: true, KpiBad: true}
	snapshot := MetricSnapshot{
		Redshift: RedshiftMetric{RunningOver: 3},
		Refresh:  RefreshMetric{AgeMinutes: intPtr(1500)},
		Tickets:  TicketMetric{OpenCount: 2},
		Kpi:      KpiMetric{Percentage: &pct},
	}

	got := NewAlertDigest(flags, snapshot, now, time.UTC).String()
	want := `{"jira":2,"kpi":0.1235,"pb_age":1500,"q":3,"t":"2025-03-10T14:00:00Z"}`
	if got != want {
		t.Fatalf("digest = %s, want %s", got, want)
	}
}

func TestAlertDigestUnknownRefreshAge(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 1, 0, 0, time.UTC)
	got := NewAlertDigest(AnomalyFlags{RefreshBad: true}, MetricSnapshot{}, now, time.UTC).String()
	if !strings.Contains(got, `"pb_age":null`) {
		t.Fatalf("expected null refresh age, got %s", got)
	}
}
