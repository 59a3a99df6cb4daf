package valueobject

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %s: %v", value, err)
	}
	return parsed
}

func TestNewTimeRangeValidation(t *testing.T) {
	now := mustParse(t, "2025-03-10T12:00:00Z")

	if _, err := NewTimeRange(now, now.Add(-time.Minute)); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if _, err := NewTimeRange(time.Time{}, now); err == nil {
		t.Fatalf("expected error for zero start")
	}
}

func TestNewTimeRangeFromDays(t *testing.T) {
	now := mustParse(t, "2025-03-10T12:00:00Z")

	tr, err := NewTimeRangeFromDays(7, now)
	if err != nil {
		t.Fatalf("NewTimeRangeFromDays() error = %v", err)
	}
	if got := tr.Start().Format(time.RFC3339); got != "2025-03-04T00:00:00Z" {
		t.Fatalf("unexpected start %s", got)
	}
	if !tr.Contains(mustParse(t, "2025-03-04T00:00:00Z")) || tr.Contains(mustParse(t, "2025-03-03T23:59:59Z")) {
		t.Fatalf("unexpected Contains behaviour for %s..%s", tr.Start(), tr.End())
	}

	for _, days := range []int{0, -1, MaxHistoryDays + 1} {
		if _, err := NewTimeRangeFromDays(days, now); err == nil {
			t.Fatalf("expected error for days=%d", days)
		}
	}
}
