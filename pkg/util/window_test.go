package util

import (
	"testing"
	"time"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestWindowStartHourly(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	ts := time.Date(2025, 10, 18, 15, 42, 17, 0, ny)

	got := WindowStart(ts, time.Hour, ny)
	want := time.Date(2025, 10, 18, 15, 0, 0, 0, ny)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if off := WindowOffset(ts, time.Hour, ny); off != 42*time.Minute+17*time.Second {
		t.Fatalf("unexpected offset %v", off)
	}
}

func TestWindowStartHalfHourZone(t *testing.T) {
	kolkata := mustLoc(t, "Asia/Kolkata")
	ts := time.Date(2025, 3, 1, 9, 59, 0, 0, kolkata)

	got := WindowStart(ts, time.Hour, kolkata)
	want := time.Date(2025, 3, 1, 9, 0, 0, 0, kolkata)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestWindowIDFormat(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	cases := []struct {
		start time.Time
		want  string
	}{
		{time.Date(2025, 10, 18, 15, 0, 0, 0, ny), "bitcoin-up-or-down-october-18-3pm-et"},
		{time.Date(2025, 1, 2, 0, 0, 0, 0, ny), "bitcoin-up-or-down-january-2-12am-et"},
		{time.Date(2025, 7, 4, 12, 0, 0, 0, ny), "bitcoin-up-or-down-july-4-12pm-et"},
		// UTC input is rendered on the New York clock
		{time.Date(2025, 10, 18, 19, 0, 0, 0, time.UTC), "bitcoin-up-or-down-october-18-3pm-et"},
		{time.Date(2025, 10, 18, 15, 15, 0, 0, ny), "bitcoin-up-or-down-october-18-3-15pm-et"},
		{time.Date(2025, 10, 18, 0, 5, 0, 0, ny), "bitcoin-up-or-down-october-18-12-05am-et"},
	}
	for _, tc := range cases {
		if got := WindowID("bitcoin", tc.start, ny); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
}

func TestWindowIDQuarterHours(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	seen := make(map[string]bool)
	for ts := time.Date(2025, 10, 18, 15, 0, 0, 0, ny); ts.Hour() < 16; ts = ts.Add(time.Minute) {
		seen[WindowID("bitcoin", WindowStart(ts, 15*time.Minute, ny), ny)] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct ids, got %v", seen)
	}
}

func TestWindowIDRepeatedHour(t *testing.T) {
	ny := mustLoc(t, "America/New_York")
	// 2025-11-02 01:00 EDT and 01:00 EST
	first := time.Date(2025, 11, 2, 5, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	if a, b := WindowStart(first, time.Hour, ny), WindowStart(second, time.Hour, ny); a.Equal(b) {
		t.Fatalf("expected distinct starts, got %v", a)
	}
	if a, b := WindowID("bitcoin", first, ny), WindowID("bitcoin", second, ny); a != b {
		t.Fatalf("expected shared slug, got %q and %q", a, b)
	}
}

func TestPreviousWindows(t *testing.T) {
	start := time.Date(2025, 10, 18, 15, 0, 0, 0, time.UTC)
	got := PreviousWindows(start, time.Hour, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(got))
	}
	if !got[0].Equal(start.Add(-time.Hour)) || !got[2].Equal(start.Add(-3*time.Hour)) {
		t.Fatalf("unexpected windows %v", got)
	}
}
