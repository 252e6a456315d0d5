package util

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

// WindowStart aligns t down to the start of its fixed-length window.
// Alignment is done on the wall clock of loc so hourly windows start on the
// local hour even in zones with a non-whole-hour UTC offset.
func WindowStart(t time.Time, length time.Duration, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	_, offset := lt.Zone()
	shifted := lt.Add(time.Duration(offset) * time.Second)
	aligned := shifted.Truncate(length)
	return aligned.Add(-time.Duration(offset) * time.Second).In(loc)
}

// WindowOffset is the time elapsed since the window containing t started.
func WindowOffset(t time.Time, length time.Duration, loc *time.Location) time.Duration {
	return t.Sub(WindowStart(t, length, loc))
}

// WindowID derives the market slug for the window starting at start, e.g.
// "bitcoin-up-or-down-october-18-3pm-et". Windows that do not start on the
// hour carry their minute as well ("...-october-18-3-15pm-et").
//
// The slug is wall-clock based, so the two windows of the repeated hour at
// the end of daylight saving time share it. Callers that need a unique key
// pair the slug with the window start.
func WindowID(prefix string, start time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	lt := start.In(loc)

	hour := lt.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	meridiem := "am"
	if lt.Hour() >= 12 {
		meridiem = "pm"
	}

	clock := fmt.Sprintf("%d%s", hour, meridiem)
	if lt.Minute() != 0 {
		clock = fmt.Sprintf("%d-%02d%s", hour, lt.Minute(), meridiem)
	}

	return fmt.Sprintf("%s-up-or-down-%s-%d-%s-%s",
		prefix,
		strings.ToLower(lt.Month().String()),
		lt.Day(),
		clock,
		zoneSuffix(loc),
	)
}

// PreviousWindows returns the starts of the n windows immediately before current, newest first.
func PreviousWindows(current time.Time, length time.Duration, n int) []time.Time {
	out := make([]time.Time, 0, n)
	for k := 1; k <= n; k++ {
		out = append(out, current.Add(-time.Duration(k)*length))
	}
	return out
}

func zoneSuffix(loc *time.Location) string {
	switch loc.String() {
	case "America/New_York":
		return "et"
	case "UTC", "":
		return "utc"
	default:
		name, _ := time.Now().In(loc).Zone()
		return strings.ToLower(name)
	}
}
