package ops

import (
	"testing"
	"time"
)

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := LoadLocation("")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return loc
}

func TestDayOfBeforeAndAfterStart(t *testing.T) {
	loc := mustLoc(t)

	// 02:59 local on Feb 25 belongs to the Feb 24 ops day.
	before := time.Date(2025, 2, 25, 2, 59, 0, 0, loc)
	if got := DayOf(loc, before); got.String() != "2025-02-24" {
		t.Errorf("DayOf(02:59) = %s, want 2025-02-24", got)
	}

	// 03:00 local on Feb 25 belongs to the Feb 25 ops day.
	after := time.Date(2025, 2, 25, 3, 0, 0, 0, loc)
	if got := DayOf(loc, after); got.String() != "2025-02-25" {
		t.Errorf("DayOf(03:00) = %s, want 2025-02-25", got)
	}
}

func TestOpsDayBounds(t *testing.T) {
	loc := mustLoc(t)
	day := OpsDay{2025, time.February, 24}
	start, end := day.Bounds(loc)

	wantStart := time.Date(2025, 2, 24, 3, 0, 0, 0, loc).UTC()
	if !start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", start, wantStart)
	}

	wantEnd := time.Date(2025, 2, 25, 2, 59, 59, 999_000_000, loc).UTC()
	if !end.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", end, wantEnd)
	}
}

func TestQueryWindowLookbackCap(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 2, 24, 10, 0, 0, 0, loc)

	start, _, err := QueryWindow(loc, now, QueryParams{})
	if err != nil {
		t.Fatalf("QueryWindow: %v", err)
	}
	want := now.Add(-time.Hour).UTC()
	if !start.Equal(want) {
		t.Errorf("start = %v, want lookback-capped %v", start, want)
	}
}

func TestQueryWindowNoCapWhenFromTimeGiven(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 2, 24, 10, 0, 0, 0, loc)

	start, _, err := QueryWindow(loc, now, QueryParams{FromTime: "04:00"})
	if err != nil {
		t.Fatalf("QueryWindow: %v", err)
	}
	want := time.Date(2025, 2, 24, 4, 0, 0, 0, loc).UTC()
	if !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
}

func TestQueryWindowFromTimeBeforeStartRollsToNextCalendarDay(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 2, 24, 10, 0, 0, 0, loc)

	start, _, err := QueryWindow(loc, now, QueryParams{FromTime: "02:00"})
	if err != nil {
		t.Fatalf("QueryWindow: %v", err)
	}
	want := time.Date(2025, 2, 25, 2, 0, 0, 0, loc).UTC()
	if !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
}

func TestQueryWindowToTimeAddsTrailingMillis(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 2, 24, 10, 0, 0, 0, loc)

	_, end, err := QueryWindow(loc, now, QueryParams{ToTime: "12:00"})
	if err != nil {
		t.Fatalf("QueryWindow: %v", err)
	}
	want := time.Date(2025, 2, 24, 12, 0, 59, 999_000_000, loc).UTC()
	if !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}
}

func TestQueryWindowOpsDayNextShiftsAndDropsCap(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2025, 2, 24, 10, 0, 0, 0, loc)

	start, end, err := QueryWindow(loc, now, QueryParams{OpsDay: "next"})
	if err != nil {
		t.Fatalf("QueryWindow: %v", err)
	}
	wantStart := time.Date(2025, 2, 25, 3, 0, 0, 0, loc).UTC()
	if !start.Equal(wantStart) {
		t.Errorf("start = %v, want %v (no lookback cap on next)", start, wantStart)
	}
	wantEnd := time.Date(2025, 2, 26, 2, 59, 59, 999_000_000, loc).UTC()
	if !end.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", end, wantEnd)
	}
}

func TestSyncWindowPreloadsNextOpsDay(t *testing.T) {
	loc := mustLoc(t)

	// Local hour 14 (>=12): should extend through the following ops day.
	afternoon := time.Date(2025, 2, 24, 14, 0, 0, 0, loc)
	_, end := SyncWindow(loc, afternoon)
	wantEnd := time.Date(2025, 2, 26, 2, 59, 59, 999_000_000, loc).UTC()
	if !end.Equal(wantEnd) {
		t.Errorf("afternoon end = %v, want %v", end, wantEnd)
	}

	// Local hour 10 (<12, >=3): no preload, ends at the current ops day's end.
	morning := time.Date(2025, 2, 24, 10, 0, 0, 0, loc)
	_, end = SyncWindow(loc, morning)
	wantEnd = time.Date(2025, 2, 25, 2, 59, 59, 999_000_000, loc).UTC()
	if !end.Equal(wantEnd) {
		t.Errorf("morning end = %v, want %v", end, wantEnd)
	}
}

func TestTimezoneRoundTrip(t *testing.T) {
	loc := mustLoc(t)
	tuples := []struct{ y, mo, d, h, mi int }{
		{2025, 3, 9, 1, 30},   // before spring-forward
		{2025, 3, 9, 4, 0},    // after spring-forward
		{2025, 11, 2, 1, 30},  // before fall-back
		{2025, 11, 2, 4, 0},   // after fall-back
		{2025, 7, 15, 12, 0},  // ordinary summer day
	}
	for _, tup := range tuples {
		local := time.Date(tup.y, time.Month(tup.mo), tup.d, tup.h, tup.mi, 0, 0, loc)
		utc := local.UTC()
		back := utc.In(loc)
		if back.Year() != tup.y || int(back.Month()) != tup.mo || back.Day() != tup.d ||
			back.Hour() != tup.h || back.Minute() != tup.mi {
			t.Errorf("round-trip for %v produced %v", tup, back)
		}
	}
}
