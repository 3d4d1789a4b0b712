package ops

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTimezone is used when no airport timezone is configured.
const DefaultTimezone = "America/Toronto"

// opsDayStartHour is the local hour an ops day begins on.
const opsDayStartHour = 3

// LoadLocation resolves the airport timezone, defaulting to DefaultTimezone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	return time.LoadLocation(name)
}

// OpsDay identifies an operational day by its local calendar date. The day
// runs from local 03:00 through 02:59:59.999 the following calendar day.
type OpsDay struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the ops day containing instant t in location loc. A local
// time before 03:00 belongs to the previous calendar day's ops day.
func DayOf(loc *time.Location, t time.Time) OpsDay {
	lt := t.In(loc)
	y, m, d := lt.Date()
	day := OpsDay{y, m, d}
	if lt.Hour() < opsDayStartHour {
		day = day.AddDays(-1)
	}
	return day
}

// AddDays returns the ops day n calendar days away. Uses noon-UTC
// arithmetic purely to normalize month/day overflow; no timezone is
// involved at this step.
func (d OpsDay) AddDays(n int) OpsDay {
	t := time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC)
	y, m, dd := t.Date()
	return OpsDay{y, m, dd}
}

// String renders the ops day as YYYY-MM-DD.
func (d OpsDay) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Bounds returns the ops day's [start, end] instants in UTC: local 03:00
// on the ops day through local 02:59:59.999 the next calendar day.
//
// Go's time.Date resolves a wall-clock tuple against loc directly and
// correctly even across a DST transition, so no iterative fixed-point
// correction is needed here (spec's "up to three iterations" loop is for
// languages without a timezone-aware date constructor; see DESIGN.md).
func (d OpsDay) Bounds(loc *time.Location) (start, end time.Time) {
	start = time.Date(d.Year, d.Month, d.Day, opsDayStartHour, 0, 0, 0, loc).UTC()
	next := d.AddDays(1)
	end = time.Date(next.Year, next.Month, next.Day, opsDayStartHour-1, 59, 59, 999_000_000, loc).UTC()
	return start, end
}

// QueryParams are the optional window overrides accepted by dispatch/lead
// row reads (spec §4.1).
type QueryParams struct {
	FromTime string // HH:MM local, empty for default.
	ToTime   string // HH:MM local, empty for default.
	OpsDay   string // "" or "next".
}

// QueryWindow computes the [start, end] UTC range for a read API call.
func QueryWindow(loc *time.Location, now time.Time, p QueryParams) (start, end time.Time, err error) {
	day := DayOf(loc, now)
	if p.OpsDay == "next" {
		day = day.AddDays(1)
	}
	dayStart, dayEnd := day.Bounds(loc)

	if p.FromTime != "" {
		start, err = clockOnOpsDay(loc, day, p.FromTime)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("fromTime: %w", err)
		}
	} else {
		start = dayStart
		if p.OpsDay != "next" {
			lookback := now.Add(-time.Hour)
			if lookback.After(start) {
				start = lookback
			}
		}
	}

	if p.ToTime != "" {
		end, err = clockOnOpsDay(loc, day, p.ToTime)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("toTime: %w", err)
		}
		end = end.Add(59*time.Second + 999*time.Millisecond)
	} else {
		end = dayEnd
	}

	return start, end, nil
}

// SyncWindow computes the full-coverage window used by the FIDS fetcher and
// the archive job: no lookback cap, and when the local hour is >=12 or <3
// it also pre-loads the following ops day.
func SyncWindow(loc *time.Location, now time.Time) (start, end time.Time) {
	day := DayOf(loc, now)
	start, end = day.Bounds(loc)

	localHour := now.In(loc).Hour()
	if localHour >= 12 || localHour < opsDayStartHour {
		_, nextEnd := day.AddDays(1).Bounds(loc)
		end = nextEnd
	}
	return start, end
}

// clockOnOpsDay resolves an HH:MM local time against the calendar date
// that it falls on within the given ops day: times before 03:00 land on
// the ops day's second calendar day.
func clockOnOpsDay(loc *time.Location, day OpsDay, hhmm string) (time.Time, error) {
	hour, minute, err := parseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}

	date := day
	if hour < opsDayStartHour {
		date = day.AddDays(1)
	}
	return time.Date(date.Year, date.Month, date.Day, hour, minute, 0, 0, loc).UTC(), nil
}

func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
