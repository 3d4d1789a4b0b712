// Package fids fetches flight data from the external Flight Information
// Display System provider: segmented, windowed, paged retrieval filtered
// to a watched-airlines set, deduped, and reshaped into the form the
// sync engine consumes.
package fids

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	pageLimit     = 300
	maxPages      = 4
	keptCap       = 500
	segmentLength = 12 * time.Hour
)

// watchedAirlines is the set of carrier codes this service tracks; every
// other carrier is filtered out at ingestion.
var watchedAirlines = map[string]bool{
	"AF": true, "BG": true, "2T": true, "BW": true, "CA": true, "MU": true,
	"HU": true, "AU": true, "DL": true, "LH": true, "EY": true, "BR": true,
	"F8": true, "AZ": true, "KL": true, "PR": true, "PD": true, "S4": true,
	"SV": true, "LX": true, "TK": true, "TS": true, "VS": true, "WS": true,
}

// RawRecord is one flight record as returned by the provider, before any
// filtering or reshaping.
type RawRecord struct {
	Number          string // carrier code + number, as provided.
	SchedLocal      string // ISO-8601, preferred.
	SchedUTC        string // ISO-8601, fallback when SchedLocal is absent.
	RevisedLocal    string // estimated/revised time, local, preferred.
	RevisedUTC      string
	AirportIATA     string // origin (for arrivals) or destination (for departures).
	Terminal        string
	Gate            string
	CodeshareStatus string
}

// RawPage is one page of one 12-hour segment's response.
type RawPage struct {
	Arrivals   []RawRecord
	Departures []RawRecord
}

// Provider is the external FIDS data source. Implementations perform the
// actual HTTP call; HTTPProvider is the production implementation.
type Provider interface {
	FetchPage(ctx context.Context, windowStart, windowEnd time.Time, limit, offset int) (RawPage, error)
}

// Reshaped is one kept, deduped flight record in the shape the sync
// engine consumes (spec §4.3).
type Reshaped struct {
	Type       string // ARR or DEP.
	Flight     string // formatted with a space after the carrier code.
	OriginDest string
	Sched      string // local if available, else UTC.
	Est        string // revised if available, else falls back to Sched.
	Terminal   string
	Gate       string
}

// ErrProviderHTTP marks a transport-level failure from the FIDS
// provider; the caller aborts the current sync run.
type ErrProviderHTTP struct {
	Segment string
	Cause   error
}

func (e *ErrProviderHTTP) Error() string {
	return fmt.Sprintf("fids provider error for segment %s: %v", e.Segment, e.Cause)
}

func (e *ErrProviderHTTP) Unwrap() error { return e.Cause }

// Fetcher retrieves and filters flights over a window.
type Fetcher struct {
	Provider Provider
}

// NewFetcher returns a Fetcher backed by provider.
func NewFetcher(provider Provider) *Fetcher {
	return &Fetcher{Provider: provider}
}

// FetchWindow splits [windowStart, windowEnd) into back-to-back 12-hour
// segments, pages each segment, filters to watched airlines, dedupes,
// drops codeshared records, and reshapes the result.
func (f *Fetcher) FetchWindow(ctx context.Context, windowStart, windowEnd time.Time) (arrivals, departures []Reshaped, err error) {
	var rawArrivals, rawDepartures []RawRecord

	for _, seg := range segments(windowStart, windowEnd) {
		segArr, segDep, err := f.fetchSegment(ctx, seg[0], seg[1])
		if err != nil {
			return nil, nil, err
		}
		rawArrivals = append(rawArrivals, segArr...)
		rawDepartures = append(rawDepartures, segDep...)
	}

	rawArrivals = dedupe(dropCodeshared(rawArrivals))
	rawDepartures = dedupe(dropCodeshared(rawDepartures))

	return reshapeAll("ARR", rawArrivals), reshapeAll("DEP", rawDepartures), nil
}

// segments splits [start, end) into back-to-back spans no longer than
// segmentLength.
func segments(start, end time.Time) [][2]time.Time {
	var out [][2]time.Time
	cur := start
	for cur.Before(end) {
		segEnd := cur.Add(segmentLength)
		if segEnd.After(end) {
			segEnd = end
		}
		out = append(out, [2]time.Time{cur, segEnd})
		cur = segEnd
	}
	return out
}

// fetchSegment pages one 12-hour segment, stopping early per spec §4.3:
// a short page (fewer than limit combined results) or a kept count that
// reaches keptCap.
func (f *Fetcher) fetchSegment(ctx context.Context, segStart, segEnd time.Time) (arrivals, departures []RawRecord, err error) {
	kept := 0
	for page := 0; page < maxPages; page++ {
		raw, err := f.Provider.FetchPage(ctx, segStart, segEnd, pageLimit, page*pageLimit)
		if err != nil {
			return nil, nil, &ErrProviderHTTP{Segment: fmt.Sprintf("%s..%s", segStart, segEnd), Cause: err}
		}

		combined := len(raw.Arrivals) + len(raw.Departures)

		for _, r := range raw.Arrivals {
			if isWatched(r.Number) {
				arrivals = append(arrivals, r)
				kept++
			}
		}
		for _, r := range raw.Departures {
			if isWatched(r.Number) {
				departures = append(departures, r)
				kept++
			}
		}

		if combined < pageLimit || kept >= keptCap {
			break
		}
	}
	return arrivals, departures, nil
}

// isWatched reports whether flightNo's carrier code (the first two
// normalized characters) belongs to watchedAirlines.
func isWatched(flightNo string) bool {
	norm := NormalizeFlightNumber(flightNo)
	if len(norm) < 2 {
		return false
	}
	return watchedAirlines[norm[:2]]
}

// dropCodeshared removes records whose CodeshareStatus contains
// "codeshared" (case-insensitive).
func dropCodeshared(records []RawRecord) []RawRecord {
	out := make([]RawRecord, 0, len(records))
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.CodeshareStatus), "codeshared") {
			continue
		}
		out = append(out, r)
	}
	return out
}

// dedupe drops records sharing a (normalized flight number, scheduled
// time) pair, keeping the first occurrence.
func dedupe(records []RawRecord) []RawRecord {
	seen := make(map[string]bool, len(records))
	out := make([]RawRecord, 0, len(records))
	for _, r := range records {
		key := NormalizeFlightNumber(r.Number) + "|" + schedValue(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func schedValue(r RawRecord) string {
	if r.SchedLocal != "" {
		return r.SchedLocal
	}
	return r.SchedUTC
}

func estValue(r RawRecord) string {
	if r.RevisedLocal != "" {
		return r.RevisedLocal
	}
	if r.RevisedUTC != "" {
		return r.RevisedUTC
	}
	return schedValue(r)
}

func reshapeAll(typ string, records []RawRecord) []Reshaped {
	out := make([]Reshaped, 0, len(records))
	for _, r := range records {
		out = append(out, Reshaped{
			Type:       typ,
			Flight:     FormatFlightNumber(r.Number),
			OriginDest: strings.ToUpper(r.AirportIATA),
			Sched:      schedValue(r),
			Est:        estValue(r),
			Terminal:   r.Terminal,
			Gate:       r.Gate,
		})
	}
	return out
}

// NormalizeFlightNumber uppercases and strips whitespace from a raw
// flight number.
func NormalizeFlightNumber(raw string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
}

// FormatFlightNumber renders a flight number with a space after the
// two-character carrier code, e.g. "WS816" -> "WS 816".
func FormatFlightNumber(raw string) string {
	norm := NormalizeFlightNumber(raw)
	if len(norm) <= 2 {
		return norm
	}
	return norm[:2] + " " + norm[2:]
}
