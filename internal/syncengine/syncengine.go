// Package syncengine is the core reconciler: it builds each flight's
// composite key, decides insert vs. diff-update against prior state,
// detects gate/zone/time changes, applies the zone_prev carry-over rule,
// resets ACK flags on new changes, and rebuilds alert_text (spec §4.4).
package syncengine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"dispatchd/internal/ack"
	"dispatchd/internal/fids"
	"dispatchd/internal/store"
	"dispatchd/internal/zone"
)

// timeChangeThresholdMin is the minimum absolute delta, in minutes,
// that counts as a reportable time change.
const timeChangeThresholdMin = 20

// Reconcile diffs a fetched window against existing state and returns
// the rows to insert and the rows to update. Manual fields are never
// touched: every returned *store.Flight for an update is a copy of the
// existing row with only FIDS/derived/ACK columns altered.
func Reconcile(loc *time.Location, now time.Time, arrivals, departures []fids.Reshaped, existing map[string]*store.Flight, overrides map[string]string, usAirports map[string]bool) (inserts, updates []*store.Flight) {
	all := make([]fids.Reshaped, 0, len(arrivals)+len(departures))
	all = append(all, arrivals...)
	all = append(all, departures...)

	for _, r := range all {
		f, isInsert, ok := processRecord(loc, now, r, existing, overrides, usAirports)
		if !ok {
			continue
		}
		if isInsert {
			inserts = append(inserts, f)
		} else {
			updates = append(updates, f)
		}
	}
	return inserts, updates
}

// Key returns the composite identity for a reshaped record, in the same
// form store.Flight.Key() produces. Exposed so callers (e.g. the API
// layer looking up a just-synced row) can compute it without
// re-implementing the local-time projection.
func Key(loc *time.Location, r fids.Reshaped) (key string, ok bool) {
	schedUTC, ok := parseProviderTime(r.Sched, loc)
	if !ok || r.Flight == "" {
		return "", false
	}
	local := schedUTC.In(loc)
	return local.Format("2006-01-02") + "|" + r.Type + "|" + r.Flight + "|" + local.Format("15:04"), true
}

// processRecord drops rows with no flight number or an unparseable
// scheduled time (spec §7's provider_parse handling: skip and continue).
func processRecord(loc *time.Location, now time.Time, r fids.Reshaped, existing map[string]*store.Flight, overrides map[string]string, usAirports map[string]bool) (*store.Flight, bool, bool) {
	if r.Flight == "" {
		return nil, false, false
	}
	schedUTC, ok := parseProviderTime(r.Sched, loc)
	if !ok {
		return nil, false, false
	}
	estUTC, ok := parseProviderTime(r.Est, loc)
	if !ok {
		estUTC = schedUTC
	}

	local := schedUTC.In(loc)
	opsDate := local.Format("2006-01-02")
	hhmm := local.Format("15:04")
	key := opsDate + "|" + r.Type + "|" + r.Flight + "|" + hhmm

	region := zone.RegionLookup(r.OriginDest, usAirports)
	newZone := zone.Classify(r.Type, r.Gate, r.Terminal, region, overrides)

	if ex, found := existing[key]; found {
		f := *ex
		anyNewChange := false

		oldGateNorm := zone.NormalizeGate(ex.Gate)
		newGateNorm := zone.NormalizeGate(r.Gate)
		if oldGateNorm != "" && newGateNorm != "" && oldGateNorm != newGateNorm {
			f.GateChanged = true
			f.GateChgAt = now
			f.GateChgFromGate = ex.Gate
			f.GateChgToGate = r.Gate
			f.GateChgFromZone = ex.ZoneCurrent
			anyNewChange = true
		}

		oldZone := ex.ZoneCurrent
		if oldZone != "" && newZone != "" && oldZone != newZone {
			if ack.CanOverwriteCarryOver(&f) {
				f.ZonePrev = oldZone
			}
			f.ZoneCurrent = newZone
			f.ZoneChanged = true
			f.ZoneChgAt = now
			f.ZoneChgFrom = oldZone
			f.ZoneChgTo = newZone
			anyNewChange = true
		}

		if f.GateChanged {
			f.GateChgToZone = f.ZoneCurrent
		}

		diffMin := int(math.Round(estUTC.Sub(ex.EstUTC).Seconds() / 60))
		if absInt(diffMin) >= timeChangeThresholdMin {
			f.TimePrevEst = ex.EstUTC
			f.TimeChanged = true
			f.TimeDeltaMin = diffMin
			f.TimeChgAt = now
			anyNewChange = true
		}

		if anyNewChange {
			ack.ResetAll(&f)
		}

		f.AlertText = buildAlertText(&f)

		f.FlightNo = r.Flight
		f.SchedUTC = schedUTC
		f.EstUTC = estUTC
		f.OriginDest = r.OriginDest
		f.Gate = r.Gate
		f.Terminal = r.Terminal
		f.UpdatedAt = now

		return &f, false, true
	}

	f := &store.Flight{
		OpsDate: opsDate, Type: r.Type, FlightNo: r.Flight, SchedLocal: hhmm,
		SchedUTC: schedUTC, EstUTC: estUTC, OriginDest: r.OriginDest, Gate: r.Gate, Terminal: r.Terminal,
		ZoneCurrent: newZone, ZonePrevious: newZone,
		CreatedAt: now, UpdatedAt: now,
	}
	return f, true, true
}

// buildAlertText is a pure function of the current change-flag triples;
// re-running it on an unchanged row must produce the same string.
func buildAlertText(f *store.Flight) string {
	var parts []string
	if f.GateChanged && (f.GateChgFromGate != "" || f.GateChgToGate != "") {
		parts = append(parts, fmt.Sprintf("Gate: %s -> %s", f.GateChgFromGate, f.GateChgToGate))
	}
	if f.ZoneChanged && (f.ZoneChgFrom != "" || f.ZoneChgTo != "") {
		parts = append(parts, fmt.Sprintf("Zone: %s -> %s", f.ZoneChgFrom, f.ZoneChgTo))
	}
	if f.TimeChanged {
		parts = append(parts, fmt.Sprintf("TimeDelta: %d min", f.TimeDeltaMin))
	}
	return strings.Join(parts, " | ")
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
