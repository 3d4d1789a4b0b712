package syncengine

import (
	"testing"
	"time"

	"dispatchd/internal/ack"
	"dispatchd/internal/fids"
	"dispatchd/internal/ops"
	"dispatchd/internal/store"
)

func testLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := ops.LoadLocation("")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return loc
}

// Scenario 1: new flight insertion.
func TestReconcileNewFlightInsertion(t *testing.T) {
	loc := testLoc(t)
	now := time.Date(2025, 2, 25, 11, 35, 0, 0, time.UTC)

	arrivals := []fids.Reshaped{{
		Type: "ARR", Flight: "WS 816", Sched: "2025-02-25T11:30:00Z", Est: "2025-02-25T11:30:00Z",
		OriginDest: "YEG", Terminal: "1", Gate: "B3",
	}}

	inserts, updates := Reconcile(loc, now, arrivals, nil, map[string]*store.Flight{}, nil, nil)
	if len(updates) != 0 {
		t.Fatalf("got %d updates, want 0", len(updates))
	}
	if len(inserts) != 1 {
		t.Fatalf("got %d inserts, want 1", len(inserts))
	}
	f := inserts[0]
	if f.Key() != "2025-02-25|ARR|WS 816|06:30" {
		t.Errorf("key = %q, want 2025-02-25|ARR|WS 816|06:30", f.Key())
	}
	if f.ZoneCurrent != "Pier A" || f.ZonePrevious != "Pier A" {
		t.Errorf("zone_current=%q zone_previous=%q, want both Pier A", f.ZoneCurrent, f.ZonePrevious)
	}
	if f.AlertText != "" {
		t.Errorf("alert_text = %q, want empty", f.AlertText)
	}
	if f.DispatchAck || f.PierAAck || f.TBAck || f.T1Ack || f.UnassignedAck || f.GatesAck {
		t.Error("expected all ACKs 0 on insert")
	}
}

func existingFromScenario1() *store.Flight {
	sched := time.Date(2025, 2, 25, 11, 30, 0, 0, time.UTC)
	return &store.Flight{
		OpsDate: "2025-02-25", Type: "ARR", FlightNo: "WS 816", SchedLocal: "06:30",
		SchedUTC: sched, EstUTC: sched, OriginDest: "YEG", Gate: "B3", Terminal: "1",
		ZoneCurrent: "Pier A", ZonePrevious: "Pier A",
		DispatchAck: true, PierAAck: true,
	}
}

// Scenario 2: gate change with ACK reset.
func TestReconcileGateChangeResetsAcks(t *testing.T) {
	loc := testLoc(t)
	existing := existingFromScenario1()
	now := time.Date(2025, 2, 25, 12, 0, 0, 0, time.UTC)

	arrivals := []fids.Reshaped{{
		Type: "ARR", Flight: "WS 816", Sched: "2025-02-25T11:30:00Z", Est: "2025-02-25T11:30:00Z",
		OriginDest: "YEG", Terminal: "1", Gate: "B20",
	}}
	existingMap := map[string]*store.Flight{existing.Key(): existing}

	_, updates := Reconcile(loc, now, arrivals, nil, existingMap, nil, nil)
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	f := updates[0]
	if !f.GateChanged {
		t.Fatal("expected gate_changed=true")
	}
	if f.GateChgFromGate != "B3" || f.GateChgToGate != "B20" {
		t.Errorf("gate change = %s -> %s, want B3 -> B20", f.GateChgFromGate, f.GateChgToGate)
	}
	if f.GateChgFromZone != "Pier A" || f.GateChgToZone != "Pier A" {
		t.Errorf("gate_chg_from_zone=%q gate_chg_to_zone=%q, want both Pier A", f.GateChgFromZone, f.GateChgToZone)
	}
	if f.ZoneCurrent != "Pier A" {
		t.Errorf("zone_current = %q, want Pier A", f.ZoneCurrent)
	}
	if f.DispatchAck || f.PierAAck {
		t.Error("expected all ACKs reset to 0")
	}
	if f.AlertText != "Gate: B3 -> B20" {
		t.Errorf("alert_text = %q, want %q", f.AlertText, "Gate: B3 -> B20")
	}
}

// Scenario 3: zone change with carry-over and subsequent Lead ACK.
func TestReconcileZoneChangeCarryOverAndAck(t *testing.T) {
	loc := testLoc(t)
	existing := existingFromScenario1()
	existing.ZoneCurrent = "TB"
	existing.PierAAck = false
	existing.TBAck = false
	existing.ZonePrev = ""
	existing.Gate = "A10" // TB gate, matches the "existing zone TB" premise

	now := time.Date(2025, 2, 25, 12, 0, 0, 0, time.UTC)
	arrivals := []fids.Reshaped{{
		Type: "ARR", Flight: "WS 816", Sched: "2025-02-25T11:30:00Z", Est: "2025-02-25T11:30:00Z",
		OriginDest: "YEG", Terminal: "1", Gate: "B3",
	}}
	existingMap := map[string]*store.Flight{existing.Key(): existing}

	_, updates := Reconcile(loc, now, arrivals, nil, existingMap, nil, nil)
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	f := updates[0]
	if f.ZoneCurrent != "Pier A" {
		t.Errorf("zone_current = %q, want Pier A", f.ZoneCurrent)
	}
	if f.ZonePrev != "TB" {
		t.Errorf("zone_prev = %q, want TB", f.ZonePrev)
	}
	if !f.ZoneChanged {
		t.Error("expected zone_changed=true")
	}

	// The old zone's Lead then acknowledges, discharging the carry-over.
	if err := ack.LeadAck(f, "TB", now); err != nil {
		t.Fatalf("LeadAck: %v", err)
	}
	if !f.TBAck {
		t.Error("expected tb_ack=true after Lead ACK")
	}
	if f.ZonePrev != "" {
		t.Errorf("zone_prev = %q after Lead ACK, want empty", f.ZonePrev)
	}
}

// Scenario 4: time change below threshold is ignored.
func TestReconcileTimeChangeBelowThresholdIgnored(t *testing.T) {
	loc := testLoc(t)
	existing := existingFromScenario1()
	now := time.Date(2025, 2, 25, 12, 0, 0, 0, time.UTC)

	arrivals := []fids.Reshaped{{
		Type: "ARR", Flight: "WS 816", Sched: "2025-02-25T11:30:00Z", Est: "2025-02-25T11:45:00Z",
		OriginDest: "YEG", Terminal: "1", Gate: "B3",
	}}
	existingMap := map[string]*store.Flight{existing.Key(): existing}

	_, updates := Reconcile(loc, now, arrivals, nil, existingMap, nil, nil)
	f := updates[0]
	if f.TimeChanged {
		t.Error("expected time_changed to remain false for a 15-minute delta")
	}
	want := time.Date(2025, 2, 25, 11, 45, 0, 0, time.UTC)
	if !f.EstUTC.Equal(want) {
		t.Errorf("est_utc = %v, want %v", f.EstUTC, want)
	}
	if !f.DispatchAck || !f.PierAAck {
		t.Error("expected ACKs untouched (no new change)")
	}
}

// Scenario 5: time change at threshold triggers.
func TestReconcileTimeChangeAtThresholdTriggers(t *testing.T) {
	loc := testLoc(t)
	existing := existingFromScenario1()
	now := time.Date(2025, 2, 25, 12, 0, 0, 0, time.UTC)

	arrivals := []fids.Reshaped{{
		Type: "ARR", Flight: "WS 816", Sched: "2025-02-25T11:30:00Z", Est: "2025-02-25T11:50:00Z",
		OriginDest: "YEG", Terminal: "1", Gate: "B3",
	}}
	existingMap := map[string]*store.Flight{existing.Key(): existing}

	_, updates := Reconcile(loc, now, arrivals, nil, existingMap, nil, nil)
	f := updates[0]
	if !f.TimeChanged {
		t.Fatal("expected time_changed=true")
	}
	if f.TimeDeltaMin != 20 {
		t.Errorf("time_delta_min = %d, want 20", f.TimeDeltaMin)
	}
	wantPrev := time.Date(2025, 2, 25, 11, 30, 0, 0, time.UTC)
	if !f.TimePrevEst.Equal(wantPrev) {
		t.Errorf("time_prev_est = %v, want %v", f.TimePrevEst, wantPrev)
	}
	if f.AlertText != "TimeDelta: 20 min" {
		t.Errorf("alert_text = %q, want %q", f.AlertText, "TimeDelta: 20 min")
	}
	if f.DispatchAck || f.PierAAck {
		t.Error("expected all ACKs reset")
	}
}

func TestBuildAlertTextPurity(t *testing.T) {
	f := &store.Flight{
		GateChanged: true, GateChgFromGate: "B3", GateChgToGate: "B20",
		TimeChanged: true, TimeDeltaMin: 25,
	}
	first := buildAlertText(f)
	second := buildAlertText(f)
	if first != second {
		t.Errorf("alert text not pure: %q vs %q", first, second)
	}
	want := "Gate: B3 -> B20 | TimeDelta: 25 min"
	if first != want {
		t.Errorf("alert text = %q, want %q", first, want)
	}
}

func TestReconcileDropsUnparseableRows(t *testing.T) {
	loc := testLoc(t)
	now := time.Date(2025, 2, 25, 12, 0, 0, 0, time.UTC)
	arrivals := []fids.Reshaped{
		{Type: "ARR", Flight: "", Sched: "2025-02-25T11:30:00Z"},    // no flight number
		{Type: "ARR", Flight: "WS 999", Sched: "not-a-time"},         // unparseable
	}
	inserts, updates := Reconcile(loc, now, arrivals, nil, map[string]*store.Flight{}, nil, nil)
	if len(inserts) != 0 || len(updates) != 0 {
		t.Errorf("expected both rows dropped, got inserts=%d updates=%d", len(inserts), len(updates))
	}
}
