package archive

import (
	"context"
	"testing"
	"time"

	"dispatchd/internal/ops"
	"dispatchd/internal/store"
)

func openTestDB(t *testing.T) *store.SQLiteDB {
	t.Helper()
	db, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.CreateSchema(context.Background()); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	return db
}

func flightOn(opsDate, flightNo string, estUTC time.Time) *store.Flight {
	return &store.Flight{
		OpsDate: opsDate, Type: "ARR", FlightNo: flightNo, SchedLocal: "06:30",
		SchedUTC: estUTC, EstUTC: estUTC, ZoneCurrent: "Pier A", ZonePrevious: "Pier A",
		CreatedAt: estUTC, UpdatedAt: estUTC,
	}
}

// Scenario 6: nightly archive, including idempotent rerun.
func TestRunOnceArchivesCompletedOpsDayAndIsIdempotent(t *testing.T) {
	loc, err := ops.LoadLocation("")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	db := openTestDB(t)
	ctx := context.Background()

	// Two flights inside ops-day 2025-02-24 (local 03:00 -> 02:59 next day).
	est1 := time.Date(2025, 2, 24, 12, 0, 0, 0, loc).UTC()
	est2 := time.Date(2025, 2, 25, 1, 0, 0, 0, loc).UTC()
	f1 := flightOn("2025-02-24", "WS 100", est1)
	f2 := flightOn("2025-02-24", "WS 200", est2)
	if err := db.InsertFlights(ctx, []*store.Flight{f1, f2}); err != nil {
		t.Fatalf("InsertFlights: %v", err)
	}

	runner := NewRunner(db, loc)
	now := time.Date(2025, 2, 25, 3, 30, 0, 0, loc)

	archived, err := runner.RunOnce(ctx, now)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if archived != 2 {
		t.Fatalf("archived = %d, want 2", archived)
	}

	dates, err := db.ListArchiveDates(ctx)
	if err != nil {
		t.Fatalf("ListArchiveDates: %v", err)
	}
	if len(dates) != 1 || dates[0].OpsDate != "2025-02-24" || dates[0].Flights != 2 {
		t.Fatalf("dates = %+v, want one date 2025-02-24 with 2 flights", dates)
	}

	remaining, err := db.ListFlightsInRange(ctx, est1.Add(-24*time.Hour), est2.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListFlightsInRange: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected live table emptied, got %d rows", len(remaining))
	}

	// Re-running must not duplicate archive rows: insert the flights back
	// into live (as if a retry race reinserted them) and rerun; archive
	// count for the date must remain 2, not 4.
	if err := db.InsertFlights(ctx, []*store.Flight{f1, f2}); err != nil {
		t.Fatalf("re-insert flights: %v", err)
	}
	archived, err = runner.RunOnce(ctx, now)
	if err != nil {
		t.Fatalf("RunOnce (rerun): %v", err)
	}
	if archived != 2 {
		t.Fatalf("rerun archived = %d, want 2", archived)
	}
	dates, err = db.ListArchiveDates(ctx)
	if err != nil {
		t.Fatalf("ListArchiveDates: %v", err)
	}
	if len(dates) != 1 || dates[0].Flights != 2 {
		t.Fatalf("after rerun, dates = %+v, want one date with 2 flights (no duplicates)", dates)
	}
}

func TestRunOnceNoFlightsIsNoop(t *testing.T) {
	loc, err := ops.LoadLocation("")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	db := openTestDB(t)
	runner := NewRunner(db, loc)

	now := time.Date(2025, 2, 25, 3, 30, 0, 0, loc)
	archived, err := runner.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if archived != 0 {
		t.Errorf("archived = %d, want 0", archived)
	}
}
