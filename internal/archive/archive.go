// Package archive implements the nightly move of completed-ops-day
// flights from the live table into the archive table (spec §4.7).
package archive

import (
	"context"
	"fmt"
	"log"
	"time"

	"dispatchd/internal/ops"
	"dispatchd/internal/store"
)

// Runner executes one archive pass against db.
type Runner struct {
	DB  store.DB
	Loc *time.Location
}

// NewRunner returns a Runner.
func NewRunner(db store.DB, loc *time.Location) *Runner {
	return &Runner{DB: db, Loc: loc}
}

// RunOnce archives the ops day that ended just before now (now's ops
// day minus one). Idempotent: deletes any existing archive rows for
// that ops_date before inserting, so a rerun leaves the archive and live
// tables identical to a single run.
func (r *Runner) RunOnce(ctx context.Context, now time.Time) (archived int, err error) {
	completedDay := ops.DayOf(r.Loc, now).AddDays(-1)
	opsDate := completedDay.String()
	start, end := completedDay.Bounds(r.Loc)

	flights, err := r.DB.ListFlightsInRange(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("list flights for archive: %w", err)
	}
	if len(flights) == 0 {
		log.Printf("archive: no flights for ops day %s, nothing to do", opsDate)
		return 0, nil
	}

	if err := r.DB.DeleteArchiveByOpsDate(ctx, opsDate); err != nil {
		return 0, fmt.Errorf("delete existing archive rows for %s: %w", opsDate, err)
	}

	rows := make([]*store.ArchiveRow, 0, len(flights))
	keys := make([]string, 0, len(flights))
	for _, f := range flights {
		data, err := store.MarshalFlight(f)
		if err != nil {
			return 0, fmt.Errorf("marshal flight %s: %w", f.Key(), err)
		}
		rows = append(rows, &store.ArchiveRow{OpsDate: opsDate, ArchivedAt: now, FlightData: data})
		keys = append(keys, f.Key())
	}

	if err := r.DB.InsertArchiveRows(ctx, rows); err != nil {
		return 0, fmt.Errorf("insert archive rows for %s: %w", opsDate, err)
	}
	if err := r.DB.DeleteFlightsByKeys(ctx, keys); err != nil {
		return 0, fmt.Errorf("delete archived flights for %s: %w", opsDate, err)
	}

	log.Printf("archive: moved %d flights for ops day %s", len(flights), opsDate)
	return len(flights), nil
}
