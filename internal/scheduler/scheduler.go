// Package scheduler runs the two declared-schedule jobs this service
// owns: the per-minute FIDS sync and the nightly archive pass (spec §6
// "Cron"). No cron-expression library appears anywhere in the retrieved
// corpus, so the schedule is matched directly against wall-clock UTC
// hour:minute, following the ticker-driven goroutine-with-select idiom
// in billglover-go-adsb-console/main.go's updateFlights/monitorFlights.
package scheduler

import (
	"context"
	"log"
	"time"
)

// archiveTimes are the two UTC hour:minute pairs that cover the local
// 03:30 Toronto anchor across both sides of the DST transition (spec
// §6: "30 7 * * *" and "30 8 * * *").
var archiveTimes = [2][2]int{{7, 30}, {8, 30}}

// SyncFunc runs one FIDS fetch-and-reconcile cycle.
type SyncFunc func(ctx context.Context) (inserted, updated int, err error)

// ArchiveFunc runs one archive pass for the ops day that just ended.
type ArchiveFunc func(ctx context.Context, now time.Time) (archived int, err error)

// Scheduler ticks once a minute, running Sync on every tick (the
// "nominally every minute" FIDS sync) and Archive at each of the declared
// archive times. The archive pass is idempotent, so the run that does not
// land on local 03:30 is harmless.
type Scheduler struct {
	Sync    SyncFunc
	Archive ArchiveFunc
	Clock   func() time.Time

	lastArchiveAt string // "YYYY-MM-DD HH:MM" (UTC) of the last Archive run, guards double-fire within one minute.
}

// New returns a Scheduler. clock defaults to time.Now when nil.
func New(sync SyncFunc, archive ArchiveFunc, clock func() time.Time) *Scheduler {
	if clock == nil {
		clock = time.Now
	}
	return &Scheduler{Sync: sync, Archive: archive, Clock: clock}
}

// Run ticks once a minute until ctx is cancelled. It does not serialize
// overlapping sync runs against each other (spec §5: "concurrent sync
// runs are not serialized by the service itself"); each tick's sync
// runs in its own goroutine so a slow provider round-trip never delays
// the archive check.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.Clock().UTC()

	go func() {
		inserted, updated, err := s.Sync(ctx)
		if err != nil {
			log.Printf("scheduler: sync failed: %v", err)
			return
		}
		log.Printf("scheduler: sync ok, inserted=%d updated=%d", inserted, updated)
	}()

	if !s.dueForArchive(now) {
		return
	}
	s.lastArchiveAt = now.Format("2006-01-02 15:04")

	go func() {
		archived, err := s.Archive(ctx, now)
		if err != nil {
			log.Printf("scheduler: archive failed: %v", err)
			return
		}
		log.Printf("scheduler: archive ok, archived=%d", archived)
	}()
}

func (s *Scheduler) dueForArchive(now time.Time) bool {
	if s.lastArchiveAt == now.Format("2006-01-02 15:04") {
		return false
	}
	for _, hm := range archiveTimes {
		if now.Hour() == hm[0] && now.Minute() == hm[1] {
			return true
		}
	}
	return false
}
