package api

import (
	"context"
	"net/http"

	"dispatchd/internal/ops"
	"dispatchd/internal/store"
	"dispatchd/internal/syncengine"
)

// handleAdminSync runs one on-demand FIDS fetch-and-reconcile cycle,
// the same operation the scheduler runs on its own cadence (spec §4.4).
func (s *Server) handleAdminSync(w http.ResponseWriter, r *http.Request) {
	inserted, updated, err := s.runSync(r.Context())
	if err != nil {
		writeError(w, Wrap(KindInternal, "sync failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"inserted": inserted,
		"updated":  updated,
	})
}

// RunSync runs one FIDS fetch-and-reconcile cycle. It is exported so the
// background scheduler (cmd/dispatchd, internal/scheduler) can drive the
// same sync the /admin/sync endpoint triggers on demand.
func (s *Server) RunSync(ctx context.Context) (inserted, updated int, err error) {
	return s.runSync(ctx)
}

func (s *Server) runSync(ctx context.Context) (inserted, updated int, err error) {
	now := s.clock()
	start, end := ops.SyncWindow(s.loc, now)

	existingList, err := s.db.ListFlightsInRange(ctx, start, end)
	if err != nil {
		return 0, 0, err
	}
	existing := make(map[string]*store.Flight, len(existingList))
	for _, f := range existingList {
		existing[f.Key()] = f
	}

	overrides, err := s.db.ListZoneOverrides(ctx)
	if err != nil {
		return 0, 0, err
	}
	usAirports, err := s.db.ListUSAirportCodes(ctx)
	if err != nil {
		return 0, 0, err
	}

	arrivals, departures, err := s.fetcher.FetchWindow(ctx, start, end)
	if err != nil {
		return 0, 0, err
	}

	inserts, updates := syncengine.Reconcile(s.loc, now, arrivals, departures, existing, overrides, usAirports)

	if len(inserts) > 0 {
		if err := s.db.InsertFlights(ctx, inserts); err != nil {
			return 0, 0, err
		}
	}
	if len(updates) > 0 {
		if err := s.db.UpdateFlights(ctx, updates); err != nil {
			return 0, 0, err
		}
	}

	return len(inserts), len(updates), nil
}
