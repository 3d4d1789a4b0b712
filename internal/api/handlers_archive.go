package api

import (
	"net/http"

	"dispatchd/internal/store"
)

func (s *Server) handleArchiveDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.db.ListArchiveDates(r.Context())
	if err != nil {
		writeError(w, Wrap(KindInternal, "list archive dates", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "dates": dates})
}

func (s *Server) handleArchiveRows(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, NewError(KindBadRequest, "date is required"))
		return
	}

	rows, err := s.db.ListArchiveRowsByDate(r.Context(), date)
	if err != nil {
		writeError(w, Wrap(KindInternal, "list archive rows", err))
		return
	}

	views := make([]RowView, 0, len(rows))
	for _, row := range rows {
		f, err := store.UnmarshalFlight(row.FlightData)
		if err != nil {
			writeError(w, Wrap(KindInternal, "decode archived flight", err))
			return
		}
		views = append(views, toRowView(f))
	}
	sortByTimeEst(views)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"opsDate": date,
		"flights": len(views),
		"rows":    views,
	})
}
