package api

import (
	"encoding/json"
	"net/http"
	"time"

	"dispatchd/internal/ack"
	"dispatchd/internal/ops"
)

func (s *Server) windowFromQuery(r *http.Request) (start, end time.Time, err error) {
	q := r.URL.Query()
	return ops.QueryWindow(s.loc, s.clock(), ops.QueryParams{
		FromTime: q.Get("fromTime"),
		ToTime:   q.Get("toTime"),
		OpsDay:   q.Get("opsDay"),
	})
}

func (s *Server) handleDispatchRows(w http.ResponseWriter, r *http.Request) {
	start, end, err := s.windowFromQuery(r)
	if err != nil {
		writeError(w, Wrap(KindBadRequest, err.Error(), err))
		return
	}

	flights, err := s.db.ListFlightsInRange(r.Context(), start, end)
	if err != nil {
		writeError(w, Wrap(KindInternal, "list flights", err))
		return
	}

	views := make([]RowView, 0, len(flights))
	for _, f := range flights {
		v := toRowView(f)
		applyOverlay(s.overlay, v.Key, &v)
		if f.DispatchAck {
			maskAcked(&v)
		}
		views = append(views, v)
	}
	sortByTimeEst(views)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"generatedAt": s.clock().UTC().Format(time.RFC3339),
		"rows":        views,
	})
}

type dispatchUpdateRequest struct {
	Key     string  `json:"key"`
	WCHR    *int    `json:"wchr"`
	WCHC    *int    `json:"wchc"`
	Comment *string `json:"comment"`
}

func (s *Server) handleDispatchUpdate(w http.ResponseWriter, r *http.Request) {
	var req dispatchUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, NewError(KindBadRequest, "invalid JSON body"))
		return
	}
	if req.Key == "" {
		writeError(w, NewError(KindBadRequest, "key is required"))
		return
	}

	existing, err := s.db.GetFlightByKey(r.Context(), req.Key)
	if err != nil {
		writeError(w, Wrap(KindInternal, "lookup flight", err))
		return
	}
	if existing == nil {
		writeError(w, NewError(KindNotFound, "flight not found"))
		return
	}

	patch := map[string]any{}
	overlayPatch := map[string]any{}

	if req.WCHR != nil {
		patch["prev_wchr"] = existing.WCHR
		patch["wchr"] = *req.WCHR
		overlayPatch["wchr"] = *req.WCHR
	}
	if req.WCHC != nil {
		patch["prev_wchc"] = existing.WCHC
		patch["wchc"] = *req.WCHC
		overlayPatch["wchc"] = *req.WCHC
	}
	if req.Comment != nil {
		patch["comment"] = *req.Comment
		overlayPatch["comment"] = *req.Comment
	}

	if err := s.db.UpdateFlightFields(r.Context(), req.Key, patch); err != nil {
		writeError(w, Wrap(KindInternal, "update flight", err))
		return
	}
	s.overlay.Put(req.Key, overlayPatch)

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type keyRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleDispatchAck(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, NewError(KindBadRequest, "invalid JSON body"))
		return
	}
	if req.Key == "" {
		writeError(w, NewError(KindBadRequest, "key is required"))
		return
	}

	existing, err := s.db.GetFlightByKey(r.Context(), req.Key)
	if err != nil {
		writeError(w, Wrap(KindInternal, "lookup flight", err))
		return
	}
	if existing == nil {
		writeError(w, NewError(KindNotFound, "flight not found"))
		return
	}

	now := s.clock()
	ack.DispatchAck(existing, now)
	if err := s.db.UpdateFlightFields(r.Context(), req.Key, map[string]any{
		"dispatch_ack": true,
		"updated_at":   now,
	}); err != nil {
		writeError(w, Wrap(KindInternal, "ack flight", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
