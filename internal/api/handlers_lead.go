package api

import (
	"encoding/json"
	"net/http"
	"time"

	"dispatchd/internal/ack"
	"dispatchd/internal/zone"
)

var leadZones = []string{zone.PierA, zone.TB, zone.Gates, zone.T1, zone.Unassigned}

func (s *Server) handleLeadInit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"zones":      leadZones,
		"serverTime": s.clock().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLeadRows(w http.ResponseWriter, r *http.Request) {
	start, end, err := s.windowFromQuery(r)
	if err != nil {
		writeError(w, Wrap(KindBadRequest, err.Error(), err))
		return
	}

	q := r.URL.Query()
	zoneFilter := q.Get("zone")
	if zoneFilter == "" {
		zoneFilter = "ALL"
	}
	typeFilter := q.Get("type")
	if typeFilter == "" {
		typeFilter = "ALL"
	}
	search := q.Get("q")

	flights, err := s.db.ListFlightsInRange(r.Context(), start, end)
	if err != nil {
		writeError(w, Wrap(KindInternal, "list flights", err))
		return
	}

	board, hasBoard := ack.BoardForZone(zoneFilter)

	views := make([]RowView, 0, len(flights))
	for _, f := range flights {
		if typeFilter != "ALL" && f.Type != typeFilter {
			continue
		}
		if !matchesQuery(f.FlightNo, search) {
			continue
		}
		if zoneFilter != "ALL" {
			inZone := f.ZoneCurrent == zoneFilter || f.ZonePrev == zoneFilter
			if !inZone {
				continue
			}
			if hasBoard && ack.GetBoardAck(f, board) {
				continue
			}
		}

		v := toRowView(f)
		applyOverlay(s.overlay, v.Key, &v)
		views = append(views, v)
	}
	sortByTimeEst(views)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"generatedAt": s.clock().UTC().Format(time.RFC3339),
		"rows":        views,
	})
}

type leadUpdateRequest struct {
	Key        string  `json:"key"`
	Assignment *string `json:"assignment"`
	Pax        *bool   `json:"pax"`
	Watchlist  *string `json:"watchlist"`
}

func (s *Server) handleLeadUpdate(w http.ResponseWriter, r *http.Request) {
	var req leadUpdateRequest
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
	patch := map[string]any{"updated_at": now}
	overlayPatch := map[string]any{}

	if req.Assignment != nil {
		payload := userFromContext(r)
		patch["assignment"] = *req.Assignment
		patch["assign_edited_by"] = payload.Username
		patch["assign_edited_at"] = now
		overlayPatch["assignment"] = *req.Assignment
	}
	if req.Pax != nil {
		patch["pax_assisted"] = *req.Pax
		overlayPatch["paxAssisted"] = *req.Pax
	}
	if req.Watchlist != nil {
		patch["watchlist"] = *req.Watchlist
		overlayPatch["watchlist"] = *req.Watchlist
	}

	if err := s.db.UpdateFlightFields(r.Context(), req.Key, patch); err != nil {
		writeError(w, Wrap(KindInternal, "update flight", err))
		return
	}
	s.overlay.Put(req.Key, overlayPatch)

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type leadAckRequest struct {
	Key  string `json:"key"`
	Zone string `json:"zone"`
}

func (s *Server) handleLeadAck(w http.ResponseWriter, r *http.Request) {
	var req leadAckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, NewError(KindBadRequest, "invalid JSON body"))
		return
	}
	if req.Key == "" || req.Zone == "" {
		writeError(w, NewError(KindBadRequest, "key and zone are required"))
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
	if err := ack.LeadAck(existing, req.Zone, now); err != nil {
		writeError(w, NewError(KindBadRequest, err.Error()))
		return
	}

	board, _ := ack.BoardForZone(req.Zone)
	patch := map[string]any{
		"updated_at": now,
		"zone_prev":  existing.ZonePrev,
	}
	if col, ok := ackColumn(board); ok {
		patch[col] = true
	}
	if err := s.db.UpdateFlightFields(r.Context(), req.Key, patch); err != nil {
		writeError(w, Wrap(KindInternal, "ack flight", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func ackColumn(board string) (string, bool) {
	switch board {
	case ack.Dispatch:
		return "dispatch_ack", true
	case ack.PierA:
		return "piera_ack", true
	case ack.TB:
		return "tb_ack", true
	case ack.T1:
		return "t1_ack", true
	case ack.Unassigned:
		return "unassigned_ack", true
	case ack.Gates:
		return "gates_ack", true
	default:
		return "", false
	}
}
