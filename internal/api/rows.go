package api

import (
	"sort"
	"strings"
	"time"

	"dispatchd/internal/store"
)

// RowView is the compact, camelCased projection of a Flight returned by
// the dispatch and lead row reads (spec §4.9).
type RowView struct {
	Key        string `json:"key"`
	Type       string `json:"type"`
	Flight     string `json:"flight"`
	OriginDest string `json:"originDest"`
	Sched      string `json:"sched"`
	TimeEst    string `json:"timeEst"`
	Gate       string `json:"gate"`
	Terminal   string `json:"terminal,omitempty"`

	ZoneCurrent string `json:"zoneCurrent"`
	ZonePrev    string `json:"zonePrev,omitempty"`

	GateChanged     bool   `json:"gateChanged"`
	GateChgFromGate string `json:"gateChgFromGate,omitempty"`
	GateChgToGate   string `json:"gateChgToGate,omitempty"`

	ZoneChanged bool   `json:"zoneChanged"`
	ZoneChgFrom string `json:"zoneChgFrom,omitempty"`
	ZoneChgTo   string `json:"zoneChgTo,omitempty"`

	TimeChanged  bool `json:"timeChanged"`
	TimeDeltaMin int  `json:"timeDeltaMin,omitempty"`

	AlertText string `json:"alertText"`

	WCHR        int    `json:"wchr"`
	WCHC        int    `json:"wchc"`
	Comment     string `json:"comment"`
	Assignment  string `json:"assignment"`
	PaxAssisted bool   `json:"paxAssisted"`
	Watchlist   string `json:"watchlist"`

	DispatchAck   bool `json:"dispatchAck"`
	PierAAck      bool `json:"pierAAck"`
	TBAck         bool `json:"tbAck"`
	T1Ack         bool `json:"t1Ack"`
	UnassignedAck bool `json:"unassignedAck"`
	GatesAck      bool `json:"gatesAck"`
}

func toRowView(f *store.Flight) RowView {
	return RowView{
		Key:        f.Key(),
		Type:       f.Type,
		Flight:     f.FlightNo,
		OriginDest: f.OriginDest,
		Sched:      f.SchedUTC.Format(time.RFC3339),
		TimeEst:    f.EstUTC.Format(time.RFC3339),
		Gate:       f.Gate,
		Terminal:   f.Terminal,

		ZoneCurrent: f.ZoneCurrent,
		ZonePrev:    f.ZonePrev,

		GateChanged:     f.GateChanged,
		GateChgFromGate: f.GateChgFromGate,
		GateChgToGate:   f.GateChgToGate,

		ZoneChanged: f.ZoneChanged,
		ZoneChgFrom: f.ZoneChgFrom,
		ZoneChgTo:   f.ZoneChgTo,

		TimeChanged:  f.TimeChanged,
		TimeDeltaMin: f.TimeDeltaMin,

		AlertText: f.AlertText,

		WCHR:        f.WCHR,
		WCHC:        f.WCHC,
		Comment:     f.Comment,
		Assignment:  f.Assignment,
		PaxAssisted: f.PaxAssisted,
		Watchlist:   f.Watchlist,

		DispatchAck:   f.DispatchAck,
		PierAAck:      f.PierAAck,
		TBAck:         f.TBAck,
		T1Ack:         f.T1Ack,
		UnassignedAck: f.UnassignedAck,
		GatesAck:      f.GatesAck,
	}
}

// maskAcked blanks the alert text and the three change indicators on a
// dispatch-acked row, so a board that already acknowledged a change
// doesn't keep flashing it (spec §4.9).
func maskAcked(v *RowView) {
	v.AlertText = ""
	v.GateChanged = false
	v.GateChgFromGate = ""
	v.GateChgToGate = ""
	v.ZoneChanged = false
	v.ZoneChgFrom = ""
	v.ZoneChgTo = ""
	v.TimeChanged = false
	v.TimeDeltaMin = 0
}

// applyOverlay merges any pending write-through patch for key onto the
// manual fields of v (spec §4.6): a read immediately following a write
// must reflect it even if the underlying row hasn't committed yet from
// this process's point of view.
func applyOverlay(ov *store.Overlay, key string, v *RowView) {
	patched := ov.Apply(key, map[string]any{
		"wchr":        v.WCHR,
		"wchc":        v.WCHC,
		"comment":     v.Comment,
		"assignment":  v.Assignment,
		"paxAssisted": v.PaxAssisted,
		"watchlist":   v.Watchlist,
	})
	if n, ok := patched["wchr"].(int); ok {
		v.WCHR = n
	}
	if n, ok := patched["wchc"].(int); ok {
		v.WCHC = n
	}
	if s, ok := patched["comment"].(string); ok {
		v.Comment = s
	}
	if s, ok := patched["assignment"].(string); ok {
		v.Assignment = s
	}
	if b, ok := patched["paxAssisted"].(bool); ok {
		v.PaxAssisted = b
	}
	if s, ok := patched["watchlist"].(string); ok {
		v.Watchlist = s
	}
}

func sortByTimeEst(views []RowView) {
	sort.Slice(views, func(i, j int) bool { return views[i].TimeEst < views[j].TimeEst })
}

func matchesQuery(flightNo, q string) bool {
	if q == "" {
		return true
	}
	norm := strings.ToUpper(strings.ReplaceAll(flightNo, " ", ""))
	needle := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(q), " ", ""))
	return strings.Contains(norm, needle)
}
