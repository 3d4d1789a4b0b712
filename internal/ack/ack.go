// Package ack implements the per-board acknowledgement flags and the
// zone_prev carry-over invariant shared by the Sync Engine and the
// Read/Write API (spec §4.5).
package ack

import (
	"fmt"
	"time"

	"dispatchd/internal/store"
	"dispatchd/internal/zone"
)

// Board names. Dispatch is a global board; the rest correspond 1:1 to a
// zone.
const (
	Dispatch   = "DISPATCH"
	PierA      = "PIERA"
	TB         = "TB"
	T1         = "T1"
	Unassigned = "UNASSIGNED"
	Gates      = "GATES"
)

// BoardForZone maps a canonical zone label to its board name.
func BoardForZone(z string) (board string, ok bool) {
	switch z {
	case zone.PierA:
		return PierA, true
	case zone.TB:
		return TB, true
	case zone.Gates:
		return Gates, true
	case zone.T1:
		return T1, true
	case zone.Unassigned:
		return Unassigned, true
	default:
		return "", false
	}
}

// GetBoardAck reads the ACK flag for a board.
func GetBoardAck(f *store.Flight, board string) bool {
	switch board {
	case Dispatch:
		return f.DispatchAck
	case PierA:
		return f.PierAAck
	case TB:
		return f.TBAck
	case T1:
		return f.T1Ack
	case Unassigned:
		return f.UnassignedAck
	case Gates:
		return f.GatesAck
	default:
		return false
	}
}

// SetBoardAck writes the ACK flag for a board.
func SetBoardAck(f *store.Flight, board string, val bool) {
	switch board {
	case Dispatch:
		f.DispatchAck = val
	case PierA:
		f.PierAAck = val
	case TB:
		f.TBAck = val
	case T1:
		f.T1Ack = val
	case Unassigned:
		f.UnassignedAck = val
	case Gates:
		f.GatesAck = val
	}
}

// ResetAll clears all six board ACK flags, used by the Sync Engine
// whenever a new change is detected.
func ResetAll(f *store.Flight) {
	f.DispatchAck = false
	f.PierAAck = false
	f.TBAck = false
	f.T1Ack = false
	f.UnassignedAck = false
	f.GatesAck = false
}

// CanOverwriteCarryOver reports whether the Sync Engine may overwrite
// zone_prev on a zone change: either the slot is empty, or the board
// owed an ACK for the current zone_prev has already acknowledged.
func CanOverwriteCarryOver(f *store.Flight) bool {
	if f.ZonePrev == "" {
		return true
	}
	board, ok := BoardForZone(f.ZonePrev)
	if !ok {
		return true
	}
	return GetBoardAck(f, board)
}

// DispatchAck sets dispatch_ack and bumps updated_at.
func DispatchAck(f *store.Flight, now time.Time) {
	f.DispatchAck = true
	f.UpdatedAt = now
}

// LeadAck sets zoneName's board ACK to 1 and, if zone_prev equals
// zoneName and the flight's current zone has since moved on, clears the
// carry-over slot (the old board has discharged its ACK debt).
func LeadAck(f *store.Flight, zoneName string, now time.Time) error {
	board, ok := BoardForZone(zoneName)
	if !ok {
		return fmt.Errorf("unknown zone %q", zoneName)
	}
	SetBoardAck(f, board, true)
	if f.ZonePrev == zoneName && f.ZoneCurrent != zoneName {
		f.ZonePrev = ""
	}
	f.UpdatedAt = now
	return nil
}
