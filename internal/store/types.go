// Package store persists flights, users, gate→zone overrides, US airport
// codes, and archived flights. It exposes a single DB interface backed by
// either Postgres (pgstore.go, the production backend) or SQLite
// (sqlitestore.go, an in-process test double implementing the same
// interface so every other package's tests run without a live database).
package store

import "time"

// Flight is the central entity: a single arrival or departure tracked for
// one ops day. The composite key (opsDate, type, flightNo, schedLocal) is
// immutable once assigned.
type Flight struct {
	// Key components.
	OpsDate    string // YYYY-MM-DD, local.
	Type       string // ARR or DEP.
	FlightNo   string // formatted with a space after the carrier code.
	SchedLocal string // HH:MM local, part of the composite key.

	// FIDS-sourced.
	SchedUTC   time.Time
	EstUTC     time.Time
	OriginDest string // IATA code of the other endpoint.
	Gate       string // raw, as received from FIDS.
	Terminal   string // used only during classification; not persisted beyond that need.

	// Derived.
	ZoneCurrent  string
	ZonePrevious string // set once at insert, never changed by sync.
	ZonePrev     string // carry-over slot, see internal/ack.

	// Change-tracking.
	GateChanged      bool
	GateChgFromGate  string
	GateChgToGate    string
	GateChgFromZone  string
	GateChgToZone    string
	GateChgAt        time.Time

	ZoneChanged bool
	ZoneChgFrom string
	ZoneChgTo   string
	ZoneChgAt   time.Time

	TimeChanged    bool
	TimePrevEst    time.Time
	TimeDeltaMin   int
	TimeChgAt      time.Time

	AlertText string

	// Manual, never overwritten by sync.
	WCHR           int
	WCHC           int
	PrevWCHR       int
	PrevWCHC       int
	Comment        string
	Assignment     string
	PaxAssisted    bool
	Watchlist      string
	AssignEditedBy string
	AssignEditedAt time.Time

	// Per-board ACK flags.
	DispatchAck   bool
	PierAAck      bool
	TBAck         bool
	T1Ack         bool
	UnassignedAck bool
	GatesAck      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the flight's composite identity string
// "YYYY-MM-DD|TYPE|FLIGHT|HH:mm", matching internal/syncengine's key
// construction.
func (f Flight) Key() string {
	return f.OpsDate + "|" + f.Type + "|" + f.FlightNo + "|" + f.SchedLocal
}

// User is a login identity. PIN is stored in plaintext, matching the
// existing user records this system preserves (spec §9); comparisons use
// internal/auth.ConstantTimeCompare so the comparison itself is not a
// timing oracle.
type User struct {
	Username string
	PIN      string
	Role     string // Dispatch, Lead, Mgmt.
}

// ZoneOverride maps a normalized gate string to a target zone, which may
// be a literal zone name or the special tokens "SwingDoor"/"Unassigned".
type ZoneOverride struct {
	Gate  string // normalized.
	Value string // raw override value, resolved by internal/zone.Classify.
}

// USAirportCode is one member of the set of IATA codes considered US.
type USAirportCode struct {
	IATA string
}

// ArchiveRow is a serialized snapshot of a Flight at archive time.
type ArchiveRow struct {
	ID         int64
	OpsDate    string
	ArchivedAt time.Time
	FlightData string // JSON-serialized Flight.
}
