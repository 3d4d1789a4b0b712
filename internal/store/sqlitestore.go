package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDB is an in-process implementation of DB used as a test double:
// the internal/store, internal/archive, and internal/api tests run
// against it instead of a live Postgres, following the teacher's
// storage.SQLiteDB + state.Tracker pattern of a schema-on-open database/sql
// handle.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database at path. Use ":memory:"
// for ephemeral test databases.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteDB{db: db}, nil
}

// Close closes the underlying handle.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

const createSchemaSQLite = `
CREATE TABLE IF NOT EXISTS flights (
	ops_date TEXT NOT NULL,
	type TEXT NOT NULL,
	flight_no TEXT NOT NULL,
	sched_local TEXT NOT NULL,
	sched_utc TEXT NOT NULL,
	est_utc TEXT NOT NULL,
	origin_dest TEXT NOT NULL DEFAULT '',
	gate TEXT NOT NULL DEFAULT '',

	zone_current TEXT NOT NULL DEFAULT '',
	zone_previous TEXT NOT NULL DEFAULT '',
	zone_prev TEXT NOT NULL DEFAULT '',

	gate_changed INTEGER NOT NULL DEFAULT 0,
	gate_chg_from_gate TEXT NOT NULL DEFAULT '',
	gate_chg_to_gate TEXT NOT NULL DEFAULT '',
	gate_chg_from_zone TEXT NOT NULL DEFAULT '',
	gate_chg_to_zone TEXT NOT NULL DEFAULT '',
	gate_chg_at TEXT,

	zone_changed INTEGER NOT NULL DEFAULT 0,
	zone_chg_from TEXT NOT NULL DEFAULT '',
	zone_chg_to TEXT NOT NULL DEFAULT '',
	zone_chg_at TEXT,

	time_changed INTEGER NOT NULL DEFAULT 0,
	time_prev_est TEXT,
	time_delta_min INTEGER NOT NULL DEFAULT 0,
	time_chg_at TEXT,

	alert_text TEXT NOT NULL DEFAULT '',

	wchr INTEGER NOT NULL DEFAULT 0,
	wchc INTEGER NOT NULL DEFAULT 0,
	prev_wchr INTEGER NOT NULL DEFAULT 0,
	prev_wchc INTEGER NOT NULL DEFAULT 0,
	comment TEXT NOT NULL DEFAULT '',
	assignment TEXT NOT NULL DEFAULT '',
	pax_assisted INTEGER NOT NULL DEFAULT 0,
	watchlist TEXT NOT NULL DEFAULT '',
	assign_edited_by TEXT NOT NULL DEFAULT '',
	assign_edited_at TEXT,

	dispatch_ack INTEGER NOT NULL DEFAULT 0,
	piera_ack INTEGER NOT NULL DEFAULT 0,
	tb_ack INTEGER NOT NULL DEFAULT 0,
	t1_ack INTEGER NOT NULL DEFAULT 0,
	unassigned_ack INTEGER NOT NULL DEFAULT 0,
	gates_ack INTEGER NOT NULL DEFAULT 0,

	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,

	PRIMARY KEY (ops_date, type, flight_no, sched_local)
);
CREATE INDEX IF NOT EXISTS idx_flights_time_est ON flights (est_utc);
CREATE INDEX IF NOT EXISTS idx_flights_zone_current ON flights (zone_current);
CREATE INDEX IF NOT EXISTS idx_flights_type ON flights (type);

CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	pin TEXT NOT NULL,
	role TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS zone_overrides (
	gate TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS us_airport_codes (
	iata TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS archive (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ops_date TEXT NOT NULL,
	archived_at TEXT NOT NULL,
	flight_data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archive_ops_date ON archive (ops_date);
`

// CreateSchema creates all tables and indexes if they do not exist.
func (s *SQLiteDB) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createSchemaSQLite)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func rfc3339(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseRFC3339(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func mustParseRFC3339(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

type flightScanRow struct {
	opsDate, typ, flightNo, schedLocal                                 string
	schedUTC, estUTC                                                   string
	originDest, gate                                                   string
	zoneCurrent, zonePrevious, zonePrev                                string
	gateChanged                                                        int
	gateChgFromGate, gateChgToGate, gateChgFromZone, gateChgToZone     string
	gateChgAt                                                          sql.NullString
	zoneChanged                                                        int
	zoneChgFrom, zoneChgTo                                             string
	zoneChgAt                                                          sql.NullString
	timeChanged                                                        int
	timePrevEst                                                        sql.NullString
	timeDeltaMin                                                       int
	timeChgAt                                                          sql.NullString
	alertText                                                          string
	wchr, wchc, prevWCHR, prevWCHC                                     int
	comment, assignment                                                string
	paxAssisted                                                        int
	watchlist, assignEditedBy                                          string
	assignEditedAt                                                     sql.NullString
	dispatchAck, pierAAck, tbAck, t1Ack, unassignedAck, gatesAck       int
	createdAt, updatedAt                                               string
}

func (r *flightScanRow) toFlight() *Flight {
	return &Flight{
		OpsDate: r.opsDate, Type: r.typ, FlightNo: r.flightNo, SchedLocal: r.schedLocal,
		SchedUTC: mustParseRFC3339(r.schedUTC), EstUTC: mustParseRFC3339(r.estUTC),
		OriginDest: r.originDest, Gate: r.gate,
		ZoneCurrent: r.zoneCurrent, ZonePrevious: r.zonePrevious, ZonePrev: r.zonePrev,
		GateChanged: r.gateChanged != 0, GateChgFromGate: r.gateChgFromGate, GateChgToGate: r.gateChgToGate,
		GateChgFromZone: r.gateChgFromZone, GateChgToZone: r.gateChgToZone, GateChgAt: parseRFC3339(r.gateChgAt),
		ZoneChanged: r.zoneChanged != 0, ZoneChgFrom: r.zoneChgFrom, ZoneChgTo: r.zoneChgTo, ZoneChgAt: parseRFC3339(r.zoneChgAt),
		TimeChanged: r.timeChanged != 0, TimePrevEst: parseRFC3339(r.timePrevEst), TimeDeltaMin: r.timeDeltaMin, TimeChgAt: parseRFC3339(r.timeChgAt),
		AlertText: r.alertText,
		WCHR: r.wchr, WCHC: r.wchc, PrevWCHR: r.prevWCHR, PrevWCHC: r.prevWCHC,
		Comment: r.comment, Assignment: r.assignment, PaxAssisted: r.paxAssisted != 0,
		Watchlist: r.watchlist, AssignEditedBy: r.assignEditedBy, AssignEditedAt: parseRFC3339(r.assignEditedAt),
		DispatchAck: r.dispatchAck != 0, PierAAck: r.pierAAck != 0, TBAck: r.tbAck != 0,
		T1Ack: r.t1Ack != 0, UnassignedAck: r.unassignedAck != 0, GatesAck: r.gatesAck != 0,
		CreatedAt: mustParseRFC3339(r.createdAt), UpdatedAt: mustParseRFC3339(r.updatedAt),
	}
}

func scanFlightRow(scan func(dest ...any) error) (*Flight, error) {
	var r flightScanRow
	err := scan(
		&r.opsDate, &r.typ, &r.flightNo, &r.schedLocal, &r.schedUTC, &r.estUTC, &r.originDest, &r.gate,
		&r.zoneCurrent, &r.zonePrevious, &r.zonePrev,
		&r.gateChanged, &r.gateChgFromGate, &r.gateChgToGate, &r.gateChgFromZone, &r.gateChgToZone, &r.gateChgAt,
		&r.zoneChanged, &r.zoneChgFrom, &r.zoneChgTo, &r.zoneChgAt,
		&r.timeChanged, &r.timePrevEst, &r.timeDeltaMin, &r.timeChgAt,
		&r.alertText,
		&r.wchr, &r.wchc, &r.prevWCHR, &r.prevWCHC, &r.comment, &r.assignment, &r.paxAssisted, &r.watchlist, &r.assignEditedBy, &r.assignEditedAt,
		&r.dispatchAck, &r.pierAAck, &r.tbAck, &r.t1Ack, &r.unassignedAck, &r.gatesAck,
		&r.createdAt, &r.updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r.toFlight(), nil
}

// GetFlightByKey returns nil, nil when no row matches.
func (s *SQLiteDB) GetFlightByKey(ctx context.Context, key string) (*Flight, error) {
	parts := strings.SplitN(key, "|", 4)
	if len(parts) != 4 {
		return nil, fmt.Errorf("malformed flight key %q", key)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+flightColumns+` FROM flights
		WHERE ops_date=? AND type=? AND flight_no=? AND sched_local=?`,
		parts[0], parts[1], parts[2], parts[3])
	return scanFlightRow(row.Scan)
}

// ListFlightsInRange runs the canonical range query: est_utc BETWEEN
// start AND end ORDER BY est_utc ASC.
func (s *SQLiteDB) ListFlightsInRange(ctx context.Context, start, end time.Time) ([]*Flight, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+flightColumns+` FROM flights
		WHERE est_utc BETWEEN ? AND ? ORDER BY est_utc ASC`,
		start.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	defer rows.Close()

	var out []*Flight
	for rows.Next() {
		f, err := scanFlightRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan flight: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) insertOne(ctx context.Context, f *Flight) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO flights (`+flightColumns+`) VALUES (
		?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		f.OpsDate, f.Type, f.FlightNo, f.SchedLocal, rfc3339(f.SchedUTC), rfc3339(f.EstUTC), f.OriginDest, f.Gate,
		f.ZoneCurrent, f.ZonePrevious, f.ZonePrev,
		f.GateChanged, f.GateChgFromGate, f.GateChgToGate, f.GateChgFromZone, f.GateChgToZone, rfc3339(f.GateChgAt),
		f.ZoneChanged, f.ZoneChgFrom, f.ZoneChgTo, rfc3339(f.ZoneChgAt),
		f.TimeChanged, rfc3339(f.TimePrevEst), f.TimeDeltaMin, rfc3339(f.TimeChgAt),
		f.AlertText,
		f.WCHR, f.WCHC, f.PrevWCHR, f.PrevWCHC, f.Comment, f.Assignment, f.PaxAssisted, f.Watchlist, f.AssignEditedBy, rfc3339(f.AssignEditedAt),
		f.DispatchAck, f.PierAAck, f.TBAck, f.T1Ack, f.UnassignedAck, f.GatesAck,
		rfc3339(f.CreatedAt), rfc3339(f.UpdatedAt),
	)
	return err
}

// InsertFlights batches INSERTs in groups of 100.
func (s *SQLiteDB) InsertFlights(ctx context.Context, flights []*Flight) error {
	return batch(flights, 100, func(chunk []*Flight) error {
		for _, f := range chunk {
			if err := s.insertOne(ctx, f); err != nil {
				return fmt.Errorf("insert flight: %w", err)
			}
		}
		return nil
	})
}

// UpdateFlights batches UPDATEs in groups of 100.
func (s *SQLiteDB) UpdateFlights(ctx context.Context, flights []*Flight) error {
	return batch(flights, 100, func(chunk []*Flight) error {
		for _, f := range chunk {
			_, err := s.db.ExecContext(ctx, `UPDATE flights SET
				sched_utc=?, est_utc=?, origin_dest=?, gate=?,
				zone_current=?, zone_prev=?,
				gate_changed=?, gate_chg_from_gate=?, gate_chg_to_gate=?, gate_chg_from_zone=?, gate_chg_to_zone=?, gate_chg_at=?,
				zone_changed=?, zone_chg_from=?, zone_chg_to=?, zone_chg_at=?,
				time_changed=?, time_prev_est=?, time_delta_min=?, time_chg_at=?,
				alert_text=?,
				dispatch_ack=?, piera_ack=?, tb_ack=?, t1_ack=?, unassigned_ack=?, gates_ack=?,
				updated_at=?
				WHERE ops_date=? AND type=? AND flight_no=? AND sched_local=?`,
				rfc3339(f.SchedUTC), rfc3339(f.EstUTC), f.OriginDest, f.Gate,
				f.ZoneCurrent, f.ZonePrev,
				f.GateChanged, f.GateChgFromGate, f.GateChgToGate, f.GateChgFromZone, f.GateChgToZone, rfc3339(f.GateChgAt),
				f.ZoneChanged, f.ZoneChgFrom, f.ZoneChgTo, rfc3339(f.ZoneChgAt),
				f.TimeChanged, rfc3339(f.TimePrevEst), f.TimeDeltaMin, rfc3339(f.TimeChgAt),
				f.AlertText,
				f.DispatchAck, f.PierAAck, f.TBAck, f.T1Ack, f.UnassignedAck, f.GatesAck,
				rfc3339(time.Now().UTC()),
				f.OpsDate, f.Type, f.FlightNo, f.SchedLocal,
			)
			if err != nil {
				return fmt.Errorf("update flight: %w", err)
			}
		}
		return nil
	})
}

// UpdateFlightFields applies a partial column update.
func (s *SQLiteDB) UpdateFlightFields(ctx context.Context, key string, patch map[string]any) error {
	parts := strings.SplitN(key, "|", 4)
	if len(parts) != 4 {
		return fmt.Errorf("malformed flight key %q", key)
	}
	if len(patch) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(patch)+1)
	args := make([]any, 0, len(patch)+5)
	for col, val := range patch {
		setClauses = append(setClauses, col+"=?")
		args = append(args, val)
	}
	setClauses = append(setClauses, "updated_at=?")
	args = append(args, rfc3339(time.Now().UTC()))
	args = append(args, parts[0], parts[1], parts[2], parts[3])

	query := fmt.Sprintf(`UPDATE flights SET %s WHERE ops_date=? AND type=? AND flight_no=? AND sched_local=?`,
		strings.Join(setClauses, ", "))
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update flight fields: %w", err)
	}
	return nil
}

// DeleteFlightsByKeys batches DELETEs in groups of 100.
func (s *SQLiteDB) DeleteFlightsByKeys(ctx context.Context, keys []string) error {
	return batch(keys, 100, func(chunk []string) error {
		for _, key := range chunk {
			parts := strings.SplitN(key, "|", 4)
			if len(parts) != 4 {
				continue
			}
			_, err := s.db.ExecContext(ctx, `DELETE FROM flights WHERE ops_date=? AND type=? AND flight_no=? AND sched_local=?`,
				parts[0], parts[1], parts[2], parts[3])
			if err != nil {
				return fmt.Errorf("delete flight: %w", err)
			}
		}
		return nil
	})
}

// GetUserByUsername returns nil, nil when the user does not exist.
func (s *SQLiteDB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `SELECT username, pin, role FROM users WHERE username=?`, username).
		Scan(&u.Username, &u.PIN, &u.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// InsertUser seeds a login identity. Not part of the DB interface: user
// records are provisioned out of band in production, so only the test
// double exposes a way to write one.
func (s *SQLiteDB) InsertUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (username, pin, role) VALUES (?,?,?)`, u.Username, u.PIN, u.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// ListZoneOverrides returns the full override table keyed by normalized gate.
func (s *SQLiteDB) ListZoneOverrides(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT gate, value FROM zone_overrides`)
	if err != nil {
		return nil, fmt.Errorf("list zone overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var gate, value string
		if err := rows.Scan(&gate, &value); err != nil {
			return nil, err
		}
		out[gate] = value
	}
	return out, rows.Err()
}

// ListUSAirportCodes returns the full US airport code set.
func (s *SQLiteDB) ListUSAirportCodes(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT iata FROM us_airport_codes`)
	if err != nil {
		return nil, fmt.Errorf("list us airport codes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var iata string
		if err := rows.Scan(&iata); err != nil {
			return nil, err
		}
		out[iata] = true
	}
	return out, rows.Err()
}

// DeleteArchiveByOpsDate clears existing archive rows for opsDate.
func (s *SQLiteDB) DeleteArchiveByOpsDate(ctx context.Context, opsDate string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM archive WHERE ops_date=?`, opsDate)
	if err != nil {
		return fmt.Errorf("delete archive rows: %w", err)
	}
	return nil
}

// InsertArchiveRows batches archive INSERTs in groups of 100.
func (s *SQLiteDB) InsertArchiveRows(ctx context.Context, rows []*ArchiveRow) error {
	return batch(rows, 100, func(chunk []*ArchiveRow) error {
		for _, r := range chunk {
			_, err := s.db.ExecContext(ctx, `INSERT INTO archive (ops_date, archived_at, flight_data) VALUES (?,?,?)`,
				r.OpsDate, rfc3339(r.ArchivedAt), r.FlightData)
			if err != nil {
				return fmt.Errorf("insert archive row: %w", err)
			}
		}
		return nil
	})
}

// ListArchiveDates returns distinct ops_dates with flight counts.
func (s *SQLiteDB) ListArchiveDates(ctx context.Context) ([]ArchiveDateCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ops_date, COUNT(*) FROM archive GROUP BY ops_date ORDER BY ops_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list archive dates: %w", err)
	}
	defer rows.Close()

	var out []ArchiveDateCount
	for rows.Next() {
		var c ArchiveDateCount
		if err := rows.Scan(&c.OpsDate, &c.Flights); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListArchiveRowsByDate returns all archived flights for one ops date.
func (s *SQLiteDB) ListArchiveRowsByDate(ctx context.Context, opsDate string) ([]*ArchiveRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, ops_date, archived_at, flight_data FROM archive WHERE ops_date=? ORDER BY id ASC`, opsDate)
	if err != nil {
		return nil, fmt.Errorf("list archive rows: %w", err)
	}
	defer rows.Close()

	var out []*ArchiveRow
	for rows.Next() {
		var r ArchiveRow
		var archivedAt string
		if err := rows.Scan(&r.ID, &r.OpsDate, &archivedAt, &r.FlightData); err != nil {
			return nil, err
		}
		r.ArchivedAt = mustParseRFC3339(archivedAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}
