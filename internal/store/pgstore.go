package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig configures the pool backing PostgresDB.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (c PostgresConfig) withDefaults() PostgresConfig {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 30 * time.Minute
	}
	return c
}

// PostgresDB is the production Flight Store backend.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects and tunes a pgxpool.Pool per cfg.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	cfg = cfg.withDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresDB{pool: pool}, nil
}

// Close releases the pool.
func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS flights (
	ops_date TEXT NOT NULL,
	type TEXT NOT NULL,
	flight_no TEXT NOT NULL,
	sched_local TEXT NOT NULL,
	sched_utc TIMESTAMPTZ NOT NULL,
	est_utc TIMESTAMPTZ NOT NULL,
	origin_dest TEXT NOT NULL DEFAULT '',
	gate TEXT NOT NULL DEFAULT '',

	zone_current TEXT NOT NULL DEFAULT '',
	zone_previous TEXT NOT NULL DEFAULT '',
	zone_prev TEXT NOT NULL DEFAULT '',

	gate_changed BOOLEAN NOT NULL DEFAULT FALSE,
	gate_chg_from_gate TEXT NOT NULL DEFAULT '',
	gate_chg_to_gate TEXT NOT NULL DEFAULT '',
	gate_chg_from_zone TEXT NOT NULL DEFAULT '',
	gate_chg_to_zone TEXT NOT NULL DEFAULT '',
	gate_chg_at TIMESTAMPTZ,

	zone_changed BOOLEAN NOT NULL DEFAULT FALSE,
	zone_chg_from TEXT NOT NULL DEFAULT '',
	zone_chg_to TEXT NOT NULL DEFAULT '',
	zone_chg_at TIMESTAMPTZ,

	time_changed BOOLEAN NOT NULL DEFAULT FALSE,
	time_prev_est TIMESTAMPTZ,
	time_delta_min INTEGER NOT NULL DEFAULT 0,
	time_chg_at TIMESTAMPTZ,

	alert_text TEXT NOT NULL DEFAULT '',

	wchr INTEGER NOT NULL DEFAULT 0,
	wchc INTEGER NOT NULL DEFAULT 0,
	prev_wchr INTEGER NOT NULL DEFAULT 0,
	prev_wchc INTEGER NOT NULL DEFAULT 0,
	comment TEXT NOT NULL DEFAULT '',
	assignment TEXT NOT NULL DEFAULT '',
	pax_assisted BOOLEAN NOT NULL DEFAULT FALSE,
	watchlist TEXT NOT NULL DEFAULT '',
	assign_edited_by TEXT NOT NULL DEFAULT '',
	assign_edited_at TIMESTAMPTZ,

	dispatch_ack BOOLEAN NOT NULL DEFAULT FALSE,
	piera_ack BOOLEAN NOT NULL DEFAULT FALSE,
	tb_ack BOOLEAN NOT NULL DEFAULT FALSE,
	t1_ack BOOLEAN NOT NULL DEFAULT FALSE,
	unassigned_ack BOOLEAN NOT NULL DEFAULT FALSE,
	gates_ack BOOLEAN NOT NULL DEFAULT FALSE,

	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

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
	id BIGSERIAL PRIMARY KEY,
	ops_date TEXT NOT NULL,
	archived_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	flight_data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archive_ops_date ON archive (ops_date);
`

// CreateSchema creates all tables and indexes if they do not exist.
func (p *PostgresDB) CreateSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, createSchemaSQL)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const flightColumns = `ops_date, type, flight_no, sched_local, sched_utc, est_utc, origin_dest, gate,
	zone_current, zone_previous, zone_prev,
	gate_changed, gate_chg_from_gate, gate_chg_to_gate, gate_chg_from_zone, gate_chg_to_zone, gate_chg_at,
	zone_changed, zone_chg_from, zone_chg_to, zone_chg_at,
	time_changed, time_prev_est, time_delta_min, time_chg_at,
	alert_text,
	wchr, wchc, prev_wchr, prev_wchc, comment, assignment, pax_assisted, watchlist, assign_edited_by, assign_edited_at,
	dispatch_ack, piera_ack, tb_ack, t1_ack, unassigned_ack, gates_ack,
	created_at, updated_at`

func scanFlight(row pgx.Row) (*Flight, error) {
	var f Flight
	var gateChgAt, zoneChgAt, timeChgAt, timePrevEst, assignEditedAt *time.Time
	err := row.Scan(
		&f.OpsDate, &f.Type, &f.FlightNo, &f.SchedLocal, &f.SchedUTC, &f.EstUTC, &f.OriginDest, &f.Gate,
		&f.ZoneCurrent, &f.ZonePrevious, &f.ZonePrev,
		&f.GateChanged, &f.GateChgFromGate, &f.GateChgToGate, &f.GateChgFromZone, &f.GateChgToZone, &gateChgAt,
		&f.ZoneChanged, &f.ZoneChgFrom, &f.ZoneChgTo, &zoneChgAt,
		&f.TimeChanged, &timePrevEst, &f.TimeDeltaMin, &timeChgAt,
		&f.AlertText,
		&f.WCHR, &f.WCHC, &f.PrevWCHR, &f.PrevWCHC, &f.Comment, &f.Assignment, &f.PaxAssisted, &f.Watchlist, &f.AssignEditedBy, &assignEditedAt,
		&f.DispatchAck, &f.PierAAck, &f.TBAck, &f.T1Ack, &f.UnassignedAck, &f.GatesAck,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if gateChgAt != nil {
		f.GateChgAt = *gateChgAt
	}
	if zoneChgAt != nil {
		f.ZoneChgAt = *zoneChgAt
	}
	if timeChgAt != nil {
		f.TimeChgAt = *timeChgAt
	}
	if timePrevEst != nil {
		f.TimePrevEst = *timePrevEst
	}
	if assignEditedAt != nil {
		f.AssignEditedAt = *assignEditedAt
	}
	return &f, nil
}

// GetFlightByKey returns nil, nil when no row matches, mirroring the
// teacher's pgx.ErrNoRows-to-nil convention.
func (p *PostgresDB) GetFlightByKey(ctx context.Context, key string) (*Flight, error) {
	parts := strings.SplitN(key, "|", 4)
	if len(parts) != 4 {
		return nil, fmt.Errorf("malformed flight key %q", key)
	}
	row := p.pool.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights
		WHERE ops_date=$1 AND type=$2 AND flight_no=$3 AND sched_local=$4`,
		parts[0], parts[1], parts[2], parts[3])
	return scanFlight(row)
}

// ListFlightsInRange runs the single range query every API read uses:
// est_utc BETWEEN start AND end ORDER BY est_utc ASC.
func (p *PostgresDB) ListFlightsInRange(ctx context.Context, start, end time.Time) ([]*Flight, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+flightColumns+` FROM flights
		WHERE est_utc BETWEEN $1 AND $2 ORDER BY est_utc ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("list flights: %w", err)
	}
	defer rows.Close()

	var out []*Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flight: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// InsertFlights batches INSERTs in groups of 100, per spec §4.4.
func (p *PostgresDB) InsertFlights(ctx context.Context, flights []*Flight) error {
	return batch(flights, 100, func(chunk []*Flight) error {
		batchTx := &pgx.Batch{}
		for _, f := range chunk {
			batchTx.Queue(`INSERT INTO flights (`+flightColumns+`) VALUES (
				$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,
				$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37,$38,$39,$40,$41,$42,$43,$44)`,
				insertArgs(f)...)
		}
		br := p.pool.SendBatch(ctx, batchTx)
		defer br.Close()
		for range chunk {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("insert flight: %w", err)
			}
		}
		return nil
	})
}

// UpdateFlights batches UPDATEs in groups of 100.
func (p *PostgresDB) UpdateFlights(ctx context.Context, flights []*Flight) error {
	return batch(flights, 100, func(chunk []*Flight) error {
		batchTx := &pgx.Batch{}
		for _, f := range chunk {
			batchTx.Queue(`UPDATE flights SET
				sched_utc=$5, est_utc=$6, origin_dest=$7, gate=$8,
				zone_current=$9, zone_prev=$11,
				gate_changed=$12, gate_chg_from_gate=$13, gate_chg_to_gate=$14, gate_chg_from_zone=$15, gate_chg_to_zone=$16, gate_chg_at=$17,
				zone_changed=$18, zone_chg_from=$19, zone_chg_to=$20, zone_chg_at=$21,
				time_changed=$22, time_prev_est=$23, time_delta_min=$24, time_chg_at=$25,
				alert_text=$26,
				dispatch_ack=$37, piera_ack=$38, tb_ack=$39, t1_ack=$40, unassigned_ack=$41, gates_ack=$42,
				updated_at=now()
				WHERE ops_date=$1 AND type=$2 AND flight_no=$3 AND sched_local=$4`,
				updateArgs(f)...)
		}
		br := p.pool.SendBatch(ctx, batchTx)
		defer br.Close()
		for range chunk {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("update flight: %w", err)
			}
		}
		return nil
	})
}

func insertArgs(f *Flight) []any {
	return []any{
		f.OpsDate, f.Type, f.FlightNo, f.SchedLocal, f.SchedUTC, f.EstUTC, f.OriginDest, f.Gate,
		f.ZoneCurrent, f.ZonePrevious, f.ZonePrev,
		f.GateChanged, f.GateChgFromGate, f.GateChgToGate, f.GateChgFromZone, f.GateChgToZone, nullableTime(f.GateChgAt),
		f.ZoneChanged, f.ZoneChgFrom, f.ZoneChgTo, nullableTime(f.ZoneChgAt),
		f.TimeChanged, nullableTime(f.TimePrevEst), f.TimeDeltaMin, nullableTime(f.TimeChgAt),
		f.AlertText,
		f.WCHR, f.WCHC, f.PrevWCHR, f.PrevWCHC, f.Comment, f.Assignment, f.PaxAssisted, f.Watchlist, f.AssignEditedBy, nullableTime(f.AssignEditedAt),
		f.DispatchAck, f.PierAAck, f.TBAck, f.T1Ack, f.UnassignedAck, f.GatesAck,
		nullableTime(f.CreatedAt), nullableTime(f.UpdatedAt),
	}
}

// updateArgs returns the same positional values as insertArgs but
// truncated to the 42 parameters UpdateFlights' statement references
// ($43/$44, created_at/updated_at, are never part of an UPDATE SET).
func updateArgs(f *Flight) []any {
	a := insertArgs(f)
	return a[:42]
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// UpdateFlightFields applies a partial column update, used by the
// dispatch/lead update endpoints. patch keys are column names.
func (p *PostgresDB) UpdateFlightFields(ctx context.Context, key string, patch map[string]any) error {
	parts := strings.SplitN(key, "|", 4)
	if len(parts) != 4 {
		return fmt.Errorf("malformed flight key %q", key)
	}
	if len(patch) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(patch)+1)
	args := make([]any, 0, len(patch)+5)
	i := 1
	for col, val := range patch {
		setClauses = append(setClauses, fmt.Sprintf("%s=$%d", col, i))
		args = append(args, val)
		i++
	}
	setClauses = append(setClauses, "updated_at=now()")

	args = append(args, parts[0], parts[1], parts[2], parts[3])
	query := fmt.Sprintf(`UPDATE flights SET %s WHERE ops_date=$%d AND type=$%d AND flight_no=$%d AND sched_local=$%d`,
		strings.Join(setClauses, ", "), i, i+1, i+2, i+3)

	_, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update flight fields: %w", err)
	}
	return nil
}

// DeleteFlightsByKeys batches DELETEs in groups of 100 for the archive job.
func (p *PostgresDB) DeleteFlightsByKeys(ctx context.Context, keys []string) error {
	return batch(keys, 100, func(chunk []string) error {
		batchTx := &pgx.Batch{}
		for _, key := range chunk {
			parts := strings.SplitN(key, "|", 4)
			if len(parts) != 4 {
				continue
			}
			batchTx.Queue(`DELETE FROM flights WHERE ops_date=$1 AND type=$2 AND flight_no=$3 AND sched_local=$4`,
				parts[0], parts[1], parts[2], parts[3])
		}
		br := p.pool.SendBatch(ctx, batchTx)
		defer br.Close()
		for range chunk {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("delete flight: %w", err)
			}
		}
		return nil
	})
}

// GetUserByUsername returns nil, nil when the user does not exist.
func (p *PostgresDB) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := p.pool.QueryRow(ctx, `SELECT username, pin, role FROM users WHERE username=$1`, username).
		Scan(&u.Username, &u.PIN, &u.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// ListZoneOverrides returns the full override table keyed by normalized gate.
func (p *PostgresDB) ListZoneOverrides(ctx context.Context) (map[string]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT gate, value FROM zone_overrides`)
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
func (p *PostgresDB) ListUSAirportCodes(ctx context.Context) (map[string]bool, error) {
	rows, err := p.pool.Query(ctx, `SELECT iata FROM us_airport_codes`)
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

// DeleteArchiveByOpsDate clears any existing archive rows for opsDate,
// making the archive job's insert step idempotent on rerun.
func (p *PostgresDB) DeleteArchiveByOpsDate(ctx context.Context, opsDate string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM archive WHERE ops_date=$1`, opsDate)
	if err != nil {
		return fmt.Errorf("delete archive rows: %w", err)
	}
	return nil
}

// InsertArchiveRows batches archive INSERTs in groups of 100.
func (p *PostgresDB) InsertArchiveRows(ctx context.Context, rows []*ArchiveRow) error {
	return batch(rows, 100, func(chunk []*ArchiveRow) error {
		batchTx := &pgx.Batch{}
		for _, r := range chunk {
			batchTx.Queue(`INSERT INTO archive (ops_date, archived_at, flight_data) VALUES ($1,$2,$3)`,
				r.OpsDate, r.ArchivedAt, r.FlightData)
		}
		br := p.pool.SendBatch(ctx, batchTx)
		defer br.Close()
		for range chunk {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("insert archive row: %w", err)
			}
		}
		return nil
	})
}

// ListArchiveDates returns distinct ops_dates with flight counts.
func (p *PostgresDB) ListArchiveDates(ctx context.Context) ([]ArchiveDateCount, error) {
	rows, err := p.pool.Query(ctx, `SELECT ops_date, COUNT(*) FROM archive GROUP BY ops_date ORDER BY ops_date DESC`)
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
func (p *PostgresDB) ListArchiveRowsByDate(ctx context.Context, opsDate string) ([]*ArchiveRow, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, ops_date, archived_at, flight_data FROM archive WHERE ops_date=$1 ORDER BY id ASC`, opsDate)
	if err != nil {
		return nil, fmt.Errorf("list archive rows: %w", err)
	}
	defer rows.Close()

	var out []*ArchiveRow
	for rows.Next() {
		var r ArchiveRow
		if err := rows.Scan(&r.ID, &r.OpsDate, &r.ArchivedAt, &r.FlightData); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func batch[T any](items []T, size int, fn func([]T) error) error {
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		if err := fn(items[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// MarshalFlight serializes a flight snapshot for the archive table.
func MarshalFlight(f *Flight) (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("marshal flight: %w", err)
	}
	return string(b), nil
}

// UnmarshalFlight decodes a flight snapshot previously produced by
// MarshalFlight.
func UnmarshalFlight(data string) (*Flight, error) {
	var f Flight
	if err := json.Unmarshal([]byte(data), &f); err != nil {
		return nil, fmt.Errorf("unmarshal flight: %w", err)
	}
	return &f, nil
}
