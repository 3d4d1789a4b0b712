// Package main provides the dispatchd server: the airport
// passenger-assistance dispatch backend (spec §1-§2).
//
// Usage:
//
//	dispatchd [options]
//
// Options:
//
//	-db-driver DRIVER     "postgres" or "sqlite" (default: postgres, env: DB_DRIVER)
//	-pg-dsn DSN           Postgres connection string (env: POSTGRES_DSN)
//	-sqlite-path PATH     SQLite file path when -db-driver=sqlite (default: dispatchd.db, env: SQLITE_PATH)
//	-port N               HTTP port (default: 8080, env: PORT)
//	-hmac-key KEY         HMAC signing key for bearer tokens (env: HMAC_KEY, required)
//	-fids-api-key KEY     AeroDataBox API key (env: FIDS_API_KEY, required)
//	-timezone NAME        Airport IANA timezone (default: America/Toronto, env: AIRPORT_TIMEZONE)
//
// On startup dispatchd creates its schema if absent, then serves the
// HTTP API (spec §4.9, §6) while a background scheduler (internal/scheduler)
// drives the FIDS sync and nightly archive job (spec §4.4, §4.7).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"dispatchd/internal/api"
	"dispatchd/internal/archive"
	"dispatchd/internal/auth"
	"dispatchd/internal/fids"
	"dispatchd/internal/ops"
	"dispatchd/internal/scheduler"
	"dispatchd/internal/store"
)

func main() {
	dbDriver := flag.String("db-driver", envOrDefault("DB_DRIVER", "postgres"), `storage backend: "postgres" or "sqlite"`)
	pgDSN := flag.String("pg-dsn", envOrDefault("POSTGRES_DSN", ""), "PostgreSQL connection string")
	sqlitePath := flag.String("sqlite-path", envOrDefault("SQLITE_PATH", "dispatchd.db"), "SQLite file path (when -db-driver=sqlite)")
	port := flag.Int("port", envOrDefaultInt("PORT", 8080), "HTTP port for the API server")
	hmacKey := flag.String("hmac-key", envOrDefault("HMAC_KEY", ""), "HMAC signing key for bearer tokens")
	fidsAPIKey := flag.String("fids-api-key", envOrDefault("FIDS_API_KEY", ""), "AeroDataBox API key")
	timezone := flag.String("timezone", envOrDefault("AIRPORT_TIMEZONE", "America/Toronto"), "Airport IANA timezone")

	flag.Parse()

	if *hmacKey == "" {
		fmt.Fprintln(os.Stderr, "Error: -hmac-key (or HMAC_KEY) is required")
		os.Exit(1)
	}
	if *fidsAPIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: -fids-api-key (or FIDS_API_KEY) is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := ops.LoadLocation(*timezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading timezone %q: %v\n", *timezone, err)
		os.Exit(1)
	}

	db, err := openDB(ctx, *dbDriver, *pgDSN, *sqlitePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.CreateSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating schema: %v\n", err)
		os.Exit(1)
	}

	overlay := store.NewOverlay()
	signer := auth.NewSigner([]byte(*hmacKey))
	provider := fids.NewHTTPProvider(fids.HTTPConfig{APIKey: *fidsAPIKey})
	fetcher := fids.NewFetcher(provider)

	server := api.NewServer(api.Deps{
		DB:      db,
		Overlay: overlay,
		Signer:  signer,
		Fetcher: fetcher,
		Loc:     loc,
	}, api.Config{Addr: fmt.Sprintf(":%d", *port)})

	archiver := archive.NewRunner(db, loc)
	sched := scheduler.New(server.RunSync, archiver.RunOnce, func() time.Time { return time.Now().UTC() })
	go sched.Run(ctx)

	if err := server.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func openDB(ctx context.Context, driver, pgDSN, sqlitePath string) (store.DB, error) {
	switch driver {
	case "sqlite":
		return store.OpenSQLite(sqlitePath)
	case "postgres", "":
		return store.OpenPostgres(ctx, store.PostgresConfig{DSN: pgDSN})
	default:
		return nil, fmt.Errorf("unknown -db-driver %q (want \"postgres\" or \"sqlite\")", driver)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
