package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:sepakat.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/sepakat?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  nama TEXT NOT NULL,
  nip TEXT NOT NULL UNIQUE,
  nrk TEXT NOT NULL,
  jabatan TEXT NOT NULL,
  unit_kerja TEXT NOT NULL,
  wilayah TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'user',
  token TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS templates (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  components_json TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS weight_matrices (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  grades_json TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS assessments (
  id TEXT PRIMARY KEY,
  candidate TEXT NOT NULL,
  main_reviewer TEXT NOT NULL,
  peer_reviewers TEXT NOT NULL DEFAULT '[]',
  template_id TEXT NOT NULL,
  weight_matrix_id TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'PENDING',
  validator TEXT NOT NULL DEFAULT '',
  validator_status TEXT NOT NULL DEFAULT 'PENDING',
  validator_note TEXT NOT NULL DEFAULT '',
  admin_peer TEXT NOT NULL DEFAULT '',
  admin_peer_input TEXT,
  main_reviewer_note TEXT NOT NULL DEFAULT '',
  main_json TEXT,
  peers_json TEXT NOT NULL DEFAULT '[]',
  final_score REAL NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT, -- BIGSERIAL in Postgres
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,                         -- e.g., assessment.submit_main
  key TEXT NOT NULL,                         -- natural key: assessment id
  data TEXT NOT NULL,                        -- JSON payload
  created_at INTEGER NOT NULL
);

`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  nama TEXT NOT NULL,
  nip TEXT NOT NULL UNIQUE,
  nrk TEXT NOT NULL,
  jabatan TEXT NOT NULL,
  unit_kerja TEXT NOT NULL,
  wilayah TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'user',
  token TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS templates (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  components_json TEXT NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS weight_matrices (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  grades_json TEXT NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS assessments (
  id TEXT PRIMARY KEY,
  candidate TEXT NOT NULL,
  main_reviewer TEXT NOT NULL,
  peer_reviewers TEXT NOT NULL DEFAULT '[]',
  template_id TEXT NOT NULL,
  weight_matrix_id TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'PENDING',
  validator TEXT NOT NULL DEFAULT '',
  validator_status TEXT NOT NULL DEFAULT 'PENDING',
  validator_note TEXT NOT NULL DEFAULT '',
  admin_peer TEXT NOT NULL DEFAULT '',
  admin_peer_input TEXT,
  main_reviewer_note TEXT NOT NULL DEFAULT '',
  main_json TEXT,
  peers_json TEXT NOT NULL DEFAULT '[]',
  final_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

`
