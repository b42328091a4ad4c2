package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS permits (
		id          UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		plate_text  TEXT NOT NULL,
		zone        TEXT NOT NULL,
		valid_from  TIMESTAMPTZ NOT NULL,
		valid_to    TIMESTAMPTZ NOT NULL,
		holder      TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (valid_from < valid_to)
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_permits_grant ON permits(plate_text, zone, valid_from, valid_to);`,
	`CREATE INDEX IF NOT EXISTS idx_permits_plate_zone ON permits(plate_text, zone);`,
	`CREATE TABLE IF NOT EXISTS timed_stays (
		id          UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		plate_text  TEXT NOT NULL,
		zone        TEXT NOT NULL,
		entry_time  TIMESTAMPTZ NOT NULL,
		time_limit  BIGINT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_timed_stays_key ON timed_stays(plate_text, zone);`,
	`CREATE TABLE IF NOT EXISTS events (
		id          BIGSERIAL PRIMARY KEY,
		plate_text  TEXT NOT NULL,
		raw_plate   TEXT NOT NULL,
		confidence  NUMERIC(5,4),
		timestamp   TIMESTAMPTZ NOT NULL,
		zone        TEXT NOT NULL,
		kind        TEXT NOT NULL,
		image_ref   TEXT,
		verdict     TEXT NOT NULL,
		message     TEXT,
		extra       JSONB,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_events_plate_text ON events(plate_text);`,
	`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
