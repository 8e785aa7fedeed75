package gtfs

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// schemaStatements holds every relational object this system needs. All
// statements are idempotent so they can run on every importer startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS gtfs_meta (
		agency TEXT NOT NULL,
		current_hash TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (agency)
	)`,

	`CREATE TABLE IF NOT EXISTS current_routes (
		route_id TEXT NOT NULL,
		agency_id TEXT NOT NULL,
		route_short_name TEXT NOT NULL,
		PRIMARY KEY (route_id)
	)`,

	`CREATE TABLE IF NOT EXISTS current_stops (
		stop_id TEXT NOT NULL,
		stop_name TEXT NOT NULL,
		stop_code TEXT,
		stop_desc TEXT,
		stop_lat DOUBLE PRECISION,
		stop_lon DOUBLE PRECISION,
		PRIMARY KEY (stop_id)
	)`,

	`CREATE TABLE IF NOT EXISTS current_trips (
		trip_id TEXT NOT NULL,
		route_id TEXT NOT NULL REFERENCES current_routes (route_id),
		service_id TEXT NOT NULL,
		direction_id SMALLINT,
		headsign TEXT,
		shape_id TEXT,
		PRIMARY KEY (trip_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_current_trips_route ON current_trips (route_id)`,
	`CREATE INDEX IF NOT EXISTS idx_current_trips_shape ON current_trips (shape_id)`,

	`CREATE TABLE IF NOT EXISTS current_stop_times (
		trip_id TEXT NOT NULL REFERENCES current_trips (trip_id),
		stop_sequence INTEGER NOT NULL,
		stop_id TEXT NOT NULL REFERENCES current_stops (stop_id),
		arrival_seconds INTEGER NOT NULL,
		departure_seconds INTEGER,
		PRIMARY KEY (trip_id, stop_sequence)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_current_stop_times_stop ON current_stop_times (stop_id)`,

	`CREATE TABLE IF NOT EXISTS current_shapes (
		id BIGINT GENERATED ALWAYS AS IDENTITY,
		agency_id TEXT NOT NULL,
		shape_id TEXT NOT NULL,
		shape_pt_lat DOUBLE PRECISION NOT NULL,
		shape_pt_lon DOUBLE PRECISION NOT NULL,
		shape_pt_sequence INTEGER NOT NULL,
		PRIMARY KEY (id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_current_shapes_shape_seq
		ON current_shapes (shape_id, shape_pt_sequence)`,

	`CREATE TABLE IF NOT EXISTS stop_events (
		id BIGINT GENERATED ALWAYS AS IDENTITY,
		agency TEXT NOT NULL,
		trip_id TEXT NOT NULL,
		service_date DATE NOT NULL,
		stop_sequence INTEGER NOT NULL,
		stop_id TEXT NOT NULL,
		line_number TEXT NOT NULL,
		stop_name TEXT NOT NULL,
		stop_desc TEXT,
		direction_id SMALLINT,
		headsign TEXT,
		planned_time TIMESTAMPTZ NOT NULL,
		event_time TIMESTAMPTZ NOT NULL,
		delay_seconds INTEGER NOT NULL,
		vehicle_id TEXT,
		license_plate TEXT,
		detection_method SMALLINT NOT NULL,
		is_estimated BOOLEAN NOT NULL DEFAULT FALSE,
		static_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (id, service_date)
	) PARTITION BY RANGE (service_date)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS uq_stop_events_trip_date_seq
		ON stop_events (trip_id, service_date, stop_sequence)`,
	`CREATE INDEX IF NOT EXISTS idx_stop_events_line_time
		ON stop_events (line_number, event_time)`,
	`CREATE INDEX IF NOT EXISTS idx_stop_events_stop_time
		ON stop_events (stop_id, event_time)`,

	`CREATE OR REPLACE VIEW stop_events_view AS
		SELECT id, agency, service_date, stop_sequence, line_number, stop_name, stop_desc, headsign,
			planned_time AT TIME ZONE 'Europe/Warsaw' AS planned_time,
			event_time AT TIME ZONE 'Europe/Warsaw' AS event_time,
			delay_seconds, license_plate, detection_method, is_estimated,
			created_at AT TIME ZONE 'Europe/Warsaw' AS created_at
		FROM stop_events`,
}

// ApplySchema creates the tables, indexes and view when missing. Existing
// objects and their data are left alone.
func ApplySchema(db *sqlx.DB) error {
	for _, statementString := range schemaStatements {
		if _, err := db.Exec(statementString); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

// EnsureMonthlyPartitions creates the stop_events partitions for the month of
// now and the following monthsAhead months. Inserts into an uncovered month
// fail, so the importer calls this every cycle.
func EnsureMonthlyPartitions(db *sqlx.DB, now time.Time, monthsAhead int) error {
	for i := 0; i <= monthsAhead; i++ {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
		nextMonthStart := monthStart.AddDate(0, 1, 0)
		statementString := fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS stop_events_%s PARTITION OF stop_events "+
				"FOR VALUES FROM ('%s') TO ('%s')",
			monthStart.Format("2006_01"),
			monthStart.Format("2006-01-02"),
			nextMonthStart.Format("2006-01-02"),
		)
		if _, err := db.Exec(statementString); err != nil {
			return fmt.Errorf("creating partition for %s: %w", monthStart.Format("2006-01"), err)
		}
	}
	return nil
}
