package statsapi

import (
	"fmt"
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/OpenTransitData/stopcast/foundation/database"
	"github.com/jmoiron/sqlx"
)

// minDelaySeconds filters the statistics. Stops reporting an earlier arrival
// than this are treated as garbage data, usually a misattributed vehicle.
const minDelaySeconds = -90

// The analytics run on the stop_events partitions. Every query restricts
// itself to stop sequences between the second and the penultimate stop of the
// scheduled trip: first and last stops carry garbage from layovers and driver
// logins. detection_method 2 marks backfilled sequence jump events whose
// times are estimates, the per stop statistics exclude them.
const maxDelayBetweenStopsSQL = `
	WITH real_seqs AS (
		SELECT trip_id, MAX(stop_sequence) AS max_seq
		FROM current_stop_times
		GROUP BY trip_id
	),
	filtered AS (
		SELECT e.trip_id, e.service_date, e.stop_sequence, e.stop_name, e.headsign,
		e.delay_seconds, e.line_number, e.license_plate, e.planned_time, e.event_time,
		e.detection_method
		FROM stop_events e
		JOIN real_seqs rs USING (trip_id)
		WHERE e.line_number = :line_number AND e.service_date BETWEEN :start_date AND :end_date
		AND e.stop_sequence > 1 AND e.stop_sequence < rs.max_seq
	),
	consecutive AS (
		SELECT trip_id, service_date, stop_sequence, stop_name, headsign, line_number,
		license_plate, delay_seconds, planned_time, event_time, detection_method,
		delay_seconds - LAG(delay_seconds) OVER w AS generated_delay,
		LAG(delay_seconds) OVER w AS prev_delay,
		LAG(stop_name) OVER w AS prev_stop_name,
		LAG(stop_sequence) OVER w AS prev_stop_sequence,
		LAG(planned_time) OVER w AS prev_planned_time,
		LAG(event_time) OVER w AS prev_event_time,
		LAG(license_plate) OVER w AS prev_license_plate,
		LAG(detection_method) OVER w AS prev_detection_method
		FROM filtered WINDOW w AS (
			PARTITION BY trip_id, service_date
			ORDER BY stop_sequence
		)
	)
	SELECT trip_id, service_date, line_number, license_plate AS vehicle_number,
	prev_stop_name AS from_stop, stop_name AS to_stop,
	prev_stop_sequence AS from_sequence, stop_sequence AS to_sequence,
	prev_planned_time AT TIME ZONE 'Europe/Warsaw' AS from_planned_time,
	prev_event_time AT TIME ZONE 'Europe/Warsaw' AS from_event_time,
	planned_time AT TIME ZONE 'Europe/Warsaw' AS to_planned_time,
	event_time AT TIME ZONE 'Europe/Warsaw' AS to_event_time,
	generated_delay AS delay_generated_seconds, headsign
	FROM consecutive
	WHERE generated_delay IS NOT NULL AND prev_delay >= :min_delay
	AND license_plate = prev_license_plate AND stop_sequence = prev_stop_sequence + 1
	AND detection_method != 2 AND prev_detection_method != 2
	ORDER BY generated_delay DESC
	LIMIT 10`

const tripsCountSQL = `
	SELECT COUNT(DISTINCT (trip_id, service_date)) FROM stop_events
	WHERE line_number = :line_number AND service_date BETWEEN :start_date AND :end_date`

const routeDelaySQL = `
	WITH real_seqs AS (
		SELECT trip_id, MAX(stop_sequence) AS max_seq
		FROM current_stop_times
		GROUP BY trip_id
	),
	filtered AS (
		SELECT e.trip_id, e.service_date, e.stop_sequence, e.stop_name, e.headsign,
		e.delay_seconds, e.line_number, e.license_plate, e.planned_time, e.event_time
		FROM stop_events e
		JOIN real_seqs rs USING (trip_id)
		WHERE e.line_number = :line_number AND e.service_date BETWEEN :start_date AND :end_date
		AND e.stop_sequence > 1 AND e.stop_sequence < rs.max_seq
	),
	trip_vehicle_check AS (
		SELECT trip_id, service_date, COUNT(DISTINCT license_plate) AS vehicle_count
		FROM filtered
		GROUP BY trip_id, service_date
	),
	boundary_check AS (
		SELECT f.trip_id, f.service_date, rs.max_seq,
		BOOL_OR(f.stop_sequence = 2) AS has_second,
		BOOL_OR(f.stop_sequence = rs.max_seq - 1) AS has_penultimate
		FROM filtered f
		JOIN real_seqs rs USING (trip_id)
		GROUP BY f.trip_id, f.service_date, rs.max_seq
	),
	valid_trips AS (
		SELECT bc.trip_id, bc.service_date
		FROM boundary_check bc
		JOIN trip_vehicle_check tvc USING (trip_id, service_date)
		WHERE bc.has_second AND bc.has_penultimate AND tvc.vehicle_count = 1
	),
	trip_bounds AS (
		SELECT f.trip_id, f.service_date, f.headsign, f.line_number, f.license_plate,
		FIRST_VALUE(f.stop_name) OVER w AS first_stop,
		LAST_VALUE(f.stop_name) OVER w_full AS last_stop,
		(FIRST_VALUE(f.planned_time) OVER w) AT TIME ZONE 'Europe/Warsaw' AS first_planned_time,
		(FIRST_VALUE(f.event_time) OVER w) AT TIME ZONE 'Europe/Warsaw' AS first_event_time,
		(LAST_VALUE(f.planned_time) OVER w_full) AT TIME ZONE 'Europe/Warsaw' AS last_planned_time,
		(LAST_VALUE(f.event_time) OVER w_full) AT TIME ZONE 'Europe/Warsaw' AS last_event_time,
		FIRST_VALUE(f.delay_seconds) OVER w AS start_delay,
		LAST_VALUE(f.delay_seconds) OVER w_full AS end_delay
		FROM filtered f
		JOIN valid_trips vt USING (trip_id, service_date)
		WINDOW w AS (
			PARTITION BY f.trip_id, f.service_date
			ORDER BY f.stop_sequence
		),
		w_full AS (
			PARTITION BY f.trip_id, f.service_date
			ORDER BY f.stop_sequence
			ROWS BETWEEN UNBOUNDED PRECEDING AND UNBOUNDED FOLLOWING
		)
	)
	SELECT DISTINCT ON (trip_id, service_date) trip_id, service_date, line_number,
	license_plate AS vehicle_number, first_stop, last_stop,
	first_planned_time, first_event_time, last_planned_time, last_event_time,
	start_delay AS start_delay_seconds, end_delay AS end_delay_seconds,
	(end_delay - start_delay) AS delay_generated_seconds, headsign
	FROM trip_bounds
	WHERE start_delay >= :min_delay
	ORDER BY trip_id, service_date, delay_generated_seconds DESC`

const punctualitySQL = `
	WITH real_seqs AS (
		SELECT trip_id, MAX(stop_sequence) AS max_seq
		FROM current_stop_times
		GROUP BY trip_id
	)
	SELECT COUNT(*) AS total,
	COUNT(*) FILTER (WHERE e.delay_seconds <= 120) AS on_time,
	COUNT(*) FILTER (WHERE e.delay_seconds > 120 AND e.delay_seconds <= 360) AS slightly_delayed,
	COUNT(*) FILTER (WHERE e.delay_seconds > 360) AS delayed
	FROM stop_events e
	JOIN real_seqs rs USING (trip_id)
	WHERE e.line_number = :line_number AND e.service_date BETWEEN :start_date AND :end_date
	AND e.stop_sequence > 1 AND e.stop_sequence < rs.max_seq
	AND e.delay_seconds >= :min_delay AND e.detection_method != 2`

const trendSQL = `
	WITH real_seqs AS (
		SELECT trip_id, MAX(stop_sequence) AS max_seq
		FROM current_stop_times
		GROUP BY trip_id
	)
	SELECT e.service_date,
	CAST(AVG(e.delay_seconds) AS DOUBLE PRECISION) AS avg_delay_seconds,
	COUNT(DISTINCT (e.trip_id, e.service_date)) AS trips_count
	FROM stop_events e
	JOIN real_seqs rs USING (trip_id)
	WHERE e.line_number = :line_number AND e.service_date BETWEEN :start_date AND :end_date
	AND e.stop_sequence > 1 AND e.stop_sequence < rs.max_seq
	AND e.delay_seconds >= :min_delay
	GROUP BY e.service_date
	ORDER BY e.service_date`

const linesSummarySQL = `
	WITH real_seqs AS (
		SELECT trip_id, MAX(stop_sequence) AS max_seq
		FROM current_stop_times
		GROUP BY trip_id
	),
	per_stop AS (
		SELECT e.line_number, e.trip_id, e.service_date, e.stop_sequence, e.delay_seconds,
		e.delay_seconds - LAG(e.delay_seconds) OVER w AS generated_delay,
		LAG(e.delay_seconds) OVER w AS prev_delay
		FROM stop_events e
		JOIN real_seqs rs USING (trip_id)
		WHERE e.service_date BETWEEN :start_date AND :end_date
		AND e.stop_sequence > 1 AND e.stop_sequence < rs.max_seq
		WINDOW w AS (
			PARTITION BY e.trip_id, e.service_date
			ORDER BY e.stop_sequence
		)
	)
	SELECT line_number, COUNT(DISTINCT (trip_id, service_date)) AS trips_count,
	CAST(AVG(delay_seconds) AS DOUBLE PRECISION) AS avg_delay_seconds,
	MAX(delay_seconds) AS max_delay_seconds,
	COALESCE(MAX(CASE WHEN prev_delay >= :min_delay THEN generated_delay END), 0)
		AS max_delay_between_stops_seconds
	FROM per_stop
	GROUP BY line_number
	ORDER BY max_delay_seconds DESC`

//maxDelayRow is one scanned result row of maxDelayBetweenStopsSQL
type maxDelayRow struct {
	TripId                string    `db:"trip_id"`
	ServiceDate           time.Time `db:"service_date"`
	LineNumber            string    `db:"line_number"`
	VehicleNumber         *string   `db:"vehicle_number"`
	FromStop              string    `db:"from_stop"`
	ToStop                string    `db:"to_stop"`
	FromSequence          int       `db:"from_sequence"`
	ToSequence            int       `db:"to_sequence"`
	FromPlannedTime       time.Time `db:"from_planned_time"`
	FromEventTime         time.Time `db:"from_event_time"`
	ToPlannedTime         time.Time `db:"to_planned_time"`
	ToEventTime           time.Time `db:"to_event_time"`
	DelayGeneratedSeconds int       `db:"delay_generated_seconds"`
	Headsign              *string   `db:"headsign"`
}

//routeDelayRow is one scanned result row of routeDelaySQL
type routeDelayRow struct {
	TripId                string    `db:"trip_id"`
	ServiceDate           time.Time `db:"service_date"`
	LineNumber            string    `db:"line_number"`
	VehicleNumber         *string   `db:"vehicle_number"`
	FirstStop             string    `db:"first_stop"`
	LastStop              string    `db:"last_stop"`
	FirstPlannedTime      time.Time `db:"first_planned_time"`
	FirstEventTime        time.Time `db:"first_event_time"`
	LastPlannedTime       time.Time `db:"last_planned_time"`
	LastEventTime         time.Time `db:"last_event_time"`
	StartDelaySeconds     int       `db:"start_delay_seconds"`
	EndDelaySeconds       int       `db:"end_delay_seconds"`
	DelayGeneratedSeconds int       `db:"delay_generated_seconds"`
	Headsign              *string   `db:"headsign"`
}

//punctualityRow is the single result row of punctualitySQL
type punctualityRow struct {
	Total           int `db:"total"`
	OnTime          int `db:"on_time"`
	SlightlyDelayed int `db:"slightly_delayed"`
	Delayed         int `db:"delayed"`
}

//trendRow is one scanned result row of trendSQL
type trendRow struct {
	ServiceDate     time.Time `db:"service_date"`
	AvgDelaySeconds float64   `db:"avg_delay_seconds"`
	TripsCount      int       `db:"trips_count"`
}

//lineSummaryRow is one scanned result row of linesSummarySQL
type lineSummaryRow struct {
	LineNumber                  string  `db:"line_number"`
	TripsCount                  int     `db:"trips_count"`
	AvgDelaySeconds             float64 `db:"avg_delay_seconds"`
	MaxDelaySeconds             int     `db:"max_delay_seconds"`
	MaxDelayBetweenStopsSeconds int     `db:"max_delay_between_stops_seconds"`
}

//statsSource interface provides the analytic queries behind the statistics endpoints
type statsSource interface {

	//tripsCount reports how many distinct trips a line recorded in the range
	tripsCount(lineNumber string, dates dateRange) (int, error)

	//maxDelayBetweenStops returns the top delay increments between consecutive stops
	maxDelayBetweenStops(lineNumber string, dates dateRange) ([]*maxDelayRow, error)

	//maxRouteDelay returns per trip delay generated across the route, unsorted
	maxRouteDelay(lineNumber string, dates dateRange) ([]*routeDelayRow, error)

	//punctuality returns the per stop delay classification counts
	punctuality(lineNumber string, dates dateRange) (*punctualityRow, error)

	//trend returns the daily average delay rows in date order
	trend(lineNumber string, dates dateRange) ([]*trendRow, error)

	//linesSummary returns per line delay aggregates across all lines
	linesSummary(dates dateRange) ([]*lineSummaryRow, error)
}

//dbStatsSource implements statsSource against the database
type dbStatsSource struct {
	db *sqlx.DB
}

func lineArgs(lineNumber string, dates dateRange) map[string]interface{} {
	return map[string]interface{}{
		"line_number": lineNumber,
		"start_date":  dates.Start,
		"end_date":    dates.End,
		"min_delay":   minDelaySeconds,
	}
}

func (d *dbStatsSource) tripsCount(lineNumber string, dates dateRange) (int, error) {
	rows, err := database.PrepareNamedQueryRowsFromMap(tripsCountSQL, d.db, map[string]interface{}{
		"line_number": lineNumber,
		"start_date":  dates.Start,
		"end_date":    dates.End,
	})
	defer func() {
		if rows != nil {
			_ = rows.Close()
		}
	}()
	if err != nil {
		return 0, fmt.Errorf("unable to count trips for line %s, error: %w", lineNumber, err)
	}

	count := 0
	if rows.Next() {
		if err = rows.Scan(&count); err != nil {
			return 0, fmt.Errorf("unable to scan trip count for line %s, error: %w", lineNumber, err)
		}
	}
	return count, rows.Err()
}

func (d *dbStatsSource) maxDelayBetweenStops(lineNumber string, dates dateRange) ([]*maxDelayRow, error) {
	rows, err := database.PrepareNamedQueryRowsFromMap(maxDelayBetweenStopsSQL, d.db, lineArgs(lineNumber, dates))
	defer func() {
		if rows != nil {
			_ = rows.Close()
		}
	}()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve max delay rows for line %s, error: %w", lineNumber, err)
	}

	results := make([]*maxDelayRow, 0)
	for rows.Next() {
		row := maxDelayRow{}
		if err = rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("unable to scan max delay row, error: %w", err)
		}
		results = append(results, &row)
	}
	return results, rows.Err()
}

func (d *dbStatsSource) maxRouteDelay(lineNumber string, dates dateRange) ([]*routeDelayRow, error) {
	rows, err := database.PrepareNamedQueryRowsFromMap(routeDelaySQL, d.db, lineArgs(lineNumber, dates))
	defer func() {
		if rows != nil {
			_ = rows.Close()
		}
	}()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve route delay rows for line %s, error: %w", lineNumber, err)
	}

	results := make([]*routeDelayRow, 0)
	for rows.Next() {
		row := routeDelayRow{}
		if err = rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("unable to scan route delay row, error: %w", err)
		}
		results = append(results, &row)
	}
	return results, rows.Err()
}

func (d *dbStatsSource) punctuality(lineNumber string, dates dateRange) (*punctualityRow, error) {
	rows, err := database.PrepareNamedQueryRowsFromMap(punctualitySQL, d.db, lineArgs(lineNumber, dates))
	defer func() {
		if rows != nil {
			_ = rows.Close()
		}
	}()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve punctuality for line %s, error: %w", lineNumber, err)
	}

	result := punctualityRow{}
	if rows.Next() {
		if err = rows.StructScan(&result); err != nil {
			return nil, fmt.Errorf("unable to scan punctuality row, error: %w", err)
		}
	}
	return &result, rows.Err()
}

func (d *dbStatsSource) trend(lineNumber string, dates dateRange) ([]*trendRow, error) {
	rows, err := database.PrepareNamedQueryRowsFromMap(trendSQL, d.db, lineArgs(lineNumber, dates))
	defer func() {
		if rows != nil {
			_ = rows.Close()
		}
	}()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve trend rows for line %s, error: %w", lineNumber, err)
	}

	results := make([]*trendRow, 0)
	for rows.Next() {
		row := trendRow{}
		if err = rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("unable to scan trend row, error: %w", err)
		}
		results = append(results, &row)
	}
	return results, rows.Err()
}

func (d *dbStatsSource) linesSummary(dates dateRange) ([]*lineSummaryRow, error) {
	rows, err := database.PrepareNamedQueryRowsFromMap(linesSummarySQL, d.db, map[string]interface{}{
		"start_date": dates.Start,
		"end_date":   dates.End,
		"min_delay":  minDelaySeconds,
	})
	defer func() {
		if rows != nil {
			_ = rows.Close()
		}
	}()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve lines summary, error: %w", err)
	}

	results := make([]*lineSummaryRow, 0)
	for rows.Next() {
		row := lineSummaryRow{}
		if err = rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("unable to scan line summary row, error: %w", err)
		}
		results = append(results, &row)
	}
	return results, rows.Err()
}

//shapeSource interface provides the stored shape polylines
type shapeSource interface {

	//getShapePoints returns the polyline points for shapeId in drawing order
	getShapePoints(shapeId string) ([]*gtfs.Shape, error)
}

//dbShapeSource implements shapeSource against the database
type dbShapeSource struct {
	db *sqlx.DB
}

func (d *dbShapeSource) getShapePoints(shapeId string) ([]*gtfs.Shape, error) {
	return gtfs.GetShapePoints(d.db, shapeId)
}
