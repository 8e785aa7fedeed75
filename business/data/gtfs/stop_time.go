package gtfs

import (
	"database/sql"

	"github.com/jackc/pgx"
	"github.com/jmoiron/sqlx"
)

// StopTime contains rows from the GTFS stop_times.txt file. ArrivalSeconds and
// DepartureSeconds count from midnight of the service day and may exceed 86400
// on overnight trips.
type StopTime struct {
	TripId           string `db:"trip_id" json:"trip_id"`
	StopSequence     int    `db:"stop_sequence" json:"stop_sequence"`
	StopId           string `db:"stop_id" json:"stop_id"`
	ArrivalSeconds   int    `db:"arrival_seconds" json:"arrival_seconds"`
	DepartureSeconds *int   `db:"departure_seconds" json:"departure_seconds"`
}

// RecordStopTimes loads stop times over the COPY protocol in a single batch.
// stop_times.txt is by far the largest file in an archive.
func RecordStopTimes(stopTimes []*StopTime, atx *AgencyTransaction) error {
	rows := make([][]interface{}, 0, len(stopTimes))
	for _, stopTime := range stopTimes {
		rows = append(rows, []interface{}{
			stopTime.TripId,
			stopTime.StopSequence,
			stopTime.StopId,
			stopTime.ArrivalSeconds,
			stopTime.DepartureSeconds,
		})
	}
	_, err := atx.Tx.CopyFrom(
		pgx.Identifier{"current_stop_times"},
		[]string{"trip_id", "stop_sequence", "stop_id", "arrival_seconds", "departure_seconds"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// GetStopTimesForTrip retrieves the trip's stop times keyed by stop sequence.
// An unknown trip produces an empty map.
func GetStopTimesForTrip(db *sqlx.DB, tripId string) (map[int]*StopTime, error) {
	query := "select trip_id, stop_sequence, stop_id, arrival_seconds, departure_seconds " +
		"from current_stop_times where trip_id = $1 order by stop_sequence"
	stopTimes := make([]*StopTime, 0)
	if err := db.Select(&stopTimes, query, tripId); err != nil {
		return nil, err
	}
	results := make(map[int]*StopTime, len(stopTimes))
	for _, stopTime := range stopTimes {
		results[stopTime.StopSequence] = stopTime
	}
	return results, nil
}

// GetMaxStopSequence retrieves the trip's final stop sequence, or zero when
// the trip has no stop times.
func GetMaxStopSequence(db *sqlx.DB, tripId string) (int, error) {
	query := "select max(stop_sequence) from current_stop_times where trip_id = $1"
	var maxSequence sql.NullInt64
	if err := db.Get(&maxSequence, query, tripId); err != nil {
		return 0, err
	}
	return int(maxSequence.Int64), nil
}

// GetStopIdToSequenceMap maps the trip's stop ids to their stop sequence, for
// resolving trip update entries that carry only a stop id.
func GetStopIdToSequenceMap(db *sqlx.DB, tripId string) (map[string]int, error) {
	query := "select stop_id, stop_sequence from current_stop_times " +
		"where trip_id = $1 order by stop_sequence"
	rows, err := db.Queryx(query, tripId)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	results := make(map[string]int)
	for rows.Next() {
		var stopId string
		var stopSequence int
		if err = rows.Scan(&stopId, &stopSequence); err != nil {
			return nil, err
		}
		results[stopId] = stopSequence
	}
	return results, rows.Err()
}
