package gtfs

import (
	"time"

	"github.com/jmoiron/sqlx"
)

// DetectionMethod defines how a stop event was detected
type DetectionMethod int

const (
	// DetectionStoppedAt indicates the vehicle reported STOPPED_AT the stop.
	DetectionStoppedAt DetectionMethod = 1
	// DetectionSeqJump indicates the stop was passed between two observed positions
	// and the event time was estimated from the cached trip update.
	DetectionSeqJump DetectionMethod = 2
	// DetectionTimeout indicates the trip's final stop, emitted when the vehicle
	// was next seen on another trip.
	DetectionTimeout DetectionMethod = 3
	// DetectionIncomingAt is reserved and never emitted.
	DetectionIncomingAt DetectionMethod = 4
)

// String - Stringer interface for DetectionMethod
func (m DetectionMethod) String() string {
	switch m {
	case DetectionStoppedAt:
		return "STOPPED_AT"
	case DetectionSeqJump:
		return "SEQ_JUMP"
	case DetectionTimeout:
		return "TIMEOUT"
	case DetectionIncomingAt:
		return "INCOMING_AT"
	}
	return "Unknown"
}

// StopEvent is one detected arrival of a vehicle at a stop, denormalized with
// route and stop fields so the analytics queries never join the static tables.
// Id and CreatedAt are database generated and zero until the row is read back.
type StopEvent struct {
	Id              int64           `db:"id" json:"id"`
	Agency          Agency          `db:"agency" json:"agency"`
	TripId          string          `db:"trip_id" json:"trip_id"`
	ServiceDate     time.Time       `db:"service_date" json:"service_date"`
	StopSequence    int             `db:"stop_sequence" json:"stop_sequence"`
	StopId          string          `db:"stop_id" json:"stop_id"`
	LineNumber      string          `db:"line_number" json:"line_number"`
	StopName        string          `db:"stop_name" json:"stop_name"`
	StopDesc        *string         `db:"stop_desc" json:"stop_desc"`
	DirectionId     *int            `db:"direction_id" json:"direction_id"`
	Headsign        *string         `db:"headsign" json:"headsign"`
	PlannedTime     time.Time       `db:"planned_time" json:"planned_time"`
	EventTime       time.Time       `db:"event_time" json:"event_time"`
	DelaySeconds    int             `db:"delay_seconds" json:"delay_seconds"`
	VehicleId       *string         `db:"vehicle_id" json:"vehicle_id"`
	LicensePlate    *string         `db:"license_plate" json:"license_plate"`
	DetectionMethod DetectionMethod `db:"detection_method" json:"detection_method"`
	IsEstimated     bool            `db:"is_estimated" json:"is_estimated"`
	StaticHash      string          `db:"static_hash" json:"static_hash"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// RecordStopEvents saves events to database in batch. Rows colliding with an
// already persisted (trip_id, service_date, stop_sequence) are dropped by the
// unique index, the returned count covers only rows actually written.
func RecordStopEvents(events []*StopEvent, db *sqlx.DB) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	statementString := "insert into stop_events ( " +
		"agency, " +
		"trip_id, " +
		"service_date, " +
		"stop_sequence, " +
		"stop_id, " +
		"line_number, " +
		"stop_name, " +
		"stop_desc, " +
		"direction_id, " +
		"headsign, " +
		"planned_time, " +
		"event_time, " +
		"delay_seconds, " +
		"vehicle_id, " +
		"license_plate, " +
		"detection_method, " +
		"is_estimated, " +
		"static_hash) " +
		"values (" +
		":agency, " +
		":trip_id, " +
		":service_date, " +
		":stop_sequence, " +
		":stop_id, " +
		":line_number, " +
		":stop_name, " +
		":stop_desc, " +
		":direction_id, " +
		":headsign, " +
		":planned_time, " +
		":event_time, " +
		":delay_seconds, " +
		":vehicle_id, " +
		":license_plate, " +
		":detection_method, " +
		":is_estimated, " +
		":static_hash) " +
		"on conflict (trip_id, service_date, stop_sequence) do nothing"
	statementString = db.Rebind(statementString)
	result, err := db.NamedExec(statementString, events)
	if err != nil {
		return 0, err
	}
	written, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(written), nil
}
