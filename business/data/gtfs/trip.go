package gtfs

import (
	"github.com/jackc/pgx"
	"github.com/jmoiron/sqlx"
)

/*
Trip contains rows from the GTFS trips.txt file.
RouteShortName is joined in from current_routes by the retrieval functions
and is not a column of current_trips.
*/
type Trip struct {
	TripId         string  `db:"trip_id" json:"trip_id"`
	RouteId        string  `db:"route_id" json:"route_id"`
	ServiceId      string  `db:"service_id" json:"service_id"`
	DirectionId    *int    `db:"direction_id" json:"direction_id"`
	Headsign       *string `db:"headsign" json:"headsign"`
	ShapeId        *string `db:"shape_id" json:"shape_id"`
	RouteShortName string  `db:"route_short_name" json:"route_short_name"`
}

// TripInfo is the slice of trip and route fields the live vehicle feed needs.
type TripInfo struct {
	RouteShortName string
	Headsign       string
	ShapeId        *string
}

// RecordTrips loads trips over the COPY protocol in a single batch
func RecordTrips(trips []*Trip, atx *AgencyTransaction) error {
	rows := make([][]interface{}, 0, len(trips))
	for _, trip := range trips {
		rows = append(rows, []interface{}{
			trip.TripId,
			trip.RouteId,
			trip.ServiceId,
			trip.DirectionId,
			trip.Headsign,
			trip.ShapeId,
		})
	}
	_, err := atx.Tx.CopyFrom(
		pgx.Identifier{"current_trips"},
		[]string{"trip_id", "route_id", "service_id", "direction_id", "headsign", "shape_id"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// GetTrip retrieves the trip with tripId including its route's short name,
// or sql.ErrNoRows when the trip is unknown
func GetTrip(db *sqlx.DB, tripId string) (*Trip, error) {
	query := "select t.trip_id, t.route_id, t.service_id, t.direction_id, t.headsign, t.shape_id, " +
		"r.route_short_name " +
		"from current_trips t " +
		"join current_routes r on r.route_id = t.route_id " +
		"where t.trip_id = $1"
	trip := Trip{}
	err := db.Get(&trip, query, tripId)
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

// GetAllTripInfo retrieves route short name, headsign and shape for every
// loaded trip, keyed by trip id
func GetAllTripInfo(db *sqlx.DB) (map[string]TripInfo, error) {
	query := "select t.trip_id, t.headsign, t.shape_id, r.route_short_name " +
		"from current_trips t " +
		"join current_routes r on r.route_id = t.route_id"
	rows, err := db.Queryx(query)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	results := make(map[string]TripInfo)
	for rows.Next() {
		var tripId string
		var headsign *string
		var shapeId *string
		var routeShortName string
		if err = rows.Scan(&tripId, &headsign, &shapeId, &routeShortName); err != nil {
			return nil, err
		}
		info := TripInfo{
			RouteShortName: routeShortName,
			ShapeId:        shapeId,
		}
		if headsign != nil {
			info.Headsign = *headsign
		}
		results[tripId] = info
	}
	return results, rows.Err()
}
