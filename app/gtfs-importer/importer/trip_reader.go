package importer

import (
	"github.com/OpenTransitData/stopcast/business/data/gtfs"
)

const batchedTripCount = 250

// tripRowReader implements gtfsRowReader interface for gtfs.Trip
// batches inserts
type tripRowReader struct {
	batchedTrips []*gtfs.Trip
}

func (r *tripRowReader) addRow(parser *gtfsFileParser, atx *gtfs.AgencyTransaction) error {
	trip, err := buildTrip(parser)
	if err != nil {
		return err
	}

	r.batchedTrips = append(r.batchedTrips, trip)

	//check if its time to save the batch
	if len(r.batchedTrips) == batchedTripCount {
		return r.flush(atx)
	}
	return nil
}

func (r *tripRowReader) flush(atx *gtfs.AgencyTransaction) error {
	//check if there's something to do
	if len(r.batchedTrips) == 0 {
		return nil
	}

	err := gtfs.RecordTrips(r.batchedTrips, atx)
	if err != nil {
		return err
	}
	//truncate batch
	r.batchedTrips = make([]*gtfs.Trip, 0)
	return nil
}

func buildTrip(parser *gtfsFileParser) (*gtfs.Trip, error) {
	trip := gtfs.Trip{
		TripId:      parser.getString("trip_id", false),
		RouteId:     parser.getString("route_id", false),
		ServiceId:   parser.getString("service_id", false),
		DirectionId: parser.getIntPointer("direction_id", true),
		Headsign:    parser.getStringPointer("trip_headsign", true),
		ShapeId:     parser.getStringPointer("shape_id", true),
	}
	return &trip, parser.getError()
}
