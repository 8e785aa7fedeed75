package rtfeed

import (
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
)

// StopTimeUpdate is a single stop prediction from a TripUpdates feed. At least
// one of ArrivalTime or DepartureTime is set, StopSequence may be nil when the
// feed only names the stop.
type StopTimeUpdate struct {
	StopId        string
	StopSequence  *int
	ArrivalTime   *time.Time
	DepartureTime *time.Time
}

// TripUpdate contains the usable stop predictions of one trip_update entity.
type TripUpdate struct {
	Agency          gtfs.Agency
	TripId          string
	VehicleId       *string
	Timestamp       time.Time
	StopTimeUpdates []StopTimeUpdate
}

// DecodeTripUpdates parses a TripUpdates payload. Entities without a trip id
// or a timestamp are skipped, as are stop time updates without a stop id or
// without any time. Entities whose every stop time update was skipped are
// dropped entirely.
func DecodeTripUpdates(payload []byte, agency gtfs.Agency) ([]TripUpdate, error) {
	feedMessage, err := unmarshalFeed(payload)
	if err != nil || feedMessage == nil {
		return nil, err
	}

	results := make([]TripUpdate, 0, len(feedMessage.Entity))
	for _, entity := range feedMessage.Entity {
		tripUpdate := entity.TripUpdate
		if tripUpdate == nil {
			continue
		}
		if tripUpdate.Trip == nil || tripUpdate.Trip.GetTripId() == "" {
			continue
		}
		if tripUpdate.GetTimestamp() == 0 {
			continue
		}

		var vehicleId *string
		if tripUpdate.Vehicle != nil && tripUpdate.Vehicle.GetId() != "" {
			id := tripUpdate.Vehicle.GetId()
			vehicleId = &id
		}

		stopTimeUpdates := make([]StopTimeUpdate, 0, len(tripUpdate.StopTimeUpdate))
		for _, stu := range tripUpdate.StopTimeUpdate {
			if stu.GetStopId() == "" {
				continue
			}
			update := StopTimeUpdate{StopId: stu.GetStopId()}
			if stu.StopSequence != nil {
				stopSequence := int(stu.GetStopSequence())
				update.StopSequence = &stopSequence
			}
			if stu.Arrival != nil && stu.Arrival.GetTime() != 0 {
				arrivalTime := time.Unix(stu.Arrival.GetTime(), 0).UTC()
				update.ArrivalTime = &arrivalTime
			}
			if stu.Departure != nil && stu.Departure.GetTime() != 0 {
				departureTime := time.Unix(stu.Departure.GetTime(), 0).UTC()
				update.DepartureTime = &departureTime
			}
			if update.ArrivalTime == nil && update.DepartureTime == nil {
				continue
			}
			stopTimeUpdates = append(stopTimeUpdates, update)
		}
		if len(stopTimeUpdates) == 0 {
			continue
		}

		results = append(results, TripUpdate{
			Agency:          agency,
			TripId:          tripUpdate.Trip.GetTripId(),
			VehicleId:       vehicleId,
			Timestamp:       time.Unix(int64(tripUpdate.GetTimestamp()), 0).UTC(),
			StopTimeUpdates: stopTimeUpdates,
		})
	}
	return results, nil
}
