package rtfeed

import (
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
)

// VehicleStopStatus defines the possible relationship a vehicle has to a stop in GTFS
type VehicleStopStatus int

const (
	Unknown VehicleStopStatus = -1
	// IncomingAt indicates vehicle is just about to arrive at the stop (on a stop
	// display, the vehicle symbol typically flashes).
	IncomingAt VehicleStopStatus = 0
	// StoppedAt indicates vehicle is at the stop.
	StoppedAt VehicleStopStatus = 1
	// InTransitTo indicates vehicle has departed a previous stop and is in transit to the next stop.
	InTransitTo VehicleStopStatus = 2
)

// String - Stringer interface for VehicleStopStatus
func (s VehicleStopStatus) String() string {
	switch s {
	case IncomingAt:
		return "INCOMING_AT"
	case StoppedAt:
		return "STOPPED_AT"
	case InTransitTo:
		return "IN_TRANSIT_TO"
	}
	return "Unknown"
}

// IsUnknown convenience method to test for unknown VehicleStopStatus
func (s VehicleStopStatus) IsUnknown() bool {
	return s == Unknown
}

// VehiclePosition contains fields read from a GTFS-Realtime VehiclePositions
// feed. Optional fields are pointers and nil when absent from the feed, Status
// is Unknown when the feed carried no current_status.
type VehiclePosition struct {
	Agency       gtfs.Agency
	TripId       string
	VehicleId    string
	LicensePlate string
	Latitude     *float64
	Longitude    *float64
	Bearing      *float64
	StopId       *string
	StopSequence *int
	Status       VehicleStopStatus
	Timestamp    time.Time
}

// HasPosition reports whether the feed carried coordinates for the vehicle.
func (v *VehiclePosition) HasPosition() bool {
	return v.Latitude != nil && v.Longitude != nil
}

// DecodeVehiclePositions parses a VehiclePositions payload. Entities without a
// vehicle sub-message, a trip id, a license plate or a timestamp are skipped.
func DecodeVehiclePositions(payload []byte, agency gtfs.Agency) ([]VehiclePosition, error) {
	feedMessage, err := unmarshalFeed(payload)
	if err != nil || feedMessage == nil {
		return nil, err
	}

	results := make([]VehiclePosition, 0, len(feedMessage.Entity))
	for _, entity := range feedMessage.Entity {
		vehicle := entity.Vehicle
		if vehicle == nil {
			continue
		}
		if vehicle.Trip == nil || vehicle.Trip.GetTripId() == "" {
			continue
		}

		vehicleId := ""
		licensePlate := ""
		if vehicle.Vehicle != nil {
			vehicleId = vehicle.Vehicle.GetId()
			licensePlate = vehicle.Vehicle.GetLicensePlate()
		}
		if licensePlate == "" {
			continue
		}
		if vehicle.GetTimestamp() == 0 {
			continue
		}

		position := VehiclePosition{
			Agency:       agency,
			TripId:       vehicle.Trip.GetTripId(),
			VehicleId:    vehicleId,
			LicensePlate: licensePlate,
			Status:       Unknown,
			Timestamp:    time.Unix(int64(vehicle.GetTimestamp()), 0).UTC(),
		}
		if vehicle.Position != nil {
			latitude := float64(vehicle.Position.GetLatitude())
			longitude := float64(vehicle.Position.GetLongitude())
			position.Latitude = &latitude
			position.Longitude = &longitude
			if vehicle.Position.Bearing != nil {
				bearing := float64(vehicle.Position.GetBearing())
				position.Bearing = &bearing
			}
		}
		if vehicle.GetStopId() != "" {
			stopId := vehicle.GetStopId()
			position.StopId = &stopId
		}
		if vehicle.CurrentStopSequence != nil {
			stopSequence := int(vehicle.GetCurrentStopSequence())
			position.StopSequence = &stopSequence
		}
		if vehicle.CurrentStatus != nil {
			position.Status = VehicleStopStatus(*vehicle.CurrentStatus)
		}
		results = append(results, position)
	}
	return results, nil
}
