package rtfeed

import (
	"testing"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	gtfsrtproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

const testAgency = gtfs.AgencyMPK

func intPtr(i int) *int {
	return &i
}

func strPtr(s string) *string {
	return &s
}

func feedHeader() *gtfsrtproto.FeedHeader {
	return &gtfsrtproto.FeedHeader{
		GtfsRealtimeVersion: proto.String("2.0"),
	}
}

// marshalFeed builds a binary FeedMessage payload around entities
func marshalFeed(t *testing.T, entities ...*gtfsrtproto.FeedEntity) []byte {
	t.Helper()
	feedMessage := gtfsrtproto.FeedMessage{
		Header: feedHeader(),
		Entity: entities,
	}
	payload, err := proto.Marshal(&feedMessage)
	if err != nil {
		t.Fatalf("unable to marshal test FeedMessage: %v", err)
	}
	return payload
}

func vehicleEntity(id string, vehicle *gtfsrtproto.VehiclePosition) *gtfsrtproto.FeedEntity {
	return &gtfsrtproto.FeedEntity{
		Id:      proto.String(id),
		Vehicle: vehicle,
	}
}

func tripUpdateEntity(id string, tripUpdate *gtfsrtproto.TripUpdate) *gtfsrtproto.FeedEntity {
	return &gtfsrtproto.FeedEntity{
		Id:         proto.String(id),
		TripUpdate: tripUpdate,
	}
}

func tripDescriptor(tripId string) *gtfsrtproto.TripDescriptor {
	return &gtfsrtproto.TripDescriptor{
		TripId: proto.String(tripId),
	}
}

func vehicleDescriptor(id string, licensePlate string) *gtfsrtproto.VehicleDescriptor {
	descriptor := gtfsrtproto.VehicleDescriptor{}
	if id != "" {
		descriptor.Id = proto.String(id)
	}
	if licensePlate != "" {
		descriptor.LicensePlate = proto.String(licensePlate)
	}
	return &descriptor
}

func stopTimeEvent(unixSeconds int64) *gtfsrtproto.TripUpdate_StopTimeEvent {
	return &gtfsrtproto.TripUpdate_StopTimeEvent{
		Time: proto.Int64(unixSeconds),
	}
}
