package kvstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestVehiclePositionMessageRoundTrip(t *testing.T) {
	is := is.New(t)
	timestamp := time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)
	stopId := "stop_5"
	stopSequence := 5
	status := 1

	message := VehiclePositionMessage{
		Agency:       "mpk",
		TripId:       "trip_1",
		VehicleId:    "v100",
		LicensePlate: "HW123",
		StopId:       &stopId,
		StopSequence: &stopSequence,
		Status:       &status,
		Timestamp:    timestamp,
	}

	data, err := json.Marshal(&message)
	is.NoErr(err)

	decoded, err := DecodeVehiclePositionMessage(string(data))
	is.NoErr(err)
	is.Equal(message.Agency, decoded.Agency)
	is.Equal(message.TripId, decoded.TripId)
	is.Equal(*message.StopSequence, *decoded.StopSequence)
	is.Equal(*message.Status, *decoded.Status)
	is.True(decoded.Timestamp.Equal(timestamp))
}

// absent optionals survive as nils, a stop monitor must not invent values
func TestVehiclePositionMessageOmittedOptionals(t *testing.T) {
	is := is.New(t)

	decoded, err := DecodeVehiclePositionMessage(
		`{"agency":"mpk","trip_id":"trip_1","vehicle_id":"","license_plate":"HW123",` +
			`"stop_id":null,"stop_sequence":null,"status":null,"timestamp":"2026-02-09T12:00:00Z"}`)
	is.NoErr(err)
	is.True(decoded.StopId == nil)
	is.True(decoded.StopSequence == nil)
	is.True(decoded.Status == nil)
	is.Equal("HW123", decoded.LicensePlate)
}

func TestDecodeVehiclePositionMessageMalformed(t *testing.T) {
	is := is.New(t)

	_, err := DecodeVehiclePositionMessage("{not json")
	is.True(err != nil)
}
