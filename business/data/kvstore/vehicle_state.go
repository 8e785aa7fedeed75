package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// VehicleState is the last observed progress of one vehicle, keyed by agency
// and license plate.
type VehicleState struct {
	Agency              gtfs.Agency `msgpack:"agency"`
	LicensePlate        string      `msgpack:"license_plate"`
	TripId              string      `msgpack:"trip_id"`
	CurrentStopSequence int         `msgpack:"current_stop_sequence"`
	LastTimestamp       time.Time   `msgpack:"last_timestamp"`
}

// VehicleStates reads and writes VehicleState entries.
type VehicleStates struct {
	client *redis.Client
}

// MakeVehicleStates creates VehicleStates
func MakeVehicleStates(client *redis.Client) *VehicleStates {
	return &VehicleStates{client: client}
}

func vehicleStateKey(agency gtfs.Agency, licensePlate string) string {
	return fmt.Sprintf("vs:%s:%s", agency, licensePlate)
}

// Get retrieves the state last saved for the vehicle, or nil when the vehicle
// is unknown or its entry can't be decoded. A corrupt entry is dropped, the
// vehicle's next position rebuilds it.
func (v *VehicleStates) Get(ctx context.Context, agency gtfs.Agency, licensePlate string) (*VehicleState, error) {
	data, err := v.client.Get(ctx, vehicleStateKey(agency, licensePlate)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	state := VehicleState{}
	if err = msgpack.Unmarshal(data, &state); err != nil {
		return nil, nil
	}
	return &state, nil
}

// Save writes state with a fresh TTL.
func (v *VehicleStates) Save(ctx context.Context, state *VehicleState) error {
	data, err := msgpack.Marshal(state)
	if err != nil {
		return err
	}
	return v.client.Set(ctx, vehicleStateKey(state.Agency, state.LicensePlate), data, vehicleStateTTL).Err()
}

// Delete removes the vehicle's entry.
func (v *VehicleStates) Delete(ctx context.Context, agency gtfs.Agency, licensePlate string) error {
	return v.client.Del(ctx, vehicleStateKey(agency, licensePlate)).Err()
}
