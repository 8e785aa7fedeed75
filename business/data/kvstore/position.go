package kvstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// VehiclePositionMessage is the JSON payload carried on the vehicle_positions
// channel between the poller and the stop monitor.
type VehiclePositionMessage struct {
	Agency       string    `json:"agency"`
	TripId       string    `json:"trip_id"`
	VehicleId    string    `json:"vehicle_id"`
	LicensePlate string    `json:"license_plate"`
	StopId       *string   `json:"stop_id"`
	StopSequence *int      `json:"stop_sequence"`
	Status       *int      `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}

// PublishVehiclePosition sends message on the vehicle_positions channel.
func PublishVehiclePosition(ctx context.Context, client *redis.Client, message *VehiclePositionMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return client.Publish(ctx, VehiclePositionsChannel, data).Err()
}

// SubscribeVehiclePositions opens a subscription on the vehicle_positions
// channel. The caller owns the returned PubSub and must Close it.
func SubscribeVehiclePositions(ctx context.Context, client *redis.Client) *redis.PubSub {
	return client.Subscribe(ctx, VehiclePositionsChannel)
}

// DecodeVehiclePositionMessage parses one channel payload.
func DecodeVehiclePositionMessage(payload string) (*VehiclePositionMessage, error) {
	message := VehiclePositionMessage{}
	if err := json.Unmarshal([]byte(payload), &message); err != nil {
		return nil, err
	}
	return &message, nil
}
