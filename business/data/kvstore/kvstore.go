// Package kvstore provides the key value store caches shared by the realtime
// pipeline: per vehicle tracking state, merged trip update predictions, the
// dedup sets of already persisted stop sequences, the static data ready flag
// and the vehicle_positions channel.
package kvstore

import "time"

const (
	// VehiclePositionsChannel carries one JSON message per published vehicle position.
	VehiclePositionsChannel = "vehicle_positions"

	// ReadyKey is present once the importer has completed a full cycle.
	ReadyKey = "gtfs:ready"

	// vehicleStateTTL and tripUpdateTTL bound how long a vehicle that went
	// silent keeps its cache entries around.
	vehicleStateTTL = 3 * time.Hour
	tripUpdateTTL   = 3 * time.Hour

	// savedSequencesTTL outlives the longest overnight trip so restarts never
	// duplicate events inside a service day.
	savedSequencesTTL = 24 * time.Hour
)
