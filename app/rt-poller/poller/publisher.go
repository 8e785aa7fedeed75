package poller

import (
	"context"
	"log"
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/OpenTransitData/stopcast/business/data/kvstore"
	"github.com/OpenTransitData/stopcast/business/data/rtfeed"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// maxSequenceMapCacheSize bounds the per-trip stop sequence cache. When full
// the whole cache is dropped and the following polls refill it.
const maxSequenceMapCacheSize = 5000

// kvRequestTimeout bounds each key value store round trip.
const kvRequestTimeout = 5 * time.Second

//feedDistributor interface takes decoded realtime records and sends them to
//their destinations (pub/sub channel and trip update cache)
type feedDistributor interface {

	//publishPosition sends one vehicle position message on the shared channel
	publishPosition(message *kvstore.VehiclePositionMessage) error

	//cacheTripUpdate merges one trip update into the shared trip update cache
	cacheTripUpdate(update *rtfeed.TripUpdate, stopIdToSequence map[string]int) error
}

//kvDistributor implements feedDistributor interface against the key value store
type kvDistributor struct {
	client      *redis.Client
	tripUpdates *kvstore.TripUpdates
}

//makeKVDistributor creates kvDistributor
func makeKVDistributor(client *redis.Client) *kvDistributor {
	return &kvDistributor{
		client:      client,
		tripUpdates: kvstore.MakeTripUpdates(client),
	}
}

func (k *kvDistributor) publishPosition(message *kvstore.VehiclePositionMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), kvRequestTimeout)
	defer cancel()
	return kvstore.PublishVehiclePosition(ctx, k.client, message)
}

func (k *kvDistributor) cacheTripUpdate(update *rtfeed.TripUpdate, stopIdToSequence map[string]int) error {
	ctx, cancel := context.WithTimeout(context.Background(), kvRequestTimeout)
	defer cancel()
	return k.tripUpdates.Update(ctx, update, stopIdToSequence)
}

//sequenceMapSource provides a trip's stop_id to stop_sequence mapping
type sequenceMapSource interface {
	getSequenceMap(tripId string) (map[string]int, error)
}

//dbSequenceMapSource implements sequenceMapSource against the static tables
type dbSequenceMapSource struct {
	db *sqlx.DB
}

func (d *dbSequenceMapSource) getSequenceMap(tripId string) (map[string]int, error) {
	return gtfs.GetStopIdToSequenceMap(d.db, tripId)
}

// publisher decodes raw realtime payloads and distributes the results, keeping
// a bounded per-trip cache of stop sequence mappings between polls.
type publisher struct {
	log          *log.Logger
	distributor  feedDistributor
	sequences    sequenceMapSource
	sequenceMaps map[string]map[string]int
}

//makePublisher creates publisher over the database and key value store
func makePublisher(log *log.Logger, db *sqlx.DB, client *redis.Client) *publisher {
	return &publisher{
		log:          log,
		distributor:  makeKVDistributor(client),
		sequences:    &dbSequenceMapSource{db: db},
		sequenceMaps: make(map[string]map[string]int),
	}
}

// publishVehiclePositions decodes payload and publishes each usable position
// on the vehicle_positions channel. Returns the number published.
func (p *publisher) publishVehiclePositions(agency gtfs.Agency, payload []byte) (int, error) {
	positions, err := rtfeed.DecodeVehiclePositions(payload, agency)
	if err != nil {
		return 0, err
	}
	published := 0
	for i := range positions {
		message := makePositionMessage(&positions[i])
		err = p.distributor.publishPosition(message)
		if err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

// processTripUpdates decodes payload and merges each usable trip update into
// the shared trip update cache. Returns the number merged.
func (p *publisher) processTripUpdates(agency gtfs.Agency, payload []byte) (int, error) {
	updates, err := rtfeed.DecodeTripUpdates(payload, agency)
	if err != nil {
		return 0, err
	}
	processed := 0
	for i := range updates {
		stopIdToSequence, err := p.getStopIdToSequenceMap(updates[i].TripId)
		if err != nil {
			return processed, err
		}
		err = p.distributor.cacheTripUpdate(&updates[i], stopIdToSequence)
		if err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// getStopIdToSequenceMap retrieves the trip's stop_id to stop_sequence mapping
// from the in-process cache, querying the static tables on a miss.
func (p *publisher) getStopIdToSequenceMap(tripId string) (map[string]int, error) {
	if sequenceMap, present := p.sequenceMaps[tripId]; present {
		return sequenceMap, nil
	}
	sequenceMap, err := p.sequences.getSequenceMap(tripId)
	if err != nil {
		return nil, err
	}
	if len(p.sequenceMaps) >= maxSequenceMapCacheSize {
		p.sequenceMaps = make(map[string]map[string]int)
	}
	p.sequenceMaps[tripId] = sequenceMap
	return sequenceMap, nil
}

//makePositionMessage converts a decoded feed position to its channel message
func makePositionMessage(position *rtfeed.VehiclePosition) *kvstore.VehiclePositionMessage {
	message := kvstore.VehiclePositionMessage{
		Agency:       string(position.Agency),
		TripId:       position.TripId,
		VehicleId:    position.VehicleId,
		LicensePlate: position.LicensePlate,
		StopId:       position.StopId,
		StopSequence: position.StopSequence,
		Timestamp:    position.Timestamp,
	}
	if !position.Status.IsUnknown() {
		status := int(position.Status)
		message.Status = &status
	}
	return &message
}
