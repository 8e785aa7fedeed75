package monitor

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/OpenTransitData/stopcast/business/data/kvstore"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// kvRequestTimeout bounds each key value store round trip.
const kvRequestTimeout = 5 * time.Second

//vehicleStateStore interface reads and writes the per vehicle tracking state
//carried between positions
type vehicleStateStore interface {

	//get retrieves the vehicle's last saved state, nil when the vehicle is new
	get(agency gtfs.Agency, licensePlate string) (*kvstore.VehicleState, error)

	//save stores state as the vehicle's current progress
	save(state *kvstore.VehicleState) error

	//remove discards the vehicle's state after its trip completed
	remove(agency gtfs.Agency, licensePlate string) error
}

//kvVehicleStateStore implements vehicleStateStore interface against the key value store
type kvVehicleStateStore struct {
	states *kvstore.VehicleStates
}

//makeKVVehicleStateStore creates kvVehicleStateStore
func makeKVVehicleStateStore(client *redis.Client) *kvVehicleStateStore {
	return &kvVehicleStateStore{
		states: kvstore.MakeVehicleStates(client),
	}
}

func (k *kvVehicleStateStore) get(agency gtfs.Agency, licensePlate string) (*kvstore.VehicleState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), kvRequestTimeout)
	defer cancel()
	return k.states.Get(ctx, agency, licensePlate)
}

func (k *kvVehicleStateStore) save(state *kvstore.VehicleState) error {
	ctx, cancel := context.WithTimeout(context.Background(), kvRequestTimeout)
	defer cancel()
	return k.states.Save(ctx, state)
}

func (k *kvVehicleStateStore) remove(agency gtfs.Agency, licensePlate string) error {
	ctx, cancel := context.WithTimeout(context.Background(), kvRequestTimeout)
	defer cancel()
	return k.states.Delete(ctx, agency, licensePlate)
}

//tripUpdateSource interface reads the cached trip update predictions the
//poller maintains and discards them once a trip completed
type tripUpdateSource interface {

	//getArrival retrieves the newest cached arrival for the stop sequence,
	//nil when nothing was predicted for it
	getArrival(agency gtfs.Agency, tripId string, stopSequence int) (*time.Time, error)

	//getCache retrieves the trip's whole prediction entry, nil when the trip
	//has none
	getCache(agency gtfs.Agency, tripId string) (*kvstore.TripUpdateCache, error)

	//remove discards the trip's prediction entry
	remove(agency gtfs.Agency, tripId string) error
}

//kvTripUpdateSource implements tripUpdateSource interface against the key value store
type kvTripUpdateSource struct {
	updates *kvstore.TripUpdates
}

//makeKVTripUpdateSource creates kvTripUpdateSource
func makeKVTripUpdateSource(client *redis.Client) *kvTripUpdateSource {
	return &kvTripUpdateSource{
		updates: kvstore.MakeTripUpdates(client),
	}
}

func (k *kvTripUpdateSource) getArrival(agency gtfs.Agency, tripId string, stopSequence int) (*time.Time, error) {
	ctx, cancel := context.WithTimeout(context.Background(), kvRequestTimeout)
	defer cancel()
	return k.updates.GetArrival(ctx, agency, tripId, stopSequence)
}

func (k *kvTripUpdateSource) getCache(agency gtfs.Agency, tripId string) (*kvstore.TripUpdateCache, error) {
	ctx, cancel := context.WithTimeout(context.Background(), kvRequestTimeout)
	defer cancel()
	return k.updates.Get(ctx, agency, tripId)
}

func (k *kvTripUpdateSource) remove(agency gtfs.Agency, tripId string) error {
	ctx, cancel := context.WithTimeout(context.Background(), kvRequestTimeout)
	defer cancel()
	return k.updates.Delete(ctx, agency, tripId)
}

//sequenceDedup interface tracks which stop sequences already produced a
//persisted event
type sequenceDedup interface {

	//isSaved reports whether the stop sequence already produced an event
	isSaved(agency gtfs.Agency, tripId string, serviceDate time.Time, stopSequence int) (bool, error)

	//markSaved records that the stop sequence produced an event
	markSaved(agency gtfs.Agency, tripId string, serviceDate time.Time, stopSequence int) error
}

//kvSequenceDedup implements sequenceDedup interface against the key value store
type kvSequenceDedup struct {
	saved *kvstore.SavedSequences
}

//makeKVSequenceDedup creates kvSequenceDedup
func makeKVSequenceDedup(client *redis.Client) *kvSequenceDedup {
	return &kvSequenceDedup{
		saved: kvstore.MakeSavedSequences(client),
	}
}

func (k *kvSequenceDedup) isSaved(agency gtfs.Agency, tripId string, serviceDate time.Time, stopSequence int) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), kvRequestTimeout)
	defer cancel()
	return k.saved.IsSaved(ctx, agency, tripId, serviceDate, stopSequence)
}

func (k *kvSequenceDedup) markSaved(agency gtfs.Agency, tripId string, serviceDate time.Time, stopSequence int) error {
	ctx, cancel := context.WithTimeout(context.Background(), kvRequestTimeout)
	defer cancel()
	return k.saved.MarkSaved(ctx, agency, tripId, serviceDate, stopSequence)
}

//staticSource interface retrieves the static gtfs records detection needs
type staticSource interface {

	//getTrip retrieves the trip with its route short name, nil when unknown
	getTrip(tripId string) (*gtfs.Trip, error)

	//getStop retrieves the stop, nil when unknown
	getStop(stopId string) (*gtfs.Stop, error)

	//getStopTimes retrieves the trip's stop times keyed by stop sequence
	getStopTimes(tripId string) (map[int]*gtfs.StopTime, error)

	//getMaxStopSequence retrieves the trip's final stop sequence, zero when
	//the trip has no stop times
	getMaxStopSequence(tripId string) (int, error)

	//getCurrentHash retrieves the agency's loaded static archive hash, empty
	//when the agency was never imported
	getCurrentHash(agency gtfs.Agency) (string, error)
}

//dbStaticSource implements staticSource interface against the static tables
type dbStaticSource struct {
	db *sqlx.DB
}

func (d *dbStaticSource) getTrip(tripId string) (*gtfs.Trip, error) {
	trip, err := gtfs.GetTrip(d.db, tripId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return trip, err
}

func (d *dbStaticSource) getStop(stopId string) (*gtfs.Stop, error) {
	stop, err := gtfs.GetStop(d.db, stopId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return stop, err
}

func (d *dbStaticSource) getStopTimes(tripId string) (map[int]*gtfs.StopTime, error) {
	return gtfs.GetStopTimesForTrip(d.db, tripId)
}

func (d *dbStaticSource) getMaxStopSequence(tripId string) (int, error) {
	return gtfs.GetMaxStopSequence(d.db, tripId)
}

func (d *dbStaticSource) getCurrentHash(agency gtfs.Agency) (string, error) {
	return gtfs.GetCurrentHash(d.db, agency)
}
