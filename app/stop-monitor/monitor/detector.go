package monitor

import (
	"log"
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/OpenTransitData/stopcast/business/data/kvstore"
	"github.com/OpenTransitData/stopcast/business/data/rtfeed"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Bounds for the in-process static data caches. A full cache is dropped whole
// and the following positions refill it.
const (
	maxTripCacheSize         = 5000
	maxStopCacheSize         = 2000
	maxStopTimesCacheSize    = 5000
	maxStopSequenceCacheSize = 5000
)

// stopEventDetector turns the stream of vehicle positions into stop events.
// It remembers each vehicle's previous position in the vehicle state store,
// so detection survives restarts and can run on any number of instances
// reading the same stores.
type stopEventDetector struct {
	log      *log.Logger
	states   vehicleStateStore
	updates  tripUpdateSource
	dedup    sequenceDedup
	static   staticSource
	location *time.Location

	trips            map[string]*gtfs.Trip
	stops            map[string]*gtfs.Stop
	stopTimes        map[string]map[int]*gtfs.StopTime
	maxStopSequences map[string]int
	agencyHashes     map[gtfs.Agency]string
}

//makeStopEventDetector creates stopEventDetector over the database and key value store
func makeStopEventDetector(log *log.Logger,
	db *sqlx.DB,
	client *redis.Client,
	location *time.Location) *stopEventDetector {
	return &stopEventDetector{
		log:              log,
		states:           makeKVVehicleStateStore(client),
		updates:          makeKVTripUpdateSource(client),
		dedup:            makeKVSequenceDedup(client),
		static:           &dbStaticSource{db: db},
		location:         location,
		trips:            make(map[string]*gtfs.Trip),
		stops:            make(map[string]*gtfs.Stop),
		stopTimes:        make(map[string]map[int]*gtfs.StopTime),
		maxStopSequences: make(map[string]int),
		agencyHashes:     make(map[gtfs.Agency]string),
	}
}

// processPosition runs stop event detection against one vehicle position and
// returns the events it produced, completion events for a finished trip first.
// Positions without a stop sequence or license plate carry nothing detection
// can use and are dropped without touching the vehicle's state.
func (d *stopEventDetector) processPosition(vp *kvstore.VehiclePositionMessage) []*gtfs.StopEvent {
	if vp.StopSequence == nil || vp.LicensePlate == "" {
		return nil
	}
	agency := gtfs.Agency(vp.Agency)
	currentSequence := *vp.StopSequence

	events := make([]*gtfs.StopEvent, 0)

	previous, err := d.states.get(agency, vp.LicensePlate)
	if err != nil {
		d.log.Printf("error retrieving vehicle state for %s vehicle %s: %v", agency, vp.LicensePlate, err)
	}
	if previous != nil && previous.TripId != vp.TripId {
		events = append(events, d.completeTrip(previous)...)
		previous = nil
	}

	trip := d.getTrip(vp.TripId)
	stopTimes := d.getStopTimes(vp.TripId)
	currentStopTime := stopTimes[currentSequence]

	if trip != nil && currentStopTime != nil {
		serviceDate := gtfs.ServiceDate(vp.Timestamp, currentStopTime.ArrivalSeconds, d.location)

		if vp.Status != nil && *vp.Status == int(rtfeed.StoppedAt) &&
			!d.isSaved(agency, vp.TripId, serviceDate, currentSequence) {

			event := d.createEvent(agency, trip, currentStopTime, serviceDate, vp.Timestamp,
				vp.VehicleId, vp.LicensePlate, gtfs.DetectionStoppedAt, false)
			if event != nil {
				events = append(events, event)
				d.markSaved(agency, vp.TripId, serviceDate, currentSequence)
			}
		}

		if previous != nil && currentSequence > previous.CurrentStopSequence {
			for missedSequence := previous.CurrentStopSequence; missedSequence < currentSequence; missedSequence++ {
				missedStopTime := stopTimes[missedSequence]
				if missedStopTime == nil {
					continue
				}
				missedServiceDate := gtfs.ServiceDate(vp.Timestamp, missedStopTime.ArrivalSeconds, d.location)
				if d.isSaved(agency, vp.TripId, missedServiceDate, missedSequence) {
					continue
				}
				arrival, err := d.updates.getArrival(agency, vp.TripId, missedSequence)
				if err != nil {
					d.log.Printf("error retrieving cached arrival for %s trip %s sequence %d: %v",
						agency, vp.TripId, missedSequence, err)
					continue
				}
				if arrival == nil {
					continue
				}
				event := d.createEvent(agency, trip, missedStopTime, missedServiceDate, *arrival,
					vp.VehicleId, vp.LicensePlate, gtfs.DetectionSeqJump, true)
				if event != nil {
					events = append(events, event)
					d.markSaved(agency, vp.TripId, missedServiceDate, missedSequence)
				}
			}
		}
	}

	// Record the position as the vehicle's new state even when the static
	// lookups failed, a later trip change still needs it to complete this trip.
	err = d.states.save(&kvstore.VehicleState{
		Agency:              agency,
		LicensePlate:        vp.LicensePlate,
		TripId:              vp.TripId,
		CurrentStopSequence: currentSequence,
		LastTimestamp:       vp.Timestamp,
	})
	if err != nil {
		d.log.Printf("error saving vehicle state for %s vehicle %s: %v", agency, vp.LicensePlate, err)
	}

	return events
}

// completeTrip emits events for the stops left open when the vehicle was seen
// on another trip: estimated arrivals for the remaining cached sequences, the
// final stop flagged TIMEOUT with the first prediction ever seen for it. The
// trip's cache entries are discarded afterwards.
func (d *stopEventDetector) completeTrip(previous *kvstore.VehicleState) []*gtfs.StopEvent {
	trip := d.getTrip(previous.TripId)
	if trip == nil {
		return nil
	}
	maxStopSequence := d.getMaxStopSequence(previous.TripId)
	if maxStopSequence == 0 {
		return nil
	}

	events := make([]*gtfs.StopEvent, 0)
	stopTimes := d.getStopTimes(previous.TripId)

	cache, err := d.updates.getCache(previous.Agency, previous.TripId)
	if err != nil {
		d.log.Printf("error retrieving trip update cache for %s trip %s: %v",
			previous.Agency, previous.TripId, err)
	}
	if cache != nil {
		for stopSequence := previous.CurrentStopSequence + 1; stopSequence <= maxStopSequence; stopSequence++ {
			stopTime := stopTimes[stopSequence]
			if stopTime == nil {
				continue
			}
			serviceDate := gtfs.ServiceDate(previous.LastTimestamp, stopTime.ArrivalSeconds, d.location)
			if d.isSaved(previous.Agency, previous.TripId, serviceDate, stopSequence) {
				continue
			}
			cached, present := cache.Stops[stopSequence]
			if !present {
				continue
			}

			eventTime := cached.LastSeenArrival
			method := gtfs.DetectionSeqJump
			if stopSequence == maxStopSequence {
				eventTime = cached.FirstSeenArrival
				method = gtfs.DetectionTimeout
			}
			event := d.createEvent(previous.Agency, trip, stopTime, serviceDate, eventTime,
				"", previous.LicensePlate, method, true)
			if event != nil {
				events = append(events, event)
				d.markSaved(previous.Agency, previous.TripId, serviceDate, stopSequence)
			}
		}
	}

	if err = d.updates.remove(previous.Agency, previous.TripId); err != nil {
		d.log.Printf("error removing trip update cache for %s trip %s: %v",
			previous.Agency, previous.TripId, err)
	}
	if err = d.states.remove(previous.Agency, previous.LicensePlate); err != nil {
		d.log.Printf("error removing vehicle state for %s vehicle %s: %v",
			previous.Agency, previous.LicensePlate, err)
	}
	return events
}

// createEvent builds one denormalized stop event. Events are suppressed when
// the stop is missing from the static tables or the agency has no loaded
// static archive to attribute the event to.
func (d *stopEventDetector) createEvent(agency gtfs.Agency,
	trip *gtfs.Trip,
	stopTime *gtfs.StopTime,
	serviceDate time.Time,
	eventTime time.Time,
	vehicleId string,
	licensePlate string,
	method gtfs.DetectionMethod,
	estimated bool) *gtfs.StopEvent {

	stop := d.getStop(stopTime.StopId)
	if stop == nil {
		d.log.Printf("suppressing event for unknown stop %s on trip %s", stopTime.StopId, trip.TripId)
		return nil
	}
	staticHash := d.getAgencyHash(agency)
	if staticHash == "" {
		d.log.Printf("suppressing event for agency %s without a loaded static archive", agency)
		return nil
	}

	plannedTime := gtfs.PlannedTime(serviceDate, stopTime.ArrivalSeconds, d.location)
	event := gtfs.StopEvent{
		Agency:          agency,
		TripId:          trip.TripId,
		ServiceDate:     serviceDate,
		StopSequence:    stopTime.StopSequence,
		StopId:          stopTime.StopId,
		LineNumber:      trip.RouteShortName,
		StopName:        stop.StopName,
		StopDesc:        stop.StopDesc,
		DirectionId:     trip.DirectionId,
		Headsign:        trip.Headsign,
		PlannedTime:     plannedTime,
		EventTime:       eventTime,
		DelaySeconds:    gtfs.DelaySeconds(eventTime, plannedTime),
		LicensePlate:    &licensePlate,
		DetectionMethod: method,
		IsEstimated:     estimated,
		StaticHash:      staticHash,
	}
	if vehicleId != "" {
		event.VehicleId = &vehicleId
	}
	return &event
}

// isSaved treats dedup errors as not saved, the database's unique index still
// drops any duplicate that slips through.
func (d *stopEventDetector) isSaved(agency gtfs.Agency, tripId string, serviceDate time.Time, stopSequence int) bool {
	saved, err := d.dedup.isSaved(agency, tripId, serviceDate, stopSequence)
	if err != nil {
		d.log.Printf("error checking saved sequence for %s trip %s sequence %d: %v",
			agency, tripId, stopSequence, err)
		return false
	}
	return saved
}

func (d *stopEventDetector) markSaved(agency gtfs.Agency, tripId string, serviceDate time.Time, stopSequence int) {
	err := d.dedup.markSaved(agency, tripId, serviceDate, stopSequence)
	if err != nil {
		d.log.Printf("error marking saved sequence for %s trip %s sequence %d: %v",
			agency, tripId, stopSequence, err)
	}
}

// getTrip retrieves the trip through the bounded cache. Unknown trips are not
// cached, the next import may bring them.
func (d *stopEventDetector) getTrip(tripId string) *gtfs.Trip {
	if trip, present := d.trips[tripId]; present {
		return trip
	}
	trip, err := d.static.getTrip(tripId)
	if err != nil {
		d.log.Printf("error retrieving trip %s: %v", tripId, err)
		return nil
	}
	if trip == nil {
		return nil
	}
	if len(d.trips) >= maxTripCacheSize {
		d.trips = make(map[string]*gtfs.Trip)
	}
	d.trips[tripId] = trip
	return trip
}

func (d *stopEventDetector) getStop(stopId string) *gtfs.Stop {
	if stop, present := d.stops[stopId]; present {
		return stop
	}
	stop, err := d.static.getStop(stopId)
	if err != nil {
		d.log.Printf("error retrieving stop %s: %v", stopId, err)
		return nil
	}
	if stop == nil {
		return nil
	}
	if len(d.stops) >= maxStopCacheSize {
		d.stops = make(map[string]*gtfs.Stop)
	}
	d.stops[stopId] = stop
	return stop
}

// getStopTimes retrieves the trip's stop times keyed by stop sequence through
// the bounded cache. Lookup failures produce an empty map so callers index it
// without a nil check.
func (d *stopEventDetector) getStopTimes(tripId string) map[int]*gtfs.StopTime {
	if stopTimes, present := d.stopTimes[tripId]; present {
		return stopTimes
	}
	stopTimes, err := d.static.getStopTimes(tripId)
	if err != nil {
		d.log.Printf("error retrieving stop times for trip %s: %v", tripId, err)
		return map[int]*gtfs.StopTime{}
	}
	if len(stopTimes) == 0 {
		return stopTimes
	}
	if len(d.stopTimes) >= maxStopTimesCacheSize {
		d.stopTimes = make(map[string]map[int]*gtfs.StopTime)
	}
	d.stopTimes[tripId] = stopTimes
	return stopTimes
}

func (d *stopEventDetector) getMaxStopSequence(tripId string) int {
	if maxStopSequence, present := d.maxStopSequences[tripId]; present {
		return maxStopSequence
	}
	maxStopSequence, err := d.static.getMaxStopSequence(tripId)
	if err != nil {
		d.log.Printf("error retrieving max stop sequence for trip %s: %v", tripId, err)
		return 0
	}
	if maxStopSequence == 0 {
		return 0
	}
	if len(d.maxStopSequences) >= maxStopSequenceCacheSize {
		d.maxStopSequences = make(map[string]int)
	}
	d.maxStopSequences[tripId] = maxStopSequence
	return maxStopSequence
}

// getAgencyHash retrieves the agency's loaded archive hash, refetching it the
// first time an agency appears and again whenever no hash is known yet.
func (d *stopEventDetector) getAgencyHash(agency gtfs.Agency) string {
	if hash, present := d.agencyHashes[agency]; present && hash != "" {
		return hash
	}
	hash, err := d.static.getCurrentHash(agency)
	if err != nil {
		d.log.Printf("error retrieving current hash for agency %s: %v", agency, err)
		return ""
	}
	d.agencyHashes[agency] = hash
	return hash
}
