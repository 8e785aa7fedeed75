package monitor

import (
	"fmt"
	"log"
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/OpenTransitData/stopcast/business/data/kvstore"
)

type testLogWriter struct {
	logLines []string
	log      *log.Logger
}

func makeTestLogWriter() *testLogWriter {
	logWriter := testLogWriter{
		logLines: make([]string, 0),
	}
	logger := log.New(&logWriter, "STOP_MONITOR : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logWriter.log = logger
	return &logWriter
}

func (t *testLogWriter) Write(p []byte) (n int, err error) {
	t.logLines = append(t.logLines, string(p))
	return len(p), nil
}

func intPtr(i int) *int {
	return &i
}

func strPtr(s string) *string {
	return &s
}

func float64Ptr(f float64) *float64 {
	return &f
}

func testTime(hour int, minute int) time.Time {
	return time.Date(2026, 2, 9, hour, minute, 0, 0, time.UTC)
}

//fakeVehicleStates implements vehicleStateStore over a map
type fakeVehicleStates struct {
	states  map[string]*kvstore.VehicleState
	saves   []*kvstore.VehicleState
	removed []string
}

func makeFakeVehicleStates() *fakeVehicleStates {
	return &fakeVehicleStates{states: make(map[string]*kvstore.VehicleState)}
}

func vehicleKey(agency gtfs.Agency, licensePlate string) string {
	return fmt.Sprintf("%s:%s", agency, licensePlate)
}

func (f *fakeVehicleStates) get(agency gtfs.Agency, licensePlate string) (*kvstore.VehicleState, error) {
	return f.states[vehicleKey(agency, licensePlate)], nil
}

func (f *fakeVehicleStates) save(state *kvstore.VehicleState) error {
	f.states[vehicleKey(state.Agency, state.LicensePlate)] = state
	f.saves = append(f.saves, state)
	return nil
}

func (f *fakeVehicleStates) remove(agency gtfs.Agency, licensePlate string) error {
	delete(f.states, vehicleKey(agency, licensePlate))
	f.removed = append(f.removed, vehicleKey(agency, licensePlate))
	return nil
}

//fakeTripUpdates implements tripUpdateSource over a map
type fakeTripUpdates struct {
	caches  map[string]*kvstore.TripUpdateCache
	removed []string
}

func makeFakeTripUpdates() *fakeTripUpdates {
	return &fakeTripUpdates{caches: make(map[string]*kvstore.TripUpdateCache)}
}

func tripKey(agency gtfs.Agency, tripId string) string {
	return fmt.Sprintf("%s:%s", agency, tripId)
}

func (f *fakeTripUpdates) getArrival(agency gtfs.Agency, tripId string, stopSequence int) (*time.Time, error) {
	cache := f.caches[tripKey(agency, tripId)]
	if cache == nil {
		return nil, nil
	}
	cached, present := cache.Stops[stopSequence]
	if !present {
		return nil, nil
	}
	arrival := cached.LastSeenArrival
	return &arrival, nil
}

func (f *fakeTripUpdates) getCache(agency gtfs.Agency, tripId string) (*kvstore.TripUpdateCache, error) {
	return f.caches[tripKey(agency, tripId)], nil
}

func (f *fakeTripUpdates) remove(agency gtfs.Agency, tripId string) error {
	delete(f.caches, tripKey(agency, tripId))
	f.removed = append(f.removed, tripKey(agency, tripId))
	return nil
}

//fakeSequenceDedup implements sequenceDedup over a map
type fakeSequenceDedup struct {
	saved map[string]bool
}

func makeFakeSequenceDedup() *fakeSequenceDedup {
	return &fakeSequenceDedup{saved: make(map[string]bool)}
}

func savedKey(agency gtfs.Agency, tripId string, serviceDate time.Time, stopSequence int) string {
	return fmt.Sprintf("%s:%s:%s:%d", agency, tripId, serviceDate.Format("2006-01-02"), stopSequence)
}

func (f *fakeSequenceDedup) isSaved(agency gtfs.Agency, tripId string, serviceDate time.Time, stopSequence int) (bool, error) {
	return f.saved[savedKey(agency, tripId, serviceDate, stopSequence)], nil
}

func (f *fakeSequenceDedup) markSaved(agency gtfs.Agency, tripId string, serviceDate time.Time, stopSequence int) error {
	f.saved[savedKey(agency, tripId, serviceDate, stopSequence)] = true
	return nil
}

//fakeStaticSource implements staticSource over maps, counting queries so cache
//behavior can be asserted
type fakeStaticSource struct {
	trips            map[string]*gtfs.Trip
	stops            map[string]*gtfs.Stop
	stopTimes        map[string]map[int]*gtfs.StopTime
	maxStopSequences map[string]int
	hashes           map[gtfs.Agency]string

	tripQueries      int
	stopTimesQueries int
	hashQueries      int
}

func (f *fakeStaticSource) getTrip(tripId string) (*gtfs.Trip, error) {
	f.tripQueries++
	return f.trips[tripId], nil
}

func (f *fakeStaticSource) getStop(stopId string) (*gtfs.Stop, error) {
	return f.stops[stopId], nil
}

func (f *fakeStaticSource) getStopTimes(tripId string) (map[int]*gtfs.StopTime, error) {
	f.stopTimesQueries++
	if stopTimes, present := f.stopTimes[tripId]; present {
		return stopTimes, nil
	}
	return map[int]*gtfs.StopTime{}, nil
}

func (f *fakeStaticSource) getMaxStopSequence(tripId string) (int, error) {
	return f.maxStopSequences[tripId], nil
}

func (f *fakeStaticSource) getCurrentHash(agency gtfs.Agency) (string, error) {
	f.hashQueries++
	return f.hashes[agency], nil
}

// makeTestStatic builds static data for two ten stop trips on line 152 plus an
// overnight trip whose second stop is scheduled at 25:00:00. Stop 5 of the day
// trips arrives at exactly 12:00:00, neighbouring stops a minute apart.
func makeTestStatic() *fakeStaticSource {
	static := &fakeStaticSource{
		trips: map[string]*gtfs.Trip{
			"trip_1": {TripId: "trip_1", RouteId: "route_1", ServiceId: "service_1",
				DirectionId: intPtr(0), Headsign: strPtr("Dworzec Główny"), RouteShortName: "152"},
			"trip_2": {TripId: "trip_2", RouteId: "route_1", ServiceId: "service_1",
				DirectionId: intPtr(1), Headsign: strPtr("Os. Kurdwanów"), RouteShortName: "152"},
			"trip_night": {TripId: "trip_night", RouteId: "route_1", ServiceId: "service_2",
				DirectionId: intPtr(0), Headsign: strPtr("Dworzec Główny"), RouteShortName: "152"},
		},
		stops:            make(map[string]*gtfs.Stop),
		stopTimes:        make(map[string]map[int]*gtfs.StopTime),
		maxStopSequences: map[string]int{"trip_1": 10, "trip_2": 10, "trip_night": 2},
		hashes:           map[gtfs.Agency]string{gtfs.AgencyMPK: "abc123hash"},
	}

	for stopSequence := 1; stopSequence <= 10; stopSequence++ {
		stopId := fmt.Sprintf("stop_%d", stopSequence)
		static.stops[stopId] = &gtfs.Stop{
			StopId:   stopId,
			StopName: "Rondo Mogilskie",
			StopDesc: strPtr("01"),
			StopLat:  float64Ptr(50.06),
			StopLon:  float64Ptr(19.94),
		}
	}

	for _, tripId := range []string{"trip_1", "trip_2"} {
		stopTimes := make(map[int]*gtfs.StopTime)
		for stopSequence := 1; stopSequence <= 10; stopSequence++ {
			arrivalSeconds := 43200 + (stopSequence-5)*60
			stopTimes[stopSequence] = &gtfs.StopTime{
				TripId:           tripId,
				StopSequence:     stopSequence,
				StopId:           fmt.Sprintf("stop_%d", stopSequence),
				ArrivalSeconds:   arrivalSeconds,
				DepartureSeconds: intPtr(arrivalSeconds + 30),
			}
		}
		static.stopTimes[tripId] = stopTimes
	}

	static.stopTimes["trip_night"] = map[int]*gtfs.StopTime{
		1: {TripId: "trip_night", StopSequence: 1, StopId: "stop_1",
			ArrivalSeconds: 89400, DepartureSeconds: intPtr(89430)},
		2: {TripId: "trip_night", StopSequence: 2, StopId: "stop_2",
			ArrivalSeconds: 90000, DepartureSeconds: intPtr(90030)},
	}

	return static
}

func makeTestDetector(static *fakeStaticSource) (*stopEventDetector, *fakeVehicleStates, *fakeTripUpdates, *fakeSequenceDedup) {
	location, _ := time.LoadLocation("Europe/Warsaw")
	states := makeFakeVehicleStates()
	updates := makeFakeTripUpdates()
	dedup := makeFakeSequenceDedup()
	detector := &stopEventDetector{
		log:              makeTestLogWriter().log,
		states:           states,
		updates:          updates,
		dedup:            dedup,
		static:           static,
		location:         location,
		trips:            make(map[string]*gtfs.Trip),
		stops:            make(map[string]*gtfs.Stop),
		stopTimes:        make(map[string]map[int]*gtfs.StopTime),
		maxStopSequences: make(map[string]int),
		agencyHashes:     make(map[gtfs.Agency]string),
	}
	return detector, states, updates, dedup
}

func makeTestVehiclePosition(tripId string, stopSequence *int, status *int,
	licensePlate string, timestamp time.Time) *kvstore.VehiclePositionMessage {
	var stopId *string
	if stopSequence != nil {
		stopId = strPtr(fmt.Sprintf("stop_%d", *stopSequence))
	}
	return &kvstore.VehiclePositionMessage{
		Agency:       "mpk",
		TripId:       tripId,
		VehicleId:    "v1",
		LicensePlate: licensePlate,
		StopId:       stopId,
		StopSequence: stopSequence,
		Status:       status,
		Timestamp:    timestamp,
	}
}

func makeTestVehicleState(tripId string, stopSequence int, timestamp time.Time) *kvstore.VehicleState {
	return &kvstore.VehicleState{
		Agency:              gtfs.AgencyMPK,
		LicensePlate:        "AB123",
		TripId:              tripId,
		CurrentStopSequence: stopSequence,
		LastTimestamp:       timestamp,
	}
}

// makeTestTripUpdateCache builds a cache entry, stops maps a stop sequence to
// its first and last seen arrival.
func makeTestTripUpdateCache(tripId string, stops map[int][2]time.Time) *kvstore.TripUpdateCache {
	cachedStops := make(map[int]kvstore.CachedStopTime)
	for stopSequence, arrivals := range stops {
		cachedStops[stopSequence] = kvstore.CachedStopTime{
			StopId:           fmt.Sprintf("stop_%d", stopSequence),
			StopSequence:     stopSequence,
			FirstSeenArrival: arrivals[0],
			LastSeenArrival:  arrivals[1],
		}
	}
	return &kvstore.TripUpdateCache{
		Agency: gtfs.AgencyMPK,
		TripId: tripId,
		Stops:  cachedStops,
	}
}
