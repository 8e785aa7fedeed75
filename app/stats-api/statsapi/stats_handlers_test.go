package statsapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

//fakeStatsSource implements statsSource over fixed results, counting queries
type fakeStatsSource struct {
	trips           int
	maxDelayRows    []*maxDelayRow
	routeDelayRows  []*routeDelayRow
	punctualityRows *punctualityRow
	trendRows       []*trendRow
	summaryRows     []*lineSummaryRow
	err             error

	tripsCountQueries int
	statQueries       int
}

func (f *fakeStatsSource) tripsCount(string, dateRange) (int, error) {
	f.tripsCountQueries++
	return f.trips, f.err
}

func (f *fakeStatsSource) maxDelayBetweenStops(string, dateRange) ([]*maxDelayRow, error) {
	f.statQueries++
	return f.maxDelayRows, f.err
}

func (f *fakeStatsSource) maxRouteDelay(string, dateRange) ([]*routeDelayRow, error) {
	f.statQueries++
	return f.routeDelayRows, f.err
}

func (f *fakeStatsSource) punctuality(string, dateRange) (*punctualityRow, error) {
	f.statQueries++
	return f.punctualityRows, f.err
}

func (f *fakeStatsSource) trend(string, dateRange) ([]*trendRow, error) {
	f.statQueries++
	return f.trendRows, f.err
}

func (f *fakeStatsSource) linesSummary(dateRange) ([]*lineSummaryRow, error) {
	f.statQueries++
	return f.summaryRows, f.err
}

//fakeResponseCache implements responseCache over a map
type fakeResponseCache struct {
	entries map[string][]byte
	ttls    map[string]time.Duration
}

func makeFakeResponseCache() *fakeResponseCache {
	return &fakeResponseCache{
		entries: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
	}
}

func (f *fakeResponseCache) get(key string) []byte {
	return f.entries[key]
}

func (f *fakeResponseCache) set(key string, payload []byte, ttl time.Duration) {
	f.entries[key] = payload
	f.ttls[key] = ttl
}

func makeTestStatsRouter(stats statsSource, cache responseCache) *mux.Router {
	handler := makeStatsHandler(log.New(os.Stdout, "TEST : ", log.LstdFlags),
		stats, cache, makeServiceCalendar(), time.UTC)
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/lines/stats/summary", handler.summary)
	v1.HandleFunc("/lines/{line_number}/stats/max-delay", handler.maxDelay)
	v1.HandleFunc("/lines/{line_number}/stats/route-delay", handler.routeDelay)
	v1.HandleFunc("/lines/{line_number}/stats/punctuality", handler.punctuality)
	v1.HandleFunc("/lines/{line_number}/stats/trend", handler.trend)
	return r
}

func serveTestRequest(router *mux.Router, url string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, url, nil))
	return recorder
}

func localTestTime(day, hour, minute int) time.Time {
	return time.Date(2026, 2, day, hour, minute, 0, 0, time.UTC)
}

func Test_statsHandler_maxDelay(t *testing.T) {
	vehicle := "DW12345"
	headsign := "Czerwone Maki"
	source := &fakeStatsSource{
		trips: 42,
		maxDelayRows: []*maxDelayRow{
			{
				TripId:                "block_152_trip_7",
				ServiceDate:           localTestTime(9, 0, 0),
				LineNumber:            "152",
				VehicleNumber:         &vehicle,
				FromStop:              "Rondo Mogilskie",
				ToStop:                "Rondo Grzegorzeckie",
				FromSequence:          4,
				ToSequence:            5,
				FromPlannedTime:       localTestTime(9, 8, 30),
				FromEventTime:         localTestTime(9, 8, 33),
				ToPlannedTime:         localTestTime(9, 8, 32),
				ToEventTime:           localTestTime(9, 8, 41),
				DelayGeneratedSeconds: 360,
				Headsign:              &headsign,
			},
		},
	}
	cache := makeFakeResponseCache()
	router := makeTestStatsRouter(source, cache)

	recorder := serveTestRequest(router,
		"/v1/lines/152/stats/max-delay?start_date=2026-02-09&end_date=2026-02-15")

	if recorder.Code != http.StatusOK {
		t.Fatalf("max-delay status = %d, want %d, body %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("max-delay Content-Type = %s, want application/json", contentType)
	}

	response := maxDelayResponse{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("unable to unmarshal response: %v", err)
	}
	if response.LineNumber != "152" || response.StartDate != "2026-02-09" || response.EndDate != "2026-02-15" {
		t.Errorf("unexpected response envelope %+v", response)
	}
	if response.TripsAnalyzed != 42 {
		t.Errorf("trips_analyzed = %d, want 42", response.TripsAnalyzed)
	}
	if len(response.MaxDelay) != 1 {
		t.Fatalf("max_delay has %d entries, want 1", len(response.MaxDelay))
	}

	entry := response.MaxDelay[0]
	if entry.TripId != "block_152_trip_7" || entry.VehicleNumber != "DW12345" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.FromStop != "Rondo Mogilskie" || entry.ToStop != "Rondo Grzegorzeckie" {
		t.Errorf("entry stops = %s / %s", entry.FromStop, entry.ToStop)
	}
	if entry.FromSequence != 4 || entry.ToSequence != 5 {
		t.Errorf("entry sequences = %d / %d", entry.FromSequence, entry.ToSequence)
	}
	if entry.FromPlannedTime != "2026-02-09 08:30:00" || entry.ToEventTime != "2026-02-09 08:41:00" {
		t.Errorf("entry times = %s / %s", entry.FromPlannedTime, entry.ToEventTime)
	}
	if entry.DelayGeneratedSeconds != 360 || entry.Headsign != "Czerwone Maki" {
		t.Errorf("entry delay = %d headsign = %s", entry.DelayGeneratedSeconds, entry.Headsign)
	}
	if entry.ServiceDate != "2026-02-09" {
		t.Errorf("entry service_date = %s, want 2026-02-09", entry.ServiceDate)
	}

	cached := cache.entries["stats:max-delay:152:2026-02-09:2026-02-15"]
	if string(cached) != recorder.Body.String() {
		t.Errorf("cached payload does not match the served response")
	}
	if ttl := cache.ttls["stats:max-delay:152:2026-02-09:2026-02-15"]; ttl != shortCacheTTL {
		t.Errorf("cache ttl = %v, want %v", ttl, shortCacheTTL)
	}
}

func Test_statsHandler_rejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"line number too long", "/v1/lines/123456/stats/max-delay"},
		{"unknown period", "/v1/lines/152/stats/max-delay?period=year"},
		{"start date alone", "/v1/lines/152/stats/trend?start_date=2026-02-09"},
		{"end before start", "/v1/lines/152/stats/punctuality?start_date=2026-02-15&end_date=2026-02-09"},
		{"span too long", "/v1/lines/152/stats/route-delay?start_date=2026-01-01&end_date=2026-04-30"},
		{"summary with bad period", "/v1/lines/stats/summary?period=year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeStatsSource{trips: 10}
			router := makeTestStatsRouter(source, makeFakeResponseCache())

			recorder := serveTestRequest(router, tt.url)
			if recorder.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", recorder.Code, http.StatusBadRequest)
			}
			if source.tripsCountQueries != 0 || source.statQueries != 0 {
				t.Errorf("rejected request still queried the database")
			}
		})
	}
}

func Test_statsHandler_unknownLineReturns404(t *testing.T) {
	source := &fakeStatsSource{trips: 0}
	router := makeTestStatsRouter(source, makeFakeResponseCache())

	recorder := serveTestRequest(router,
		"/v1/lines/999/stats/max-delay?start_date=2026-02-09&end_date=2026-02-15")

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusNotFound)
	}
	if !strings.Contains(recorder.Body.String(), "line 999 has no recorded trips") {
		t.Errorf("unexpected 404 body %q", recorder.Body.String())
	}
	if source.statQueries != 0 {
		t.Errorf("404 request still ran a statistics query")
	}
}

func Test_statsHandler_cacheHitSkipsQueries(t *testing.T) {
	cached := []byte(`{"line_number":"152","cached":true}`)
	cache := makeFakeResponseCache()
	cache.entries["stats:trend:152:2026-02-09:2026-02-15"] = cached

	source := &fakeStatsSource{trips: 10}
	router := makeTestStatsRouter(source, cache)

	recorder := serveTestRequest(router,
		"/v1/lines/152/stats/trend?start_date=2026-02-09&end_date=2026-02-15")

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
	if recorder.Body.String() != string(cached) {
		t.Errorf("body = %s, want cached payload", recorder.Body.String())
	}
	if source.tripsCountQueries != 0 || source.statQueries != 0 {
		t.Errorf("cache hit still queried the database")
	}
}

func Test_statsHandler_queryErrorReturns500(t *testing.T) {
	source := &fakeStatsSource{err: fmt.Errorf("connection refused")}
	router := makeTestStatsRouter(source, makeFakeResponseCache())

	recorder := serveTestRequest(router,
		"/v1/lines/152/stats/max-delay?start_date=2026-02-09&end_date=2026-02-15")

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(recorder.Body.String(), "Error serving request") {
		t.Errorf("unexpected error body %q", recorder.Body.String())
	}
}

func Test_statsHandler_routeDelaySortsAndLimits(t *testing.T) {
	// rows arrive in trip order, one per trip
	rows := make([]*routeDelayRow, 0, 12)
	for i := 0; i < 12; i++ {
		rows = append(rows, &routeDelayRow{
			TripId:                fmt.Sprintf("trip_%d", i),
			ServiceDate:           localTestTime(9, 0, 0),
			LineNumber:            "152",
			DelayGeneratedSeconds: i * 30,
		})
	}
	source := &fakeStatsSource{trips: 12, routeDelayRows: rows}
	router := makeTestStatsRouter(source, makeFakeResponseCache())

	recorder := serveTestRequest(router,
		"/v1/lines/152/stats/route-delay?start_date=2026-02-09&end_date=2026-02-15")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}

	response := routeDelayResponse{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("unable to unmarshal response: %v", err)
	}
	if len(response.MaxRouteDelay) != 10 {
		t.Fatalf("max_route_delay has %d entries, want 10", len(response.MaxRouteDelay))
	}
	if response.MaxRouteDelay[0].TripId != "trip_11" || response.MaxRouteDelay[0].DelayGeneratedSeconds != 330 {
		t.Errorf("first entry = %+v, want trip_11 at 330", response.MaxRouteDelay[0])
	}
	for i := 1; i < len(response.MaxRouteDelay); i++ {
		if response.MaxRouteDelay[i].DelayGeneratedSeconds > response.MaxRouteDelay[i-1].DelayGeneratedSeconds {
			t.Errorf("entries not sorted by generated delay at %d", i)
		}
	}
	if last := response.MaxRouteDelay[9]; last.DelayGeneratedSeconds != 60 {
		t.Errorf("last entry delay = %d, want 60", last.DelayGeneratedSeconds)
	}
}

func Test_statsHandler_punctualityPercentages(t *testing.T) {
	source := &fakeStatsSource{
		trips: 3,
		punctualityRows: &punctualityRow{
			Total:           7,
			OnTime:          5,
			SlightlyDelayed: 1,
			Delayed:         1,
		},
	}
	router := makeTestStatsRouter(source, makeFakeResponseCache())

	recorder := serveTestRequest(router,
		"/v1/lines/152/stats/punctuality?start_date=2026-02-09&end_date=2026-02-15")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}

	response := punctualityResponse{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("unable to unmarshal response: %v", err)
	}
	if response.TotalStops != 7 || response.OnTimeCount != 5 {
		t.Errorf("counts = %d / %d, want 7 / 5", response.TotalStops, response.OnTimeCount)
	}
	if response.OnTimePercent != 71.4 {
		t.Errorf("on_time_percent = %v, want 71.4", response.OnTimePercent)
	}
	if response.SlightlyDelayedPercent != 14.3 || response.DelayedPercent != 14.3 {
		t.Errorf("delayed percents = %v / %v, want 14.3 / 14.3",
			response.SlightlyDelayedPercent, response.DelayedPercent)
	}
}

func Test_statsHandler_punctualityWithoutEvents(t *testing.T) {
	// trips recorded but every event filtered out of the per stop breakdown
	source := &fakeStatsSource{trips: 3, punctualityRows: &punctualityRow{}}
	router := makeTestStatsRouter(source, makeFakeResponseCache())

	recorder := serveTestRequest(router,
		"/v1/lines/152/stats/punctuality?start_date=2026-02-09&end_date=2026-02-15")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}

	response := punctualityResponse{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("unable to unmarshal response: %v", err)
	}
	if response.TotalStops != 0 || response.OnTimePercent != 0 || response.DelayedPercent != 0 {
		t.Errorf("empty breakdown rendered as %+v", response)
	}
}

func Test_statsHandler_trendLabelsDayTypes(t *testing.T) {
	source := &fakeStatsSource{
		trips: 30,
		trendRows: []*trendRow{
			{ServiceDate: localTestTime(13, 0, 0), AvgDelaySeconds: 123.456, TripsCount: 11},
			{ServiceDate: localTestTime(14, 0, 0), AvgDelaySeconds: 80, TripsCount: 9},
			{ServiceDate: localTestTime(15, 0, 0), AvgDelaySeconds: 45.04, TripsCount: 10},
		},
	}
	router := makeTestStatsRouter(source, makeFakeResponseCache())

	recorder := serveTestRequest(router,
		"/v1/lines/152/stats/trend?start_date=2026-02-13&end_date=2026-02-15")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}

	response := trendResponse{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("unable to unmarshal response: %v", err)
	}
	if len(response.Days) != 3 {
		t.Fatalf("days has %d entries, want 3", len(response.Days))
	}

	friday := response.Days[0]
	if friday.Date != "2026-02-13" || friday.DayType != dayTypeWeekday {
		t.Errorf("friday = %+v", friday)
	}
	if friday.AvgDelaySeconds != 123.5 {
		t.Errorf("friday avg_delay_seconds = %v, want 123.5", friday.AvgDelaySeconds)
	}
	if friday.TripsCount != 11 {
		t.Errorf("friday trips_count = %d, want 11", friday.TripsCount)
	}
	if response.Days[1].DayType != dayTypeSaturday {
		t.Errorf("saturday day_type = %s", response.Days[1].DayType)
	}
	if response.Days[2].DayType != dayTypeSundayHoliday {
		t.Errorf("sunday day_type = %s", response.Days[2].DayType)
	}
}

func Test_statsHandler_summary(t *testing.T) {
	source := &fakeStatsSource{
		summaryRows: []*lineSummaryRow{
			{
				LineNumber:                  "52",
				TripsCount:                  210,
				AvgDelaySeconds:             95.67,
				MaxDelaySeconds:             1260,
				MaxDelayBetweenStopsSeconds: 420,
			},
			{
				LineNumber:                  "152",
				TripsCount:                  180,
				AvgDelaySeconds:             61.2,
				MaxDelaySeconds:             900,
				MaxDelayBetweenStopsSeconds: 300,
			},
		},
	}
	cache := makeFakeResponseCache()
	router := makeTestStatsRouter(source, cache)

	recorder := serveTestRequest(router,
		"/v1/lines/stats/summary?start_date=2026-02-09&end_date=2026-02-15")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", recorder.Code, http.StatusOK, recorder.Body.String())
	}

	response := linesSummaryResponse{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("unable to unmarshal response: %v", err)
	}
	if response.StartDate != "2026-02-09" || response.EndDate != "2026-02-15" {
		t.Errorf("unexpected response envelope %+v", response)
	}
	if len(response.Lines) != 2 {
		t.Fatalf("lines has %d entries, want 2", len(response.Lines))
	}
	if response.Lines[0].LineNumber != "52" || response.Lines[0].AvgDelaySeconds != 95.7 {
		t.Errorf("first line = %+v", response.Lines[0])
	}
	if response.Lines[1].MaxDelayBetweenStopsSeconds != 300 {
		t.Errorf("second line max_delay_between_stops_seconds = %d, want 300",
			response.Lines[1].MaxDelayBetweenStopsSeconds)
	}

	if _, present := cache.entries["stats:summary:all:2026-02-09:2026-02-15"]; !present {
		t.Errorf("summary response was not cached")
	}
	// the summary never consults the per line trip count
	if source.tripsCountQueries != 0 {
		t.Errorf("summary ran %d trip count queries, want 0", source.tripsCountQueries)
	}
}

func Test_statsHandler_emptyResultsRenderEmptyLists(t *testing.T) {
	source := &fakeStatsSource{trips: 5}
	router := makeTestStatsRouter(source, makeFakeResponseCache())

	recorder := serveTestRequest(router,
		"/v1/lines/152/stats/max-delay?start_date=2026-02-09&end_date=2026-02-15")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
	if !strings.Contains(recorder.Body.String(), `"max_delay":[]`) {
		t.Errorf("empty result rendered as %s", recorder.Body.String())
	}
}

func Test_round1(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"rounds down", 123.44, 123.4},
		{"rounds up", 123.456, 123.5},
		{"negative half rounds away from zero", -61.25, -61.3},
		{"whole number", 80, 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := round1(tt.value); got != tt.want {
				t.Errorf("round1(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func Test_percentOf(t *testing.T) {
	tests := []struct {
		name  string
		count int
		total int
		want  float64
	}{
		{"simple share", 5, 7, 71.4},
		{"everything", 7, 7, 100},
		{"nothing", 0, 7, 0},
		{"zero total", 3, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentOf(tt.count, tt.total); got != tt.want {
				t.Errorf("percentOf(%d, %d) = %v, want %v", tt.count, tt.total, got, tt.want)
			}
		})
	}
}
