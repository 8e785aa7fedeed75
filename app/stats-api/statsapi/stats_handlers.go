package statsapi

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
)

// summaryCacheLine stands in for the line number segment of the cache key on
// the all lines summary endpoint.
const summaryCacheLine = "all"

//statsHandler serves the per line delay statistics endpoints
type statsHandler struct {
	log      *log.Logger
	stats    statsSource
	cache    responseCache
	calendar *serviceCalendar
	location *time.Location
}

//makeStatsHandler creates statsHandler
func makeStatsHandler(log *log.Logger,
	stats statsSource,
	cache responseCache,
	calendar *serviceCalendar,
	location *time.Location) *statsHandler {
	return &statsHandler{
		log:      log,
		stats:    stats,
		cache:    cache,
		calendar: calendar,
		location: location,
	}
}

//lineStatsRequest carries the validated parameters of one accepted statistics request
type lineStatsRequest struct {
	lineNumber string
	dates      dateRange
	cacheKey   string
	trips      int
}

// beginLineStats validates the request, answers it from the cache when
// possible and rejects lines with no recorded trips. A nil result means the
// response has already been written.
func (h *statsHandler) beginLineStats(w http.ResponseWriter, r *http.Request, endpoint string) *lineStatsRequest {
	lineNumber := mux.Vars(r)["line_number"]
	if !lineNumberPattern.MatchString(lineNumber) {
		http.Error(w, fmt.Sprintf("invalid line number %q", lineNumber), http.StatusBadRequest)
		return nil
	}
	dates, err := resolveDateRange(r.URL.Query(), time.Now().In(h.location))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil
	}
	key := cacheKey(endpoint, lineNumber, dates)
	if payload := h.cache.get(key); payload != nil {
		writePayload(h.log, w, payload)
		return nil
	}
	trips, err := h.stats.tripsCount(lineNumber, dates)
	if err != nil {
		h.serverError(w, err)
		return nil
	}
	if trips == 0 {
		http.Error(w, fmt.Sprintf("line %s has no recorded trips between %s and %s",
			lineNumber, formatDate(dates.Start), formatDate(dates.End)), http.StatusNotFound)
		return nil
	}
	return &lineStatsRequest{
		lineNumber: lineNumber,
		dates:      dates,
		cacheKey:   key,
		trips:      trips,
	}
}

//finishLineStats marshals response, stores it in the cache and writes it
func (h *statsHandler) finishLineStats(w http.ResponseWriter, request *lineStatsRequest, response interface{}) {
	payload, err := json.Marshal(response)
	if err != nil {
		h.serverError(w, err)
		return
	}
	h.cache.set(request.cacheKey, payload, cacheTTL(request.dates))
	writePayload(h.log, w, payload)
}

func (h *statsHandler) serverError(w http.ResponseWriter, err error) {
	h.log.Printf("error serving statistics request: %v", err)
	http.Error(w, "Error serving request", http.StatusInternalServerError)
}

type maxDelayEntry struct {
	TripId                string `json:"trip_id"`
	LineNumber            string `json:"line_number"`
	VehicleNumber         string `json:"vehicle_number"`
	FromStop              string `json:"from_stop"`
	ToStop                string `json:"to_stop"`
	FromSequence          int    `json:"from_sequence"`
	ToSequence            int    `json:"to_sequence"`
	FromPlannedTime       string `json:"from_planned_time"`
	FromEventTime         string `json:"from_event_time"`
	ToPlannedTime         string `json:"to_planned_time"`
	ToEventTime           string `json:"to_event_time"`
	DelayGeneratedSeconds int    `json:"delay_generated_seconds"`
	Headsign              string `json:"headsign"`
	ServiceDate           string `json:"service_date"`
}

type maxDelayResponse struct {
	LineNumber    string          `json:"line_number"`
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
	MaxDelay      []maxDelayEntry `json:"max_delay"`
	TripsAnalyzed int             `json:"trips_analyzed"`
}

//maxDelay handles GET /v1/lines/{line_number}/stats/max-delay
func (h *statsHandler) maxDelay(w http.ResponseWriter, r *http.Request) {
	request := h.beginLineStats(w, r, "max-delay")
	if request == nil {
		return
	}
	rows, err := h.stats.maxDelayBetweenStops(request.lineNumber, request.dates)
	if err != nil {
		h.serverError(w, err)
		return
	}

	entries := make([]maxDelayEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, makeMaxDelayEntry(row))
	}
	h.finishLineStats(w, request, maxDelayResponse{
		LineNumber:    request.lineNumber,
		StartDate:     formatDate(request.dates.Start),
		EndDate:       formatDate(request.dates.End),
		MaxDelay:      entries,
		TripsAnalyzed: request.trips,
	})
}

//makeMaxDelayEntry creates maxDelayEntry from a result row
func makeMaxDelayEntry(row *maxDelayRow) maxDelayEntry {
	return maxDelayEntry{
		TripId:                row.TripId,
		LineNumber:            row.LineNumber,
		VehicleNumber:         stringValue(row.VehicleNumber),
		FromStop:              row.FromStop,
		ToStop:                row.ToStop,
		FromSequence:          row.FromSequence,
		ToSequence:            row.ToSequence,
		FromPlannedTime:       formatLocalTime(row.FromPlannedTime),
		FromEventTime:         formatLocalTime(row.FromEventTime),
		ToPlannedTime:         formatLocalTime(row.ToPlannedTime),
		ToEventTime:           formatLocalTime(row.ToEventTime),
		DelayGeneratedSeconds: row.DelayGeneratedSeconds,
		Headsign:              stringValue(row.Headsign),
		ServiceDate:           formatDate(row.ServiceDate),
	}
}

type routeDelayEntry struct {
	TripId                string `json:"trip_id"`
	LineNumber            string `json:"line_number"`
	VehicleNumber         string `json:"vehicle_number"`
	FirstStop             string `json:"first_stop"`
	LastStop              string `json:"last_stop"`
	FirstPlannedTime      string `json:"first_planned_time"`
	FirstEventTime        string `json:"first_event_time"`
	LastPlannedTime       string `json:"last_planned_time"`
	LastEventTime         string `json:"last_event_time"`
	StartDelaySeconds     int    `json:"start_delay_seconds"`
	EndDelaySeconds       int    `json:"end_delay_seconds"`
	DelayGeneratedSeconds int    `json:"delay_generated_seconds"`
	Headsign              string `json:"headsign"`
	ServiceDate           string `json:"service_date"`
}

type routeDelayResponse struct {
	LineNumber    string            `json:"line_number"`
	StartDate     string            `json:"start_date"`
	EndDate       string            `json:"end_date"`
	MaxRouteDelay []routeDelayEntry `json:"max_route_delay"`
	TripsAnalyzed int               `json:"trips_analyzed"`
}

//routeDelay handles GET /v1/lines/{line_number}/stats/route-delay
func (h *statsHandler) routeDelay(w http.ResponseWriter, r *http.Request) {
	request := h.beginLineStats(w, r, "route-delay")
	if request == nil {
		return
	}
	rows, err := h.stats.maxRouteDelay(request.lineNumber, request.dates)
	if err != nil {
		h.serverError(w, err)
		return
	}

	// the query returns one row per trip in trip order, the top list wants
	// them by generated delay
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].DelayGeneratedSeconds > rows[j].DelayGeneratedSeconds
	})
	if len(rows) > 10 {
		rows = rows[:10]
	}

	entries := make([]routeDelayEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, makeRouteDelayEntry(row))
	}
	h.finishLineStats(w, request, routeDelayResponse{
		LineNumber:    request.lineNumber,
		StartDate:     formatDate(request.dates.Start),
		EndDate:       formatDate(request.dates.End),
		MaxRouteDelay: entries,
		TripsAnalyzed: request.trips,
	})
}

//makeRouteDelayEntry creates routeDelayEntry from a result row
func makeRouteDelayEntry(row *routeDelayRow) routeDelayEntry {
	return routeDelayEntry{
		TripId:                row.TripId,
		LineNumber:            row.LineNumber,
		VehicleNumber:         stringValue(row.VehicleNumber),
		FirstStop:             row.FirstStop,
		LastStop:              row.LastStop,
		FirstPlannedTime:      formatLocalTime(row.FirstPlannedTime),
		FirstEventTime:        formatLocalTime(row.FirstEventTime),
		LastPlannedTime:       formatLocalTime(row.LastPlannedTime),
		LastEventTime:         formatLocalTime(row.LastEventTime),
		StartDelaySeconds:     row.StartDelaySeconds,
		EndDelaySeconds:       row.EndDelaySeconds,
		DelayGeneratedSeconds: row.DelayGeneratedSeconds,
		Headsign:              stringValue(row.Headsign),
		ServiceDate:           formatDate(row.ServiceDate),
	}
}

type punctualityResponse struct {
	LineNumber             string  `json:"line_number"`
	StartDate              string  `json:"start_date"`
	EndDate                string  `json:"end_date"`
	TotalStops             int     `json:"total_stops"`
	OnTimeCount            int     `json:"on_time_count"`
	OnTimePercent          float64 `json:"on_time_percent"`
	SlightlyDelayedCount   int     `json:"slightly_delayed_count"`
	SlightlyDelayedPercent float64 `json:"slightly_delayed_percent"`
	DelayedCount           int     `json:"delayed_count"`
	DelayedPercent         float64 `json:"delayed_percent"`
}

//punctuality handles GET /v1/lines/{line_number}/stats/punctuality
func (h *statsHandler) punctuality(w http.ResponseWriter, r *http.Request) {
	request := h.beginLineStats(w, r, "punctuality")
	if request == nil {
		return
	}
	row, err := h.stats.punctuality(request.lineNumber, request.dates)
	if err != nil {
		h.serverError(w, err)
		return
	}

	h.finishLineStats(w, request, punctualityResponse{
		LineNumber:             request.lineNumber,
		StartDate:              formatDate(request.dates.Start),
		EndDate:                formatDate(request.dates.End),
		TotalStops:             row.Total,
		OnTimeCount:            row.OnTime,
		OnTimePercent:          percentOf(row.OnTime, row.Total),
		SlightlyDelayedCount:   row.SlightlyDelayed,
		SlightlyDelayedPercent: percentOf(row.SlightlyDelayed, row.Total),
		DelayedCount:           row.Delayed,
		DelayedPercent:         percentOf(row.Delayed, row.Total),
	})
}

type trendDay struct {
	Date            string  `json:"date"`
	DayType         string  `json:"day_type"`
	AvgDelaySeconds float64 `json:"avg_delay_seconds"`
	TripsCount      int     `json:"trips_count"`
}

type trendResponse struct {
	LineNumber string     `json:"line_number"`
	StartDate  string     `json:"start_date"`
	EndDate    string     `json:"end_date"`
	Days       []trendDay `json:"days"`
}

//trend handles GET /v1/lines/{line_number}/stats/trend
func (h *statsHandler) trend(w http.ResponseWriter, r *http.Request) {
	request := h.beginLineStats(w, r, "trend")
	if request == nil {
		return
	}
	rows, err := h.stats.trend(request.lineNumber, request.dates)
	if err != nil {
		h.serverError(w, err)
		return
	}

	days := make([]trendDay, 0, len(rows))
	for _, row := range rows {
		days = append(days, trendDay{
			Date:            formatDate(row.ServiceDate),
			DayType:         h.calendar.dayType(row.ServiceDate),
			AvgDelaySeconds: round1(row.AvgDelaySeconds),
			TripsCount:      row.TripsCount,
		})
	}
	h.finishLineStats(w, request, trendResponse{
		LineNumber: request.lineNumber,
		StartDate:  formatDate(request.dates.Start),
		EndDate:    formatDate(request.dates.End),
		Days:       days,
	})
}

type lineSummaryEntry struct {
	LineNumber                  string  `json:"line_number"`
	TripsCount                  int     `json:"trips_count"`
	AvgDelaySeconds             float64 `json:"avg_delay_seconds"`
	MaxDelaySeconds             int     `json:"max_delay_seconds"`
	MaxDelayBetweenStopsSeconds int     `json:"max_delay_between_stops_seconds"`
}

type linesSummaryResponse struct {
	StartDate string             `json:"start_date"`
	EndDate   string             `json:"end_date"`
	Lines     []lineSummaryEntry `json:"lines"`
}

//summary handles GET /v1/lines/stats/summary across all lines
func (h *statsHandler) summary(w http.ResponseWriter, r *http.Request) {
	dates, err := resolveDateRange(r.URL.Query(), time.Now().In(h.location))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := cacheKey("summary", summaryCacheLine, dates)
	if payload := h.cache.get(key); payload != nil {
		writePayload(h.log, w, payload)
		return
	}
	rows, err := h.stats.linesSummary(dates)
	if err != nil {
		h.serverError(w, err)
		return
	}

	lines := make([]lineSummaryEntry, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, lineSummaryEntry{
			LineNumber:                  row.LineNumber,
			TripsCount:                  row.TripsCount,
			AvgDelaySeconds:             round1(row.AvgDelaySeconds),
			MaxDelaySeconds:             row.MaxDelaySeconds,
			MaxDelayBetweenStopsSeconds: row.MaxDelayBetweenStopsSeconds,
		})
	}
	response := linesSummaryResponse{
		StartDate: formatDate(dates.Start),
		EndDate:   formatDate(dates.End),
		Lines:     lines,
	}
	payload, err := json.Marshal(response)
	if err != nil {
		h.serverError(w, err)
		return
	}
	h.cache.set(key, payload, cacheTTL(dates))
	writePayload(h.log, w, payload)
}

//stringValue returns the string behind value or an empty string for nil
func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

//round1 rounds value to one decimal place
func round1(value float64) float64 {
	return math.Round(value*10) / 10
}

//percentOf returns the share of count in total as a percentage with one decimal
func percentOf(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(count) / float64(total) * 100)
}
