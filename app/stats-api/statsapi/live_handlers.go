package statsapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/OpenTransitData/stopcast/business/data/rtfeed"
	"github.com/OpenTransitData/stopcast/foundation/httpclient"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
)

//liveSource interface provides realtime vehicle positions and the static trip lookup
type liveSource interface {

	//fetchPositions returns the current vehicle positions from all configured feeds
	fetchPositions() []rtfeed.VehiclePosition

	//tripInfo returns route and headsign details keyed by trip id
	tripInfo() (map[string]gtfs.TripInfo, error)
}

//feedLiveSource implements liveSource over the upstream feeds and the database
type feedLiveSource struct {
	log    *log.Logger
	client *httpclient.Client
	db     *sqlx.DB
}

//makeFeedLiveSource creates feedLiveSource
func makeFeedLiveSource(log *log.Logger, client *httpclient.Client, db *sqlx.DB) *feedLiveSource {
	return &feedLiveSource{
		log:    log,
		client: client,
		db:     db,
	}
}

//fetchPositions pulls every configured feed.
//errors are logged and skipped so one agency outage doesn't blank the map
func (f *feedLiveSource) fetchPositions() []rtfeed.VehiclePosition {
	positions := make([]rtfeed.VehiclePosition, 0)
	for _, feed := range gtfs.FeedConfigs() {
		payload, err := f.client.FetchBytes(feed.VehiclePositionsURL)
		if err != nil {
			f.log.Printf("error retrieving %s vehicle positions. error:%v\n", feed.Agency, err)
			continue
		}
		decoded, err := rtfeed.DecodeVehiclePositions(payload, feed.Agency)
		if err != nil {
			f.log.Printf("error decoding %s vehicle positions. error:%v\n", feed.Agency, err)
			continue
		}
		positions = append(positions, decoded...)
	}
	return positions
}

func (f *feedLiveSource) tripInfo() (map[string]gtfs.TripInfo, error) {
	return gtfs.GetAllTripInfo(f.db)
}

type liveVehicle struct {
	TripId       string   `json:"trip_id"`
	LicensePlate string   `json:"license_plate"`
	LineNumber   string   `json:"line_number"`
	Headsign     string   `json:"headsign"`
	ShapeId      *string  `json:"shape_id"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Bearing      *float64 `json:"bearing"`
	Timestamp    string   `json:"timestamp"`
}

type liveVehicleResponse struct {
	Count    int           `json:"count"`
	Vehicles []liveVehicle `json:"vehicles"`
}

//vehiclesHandler serves the live vehicle position endpoint
type vehiclesHandler struct {
	log  *log.Logger
	live liveSource
}

//makeVehiclesHandler creates vehiclesHandler
func makeVehiclesHandler(log *log.Logger, live liveSource) *vehiclesHandler {
	return &vehiclesHandler{
		log:  log,
		live: live,
	}
}

//positions handles GET /v1/vehicles/positions
func (h *vehiclesHandler) positions(w http.ResponseWriter, r *http.Request) {
	tripInfo, err := h.live.tripInfo()
	if err != nil {
		h.log.Printf("error loading trip info for live vehicles: %v", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	vehicles := buildLiveVehicles(h.live.fetchPositions(), tripInfo)

	payload, err := json.Marshal(liveVehicleResponse{
		Count:    len(vehicles),
		Vehicles: vehicles,
	})
	if err != nil {
		h.log.Printf("error marshaling live vehicles: %v", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	writePayload(h.log, w, payload)
}

// buildLiveVehicles joins realtime positions against the static trip lookup.
// Positions without coordinates, without a license plate or on a trip the
// current static schedule doesn't know are dropped.
func buildLiveVehicles(positions []rtfeed.VehiclePosition, tripInfo map[string]gtfs.TripInfo) []liveVehicle {
	vehicles := make([]liveVehicle, 0, len(positions))
	for _, position := range positions {
		if !position.HasPosition() || position.LicensePlate == "" {
			continue
		}
		info, present := tripInfo[position.TripId]
		if !present {
			continue
		}
		vehicles = append(vehicles, liveVehicle{
			TripId:       position.TripId,
			LicensePlate: position.LicensePlate,
			LineNumber:   info.RouteShortName,
			Headsign:     info.Headsign,
			ShapeId:      info.ShapeId,
			Latitude:     *position.Latitude,
			Longitude:    *position.Longitude,
			Bearing:      position.Bearing,
			Timestamp:    position.Timestamp.Format(time.RFC3339),
		})
	}
	return vehicles
}

type shapePoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Sequence  int     `json:"sequence"`
}

type shapeResponse struct {
	ShapeId string       `json:"shape_id"`
	Points  []shapePoint `json:"points"`
}

//shapesHandler serves the route geometry endpoint
type shapesHandler struct {
	log    *log.Logger
	shapes shapeSource
}

//makeShapesHandler creates shapesHandler
func makeShapesHandler(log *log.Logger, shapes shapeSource) *shapesHandler {
	return &shapesHandler{
		log:    log,
		shapes: shapes,
	}
}

//shape handles GET /v1/shapes/{shape_id}
func (h *shapesHandler) shape(w http.ResponseWriter, r *http.Request) {
	shapeId := mux.Vars(r)["shape_id"]
	if !shapeIdPattern.MatchString(shapeId) {
		http.Error(w, fmt.Sprintf("invalid shape id %q", shapeId), http.StatusBadRequest)
		return
	}
	rows, err := h.shapes.getShapePoints(shapeId)
	if err != nil {
		h.log.Printf("error loading shape %s: %v", shapeId, err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	if len(rows) == 0 {
		http.Error(w, fmt.Sprintf("shape %s not found", shapeId), http.StatusNotFound)
		return
	}

	points := make([]shapePoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, shapePoint{
			Latitude:  row.ShapePtLat,
			Longitude: row.ShapePtLon,
			Sequence:  row.ShapePtSequence,
		})
	}
	payload, err := json.Marshal(shapeResponse{
		ShapeId: shapeId,
		Points:  points,
	})
	if err != nil {
		h.log.Printf("error marshaling shape %s: %v", shapeId, err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	writePayload(h.log, w, payload)
}
