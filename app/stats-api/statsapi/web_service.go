package statsapi

import (
	"context"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/OpenTransitData/stopcast/foundation/database"
	"github.com/OpenTransitData/stopcast/foundation/metrics"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//healthHandler reports whether the service can reach its database
type healthHandler struct {
	log *logger.Logger
	db  *sqlx.DB
}

//ServeHTTP implements healthHandler's http.Handler interface
func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := database.StatusCheck(ctx, h.db); err != nil {
		h.log.Printf("health check failed: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"database unavailable"}`))
		return
	}
	writePayload(h.log, w, []byte(`{"status":"ok"}`))
}

//statusRecorder captures the response status code for the request metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// metricsMiddleware counts requests and observes their latency. Requests are
// labeled by the route template, not the raw path, to keep the cardinality of
// the instruments bounded.
func metricsMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if template, err := route.GetPathTemplate(); err == nil {
					path = template
				}
			}
			m.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
			m.RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(started).Seconds())
		})
	}
}

//writePayload writes an application/json payload, logging write failures
func writePayload(log *logger.Logger, w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(payload); err != nil {
		log.Printf("Error writing json response: %s", err)
	}
}

//createServer creates configured http.Server routing the statistics and live endpoints
func createServer(log *logger.Logger,
	db *sqlx.DB,
	m *metrics.Metrics,
	stats *statsHandler,
	vehicles *vehiclesHandler,
	shapes *shapesHandler,
	httpPort int) *http.Server {

	r := mux.NewRouter()
	r.Use(metricsMiddleware(m))
	r.Handle("/health", &healthHandler{log: log, db: db})
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/lines/stats/summary", stats.summary)
	v1.HandleFunc("/lines/{line_number}/stats/max-delay", stats.maxDelay)
	v1.HandleFunc("/lines/{line_number}/stats/route-delay", stats.routeDelay)
	v1.HandleFunc("/lines/{line_number}/stats/punctuality", stats.punctuality)
	v1.HandleFunc("/lines/{line_number}/stats/trend", stats.trend)
	v1.HandleFunc("/vehicles/positions", vehicles.positions)
	v1.HandleFunc("/shapes/{shape_id}", shapes.shape)

	srv := &http.Server{
		Addr: strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
	return srv
}
