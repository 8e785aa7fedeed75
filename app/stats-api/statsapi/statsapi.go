// Package statsapi serves the public delay statistics and live vehicle rest api
package statsapi

import (
	"context"
	"fmt"
	logger "log"
	"os"
	"time"

	"github.com/OpenTransitData/stopcast/foundation/httpclient"
	"github.com/OpenTransitData/stopcast/foundation/metrics"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// dbStatsInterval drives the connection pool gauges.
const dbStatsInterval = 15 * time.Second

//RunWebService starts the statistics web service and terminates on shutdown signal
func RunWebService(log *logger.Logger,
	db *sqlx.DB,
	kvClient *redis.Client,
	m *metrics.Metrics,
	location *time.Location,
	httpPort int,
	fetchTimeoutSeconds int,
	shutdownSignal chan os.Signal) error {

	stats := makeStatsHandler(log,
		&dbStatsSource{db: db},
		makeKVResponseCache(log, kvClient),
		makeServiceCalendar(),
		location)
	fetchTimeout := time.Duration(fetchTimeoutSeconds) * time.Second
	vehicles := makeVehiclesHandler(log, makeFeedLiveSource(log, httpclient.New(fetchTimeout), db))
	shapes := makeShapesHandler(log, &dbShapeSource{db: db})

	srv := createServer(log, db, m, stats, vehicles, shapes, httpPort)

	collectorShutdown := make(chan struct{})
	m.StartDBStatsCollector(db.DB, dbStatsInterval, collectorShutdown)

	serverErrors := make(chan error, 1)
	log.Printf("Starting server on port %d", httpPort)
	go func() {
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		close(collectorShutdown)
		return fmt.Errorf("server error: %w", err)
	case <-shutdownSignal:
		log.Printf("Exiting on shutdown signal")
		close(collectorShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("error shutting down webservice, error:%s", err)
		}
	}
	return nil
}
