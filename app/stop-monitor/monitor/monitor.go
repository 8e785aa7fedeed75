// Package monitor detects vehicle stop arrivals from the realtime position stream
package monitor

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/OpenTransitData/stopcast/business/data/kvstore"
	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

//RunStopMonitorLoop starts loop that consumes the vehicle_positions channel,
//runs stop event detection on each position and batches the resulting events
//to the database.
func RunStopMonitorLoop(log *log.Logger,
	db *sqlx.DB,
	kvClient *redis.Client,
	natsConnection *nats.Conn,
	broadcastOverNats bool,
	location *time.Location,
	batchSize int,
	flushIntervalSeconds int,
	shutdownSignal chan os.Signal) error {

	flushInterval := time.Duration(flushIntervalSeconds) * time.Second

	detector := makeStopEventDetector(log, db, kvClient, location)
	publisher := makeStopEventPublisher(log, natsConnection, broadcastOverNats)
	writer := makeBatchWriter(log, &dbEventRecorder{db: db}, publisher, batchSize, flushInterval)

	pubsub := kvstore.SubscribeVehiclePositions(context.Background(), kvClient)
	defer func() {
		err := pubsub.Close()
		if err != nil {
			log.Printf("error closing vehicle position subscription: %v", err)
		}
	}()
	messages := pubsub.Channel()

	// The ticker drives flushes while the channel is quiet, a partial batch
	// never waits longer than the flush interval.
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	log.Printf("listening for vehicle positions")
	for {
		select {
		case <-shutdownSignal:
			log.Printf("Exiting on shutdown signal")
			writer.flush()
			return nil
		case <-ticker.C:
			writer.flushIfStale()
		case message, open := <-messages:
			if !open {
				writer.flush()
				return fmt.Errorf("vehicle position subscription closed")
			}
			vp, err := kvstore.DecodeVehiclePositionMessage(message.Payload)
			if err != nil {
				log.Printf("error decoding vehicle position message: %v\n", err)
				continue
			}
			writer.add(detector.processPosition(vp))
		}
	}
}
