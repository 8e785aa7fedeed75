package kvstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetReady marks static gtfs data as loaded. The key carries no expiry, the
// importer refreshes it after every cycle.
func SetReady(ctx context.Context, client *redis.Client) error {
	return client.Set(ctx, ReadyKey, "1", 0).Err()
}

// WaitForReady blocks until the importer marks static data ready, checking
// every pollInterval up to timeout. Returns false with a nil error when a
// shutdown signal arrived first.
func WaitForReady(log *log.Logger,
	client *redis.Client,
	timeout time.Duration,
	pollInterval time.Duration,
	shutdownSignal chan os.Signal) (bool, error) {

	log.Printf("waiting for static gtfs data to be ready")
	deadline := time.Now().Add(timeout)
	sleepChan := make(chan bool)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		present, err := client.Exists(ctx, ReadyKey).Result()
		cancel()
		if err != nil {
			log.Printf("error checking ready flag: %v\n", err)
		} else if present > 0 {
			log.Printf("static gtfs data ready")
			return true, nil
		}

		if time.Now().Add(pollInterval).After(deadline) {
			return false, fmt.Errorf("static gtfs data not ready after %v", timeout)
		}

		go func() {
			time.Sleep(pollInterval)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("Exiting on shutdown signal")
			return false, nil
		case <-sleepChan:
		}
	}
}
