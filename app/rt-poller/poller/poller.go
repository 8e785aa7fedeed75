// Package poller polls each agency's realtime feeds and distributes the
// decoded results through the key value store.
package poller

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/OpenTransitData/stopcast/foundation/httpclient"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

//RunPollLoop starts loop that retrieves both realtime feeds for every agency
//and hands the payloads to the publisher, repeating every pollEverySeconds.
func RunPollLoop(log *log.Logger,
	db *sqlx.DB,
	kvClient *redis.Client,
	httpClient *httpclient.Client,
	pollEverySeconds int,
	shutdownSignal chan os.Signal) error {

	loopDuration := time.Duration(pollEverySeconds) * time.Second

	sleepChan := make(chan bool)
	sleep := time.Duration(0) //sleep for zero seconds the first time

	pub := makePublisher(log, db, kvClient)
	feeds := gtfs.FeedConfigs()
	for {

		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("Exiting on shutdown signal")
			return nil
		case <-sleepChan:
			break
		}

		// mark the time we start working
		start := time.Now()

		for _, feed := range feeds {
			pollFeed(log, pub, httpClient, feed)
		}

		// attempt to run the loop every pollEverySeconds by subtracting the time it took to perform the work
		workTook := time.Now().Sub(start)

		log.Printf("work took %s\n", fmtDuration(workTook))

		// if the work took longer than loopDuration don't sleep at all on the next loop
		if workTook >= loopDuration {
			sleep = time.Duration(0)
		} else {
			sleep = loopDuration - workTook
		}

	}
}

//pollFeed retrieves and distributes both realtime feeds for one agency.
//errors are logged and skipped so one bad feed doesn't stall the others
func pollFeed(log *log.Logger, pub *publisher, httpClient *httpclient.Client, feed gtfs.FeedConfig) {

	payload, err := httpClient.FetchBytes(feed.VehiclePositionsURL)
	if err != nil {
		log.Printf("error retrieving %s vehicle positions. error:%v\n", feed.Agency, err)
	} else {
		published, err := pub.publishVehiclePositions(feed.Agency, payload)
		if err != nil {
			log.Printf("error publishing %s vehicle positions. error:%v\n", feed.Agency, err)
		} else {
			log.Printf("%s: published %d vehicle positions\n", feed.Agency, published)
		}
	}

	payload, err = httpClient.FetchBytes(feed.TripUpdatesURL)
	if err != nil {
		log.Printf("error retrieving %s trip updates. error:%v\n", feed.Agency, err)
		return
	}
	processed, err := pub.processTripUpdates(feed.Agency, payload)
	if err != nil {
		log.Printf("error caching %s trip updates. error:%v\n", feed.Agency, err)
		return
	}
	log.Printf("%s: cached %d trip updates\n", feed.Agency, processed)
}

//fmtDuration returns a string presentation of time.Duration for logging
func fmtDuration(d time.Duration) string {
	d = d.Round(time.Millisecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	mill := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d.%d", h, m, mill)
}
