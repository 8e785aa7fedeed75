// Package importer downloads static gtfs archives, detects changed content by
// hash and replaces each agency's schedule tables inside one transaction.
package importer

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/OpenTransitData/stopcast/business/data/kvstore"
	"github.com/OpenTransitData/stopcast/foundation/database"
	"github.com/OpenTransitData/stopcast/foundation/httpclient"
	"github.com/jackc/pgx"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// monthsOfPartitionsAhead is how many future months of stop_events partitions
// are kept ready beyond the current month.
const monthsOfPartitionsAhead = 2

// RunImportLoop imports every configured agency feed, marks the ready flag
// after each fully successful cycle and repeats every importInterval until a
// shutdown signal arrives.
func RunImportLoop(log *log.Logger,
	db *sqlx.DB,
	kvClient *redis.Client,
	httpClient *httpclient.Client,
	dataDir string,
	importInterval time.Duration,
	forceImport bool,
	shutdownSignal chan os.Signal) error {

	sleepChan := make(chan bool)
	sleep := time.Duration(0) //import immediately the first time

	//only force the first cycle, afterwards the hash comparison takes over
	force := forceImport
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

		if err := gtfs.EnsureMonthlyPartitions(db, start, monthsOfPartitionsAhead); err != nil {
			log.Printf("error ensuring stop_events partitions: %v\n", err)
		}

		failures := runImportCycle(log, db, httpClient, dataDir, force)
		force = false

		if failures == 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := kvstore.SetReady(ctx, kvClient)
			cancel()
			if err != nil {
				log.Printf("error setting ready flag: %v\n", err)
			} else {
				log.Printf("All agencies imported, ready flag set")
			}
		} else {
			log.Printf("%d agencies failed to import, not setting ready flag", failures)
		}

		// attempt to run the loop every importInterval by subtracting the time it took to perform the work
		workTook := time.Now().Sub(start)

		log.Printf("import cycle took %s\n", fmtDuration(workTook))

		// if the work took longer than importInterval don't sleep at all on the next loop
		if workTook >= importInterval {
			sleep = time.Duration(0)
		} else {
			sleep = importInterval - workTook
		}

	}
}

// runImportCycle imports each configured agency, isolating failures so one
// broken feed doesn't stop the others. Returns the number of failed agencies.
func runImportCycle(log *log.Logger,
	db *sqlx.DB,
	httpClient *httpclient.Client,
	dataDir string,
	force bool) int {

	failures := 0
	for _, feed := range gtfs.FeedConfigs() {
		err := importAgency(log, db, httpClient, feed, dataDir, force)
		if err != nil {
			log.Printf("error importing agency %s: %v\n", feed.Agency, err)
			failures++
		}
	}
	return failures
}

// importAgency downloads one agency's static gtfs zip, compares its hash to
// the loaded version, and when it differs archives the zip and replaces the
// agency's schedule tables inside a single transaction.
func importAgency(log *log.Logger,
	db *sqlx.DB,
	httpClient *httpclient.Client,
	feed gtfs.FeedConfig,
	dataDir string,
	force bool) error {

	start := time.Now()
	log.Printf("Downloading %s gtfs file from %s\n", feed.Agency, feed.StaticURL)
	body, err := httpClient.FetchBytes(feed.StaticURL)
	if err != nil {
		return fmt.Errorf("downloading static gtfs: %w", err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(body))
	log.Printf("Downloaded %d bytes in %d seconds, content hash %s\n",
		len(body), time.Now().Unix()-start.Unix(), hash)

	currentHash, err := gtfs.GetCurrentHash(db, feed.Agency)
	if err != nil {
		return fmt.Errorf("retrieving current hash: %w", err)
	}
	if currentHash == hash && !force {
		log.Printf("Agency %s gtfs file is unchanged, skipping load\n", feed.Agency)
		return nil
	}

	err = archiveZipFile(log, dataDir, feed.Agency, hash, body)
	if err != nil {
		return fmt.Errorf("archiving gtfs file: %w", err)
	}

	zipReader, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return fmt.Errorf("opening gtfs zip file: %w", err)
	}

	err = transact(log, db, func(tx *pgx.Tx) error {
		atx := gtfs.AgencyTransaction{
			Agency: feed.Agency,
			Tx:     tx,
		}
		innerErr := gtfs.DeleteAgencyStaticData(&atx)
		if innerErr != nil {
			return innerErr
		}
		innerErr = loadGtfsZip(log, &atx, zipReader)
		if innerErr != nil {
			return innerErr
		}
		return gtfs.SetCurrentHash(&atx, hash)
	})
	if err != nil {
		return err
	}
	log.Printf("Imported agency %s gtfs file in %s\n", feed.Agency, fmtDuration(time.Since(start)))
	return nil
}

// archiveZipFile keeps a copy of each imported zip named by agency and content
// hash. An archive from an earlier run is left in place.
func archiveZipFile(log *log.Logger, dataDir string, agency gtfs.Agency, hash string, body []byte) error {
	err := makeDirectoryIfNotPresent(dataDir)
	if err != nil {
		return err
	}
	archivePath := filepath.Join(dataDir, fmt.Sprintf("%s_%s.zip", agency, hash))
	if _, err = os.Stat(archivePath); err == nil {
		//archived on a previous run
		return nil
	}
	log.Printf("Archiving %s gtfs file to %s\n", agency, archivePath)
	return ioutil.WriteFile(archivePath, body, 0644)
}

func makeDirectoryIfNotPresent(directory string) error {
	if _, err := os.Stat(directory); os.IsNotExist(err) {
		err = os.Mkdir(directory, os.ModePerm)
		if err != nil {
			return err
		}
	}
	return nil
}

/*
transact borrows a pgx connection from db, starts a transaction, calls txFunc
and commits or rolls back the transaction depending on the return code of the
txFunc result. A pgx transaction is required so COPY loads and regular
statements share one connection.
*/
func transact(log *log.Logger, db *sqlx.DB, txFunc func(*pgx.Tx) error) (err error) {
	conn, err := database.AcquireConn(db)
	if err != nil {
		return err
	}
	defer func() {
		releaseErr := database.ReleaseConn(db, conn)
		if releaseErr != nil {
			log.Printf("Received error while attempting to release connection. error:%v", releaseErr)
		}
	}()
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback() // err is non-nil; don't change it
			if rollbackErr != nil {
				log.Printf("Received error while attempting to rollback transaction. error:%v", rollbackErr)
			}
			return
		}
		err = tx.Commit() // err is nil; if Commit returns error update err
	}()
	err = txFunc(tx)
	return err
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
