package monitor

import (
	"log"
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/jmoiron/sqlx"
)

//eventRecorder interface persists batches of stop events
type eventRecorder interface {

	//recordStopEvents saves events and reports how many rows were written
	recordStopEvents(events []*gtfs.StopEvent) (int, error)
}

//dbEventRecorder implements eventRecorder interface against the database
type dbEventRecorder struct {
	db *sqlx.DB
}

func (d *dbEventRecorder) recordStopEvents(events []*gtfs.StopEvent) (int, error) {
	return gtfs.RecordStopEvents(events, d.db)
}

// batchWriter buffers detected stop events and writes them in batches, once
// the buffer fills or flushInterval passed since the last write. A failed
// write drops the buffered events rather than stall the position stream, the
// dedup sets were already marked so they are gone for good.
type batchWriter struct {
	log           *log.Logger
	recorder      eventRecorder
	publisher     *stopEventPublisher
	batchSize     int
	flushInterval time.Duration
	buffer        []*gtfs.StopEvent
	lastFlush     time.Time
}

//makeBatchWriter creates batchWriter
func makeBatchWriter(log *log.Logger,
	recorder eventRecorder,
	publisher *stopEventPublisher,
	batchSize int,
	flushInterval time.Duration) *batchWriter {
	return &batchWriter{
		log:           log,
		recorder:      recorder,
		publisher:     publisher,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		buffer:        make([]*gtfs.StopEvent, 0, batchSize),
		lastFlush:     time.Now(),
	}
}

// add buffers events and flushes when the batch size or staleness threshold
// is reached.
func (w *batchWriter) add(events []*gtfs.StopEvent) {
	if len(events) == 0 {
		return
	}
	w.buffer = append(w.buffer, events...)
	if w.shouldFlush() {
		w.flush()
	}
}

func (w *batchWriter) shouldFlush() bool {
	if len(w.buffer) >= w.batchSize {
		return true
	}
	return len(w.buffer) > 0 && time.Since(w.lastFlush) >= w.flushInterval
}

// flushIfStale flushes a partial batch that waited flushInterval, called on a
// timer so buffered events reach the database during quiet stretches.
func (w *batchWriter) flushIfStale() {
	if w.shouldFlush() {
		w.flush()
	}
}

// flush writes the buffered events in one batch and broadcasts them after a
// successful write. The buffer is cleared either way.
func (w *batchWriter) flush() {
	if len(w.buffer) == 0 {
		return
	}
	written, err := w.recorder.recordStopEvents(w.buffer)
	if err != nil {
		w.log.Printf("error writing %d stop events, dropping them: %v", len(w.buffer), err)
	} else {
		w.log.Printf("wrote %d of %d stop events", written, len(w.buffer))
		w.publisher.broadcast(w.buffer)
	}
	w.buffer = make([]*gtfs.StopEvent, 0, w.batchSize)
	w.lastFlush = time.Now()
}
