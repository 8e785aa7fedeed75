package monitor

import (
	"encoding/json"
	"log"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/nats-io/nats.go"
)

// StopEventsSubject carries one JSON message per persisted stop event.
const StopEventsSubject = "stop-events"

//stopEventPublisher sends freshly persisted stop events to downstream
//listeners over NATS
type stopEventPublisher struct {
	log               *log.Logger
	natsConnection    *nats.Conn
	broadcastOverNats bool
}

//makeStopEventPublisher creates stopEventPublisher, natsConnection may be nil
//when broadcastOverNats is false
func makeStopEventPublisher(log *log.Logger,
	natsConnection *nats.Conn,
	broadcastOverNats bool) *stopEventPublisher {
	return &stopEventPublisher{
		log:               log,
		natsConnection:    natsConnection,
		broadcastOverNats: broadcastOverNats,
	}
}

// broadcast sends each event as JSON on the stop-events subject. Broadcast
// failures are logged and never hold up the writer.
func (p *stopEventPublisher) broadcast(events []*gtfs.StopEvent) {
	if !p.broadcastOverNats {
		return
	}
	for _, event := range events {
		jsonData, err := json.Marshal(event)
		if err != nil {
			p.log.Printf("failed to marshal stop event in "+
				"stopEventPublisher.broadcast, error:%v", err)
			continue
		}
		err = p.natsConnection.Publish(StopEventsSubject, jsonData)
		if err != nil {
			p.log.Printf("failed to send stop event in "+
				"stopEventPublisher.broadcast, error:%v", err)
		}
	}
}
