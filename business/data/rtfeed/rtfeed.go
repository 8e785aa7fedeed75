// Package rtfeed decodes GTFS-Realtime feed payloads into domain structs,
// keeping the generated protocol buffer types out of the rest of the program.
package rtfeed

import (
	"fmt"

	gtfsrtproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// payloadFloorBytes guards against upstream error pages and truncated
// responses. Payloads under the floor are treated as empty feeds.
const payloadFloorBytes = 10

func unmarshalFeed(payload []byte) (*gtfsrtproto.FeedMessage, error) {
	if len(payload) < payloadFloorBytes {
		return nil, nil
	}
	feedMessage := gtfsrtproto.FeedMessage{}
	if err := proto.Unmarshal(payload, &feedMessage); err != nil {
		preview := payload
		if len(preview) > 16 {
			preview = preview[:16]
		}
		return nil, fmt.Errorf("unable to unmarshal FeedMessage starting %x: %w", preview, err)
	}
	return &feedMessage, nil
}
