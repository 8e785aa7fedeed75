package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/OpenTransitData/stopcast/business/data/rtfeed"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// CachedStopTime holds the predicted arrivals seen for a single stop of a trip.
// FirstSeenArrival is the prediction from the first update that mentioned the
// stop, LastSeenArrival from the most recent one. Once a vehicle has passed a
// stop the older prediction tends to be the accurate one.
type CachedStopTime struct {
	StopId           string    `msgpack:"stop_id"`
	StopSequence     int       `msgpack:"stop_sequence"`
	FirstSeenArrival time.Time `msgpack:"first_seen_arrival"`
	LastSeenArrival  time.Time `msgpack:"last_seen_arrival"`
}

// TripUpdateCache is the merged prediction state of one trip, keyed by stop
// sequence.
type TripUpdateCache struct {
	Agency    gtfs.Agency            `msgpack:"agency"`
	TripId    string                 `msgpack:"trip_id"`
	Stops     map[int]CachedStopTime `msgpack:"stops"`
	CreatedAt time.Time              `msgpack:"created_at"`
}

// TripUpdates reads and writes TripUpdateCache entries.
type TripUpdates struct {
	client *redis.Client
}

// MakeTripUpdates creates TripUpdates
func MakeTripUpdates(client *redis.Client) *TripUpdates {
	return &TripUpdates{client: client}
}

func tripUpdateKey(agency gtfs.Agency, tripId string) string {
	return fmt.Sprintf("tu:%s:%s", agency, tripId)
}

// Get retrieves the trip's cache entry, or nil when the trip is unknown or the
// entry can't be decoded.
func (t *TripUpdates) Get(ctx context.Context, agency gtfs.Agency, tripId string) (*TripUpdateCache, error) {
	data, err := t.client.Get(ctx, tripUpdateKey(agency, tripId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cache := TripUpdateCache{}
	if err = msgpack.Unmarshal(data, &cache); err != nil {
		return nil, nil
	}
	return &cache, nil
}

// Update merges the update's predictions into the trip's cache entry and
// resets its TTL. stopIdToSeq resolves entries whose stop sequence the feed
// left out.
func (t *TripUpdates) Update(ctx context.Context, update *rtfeed.TripUpdate, stopIdToSeq map[string]int) error {
	existing, err := t.Get(ctx, update.Agency, update.TripId)
	if err != nil {
		return err
	}

	cache := mergeTripUpdate(existing, update, stopIdToSeq, time.Now().UTC())

	data, err := msgpack.Marshal(cache)
	if err != nil {
		return err
	}
	return t.client.Set(ctx, tripUpdateKey(update.Agency, update.TripId), data, tripUpdateTTL).Err()
}

// GetArrival retrieves the newest cached arrival for the stop sequence, or nil
// when the trip or the stop has no cached prediction.
func (t *TripUpdates) GetArrival(ctx context.Context, agency gtfs.Agency, tripId string, stopSequence int) (*time.Time, error) {
	cache, err := t.Get(ctx, agency, tripId)
	if err != nil || cache == nil {
		return nil, err
	}
	cached, present := cache.Stops[stopSequence]
	if !present {
		return nil, nil
	}
	arrival := cached.LastSeenArrival
	return &arrival, nil
}

// Delete removes the trip's entry.
func (t *TripUpdates) Delete(ctx context.Context, agency gtfs.Agency, tripId string) error {
	return t.client.Del(ctx, tripUpdateKey(agency, tripId)).Err()
}

// mergeTripUpdate folds update into existing. Stops keep the first arrival ever
// seen for their sequence while the newest arrival overwrites LastSeenArrival.
// Entries that resolve to no stop sequence or carry no time are dropped. The
// preferred time is the arrival, falling back to the departure.
func mergeTripUpdate(existing *TripUpdateCache,
	update *rtfeed.TripUpdate,
	stopIdToSeq map[string]int,
	now time.Time) *TripUpdateCache {

	cache := TripUpdateCache{
		Agency:    update.Agency,
		TripId:    update.TripId,
		Stops:     make(map[int]CachedStopTime),
		CreatedAt: now,
	}
	if existing != nil {
		for stopSequence, cached := range existing.Stops {
			cache.Stops[stopSequence] = cached
		}
		cache.CreatedAt = existing.CreatedAt
	}

	for _, stu := range update.StopTimeUpdates {
		var stopSequence int
		if stu.StopSequence != nil {
			stopSequence = *stu.StopSequence
		} else if seq, present := stopIdToSeq[stu.StopId]; present {
			stopSequence = seq
		} else {
			continue
		}

		arrival := stu.ArrivalTime
		if arrival == nil {
			arrival = stu.DepartureTime
		}
		if arrival == nil {
			continue
		}

		if old, present := cache.Stops[stopSequence]; present {
			cache.Stops[stopSequence] = CachedStopTime{
				StopId:           stu.StopId,
				StopSequence:     stopSequence,
				FirstSeenArrival: old.FirstSeenArrival,
				LastSeenArrival:  *arrival,
			}
		} else {
			cache.Stops[stopSequence] = CachedStopTime{
				StopId:           stu.StopId,
				StopSequence:     stopSequence,
				FirstSeenArrival: *arrival,
				LastSeenArrival:  *arrival,
			}
		}
	}

	return &cache
}
