package kvstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/OpenTransitData/stopcast/business/data/gtfs"
	"github.com/redis/go-redis/v9"
)

// SavedSequences tracks which (agency, trip, service date, stop sequence)
// combinations already produced a persisted event. The sets and the database's
// unique index together keep re-delivered positions from duplicating events.
type SavedSequences struct {
	client *redis.Client
}

// MakeSavedSequences creates SavedSequences
func MakeSavedSequences(client *redis.Client) *SavedSequences {
	return &SavedSequences{client: client}
}

func savedSequencesKey(agency gtfs.Agency, tripId string, serviceDate time.Time) string {
	return fmt.Sprintf("saved:%s:%s:%s", agency, tripId, serviceDate.Format("2006-01-02"))
}

// IsSaved reports whether the stop sequence already produced an event.
func (s *SavedSequences) IsSaved(ctx context.Context, agency gtfs.Agency, tripId string,
	serviceDate time.Time, stopSequence int) (bool, error) {

	key := savedSequencesKey(agency, tripId, serviceDate)
	return s.client.SIsMember(ctx, key, strconv.Itoa(stopSequence)).Result()
}

// MarkSaved adds the stop sequence to the trip's dedup set and pushes the
// set's expiry out again.
func (s *SavedSequences) MarkSaved(ctx context.Context, agency gtfs.Agency, tripId string,
	serviceDate time.Time, stopSequence int) error {

	key := savedSequencesKey(agency, tripId, serviceDate)
	if err := s.client.SAdd(ctx, key, strconv.Itoa(stopSequence)).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, savedSequencesTTL).Err()
}
