package statsapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheRequestTimeout = 5 * time.Second

	// Short spans change while the day is still being recorded, long spans
	// are dominated by finished days and can be served stale a bit longer.
	shortCacheTTL     = 120 * time.Second
	longCacheTTL      = 300 * time.Second
	longCacheSpanDays = 7
)

//responseCache interface stores rendered response payloads
type responseCache interface {

	//get returns the payload cached under key, or nil when absent
	get(key string) []byte

	//set stores payload under key for ttl
	set(key string, payload []byte, ttl time.Duration)
}

//kvResponseCache implements responseCache over the key value store. Store
//errors degrade to cache misses so the api keeps answering from the database.
type kvResponseCache struct {
	log    *log.Logger
	client *redis.Client
}

//makeKVResponseCache creates kvResponseCache
func makeKVResponseCache(log *log.Logger, client *redis.Client) *kvResponseCache {
	return &kvResponseCache{
		log:    log,
		client: client,
	}
}

func (k *kvResponseCache) get(key string) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), cacheRequestTimeout)
	defer cancel()

	payload, err := k.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			k.log.Printf("error reading cached response %s: %v", key, err)
		}
		return nil
	}
	return payload
}

func (k *kvResponseCache) set(key string, payload []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheRequestTimeout)
	defer cancel()

	if err := k.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		k.log.Printf("error caching response %s: %v", key, err)
	}
}

//cacheKey builds the storage key for one rendered endpoint response
func cacheKey(endpoint string, lineNumber string, dates dateRange) string {
	return fmt.Sprintf("stats:%s:%s:%s:%s",
		endpoint, lineNumber, formatDate(dates.Start), formatDate(dates.End))
}

//cacheTTL selects how long a rendering for dates stays cached
func cacheTTL(dates dateRange) time.Duration {
	if dates.days() >= longCacheSpanDays {
		return longCacheTTL
	}
	return shortCacheTTL
}
