// Package keyvalue provides support for access the redis key value store.
package keyvalue

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Config is the required properties to use the key value store.
type Config struct {
	Host     string
	Password string
	// PasswordFile names a file whose trimmed contents replace Password when set.
	PasswordFile string
	DB           int
}

// Open knows how to open a redis connection based on the configuration.
// The connection is verified with a ping before it's returned.
func Open(cfg Config) (*redis.Client, error) {
	password := cfg.Password
	if cfg.PasswordFile != "" {
		contents, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("reading key value store password file: %w", err)
		}
		password = strings.TrimSpace(string(contents))
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host,
		Password: password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Host, err)
	}
	return client, nil
}

// StatusCheck returns nil when a round trip to the key value store succeeds.
func StatusCheck(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}
