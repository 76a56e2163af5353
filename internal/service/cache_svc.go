package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mathieu-neron/chanwatch/internal/model"
)

const flushedAtKey = "stats:flushed_at"

// CacheService mirrors the latest stats flush into Redis so other tools can
// read it without touching the stats file. With a nil client every operation
// is a no-op.
type CacheService struct {
	rdb *redis.Client
	ttl time.Duration

	// channels written by the previous flush; writes are serialized by the recorder
	prev map[string]struct{}
}

// NewCacheService creates a new CacheService. If redisURL is empty or connection
// fails, it returns a CacheService with a nil client (cache operations become no-ops).
// Entries expire after twice the stats interval so a dead process leaves no stale picture.
func NewCacheService(redisURL string, statsInterval time.Duration, log zerolog.Logger) *CacheService {
	ttl := 2 * statsInterval
	if redisURL == "" {
		log.Info().Msg("redis: no URL configured, stats cache disabled")
		return &CacheService{ttl: ttl}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis: invalid URL, stats cache disabled")
		return &CacheService{ttl: ttl}
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis: connection failed, stats cache disabled")
		_ = rdb.Close()
		return &CacheService{ttl: ttl}
	}

	log.Info().Msg("redis: connected, stats cache enabled")
	return &CacheService{rdb: rdb, ttl: ttl}
}

// Client returns the underlying Redis client (for health checks). May be nil.
func (c *CacheService) Client() *redis.Client {
	return c.rdb
}

func (c *CacheService) Name() string { return "redis" }

// WriteSnapshots replaces the cached per-channel stats in one transaction.
func (c *CacheService) WriteSnapshots(ctx context.Context, at time.Time, snaps []model.StatsSnapshot) error {
	if c.rdb == nil {
		return nil
	}

	current := make(map[string]struct{}, len(snaps))
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for ch := range c.prev {
			if !containsChannel(snaps, ch) {
				pipe.Del(ctx, statsKey(ch))
			}
		}
		for _, s := range snaps {
			current[s.Channel] = struct{}{}
			b, err := json.Marshal(s)
			if err != nil {
				return err
			}
			pipe.Set(ctx, statsKey(s.Channel), b, c.ttl)
		}
		pipe.Set(ctx, flushedAtKey, at.UTC().Format(time.RFC3339), c.ttl)
		return nil
	})
	if err != nil {
		return err
	}
	c.prev = current
	return nil
}

func containsChannel(snaps []model.StatsSnapshot, channel string) bool {
	for _, s := range snaps {
		if s.Channel == channel {
			return true
		}
	}
	return false
}

// Close shuts down the Redis connection.
func (c *CacheService) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func statsKey(channel string) string {
	return fmt.Sprintf("stats:%s", channel)
}
