package redis

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Deduper marks webhook events as seen with SET NX.
type Deduper struct {
	c   *Client
	ttl time.Duration
}

func NewDeduper(c *Client, ttl time.Duration) *Deduper {
	return &Deduper{c: c, ttl: ttl}
}

// FirstSeen reports whether key was not seen within the TTL. Redis errors
// count as first sight so events are never lost to an outage.
func (d *Deduper) FirstSeen(ctx context.Context, key string) bool {
	ok, err := d.c.client.SetNX(ctx, EventKey(key), 1, d.ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis: dedupe check failed")
		return true
	}
	return ok
}
