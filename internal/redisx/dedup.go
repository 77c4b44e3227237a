package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers processed event ids for a while.
type Deduper struct {
	rdb     *redis.Client
	service string
	ttl     time.Duration
}

func NewDeduper(rdb *redis.Client, service string, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = TTLDedup
	}
	return &Deduper{rdb: rdb, service: service, ttl: ttl}
}

func (d *Deduper) key(eventID string) string { return fmt.Sprintf(KeyDedup, d.service, eventID) }

// Claim marks eventID as being processed. It returns false when the event
// was already claimed.
func (d *Deduper) Claim(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, d.key(eventID), "1", d.ttl).Result()
}

// Forget drops a claim so that a redelivery of a failed event is processed again.
func (d *Deduper) Forget(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, d.key(eventID)).Err()
}
