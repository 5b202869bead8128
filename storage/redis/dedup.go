package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventDedup tracks processed webhook event ids in Redis so duplicate
// deliveries of the same purchase event do not double-grant. Ids expire
// after the TTL; payment providers stop retrying long before that.
type EventDedup struct {
	rdb   *redis.Client
	keyNS string
	ttl   time.Duration
}

// NewEventDedup creates a Redis-backed dedup set. Defaults: key prefix
// "loops:webhook:event:", TTL 30 days.
func NewEventDedup(rdb *redis.Client, keyPrefix string, ttl time.Duration) *EventDedup {
	if keyPrefix == "" {
		keyPrefix = "loops:webhook:event:"
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &EventDedup{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (d *EventDedup) key(eventID string) string { return d.keyNS + eventID }

// Seen reports whether eventID was already marked handled.
func (d *EventDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.rdb.Exists(ctx, d.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records eventID as handled. Called only after the grant succeeded so
// a failed delivery stays retryable.
func (d *EventDedup) Mark(ctx context.Context, eventID string) error {
	return d.rdb.Set(ctx, d.key(eventID), "1", d.ttl).Err()
}
