// Package redislimiter rate-limits loopkit's public endpoints (license
// verification, webhooks, generation) with a Redis sliding window, shared
// across app instances.
package redislimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit defines window and max count for a bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultLimits covers loopkit's route buckets. Verification is tight since
// it probes the payment provider; webhooks allow provider retry bursts.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		"entitlement_verify": {Limit: 10, Window: time.Minute},
		"payments_webhook":   {Limit: 60, Window: time.Minute},
		"generate":           {Limit: 6, Window: time.Minute},
		"default":            {Limit: 100, Window: time.Minute},
	}
}

// Limiter is a Redis-backed sliding window limiter using ZSETs.
type Limiter struct {
	rdb    *redis.Client
	limits map[string]Limit
}

// New constructs a limiter. A nil limits map falls back to DefaultLimits.
func New(rdb *redis.Client, limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{rdb: rdb, limits: limits}
}

func (l *Limiter) get(bucket string) Limit {
	if v, ok := l.limits[bucket]; ok {
		return v
	}
	if v, ok := l.limits["default"]; ok {
		return v
	}
	return Limit{Limit: 100, Window: time.Minute}
}

// AllowNamed records one attempt in the bucket's window and reports whether
// it fits under the limit. A nil limiter or client allows everything.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}
	lim := l.get(bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	now := time.Now().UnixMilli()
	windowStart := now - lim.Window.Milliseconds()
	limitKey := fmt.Sprintf("loops:rl:%s:%s", bucket, key)

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, limitKey, redis.Z{Score: float64(now), Member: now})
	pipe.ZRemRangeByScore(ctx, limitKey, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, limitKey)
	pipe.Expire(ctx, limitKey, lim.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	count, err := countCmd.Result()
	if err != nil {
		return false, err
	}
	if count > int64(lim.Limit) {
		// Denied attempts don't occupy window space.
		l.rdb.ZRem(ctx, limitKey, now)
		return false, nil
	}
	return true, nil
}
