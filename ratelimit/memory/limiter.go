// Package memorylimiter is the single-node fallback for loopkit's rate
// limiting when Redis is not configured.
package memorylimiter

import (
	"fmt"
	"sync"
	"time"
)

// Limit defines window and max count for a bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

// Limiter is an in-memory sliding-window rate limiter.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	buckets map[string][]int64
}

// New constructs a limiter with per-bucket limits. The "default" bucket, if
// present, backs any unnamed bucket.
func New(limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	return &Limiter{limits: limits, buckets: make(map[string][]int64)}
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

// AllowNamed implements ginutil.RateLimiter with a sliding window, pruning
// expired timestamps on each call and dropping empty buckets so memory stays
// bounded.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}
	lim := l.get(bucket)
	nowMs := time.Now().UnixMilli()
	windowStart := nowMs - lim.Window.Milliseconds()
	limitKey := bucket + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.buckets[limitKey]
	keep := 0
	for keep < len(ts) && ts[keep] < windowStart {
		keep++
	}
	ts = ts[keep:]

	if len(ts) >= lim.Limit {
		if len(ts) == 0 {
			delete(l.buckets, limitKey)
		} else {
			l.buckets[limitKey] = ts
		}
		return false, nil
	}

	l.buckets[limitKey] = append(ts, nowMs)
	return true, nil
}
