package memorystore

import (
	"context"
	"sync"
	"time"
)

// EventDedup remembers webhook event ids for a TTL so duplicate deliveries
// of the same purchase event do not double-grant. In-memory counterpart of
// the redis implementation, for tests and single-node fallback.
type EventDedup struct {
	mu     sync.Mutex
	ttl    time.Duration
	seen   map[string]time.Time
	closed chan struct{}
}

// NewEventDedup creates an in-memory dedup set. If ttl <= 0, a default of
// 30 days is used. Starts a background goroutine that drops expired ids.
func NewEventDedup(ttl time.Duration) *EventDedup {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	d := &EventDedup{ttl: ttl, seen: make(map[string]time.Time), closed: make(chan struct{})}
	go d.cleanupLoop()
	return d
}

// Seen reports whether eventID was already marked handled.
func (d *EventDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.seen[eventID]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		delete(d.seen, eventID)
		return false, nil
	}
	return true, nil
}

// Mark records eventID as handled.
func (d *EventDedup) Mark(ctx context.Context, eventID string) error {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[eventID] = time.Now().Add(d.ttl)
	return nil
}

func (d *EventDedup) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.cleanup()
		case <-d.closed:
			return
		}
	}
}

func (d *EventDedup) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for id, exp := range d.seen {
		if now.After(exp) {
			delete(d.seen, id)
		}
	}
}

// Close stops the background cleanup goroutine.
func (d *EventDedup) Close() error {
	close(d.closed)
	return nil
}
