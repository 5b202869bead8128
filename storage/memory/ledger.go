package memorystore

import (
	"context"
	"sync"

	"github.com/open-rails/loopkit/ledger"
)

// Ledger is an in-memory implementation of ledger.Store. A single mutex
// serializes every operation, which trivially gives the check-and-increment
// atomicity the contract demands. Intended for tests and single-node use;
// state does not survive the process.
type Ledger struct {
	mu      sync.Mutex
	records map[string]*counters
}

type counters struct {
	granted int64
	used    int64
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]*counters)}
}

func (l *Ledger) Grant(ctx context.Context, identity string, loops int64) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.records[identity]
	if !ok {
		c = &counters{}
		l.records[identity] = c
	}
	c.granted += loops
	return nil
}

func (l *Ledger) TryConsume(ctx context.Context, identity string) (int64, bool, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.records[identity]
	if !ok || c.used >= c.granted {
		return 0, false, nil
	}
	c.used++
	return c.granted - c.used, true, nil
}

func (l *Ledger) Get(ctx context.Context, identity string) (ledger.Record, bool, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.records[identity]
	if !ok {
		return ledger.Record{}, false, nil
	}
	return ledger.Record{Identity: identity, Granted: c.granted, Used: c.used}, true, nil
}

// Scan visits a snapshot of all records. The snapshot is taken under the
// lock so records are internally consistent, but fn runs outside it.
func (l *Ledger) Scan(ctx context.Context, fn func(ledger.Record) error) error {
	l.mu.Lock()
	snapshot := make([]ledger.Record, 0, len(l.records))
	for id, c := range l.records {
		snapshot = append(snapshot, ledger.Record{Identity: id, Granted: c.granted, Used: c.used})
	}
	l.mu.Unlock()
	for _, rec := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}
