package ledger

import "context"

// Store is the pluggable atomic backend for entitlement records. All
// correctness comes from the store's native primitives: implementations must
// make Grant a lost-update-free increment and TryConsume a single
// linearizable check-and-increment per identity. Identities arriving here
// are already normalized.
type Store interface {
	// Grant creates the record if absent and adds loops to its granted
	// counter. loops is always positive.
	Grant(ctx context.Context, identity string, loops int64) error

	// TryConsume increments the used counter by exactly one iff
	// used < granted, treating an absent record as granted = 0. ok is false
	// when the quota is exhausted, in which case nothing was mutated.
	TryConsume(ctx context.Context, identity string) (remaining int64, ok bool, err error)

	// Get returns the record for identity and whether it exists.
	Get(ctx context.Context, identity string) (Record, bool, error)
}

// Scanner is implemented by stores that can enumerate all records. Used by
// the audit sweeper; never required for serving traffic.
type Scanner interface {
	Scan(ctx context.Context, fn func(Record) error) error
}
