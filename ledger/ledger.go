// Package ledger owns entitlement records for paid generation loops: who has
// purchased, how many loops they were granted, and how many they have burned.
// It is the only writer of those records. Quota enforcement happens inside
// the backing store's atomic primitives, never as a read-then-write in
// process, so concurrent consumers cannot drive usage past the grant.
package ledger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout      = 2 * time.Second
	defaultReadAttempts = 2
	defaultReadBackoff  = 100 * time.Millisecond
)

// Service validates and normalizes calls, applies per-operation timeouts and
// audit logging, and delegates all state changes to the Store. It holds no
// entitlement state of its own; every check hits the store fresh.
type Service struct {
	store Store
	log   logrus.FieldLogger

	timeout      time.Duration
	readAttempts int
	readBackoff  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the audit logger. Defaults to logrus.StandardLogger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// WithTimeout bounds each backing-store round trip. Defaults to 2s.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithReadRetry sets the attempt count and backoff for read-only operations.
// Mutations are never retried here.
func WithReadRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.readAttempts = attempts
		}
		if backoff > 0 {
			s.readBackoff = backoff
		}
	}
}

// New constructs a Service over the given store.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		timeout:      defaultTimeout,
		readAttempts: defaultReadAttempts,
		readBackoff:  defaultReadBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s
}

// Grant adds loops to the identity's total allotment, creating the record on
// first grant. It does not deduplicate purchase events; the webhook receiver
// dedupes by event id before calling in.
func (s *Service) Grant(ctx context.Context, identity string, loops int64) error {
	id := NormalizeIdentity(identity)
	if id == "" || loops <= 0 {
		return ErrInvalidArgument
	}
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.Grant(opCtx, id, loops); err != nil {
		s.log.WithError(err).WithField("identity", id).Error("loop grant failed")
		return storeErr(err)
	}
	s.log.WithFields(logrus.Fields{"identity": id, "loops": loops}).Info("loops granted")
	return nil
}

// TryConsume burns exactly one loop iff any remain, as a single atomic
// check-and-increment in the store. On ErrStoreUnavailable the outcome is
// unknown and the paid action must not proceed; the call is never retried
// internally since a retry could double-consume.
func (s *Service) TryConsume(ctx context.Context, identity string) (ConsumeResult, error) {
	id := NormalizeIdentity(identity)
	if id == "" {
		return ConsumeResult{}, ErrInvalidArgument
	}
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	remaining, ok, err := s.store.TryConsume(opCtx, id)
	if err != nil {
		s.log.WithError(err).WithField("identity", id).Error("loop consume failed")
		return ConsumeResult{}, storeErr(err)
	}
	if !ok {
		s.log.WithField("identity", id).Info("loop consume denied: quota exhausted")
		return ConsumeResult{}, ErrQuotaExhausted
	}
	s.log.WithFields(logrus.Fields{"identity": id, "remaining": remaining}).Info("loop consumed")
	return ConsumeResult{Remaining: remaining}, nil
}

// IsEntitled reports whether the identity has ever been granted a loop.
// Exhausted-but-purchased identities still count as entitled; remaining-loop
// enforcement is TryConsume's job.
func (s *Service) IsEntitled(ctx context.Context, identity string) (bool, error) {
	id := NormalizeIdentity(identity)
	if id == "" {
		return false, ErrInvalidArgument
	}
	rec, found, err := s.get(ctx, id)
	if err != nil {
		return false, err
	}
	return found && rec.Entitled(), nil
}

// Lookup returns the full record for support and audit. found distinguishes
// a never-granted identity from one that purchased and ran dry.
func (s *Service) Lookup(ctx context.Context, identity string) (Record, bool, error) {
	id := NormalizeIdentity(identity)
	if id == "" {
		return Record{}, false, ErrInvalidArgument
	}
	return s.get(ctx, id)
}

// get is the shared read path: bounded timeout per attempt, bounded retry on
// transient store failure. Reads are idempotent so retrying is safe.
func (s *Service) get(ctx context.Context, id string) (Record, bool, error) {
	var lastErr error
	for attempt := 0; attempt < s.readAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Record{}, false, storeErr(ctx.Err())
			case <-time.After(s.readBackoff):
			}
		}
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		rec, found, err := s.store.Get(opCtx, id)
		cancel()
		if err == nil {
			return rec, found, nil
		}
		lastErr = err
	}
	s.log.WithError(lastErr).WithField("identity", id).Error("ledger read failed")
	return Record{}, false, storeErr(lastErr)
}
