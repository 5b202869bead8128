package ledger_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-rails/loopkit/ledger"
	memorystore "github.com/open-rails/loopkit/storage/memory"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newService(t *testing.T) *ledger.Service {
	t.Helper()
	return ledger.New(memorystore.NewLedger(), ledger.WithLogger(quietLogger()))
}

func TestNeverGrantedIdentity(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	entitled, err := svc.IsEntitled(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("IsEntitled: %v", err)
	}
	if entitled {
		t.Fatal("never-granted identity reported entitled")
	}

	if _, err := svc.TryConsume(ctx, "nobody@example.com"); !errors.Is(err, ledger.ErrQuotaExhausted) {
		t.Fatalf("TryConsume on never-granted identity: got %v, want ErrQuotaExhausted", err)
	}
}

func TestGrantThenConsumeToExhaustion(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if err := svc.Grant(ctx, "buyer@example.com", 2); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	entitled, err := svc.IsEntitled(ctx, "buyer@example.com")
	if err != nil || !entitled {
		t.Fatalf("IsEntitled after grant: entitled=%v err=%v", entitled, err)
	}

	res, err := svc.TryConsume(ctx, "buyer@example.com")
	if err != nil || res.Remaining != 1 {
		t.Fatalf("first consume: remaining=%d err=%v", res.Remaining, err)
	}
	res, err = svc.TryConsume(ctx, "buyer@example.com")
	if err != nil || res.Remaining != 0 {
		t.Fatalf("second consume: remaining=%d err=%v", res.Remaining, err)
	}
	if _, err := svc.TryConsume(ctx, "buyer@example.com"); !errors.Is(err, ledger.ErrQuotaExhausted) {
		t.Fatalf("third consume: got %v, want ErrQuotaExhausted", err)
	}

	// Exhausted is not unentitled: the purchase history remains.
	entitled, err = svc.IsEntitled(ctx, "buyer@example.com")
	if err != nil || !entitled {
		t.Fatalf("IsEntitled after exhaustion: entitled=%v err=%v", entitled, err)
	}
}

func TestRepeatedReadsAreStable(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	if err := svc.Grant(ctx, "buyer@example.com", 2); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	for i := 0; i < 5; i++ {
		entitled, err := svc.IsEntitled(ctx, "buyer@example.com")
		if err != nil || !entitled {
			t.Fatalf("read %d: entitled=%v err=%v", i, entitled, err)
		}
	}
}

func TestGrantsAccumulate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	if err := svc.Grant(ctx, "buyer@example.com", 2); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := svc.Grant(ctx, "buyer@example.com", 2); err != nil {
		t.Fatalf("second Grant: %v", err)
	}
	rec, found, err := svc.Lookup(ctx, "buyer@example.com")
	if err != nil || !found {
		t.Fatalf("Lookup: found=%v err=%v", found, err)
	}
	if rec.Granted != 4 || rec.Used != 0 {
		t.Fatalf("record after two grants: granted=%d used=%d, want 4/0", rec.Granted, rec.Used)
	}
}

func TestIdentityNormalization(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	if err := svc.Grant(ctx, "A@B.com", 2); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	res, err := svc.TryConsume(ctx, "  a@b.com ")
	if err != nil {
		t.Fatalf("TryConsume with differently-cased identity: %v", err)
	}
	if res.Remaining != 1 {
		t.Fatalf("remaining=%d, want 1", res.Remaining)
	}
	rec, found, err := svc.Lookup(ctx, "a@B.COM")
	if err != nil || !found {
		t.Fatalf("Lookup: found=%v err=%v", found, err)
	}
	if rec.Identity != "a@b.com" {
		t.Fatalf("stored identity %q, want normalized a@b.com", rec.Identity)
	}
}

func TestGrantConsumeRegrant(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	id := "buyer@example.com"

	if err := svc.Grant(ctx, id, 2); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.TryConsume(ctx, id); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}
	if _, err := svc.TryConsume(ctx, id); !errors.Is(err, ledger.ErrQuotaExhausted) {
		t.Fatalf("consume past quota: got %v, want ErrQuotaExhausted", err)
	}
	if err := svc.Grant(ctx, id, 2); err != nil {
		t.Fatalf("re-grant: %v", err)
	}
	res, err := svc.TryConsume(ctx, id)
	if err != nil {
		t.Fatalf("consume after re-grant: %v", err)
	}
	if res.Remaining != 1 {
		t.Fatalf("remaining after re-grant consume: %d, want 1", res.Remaining)
	}
}

func TestInvalidArguments(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if err := svc.Grant(ctx, "", 2); !errors.Is(err, ledger.ErrInvalidArgument) {
		t.Fatalf("Grant with empty identity: got %v", err)
	}
	if err := svc.Grant(ctx, "  ", 2); !errors.Is(err, ledger.ErrInvalidArgument) {
		t.Fatalf("Grant with blank identity: got %v", err)
	}
	if err := svc.Grant(ctx, "buyer@example.com", 0); !errors.Is(err, ledger.ErrInvalidArgument) {
		t.Fatalf("Grant with zero loops: got %v", err)
	}
	if err := svc.Grant(ctx, "buyer@example.com", -1); !errors.Is(err, ledger.ErrInvalidArgument) {
		t.Fatalf("Grant with negative loops: got %v", err)
	}
	if _, err := svc.TryConsume(ctx, ""); !errors.Is(err, ledger.ErrInvalidArgument) {
		t.Fatalf("TryConsume with empty identity: got %v", err)
	}
	if _, err := svc.IsEntitled(ctx, ""); !errors.Is(err, ledger.ErrInvalidArgument) {
		t.Fatalf("IsEntitled with empty identity: got %v", err)
	}
	if _, _, err := svc.Lookup(ctx, ""); !errors.Is(err, ledger.ErrInvalidArgument) {
		t.Fatalf("Lookup with empty identity: got %v", err)
	}
}

// failingStore counts calls and always errors, to pin down retry behavior.
type failingStore struct {
	grantCalls   int
	consumeCalls int
	getCalls     int
}

var errStoreDown = errors.New("store down")

func (s *failingStore) Grant(ctx context.Context, identity string, loops int64) error {
	s.grantCalls++
	return errStoreDown
}

func (s *failingStore) TryConsume(ctx context.Context, identity string) (int64, bool, error) {
	s.consumeCalls++
	return 0, false, errStoreDown
}

func (s *failingStore) Get(ctx context.Context, identity string) (ledger.Record, bool, error) {
	s.getCalls++
	return ledger.Record{}, false, errStoreDown
}

func TestStoreFailureMapping(t *testing.T) {
	store := &failingStore{}
	svc := ledger.New(store,
		ledger.WithLogger(quietLogger()),
		ledger.WithReadRetry(2, time.Millisecond),
	)
	ctx := context.Background()

	if err := svc.Grant(ctx, "buyer@example.com", 2); !errors.Is(err, ledger.ErrStoreUnavailable) {
		t.Fatalf("Grant on dead store: got %v, want ErrStoreUnavailable", err)
	}
	if store.grantCalls != 1 {
		t.Fatalf("Grant attempts: %d, want 1 (mutations are never retried)", store.grantCalls)
	}

	if _, err := svc.TryConsume(ctx, "buyer@example.com"); !errors.Is(err, ledger.ErrStoreUnavailable) {
		t.Fatalf("TryConsume on dead store: got %v, want ErrStoreUnavailable", err)
	}
	if store.consumeCalls != 1 {
		t.Fatalf("TryConsume attempts: %d, want 1 (unknown outcome must not be retried)", store.consumeCalls)
	}

	if _, err := svc.IsEntitled(ctx, "buyer@example.com"); !errors.Is(err, ledger.ErrStoreUnavailable) {
		t.Fatalf("IsEntitled on dead store: got %v, want ErrStoreUnavailable", err)
	}
	if store.getCalls != 2 {
		t.Fatalf("read attempts: %d, want 2 (reads retry once)", store.getCalls)
	}
}

// recoveringStore fails the first read then succeeds, exercising the retry.
type recoveringStore struct {
	*memorystore.Ledger
	failed bool
}

func (s *recoveringStore) Get(ctx context.Context, identity string) (ledger.Record, bool, error) {
	if !s.failed {
		s.failed = true
		return ledger.Record{}, false, errStoreDown
	}
	return s.Ledger.Get(ctx, identity)
}

func TestReadRetryRecovers(t *testing.T) {
	store := &recoveringStore{Ledger: memorystore.NewLedger()}
	svc := ledger.New(store,
		ledger.WithLogger(quietLogger()),
		ledger.WithReadRetry(2, time.Millisecond),
	)
	ctx := context.Background()
	if err := svc.Grant(ctx, "buyer@example.com", 2); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	entitled, err := svc.IsEntitled(ctx, "buyer@example.com")
	if err != nil {
		t.Fatalf("IsEntitled should recover on retry: %v", err)
	}
	if !entitled {
		t.Fatal("expected entitled after grant")
	}
}
