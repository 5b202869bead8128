package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument signals a malformed call (empty identity,
	// non-positive grant amount). A caller bug; never retried.
	ErrInvalidArgument = errors.New("ledger: invalid argument")

	// ErrQuotaExhausted signals that no loops remain. An expected business
	// outcome, not a fault.
	ErrQuotaExhausted = errors.New("ledger: quota exhausted")

	// ErrStoreUnavailable wraps a transient backing-store failure. A
	// TryConsume that returns it has unknown outcome and must not be
	// assumed to have consumed.
	ErrStoreUnavailable = errors.New("ledger: store unavailable")
)

func storeErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
