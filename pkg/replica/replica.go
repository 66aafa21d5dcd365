// Package replica provides content-addressed blob stores with ordered
// endpoint fallback. Writes are immutable: every put yields a new address
// and callers repoint the index at it. There is no native update, and
// delete is best-effort at most.
package replica

import (
	"context"
	"errors"
	"fmt"

	"github.com/concordia-save/concordia/pkg/storage"
)

// Store is a write-once content store. Put tries a primary endpoint and
// falls back through the configured alternates; first success wins.
type Store interface {
	// Name identifies the backend ("ipfs", "arweave", "memory") and keys
	// index entries.
	Name() string

	// Put appends immutable content and returns its backend-specific
	// address. Exhausting every upload endpoint returns StoreUnavailable.
	Put(ctx context.Context, payload []byte) (string, error)

	// Get retrieves content by address, falling back across read gateways.
	// Returns NotFound when every gateway reports the content missing,
	// StoreUnavailable when all of them fail transiently.
	Get(ctx context.Context, address string) ([]byte, error)

	// Remove unpins or forgets the content where the backend allows it.
	// Backends without a removal primitive log a warning and report
	// success; immutable content cannot truly be erased.
	Remove(ctx context.Context, address string) error
}

// exhaustedErr classifies the terminal error after every endpoint of a
// backend has been tried. A blown deadline wins over everything, then
// all-missing, then transient failure.
func exhaustedErr(ctx context.Context, backend, op string, lastErr error, attempts, missing int) error {
	if errors.Is(lastErr, context.DeadlineExceeded) || ctx.Err() != nil {
		return fmt.Errorf("%w: %s %s", storage.ErrTimeout, backend, op)
	}
	if attempts > 0 && missing == attempts {
		return fmt.Errorf("%w: %s content", storage.ErrNotFound, backend)
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %s %s failed on all %d endpoints: %v", storage.ErrStoreUnavailable, backend, op, attempts, lastErr)
	}
	return fmt.Errorf("%w: %s has no %s endpoints configured", storage.ErrStoreUnavailable, backend, op)
}
