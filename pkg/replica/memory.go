package replica

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/concordia-save/concordia/pkg/storage"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process content store addressed by payload hash.
// It backs local mode and tests, and doubles as the cache substrate: with a
// TTL set, entries age out like a browser-local cache would.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemory creates a MemoryStore whose blobs never expire.
func NewMemory() *MemoryStore {
	return NewMemoryWithTTL(gocache.NoExpiration)
}

// NewMemoryWithTTL creates a MemoryStore whose blobs expire after ttl.
func NewMemoryWithTTL(ttl time.Duration) *MemoryStore {
	return &MemoryStore{cache: gocache.New(ttl, 10*time.Minute)}
}

// Make sure we conform to the interface
var _ Store = (*MemoryStore)(nil)

// Name identifies the backend.
func (s *MemoryStore) Name() string { return "memory" }

// Put stores the payload under its SHA-256 hex digest. Identical payloads
// share an address, same as any content-addressed store.
func (s *MemoryStore) Put(ctx context.Context, payload []byte) (string, error) {
	sum := sha256.Sum256(payload)
	address := hex.EncodeToString(sum[:])

	stored := make([]byte, len(payload))
	copy(stored, payload)
	s.cache.SetDefault(address, stored)
	return address, nil
}

// Get returns the payload stored under the address.
func (s *MemoryStore) Get(ctx context.Context, address string) ([]byte, error) {
	cached, found := s.cache.Get(address)
	if !found {
		return nil, fmt.Errorf("%w: memory content %s", storage.ErrNotFound, address)
	}

	payload := cached.([]byte)
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// Remove forgets the blob.
func (s *MemoryStore) Remove(ctx context.Context, address string) error {
	s.cache.Delete(address)
	return nil
}
