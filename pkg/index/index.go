// Package index maintains the lookup maps that make content-addressed
// storage queryable: group id to latest content address per backend, and
// wallet address to the set of group ids it can reach. The index itself
// lives as a JSON blob in a replica store and is bootstrapped from a
// well-known address handed in via configuration.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/concordia-save/concordia/pkg/models"
	"github.com/concordia-save/concordia/pkg/replica"
)

// Entry points at the latest blob for a group on one backend.
type Entry struct {
	Address     string    `json:"address"`
	Backend     string    `json:"backend"`
	LastUpdated time.Time `json:"last_updated"`
}

// snapshot is the persisted shape of the index.
type snapshot struct {
	Groups  map[string]map[string]Entry `json:"groups"`
	Wallets map[string][]string         `json:"wallets"`
}

func emptySnapshot() snapshot {
	return snapshot{
		Groups:  map[string]map[string]Entry{},
		Wallets: map[string][]string{},
	}
}

// Index is the shared mutable reference layer. The mutex guards the
// in-process maps; across processes the last saved snapshot wins, which is
// the documented weakness of this design, not something the index papers
// over.
type Index struct {
	mu      sync.Mutex
	store   replica.Store
	address string
	data    snapshot
	logger  *slog.Logger
}

// Load bootstraps the index from the configured address. A missing or
// unreadable snapshot degrades to an empty index rather than failing
// startup; groups already on the replicas become reachable again as they
// are rewritten.
func Load(ctx context.Context, store replica.Store, bootstrapAddress string, logger *slog.Logger) *Index {
	ix := &Index{
		store:   store,
		address: bootstrapAddress,
		data:    emptySnapshot(),
		logger:  logger,
	}

	if bootstrapAddress == "" {
		return ix
	}

	raw, err := store.Get(ctx, bootstrapAddress)
	if err != nil {
		logger.Warn("index bootstrap failed, starting empty", "address", bootstrapAddress, "error", err)
		return ix
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		logger.Warn("index snapshot unreadable, starting empty", "address", bootstrapAddress, "error", err)
		return ix
	}
	if snap.Groups == nil {
		snap.Groups = map[string]map[string]Entry{}
	}
	if snap.Wallets == nil {
		snap.Wallets = map[string][]string{}
	}

	ix.data = snap
	logger.Info("index loaded", "address", bootstrapAddress, "groups", len(snap.Groups))
	return ix
}

// Address returns the content address of the latest saved snapshot. Exposed
// so operators can record it as the next bootstrap address.
func (ix *Index) Address() string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.address
}

// Resolve returns the known entries for a group, keyed by backend name.
// An empty map means the index has never seen the group.
func (ix *Index) Resolve(groupID string) map[string]Entry {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	entries := make(map[string]Entry, len(ix.data.Groups[groupID]))
	for backend, entry := range ix.data.Groups[groupID] {
		entries[backend] = entry
	}
	return entries
}

// GroupIDs returns every group id the index knows about.
func (ix *Index) GroupIDs() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ids := make([]string, 0, len(ix.data.Groups))
	for id := range ix.data.Groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GroupsFor returns the group ids reachable by a wallet address.
func (ix *Index) GroupsFor(walletAddress string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	stored := ix.data.Wallets[models.NormalizeAddress(walletAddress)]
	out := make([]string, len(stored))
	copy(out, stored)
	return out
}

// RecordWrite repoints the group at a freshly written blob and registers
// the group for every member wallet, then persists the snapshot. It must be
// called only after the blob put succeeded: a failure here leaves the put
// as an orphaned (harmless) blob and the caller retries, so a write is not
// durable until RecordWrite returns nil.
func (ix *Index) RecordWrite(ctx context.Context, groupID string, entry Entry, memberAddresses []string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.data.Groups[groupID] == nil {
		ix.data.Groups[groupID] = map[string]Entry{}
	}
	ix.data.Groups[groupID][entry.Backend] = entry

	for _, addr := range memberAddresses {
		addr = models.NormalizeAddress(addr)
		if addr == "" {
			continue
		}
		ix.data.Wallets[addr] = addSorted(ix.data.Wallets[addr], groupID)
	}

	return ix.saveLocked(ctx)
}

// saveLocked writes the snapshot as a new blob and repoints the index at
// it. Callers hold the mutex.
func (ix *Index) saveLocked(ctx context.Context) error {
	raw, err := json.Marshal(ix.data)
	if err != nil {
		return fmt.Errorf("failed to marshal index snapshot: %w", err)
	}

	address, err := ix.store.Put(ctx, raw)
	if err != nil {
		return fmt.Errorf("failed to persist index snapshot: %w", err)
	}

	ix.address = address
	return nil
}

// addSorted inserts id into the sorted set, keeping it deduplicated.
func addSorted(set []string, id string) []string {
	i := sort.SearchStrings(set, id)
	if i < len(set) && set[i] == id {
		return set
	}
	set = append(set, "")
	copy(set[i+1:], set[i:])
	set[i] = id
	return set
}
