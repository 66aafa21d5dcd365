// Package resolver is the unified facade over the record store and the
// content-addressed replicas. Reads fan out to every backend with a known
// copy and the freshest updated_at wins; writes go through access control,
// then to the record store and the replicas, with the index repointed as
// part of the write.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/concordia-save/concordia/pkg/access"
	"github.com/concordia-save/concordia/pkg/index"
	"github.com/concordia-save/concordia/pkg/models"
	"github.com/concordia-save/concordia/pkg/replica"
	"github.com/concordia-save/concordia/pkg/scheduler"
	"github.com/concordia-save/concordia/pkg/storage"
)

// DefaultTimeout bounds every outbound fetch and write issued by the
// resolver unless the config overrides it.
const DefaultTimeout = 10 * time.Second

// Config wires a Resolver. Record and Scheduler may be nil: a nil Record
// runs the resolver replica-only, a nil Scheduler leaves contributions
// pending until something else confirms them.
type Config struct {
	Record    storage.Storage
	Replicas  []replica.Store
	Index     *index.Index
	Access    access.Evaluator
	Scheduler scheduler.Scheduler
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Resolver reconciles multiple storage backends into one authoritative
// read/write view.
type Resolver struct {
	record    storage.Storage
	replicas  map[string]replica.Store
	index     *index.Index
	access    access.Evaluator
	scheduler scheduler.Scheduler
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a Resolver from the config.
func New(cfg Config) *Resolver {
	replicas := make(map[string]replica.Store, len(cfg.Replicas))
	for _, store := range cfg.Replicas {
		replicas[store.Name()] = store
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		record:    cfg.Record,
		replicas:  replicas,
		index:     cfg.Index,
		access:    cfg.Access,
		scheduler: cfg.Scheduler,
		timeout:   timeout,
		logger:    logger,
	}
}

// AccessSummary reports what a wallet may do with a group.
type AccessSummary struct {
	CanRead   bool `json:"can_read"`
	CanWrite  bool `json:"can_write"`
	IsCreator bool `json:"is_creator"`
	IsAdmin   bool `json:"is_admin"`
}

// fetched is one backend's answer during a parallel read.
type fetched struct {
	group  *models.Group
	source string
	err    error
}

// fetchFreshest reads the group from every backend with a known copy and
// returns the one with the latest updated_at. No access filtering; callers
// apply it after the fetch. Transient failures only surface when no backend
// produced a copy at all.
func (r *Resolver) fetchFreshest(ctx context.Context, groupID string) (*models.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results := make(chan fetched, len(r.replicas)+1)
	launched := 0

	if r.record != nil {
		launched++
		go func() {
			group, err := r.record.GetGroup(ctx, groupID)
			results <- fetched{group: group, source: "record", err: err}
		}()
	}

	if r.index != nil {
		for backend, entry := range r.index.Resolve(groupID) {
			store, ok := r.replicas[backend]
			if !ok {
				continue
			}
			launched++
			go func(store replica.Store, entry index.Entry) {
				group, err := r.fetchReplica(ctx, store, entry.Address)
				results <- fetched{group: group, source: store.Name(), err: err}
			}(store, entry)
		}
	}

	if launched == 0 {
		return nil, fmt.Errorf("%w: group %s", storage.ErrNotFound, groupID)
	}

	var freshest *models.Group
	var transientErr error
	for i := 0; i < launched; i++ {
		res := <-results
		if res.err != nil {
			if errors.Is(res.err, storage.ErrStoreUnavailable) || errors.Is(res.err, storage.ErrTimeout) {
				r.logger.Warn("backend fetch failed", "group_id", groupID, "source", res.source, "error", res.err)
				transientErr = res.err
			}
			continue
		}
		if freshest == nil || res.group.UpdatedAt.After(freshest.UpdatedAt) {
			freshest = res.group
		}
	}

	if freshest == nil {
		if transientErr != nil {
			return nil, transientErr
		}
		return nil, fmt.Errorf("%w: group %s", storage.ErrNotFound, groupID)
	}
	return freshest, nil
}

// fetchReplica pulls and decodes a group blob from one replica backend.
func (r *Resolver) fetchReplica(ctx context.Context, store replica.Store, address string) (*models.Group, error) {
	raw, err := store.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	var group models.Group
	if err := json.Unmarshal(raw, &group); err != nil {
		return nil, fmt.Errorf("failed to decode group blob %s: %w", address, err)
	}
	group.SyncDenormalized()
	return &group, nil
}

// GetGroup fetches the freshest accessible copy of a group. Soft-deleted
// groups are invisible to everyone but the admin.
func (r *Resolver) GetGroup(ctx context.Context, groupID, userAddress string) (*models.Group, error) {
	group, err := r.fetchFreshest(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if group.State == models.GroupDeleted && !r.access.IsAdmin(userAddress) {
		return nil, fmt.Errorf("%w: group %s", storage.ErrNotFound, groupID)
	}
	if !r.access.HasReadAccess(group, userAddress) {
		return nil, fmt.Errorf("%w: %s may not read group %s", storage.ErrAccessDenied, userAddress, groupID)
	}
	return group, nil
}

// ListGroups returns every group the address may read, freshest copy of
// each. An empty address degrades to an empty list rather than an error;
// that is the only sanctioned fallback in the read path.
func (r *Resolver) ListGroups(ctx context.Context, userAddress string) ([]models.Group, error) {
	userAddress = models.NormalizeAddress(userAddress)
	if userAddress == "" {
		return []models.Group{}, nil
	}

	// Freshest copy per group id across backends.
	byID := map[string]models.Group{}
	merge := func(groups []models.Group) {
		for _, g := range groups {
			if have, ok := byID[g.GroupID]; !ok || g.UpdatedAt.After(have.UpdatedAt) {
				byID[g.GroupID] = g
			}
		}
	}

	admin := r.access.IsAdmin(userAddress)
	if r.record != nil {
		var groups []models.Group
		var err error
		if admin {
			groups, err = r.record.ListGroups(ctx)
		} else {
			groups, err = r.record.ListGroupsByAddress(ctx, userAddress)
		}
		if err != nil {
			return nil, err
		}
		merge(groups)
	}

	if r.index != nil && len(r.replicas) > 0 {
		var ids []string
		if admin {
			ids = r.index.GroupIDs()
		} else {
			ids = r.index.GroupsFor(userAddress)
		}
		for _, id := range ids {
			if _, ok := byID[id]; ok {
				continue
			}
			group, err := r.fetchFreshest(ctx, id)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, err
			}
			merge([]models.Group{*group})
		}
	}

	groups := make([]models.Group, 0, len(byID))
	for _, g := range byID {
		if g.State == models.GroupDeleted && !admin {
			continue
		}
		if !r.access.HasReadAccess(&g, userAddress) {
			continue
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].CreatedAt.After(groups[j].CreatedAt)
	})
	return groups, nil
}

// Summary reports the caller's access flags for a group without handing
// back any group data.
func (r *Resolver) Summary(ctx context.Context, groupID, userAddress string) (*AccessSummary, error) {
	group, err := r.fetchFreshest(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.State == models.GroupDeleted && !r.access.IsAdmin(userAddress) {
		return nil, fmt.Errorf("%w: group %s", storage.ErrNotFound, groupID)
	}
	return &AccessSummary{
		CanRead:   r.access.HasReadAccess(group, userAddress),
		CanWrite:  r.access.HasWriteAccess(group, userAddress),
		IsCreator: r.access.IsCreator(group, userAddress),
		IsAdmin:   r.access.IsAdmin(userAddress),
	}, nil
}
