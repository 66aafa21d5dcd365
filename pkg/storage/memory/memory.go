// Package memory implements the group record store over an in-process
// cache. It backs local development mode and the resolver/handler tests,
// standing in for the cache substrate of the production deployments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/concordia-save/concordia/pkg/models"
	"github.com/concordia-save/concordia/pkg/storage"
	gocache "github.com/patrickmn/go-cache"
)

// Store implements storage.Storage over a go-cache instance. Entries never
// expire by default; a TTL can be supplied for cache-substrate deployments.
type Store struct {
	cache *gocache.Cache
}

// New creates a Store whose entries never expire.
func New() *Store {
	return NewWithTTL(gocache.NoExpiration)
}

// NewWithTTL creates a Store whose entries expire after the given duration.
func NewWithTTL(ttl time.Duration) *Store {
	return &Store{cache: gocache.New(ttl, 10*time.Minute)}
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

// clone deep-copies a group so callers never alias cached state.
func clone(group *models.Group) (*models.Group, error) {
	raw, err := json.Marshal(group)
	if err != nil {
		return nil, fmt.Errorf("failed to copy group: %w", err)
	}
	var out models.Group
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to copy group: %w", err)
	}
	// json tags hide the denormalized attributes; restore them.
	out.SyncDenormalized()
	return &out, nil
}

// CreateGroup stores a new group. Duplicate ids return the existing record,
// keeping creation idempotent.
func (s *Store) CreateGroup(ctx context.Context, group *models.Group) (*models.Group, error) {
	if existing, found := s.cache.Get(group.GroupID); found {
		return clone(existing.(*models.Group))
	}

	group.SyncDenormalized()
	stored, err := clone(group)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(group.GroupID, stored)
	return clone(stored)
}

// GetGroup retrieves a group by id.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	cached, found := s.cache.Get(groupID)
	if !found {
		return nil, fmt.Errorf("%w: group %s", storage.ErrNotFound, groupID)
	}
	return clone(cached.(*models.Group))
}

// GetGroupByInviteCode scans the cache for the group owning the code.
func (s *Store) GetGroupByInviteCode(ctx context.Context, code string) (*models.Group, error) {
	for _, item := range s.cache.Items() {
		group := item.Object.(*models.Group)
		if group.Invite.Code == code {
			return clone(group)
		}
	}
	return nil, fmt.Errorf("%w: invite code %s", storage.ErrNotFound, code)
}

// UpdateGroup merges the patch into the stored group, refreshing the
// freshness signal and version.
func (s *Store) UpdateGroup(ctx context.Context, groupID string, patch models.GroupPatch) (*models.Group, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	group.Apply(patch)
	group.Touch(time.Now().UTC())
	group.SyncDenormalized()
	s.cache.SetDefault(groupID, group)
	return clone(group)
}

// PutGroup replaces a stored group wholesale.
func (s *Store) PutGroup(ctx context.Context, group *models.Group) (*models.Group, error) {
	if _, found := s.cache.Get(group.GroupID); !found {
		return nil, fmt.Errorf("%w: group %s", storage.ErrNotFound, group.GroupID)
	}

	group.SyncDenormalized()
	stored, err := clone(group)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(group.GroupID, stored)
	return clone(stored)
}

// DeleteGroup removes a group from the cache.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	if _, found := s.cache.Get(groupID); !found {
		return fmt.Errorf("%w: group %s", storage.ErrNotFound, groupID)
	}
	s.cache.Delete(groupID)
	return nil
}

// ListGroups returns every stored group, newest first.
func (s *Store) ListGroups(ctx context.Context) ([]models.Group, error) {
	groups := make([]models.Group, 0, s.cache.ItemCount())
	for _, item := range s.cache.Items() {
		copied, err := clone(item.Object.(*models.Group))
		if err != nil {
			return nil, err
		}
		groups = append(groups, *copied)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].CreatedAt.After(groups[j].CreatedAt)
	})
	return groups, nil
}

// ListGroupsByAddress returns the groups the address created or belongs to.
func (s *Store) ListGroupsByAddress(ctx context.Context, addr string) ([]models.Group, error) {
	addr = models.NormalizeAddress(addr)
	all, err := s.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	var groups []models.Group
	for _, g := range all {
		if models.NormalizeAddress(g.Creator) == addr || g.HasMember(addr) {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

// SetContributionStatus transitions a pending contribution, folding
// confirmed amounts into the member's totals.
func (s *Store) SetContributionStatus(ctx context.Context, groupID, contributionID string, status models.ContributionStatus) (*models.Group, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if !group.ResolveContribution(contributionID, status, time.Now().UTC()) {
		return nil, fmt.Errorf("%w: contribution %s in group %s", storage.ErrNotFound, contributionID, groupID)
	}
	group.SyncDenormalized()
	s.cache.SetDefault(groupID, group)
	return clone(group)
}
