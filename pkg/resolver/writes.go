package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/concordia-save/concordia/pkg/index"
	"github.com/concordia-save/concordia/pkg/models"
	"github.com/concordia-save/concordia/pkg/storage"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// inviteTTL is how long a freshly minted invite code stays redeemable.
const inviteTTL = 7 * 24 * time.Hour

// CreateGroupParams carries the caller-supplied fields of a new group.
type CreateGroupParams struct {
	GroupID        string    `json:"group_id" validate:"required"`
	Name           string    `json:"name" validate:"required"`
	Description    string    `json:"description"`
	Creator        string    `json:"creator" validate:"required"`
	GoalAmount     int64     `json:"goal_amount" validate:"gt=0"`
	DurationDays   int       `json:"duration_days" validate:"gte=0"`
	DueDay         int       `json:"due_day" validate:"gte=0,lte=31"`
	WithdrawalDate time.Time `json:"withdrawal_date"`
	MaxMembers     int       `json:"max_members" validate:"gte=0"`
	Nickname       string    `json:"nickname"`

	ContractAddress string `json:"contract_address"`
	ContractTxHash  string `json:"contract_tx_hash"`
}

// CreateGroup validates the params, builds the aggregate with the creator
// as its first member, and persists it everywhere. Duplicate group ids
// return the existing record, keeping creation idempotent for retrying
// clients.
func (r *Resolver) CreateGroup(ctx context.Context, params CreateGroupParams) (*models.Group, error) {
	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidArgument, err)
	}

	creator := models.NormalizeAddress(params.Creator)
	now := time.Now().UTC()
	group := &models.Group{
		GroupID:        params.GroupID,
		Name:           params.Name,
		Description:    params.Description,
		Creator:        creator,
		GoalAmount:     params.GoalAmount,
		DurationDays:   params.DurationDays,
		DueDay:         params.DueDay,
		WithdrawalDate: params.WithdrawalDate,
		Members: []models.Member{{
			Address:  creator,
			Nickname: params.Nickname,
			Role:     models.RoleCreator,
			Status:   models.MemberActive,
			JoinedAt: now,
		}},
		Contributions: []models.Contribution{},
		Settings: models.GroupSettings{
			IsActive:   true,
			MaxMembers: params.MaxMembers,
		},
		Blockchain: models.BlockchainRef{
			ContractAddress: params.ContractAddress,
			TxHash:          params.ContractTxHash,
		},
		Invite:    mintInvite(params.GroupID, now),
		State:     models.GroupActive,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	group.SyncDenormalized()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.record != nil {
		stored, err := r.record.CreateGroup(ctx, group)
		if err != nil {
			return nil, err
		}
		if stored.Invite.Code != group.Invite.Code {
			// Duplicate create resolved to the existing record; do not
			// rewrite the replicas with the loser.
			return stored, nil
		}
		group = stored
	} else if existing, err := r.fetchFreshest(ctx, group.GroupID); err == nil {
		return existing, nil
	}

	if err := r.writeReplicas(ctx, group, r.record == nil); err != nil {
		return nil, err
	}
	return group, nil
}

// UpdateGroup merges a patch into the group after the write-access check.
func (r *Resolver) UpdateGroup(ctx context.Context, groupID string, patch models.GroupPatch, userAddress string) (*models.Group, error) {
	group, err := r.fetchFreshest(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.State == models.GroupDeleted && !r.access.IsAdmin(userAddress) {
		return nil, fmt.Errorf("%w: group %s", storage.ErrNotFound, groupID)
	}
	if !r.access.HasWriteAccess(group, userAddress) {
		return nil, fmt.Errorf("%w: %s may not update group %s", storage.ErrAccessDenied, userAddress, groupID)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.record != nil {
		updated, err := r.record.UpdateGroup(ctx, groupID, patch)
		if err != nil {
			return nil, err
		}
		group = updated
	} else {
		group.Apply(patch)
		group.Touch(time.Now().UTC())
	}

	if err := r.writeReplicas(ctx, group, r.record == nil); err != nil {
		return nil, err
	}
	return group, nil
}

// DeleteGroup removes the group: a hard delete on the record store, a
// tombstone blob plus best-effort unpin on the replicas. Deleting an
// already-gone group succeeds.
func (r *Resolver) DeleteGroup(ctx context.Context, groupID, userAddress string) error {
	group, err := r.fetchFreshest(ctx, groupID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if !r.access.HasDeleteAccess(group, userAddress) {
		return fmt.Errorf("%w: %s may not delete group %s", storage.ErrAccessDenied, userAddress, groupID)
	}
	if group.State == models.GroupDeleted {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.record != nil {
		if err := r.record.DeleteGroup(ctx, groupID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}

	if len(r.replicas) == 0 {
		return nil
	}

	// Prior blob addresses, for the unpin pass after the tombstone lands.
	prior := map[string]index.Entry{}
	if r.index != nil {
		prior = r.index.Resolve(groupID)
	}

	group.State = models.GroupDeleted
	group.Settings.IsActive = false
	group.Touch(time.Now().UTC())
	// While the index points at a prior active blob the tombstone must
	// land, or readers would keep resolving the group as live after a
	// delete that reported success.
	required := r.record == nil || len(prior) > 0
	if err := r.writeReplicas(ctx, group, required); err != nil {
		return err
	}

	for backend, entry := range prior {
		store, ok := r.replicas[backend]
		if !ok {
			continue
		}
		if err := store.Remove(ctx, entry.Address); err != nil {
			r.logger.Warn("failed to remove prior blob", "group_id", groupID, "backend", backend, "address", entry.Address, "error", err)
		}
	}
	return nil
}

// persistAggregate writes a mutated aggregate back everywhere. Join,
// contribute and invite rotation go through here.
func (r *Resolver) persistAggregate(ctx context.Context, group *models.Group) (*models.Group, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.record != nil {
		stored, err := r.record.PutGroup(ctx, group)
		if err != nil {
			return nil, err
		}
		group = stored
	}
	if err := r.writeReplicas(ctx, group, r.record == nil); err != nil {
		return nil, err
	}
	return group, nil
}

// writeReplicas puts the group blob on every configured replica and
// repoints the index. With a record store in front, replica failures are
// partial failures: logged, not fatal. Replica-only mode needs at least
// one durable copy, so total failure is an error there.
func (r *Resolver) writeReplicas(ctx context.Context, group *models.Group, required bool) error {
	if len(r.replicas) == 0 {
		return nil
	}

	group.SyncDenormalized()
	raw, err := json.Marshal(group)
	if err != nil {
		return fmt.Errorf("failed to marshal group blob: %w", err)
	}

	wallets := append([]string{models.NormalizeAddress(group.Creator)}, group.MemberAddresses...)

	written := 0
	var lastErr error
	for _, store := range r.replicas {
		address, err := store.Put(ctx, raw)
		if err != nil {
			r.logger.Warn("replica write failed", "group_id", group.GroupID, "backend", store.Name(), "error", err)
			lastErr = err
			continue
		}
		if r.index != nil {
			entry := index.Entry{Address: address, Backend: store.Name(), LastUpdated: group.UpdatedAt}
			if err := r.index.RecordWrite(ctx, group.GroupID, entry, wallets); err != nil {
				// The blob landed but is unreachable: an orphan. The write
				// does not count as durable on this backend.
				r.logger.Warn("index update failed, blob orphaned", "group_id", group.GroupID, "backend", store.Name(), "address", address, "error", err)
				lastErr = err
				continue
			}
		}
		written++
	}

	if required && written == 0 {
		if lastErr != nil {
			return lastErr
		}
		return fmt.Errorf("%w: no replica accepted group %s", storage.ErrStoreUnavailable, group.GroupID)
	}
	return nil
}

// mintInvite issues a fresh single-use invite code for the group.
func mintInvite(groupID string, now time.Time) models.Invite {
	code := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return models.Invite{
		Code:      code,
		GroupID:   groupID,
		ExpiresAt: now.Add(inviteTTL),
	}
}
