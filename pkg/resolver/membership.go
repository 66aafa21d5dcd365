package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/concordia-save/concordia/pkg/models"
	"github.com/concordia-save/concordia/pkg/scheduler"
	"github.com/concordia-save/concordia/pkg/storage"
	"github.com/google/uuid"
)

// JoinParams carries a join-by-invite request.
type JoinParams struct {
	InviteCode  string `json:"invite_code" validate:"required"`
	UserAddress string `json:"user_address" validate:"required"`
	Nickname    string `json:"nickname"`
}

// JoinGroup consumes an invite code and adds the wallet to the group.
// Invite codes are one-shot: a second join with the same code fails unless
// it is the same wallet retrying, which returns the group unchanged.
func (r *Resolver) JoinGroup(ctx context.Context, params JoinParams) (*models.Group, error) {
	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidArgument, err)
	}
	addr := models.NormalizeAddress(params.UserAddress)

	group, err := r.findByInviteCode(ctx, params.InviteCode)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if group.State == models.GroupDeleted || !group.Settings.IsActive {
		return nil, fmt.Errorf("%w: group %s is not accepting members", storage.ErrAccessDenied, group.GroupID)
	}
	if group.HasMember(addr) {
		// Retried join from the same wallet: nothing to do.
		return group, nil
	}
	if group.Invite.Expired(now) {
		return nil, fmt.Errorf("%w: code %s expired at %s", storage.ErrInviteExpired, params.InviteCode, group.Invite.ExpiresAt.Format(time.RFC3339))
	}
	if group.Invite.IsUsed {
		return nil, fmt.Errorf("%w: code %s", storage.ErrInviteUsed, params.InviteCode)
	}
	if group.Settings.MaxMembers > 0 && len(group.Members) >= group.Settings.MaxMembers {
		return nil, fmt.Errorf("%w: group %s", storage.ErrGroupFull, group.GroupID)
	}

	group.Members = append(group.Members, models.Member{
		Address:  addr,
		Nickname: params.Nickname,
		Role:     models.RoleMember,
		Status:   models.MemberActive,
		JoinedAt: now,
	})
	group.Invite.IsUsed = true
	group.Invite.UsedBy = addr
	group.Touch(now)

	return r.persistAggregate(ctx, group)
}

// findByInviteCode locates the group owning an invite code. The record
// store answers directly; replica-only mode walks the index.
func (r *Resolver) findByInviteCode(ctx context.Context, code string) (*models.Group, error) {
	if r.record != nil {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.record.GetGroupByInviteCode(ctx, code)
	}

	if r.index != nil {
		for _, id := range r.index.GroupIDs() {
			group, err := r.fetchFreshest(ctx, id)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				return nil, err
			}
			if group.Invite.Code == code {
				return group, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: invite code %s", storage.ErrNotFound, code)
}

// ContributeParams carries a contribution being recorded.
type ContributeParams struct {
	GroupID     string `json:"group_id" validate:"required"`
	Contributor string `json:"contributor" validate:"required"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	TxHash      string `json:"tx_hash" validate:"required"`
}

// Contribute appends a pending contribution and enqueues its confirmation
// check. Running totals move only when the check confirms the transaction.
func (r *Resolver) Contribute(ctx context.Context, params ContributeParams) (*models.Contribution, error) {
	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidArgument, err)
	}
	addr := models.NormalizeAddress(params.Contributor)

	group, err := r.fetchFreshest(ctx, params.GroupID)
	if err != nil {
		return nil, err
	}
	if group.State == models.GroupDeleted {
		return nil, fmt.Errorf("%w: group %s", storage.ErrNotFound, params.GroupID)
	}
	if !group.HasMember(addr) && !r.access.IsCreator(group, addr) {
		return nil, fmt.Errorf("%w: %s is not a member of group %s", storage.ErrAccessDenied, addr, params.GroupID)
	}

	now := time.Now().UTC()
	contribution := models.Contribution{
		ID:          uuid.New().String(),
		Contributor: addr,
		Amount:      params.Amount,
		TxHash:      params.TxHash,
		Timestamp:   now,
		Status:      models.ContributionPending,
		IsEarly:     group.DueDay > 0 && now.Day() <= group.DueDay,
	}
	group.Contributions = append(group.Contributions, contribution)
	group.Touch(now)

	if _, err := r.persistAggregate(ctx, group); err != nil {
		return nil, err
	}

	if r.scheduler != nil {
		req := scheduler.ConfirmationRequest{
			GroupID:        group.GroupID,
			ContributionID: contribution.ID,
			TxHash:         contribution.TxHash,
		}
		if err := r.scheduler.ScheduleConfirmation(ctx, req); err != nil {
			// The contribution is durable but stays pending until a
			// later confirmation pass resolves it.
			r.logger.Error("failed to enqueue confirmation check", "group_id", group.GroupID, "contribution_id", contribution.ID, "error", err)
		}
	}
	return &contribution, nil
}

// RotateInvite replaces the group's invite code with a fresh unused one.
func (r *Resolver) RotateInvite(ctx context.Context, groupID, userAddress string) (*models.Group, error) {
	group, err := r.fetchFreshest(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.State == models.GroupDeleted && !r.access.IsAdmin(userAddress) {
		return nil, fmt.Errorf("%w: group %s", storage.ErrNotFound, groupID)
	}
	if !r.access.HasWriteAccess(group, userAddress) {
		return nil, fmt.Errorf("%w: %s may not rotate the invite for group %s", storage.ErrAccessDenied, userAddress, groupID)
	}

	now := time.Now().UTC()
	group.Invite = mintInvite(groupID, now)
	group.Touch(now)
	return r.persistAggregate(ctx, group)
}
