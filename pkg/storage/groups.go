package storage

import (
	"context"

	"github.com/concordia-save/concordia/pkg/models"
)

// GroupReader defines the interface for reading group records.
type GroupReader interface {
	// GetGroup retrieves a group by its id. Returns ErrNotFound if absent.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// GetGroupByInviteCode retrieves the group owning the given invite code.
	GetGroupByInviteCode(ctx context.Context, code string) (*models.Group, error)

	// ListGroups retrieves every group. Reserved for the admin path.
	ListGroups(ctx context.Context) ([]models.Group, error)

	// ListGroupsByAddress retrieves all groups the address created or
	// belongs to.
	ListGroupsByAddress(ctx context.Context, addr string) ([]models.Group, error)
}

// GroupWriter defines the interface for creating and mutating group records.
type GroupWriter interface {
	// CreateGroup persists a new group. If the group id already exists the
	// existing record is returned unchanged, making creation idempotent for
	// retrying clients.
	CreateGroup(ctx context.Context, group *models.Group) (*models.Group, error)

	// UpdateGroup merges the patch into the stored document, refreshes
	// updated_at and bumps the version. Returns ErrNotFound if the group
	// does not exist.
	UpdateGroup(ctx context.Context, groupID string, patch models.GroupPatch) (*models.Group, error)

	// PutGroup replaces the stored document with the given aggregate.
	// Used by join/contribute flows that mutate the full aggregate in
	// memory first. Returns ErrNotFound if the group does not exist.
	PutGroup(ctx context.Context, group *models.Group) (*models.Group, error)

	// DeleteGroup removes the group record. Returns ErrNotFound if absent;
	// callers treating repeated deletes as "already gone" check for it.
	DeleteGroup(ctx context.Context, groupID string) error
}

// ContributionStore defines the operations the confirmation worker needs.
type ContributionStore interface {
	// SetContributionStatus transitions a pending contribution and, on
	// confirmation, folds the amount into the member's running totals.
	// Returns ErrNotFound if the group or contribution is unknown.
	SetContributionStatus(ctx context.Context, groupID, contributionID string, status models.ContributionStatus) (*models.Group, error)
}
