package memory

import (
	"context"
	"testing"
	"time"

	"github.com/concordia-save/concordia/pkg/models"
	"github.com/concordia-save/concordia/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGroup() *models.Group {
	now := time.Now().UTC()
	return &models.Group{
		GroupID:    "g1",
		Name:       "Trip Fund",
		Creator:    "0xaa",
		GoalAmount: 100,
		State:      models.GroupActive,
		Members: []models.Member{
			{Address: "0xaa", Role: models.RoleCreator, Status: models.MemberActive, JoinedAt: now},
		},
		Invite:    models.Invite{Code: "ABC123", GroupID: "g1", ExpiresAt: now.Add(time.Hour)},
		Settings:  models.GroupSettings{IsActive: true, MaxMembers: 5},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGetGroup(t *testing.T) {
	store := New()

	created, err := store.CreateGroup(context.Background(), testGroup())
	require.NoError(t, err)
	assert.Equal(t, "g1", created.GroupID)

	got, err := store.GetGroup(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "Trip Fund", got.Name)

	// Mutating the returned copy must not leak into the store.
	got.Name = "scribbled"
	again, err := store.GetGroup(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "Trip Fund", again.Name)
}

func TestCreateGroupIsIdempotent(t *testing.T) {
	store := New()

	_, err := store.CreateGroup(context.Background(), testGroup())
	require.NoError(t, err)

	dup := testGroup()
	dup.Name = "Someone Else"
	stored, err := store.CreateGroup(context.Background(), dup)
	require.NoError(t, err)
	assert.Equal(t, "Trip Fund", stored.Name)
}

func TestGetGroupNotFound(t *testing.T) {
	store := New()
	_, err := store.GetGroup(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetGroupByInviteCode(t *testing.T) {
	store := New()
	_, err := store.CreateGroup(context.Background(), testGroup())
	require.NoError(t, err)

	got, err := store.GetGroupByInviteCode(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "g1", got.GroupID)

	_, err = store.GetGroupByInviteCode(context.Background(), "NOPE")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateGroup(t *testing.T) {
	store := New()
	created, err := store.CreateGroup(context.Background(), testGroup())
	require.NoError(t, err)

	goal := int64(250)
	name := "Bigger Trip"
	updated, err := store.UpdateGroup(context.Background(), "g1", models.GroupPatch{
		Name:       &name,
		GoalAmount: &goal,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bigger Trip", updated.Name)
	assert.Equal(t, int64(250), updated.GoalAmount)
	assert.Greater(t, updated.Version, created.Version)
	// Untouched fields survive the merge.
	assert.Equal(t, "0xaa", updated.Creator)

	_, err = store.UpdateGroup(context.Background(), "nope", models.GroupPatch{Name: &name})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPutGroup(t *testing.T) {
	store := New()
	created, err := store.CreateGroup(context.Background(), testGroup())
	require.NoError(t, err)

	created.Invite.Code = "XYZ789"
	stored, err := store.PutGroup(context.Background(), created)
	require.NoError(t, err)
	assert.Equal(t, "XYZ789", stored.Invite.Code)

	got, err := store.GetGroupByInviteCode(context.Background(), "XYZ789")
	require.NoError(t, err)
	assert.Equal(t, "g1", got.GroupID)

	missing := testGroup()
	missing.GroupID = "nope"
	_, err = store.PutGroup(context.Background(), missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteGroup(t *testing.T) {
	store := New()
	_, err := store.CreateGroup(context.Background(), testGroup())
	require.NoError(t, err)

	require.NoError(t, store.DeleteGroup(context.Background(), "g1"))

	_, err = store.GetGroup(context.Background(), "g1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.DeleteGroup(context.Background(), "g1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListGroupsByAddress(t *testing.T) {
	store := New()
	_, err := store.CreateGroup(context.Background(), testGroup())
	require.NoError(t, err)

	other := testGroup()
	other.GroupID = "g2"
	other.Creator = "0xbb"
	other.Members = []models.Member{
		{Address: "0xbb", Role: models.RoleCreator, Status: models.MemberActive},
		{Address: "0xcc", Role: models.RoleMember, Status: models.MemberActive},
	}
	other.Invite.Code = "DEF456"
	_, err = store.CreateGroup(context.Background(), other)
	require.NoError(t, err)

	all, err := store.ListGroups(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := store.ListGroupsByAddress(context.Background(), "0xAA")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "g1", mine[0].GroupID)

	joined, err := store.ListGroupsByAddress(context.Background(), "0xcc")
	require.NoError(t, err)
	require.Len(t, joined, 1)
	assert.Equal(t, "g2", joined[0].GroupID)

	none, err := store.ListGroupsByAddress(context.Background(), "0xdd")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSetContributionStatus(t *testing.T) {
	store := New()
	group := testGroup()
	group.Contributions = []models.Contribution{
		{ID: "c1", Contributor: "0xaa", Amount: 25, Status: models.ContributionPending, IsEarly: true},
	}
	_, err := store.CreateGroup(context.Background(), group)
	require.NoError(t, err)

	updated, err := store.SetContributionStatus(context.Background(), "g1", "c1", models.ContributionConfirmed)
	require.NoError(t, err)
	member := updated.FindMember("0xaa")
	require.NotNil(t, member)
	assert.Equal(t, int64(25), member.Contribution)
	assert.Equal(t, int64(models.AuraPerContribution+models.AuraEarlyBonus), member.AuraPoints)

	// Redelivered confirmations must not double-count.
	again, err := store.SetContributionStatus(context.Background(), "g1", "c1", models.ContributionConfirmed)
	require.NoError(t, err)
	assert.Equal(t, int64(25), again.FindMember("0xaa").Contribution)

	_, err = store.SetContributionStatus(context.Background(), "g1", "nope", models.ContributionConfirmed)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
