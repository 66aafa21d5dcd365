package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/concordia-save/concordia/pkg/models"
	"github.com/concordia-save/concordia/pkg/storage"
	"github.com/concordia-save/concordia/pkg/storage/dynamodb/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func testGroup() *models.Group {
	return &models.Group{
		GroupID:    "g1",
		Name:       "Trip Fund",
		Creator:    "0xaa",
		GoalAmount: 100,
		State:      models.GroupActive,
		Version:    1,
		Members: []models.Member{
			{Address: "0xaa", Role: models.RoleCreator, Status: models.MemberActive},
		},
		Invite:   models.Invite{Code: "ABC123", GroupID: "g1"},
		Settings: models.GroupSettings{IsActive: true, MaxMembers: 10},
	}
}

func TestCreateGroup(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil)

		store := New(mockClient, "groups")
		created, err := store.CreateGroup(context.Background(), testGroup())

		assert.NoError(t, err)
		assert.Equal(t, "g1", created.GroupID)
		// The denormalized query attributes must be synced before the write.
		assert.Equal(t, "ABC123", created.InviteCode)
		assert.Equal(t, []string{"0xaa"}, created.MemberAddresses)
		mockClient.AssertExpectations(t)
	})

	t.Run("Duplicate Returns Existing", func(t *testing.T) {
		existing := testGroup()
		existing.Name = "The One That Won"
		existingAV, _ := attributevalue.MarshalMap(existing)

		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: existingAV}, nil)

		store := New(mockClient, "groups")
		created, err := store.CreateGroup(context.Background(), testGroup())

		assert.NoError(t, err)
		assert.Equal(t, "The One That Won", created.Name)
		mockClient.AssertExpectations(t)
	})

	t.Run("Storage Error", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(nil, errors.New("some storage error"))

		store := New(mockClient, "groups")
		_, err := store.CreateGroup(context.Background(), testGroup())

		assert.Error(t, err)
		assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
		mockClient.AssertExpectations(t)
	})

	t.Run("Timeout", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)

		store := New(mockClient, "groups")
		_, err := store.CreateGroup(context.Background(), testGroup())

		assert.ErrorIs(t, err, storage.ErrTimeout)
		mockClient.AssertExpectations(t)
	})
}

func TestGetGroup(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		group := testGroup()
		groupAV, _ := attributevalue.MarshalMap(group)

		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: groupAV}, nil)

		store := New(mockClient, "groups")
		got, err := store.GetGroup(context.Background(), "g1")

		assert.NoError(t, err)
		assert.Equal(t, group.GroupID, got.GroupID)
		assert.Equal(t, group.Creator, got.Creator)
		mockClient.AssertExpectations(t)
	})

	t.Run("Not Found", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: nil}, nil)

		store := New(mockClient, "groups")
		_, err := store.GetGroup(context.Background(), "missing")

		assert.ErrorIs(t, err, storage.ErrNotFound)
		mockClient.AssertExpectations(t)
	})

	t.Run("Storage Error", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(nil, errors.New("some storage error"))

		store := New(mockClient, "groups")
		_, err := store.GetGroup(context.Background(), "g1")

		assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
		mockClient.AssertExpectations(t)
	})
}

func TestGetGroupByInviteCode(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		group := testGroup()
		groupAV, _ := attributevalue.MarshalMap(group)

		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{groupAV}}, nil)

		store := New(mockClient, "groups")
		got, err := store.GetGroupByInviteCode(context.Background(), "ABC123")

		assert.NoError(t, err)
		assert.Equal(t, "g1", got.GroupID)
		mockClient.AssertExpectations(t)
	})

	t.Run("Not Found", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil)

		store := New(mockClient, "groups")
		_, err := store.GetGroupByInviteCode(context.Background(), "NOPE")

		assert.ErrorIs(t, err, storage.ErrNotFound)
		mockClient.AssertExpectations(t)
	})
}

func TestUpdateGroup(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		updated := testGroup()
		updated.GoalAmount = 200
		updated.Version = 2
		updated.UpdatedAt = time.Now().UTC()
		updatedAV, _ := attributevalue.MarshalMap(updated)

		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("UpdateItem", mock.Anything, mock.MatchedBy(func(input *dynamodb.UpdateItemInput) bool {
			// Every update refreshes the freshness signal and bumps version.
			return input.UpdateExpression != nil &&
				assert.ObjectsAreEqual(*input.ConditionExpression, "attribute_exists(group_id)")
		})).Return(&dynamodb.UpdateItemOutput{Attributes: updatedAV}, nil)

		store := New(mockClient, "groups")
		goal := int64(200)
		got, err := store.UpdateGroup(context.Background(), "g1", models.GroupPatch{GoalAmount: &goal})

		assert.NoError(t, err)
		assert.Equal(t, int64(200), got.GoalAmount)
		assert.Equal(t, int64(2), got.Version)
		mockClient.AssertExpectations(t)
	})

	t.Run("Not Found", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		store := New(mockClient, "groups")
		name := "whatever"
		_, err := store.UpdateGroup(context.Background(), "missing", models.GroupPatch{Name: &name})

		assert.ErrorIs(t, err, storage.ErrNotFound)
		mockClient.AssertExpectations(t)
	})
}

func TestDeleteGroup(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("DeleteItem", mock.Anything, mock.Anything).Return(&dynamodb.DeleteItemOutput{}, nil)

		store := New(mockClient, "groups")
		err := store.DeleteGroup(context.Background(), "g1")

		assert.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Not Found", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("DeleteItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		store := New(mockClient, "groups")
		err := store.DeleteGroup(context.Background(), "gone")

		assert.ErrorIs(t, err, storage.ErrNotFound)
		mockClient.AssertExpectations(t)
	})
}

func TestListGroupsByAddress(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		groups := []models.Group{*testGroup()}
		var groupsAV []map[string]types.AttributeValue
		for _, g := range groups {
			av, err := attributevalue.MarshalMap(g)
			assert.NoError(t, err)
			groupsAV = append(groupsAV, av)
		}

		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("Scan", mock.Anything, mock.MatchedBy(func(input *dynamodb.ScanInput) bool {
			// Address filters must normalize before querying.
			addr := input.ExpressionAttributeValues[":addr"].(*types.AttributeValueMemberS)
			return addr.Value == "0xaa"
		})).Return(&dynamodb.ScanOutput{Items: groupsAV}, nil)

		store := New(mockClient, "groups")
		got, err := store.ListGroupsByAddress(context.Background(), "0xAA")

		assert.NoError(t, err)
		assert.Len(t, got, 1)
		mockClient.AssertExpectations(t)
	})

	t.Run("Storage Error", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("Scan", mock.Anything, mock.Anything).Return(nil, errors.New("some storage error"))

		store := New(mockClient, "groups")
		_, err := store.ListGroupsByAddress(context.Background(), "0xaa")

		assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
		mockClient.AssertExpectations(t)
	})
}
