package dynamodb

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/concordia-save/concordia/pkg/models"
	"github.com/concordia-save/concordia/pkg/storage"
	"github.com/concordia-save/concordia/pkg/storage/dynamodb/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func groupWithPendingContribution() *models.Group {
	group := testGroup()
	group.Contributions = []models.Contribution{
		{
			ID:          "c1",
			Contributor: "0xaa",
			Amount:      25,
			TxHash:      "0xdeadbeef",
			Timestamp:   time.Now().UTC(),
			Status:      models.ContributionPending,
			IsEarly:     true,
		},
	}
	return group
}

func TestSetContributionStatus(t *testing.T) {
	t.Run("Confirm Updates Member Totals", func(t *testing.T) {
		group := groupWithPendingContribution()
		groupAV, _ := attributevalue.MarshalMap(group)

		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: groupAV}, nil)
		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil)

		store := New(mockClient, "groups")
		got, err := store.SetContributionStatus(context.Background(), "g1", "c1", models.ContributionConfirmed)

		assert.NoError(t, err)
		assert.Equal(t, models.ContributionConfirmed, got.FindContribution("c1").Status)
		member := got.FindMember("0xaa")
		assert.Equal(t, int64(25), member.Contribution)
		assert.Equal(t, int64(models.AuraPerContribution+models.AuraEarlyBonus), member.AuraPoints)
		assert.Equal(t, int64(2), got.Version)
		mockClient.AssertExpectations(t)
	})

	t.Run("Failed Leaves Totals Alone", func(t *testing.T) {
		group := groupWithPendingContribution()
		groupAV, _ := attributevalue.MarshalMap(group)

		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: groupAV}, nil)
		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil)

		store := New(mockClient, "groups")
		got, err := store.SetContributionStatus(context.Background(), "g1", "c1", models.ContributionFailed)

		assert.NoError(t, err)
		assert.Equal(t, models.ContributionFailed, got.FindContribution("c1").Status)
		assert.Equal(t, int64(0), got.FindMember("0xaa").Contribution)
		mockClient.AssertExpectations(t)
	})

	t.Run("Redelivery Is A No-Op", func(t *testing.T) {
		group := groupWithPendingContribution()
		group.Contributions[0].Status = models.ContributionConfirmed
		groupAV, _ := attributevalue.MarshalMap(group)

		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: groupAV}, nil)

		store := New(mockClient, "groups")
		got, err := store.SetContributionStatus(context.Background(), "g1", "c1", models.ContributionConfirmed)

		assert.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		// No PutItem expected: terminal states never reverse.
		mockClient.AssertExpectations(t)
	})

	t.Run("Unknown Contribution", func(t *testing.T) {
		group := testGroup()
		groupAV, _ := attributevalue.MarshalMap(group)

		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: groupAV}, nil)

		store := New(mockClient, "groups")
		_, err := store.SetContributionStatus(context.Background(), "g1", "nope", models.ContributionConfirmed)

		assert.ErrorIs(t, err, storage.ErrNotFound)
		mockClient.AssertExpectations(t)
	})
}
