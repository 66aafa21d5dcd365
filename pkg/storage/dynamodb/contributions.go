package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/concordia-save/concordia/pkg/models"
	"github.com/concordia-save/concordia/pkg/storage"
)

// SetContributionStatus transitions a pending contribution to its terminal
// state. The write is guarded by an optimistic version check; a racing
// writer surfaces as a conditional failure and the caller retries.
func (s *Store) SetContributionStatus(ctx context.Context, groupID, contributionID string, status models.ContributionStatus) (*models.Group, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	priorVersion := group.Version
	if !group.ResolveContribution(contributionID, status, time.Now().UTC()) {
		return nil, fmt.Errorf("%w: contribution %s in group %s", storage.ErrNotFound, contributionID, groupID)
	}
	if group.Version == priorVersion {
		// Already terminal: a redelivered confirmation is a no-op.
		return group, nil
	}
	group.SyncDenormalized()

	groupAV, err := attributevalue.MarshalMap(group)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal group: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.GroupsTable),
		Item:                groupAV,
		ConditionExpression: aws.String("version = :version"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", priorVersion)},
		},
	}

	_, err = s.Client.PutItem(ctx, input)
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return nil, fmt.Errorf("group %s changed concurrently while confirming contribution %s: %w", groupID, contributionID, err)
		}
		return nil, callErr("confirm contribution", err)
	}

	return group, nil
}
