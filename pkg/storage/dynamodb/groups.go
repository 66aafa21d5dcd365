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

// CreateGroup persists a new group record. Creation is idempotent: if the
// group id is already taken, the existing record is fetched and returned
// instead of surfacing a conflict to a retrying client.
func (s *Store) CreateGroup(ctx context.Context, group *models.Group) (*models.Group, error) {
	group.SyncDenormalized()

	groupAV, err := attributevalue.MarshalMap(group)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal group: %v", storage.ErrInvalidArgument, err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.GroupsTable),
		Item:                groupAV,
		ConditionExpression: aws.String("attribute_not_exists(group_id)"),
	}

	_, err = s.Client.PutItem(ctx, input)
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			// Duplicate create: return the record that won.
			existing, getErr := s.GetGroup(ctx, group.GroupID)
			if getErr != nil {
				return nil, fmt.Errorf("group %s already exists but could not be fetched: %w", group.GroupID, getErr)
			}
			return existing, nil
		}
		return nil, callErr("create group", err)
	}

	return group, nil
}

// GetGroup retrieves a group record by its id.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"group_id": groupID})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal group ID: %v", storage.ErrInvalidArgument, err)
	}

	input := &dynamodb.GetItemInput{
		TableName: aws.String(s.GroupsTable),
		Key:       key,
	}

	result, err := s.Client.GetItem(ctx, input)
	if err != nil {
		return nil, callErr("get group", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("%w: group %s", storage.ErrNotFound, groupID)
	}

	var group models.Group
	if err := attributevalue.UnmarshalMap(result.Item, &group); err != nil {
		return nil, fmt.Errorf("failed to unmarshal group: %w", err)
	}

	return &group, nil
}

// GetGroupByInviteCode retrieves the group owning the given invite code via
// the invite-code GSI.
func (s *Store) GetGroupByInviteCode(ctx context.Context, code string) (*models.Group, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.GroupsTable),
		IndexName:              aws.String(inviteCodeGSI),
		KeyConditionExpression: aws.String("invite_code = :code"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":code": &types.AttributeValueMemberS{Value: code},
		},
	}

	result, err := s.Client.Query(ctx, input)
	if err != nil {
		return nil, callErr("query invite code", err)
	}

	if len(result.Items) == 0 {
		return nil, fmt.Errorf("%w: invite code %s", storage.ErrNotFound, code)
	}

	var group models.Group
	if err := attributevalue.UnmarshalMap(result.Items[0], &group); err != nil {
		return nil, fmt.Errorf("failed to unmarshal group: %w", err)
	}

	return &group, nil
}

// UpdateGroup merges the patch into the stored document, refreshes
// updated_at and bumps the version counter.
func (s *Store) UpdateGroup(ctx context.Context, groupID string, patch models.GroupPatch) (*models.Group, error) {
	updatedAtAV, err := attributevalue.Marshal(time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timestamp: %w", err)
	}

	expr := "SET updated_at = :updated_at, version = version + :one"
	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":updated_at": updatedAtAV,
		":one":        &types.AttributeValueMemberN{Value: "1"},
	}

	if patch.Name != nil {
		expr += ", #name = :name"
		names["#name"] = "name"
		values[":name"] = &types.AttributeValueMemberS{Value: *patch.Name}
	}
	if patch.Description != nil {
		expr += ", description = :description"
		values[":description"] = &types.AttributeValueMemberS{Value: *patch.Description}
	}
	if patch.GoalAmount != nil {
		expr += ", goal_amount = :goal_amount"
		values[":goal_amount"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", *patch.GoalAmount)}
	}
	if patch.DueDay != nil {
		expr += ", due_day = :due_day"
		values[":due_day"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", *patch.DueDay)}
	}
	if patch.Settings != nil {
		settingsAV, err := attributevalue.Marshal(*patch.Settings)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to marshal settings: %v", storage.ErrInvalidArgument, err)
		}
		expr += ", settings = :settings"
		values[":settings"] = settingsAV
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.GroupsTable),
		Key:                       map[string]types.AttributeValue{"group_id": &types.AttributeValueMemberS{Value: groupID}},
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(group_id)"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	result, err := s.Client.UpdateItem(ctx, input)
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return nil, fmt.Errorf("%w: group %s", storage.ErrNotFound, groupID)
		}
		return nil, callErr("update group", err)
	}

	var group models.Group
	if err := attributevalue.UnmarshalMap(result.Attributes, &group); err != nil {
		return nil, fmt.Errorf("failed to unmarshal updated group: %w", err)
	}

	return &group, nil
}

// PutGroup replaces the stored document with the given aggregate. The group
// must already exist; join and contribute flows mutate a fetched copy and
// write it back through here.
func (s *Store) PutGroup(ctx context.Context, group *models.Group) (*models.Group, error) {
	group.SyncDenormalized()

	groupAV, err := attributevalue.MarshalMap(group)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal group: %v", storage.ErrInvalidArgument, err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.GroupsTable),
		Item:                groupAV,
		ConditionExpression: aws.String("attribute_exists(group_id)"),
	}

	_, err = s.Client.PutItem(ctx, input)
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return nil, fmt.Errorf("%w: group %s", storage.ErrNotFound, group.GroupID)
		}
		return nil, callErr("put group", err)
	}

	return group, nil
}

// DeleteGroup hard-deletes a group record.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	key, err := attributevalue.MarshalMap(map[string]string{"group_id": groupID})
	if err != nil {
		return fmt.Errorf("%w: failed to marshal group ID: %v", storage.ErrInvalidArgument, err)
	}

	input := &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.GroupsTable),
		Key:                 key,
		ConditionExpression: aws.String("attribute_exists(group_id)"),
	}

	_, err = s.Client.DeleteItem(ctx, input)
	if err != nil {
		var condCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailed) {
			return fmt.Errorf("%w: group %s", storage.ErrNotFound, groupID)
		}
		return callErr("delete group", err)
	}

	return nil
}

// ListGroups retrieves every group record. Only the admin path may call
// this; it is a full table scan.
func (s *Store) ListGroups(ctx context.Context) ([]models.Group, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.GroupsTable),
	}

	result, err := s.Client.Scan(ctx, input)
	if err != nil {
		return nil, callErr("scan groups", err)
	}

	var groups []models.Group
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &groups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal groups: %w", err)
	}

	return groups, nil
}

// ListGroupsByAddress retrieves all groups the address created or belongs
// to, matching against the denormalized member address list.
func (s *Store) ListGroupsByAddress(ctx context.Context, addr string) ([]models.Group, error) {
	addr = models.NormalizeAddress(addr)

	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.GroupsTable),
		FilterExpression: aws.String("creator = :addr OR contains(member_addresses, :addr)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":addr": &types.AttributeValueMemberS{Value: addr},
		},
	}

	result, err := s.Client.Scan(ctx, input)
	if err != nil {
		return nil, callErr("scan groups by address", err)
	}

	var groups []models.Group
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &groups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal groups: %w", err)
	}

	return groups, nil
}
