package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/concordia-save/concordia/pkg/storage"
)

// DynamoDBAPI defines the subset of the DynamoDB client used by the Store.
// Mocked for tests with mockery.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store implements the storage.Storage interface using AWS DynamoDB as the
// canonical group record store.
type Store struct {
	Client      DynamoDBAPI
	GroupsTable string
}

// inviteCodeGSI indexes the denormalized top-level invite_code attribute.
const inviteCodeGSI = "invite_code-index"

// New creates a new Store.
func New(client DynamoDBAPI, groupsTable string) *Store {
	return &Store{
		Client:      client,
		GroupsTable: groupsTable,
	}
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

// callErr classifies a failed DynamoDB call into the shared error taxonomy:
// a blown deadline surfaces as Timeout, anything else as StoreUnavailable.
func callErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", storage.ErrTimeout, op)
	}
	return fmt.Errorf("%w: %s: %v", storage.ErrStoreUnavailable, op, err)
}
