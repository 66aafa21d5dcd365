package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/concordia-save/concordia/pkg/chain"
	"github.com/concordia-save/concordia/pkg/models"
	"github.com/concordia-save/concordia/pkg/scheduler"
	"github.com/concordia-save/concordia/pkg/storage"
	dynamostore "github.com/concordia-save/concordia/pkg/storage/dynamodb"
	"github.com/joho/godotenv"
)

var store storage.ContributionStore
var checker chain.Checker

func init() {
	// Load environment variables from .env file (useful for local testing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize dependencies once.
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	groupsTable := os.Getenv("GROUPS_TABLE_NAME")
	if groupsTable == "" {
		log.Fatal("GROUPS_TABLE_NAME environment variable not set")
	}
	store = dynamostore.New(dynamodb.NewFromConfig(cfg), groupsTable)

	rpcEndpoint := os.Getenv("CHAIN_RPC_ENDPOINT")
	if rpcEndpoint == "" {
		log.Fatal("CHAIN_RPC_ENDPOINT environment variable not set")
	}
	checker = chain.NewRPCChecker(rpcEndpoint)
}

// HandleRequest processes queued confirmation checks. A transaction with
// no receipt yet is left on the queue for redelivery; the contribution
// stays pending until a receipt appears.
func HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) error {
	for _, message := range sqsEvent.Records {
		log.Printf("Processing message %s", message.MessageId)

		var req scheduler.ConfirmationRequest
		if err := json.Unmarshal([]byte(message.Body), &req); err != nil {
			log.Printf("ERROR: failed to unmarshal confirmation request from SQS message %s: %v", message.MessageId, err)
			// Returning an error will cause SQS to retry the message, which is appropriate here.
			return err
		}

		status, err := checker.CheckTransaction(ctx, req.TxHash)
		if err != nil {
			log.Printf("ERROR: failed to check transaction %s: %v", req.TxHash, err)
			return err
		}

		switch status {
		case chain.StatusPending:
			// No receipt yet. Fail the message so SQS redelivers it after
			// the visibility timeout.
			return fmt.Errorf("transaction %s has no receipt yet", req.TxHash)
		case chain.StatusConfirmed:
			if _, err := store.SetContributionStatus(ctx, req.GroupID, req.ContributionID, models.ContributionConfirmed); err != nil {
				log.Printf("ERROR: failed to confirm contribution %s: %v", req.ContributionID, err)
				return err
			}
			log.Printf("Confirmed contribution %s in group %s", req.ContributionID, req.GroupID)
		case chain.StatusFailed:
			if _, err := store.SetContributionStatus(ctx, req.GroupID, req.ContributionID, models.ContributionFailed); err != nil {
				log.Printf("ERROR: failed to mark contribution %s failed: %v", req.ContributionID, err)
				return err
			}
			log.Printf("Marked contribution %s in group %s failed: transaction %s reverted", req.ContributionID, req.GroupID, req.TxHash)
		}
	}

	return nil
}

func main() {
	lambda.Start(HandleRequest)
}
