package scheduler

import (
	"context"
)

// ConfirmationRequest identifies a pending contribution awaiting an
// on-chain confirmation check.
type ConfirmationRequest struct {
	GroupID        string `json:"group_id"`
	ContributionID string `json:"contribution_id"`
	TxHash         string `json:"tx_hash"`
}

// Scheduler defines the interface for a component that enqueues a pending
// contribution for later confirmation.
type Scheduler interface {
	// ScheduleConfirmation enqueues a confirmation check for asynchronous
	// processing.
	ScheduleConfirmation(ctx context.Context, req ConfirmationRequest) error
}
