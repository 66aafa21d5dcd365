// Package chain checks whether a contribution's transaction actually
// landed on chain. Confirmation status comes from the receipt, never from
// guesswork.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Status is the outcome of a confirmation check.
type Status string

const (
	// StatusConfirmed means the receipt exists and reports success.
	StatusConfirmed Status = "confirmed"
	// StatusFailed means the receipt exists and reports a revert.
	StatusFailed Status = "failed"
	// StatusPending means no receipt yet; check again later.
	StatusPending Status = "pending"
)

// Checker resolves a transaction hash to its confirmation status.
type Checker interface {
	CheckTransaction(ctx context.Context, txHash string) (Status, error)
}

// RPCChecker queries an Ethereum-style JSON-RPC endpoint for the
// transaction receipt.
type RPCChecker struct {
	Endpoint   string
	HTTPClient *http.Client
}

// NewRPCChecker creates an RPCChecker with a default client.
func NewRPCChecker(endpoint string) *RPCChecker {
	return &RPCChecker{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Make sure we conform to the interface
var _ Checker = (*RPCChecker)(nil)

type rpcRequest struct {
	JSONRPC string   `json:"jsonrpc"`
	Method  string   `json:"method"`
	Params  []string `json:"params"`
	ID      int      `json:"id"`
}

type rpcResponse struct {
	Result *receipt  `json:"result"`
	Error  *rpcError `json:"error"`
}

type receipt struct {
	Status string `json:"status"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CheckTransaction fetches the transaction receipt. A missing receipt is
// StatusPending, not an error: the transaction may simply not be mined yet.
func (c *RPCChecker) CheckTransaction(ctx context.Context, txHash string) (Status, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "eth_getTransactionReceipt",
		Params:  []string{txHash},
		ID:      1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal RPC request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build RPC request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("RPC request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("RPC endpoint returned status %d", resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode RPC response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("RPC error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	if decoded.Result == nil {
		return StatusPending, nil
	}

	switch decoded.Result.Status {
	case "0x1":
		return StatusConfirmed, nil
	case "0x0":
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("unexpected receipt status %q", decoded.Result.Status)
	}
}
