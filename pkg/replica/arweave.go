package replica

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ArweaveStore stores blobs on an Arweave-style permaweb. Writes post the
// payload to bundler upload endpoints in order and record the returned
// transaction id; reads fall back across data gateways. There is no
// removal primitive at all: uploaded data is permanent.
type ArweaveStore struct {
	UploadEndpoints []string
	Gateways        []string
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// NewArweave creates an ArweaveStore with a default client.
func NewArweave(uploadEndpoints, gateways []string, logger *slog.Logger) *ArweaveStore {
	return &ArweaveStore{
		UploadEndpoints: uploadEndpoints,
		Gateways:        gateways,
		HTTPClient:      &http.Client{Timeout: 30 * time.Second},
		Logger:          logger,
	}
}

// Make sure we conform to the interface
var _ Store = (*ArweaveStore)(nil)

// Name identifies the backend.
func (s *ArweaveStore) Name() string { return "arweave" }

// uploadResponse is a bundler's reply to a transaction post.
type uploadResponse struct {
	ID string `json:"id"`
}

// Put posts the payload to the first reachable bundler and returns the
// transaction id.
func (s *ArweaveStore) Put(ctx context.Context, payload []byte) (string, error) {
	var lastErr error
	for _, endpoint := range s.UploadEndpoints {
		id, err := s.upload(ctx, endpoint, payload)
		if err != nil {
			s.Logger.Warn("arweave upload endpoint failed", "endpoint", endpoint, "error", err)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return id, nil
	}
	return "", exhaustedErr(ctx, s.Name(), "put", lastErr, len(s.UploadEndpoints), 0)
}

func (s *ArweaveStore) upload(ctx context.Context, endpoint string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/tx", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload returned status %d", resp.StatusCode)
	}

	var uploaded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if uploaded.ID == "" {
		return "", fmt.Errorf("upload response missing transaction id")
	}
	return uploaded.ID, nil
}

// Get fetches the transaction data from the first gateway that serves it.
// A 202 means the transaction is still propagating; that gateway is treated
// as transiently unavailable rather than missing.
func (s *ArweaveStore) Get(ctx context.Context, address string) ([]byte, error) {
	var lastErr error
	missing := 0
	for _, gateway := range s.Gateways {
		payload, err := s.fetch(ctx, gateway, address)
		if err != nil {
			if err == errGatewayMissing {
				missing++
			} else {
				s.Logger.Warn("arweave gateway failed", "gateway", gateway, "tx", address, "error", err)
				lastErr = err
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return payload, nil
	}
	return nil, exhaustedErr(ctx, s.Name(), "get", lastErr, len(s.Gateways), missing)
}

func (s *ArweaveStore) fetch(ctx context.Context, gateway, txID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gateway+"/"+url.PathEscape(txID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return io.ReadAll(resp.Body)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, errGatewayMissing
	case resp.StatusCode == http.StatusAccepted:
		return nil, fmt.Errorf("transaction still propagating")
	default:
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
}

// Remove is a no-op: the permaweb has no unpin. Surfaced as a warning so
// delete flows can report partial success honestly.
func (s *ArweaveStore) Remove(ctx context.Context, address string) error {
	s.Logger.Warn("arweave cannot remove content; blob remains addressable", "tx", address)
	return nil
}
