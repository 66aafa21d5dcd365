package replica

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// IPFSStore stores blobs on an IPFS network. Writes go to the node API
// (/api/v0/add) of each upload endpoint in order; reads fall back across
// public-style gateways (/ipfs/<cid>).
type IPFSStore struct {
	UploadEndpoints []string
	Gateways        []string
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// NewIPFS creates an IPFSStore with a default client. Per-call deadlines
// come from the caller's context.
func NewIPFS(uploadEndpoints, gateways []string, logger *slog.Logger) *IPFSStore {
	return &IPFSStore{
		UploadEndpoints: uploadEndpoints,
		Gateways:        gateways,
		HTTPClient:      &http.Client{Timeout: 30 * time.Second},
		Logger:          logger,
	}
}

// Make sure we conform to the interface
var _ Store = (*IPFSStore)(nil)

// Name identifies the backend.
func (s *IPFSStore) Name() string { return "ipfs" }

// addResponse is the node API's reply to /api/v0/add.
type addResponse struct {
	Hash string `json:"Hash"`
}

// Put uploads the payload to the first reachable node, pinning it, and
// returns the resulting CID.
func (s *IPFSStore) Put(ctx context.Context, payload []byte) (string, error) {
	var lastErr error
	for _, endpoint := range s.UploadEndpoints {
		cid, err := s.add(ctx, endpoint, payload)
		if err != nil {
			s.Logger.Warn("ipfs upload endpoint failed", "endpoint", endpoint, "error", err)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return cid, nil
	}
	return "", exhaustedErr(ctx, s.Name(), "put", lastErr, len(s.UploadEndpoints), 0)
}

func (s *IPFSStore) add(ctx context.Context, endpoint string, payload []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "blob")
	if err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return "", fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/api/v0/add?pin=true", &body)
	if err != nil {
		return "", fmt.Errorf("failed to build add request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("add request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("add returned status %d", resp.StatusCode)
	}

	var added addResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return "", fmt.Errorf("failed to decode add response: %w", err)
	}
	if added.Hash == "" {
		return "", fmt.Errorf("add response missing hash")
	}
	return added.Hash, nil
}

// Get fetches the CID from the first gateway that has it.
func (s *IPFSStore) Get(ctx context.Context, address string) ([]byte, error) {
	var lastErr error
	missing := 0
	for _, gateway := range s.Gateways {
		payload, err := s.fetch(ctx, gateway, address)
		if err != nil {
			if err == errGatewayMissing {
				missing++
			} else {
				s.Logger.Warn("ipfs gateway failed", "gateway", gateway, "cid", address, "error", err)
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

// errGatewayMissing distinguishes "this gateway says the content does not
// exist" from a transient gateway failure.
var errGatewayMissing = fmt.Errorf("content not found on gateway")

func (s *IPFSStore) fetch(ctx context.Context, gateway, cid string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gateway+"/ipfs/"+url.PathEscape(cid), nil)
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
	default:
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
}

// Remove unpins the CID on every upload node that will take the call.
// Failures are warnings: pinned copies elsewhere keep the content alive
// regardless, so unpin is best-effort by nature.
func (s *IPFSStore) Remove(ctx context.Context, address string) error {
	if len(s.UploadEndpoints) == 0 {
		s.Logger.Warn("ipfs unpin skipped: no node endpoints configured", "cid", address)
		return nil
	}
	for _, endpoint := range s.UploadEndpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/api/v0/pin/rm?arg="+url.QueryEscape(address), nil)
		if err != nil {
			s.Logger.Warn("ipfs unpin request failed", "endpoint", endpoint, "cid", address, "error", err)
			continue
		}
		resp, err := s.HTTPClient.Do(req)
		if err != nil {
			s.Logger.Warn("ipfs unpin failed", "endpoint", endpoint, "cid", address, "error", err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			s.Logger.Warn("ipfs unpin rejected", "endpoint", endpoint, "cid", address, "status", resp.StatusCode)
		}
	}
	return nil
}
