package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/joy095/frame-booking/logger"
)

// NeynarClientWrapper provides an interface for Neynar signer lookups.
// This interface allows for easier testing by mocking Neynar interactions.
type NeynarClientWrapper interface {
	ValidateAppKey(ctx context.Context, fid int64, appKey string) (bool, error)
}

// NeynarClient implements NeynarClientWrapper against the Neynar REST API.
type NeynarClient struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewNeynarClient creates a NeynarClient. baseURL is overridable for tests;
// pass "" for the production API.
func NewNeynarClient(apiKey, baseURL string) *NeynarClient {
	if baseURL == "" {
		baseURL = "https://api.neynar.com"
	}
	return &NeynarClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type appKeyResponse struct {
	ClientFID int64 `json:"clientFid"`
}

// ValidateAppKey checks that appKey is a registered signer for fid. A
// webhook signed with an unknown key must be treated as unauthenticated.
func (n *NeynarClient) ValidateAppKey(ctx context.Context, fid int64, appKey string) (bool, error) {
	q := url.Values{}
	q.Set("fid", strconv.FormatInt(fid, 10))
	q.Set("app_key", appKey)

	reqURL := fmt.Sprintf("%s/v2/farcaster/signer/app_key?%s", n.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build Neynar request: %w", err)
	}
	req.Header.Set("api_key", n.APIKey)

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		logger.ErrorLogger.Errorf("Neynar request failed: %v", err)
		return false, fmt.Errorf("neynar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		logger.ErrorLogger.Errorf("Neynar returned %d: %s", resp.StatusCode, string(b))
		return false, fmt.Errorf("neynar returned status %d", resp.StatusCode)
	}

	var body appKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("invalid Neynar response: %w", err)
	}
	return body.ClientFID != 0, nil
}
