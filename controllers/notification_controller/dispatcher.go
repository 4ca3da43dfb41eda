package notification_controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joy095/frame-booking/cache"
	"github.com/joy095/frame-booking/logger"
	"github.com/joy095/frame-booking/models/token_models"
)

// TokenStore is the slice of the relational token store the dispatcher
// consumes.
type TokenStore interface {
	GetAllValid(ctx context.Context, fid int64) ([]*token_models.NotificationToken, error)
	Invalidate(ctx context.Context, fid int64, token string) error
	Touch(ctx context.Context, fid int64, token string) error
}

// TokenCache is the slice of the Redis cache the dispatcher consumes.
type TokenCache interface {
	Get(ctx context.Context, fid int64) (*cache.CachedToken, error)
	Put(ctx context.Context, fid int64, token, url string) error
	Invalidate(ctx context.Context, fid int64) error
	CheckRateLimit(ctx context.Context, fid int64) error
}

// Notification is one message for one user. ID doubles as the delivery
// idempotency key on the client side.
type Notification struct {
	ID        string
	Title     string
	Body      string
	TargetURL string
}

// Dispatcher resolves a user's delivery token (cache first, relational
// fallback) and POSTs the message to the token's endpoint, pruning tokens
// the endpoint reports as invalid.
type Dispatcher struct {
	Tokens     TokenStore
	Cache      TokenCache
	AppURL     string // default targetUrl
	HTTPClient *http.Client
}

func NewDispatcher(tokens TokenStore, tokenCache TokenCache, appURL string) *Dispatcher {
	return &Dispatcher{
		Tokens:     tokens,
		Cache:      tokenCache,
		AppURL:     appURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type deliveryRequest struct {
	NotificationID string   `json:"notificationId"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	TargetURL      string   `json:"targetUrl"`
	Tokens         []string `json:"tokens"`
}

type deliveryResponse struct {
	Result struct {
		SuccessfulTokens  []string `json:"successfulTokens"`
		InvalidTokens     []string `json:"invalidTokens"`
		RateLimitedTokens []string `json:"rateLimitedTokens"`
	} `json:"result"`
}

// Send delivers n to fid. With skipRateLimit the local quota check is
// bypassed and a client-side rate limit is treated as accepted (used for
// high-priority messages like payment confirmations). Returns nil when at
// least one of the user's tokens accepted the message.
func (d *Dispatcher) Send(ctx context.Context, fid int64, n Notification, skipRateLimit bool) error {
	if n.TargetURL == "" {
		n.TargetURL = d.AppURL
	}

	if !skipRateLimit {
		if err := d.Cache.CheckRateLimit(ctx, fid); err != nil {
			return err
		}
	}

	// Fast path: cached token.
	if cached, err := d.Cache.Get(ctx, fid); err == nil {
		ok, rateLimited, err := d.deliver(ctx, fid, cached.URL, cached.Token, n, skipRateLimit)
		if err != nil {
			logger.WarnLogger.Warnf("Cached token delivery for fid %d failed, falling back to store: %v", fid, err)
		} else if ok {
			return nil
		} else if rateLimited && !skipRateLimit {
			return cache.ErrRateLimited
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		logger.WarnLogger.Warnf("Token cache read for fid %d failed, falling back to store: %v", fid, err)
	}

	tokens, err := d.Tokens.GetAllValid(ctx, fid)
	if err != nil {
		return fmt.Errorf("failed to resolve notification tokens: %w", err)
	}
	if len(tokens) == 0 {
		return ErrNoTokens
	}

	var anyRateLimited bool
	for _, t := range tokens {
		ok, rateLimited, err := d.deliver(ctx, fid, t.URL, t.Token, n, skipRateLimit)
		if err != nil {
			logger.WarnLogger.Warnf("Delivery to fid %d token failed: %v", fid, err)
			continue
		}
		if ok {
			// Refresh the cache so the next send skips the relational hop.
			if err := d.Cache.Put(ctx, fid, t.Token, t.URL); err != nil {
				logger.WarnLogger.Warnf("Failed to refresh token cache for fid %d: %v", fid, err)
			}
			return nil
		}
		if rateLimited {
			anyRateLimited = true
		}
	}

	if anyRateLimited && !skipRateLimit {
		return cache.ErrRateLimited
	}
	return ErrDeliveryFailed
}

// deliver POSTs to a single token's endpoint. Returns whether the token
// accepted the message and whether it was rate limited client-side. Tokens
// the endpoint reports invalid are pruned from both stores.
func (d *Dispatcher) deliver(ctx context.Context, fid int64, url, token string, n Notification, skipRateLimit bool) (bool, bool, error) {
	payload, err := json.Marshal(deliveryRequest{
		NotificationID: n.ID,
		Title:          n.Title,
		Body:           n.Body,
		TargetURL:      n.TargetURL,
		Tokens:         []string{token},
	})
	if err != nil {
		return false, false, fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, false, fmt.Errorf("failed to build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return false, false, fmt.Errorf("delivery request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, false, fmt.Errorf("delivery endpoint returned status %d", resp.StatusCode)
	}

	var body deliveryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, false, fmt.Errorf("invalid delivery response: %w", err)
	}

	for _, invalid := range body.Result.InvalidTokens {
		d.pruneToken(ctx, fid, invalid)
	}

	if len(body.Result.SuccessfulTokens) > 0 {
		if err := d.Tokens.Touch(ctx, fid, token); err != nil {
			logger.WarnLogger.Warnf("Failed to touch token for fid %d: %v", fid, err)
		}
		return true, false, nil
	}
	if len(body.Result.RateLimitedTokens) > 0 {
		// High-priority sends treat a client-side rate limit as accepted;
		// the client will fold it into the user's next digest.
		if skipRateLimit {
			return true, false, nil
		}
		return false, true, nil
	}
	return false, false, nil
}

// pruneToken invalidates a reported-invalid token in the relational store
// and drops the user's cache entry so it is never served again.
func (d *Dispatcher) pruneToken(ctx context.Context, fid int64, token string) {
	logger.InfoLogger.Infof("Pruning invalid notification token for fid %d", fid)
	if err := d.Tokens.Invalidate(ctx, fid, token); err != nil {
		logger.ErrorLogger.Errorf("Failed to invalidate token for fid %d: %v", fid, err)
	}
	if err := d.Cache.Invalidate(ctx, fid); err != nil {
		logger.ErrorLogger.Errorf("Failed to drop token cache for fid %d: %v", fid, err)
	}
}
