package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joy095/frame-booking/logger"
)

var (
	// ErrCacheMiss signals that no token is cached for the fid; callers fall
	// back to the relational store and refresh the cache on a hit.
	ErrCacheMiss = errors.New("notification token not cached")
	// ErrRateLimited signals the per-user send quota is exhausted.
	ErrRateLimited = errors.New("notification rate limit exceeded")
)

const (
	tokenKeyPrefix    = "notification_token:"
	rateKeyPrefix     = "notif_rate:"
	dailyKeyPrefix    = "notif_rate_daily:"
	lastSeenKeyPrefix = "last_seen_announcement:"

	// TokenTTL bounds how stale a cached token can get; the relational
	// store remains the source of truth.
	TokenTTL = 24 * time.Hour

	// Frames clients allow one notification per 30 seconds and 100 per day
	// per user; enforcing the same quota here keeps our sends from burning
	// the client-side budget.
	rateWindow  = 30 * time.Second
	rateCap     = 1
	dailyWindow = 24 * time.Hour
	dailyCap    = 100
)

// CachedToken is the token/url pair stored per fid.
type CachedToken struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// TokenCache is a TTL cache for notification delivery tokens, colocated
// with the notification rate-limit counters because both need the same
// low-latency store.
type TokenCache struct {
	Client *redis.Client
}

func NewTokenCache(client *redis.Client) *TokenCache {
	return &TokenCache{Client: client}
}

func tokenKey(fid int64) string {
	return tokenKeyPrefix + strconv.FormatInt(fid, 10)
}

// Get returns the cached token for fid, or ErrCacheMiss.
func (c *TokenCache) Get(ctx context.Context, fid int64) (*CachedToken, error) {
	val, err := c.Client.Get(ctx, tokenKey(fid)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		logger.ErrorLogger.Errorf("Redis error reading token cache for fid %d: %v", fid, err)
		return nil, fmt.Errorf("failed to read token cache: %w", err)
	}

	t := &CachedToken{}
	if err := json.Unmarshal([]byte(val), t); err != nil {
		// A corrupt entry behaves like a miss; it will be overwritten on the
		// next successful relational lookup.
		logger.WarnLogger.Warnf("Corrupt token cache entry for fid %d: %v", fid, err)
		return nil, ErrCacheMiss
	}
	return t, nil
}

// Put caches the token/url pair for fid with the standard TTL.
func (c *TokenCache) Put(ctx context.Context, fid int64, token, url string) error {
	data, err := json.Marshal(&CachedToken{Token: token, URL: url})
	if err != nil {
		return fmt.Errorf("failed to marshal cached token: %w", err)
	}

	if err := c.Client.Set(ctx, tokenKey(fid), data, TokenTTL).Err(); err != nil {
		logger.ErrorLogger.Errorf("Redis error caching token for fid %d: %v", fid, err)
		return fmt.Errorf("failed to cache token: %w", err)
	}
	return nil
}

// Invalidate drops the cached token for fid. Must be called whenever any of
// the user's tokens is invalidated so a stale entry is never served.
func (c *TokenCache) Invalidate(ctx context.Context, fid int64) error {
	if err := c.Client.Del(ctx, tokenKey(fid)).Err(); err != nil {
		logger.ErrorLogger.Errorf("Redis error invalidating token cache for fid %d: %v", fid, err)
		return fmt.Errorf("failed to invalidate token cache: %w", err)
	}
	return nil
}

// CheckRateLimit increments the windowed and daily counters for fid and
// returns ErrRateLimited if either cap is exceeded. High-priority callers
// may skip the check entirely.
func (c *TokenCache) CheckRateLimit(ctx context.Context, fid int64) error {
	windowed, err := c.bump(ctx, rateKeyPrefix+strconv.FormatInt(fid, 10), rateWindow)
	if err != nil {
		return err
	}
	daily, err := c.bump(ctx, dailyKeyPrefix+strconv.FormatInt(fid, 10), dailyWindow)
	if err != nil {
		return err
	}

	if windowed > rateCap || daily > dailyCap {
		logger.WarnLogger.Warnf("Notification rate limit hit for fid %d (window=%d daily=%d)", fid, windowed, daily)
		return ErrRateLimited
	}
	return nil
}

func (c *TokenCache) bump(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		logger.ErrorLogger.Errorf("Redis error incrementing %s: %v", key, err)
		return 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}
	if n == 1 {
		if err := c.Client.Expire(ctx, key, ttl).Err(); err != nil {
			logger.ErrorLogger.Errorf("Redis error setting expiry on %s: %v", key, err)
		}
	}
	return n, nil
}

// GetLastSeenAnnouncement returns the id of the last announcement fid has
// seen, or 0 if none recorded.
func (c *TokenCache) GetLastSeenAnnouncement(ctx context.Context, fid int64) (int64, error) {
	val, err := c.Client.Get(ctx, lastSeenKeyPrefix+strconv.FormatInt(fid, 10)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read last seen announcement: %w", err)
	}
	return val, nil
}

// SetLastSeenAnnouncement records the last announcement id fid has seen.
func (c *TokenCache) SetLastSeenAnnouncement(ctx context.Context, fid int64, announcementID int64) error {
	key := lastSeenKeyPrefix + strconv.FormatInt(fid, 10)
	if err := c.Client.Set(ctx, key, announcementID, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last seen announcement: %w", err)
	}
	return nil
}
