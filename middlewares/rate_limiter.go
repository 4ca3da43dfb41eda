package middlewares

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	ginmiddleware "github.com/ulule/limiter/v3/drivers/middleware/gin"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	db "github.com/joy095/frame-booking/config/redis"
	"github.com/joy095/frame-booking/logger"
)

// limiterKey identifies the caller for rate limiting: the authenticated
// fid when present, otherwise the client IP.
func limiterKey(c *gin.Context) string {
	if v, ok := c.Get("fid"); ok {
		if fid, ok := v.(int64); ok {
			return "fid:" + strconv.FormatInt(fid, 10)
		}
	}
	return "ip:" + c.ClientIP()
}

func createRedisStore(routeID string, rate limiter.Rate) (limiter.Store, error) {
	rdb, err := db.GetRedisClient(context.Background())
	if err != nil {
		return nil, err
	}

	store, err := redisstore.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix:          "rate_limiter:" + routeID,
		MaxRetry:        3,
		CleanUpInterval: rate.Period,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis store for route %s: %w", routeID, err)
	}
	return store, nil
}

// ParseCustomRate parses "<count>-<period>" rate strings with arbitrary
// Go durations, e.g. "10-1m", "500-24h". limiter's own formatted rates
// only allow single-unit periods.
func ParseCustomRate(rateStr string) (limiter.Rate, error) {
	parts := strings.SplitN(rateStr, "-", 2)
	if len(parts) != 2 {
		return limiter.Rate{}, fmt.Errorf("invalid rate format: %s", rateStr)
	}

	limit, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return limiter.Rate{}, fmt.Errorf("invalid limit: %s", parts[0])
	}
	period, err := time.ParseDuration(parts[1])
	if err != nil {
		return limiter.Rate{}, fmt.Errorf("invalid period: %s", parts[1])
	}

	return limiter.Rate{Period: period, Limit: limit}, nil
}

// NewRateLimiter builds per-route, per-caller rate limiting middleware.
// If Redis is unavailable the middleware degrades to a pass-through
// rather than taking the route down.
func NewRateLimiter(rateStr, routeID string) gin.HandlerFunc {
	rate, err := ParseCustomRate(rateStr)
	if err != nil {
		logger.ErrorLogger.Errorf("Invalid rate %q for route %s: %v", rateStr, routeID, err)
		return func(c *gin.Context) { c.Next() }
	}

	store, err := createRedisStore(routeID, rate)
	if err != nil {
		logger.WarnLogger.Warnf("Rate limiter for route %s disabled: %v", routeID, err)
		return func(c *gin.Context) { c.Next() }
	}

	return ginmiddleware.NewMiddleware(limiter.New(store, rate),
		ginmiddleware.WithKeyGetter(limiterKey))
}

// CombinedRateLimiter stacks several rates on one route, e.g. a burst
// limit and a daily cap. The request passes only if every limit allows it.
func CombinedRateLimiter(routeID string, rateStrings ...string) gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, len(rateStrings))
	for i, rateStr := range rateStrings {
		handlers[i] = NewRateLimiter(rateStr, fmt.Sprintf("%s_%d", routeID, i))
	}

	return func(c *gin.Context) {
		for _, h := range handlers {
			h(c)
			if c.IsAborted() {
				return
			}
		}
	}
}
