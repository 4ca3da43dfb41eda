// utils/context.go
package utils

import (
	"github.com/gin-gonic/gin"
	"github.com/joy095/frame-booking/logger"
)

// GetFIDFromContext extracts the Farcaster user ID from the Gin context.
// The auth middleware stores it under "fid" as an int64 after validating
// the bearer token.
func GetFIDFromContext(c *gin.Context) (int64, error) {
	v, exists := c.Get("fid")
	if !exists {
		logger.ErrorLogger.Error("FID not found in context.")
		return 0, ErrFIDNotFound
	}

	switch fid := v.(type) {
	case int64:
		return fid, nil
	case float64:
		return int64(fid), nil
	case int:
		return int64(fid), nil
	default:
		logger.ErrorLogger.Errorf("FID in context has unexpected type %T", v)
		return 0, ErrFIDNotFound
	}
}
