package auth

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/joy095/frame-booking/logger"
	"github.com/joy095/frame-booking/utils"
)

// AuthMiddleware validates the bearer token minted for the frame session
// and stores the caller's fid in the context for downstream handlers.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "NO_TOKEN", "error": "No authorization token provided."})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "INVALID_AUTH_FORMAT", "error": "Invalid authorization format."})
			return
		}

		token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return utils.GetJWTSecret(), nil
		})
		if err != nil || !token.Valid {
			logger.WarnLogger.Warnf("JWT validation failed: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "INVALID_TOKEN", "error": "Invalid or expired token."})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "INVALID_TOKEN", "error": "Invalid token claims."})
			return
		}

		fid, err := fidFromClaims(claims)
		if err != nil {
			logger.WarnLogger.Warnf("JWT missing usable fid claim: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "INVALID_TOKEN", "error": "Token carries no user identity."})
			return
		}

		c.Set("fid", fid)
		c.Next()
	}
}

// fidFromClaims reads the fid claim, tolerating the numeric and string
// encodings different frame hosts produce.
func fidFromClaims(claims jwt.MapClaims) (int64, error) {
	v, ok := claims["fid"]
	if !ok {
		// Quick Auth tokens carry the fid in the subject claim.
		v, ok = claims["sub"]
		if !ok {
			return 0, fmt.Errorf("no fid or sub claim")
		}
	}

	switch fid := v.(type) {
	case float64:
		return int64(fid), nil
	case int64:
		return fid, nil
	case string:
		n, err := strconv.ParseInt(fid, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric fid claim %q", fid)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported fid claim type %T", v)
	}
}
