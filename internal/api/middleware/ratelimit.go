package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/arena-match-engine/pkg/logger"
	"github.com/rl-arena/arena-match-engine/pkg/ratelimit"
)

// KeyFunc picks the rate limit bucket for a request
type KeyFunc func(*gin.Context) string

// PlayerKey buckets by authenticated player, falling back to client IP
func PlayerKey(c *gin.Context) string {
	if userID := UserID(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

// RateLimit rejects requests over the limiter's budget with 429. When the
// limiter itself fails the request is let through.
func RateLimit(scope string, limiter ratelimit.Limiter, keyFunc KeyFunc) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = PlayerKey
	}

	return func(c *gin.Context) {
		key := scope + ":" + keyFunc(c)

		d, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("Rate limiter unavailable", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("too many requests, retry in %ds", retryAfter),
				"code":  "RATE_LIMITED",
			})
			return
		}

		c.Next()
	}
}
