package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwtutil "github.com/rl-arena/arena-match-engine/pkg/jwt"
)

// ContextUserID gin context key holding the authenticated player id
const ContextUserID = "userID"

// Auth verifies the bearer token and stores the player id in the context.
// The websocket endpoint may pass the token as ?token= since browsers cannot
// set headers on the upgrade request.
func Auth(jwtManager *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authorization header required",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		claims, err := jwtManager.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
				"code":  "UNAUTHORIZED",
			})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if q := c.Query("token"); q != "" && c.IsWebsocket() {
			return q, true
		}
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// UserID returns the authenticated player id, empty when Auth did not run
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
