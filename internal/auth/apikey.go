package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	headerName = "X-API-Key"
	// queryName carries the key for websocket upgrades, where browsers cannot set headers.
	queryName = "api_key"
)

// APIKeyMiddleware validates the API key from the X-API-Key header, a Bearer
// token or the api_key query parameter. If apiKey is empty, authentication is
// disabled.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		provided := providedKey(c)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid API key",
			})
			return
		}

		c.Next()
	}
}

func providedKey(c *gin.Context) string {
	if v := c.GetHeader(headerName); v != "" {
		return v
	}
	if v, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return c.Query(queryName)
}
