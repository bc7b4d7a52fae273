package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/listingd/models"
)

// identityKey is the gin context key holding the caller's key fingerprint.
const identityKey = "api_key_id"

// Auth returns API-key authentication middleware. The key is read from
// X-API-Key or from an "Authorization: Bearer" header.
//
// Keys are held only as SHA-256 digests and compared in constant time. The
// caller's identity for rate limiting is a short fingerprint of its key.
// With no usable keys every request is rejected.
func Auth(apiKeys []string) gin.HandlerFunc {
	var digests [][sha256.Size]byte
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	if len(digests) == 0 {
		slog.Warn("auth enabled without API keys, /extract will reject every request")
	}

	return func(c *gin.Context) {
		id, ok := authenticate(digests, presentedKey(c))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Error: "missing or invalid API key (X-API-Key or Authorization: Bearer)",
			})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// authenticate returns the fingerprint of key when it matches one of digests.
func authenticate(digests [][sha256.Size]byte, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	sum := sha256.Sum256([]byte(key))
	match := 0
	for i := range digests {
		match |= subtle.ConstantTimeCompare(sum[:], digests[i][:])
	}
	if match == 0 {
		return "", false
	}
	return hex.EncodeToString(sum[:6]), true
}

func presentedKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	if key, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(key)
	}
	return ""
}
