package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/comercialav/services/deliveries/internal/identity"
)

const sessionKey = "session"

// Identity resolves the authenticated user id into a session descriptor.
// Authentication happens at the gateway; this trusts the forwarded header.
func Identity(provider identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}

		sess, err := provider.SessionFor(c.Request.Context(), userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to resolve user session")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not resolve user session"})
			return
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

// SessionFrom extracts the session stored by the Identity middleware
func SessionFrom(c *gin.Context) identity.Session {
	if value, exists := c.Get(sessionKey); exists {
		if sess, ok := value.(identity.Session); ok {
			return sess
		}
	}
	return identity.Session{}
}
