package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// OriginAllowed reports whether a browser origin may call us. An empty list
// allows everything and requests without Origin are not cross-site.
func OriginAllowed(origin string, allowed []string) bool {
	return len(allowed) == 0 || origin == "" || slices.Contains(allowed, origin)
}

// Origin rejects cross-origin requests from origins outside allowed.
func Origin(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if !OriginAllowed(origin, allowed) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "msg": "origin not allowed"})
			return
		}
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Next()
	}
}
