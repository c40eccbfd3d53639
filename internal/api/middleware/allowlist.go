package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// IPAllowlist blocks requests whose client IP is not listed. An empty list
// allows everyone.
func IPAllowlist(ips []string) gin.HandlerFunc {
	if len(ips) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	allowed := make(map[string]bool, len(ips))
	for _, ip := range ips {
		if ip != "" {
			allowed[ip] = true
		}
	}
	return func(c *gin.Context) {
		if !allowed[c.ClientIP()] {
			abort(c, http.StatusForbidden, "FORBIDDEN", "access denied: your IP is not allowed")
			return
		}
		c.Next()
	}
}
