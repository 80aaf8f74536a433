package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"classwatch/internal/response"
)

// ClaimsKey is the gin context key DeviceAuth stores Claims under.
const ClaimsKey = "claims"

// DeviceAuth enforces bearer access tokens issued by s.
func DeviceAuth(s *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		claims, err := s.Parse(strings.TrimSpace(authz[7:]), KindAccess)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// FromContext returns the claims set by DeviceAuth.
func FromContext(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}
