package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// InstructorAuth enforces bearer access tokens carrying the instructor role.
func InstructorAuth(iss Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := iss.Parse(strings.TrimSpace(authz[len("bearer "):]), TypeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if claims.Role != RoleInstructor {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "instructor role required"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// InstructorID returns the authenticated subject, or "" outside InstructorAuth.
func InstructorID(c *gin.Context) string {
	v, ok := c.Get(claimsKey)
	if !ok {
		return ""
	}
	claims, _ := v.(Claims)
	return claims.Subject
}
