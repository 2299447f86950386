package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxOperatorClaims = "gridledger_operator_claims"

// RequireOperator returns a Gin middleware that enforces a valid Bearer
// operator token carrying scope. A nil tokens disables the check.
//
// On success it injects the *OperatorClaims into the context.
func RequireOperator(tokens *OperatorTokens, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer operator token required",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}
		if !HasScope(claims, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "scope " + scope + " required",
			})
			return
		}

		c.Set(ctxOperatorClaims, claims)
		c.Next()
	}
}

// OperatorFromCtx retrieves the claims injected by RequireOperator.
// Returns nil when the route is unauthenticated.
func OperatorFromCtx(c *gin.Context) *OperatorClaims {
	v, _ := c.Get(ctxOperatorClaims)
	claims, _ := v.(*OperatorClaims)
	return claims
}
