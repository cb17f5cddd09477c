package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/httpx"
)

const principalKey = "auth.principal"

// Verifier turns a bearer token into a principal
type Verifier interface {
	Verify(token string) (Principal, error)
}

// Middleware authenticates the bearer token and stores the principal on the context
func Middleware(verifier Verifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httpx.RespondError(c, logger, apperr.Authentication("authorization header required"))
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			httpx.RespondError(c, logger, apperr.Authentication("invalid authorization header format"))
			return
		}

		principal, err := verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			logger.Debug("rejected bearer token", zap.Error(err))
			httpx.RespondError(c, logger, apperr.Authentication("invalid or expired token"))
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in roles
func RequireRole(logger *zap.Logger, roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := FromContext(c)
		if !ok {
			httpx.RespondError(c, logger, apperr.Authentication("authentication required"))
			return
		}
		if !p.HasRole(roles...) {
			httpx.RespondError(c, logger, apperr.Authorization("role %s may not perform this operation", p.Role))
			return
		}
		c.Next()
	}
}

// FromContext returns the principal set by Middleware
func FromContext(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
