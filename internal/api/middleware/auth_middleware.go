package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskstream/backend/internal/domain/identity"
	"github.com/taskstream/backend/pkg/logger"
	"github.com/taskstream/backend/pkg/security/auth"
)

const bearerSchema = "Bearer "

// Identity resolves the caller for every request and attaches it to the
// request context. Precedence: trusted forwarded headers (when enabled),
// then bearer credential verification, then anonymous. Requests are never
// rejected for missing credentials, only for invalid ones; resolvers decide
// what each operation requires.
func Identity(verifier *auth.Verifier, trustedHeaders bool, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := identity.Anonymous()

		switch {
		case trustedHeaders && hasForwardedIdentity(c):
			// The upstream gateway already verified the caller; the
			// verifier is deliberately not invoked.
			caller, _ = identity.FromHeaders(c.Request.Header)

		case bearerToken(c) != "":
			verified, err := verifier.Verify(c.Request.Context(), bearerToken(c))
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, auth.ErrKeyUnavailable) {
					status = http.StatusServiceUnavailable
				}
				log.Warn("credential rejected", zap.Error(err))
				c.JSON(status, gin.H{"error": err.Error()})
				c.Abort()
				return
			}
			caller = verified
		}

		ctx := identity.NewContext(c.Request.Context(), caller)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func hasForwardedIdentity(c *gin.Context) bool {
	return strings.TrimSpace(c.GetHeader(identity.HeaderUserID)) != ""
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, bearerSchema) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerSchema):])
}
