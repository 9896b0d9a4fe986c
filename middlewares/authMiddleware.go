package middlewares

import (
	"strings"

	"cityfix-be/apperrors"
	"cityfix-be/identity"

	"github.com/gin-gonic/gin"
)

const emailKey = "email"

// AuthMiddleware verifies the bearer token and stores the verified email in
// the context. The identity is never taken from the request body.
func AuthMiddleware(verifier identity.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.Request.Header.Get("Authorization")
		if authHeader == "" {
			RenderError(c, "authenticate", apperrors.Unauthenticated("No authorization token provided"))
			return
		}

		// Extracting token from "Bearer <token>" format
		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			RenderError(c, "authenticate", apperrors.Unauthenticated("Invalid authorization header"))
			return
		}
		tokenString := strings.TrimSpace(authHeader[len(prefix):])
		if tokenString == "" {
			RenderError(c, "authenticate", apperrors.Unauthenticated("No authorization token provided"))
			return
		}

		id, err := verifier.Verify(c.Request.Context(), tokenString)
		if err != nil {
			RenderError(c, "authenticate", apperrors.Wrap(apperrors.KindUnauthenticated, "Invalid authorization token", err))
			return
		}

		c.Set(emailKey, id.Email)
		c.Next()
	}
}

// CurrentEmail returns the verified email set by AuthMiddleware.
func CurrentEmail(c *gin.Context) string {
	return c.GetString(emailKey)
}
