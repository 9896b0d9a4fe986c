package middlewares

import (
	"log/slog"
	"net/http"
	"time"

	"cityfix-be/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

func httpLogger() *slog.Logger {
	return slog.Default().With(
		"service", "cityfix-be",
		"module", "http",
	)
}

// RequestID reuses an incoming X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(requestIDKey, reqID)
		c.Header(requestIDHeader, reqID)
		c.Next()
	}
}

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		outcome := "success"
		if status >= 400 {
			outcome = "failure"
		}
		fields := []any{
			"operation", "http_request",
			"outcome", outcome,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status_code", status,
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(requestIDKey),
		}
		switch {
		case status >= 500:
			httpLogger().ErrorContext(c.Request.Context(), "http request completed", fields...)
		case status >= 400:
			httpLogger().WarnContext(c.Request.Context(), "http request completed", fields...)
		default:
			httpLogger().InfoContext(c.Request.Context(), "http request completed", fields...)
		}
	}
}

// Recovery turns a handler panic into a 500 for that request only.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		httpLogger().ErrorContext(c.Request.Context(), "panic recovered",
			"operation", "http_panic_recovery",
			"outcome", "failure",
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"panic", rec,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "Something went wrong",
			"code":  apperrors.KindExternal,
		})
	})
}

// RenderError writes err as {"error", "code"} and aborts the chain. Errors
// that are not business errors are logged and rendered as a generic 500.
func RenderError(c *gin.Context, operation string, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.External(err)
	}
	status := appErr.StatusCode()

	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", status,
		"error_code", appErr.Kind,
		"message", appErr.Message,
		"request_id", c.GetString(requestIDKey),
	}
	if appErr.Err != nil {
		fields = append(fields, "error", appErr.Err.Error())
	}
	if status >= 500 {
		httpLogger().ErrorContext(c.Request.Context(), "http operation failed", fields...)
	} else {
		httpLogger().WarnContext(c.Request.Context(), "http operation failed", fields...)
	}

	c.AbortWithStatusJSON(status, gin.H{"error": appErr.Message, "code": appErr.Kind})
}
