package controllers

import (
	"context"
	"time"

	"cityfix-be/apperrors"
	"cityfix-be/middlewares"

	"github.com/gin-gonic/gin"
)

const DefaultRequestTimeout = 10 * time.Second

// requestContext bounds a handler's work by timeout and by the client's
// connection.
func requestContext(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

func respondError(c *gin.Context, operation string, err error) {
	middlewares.RenderError(c, operation, err)
}

func respondBindError(c *gin.Context, operation string, err error) {
	middlewares.RenderError(c, operation, apperrors.Wrap(apperrors.KindInvalidArgument, err.Error(), err))
}
