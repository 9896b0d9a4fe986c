package middlewares

import (
	"net/http"
	"time"

	"cityfix-be/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const rateLimitWindow = 24 * time.Hour

// IssueRateLimiter caps issue submissions per verified email per day. It runs
// after AuthMiddleware.
func IssueRateLimiter(client redis.Cmdable, prefix string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := CurrentEmail(c)
		if email == "" {
			RenderError(c, "rate_limit", apperrors.Unauthenticated("User not authenticated"))
			return
		}

		ctx := c.Request.Context()

		// Create individual key for each user
		userKey := prefix + ":" + email

		count, err := client.Incr(ctx, userKey).Result()
		if err != nil {
			RenderError(c, "rate_limit", apperrors.External(err))
			return
		}

		// Set TTL only for the first increment (when count = 1)
		if count == 1 {
			if err := client.Expire(ctx, userKey, rateLimitWindow).Err(); err != nil {
				RenderError(c, "rate_limit", apperrors.External(err))
				return
			}
		}

		if count > int64(limit) {
			retryAfter, _ := client.TTL(ctx, userKey).Result()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"code":        "RATE_LIMITED",
				"retry_after": retryAfter.Seconds(),
			})
			return
		}

		c.Next()
	}
}
