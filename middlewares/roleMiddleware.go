package middlewares

import (
	"errors"

	"cityfix-be/apperrors"
	"cityfix-be/models"
	"cityfix-be/repository"

	"github.com/gin-gonic/gin"
)

const accountKey = "account"

// Gate asserts account properties for the verified caller. Accounts are read
// on every request so a block or role change applies immediately.
type Gate struct {
	users repository.UserRepository
}

func NewGate(users repository.UserRepository) *Gate {
	return &Gate{users: users}
}

func (g *Gate) Admin() gin.HandlerFunc {
	return g.require("require_admin", "Admin access required", (*models.User).IsAdmin)
}

func (g *Gate) Staff() gin.HandlerFunc {
	return g.require("require_staff", "Staff access required", (*models.User).IsStaff)
}

func (g *Gate) NotBlocked() gin.HandlerFunc {
	return g.require("require_not_blocked", "Your account is blocked", func(u *models.User) bool {
		return !u.IsBlocked
	})
}

func (g *Gate) require(operation, message string, allowed func(*models.User) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := CurrentEmail(c)
		if email == "" {
			RenderError(c, operation, apperrors.Unauthenticated("User not authenticated"))
			return
		}

		user, err := g.users.FindByEmail(c.Request.Context(), email)
		if errors.Is(err, repository.ErrNotFound) {
			RenderError(c, operation, apperrors.Forbidden("Account not found"))
			return
		}
		if err != nil {
			RenderError(c, operation, apperrors.External(err))
			return
		}
		if !allowed(user) {
			RenderError(c, operation, apperrors.Forbidden(message))
			return
		}

		c.Set(accountKey, user)
		c.Next()
	}
}

// CurrentAccount returns the account loaded by the last Gate check.
func CurrentAccount(c *gin.Context) *models.User {
	v, ok := c.Get(accountKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
