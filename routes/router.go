package routes

import (
	"net/http"
	"time"

	"cityfix-be/controllers"
	"cityfix-be/identity"
	"cityfix-be/middlewares"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// Dependencies is everything the route table needs. IssueLimiter may be nil.
type Dependencies struct {
	Issues         *controllers.IssueController
	Users          *controllers.UserController
	Payments       *controllers.PaymentController
	Verifier       identity.TokenVerifier
	Gate           *middlewares.Gate
	IssueLimiter   gin.HandlerFunc
	AllowedOrigins []string
}

func NewRouter(d Dependencies) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(middlewares.RequestID(), middlewares.Recovery(), middlewares.RequestLogger())
	if len(d.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     d.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Server is running!")
	})
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	IssueRoutes(r, d)
	UserRoutes(r, d)
	PaymentRoutes(r, d)

	return r
}

func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("notblank", validators.NotBlank)
	}
}
