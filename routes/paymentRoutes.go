package routes

import (
	"cityfix-be/middlewares"

	"github.com/gin-gonic/gin"
)

func PaymentRoutes(r *gin.Engine, d Dependencies) {
	auth := middlewares.AuthMiddleware(d.Verifier)
	pc := d.Payments

	r.POST("/create-checkout-session", auth, pc.CreateCheckoutSession)
	r.POST("/create-boost-session/:id", auth, d.Gate.NotBlocked(), pc.CreateBoostSession)
	r.POST("/boost-issue/:id", auth, d.Gate.NotBlocked(), pc.CreateBoostSession)

	r.POST("/payment-success", auth, pc.PaymentSuccess)
	r.POST("/boost-success", auth, d.Gate.NotBlocked(), pc.BoostSuccess)

	r.GET("/my-payments", auth, pc.GetMyPayments)
	r.GET("/admin-all-payments", auth, d.Gate.Admin(), pc.GetAllPayments)
}
