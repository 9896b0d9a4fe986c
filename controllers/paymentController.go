package controllers

import (
	"context"
	"net/http"
	"time"

	"cityfix-be/middlewares"
	"cityfix-be/services"

	"github.com/gin-gonic/gin"
)

type PaymentController struct {
	payments *services.PaymentService
	timeout  time.Duration
}

func NewPaymentController(payments *services.PaymentService, timeout time.Duration) *PaymentController {
	return &PaymentController{payments: payments, timeout: timeout}
}

func (pc *PaymentController) CreateCheckoutSession(c *gin.Context) {
	ctx, cancel := requestContext(c, pc.timeout)
	defer cancel()

	session, err := pc.payments.StartSubscription(ctx, middlewares.CurrentEmail(c))
	if err != nil {
		respondError(c, "create_checkout_session", err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (pc *PaymentController) CreateBoostSession(c *gin.Context) {
	ctx, cancel := requestContext(c, pc.timeout)
	defer cancel()

	session, err := pc.payments.StartBoost(ctx, middlewares.CurrentEmail(c), c.Param("id"))
	if err != nil {
		respondError(c, "create_boost_session", err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (pc *PaymentController) PaymentSuccess(c *gin.Context) {
	pc.confirm(c, "payment_success", pc.payments.ConfirmSubscription)
}

func (pc *PaymentController) BoostSuccess(c *gin.Context) {
	pc.confirm(c, "boost_success", pc.payments.ConfirmBoost)
}

// confirm reads the session id from ?session_id= (the gateway redirect) or
// from the JSON body.
func (pc *PaymentController) confirm(c *gin.Context, operation string, reconcile func(ctx context.Context, email, sessionID string) (*services.Reconciliation, error)) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		var input struct {
			SessionID string `json:"sessionId" binding:"required,notblank"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, operation, err)
			return
		}
		sessionID = input.SessionID
	}

	ctx, cancel := requestContext(c, pc.timeout)
	defer cancel()

	rec, err := reconcile(ctx, middlewares.CurrentEmail(c), sessionID)
	if err != nil {
		respondError(c, operation, err)
		return
	}

	status := http.StatusCreated
	if rec.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, rec)
}

func (pc *PaymentController) GetMyPayments(c *gin.Context) {
	ctx, cancel := requestContext(c, pc.timeout)
	defer cancel()

	payments, err := pc.payments.Mine(ctx, middlewares.CurrentEmail(c))
	if err != nil {
		respondError(c, "my_payments", err)
		return
	}

	c.JSON(http.StatusOK, payments)
}

func (pc *PaymentController) GetAllPayments(c *gin.Context) {
	ctx, cancel := requestContext(c, pc.timeout)
	defer cancel()

	payments, err := pc.payments.All(ctx)
	if err != nil {
		respondError(c, "admin_all_payments", err)
		return
	}

	c.JSON(http.StatusOK, payments)
}
