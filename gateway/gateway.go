package gateway

import (
	"context"
	"errors"
)

// ErrSessionRejected means the gateway answered but refused the session, for
// example an unknown or expired session id.
var ErrSessionRejected = errors.New("checkout session rejected by gateway")

// CheckoutRequest describes one hosted checkout for a single line item.
type CheckoutRequest struct {
	Email       string
	ProductName string
	Amount      int64
	Currency    string
	Metadata    map[string]string
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession is the gateway's view of a checkout attempt.
type CheckoutSession struct {
	ID            string
	URL           string
	Paid          bool
	Amount        int64
	Currency      string
	TransactionID string
	CustomerEmail string
	Metadata      map[string]string
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}
