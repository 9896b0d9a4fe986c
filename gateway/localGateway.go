package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// LocalGateway keeps checkout sessions in memory. It backs `serve --memory`
// and HTTP tests. With autoPay every session is created already paid, and its
// URL points straight at the success redirect.
type LocalGateway struct {
	mu       sync.Mutex
	autoPay  bool
	sessions map[string]*CheckoutSession
}

func NewLocalGateway(autoPay bool) *LocalGateway {
	return &LocalGateway{autoPay: autoPay, sessions: map[string]*CheckoutSession{}}
}

func (g *LocalGateway) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := "cs_local_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	meta := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		meta[k] = v
	}
	sess := &CheckoutSession{
		ID:            id,
		URL:           strings.ReplaceAll(req.SuccessURL, "{CHECKOUT_SESSION_ID}", id),
		Amount:        req.Amount,
		Currency:      req.Currency,
		CustomerEmail: req.Email,
		Metadata:      meta,
	}
	if g.autoPay {
		g.payLocked(sess)
	}
	g.sessions[id] = sess

	c := *sess
	return &c, nil
}

func (g *LocalGateway) GetCheckoutSession(_ context.Context, sessionID string) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: no such session %s", ErrSessionRejected, sessionID)
	}
	c := *sess
	return &c, nil
}

// MarkPaid completes a session as if the customer had paid.
func (g *LocalGateway) MarkPaid(sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: no such session %s", ErrSessionRejected, sessionID)
	}
	g.payLocked(sess)
	return nil
}

func (g *LocalGateway) payLocked(sess *CheckoutSession) {
	sess.Paid = true
	sess.TransactionID = "pi_" + strings.TrimPrefix(sess.ID, "cs_")
}
