package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"cityfix-be/apperrors"
	"cityfix-be/gateway"
	"cityfix-be/identity"
	"cityfix-be/models"
	"cityfix-be/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Checkout session metadata keys. Reconciliation trusts only these, never the
// confirming request.
const (
	metaType    = "type"
	metaEmail   = "email"
	metaIssueID = "issueId"
)

type PaymentConfig struct {
	Currency           string
	SubscriptionAmount int64
	BoostAmount        int64
	SiteDomain         string
}

type PaymentService struct {
	payments repository.PaymentRepository
	users    repository.UserRepository
	issues   repository.IssueRepository
	gateway  gateway.PaymentGateway
	cfg      PaymentConfig
	now      func() time.Time
}

func NewPaymentService(store *repository.Store, gw gateway.PaymentGateway, cfg PaymentConfig) *PaymentService {
	cfg.SiteDomain = strings.TrimRight(cfg.SiteDomain, "/")
	return &PaymentService{
		payments: store.Payments,
		users:    store.Users,
		issues:   store.Issues,
		gateway:  gw,
		cfg:      cfg,
		now:      time.Now,
	}
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// Reconciliation is the outcome of confirming a checkout session. Replayed is
// set when the session had already been recorded.
type Reconciliation struct {
	Payment  *models.Payment `json:"payment"`
	Replayed bool            `json:"alreadyProcessed"`
}

func (s *PaymentService) StartSubscription(ctx context.Context, email string) (*CheckoutResult, error) {
	user, err := activeAccount(ctx, s.users, email)
	if err != nil {
		return nil, err
	}
	if user.IsPremium {
		return nil, apperrors.Conflict("Account is already premium")
	}

	return s.checkout(ctx, gateway.CheckoutRequest{
		Email:       user.Email,
		ProductName: "CityFix Premium Subscription",
		Amount:      s.cfg.SubscriptionAmount,
		Currency:    s.cfg.Currency,
		Metadata: map[string]string{
			metaType:  string(models.PaymentSubscription),
			metaEmail: user.Email,
		},
		SuccessURL: s.cfg.SiteDomain + "/payment-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.cfg.SiteDomain + "/payment-cancelled",
	})
}

func (s *PaymentService) StartBoost(ctx context.Context, email, issueID string) (*CheckoutResult, error) {
	user, err := activeAccount(ctx, s.users, email)
	if err != nil {
		return nil, err
	}
	id, err := parseIssueID(issueID)
	if err != nil {
		return nil, err
	}
	issue, err := s.issues.FindByID(ctx, id)
	if err != nil {
		return nil, issueError(err)
	}
	if issue.SubmittedBy != user.Email {
		return nil, apperrors.Forbidden("You can only boost your own issues")
	}
	if issue.IsBoosted {
		return nil, apperrors.Conflict("Issue is already boosted")
	}

	return s.checkout(ctx, gateway.CheckoutRequest{
		Email:       user.Email,
		ProductName: "Boost Issue: " + issue.Title,
		Amount:      s.cfg.BoostAmount,
		Currency:    s.cfg.Currency,
		Metadata: map[string]string{
			metaType:    string(models.PaymentBoost),
			metaEmail:   user.Email,
			metaIssueID: issue.ID.Hex(),
		},
		SuccessURL: s.cfg.SiteDomain + "/boost-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.cfg.SiteDomain + "/issues/" + issue.ID.Hex(),
	})
}

// ConfirmSubscription records a paid subscription session and upgrades the
// account. Confirming the same session again returns the stored record.
func (s *PaymentService) ConfirmSubscription(ctx context.Context, email, sessionID string) (*Reconciliation, error) {
	return s.reconcile(ctx, email, sessionID, models.PaymentSubscription,
		func(ctx context.Context, _ *gateway.CheckoutSession) (*primitive.ObjectID, error) {
			err := s.users.SetPremium(ctx, email)
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.Forbidden("Account not found")
			}
			if err != nil {
				return nil, apperrors.External(err)
			}
			return nil, nil
		})
}

// ConfirmBoost records a paid boost session and boosts the issue named in the
// session metadata. Blocked accounts cannot complete a boost. A paid session
// whose issue has since been deleted is still recorded.
func (s *PaymentService) ConfirmBoost(ctx context.Context, email, sessionID string) (*Reconciliation, error) {
	return s.reconcile(ctx, email, sessionID, models.PaymentBoost,
		func(ctx context.Context, sess *gateway.CheckoutSession) (*primitive.ObjectID, error) {
			user, err := activeAccount(ctx, s.users, email)
			if err != nil {
				return nil, err
			}
			id, err := primitive.ObjectIDFromHex(sess.Metadata[metaIssueID])
			if err != nil {
				return nil, apperrors.InvalidArgument("Checkout session does not reference an issue")
			}
			issue, err := s.issues.FindByID(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				logger().Error("boost paid for a deleted issue, recording payment only",
					"email", email, "session_id", sess.ID, "issue_id", id.Hex())
				return &id, nil
			}
			if err != nil {
				return nil, issueError(err)
			}

			entry := models.TimelineEntry{
				Status:    issue.Status,
				Message:   "Issue boosted to high priority",
				UpdatedBy: user.Actor(),
				CreatedAt: s.now(),
			}
			_, err = s.issues.MarkBoosted(ctx, id, entry)
			if errors.Is(err, repository.ErrNotFound) {
				logger().Error("boost paid for a deleted issue, recording payment only",
					"email", email, "session_id", sess.ID, "issue_id", id.Hex())
				return &id, nil
			}
			if err != nil {
				return nil, issueError(err)
			}
			return &id, nil
		})
}

func (s *PaymentService) Mine(ctx context.Context, email string) ([]models.Payment, error) {
	payments, err := s.payments.ListByEmail(ctx, email)
	if err != nil {
		return nil, apperrors.External(err)
	}
	return payments, nil
}

func (s *PaymentService) All(ctx context.Context) ([]models.Payment, error) {
	payments, err := s.payments.ListAll(ctx)
	if err != nil {
		return nil, apperrors.External(err)
	}
	return payments, nil
}

func (s *PaymentService) checkout(ctx context.Context, req gateway.CheckoutRequest) (*CheckoutResult, error) {
	sess, err := s.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		return nil, apperrors.External(err)
	}
	return &CheckoutResult{SessionID: sess.ID, URL: sess.URL}, nil
}

type applyFunc func(ctx context.Context, sess *gateway.CheckoutSession) (*primitive.ObjectID, error)

// reconcile verifies sessionID with the gateway, applies its effect and writes
// the payment record. The effect is idempotent and the record is keyed by a
// unique session id, so concurrent or repeated confirmations converge on one
// record and one effect.
func (s *PaymentService) reconcile(ctx context.Context, email, sessionID string, kind models.PaymentType, apply applyFunc) (*Reconciliation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperrors.InvalidArgument("session_id is required")
	}
	if email == "" {
		return nil, apperrors.Unauthenticated("User not authenticated")
	}

	if existing, err := s.recorded(ctx, email, sessionID); err != nil || existing != nil {
		return existing, err
	}

	sess, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if errors.Is(err, gateway.ErrSessionRejected) {
		return nil, apperrors.Wrap(apperrors.KindPaymentNotCompleted, "Payment could not be verified", err)
	}
	if err != nil {
		return nil, apperrors.External(err)
	}
	if !sess.Paid {
		return nil, apperrors.PaymentNotCompleted("Payment has not been completed")
	}
	if sess.Metadata[metaType] != string(kind) {
		return nil, apperrors.InvalidArgument("Checkout session is not a " + string(kind) + " payment")
	}
	if identity.NormalizeEmail(sess.Metadata[metaEmail]) != email {
		return nil, apperrors.Forbidden("Checkout session belongs to another account")
	}

	issueID, err := apply(ctx, sess)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		Email:         email,
		Type:          kind,
		Amount:        sess.Amount,
		Currency:      sess.Currency,
		TransactionID: sess.TransactionID,
		SessionID:     sessionID,
		Status:        models.PaymentStatusPaid,
		PaidAt:        s.now(),
		IssueID:       issueID,
	}
	err = s.payments.Insert(ctx, payment)
	if errors.Is(err, repository.ErrDuplicate) {
		rec, err := s.recorded(ctx, email, sessionID)
		if err == nil && rec == nil {
			err = apperrors.External(errors.New("payment record missing after duplicate insert"))
		}
		return rec, err
	}
	if err != nil {
		return nil, apperrors.External(err)
	}

	logger().Info("payment recorded", "type", kind, "email", email, "session_id", sessionID)
	return &Reconciliation{Payment: payment}, nil
}

// recorded returns the stored reconciliation for sessionID, or nil if the
// session has not been recorded yet.
func (s *PaymentService) recorded(ctx context.Context, email, sessionID string) (*Reconciliation, error) {
	existing, err := s.payments.FindBySessionID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.External(err)
	}
	if existing.Email != email {
		return nil, apperrors.Forbidden("Checkout session belongs to another account")
	}
	return &Reconciliation{Payment: existing, Replayed: true}, nil
}
