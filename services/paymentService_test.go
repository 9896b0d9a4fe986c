package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"cityfix-be/apperrors"
	"cityfix-be/gateway"
	"cityfix-be/models"
	"cityfix-be/repository"
)

func newTestPaymentService(store *repository.Store, gw gateway.PaymentGateway) *PaymentService {
	svc := NewPaymentService(store, gw, PaymentConfig{
		Currency:           "usd",
		SubscriptionAmount: 1000,
		BoostAmount:        100,
		SiteDomain:         "https://cityfix.example.com/",
	})
	svc.now = tickingClock()
	return svc
}

func TestSubscriptionCheckoutAndConfirm(t *testing.T) {
	store := newTestStore()
	gw := newFakeGateway()
	svc := newTestPaymentService(store, gw)
	seedUser(t, store, "Rina", "rina@example.com", models.RoleCitizen)

	checkout, err := svc.StartSubscription(context.Background(), "rina@example.com")
	if err != nil {
		t.Fatalf("start subscription: %v", err)
	}
	req := gw.created[0]
	if req.Amount != 1000 || req.Metadata["type"] != "subscription" || req.Metadata["email"] != "rina@example.com" {
		t.Fatalf("unexpected checkout request %+v", req)
	}
	if req.SuccessURL != "https://cityfix.example.com/payment-success?session_id={CHECKOUT_SESSION_ID}" {
		t.Fatalf("unexpected success url %s", req.SuccessURL)
	}

	gw.pay(checkout.SessionID)
	rec, err := svc.ConfirmSubscription(context.Background(), "rina@example.com", checkout.SessionID)
	if err != nil {
		t.Fatalf("confirm subscription: %v", err)
	}
	if rec.Replayed || rec.Payment.Type != models.PaymentSubscription || rec.Payment.Amount != 1000 {
		t.Fatalf("unexpected reconciliation %+v", rec.Payment)
	}
	if rec.Payment.TransactionID != "pi_"+checkout.SessionID {
		t.Fatalf("expected transaction id from gateway, got %s", rec.Payment.TransactionID)
	}

	user, err := store.Users.FindByEmail(context.Background(), "rina@example.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if !user.IsPremium {
		t.Fatal("expected account to be premium")
	}

	_, err = svc.StartSubscription(context.Background(), "rina@example.com")
	expectKind(t, err, apperrors.KindConflict)
}

func TestConfirmSubscriptionReplayReturnsSameRecord(t *testing.T) {
	store := newTestStore()
	gw := newFakeGateway()
	svc := newTestPaymentService(store, gw)
	seedUser(t, store, "Rina", "rina@example.com", models.RoleCitizen)

	checkout, err := svc.StartSubscription(context.Background(), "rina@example.com")
	if err != nil {
		t.Fatalf("start subscription: %v", err)
	}
	gw.pay(checkout.SessionID)

	first, err := svc.ConfirmSubscription(context.Background(), "rina@example.com", checkout.SessionID)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	second, err := svc.ConfirmSubscription(context.Background(), "rina@example.com", checkout.SessionID)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if !second.Replayed || second.Payment.ID != first.Payment.ID {
		t.Fatalf("expected replay of %s, got %+v", first.Payment.ID.Hex(), second)
	}
	if gw.gets != 1 {
		t.Fatalf("expected gateway to be consulted once, got %d", gw.gets)
	}

	payments, err := svc.Mine(context.Background(), "rina@example.com")
	if err != nil || len(payments) != 1 {
		t.Fatalf("expected a single payment record, got %d (%v)", len(payments), err)
	}
}

func TestConcurrentConfirmationsRecordOnce(t *testing.T) {
	store := newTestStore()
	gw := newFakeGateway()
	svc := newTestPaymentService(store, gw)
	seedUser(t, store, "Rina", "rina@example.com", models.RoleCitizen)

	checkout, err := svc.StartSubscription(context.Background(), "rina@example.com")
	if err != nil {
		t.Fatalf("start subscription: %v", err)
	}
	gw.pay(checkout.SessionID)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ConfirmSubscription(context.Background(), "rina@example.com", checkout.SessionID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent confirm: %v", err)
		}
	}

	all, err := svc.All(context.Background())
	if err != nil || len(all) != 1 {
		t.Fatalf("expected exactly one payment record, got %d (%v)", len(all), err)
	}
}

func TestConfirmRejectsUnpaidSession(t *testing.T) {
	store := newTestStore()
	gw := newFakeGateway()
	svc := newTestPaymentService(store, gw)
	seedUser(t, store, "Rina", "rina@example.com", models.RoleCitizen)

	checkout, err := svc.StartSubscription(context.Background(), "rina@example.com")
	if err != nil {
		t.Fatalf("start subscription: %v", err)
	}

	_, err = svc.ConfirmSubscription(context.Background(), "rina@example.com", checkout.SessionID)
	expectKind(t, err, apperrors.KindPaymentNotCompleted)

	user, _ := store.Users.FindByEmail(context.Background(), "rina@example.com")
	if user.IsPremium {
		t.Fatal("unpaid session must not upgrade the account")
	}
	if all, _ := svc.All(context.Background()); len(all) != 0 {
		t.Fatalf("unpaid session must not be recorded, got %d records", len(all))
	}
}

func TestConfirmGatewayFailures(t *testing.T) {
	store := newTestStore()
	gw := newFakeGateway()
	svc := newTestPaymentService(store, gw)
	seedUser(t, store, "Rina", "rina@example.com", models.RoleCitizen)

	_, err := svc.ConfirmSubscription(context.Background(), "rina@example.com", "cs_unknown")
	expectKind(t, err, apperrors.KindPaymentNotCompleted)

	gw.getErr = errBoom
	_, err = svc.ConfirmSubscription(context.Background(), "rina@example.com", "cs_unknown")
	expectKind(t, err, apperrors.KindExternal)

	_, err = svc.ConfirmSubscription(context.Background(), "rina@example.com", " ")
	expectKind(t, err, apperrors.KindInvalidArgument)
}

func TestConfirmRejectsForeignOrMismatchedSession(t *testing.T) {
	store := newTestStore()
	gw := newFakeGateway()
	svc := newTestPaymentService(store, gw)
	seedUser(t, store, "Rina", "rina@example.com", models.RoleCitizen)
	seedUser(t, store, "Omar", "omar@example.com", models.RoleCitizen)

	gw.put(&gateway.CheckoutSession{
		ID:       "cs_omar",
		Paid:     true,
		Metadata: map[string]string{"type": "subscription", "email": "omar@example.com"},
	})
	_, err := svc.ConfirmSubscription(context.Background(), "rina@example.com", "cs_omar")
	expectKind(t, err, apperrors.KindForbidden)

	_, err = svc.ConfirmBoost(context.Background(), "omar@example.com", "cs_omar")
	expectKind(t, err, apperrors.KindInvalidArgument)
}

func TestBoostUsesSessionMetadata(t *testing.T) {
	store := newTestStore()
	gw := newFakeGateway()
	svc := newTestPaymentService(store, gw)
	seedUser(t, store, "Rina", "rina@example.com", models.RoleCitizen)
	target := insertIssue(t, store, models.Issue{Title: "Pothole", SubmittedBy: "rina@example.com", CreatedAt: time.Now()})
	other := insertIssue(t, store, models.Issue{Title: "Graffiti", SubmittedBy: "rina@example.com", CreatedAt: time.Now()})

	checkout, err := svc.StartBoost(context.Background(), "rina@example.com", target.ID.Hex())
	if err != nil {
		t.Fatalf("start boost: %v", err)
	}
	if gw.created[0].Metadata["issueId"] != target.ID.Hex() || gw.created[0].Amount != 100 {
		t.Fatalf("unexpected boost checkout %+v", gw.created[0])
	}
	gw.pay(checkout.SessionID)

	rec, err := svc.ConfirmBoost(context.Background(), "rina@example.com", checkout.SessionID)
	if err != nil {
		t.Fatalf("confirm boost: %v", err)
	}
	if rec.Payment.IssueID == nil || *rec.Payment.IssueID != target.ID {
		t.Fatalf("expected payment to reference boosted issue, got %v", rec.Payment.IssueID)
	}

	boosted, _ := store.Issues.FindByID(context.Background(), target.ID)
	if !boosted.IsBoosted || boosted.Priority != models.PriorityHigh {
		t.Fatalf("expected issue to be boosted, got %+v", boosted)
	}
	untouched, _ := store.Issues.FindByID(context.Background(), other.ID)
	if untouched.IsBoosted {
		t.Fatal("only the issue named by the session may be boosted")
	}

	_, err = svc.StartBoost(context.Background(), "rina@example.com", target.ID.Hex())
	expectKind(t, err, apperrors.KindConflict)
}

func TestStartBoostRequiresOwnership(t *testing.T) {
	store := newTestStore()
	svc := newTestPaymentService(store, newFakeGateway())
	seedUser(t, store, "Omar", "omar@example.com", models.RoleCitizen)
	issue := insertIssue(t, store, models.Issue{Title: "Pothole", SubmittedBy: "rina@example.com", CreatedAt: time.Now()})

	_, err := svc.StartBoost(context.Background(), "omar@example.com", issue.ID.Hex())
	expectKind(t, err, apperrors.KindForbidden)
}

func TestConfirmBoostRejectsBlockedAccount(t *testing.T) {
	store := newTestStore()
	gw := newFakeGateway()
	svc := newTestPaymentService(store, gw)
	rina := seedUser(t, store, "Rina", "rina@example.com", models.RoleCitizen)
	issue := insertIssue(t, store, models.Issue{Title: "Pothole", SubmittedBy: "rina@example.com", CreatedAt: time.Now()})

	checkout, err := svc.StartBoost(context.Background(), "rina@example.com", issue.ID.Hex())
	if err != nil {
		t.Fatalf("start boost: %v", err)
	}
	gw.pay(checkout.SessionID)
	if _, err := store.Users.ToggleBlocked(context.Background(), rina.ID); err != nil {
		t.Fatalf("block: %v", err)
	}

	_, err = svc.ConfirmBoost(context.Background(), "rina@example.com", checkout.SessionID)
	expectKind(t, err, apperrors.KindForbidden)

	stored, _ := store.Issues.FindByID(context.Background(), issue.ID)
	if stored.IsBoosted || len(stored.Timeline) != 0 {
		t.Fatalf("expected issue to stay unboosted, got %+v", stored)
	}
	if _, err := store.Payments.FindBySessionID(context.Background(), checkout.SessionID); err == nil {
		t.Fatal("expected no payment record for a rejected confirmation")
	}
}

func TestConfirmBoostRecordsPaymentForDeletedIssue(t *testing.T) {
	store := newTestStore()
	gw := newFakeGateway()
	svc := newTestPaymentService(store, gw)
	seedUser(t, store, "Rina", "rina@example.com", models.RoleCitizen)
	issue := insertIssue(t, store, models.Issue{Title: "Pothole", SubmittedBy: "rina@example.com", CreatedAt: time.Now()})

	checkout, err := svc.StartBoost(context.Background(), "rina@example.com", issue.ID.Hex())
	if err != nil {
		t.Fatalf("start boost: %v", err)
	}
	gw.pay(checkout.SessionID)
	if err := store.Issues.DeleteOwned(context.Background(), issue.ID, "rina@example.com"); err != nil {
		t.Fatalf("delete issue: %v", err)
	}

	rec, err := svc.ConfirmBoost(context.Background(), "rina@example.com", checkout.SessionID)
	if err != nil {
		t.Fatalf("expected the paid session to be recorded, got %v", err)
	}
	if rec.Payment.IssueID == nil || *rec.Payment.IssueID != issue.ID {
		t.Fatalf("expected payment to keep the issue id, got %v", rec.Payment.IssueID)
	}
	if _, err := store.Payments.FindBySessionID(context.Background(), checkout.SessionID); err != nil {
		t.Fatalf("expected stored payment, got %v", err)
	}
}
