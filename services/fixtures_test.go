package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cityfix-be/apperrors"
	"cityfix-be/gateway"
	"cityfix-be/identity"
	"cityfix-be/models"
	"cityfix-be/repository"
	"cityfix-be/repository/memory"
)

// tickingClock returns a strictly increasing time on every call so feed
// ordering never depends on ties.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

func newTestStore() *repository.Store {
	return memory.NewStore()
}

func seedUser(t *testing.T, store *repository.Store, name, email string, role models.Role) *models.User {
	t.Helper()
	user := &models.User{
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.Users.Insert(context.Background(), user); err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return user
}

func newIssueInput(title string) CreateIssueInput {
	return CreateIssueInput{
		Title:       title,
		Category:    "Roads",
		Location:    "Main Street",
		Description: "Large pothole near the crossing",
		Images:      models.ImageList{"https://img.example.com/1.jpg"},
	}
}

func newTestIssueService(store *repository.Store) *IssueService {
	svc := NewIssueService(store.Issues, store.Users, DefaultFreeIssueQuota)
	svc.now = tickingClock()
	return svc
}

func expectKind(t *testing.T, err error, kind apperrors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperrors.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

type fakeGateway struct {
	mu       sync.Mutex
	sessions map[string]*gateway.CheckoutSession
	created  []gateway.CheckoutRequest
	getErr   error
	gets     int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*gateway.CheckoutSession{}}
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.created = append(g.created, req)
	id := fmt.Sprintf("cs_test_%d", len(g.created))
	sess := &gateway.CheckoutSession{
		ID:       id,
		URL:      "https://checkout.example.com/" + id,
		Amount:   req.Amount,
		Currency: req.Currency,
		Metadata: req.Metadata,
	}
	g.sessions[id] = sess
	return sess, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, sessionID string) (*gateway.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.gets++
	if g.getErr != nil {
		return nil, g.getErr
	}
	sess, ok := g.sessions[sessionID]
	if !ok {
		return nil, gateway.ErrSessionRejected
	}
	c := *sess
	return &c, nil
}

func (g *fakeGateway) pay(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess := g.sessions[sessionID]
	sess.Paid = true
	sess.TransactionID = "pi_" + sessionID
}

// put registers an arbitrary session, as if it had been created elsewhere.
func (g *fakeGateway) put(sess *gateway.CheckoutSession) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sessions[sess.ID] = sess
}

// recordingProvisioner wraps a LocalProvisioner and remembers issued ids.
type recordingProvisioner struct {
	*identity.LocalProvisioner
	created []string
}

func newRecordingProvisioner() *recordingProvisioner {
	return &recordingProvisioner{LocalProvisioner: identity.NewLocalProvisioner()}
}

func (p *recordingProvisioner) CreateAccount(ctx context.Context, req identity.AccountRequest) (string, error) {
	uid, err := p.LocalProvisioner.CreateAccount(ctx, req)
	if err == nil {
		p.created = append(p.created, uid)
	}
	return uid, err
}

// failingUsers fails every insert after delegating lookups.
type failingUsers struct {
	repository.UserRepository
	err error
}

func (u failingUsers) Insert(context.Context, *models.User) error {
	return u.err
}

var errBoom = errors.New("boom")
