package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

type AccountRequest struct {
	Email    string
	Password string
	Name     string
	PhotoURL string
}

// AccountProvisioner creates and removes accounts at the identity provider.
type AccountProvisioner interface {
	CreateAccount(ctx context.Context, req AccountRequest) (uid string, err error)
	DeleteAccount(ctx context.Context, uid string) error
}

// NewFirebaseAuth builds an admin auth client for projectID. An empty
// credentialsFile falls back to application default credentials.
func NewFirebaseAuth(ctx context.Context, projectID, credentialsFile string) (*auth.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth client: %w", err)
	}
	return client, nil
}

type FirebaseProvisioner struct {
	client *auth.Client
}

func NewFirebaseProvisioner(client *auth.Client) *FirebaseProvisioner {
	return &FirebaseProvisioner{client: client}
}

func (p *FirebaseProvisioner) CreateAccount(ctx context.Context, req AccountRequest) (string, error) {
	params := (&auth.UserToCreate{}).
		Email(req.Email).
		Password(req.Password).
		DisplayName(req.Name)
	if req.PhotoURL != "" {
		params = params.PhotoURL(req.PhotoURL)
	}

	record, err := p.client.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return "", ErrAccountExists
		}
		return "", err
	}
	return record.UID, nil
}

func (p *FirebaseProvisioner) DeleteAccount(ctx context.Context, uid string) error {
	return p.client.DeleteUser(ctx, uid)
}

// FirebaseRevocationChecker rejects tokens issued before the account's
// refresh tokens were revoked, and tokens of disabled or deleted accounts.
type FirebaseRevocationChecker struct {
	users accountLookup
}

type accountLookup interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

func NewFirebaseRevocationChecker(client *auth.Client) *FirebaseRevocationChecker {
	return &FirebaseRevocationChecker{users: client}
}

func (c *FirebaseRevocationChecker) CheckRevoked(ctx context.Context, subject string, issuedAt time.Time) error {
	record, err := c.users.GetUser(ctx, subject)
	if auth.IsUserNotFound(err) {
		return fmt.Errorf("%w: account no longer exists", ErrTokenRevoked)
	}
	if err != nil {
		return fmt.Errorf("failed to look up account: %w", err)
	}
	if record.Disabled {
		return fmt.Errorf("%w: account is disabled", ErrTokenRevoked)
	}
	// TokensValidAfterMillis has millisecond precision, iat only seconds.
	if issuedAt.Unix()*1000 < record.TokensValidAfterMillis {
		return ErrTokenRevoked
	}
	return nil
}

// LocalProvisioner stands in for the identity provider when tokens are HS256
// signed locally. It only tracks which emails it has handed out.
type LocalProvisioner struct {
	mu       sync.Mutex
	accounts map[string]string
}

func NewLocalProvisioner() *LocalProvisioner {
	return &LocalProvisioner{accounts: map[string]string{}}
}

func (p *LocalProvisioner) CreateAccount(_ context.Context, req AccountRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, email := range p.accounts {
		if email == req.Email {
			return "", ErrAccountExists
		}
	}
	uid := uuid.NewString()
	p.accounts[uid] = req.Email
	return uid, nil
}

func (p *LocalProvisioner) DeleteAccount(_ context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.accounts, uid)
	return nil
}

// Has reports whether an account with uid is live.
func (p *LocalProvisioner) Has(uid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.accounts[uid]
	return ok
}
