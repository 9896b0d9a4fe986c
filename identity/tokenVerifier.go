package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingEmail  = errors.New("token has no email claim")
	ErrTokenRevoked  = errors.New("token has been revoked")
	ErrAccountExists = errors.New("account already exists at identity provider")
)

// Identity is what a verified bearer token resolves to.
type Identity struct {
	Email   string
	Subject string
}

type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}

// FirebaseIssuer is the OIDC issuer for ID tokens of a Firebase project.
func FirebaseIssuer(projectID string) string {
	return "https://securetoken.google.com/" + projectID
}

// RevocationChecker reports whether tokens issued to subject at issuedAt are
// still honoured by the identity provider.
type RevocationChecker interface {
	CheckRevoked(ctx context.Context, subject string, issuedAt time.Time) error
}

// OIDCVerifier validates ID tokens against an OIDC provider's published keys.
// With a RevocationChecker it also rejects revoked tokens and tokens of
// disabled or deleted accounts.
type OIDCVerifier struct {
	verifier   *oidc.IDTokenVerifier
	revocation RevocationChecker
}

// NewOIDCVerifier discovers the provider at issuerURL. clientID is the expected
// audience; for Firebase it is the project id. revocation may be nil.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string, revocation RevocationChecker) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCVerifier{
		verifier:   provider.Verifier(&oidc.Config{ClientID: clientID}),
		revocation: revocation,
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to extract claims from token: %w", err)
	}
	if claims.Email == "" {
		return nil, ErrMissingEmail
	}

	if v.revocation != nil {
		if err := v.revocation.CheckRevoked(ctx, idToken.Subject, idToken.IssuedAt); err != nil {
			return nil, err
		}
	}

	return &Identity{Email: NormalizeEmail(claims.Email), Subject: idToken.Subject}, nil
}

// HMACVerifier validates HS256 tokens signed with a shared secret. It backs
// local development, where no identity provider is reachable.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (*Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return nil, ErrMissingEmail
	}
	subject, _ := claims.GetSubject()

	return &Identity{Email: NormalizeEmail(email), Subject: subject}, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
