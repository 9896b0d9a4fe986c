package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://securetoken.google.com/city-fix"
	testAudience = "city-fix"
)

type fakeRevocation struct {
	err      error
	subject  string
	issuedAt time.Time
	calls    int
}

func (f *fakeRevocation) CheckRevoked(_ context.Context, subject string, issuedAt time.Time) error {
	f.calls++
	f.subject = subject
	f.issuedAt = issuedAt
	return f.err
}

func newTestOIDCVerifier(t *testing.T, revocation RevocationChecker) (*OIDCVerifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{key.Public()}}
	return &OIDCVerifier{
		verifier:   oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: testAudience}),
		revocation: revocation,
	}, key
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, issuedAt time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"sub":   "uid-rina",
		"email": "Rina@Example.com",
		"iat":   issuedAt.Unix(),
		"exp":   issuedAt.Add(time.Hour).Unix(),
	}).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return raw
}

func TestOIDCVerifierChecksRevocation(t *testing.T) {
	revocation := &fakeRevocation{}
	verifier, key := newTestOIDCVerifier(t, revocation)
	issuedAt := time.Now().Add(-time.Minute).Truncate(time.Second)

	id, err := verifier.Verify(context.Background(), signIDToken(t, key, issuedAt))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Email != "rina@example.com" || id.Subject != "uid-rina" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if revocation.calls != 1 || revocation.subject != "uid-rina" || !revocation.issuedAt.Equal(issuedAt) {
		t.Fatalf("expected one revocation check for uid-rina at %v, got %+v", issuedAt, revocation)
	}
}

func TestOIDCVerifierRejectsRevokedToken(t *testing.T) {
	verifier, key := newTestOIDCVerifier(t, &fakeRevocation{err: ErrTokenRevoked})

	_, err := verifier.Verify(context.Background(), signIDToken(t, key, time.Now().Add(-time.Minute)))
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestOIDCVerifierSkipsRevocationOnBadSignature(t *testing.T) {
	revocation := &fakeRevocation{}
	verifier, _ := newTestOIDCVerifier(t, revocation)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), signIDToken(t, other, time.Now())); err == nil {
		t.Fatal("expected a token signed by another key to fail")
	}
	if revocation.calls != 0 {
		t.Fatalf("expected no revocation lookup for an unverified token, got %d", revocation.calls)
	}
}

type fakeAccounts struct {
	record *auth.UserRecord
	err    error
}

func (f fakeAccounts) GetUser(context.Context, string) (*auth.UserRecord, error) {
	return f.record, f.err
}

func TestFirebaseRevocationChecker(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	iatMillis := issuedAt.Unix() * 1000

	cases := []struct {
		name    string
		lookup  fakeAccounts
		revoked bool
		failed  bool
	}{
		{"valid", fakeAccounts{record: &auth.UserRecord{TokensValidAfterMillis: iatMillis - 1000}}, false, false},
		{"issued in the revocation second", fakeAccounts{record: &auth.UserRecord{TokensValidAfterMillis: iatMillis}}, false, false},
		{"revoked after issue", fakeAccounts{record: &auth.UserRecord{TokensValidAfterMillis: iatMillis + 1}}, true, false},
		{"disabled", fakeAccounts{record: &auth.UserRecord{Disabled: true}}, true, false},
		{"lookup failure", fakeAccounts{err: errors.New("unavailable")}, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checker := &FirebaseRevocationChecker{users: tc.lookup}
			err := checker.CheckRevoked(context.Background(), "uid-rina", issuedAt)
			switch {
			case tc.revoked:
				if !errors.Is(err, ErrTokenRevoked) {
					t.Fatalf("expected ErrTokenRevoked, got %v", err)
				}
			case tc.failed:
				if err == nil || errors.Is(err, ErrTokenRevoked) {
					t.Fatalf("expected a lookup error, got %v", err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
		})
	}
}
