package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type resolverStub struct {
	lastInput LinkInput
	called    bool
	result    SessionToken
	err       error
}

func (r *resolverStub) ResolveIdentity(ctx context.Context, in LinkInput) (SessionToken, error) {
	r.called = true
	r.lastInput = in
	return r.result, r.err
}

type appleTestHarness struct {
	provider *AppleProvider
	resolver *resolverStub
	key      *rsa.PrivateKey
	kid      string
}

func newAppleTestHarness(t *testing.T) *appleTestHarness {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	const kid = "test-key-1"

	keys := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eBytes := big.NewInt(int64(key.PublicKey.E)).Bytes()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": kid,
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(eBytes),
			}},
		})
	}))
	t.Cleanup(keys.Close)

	resolver := &resolverStub{result: SessionToken{Token: "new-session-token"}}
	provider := &AppleProvider{
		cfg: AppleConfig{
			ClientIDs: []string{"com.ecopoints.web", "com.ecopoints.ios"},
		},
		keysURL:  keys.URL,
		client:   &http.Client{Timeout: time.Second},
		resolver: resolver,
		now:      time.Now,
	}

	return &appleTestHarness{provider: provider, resolver: resolver, key: key, kid: kid}
}

func (h *appleTestHarness) signToken(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(h.key)
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return signed
}

func validAppleClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            AppleIssuer,
		"aud":            "com.ecopoints.ios",
		"exp":            time.Now().Add(time.Hour).Unix(),
		"sub":            "001234.abcdef",
		"email":          "apple-user@example.com",
		"email_verified": "true",
	}
}

func TestAppleCreateSessionValidToken(t *testing.T) {
	h := newAppleTestHarness(t)
	idToken := h.signToken(t, h.kid, validAppleClaims())

	st, err := h.provider.CreateSession(context.Background(), ProviderInput{
		IDToken: idToken,
		Name:    "Apple User",
	})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if st.Token != "new-session-token" {
		t.Fatalf("expected resolver session, got %+v", st)
	}

	identity := h.resolver.lastInput.Identity
	if identity.Provider != ProviderApple || identity.ProviderUserID != "001234.abcdef" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if !identity.EmailVerified {
		t.Fatal("expected email_verified string claim to be honored")
	}
	if identity.Name != "Apple User" {
		t.Fatalf("expected supplied name to be used, got %q", identity.Name)
	}
}

func TestAppleCreateSessionWrongAudience(t *testing.T) {
	h := newAppleTestHarness(t)
	claims := validAppleClaims()
	claims["aud"] = "com.attacker.app"
	idToken := h.signToken(t, h.kid, claims)

	_, err := h.provider.CreateSession(context.Background(), ProviderInput{IDToken: idToken})
	var csErr *CreateSessionError
	if !errors.As(err, &csErr) {
		t.Fatalf("expected CreateSessionError, got %v", err)
	}
	if csErr.Reason != "invalid payload" {
		t.Fatalf("expected generic invalid payload, got %q", csErr.Reason)
	}
	if h.resolver.called {
		t.Fatal("expected resolver not to run for a rejected token")
	}
}

func TestAppleCreateSessionExpiredToken(t *testing.T) {
	h := newAppleTestHarness(t)
	claims := validAppleClaims()
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	idToken := h.signToken(t, h.kid, claims)

	_, err := h.provider.CreateSession(context.Background(), ProviderInput{IDToken: idToken})
	var csErr *CreateSessionError
	if !errors.As(err, &csErr) {
		t.Fatalf("expected CreateSessionError, got %v", err)
	}
	if csErr.Reason != "invalid payload" {
		t.Fatalf("expected generic invalid payload, got %q", csErr.Reason)
	}
}

func TestAppleCreateSessionWrongIssuer(t *testing.T) {
	h := newAppleTestHarness(t)
	claims := validAppleClaims()
	claims["iss"] = "https://evil.example.com"
	idToken := h.signToken(t, h.kid, claims)

	_, err := h.provider.CreateSession(context.Background(), ProviderInput{IDToken: idToken})
	var csErr *CreateSessionError
	if !errors.As(err, &csErr) || csErr.Reason != "invalid payload" {
		t.Fatalf("expected generic invalid payload, got %v", err)
	}
}

func TestAppleCreateSessionUnknownKeyID(t *testing.T) {
	h := newAppleTestHarness(t)
	idToken := h.signToken(t, "unknown-kid", validAppleClaims())

	_, err := h.provider.CreateSession(context.Background(), ProviderInput{IDToken: idToken})
	var csErr *CreateSessionError
	if !errors.As(err, &csErr) {
		t.Fatalf("expected CreateSessionError, got %v", err)
	}
	if csErr.Reason != "no public key" {
		t.Fatalf("expected no public key failure, got %q", csErr.Reason)
	}
}

func TestAppleCreateSessionTamperedSignature(t *testing.T) {
	h := newAppleTestHarness(t)
	idToken := h.signToken(t, h.kid, validAppleClaims())

	// Corrupt the signature segment.
	parts := strings.Split(idToken, ".")
	parts[2] = base64.RawURLEncoding.EncodeToString([]byte("forged"))

	_, err := h.provider.CreateSession(context.Background(), ProviderInput{IDToken: strings.Join(parts, ".")})
	var csErr *CreateSessionError
	if !errors.As(err, &csErr) || csErr.Reason != "invalid payload" {
		t.Fatalf("expected generic invalid payload, got %v", err)
	}
}

func TestAppleCreateSessionNameFallsBackToMailbox(t *testing.T) {
	h := newAppleTestHarness(t)
	idToken := h.signToken(t, h.kid, validAppleClaims())

	if _, err := h.provider.CreateSession(context.Background(), ProviderInput{IDToken: idToken}); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if got := h.resolver.lastInput.Identity.Name; got != "apple-user" {
		t.Fatalf("expected mailbox fallback name, got %q", got)
	}
}

func TestAppleAuthorizationURLUsesFormPost(t *testing.T) {
	provider := NewAppleProvider(AppleConfig{
		ClientIDs:   []string{"com.ecopoints.web"},
		RedirectURL: "https://api.ecopoints.com/oauth/apple/callback",
	}, nil)

	parsed, err := url.Parse(provider.AuthorizationURL("state123", ""))
	if err != nil {
		t.Fatalf("failed to parse auth URL: %v", err)
	}
	query := parsed.Query()
	if query.Get("response_mode") != "form_post" {
		t.Fatalf("expected form_post response mode, got %q", query.Get("response_mode"))
	}
	if query.Get("client_id") != "com.ecopoints.web" {
		t.Fatalf("expected web client id, got %q", query.Get("client_id"))
	}
	if query.Get("state") != "state123" {
		t.Fatalf("expected state to round-trip, got %q", query.Get("state"))
	}
}
