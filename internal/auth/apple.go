package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// AppleIssuer is the iss claim Apple stamps on identity tokens and
	// the Origin its form_post callbacks arrive from.
	AppleIssuer = "https://appleid.apple.com"

	appleAuthURL  = "https://appleid.apple.com/auth/authorize"
	appleTokenURL = "https://appleid.apple.com/auth/token"
	appleKeysURL  = "https://appleid.apple.com/auth/keys"
)

var errNoPublicKey = errors.New("no matching apple public key")

// AppleConfig carries the Sign in with Apple credentials. ClientIDs
// lists every audience an identity token may be issued for: the web
// services id first, then native app bundle ids.
type AppleConfig struct {
	ClientIDs   []string
	TeamID      string
	KeyID       string
	PrivateKey  *ecdsa.PrivateKey
	RedirectURL string
}

// ParseApplePrivateKey decodes the PEM-encoded .p8 signing key Apple
// issues for Sign in with Apple.
func ParseApplePrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("apple private key: no PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("apple private key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("apple private key: not an EC key")
	}
	return ecKey, nil
}

// AppleProvider implements Sign in with Apple. The redirect flow uses
// response_mode=form_post; the native flow supplies the identity token
// obtained on-device. Either way the identity token's signature is
// verified against Apple's published JWKS before any claim is trusted.
type AppleProvider struct {
	cfg      AppleConfig
	tokenURL string
	keysURL  string
	client   *http.Client
	resolver IdentityResolver
	now      func() time.Time
}

// NewAppleProvider builds the adapter.
func NewAppleProvider(cfg AppleConfig, resolver IdentityResolver) *AppleProvider {
	return &AppleProvider{
		cfg:      cfg,
		tokenURL: appleTokenURL,
		keysURL:  appleKeysURL,
		client:   &http.Client{Timeout: providerTimeout},
		resolver: resolver,
		now:      time.Now,
	}
}

// AuthorizationURL builds the consent URL. Apple posts the callback as
// a form (response_mode=form_post) because the name/email scopes are
// requested.
func (a *AppleProvider) AuthorizationURL(state, _ string) string {
	query := url.Values{
		"client_id":     {a.webClientID()},
		"redirect_uri":  {a.cfg.RedirectURL},
		"response_type": {"code"},
		"response_mode": {"form_post"},
		"scope":         {"name email"},
		"state":         {state},
	}
	return appleAuthURL + "?" + query.Encode()
}

// CreateSession verifies an Apple credential and resolves the identity
// onto a local account.
func (a *AppleProvider) CreateSession(ctx context.Context, in ProviderInput) (SessionToken, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	idToken := in.IDToken
	if idToken == "" {
		exchanged, err := a.exchangeCode(ctx, in.Code)
		if err != nil {
			return SessionToken{}, createSessionErrorf("code exchange failed")
		}
		idToken = exchanged
	}

	identity, err := a.verifyIdentityToken(ctx, idToken)
	if err != nil {
		if errors.Is(err, errNoPublicKey) {
			return SessionToken{}, createSessionErrorf("no public key")
		}
		return SessionToken{}, createSessionErrorf("invalid payload")
	}

	if identity.Name == "" {
		identity.Name = in.Name
	}
	if identity.Name == "" {
		// Apple only delivers the name on first authorization; fall
		// back to the mailbox so the account is not nameless.
		identity.Name, _, _ = strings.Cut(identity.Email, "@")
	}

	return a.resolver.ResolveIdentity(ctx, LinkInput{
		Identity:     identity,
		SessionToken: in.SessionToken,
	})
}

func (a *AppleProvider) webClientID() string {
	if len(a.cfg.ClientIDs) == 0 {
		return ""
	}
	return a.cfg.ClientIDs[0]
}

// clientSecret mints the ES256-signed JWT Apple requires in place of a
// static OAuth client secret.
func (a *AppleProvider) clientSecret() (string, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": a.cfg.TeamID,
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
		"aud": AppleIssuer,
		"sub": a.webClientID(),
	})
	token.Header["kid"] = a.cfg.KeyID

	secret, err := token.SignedString(a.cfg.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign client secret: %w", err)
	}
	return secret, nil
}

func (a *AppleProvider) exchangeCode(ctx context.Context, code string) (string, error) {
	secret, err := a.clientSecret()
	if err != nil {
		return "", err
	}

	form := url.Values{
		"client_id":     {a.webClientID()},
		"client_secret": {secret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {a.cfg.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("apple token endpoint: status %d", resp.StatusCode)
	}

	var payload struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.IDToken == "" {
		return "", errors.New("apple token endpoint: no id_token")
	}
	return payload.IDToken, nil
}

// verifyIdentityToken checks the token signature against Apple's
// current JWKS, then validates issuer, audience, and expiry. Signature
// verification happens first; the post-checks share one generic
// failure so a caller cannot tell which check tripped.
func (a *AppleProvider) verifyIdentityToken(ctx context.Context, idToken string) (Identity, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(idToken, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errNoPublicKey
		}
		return a.fetchPublicKey(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, errNoPublicKey) {
			return Identity{}, errNoPublicKey
		}
		return Identity{}, fmt.Errorf("verify identity token: %w", err)
	}

	issuer, err := claims.GetIssuer()
	if err != nil || issuer != AppleIssuer {
		return Identity{}, errors.New("identity token: bad issuer")
	}

	audience, err := claims.GetAudience()
	if err != nil || !a.audienceAllowed(audience) {
		return Identity{}, errors.New("identity token: bad audience")
	}

	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil || !a.now().Before(expiry.Time) {
		return Identity{}, errors.New("identity token: expired")
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" || email == "" {
		return Identity{}, errors.New("identity token: incomplete claims")
	}

	return Identity{
		Provider:       ProviderApple,
		ProviderUserID: sub,
		Email:          email,
		EmailVerified:  appleBoolClaim(claims["email_verified"]),
	}, nil
}

func (a *AppleProvider) audienceAllowed(audience jwt.ClaimStrings) bool {
	for _, aud := range audience {
		for _, id := range a.cfg.ClientIDs {
			if aud == id {
				return true
			}
		}
	}
	return false
}

// appleBoolClaim handles Apple's habit of sending boolean claims as
// either a JSON bool or the strings "true"/"false".
func appleBoolClaim(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

type appleJWKS struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// fetchPublicKey retrieves Apple's current key set and returns the RSA
// key matching kid. No match fails closed with errNoPublicKey.
func (a *AppleProvider) fetchPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.keysURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("apple keys endpoint: status %d", resp.StatusCode)
	}

	var jwks appleJWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, err
	}

	for _, key := range jwks.Keys {
		if key.Kid != kid || key.Kty != "RSA" {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(key.N)
		if err != nil {
			return nil, fmt.Errorf("apple key %s: %w", kid, err)
		}
		e, err := base64.RawURLEncoding.DecodeString(key.E)
		if err != nil {
			return nil, fmt.Errorf("apple key %s: %w", kid, err)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}, nil
	}

	return nil, errNoPublicKey
}
