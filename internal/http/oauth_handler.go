package http

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"ecopoints/internal/auth"
)

// Transient flow state lives in short-lived httpOnly cookies: the per
// provider CSRF state, the PKCE verifier (google), the post-login
// redirect target, and optionally the session of an already signed-in
// user linking a new identity. All of them are cleared on every
// callback, success or failure, so a callback cannot be replayed.
const (
	flowCookieTTL = 10 * time.Minute

	redirectCookieName     = "redirect"
	sessionTokenCookieName = "sessionToken"

	sessionTokenCookieTTL = 30 * 24 * time.Hour
)

func stateCookieName(provider auth.Provider) string {
	return string(provider) + "_oauth_state"
}

func verifierCookieName(provider auth.Provider) string {
	return string(provider) + "_oauth_code_verifier"
}

// OAuthHandler drives the redirect-based authorization-code flow and
// the direct native-SDK login for all providers.
type OAuthHandler struct {
	providers    map[auth.Provider]auth.ProviderAdapter
	sessions     *auth.Service
	logger       *slog.Logger
	secureCookie bool
	devMode      bool
	publicHost   string
}

// NewOAuthHandler creates an OAuthHandler. publicBaseURL is the
// externally visible base of this API; its host anchors the Apple
// origin allow-list.
func NewOAuthHandler(providers map[auth.Provider]auth.ProviderAdapter, sessions *auth.Service, publicBaseURL, env string, logger *slog.Logger) *OAuthHandler {
	publicHost := ""
	if parsed, err := url.Parse(publicBaseURL); err == nil {
		publicHost = parsed.Host
	}
	devMode := strings.EqualFold(env, "development")
	return &OAuthHandler{
		providers:    providers,
		sessions:     sessions,
		logger:       logger,
		secureCookie: !devMode,
		devMode:      devMode,
		publicHost:   publicHost,
	}
}

func (h *OAuthHandler) provider(r *http.Request) (auth.Provider, auth.ProviderAdapter, bool) {
	provider, ok := auth.ParseProvider(chi.URLParam(r, "provider"))
	if !ok {
		return "", nil, false
	}
	adapter, ok := h.providers[provider]
	return provider, adapter, ok
}

// Begin handles GET /oauth/{provider}.
// Mints state (and a PKCE verifier for google), stashes the transient
// flow state in cookies, and redirects to the provider's consent page.
func (h *OAuthHandler) Begin(w http.ResponseWriter, r *http.Request) {
	provider, adapter, ok := h.provider(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error("generate state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var codeVerifier string
	if provider.RequiresPKCE() {
		codeVerifier = oauth2.GenerateVerifier()
		h.setFlowCookie(w, verifierCookieName(provider), codeVerifier)
	}
	h.setFlowCookie(w, stateCookieName(provider), state)

	redirect := r.URL.Query().Get("redirect")
	if !isValidRedirectTarget(redirect) {
		redirect = "/"
	}
	h.setFlowCookie(w, redirectCookieName, redirect)

	if sessionToken := r.URL.Query().Get("sessionToken"); sessionToken != "" {
		h.setFlowCookie(w, sessionTokenCookieName, sessionToken)
	}

	http.Redirect(w, r, adapter.AuthorizationURL(state, codeVerifier), http.StatusFound)
}

// Callback handles GET|POST /oauth/{provider}/callback.
// Apple responds with a form POST (response_mode=form_post); the other
// providers use GET with query parameters.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider, adapter, ok := h.provider(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}

	if provider == auth.ProviderApple && !h.appleOriginAllowed(r) {
		h.logger.Warn("apple callback: origin rejected", "origin", r.Header.Get("Origin"))
		writeError(w, http.StatusForbidden, "origin not allowed")
		return
	}

	stashedState := cookieValue(r, stateCookieName(provider))
	stashedVerifier := cookieValue(r, verifierCookieName(provider))
	stashedRedirect := cookieValue(r, redirectCookieName)
	stashedSessionToken := cookieValue(r, sessionTokenCookieName)

	// Transient cookies are single use regardless of outcome.
	h.clearFlowCookies(w, provider)

	state, code := callbackParams(r)

	switch {
	case state == "" || code == "":
		h.invalidRequest(w, "missing state or code")
		return
	case stashedState == "":
		h.invalidRequest(w, "missing state cookie")
		return
	case subtle.ConstantTimeCompare([]byte(state), []byte(stashedState)) != 1:
		h.invalidRequest(w, "state mismatch")
		return
	case provider.RequiresPKCE() && stashedVerifier == "":
		h.invalidRequest(w, "missing code verifier cookie")
		return
	}

	st, err := adapter.CreateSession(r.Context(), auth.ProviderInput{
		Code:         code,
		CodeVerifier: stashedVerifier,
		SessionToken: stashedSessionToken,
	})
	if err != nil {
		var csErr *auth.CreateSessionError
		if errors.As(err, &csErr) {
			writeError(w, http.StatusBadRequest, csErr.Reason)
			return
		}
		h.logger.Error("oauth callback", "provider", provider, "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
		return
	}

	if stashedRedirect == "" || !isValidRedirectTarget(stashedRedirect) {
		stashedRedirect = "/"
	}
	target := appendTokenParam(stashedRedirect, st.Token)

	http.SetCookie(w, &http.Cookie{
		Name:     sessionTokenCookieName,
		Value:    st.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTokenCookieTTL.Seconds()),
	})

	h.logger.Info("oauth login", "provider", provider, "user_id", st.Session.UserID)
	http.Redirect(w, r, target, http.StatusFound)
}

// DirectLogin handles POST /oauth/login/{provider}.
// Native mobile SDKs run the OAuth dance on-device and hand over the
// resulting identity token; no state/cookie round trip is involved.
func (h *OAuthHandler) DirectLogin(w http.ResponseWriter, r *http.Request) {
	provider, adapter, ok := h.provider(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}

	var payload struct {
		IDToken      string `json:"idToken"`
		User         string `json:"user,omitempty"`
		SessionToken string `json:"sessionToken,omitempty"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeDecodeError(w, err)
		return
	}
	if payload.IDToken == "" {
		writeError(w, http.StatusBadRequest, "missing idToken")
		return
	}

	st, err := adapter.CreateSession(r.Context(), auth.ProviderInput{
		IDToken:      payload.IDToken,
		Name:         payload.User,
		SessionToken: payload.SessionToken,
	})
	if err != nil {
		var csErr *auth.CreateSessionError
		if errors.As(err, &csErr) {
			writeError(w, http.StatusBadRequest, csErr.Reason)
			return
		}
		h.logger.Error("oauth direct login", "provider", provider, "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": st.Token})
}

// appleOriginAllowed checks the Origin header against the allow-list
// of the configured public host and Apple's own origin. Development
// mode tolerates a missing Origin header.
func (h *OAuthHandler) appleOriginAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return h.devMode
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return parsed.Host == h.publicHost || origin == auth.AppleIssuer
}

// invalidRequest reports a failed callback. The concrete reason is
// only echoed outside production to avoid aiding CSRF probing.
func (h *OAuthHandler) invalidRequest(w http.ResponseWriter, detail string) {
	h.logger.Warn("oauth callback rejected", "detail", detail)
	if h.devMode {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid oauth request", "detail": detail})
		return
	}
	writeError(w, http.StatusBadRequest, "invalid oauth request")
}

func (h *OAuthHandler) setFlowCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(flowCookieTTL.Seconds()),
	})
}

func (h *OAuthHandler) clearFlowCookies(w http.ResponseWriter, provider auth.Provider) {
	for _, name := range []string{
		stateCookieName(provider),
		verifierCookieName(provider),
		redirectCookieName,
		sessionTokenCookieName,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   h.secureCookie,
			MaxAge:   -1,
		})
	}
}

// callbackParams reads state and code from the query (GET) or the form
// body (POST, Apple's form_post response mode).
func callbackParams(r *http.Request) (state, code string) {
	if r.Method == http.MethodPost {
		_ = r.ParseForm()
		return r.PostFormValue("state"), r.PostFormValue("code")
	}
	return r.URL.Query().Get("state"), r.URL.Query().Get("code")
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// isValidRedirectTarget accepts relative paths and absolute http(s)
// URLs; anything else (javascript:, protocol-relative tricks) is
// replaced with "/".
func isValidRedirectTarget(target string) bool {
	if target == "" {
		return false
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return false
	}
	if parsed.Scheme == "" {
		return strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//")
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}

// appendTokenParam adds the session token as a query parameter to the
// redirect target.
func appendTokenParam(target, token string) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return "/?token=" + url.QueryEscape(token)
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
