package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"ecopoints/internal/auth"
)

// AuthHandler exposes email/password sign-up, sign-in, and logout.
type AuthHandler struct {
	sessions *auth.Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(sessions *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		validate: validator.New(),
		logger:   logger,
	}
}

// SignUp handles POST /auth/signup.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string `json:"name" validate:"required,max=120"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8,max=128"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid signup payload")
		return
	}

	st, err := h.sessions.SignUp(r.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrConflict) {
			// Same shape as any other validation failure; no account
			// existence oracle.
			writeError(w, http.StatusBadRequest, "could not create account")
			return
		}
		h.logger.Error("signup", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": st.Token})
}

// SignIn handles POST /auth/login.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid credentials")
		return
	}

	st, err := h.sessions.SignIn(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, "invalid credentials")
			return
		}
		h.logger.Error("signin", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": st.Token})
}

// Logout handles POST /auth/logout. The bearer token must still be
// valid: logging out an already-dead session reports 400.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing bearer token")
		return
	}

	session, _, err := h.sessions.ValidateSessionToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) || errors.Is(err, auth.ErrSessionExpired) {
			writeError(w, http.StatusBadRequest, "invalid session")
			return
		}
		h.logger.Error("logout", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
		return
	}

	if err := h.sessions.InvalidateSession(r.Context(), session.ID); err != nil {
		h.logger.Error("logout", "error", err)
		writeError(w, http.StatusInternalServerError, "unexpected error")
		return
	}

	w.WriteHeader(http.StatusOK)
}
