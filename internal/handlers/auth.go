package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/services"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
)

// LoginGate is the part of the access gate the login flow drives
type LoginGate interface {
	Admit(ctx context.Context, identity models.Identity) models.Decision
	OnAuthFailure(ctx context.Context, identity models.Identity) error
	OnAuthSuccess(ctx context.Context, identity models.Identity) error
	CSRFToken(ctx context.Context, sessionID string) (string, error)
}

// CredentialVerifier checks the administrator's credentials
type CredentialVerifier interface {
	Verify(email, password, totpCode string, now time.Time) bool
}

// SessionServiceInterface defines the admin session lifecycle
type SessionServiceInterface interface {
	Establish(ctx context.Context, subject string, identity models.Identity) (*services.EstablishedSession, error)
	Logout(ctx context.Context, claims *models.SessionClaims) error
}

// FailurePadder evens out the response time of failed logins
type FailurePadder interface {
	PadFailure(ctx context.Context, start time.Time)
}

// AuthHandlerConfig holds the cookie and session settings for AuthHandler
type AuthHandlerConfig struct {
	Cookies        auth.CookieConfig
	SessionTimeout time.Duration
	Env            string
}

// AuthHandler handles admin login, logout and CSRF token requests
type AuthHandler struct {
	gate        LoginGate
	credentials CredentialVerifier
	sessions    SessionServiceInterface
	padder      FailurePadder
	config      AuthHandlerConfig
	logger      *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. padder may be nil.
func NewAuthHandler(gate LoginGate, credentials CredentialVerifier, sessions SessionServiceInterface, padder FailurePadder, config AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		gate:        gate,
		credentials: credentials,
		sessions:    sessions,
		padder:      padder,
		config:      config,
		logger:      logger,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
	TOTPCode string `json:"totp_code,omitempty" validate:"omitempty,numeric,len=6"`
}

// LoginResponse is returned after a successful login. The session token
// itself travels only in the httpOnly cookie.
type LoginResponse struct {
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CSRFTokenResponse carries the CSRF token of the current session
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// Login handles admin login
// @Summary Admin login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	identity := requestIdentity(r)

	// Denied identities get the same answer whichever threshold fired
	if decision := h.gate.Admit(ctx, identity); !decision.Allowed {
		h.logger.Info("login refused",
			slog.String("identity", identity.String()),
			slog.String("reason", string(decision.Reason)))
		pkghttp.WriteTooManyRequests(w, pkghttp.TooManyAttemptsMessage)
		return
	}

	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.TOTPCode = strings.TrimSpace(req.TOTPCode)

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if !h.credentials.Verify(req.Email, req.Password, req.TOTPCode, time.Now()) {
		if err := h.gate.OnAuthFailure(ctx, identity); err != nil {
			h.logger.Error("failed to record login failure",
				slog.String("identity", identity.String()),
				slog.Any("error", err))
		}
		h.logger.Info("admin login failed",
			slog.String("identity", identity.String()),
			pkglogger.RedactedAttr("email", pkglogger.SanitizedEmail(req.Email), h.config.Env))
		if h.padder != nil {
			h.padder.PadFailure(ctx, start)
		}
		pkghttp.WriteUnauthorized(w, "Invalid admin credentials.")
		return
	}

	if err := h.gate.OnAuthSuccess(ctx, identity); err != nil {
		h.logger.Error("failed to reset login attempts",
			slog.String("identity", identity.String()),
			slog.Any("error", err))
	}

	session, err := h.sessions.Establish(ctx, req.Email, identity)
	if err != nil {
		h.logger.Error("failed to establish admin session",
			slog.String("identity", identity.String()),
			slog.Any("error", err))
		pkghttp.WriteModelError(w, err)
		return
	}

	auth.SetSessionCookie(w, session.Token, h.config.SessionTimeout, h.config.Cookies)
	auth.SetCSRFTokenCookie(w, session.CSRFToken, h.config.SessionTimeout, h.config.Cookies)

	resp := LoginResponse{CSRFToken: session.CSRFToken}
	if session.Claims.ExpiresAt != nil {
		resp.ExpiresAt = session.Claims.ExpiresAt.Time.UTC()
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Logout ends the current admin session
// @Summary Admin logout
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	// cookies are cleared even if revocation fails
	auth.ClearSessionCookies(w, h.config.Cookies)

	if err := h.sessions.Logout(r.Context(), claims); err != nil {
		h.logger.Error("failed to revoke session on logout",
			slog.String("session_id", claims.SessionID()),
			slog.Any("error", err))
		pkghttp.WriteModelError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// CSRFToken returns the CSRF token bound to the current session
// @Summary Current CSRF token
// @Produce json
// @Success 200 {object} CSRFTokenResponse
// @Router /auth/csrf [get]
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	token, err := h.gate.CSRFToken(r.Context(), claims.SessionID())
	if err != nil {
		if !errors.Is(err, models.ErrStorageUnavailable) {
			h.logger.Error("failed to issue CSRF token",
				slog.String("session_id", claims.SessionID()),
				slog.Any("error", err))
		}
		pkghttp.WriteModelError(w, err)
		return
	}

	auth.SetCSRFTokenCookie(w, token, h.config.SessionTimeout, h.config.Cookies)
	pkghttp.WriteJSON(w, http.StatusOK, CSRFTokenResponse{CSRFToken: token})
}

// requestIdentity prefers the identity Admission resolved
func requestIdentity(r *http.Request) models.Identity {
	if meta := auth.RequestMetaFromContext(r.Context()); meta.Identity != "" {
		return meta.Identity
	}
	return pkghttp.ResolveIdentity(r)
}
