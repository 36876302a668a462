package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/services"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithRequestIdentity attaches the identity Admission would have resolved
func WithRequestIdentity(req *http.Request, identity models.Identity) *http.Request {
	ctx := auth.WithRequestMeta(req.Context(), models.RequestMeta{Identity: identity, Path: req.URL.Path})
	return req.WithContext(ctx)
}

// WithSessionContext adds admin session claims to the request context
func WithSessionContext(req *http.Request, sessionID string) *http.Request {
	now := time.Now()
	claims := &models.SessionClaims{
		Subject:  "admin@example.com",
		Identity: "192.0.2.10",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(30 * time.Minute)),
		},
	}
	return req.WithContext(auth.WithSession(req.Context(), claims))
}

// DiscardLogger returns a logger that drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockLoginGate implements LoginGate for testing
type MockLoginGate struct {
	AdmitFunc         func(ctx context.Context, identity models.Identity) models.Decision
	OnAuthFailureFunc func(ctx context.Context, identity models.Identity) error
	OnAuthSuccessFunc func(ctx context.Context, identity models.Identity) error
	CSRFTokenFunc     func(ctx context.Context, sessionID string) (string, error)
}

func (m *MockLoginGate) Admit(ctx context.Context, identity models.Identity) models.Decision {
	if m.AdmitFunc != nil {
		return m.AdmitFunc(ctx, identity)
	}
	return models.Allow()
}

func (m *MockLoginGate) OnAuthFailure(ctx context.Context, identity models.Identity) error {
	if m.OnAuthFailureFunc != nil {
		return m.OnAuthFailureFunc(ctx, identity)
	}
	return nil
}

func (m *MockLoginGate) OnAuthSuccess(ctx context.Context, identity models.Identity) error {
	if m.OnAuthSuccessFunc != nil {
		return m.OnAuthSuccessFunc(ctx, identity)
	}
	return nil
}

func (m *MockLoginGate) CSRFToken(ctx context.Context, sessionID string) (string, error) {
	if m.CSRFTokenFunc != nil {
		return m.CSRFTokenFunc(ctx, sessionID)
	}
	return "csrf-" + sessionID, nil
}

// MockCredentialVerifier implements CredentialVerifier for testing
type MockCredentialVerifier struct {
	VerifyFunc func(email, password, totpCode string, now time.Time) bool
}

func (m *MockCredentialVerifier) Verify(email, password, totpCode string, now time.Time) bool {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(email, password, totpCode, now)
	}
	return false
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	EstablishFunc func(ctx context.Context, subject string, identity models.Identity) (*services.EstablishedSession, error)
	LogoutFunc    func(ctx context.Context, claims *models.SessionClaims) error
}

func (m *MockSessionService) Establish(ctx context.Context, subject string, identity models.Identity) (*services.EstablishedSession, error) {
	if m.EstablishFunc != nil {
		return m.EstablishFunc(ctx, subject, identity)
	}
	expires := time.Now().Add(30 * time.Minute)
	return &services.EstablishedSession{
		Token:     "session-token",
		CSRFToken: "csrf-token",
		Claims: &models.SessionClaims{
			Subject:          subject,
			Identity:         identity,
			RegisteredClaims: jwt.RegisteredClaims{ID: "session-1", ExpiresAt: jwt.NewNumericDate(expires)},
		},
	}, nil
}

func (m *MockSessionService) Logout(ctx context.Context, claims *models.SessionClaims) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, claims)
	}
	return nil
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	GetDashboardStatsFunc func(ctx context.Context) *services.DashboardStatsResponse
	GetRecentEventsFunc   func(ctx context.Context, limit int) (*services.DashboardEventsResponse, error)
}

func (m *MockAdminService) GetDashboardStats(ctx context.Context) *services.DashboardStatsResponse {
	if m.GetDashboardStatsFunc != nil {
		return m.GetDashboardStatsFunc(ctx)
	}
	return &services.DashboardStatsResponse{}
}

func (m *MockAdminService) GetRecentEvents(ctx context.Context, limit int) (*services.DashboardEventsResponse, error) {
	if m.GetRecentEventsFunc != nil {
		return m.GetRecentEventsFunc(ctx, limit)
	}
	return &services.DashboardEventsResponse{Events: []*models.SecurityEvent{}, Limit: limit}, nil
}

// MockBlockList implements BlockListInterface for testing
type MockBlockList struct {
	ListLiveFunc       func(ctx context.Context, limit int) ([]*models.BlockedIdentityRecord, error)
	BlockFunc          func(ctx context.Context, identity models.Identity, reason string) (*models.BlockedIdentityRecord, error)
	BlockPermanentFunc func(ctx context.Context, identity models.Identity, reason string) (*models.BlockedIdentityRecord, error)
	UnblockFunc        func(ctx context.Context, identity models.Identity) error
}

func (m *MockBlockList) ListLive(ctx context.Context, limit int) ([]*models.BlockedIdentityRecord, error) {
	if m.ListLiveFunc != nil {
		return m.ListLiveFunc(ctx, limit)
	}
	return nil, nil
}

func (m *MockBlockList) Block(ctx context.Context, identity models.Identity, reason string) (*models.BlockedIdentityRecord, error) {
	if m.BlockFunc != nil {
		return m.BlockFunc(ctx, identity, reason)
	}
	until := time.Now().Add(24 * time.Hour)
	return &models.BlockedIdentityRecord{Identity: identity, Reason: reason, BlockedUntil: &until, CreatedAt: time.Now()}, nil
}

func (m *MockBlockList) BlockPermanent(ctx context.Context, identity models.Identity, reason string) (*models.BlockedIdentityRecord, error) {
	if m.BlockPermanentFunc != nil {
		return m.BlockPermanentFunc(ctx, identity, reason)
	}
	return &models.BlockedIdentityRecord{Identity: identity, Reason: reason, CreatedAt: time.Now()}, nil
}

func (m *MockBlockList) Unblock(ctx context.Context, identity models.Identity) error {
	if m.UnblockFunc != nil {
		return m.UnblockFunc(ctx, identity)
	}
	return nil
}

// MockIdentityInspector implements IdentityInspector for testing
type MockIdentityInspector struct {
	InspectFunc func(ctx context.Context, identity models.Identity) (*services.IdentityReport, error)
}

func (m *MockIdentityInspector) Inspect(ctx context.Context, identity models.Identity) (*services.IdentityReport, error) {
	if m.InspectFunc != nil {
		return m.InspectFunc(ctx, identity)
	}
	return &services.IdentityReport{Identity: identity, State: models.StateClean}, nil
}

// MockTOTPProvisioner implements TOTPProvisioner for testing
type MockTOTPProvisioner struct {
	EnabledFunc        func() bool
	ProvisioningQRFunc func(size int) ([]byte, error)
}

func (m *MockTOTPProvisioner) Enabled() bool {
	if m.EnabledFunc != nil {
		return m.EnabledFunc()
	}
	return true
}

func (m *MockTOTPProvisioner) ProvisioningQR(size int) ([]byte, error) {
	if m.ProvisioningQRFunc != nil {
		return m.ProvisioningQRFunc(size)
	}
	return []byte("\x89PNG\r\n\x1a\n"), nil
}
