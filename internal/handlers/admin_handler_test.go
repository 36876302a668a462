package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/handlers"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adminMocks struct {
	service   *handlers.MockAdminService
	blocks    *handlers.MockBlockList
	inspector *handlers.MockIdentityInspector
	totp      *handlers.MockTOTPProvisioner
}

func newAdminMocks() *adminMocks {
	return &adminMocks{
		service:   &handlers.MockAdminService{},
		blocks:    &handlers.MockBlockList{},
		inspector: &handlers.MockIdentityInspector{},
		totp:      &handlers.MockTOTPProvisioner{},
	}
}

// router mounts the handler the way routes.go does so that URL params resolve
func (m *adminMocks) router() http.Handler {
	h := handlers.NewAdminHandler(m.service, m.blocks, m.inspector, m.totp, handlers.DiscardLogger())
	r := chi.NewRouter()
	r.Get("/admin/dashboard/stats", h.GetDashboardStats)
	r.Get("/admin/dashboard/events", h.GetRecentEvents)
	r.Get("/admin/blocks", h.ListBlocks)
	r.Post("/admin/blocks", h.CreateBlock)
	r.Delete("/admin/blocks/{identity}", h.DeleteBlock)
	r.Get("/admin/identities/{identity}", h.InspectIdentity)
	r.Get("/admin/totp/qr", h.TOTPQRCode)
	return r
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetDashboardStats_Returns200(t *testing.T) {
	m := newAdminMocks()
	m.service.GetDashboardStatsFunc = func(ctx context.Context) *services.DashboardStatsResponse {
		return &services.DashboardStatsResponse{TotalEvents: 120, LiveBlocks: 3, RecentAttempts: 7, WindowSeconds: 3600}
	}

	w := serve(m.router(), httptest.NewRequest("GET", "/admin/dashboard/stats", nil))

	var resp services.DashboardStatsResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, int64(120), resp.TotalEvents)
	assert.Equal(t, int64(3), resp.LiveBlocks)
	assert.Equal(t, int64(7), resp.RecentAttempts)
}

func TestGetRecentEvents_PassesLimit(t *testing.T) {
	tests := []struct {
		query     string
		wantLimit int
	}{
		{"", 0},
		{"?limit=5", 5},
		{"?limit=abc", 0},
		{"?limit=1000", 1000},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			m := newAdminMocks()
			var got int
			m.service.GetRecentEventsFunc = func(ctx context.Context, limit int) (*services.DashboardEventsResponse, error) {
				got = limit
				return &services.DashboardEventsResponse{Events: []*models.SecurityEvent{}, Limit: 10}, nil
			}

			w := serve(m.router(), httptest.NewRequest("GET", "/admin/dashboard/events"+tt.query, nil))
			handlers.AssertJSONResponse(t, w, http.StatusOK, nil)
			assert.Equal(t, tt.wantLimit, got)
		})
	}
}

func TestGetRecentEvents_StorageError_Returns503(t *testing.T) {
	m := newAdminMocks()
	m.service.GetRecentEventsFunc = func(ctx context.Context, limit int) (*services.DashboardEventsResponse, error) {
		return nil, errors.Join(models.ErrStorageUnavailable, errors.New("down"))
	}

	w := serve(m.router(), httptest.NewRequest("GET", "/admin/dashboard/events", nil))
	handlers.AssertErrorResponse(t, w, http.StatusServiceUnavailable, "service_unavailable")
}

func TestListBlocks(t *testing.T) {
	m := newAdminMocks()
	var gotLimit int
	m.blocks.ListLiveFunc = func(ctx context.Context, limit int) ([]*models.BlockedIdentityRecord, error) {
		gotLimit = limit
		return []*models.BlockedIdentityRecord{{Identity: "192.0.2.1", Reason: "manual"}}, nil
	}

	w := serve(m.router(), httptest.NewRequest("GET", "/admin/blocks", nil))

	var resp handlers.BlockListResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 100, gotLimit)

	serve(m.router(), httptest.NewRequest("GET", "/admin/blocks?limit=9999", nil))
	assert.Equal(t, 500, gotLimit)
}

func TestListBlocks_EmptyIsArray(t *testing.T) {
	w := serve(newAdminMocks().router(), httptest.NewRequest("GET", "/admin/blocks", nil))
	handlers.AssertJSONResponse(t, w, http.StatusOK, nil)
	assert.Contains(t, w.Body.String(), `"blocks":[]`)
}

func TestCreateBlock(t *testing.T) {
	t.Run("temporary", func(t *testing.T) {
		m := newAdminMocks()
		var got models.Identity
		m.blocks.BlockFunc = func(ctx context.Context, identity models.Identity, reason string) (*models.BlockedIdentityRecord, error) {
			got = identity
			until := time.Now().Add(24 * time.Hour)
			return &models.BlockedIdentityRecord{Identity: identity, Reason: reason, BlockedUntil: &until}, nil
		}

		req := handlers.NewTestRequest(t, "POST", "/admin/blocks", handlers.BlockRequest{Identity: "::ffff:198.51.100.4", Reason: "scanner"})
		w := serve(m.router(), req)

		var resp models.BlockedIdentityRecord
		handlers.AssertJSONResponse(t, w, http.StatusCreated, &resp)
		assert.Equal(t, models.Identity("198.51.100.4"), got, "identity is normalized")
		assert.NotNil(t, resp.BlockedUntil)
	})

	t.Run("permanent", func(t *testing.T) {
		m := newAdminMocks()
		permanent := false
		m.blocks.BlockPermanentFunc = func(ctx context.Context, identity models.Identity, reason string) (*models.BlockedIdentityRecord, error) {
			permanent = true
			return &models.BlockedIdentityRecord{Identity: identity, Reason: reason}, nil
		}

		req := handlers.NewTestRequest(t, "POST", "/admin/blocks", handlers.BlockRequest{Identity: "2001:db8::1", Reason: "abuse", Permanent: true})
		w := serve(m.router(), req)

		var resp models.BlockedIdentityRecord
		handlers.AssertJSONResponse(t, w, http.StatusCreated, &resp)
		assert.True(t, permanent)
		assert.Nil(t, resp.BlockedUntil)
	})

	t.Run("validation", func(t *testing.T) {
		bodies := []handlers.BlockRequest{
			{Identity: "", Reason: "x"},
			{Identity: "not-an-ip", Reason: "x"},
			{Identity: "192.0.2.1", Reason: ""},
		}
		for _, body := range bodies {
			w := serve(newAdminMocks().router(), handlers.NewTestRequest(t, "POST", "/admin/blocks", body))
			handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
		}
	})

	t.Run("oversized body", func(t *testing.T) {
		m := newAdminMocks()
		m.blocks.BlockFunc = func(ctx context.Context, identity models.Identity, reason string) (*models.BlockedIdentityRecord, error) {
			t.Fatal("block must not be placed")
			return nil, nil
		}
		body := `{"identity":"192.0.2.1","reason":"` + strings.Repeat("x", handlers.MaxRequestBodyBytes) + `"}`
		req := httptest.NewRequest("POST", "/admin/blocks", strings.NewReader(body))

		w := serve(m.router(), req)
		handlers.AssertErrorResponse(t, w, http.StatusRequestEntityTooLarge, "request_too_large")
	})
}

func TestDeleteBlock(t *testing.T) {
	m := newAdminMocks()
	var got models.Identity
	m.blocks.UnblockFunc = func(ctx context.Context, identity models.Identity) error {
		got = identity
		return nil
	}

	w := serve(m.router(), httptest.NewRequest("DELETE", "/admin/blocks/192.0.2.44", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, models.Identity("192.0.2.44"), got)
}

func TestDeleteBlock_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not blocked", "/admin/blocks/192.0.2.44", models.ErrNotFound, http.StatusNotFound, "not_found"},
		{"bad identity", "/admin/blocks/nope", nil, http.StatusBadRequest, "bad_request"},
		{"storage down", "/admin/blocks/192.0.2.44", models.ErrStorageUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newAdminMocks()
			m.blocks.UnblockFunc = func(ctx context.Context, identity models.Identity) error { return tt.err }

			w := serve(m.router(), httptest.NewRequest("DELETE", tt.path, nil))
			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestInspectIdentity(t *testing.T) {
	m := newAdminMocks()
	m.inspector.InspectFunc = func(ctx context.Context, identity models.Identity) (*services.IdentityReport, error) {
		return &services.IdentityReport{
			Identity: identity,
			State:    models.StateWarned,
			Ledger:   &models.LoginAttemptRecord{Identity: identity, Attempts: 2},
		}, nil
	}

	w := serve(m.router(), httptest.NewRequest("GET", "/admin/identities/192.0.2.8", nil))

	var resp services.IdentityReport
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.StateWarned, resp.State)
	require.NotNil(t, resp.Ledger)
	assert.Equal(t, 2, resp.Ledger.Attempts)
	assert.Nil(t, resp.Block)
}

func TestTOTPQRCode(t *testing.T) {
	t.Run("renders png", func(t *testing.T) {
		m := newAdminMocks()
		var gotSize int
		m.totp.ProvisioningQRFunc = func(size int) ([]byte, error) {
			gotSize = size
			return []byte("png-bytes"), nil
		}

		w := serve(m.router(), httptest.NewRequest("GET", "/admin/totp/qr", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, "png-bytes", w.Body.String())
		assert.Equal(t, 256, gotSize)
	})

	t.Run("not configured", func(t *testing.T) {
		m := newAdminMocks()
		m.totp.EnabledFunc = func() bool { return false }

		w := serve(m.router(), httptest.NewRequest("GET", "/admin/totp/qr", nil))
		handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
	})
}
