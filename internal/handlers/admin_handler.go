package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/services"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/go-chi/chi/v5"
)

const (
	defaultBlockListLimit = 100
	maxBlockListLimit     = 500
	totpQRSize            = 256
)

// AdminServiceInterface defines the dashboard service contract.
type AdminServiceInterface interface {
	GetDashboardStats(ctx context.Context) *services.DashboardStatsResponse
	GetRecentEvents(ctx context.Context, limit int) (*services.DashboardEventsResponse, error)
}

// BlockListInterface defines the administrative block operations.
type BlockListInterface interface {
	ListLive(ctx context.Context, limit int) ([]*models.BlockedIdentityRecord, error)
	Block(ctx context.Context, identity models.Identity, reason string) (*models.BlockedIdentityRecord, error)
	BlockPermanent(ctx context.Context, identity models.Identity, reason string) (*models.BlockedIdentityRecord, error)
	Unblock(ctx context.Context, identity models.Identity) error
}

// IdentityInspector reports the defense state of one identity.
type IdentityInspector interface {
	Inspect(ctx context.Context, identity models.Identity) (*services.IdentityReport, error)
}

// TOTPProvisioner renders the admin second-factor enrolment QR code.
type TOTPProvisioner interface {
	Enabled() bool
	ProvisioningQR(size int) ([]byte, error)
}

// AdminHandler handles admin dashboard HTTP requests.
type AdminHandler struct {
	service   AdminServiceInterface
	blocks    BlockListInterface
	inspector IdentityInspector
	totp      TOTPProvisioner
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler. totp may be nil.
func NewAdminHandler(service AdminServiceInterface, blocks BlockListInterface, inspector IdentityInspector, totp TOTPProvisioner, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service:   service,
		blocks:    blocks,
		inspector: inspector,
		totp:      totp,
		logger:    logger,
	}
}

// BlockRequest is the body of an administrative block
type BlockRequest struct {
	Identity  string `json:"identity" validate:"required,ip"`
	Reason    string `json:"reason" validate:"required,min=1,max=255"`
	Permanent bool   `json:"permanent"`
}

// BlockListResponse lists the live blocks
type BlockListResponse struct {
	Blocks []*models.BlockedIdentityRecord `json:"blocks"`
	Count  int                             `json:"count"`
}

// GetDashboardStats handles GET /admin/dashboard/stats
func (h *AdminHandler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.service.GetDashboardStats(r.Context()))
}

// GetRecentEvents handles GET /admin/dashboard/events
// Accepts optional query param ?limit=N (default 10, capped at 100).
func (h *AdminHandler) GetRecentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.GetRecentEvents(r.Context(), queryLimit(r))
	if err != nil {
		pkghttp.WriteModelError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, events)
}

// ListBlocks handles GET /admin/blocks
func (h *AdminHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	if limit <= 0 {
		limit = defaultBlockListLimit
	}
	if limit > maxBlockListLimit {
		limit = maxBlockListLimit
	}

	blocks, err := h.blocks.ListLive(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list blocks", slog.Any("error", err))
		pkghttp.WriteModelError(w, err)
		return
	}
	if blocks == nil {
		blocks = []*models.BlockedIdentityRecord{}
	}

	pkghttp.WriteJSON(w, http.StatusOK, BlockListResponse{Blocks: blocks, Count: len(blocks)})
}

// CreateBlock handles POST /admin/blocks
func (h *AdminHandler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	identity, err := models.ParseIdentity(req.Identity)
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid identity")
		return
	}

	var block *models.BlockedIdentityRecord
	if req.Permanent {
		block, err = h.blocks.BlockPermanent(r.Context(), identity, req.Reason)
	} else {
		block, err = h.blocks.Block(r.Context(), identity, req.Reason)
	}
	if err != nil {
		h.logger.Error("failed to block identity",
			slog.String("identity", identity.String()),
			slog.Any("error", err))
		pkghttp.WriteModelError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, block)
}

// DeleteBlock handles DELETE /admin/blocks/{identity}
func (h *AdminHandler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	identity, err := models.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid identity")
		return
	}

	if err := h.blocks.Unblock(r.Context(), identity); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "No block for this identity")
			return
		}
		h.logger.Error("failed to unblock identity",
			slog.String("identity", identity.String()),
			slog.Any("error", err))
		pkghttp.WriteModelError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// InspectIdentity handles GET /admin/identities/{identity}
func (h *AdminHandler) InspectIdentity(w http.ResponseWriter, r *http.Request) {
	identity, err := models.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid identity")
		return
	}

	report, err := h.inspector.Inspect(r.Context(), identity)
	if err != nil {
		pkghttp.WriteModelError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, report)
}

// TOTPQRCode handles GET /admin/totp/qr
func (h *AdminHandler) TOTPQRCode(w http.ResponseWriter, r *http.Request) {
	if h.totp == nil || !h.totp.Enabled() {
		pkghttp.WriteNotFound(w, "TOTP is not configured")
		return
	}

	png, err := h.totp.ProvisioningQR(totpQRSize)
	if err != nil {
		h.logger.Error("failed to render TOTP QR code", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// queryLimit parses ?limit; anything unparseable counts as unset
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}
