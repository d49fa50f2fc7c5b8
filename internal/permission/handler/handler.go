package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"consentgate/internal/catalog"
	"consentgate/internal/permission/service"
	"consentgate/internal/platform/metrics"
	"consentgate/internal/platform/middleware"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/platform/audit/publishers/security"
	"consentgate/pkg/platform/httputil"
	"consentgate/pkg/requestcontext"
)

// Service defines the permission operations the handler needs.
type Service interface {
	Overview(ctx context.Context, userID id.UserID) (*service.Overview, error)
	Update(ctx context.Context, userID id.UserID, toggles map[string]bool) (*service.Overview, error)
	ToggleCategory(ctx context.Context, userID id.UserID, categoryKey string, allow bool) (*service.Overview, error)
}

// Handler serves the attribute permission endpoints.
type Handler struct {
	logger       *slog.Logger
	permissions  Service
	registry     catalog.Registry
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	secAudit     *security.Publisher
}

// New creates a permission Handler.
func New(permissions Service, registry catalog.Registry, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator, secAudit *security.Publisher) *Handler {
	return &Handler{
		logger:       logger,
		permissions:  permissions,
		registry:     registry,
		metrics:      m,
		jwtValidator: jwtValidator,
		secAudit:     secAudit,
	}
}

// Register registers the permission routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger, h.secAudit))
		r.Get("/privacy/permissions", h.handleOverview)
		r.Put("/privacy/permissions", h.handleUpdate)
		r.Put("/privacy/permissions/category", h.handleToggleCategory)
		r.Get("/privacy/data-attributes", h.handleCatalog)
	})
}

type updateRequest struct {
	Permissions map[string]bool `json:"permissions"`
}

type toggleCategoryRequest struct {
	Category string `json:"category"`
	Allow    *bool  `json:"allow"`
}

type attributeResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Allowed     bool   `json:"allowed"`
}

type categoryResponse struct {
	Key          string              `json:"key"`
	Name         string              `json:"name"`
	Attributes   []attributeResponse `json:"attributes"`
	AllowedCount int                 `json:"allowedCount"`
}

type overviewResponse struct {
	Categories      []categoryResponse `json:"categories"`
	AllowedCount    int                `json:"allowedCount"`
	RestrictedCount int                `json:"restrictedCount"`
	Version         int64              `json:"version"`
	CatalogVersion  string             `json:"catalogVersion"`
}

func toOverviewResponse(ov *service.Overview) overviewResponse {
	out := overviewResponse{
		Categories:      make([]categoryResponse, 0, len(ov.Categories)),
		AllowedCount:    ov.AllowedCount,
		RestrictedCount: ov.RestrictedCount,
		Version:         ov.Version,
		CatalogVersion:  ov.CatalogVersion,
	}
	for _, cat := range ov.Categories {
		cr := categoryResponse{
			Key:          cat.Key,
			Name:         cat.Name,
			Attributes:   make([]attributeResponse, 0, len(cat.Attributes)),
			AllowedCount: cat.AllowedCount,
		}
		for _, attr := range cat.Attributes {
			cr.Attributes = append(cr.Attributes, attributeResponse{
				ID:          attr.ID,
				Name:        attr.Name,
				Description: attr.Description,
				Allowed:     attr.Allowed,
			})
		}
		out.Categories = append(out.Categories, cr)
	}
	return out
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ov, err := h.permissions.Overview(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load permissions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOverviewResponse(ov))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	ov, err := h.permissions.Update(ctx, requestcontext.UserID(ctx), req.Permissions)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to update permissions", err)
		return
	}

	h.metrics.IncConsentChange("permissions_updated")
	httputil.WriteJSON(w, http.StatusOK, toOverviewResponse(ov))
}

func (h *Handler) handleToggleCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req toggleCategoryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sanitize(&req)
	if req.Category == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "category is required"))
		return
	}
	if req.Allow == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "allow is required"))
		return
	}

	ov, err := h.permissions.ToggleCategory(ctx, requestcontext.UserID(ctx), req.Category, *req.Allow)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to toggle category", err)
		return
	}

	h.metrics.IncConsentChange("category_toggled")
	httputil.WriteJSON(w, http.StatusOK, toOverviewResponse(ov))
}

// handleCatalog serves the raw attribute catalog, without user state.
func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"categories":     h.registry.Categories(),
		"catalogVersion": catalog.Version,
	})
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeNotFound, dErrors.CodeConflict, dErrors.CodeBadRequest:
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
	default:
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
	}
}
