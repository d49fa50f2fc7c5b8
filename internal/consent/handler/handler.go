package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"consentgate/internal/consent"
	"consentgate/internal/consent/service"
	"consentgate/internal/platform/metrics"
	"consentgate/internal/platform/middleware"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/platform/audit/publishers/security"
	"consentgate/pkg/platform/httputil"
	"consentgate/pkg/requestcontext"
)

// Service defines the consent operations the handler needs.
type Service interface {
	Grant(ctx context.Context, userID id.UserID, req service.GrantRequest) (*consent.Record, error)
	Revoke(ctx context.Context, userID id.UserID, consentType id.ConsentType, reason string) (*consent.Record, error)
	HasConsent(ctx context.Context, userID id.UserID, consentType id.ConsentType) (bool, error)
	History(ctx context.Context, userID id.UserID, consentType *id.ConsentType, limit int) ([]consent.Record, error)
}

// Handler serves the consent ledger endpoints.
type Handler struct {
	logger       *slog.Logger
	consent      Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	secAudit     *security.Publisher
}

// New creates a consent Handler.
func New(consent Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator, secAudit *security.Publisher) *Handler {
	return &Handler{
		logger:       logger,
		consent:      consent,
		metrics:      m,
		jwtValidator: jwtValidator,
		secAudit:     secAudit,
	}
}

// Register registers the consent routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger, h.secAudit))
		r.Post("/privacy/consent", h.handleGrant)
		r.Post("/privacy/consent/revoke", h.handleRevoke)
		r.Get("/privacy/consent-history", h.handleHistory)
	})
}

type grantRequest struct {
	ConsentType   string   `json:"consentType"`
	Purpose       string   `json:"purpose"`
	DataTypes     []string `json:"dataTypes"`
	PolicyVersion string   `json:"policyVersion"`
	ExpiresAt     *string  `json:"expiresAt"`
}

type revokeRequest struct {
	ConsentType string `json:"consentType"`
	Reason      string `json:"reason"`
}

type metadataResponse struct {
	Source    string `json:"source"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

type recordResponse struct {
	ID            string           `json:"id"`
	ConsentType   string           `json:"consentType"`
	Status        string           `json:"status"`
	Purpose       string           `json:"purpose"`
	DataTypes     []string         `json:"dataTypes"`
	ExpiresAt     *time.Time       `json:"expiresAt,omitempty"`
	Metadata      metadataResponse `json:"metadata"`
	PolicyVersion string           `json:"policyVersion,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

func toRecordResponse(rec *consent.Record) recordResponse {
	dataTypes := rec.DataTypes
	if dataTypes == nil {
		dataTypes = []string{}
	}
	return recordResponse{
		ID:            rec.ID.String(),
		ConsentType:   rec.ConsentType.String(),
		Status:        string(rec.Status),
		Purpose:       rec.Purpose,
		DataTypes:     dataTypes,
		ExpiresAt:     rec.ExpiresAt,
		Metadata:      metadataResponse(rec.Metadata),
		PolicyVersion: rec.PolicyVersion,
		Reason:        rec.Reason,
		CreatedAt:     rec.CreatedAt,
	}
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	var req grantRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sanitize(&req)

	consentType, err := id.ParseConsentType(req.ConsentType)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid consent type"))
		return
	}

	grant := service.GrantRequest{
		ConsentType:   consentType,
		Purpose:       req.Purpose,
		DataTypes:     req.DataTypes,
		PolicyVersion: req.PolicyVersion,
	}
	if req.ExpiresAt != nil && *req.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "expiresAt must be RFC 3339"))
			return
		}
		grant.ExpiresAt = &expiresAt
	}

	rec, err := h.consent.Grant(ctx, userID, grant)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to grant consent", err)
		return
	}

	h.metrics.IncConsentChange(string(rec.Status))
	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(rec))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	var req revokeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sanitize(&req)

	consentType, err := id.ParseConsentType(req.ConsentType)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid consent type"))
		return
	}

	rec, err := h.consent.Revoke(ctx, userID, consentType, req.Reason)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to revoke consent", err)
		return
	}

	h.metrics.IncConsentChange(string(rec.Status))
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	var consentType *id.ConsentType
	if raw := r.URL.Query().Get("type"); raw != "" {
		ct, err := id.ParseConsentType(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid consent type"))
			return
		}
		consentType = &ct
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	records, err := h.consent.History(ctx, userID, consentType, limit)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load consent history", err)
		return
	}

	history := make([]recordResponse, 0, len(records))
	for i := range records {
		history = append(history, toRecordResponse(&records[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"history": history,
		"total":   len(history),
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
