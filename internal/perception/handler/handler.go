package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"consentgate/internal/perception"
	"consentgate/internal/platform/metrics"
	"consentgate/internal/platform/middleware"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/platform/audit/publishers/security"
	"consentgate/pkg/platform/httputil"
	"consentgate/pkg/requestcontext"
)

// Service defines the perception operations the handler needs.
type Service interface {
	List(ctx context.Context, userID id.UserID) ([]perception.Attribute, error)
	Dispute(ctx context.Context, userID id.UserID, category, label, reason, correction string) (*perception.Attribute, error)
	Resolve(ctx context.Context, userID id.UserID, category, label, reviewedBy string, outcome perception.ResolveOutcome) (*perception.Attribute, error)
}

// Handler serves the AI perception endpoints.
type Handler struct {
	logger       *slog.Logger
	perceptions  Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	secAudit     *security.Publisher
}

// New creates a perception Handler.
func New(perceptions Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator, secAudit *security.Publisher) *Handler {
	return &Handler{
		logger:       logger,
		perceptions:  perceptions,
		metrics:      m,
		jwtValidator: jwtValidator,
		secAudit:     secAudit,
	}
}

// Register registers the perception routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger, h.secAudit))
		r.Get("/ai/perception", h.handleList)
		r.Post("/ai/perception/dispute", h.handleDispute)
		r.Post("/ai/perception/resolve", h.handleResolve)
	})
}

type disputeRequest struct {
	Category           string `json:"category"`
	Label              string `json:"label"`
	Reason             string `json:"reason"`
	ProposedCorrection string `json:"proposedCorrection"`
}

type resolveRequest struct {
	Category   string `json:"category"`
	Label      string `json:"label"`
	ReviewedBy string `json:"reviewedBy"`
	Outcome    string `json:"outcome"`
}

type attributeResponse struct {
	Category           string    `json:"category"`
	Label              string    `json:"label"`
	Status             string    `json:"status"`
	Confidence         float64   `json:"confidence"`
	Evidence           []string  `json:"evidence"`
	DisputeReason      string    `json:"disputeReason,omitempty"`
	ProposedCorrection string    `json:"proposedCorrection,omitempty"`
	LastUpdated        time.Time `json:"lastUpdated"`
}

func toAttributeResponse(attr *perception.Attribute) attributeResponse {
	evidence := attr.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	return attributeResponse{
		Category:           attr.Category,
		Label:              attr.Label,
		Status:             string(attr.Status),
		Confidence:         attr.Confidence,
		Evidence:           evidence,
		DisputeReason:      attr.DisputeReason,
		ProposedCorrection: attr.ProposedCorrection,
		LastUpdated:        attr.UpdatedAt,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	attrs, err := h.perceptions.List(ctx, userID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load perception", err)
		return
	}

	out := make([]attributeResponse, 0, len(attrs))
	for i := range attrs {
		out = append(out, toAttributeResponse(&attrs[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"attributes": out,
		"total":      len(out),
	})
}

func (h *Handler) handleDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	var req disputeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sanitize(&req)

	attr, err := h.perceptions.Dispute(ctx, userID, req.Category, req.Label, req.Reason, req.ProposedCorrection)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to dispute perception attribute", err)
		return
	}

	h.metrics.IncDisputeOpened()
	httputil.WriteJSON(w, http.StatusOK, toAttributeResponse(attr))
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	var req resolveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sanitize(&req)

	attr, err := h.perceptions.Resolve(ctx, userID, req.Category, req.Label, req.ReviewedBy, perception.ResolveOutcome(req.Outcome))
	if err != nil {
		h.writeServiceError(ctx, w, "failed to resolve dispute", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAttributeResponse(attr))
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
