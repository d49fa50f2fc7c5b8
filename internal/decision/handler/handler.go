package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"consentgate/internal/decision"
	"consentgate/internal/decision/service"
	"consentgate/internal/decision/store"
	"consentgate/internal/platform/metrics"
	"consentgate/internal/platform/middleware"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/platform/audit/publishers/security"
	"consentgate/pkg/platform/httputil"
	"consentgate/pkg/requestcontext"
)

// Service defines the decision operations the handler needs.
type Service interface {
	Record(ctx context.Context, d *decision.Decision) (*decision.Decision, error)
	Get(ctx context.Context, decisionID id.DecisionID) (*decision.Decision, error)
	ListForReview(ctx context.Context, filter store.ReviewFilter) ([]decision.Decision, error)
	AddHumanReview(ctx context.Context, decisionID id.DecisionID, reviewedBy string, verdict decision.ReviewDecision, notes string) (*decision.Decision, error)
	UpdateFeedback(ctx context.Context, decisionID id.DecisionID, userFeedback string, correctOutcome *bool, note string) (*decision.Decision, error)
}

// Gate runs a computation through the filter-compute-record pipeline.
type Gate interface {
	Run(ctx context.Context, userID id.UserID, requested []string, compute service.ComputeFunc) (*decision.Decision, error)
}

// Handler serves the AI decision endpoints.
type Handler struct {
	logger       *slog.Logger
	decisions    Service
	gate         Gate
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	secAudit     *security.Publisher
}

// New creates a decision Handler.
func New(decisions Service, gate Gate, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator, secAudit *security.Publisher) *Handler {
	return &Handler{
		logger:       logger,
		decisions:    decisions,
		gate:         gate,
		metrics:      m,
		jwtValidator: jwtValidator,
		secAudit:     secAudit,
	}
}

// Register registers the decision routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger, h.secAudit))
		r.Post("/ai/decisions", h.handleRecord)
		r.Get("/ai/decisions/review", h.handleListForReview)
		r.Get("/ai/decisions/{decisionID}", h.handleGet)
		r.Post("/ai/decisions/{decisionID}/review", h.handleAddReview)
		r.Post("/ai/decisions/{decisionID}/feedback", h.handleFeedback)
		r.Post("/ai/transactions/analyze", h.handleAnalyzeTransaction)
	})
}

type modelRequest struct {
	Name       string  `json:"name"`
	Version    string  `json:"version"`
	Confidence float64 `json:"confidence"`
	BiasCheck  bool    `json:"biasCheck"`
}

type factorRequest struct {
	Name   string  `json:"name"`
	Value  any     `json:"value"`
	Weight float64 `json:"weight"`
	Impact string  `json:"impact"`
}

type explanationRequest struct {
	Summary         string          `json:"summary"`
	Details         string          `json:"details"`
	Factors         []factorRequest `json:"factors"`
	Recommendations []string        `json:"recommendations"`
}

type recordRequest struct {
	RelatedEntityID string             `json:"relatedEntityId"`
	EntityType      string             `json:"entityType"`
	DecisionType    string             `json:"decisionType"`
	Status          string             `json:"status"`
	Model           modelRequest       `json:"model"`
	Explanation     explanationRequest `json:"explanation"`
	AttributesUsed  []string           `json:"attributesUsed"`
}

type reviewRequest struct {
	ReviewedBy string `json:"reviewedBy"`
	Decision   string `json:"decision"`
	Notes      string `json:"notes"`
}

type feedbackRequest struct {
	UserFeedback   string `json:"userFeedback"`
	CorrectOutcome *bool  `json:"correctOutcome"`
	FeedbackNote   string `json:"feedbackNote"`
}

type analyzeRequest struct {
	TransactionID string  `json:"transactionId"`
	Amount        float64 `json:"amount"`
	Category      string  `json:"category"`
	MerchantName  string  `json:"merchantName"`
}

// transactionSignals lists the attributes the built-in risk scorer asks for.
// The gate decides which of them the computation actually gets.
var transactionSignals = []string{
	"transactions.amount",
	"transactions.category",
	"transactions.merchantName",
}

type modelResponse struct {
	Name       string  `json:"name"`
	Version    string  `json:"version"`
	Confidence float64 `json:"confidence"`
	BiasCheck  bool    `json:"biasCheck"`
}

type factorResponse struct {
	Name   string  `json:"name"`
	Value  any     `json:"value"`
	Weight float64 `json:"weight"`
	Impact string  `json:"impact"`
}

type explanationResponse struct {
	Summary         string           `json:"summary"`
	Details         string           `json:"details,omitempty"`
	Factors         []factorResponse `json:"factors"`
	Recommendations []string         `json:"recommendations,omitempty"`
}

type reviewResponse struct {
	ReviewedBy string    `json:"reviewedBy"`
	ReviewedAt time.Time `json:"reviewedAt"`
	Decision   string    `json:"decision"`
	Notes      string    `json:"notes,omitempty"`
}

type feedbackResponse struct {
	UserFeedback   string    `json:"userFeedback"`
	CorrectOutcome *bool     `json:"correctOutcome,omitempty"`
	FeedbackNote   string    `json:"feedbackNote,omitempty"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

type decisionResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	RelatedEntityID string              `json:"relatedEntityId,omitempty"`
	EntityType      string              `json:"entityType"`
	DecisionType    string              `json:"decisionType"`
	Status          string              `json:"status"`
	Model           modelResponse       `json:"model"`
	Explanation     explanationResponse `json:"explanation"`
	AttributesUsed  []string            `json:"attributesUsed"`
	HumanReview     *reviewResponse     `json:"humanReview,omitempty"`
	Feedback        *feedbackResponse   `json:"feedback,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func toDecisionResponse(d *decision.Decision) decisionResponse {
	attrs := d.AttributesUsed
	if attrs == nil {
		attrs = []string{}
	}
	factors := make([]factorResponse, 0, len(d.Explanation.Factors))
	for _, f := range d.Explanation.Factors {
		factors = append(factors, factorResponse{
			Name:   f.Name,
			Value:  f.Value,
			Weight: f.Weight,
			Impact: string(f.Impact),
		})
	}

	resp := decisionResponse{
		ID:              d.ID.String(),
		UserID:          d.UserID.String(),
		RelatedEntityID: d.RelatedEntityID,
		EntityType:      string(d.EntityType),
		DecisionType:    string(d.DecisionType),
		Status:          string(d.Status),
		Model: modelResponse{
			Name:       d.Model.Name,
			Version:    d.Model.Version,
			Confidence: d.Model.Confidence,
			BiasCheck:  d.Model.BiasCheck,
		},
		Explanation: explanationResponse{
			Summary:         d.Explanation.Summary,
			Details:         d.Explanation.Details,
			Factors:         factors,
			Recommendations: d.Explanation.Recommendations,
		},
		AttributesUsed: attrs,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if d.HumanReview != nil {
		resp.HumanReview = &reviewResponse{
			ReviewedBy: d.HumanReview.ReviewedBy,
			ReviewedAt: d.HumanReview.ReviewedAt,
			Decision:   string(d.HumanReview.Decision),
			Notes:      d.HumanReview.Notes,
		}
	}
	if d.Feedback != nil {
		resp.Feedback = &feedbackResponse{
			UserFeedback:   d.Feedback.UserFeedback,
			CorrectOutcome: d.Feedback.CorrectOutcome,
			FeedbackNote:   d.Feedback.Note,
			SubmittedAt:    d.Feedback.SubmittedAt,
		}
	}
	return resp
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	var req recordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sanitize(&req)

	factors := make([]decision.Factor, 0, len(req.Explanation.Factors))
	for _, f := range req.Explanation.Factors {
		factors = append(factors, decision.Factor{
			Name:   f.Name,
			Value:  f.Value,
			Weight: f.Weight,
			Impact: decision.Impact(f.Impact),
		})
	}

	rec, err := h.decisions.Record(ctx, &decision.Decision{
		UserID:          userID,
		RelatedEntityID: req.RelatedEntityID,
		EntityType:      decision.EntityType(req.EntityType),
		DecisionType:    decision.DecisionType(req.DecisionType),
		Status:          decision.Status(req.Status),
		Model: decision.Model{
			Name:       req.Model.Name,
			Version:    req.Model.Version,
			Confidence: req.Model.Confidence,
			BiasCheck:  req.Model.BiasCheck,
		},
		Explanation: decision.Explanation{
			Summary:         req.Explanation.Summary,
			Details:         req.Explanation.Details,
			Factors:         factors,
			Recommendations: req.Explanation.Recommendations,
		},
		AttributesUsed: req.AttributesUsed,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "failed to record decision", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toDecisionResponse(rec))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	decisionID, err := parseDecisionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.decisions.Get(ctx, decisionID)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to load decision", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toDecisionResponse(d))
}

func (h *Handler) handleListForReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := store.ReviewFilter{
		LowConfidence: r.URL.Query().Get("lowConfidence") == "true",
		FlaggedOnly:   r.URL.Query().Get("flaggedOnly") == "true",
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}

	decisions, err := h.decisions.ListForReview(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to list review queue", err)
		return
	}

	queue := make([]decisionResponse, 0, len(decisions))
	for i := range decisions {
		queue = append(queue, toDecisionResponse(&decisions[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"decisions": queue,
		"total":     len(queue),
	})
}

func (h *Handler) handleAddReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	decisionID, err := parseDecisionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req reviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sanitize(&req)

	d, err := h.decisions.AddHumanReview(ctx, decisionID, req.ReviewedBy, decision.ReviewDecision(req.Decision), req.Notes)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to add human review", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toDecisionResponse(d))
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	decisionID, err := parseDecisionID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req feedbackRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sanitize(&req)

	d, err := h.decisions.UpdateFeedback(ctx, decisionID, req.UserFeedback, req.CorrectOutcome, req.FeedbackNote)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to record feedback", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toDecisionResponse(d))
}

func (h *Handler) handleAnalyzeTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	var req analyzeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sanitize(&req)

	if req.TransactionID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "transactionId is required"))
		return
	}

	compute := service.TransactionRiskScorer(service.Transaction{
		EntityID:     req.TransactionID,
		Amount:       req.Amount,
		Category:     req.Category,
		MerchantName: req.MerchantName,
	})

	d, err := h.gate.Run(ctx, userID, transactionSignals, compute)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to analyze transaction", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toDecisionResponse(d))
}

func parseDecisionID(r *http.Request) (id.DecisionID, error) {
	raw := chi.URLParam(r, "decisionID")
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return id.DecisionID{}, dErrors.New(dErrors.CodeValidation, "decision id must be a UUID")
	}
	return id.DecisionID(parsed), nil
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeNotFound, dErrors.CodeConflict, dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
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
