package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"consentgate/internal/platform/middleware"
	"consentgate/internal/privacy/service"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/platform/audit/publishers/security"
	"consentgate/pkg/platform/httputil"
	"consentgate/pkg/requestcontext"
)

// Service defines the score operations the handler needs.
type Service interface {
	GetScore(ctx context.Context, userID id.UserID, refresh bool) (*service.Result, error)
}

// Handler serves the privacy score endpoint.
type Handler struct {
	logger       *slog.Logger
	scores       Service
	jwtValidator middleware.JWTValidator
	secAudit     *security.Publisher
}

// New creates a privacy score Handler.
func New(scores Service, logger *slog.Logger, jwtValidator middleware.JWTValidator, secAudit *security.Publisher) *Handler {
	return &Handler{
		logger:       logger,
		scores:       scores,
		jwtValidator: jwtValidator,
		secAudit:     secAudit,
	}
}

// Register registers the score route with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger, h.secAudit))
		r.Get("/privacy/score", h.handleScore)
	})
}

type scoreResponse struct {
	Score                int     `json:"score"`
	MaxScore             int     `json:"maxScore"`
	AllowedAttributes    int     `json:"allowedAttributes"`
	RestrictedAttributes int     `json:"restrictedAttributes"`
	TotalAttributes      int     `json:"totalAttributes"`
	Message              string  `json:"message"`
	Cached               bool    `json:"cached"`
	CacheAge             float64 `json:"cacheAge,omitempty"`
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	refresh := r.URL.Query().Get("refresh") == "true"

	result, err := h.scores.GetScore(ctx, requestcontext.UserID(ctx), refresh)
	if err != nil {
		h.writeServiceError(ctx, w, "failed to compute privacy score", err)
		return
	}

	resp := scoreResponse{
		Score:                result.Score.Score,
		MaxScore:             result.MaxScore,
		AllowedAttributes:    result.AllowedAttributes,
		RestrictedAttributes: result.RestrictedAttributes,
		TotalAttributes:      result.TotalAttributes,
		Message:              result.Message,
		Cached:               result.Cached,
	}
	if result.Cached {
		resp.CacheAge = math.Round(result.CacheAge.Seconds()*10) / 10
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeValidation, dErrors.CodeNotFound, dErrors.CodeConflict, dErrors.CodeBadRequest:
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	default:
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
