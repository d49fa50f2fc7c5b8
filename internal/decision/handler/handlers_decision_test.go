package handler

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

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"consentgate/internal/decision"
	"consentgate/internal/decision/handler/mocks"
	"consentgate/internal/decision/store"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/decision-mocks.go -package=mocks Service,Gate
type DecisionHandlerSuite struct {
	suite.Suite
	userID id.UserID
}

func (s *DecisionHandlerSuite) SetupSuite() {
	s.userID = id.NewUserID()
}

func TestDecisionHandlerSuite(t *testing.T) {
	suite.Run(t, new(DecisionHandlerSuite))
}

func newTestHandler(t *testing.T) (*Handler, *mocks.MockService, *mocks.MockGate) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	mockService := mocks.NewMockService(ctrl)
	mockGate := mocks.NewMockGate(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(mockService, mockGate, logger, nil, nil, nil), mockService, mockGate
}

func (s *DecisionHandlerSuite) authed(req *http.Request) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), s.userID)
	return req.WithContext(ctx)
}

func withDecisionID(req *http.Request, decisionID id.DecisionID) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("decisionID", decisionID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func (s *DecisionHandlerSuite) sampleDecision() *decision.Decision {
	return &decision.Decision{
		ID:              id.NewDecisionID(),
		UserID:          s.userID,
		RelatedEntityID: "txn-42",
		EntityType:      decision.EntityTransaction,
		DecisionType:    decision.TypeFraudCheck,
		Status:          decision.StatusApproved,
		Model: decision.Model{
			Name:       "fraud-detector",
			Version:    "2.1.0",
			Confidence: 0.92,
			BiasCheck:  true,
		},
		Explanation: decision.Explanation{
			Summary: "No anomalies detected",
			Factors: []decision.Factor{
				{Name: "amount_band", Value: "low", Weight: 0.5, Impact: decision.ImpactPositive},
			},
		},
		AttributesUsed: []string{"transactions.amount"},
		CreatedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *DecisionHandlerSuite) TestHandleRecord() {
	handler, mockService, _ := newTestHandler(s.T())
	sample := s.sampleDecision()

	mockService.EXPECT().Record(gomock.Any(), gomock.Any()).Return(sample, nil)

	body, err := json.Marshal(recordRequest{
		RelatedEntityID: "txn-42",
		EntityType:      "transaction",
		DecisionType:    "fraud_check",
		Status:          "approved",
		Model:           modelRequest{Name: "fraud-detector", Version: "2.1.0", Confidence: 0.92, BiasCheck: true},
		Explanation: explanationRequest{
			Summary: "No anomalies detected",
			Factors: []factorRequest{{Name: "amount_band", Value: "low", Weight: 0.5, Impact: "positive"}},
		},
		AttributesUsed: []string{"transactions.amount"},
	})
	require.NoError(s.T(), err)

	req := s.authed(httptest.NewRequest(http.MethodPost, "/ai/decisions", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	handler.handleRecord(w, req)

	assert.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), sample.ID.String(), resp["id"])
	assert.Equal(s.T(), "approved", resp["status"])
	model := resp["model"].(map[string]any)
	assert.Equal(s.T(), 0.92, model["confidence"])
}

func (s *DecisionHandlerSuite) TestHandleRecord_Invalid() {
	handler, mockService, _ := newTestHandler(s.T())

	mockService.EXPECT().Record(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeValidation, "model version must be semver"))

	body, err := json.Marshal(recordRequest{EntityType: "transaction"})
	require.NoError(s.T(), err)

	req := s.authed(httptest.NewRequest(http.MethodPost, "/ai/decisions", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	handler.handleRecord(w, req)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	var resp map[string]string
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), "validation_error", resp["error"])
}

func (s *DecisionHandlerSuite) TestHandleGet() {
	handler, mockService, _ := newTestHandler(s.T())
	sample := s.sampleDecision()

	mockService.EXPECT().Get(gomock.Any(), sample.ID).Return(sample, nil)

	req := withDecisionID(s.authed(httptest.NewRequest(http.MethodGet, "/ai/decisions/"+sample.ID.String(), nil)), sample.ID)
	w := httptest.NewRecorder()
	handler.handleGet(w, req)

	assert.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), sample.ID.String(), resp["id"])
	assert.Nil(s.T(), resp["humanReview"])
}

func (s *DecisionHandlerSuite) TestHandleGet_BadID() {
	handler, _, _ := newTestHandler(s.T())

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("decisionID", "not-a-uuid")
	req := s.authed(httptest.NewRequest(http.MethodGet, "/ai/decisions/not-a-uuid", nil))
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()
	handler.handleGet(w, req)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *DecisionHandlerSuite) TestHandleGet_NotFound() {
	handler, mockService, _ := newTestHandler(s.T())
	decisionID := id.NewDecisionID()

	mockService.EXPECT().Get(gomock.Any(), decisionID).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "decision not found"))

	req := withDecisionID(s.authed(httptest.NewRequest(http.MethodGet, "/ai/decisions/"+decisionID.String(), nil)), decisionID)
	w := httptest.NewRecorder()
	handler.handleGet(w, req)

	assert.Equal(s.T(), http.StatusNotFound, w.Code)
}

func (s *DecisionHandlerSuite) TestHandleListForReview() {
	handler, mockService, _ := newTestHandler(s.T())
	sample := s.sampleDecision()

	mockService.EXPECT().ListForReview(gomock.Any(), store.ReviewFilter{LowConfidence: true, Limit: 10}).
		Return([]decision.Decision{*sample}, nil)

	req := s.authed(httptest.NewRequest(http.MethodGet, "/ai/decisions/review?lowConfidence=true&limit=10", nil))
	w := httptest.NewRecorder()
	handler.handleListForReview(w, req)

	assert.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), float64(1), resp["total"])
}

func (s *DecisionHandlerSuite) TestHandleListForReview_BadLimit() {
	handler, _, _ := newTestHandler(s.T())

	req := s.authed(httptest.NewRequest(http.MethodGet, "/ai/decisions/review?limit=nope", nil))
	w := httptest.NewRecorder()
	handler.handleListForReview(w, req)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *DecisionHandlerSuite) TestHandleAddReview() {
	handler, mockService, _ := newTestHandler(s.T())
	sample := s.sampleDecision()
	sample.Status = decision.StatusDenied
	sample.HumanReview = &decision.HumanReview{
		ReviewedBy: "analyst-1",
		ReviewedAt: time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC),
		Decision:   decision.ReviewOverridden,
		Notes:      "customer verified",
	}

	mockService.EXPECT().
		AddHumanReview(gomock.Any(), sample.ID, "analyst-1", decision.ReviewOverridden, "customer verified").
		Return(sample, nil)

	body, err := json.Marshal(reviewRequest{ReviewedBy: "analyst-1", Decision: "overridden", Notes: "customer verified"})
	require.NoError(s.T(), err)

	req := withDecisionID(s.authed(httptest.NewRequest(http.MethodPost, "/ai/decisions/"+sample.ID.String()+"/review", bytes.NewReader(body))), sample.ID)
	w := httptest.NewRecorder()
	handler.handleAddReview(w, req)

	assert.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), "denied", resp["status"])
	review := resp["humanReview"].(map[string]any)
	assert.Equal(s.T(), "analyst-1", review["reviewedBy"])
}

func (s *DecisionHandlerSuite) TestHandleAddReview_AlreadyReviewed() {
	handler, mockService, _ := newTestHandler(s.T())
	decisionID := id.NewDecisionID()

	mockService.EXPECT().
		AddHumanReview(gomock.Any(), decisionID, "analyst-2", decision.ReviewConfirmed, "").
		Return(nil, dErrors.New(dErrors.CodeConflict, "decision has already been reviewed"))

	body, err := json.Marshal(reviewRequest{ReviewedBy: "analyst-2", Decision: "confirmed"})
	require.NoError(s.T(), err)

	req := withDecisionID(s.authed(httptest.NewRequest(http.MethodPost, "/ai/decisions/"+decisionID.String()+"/review", bytes.NewReader(body))), decisionID)
	w := httptest.NewRecorder()
	handler.handleAddReview(w, req)

	assert.Equal(s.T(), http.StatusConflict, w.Code)
}

func (s *DecisionHandlerSuite) TestHandleFeedback() {
	handler, mockService, _ := newTestHandler(s.T())
	sample := s.sampleDecision()
	correct := false
	sample.Feedback = &decision.Feedback{
		UserFeedback:   "disagree",
		CorrectOutcome: &correct,
		SubmittedAt:    time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC),
	}

	mockService.EXPECT().
		UpdateFeedback(gomock.Any(), sample.ID, "disagree", gomock.Any(), "").
		Return(sample, nil)

	body, err := json.Marshal(feedbackRequest{UserFeedback: "disagree", CorrectOutcome: &correct})
	require.NoError(s.T(), err)

	req := withDecisionID(s.authed(httptest.NewRequest(http.MethodPost, "/ai/decisions/"+sample.ID.String()+"/feedback", bytes.NewReader(body))), sample.ID)
	w := httptest.NewRecorder()
	handler.handleFeedback(w, req)

	assert.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	feedback := resp["feedback"].(map[string]any)
	assert.Equal(s.T(), "disagree", feedback["userFeedback"])
	assert.Equal(s.T(), false, feedback["correctOutcome"])
}

func (s *DecisionHandlerSuite) TestHandleAnalyzeTransaction() {
	handler, _, mockGate := newTestHandler(s.T())
	sample := s.sampleDecision()
	sample.DecisionType = decision.TypeTransactionAnalysis

	mockGate.EXPECT().
		Run(gomock.Any(), s.userID, transactionSignals, gomock.Any()).
		Return(sample, nil)

	body, err := json.Marshal(analyzeRequest{TransactionID: "txn-42", Amount: 1200, Category: "groceries", MerchantName: "Fresh Mart"})
	require.NoError(s.T(), err)

	req := s.authed(httptest.NewRequest(http.MethodPost, "/ai/transactions/analyze", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	handler.handleAnalyzeTransaction(w, req)

	assert.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), "transaction_analysis", resp["decisionType"])
}

func (s *DecisionHandlerSuite) TestHandleAnalyzeTransaction_MissingID() {
	handler, _, _ := newTestHandler(s.T())

	body, err := json.Marshal(analyzeRequest{Amount: 1200})
	require.NoError(s.T(), err)

	req := s.authed(httptest.NewRequest(http.MethodPost, "/ai/transactions/analyze", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	handler.handleAnalyzeTransaction(w, req)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}
