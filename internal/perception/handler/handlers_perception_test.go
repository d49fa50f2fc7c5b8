package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"consentgate/internal/perception"
	"consentgate/internal/perception/handler/mocks"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/perception-mocks.go -package=mocks Service
type PerceptionHandlerSuite struct {
	suite.Suite
	userID id.UserID
}

func (s *PerceptionHandlerSuite) SetupSuite() {
	s.userID = id.NewUserID()
}

func TestPerceptionHandlerSuite(t *testing.T) {
	suite.Run(t, new(PerceptionHandlerSuite))
}

func newTestHandler(t *testing.T) (*Handler, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(mockService, logger, nil, nil, nil), mockService
}

func (s *PerceptionHandlerSuite) authed(req *http.Request) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), s.userID)
	return req.WithContext(ctx)
}

func (s *PerceptionHandlerSuite) sampleAttribute() *perception.Attribute {
	return &perception.Attribute{
		UserID:     s.userID,
		Category:   "spending_habits",
		Label:      "frequent_traveler",
		Status:     perception.StatusActive,
		Confidence: 0.82,
		Evidence:   []string{"12 flight bookings in 90 days"},
		UpdatedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *PerceptionHandlerSuite) TestHandleList() {
	handler, mockService := newTestHandler(s.T())

	mockService.EXPECT().List(gomock.Any(), s.userID).
		Return([]perception.Attribute{*s.sampleAttribute()}, nil)

	req := s.authed(httptest.NewRequest(http.MethodGet, "/ai/perception", nil))
	w := httptest.NewRecorder()
	handler.handleList(w, req)

	assert.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), float64(1), resp["total"])
	attrs := resp["attributes"].([]any)
	attr := attrs[0].(map[string]any)
	assert.Equal(s.T(), "frequent_traveler", attr["label"])
	assert.Equal(s.T(), "active", attr["status"])
}

func (s *PerceptionHandlerSuite) TestHandleDispute() {
	handler, mockService := newTestHandler(s.T())
	disputed := s.sampleAttribute()
	disputed.Status = perception.StatusDisputed
	disputed.DisputeReason = "those were work trips"
	disputed.ProposedCorrection = "occasional_traveler"

	mockService.EXPECT().
		Dispute(gomock.Any(), s.userID, "spending_habits", "frequent_traveler",
			"those were work trips", "occasional_traveler").
		Return(disputed, nil)

	body, err := json.Marshal(disputeRequest{
		Category:           "spending_habits",
		Label:              "frequent_traveler",
		Reason:             "those were work trips",
		ProposedCorrection: "occasional_traveler",
	})
	require.NoError(s.T(), err)

	req := s.authed(httptest.NewRequest(http.MethodPost, "/ai/perception/dispute", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	handler.handleDispute(w, req)

	assert.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), "disputed", resp["status"])
	assert.Equal(s.T(), "occasional_traveler", resp["proposedCorrection"])
}

func (s *PerceptionHandlerSuite) TestHandleDispute_Conflict() {
	handler, mockService := newTestHandler(s.T())

	mockService.EXPECT().
		Dispute(gomock.Any(), s.userID, "spending_habits", "frequent_traveler", "wrong", "").
		Return(nil, dErrors.New(dErrors.CodeConflict, "attribute is not active and cannot be disputed"))

	body, err := json.Marshal(disputeRequest{
		Category: "spending_habits",
		Label:    "frequent_traveler",
		Reason:   "wrong",
	})
	require.NoError(s.T(), err)

	req := s.authed(httptest.NewRequest(http.MethodPost, "/ai/perception/dispute", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	handler.handleDispute(w, req)

	assert.Equal(s.T(), http.StatusConflict, w.Code)
	var resp map[string]string
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), "conflict", resp["error"])
}

func (s *PerceptionHandlerSuite) TestHandleResolve() {
	handler, mockService := newTestHandler(s.T())
	corrected := s.sampleAttribute()
	corrected.Status = perception.StatusCorrected
	corrected.Label = "occasional_traveler"

	mockService.EXPECT().
		Resolve(gomock.Any(), s.userID, "spending_habits", "frequent_traveler",
			"analyst-1", perception.OutcomeCorrected).
		Return(corrected, nil)

	body, err := json.Marshal(resolveRequest{
		Category:   "spending_habits",
		Label:      "frequent_traveler",
		ReviewedBy: "analyst-1",
		Outcome:    "corrected",
	})
	require.NoError(s.T(), err)

	req := s.authed(httptest.NewRequest(http.MethodPost, "/ai/perception/resolve", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	handler.handleResolve(w, req)

	assert.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), "corrected", resp["status"])
	assert.Equal(s.T(), "occasional_traveler", resp["label"])
}

func (s *PerceptionHandlerSuite) TestHandleResolve_NotFound() {
	handler, mockService := newTestHandler(s.T())

	mockService.EXPECT().
		Resolve(gomock.Any(), s.userID, "spending_habits", "missing", "analyst-1", perception.OutcomeRejected).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "perception attribute not found"))

	body, err := json.Marshal(resolveRequest{
		Category:   "spending_habits",
		Label:      "missing",
		ReviewedBy: "analyst-1",
		Outcome:    "rejected",
	})
	require.NoError(s.T(), err)

	req := s.authed(httptest.NewRequest(http.MethodPost, "/ai/perception/resolve", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	handler.handleResolve(w, req)

	assert.Equal(s.T(), http.StatusNotFound, w.Code)
}
