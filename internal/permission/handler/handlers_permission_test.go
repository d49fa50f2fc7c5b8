package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"consentgate/internal/catalog"
	"consentgate/internal/permission/handler/mocks"
	"consentgate/internal/permission/service"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/permission-mocks.go -package=mocks Service
type PermissionHandlerSuite struct {
	suite.Suite
	userID id.UserID
}

func (s *PermissionHandlerSuite) SetupSuite() {
	s.userID = id.NewUserID()
}

func TestPermissionHandlerSuite(t *testing.T) {
	suite.Run(t, new(PermissionHandlerSuite))
}

func newTestHandler(t *testing.T) (*Handler, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(mockService, catalog.Default(), logger, nil, nil, nil), mockService
}

func (s *PermissionHandlerSuite) authed(req *http.Request) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), s.userID)
	return req.WithContext(ctx)
}

func sampleOverview() *service.Overview {
	return &service.Overview{
		Categories: []service.CategoryView{
			{
				Key:  "user",
				Name: "Personal Information",
				Attributes: []service.AttributeView{
					{Attribute: catalog.Attribute{ID: "user.income", Category: "user", Name: "Income"}, Allowed: false},
					{Attribute: catalog.Attribute{ID: "user.email", Category: "user", Name: "Email"}, Allowed: true},
				},
				AllowedCount: 1,
			},
		},
		AllowedCount:    1,
		RestrictedCount: 1,
		Version:         3,
		CatalogVersion:  catalog.Version,
	}
}

func (s *PermissionHandlerSuite) TestHandleOverview() {
	handler, mockService := newTestHandler(s.T())

	mockService.EXPECT().Overview(gomock.Any(), s.userID).Return(sampleOverview(), nil)

	req := s.authed(httptest.NewRequest(http.MethodGet, "/privacy/permissions", nil))
	w := httptest.NewRecorder()
	handler.handleOverview(w, req)

	assert.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), float64(1), resp["allowedCount"])
	assert.Equal(s.T(), float64(1), resp["restrictedCount"])
	assert.Equal(s.T(), float64(3), resp["version"])

	categories := resp["categories"].([]any)
	require.Len(s.T(), categories, 1)
	attrs := categories[0].(map[string]any)["attributes"].([]any)
	require.Len(s.T(), attrs, 2)
	income := attrs[0].(map[string]any)
	assert.Equal(s.T(), "user.income", income["id"])
	assert.Equal(s.T(), false, income["allowed"])
}

func (s *PermissionHandlerSuite) TestHandleUpdate() {
	handler, mockService := newTestHandler(s.T())

	mockService.EXPECT().Update(gomock.Any(), s.userID, map[string]bool{"user.income": false}).
		Return(sampleOverview(), nil)

	body, err := json.Marshal(updateRequest{Permissions: map[string]bool{"user.income": false}})
	require.NoError(s.T(), err)

	req := s.authed(httptest.NewRequest(http.MethodPut, "/privacy/permissions", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	handler.handleUpdate(w, req)

	assert.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), float64(3), resp["version"])
}

func (s *PermissionHandlerSuite) TestHandleUpdate_UnknownAttribute() {
	handler, mockService := newTestHandler(s.T())

	mockService.EXPECT().Update(gomock.Any(), s.userID, map[string]bool{"user.shoeSize": false}).
		Return(nil, dErrors.New(dErrors.CodeValidation, "unknown data attribute: user.shoeSize"))

	body, err := json.Marshal(updateRequest{Permissions: map[string]bool{"user.shoeSize": false}})
	require.NoError(s.T(), err)

	req := s.authed(httptest.NewRequest(http.MethodPut, "/privacy/permissions", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	handler.handleUpdate(w, req)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	var resp map[string]string
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), "validation_error", resp["error"])
}

func (s *PermissionHandlerSuite) TestHandleUpdate_Conflict() {
	handler, mockService := newTestHandler(s.T())

	mockService.EXPECT().Update(gomock.Any(), s.userID, gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeConflict, "permissions changed concurrently, please retry"))

	body, err := json.Marshal(updateRequest{Permissions: map[string]bool{"user.income": false}})
	require.NoError(s.T(), err)

	req := s.authed(httptest.NewRequest(http.MethodPut, "/privacy/permissions", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	handler.handleUpdate(w, req)

	assert.Equal(s.T(), http.StatusConflict, w.Code)
}

func (s *PermissionHandlerSuite) TestHandleToggleCategory() {
	handler, mockService := newTestHandler(s.T())

	mockService.EXPECT().ToggleCategory(gomock.Any(), s.userID, "transactions", false).
		Return(sampleOverview(), nil)

	allow := false
	body, err := json.Marshal(toggleCategoryRequest{Category: "transactions", Allow: &allow})
	require.NoError(s.T(), err)

	req := s.authed(httptest.NewRequest(http.MethodPut, "/privacy/permissions/category", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	handler.handleToggleCategory(w, req)

	assert.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
}

func (s *PermissionHandlerSuite) TestHandleToggleCategory_MissingAllow() {
	handler, _ := newTestHandler(s.T())

	body, err := json.Marshal(map[string]any{"category": "transactions"})
	require.NoError(s.T(), err)

	req := s.authed(httptest.NewRequest(http.MethodPut, "/privacy/permissions/category", bytes.NewReader(body)))
	w := httptest.NewRecorder()
	handler.handleToggleCategory(w, req)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *PermissionHandlerSuite) TestHandleCatalog() {
	handler, _ := newTestHandler(s.T())

	req := s.authed(httptest.NewRequest(http.MethodGet, "/privacy/data-attributes", nil))
	w := httptest.NewRecorder()
	handler.handleCatalog(w, req)

	assert.Equal(s.T(), http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), catalog.Version, resp["catalogVersion"])
	categories := resp["categories"].([]any)
	assert.Len(s.T(), categories, len(catalog.Default().Categories()))
}
