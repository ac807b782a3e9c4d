package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"spsync/application"
	syncdomain "spsync/domain/sync"
	"spsync/interfaces/web/handlers"
)

type mockSyncService struct {
	mock.Mock
}

func (m *mockSyncService) StartFullSync(ctx context.Context, orgID string) error {
	return m.Called(ctx, orgID).Error(0)
}

func (m *mockSyncService) StartIncrementalSync(ctx context.Context, orgID, siteID, driveID, subscriptionID, tenantID string) error {
	return m.Called(ctx, orgID, siteID, driveID, subscriptionID, tenantID).Error(0)
}

func (m *mockSyncService) RefreshObject(ctx context.Context, orgID, itemID string, meta syncdomain.Metadata) error {
	return m.Called(ctx, orgID, itemID, meta).Error(0)
}

func (m *mockSyncService) DeleteObjectPermissions(ctx context.Context, orgID, itemID string, meta syncdomain.Metadata, permissionIDs []string) (application.DeletionResult, error) {
	args := m.Called(ctx, orgID, itemID, meta, permissionIDs)
	return args.Get(0).(application.DeletionResult), args.Error(1)
}

func (m *mockSyncService) DeleteObject(ctx context.Context, orgID, itemID string, meta syncdomain.Metadata) error {
	return m.Called(ctx, orgID, itemID, meta).Error(0)
}

func (m *mockSyncService) HandleLifecycleNotification(ctx context.Context, events []application.LifecycleEvent) error {
	return m.Called(ctx, events).Error(0)
}

func (m *mockSyncService) HandleChangeNotification(ctx context.Context, events []application.ChangeEvent) error {
	return m.Called(ctx, events).Error(0)
}

func (m *mockSyncService) InstallOrganisation(ctx context.Context, org *syncdomain.Organisation) error {
	return m.Called(ctx, org).Error(0)
}

func (m *mockSyncService) RemoveOrganisation(ctx context.Context, orgID string) error {
	return m.Called(ctx, orgID).Error(0)
}

func newTestRouter(svc application.SyncService) http.Handler {
	r := chi.NewRouter()
	handlers.NewSyncHandlers(svc, nil).RegisterRoutes(r)
	return r
}

func TestChangeNotifications_EchoesValidationToken(t *testing.T) {
	svc := &mockSyncService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/notifications?validationToken=handshake-123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "handshake-123", rec.Body.String())
	svc.AssertNotCalled(t, "HandleChangeNotification", mock.Anything, mock.Anything)
}

func TestChangeNotifications_DispatchesBatch(t *testing.T) {
	svc := &mockSyncService{}
	var received []application.ChangeEvent
	svc.On("HandleChangeNotification", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			received = args.Get(1).([]application.ChangeEvent)
		}).Return(nil)
	router := newTestRouter(svc)

	body := `{"value":[{"subscriptionId":"sub-1","clientState":"secret","resource":"sites/s/drives/d/root","tenantId":"t1"}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/notifications", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, received, 1)
	assert.Equal(t, "sub-1", received[0].SubscriptionID)
	assert.Equal(t, "secret", received[0].ClientState)
	assert.Equal(t, "sites/s/drives/d/root", received[0].Resource)
}

func TestChangeNotifications_RejectedBatchAnswers404(t *testing.T) {
	svc := &mockSyncService{}
	svc.On("HandleChangeNotification", mock.Anything, mock.Anything).
		Return(application.ErrBatchRejected)
	router := newTestRouter(svc)

	body := `{"value":[{"subscriptionId":"sub-1","clientState":"forged"}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/notifications", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangeNotifications_MalformedPayloadAnswers404(t *testing.T) {
	svc := &mockSyncService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/notifications", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	svc.AssertNotCalled(t, "HandleChangeNotification", mock.Anything, mock.Anything)
}

func TestLifecycleNotifications_MapsEvents(t *testing.T) {
	svc := &mockSyncService{}
	var received []application.LifecycleEvent
	svc.On("HandleLifecycleNotification", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			received = args.Get(1).([]application.LifecycleEvent)
		}).Return(nil)
	router := newTestRouter(svc)

	body := `{"value":[{"subscriptionId":"sub-1","tenantId":"t1","lifecycleEvent":"reauthorizationRequired"}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/lifecycle", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, received, 1)
	assert.Equal(t, application.LifecycleReauthorizationRequired, received[0].Event)
}

func TestInstallOrganisation_ValidatesRequiredFields(t *testing.T) {
	svc := &mockSyncService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/organisations",
		bytes.NewBufferString(`{"id":"org-1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "InstallOrganisation", mock.Anything, mock.Anything)
}

func TestInstallOrganisation_PassesOrganisationThrough(t *testing.T) {
	svc := &mockSyncService{}
	var installed *syncdomain.Organisation
	svc.On("InstallOrganisation", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			installed = args.Get(1).(*syncdomain.Organisation)
		}).Return(nil)
	router := newTestRouter(svc)

	body := `{"id":"org-1","tenantId":"t1","region":"eu","token":"tok"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/organisations", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, installed)
	assert.Equal(t, "org-1", installed.ID)
	assert.Equal(t, "eu", installed.Region)
}

func TestDeleteObjectPermissions_ReportsBuckets(t *testing.T) {
	svc := &mockSyncService{}
	svc.On("DeleteObjectPermissions", mock.Anything, "org-1", "item-1",
		syncdomain.Metadata{SiteID: "s1", DriveID: "d1"}, []string{"p1", "p2", "p3"}).
		Return(application.DeletionResult{
			Deleted:  []string{"p1"},
			NotFound: []string{"p2"},
			Failed:   []string{"p3"},
		}, nil)
	router := newTestRouter(svc)

	body := `{"siteId":"s1","driveId":"d1","permissionIds":["p1","p2","p3"]}`
	req := httptest.NewRequest(http.MethodPost,
		"/admin/organisations/org-1/objects/item-1/permissions/delete", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"p1"}, resp["deletedPermissions"])
	assert.Equal(t, []string{"p2"}, resp["notFoundPermissions"])
	assert.Equal(t, []string{"p3"}, resp["unexpectedFailedPermissions"])
}

func TestRemoveOrganisation(t *testing.T) {
	svc := &mockSyncService{}
	svc.On("RemoveOrganisation", mock.Anything, "org-1").Return(nil)
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/admin/organisations/org-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	svc.AssertCalled(t, "RemoveOrganisation", mock.Anything, "org-1")
}

func TestStartFullSync(t *testing.T) {
	svc := &mockSyncService{}
	svc.On("StartFullSync", mock.Anything, "org-1").Return(nil)
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/admin/organisations/org-1/sync", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}
