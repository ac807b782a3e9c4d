// Package mocks holds hand-written testify mocks for the contracts
// interfaces and the task enqueuer.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"spsync/domain/contracts"
	"spsync/domain/sharepoint"
	syncdomain "spsync/domain/sync"
	"spsync/platform/tasks"
)

// MockOrganisationRepository implements OrganisationRepository for testing
type MockOrganisationRepository struct {
	mock.Mock
}

func (m *MockOrganisationRepository) Upsert(ctx context.Context, org *syncdomain.Organisation) error {
	args := m.Called(ctx, org)
	return args.Error(0)
}

func (m *MockOrganisationRepository) GetByID(ctx context.Context, orgID string) (*syncdomain.Organisation, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncdomain.Organisation), args.Error(1)
}

func (m *MockOrganisationRepository) List(ctx context.Context) ([]*syncdomain.Organisation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*syncdomain.Organisation), args.Error(1)
}

func (m *MockOrganisationRepository) Delete(ctx context.Context, orgID string) error {
	args := m.Called(ctx, orgID)
	return args.Error(0)
}

// MockDriveSyncStateRepository implements DriveSyncStateRepository for testing
type MockDriveSyncStateRepository struct {
	mock.Mock
}

func (m *MockDriveSyncStateRepository) Upsert(ctx context.Context, state *syncdomain.DriveSyncState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockDriveSyncStateRepository) Get(ctx context.Context, orgID, driveID string) (*syncdomain.DriveSyncState, error) {
	args := m.Called(ctx, orgID, driveID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncdomain.DriveSyncState), args.Error(1)
}

func (m *MockDriveSyncStateRepository) GetBySubscription(ctx context.Context, orgID, siteID, driveID, subscriptionID string) (*syncdomain.DriveSyncState, error) {
	args := m.Called(ctx, orgID, siteID, driveID, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncdomain.DriveSyncState), args.Error(1)
}

func (m *MockDriveSyncStateRepository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*syncdomain.DriveSyncState, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncdomain.DriveSyncState), args.Error(1)
}

func (m *MockDriveSyncStateRepository) ListForOrg(ctx context.Context, orgID string) ([]*syncdomain.DriveSyncState, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*syncdomain.DriveSyncState), args.Error(1)
}

func (m *MockDriveSyncStateRepository) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*syncdomain.DriveSyncState, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*syncdomain.DriveSyncState), args.Error(1)
}

func (m *MockDriveSyncStateRepository) UpdateDeltaToken(ctx context.Context, orgID, driveID, deltaToken string) error {
	args := m.Called(ctx, orgID, driveID, deltaToken)
	return args.Error(0)
}

func (m *MockDriveSyncStateRepository) UpdateSubscription(ctx context.Context, orgID, driveID, subscriptionID string, expiresAt time.Time, clientState string) error {
	args := m.Called(ctx, orgID, driveID, subscriptionID, expiresAt, clientState)
	return args.Error(0)
}

func (m *MockDriveSyncStateRepository) Delete(ctx context.Context, orgID, driveID string) error {
	args := m.Called(ctx, orgID, driveID)
	return args.Error(0)
}

// MockProviderClient implements ProviderClient for testing
type MockProviderClient struct {
	mock.Mock
}

func (m *MockProviderClient) ListSites(ctx context.Context, cursor string, idsOnly bool) (*sharepoint.SitesPage, error) {
	args := m.Called(ctx, cursor, idsOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharepoint.SitesPage), args.Error(1)
}

func (m *MockProviderClient) ListDrives(ctx context.Context, siteID, cursor string) (*sharepoint.DrivesPage, error) {
	args := m.Called(ctx, siteID, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharepoint.DrivesPage), args.Error(1)
}

func (m *MockProviderClient) ListItems(ctx context.Context, siteID, driveID, folderID, cursor string) (*sharepoint.ItemsPage, error) {
	args := m.Called(ctx, siteID, driveID, folderID, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharepoint.ItemsPage), args.Error(1)
}

func (m *MockProviderClient) ListPermissions(ctx context.Context, siteID, driveID, itemID, cursor string) (*sharepoint.PermissionsPage, error) {
	args := m.Called(ctx, siteID, driveID, itemID, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharepoint.PermissionsPage), args.Error(1)
}

func (m *MockProviderClient) GetItem(ctx context.Context, siteID, driveID, itemID string) (*sharepoint.DriveItem, error) {
	args := m.Called(ctx, siteID, driveID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharepoint.DriveItem), args.Error(1)
}

func (m *MockProviderClient) DeleteItem(ctx context.Context, siteID, driveID, itemID string) error {
	args := m.Called(ctx, siteID, driveID, itemID)
	return args.Error(0)
}

func (m *MockProviderClient) DeletePermission(ctx context.Context, siteID, driveID, itemID, permissionID string) error {
	args := m.Called(ctx, siteID, driveID, itemID, permissionID)
	return args.Error(0)
}

func (m *MockProviderClient) GetDelta(ctx context.Context, siteID, driveID, cursor string) (*sharepoint.DeltaPage, error) {
	args := m.Called(ctx, siteID, driveID, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharepoint.DeltaPage), args.Error(1)
}

func (m *MockProviderClient) CreateSubscription(ctx context.Context, siteID, driveID, notificationURL, clientState string, expiresAt time.Time) (*sharepoint.Subscription, error) {
	args := m.Called(ctx, siteID, driveID, notificationURL, clientState, expiresAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharepoint.Subscription), args.Error(1)
}

func (m *MockProviderClient) RenewSubscription(ctx context.Context, subscriptionID string, expiresAt time.Time) (*sharepoint.Subscription, error) {
	args := m.Called(ctx, subscriptionID, expiresAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sharepoint.Subscription), args.Error(1)
}

func (m *MockProviderClient) RemoveSubscription(ctx context.Context, subscriptionID string) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

// MockProviderClientFactory implements ProviderClientFactory for testing
type MockProviderClientFactory struct {
	mock.Mock
}

func (m *MockProviderClientFactory) ForOrganisation(ctx context.Context, org *syncdomain.Organisation) (contracts.ProviderClient, error) {
	args := m.Called(ctx, org)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(contracts.ProviderClient), args.Error(1)
}

// MockPostureClient implements PostureClient for testing
type MockPostureClient struct {
	mock.Mock
}

func (m *MockPostureClient) UpdateObjects(ctx context.Context, orgID string, objects []syncdomain.Object) error {
	args := m.Called(ctx, orgID, objects)
	return args.Error(0)
}

func (m *MockPostureClient) DeleteObjects(ctx context.Context, orgID string, ids []string) error {
	args := m.Called(ctx, orgID, ids)
	return args.Error(0)
}

func (m *MockPostureClient) DeleteObjectsSyncedBefore(ctx context.Context, orgID string, syncedBefore time.Time) error {
	args := m.Called(ctx, orgID, syncedBefore)
	return args.Error(0)
}

func (m *MockPostureClient) UpdateConnectionStatus(ctx context.Context, orgID string, hasError bool) error {
	args := m.Called(ctx, orgID, hasError)
	return args.Error(0)
}

// MockEnqueuer implements tasks.Enqueuer for testing
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, task tasks.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

// RecordingEnqueuer captures enqueued tasks for inspection.
type RecordingEnqueuer struct {
	Tasks []tasks.Task
}

func (e *RecordingEnqueuer) Enqueue(_ context.Context, task tasks.Task) error {
	e.Tasks = append(e.Tasks, task)
	return nil
}

// OfKind returns the captured tasks of one kind.
func (e *RecordingEnqueuer) OfKind(kind tasks.Kind) []tasks.Task {
	var out []tasks.Task
	for _, t := range e.Tasks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}
