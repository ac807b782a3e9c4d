package contracts

import (
	"context"
	"time"

	"spsync/domain/sharepoint"
	"spsync/domain/sync"
)

// ProviderClient is the typed surface over the cloud storage provider
// API. Implementations categorize failures into the sentinel errors in
// this package; 404 responses on item/permission operations surface as
// ErrNotFound.
type ProviderClient interface {
	ListSites(ctx context.Context, cursor string, idsOnly bool) (*sharepoint.SitesPage, error)
	ListDrives(ctx context.Context, siteID, cursor string) (*sharepoint.DrivesPage, error)
	// ListItems lists children of folderID, or of the drive root when
	// folderID is empty.
	ListItems(ctx context.Context, siteID, driveID, folderID, cursor string) (*sharepoint.ItemsPage, error)
	ListPermissions(ctx context.Context, siteID, driveID, itemID, cursor string) (*sharepoint.PermissionsPage, error)
	GetItem(ctx context.Context, siteID, driveID, itemID string) (*sharepoint.DriveItem, error)
	DeleteItem(ctx context.Context, siteID, driveID, itemID string) error
	DeletePermission(ctx context.Context, siteID, driveID, itemID, permissionID string) error
	GetDelta(ctx context.Context, siteID, driveID, cursor string) (*sharepoint.DeltaPage, error)
	CreateSubscription(ctx context.Context, siteID, driveID, notificationURL, clientState string, expiresAt time.Time) (*sharepoint.Subscription, error)
	RenewSubscription(ctx context.Context, subscriptionID string, expiresAt time.Time) (*sharepoint.Subscription, error)
	RemoveSubscription(ctx context.Context, subscriptionID string) error
}

// ProviderClientFactory builds a provider client scoped to one
// organisation's credential.
type ProviderClientFactory interface {
	ForOrganisation(ctx context.Context, org *sync.Organisation) (ProviderClient, error)
}

// PostureClient is the outbound surface to the security-posture platform.
type PostureClient interface {
	UpdateObjects(ctx context.Context, orgID string, objects []sync.Object) error
	DeleteObjects(ctx context.Context, orgID string, ids []string) error
	DeleteObjectsSyncedBefore(ctx context.Context, orgID string, syncedBefore time.Time) error
	UpdateConnectionStatus(ctx context.Context, orgID string, hasError bool) error
}
