package contracts

import (
	"context"
	"time"

	"spsync/domain/sync"
)

// OrganisationRepository persists installed organisations.
// Lookup methods return (nil, nil) when no row exists.
type OrganisationRepository interface {
	Upsert(ctx context.Context, org *sync.Organisation) error
	GetByID(ctx context.Context, orgID string) (*sync.Organisation, error)
	List(ctx context.Context) ([]*sync.Organisation, error)
	Delete(ctx context.Context, orgID string) error
}

// DriveSyncStateRepository persists per-drive subscription and cursor
// state, keyed by (organisation, drive). Lookup methods return (nil, nil)
// when no row exists.
type DriveSyncStateRepository interface {
	Upsert(ctx context.Context, state *sync.DriveSyncState) error
	Get(ctx context.Context, orgID, driveID string) (*sync.DriveSyncState, error)
	GetBySubscription(ctx context.Context, orgID, siteID, driveID, subscriptionID string) (*sync.DriveSyncState, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*sync.DriveSyncState, error)
	ListForOrg(ctx context.Context, orgID string) ([]*sync.DriveSyncState, error)
	ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*sync.DriveSyncState, error)
	UpdateDeltaToken(ctx context.Context, orgID, driveID, deltaToken string) error
	UpdateSubscription(ctx context.Context, orgID, driveID, subscriptionID string, expiresAt time.Time, clientState string) error
	Delete(ctx context.Context, orgID, driveID string) error
}
