// Package sync holds the connector-side domain model: installed
// organisations, per-drive sync state, the reportable-object shape pushed
// to the posture platform, and the inheritance filtering applied before
// anything is reported.
package sync

import "time"

// Organisation is an installed customer account. Token is the encrypted
// credential blob managed by the external refresh flow; the connector
// treats it opaquely.
type Organisation struct {
	ID        string
	TenantID  string
	Region    string
	Token     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DriveSyncState carries the change-subscription identity and delta
// cursor for one (organisation, drive) pair. Created when the drive's
// initial crawl completes, updated on every reconciliation and renewal,
// removed with the organisation.
type DriveSyncState struct {
	OrgID                   string
	SiteID                  string
	DriveID                 string
	SubscriptionID          string
	SubscriptionExpiresAt   time.Time
	SubscriptionClientState string
	DeltaToken              string
	UpdatedAt               time.Time
}
