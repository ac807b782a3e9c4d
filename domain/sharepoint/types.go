// Package sharepoint holds the provider-side domain model: sites, drives,
// drive items and the raw permission shapes returned by the storage API.
// Everything here is ephemeral; nothing is persisted.
package sharepoint

import "time"

// RootItemName is the reserved name of the drive-root pseudo-item. Items
// carrying it are not real shared content and are excluded from delta
// processing and sibling reconciliation.
const RootItemName = "root"

// Site is a SharePoint site collection root.
type Site struct {
	ID   string
	Name string
}

// Drive is a document library within a site.
type Drive struct {
	ID   string
	Name string
}

// FolderFacet is present on items that are folders.
type FolderFacet struct {
	ChildCount int
}

// DriveItem is a file or folder node, identified by (site, drive, item id).
type DriveItem struct {
	ID             string
	Name           string
	WebURL         string
	CreatedByID    string
	Folder         *FolderFacet
	LastModifiedAt time.Time
	ParentID       string
	Deleted        bool
}

// IsFolder reports whether the item is a folder.
func (i DriveItem) IsFolder() bool {
	return i.Folder != nil
}

// IsRoot reports whether the item is the drive-root pseudo-item.
func (i DriveItem) IsRoot() bool {
	return i.Name == RootItemName
}

// Identity is a user or group referenced by a permission grant.
type Identity struct {
	ID          string
	DisplayName string
	Email       string
}

// IdentitySet is the polymorphic grantee shape: at most one of the
// fields is populated per entry.
type IdentitySet struct {
	User  *Identity
	Group *Identity
}

// Sharing link scopes as returned by the provider.
const (
	LinkScopeAnonymous    = "anonymous"
	LinkScopeOrganization = "organization"
	LinkScopeUsers        = "users"
)

// SharingLink describes a link-based grant.
type SharingLink struct {
	Scope  string
	WebURL string
}

// Permission is a raw grant attached to an item. Two permissions are the
// same grant iff their IDs match.
type Permission struct {
	ID                    string
	Roles                 []string
	Link                  *SharingLink
	GrantedToV2           *IdentitySet
	GrantedToIdentitiesV2 []IdentitySet
}

// Subscription is a provider-side change-notification registration.
type Subscription struct {
	ID          string
	Resource    string
	ClientState string
	ExpiresAt   time.Time
}

// SitesPage is one page of a site listing.
type SitesPage struct {
	Sites      []Site
	NextCursor string
}

// DrivesPage is one page of a drive listing.
type DrivesPage struct {
	Drives     []Drive
	NextCursor string
}

// ItemsPage is one page of a folder-children listing.
type ItemsPage struct {
	Items      []DriveItem
	NextCursor string
}

// PermissionsPage is one page of an item-permission listing.
type PermissionsPage struct {
	Permissions []Permission
	NextCursor  string
}

// DeltaPage is one page of a drive change feed. Exactly one of NextCursor
// and DeltaToken is populated: NextCursor while more pages remain,
// DeltaToken only on the final page of a pull.
type DeltaPage struct {
	Items      []DriveItem
	NextCursor string
	DeltaToken string
}
