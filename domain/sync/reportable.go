package sync

import (
	"time"

	"spsync/domain/sharepoint"
)

// PermissionType is the downstream grant category.
type PermissionType string

const (
	PermissionTypeUser   PermissionType = "user"
	PermissionTypeAnyone PermissionType = "anyone"
)

// Permission is the normalized, reportable shape of an accepted grant.
type Permission struct {
	ID          string
	Type        PermissionType
	DisplayName string
	UserID      string
	Email       string
	ShareURL    string
}

// Metadata locates an object within the provider hierarchy.
type Metadata struct {
	SiteID  string
	DriveID string
}

// Object is what gets pushed to the posture platform. An object is only
// built when it carries at least one non-inherited, classifier-accepted
// permission; otherwise it must be deleted downstream, not reported.
type Object struct {
	ID           string
	Name         string
	URL          string
	OwnerID      string
	Metadata     Metadata
	LastSyncedAt time.Time
	Permissions  []Permission
}

// Normalize maps an accepted raw permission into its reportable shape.
// Returns false for grants the classifier rejects.
func Normalize(p sharepoint.Permission) (Permission, bool) {
	switch p.Classify() {
	case sharepoint.GrantDirectUser, sharepoint.GrantUsersLink:
		user := p.GrantedUser()
		if user == nil {
			return Permission{}, false
		}
		return Permission{
			ID:          p.ID,
			Type:        PermissionTypeUser,
			DisplayName: user.DisplayName,
			UserID:      user.ID,
			Email:       user.Email,
		}, true
	case sharepoint.GrantAnonymousLink:
		return Permission{
			ID:       p.ID,
			Type:     PermissionTypeAnyone,
			ShareURL: p.Link.WebURL,
		}, true
	default:
		return Permission{}, false
	}
}

// BuildObject normalizes an item's surviving permissions into a
// reportable object. Returns false when nothing survived classification,
// meaning the item must not be reported.
func BuildObject(item sharepoint.DriveItem, perms []sharepoint.Permission, meta Metadata, syncedAt time.Time) (Object, bool) {
	var normalized []Permission
	for _, p := range perms {
		if rp, ok := Normalize(p); ok {
			normalized = append(normalized, rp)
		}
	}
	if len(normalized) == 0 {
		return Object{}, false
	}

	return Object{
		ID:           item.ID,
		Name:         item.Name,
		URL:          item.WebURL,
		OwnerID:      item.CreatedByID,
		Metadata:     meta,
		LastSyncedAt: syncedAt,
		Permissions:  normalized,
	}, true
}
