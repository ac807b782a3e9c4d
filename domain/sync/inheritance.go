package sync

import (
	mapset "github.com/deckarep/golang-set/v2"

	"spsync/domain/sharepoint"
)

// ItemPermissions pairs an item with its fetched permission set.
// Paginated records whether the set came from a fully exhausted
// permission pagination; a partial set must be re-paginated before it can
// serve as a parent context for inheritance stripping.
type ItemPermissions struct {
	Item        sharepoint.DriveItem
	Permissions []sharepoint.Permission
	Paginated   bool
}

// PermissionIDSet collects the permission ids of a slice of permissions.
func PermissionIDSet(perms []sharepoint.Permission) mapset.Set[string] {
	ids := mapset.NewThreadUnsafeSet[string]()
	for _, p := range perms {
		ids.Add(p.ID)
	}
	return ids
}

// StripInherited removes, from each item in the batch, every permission
// whose id appears in the parent's permission-id set. Items are never
// dropped, even when stripped to empty, and surviving permissions keep
// their order. Emptiness is the caller's signal to retract rather than
// report.
func StripInherited(parentIDs mapset.Set[string], batch []ItemPermissions) []ItemPermissions {
	if parentIDs == nil || parentIDs.Cardinality() == 0 {
		return batch
	}

	out := make([]ItemPermissions, 0, len(batch))
	for _, ip := range batch {
		kept := make([]sharepoint.Permission, 0, len(ip.Permissions))
		for _, p := range ip.Permissions {
			if !parentIDs.Contains(p.ID) {
				kept = append(kept, p)
			}
		}
		out = append(out, ItemPermissions{Item: ip.Item, Permissions: kept, Paginated: ip.Paginated})
	}
	return out
}

// ReconcileAgainstSiblings filters inherited permissions within a delta
// batch where items may reference each other as parent and child. An item
// whose parent is present in the batch has the parent's permission ids
// stripped; stripped-to-empty items land in toDelete. Items without an
// in-batch parent pass through unchanged. Root pseudo-items are excluded
// entirely.
func ReconcileAgainstSiblings(batch []ItemPermissions) (toUpdate []ItemPermissions, toDelete []string) {
	byID := make(map[string]ItemPermissions, len(batch))
	for _, ip := range batch {
		byID[ip.Item.ID] = ip
	}

	for _, ip := range batch {
		if ip.Item.IsRoot() {
			continue
		}

		parent, ok := byID[ip.Item.ParentID]
		if !ok {
			toUpdate = append(toUpdate, ip)
			continue
		}

		stripped := StripInherited(PermissionIDSet(parent.Permissions), []ItemPermissions{ip})[0]
		if len(stripped.Permissions) == 0 {
			toDelete = append(toDelete, ip.Item.ID)
			continue
		}
		toUpdate = append(toUpdate, stripped)
	}

	return toUpdate, toDelete
}
