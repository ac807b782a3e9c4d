package sharepoint

// GrantKind is the closed classification of a raw permission. The provider
// payload is polymorphic and partially malformed in practice, so
// classification fails closed: anything not unambiguously an
// externally-relevant grant is GrantUnsupported.
type GrantKind int

const (
	// GrantUnsupported covers organization-scoped links, group-only
	// grants, and malformed or empty identity sets.
	GrantUnsupported GrantKind = iota

	// GrantDirectUser is a grant carrying a concrete user identity.
	GrantDirectUser

	// GrantAnonymousLink is an open "anyone with the link" grant.
	GrantAnonymousLink

	// GrantUsersLink is a specific-users sharing link that still carries
	// concrete user identities.
	GrantUsersLink
)

// String implements fmt.Stringer for log fields.
func (k GrantKind) String() string {
	switch k {
	case GrantDirectUser:
		return "direct_user"
	case GrantAnonymousLink:
		return "anonymous_link"
	case GrantUsersLink:
		return "users_link"
	default:
		return "unsupported"
	}
}

// Classify performs the single validating parse of a raw permission into
// its grant kind. It never errors; unparseable records classify as
// GrantUnsupported and are dropped by callers.
func (p Permission) Classify() GrantKind {
	if p.grantedUser() != nil {
		if p.Link != nil && p.Link.Scope == LinkScopeUsers {
			return GrantUsersLink
		}
		return GrantDirectUser
	}

	if p.Link != nil && p.Link.Scope == LinkScopeAnonymous {
		return GrantAnonymousLink
	}

	return GrantUnsupported
}

// IsReportable reports whether the permission represents an
// externally-meaningful grant worth pushing downstream.
func (p Permission) IsReportable() bool {
	return p.Classify() != GrantUnsupported
}

// grantedUser returns the first concrete user identity carried by the
// permission, checking the single grantee before the grantee list.
func (p Permission) grantedUser() *Identity {
	if p.GrantedToV2 != nil && p.GrantedToV2.User != nil && p.GrantedToV2.User.ID != "" {
		return p.GrantedToV2.User
	}
	for i := range p.GrantedToIdentitiesV2 {
		if u := p.GrantedToIdentitiesV2[i].User; u != nil && u.ID != "" {
			return u
		}
	}
	return nil
}

// GrantedUser exposes the resolved user identity for normalization.
// Returns nil for link-only and unsupported grants.
func (p Permission) GrantedUser() *Identity {
	return p.grantedUser()
}
