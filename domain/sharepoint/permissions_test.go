package sharepoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermission_Classify(t *testing.T) {
	user := &Identity{ID: "u1", DisplayName: "Alex Doe", Email: "alex@example.com"}

	tests := []struct {
		name string
		perm Permission
		want GrantKind
	}{
		{
			name: "direct user grant",
			perm: Permission{ID: "p1", GrantedToV2: &IdentitySet{User: user}},
			want: GrantDirectUser,
		},
		{
			name: "user in identities list",
			perm: Permission{ID: "p2", GrantedToIdentitiesV2: []IdentitySet{{User: user}}},
			want: GrantDirectUser,
		},
		{
			name: "anonymous link",
			perm: Permission{ID: "p3", Link: &SharingLink{Scope: LinkScopeAnonymous, WebURL: "https://x/share"}},
			want: GrantAnonymousLink,
		},
		{
			name: "users link with identities",
			perm: Permission{
				ID:                    "p4",
				Link:                  &SharingLink{Scope: LinkScopeUsers},
				GrantedToIdentitiesV2: []IdentitySet{{User: user}},
			},
			want: GrantUsersLink,
		},
		{
			name: "organization link without user identity",
			perm: Permission{ID: "p5", Link: &SharingLink{Scope: LinkScopeOrganization}},
			want: GrantUnsupported,
		},
		{
			name: "group-only grant",
			perm: Permission{ID: "p6", GrantedToV2: &IdentitySet{Group: &Identity{ID: "g1"}}},
			want: GrantUnsupported,
		},
		{
			name: "empty identity list",
			perm: Permission{ID: "p7", GrantedToIdentitiesV2: []IdentitySet{}},
			want: GrantUnsupported,
		},
		{
			name: "user identity without id",
			perm: Permission{ID: "p8", GrantedToV2: &IdentitySet{User: &Identity{DisplayName: "ghost"}}},
			want: GrantUnsupported,
		},
		{
			name: "users link without any identity",
			perm: Permission{ID: "p9", Link: &SharingLink{Scope: LinkScopeUsers}},
			want: GrantUnsupported,
		},
		{
			name: "empty permission",
			perm: Permission{ID: "p10"},
			want: GrantUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.perm.Classify())
			assert.Equal(t, tt.want != GrantUnsupported, tt.perm.IsReportable())
		})
	}
}

func TestPermission_GrantedUser_PrefersSingleGrantee(t *testing.T) {
	perm := Permission{
		ID:                    "p1",
		GrantedToV2:           &IdentitySet{User: &Identity{ID: "primary"}},
		GrantedToIdentitiesV2: []IdentitySet{{User: &Identity{ID: "secondary"}}},
	}

	user := perm.GrantedUser()
	assert.NotNil(t, user)
	assert.Equal(t, "primary", user.ID)
}

func TestDriveItem_IsRoot(t *testing.T) {
	assert.True(t, DriveItem{ID: "i1", Name: RootItemName}.IsRoot())
	assert.False(t, DriveItem{ID: "i2", Name: "Documents"}.IsRoot())
}
