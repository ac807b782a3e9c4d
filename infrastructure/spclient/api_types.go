package spclient

import (
	"time"

	"spsync/domain/sharepoint"
)

// Wire shapes for the Graph API payloads this client consumes. Only the
// fields the sync engine reads are declared.

type identityDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type identitySetDTO struct {
	User  *identityDTO `json:"user"`
	Group *identityDTO `json:"group"`
}

type sharingLinkDTO struct {
	Scope  string `json:"scope"`
	WebURL string `json:"webUrl"`
}

type permissionDTO struct {
	ID                    string           `json:"id"`
	Roles                 []string         `json:"roles"`
	Link                  *sharingLinkDTO  `json:"link"`
	GrantedToV2           *identitySetDTO  `json:"grantedToV2"`
	GrantedToIdentitiesV2 []identitySetDTO `json:"grantedToIdentitiesV2"`
}

type folderFacetDTO struct {
	ChildCount int `json:"childCount"`
}

type deletedFacetDTO struct {
	State string `json:"state"`
}

type parentReferenceDTO struct {
	ID      string `json:"id"`
	DriveID string `json:"driveId"`
}

type driveItemDTO struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	WebURL               string              `json:"webUrl"`
	CreatedBy            *identitySetDTO     `json:"createdBy"`
	Folder               *folderFacetDTO     `json:"folder"`
	LastModifiedDateTime time.Time           `json:"lastModifiedDateTime"`
	ParentReference      *parentReferenceDTO `json:"parentReference"`
	Deleted              *deletedFacetDTO    `json:"deleted"`
}

type siteDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
}

type driveDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type subscriptionDTO struct {
	ID                 string    `json:"id"`
	Resource           string    `json:"resource"`
	ClientState        string    `json:"clientState"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
}

type page[T any] struct {
	Value     []T    `json:"value"`
	NextLink  string `json:"@odata.nextLink"`
	DeltaLink string `json:"@odata.deltaLink"`
}

type graphErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (d identityDTO) toDomain() *sharepoint.Identity {
	return &sharepoint.Identity{ID: d.ID, DisplayName: d.DisplayName, Email: d.Email}
}

func (d identitySetDTO) toDomain() sharepoint.IdentitySet {
	set := sharepoint.IdentitySet{}
	if d.User != nil {
		set.User = d.User.toDomain()
	}
	if d.Group != nil {
		set.Group = d.Group.toDomain()
	}
	return set
}

func (d permissionDTO) toDomain() sharepoint.Permission {
	p := sharepoint.Permission{ID: d.ID, Roles: d.Roles}
	if d.Link != nil {
		p.Link = &sharepoint.SharingLink{Scope: d.Link.Scope, WebURL: d.Link.WebURL}
	}
	if d.GrantedToV2 != nil {
		set := d.GrantedToV2.toDomain()
		p.GrantedToV2 = &set
	}
	for _, is := range d.GrantedToIdentitiesV2 {
		p.GrantedToIdentitiesV2 = append(p.GrantedToIdentitiesV2, is.toDomain())
	}
	return p
}

func (d driveItemDTO) toDomain() sharepoint.DriveItem {
	item := sharepoint.DriveItem{
		ID:             d.ID,
		Name:           d.Name,
		WebURL:         d.WebURL,
		LastModifiedAt: d.LastModifiedDateTime,
		Deleted:        d.Deleted != nil,
	}
	if d.CreatedBy != nil && d.CreatedBy.User != nil {
		item.CreatedByID = d.CreatedBy.User.ID
	}
	if d.Folder != nil {
		item.Folder = &sharepoint.FolderFacet{ChildCount: d.Folder.ChildCount}
	}
	if d.ParentReference != nil {
		item.ParentID = d.ParentReference.ID
	}
	return item
}

func (d siteDTO) toDomain() sharepoint.Site {
	name := d.DisplayName
	if name == "" {
		name = d.Name
	}
	return sharepoint.Site{ID: d.ID, Name: name}
}

func (d driveDTO) toDomain() sharepoint.Drive {
	return sharepoint.Drive{ID: d.ID, Name: d.Name}
}

func (d subscriptionDTO) toDomain() *sharepoint.Subscription {
	return &sharepoint.Subscription{
		ID:          d.ID,
		Resource:    d.Resource,
		ClientState: d.ClientState,
		ExpiresAt:   d.ExpirationDateTime,
	}
}
