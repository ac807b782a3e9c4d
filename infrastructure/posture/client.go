// Package posture implements the outbound client to the security-posture
// platform that consumes reportable objects.
package posture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"spsync/domain/contracts"
	syncdomain "spsync/domain/sync"
	"spsync/infrastructure/config"
	"spsync/logging"
)

// Client pushes object and connection state to the platform API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logging.Logger
}

// New creates a posture platform client.
func New(cfg *config.PostureConfig, logger *logging.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		logger:     logger.WithComponent("posture"),
	}
}

var _ contracts.PostureClient = (*Client)(nil)

type objectPayload struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	URL          string              `json:"url"`
	OwnerID      string              `json:"ownerId"`
	Metadata     metadataPayload     `json:"metadata"`
	LastSyncedAt time.Time           `json:"lastSyncedAt"`
	Permissions  []permissionPayload `json:"permissions"`
}

type metadataPayload struct {
	SiteID  string `json:"siteId"`
	DriveID string `json:"driveId"`
}

type permissionPayload struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	DisplayName string `json:"displayName,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Email       string `json:"email,omitempty"`
	ShareURL    string `json:"shareUrl,omitempty"`
}

// UpdateObjects reports created or refreshed objects.
func (c *Client) UpdateObjects(ctx context.Context, orgID string, objects []syncdomain.Object) error {
	if len(objects) == 0 {
		return nil
	}

	payload := struct {
		OrganisationID string          `json:"organisationId"`
		Objects        []objectPayload `json:"objects"`
	}{OrganisationID: orgID}

	for _, obj := range objects {
		p := objectPayload{
			ID:           obj.ID,
			Name:         obj.Name,
			URL:          obj.URL,
			OwnerID:      obj.OwnerID,
			Metadata:     metadataPayload{SiteID: obj.Metadata.SiteID, DriveID: obj.Metadata.DriveID},
			LastSyncedAt: obj.LastSyncedAt,
		}
		for _, perm := range obj.Permissions {
			p.Permissions = append(p.Permissions, permissionPayload{
				ID:          perm.ID,
				Type:        string(perm.Type),
				DisplayName: perm.DisplayName,
				UserID:      perm.UserID,
				Email:       perm.Email,
				ShareURL:    perm.ShareURL,
			})
		}
		payload.Objects = append(payload.Objects, p)
	}

	c.logger.Sync("pushing object updates", orgID)
	return c.post(ctx, "/objects", payload)
}

// DeleteObjects retracts objects by id.
func (c *Client) DeleteObjects(ctx context.Context, orgID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	payload := struct {
		OrganisationID string   `json:"organisationId"`
		IDs            []string `json:"ids"`
	}{OrganisationID: orgID, IDs: ids}

	return c.post(ctx, "/objects/delete", payload)
}

// DeleteObjectsSyncedBefore retracts every object not refreshed since the
// given timestamp. Used for the end-of-full-sync tombstone sweep.
func (c *Client) DeleteObjectsSyncedBefore(ctx context.Context, orgID string, syncedBefore time.Time) error {
	payload := struct {
		OrganisationID string    `json:"organisationId"`
		SyncedBefore   time.Time `json:"syncedBefore"`
	}{OrganisationID: orgID, SyncedBefore: syncedBefore}

	return c.post(ctx, "/objects/delete", payload)
}

// UpdateConnectionStatus flags whether the connector can still reach the
// organisation's tenant.
func (c *Client) UpdateConnectionStatus(ctx context.Context, orgID string, hasError bool) error {
	payload := struct {
		OrganisationID string `json:"organisationId"`
		HasError       bool   `json:"hasError"`
	}{OrganisationID: orgID, HasError: hasError}

	return c.post(ctx, "/connection-status", payload)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding posture payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("creating posture request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrRetryLater, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: posture %s returned %d: %s", contracts.ErrRetryLater, path, res.StatusCode, body)
		}
		return fmt.Errorf("%w: posture %s returned %d: %s", contracts.ErrInvalidRequest, path, res.StatusCode, body)
	}
	return nil
}
