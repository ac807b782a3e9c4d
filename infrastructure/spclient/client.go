// Package spclient implements the typed Microsoft Graph client behind
// contracts.ProviderClient. Failures are categorized into the contracts
// sentinel errors so workflow code never inspects HTTP status codes.
package spclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/ratelimit"
	"golang.org/x/oauth2"

	"spsync/domain/contracts"
	"spsync/domain/sharepoint"
	"spsync/infrastructure/config"
	"spsync/logging"
)

// Client talks to the Graph API on behalf of one organisation.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	limiter    ratelimit.Limiter
	logger     *logging.Logger
}

// New builds a client from a token source. The rate limiter is
// per-client, so each organisation gets its own request budget.
func New(cfg *config.ProviderConfig, httpClient *http.Client, logger *logging.Logger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		pageSize:   pageSize,
		limiter:    ratelimit.New(rps),
		logger:     logger.WithComponent("spclient"),
	}
}

var _ contracts.ProviderClient = (*Client)(nil)

// ListSites lists site collections. With idsOnly set only ids are
// selected, which is all a first sync needs.
func (c *Client) ListSites(ctx context.Context, cursor string, idsOnly bool) (*sharepoint.SitesPage, error) {
	q := url.Values{}
	q.Set("search", "*")
	q.Set("$top", strconv.Itoa(c.pageSize))
	if idsOnly {
		q.Set("$select", "id")
	}
	if cursor != "" {
		q.Set("$skiptoken", cursor)
	}

	var body page[siteDTO]
	if err := c.getJSON(ctx, "/sites?"+q.Encode(), &body); err != nil {
		return nil, err
	}

	out := &sharepoint.SitesPage{NextCursor: ExtractCursor(body.NextLink)}
	for _, s := range body.Value {
		out.Sites = append(out.Sites, s.toDomain())
	}
	return out, nil
}

// ListDrives lists the document libraries of a site.
func (c *Client) ListDrives(ctx context.Context, siteID, cursor string) (*sharepoint.DrivesPage, error) {
	q := url.Values{}
	q.Set("$top", strconv.Itoa(c.pageSize))
	if cursor != "" {
		q.Set("$skiptoken", cursor)
	}

	var body page[driveDTO]
	path := fmt.Sprintf("/sites/%s/drives?%s", url.PathEscape(siteID), q.Encode())
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}

	out := &sharepoint.DrivesPage{NextCursor: ExtractCursor(body.NextLink)}
	for _, d := range body.Value {
		out.Drives = append(out.Drives, d.toDomain())
	}
	return out, nil
}

// ListItems lists children of folderID, or of the drive root when
// folderID is empty.
func (c *Client) ListItems(ctx context.Context, siteID, driveID, folderID, cursor string) (*sharepoint.ItemsPage, error) {
	q := url.Values{}
	q.Set("$top", strconv.Itoa(c.pageSize))
	if cursor != "" {
		q.Set("$skiptoken", cursor)
	}

	target := "root"
	if folderID != "" {
		target = "items/" + url.PathEscape(folderID)
	}
	path := fmt.Sprintf("/sites/%s/drives/%s/%s/children?%s",
		url.PathEscape(siteID), url.PathEscape(driveID), target, q.Encode())

	var body page[driveItemDTO]
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}

	out := &sharepoint.ItemsPage{NextCursor: ExtractCursor(body.NextLink)}
	for _, it := range body.Value {
		out.Items = append(out.Items, it.toDomain())
	}
	return out, nil
}

// ListPermissions lists one page of an item's permission set. An empty
// itemID targets the drive root.
func (c *Client) ListPermissions(ctx context.Context, siteID, driveID, itemID, cursor string) (*sharepoint.PermissionsPage, error) {
	q := url.Values{}
	q.Set("$top", strconv.Itoa(c.pageSize))
	if cursor != "" {
		q.Set("$skiptoken", cursor)
	}

	target := "root"
	if itemID != "" {
		target = "items/" + url.PathEscape(itemID)
	}
	path := fmt.Sprintf("/sites/%s/drives/%s/%s/permissions?%s",
		url.PathEscape(siteID), url.PathEscape(driveID), target, q.Encode())

	var body page[permissionDTO]
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}

	out := &sharepoint.PermissionsPage{NextCursor: ExtractCursor(body.NextLink)}
	for _, p := range body.Value {
		out.Permissions = append(out.Permissions, p.toDomain())
	}
	return out, nil
}

// GetItem fetches a single item; ErrNotFound when it vanished.
func (c *Client) GetItem(ctx context.Context, siteID, driveID, itemID string) (*sharepoint.DriveItem, error) {
	path := fmt.Sprintf("/sites/%s/drives/%s/items/%s",
		url.PathEscape(siteID), url.PathEscape(driveID), url.PathEscape(itemID))

	var body driveItemDTO
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}
	item := body.toDomain()
	return &item, nil
}

// DeleteItem removes an item; ErrNotFound when already gone.
func (c *Client) DeleteItem(ctx context.Context, siteID, driveID, itemID string) error {
	path := fmt.Sprintf("/sites/%s/drives/%s/items/%s",
		url.PathEscape(siteID), url.PathEscape(driveID), url.PathEscape(itemID))
	return c.doNoContent(ctx, http.MethodDelete, path, nil)
}

// DeletePermission removes one grant; ErrNotFound when already gone.
func (c *Client) DeletePermission(ctx context.Context, siteID, driveID, itemID, permissionID string) error {
	path := fmt.Sprintf("/sites/%s/drives/%s/items/%s/permissions/%s",
		url.PathEscape(siteID), url.PathEscape(driveID), url.PathEscape(itemID), url.PathEscape(permissionID))
	return c.doNoContent(ctx, http.MethodDelete, path, nil)
}

// GetDelta pulls one page of the drive change feed. Without a cursor the
// feed enumerates the entire drive; with one it resumes from that token.
func (c *Client) GetDelta(ctx context.Context, siteID, driveID, cursor string) (*sharepoint.DeltaPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("token", cursor)
	}
	path := fmt.Sprintf("/sites/%s/drives/%s/root/delta",
		url.PathEscape(siteID), url.PathEscape(driveID))
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	var body page[driveItemDTO]
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}

	out := &sharepoint.DeltaPage{
		NextCursor: ExtractCursor(body.NextLink),
		DeltaToken: ExtractCursor(body.DeltaLink),
	}
	for _, it := range body.Value {
		out.Items = append(out.Items, it.toDomain())
	}
	return out, nil
}

// CreateSubscription registers a change-notification subscription on the
// drive root.
func (c *Client) CreateSubscription(ctx context.Context, siteID, driveID, notificationURL, clientState string, expiresAt time.Time) (*sharepoint.Subscription, error) {
	payload := map[string]string{
		"changeType":         "updated",
		"notificationUrl":    notificationURL,
		"resource":           fmt.Sprintf("sites/%s/drives/%s/root", siteID, driveID),
		"clientState":        clientState,
		"expirationDateTime": expiresAt.UTC().Format(time.RFC3339),
	}

	var body subscriptionDTO
	if err := c.sendJSON(ctx, http.MethodPost, "/subscriptions", payload, &body); err != nil {
		return nil, err
	}
	return body.toDomain(), nil
}

// RenewSubscription extends a subscription's expiry.
func (c *Client) RenewSubscription(ctx context.Context, subscriptionID string, expiresAt time.Time) (*sharepoint.Subscription, error) {
	payload := map[string]string{
		"expirationDateTime": expiresAt.UTC().Format(time.RFC3339),
	}

	var body subscriptionDTO
	path := "/subscriptions/" + url.PathEscape(subscriptionID)
	if err := c.sendJSON(ctx, http.MethodPatch, path, payload, &body); err != nil {
		return nil, err
	}
	return body.toDomain(), nil
}

// RemoveSubscription deletes a subscription; ErrNotFound when the
// provider no longer knows it.
func (c *Client) RemoveSubscription(ctx context.Context, subscriptionID string) error {
	return c.doNoContent(ctx, http.MethodDelete, "/subscriptions/"+url.PathEscape(subscriptionID), nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	res, err := c.apiCall(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	res, err := c.apiCall(ctx, method, path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if out != nil && res.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response from %s: %w", path, err)
		}
	}
	return nil
}

func (c *Client) doNoContent(ctx context.Context, method, path string, body io.Reader) error {
	res, err := c.apiCall(ctx, method, path, body)
	if err != nil {
		return err
	}
	res.Body.Close()
	return nil
}

// apiCall performs one rate-limited request and maps failure responses
// onto the contracts sentinels.
func (c *Client) apiCall(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	c.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: %v", contracts.ErrReauthRequired, err)
		}
		return nil, fmt.Errorf("%w: %v", contracts.ErrRetryLater, err)
	}

	if res.StatusCode < 400 {
		return res, nil
	}

	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)

	var graphErr graphErrorBody
	code := ""
	if json.Unmarshal(raw, &graphErr) == nil {
		code = graphErr.Error.Code
	}

	c.logger.Provider("provider request failed",
		"method", method,
		"path", path,
		"status", res.StatusCode,
		"code", code)

	return nil, categorize(res.StatusCode, code, graphErr.Error.Message)
}

// categorize maps a Graph failure onto the sentinel taxonomy.
func categorize(status int, code, message string) error {
	switch code {
	case "itemNotFound", "resourceNotFound":
		return fmt.Errorf("%w: %s", contracts.ErrNotFound, message)
	case "activityLimitReached", "serviceNotAvailable", "quotaLimitReached":
		return fmt.Errorf("%w: %s", contracts.ErrRetryLater, message)
	case "unauthenticated", "invalidAuthenticationToken":
		return fmt.Errorf("%w: %s", contracts.ErrReauthRequired, message)
	case "invalidRequest", "malformedEntityTag":
		return fmt.Errorf("%w: %s", contracts.ErrInvalidRequest, message)
	}

	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return fmt.Errorf("%w: status %d", contracts.ErrNotFound, status)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", contracts.ErrReauthRequired, status)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status %d", contracts.ErrRetryLater, status)
	default:
		return fmt.Errorf("%w: status %d: %s", contracts.ErrInvalidRequest, status, message)
	}
}
