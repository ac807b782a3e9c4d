package spclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spsync/domain/contracts"
	"spsync/infrastructure/config"
	"spsync/logging"
)

func testExpiry() time.Time {
	return time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.ProviderConfig{
		BaseURL:           server.URL,
		PageSize:          10,
		RequestsPerSecond: 1000,
	}
	return New(cfg, server.Client(), logging.NewLogger(logging.DefaultConfig()))
}

func TestClient_GetDelta_PageShapes(t *testing.T) {
	t.Run("intermediate page carries next cursor only", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/sites/s1/drives/d1/root/delta", r.URL.Path)
			fmt.Fprint(w, `{
				"value": [{"id": "i1", "name": "a.txt"}],
				"@odata.nextLink": "https://x/delta?token=next-cursor"
			}`)
		})

		page, err := client.GetDelta(context.Background(), "s1", "d1", "")

		require.NoError(t, err)
		assert.Equal(t, "next-cursor", page.NextCursor)
		assert.Empty(t, page.DeltaToken)
		require.Len(t, page.Items, 1)
	})

	t.Run("final page carries delta token only", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "stored-cursor", r.URL.Query().Get("token"))
			fmt.Fprint(w, `{
				"value": [],
				"@odata.deltaLink": "https://x/delta?token=resume-here"
			}`)
		})

		page, err := client.GetDelta(context.Background(), "s1", "d1", "stored-cursor")

		require.NoError(t, err)
		assert.Empty(t, page.NextCursor)
		assert.Equal(t, "resume-here", page.DeltaToken)
	})

	t.Run("deleted facet maps to tombstone flag", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{
				"value": [
					{"id": "gone", "name": "x", "deleted": {"state": "deleted"}},
					{"id": "kept", "name": "y"}
				],
				"@odata.deltaLink": "https://x/delta?token=t"
			}`)
		})

		page, err := client.GetDelta(context.Background(), "s1", "d1", "")

		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		assert.True(t, page.Items[0].Deleted)
		assert.False(t, page.Items[1].Deleted)
	})
}

func TestClient_ListPermissions_MapsGrantShapes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/s1/drives/d1/items/i1/permissions", r.URL.Path)
		fmt.Fprint(w, `{
			"value": [
				{
					"id": "p1",
					"roles": ["read"],
					"grantedToV2": {"user": {"id": "u1", "displayName": "Alex", "email": "a@x.com"}}
				},
				{
					"id": "p2",
					"link": {"scope": "anonymous", "webUrl": "https://x/s/abc"}
				}
			]
		}`)
	})

	page, err := client.ListPermissions(context.Background(), "s1", "d1", "i1", "")

	require.NoError(t, err)
	require.Len(t, page.Permissions, 2)
	require.NotNil(t, page.Permissions[0].GrantedToV2)
	assert.Equal(t, "u1", page.Permissions[0].GrantedToV2.User.ID)
	require.NotNil(t, page.Permissions[1].Link)
	assert.Equal(t, "anonymous", page.Permissions[1].Link.Scope)
	assert.Empty(t, page.NextCursor)
}

func TestClient_ErrorCategorization(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "item not found code",
			status: http.StatusNotFound,
			body:   `{"error": {"code": "itemNotFound", "message": "gone"}}`,
			want:   contracts.ErrNotFound,
		},
		{
			name:   "throttled",
			status: http.StatusTooManyRequests,
			body:   `{"error": {"code": "activityLimitReached", "message": "slow down"}}`,
			want:   contracts.ErrRetryLater,
		},
		{
			name:   "server error without code",
			status: http.StatusBadGateway,
			body:   `upstream exploded`,
			want:   contracts.ErrRetryLater,
		},
		{
			name:   "auth rejected",
			status: http.StatusUnauthorized,
			body:   `{"error": {"code": "invalidAuthenticationToken", "message": "expired"}}`,
			want:   contracts.ErrReauthRequired,
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   `{"error": {"code": "invalidRequest", "message": "nope"}}`,
			want:   contracts.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := client.GetItem(context.Background(), "s1", "d1", "i1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClient_DeletePermission_NotFoundSurfacesSentinel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"code": "itemNotFound", "message": "already gone"}}`)
	})

	err := client.DeletePermission(context.Background(), "s1", "d1", "i1", "p1")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestClient_CreateSubscription(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/subscriptions", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{
			"id": "sub-1",
			"resource": "sites/s1/drives/d1/root",
			"clientState": "secret",
			"expirationDateTime": "2026-09-30T00:00:00Z"
		}`)
	})

	sub, err := client.CreateSubscription(context.Background(), "s1", "d1",
		"https://connector/webhook", "secret", testExpiry())

	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID)
	assert.Equal(t, "secret", sub.ClientState)
	assert.Equal(t, "sites/s1/drives/d1/root", sub.Resource)
}
