// Package handlers exposes the connector's HTTP surface: the provider
// webhook endpoints, the admin operations and the health check.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"spsync/application"
	"spsync/database"
	syncdomain "spsync/domain/sync"
	"spsync/logging"
)

// SyncHandlers handles the webhook and admin HTTP endpoints.
type SyncHandlers struct {
	syncService application.SyncService
	db          *database.Database
	logger      *logging.Logger
}

// NewSyncHandlers creates the handler set.
func NewSyncHandlers(syncService application.SyncService, db *database.Database) *SyncHandlers {
	return &SyncHandlers{
		syncService: syncService,
		db:          db,
		logger:      logging.Default().WithComponent("sync_handler"),
	}
}

// RegisterRoutes mounts every endpoint on the router.
func (h *SyncHandlers) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/notifications", h.HandleChangeNotifications)
	r.Post("/webhooks/lifecycle", h.HandleLifecycleNotifications)

	r.Route("/admin/organisations", func(r chi.Router) {
		r.Post("/", h.InstallOrganisation)
		r.Route("/{orgID}", func(r chi.Router) {
			r.Delete("/", h.RemoveOrganisation)
			r.Post("/sync", h.StartFullSync)
			r.Route("/objects/{itemID}", func(r chi.Router) {
				r.Post("/refresh", h.RefreshObject)
				r.Post("/permissions/delete", h.DeleteObjectPermissions)
				r.Delete("/", h.DeleteObject)
			})
		})
	})

	r.Get("/health", h.Health)
}

// notificationBatch is the provider's webhook envelope.
type notificationBatch struct {
	Value []notificationEntry `json:"value"`
}

type notificationEntry struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientState    string `json:"clientState"`
	Resource       string `json:"resource"`
	TenantID       string `json:"tenantId"`
	LifecycleEvent string `json:"lifecycleEvent"`
}

// HandleChangeNotifications processes inbound change notifications. A
// subscription handshake (validationToken query parameter) is echoed back
// in plain text. A batch that fails client-state validation is answered
// with 404 so the provider sees the endpoint as gone rather than learning
// which entry failed.
func (h *SyncHandlers) HandleChangeNotifications(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(token))
		return
	}

	var batch notificationBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.logger.Warn("malformed notification payload", "error", err)
		http.NotFound(w, r)
		return
	}

	events := make([]application.ChangeEvent, 0, len(batch.Value))
	for _, entry := range batch.Value {
		events = append(events, application.ChangeEvent{
			SubscriptionID: entry.SubscriptionID,
			Resource:       entry.Resource,
			TenantID:       entry.TenantID,
			ClientState:    entry.ClientState,
		})
	}

	if err := h.syncService.HandleChangeNotification(r.Context(), events); err != nil {
		h.logger.Warn("change notification batch rejected", "error", err)
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleLifecycleNotifications processes subscription lifecycle events.
func (h *SyncHandlers) HandleLifecycleNotifications(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(token))
		return
	}

	var batch notificationBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.logger.Warn("malformed lifecycle payload", "error", err)
		http.NotFound(w, r)
		return
	}

	events := make([]application.LifecycleEvent, 0, len(batch.Value))
	for _, entry := range batch.Value {
		events = append(events, application.LifecycleEvent{
			SubscriptionID: entry.SubscriptionID,
			TenantID:       entry.TenantID,
			Event:          entry.LifecycleEvent,
		})
	}

	if err := h.syncService.HandleLifecycleNotification(r.Context(), events); err != nil {
		h.logger.Error("lifecycle notification handling failed", "error", err)
		http.Error(w, "lifecycle handling failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type installRequest struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Region   string `json:"region"`
	Token    string `json:"token"`
}

// InstallOrganisation registers an organisation and starts its first sync.
func (h *SyncHandlers) InstallOrganisation(w http.ResponseWriter, r *http.Request) {
	var req installRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.TenantID == "" || req.Token == "" {
		http.Error(w, "id, tenantId and token are required", http.StatusBadRequest)
		return
	}

	org := &syncdomain.Organisation{
		ID:       req.ID,
		TenantID: req.TenantID,
		Region:   req.Region,
		Token:    req.Token,
	}
	if err := h.syncService.InstallOrganisation(r.Context(), org); err != nil {
		h.logger.Error("organisation install failed", "org_id", req.ID, "error", err)
		http.Error(w, "install failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// RemoveOrganisation uninstalls an organisation and tears down its
// subscriptions.
func (h *SyncHandlers) RemoveOrganisation(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if err := h.syncService.RemoveOrganisation(r.Context(), orgID); err != nil {
		h.logger.Error("organisation removal failed", "org_id", orgID, "error", err)
		http.Error(w, "removal failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartFullSync triggers a full crawl for one organisation.
func (h *SyncHandlers) StartFullSync(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	if err := h.syncService.StartFullSync(r.Context(), orgID); err != nil {
		h.logger.Error("full sync trigger failed", "org_id", orgID, "error", err)
		http.Error(w, "sync trigger failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type objectRequest struct {
	SiteID        string   `json:"siteId"`
	DriveID       string   `json:"driveId"`
	PermissionIDs []string `json:"permissionIds"`
}

func (h *SyncHandlers) objectParams(w http.ResponseWriter, r *http.Request) (orgID, itemID string, req objectRequest, ok bool) {
	orgID = chi.URLParam(r, "orgID")
	itemID = chi.URLParam(r, "itemID")
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return "", "", objectRequest{}, false
	}
	if req.SiteID == "" || req.DriveID == "" {
		http.Error(w, "siteId and driveId are required", http.StatusBadRequest)
		return "", "", objectRequest{}, false
	}
	return orgID, itemID, req, true
}

// RefreshObject re-syncs a single object on demand.
func (h *SyncHandlers) RefreshObject(w http.ResponseWriter, r *http.Request) {
	orgID, itemID, req, ok := h.objectParams(w, r)
	if !ok {
		return
	}

	meta := syncdomain.Metadata{SiteID: req.SiteID, DriveID: req.DriveID}
	if err := h.syncService.RefreshObject(r.Context(), orgID, itemID, meta); err != nil {
		h.logger.Error("object refresh failed", "org_id", orgID, "item_id", itemID, "error", err)
		http.Error(w, "refresh failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deletePermissionsResponse struct {
	DeletedPermissions          []string `json:"deletedPermissions"`
	NotFoundPermissions         []string `json:"notFoundPermissions"`
	UnexpectedFailedPermissions []string `json:"unexpectedFailedPermissions"`
}

// DeleteObjectPermissions removes a set of permissions from one object and
// reports the per-permission outcomes.
func (h *SyncHandlers) DeleteObjectPermissions(w http.ResponseWriter, r *http.Request) {
	orgID, itemID, req, ok := h.objectParams(w, r)
	if !ok {
		return
	}

	meta := syncdomain.Metadata{SiteID: req.SiteID, DriveID: req.DriveID}
	result, err := h.syncService.DeleteObjectPermissions(r.Context(), orgID, itemID, meta, req.PermissionIDs)
	if err != nil {
		h.logger.Error("permission deletion failed", "org_id", orgID, "item_id", itemID, "error", err)
		http.Error(w, "permission deletion failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(deletePermissionsResponse{
		DeletedPermissions:          result.Deleted,
		NotFoundPermissions:         result.NotFound,
		UnexpectedFailedPermissions: result.Failed,
	})
}

// DeleteObject removes one object upstream and downstream.
func (h *SyncHandlers) DeleteObject(w http.ResponseWriter, r *http.Request) {
	orgID, itemID, req, ok := h.objectParams(w, r)
	if !ok {
		return
	}

	meta := syncdomain.Metadata{SiteID: req.SiteID, DriveID: req.DriveID}
	if err := h.syncService.DeleteObject(r.Context(), orgID, itemID, meta); err != nil {
		h.logger.Error("object deletion failed", "org_id", orgID, "item_id", itemID, "error", err)
		http.Error(w, "deletion failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health reports service and database pool health.
func (h *SyncHandlers) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.Health()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"database": stats,
	})
}
