// Package application exposes the inbound sync operations consumed by the
// HTTP layer: manual sync triggers, on-demand object refresh and deletion,
// webhook notification handling and organisation install/uninstall.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spsync/domain/contracts"
	"spsync/domain/sharepoint"
	syncdomain "spsync/domain/sync"
	"spsync/logging"
	"spsync/platform/tasks"
	"spsync/platform/workflows"
)

// Lifecycle event names the provider sends about subscriptions themselves.
const (
	LifecycleReauthorizationRequired = "reauthorizationRequired"
	LifecycleSubscriptionRemoved     = "subscriptionRemoved"
)

// LifecycleEvent is one inbound subscription lifecycle notification.
type LifecycleEvent struct {
	SubscriptionID string
	TenantID       string
	Event          string
}

// ChangeEvent is one inbound change notification for a drive root.
type ChangeEvent struct {
	SubscriptionID string
	Resource       string
	TenantID       string
	ClientState    string
}

// DeletionResult buckets a bulk permission deletion. Partial failure
// across many permissions is the expected case, so the outcome is
// reported per bucket instead of raised as an error.
type DeletionResult struct {
	Deleted  []string
	NotFound []string
	Failed   []string
}

// ErrBatchRejected means a change-notification batch failed client-state
// validation and nothing in it was processed.
var ErrBatchRejected = errors.New("notification batch rejected")

// SyncService defines the inbound operations used by the handler layer.
type SyncService interface {
	StartFullSync(ctx context.Context, orgID string) error
	StartIncrementalSync(ctx context.Context, orgID, siteID, driveID, subscriptionID, tenantID string) error
	RefreshObject(ctx context.Context, orgID, itemID string, meta syncdomain.Metadata) error
	DeleteObjectPermissions(ctx context.Context, orgID, itemID string, meta syncdomain.Metadata, permissionIDs []string) (DeletionResult, error)
	DeleteObject(ctx context.Context, orgID, itemID string, meta syncdomain.Metadata) error
	HandleLifecycleNotification(ctx context.Context, events []LifecycleEvent) error
	HandleChangeNotification(ctx context.Context, events []ChangeEvent) error
	InstallOrganisation(ctx context.Context, org *syncdomain.Organisation) error
	RemoveOrganisation(ctx context.Context, orgID string) error
}

// WorkCanceller cancels the in-flight tasks of one organisation.
type WorkCanceller interface {
	CancelOrg(orgID string)
}

// SyncServiceConfig tunes the service.
type SyncServiceConfig struct {
	// SignalWaitTimeout bounds the uninstall flow's wait for the
	// per-drive subscription teardown signals.
	SignalWaitTimeout time.Duration
}

// SyncServiceImpl is the production implementation of SyncService.
type SyncServiceImpl struct {
	cfg       SyncServiceConfig
	orgs      contracts.OrganisationRepository
	states    contracts.DriveSyncStateRepository
	providers contracts.ProviderClientFactory
	posture   contracts.PostureClient
	enqueuer  tasks.Enqueuer
	signals   *tasks.SignalBus
	canceller WorkCanceller
	logger    *logging.Logger
	now       func() time.Time
}

// NewSyncService wires the sync service.
func NewSyncService(
	cfg SyncServiceConfig,
	orgs contracts.OrganisationRepository,
	states contracts.DriveSyncStateRepository,
	providers contracts.ProviderClientFactory,
	posture contracts.PostureClient,
	enqueuer tasks.Enqueuer,
	signals *tasks.SignalBus,
	canceller WorkCanceller,
	logger *logging.Logger,
) SyncService {
	if cfg.SignalWaitTimeout <= 0 {
		cfg.SignalWaitTimeout = 24 * time.Hour
	}
	return &SyncServiceImpl{
		cfg:       cfg,
		orgs:      orgs,
		states:    states,
		providers: providers,
		posture:   posture,
		enqueuer:  enqueuer,
		signals:   signals,
		canceller: canceller,
		logger:    logger.WithComponent("sync_service"),
		now:       time.Now,
	}
}

// StartFullSync enqueues a fresh full-tree crawl for the organisation.
func (s *SyncServiceImpl) StartFullSync(ctx context.Context, orgID string) error {
	startedAt := s.now()
	err := s.enqueuer.Enqueue(ctx, tasks.Task{
		Kind:   workflows.KindSitesCrawl,
		OrgID:  orgID,
		Params: workflows.SitesCrawlParams{SyncStartedAt: startedAt},
	})
	if err != nil {
		return err
	}
	s.logger.Sync("full sync started", orgID,
		slog.Time("sync_started_at", startedAt))
	return nil
}

// StartIncrementalSync enqueues one delta pull for the drive.
func (s *SyncServiceImpl) StartIncrementalSync(ctx context.Context, orgID, siteID, driveID, subscriptionID, tenantID string) error {
	return s.enqueuer.Enqueue(ctx, tasks.Task{
		Kind:  workflows.KindDeltaSync,
		OrgID: orgID,
		Params: workflows.DeltaSyncParams{
			SiteID:         siteID,
			DriveID:        driveID,
			SubscriptionID: subscriptionID,
			TenantID:       tenantID,
		},
	})
}

func (s *SyncServiceImpl) client(ctx context.Context, orgID string) (contracts.ProviderClient, error) {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, fmt.Errorf("organisation %s not found", orgID)
	}
	return s.providers.ForOrganisation(ctx, org)
}

// RefreshObject re-reads one item and its permissions from the provider
// and pushes the result downstream. An item that vanished upstream, or
// one whose permissions no longer classify as reportable, is retracted.
func (s *SyncServiceImpl) RefreshObject(ctx context.Context, orgID, itemID string, meta syncdomain.Metadata) error {
	client, err := s.client(ctx, orgID)
	if err != nil {
		return err
	}

	item, err := client.GetItem(ctx, meta.SiteID, meta.DriveID, itemID)
	if errors.Is(err, contracts.ErrNotFound) || (err == nil && item == nil) {
		return s.posture.DeleteObjects(ctx, orgID, []string{itemID})
	}
	if err != nil {
		return err
	}

	perms, err := s.fetchAllPermissions(ctx, client, meta, itemID)
	if err != nil {
		return err
	}

	obj, ok := syncdomain.BuildObject(*item, perms, meta, s.now())
	if !ok {
		return s.posture.DeleteObjects(ctx, orgID, []string{itemID})
	}
	return s.posture.UpdateObjects(ctx, orgID, []syncdomain.Object{obj})
}

// DeleteObjectPermissions removes the given permissions from one item and
// buckets the per-permission outcomes. A permission already gone upstream
// means downstream state is stale, so any not-found outcome retracts the
// whole object once.
func (s *SyncServiceImpl) DeleteObjectPermissions(ctx context.Context, orgID, itemID string, meta syncdomain.Metadata, permissionIDs []string) (DeletionResult, error) {
	client, err := s.client(ctx, orgID)
	if err != nil {
		return DeletionResult{}, err
	}

	var result DeletionResult
	for _, permID := range permissionIDs {
		err := client.DeletePermission(ctx, meta.SiteID, meta.DriveID, itemID, permID)
		switch {
		case err == nil:
			result.Deleted = append(result.Deleted, permID)
		case errors.Is(err, contracts.ErrNotFound):
			result.NotFound = append(result.NotFound, permID)
		default:
			s.logger.SyncError("permission deletion failed", err, orgID,
				slog.String("item_id", itemID),
				slog.String("permission_id", permID))
			result.Failed = append(result.Failed, permID)
		}
	}

	if len(result.NotFound) > 0 {
		if err := s.posture.DeleteObjects(ctx, orgID, []string{itemID}); err != nil {
			return result, err
		}
	}
	return result, nil
}

// DeleteObject removes the item upstream and retracts it downstream. An
// item the provider no longer knows counts as deleted.
func (s *SyncServiceImpl) DeleteObject(ctx context.Context, orgID, itemID string, meta syncdomain.Metadata) error {
	client, err := s.client(ctx, orgID)
	if err != nil {
		return err
	}

	if err := client.DeleteItem(ctx, meta.SiteID, meta.DriveID, itemID); err != nil && !errors.Is(err, contracts.ErrNotFound) {
		return err
	}
	return s.posture.DeleteObjects(ctx, orgID, []string{itemID})
}

// HandleLifecycleNotification reacts to provider notices about the
// subscriptions themselves. Reauthorization extends the expiry; a removed
// subscription is re-established so the drive keeps its change feed.
// Events for subscriptions this connector does not track are dropped.
func (s *SyncServiceImpl) HandleLifecycleNotification(ctx context.Context, events []LifecycleEvent) error {
	for _, event := range events {
		state, err := s.states.FindBySubscriptionID(ctx, event.SubscriptionID)
		if err != nil {
			return err
		}
		if state == nil {
			s.logger.Warn("lifecycle event for unknown subscription",
				"subscription_id", event.SubscriptionID, "event", event.Event)
			continue
		}

		switch event.Event {
		case LifecycleReauthorizationRequired:
			err = s.enqueuer.Enqueue(ctx, tasks.Task{
				Kind:   workflows.KindSubscriptionRenew,
				OrgID:  state.OrgID,
				Params: workflows.SubscriptionRenewParams{SubscriptionID: event.SubscriptionID},
			})
		case LifecycleSubscriptionRemoved:
			err = s.enqueuer.Enqueue(ctx, tasks.Task{
				Kind:   workflows.KindSubscriptionCreate,
				OrgID:  state.OrgID,
				Params: workflows.SubscriptionCreateParams{SiteID: state.SiteID, DriveID: state.DriveID},
			})
		default:
			s.logger.Warn("unrecognized lifecycle event",
				"subscription_id", event.SubscriptionID, "event", event.Event)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// HandleChangeNotification validates and dispatches a batch of change
// notifications. Validation is all-or-nothing: any unknown subscription or
// client-state mismatch rejects the entire batch before anything is
// enqueued. Malformed resource paths within a valid batch are logged and
// dropped without failing the rest.
func (s *SyncServiceImpl) HandleChangeNotification(ctx context.Context, events []ChangeEvent) error {
	states := make([]*syncdomain.DriveSyncState, len(events))
	for i, event := range events {
		state, err := s.states.FindBySubscriptionID(ctx, event.SubscriptionID)
		if err != nil {
			return err
		}
		if state == nil || state.SubscriptionClientState != event.ClientState {
			s.logger.Security("change notification failed validation",
				"subscription_id", event.SubscriptionID)
			return ErrBatchRejected
		}
		states[i] = state
	}

	for i, event := range events {
		siteID, driveID, ok := parseDriveResource(event.Resource)
		if !ok {
			s.logger.Warn("dropping malformed notification resource",
				"resource", event.Resource, "subscription_id", event.SubscriptionID)
			continue
		}
		err := s.StartIncrementalSync(ctx, states[i].OrgID, siteID, driveID, event.SubscriptionID, event.TenantID)
		if err != nil {
			return err
		}
	}
	return nil
}

// parseDriveResource extracts site and drive ids from a notification
// resource path shaped `.../sites/{id}/drives/{id}/root` by positional
// segment matching.
func parseDriveResource(resource string) (siteID, driveID string, ok bool) {
	segments := strings.Split(strings.Trim(resource, "/"), "/")
	for i := 0; i+4 < len(segments); i++ {
		if segments[i] == "sites" && segments[i+2] == "drives" && segments[i+4] == "root" {
			if segments[i+1] == "" || segments[i+3] == "" {
				return "", "", false
			}
			return segments[i+1], segments[i+3], true
		}
	}
	return "", "", false
}

// InstallOrganisation persists the organisation record, cancels any sync
// already running against stale credentials and starts the first full
// crawl.
func (s *SyncServiceImpl) InstallOrganisation(ctx context.Context, org *syncdomain.Organisation) error {
	if err := s.orgs.Upsert(ctx, org); err != nil {
		return err
	}
	s.canceller.CancelOrg(org.ID)

	err := s.enqueuer.Enqueue(ctx, tasks.Task{
		Kind:   workflows.KindSitesCrawl,
		OrgID:  org.ID,
		Params: workflows.SitesCrawlParams{SyncStartedAt: s.now(), IsFirstSync: true},
	})
	if err != nil {
		return err
	}

	s.logger.Sync("organisation installed", org.ID,
		slog.String("tenant_id", org.TenantID),
		slog.String("region", org.Region))
	return nil
}

// RemoveOrganisation tears an organisation down: the connection is marked
// errored first so the platform reflects the loss of access immediately,
// in-flight work is cancelled, every drive's subscription is removed via
// fan-out, and only then are the local rows deleted.
func (s *SyncServiceImpl) RemoveOrganisation(ctx context.Context, orgID string) error {
	if err := s.posture.UpdateConnectionStatus(ctx, orgID, true); err != nil {
		return err
	}
	s.canceller.CancelOrg(orgID)

	states, err := s.states.ListForOrg(ctx, orgID)
	if err != nil {
		return err
	}

	var signalNames []string
	for _, state := range states {
		if state.SubscriptionID == "" {
			continue
		}
		err := s.enqueuer.Enqueue(ctx, tasks.Task{
			Kind:  workflows.KindSubscriptionRemove,
			OrgID: orgID,
			Params: workflows.SubscriptionRemoveParams{
				DriveID:        state.DriveID,
				SubscriptionID: state.SubscriptionID,
			},
		})
		if err != nil {
			return err
		}
		signalNames = append(signalNames, workflows.SubscriptionRemovedSignal(orgID, state.DriveID))
	}

	if err := s.signals.WaitAll(ctx, signalNames, s.cfg.SignalWaitTimeout); err != nil {
		return err
	}

	if err := s.orgs.Delete(ctx, orgID); err != nil {
		return err
	}

	s.logger.Sync("organisation removed", orgID,
		slog.Int("drives_torn_down", len(signalNames)))
	return nil
}

func (s *SyncServiceImpl) fetchAllPermissions(ctx context.Context, client contracts.ProviderClient, meta syncdomain.Metadata, itemID string) ([]sharepoint.Permission, error) {
	var all []sharepoint.Permission
	cursor := ""
	for {
		page, err := client.ListPermissions(ctx, meta.SiteID, meta.DriveID, itemID, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Permissions...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}
