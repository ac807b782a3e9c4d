// Package workflows implements the sync engine: the recursive tree
// crawler, the delta reconciler, the subscription lifecycle tasks and the
// periodic orchestrator. Each workflow is an independently resumable,
// paginated unit of work executed on the platform/tasks substrate.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"spsync/domain/contracts"
	"spsync/domain/sharepoint"
	syncdomain "spsync/domain/sync"
	"spsync/logging"
	"spsync/platform/tasks"
)

// Task kinds handled by this package.
const (
	KindSitesCrawl         tasks.Kind = "sites_crawl"
	KindDrivesCrawl        tasks.Kind = "drives_crawl"
	KindItemsCrawl         tasks.Kind = "items_crawl"
	KindDeltaSync          tasks.Kind = "delta_sync"
	KindSubscriptionCreate tasks.Kind = "subscription_create"
	KindSubscriptionRenew  tasks.Kind = "subscription_renew"
	KindSubscriptionRemove tasks.Kind = "subscription_remove"
)

// Status of a finished workflow invocation.
type Status string

const (
	// StatusCompleted means this pagination sequence is exhausted.
	StatusCompleted Status = "completed"
	// StatusOngoing means a continuation carrying the next cursor was
	// enqueued and the sequence resumes there.
	StatusOngoing Status = "ongoing"
)

// Result reports how an invocation ended.
type Result struct {
	Status Status
}

var (
	completed = Result{Status: StatusCompleted}
	ongoing   = Result{Status: StatusOngoing}
)

// Config tunes the workflows.
type Config struct {
	SignalWaitTimeout   time.Duration
	PermissionFetchSize int
	SubscriptionTTL     time.Duration
	NotificationURL     string
	MaxFolderDepth      int
}

func (c Config) withDefaults() Config {
	if c.SignalWaitTimeout <= 0 {
		c.SignalWaitTimeout = 24 * time.Hour
	}
	if c.PermissionFetchSize <= 0 {
		c.PermissionFetchSize = 10
	}
	if c.SubscriptionTTL <= 0 {
		c.SubscriptionTTL = 30 * 24 * time.Hour
	}
	if c.MaxFolderDepth <= 0 {
		c.MaxFolderDepth = 64
	}
	return c
}

// Workflows bundles the sync workflow handlers and their collaborators.
type Workflows struct {
	cfg       Config
	orgs      contracts.OrganisationRepository
	states    contracts.DriveSyncStateRepository
	providers contracts.ProviderClientFactory
	posture   contracts.PostureClient
	enqueuer  tasks.Enqueuer
	signals   *tasks.SignalBus
	logger    *logging.Logger
	now       func() time.Time
}

// New wires the workflow set.
func New(
	cfg Config,
	orgs contracts.OrganisationRepository,
	states contracts.DriveSyncStateRepository,
	providers contracts.ProviderClientFactory,
	posture contracts.PostureClient,
	enqueuer tasks.Enqueuer,
	signals *tasks.SignalBus,
	logger *logging.Logger,
) *Workflows {
	return &Workflows{
		cfg:       cfg.withDefaults(),
		orgs:      orgs,
		states:    states,
		providers: providers,
		posture:   posture,
		enqueuer:  enqueuer,
		signals:   signals,
		logger:    logger.WithComponent("workflows"),
		now:       time.Now,
	}
}

// Register binds every workflow handler onto the runner.
func (w *Workflows) Register(runner *tasks.Runner) {
	runner.Register(KindSitesCrawl, w.handleSitesCrawl)
	runner.Register(KindDrivesCrawl, w.handleDrivesCrawl)
	runner.Register(KindItemsCrawl, w.handleItemsCrawl)
	runner.Register(KindDeltaSync, w.handleDeltaSync)
	runner.Register(KindSubscriptionCreate, w.handleSubscriptionCreate)
	runner.Register(KindSubscriptionRenew, w.handleSubscriptionRenew)
	runner.Register(KindSubscriptionRemove, w.handleSubscriptionRemove)
}

// Completion-signal names. Fan-in waits key on these.

// DrivesCompleteSignal is raised when a site's drive walk finishes.
func DrivesCompleteSignal(orgID, siteID string) string {
	return "drives-complete:" + orgID + ":" + siteID
}

// ItemsCompleteSignal is raised when a drive's top-level item walk
// finishes.
func ItemsCompleteSignal(orgID, driveID string) string {
	return "items-complete:" + orgID + ":" + driveID
}

// FolderCompleteSignal is raised when a folder subtree walk finishes.
func FolderCompleteSignal(orgID, driveID, folderID string) string {
	return "folder-complete:" + orgID + ":" + driveID + ":" + folderID
}

// SubscriptionRemovedSignal is raised when a drive's subscription
// teardown finishes.
func SubscriptionRemovedSignal(orgID, driveID string) string {
	return "subscription-removed:" + orgID + ":" + driveID
}

// organisation resolves the org row and a provider client for it. A
// missing row is a data-integrity violation: the task should never have
// been produced, so it aborts non-retriably.
func (w *Workflows) organisation(ctx context.Context, orgID string) (*syncdomain.Organisation, contracts.ProviderClient, error) {
	org, err := w.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}
	if org == nil {
		return nil, nil, tasks.NonRetriable(fmt.Errorf("organisation %s not found", orgID))
	}

	client, err := w.providers.ForOrganisation(ctx, org)
	if err != nil {
		return nil, nil, err
	}
	return org, client, nil
}

// fetchAllPermissions exhausts the permission pagination of one item.
// An empty itemID targets the drive root.
func fetchAllPermissions(ctx context.Context, client contracts.ProviderClient, siteID, driveID, itemID string) ([]sharepoint.Permission, error) {
	var all []sharepoint.Permission
	cursor := ""
	for {
		page, err := client.ListPermissions(ctx, siteID, driveID, itemID, cursor)
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

// fetchBatchPermissions fetches full permission sets for a batch of
// items with bounded concurrency. Items that vanished upstream (404)
// between the listing and the permission fetch are not failures; they
// are returned separately as vanished ids so the caller can retract
// them.
func (w *Workflows) fetchBatchPermissions(ctx context.Context, client contracts.ProviderClient, siteID, driveID string, items []sharepoint.DriveItem) ([]syncdomain.ItemPermissions, []string, error) {
	results := make([]syncdomain.ItemPermissions, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.PermissionFetchSize)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			perms, err := fetchAllPermissions(gctx, client, siteID, driveID, item.ID)
			if errors.Is(err, contracts.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = syncdomain.ItemPermissions{Item: item, Permissions: perms, Paginated: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var vanished []string
	kept := results[:0]
	for i, ip := range results {
		if ip.Item.ID == "" {
			vanished = append(vanished, items[i].ID)
			continue
		}
		kept = append(kept, ip)
	}
	return kept, vanished, nil
}
