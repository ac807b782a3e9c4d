package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"spsync/domain/contracts"
	syncdomain "spsync/domain/sync"
	"spsync/platform/tasks"
)

// ItemsCrawlParams carries the resumable state of one folder walk. An
// empty FolderID means the drive's top-level walk. ParentPermissionIDs
// is the containing folder's permission-id set carried across pages and
// into child crawls; ParentPaginated records whether that set came from
// an exhausted pagination, because a partial set must be re-fetched
// before it can be trusted for inheritance stripping.
type ItemsCrawlParams struct {
	SiteID              string
	DriveID             string
	FolderID            string
	Cursor              string
	SyncStartedAt       time.Time
	IsFirstSync         bool
	ParentPermissionIDs []string
	ParentPaginated     bool
	Depth               int
}

func (w *Workflows) handleItemsCrawl(ctx context.Context, task tasks.Task) error {
	params, ok := task.Params.(ItemsCrawlParams)
	if !ok {
		return tasks.NonRetriable(fmt.Errorf("items crawl: unexpected params %T", task.Params))
	}
	_, err := w.ItemsCrawl(ctx, task.OrgID, params)
	return err
}

// ItemsCrawl walks one page of a folder's children: fetches each item's
// full permission set with bounded concurrency, strips permissions
// inherited from the containing folder, reports the survivors, recurses
// into subfolders and waits for their completion. On the final top-level
// page it raises items-complete and establishes the drive's change
// subscription and delta cursor, exactly once per drive.
func (w *Workflows) ItemsCrawl(ctx context.Context, orgID string, params ItemsCrawlParams) (Result, error) {
	if params.Depth > w.cfg.MaxFolderDepth {
		// Signal the parent so the surrounding walk can still complete,
		// then abort this branch: a hierarchy this deep means a
		// malformed parent-reference cycle.
		w.signalCompletion(orgID, params)
		return Result{}, tasks.NonRetriable(fmt.Errorf(
			"folder depth %d exceeds limit %d in drive %s", params.Depth, w.cfg.MaxFolderDepth, params.DriveID))
	}

	_, client, err := w.organisation(ctx, orgID)
	if err != nil {
		return Result{}, err
	}

	parentIDs, err := w.parentPermissionIDs(ctx, client, params)
	if err != nil {
		return Result{}, err
	}

	page, err := client.ListItems(ctx, params.SiteID, params.DriveID, params.FolderID, params.Cursor)
	if err != nil {
		return Result{}, err
	}

	// Vanished ids are ignored here: an item gone mid-crawl was never
	// reported, and the tombstone sweep covers anything already stored.
	batch, _, err := w.fetchBatchPermissions(ctx, client, params.SiteID, params.DriveID, page.Items)
	if err != nil {
		return Result{}, err
	}

	stripped := syncdomain.StripInherited(parentIDs, batch)

	meta := syncdomain.Metadata{SiteID: params.SiteID, DriveID: params.DriveID}
	var objects []syncdomain.Object
	for _, ip := range stripped {
		if len(ip.Permissions) == 0 {
			continue
		}
		if obj, ok := syncdomain.BuildObject(ip.Item, ip.Permissions, meta, w.now()); ok {
			objects = append(objects, obj)
		}
	}
	if len(objects) > 0 {
		if err := w.posture.UpdateObjects(ctx, orgID, objects); err != nil {
			return Result{}, err
		}
	}

	// Recurse into subfolders, handing each its own full permission set
	// so grandchildren get the complete ancestry stripped.
	var signalNames []string
	for _, ip := range batch {
		if !ip.Item.IsFolder() {
			continue
		}
		childParams := ItemsCrawlParams{
			SiteID:              params.SiteID,
			DriveID:             params.DriveID,
			FolderID:            ip.Item.ID,
			SyncStartedAt:       params.SyncStartedAt,
			IsFirstSync:         params.IsFirstSync,
			ParentPermissionIDs: permissionIDs(ip),
			ParentPaginated:     ip.Paginated,
			Depth:               params.Depth + 1,
		}
		if err := w.enqueuer.Enqueue(ctx, tasks.Task{Kind: KindItemsCrawl, OrgID: orgID, Params: childParams}); err != nil {
			return Result{}, err
		}
		signalNames = append(signalNames, FolderCompleteSignal(orgID, params.DriveID, ip.Item.ID))
	}

	if err := w.signals.WaitAll(ctx, signalNames, w.cfg.SignalWaitTimeout); err != nil {
		return Result{}, err
	}

	if page.NextCursor != "" {
		next := params
		next.Cursor = page.NextCursor
		next.ParentPermissionIDs = parentIDs.ToSlice()
		next.ParentPaginated = true
		if err := w.enqueuer.Enqueue(ctx, tasks.Task{Kind: KindItemsCrawl, OrgID: orgID, Params: next}); err != nil {
			return Result{}, err
		}
		return ongoing, nil
	}

	w.signalCompletion(orgID, params)

	if params.FolderID == "" {
		if err := w.initializeDelta(ctx, orgID, params); err != nil {
			return Result{}, err
		}
	}
	return completed, nil
}

// parentPermissionIDs resolves the containing folder's permission-id
// set. A carried set is trusted only when it came from an exhausted
// pagination; otherwise the folder's permissions are re-paginated in
// full. An empty FolderID resolves the drive root's permissions.
func (w *Workflows) parentPermissionIDs(ctx context.Context, client contracts.ProviderClient, params ItemsCrawlParams) (mapset.Set[string], error) {
	if params.ParentPermissionIDs != nil && params.ParentPaginated {
		return mapset.NewThreadUnsafeSet(params.ParentPermissionIDs...), nil
	}

	perms, err := fetchAllPermissions(ctx, client, params.SiteID, params.DriveID, params.FolderID)
	if err != nil {
		return nil, err
	}
	return syncdomain.PermissionIDSet(perms), nil
}

func (w *Workflows) signalCompletion(orgID string, params ItemsCrawlParams) {
	if params.FolderID != "" {
		w.signals.Signal(FolderCompleteSignal(orgID, params.DriveID, params.FolderID))
		return
	}
	w.signals.Signal(ItemsCompleteSignal(orgID, params.DriveID))
}

// initializeDelta establishes the drive's subscription and starting
// cursor once, after its first full crawl.
func (w *Workflows) initializeDelta(ctx context.Context, orgID string, params ItemsCrawlParams) error {
	state, err := w.states.Get(ctx, orgID, params.DriveID)
	if err != nil {
		return err
	}
	if state != nil {
		return nil
	}

	w.logger.Sync("initializing delta tracking", orgID,
		slog.String("site_id", params.SiteID),
		slog.String("drive_id", params.DriveID))

	return w.enqueuer.Enqueue(ctx, tasks.Task{
		Kind:   KindSubscriptionCreate,
		OrgID:  orgID,
		Params: SubscriptionCreateParams{SiteID: params.SiteID, DriveID: params.DriveID},
	})
}

func permissionIDs(ip syncdomain.ItemPermissions) []string {
	ids := make([]string, 0, len(ip.Permissions))
	for _, p := range ip.Permissions {
		ids = append(ids, p.ID)
	}
	return ids
}
