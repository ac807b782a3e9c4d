package workflows

import (
	"context"
	"fmt"
	"log/slog"

	"spsync/domain/contracts"
	"spsync/domain/sharepoint"
	syncdomain "spsync/domain/sync"
	"spsync/platform/tasks"
)

// DeltaSyncParams carries one incremental reconciliation. Cursor is the
// mid-pull pagination cursor of a continuation; the first invocation of
// a pull leaves it empty and resumes from the persisted delta token.
// IsFirstSync short-circuits reporting so the pull only captures the
// starting cursor after the initial crawl.
type DeltaSyncParams struct {
	SiteID         string
	DriveID        string
	SubscriptionID string
	TenantID       string
	Cursor         string
	IsFirstSync    bool
}

func (w *Workflows) handleDeltaSync(ctx context.Context, task tasks.Task) error {
	params, ok := task.Params.(DeltaSyncParams)
	if !ok {
		return tasks.NonRetriable(fmt.Errorf("delta sync: unexpected params %T", task.Params))
	}
	_, err := w.DeltaSync(ctx, task.OrgID, params)
	return err
}

// DeltaSync consumes one page of a drive's change feed: partitions
// tombstoned from updated records, re-fetches permissions for the
// updated ones, reconciles inheritance across the batch and pushes the
// net changes downstream. The delta token is persisted only once the
// whole multi-page pull is exhausted, so the stored cursor always points
// at a page boundary.
func (w *Workflows) DeltaSync(ctx context.Context, orgID string, params DeltaSyncParams) (Result, error) {
	state, err := w.states.GetBySubscription(ctx, orgID, params.SiteID, params.DriveID, params.SubscriptionID)
	if err != nil {
		return Result{}, err
	}
	if state == nil {
		return Result{}, tasks.NonRetriable(fmt.Errorf(
			"no sync state for drive %s subscription %s", params.DriveID, params.SubscriptionID))
	}

	_, client, err := w.organisation(ctx, orgID)
	if err != nil {
		return Result{}, err
	}

	cursor := params.Cursor
	if cursor == "" {
		cursor = state.DeltaToken
	}

	page, err := client.GetDelta(ctx, params.SiteID, params.DriveID, cursor)
	if err != nil {
		return Result{}, err
	}

	var deletedIDs []string
	var updated []sharepoint.DriveItem
	for _, item := range page.Items {
		if item.IsRoot() {
			continue
		}
		if item.Deleted {
			deletedIDs = append(deletedIDs, item.ID)
			continue
		}
		updated = append(updated, item)
	}

	if !params.IsFirstSync {
		if err := w.reportDeltaChanges(ctx, client, orgID, params, updated, deletedIDs); err != nil {
			return Result{}, err
		}
	}

	if page.NextCursor != "" {
		next := params
		next.Cursor = page.NextCursor
		if err := w.enqueuer.Enqueue(ctx, tasks.Task{Kind: KindDeltaSync, OrgID: orgID, Params: next}); err != nil {
			return Result{}, err
		}
		return ongoing, nil
	}

	if page.DeltaToken == "" {
		return Result{}, tasks.NonRetriable(fmt.Errorf(
			"delta pull for drive %s returned neither continuation nor delta cursor", params.DriveID))
	}

	if err := w.states.UpdateDeltaToken(ctx, orgID, params.DriveID, page.DeltaToken); err != nil {
		return Result{}, err
	}

	w.logger.Sync("delta pull completed", orgID,
		slog.String("drive_id", params.DriveID),
		slog.Bool("first_sync", params.IsFirstSync))
	return completed, nil
}

// reportDeltaChanges pushes the net effect of one delta page: one
// updateObjects for reportable survivors, one deleteObjects for the
// union of tombstoned ids, ids that vanished mid-fetch and ids stripped
// or classified down to nothing.
func (w *Workflows) reportDeltaChanges(ctx context.Context, client contracts.ProviderClient, orgID string, params DeltaSyncParams, updated []sharepoint.DriveItem, deletedIDs []string) error {
	var batch []syncdomain.ItemPermissions
	if len(updated) > 0 {
		fetched, vanished, err := w.fetchBatchPermissions(ctx, client, params.SiteID, params.DriveID, updated)
		if err != nil {
			return err
		}
		batch = fetched
		// An updated item that 404s before its permissions load is gone;
		// retract it alongside the tombstoned ones.
		deletedIDs = append(deletedIDs, vanished...)
	}

	toUpdate, toDelete := syncdomain.ReconcileAgainstSiblings(batch)

	meta := syncdomain.Metadata{SiteID: params.SiteID, DriveID: params.DriveID}
	var objects []syncdomain.Object
	for _, ip := range toUpdate {
		obj, ok := syncdomain.BuildObject(ip.Item, ip.Permissions, meta, w.now())
		if !ok {
			// Everything it had was unsupported or inherited; retract it.
			toDelete = append(toDelete, ip.Item.ID)
			continue
		}
		objects = append(objects, obj)
	}

	if len(objects) > 0 {
		if err := w.posture.UpdateObjects(ctx, orgID, objects); err != nil {
			return err
		}
	}

	allDeletes := append(deletedIDs, toDelete...)
	if len(allDeletes) > 0 {
		if err := w.posture.DeleteObjects(ctx, orgID, allDeletes); err != nil {
			return err
		}
	}
	return nil
}
