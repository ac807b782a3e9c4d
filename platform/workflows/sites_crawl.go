package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spsync/platform/tasks"
)

// SitesCrawlParams carries the resumable state of one sites walk.
type SitesCrawlParams struct {
	Cursor        string
	SyncStartedAt time.Time
	IsFirstSync   bool
}

func (w *Workflows) handleSitesCrawl(ctx context.Context, task tasks.Task) error {
	params, ok := task.Params.(SitesCrawlParams)
	if !ok {
		return tasks.NonRetriable(fmt.Errorf("sites crawl: unexpected params %T", task.Params))
	}
	_, err := w.SitesCrawl(ctx, task.OrgID, params)
	return err
}

// SitesCrawl walks one page of the organisation's site listing, fans out
// a drives crawl per site and waits for each site's completion signal.
// On the final page it performs the tombstone sweep: every object not
// refreshed since SyncStartedAt is retracted from the posture platform.
func (w *Workflows) SitesCrawl(ctx context.Context, orgID string, params SitesCrawlParams) (Result, error) {
	_, client, err := w.organisation(ctx, orgID)
	if err != nil {
		return Result{}, err
	}

	page, err := client.ListSites(ctx, params.Cursor, params.IsFirstSync)
	if err != nil {
		return Result{}, err
	}

	var signalNames []string
	for _, site := range page.Sites {
		if err := w.enqueuer.Enqueue(ctx, tasks.Task{
			Kind:  KindDrivesCrawl,
			OrgID: orgID,
			Params: DrivesCrawlParams{
				SiteID:        site.ID,
				SyncStartedAt: params.SyncStartedAt,
				IsFirstSync:   params.IsFirstSync,
			},
		}); err != nil {
			return Result{}, err
		}
		signalNames = append(signalNames, DrivesCompleteSignal(orgID, site.ID))
	}

	if err := w.signals.WaitAll(ctx, signalNames, w.cfg.SignalWaitTimeout); err != nil {
		return Result{}, err
	}

	if page.NextCursor != "" {
		next := params
		next.Cursor = page.NextCursor
		if err := w.enqueuer.Enqueue(ctx, tasks.Task{Kind: KindSitesCrawl, OrgID: orgID, Params: next}); err != nil {
			return Result{}, err
		}
		return ongoing, nil
	}

	// Final page: every earlier page already waited for its fan-outs, so
	// the whole multi-page walk is complete here.
	if err := w.posture.DeleteObjectsSyncedBefore(ctx, orgID, params.SyncStartedAt); err != nil {
		return Result{}, err
	}
	if err := w.posture.UpdateConnectionStatus(ctx, orgID, false); err != nil {
		return Result{}, err
	}

	w.logger.Sync("full sync completed", orgID,
		slog.Time("sync_started_at", params.SyncStartedAt),
		slog.Bool("first_sync", params.IsFirstSync))
	return completed, nil
}
