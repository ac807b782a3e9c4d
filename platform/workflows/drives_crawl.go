package workflows

import (
	"context"
	"fmt"
	"time"

	"spsync/platform/tasks"
)

// DrivesCrawlParams carries the resumable state of one site's drive walk.
type DrivesCrawlParams struct {
	SiteID        string
	Cursor        string
	SyncStartedAt time.Time
	IsFirstSync   bool
}

func (w *Workflows) handleDrivesCrawl(ctx context.Context, task tasks.Task) error {
	params, ok := task.Params.(DrivesCrawlParams)
	if !ok {
		return tasks.NonRetriable(fmt.Errorf("drives crawl: unexpected params %T", task.Params))
	}
	_, err := w.DrivesCrawl(ctx, task.OrgID, params)
	return err
}

// DrivesCrawl walks one page of a site's drive listing, fans out an
// items crawl per drive and waits for each drive's completion signal.
// The site's drives-complete signal is raised only on the final page.
func (w *Workflows) DrivesCrawl(ctx context.Context, orgID string, params DrivesCrawlParams) (Result, error) {
	_, client, err := w.organisation(ctx, orgID)
	if err != nil {
		return Result{}, err
	}

	page, err := client.ListDrives(ctx, params.SiteID, params.Cursor)
	if err != nil {
		return Result{}, err
	}

	var signalNames []string
	for _, drive := range page.Drives {
		if err := w.enqueuer.Enqueue(ctx, tasks.Task{
			Kind:  KindItemsCrawl,
			OrgID: orgID,
			Params: ItemsCrawlParams{
				SiteID:        params.SiteID,
				DriveID:       drive.ID,
				SyncStartedAt: params.SyncStartedAt,
				IsFirstSync:   params.IsFirstSync,
			},
		}); err != nil {
			return Result{}, err
		}
		signalNames = append(signalNames, ItemsCompleteSignal(orgID, drive.ID))
	}

	if err := w.signals.WaitAll(ctx, signalNames, w.cfg.SignalWaitTimeout); err != nil {
		return Result{}, err
	}

	if page.NextCursor != "" {
		next := params
		next.Cursor = page.NextCursor
		if err := w.enqueuer.Enqueue(ctx, tasks.Task{Kind: KindDrivesCrawl, OrgID: orgID, Params: next}); err != nil {
			return Result{}, err
		}
		return ongoing, nil
	}

	w.signals.Signal(DrivesCompleteSignal(orgID, params.SiteID))
	return completed, nil
}
