package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"spsync/domain/contracts"
	syncdomain "spsync/domain/sync"
	"spsync/platform/tasks"
)

// SubscriptionCreateParams sets up change tracking for one drive after
// its initial crawl.
type SubscriptionCreateParams struct {
	SiteID  string
	DriveID string
}

// SubscriptionRenewParams extends one subscription's expiry.
type SubscriptionRenewParams struct {
	SubscriptionID string
}

// SubscriptionRemoveParams tears down one drive's subscription during
// organisation removal.
type SubscriptionRemoveParams struct {
	DriveID        string
	SubscriptionID string
}

func (w *Workflows) handleSubscriptionCreate(ctx context.Context, task tasks.Task) error {
	params, ok := task.Params.(SubscriptionCreateParams)
	if !ok {
		return tasks.NonRetriable(fmt.Errorf("subscription create: unexpected params %T", task.Params))
	}
	return w.SubscriptionCreate(ctx, task.OrgID, params)
}

// SubscriptionCreate registers a change-notification subscription on the
// drive root with a fresh random client-state secret, persists the
// sync-state row and kicks off the first-sync delta pull that captures
// the drive's starting cursor.
func (w *Workflows) SubscriptionCreate(ctx context.Context, orgID string, params SubscriptionCreateParams) error {
	_, client, err := w.organisation(ctx, orgID)
	if err != nil {
		return err
	}

	clientState := uuid.NewString()
	expiresAt := w.now().Add(w.cfg.SubscriptionTTL)

	sub, err := client.CreateSubscription(ctx, params.SiteID, params.DriveID,
		w.cfg.NotificationURL, clientState, expiresAt)
	if err != nil {
		return err
	}

	state := &syncdomain.DriveSyncState{
		OrgID:                   orgID,
		SiteID:                  params.SiteID,
		DriveID:                 params.DriveID,
		SubscriptionID:          sub.ID,
		SubscriptionExpiresAt:   sub.ExpiresAt,
		SubscriptionClientState: clientState,
	}
	if err := w.states.Upsert(ctx, state); err != nil {
		return err
	}

	w.logger.Sync("subscription created", orgID,
		slog.String("drive_id", params.DriveID),
		slog.String("subscription_id", sub.ID),
		slog.Time("expires_at", sub.ExpiresAt))

	return w.enqueuer.Enqueue(ctx, tasks.Task{
		Kind:  KindDeltaSync,
		OrgID: orgID,
		Params: DeltaSyncParams{
			SiteID:         params.SiteID,
			DriveID:        params.DriveID,
			SubscriptionID: sub.ID,
			IsFirstSync:    true,
		},
	})
}

func (w *Workflows) handleSubscriptionRenew(ctx context.Context, task tasks.Task) error {
	params, ok := task.Params.(SubscriptionRenewParams)
	if !ok {
		return tasks.NonRetriable(fmt.Errorf("subscription renew: unexpected params %T", task.Params))
	}
	return w.SubscriptionRenew(ctx, task.OrgID, params)
}

// SubscriptionRenew extends the subscription's expiry and persists it.
// The client-state secret is kept, so in-flight notifications stay
// valid across the renewal.
func (w *Workflows) SubscriptionRenew(ctx context.Context, orgID string, params SubscriptionRenewParams) error {
	state, err := w.states.FindBySubscriptionID(ctx, params.SubscriptionID)
	if err != nil {
		return err
	}
	if state == nil {
		return tasks.NonRetriable(fmt.Errorf("no sync state for subscription %s", params.SubscriptionID))
	}

	_, client, err := w.organisation(ctx, state.OrgID)
	if err != nil {
		return err
	}

	expiresAt := w.now().Add(w.cfg.SubscriptionTTL)
	sub, err := client.RenewSubscription(ctx, params.SubscriptionID, expiresAt)
	if err != nil {
		return err
	}

	if err := w.states.UpdateSubscription(ctx, state.OrgID, state.DriveID,
		sub.ID, sub.ExpiresAt, state.SubscriptionClientState); err != nil {
		return err
	}

	w.logger.Sync("subscription renewed", state.OrgID,
		slog.String("drive_id", state.DriveID),
		slog.String("subscription_id", sub.ID),
		slog.Time("expires_at", sub.ExpiresAt))
	return nil
}

func (w *Workflows) handleSubscriptionRemove(ctx context.Context, task tasks.Task) error {
	params, ok := task.Params.(SubscriptionRemoveParams)
	if !ok {
		return tasks.NonRetriable(fmt.Errorf("subscription remove: unexpected params %T", task.Params))
	}
	return w.SubscriptionRemove(ctx, task.OrgID, params)
}

// SubscriptionRemove deletes the provider-side subscription, drops the
// local sync-state row and raises the removal signal the uninstall flow
// waits on. A subscription the provider no longer knows counts as
// removed.
func (w *Workflows) SubscriptionRemove(ctx context.Context, orgID string, params SubscriptionRemoveParams) error {
	_, client, err := w.organisation(ctx, orgID)
	if err != nil {
		return err
	}

	if err := client.RemoveSubscription(ctx, params.SubscriptionID); err != nil && !errors.Is(err, contracts.ErrNotFound) {
		return err
	}

	if err := w.states.Delete(ctx, orgID, params.DriveID); err != nil {
		return err
	}

	w.signals.Signal(SubscriptionRemovedSignal(orgID, params.DriveID))
	w.logger.Sync("subscription removed", orgID,
		slog.String("drive_id", params.DriveID),
		slog.String("subscription_id", params.SubscriptionID))
	return nil
}
