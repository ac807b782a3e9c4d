package workflows

import (
	"context"
	"log/slog"
	"time"

	"spsync/domain/contracts"
	"spsync/logging"
	"spsync/platform/tasks"
)

// OrchestratorConfig tunes the periodic triggers.
type OrchestratorConfig struct {
	FullSyncInterval time.Duration
	RenewalInterval  time.Duration
	RenewalWindow    time.Duration
}

// Orchestrator drives the scheduled work: periodic full-tree syncs per
// organisation and the subscription renewal sweep.
type Orchestrator struct {
	cfg      OrchestratorConfig
	orgs     contracts.OrganisationRepository
	states   contracts.DriveSyncStateRepository
	enqueuer tasks.Enqueuer
	logger   *logging.Logger
	now      func() time.Time
}

// NewOrchestrator creates the scheduler.
func NewOrchestrator(
	cfg OrchestratorConfig,
	orgs contracts.OrganisationRepository,
	states contracts.DriveSyncStateRepository,
	enqueuer tasks.Enqueuer,
	logger *logging.Logger,
) *Orchestrator {
	if cfg.FullSyncInterval <= 0 {
		cfg.FullSyncInterval = 24 * time.Hour
	}
	if cfg.RenewalInterval <= 0 {
		cfg.RenewalInterval = time.Hour
	}
	if cfg.RenewalWindow <= 0 {
		cfg.RenewalWindow = 72 * time.Hour
	}
	return &Orchestrator{
		cfg:      cfg,
		orgs:     orgs,
		states:   states,
		enqueuer: enqueuer,
		logger:   logger.WithComponent("orchestrator"),
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, firing the periodic triggers.
func (o *Orchestrator) Run(ctx context.Context) {
	fullSync := time.NewTicker(o.cfg.FullSyncInterval)
	defer fullSync.Stop()
	renewal := time.NewTicker(o.cfg.RenewalInterval)
	defer renewal.Stop()

	o.logger.Info("orchestrator started",
		"full_sync_interval", o.cfg.FullSyncInterval.String(),
		"renewal_interval", o.cfg.RenewalInterval.String())

	for {
		select {
		case <-ctx.Done():
			return
		case <-fullSync.C:
			o.TriggerFullSyncs(ctx)
		case <-renewal.C:
			o.RenewExpiringSubscriptions(ctx)
		}
	}
}

// TriggerFullSyncs enqueues a non-first sites crawl for every installed
// organisation, stamped with a fresh sync-start timestamp that flows
// through to the tombstone sweep.
func (o *Orchestrator) TriggerFullSyncs(ctx context.Context) {
	orgs, err := o.orgs.List(ctx)
	if err != nil {
		o.logger.Error("failed to enumerate organisations for full sync", "error", err)
		return
	}

	startedAt := o.now()
	for _, org := range orgs {
		err := o.enqueuer.Enqueue(ctx, tasks.Task{
			Kind:   KindSitesCrawl,
			OrgID:  org.ID,
			Params: SitesCrawlParams{SyncStartedAt: startedAt, IsFirstSync: false},
		})
		if err != nil {
			o.logger.SyncError("failed to enqueue full sync", err, org.ID)
		}
	}

	if len(orgs) > 0 {
		o.logger.Info("scheduled full syncs", "organisations", len(orgs),
			"sync_started_at", startedAt.Format(time.RFC3339))
	}
}

// RenewExpiringSubscriptions enqueues a renewal for every subscription
// expiring within the renewal window.
func (o *Orchestrator) RenewExpiringSubscriptions(ctx context.Context) {
	cutoff := o.now().Add(o.cfg.RenewalWindow)
	states, err := o.states.ListExpiringBefore(ctx, cutoff)
	if err != nil {
		o.logger.Error("failed to enumerate expiring subscriptions", "error", err)
		return
	}

	for _, state := range states {
		if state.SubscriptionID == "" {
			continue
		}
		err := o.enqueuer.Enqueue(ctx, tasks.Task{
			Kind:   KindSubscriptionRenew,
			OrgID:  state.OrgID,
			Params: SubscriptionRenewParams{SubscriptionID: state.SubscriptionID},
		})
		if err != nil {
			o.logger.SyncError("failed to enqueue subscription renewal", err, state.OrgID,
				slog.String("subscription_id", state.SubscriptionID))
		}
	}
}
