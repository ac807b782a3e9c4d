package workflows_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	syncdomain "spsync/domain/sync"
	"spsync/logging"
	"spsync/platform/workflows"
	"spsync/test/mocks"
)

func TestOrchestrator_TriggerFullSyncsStampsOneStartTime(t *testing.T) {
	orgs := &mocks.MockOrganisationRepository{}
	states := &mocks.MockDriveSyncStateRepository{}
	enqueuer := &mocks.RecordingEnqueuer{}

	orgs.On("List", mock.Anything).Return([]*syncdomain.Organisation{
		{ID: "org-a"}, {ID: "org-b"},
	}, nil)

	o := workflows.NewOrchestrator(workflows.OrchestratorConfig{}, orgs, states, enqueuer,
		logging.NewLogger(logging.DefaultConfig()))

	before := time.Now()
	o.TriggerFullSyncs(context.Background())

	crawls := enqueuer.OfKind(workflows.KindSitesCrawl)
	require.Len(t, crawls, 2)

	first := crawls[0].Params.(workflows.SitesCrawlParams)
	second := crawls[1].Params.(workflows.SitesCrawlParams)
	assert.False(t, first.IsFirstSync)
	assert.Equal(t, first.SyncStartedAt, second.SyncStartedAt)
	assert.False(t, first.SyncStartedAt.Before(before))
	assert.ElementsMatch(t, []string{"org-a", "org-b"}, []string{crawls[0].OrgID, crawls[1].OrgID})
}

func TestOrchestrator_RenewsOnlySubscribedDrives(t *testing.T) {
	orgs := &mocks.MockOrganisationRepository{}
	states := &mocks.MockDriveSyncStateRepository{}
	enqueuer := &mocks.RecordingEnqueuer{}

	states.On("ListExpiringBefore", mock.Anything, mock.Anything).
		Return([]*syncdomain.DriveSyncState{
			{OrgID: "org-a", DriveID: "drive-1", SubscriptionID: "sub-1"},
			{OrgID: "org-a", DriveID: "drive-2"},
			{OrgID: "org-b", DriveID: "drive-3", SubscriptionID: "sub-3"},
		}, nil)

	o := workflows.NewOrchestrator(workflows.OrchestratorConfig{}, orgs, states, enqueuer,
		logging.NewLogger(logging.DefaultConfig()))
	o.RenewExpiringSubscriptions(context.Background())

	renewals := enqueuer.OfKind(workflows.KindSubscriptionRenew)
	require.Len(t, renewals, 2)
	assert.Equal(t, workflows.SubscriptionRenewParams{SubscriptionID: "sub-1"}, renewals[0].Params)
	assert.Equal(t, workflows.SubscriptionRenewParams{SubscriptionID: "sub-3"}, renewals[1].Params)
}

func TestOrchestrator_RenewalWindowCutoff(t *testing.T) {
	orgs := &mocks.MockOrganisationRepository{}
	states := &mocks.MockDriveSyncStateRepository{}
	enqueuer := &mocks.RecordingEnqueuer{}

	var cutoff time.Time
	states.On("ListExpiringBefore", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			cutoff = args.Get(1).(time.Time)
		}).Return([]*syncdomain.DriveSyncState{}, nil)

	o := workflows.NewOrchestrator(workflows.OrchestratorConfig{RenewalWindow: 48 * time.Hour},
		orgs, states, enqueuer, logging.NewLogger(logging.DefaultConfig()))

	before := time.Now()
	o.RenewExpiringSubscriptions(context.Background())

	assert.WithinDuration(t, before.Add(48*time.Hour), cutoff, 5*time.Second)
}
