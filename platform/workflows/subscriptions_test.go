package workflows_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"spsync/domain/contracts"
	"spsync/domain/sharepoint"
	syncdomain "spsync/domain/sync"
	"spsync/platform/tasks"
	"spsync/platform/workflows"
)

func TestSubscriptionCreate_PersistsStateAndStartsFirstDeltaPull(t *testing.T) {
	f := newWorkflowFixture(t)

	expiry := time.Date(2026, 9, 29, 12, 0, 0, 0, time.UTC)
	var usedClientState string
	f.client.On("CreateSubscription", mock.Anything, "site-1", "drive-1", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			usedClientState = args.Get(4).(string)
		}).
		Return(&sharepoint.Subscription{ID: "sub-new", ExpiresAt: expiry}, nil)

	var saved *syncdomain.DriveSyncState
	f.states.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(*syncdomain.DriveSyncState)
		}).Return(nil)

	err := f.wf.SubscriptionCreate(context.Background(), testOrgID,
		workflows.SubscriptionCreateParams{SiteID: "site-1", DriveID: "drive-1"})
	require.NoError(t, err)

	require.NotNil(t, saved)
	assert.Equal(t, "sub-new", saved.SubscriptionID)
	assert.Equal(t, expiry, saved.SubscriptionExpiresAt)
	assert.NotEmpty(t, usedClientState)
	assert.Equal(t, usedClientState, saved.SubscriptionClientState)

	pulls := f.enqueuer.OfKind(workflows.KindDeltaSync)
	require.Len(t, pulls, 1)
	params := pulls[0].Params.(workflows.DeltaSyncParams)
	assert.True(t, params.IsFirstSync)
	assert.Equal(t, "sub-new", params.SubscriptionID)
	assert.Equal(t, "drive-1", params.DriveID)
}

func TestSubscriptionRenew_KeepsClientStateAcrossRenewal(t *testing.T) {
	f := newWorkflowFixture(t)

	f.states.On("FindBySubscriptionID", mock.Anything, "sub-1").
		Return(&syncdomain.DriveSyncState{
			OrgID:                   testOrgID,
			DriveID:                 "drive-1",
			SubscriptionID:          "sub-1",
			SubscriptionClientState: "secret-1",
		}, nil)

	newExpiry := time.Date(2026, 10, 30, 12, 0, 0, 0, time.UTC)
	f.client.On("RenewSubscription", mock.Anything, "sub-1", mock.Anything).
		Return(&sharepoint.Subscription{ID: "sub-1", ExpiresAt: newExpiry}, nil)
	f.states.On("UpdateSubscription", mock.Anything, testOrgID, "drive-1", "sub-1", newExpiry, "secret-1").
		Return(nil)

	err := f.wf.SubscriptionRenew(context.Background(), testOrgID,
		workflows.SubscriptionRenewParams{SubscriptionID: "sub-1"})

	require.NoError(t, err)
	f.states.AssertCalled(t, "UpdateSubscription", mock.Anything, testOrgID, "drive-1", "sub-1", newExpiry, "secret-1")
}

func TestSubscriptionRenew_UnknownSubscriptionIsNonRetriable(t *testing.T) {
	f := newWorkflowFixture(t)
	f.states.On("FindBySubscriptionID", mock.Anything, "ghost-sub").Return(nil, nil)

	err := f.wf.SubscriptionRenew(context.Background(), testOrgID,
		workflows.SubscriptionRenewParams{SubscriptionID: "ghost-sub"})

	require.Error(t, err)
	assert.True(t, tasks.IsNonRetriable(err))
}

func TestSubscriptionRemove_DeletesStateAndSignals(t *testing.T) {
	f := newWorkflowFixture(t)

	f.client.On("RemoveSubscription", mock.Anything, "sub-1").Return(nil)
	f.states.On("Delete", mock.Anything, testOrgID, "drive-1").Return(nil)

	err := f.wf.SubscriptionRemove(context.Background(), testOrgID,
		workflows.SubscriptionRemoveParams{DriveID: "drive-1", SubscriptionID: "sub-1"})
	require.NoError(t, err)

	err = f.signals.Wait(context.Background(),
		workflows.SubscriptionRemovedSignal(testOrgID, "drive-1"), 100*time.Millisecond)
	assert.NoError(t, err)
}

func TestSubscriptionRemove_ToleratesAlreadyGoneSubscription(t *testing.T) {
	f := newWorkflowFixture(t)

	f.client.On("RemoveSubscription", mock.Anything, "sub-1").Return(contracts.ErrNotFound)
	f.states.On("Delete", mock.Anything, testOrgID, "drive-1").Return(nil)

	err := f.wf.SubscriptionRemove(context.Background(), testOrgID,
		workflows.SubscriptionRemoveParams{DriveID: "drive-1", SubscriptionID: "sub-1"})
	require.NoError(t, err)

	f.states.AssertCalled(t, "Delete", mock.Anything, testOrgID, "drive-1")
}
