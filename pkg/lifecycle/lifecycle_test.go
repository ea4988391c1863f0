package lifecycle_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettools/coordinator/pkg/eventstore"
	"github.com/fleettools/coordinator/pkg/lifecycle"
	"github.com/fleettools/coordinator/pkg/projections"
	testdb "github.com/fleettools/coordinator/test/database"
)

func newTestService(t *testing.T) *lifecycle.Service {
	client := testdb.NewTestClient(t)
	engine := projections.New(client.Client)
	store := eventstore.New(client.Client, engine, nil, 0)
	return lifecycle.New(store, client.Client)
}

func TestMissionLifecycle_CreateAndStart(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	missionID, err := svc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "roll out canary", Priority: 5})
	require.NoError(t, err)

	m, err := svc.GetMission(ctx, missionID)
	require.NoError(t, err)
	assert.Equal(t, "pending", m.Status)
	assert.Equal(t, 0, m.TotalSorties)

	require.NoError(t, svc.StartMission(ctx, missionID))
	m, err = svc.GetMission(ctx, missionID)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", m.Status)
	assert.NotNil(t, m.StartedAt)
}

func TestMissionLifecycle_CompleteRefusedWithIncompleteSorties(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	missionID, err := svc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "fix bug"})
	require.NoError(t, err)
	require.NoError(t, svc.StartMission(ctx, missionID))

	_, err = svc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "patch file"})
	require.NoError(t, err)

	err = svc.CompleteMission(ctx, missionID)
	assert.Error(t, err)
}

func TestSortieLifecycle_AssignStartProgressComplete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	missionID, err := svc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)

	sortieID, err := svc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "write tests"})
	require.NoError(t, err)

	s, err := svc.GetSortie(ctx, sortieID)
	require.NoError(t, err)
	assert.Equal(t, "pending", s.Status)

	require.NoError(t, svc.Assign(ctx, sortieID, "spc-1"))
	require.NoError(t, svc.Start(ctx, sortieID, "spc-1"))
	require.NoError(t, svc.Progress(ctx, sortieID, "spc-1", 50, "halfway"))

	s, err = svc.GetSortie(ctx, sortieID)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", s.Status)
	assert.Equal(t, 50, s.Progress)

	require.NoError(t, svc.Complete(ctx, sortieID, lifecycle.CompleteInput{SpecialistID: "spc-1", TestsPassed: true}))
	s, err = svc.GetSortie(ctx, sortieID)
	require.NoError(t, err)
	assert.Equal(t, "completed", s.Status)
}

func TestSortieLifecycle_CompleteRejectsWithoutPassingTests(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	missionID, err := svc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	sortieID, err := svc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "write tests"})
	require.NoError(t, err)
	require.NoError(t, svc.Assign(ctx, sortieID, "spc-1"))
	require.NoError(t, svc.Start(ctx, sortieID, "spc-1"))

	err = svc.Complete(ctx, sortieID, lifecycle.CompleteInput{SpecialistID: "spc-1", TestsPassed: false})
	assert.Error(t, err)
}

func TestSortieLifecycle_StartRejectsNonOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	missionID, err := svc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	sortieID, err := svc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "write tests"})
	require.NoError(t, err)

	require.NoError(t, svc.Assign(ctx, sortieID, "spc-1"))
	err = svc.Start(ctx, sortieID, "spc-2")
	assert.Error(t, err)
}

func TestSortieLifecycle_BlockAndUnblock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	missionID, err := svc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	sortieID, err := svc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "write tests"})
	require.NoError(t, err)
	require.NoError(t, svc.Assign(ctx, sortieID, "spc-1"))
	require.NoError(t, svc.Start(ctx, sortieID, "spc-1"))

	require.NoError(t, svc.Block(ctx, sortieID, "dependency", "waiting on srt-other"))
	s, err := svc.GetSortie(ctx, sortieID)
	require.NoError(t, err)
	assert.Equal(t, "blocked", s.Status)
	assert.Equal(t, "dependency", s.BlockedCategory)

	require.NoError(t, svc.Unblock(ctx, sortieID))
	s, err = svc.GetSortie(ctx, sortieID)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", s.Status)
}

func TestSortieLifecycle_RejectReviewResetsProgressAndReopensWork(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	missionID, err := svc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	sortieID, err := svc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "write tests"})
	require.NoError(t, err)
	require.NoError(t, svc.Assign(ctx, sortieID, "spc-1"))
	require.NoError(t, svc.Start(ctx, sortieID, "spc-1"))
	require.NoError(t, svc.Progress(ctx, sortieID, "spc-1", 80, "almost there"))
	require.NoError(t, svc.Complete(ctx, sortieID, lifecycle.CompleteInput{SpecialistID: "spc-1", TestsPassed: true}))
	require.NoError(t, svc.OpenReview(ctx, sortieID))

	require.NoError(t, svc.RejectReview(ctx, sortieID, "missing edge case coverage"))

	s, err := svc.GetSortie(ctx, sortieID)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", s.Status)
	assert.Equal(t, "missing edge case coverage", s.BlockedReason)
	assert.Equal(t, 0, s.Progress)

	require.NoError(t, svc.Progress(ctx, sortieID, "spc-1", 20, "reworking"))
}

func TestSortieLifecycle_ProgressRejectsOutOfRangeAndRegression(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	missionID, err := svc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	sortieID, err := svc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "write tests"})
	require.NoError(t, err)
	require.NoError(t, svc.Assign(ctx, sortieID, "spc-1"))
	require.NoError(t, svc.Start(ctx, sortieID, "spc-1"))

	assert.Error(t, svc.Progress(ctx, sortieID, "spc-1", 101, "too far"))
	assert.Error(t, svc.Progress(ctx, sortieID, "spc-1", -1, "negative"))

	require.NoError(t, svc.Progress(ctx, sortieID, "spc-1", 60, "past half"))
	assert.Error(t, svc.Progress(ctx, sortieID, "spc-1", 30, "regression"))

	s, err := svc.GetSortie(ctx, sortieID)
	require.NoError(t, err)
	assert.Equal(t, 60, s.Progress)
}
