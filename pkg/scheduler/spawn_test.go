package scheduler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettools/coordinator/pkg/lifecycle"
)

func TestReadySet_OnlyIncludesSortiesWithCompletedDeps(t *testing.T) {
	sched, lc, _ := newTestScheduler(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)

	first, err := lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "schema"})
	require.NoError(t, err)
	_, err = lc.CreateSortie(ctx, lifecycle.CreateSortieInput{
		MissionID: missionID, Title: "handler", Dependencies: []string{first},
	})
	require.NoError(t, err)

	ready, err := sched.ReadySet(ctx, missionID)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, first, ready[0].ID)

	require.NoError(t, lc.Assign(ctx, first, "spc-1"))
	require.NoError(t, lc.Start(ctx, first, "spc-1"))
	require.NoError(t, lc.Complete(ctx, first, lifecycle.CompleteInput{SpecialistID: "spc-1", TestsPassed: true}))

	ready, err = sched.ReadySet(ctx, missionID)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "handler", ready[0].Title)
}

func TestTick_SpawnsAndAssignsEveryReadySortie(t *testing.T) {
	sched, lc, _ := newTestScheduler(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	_, err = lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "a"})
	require.NoError(t, err)
	_, err = lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "b"})
	require.NoError(t, err)

	spawned, err := sched.Tick(ctx, missionID)
	require.NoError(t, err)
	require.Len(t, spawned, 2)

	for _, sr := range mustListSorties(t, lc, ctx, missionID) {
		assert.Equal(t, "assigned", sr.Status)
		assert.NotEmpty(t, sr.AssignedTo)
	}
}

func mustListSorties(t *testing.T, lc *lifecycle.Service, ctx context.Context, missionID string) []lifecycle.Sortie {
	t.Helper()
	all, err := lc.ListSortiesByMission(ctx, missionID)
	require.NoError(t, err)
	return all
}

func TestSpawnSpecialist_BindsToSortie(t *testing.T) {
	sched, lc, _ := newTestScheduler(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	sortieID, err := lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "a"})
	require.NoError(t, err)

	specialistID, err := sched.SpawnSpecialist(ctx, sortieID, "a")
	require.NoError(t, err)
	assert.NotEmpty(t, specialistID)

	sp, err := sched.GetSpecialist(ctx, specialistID)
	require.NoError(t, err)
	assert.Equal(t, sortieID, sp.CurrentSortie)
}

func TestHeartbeatAndDeregisterSpecialist(t *testing.T) {
	sched, lc, _ := newTestScheduler(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	sortieID, err := lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "a"})
	require.NoError(t, err)
	specialistID, err := sched.SpawnSpecialist(ctx, sortieID, "a")
	require.NoError(t, err)

	require.NoError(t, sched.Heartbeat(ctx, specialistID))
	require.NoError(t, sched.DeregisterSpecialist(ctx, specialistID))

	sp, err := sched.GetSpecialist(ctx, specialistID)
	require.NoError(t, err)
	assert.Equal(t, "completed", sp.Status)
	assert.Empty(t, sp.CurrentSortie)
}
