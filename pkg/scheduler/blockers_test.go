package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettools/coordinator/pkg/lifecycle"
)

func TestHandleBlocked_DependencyResolvesOnceDepCompletes(t *testing.T) {
	sched, lc, _ := newTestScheduler(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)

	dep, err := lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "dep"})
	require.NoError(t, err)
	blocked, err := lc.CreateSortie(ctx, lifecycle.CreateSortieInput{
		MissionID: missionID, Title: "waiter", Dependencies: []string{dep},
	})
	require.NoError(t, err)

	require.NoError(t, lc.Assign(ctx, blocked, "spc-1"))
	require.NoError(t, lc.Start(ctx, blocked, "spc-1"))
	require.NoError(t, lc.Block(ctx, blocked, "dependency", "waiting on dep"))

	// Dependency still pending: HandleBlocked must be a no-op.
	require.NoError(t, sched.HandleBlocked(ctx, blocked))
	sr, err := lc.GetSortie(ctx, blocked)
	require.NoError(t, err)
	assert.Equal(t, "blocked", sr.Status)

	require.NoError(t, lc.Assign(ctx, dep, "spc-2"))
	require.NoError(t, lc.Start(ctx, dep, "spc-2"))
	require.NoError(t, lc.Complete(ctx, dep, lifecycle.CompleteInput{SpecialistID: "spc-2", TestsPassed: true}))

	require.NoError(t, sched.HandleBlocked(ctx, blocked))
	sr, err = lc.GetSortie(ctx, blocked)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", sr.Status)
}

func TestHandleBlocked_ErrorCategoryOpensReview(t *testing.T) {
	sched, lc, _ := newTestScheduler(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	sortieID, err := lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "a"})
	require.NoError(t, err)
	require.NoError(t, lc.Assign(ctx, sortieID, "spc-1"))
	require.NoError(t, lc.Start(ctx, sortieID, "spc-1"))
	require.NoError(t, lc.Block(ctx, sortieID, "error", "specialist crashed"))

	require.NoError(t, sched.HandleBlocked(ctx, sortieID))
	sr, err := lc.GetSortie(ctx, sortieID)
	require.NoError(t, err)
	assert.Equal(t, "review", sr.Status)
}

func TestEscalateStaleBlockers_FailsAndCascades(t *testing.T) {
	sched, lc, _ := newTestScheduler(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)

	root, err := lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "root"})
	require.NoError(t, err)
	dependent, err := lc.CreateSortie(ctx, lifecycle.CreateSortieInput{
		MissionID: missionID, Title: "dependent", Dependencies: []string{root},
	})
	require.NoError(t, err)

	require.NoError(t, lc.Assign(ctx, root, "spc-1"))
	require.NoError(t, lc.Start(ctx, root, "spc-1"))
	require.NoError(t, lc.Block(ctx, root, "clarification", "need input"))

	// scheduler was built with BlockerTimeoutMs=1, so any prior updated_at
	// already exceeds the cutoff once we sleep past it.
	time.Sleep(20 * time.Millisecond)

	escalated, err := sched.EscalateStaleBlockers(ctx, missionID)
	require.NoError(t, err)
	assert.Equal(t, 1, escalated)

	rootRow, err := lc.GetSortie(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, "failed", rootRow.Status)

	dependentRow, err := lc.GetSortie(ctx, dependent)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", dependentRow.Status)
}
