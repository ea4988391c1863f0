package scheduler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettools/coordinator/pkg/lifecycle"
)

func TestListSpecialists_FiltersByStatus(t *testing.T) {
	sched, lc, _ := newTestScheduler(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	a, err := lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "a"})
	require.NoError(t, err)
	b, err := lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "b"})
	require.NoError(t, err)

	spA, err := sched.SpawnSpecialist(ctx, a, "a")
	require.NoError(t, err)
	_, err = sched.SpawnSpecialist(ctx, b, "b")
	require.NoError(t, err)

	require.NoError(t, sched.DeregisterSpecialist(ctx, spA))

	completed, err := sched.ListSpecialists(ctx, "completed")
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, spA, completed[0].ID)

	all, err := sched.ListSpecialists(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
