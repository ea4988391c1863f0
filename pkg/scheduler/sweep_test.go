package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettools/coordinator/ent/specialist"
	"github.com/fleettools/coordinator/pkg/lifecycle"
)

func TestSweepStaleSpecialists_BlocksItsCurrentSortie(t *testing.T) {
	sched, lc, client := newTestScheduler(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	sortieID, err := lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "a"})
	require.NoError(t, err)

	specialistID, err := sched.SpawnSpecialist(ctx, sortieID, "a")
	require.NoError(t, err)
	require.NoError(t, lc.Assign(ctx, sortieID, specialistID))
	require.NoError(t, lc.Start(ctx, sortieID, specialistID))

	_, err = client.Specialist.UpdateOneID(specialistID).
		SetStatus(specialist.StatusWorking).
		SetLastSeen(time.Now().Add(-time.Hour)).
		Save(ctx)
	require.NoError(t, err)

	n, err := sched.SweepStaleSpecialists(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sp, err := sched.GetSpecialist(ctx, specialistID)
	require.NoError(t, err)
	assert.Equal(t, "stale", sp.Status)

	sr, err := lc.GetSortie(ctx, sortieID)
	require.NoError(t, err)
	assert.Equal(t, "blocked", sr.Status)
	assert.Equal(t, "error", sr.BlockedCategory)
}

func TestSweepStaleSpecialists_IgnoresFreshSpecialists(t *testing.T) {
	sched, lc, _ := newTestScheduler(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	sortieID, err := lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "a"})
	require.NoError(t, err)
	_, err = sched.SpawnSpecialist(ctx, sortieID, "a")
	require.NoError(t, err)

	n, err := sched.SweepStaleSpecialists(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
