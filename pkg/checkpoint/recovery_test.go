package checkpoint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettools/coordinator/pkg/lifecycle"
)

func TestRecover_RestoresSortieStateAndIsIdempotent(t *testing.T) {
	w, lc, _ := newTestWriter(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	sortieID, err := lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "a"})
	require.NoError(t, err)
	require.NoError(t, lc.Assign(ctx, sortieID, "spc-1"))
	require.NoError(t, lc.Start(ctx, sortieID, "spc-1"))
	require.NoError(t, lc.Progress(ctx, sortieID, "spc-1", 40, "partial"))

	_, err = w.Create(ctx, missionID, "manual", "operator")
	require.NoError(t, err)

	// Simulate a crash: the sortie's in-memory progress diverges from the
	// checkpoint after the snapshot was taken.
	require.NoError(t, lc.Progress(ctx, sortieID, "spc-1", 90, "almost done"))

	result, err := w.Recover(ctx, missionID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RestoredSorties)
	assert.False(t, result.AlreadyRecovered)

	sr, err := lc.GetSortie(ctx, sortieID)
	require.NoError(t, err)
	assert.Equal(t, 40, sr.Progress)

	again, err := w.Recover(ctx, missionID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyRecovered)
}

func TestRecover_NoCheckpointReturnsNotFound(t *testing.T) {
	w, lc, _ := newTestWriter(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)

	_, err = w.Recover(ctx, missionID)
	assert.Error(t, err)
}
