package checkpoint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettools/coordinator/pkg/lifecycle"
)

func TestGet_UnknownCheckpointReturnsNotFound(t *testing.T) {
	w, _, _ := newTestWriter(t)
	ctx := context.Background()

	_, err := w.Get(ctx, "chk-does-not-exist")
	assert.Error(t, err)
}

func TestDelete_RemovesRow(t *testing.T) {
	w, lc, _ := newTestWriter(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	summary, err := w.Create(ctx, missionID, "manual", "operator")
	require.NoError(t, err)

	require.NoError(t, w.Delete(ctx, summary.ID))

	_, err = w.Get(ctx, summary.ID)
	assert.Error(t, err)
}
