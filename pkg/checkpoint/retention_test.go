package checkpoint_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettools/coordinator/ent/checkpoint"
	"github.com/fleettools/coordinator/pkg/config"
	"github.com/fleettools/coordinator/pkg/lifecycle"
)

func TestPrune_KeepsFloorRegardlessOfAge(t *testing.T) {
	cfg := config.Defaults()
	cfg.MinKeepCheckpoints = 2
	cfg.RetentionDays = 0
	w, lc, client := newTestWriterWithConfig(t, cfg)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := w.Create(ctx, missionID, "manual", "operator")
		require.NoError(t, err)
		ids = append(ids, s.ID)
		time.Sleep(5 * time.Millisecond)
	}

	// RetentionDays=0 puts the cutoff at "now", so every row is old enough
	// to prune; only MinKeepCheckpoints's floor (the two most recent) and
	// the is_latest row survive.
	pruned, err := w.Prune(ctx, missionID)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	remaining, err := client.Checkpoint.Query().Where(checkpoint.MissionIDEQ(missionID)).All(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestShouldCheckpointOnProgress_FiresOnceAtEachThreshold(t *testing.T) {
	w, _, _ := newTestWriter(t)

	assert.True(t, w.ShouldCheckpointOnProgress(10, 30))
	assert.False(t, w.ShouldCheckpointOnProgress(30, 40))
	assert.True(t, w.ShouldCheckpointOnProgress(40, 60))
	assert.False(t, w.ShouldCheckpointOnProgress(60, 60))
}
