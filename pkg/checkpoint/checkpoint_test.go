package checkpoint_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/pkg/checkpoint"
	"github.com/fleettools/coordinator/pkg/config"
	"github.com/fleettools/coordinator/pkg/eventstore"
	"github.com/fleettools/coordinator/pkg/lifecycle"
	"github.com/fleettools/coordinator/pkg/locks"
	"github.com/fleettools/coordinator/pkg/mailbox"
	"github.com/fleettools/coordinator/pkg/projections"
	testdb "github.com/fleettools/coordinator/test/database"
)

func newTestWriter(t *testing.T) (*checkpoint.Writer, *lifecycle.Service, *ent.Client) {
	return newTestWriterWithConfig(t, config.Defaults())
}

func newTestWriterWithConfig(t *testing.T, cfg config.Config) (*checkpoint.Writer, *lifecycle.Service, *ent.Client) {
	client := testdb.NewTestClient(t)
	engine := projections.New(client.Client)
	store := eventstore.New(client.Client, engine, nil, 0)
	lc := lifecycle.New(store, client.Client)
	lm := locks.New(store, client.Client)
	mb := mailbox.New(store, client.Client)
	cfg.StateDir = t.TempDir()
	return checkpoint.New(store, client.Client, lc, lm, mb, cfg), lc, client.Client
}

func TestCreate_SnapshotsSortiesLocksAndMessages(t *testing.T) {
	w, lc, client := newTestWriter(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)
	require.NoError(t, lc.StartMission(ctx, missionID))
	_, err = lc.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "pending work"})
	require.NoError(t, err)

	summary, err := w.Create(ctx, missionID, "manual", "operator")
	require.NoError(t, err)
	assert.Equal(t, missionID, summary.MissionID)
	assert.True(t, summary.IsLatest)
	assert.Greater(t, summary.SizeBytes, 0)

	row, err := client.Checkpoint.Get(ctx, summary.ID)
	require.NoError(t, err)
	assert.Len(t, row.SortiesSnapshot, 1)
	assert.True(t, row.IsLatest)
}

func TestGetAndList_ReturnMostRecentFirst(t *testing.T) {
	w, lc, _ := newTestWriter(t)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)

	first, err := w.Create(ctx, missionID, "manual", "operator")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := w.Create(ctx, missionID, "progress", "system")
	require.NoError(t, err)

	list, err := w.List(ctx, missionID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	fetched, err := w.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, fetched.ID)
}

func TestCreate_RejectsOversizedPayload(t *testing.T) {
	cfg := config.Defaults()
	cfg.MaxCheckpointBytes = 1
	w, lc, _ := newTestWriterWithConfig(t, cfg)
	ctx := context.Background()

	missionID, err := lc.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "ship feature"})
	require.NoError(t, err)

	_, err = w.Create(ctx, missionID, "manual", "operator")
	assert.Error(t, err)
}
