package api_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettools/coordinator/pkg/api"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

func TestCheckpointCreateGetListAndRecover(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	created := a.CreateMission(ctx, api.CreateMissionRequest{Title: "ship feature"})
	require.Nil(t, created.Error)
	missionID := created.Data.MissionID

	chk := a.CreateCheckpoint(ctx, missionID, "manual", "operator")
	require.Nil(t, chk.Error)

	got := a.GetCheckpoint(ctx, chk.Data.ID)
	require.Nil(t, got.Error)
	assert.Equal(t, chk.Data.ID, got.Data.ID)

	list := a.ListCheckpoints(ctx, missionID)
	require.Nil(t, list.Error)
	assert.Len(t, list.Data, 1)

	recovered := a.RecoverMission(ctx, missionID, false)
	require.Nil(t, recovered.Error)
	assert.Equal(t, chk.Data.ID, recovered.Data.CheckpointID)

	dryRun := a.RecoverMission(ctx, missionID, true)
	require.Nil(t, dryRun.Error)
	assert.Equal(t, chk.Data.ID, dryRun.Data.CheckpointID)

	pruned := a.PruneCheckpoints(ctx, missionID)
	require.Nil(t, pruned.Error)

	require.Nil(t, a.DeleteCheckpoint(ctx, chk.Data.ID).Error)
	missing := a.GetCheckpoint(ctx, chk.Data.ID)
	require.NotNil(t, missing.Error)
}

func TestSpecialistRegisterHeartbeatAndDeregister(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	require.Nil(t, a.RegisterSpecialist(ctx, "spc-api-1", "", "").Error)
	require.Nil(t, a.HeartbeatSpecialist(ctx, "spc-api-1").Error)

	sp := a.GetSpecialist(ctx, "spc-api-1")
	require.Nil(t, sp.Error)
	assert.Equal(t, "registered", sp.Data.Status)

	all := a.ListSpecialists(ctx, "")
	require.Nil(t, all.Error)
	assert.Len(t, all.Data, 1)

	require.Nil(t, a.DeregisterSpecialist(ctx, "spc-api-1").Error)
}

func TestEventsSurface_AppendAndReadBack(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	appended := a.AppendEvent(ctx, eventstore.Envelope{
		EventType:  eventstore.EventMissionCreated,
		StreamType: eventstore.StreamMission,
		StreamID:   "msn-events-api",
		Data:       map[string]interface{}{"title": "x", "priority": 1},
	})
	require.Nil(t, appended.Error)
	assert.Equal(t, int64(1), appended.Data.SequenceNumber)

	byStream := a.GetEventsByStream(ctx, eventstore.StreamMission, "msn-events-api", 0, 0)
	require.Nil(t, byStream.Error)
	require.Len(t, byStream.Data, 1)

	byID := a.GetEventByID(ctx, byStream.Data[0].ID)
	require.Nil(t, byID.Error)
	assert.Equal(t, byStream.Data[0].ID, byID.Data.ID)

	byCorrelation := a.GetEventsByCorrelation(ctx, byStream.Data[0].CorrelationID)
	require.Nil(t, byCorrelation.Error)
	assert.Len(t, byCorrelation.Data, 1)

	after := a.GetEventsAfter(ctx, 0, 0)
	require.Nil(t, after.Error)
	assert.NotEmpty(t, after.Data)
}
