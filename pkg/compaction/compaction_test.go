package compaction_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/event"
	"github.com/fleettools/coordinator/pkg/compaction"
	"github.com/fleettools/coordinator/pkg/config"
	"github.com/fleettools/coordinator/pkg/eventstore"
	"github.com/fleettools/coordinator/pkg/projections"
	testdb "github.com/fleettools/coordinator/test/database"
)

func newTestService(t *testing.T, cfg config.Config) (*compaction.Service, *eventstore.Store, *ent.Client) {
	client := testdb.NewTestClient(t)
	engine := projections.New(client.Client)
	store := eventstore.New(client.Client, engine, nil, 0)
	return compaction.New(store, client.Client, cfg), store, client.Client
}

func TestRun_LeavesSmallRecentStreamsUntouched(t *testing.T) {
	cfg := config.Defaults()
	svc, store, client := newTestService(t, cfg)
	ctx := context.Background()

	_, err := store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventMissionCreated,
		StreamType: eventstore.StreamMission,
		StreamID:   "msn-1",
	})
	require.NoError(t, err)

	result, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.StreamsCompacted)
	assert.Equal(t, 0, result.EventsArchived)

	n, err := client.Event.Query().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_CompactsStreamOverEventThreshold(t *testing.T) {
	cfg := config.Defaults()
	cfg.CompactThresholdEvents = 3
	svc, store, client := newTestService(t, cfg)
	ctx := context.Background()

	// fleet_checkpointed has no projection handler, so the stream needs no
	// sortie row behind it.
	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, eventstore.Envelope{
			EventType:  eventstore.EventFleetCheckpointed,
			StreamType: eventstore.StreamSortie,
			StreamID:   "srt-1",
		})
		require.NoError(t, err)
	}

	result, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StreamsCompacted)
	assert.Equal(t, 5, result.EventsArchived)

	hot, err := client.Event.Query().Where(event.StreamIDEQ("srt-1"), event.EventTypeNEQ(eventstore.EventStreamCompacted)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, hot)

	archived, err := svc.ArchivedEventCount(ctx, eventstore.StreamSortie, "srt-1")
	require.NoError(t, err)
	assert.Equal(t, 5, archived)

	// A second pass over the same stream, now holding only the
	// stream_compacted audit event, is a no-op.
	again, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.StreamsCompacted)
}

func TestRun_CompactsStreamOverAgeThreshold(t *testing.T) {
	cfg := config.Defaults()
	cfg.CompactThresholdEvents = 1000
	cfg.CompactAgeDays = 1
	svc, store, client := newTestService(t, cfg)
	ctx := context.Background()

	_, err := store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventFleetCheckpointed,
		StreamType: eventstore.StreamSortie,
		StreamID:   "srt-old",
		OccurredAt: time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	result, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StreamsCompacted)

	n, err := client.Event.Query().Where(event.EventTypeNEQ(eventstore.EventStreamCompacted)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRun_RebuildAfterCompactionStillReplaysArchivedEvents(t *testing.T) {
	cfg := config.Defaults()
	cfg.CompactThresholdEvents = 1
	client := testdb.NewTestClient(t)
	engine := projections.New(client.Client)
	store := eventstore.New(client.Client, engine, nil, 0)
	svc := compaction.New(store, client.Client, cfg)
	ctx := context.Background()

	_, err := store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventMissionCreated,
		StreamType: eventstore.StreamMission,
		StreamID:   "msn-compact",
		Data:       map[string]interface{}{"title": "archived mission", "priority": 1},
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventMissionStarted,
		StreamType: eventstore.StreamMission,
		StreamID:   "msn-compact",
	})
	require.NoError(t, err)

	_, err = svc.Run(ctx)
	require.NoError(t, err)

	hot, err := client.Event.Query().Where(event.EventTypeNEQ(eventstore.EventStreamCompacted)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, hot)

	require.NoError(t, engine.Rebuild(ctx, eventstore.StreamMission, "msn-compact"))

	m, err := client.Mission.Get(ctx, "msn-compact")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", m.Status.String())
}
