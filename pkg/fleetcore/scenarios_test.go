package fleetcore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fleettools/coordinator/pkg/config"
	"github.com/fleettools/coordinator/pkg/eventstore"
	"github.com/fleettools/coordinator/pkg/fleetcore"
	"github.com/fleettools/coordinator/pkg/lifecycle"
	"github.com/fleettools/coordinator/pkg/mailbox"
)

// newTestCore spins up its own Postgres container (rather than reusing
// test/database's helper, which only exposes an already-opened client) so
// fleetcore.New can be exercised the way it runs in production: dialing a
// real host:port pair and starting its own dedicated LISTEN connection.
func newTestCore(t *testing.T, mutate func(*config.Config)) *fleetcore.Core {
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.StateDir = t.TempDir()
	cfg.Database = config.Database{
		Host: host, Port: port.Int(), User: "test", Password: "test", Database: "test",
		SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 5,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	core, err := fleetcore.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = core.Close(context.Background())
	})
	return core
}

// S1 — parallel mission, three independent sorties.
func TestScenario_ParallelMissionThreeIndependentSorties(t *testing.T) {
	core := newTestCore(t, nil)
	ctx := context.Background()

	missionID, err := core.Lifecycle.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "parallel work"})
	require.NoError(t, err)

	var sortieIDs []string
	for _, f := range []string{"/src/a.ts", "/src/b.ts", "/src/c.ts"} {
		id, err := core.Lifecycle.CreateSortie(ctx, lifecycle.CreateSortieInput{
			MissionID: missionID, Title: f, Files: []string{f},
		})
		require.NoError(t, err)
		sortieIDs = append(sortieIDs, id)
	}

	_, err = core.Scheduler.Tick(ctx, missionID)
	require.NoError(t, err)

	specialists := make(map[string]string)
	for _, id := range sortieIDs {
		s, err := core.Lifecycle.GetSortie(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "assigned", s.Status)
		require.NotEmpty(t, s.AssignedTo)
		specialists[id] = s.AssignedTo
	}
	assert.Len(t, specialists, 3, "each sortie should have been assigned its own specialist")

	for _, id := range sortieIDs {
		spc := specialists[id]
		require.NoError(t, core.Lifecycle.Start(ctx, id, spc))
		require.NoError(t, core.Lifecycle.Complete(ctx, id, lifecycle.CompleteInput{SpecialistID: spc, TestsPassed: true}))
	}
	_, err = core.Scheduler.Tick(ctx, missionID)
	require.NoError(t, err)

	m, err := core.Lifecycle.GetMission(ctx, missionID)
	require.NoError(t, err)
	assert.Equal(t, "completed", m.Status)
	assert.Equal(t, 3, m.TotalSorties)
	assert.Equal(t, 3, m.CompletedSorties)
}

// S2 — sequential dependency chain A -> B -> C.
func TestScenario_SequentialDependencyChain(t *testing.T) {
	core := newTestCore(t, nil)
	ctx := context.Background()

	missionID, err := core.Lifecycle.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "chain"})
	require.NoError(t, err)

	a, err := core.Lifecycle.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "a"})
	require.NoError(t, err)
	b, err := core.Lifecycle.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "b", Dependencies: []string{a}})
	require.NoError(t, err)
	c, err := core.Lifecycle.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "c", Dependencies: []string{b}})
	require.NoError(t, err)

	_, err = core.Scheduler.Tick(ctx, missionID)
	require.NoError(t, err)

	ready, err := core.Scheduler.ReadySet(ctx, missionID)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, a, ready[0].ID)

	sa, err := core.Lifecycle.GetSortie(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "assigned", sa.Status)
	sb, err := core.Lifecycle.GetSortie(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "pending", sb.Status)

	require.NoError(t, core.Lifecycle.Start(ctx, a, sa.AssignedTo))
	require.NoError(t, core.Lifecycle.Complete(ctx, a, lifecycle.CompleteInput{SpecialistID: sa.AssignedTo, TestsPassed: true}))
	_, err = core.Scheduler.Tick(ctx, missionID)
	require.NoError(t, err)

	sb, err = core.Lifecycle.GetSortie(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "assigned", sb.Status)
	require.NotEmpty(t, sb.AssignedTo)
	require.NotNil(t, sb.AssignedAt)

	sc, err := core.Lifecycle.GetSortie(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "pending", sc.Status, "C must stay pending until B completes")
	assert.Empty(t, sc.AssignedTo)

	saAfter, err := core.Lifecycle.GetSortie(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, saAfter.CompletedAt)
	assert.False(t, sb.AssignedAt.Before(*saAfter.CompletedAt))
}

// S3 — lock conflict, release, successful retry with a fresh lock id.
func TestScenario_LockConflictThenRetrySucceeds(t *testing.T) {
	core := newTestCore(t, nil)
	ctx := context.Background()

	firstLock, conflict, err := core.Locks.Acquire(ctx, "/x", "spc-s1", 60_000, "edit", "")
	require.NoError(t, err)
	require.Nil(t, conflict)

	_, conflict2, err := core.Locks.Acquire(ctx, "/x", "spc-s2", 60_000, "edit", "")
	require.NoError(t, err)
	require.NotNil(t, conflict2)
	assert.Equal(t, "spc-s1", conflict2.ReservedBy)

	_, err = core.Locks.Release(ctx, firstLock.ID, "spc-s1")
	require.NoError(t, err)

	retryLock, retryConflict, err := core.Locks.Acquire(ctx, "/x", "spc-s2", 60_000, "edit", "")
	require.NoError(t, err)
	require.Nil(t, retryConflict)
	assert.NotEqual(t, firstLock.ID, retryLock.ID)
}

// S4 — progress checkpoint after the second of four sorties completes, then
// a simulated restart recovers the remaining sorties from that checkpoint.
func TestScenario_ProgressCheckpointAndRecovery(t *testing.T) {
	core := newTestCore(t, nil)
	ctx := context.Background()

	missionID, err := core.Lifecycle.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "checkpointed mission"})
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := core.Lifecycle.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "s"})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err = core.Scheduler.Tick(ctx, missionID)
	require.NoError(t, err)

	for _, id := range ids[:2] {
		s, err := core.Lifecycle.GetSortie(ctx, id)
		require.NoError(t, err)
		require.NoError(t, core.Lifecycle.Start(ctx, id, s.AssignedTo))
		require.NoError(t, core.Lifecycle.Complete(ctx, id, lifecycle.CompleteInput{SpecialistID: s.AssignedTo, TestsPassed: true}))
	}

	chk, err := core.Checkpoint.Create(ctx, missionID, "progress", "scheduler")
	require.NoError(t, err)
	assert.Equal(t, "progress", chk.Trigger)

	dryRun := core.API.RecoverMission(ctx, missionID, true)
	require.Nil(t, dryRun.Error)
	assert.Equal(t, chk.ID, dryRun.Data.CheckpointID)

	result := core.API.RecoverMission(ctx, missionID, false)
	require.Nil(t, result.Error)
	assert.Equal(t, chk.ID, result.Data.CheckpointID)

	idempotent := core.API.RecoverMission(ctx, missionID, false)
	require.Nil(t, idempotent.Error)
	assert.Equal(t, result.Data.CheckpointID, idempotent.Data.CheckpointID)
	assert.True(t, idempotent.Data.AlreadyRecovered)

	for _, id := range ids[:2] {
		s, err := core.Lifecycle.GetSortie(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "completed", s.Status)
	}
}

// S5 — blocker persists past its timeout and is escalated (reassigned or
// failed), and the original owner's later progress report is rejected.
func TestScenario_BlockerTimeoutEscalation(t *testing.T) {
	// BlockerTimeoutMs=1 so EscalateStaleBlockers treats the blocked sortie
	// as immediately overdue without a real wall-clock wait.
	core := newTestCore(t, func(cfg *config.Config) { cfg.BlockerTimeoutMs = 1 })
	ctx := context.Background()

	missionID, err := core.Lifecycle.CreateMission(ctx, lifecycle.CreateMissionInput{Title: "blocker escalation"})
	require.NoError(t, err)
	sortieID, err := core.Lifecycle.CreateSortie(ctx, lifecycle.CreateSortieInput{MissionID: missionID, Title: "d"})
	require.NoError(t, err)
	_, err = core.Scheduler.Tick(ctx, missionID)
	require.NoError(t, err)

	s, err := core.Lifecycle.GetSortie(ctx, sortieID)
	require.NoError(t, err)
	owner := s.AssignedTo
	require.NoError(t, core.Lifecycle.Start(ctx, sortieID, owner))
	require.NoError(t, core.Lifecycle.Block(ctx, sortieID, "error", "unhandled exception"))

	time.Sleep(5 * time.Millisecond)
	n, err := core.Scheduler.EscalateStaleBlockers(ctx, missionID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	after, err := core.Lifecycle.GetSortie(ctx, sortieID)
	require.NoError(t, err)
	assert.Contains(t, []string{"assigned", "failed"}, after.Status)

	err = core.Lifecycle.Progress(ctx, sortieID, owner, 10, "still working")
	assert.Error(t, err, "the original owner must be rejected once the sortie has moved on")
}

// S6 — cursor non-monotonicity is rejected and leaves the cursor unchanged.
func TestScenario_CursorNonMonotonicityRejected(t *testing.T) {
	core := newTestCore(t, nil)
	ctx := context.Background()

	for i := 0; i < 42; i++ {
		n, err := core.Mailbox.Append(ctx, "mbx-s6", []mailbox.MessageInput{
			{Type: "status", Content: map[string]interface{}{"n": i}},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	require.NoError(t, core.Mailbox.AdvanceCursor(ctx, eventstore.StreamMailbox, "mbx-s6", "consumer-1", 42))

	err := core.Mailbox.AdvanceCursor(ctx, eventstore.StreamMailbox, "mbx-s6", "consumer-1", 40)
	require.Error(t, err)

	cur, err := core.Mailbox.GetCursor(ctx, eventstore.StreamMailbox, "mbx-s6", "consumer-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), cur)
}
