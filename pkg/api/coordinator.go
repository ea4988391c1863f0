package api

import (
	"context"

	"github.com/fleettools/coordinator/pkg/lifecycle"
)

// CoordinatorStatus is the Dispatch-level observability surface (§6
// Coordinator: "status (aggregated projections)") — a rollup across every
// mission plus the in-process metrics snapshot, not any single mission's
// detail (that's Mission.get_stats).
type CoordinatorStatus struct {
	MissionsByStatus map[string]int
	TotalMissions    int
	ActiveLocks      int
	PendingMessages  int
	Metrics          map[string]float64
}

// GetCoordinatorStatus aggregates projection state across every mission
// (§6 Coordinator surface: "status").
func (a *API) GetCoordinatorStatus(ctx context.Context) Response[CoordinatorStatus] {
	missions, err := a.lifecycle.ListMissions(ctx, lifecycle.ListMissionsFilter{})
	if err != nil {
		return fail[CoordinatorStatus](err)
	}
	byStatus := make(map[string]int)
	for _, m := range missions {
		byStatus[m.Status]++
	}

	activeLocks, err := a.locks.ListActive(ctx, "")
	if err != nil {
		return fail[CoordinatorStatus](err)
	}

	snapshot, err := a.metrics.Snapshot()
	if err != nil {
		return fail[CoordinatorStatus](err)
	}

	return ok(CoordinatorStatus{
		MissionsByStatus: byStatus,
		TotalMissions:    len(missions),
		ActiveLocks:      len(activeLocks),
		PendingMessages:  int(snapshot["fleettools_pending_messages"]),
		Metrics:          snapshot,
	})
}
