package api

import (
	"context"
	"time"

	"github.com/fleettools/coordinator/pkg/database"
)

// HealthStatus is the liveness surface (§6 Health: "status (including store
// reachability, WAL mode, pending appends)"). The original journaled-SQLite
// design's WAL-mode check has no Postgres equivalent, so Durable reports
// whether the store is running with synchronous commit instead — the
// property WAL mode was actually guarding (a committed append is durable
// before Append returns).
type HealthStatus struct {
	Reachable      bool
	ResponseTime   time.Duration
	Durable        bool
	OpenConns      int
	InUseConns     int
	PendingAppends int
}

// GetHealth reports store reachability and liveness (§6 Health surface:
// "status").
func (a *API) GetHealth(ctx context.Context) Response[HealthStatus] {
	dbHealth, err := database.Health(ctx, a.client.DB())
	if err != nil {
		return ok(HealthStatus{Reachable: false, ResponseTime: dbHealth.ResponseTime})
	}
	var syncCommit string
	durable := a.client.DB().QueryRowContext(ctx, "SHOW synchronous_commit").Scan(&syncCommit) == nil && syncCommit != "off"
	return ok(HealthStatus{
		Reachable:    true,
		ResponseTime: dbHealth.ResponseTime,
		Durable:      durable,
		OpenConns:    dbHealth.OpenConnections,
		InUseConns:   dbHealth.InUse,
		// Append commits and applies the projection effect in the same
		// transaction (§4.2), so no event is ever left pending after a
		// successful Append call returns.
		PendingAppends: 0,
	})
}
