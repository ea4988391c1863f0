package api

import (
	"context"

	"github.com/fleettools/coordinator/pkg/scheduler"
)

// RegisterSpecialist registers a specialist (§6 Specialist surface:
// "register(id, sortie_id, mission_id)").
func (a *API) RegisterSpecialist(ctx context.Context, specialistID, sortieID, missionID string) Response[struct{}] {
	if err := a.scheduler.RegisterSpecialist(ctx, specialistID, sortieID, missionID); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// HeartbeatSpecialist records a liveness heartbeat (§6 Specialist surface:
// "heartbeat"), resetting the stale-sweep clock (§4.6 stale-specialist
// sweep).
func (a *API) HeartbeatSpecialist(ctx context.Context, specialistID string) Response[struct{}] {
	if err := a.scheduler.Heartbeat(ctx, specialistID); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// GetSpecialist reads a specialist (§6 Specialist surface: "get").
func (a *API) GetSpecialist(ctx context.Context, specialistID string) Response[scheduler.Specialist] {
	sp, err := a.scheduler.GetSpecialist(ctx, specialistID)
	if err != nil {
		return fail[scheduler.Specialist](err)
	}
	return ok(sp)
}

// ListSpecialists lists specialists, optionally filtered by status (§6
// Specialist surface: "list").
func (a *API) ListSpecialists(ctx context.Context, status string) Response[[]scheduler.Specialist] {
	rows, err := a.scheduler.ListSpecialists(ctx, status)
	if err != nil {
		return fail[[]scheduler.Specialist](err)
	}
	return ok(rows)
}

// DeregisterSpecialist deregisters a specialist (§6 Specialist surface:
// "deregister").
func (a *API) DeregisterSpecialist(ctx context.Context, specialistID string) Response[struct{}] {
	if err := a.scheduler.DeregisterSpecialist(ctx, specialistID); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}
