package api

import (
	"context"

	"github.com/fleettools/coordinator/pkg/lifecycle"
)

// CreateMissionRequest is the Mission surface's create operation input.
type CreateMissionRequest struct {
	Title       string
	Description string
	Priority    int
}

// CreateMissionResult is the create operation's output.
type CreateMissionResult struct {
	MissionID string
}

// CreateMission mints a mission (§6 Mission surface: "create").
func (a *API) CreateMission(ctx context.Context, req CreateMissionRequest) Response[CreateMissionResult] {
	id, err := a.lifecycle.CreateMission(ctx, lifecycle.CreateMissionInput{
		Title: req.Title, Description: req.Description, Priority: req.Priority,
	})
	if err != nil {
		return fail[CreateMissionResult](err)
	}
	return ok(CreateMissionResult{MissionID: id})
}

// GetMission reads a mission (§6 Mission surface: "get").
func (a *API) GetMission(ctx context.Context, missionID string) Response[lifecycle.Mission] {
	m, err := a.lifecycle.GetMission(ctx, missionID)
	if err != nil {
		return fail[lifecycle.Mission](err)
	}
	return ok(m)
}

// ListMissions lists missions by filter (§6 Mission surface: "list(filter:
// status, priority, mission)").
func (a *API) ListMissions(ctx context.Context, filter lifecycle.ListMissionsFilter) Response[[]lifecycle.Mission] {
	rows, err := a.lifecycle.ListMissions(ctx, filter)
	if err != nil {
		return fail[[]lifecycle.Mission](err)
	}
	return ok(rows)
}

// StartMission starts a mission and kicks off the first scheduler tick,
// spawning specialists for every dependency-free sortie (§4.6 "spawned on
// mission start").
func (a *API) StartMission(ctx context.Context, missionID string) Response[struct{}] {
	if err := a.lifecycle.StartMission(ctx, missionID); err != nil {
		return fail[struct{}](err)
	}
	if err := a.scheduler.ValidateDAG(ctx, missionID); err != nil {
		return fail[struct{}](err)
	}
	if _, err := a.scheduler.Tick(ctx, missionID); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// CompleteMission completes a mission (§6 Mission surface: "complete").
func (a *API) CompleteMission(ctx context.Context, missionID string) Response[struct{}] {
	if err := a.lifecycle.CompleteMission(ctx, missionID); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// CancelMission cancels a mission (§6 Mission surface: "cancel").
func (a *API) CancelMission(ctx context.Context, missionID string) Response[struct{}] {
	if err := a.lifecycle.CancelMission(ctx, missionID); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// GetMissionStats aggregates sortie counts for a mission (§6 Mission
// surface: "get_stats").
func (a *API) GetMissionStats(ctx context.Context, missionID string) Response[lifecycle.MissionStats] {
	stats, err := a.lifecycle.GetStats(ctx, missionID)
	if err != nil {
		return fail[lifecycle.MissionStats](err)
	}
	return ok(stats)
}
