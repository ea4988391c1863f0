package api

import (
	"context"

	"github.com/fleettools/coordinator/pkg/lifecycle"
	"github.com/fleettools/coordinator/pkg/scheduler"
)

// CreateSortieResult is the create operation's output.
type CreateSortieResult struct {
	SortieID string
}

// CreateSortie mints a sortie (§6 Sortie surface: "create").
func (a *API) CreateSortie(ctx context.Context, in lifecycle.CreateSortieInput) Response[CreateSortieResult] {
	id, err := a.lifecycle.CreateSortie(ctx, in)
	if err != nil {
		return fail[CreateSortieResult](err)
	}
	if in.MissionID != "" {
		if err := a.scheduler.ValidateDAG(ctx, in.MissionID); err != nil {
			return fail[CreateSortieResult](err)
		}
	}
	return ok(CreateSortieResult{SortieID: id})
}

// GetSortie reads a sortie (§6 Sortie surface: "get").
func (a *API) GetSortie(ctx context.Context, sortieID string) Response[lifecycle.Sortie] {
	sr, err := a.lifecycle.GetSortie(ctx, sortieID)
	if err != nil {
		return fail[lifecycle.Sortie](err)
	}
	return ok(sr)
}

// ListSorties lists sorties by filter (§6 Sortie surface: "list(filter)").
func (a *API) ListSorties(ctx context.Context, filter lifecycle.ListSortiesFilter) Response[[]lifecycle.Sortie] {
	rows, err := a.lifecycle.ListSorties(ctx, filter)
	if err != nil {
		return fail[[]lifecycle.Sortie](err)
	}
	return ok(rows)
}

// AssignSortie assigns a sortie to a specialist (§6 Sortie surface: "assign").
func (a *API) AssignSortie(ctx context.Context, sortieID, specialistID string) Response[struct{}] {
	if err := a.lifecycle.Assign(ctx, sortieID, specialistID); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// StartSortie starts a sortie (§6 Sortie surface: "start(owner)").
func (a *API) StartSortie(ctx context.Context, sortieID, specialistID string) Response[struct{}] {
	if err := a.lifecycle.Start(ctx, sortieID, specialistID); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// ProgressSortie records progress (§6 Sortie surface:
// "progress(owner, p, note)").
func (a *API) ProgressSortie(ctx context.Context, sortieID, specialistID string, progress int, note string) Response[struct{}] {
	if err := a.lifecycle.Progress(ctx, sortieID, specialistID, progress, note); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// BlockSortie blocks a sortie and runs the scheduler's blocker policy for its
// category (§6 Sortie surface: "block(reason, category)"; §4.6 blocker
// handling).
func (a *API) BlockSortie(ctx context.Context, sortieID, category, reason string) Response[struct{}] {
	if err := a.lifecycle.Block(ctx, sortieID, category, reason); err != nil {
		return fail[struct{}](err)
	}
	if err := a.scheduler.HandleBlocked(ctx, sortieID); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// CompleteSortieRequest is the complete operation's input.
type CompleteSortieRequest struct {
	SortieID     string
	SpecialistID string
	TestsPassed  bool
	Summary      string
	Files        []string
	Result       map[string]interface{}
}

// CompleteSortie completes a sortie, opens review with automatic
// validators, and propagates completion to the scheduler's ready-set
// computation for dependents (§6 Sortie surface: "complete(owner, summary,
// files, tests_passed)"; §4.6 completion propagation).
func (a *API) CompleteSortie(ctx context.Context, req CompleteSortieRequest) Response[[]scheduler.ValidationResult] {
	result := req.Result
	if result == nil {
		result = map[string]interface{}{}
	}
	if req.Summary != "" {
		result["summary"] = req.Summary
	}
	if len(req.Files) > 0 {
		touched := make([]interface{}, len(req.Files))
		for i, f := range req.Files {
			touched[i] = f
		}
		result["touched_files"] = touched
	}
	if err := a.lifecycle.Complete(ctx, req.SortieID, lifecycle.CompleteInput{
		SpecialistID: req.SpecialistID, TestsPassed: req.TestsPassed, Result: result,
	}); err != nil {
		return fail[[]scheduler.ValidationResult](err)
	}
	validations, err := a.scheduler.OpenReviewAndValidate(ctx, req.SortieID)
	if err != nil {
		return fail[[]scheduler.ValidationResult](err)
	}
	sr, err := a.lifecycle.GetSortie(ctx, req.SortieID)
	if err != nil {
		return fail[[]scheduler.ValidationResult](err)
	}
	if sr.MissionID != "" {
		if _, err := a.scheduler.Tick(ctx, sr.MissionID); err != nil {
			return fail[[]scheduler.ValidationResult](err)
		}
	}
	return ok(validations)
}

// FailSortie fails a sortie (§6 Sortie surface: "fail").
func (a *API) FailSortie(ctx context.Context, sortieID, reason string) Response[struct{}] {
	if err := a.lifecycle.Fail(ctx, sortieID, reason); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// CancelSortie cancels a sortie (§6 Sortie surface: "cancel").
func (a *API) CancelSortie(ctx context.Context, sortieID string) Response[struct{}] {
	if err := a.lifecycle.Cancel(ctx, sortieID); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// RestoreSortie restores a sortie to a checkpointed snapshot (§6 Sortie
// surface: "restore(snapshot)").
func (a *API) RestoreSortie(ctx context.Context, sortieID string, in lifecycle.RestoreInput) Response[struct{}] {
	if err := a.lifecycle.Restore(ctx, sortieID, in); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}
