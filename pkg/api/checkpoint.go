package api

import (
	"context"

	"github.com/fleettools/coordinator/pkg/checkpoint"
)

// CreateCheckpoint takes a checkpoint for a mission (§6 Checkpoint surface:
// "create"). createdBy is stored as the checkpoint's created_by; there is no
// separate note parameter.
func (a *API) CreateCheckpoint(ctx context.Context, missionID, trigger, createdBy string) Response[checkpoint.Summary] {
	s, err := a.checkpoint.Create(ctx, missionID, trigger, createdBy)
	if err != nil {
		return fail[checkpoint.Summary](err)
	}
	return ok(s)
}

// GetCheckpoint reads one checkpoint (§6 Checkpoint surface: "get").
func (a *API) GetCheckpoint(ctx context.Context, checkpointID string) Response[checkpoint.Summary] {
	s, err := a.checkpoint.Get(ctx, checkpointID)
	if err != nil {
		return fail[checkpoint.Summary](err)
	}
	return ok(s)
}

// ListCheckpoints lists a mission's checkpoints (§6 Checkpoint surface:
// "list(mission)").
func (a *API) ListCheckpoints(ctx context.Context, missionID string) Response[[]checkpoint.Summary] {
	rows, err := a.checkpoint.List(ctx, missionID)
	if err != nil {
		return fail[[]checkpoint.Summary](err)
	}
	return ok(rows)
}

// RecoverMission restores missionID from its latest checkpoint (§6
// Checkpoint surface: "recover(id, dry_run?)"; §4.7 recovery algorithm).
// dryRun previews the checkpoint that would be used without mutating any
// state.
func (a *API) RecoverMission(ctx context.Context, missionID string, dryRun bool) Response[checkpoint.RecoveryResult] {
	if dryRun {
		rows, err := a.checkpoint.List(ctx, missionID)
		if err != nil {
			return fail[checkpoint.RecoveryResult](err)
		}
		if len(rows) == 0 {
			return ok(checkpoint.RecoveryResult{})
		}
		return ok(checkpoint.RecoveryResult{CheckpointID: rows[0].ID})
	}
	result, err := a.checkpoint.Recover(ctx, missionID)
	if err != nil {
		return fail[checkpoint.RecoveryResult](err)
	}
	return ok(result)
}

// DeleteCheckpoint deletes one checkpoint (§6 Checkpoint surface: "delete").
func (a *API) DeleteCheckpoint(ctx context.Context, checkpointID string) Response[struct{}] {
	if err := a.checkpoint.Delete(ctx, checkpointID); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// PruneCheckpoints applies the retention policy to a mission's checkpoints
// (§6 Checkpoint surface: "prune(policy)"; the policy itself is the
// Writer's configured MinKeepCheckpoints/RetentionDays/CompletedRetentionDays).
type PruneResult struct {
	Pruned int
}

func (a *API) PruneCheckpoints(ctx context.Context, missionID string) Response[PruneResult] {
	n, err := a.checkpoint.Prune(ctx, missionID)
	if err != nil {
		return fail[PruneResult](err)
	}
	return ok(PruneResult{Pruned: n})
}
