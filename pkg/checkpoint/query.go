package checkpoint

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/checkpoint"
	"github.com/fleettools/coordinator/pkg/coreerrors"
)

// Get reads one checkpoint row by id (§6 Checkpoint surface: "get").
func (w *Writer) Get(ctx context.Context, checkpointID string) (Summary, error) {
	row, err := w.client.Checkpoint.Get(ctx, checkpointID)
	if err != nil {
		if ent.IsNotFound(err) {
			return Summary{}, coreerrors.Wrap(coreerrors.KindNotFound, coreerrors.ErrNotFound, "checkpoint "+checkpointID)
		}
		return Summary{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read checkpoint")
	}
	return toSummary(row), nil
}

// List returns every checkpoint for missionID, most recent first (§6
// Checkpoint surface: "list(mission)").
func (w *Writer) List(ctx context.Context, missionID string) ([]Summary, error) {
	rows, err := w.client.Checkpoint.Query().
		Where(checkpoint.MissionIDEQ(missionID)).
		Order(ent.Desc(checkpoint.FieldTimestamp)).
		All(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to list checkpoints")
	}
	out := make([]Summary, len(rows))
	for i, r := range rows {
		out[i] = toSummary(r)
	}
	return out, nil
}

// Delete removes one checkpoint row and its on-disk JSON twin (§6
// Checkpoint surface: "delete"). Deleting the is_latest row leaves the
// mission with no latest pointer until another checkpoint is taken — callers
// needing to preserve recoverability should Create a fresh one first.
func (w *Writer) Delete(ctx context.Context, checkpointID string) error {
	row, err := w.client.Checkpoint.Get(ctx, checkpointID)
	if err != nil {
		if ent.IsNotFound(err) {
			return coreerrors.Wrap(coreerrors.KindNotFound, coreerrors.ErrNotFound, "checkpoint "+checkpointID)
		}
		return coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read checkpoint")
	}
	if err := w.client.Checkpoint.DeleteOneID(checkpointID).Exec(ctx); err != nil {
		return coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to delete checkpoint")
	}
	_ = os.Remove(filepath.Join(w.cfg.StateDir, "checkpoints", row.MissionID, checkpointID+".json"))
	return nil
}

func toSummary(row *ent.Checkpoint) Summary {
	return Summary{
		ID: row.ID, MissionID: row.MissionID, Timestamp: row.Timestamp,
		Trigger: string(row.Trigger), ProgressPercent: row.ProgressPercent,
		CreatedBy: row.CreatedBy, Version: row.Version,
		LastEventSeq: row.LastEventSequence, IsLatest: row.IsLatest, SizeBytes: row.SizeBytes,
	}
}
