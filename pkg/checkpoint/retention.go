package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/checkpoint"
	"github.com/fleettools/coordinator/pkg/coreerrors"
)

// Prune enforces the checkpoint retention policy for missionID: keep at
// least MinKeepCheckpoints regardless of age, then delete anything older
// than RetentionDays, or CompletedRetentionDays once the mission itself has
// completed (§4.7 retention). The is_latest row is never pruned.
func (w *Writer) Prune(ctx context.Context, missionID string) (int, error) {
	mission, err := w.lifecycle.GetMission(ctx, missionID)
	if err != nil {
		return 0, err
	}

	retentionDays := w.cfg.RetentionDays
	if mission.Status == "completed" {
		retentionDays = w.cfg.CompletedRetentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	rows, err := w.client.Checkpoint.Query().
		Where(checkpoint.MissionIDEQ(missionID)).
		Order(ent.Desc(checkpoint.FieldTimestamp)).
		All(ctx)
	if err != nil {
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to list checkpoints for retention")
	}
	if len(rows) <= w.cfg.MinKeepCheckpoints {
		return 0, nil
	}

	pruned := 0
	for i, row := range rows {
		if i < w.cfg.MinKeepCheckpoints {
			continue // retention floor, never pruned regardless of age
		}
		if row.IsLatest {
			continue
		}
		if row.Timestamp.After(cutoff) {
			continue
		}
		if _, err := w.client.Checkpoint.Delete().Where(checkpoint.IDEQ(row.ID)).Exec(ctx); err != nil {
			return pruned, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to delete checkpoint row")
		}
		_ = os.Remove(filepath.Join(w.cfg.StateDir, "checkpoints", missionID, row.ID+".json"))
		pruned++
	}
	return pruned, nil
}

// ShouldCheckpointOnProgress reports whether crossing from previousPercent to
// currentPercent just crossed a configured progress threshold for the first
// time (§4.7 Triggers: "first time mission progress crosses each of 25, 50,
// 75%").
func (w *Writer) ShouldCheckpointOnProgress(previousPercent, currentPercent int) bool {
	for _, threshold := range w.cfg.CheckpointThresholds {
		if previousPercent < threshold && currentPercent >= threshold {
			return true
		}
	}
	return false
}
