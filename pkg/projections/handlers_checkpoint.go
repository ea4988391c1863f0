package projections

import (
	"context"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/checkpoint"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

// registerCheckpointHandlers registers handlers for the checkpoint/recovery
// events pkg/checkpoint appends. checkpoint_created carries the full
// assembled snapshot as its event payload (sorties/locks/messages snapshots
// plus recovery_context), so applyCheckpointCreated both materializes the
// Checkpoint row and flips the is_latest pointer, all inside the Append's
// own transaction. fleet_recovered and context_compacted append for audit
// but mutate projections only through the sortie_restored/ctk_reserved/etc
// events recovery replays alongside them, so they fold as no-ops here.
func (e *Engine) registerCheckpointHandlers() {
	e.handlers[eventstore.EventCheckpointCreated] = applyCheckpointCreated
	e.handlers[eventstore.EventFleetRecovered] = noopHandler
	e.handlers[eventstore.EventContextCompacted] = noopHandler
}

func noopHandler(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error { return nil }

// applyCheckpointCreated creates the Checkpoint row from the event's
// assembled payload, then clears is_latest on every other checkpoint for the
// mission and sets it on the new one (§3 Checkpoint: "exactly one latest per
// mission").
func applyCheckpointCreated(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	missionID, _ := ev.Data["mission_id"].(string)
	trigger, _ := ev.Data["trigger"].(string)
	createdBy, _ := ev.Data["created_by"].(string)
	recoveryContext, _ := ev.Data["recovery_context"].(map[string]interface{})

	create := tx.Checkpoint.Create().
		SetID(ev.StreamID).
		SetMissionID(missionID).
		SetTimestamp(ev.OccurredAt).
		SetTrigger(checkpoint.Trigger(trigger)).
		SetProgressPercent(dataInt(ev.Data, "progress_percent")).
		SetSortiesSnapshot(toMapSlice(ev.Data["sorties_snapshot"])).
		SetActiveLocksSnapshot(toMapSlice(ev.Data["active_locks_snapshot"])).
		SetPendingMessagesSnapshot(toMapSlice(ev.Data["pending_messages_snapshot"])).
		SetRecoveryContext(recoveryContext).
		SetCreatedBy(createdBy).
		SetLastEventSequence(ev.SequenceNumber).
		SetSizeBytes(dataInt(ev.Data, "size_bytes"))
	if _, err := create.Save(ctx); err != nil {
		return err
	}

	if _, err := tx.Checkpoint.Update().
		Where(checkpoint.MissionIDEQ(missionID), checkpoint.IsLatestEQ(true)).
		SetIsLatest(false).
		Save(ctx); err != nil {
		return err
	}
	_, err := tx.Checkpoint.UpdateOneID(ev.StreamID).SetIsLatest(true).Save(ctx)
	return err
}

// toMapSlice normalizes a JSON-decoded slice value, which is []interface{}
// of map[string]interface{} after a round-trip through Postgres JSONB but
// []map[string]interface{} when it is still the in-process literal built by
// pkg/checkpoint in the same call that triggered this Append.
func toMapSlice(v interface{}) []map[string]interface{} {
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
