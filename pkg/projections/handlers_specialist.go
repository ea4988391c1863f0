package projections

import (
	"context"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/specialist"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

func (e *Engine) registerSpecialistHandlers() {
	e.handlers[eventstore.EventSpecialistSpawned] = applySpecialistSpawned
	e.handlers[eventstore.EventSpecialistRegistered] = applySpecialistRegistered
	e.handlers[eventstore.EventSpecialistHeartbeat] = applySpecialistHeartbeat
	e.handlers[eventstore.EventSpecialistStale] = applySpecialistStale
	e.handlers[eventstore.EventSpecialistDeregistered] = applySpecialistDeregistered
}

func applySpecialistSpawned(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	name, _ := ev.Data["name"].(string)
	create := tx.Specialist.Create().
		SetID(ev.StreamID).
		SetName(name).
		SetStatus(specialist.StatusSpawned).
		SetLastSeen(ev.OccurredAt).
		SetLastEventSequence(ev.SequenceNumber)
	if sortieID, ok := ev.Data["sortie_id"].(string); ok && sortieID != "" {
		create = create.SetCurrentSortie(sortieID)
	}
	if caps, ok := ev.Data["capabilities"].([]interface{}); ok {
		create = create.SetCapabilities(toStringSlice(caps))
	}
	_, err := create.Save(ctx)
	return err
}

// applySpecialistRegistered upserts: an externally-supplied specialist id
// registering for the first time (§6 "register(id, sortie_id, mission_id)")
// has no prior specialist_spawned row, unlike a scheduler-spawned specialist
// being handed its presence confirmation.
func applySpecialistRegistered(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Specialist.Get(ctx, ev.StreamID)
	if ent.IsNotFound(err) {
		name, _ := ev.Data["name"].(string)
		if name == "" {
			name = ev.StreamID
		}
		create := tx.Specialist.Create().
			SetID(ev.StreamID).
			SetName(name).
			SetStatus(specialist.StatusRegistered).
			SetLastSeen(ev.OccurredAt).
			SetLastEventSequence(ev.SequenceNumber)
		if sortieID, ok := ev.Data["sortie_id"].(string); ok && sortieID != "" {
			create = create.SetCurrentSortie(sortieID)
		}
		_, err = create.Save(ctx)
		return err
	}
	if err != nil {
		return err
	}
	update := row.Update().
		SetStatus(specialist.StatusRegistered).
		SetLastSeen(ev.OccurredAt).
		SetLastEventSequence(ev.SequenceNumber)
	if sortieID, ok := ev.Data["sortie_id"].(string); ok && sortieID != "" {
		update = update.SetCurrentSortie(sortieID)
	}
	_, err = update.Save(ctx)
	return err
}

func applySpecialistHeartbeat(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Specialist.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	update := row.Update().
		SetLastSeen(ev.OccurredAt).
		SetLastEventSequence(ev.SequenceNumber)
	if row.Status == specialist.StatusRegistered || row.Status == specialist.StatusStale {
		update = update.SetStatus(specialist.StatusWorking)
	}
	_, err = update.Save(ctx)
	return err
}

func applySpecialistStale(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Specialist.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	_, err = row.Update().
		SetStatus(specialist.StatusStale).
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	return err
}

func applySpecialistDeregistered(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Specialist.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	_, err = row.Update().
		SetStatus(specialist.StatusCompleted).
		ClearCurrentSortie().
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	return err
}
