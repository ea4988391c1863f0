package projections

import (
	"context"
	"time"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/mission"
	"github.com/fleettools/coordinator/pkg/coreerrors"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

func (e *Engine) registerMissionHandlers() {
	e.handlers[eventstore.EventMissionCreated] = applyMissionCreated
	e.handlers[eventstore.EventMissionStarted] = applyMissionStarted
	e.handlers[eventstore.EventMissionCompleted] = applyMissionCompleted
	e.handlers[eventstore.EventMissionCancelled] = applyMissionCancelled
}

func applyMissionCreated(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	title, _ := ev.Data["title"].(string)
	create := tx.Mission.Create().
		SetID(ev.StreamID).
		SetTitle(title).
		SetLastEventSequence(ev.SequenceNumber)
	if desc, ok := ev.Data["description"].(string); ok && desc != "" {
		create = create.SetDescription(desc)
	}
	if _, ok := ev.Data["priority"]; ok {
		create = create.SetPriority(dataInt(ev.Data, "priority"))
	}
	if n, ok := ev.Data["total_sorties"].(float64); ok {
		create = create.SetTotalSorties(int(n))
	}
	_, err := create.Save(ctx)
	return err
}

func applyMissionStarted(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Mission.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	if row.Status != mission.StatusPending {
		return coreerrors.Wrap(coreerrors.KindPrecondition, coreerrors.ErrInvalidTransition,
			"mission must be pending to start")
	}
	now := ev.OccurredAt
	_, err = row.Update().
		SetStatus(mission.StatusInProgress).
		SetStartedAt(now).
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	return err
}

func applyMissionCompleted(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Mission.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	open, err := tx.Sortie.Query().Where(
		sortieMissionEQ(row.ID),
	).All(ctx)
	if err != nil {
		return err
	}
	for _, s := range open {
		if !isTerminalSortie(s.Status) {
			return coreerrors.New(coreerrors.KindPrecondition,
				"mission cannot complete while sorties remain non-terminal")
		}
	}
	_, err = row.Update().
		SetStatus(mission.StatusCompleted).
		SetCompletedAt(ev.OccurredAt).
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	return err
}

func applyMissionCancelled(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Mission.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	_, err = row.Update().
		SetStatus(mission.StatusCancelled).
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	return err
}

// recomputeMissionCounters is called by sortie lifecycle handlers to keep
// total_sorties/completed_sorties current — derived invariants owned by the
// Projection Engine (§4.5).
func recomputeMissionCounters(ctx context.Context, tx *ent.Tx, missionID string, seq int64) error {
	if missionID == "" {
		return nil
	}
	row, err := tx.Mission.Get(ctx, missionID)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil
		}
		return err
	}
	total, err := tx.Sortie.Query().Where(sortieMissionEQ(missionID)).Count(ctx)
	if err != nil {
		return err
	}
	completed, err := tx.Sortie.Query().Where(sortieMissionEQ(missionID), sortieStatusCompletedOrCancelled()).Count(ctx)
	if err != nil {
		return err
	}
	_, err = row.Update().
		SetTotalSorties(total).
		SetCompletedSorties(completed).
		SetUpdatedAt(time.Now().UTC()).
		SetLastEventSequence(seq).
		Save(ctx)
	return err
}
