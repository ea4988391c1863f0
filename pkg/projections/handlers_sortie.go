package projections

import (
	"context"
	"time"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/predicate"
	"github.com/fleettools/coordinator/ent/sortie"
	"github.com/fleettools/coordinator/pkg/coreerrors"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

func (e *Engine) registerSortieHandlers() {
	e.handlers[eventstore.EventSortieCreated] = applySortieCreated
	e.handlers[eventstore.EventSortieAssigned] = applySortieAssigned
	e.handlers[eventstore.EventSortieStarted] = applySortieStarted
	e.handlers[eventstore.EventSortieProgress] = applySortieProgress
	e.handlers[eventstore.EventSortieBlocked] = applySortieBlocked
	e.handlers[eventstore.EventSortieUnblocked] = applySortieUnblocked
	e.handlers[eventstore.EventSortieCompleted] = applySortieCompleted
	e.handlers[eventstore.EventSortieFailed] = applySortieFailed
	e.handlers[eventstore.EventSortieCancelled] = applySortieCancelled
	e.handlers[eventstore.EventSortieReviewed] = applySortieReviewOpened
	e.handlers[eventstore.EventSortieApproved] = applySortieReviewApproved
	e.handlers[eventstore.EventSortieRejected] = applySortieReviewRejected
	e.handlers[eventstore.EventSortieRestored] = applySortieRestored
}

// isTerminalSortie reports whether a status admits no further transitions.
func isTerminalSortie(s sortie.Status) bool {
	switch s {
	case sortie.StatusCompleted, sortie.StatusCancelled, sortie.StatusFailed:
		return true
	default:
		return false
	}
}

func sortieMissionEQ(missionID string) predicate.Sortie {
	return sortie.MissionIDEQ(missionID)
}

func sortieStatusCompletedOrCancelled() predicate.Sortie {
	return sortie.Or(
		sortie.StatusEQ(sortie.StatusCompleted),
		sortie.StatusEQ(sortie.StatusCancelled),
	)
}

func applySortieCreated(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	title, _ := ev.Data["title"].(string)
	create := tx.Sortie.Create().
		SetID(ev.StreamID).
		SetTitle(title).
		SetLastEventSequence(ev.SequenceNumber)
	if mid, ok := ev.Data["mission_id"].(string); ok && mid != "" {
		create = create.SetMissionID(mid)
	}
	if _, ok := ev.Data["priority"]; ok {
		create = create.SetPriority(dataInt(ev.Data, "priority"))
	}
	if files, ok := ev.Data["files"].([]interface{}); ok {
		create = create.SetFiles(toStringSlice(files))
	}
	if deps, ok := ev.Data["dependencies"].([]interface{}); ok {
		create = create.SetDependencies(toStringSlice(deps))
	}
	_, err := create.Save(ctx)
	if err != nil {
		return err
	}
	if mid, ok := ev.Data["mission_id"].(string); ok && mid != "" {
		return recomputeMissionCounters(ctx, tx, mid, ev.SequenceNumber)
	}
	return nil
}

func applySortieAssigned(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Sortie.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	if row.Status != sortie.StatusPending {
		return coreerrors.Wrap(coreerrors.KindPrecondition, coreerrors.ErrInvalidTransition, "sortie must be pending to assign")
	}
	specialistID, _ := ev.Data["specialist_id"].(string)
	_, err = row.Update().
		SetStatus(sortie.StatusAssigned).
		SetAssignedTo(specialistID).
		SetAssignedAt(ev.OccurredAt).
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	return err
}

func applySortieStarted(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Sortie.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	if row.Status != sortie.StatusAssigned {
		return coreerrors.Wrap(coreerrors.KindPrecondition, coreerrors.ErrInvalidTransition, "sortie must be assigned to start")
	}
	owner, _ := ev.Data["specialist_id"].(string)
	if row.AssignedTo == nil || *row.AssignedTo != owner {
		return coreerrors.Wrap(coreerrors.KindAuthorisation, coreerrors.ErrNotAssigned, "only assigned_to may start a sortie")
	}
	_, err = row.Update().
		SetStatus(sortie.StatusInProgress).
		SetStartedAt(ev.OccurredAt).
		SetProgress(0).
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	return err
}

func applySortieProgress(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Sortie.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	owner, _ := ev.Data["specialist_id"].(string)
	if row.AssignedTo == nil || *row.AssignedTo != owner {
		return coreerrors.Wrap(coreerrors.KindAuthorisation, coreerrors.ErrNotAssigned, "only assigned_to may report progress")
	}
	if row.Status != sortie.StatusInProgress {
		return coreerrors.Wrap(coreerrors.KindPrecondition, coreerrors.ErrInvalidTransition, "sortie must be in_progress")
	}
	progress := dataInt(ev.Data, "progress")
	if progress < 0 || progress > 100 {
		return coreerrors.NewValidationError("progress", "must be between 0 and 100")
	}
	if progress < row.Progress {
		return coreerrors.Wrap(coreerrors.KindPrecondition, coreerrors.ErrInvalidTransition,
			"progress must be non-decreasing within an in_progress episode")
	}
	_, err = row.Update().
		SetProgress(progress).
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	if err != nil {
		return err
	}
	return nil
}

func applySortieBlocked(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Sortie.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	category, _ := ev.Data["category"].(string)
	reason, _ := ev.Data["reason"].(string)
	if category == "" || reason == "" {
		return coreerrors.NewValidationError("block", "reason and category are required")
	}
	_, err = row.Update().
		SetStatus(sortie.StatusBlocked).
		SetBlockedCategory(category).
		SetBlockedReason(reason).
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	return err
}

func applySortieUnblocked(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Sortie.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	if row.Status != sortie.StatusBlocked {
		return coreerrors.Wrap(coreerrors.KindPrecondition, coreerrors.ErrInvalidTransition, "sortie must be blocked to unblock")
	}
	_, err = row.Update().
		SetStatus(sortie.StatusInProgress).
		ClearBlockedCategory().
		ClearBlockedReason().
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	return err
}

func applySortieCompleted(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Sortie.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	owner, _ := ev.Data["specialist_id"].(string)
	if row.AssignedTo == nil || *row.AssignedTo != owner {
		return coreerrors.Wrap(coreerrors.KindAuthorisation, coreerrors.ErrNotAssigned, "only assigned_to may complete a sortie")
	}
	testsPassed, _ := ev.Data["tests_passed"].(bool)
	if !testsPassed {
		return coreerrors.NewValidationError("tests_passed", "complete requires tests_passed=true")
	}
	update := row.Update().
		SetStatus(sortie.StatusCompleted).
		SetProgress(100).
		SetCompletedAt(ev.OccurredAt).
		SetLastEventSequence(ev.SequenceNumber)
	if result, ok := ev.Data["result"].(map[string]interface{}); ok {
		update = update.SetResult(result)
	}
	if _, err := update.Save(ctx); err != nil {
		return err
	}
	if row.MissionID != nil {
		return recomputeMissionCounters(ctx, tx, *row.MissionID, ev.SequenceNumber)
	}
	return nil
}

func applySortieFailed(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Sortie.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	if isTerminalSortie(row.Status) {
		return coreerrors.Wrap(coreerrors.KindPrecondition, coreerrors.ErrInvalidTransition, "sortie already terminal")
	}
	reason, _ := ev.Data["reason"].(string)
	_, err = row.Update().
		SetStatus(sortie.StatusFailed).
		SetBlockedReason(reason).
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	if err != nil {
		return err
	}
	if row.MissionID != nil {
		return recomputeMissionCounters(ctx, tx, *row.MissionID, ev.SequenceNumber)
	}
	return nil
}

func applySortieCancelled(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Sortie.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	if isTerminalSortie(row.Status) {
		return coreerrors.Wrap(coreerrors.KindPrecondition, coreerrors.ErrInvalidTransition, "sortie already terminal")
	}
	_, err = row.Update().
		SetStatus(sortie.StatusCancelled).
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	if err != nil {
		return err
	}
	if row.MissionID != nil {
		return recomputeMissionCounters(ctx, tx, *row.MissionID, ev.SequenceNumber)
	}
	return nil
}

func applySortieReviewOpened(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Sortie.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	// Review normally opens from completed (validator panel). It also opens
	// from blocked with category "error" (§4.6): an error-category blocker
	// surfaces straight to review rather than waiting on the dependency or
	// lock machinery the other categories use.
	fromBlockedError := row.Status == sortie.StatusBlocked && row.BlockedCategory == "error"
	if row.Status != sortie.StatusCompleted && !fromBlockedError {
		return coreerrors.Wrap(coreerrors.KindPrecondition, coreerrors.ErrInvalidTransition, "review opens only from completed or an error-category block")
	}
	update := row.Update().
		SetStatus(sortie.StatusReview).
		SetLastEventSequence(ev.SequenceNumber)
	if fromBlockedError {
		update = update.ClearBlockedCategory().ClearBlockedReason()
	}
	_, err = update.Save(ctx)
	return err
}

func applySortieReviewApproved(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Sortie.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	if row.Status != sortie.StatusReview {
		return coreerrors.Wrap(coreerrors.KindPrecondition, coreerrors.ErrInvalidTransition, "approve only from review")
	}
	_, err = row.Update().
		SetStatus(sortie.StatusCompleted).
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	return err
}

func applySortieReviewRejected(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Sortie.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	if row.Status != sortie.StatusReview {
		return coreerrors.Wrap(coreerrors.KindPrecondition, coreerrors.ErrInvalidTransition, "reject only from review")
	}
	feedback, _ := ev.Data["feedback"].(string)
	// §4.5: re-opening a sortie from review resets progress by the review
	// event itself, not by the status transition alone, so the rework
	// episode isn't stuck at the 100 completion left by applySortieCompleted.
	_, err = row.Update().
		SetStatus(sortie.StatusInProgress).
		SetProgress(dataInt(ev.Data, "progress")).
		SetBlockedReason(feedback).
		SetLastEventSequence(ev.SequenceNumber).
		Save(ctx)
	return err
}

// dataInt reads an integer field out of an event payload. Live appends keep
// their original Go int; replayed events come back from JSON as float64 —
// this accepts either.
func dataInt(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

// applySortieRestored folds a checkpoint-driven restore (§4.7 recovery step
// 2: "restore sortie projection rows to checkpoint states, clearing any
// post-checkpoint progress"). It is the only handler allowed to move a
// sortie backwards in its progress/status timeline.
func applySortieRestored(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Sortie.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	status, _ := ev.Data["status"].(string)
	update := row.Update().
		SetStatus(sortie.Status(status)).
		SetProgress(dataInt(ev.Data, "progress")).
		SetLastEventSequence(ev.SequenceNumber).
		SetUpdatedAt(time.Now().UTC())
	if assignedTo, ok := ev.Data["assigned_to"].(string); ok && assignedTo != "" {
		update = update.SetAssignedTo(assignedTo)
	}
	_, err = update.Save(ctx)
	return err
}

func toStringSlice(in []interface{}) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
