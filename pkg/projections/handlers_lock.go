package projections

import (
	"context"
	"time"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/lock"
	"github.com/fleettools/coordinator/pkg/coreerrors"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

func (e *Engine) registerLockHandlers() {
	e.handlers[eventstore.EventCTKReserved] = applyCTKReserved
	e.handlers[eventstore.EventCTKConflict] = applyCTKConflict
	e.handlers[eventstore.EventCTKReleased] = applyCTKReleased
	e.handlers[eventstore.EventCTKExpired] = applyCTKExpired
	e.handlers[eventstore.EventCTKForceReleased] = applyCTKForceReleased
	e.handlers[eventstore.EventCTKExtended] = applyCTKExtended
}

// applyCTKReserved creates the lock row. The uniqueness invariant (I-5: at
// most one active row per normalized_path) is enforced by the partial unique
// index on the Lock schema — a second concurrent reservation on the same
// path fails here with a constraint violation. Any save error is returned as
// a KindConflict ErrAlreadyExists rather than an internal error.
func applyCTKReserved(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	normalizedPath, _ := ev.Data["normalized_path"].(string)
	file, _ := ev.Data["file"].(string)
	reservedBy, _ := ev.Data["reserved_by"].(string)
	expiresAtStr, _ := ev.Data["expires_at"].(string)
	purpose, _ := ev.Data["purpose"].(string)
	if purpose == "" {
		purpose = "edit"
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, expiresAtStr)
	if err != nil {
		return coreerrors.NewValidationError("expires_at", "must be an RFC3339 timestamp")
	}
	create := tx.Lock.Create().
		SetID(ev.StreamID).
		SetFile(file).
		SetNormalizedPath(normalizedPath).
		SetReservedBy(reservedBy).
		SetReservedAt(ev.OccurredAt).
		SetExpiresAt(expiresAt).
		SetPurpose(lock.Purpose(purpose)).
		SetStatus(lock.StatusActive)
	if checksum, ok := ev.Data["checksum"].(string); ok && checksum != "" {
		create = create.SetChecksum(checksum)
	}
	if orig, ok := ev.Data["recovered_from_lock_id"].(string); ok && orig != "" {
		create = create.SetRecoveredFromLockID(orig)
	}
	_, err = create.Save(ctx)
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindConflict, coreerrors.ErrAlreadyExists, "an active lock already exists for this path")
	}
	return nil
}

// applyCTKConflict records the conflict attempt without creating a row —
// conflicts carry their detail in the event's data, and pkg/locks returns the
// conflicting lock from its own query of the active row rather than from this
// projection, so this handler is an intentional no-op mirroring "unknown types are
// recorded but produce no projection effect" (§4.2) applied deliberately.
func applyCTKConflict(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	return nil
}

func applyCTKReleased(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Lock.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	releasedBy, _ := ev.Data["released_by"].(string)
	if row.ReservedBy != releasedBy {
		return coreerrors.Wrap(coreerrors.KindAuthorisation, coreerrors.ErrNotOwner, "only the reserving specialist may release")
	}
	_, err = row.Update().
		SetStatus(lock.StatusReleased).
		SetReleasedAt(ev.OccurredAt).
		Save(ctx)
	return err
}

func applyCTKExpired(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Lock.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	if row.Status != lock.StatusActive {
		return nil
	}
	_, err = row.Update().
		SetStatus(lock.StatusExpired).
		SetReleasedAt(ev.OccurredAt).
		Save(ctx)
	return err
}

func applyCTKForceReleased(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Lock.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	_, err = row.Update().
		SetStatus(lock.StatusForceReleased).
		SetReleasedAt(ev.OccurredAt).
		Save(ctx)
	return err
}

func applyCTKExtended(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Lock.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	if row.Status != lock.StatusActive {
		return coreerrors.Wrap(coreerrors.KindPrecondition, coreerrors.ErrInvalidTransition, "extend requires an active lock")
	}
	requester, _ := ev.Data["specialist_id"].(string)
	if row.ReservedBy != requester {
		return coreerrors.Wrap(coreerrors.KindAuthorisation, coreerrors.ErrNotOwner, "only the owner may extend")
	}
	expiresAtStr, _ := ev.Data["expires_at"].(string)
	expiresAt, err := time.Parse(time.RFC3339Nano, expiresAtStr)
	if err != nil {
		return coreerrors.NewValidationError("expires_at", "must be an RFC3339 timestamp")
	}
	_, err = row.Update().SetExpiresAt(expiresAt).Save(ctx)
	return err
}
