// Package locks implements the Lock Manager (C3): time-limited exclusive
// file reservations ("CTK reservations") with TTL expiry, conflict
// detection, owner-scoped release and a periodic sweep.
package locks

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/lock"
	"github.com/fleettools/coordinator/pkg/coreerrors"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

// Manager is the Lock Manager (C3). It never mutates the Lock table
// directly — every state change flows through an eventstore.Store.Append
// call, folded by the registered projections handlers (§3 Ownership).
type Manager struct {
	store  *eventstore.Store
	client *ent.Client
}

// New builds a Manager.
func New(store *eventstore.Store, client *ent.Client) *Manager {
	return &Manager{store: store, client: client}
}

// Lock is the read-side view of a reservation, as surfaced to callers.
type Lock struct {
	ID             string
	File           string
	NormalizedPath string
	ReservedBy     string
	ReservedAt     time.Time
	ExpiresAt      time.Time
	ReleasedAt     *time.Time
	Purpose        string
	Checksum       string
	Status         string
}

// Canonicalize resolves file to its normalized_path (§5 "canonicalised
// identically on every platform: symlink-followed absolute path"). A path
// that does not exist yet cannot have its symlinks resolved, so it is
// returned as its cleaned absolute form.
func Canonicalize(file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return filepath.Clean(abs), nil
}

// Acquire implements §4.3's acquire algorithm: expire any stale active row,
// then either report a conflict or reserve a fresh lock. Each step is its
// own Append or query; they do not share one transaction.
func (m *Manager) Acquire(ctx context.Context, file, specialistID string, timeoutMs int64, purpose, checksum string) (Lock, *Lock, error) {
	if specialistID == "" {
		return Lock{}, nil, coreerrors.NewValidationError("specialist_id", "required")
	}
	if timeoutMs <= 0 {
		timeoutMs = 30_000
	}
	if timeoutMs > int64(time.Hour/time.Millisecond) {
		timeoutMs = int64(time.Hour / time.Millisecond)
	}
	if purpose == "" {
		purpose = "edit"
	}
	normalized, err := Canonicalize(file)
	if err != nil {
		return Lock{}, nil, coreerrors.Wrap(coreerrors.KindValidation, err, "file path could not be canonicalised")
	}

	if err := m.expireIfStale(ctx, normalized); err != nil {
		return Lock{}, nil, err
	}

	existing, err := m.client.Lock.Query().
		Where(lock.NormalizedPathEQ(normalized), lock.StatusEQ(lock.StatusActive)).
		Only(ctx)
	if err == nil {
		conflicting := toLock(existing)
		if _, appendErr := m.store.Append(ctx, eventstore.Envelope{
			EventType:  eventstore.EventCTKConflict,
			StreamType: eventstore.StreamLock,
			StreamID:   "lock-" + uuid.NewString(),
			Data: map[string]interface{}{
				"normalized_path": normalized,
				"requested_by":    specialistID,
				"existing_lock":   existing.ID,
			},
			OccurredAt: time.Now().UTC(),
		}); appendErr != nil {
			return Lock{}, nil, appendErr
		}
		return Lock{}, &conflicting, nil
	}
	if !ent.IsNotFound(err) {
		return Lock{}, nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to check for an active lock")
	}

	id := "lock-" + uuid.NewString()
	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(timeoutMs) * time.Millisecond)
	data := map[string]interface{}{
		"file":            file,
		"normalized_path": normalized,
		"reserved_by":     specialistID,
		"expires_at":      expiresAt.Format(time.RFC3339Nano),
		"purpose":         purpose,
	}
	if checksum != "" {
		data["checksum"] = checksum
	}
	if _, err := m.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventCTKReserved,
		StreamType: eventstore.StreamLock,
		StreamID:   id,
		Data:       data,
		OccurredAt: now,
	}); err != nil {
		return Lock{}, nil, err
	}

	return Lock{
		ID: id, File: file, NormalizedPath: normalized, ReservedBy: specialistID,
		ReservedAt: now, ExpiresAt: expiresAt, Purpose: purpose, Checksum: checksum, Status: "active",
	}, nil, nil
}

// expireIfStale appends ctk_expired for the active row at path, if any and
// if it is past its expires_at (step 1 of the acquire algorithm).
func (m *Manager) expireIfStale(ctx context.Context, normalizedPath string) error {
	row, err := m.client.Lock.Query().
		Where(lock.NormalizedPathEQ(normalizedPath), lock.StatusEQ(lock.StatusActive)).
		Only(ctx)
	if ent.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read active lock")
	}
	if time.Now().UTC().Before(row.ExpiresAt) {
		return nil
	}
	_, err = m.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventCTKExpired,
		StreamType: eventstore.StreamLock,
		StreamID:   row.ID,
		Data:       map[string]interface{}{},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// Release appends ctk_released, rejected with NotOwner by the projection
// handler if specialistID does not own the lock.
func (m *Manager) Release(ctx context.Context, lockID, specialistID string) (Lock, error) {
	row, err := m.client.Lock.Get(ctx, lockID)
	if err != nil {
		if ent.IsNotFound(err) {
			return Lock{}, coreerrors.Wrap(coreerrors.KindNotFound, coreerrors.ErrNotFound, "lock "+lockID)
		}
		return Lock{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read lock")
	}
	if _, err := m.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventCTKReleased,
		StreamType: eventstore.StreamLock,
		StreamID:   lockID,
		Data:       map[string]interface{}{"released_by": specialistID},
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return Lock{}, err
	}
	row, err = m.client.Lock.Get(ctx, lockID)
	if err != nil {
		return Lock{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to reload lock")
	}
	return toLock(row), nil
}

// ForceRelease bypasses ownership — used by the scheduler's blocker policy
// and by operator-driven recovery.
func (m *Manager) ForceRelease(ctx context.Context, lockID, reason string) (Lock, error) {
	if _, err := m.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventCTKForceReleased,
		StreamType: eventstore.StreamLock,
		StreamID:   lockID,
		Data:       map[string]interface{}{"reason": reason},
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return Lock{}, err
	}
	row, err := m.client.Lock.Get(ctx, lockID)
	if err != nil {
		return Lock{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to reload lock")
	}
	return toLock(row), nil
}

// Extend is permitted only while the lock is active and owned by the caller.
func (m *Manager) Extend(ctx context.Context, lockID, specialistID string, additionalMs int64) (Lock, error) {
	row, err := m.client.Lock.Get(ctx, lockID)
	if err != nil {
		if ent.IsNotFound(err) {
			return Lock{}, coreerrors.Wrap(coreerrors.KindNotFound, coreerrors.ErrNotFound, "lock "+lockID)
		}
		return Lock{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read lock")
	}
	newExpiry := row.ExpiresAt.Add(time.Duration(additionalMs) * time.Millisecond)
	if _, err := m.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventCTKExtended,
		StreamType: eventstore.StreamLock,
		StreamID:   lockID,
		Data: map[string]interface{}{
			"specialist_id": specialistID,
			"expires_at":    newExpiry.Format(time.RFC3339Nano),
		},
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return Lock{}, err
	}
	row, err = m.client.Lock.Get(ctx, lockID)
	if err != nil {
		return Lock{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to reload lock")
	}
	return toLock(row), nil
}

// SnapshotRequest is one entry of a checkpoint's active_locks_snapshot, fed
// back into Reacquire during recovery.
type SnapshotRequest struct {
	OriginalLockID string
	File           string
	NormalizedPath string
	ReservedBy     string
	ExpiresAt      time.Time
	Purpose        string
}

// ReacquireResult is the outcome of reacquiring one snapshot (§4.7 step 2).
type ReacquireResult struct {
	OriginalLockID string
	Outcome        string // acquired | conflict | expired
	NewLockID      string
	Detail         string
}

// Reacquire is used only during recovery (§9 Open Question 4: mints fresh
// lock ids, storing the original in recovered_from_lock_id).
func (m *Manager) Reacquire(ctx context.Context, snapshots []SnapshotRequest) ([]ReacquireResult, error) {
	results := make([]ReacquireResult, 0, len(snapshots))
	now := time.Now().UTC()
	for _, snap := range snapshots {
		if now.After(snap.ExpiresAt) {
			results = append(results, ReacquireResult{OriginalLockID: snap.OriginalLockID, Outcome: "expired"})
			continue
		}
		existing, err := m.client.Lock.Query().
			Where(lock.NormalizedPathEQ(snap.NormalizedPath), lock.StatusEQ(lock.StatusActive)).
			Only(ctx)
		if err == nil && existing.ID != snap.OriginalLockID {
			results = append(results, ReacquireResult{
				OriginalLockID: snap.OriginalLockID, Outcome: "conflict", Detail: existing.ID,
			})
			continue
		}
		if err != nil && !ent.IsNotFound(err) {
			return nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to check lock during reacquire")
		}

		id := "lock-" + uuid.NewString()
		if _, err := m.store.Append(ctx, eventstore.Envelope{
			EventType:  eventstore.EventCTKReserved,
			StreamType: eventstore.StreamLock,
			StreamID:   id,
			Data: map[string]interface{}{
				"file":                   snap.File,
				"normalized_path":        snap.NormalizedPath,
				"reserved_by":            snap.ReservedBy,
				"expires_at":             snap.ExpiresAt.Format(time.RFC3339Nano),
				"purpose":                snap.Purpose,
				"recovered_from_lock_id": snap.OriginalLockID,
			},
			OccurredAt: now,
		}); err != nil {
			results = append(results, ReacquireResult{OriginalLockID: snap.OriginalLockID, Outcome: "conflict", Detail: err.Error()})
			continue
		}
		results = append(results, ReacquireResult{OriginalLockID: snap.OriginalLockID, Outcome: "acquired", NewLockID: id})
	}
	return results, nil
}

// Sweep expires every active lock past its expires_at. Runs at most every
// LockSweepMs, driven by a fleetcore ticker.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	rows, err := m.client.Lock.Query().
		Where(lock.StatusEQ(lock.StatusActive), lock.ExpiresAtLTE(time.Now().UTC())).
		All(ctx)
	if err != nil {
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to query expired locks")
	}
	count := 0
	for _, row := range rows {
		if _, err := m.store.Append(ctx, eventstore.Envelope{
			EventType:  eventstore.EventCTKExpired,
			StreamType: eventstore.StreamLock,
			StreamID:   row.ID,
			Data:       map[string]interface{}{},
			OccurredAt: time.Now().UTC(),
		}); err != nil {
			continue
		}
		count++
	}
	return count, nil
}

// ListActive returns active locks, optionally filtered by owner.
func (m *Manager) ListActive(ctx context.Context, reservedBy string) ([]Lock, error) {
	q := m.client.Lock.Query().Where(lock.StatusEQ(lock.StatusActive))
	if reservedBy != "" {
		q = q.Where(lock.ReservedByEQ(reservedBy))
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to list active locks")
	}
	out := make([]Lock, len(rows))
	for i, r := range rows {
		out[i] = toLock(r)
	}
	return out, nil
}

// Get fetches one lock by id.
func (m *Manager) Get(ctx context.Context, lockID string) (Lock, error) {
	row, err := m.client.Lock.Get(ctx, lockID)
	if err != nil {
		if ent.IsNotFound(err) {
			return Lock{}, coreerrors.Wrap(coreerrors.KindNotFound, coreerrors.ErrNotFound, "lock "+lockID)
		}
		return Lock{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read lock")
	}
	return toLock(row), nil
}

func toLock(row *ent.Lock) Lock {
	l := Lock{
		ID:             row.ID,
		File:           row.File,
		NormalizedPath: row.NormalizedPath,
		ReservedBy:     row.ReservedBy,
		ReservedAt:     row.ReservedAt,
		ExpiresAt:      row.ExpiresAt,
		Purpose:        string(row.Purpose),
		Status:         string(row.Status),
	}
	if row.Checksum != nil {
		l.Checksum = *row.Checksum
	}
	if row.ReleasedAt != nil {
		l.ReleasedAt = row.ReleasedAt
	}
	return l
}
