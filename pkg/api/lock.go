package api

import (
	"context"

	"github.com/fleettools/coordinator/pkg/locks"
)

// AcquireLockResult is the acquire operation's output: either a fresh lock
// or the conflicting one that blocked it (§4.3 acquire algorithm).
type AcquireLockResult struct {
	Lock       *locks.Lock
	Conflicted *locks.Lock
}

// AcquireLock acquires a file reservation (§6 Lock surface: "acquire").
func (a *API) AcquireLock(ctx context.Context, file, specialistID string, timeoutMs int64, purpose, checksum string) Response[AcquireLockResult] {
	lk, conflict, err := a.locks.Acquire(ctx, file, specialistID, timeoutMs, purpose, checksum)
	if err != nil {
		return fail[AcquireLockResult](err)
	}
	if conflict != nil {
		return ok(AcquireLockResult{Conflicted: conflict})
	}
	return ok(AcquireLockResult{Lock: &lk})
}

// ReleaseLock releases an owned lock (§6 Lock surface: "release").
func (a *API) ReleaseLock(ctx context.Context, lockID, specialistID string) Response[locks.Lock] {
	lk, err := a.locks.Release(ctx, lockID, specialistID)
	if err != nil {
		return fail[locks.Lock](err)
	}
	return ok(lk)
}

// ForceReleaseLock releases a lock regardless of ownership (§6 Lock
// surface: "force_release").
func (a *API) ForceReleaseLock(ctx context.Context, lockID, reason string) Response[locks.Lock] {
	lk, err := a.locks.ForceRelease(ctx, lockID, reason)
	if err != nil {
		return fail[locks.Lock](err)
	}
	return ok(lk)
}

// ExtendLock extends an owned lock's expiry (§6 Lock surface: "extend").
func (a *API) ExtendLock(ctx context.Context, lockID, specialistID string, additionalMs int64) Response[locks.Lock] {
	lk, err := a.locks.Extend(ctx, lockID, specialistID, additionalMs)
	if err != nil {
		return fail[locks.Lock](err)
	}
	return ok(lk)
}

// ReacquireLocks reacquires a checkpoint's active-locks snapshot during
// recovery (§6 Lock surface: "reacquire(snapshots)"; §4.7 step 2).
func (a *API) ReacquireLocks(ctx context.Context, snapshots []locks.SnapshotRequest) Response[[]locks.ReacquireResult] {
	results, err := a.locks.Reacquire(ctx, snapshots)
	if err != nil {
		return fail[[]locks.ReacquireResult](err)
	}
	return ok(results)
}

// ListActiveLocks lists active locks, optionally filtered by owner (§6 Lock
// surface: "list_active").
func (a *API) ListActiveLocks(ctx context.Context, reservedBy string) Response[[]locks.Lock] {
	rows, err := a.locks.ListActive(ctx, reservedBy)
	if err != nil {
		return fail[[]locks.Lock](err)
	}
	return ok(rows)
}

// GetLock reads one lock by id (§6 Lock surface: "get").
func (a *API) GetLock(ctx context.Context, lockID string) Response[locks.Lock] {
	lk, err := a.locks.Get(ctx, lockID)
	if err != nil {
		return fail[locks.Lock](err)
	}
	return ok(lk)
}
