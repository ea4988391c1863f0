package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/fleettools/coordinator/ent/sortie"
	"github.com/fleettools/coordinator/pkg/lifecycle"
	"github.com/fleettools/coordinator/pkg/locks"
	"github.com/fleettools/coordinator/pkg/mailbox"
)

// HandleBlocked dispatches on a sortie's blocked_category (§4.6 blocker
// handling). Called after a sortie_blocked event is folded.
func (s *Service) HandleBlocked(ctx context.Context, sortieID string) error {
	sr, err := s.lifecycle.GetSortie(ctx, sortieID)
	if err != nil {
		return err
	}
	if sr.Status != string(sortie.StatusBlocked) {
		return nil
	}
	switch sr.BlockedCategory {
	case "dependency":
		return s.handleDependencyBlock(ctx, sr)
	case "file_conflict":
		return s.handleFileConflictBlock(ctx, sr)
	case "error":
		return s.lifecycle.OpenReview(ctx, sortieID)
	case "clarification":
		return s.handleClarificationBlock(ctx, sr)
	}
	return nil
}

func (s *Service) handleDependencyBlock(ctx context.Context, sr lifecycle.Sortie) error {
	for _, dep := range sr.Dependencies {
		depRow, err := s.lifecycle.GetSortie(ctx, dep)
		if err != nil {
			return err
		}
		if depRow.Status != string(sortie.StatusCompleted) {
			return nil // dependency still outstanding, stays on the wait list
		}
	}
	if sr.AssignedTo != "" {
		if _, err := s.mailbox.Append(ctx, sr.AssignedTo, []mailbox.MessageInput{{
			Type:    "blocker_resolved",
			Content: map[string]interface{}{"sortie_id": sr.ID, "category": "dependency"},
		}}); err != nil {
			return err
		}
	}
	return s.lifecycle.Unblock(ctx, sr.ID)
}

func (s *Service) handleFileConflictBlock(ctx context.Context, sr lifecycle.Sortie) error {
	if len(sr.Files) == 0 {
		return s.lifecycle.Unblock(ctx, sr.ID)
	}
	normalized, err := locks.Canonicalize(sr.Files[0])
	if err != nil {
		return nil
	}
	active, err := s.locks.ListActive(ctx, "")
	if err != nil {
		return err
	}
	for _, lk := range active {
		if lk.NormalizedPath != normalized {
			continue
		}
		if lk.ExpiresAt.Before(time.Now()) {
			return s.notifyRetry(ctx, sr)
		}
		return nil // lock still held by someone else; leave for escalation
	}
	// no conflicting lock remains
	return s.notifyRetry(ctx, sr)
}

func (s *Service) notifyRetry(ctx context.Context, sr lifecycle.Sortie) error {
	if sr.AssignedTo != "" {
		if _, err := s.mailbox.Append(ctx, sr.AssignedTo, []mailbox.MessageInput{{
			Type:    "retry_lock",
			Content: map[string]interface{}{"sortie_id": sr.ID, "file": firstOrEmpty(sr.Files)},
		}}); err != nil {
			return err
		}
	}
	return s.lifecycle.Unblock(ctx, sr.ID)
}

func (s *Service) handleClarificationBlock(ctx context.Context, sr lifecycle.Sortie) error {
	if sr.AssignedTo == "" {
		return nil
	}
	_, err := s.mailbox.Append(ctx, sr.AssignedTo, []mailbox.MessageInput{{
		Type:    "clarification_request",
		Content: map[string]interface{}{"sortie_id": sr.ID, "reason": sr.BlockedReason},
	}})
	return err
}

// EscalateStaleBlockers marks any sortie blocked longer than the configured
// BlockerTimeout as failed and cascades cancellation to its dependents
// (§4.6 "if a blocker persists longer than BLOCKER_TIMEOUT").
func (s *Service) EscalateStaleBlockers(ctx context.Context, missionID string) (int, error) {
	all, err := s.lifecycle.ListSortiesByMission(ctx, missionID)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-s.blockerTimeout)
	escalated := 0
	for _, sr := range all {
		if sr.Status != string(sortie.StatusBlocked) {
			continue
		}
		if sr.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.lifecycle.Fail(ctx, sr.ID, fmt.Sprintf("blocker %q exceeded timeout", sr.BlockedCategory)); err != nil {
			return escalated, err
		}
		if err := s.cascadeCancel(ctx, all, sr.ID); err != nil {
			return escalated, err
		}
		escalated++
	}
	return escalated, nil
}

// cascadeCancel cancels every sortie (recursively) that depends on a sortie
// that just failed, without re-querying the mission for each step.
func (s *Service) cascadeCancel(ctx context.Context, all []lifecycle.Sortie, failedID string) error {
	for _, sr := range all {
		if sr.Status == string(sortie.StatusCompleted) || sr.Status == string(sortie.StatusCancelled) || sr.Status == string(sortie.StatusFailed) {
			continue
		}
		for _, dep := range sr.Dependencies {
			if dep == failedID {
				if err := s.lifecycle.Cancel(ctx, sr.ID); err != nil {
					return err
				}
				if err := s.cascadeCancel(ctx, all, sr.ID); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

func firstOrEmpty(in []string) string {
	if len(in) == 0 {
		return ""
	}
	return in[0]
}
