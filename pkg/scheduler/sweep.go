package scheduler

import (
	"context"
	"time"

	"github.com/fleettools/coordinator/ent/specialist"
	"github.com/fleettools/coordinator/pkg/coreerrors"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

// SweepStaleSpecialists marks any registered/working specialist stale when
// now - last_seen exceeds StaleThreshold, blocking its current sortie with
// category "error" so the blocker policy reassigns it (§4.6 "stale
// specialist handling"). Runs on a HeartbeatCheck-interval ticker.
func (s *Service) SweepStaleSpecialists(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.staleThreshold)
	rows, err := s.client.Specialist.Query().
		Where(
			specialist.StatusIn(specialist.StatusRegistered, specialist.StatusWorking),
			specialist.LastSeenLT(cutoff),
		).
		All(ctx)
	if err != nil {
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to query specialists for staleness sweep")
	}

	marked := 0
	for _, row := range rows {
		if err := s.markStale(ctx, row.ID, row.CurrentSortie); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

func (s *Service) markStale(ctx context.Context, specialistID string, currentSortie *string) error {
	if _, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSpecialistStale,
		StreamType: eventstore.StreamSpecialist,
		StreamID:   specialistID,
		Data:       map[string]interface{}{},
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	if currentSortie == nil || *currentSortie == "" {
		return nil
	}
	sr, err := s.lifecycle.GetSortie(ctx, *currentSortie)
	if err != nil {
		return err
	}
	if sr.Status == "in_progress" || sr.Status == "assigned" {
		if err := s.lifecycle.Block(ctx, sr.ID, "error", "specialist heartbeat went stale"); err != nil {
			return err
		}
		return s.HandleBlocked(ctx, sr.ID)
	}
	return nil
}
