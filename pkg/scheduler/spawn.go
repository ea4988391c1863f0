package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleettools/coordinator/ent/sortie"
	"github.com/fleettools/coordinator/pkg/eventstore"
	"github.com/fleettools/coordinator/pkg/lifecycle"
)

// ReadySet computes R = { s | s.status=pending ∧ every dep.status=completed }
// for a mission (§4.6 step 1).
func (s *Service) ReadySet(ctx context.Context, missionID string) ([]lifecycle.Sortie, error) {
	all, err := s.lifecycle.ListSortiesByMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]lifecycle.Sortie, len(all))
	for _, sr := range all {
		byID[sr.ID] = sr
	}

	ready := make([]lifecycle.Sortie, 0)
	for _, sr := range all {
		if sr.Status != string(sortie.StatusPending) {
			continue
		}
		allDepsComplete := true
		for _, dep := range sr.Dependencies {
			depRow, ok := byID[dep]
			if !ok || depRow.Status != string(sortie.StatusCompleted) {
				allDepsComplete = false
				break
			}
		}
		if allDepsComplete {
			ready = append(ready, sr)
		}
	}
	return ready, nil
}

// Tick runs the spawn policy: compute the ready set and spawn a specialist
// for every member, one after another within the same tick (§4.6 steps 2-3).
// When nothing is ready and every sortie of the mission is completed or
// cancelled, it completes the mission instead. Called on mission start and
// on every sortie_completed (completion propagation, §4.6).
func (s *Service) Tick(ctx context.Context, missionID string) ([]string, error) {
	ready, err := s.ReadySet(ctx, missionID)
	if err != nil {
		return nil, err
	}
	spawned := make([]string, 0, len(ready))
	if len(ready) == 0 {
		all, err := s.lifecycle.ListSortiesByMission(ctx, missionID)
		if err != nil {
			return spawned, err
		}
		done := len(all) > 0
		for _, sr := range all {
			done = done && (sr.Status == string(sortie.StatusCompleted) || sr.Status == string(sortie.StatusCancelled))
		}
		if m, err := s.lifecycle.GetMission(ctx, missionID); err != nil || !done || m.Status == "completed" || m.Status == "cancelled" {
			return spawned, err
		}
		return spawned, s.lifecycle.CompleteMission(ctx, missionID)
	}
	for _, sr := range ready {
		specialistID, err := s.SpawnSpecialist(ctx, sr.ID, sr.Title)
		if err != nil {
			return spawned, err
		}
		if err := s.lifecycle.Assign(ctx, sr.ID, specialistID); err != nil {
			return spawned, err
		}
		spawned = append(spawned, specialistID)
	}
	return spawned, nil
}

// SpawnSpecialist appends specialist_spawned, minting a fresh specialist id
// bound to sortieID.
func (s *Service) SpawnSpecialist(ctx context.Context, sortieID, sortieTitle string) (string, error) {
	id := "spc-" + uuid.NewString()
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSpecialistSpawned,
		StreamType: eventstore.StreamSpecialist,
		StreamID:   id,
		Data: map[string]interface{}{
			"name":      "specialist-for-" + sortieTitle,
			"sortie_id": sortieID,
		},
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RegisterSpecialist appends specialist_registered (§6 "register(id,
// sortie_id, mission_id)"). missionID is accepted for the external contract
// but not separately persisted — current_sortie already resolves to a
// mission via the Sortie projection, and Specialist carries no mission_id
// column of its own (§3 data model).
func (s *Service) RegisterSpecialist(ctx context.Context, specialistID, sortieID, missionID string) error {
	data := map[string]interface{}{}
	if sortieID != "" {
		data["sortie_id"] = sortieID
	}
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:     eventstore.EventSpecialistRegistered,
		StreamType:    eventstore.StreamSpecialist,
		StreamID:      specialistID,
		Data:          data,
		CorrelationID: missionID,
		OccurredAt:    time.Now().UTC(),
	})
	return err
}

// Heartbeat appends specialist_heartbeat, refreshing last_seen and clearing
// staleness (§4.6 stale specialist handling).
func (s *Service) Heartbeat(ctx context.Context, specialistID string) error {
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSpecialistHeartbeat,
		StreamType: eventstore.StreamSpecialist,
		StreamID:   specialistID,
		Data:       map[string]interface{}{},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// DeregisterSpecialist appends specialist_deregistered.
func (s *Service) DeregisterSpecialist(ctx context.Context, specialistID string) error {
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSpecialistDeregistered,
		StreamType: eventstore.StreamSpecialist,
		StreamID:   specialistID,
		Data:       map[string]interface{}{},
		OccurredAt: time.Now().UTC(),
	})
	return err
}
