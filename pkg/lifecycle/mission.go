// Package lifecycle implements the Sortie/Mission Lifecycle (C5): the state
// machines described in §4.5, each operation a thin validating wrapper
// around an eventstore.Store.Append — the actual transition legality is
// enforced by the pkg/projections handlers folding the resulting event.
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/mission"
	"github.com/fleettools/coordinator/ent/sortie"
	"github.com/fleettools/coordinator/pkg/coreerrors"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

// Service is the Sortie/Mission Lifecycle component (C5).
type Service struct {
	store  *eventstore.Store
	client *ent.Client
}

// New builds a Service.
func New(store *eventstore.Store, client *ent.Client) *Service {
	return &Service{store: store, client: client}
}

// Mission is the read-side view of a mission projection row.
type Mission struct {
	ID               string
	Title            string
	Description      string
	Status           string
	Priority         int
	TotalSorties     int
	CompletedSorties int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// CreateMissionInput describes a new mission.
type CreateMissionInput struct {
	Title       string
	Description string
	Priority    int
}

// CreateMission appends mission_created, minting a fresh mission id.
func (s *Service) CreateMission(ctx context.Context, in CreateMissionInput) (string, error) {
	if in.Title == "" {
		return "", coreerrors.NewValidationError("title", "required")
	}
	id := "msn-" + uuid.NewString()
	data := map[string]interface{}{"title": in.Title, "priority": in.Priority}
	if in.Description != "" {
		data["description"] = in.Description
	}
	if _, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventMissionCreated,
		StreamType: eventstore.StreamMission,
		StreamID:   id,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return "", err
	}
	return id, nil
}

// StartMission appends mission_started.
func (s *Service) StartMission(ctx context.Context, missionID string) error {
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventMissionStarted,
		StreamType: eventstore.StreamMission,
		StreamID:   missionID,
		Data:       map[string]interface{}{},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// CompleteMission appends mission_completed; the projection handler refuses
// it with PRECONDITION_FAILED if any child sortie is non-terminal (§4.5).
func (s *Service) CompleteMission(ctx context.Context, missionID string) error {
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventMissionCompleted,
		StreamType: eventstore.StreamMission,
		StreamID:   missionID,
		Data:       map[string]interface{}{},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// CancelMission appends mission_cancelled.
func (s *Service) CancelMission(ctx context.Context, missionID string) error {
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventMissionCancelled,
		StreamType: eventstore.StreamMission,
		StreamID:   missionID,
		Data:       map[string]interface{}{},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// GetMission reads the mission projection.
func (s *Service) GetMission(ctx context.Context, missionID string) (Mission, error) {
	row, err := s.client.Mission.Get(ctx, missionID)
	if err != nil {
		if ent.IsNotFound(err) {
			return Mission{}, coreerrors.Wrap(coreerrors.KindNotFound, coreerrors.ErrNotFound, "mission "+missionID)
		}
		return Mission{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read mission")
	}
	return toMission(row), nil
}

// ListMissionsFilter narrows ListMissions.
type ListMissionsFilter struct {
	Status   string
	Priority *int
}

// ListMissions lists missions matching filter.
func (s *Service) ListMissions(ctx context.Context, filter ListMissionsFilter) ([]Mission, error) {
	q := s.client.Mission.Query()
	if filter.Status != "" {
		q = q.Where(mission.StatusEQ(mission.Status(filter.Status)))
	}
	if filter.Priority != nil {
		q = q.Where(mission.PriorityEQ(*filter.Priority))
	}
	rows, err := q.Order(ent.Desc(mission.FieldPriority), ent.Asc(mission.FieldCreatedAt)).All(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to list missions")
	}
	out := make([]Mission, len(rows))
	for i, r := range rows {
		out[i] = toMission(r)
	}
	return out, nil
}

// MissionStats is the get_stats operation's aggregated view (§6 Mission
// surface): per-status sortie counts plus the mission's own progress fields.
type MissionStats struct {
	MissionID        string
	Status           string
	ProgressPercent  int
	TotalSorties     int
	CompletedSorties int
	ByStatus         map[string]int
	ElapsedMs        int64
}

// GetStats aggregates a mission's sortie counts by status.
func (s *Service) GetStats(ctx context.Context, missionID string) (MissionStats, error) {
	m, err := s.GetMission(ctx, missionID)
	if err != nil {
		return MissionStats{}, err
	}
	rows, err := s.client.Sortie.Query().Where(sortie.MissionIDEQ(missionID)).All(ctx)
	if err != nil {
		return MissionStats{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to load sorties for stats")
	}
	byStatus := make(map[string]int)
	for _, r := range rows {
		byStatus[string(r.Status)]++
	}
	percent := 0
	if m.TotalSorties > 0 {
		percent = int(float64(m.CompletedSorties) / float64(m.TotalSorties) * 100)
	}
	var elapsed int64
	if m.StartedAt != nil {
		elapsed = time.Since(*m.StartedAt).Milliseconds()
	}
	return MissionStats{
		MissionID: missionID, Status: m.Status, ProgressPercent: percent,
		TotalSorties: m.TotalSorties, CompletedSorties: m.CompletedSorties,
		ByStatus: byStatus, ElapsedMs: elapsed,
	}, nil
}

func toMission(row *ent.Mission) Mission {
	m := Mission{
		ID:               row.ID,
		Title:            row.Title,
		Status:           string(row.Status),
		Priority:         row.Priority,
		TotalSorties:     row.TotalSorties,
		CompletedSorties: row.CompletedSorties,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if row.Description != nil {
		m.Description = *row.Description
	}
	if row.StartedAt != nil {
		m.StartedAt = row.StartedAt
	}
	if row.CompletedAt != nil {
		m.CompletedAt = row.CompletedAt
	}
	return m
}
