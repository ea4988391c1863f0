package scheduler

import (
	"context"
	"time"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/specialist"
	"github.com/fleettools/coordinator/pkg/coreerrors"
)

// Specialist is the read-side view of a specialist projection row (§6
// Specialist surface: get/list).
type Specialist struct {
	ID             string
	Name           string
	Status         string
	CurrentSortie  string
	LastSeen       time.Time
	CreatedAt      time.Time
	Capabilities   []string
}

// GetSpecialist reads a specialist's projection row.
func (s *Service) GetSpecialist(ctx context.Context, specialistID string) (Specialist, error) {
	row, err := s.client.Specialist.Get(ctx, specialistID)
	if err != nil {
		if ent.IsNotFound(err) {
			return Specialist{}, coreerrors.Wrap(coreerrors.KindNotFound, coreerrors.ErrNotFound, "specialist "+specialistID)
		}
		return Specialist{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read specialist")
	}
	return toSpecialist(row), nil
}

// ListSpecialists lists every specialist, optionally filtered by status.
func (s *Service) ListSpecialists(ctx context.Context, status string) ([]Specialist, error) {
	q := s.client.Specialist.Query()
	if status != "" {
		q = q.Where(specialist.StatusEQ(specialist.Status(status)))
	}
	rows, err := q.Order(ent.Desc(specialist.FieldLastSeen)).All(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to list specialists")
	}
	out := make([]Specialist, len(rows))
	for i, r := range rows {
		out[i] = toSpecialist(r)
	}
	return out, nil
}

func toSpecialist(row *ent.Specialist) Specialist {
	sp := Specialist{
		ID:        row.ID,
		Name:      row.Name,
		Status:    string(row.Status),
		LastSeen:  row.LastSeen,
		CreatedAt: row.CreatedAt,
	}
	if row.CurrentSortie != nil {
		sp.CurrentSortie = *row.CurrentSortie
	}
	if row.Capabilities != nil {
		sp.Capabilities = row.Capabilities
	}
	return sp
}
