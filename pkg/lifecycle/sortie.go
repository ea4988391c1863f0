package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/sortie"
	"github.com/fleettools/coordinator/pkg/coreerrors"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

// Sortie is the read-side view of a sortie projection row.
type Sortie struct {
	ID              string
	MissionID       string
	Title           string
	Status          string
	AssignedTo      string
	Priority        int
	Progress        int
	Files           []string
	Dependencies    []string
	BlockedCategory string
	BlockedReason   string
	Result          map[string]interface{}
	CreatedAt       time.Time
	UpdatedAt       time.Time
	AssignedAt      *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// CreateSortieInput describes a new sortie.
type CreateSortieInput struct {
	MissionID    string
	Title        string
	Priority     int
	Files        []string
	Dependencies []string
}

// CreateSortie appends sortie_created, minting a fresh sortie id.
func (s *Service) CreateSortie(ctx context.Context, in CreateSortieInput) (string, error) {
	if in.Title == "" {
		return "", coreerrors.NewValidationError("title", "required")
	}
	id := "srt-" + uuid.NewString()
	data := map[string]interface{}{"title": in.Title, "priority": in.Priority}
	if in.MissionID != "" {
		data["mission_id"] = in.MissionID
	}
	if len(in.Files) > 0 {
		data["files"] = toInterfaceSlice(in.Files)
	}
	if len(in.Dependencies) > 0 {
		data["dependencies"] = toInterfaceSlice(in.Dependencies)
	}
	env := eventstore.Envelope{
		EventType:  eventstore.EventSortieCreated,
		StreamType: eventstore.StreamSortie,
		StreamID:   id,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
	if in.MissionID != "" {
		env.CorrelationID = in.MissionID
	}
	if _, err := s.store.Append(ctx, env); err != nil {
		return "", err
	}
	return id, nil
}

// Assign appends sortie_assigned.
func (s *Service) Assign(ctx context.Context, sortieID, specialistID string) error {
	if specialistID == "" {
		return coreerrors.NewValidationError("specialist_id", "required")
	}
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSortieAssigned,
		StreamType: eventstore.StreamSortie,
		StreamID:   sortieID,
		Data:       map[string]interface{}{"specialist_id": specialistID},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// Start appends sortie_started; rejected by the projection unless owner is
// the specialist the sortie was assigned to (§4.5 "only the owner may act").
func (s *Service) Start(ctx context.Context, sortieID, specialistID string) error {
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSortieStarted,
		StreamType: eventstore.StreamSortie,
		StreamID:   sortieID,
		Data:       map[string]interface{}{"specialist_id": specialistID},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// Progress appends sortie_progress with a 0-100 value.
func (s *Service) Progress(ctx context.Context, sortieID, specialistID string, progress int, note string) error {
	if progress < 0 || progress > 100 {
		return coreerrors.NewValidationError("progress", "must be between 0 and 100")
	}
	data := map[string]interface{}{"specialist_id": specialistID, "progress": progress}
	if note != "" {
		data["note"] = note
	}
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSortieProgress,
		StreamType: eventstore.StreamSortie,
		StreamID:   sortieID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// Block appends sortie_blocked with a required category and reason. Category
// must be one of dependency | file_conflict | error | clarification (§4.5).
func (s *Service) Block(ctx context.Context, sortieID, category, reason string) error {
	if category == "" || reason == "" {
		return coreerrors.NewValidationError("block", "category and reason are required")
	}
	switch category {
	case "dependency", "file_conflict", "error", "clarification":
	default:
		return coreerrors.NewValidationError("category", "must be one of dependency, file_conflict, error, clarification")
	}
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSortieBlocked,
		StreamType: eventstore.StreamSortie,
		StreamID:   sortieID,
		Data:       map[string]interface{}{"category": category, "reason": reason},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// Unblock appends sortie_unblocked, returning the sortie to in_progress.
func (s *Service) Unblock(ctx context.Context, sortieID string) error {
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSortieUnblocked,
		StreamType: eventstore.StreamSortie,
		StreamID:   sortieID,
		Data:       map[string]interface{}{},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// CompleteInput carries the data required to close out a sortie.
type CompleteInput struct {
	SpecialistID string
	TestsPassed  bool
	Result       map[string]interface{}
}

// Complete appends sortie_completed; the projection rejects it unless
// tests_passed is true (§4.5 "completion requires a passing test run").
func (s *Service) Complete(ctx context.Context, sortieID string, in CompleteInput) error {
	if !in.TestsPassed {
		return coreerrors.NewValidationError("tests_passed", "complete requires tests_passed=true")
	}
	data := map[string]interface{}{"specialist_id": in.SpecialistID, "tests_passed": in.TestsPassed}
	if in.Result != nil {
		data["result"] = in.Result
	}
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSortieCompleted,
		StreamType: eventstore.StreamSortie,
		StreamID:   sortieID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// Fail appends sortie_failed with a terminal reason.
func (s *Service) Fail(ctx context.Context, sortieID, reason string) error {
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSortieFailed,
		StreamType: eventstore.StreamSortie,
		StreamID:   sortieID,
		Data:       map[string]interface{}{"reason": reason},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// Cancel appends sortie_cancelled.
func (s *Service) Cancel(ctx context.Context, sortieID string) error {
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSortieCancelled,
		StreamType: eventstore.StreamSortie,
		StreamID:   sortieID,
		Data:       map[string]interface{}{},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// OpenReview appends sortie_reviewed, moving a completed sortie into review.
func (s *Service) OpenReview(ctx context.Context, sortieID string) error {
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSortieReviewed,
		StreamType: eventstore.StreamSortie,
		StreamID:   sortieID,
		Data:       map[string]interface{}{},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// ApproveReview appends sortie_approved, returning the sortie to completed.
func (s *Service) ApproveReview(ctx context.Context, sortieID string) error {
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSortieApproved,
		StreamType: eventstore.StreamSortie,
		StreamID:   sortieID,
		Data:       map[string]interface{}{},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// RejectReview appends sortie_rejected with feedback, returning the sortie
// to in_progress for rework with progress reset to 0 (§4.5: re-opening a
// sortie from review resets progress by the review event itself, not by
// the status transition alone) so the rework episode can report progress
// forward again.
func (s *Service) RejectReview(ctx context.Context, sortieID, feedback string) error {
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSortieRejected,
		StreamType: eventstore.StreamSortie,
		StreamID:   sortieID,
		Data:       map[string]interface{}{"feedback": feedback, "progress": 0},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// RestoreInput is the snapshot state a checkpoint recovery restores a sortie
// to (pkg/checkpoint is the only caller of Restore).
type RestoreInput struct {
	Status     string
	Progress   int
	AssignedTo string
}

// Restore appends sortie_restored, the only transition allowed to move a
// sortie's status/progress backwards (§4.7 recovery).
func (s *Service) Restore(ctx context.Context, sortieID string, in RestoreInput) error {
	data := map[string]interface{}{"status": in.Status, "progress": in.Progress}
	if in.AssignedTo != "" {
		data["assigned_to"] = in.AssignedTo
	}
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSortieRestored,
		StreamType: eventstore.StreamSortie,
		StreamID:   sortieID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// GetSortie reads the sortie projection.
func (s *Service) GetSortie(ctx context.Context, sortieID string) (Sortie, error) {
	row, err := s.client.Sortie.Get(ctx, sortieID)
	if err != nil {
		if ent.IsNotFound(err) {
			return Sortie{}, coreerrors.Wrap(coreerrors.KindNotFound, coreerrors.ErrNotFound, "sortie "+sortieID)
		}
		return Sortie{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read sortie")
	}
	return toSortie(row), nil
}

// ListSortiesByMission lists every sortie belonging to a mission.
func (s *Service) ListSortiesByMission(ctx context.Context, missionID string) ([]Sortie, error) {
	rows, err := s.client.Sortie.Query().
		Where(sortie.MissionIDEQ(missionID)).
		Order(ent.Asc(sortie.FieldCreatedAt)).
		All(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to list sorties")
	}
	out := make([]Sortie, len(rows))
	for i, r := range rows {
		out[i] = toSortie(r)
	}
	return out, nil
}

// ListSortiesFilter narrows ListSorties (§6 Sortie surface: "list(filter)").
type ListSortiesFilter struct {
	MissionID  string
	Status     string
	AssignedTo string
}

// ListSorties lists sorties matching filter, any combination of which may be empty.
func (s *Service) ListSorties(ctx context.Context, filter ListSortiesFilter) ([]Sortie, error) {
	q := s.client.Sortie.Query()
	if filter.MissionID != "" {
		q = q.Where(sortie.MissionIDEQ(filter.MissionID))
	}
	if filter.Status != "" {
		q = q.Where(sortie.StatusEQ(sortie.Status(filter.Status)))
	}
	if filter.AssignedTo != "" {
		q = q.Where(sortie.AssignedToEQ(filter.AssignedTo))
	}
	rows, err := q.Order(ent.Asc(sortie.FieldCreatedAt)).All(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to list sorties")
	}
	out := make([]Sortie, len(rows))
	for i, r := range rows {
		out[i] = toSortie(r)
	}
	return out, nil
}

func toSortie(row *ent.Sortie) Sortie {
	s := Sortie{
		ID:        row.ID,
		Title:     row.Title,
		Status:    string(row.Status),
		Priority:  row.Priority,
		Progress:  row.Progress,
		Files:     row.Files,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.MissionID != nil {
		s.MissionID = *row.MissionID
	}
	if row.AssignedTo != nil {
		s.AssignedTo = *row.AssignedTo
	}
	if row.Dependencies != nil {
		s.Dependencies = row.Dependencies
	}
	if row.BlockedCategory != nil {
		s.BlockedCategory = *row.BlockedCategory
	}
	if row.BlockedReason != nil {
		s.BlockedReason = *row.BlockedReason
	}
	if row.Result != nil {
		s.Result = row.Result
	}
	if row.AssignedAt != nil {
		s.AssignedAt = row.AssignedAt
	}
	if row.StartedAt != nil {
		s.StartedAt = row.StartedAt
	}
	if row.CompletedAt != nil {
		s.CompletedAt = row.CompletedAt
	}
	return s
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
