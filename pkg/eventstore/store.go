package eventstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/event"
	"github.com/fleettools/coordinator/pkg/coreerrors"
)

// Projector folds one committed event into its projection rows, inside the
// same transaction the event was appended in (§4.2 Atomicity). Store never
// mutates projections itself — it calls out to whatever Projector was
// registered at construction, keeping C1/C2 ownership split (§3).
type Projector interface {
	Apply(ctx context.Context, tx *ent.Tx, ev Event) error
}

// Store is the Event Store (C1). Appends are serialised by mu, matching the
// "single-writer discipline" of §5; reads take no lock and observe a
// consistent prefix of the log.
type Store struct {
	client    *ent.Client
	projector Projector
	notifier  *Notifier

	mu sync.Mutex

	busyTimeout time.Duration
}

// New builds a Store. notifier may be nil (internal wakeup becomes a no-op).
func New(client *ent.Client, projector Projector, notifier *Notifier, busyTimeout time.Duration) *Store {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	return &Store{client: client, projector: projector, notifier: notifier, busyTimeout: busyTimeout}
}

// Append is the only write path (§4.1). It assigns a sequence number,
// resolves correlation_id from the cause, persists the event and applies its
// projection effect in one transaction, and rejects duplicate event ids.
func (s *Store) Append(ctx context.Context, env Envelope) (int64, error) {
	if env.EventType == "" || env.StreamType == "" || env.StreamID == "" {
		return 0, coreerrors.NewValidationError("event", "event_type, stream_type and stream_id are required")
	}
	if env.EventID == "" {
		env.EventID = "evt-" + uuid.NewString()
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	if env.SchemaVersion == 0 {
		env.SchemaVersion = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(s.busyTimeout)
	var seq int64
	var tx *ent.Tx
	var err error
	for {
		tx, err = s.client.Tx(ctx)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "event store unavailable")
		}
		time.Sleep(50 * time.Millisecond)
	}

	existing, err := tx.Event.Query().Where(event.IDEQ(env.EventID)).Count(ctx)
	if err != nil {
		_ = tx.Rollback()
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to check for duplicate event id")
	}
	if existing > 0 {
		_ = tx.Rollback()
		return 0, coreerrors.Wrap(coreerrors.KindConflict, coreerrors.ErrDuplicateEventID, env.EventID)
	}

	if env.CausationID != nil {
		cause, err := tx.Event.Query().Where(event.IDEQ(*env.CausationID)).Only(ctx)
		if err != nil {
			_ = tx.Rollback()
			return 0, coreerrors.New(coreerrors.KindValidation, "causation_id does not refer to an existing event")
		}
		if env.CorrelationID == "" {
			env.CorrelationID = cause.CorrelationID
		}
	}
	if env.CorrelationID == "" {
		env.CorrelationID = env.EventID
	}

	last, err := tx.Event.Query().Order(ent.Desc(event.FieldSequenceNumber)).First(ctx)
	switch {
	case err == nil:
		seq = last.SequenceNumber + 1
	case ent.IsNotFound(err):
		seq = 1
	default:
		_ = tx.Rollback()
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read current sequence")
	}

	create := tx.Event.Create().
		SetID(env.EventID).
		SetSequenceNumber(seq).
		SetEventType(env.EventType).
		SetStreamType(env.StreamType).
		SetStreamID(env.StreamID).
		SetData(env.Data).
		SetCorrelationID(env.CorrelationID).
		SetOccurredAt(env.OccurredAt).
		SetRecordedAt(time.Now().UTC()).
		SetSchemaVersion(env.SchemaVersion)
	if env.CausationID != nil {
		create = create.SetCausationID(*env.CausationID)
	}
	if env.Metadata != nil {
		create = create.SetMetadata(env.Metadata)
	}

	row, err := create.Save(ctx)
	if err != nil {
		_ = tx.Rollback()
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to append event")
	}

	ev := fromEnt(row)

	if s.projector != nil {
		if err := s.projector.Apply(ctx, tx, ev); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("projection update rejected append: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to commit append")
	}

	slog.Debug("event appended", "event_id", ev.ID, "sequence_number", ev.SequenceNumber,
		"event_type", ev.EventType, "stream_type", ev.StreamType, "stream_id", ev.StreamID)

	if s.notifier != nil {
		s.notifier.Notify(ev)
	}

	return seq, nil
}

// GetByID fetches a single event.
func (s *Store) GetByID(ctx context.Context, id string) (Event, error) {
	row, err := s.client.Event.Query().Where(event.IDEQ(id)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return Event{}, coreerrors.Wrap(coreerrors.KindNotFound, coreerrors.ErrNotFound, "event "+id)
		}
		return Event{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to get event")
	}
	return fromEnt(row), nil
}

// GetByStream returns events for a stream in sequence order, optionally
// starting after a given sequence and bounded by limit.
func (s *Store) GetByStream(ctx context.Context, streamType, streamID string, afterSequence int64, limit int) ([]Event, error) {
	q := s.client.Event.Query().Where(
		event.StreamTypeEQ(streamType),
		event.StreamIDEQ(streamID),
		event.SequenceNumberGT(afterSequence),
	).Order(ent.Asc(event.FieldSequenceNumber))
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read stream")
	}
	return fromEntSlice(rows), nil
}

// GetByCorrelation returns every event sharing a correlation id, in sequence order.
func (s *Store) GetByCorrelation(ctx context.Context, correlationID string) ([]Event, error) {
	rows, err := s.client.Event.Query().
		Where(event.CorrelationIDEQ(correlationID)).
		Order(ent.Asc(event.FieldSequenceNumber)).
		All(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read correlation chain")
	}
	return fromEntSlice(rows), nil
}

// GetAfter returns up to limit events with sequence_number > after, across all streams.
func (s *Store) GetAfter(ctx context.Context, after int64, limit int) ([]Event, error) {
	q := s.client.Event.Query().
		Where(event.SequenceNumberGT(after)).
		Order(ent.Asc(event.FieldSequenceNumber))
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read log")
	}
	return fromEntSlice(rows), nil
}

// LatestSequence returns the sequence number of the most recently appended
// event, or 0 if the log is empty. Used by checkpoint assembly and compaction.
func (s *Store) LatestSequence(ctx context.Context) (int64, error) {
	last, err := s.client.Event.Query().Order(ent.Desc(event.FieldSequenceNumber)).First(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return 0, nil
		}
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read latest sequence")
	}
	return last.SequenceNumber, nil
}

func fromEnt(row *ent.Event) Event {
	return Event{
		ID:             row.ID,
		SequenceNumber: row.SequenceNumber,
		EventType:      row.EventType,
		StreamType:     row.StreamType,
		StreamID:       row.StreamID,
		Data:           row.Data,
		CausationID:    row.CausationID,
		CorrelationID:  row.CorrelationID,
		Metadata:       row.Metadata,
		OccurredAt:     row.OccurredAt,
		RecordedAt:     row.RecordedAt,
		SchemaVersion:  row.SchemaVersion,
	}
}

func fromEntSlice(rows []*ent.Event) []Event {
	out := make([]Event, len(rows))
	for i, r := range rows {
		out[i] = fromEnt(r)
	}
	return out
}
