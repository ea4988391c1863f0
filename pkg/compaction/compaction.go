// Package compaction implements Compaction & Retention (C9): periodically
// rolling old, high-volume streams out of the hot event log into a Snapshot
// + ArchivedEvent pair, so replay and get_by_stream stay fast on long-lived
// missions without ever deleting projection-relevant truth (§4.9).
package compaction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/archivedevent"
	"github.com/fleettools/coordinator/ent/event"
	"github.com/fleettools/coordinator/ent/snapshot"
	"github.com/fleettools/coordinator/pkg/config"
	"github.com/fleettools/coordinator/pkg/coreerrors"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

// Service is the Compaction/Retention component (C9).
type Service struct {
	store  *eventstore.Store
	client *ent.Client
	cfg    config.Config
}

// New builds a Service.
func New(store *eventstore.Store, client *ent.Client, cfg config.Config) *Service {
	return &Service{store: store, client: client, cfg: cfg}
}

// Result summarizes one compaction pass.
type Result struct {
	StreamsCompacted int
	EventsArchived   int
}

type streamKey struct {
	streamType string
	streamID   string
}

// Run performs a single compaction pass (§4.9): any (stream_type, stream_id)
// whose uncompacted event count exceeds CompactThresholdEvents, or whose
// oldest uncompacted event is older than CompactAgeDays, gets a new Snapshot
// covering [from_sequence, to_sequence] and has that range moved into
// ArchivedEvent. Safe to call repeatedly — streams below both thresholds are
// left untouched, and an already-compacted prefix is never re-archived.
func (s *Service) Run(ctx context.Context) (Result, error) {
	rows, err := s.client.Event.Query().Order(ent.Asc(event.FieldSequenceNumber)).All(ctx)
	if err != nil {
		return Result{}, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to scan event log for compaction")
	}

	grouped := make(map[streamKey][]*ent.Event)
	for _, r := range rows {
		k := streamKey{r.StreamType, r.StreamID}
		grouped[k] = append(grouped[k], r)
	}

	ageThreshold := time.Duration(s.cfg.CompactAgeDays) * 24 * time.Hour
	var result Result
	for k, events := range grouped {
		lastSnap, err := s.client.Snapshot.Query().
			Where(snapshot.StreamTypeEQ(k.streamType), snapshot.StreamIDEQ(k.streamID)).
			Order(ent.Desc(snapshot.FieldToSequence)).
			First(ctx)
		var floor int64
		if err == nil {
			floor = lastSnap.ToSequence
		} else if !ent.IsNotFound(err) {
			return result, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to load prior snapshot")
		}

		uncompacted := filterAfter(events, floor)
		if len(uncompacted) == 0 {
			continue
		}
		oldest := uncompacted[0].OccurredAt
		if len(uncompacted) <= s.cfg.CompactThresholdEvents && time.Since(oldest) <= ageThreshold {
			continue
		}

		archived, err := s.compactStream(ctx, k, uncompacted)
		if err != nil {
			return result, err
		}
		result.StreamsCompacted++
		result.EventsArchived += archived
	}

	slog.Info("compaction pass complete", "streams_compacted", result.StreamsCompacted, "events_archived", result.EventsArchived)
	return result, nil
}

func filterAfter(events []*ent.Event, floor int64) []*ent.Event {
	out := make([]*ent.Event, 0, len(events))
	for _, e := range events {
		if e.SequenceNumber > floor {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out
}

// compactStream writes the Snapshot row, copies the range into
// ArchivedEvent and deletes the archived rows from the hot Event table in one
// transaction, then appends a stream_compacted audit event after that
// transaction commits.
func (s *Service) compactStream(ctx context.Context, k streamKey, toArchive []*ent.Event) (int, error) {
	fromSeq := toArchive[0].SequenceNumber
	toSeq := toArchive[len(toArchive)-1].SequenceNumber

	tx, err := s.client.Tx(ctx)
	if err != nil {
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to begin compaction transaction")
	}

	state := rollupState(toArchive)
	snapID := fmt.Sprintf("%s:%s:%d", k.streamType, k.streamID, toSeq)
	if _, err := tx.Snapshot.Create().
		SetID(snapID).
		SetStreamType(k.streamType).
		SetStreamID(k.streamID).
		SetState(state).
		SetFromSequence(fromSeq).
		SetToSequence(toSeq).
		Save(ctx); err != nil {
		_ = tx.Rollback()
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to create snapshot")
	}

	ids := make([]string, 0, len(toArchive))
	for _, e := range toArchive {
		create := tx.ArchivedEvent.Create().
			SetID(e.ID).
			SetSequenceNumber(e.SequenceNumber).
			SetEventType(e.EventType).
			SetStreamType(e.StreamType).
			SetStreamID(e.StreamID).
			SetData(e.Data).
			SetCorrelationID(e.CorrelationID).
			SetOccurredAt(e.OccurredAt).
			SetRecordedAt(e.RecordedAt).
			SetSchemaVersion(e.SchemaVersion)
		if e.CausationID != nil {
			create = create.SetCausationID(*e.CausationID)
		}
		if e.Metadata != nil {
			create = create.SetMetadata(e.Metadata)
		}
		if _, err := create.Save(ctx); err != nil {
			_ = tx.Rollback()
			return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to archive event "+e.ID)
		}
		ids = append(ids, e.ID)
	}

	if _, err := tx.Event.Delete().Where(event.IDIn(ids...)).Exec(ctx); err != nil {
		_ = tx.Rollback()
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to remove archived rows from hot log")
	}

	if err := tx.Commit(); err != nil {
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to commit compaction")
	}

	if _, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventStreamCompacted,
		StreamType: k.streamType,
		StreamID:   k.streamID,
		Data: map[string]interface{}{
			"from_sequence":   fromSeq,
			"to_sequence":     toSeq,
			"events_archived": len(ids),
			"snapshot_id":     snapID,
		},
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		return len(ids), err
	}

	return len(ids), nil
}

// rollupState builds the Snapshot's opaque state payload: a compact summary
// of the archived range, not a domain-specific replay of Mission/Sortie
// fields (those already live, durably, in the projection tables this
// component never touches). Rebuild does not read snapshots — it replays the
// ArchivedEvent and Event rows together; Run uses to_sequence as the floor
// for what is still uncompacted, and state exists for operator/debugging
// visibility into what was rolled up.
func rollupState(events []*ent.Event) map[string]interface{} {
	last := events[len(events)-1]
	return map[string]interface{}{
		"event_count":     len(events),
		"last_event_type": last.EventType,
		"last_event_id":   last.ID,
		"last_occurred_at": last.OccurredAt.Format(time.RFC3339Nano),
	}
}

// ArchivedEventCount reports how many archived events exist for a stream
// (used by the package's tests).
func (s *Service) ArchivedEventCount(ctx context.Context, streamType, streamID string) (int, error) {
	n, err := s.client.ArchivedEvent.Query().
		Where(archivedevent.StreamTypeEQ(streamType), archivedevent.StreamIDEQ(streamID)).
		Count(ctx)
	if err != nil {
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to count archived events")
	}
	return n, nil
}
