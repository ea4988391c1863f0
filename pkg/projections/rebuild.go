package projections

import (
	"context"
	"fmt"
	"sort"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/archivedevent"
	"github.com/fleettools/coordinator/ent/checkpoint"
	"github.com/fleettools/coordinator/ent/cursor"
	"github.com/fleettools/coordinator/ent/event"
	"github.com/fleettools/coordinator/ent/lock"
	"github.com/fleettools/coordinator/ent/message"
	"github.com/fleettools/coordinator/ent/mission"
	"github.com/fleettools/coordinator/ent/sortie"
	"github.com/fleettools/coordinator/ent/specialist"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

// Rebuild truncates the projection rows for the targeted stream (or every
// stream, if streamType/streamID are empty) and replays events in sequence
// order to reconstruct them (§4.2 Rebuildability). It must produce
// byte-identical projection state for a given event prefix, which holds here
// because every Handler is a pure function of (current row, event).
func (e *Engine) Rebuild(ctx context.Context, streamType, streamID string) error {
	tx, err := e.client.Tx(ctx)
	if err != nil {
		return fmt.Errorf("rebuild: begin tx: %w", err)
	}

	if err := truncateTargets(ctx, tx, streamType, streamID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("rebuild: truncate: %w", err)
	}

	q := tx.Event.Query()
	if streamType != "" {
		q = q.Where(event.StreamTypeEQ(streamType))
	}
	if streamID != "" {
		q = q.Where(event.StreamIDEQ(streamID))
	}
	rows, err := q.Order(ent.Asc(event.FieldSequenceNumber)).All(ctx)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("rebuild: read events: %w", err)
	}

	aq := tx.ArchivedEvent.Query()
	if streamType != "" {
		aq = aq.Where(archivedevent.StreamTypeEQ(streamType))
	}
	if streamID != "" {
		aq = aq.Where(archivedevent.StreamIDEQ(streamID))
	}
	archivedRows, err := aq.Order(ent.Asc(archivedevent.FieldSequenceNumber)).All(ctx)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("rebuild: read archived events: %w", err)
	}

	events := make([]eventstore.Event, 0, len(rows)+len(archivedRows))
	for _, row := range archivedRows {
		events = append(events, archivedToEvent(row))
	}
	for _, row := range rows {
		events = append(events, entToEvent(row))
	}
	sort.Slice(events, func(i, j int) bool { return events[i].SequenceNumber < events[j].SequenceNumber })

	for _, ev := range events {
		if err := e.Apply(ctx, tx, ev); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("rebuild: replay event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rebuild: commit: %w", err)
	}
	return nil
}

// truncateTargets clears the projection rows the caller asked to rebuild.
// When streamType is empty, every projection table is cleared (a full
// rebuild of the store from the log).
func truncateTargets(ctx context.Context, tx *ent.Tx, streamType, streamID string) error {
	single := streamID != ""

	if streamType == "" || streamType == eventstore.StreamSortie {
		q := tx.Sortie.Delete()
		if single {
			q = q.Where(sortie.IDEQ(streamID))
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}
	if streamType == "" || streamType == eventstore.StreamMission {
		q := tx.Mission.Delete()
		if single {
			q = q.Where(mission.IDEQ(streamID))
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}
	if streamType == "" || streamType == eventstore.StreamSpecialist {
		q := tx.Specialist.Delete()
		if single {
			q = q.Where(specialist.IDEQ(streamID))
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}
	if streamType == "" || streamType == eventstore.StreamLock {
		q := tx.Lock.Delete()
		if single {
			q = q.Where(lock.IDEQ(streamID))
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}
	if streamType == "" || streamType == eventstore.StreamMailbox {
		q := tx.Message.Delete()
		if single {
			q = q.Where(message.IDEQ(streamID))
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}
	if streamType == "" || streamType == eventstore.StreamCursor {
		q := tx.Cursor.Delete()
		if single {
			q = q.Where(cursor.IDEQ(streamID))
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}
	if streamType == "" || streamType == eventstore.StreamCheckpoint {
		q := tx.Checkpoint.Delete()
		if single {
			q = q.Where(checkpoint.IDEQ(streamID))
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func entToEvent(row *ent.Event) eventstore.Event {
	return eventstore.Event{
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

// archivedToEvent adapts a compacted row back into an eventstore.Event so
// Rebuild can replay archived and hot rows through the same Apply path —
// compaction moves events out of the hot table for storage reasons only, it
// never removes them from the log a rebuild is entitled to see (§4.9 "do not
// delete from projection-relevant truth").
func archivedToEvent(row *ent.ArchivedEvent) eventstore.Event {
	return eventstore.Event{
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
