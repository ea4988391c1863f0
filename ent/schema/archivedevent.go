package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ArchivedEvent holds events moved out of the hot Event table by the
// Compaction component once a covering Snapshot exists for their range.
// Schema mirrors Event; it is a distinct table so the hot path (append,
// get_by_stream) never has to filter archived rows.
type ArchivedEvent struct {
	ent.Schema
}

// Fields of the ArchivedEvent.
func (ArchivedEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("event_id").
			Unique().
			Immutable(),
		field.Int64("sequence_number").
			Unique().
			Immutable(),
		field.String("event_type").
			Immutable(),
		field.String("stream_type").
			Immutable(),
		field.String("stream_id").
			Immutable(),
		field.JSON("data", map[string]interface{}{}).
			Immutable(),
		field.String("causation_id").
			Optional().
			Nillable().
			Immutable(),
		field.String("correlation_id").
			Immutable(),
		field.JSON("metadata", map[string]interface{}{}).
			Optional().
			Immutable(),
		field.Time("occurred_at").
			Immutable(),
		field.Time("recorded_at").
			Immutable(),
		field.Int("schema_version").
			Default(1).
			Immutable(),
		field.Time("archived_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the ArchivedEvent.
func (ArchivedEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("stream_type", "stream_id", "sequence_number"),
	}
}
