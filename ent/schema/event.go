package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Event holds the schema definition for the Event entity — the single
// append-only log every other projection is derived from. Rows are never
// mutated or deleted once written; only the Compaction component moves rows
// into ArchivedEvent after a covering Snapshot exists.
type Event struct {
	ent.Schema
}

// Fields of the Event.
func (Event) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("event_id").
			Unique().
			Immutable().
			Comment("Opaque id, prefixed evt-"),
		field.Int64("sequence_number").
			Unique().
			Immutable().
			Comment("Global monotonic, gap-free sequence"),
		field.String("event_type").
			Immutable(),
		field.String("stream_type").
			Immutable().
			Comment("mission | sortie | specialist | lock | mailbox | cursor | checkpoint"),
		field.String("stream_id").
			Immutable(),
		field.JSON("data", map[string]interface{}{}).
			Immutable(),
		field.String("causation_id").
			Optional().
			Nillable().
			Immutable().
			Comment("Event this one was caused by; must refer to an earlier event"),
		field.String("correlation_id").
			Immutable().
			Comment("Inherited from the cause, or equal to id for a root event"),
		field.JSON("metadata", map[string]interface{}{}).
			Optional().
			Immutable(),
		field.Time("occurred_at").
			Immutable().
			Comment("Domain time supplied by the caller"),
		field.Time("recorded_at").
			Default(time.Now).
			Immutable().
			Comment("Stamped by the store on append"),
		field.Int("schema_version").
			Default(1).
			Immutable(),
	}
}

// Indexes of the Event.
func (Event) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("stream_type", "stream_id", "sequence_number"),
		index.Fields("correlation_id"),
		index.Fields("causation_id"),
		index.Fields("event_type"),
	}
}
