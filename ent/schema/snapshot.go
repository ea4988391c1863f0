package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Snapshot holds the schema definition for the Snapshot entity — a
// projection rollup of one stream covering [from_sequence, to_sequence].
// Used by Compaction (C9) and by rebuild() to bound how far back a replay
// has to read.
type Snapshot struct {
	ent.Schema
}

// Fields of the Snapshot.
func (Snapshot) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			Comment("stream_type:stream_id:to_sequence"),
		field.String("stream_type").
			Immutable(),
		field.String("stream_id").
			Immutable(),
		field.JSON("state", map[string]interface{}{}).
			Immutable(),
		field.Int64("from_sequence").
			Immutable(),
		field.Int64("to_sequence").
			Immutable().
			Comment("Uniquely identifies a snapshot within its stream"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the Snapshot.
func (Snapshot) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("stream_type", "stream_id", "to_sequence").
			Unique(),
	}
}
