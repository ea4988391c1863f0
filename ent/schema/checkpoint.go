package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Checkpoint holds the schema definition for the Checkpoint entity — a
// durable snapshot of mission state plus recovery context. Also written to
// <state_dir>/checkpoints/<mission_id>/<checkpoint_id>.json as the dual
// storage copy; this row is the primary-store half.
type Checkpoint struct {
	ent.Schema
}

// Fields of the Checkpoint.
func (Checkpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("checkpoint_id").
			Unique().
			Immutable(),
		field.String("mission_id").
			Immutable(),
		field.Time("timestamp").
			Default(time.Now).
			Immutable(),
		field.Enum("trigger").
			Values("progress", "error", "manual", "compaction").
			Immutable(),
		field.Int("progress_percent").
			Immutable(),
		field.JSON("sorties_snapshot", []map[string]interface{}{}).
			Immutable(),
		field.JSON("active_locks_snapshot", []map[string]interface{}{}).
			Immutable(),
		field.JSON("pending_messages_snapshot", []map[string]interface{}{}).
			Immutable(),
		field.JSON("recovery_context", map[string]interface{}{}).
			Immutable(),
		field.String("created_by").
			Immutable(),
		field.Int("version").
			Default(1).
			Immutable(),
		field.Int64("last_event_sequence").
			Immutable(),
		field.Bool("is_latest").
			Default(false).
			Comment("Exactly one true row per mission_id"),
		field.Int("size_bytes").
			Default(0).
			Comment("Serialized JSON size, for the 1MB/10MB warning/reject thresholds"),
	}
}

// Edges of the Checkpoint.
func (Checkpoint) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("mission", Mission.Type).
			Ref("checkpoints").
			Field("mission_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Checkpoint.
func (Checkpoint) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("mission_id", "timestamp"),
		index.Fields("mission_id", "is_latest"),
	}
}
