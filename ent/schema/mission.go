package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Mission holds the schema definition for the Mission entity — a parent goal
// decomposed into a DAG of Sorties. Rows are a projection: they are derived
// entirely from events in the mission's stream and never mutated directly.
type Mission struct {
	ent.Schema
}

// Fields of the Mission.
func (Mission) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("mission_id").
			Unique().
			Immutable(),
		field.String("title"),
		field.Text("description").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("pending", "in_progress", "review", "completed", "cancelled").
			Default("pending"),
		field.Int("priority").
			Default(0),
		field.Int("total_sorties").
			Default(0).
			Comment("Derived invariant, updated by the Projection Engine"),
		field.Int("completed_sorties").
			Default(0).
			Comment("Derived invariant, updated by the Projection Engine"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.Int64("last_event_sequence").
			Default(0).
			Comment("Sequence of the last event folded into this row"),
	}
}

// Edges of the Mission.
func (Mission) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("sorties", Sortie.Type),
		edge.To("checkpoints", Checkpoint.Type),
	}
}

// Indexes of the Mission.
func (Mission) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("status", "priority"),
	}
}
