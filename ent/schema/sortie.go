package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Sortie holds the schema definition for the Sortie entity — a leaf unit of
// work executed by a single Specialist. A projection row, folded from the
// sortie's own event stream by the Projection Engine.
type Sortie struct {
	ent.Schema
}

// Fields of the Sortie.
func (Sortie) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("sortie_id").
			Unique().
			Immutable(),
		field.String("mission_id").
			Optional().
			Nillable().
			Immutable(),
		field.String("title"),
		field.Enum("status").
			Values("pending", "assigned", "in_progress", "blocked", "review",
				"completed", "cancelled", "failed").
			Default("pending"),
		field.String("assigned_to").
			Optional().
			Nillable().
			Comment("Specialist id"),
		field.Int("priority").
			Default(0),
		field.Int("progress").
			Default(0).
			Comment("0-100, monotonic within an in_progress episode"),
		field.JSON("files", []string{}).
			Optional(),
		field.JSON("dependencies", []string{}).
			Optional().
			Comment("Sortie ids; must form a DAG within the mission"),
		field.String("blocked_category").
			Optional().
			Nillable().
			Comment("dependency | file_conflict | error | clarification"),
		field.Text("blocked_reason").
			Optional().
			Nillable(),
		field.JSON("result", map[string]interface{}{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("assigned_at").
			Optional().
			Nillable(),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.Int64("last_event_sequence").
			Default(0),
	}
}

// Edges of the Sortie.
func (Sortie) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("mission", Mission.Type).
			Ref("sorties").
			Field("mission_id").
			Unique(),
	}
}

// Indexes of the Sortie.
func (Sortie) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("mission_id", "status"),
		index.Fields("assigned_to"),
		index.Fields("status"),
	}
}
