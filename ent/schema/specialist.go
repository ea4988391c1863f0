package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Specialist holds the schema definition for the Specialist entity — a
// worker agent assigned to exactly one Sortie at a time.
type Specialist struct {
	ent.Schema
}

// Fields of the Specialist.
func (Specialist) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("specialist_id").
			Unique().
			Immutable(),
		field.String("name"),
		field.JSON("capabilities", []string{}).
			Optional(),
		field.Enum("status").
			Values("spawned", "registered", "working", "blocked",
				"completing", "completed", "failed", "stale").
			Default("spawned"),
		field.String("current_sortie").
			Optional().
			Nillable(),
		field.Time("last_seen").
			Default(time.Now),
		field.JSON("metadata", map[string]interface{}{}).
			Optional(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Int64("last_event_sequence").
			Default(0),
	}
}

// Indexes of the Specialist.
func (Specialist) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("current_sortie"),
		index.Fields("status", "last_seen"),
	}
}
