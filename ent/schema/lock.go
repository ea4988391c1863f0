package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Lock holds the schema definition for the Lock entity — a time-limited
// exclusive reservation on a canonicalised file path (a "CTK reservation").
type Lock struct {
	ent.Schema
}

// Fields of the Lock.
func (Lock) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("lock_id").
			Unique().
			Immutable(),
		field.String("file").
			Immutable().
			Comment("Raw path as supplied by the caller"),
		field.String("normalized_path").
			Immutable().
			Comment("Absolute, canonical path"),
		field.String("reserved_by").
			Immutable().
			Comment("Specialist id"),
		field.Time("reserved_at").
			Default(time.Now).
			Immutable(),
		field.Time("expires_at"),
		field.Time("released_at").
			Optional().
			Nillable(),
		field.Enum("purpose").
			Values("edit", "read", "delete").
			Default("edit").
			Immutable(),
		field.String("checksum").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("active", "released", "expired", "force_released").
			Default("active"),
		field.String("recovered_from_lock_id").
			Optional().
			Nillable().
			Comment("Original lock id, set when minted fresh during recovery"),
	}
}

// Indexes of the Lock.
func (Lock) Indexes() []ent.Index {
	return []ent.Index{
		// At most one active row per normalized_path (I-5).
		index.Fields("normalized_path").
			Unique().
			Annotations(entsql.IndexWhere("status = 'active'")),
		index.Fields("reserved_by"),
		index.Fields("status", "expires_at"),
	}
}
