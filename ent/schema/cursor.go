package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Cursor holds the schema definition for the Cursor entity — a consumer's
// last-read position within a (stream_type, stream_id) stream.
type Cursor struct {
	ent.Schema
}

// Fields of the Cursor.
func (Cursor) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			Comment("stream_type:stream_id:consumer_id"),
		field.String("stream_type").
			Immutable(),
		field.String("stream_id").
			Immutable(),
		field.String("consumer_id").
			Immutable(),
		field.Int64("position").
			Default(0).
			Comment("Last-consumed sequence number; non-decreasing"),
	}
}

// Indexes of the Cursor.
func (Cursor) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("stream_type", "stream_id", "consumer_id").
			Unique(),
	}
}
