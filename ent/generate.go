// Package ent holds the generated entgo.io/ent client for the coordination
// engine's event store and projections. The client itself is produced by
// `go generate ./ent` from the schema definitions in ent/schema and is not
// checked in (see .gitignore); only the schema and this directive live in
// version control.
package ent

//go:generate go run -mod=mod entgo.io/ent/cmd/ent generate ./schema
