// Package projections implements the Projection Engine (C2): deterministic
// per-event-type handlers that fold the event log into query-friendly rows
// (missions, sorties, specialists, locks, messages, cursors, checkpoints).
package projections

import (
	"context"
	"fmt"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

// Handler is a deterministic function of (current projection row(s), event).
// Handlers run inside the same transaction the triggering event was appended
// in (§4.2 Atomicity); returning an error rolls back the whole append.
type Handler func(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error

// Engine is the registry of per-event-type handlers and implements
// eventstore.Projector.
type Engine struct {
	client   *ent.Client
	handlers map[string]Handler
}

// New builds an Engine with every FleetTools handler registered.
func New(client *ent.Client) *Engine {
	e := &Engine{client: client, handlers: make(map[string]Handler)}
	e.registerMissionHandlers()
	e.registerSortieHandlers()
	e.registerSpecialistHandlers()
	e.registerLockHandlers()
	e.registerMailboxHandlers()
	e.registerCheckpointHandlers()
	return e
}

// Register adds or overrides the handler for an event type. Exposed so tests
// and pkg/compaction can extend the registry without modifying this package.
func (e *Engine) Register(eventType string, h Handler) {
	e.handlers[eventType] = h
}

// Apply folds one event into its projection rows. Unknown event types are a
// deliberate no-op (§4.2 "unknown types are recorded but produce no
// projection effect") — the event itself is already durable in the log.
func (e *Engine) Apply(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	h, ok := e.handlers[ev.EventType]
	if !ok {
		return nil
	}
	if err := h(ctx, tx, ev); err != nil {
		return fmt.Errorf("projection handler for %s rejected event %s: %w", ev.EventType, ev.ID, err)
	}
	return nil
}

// Client exposes the underlying ent client for read-only projection queries
// by other components (pkg/locks, pkg/mailbox, pkg/lifecycle, pkg/scheduler).
// Those packages query projections but never mutate them directly (§3
// Ownership) — all mutation flows through Apply via eventstore.Store.Append.
func (e *Engine) Client() *ent.Client { return e.client }
