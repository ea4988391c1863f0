package api

import (
	"context"

	"github.com/fleettools/coordinator/pkg/eventstore"
)

// AppendEventResult is the append operation's output.
type AppendEventResult struct {
	SequenceNumber int64
}

// AppendEvent appends a raw event directly to the log (§6 Events surface:
// "append"). Most callers go through a component's own method instead; this
// exists for advanced/administrative use where no higher-level surface fits.
func (a *API) AppendEvent(ctx context.Context, env eventstore.Envelope) Response[AppendEventResult] {
	seq, err := a.store.Append(ctx, env)
	if err != nil {
		return fail[AppendEventResult](err)
	}
	return ok(AppendEventResult{SequenceNumber: seq})
}

// GetEventByID reads one event by id (§6 Events surface: "get_by_id").
func (a *API) GetEventByID(ctx context.Context, id string) Response[eventstore.Event] {
	ev, err := a.store.GetByID(ctx, id)
	if err != nil {
		return fail[eventstore.Event](err)
	}
	return ok(ev)
}

// GetEventsByStream reads a stream's events after a sequence number (§6
// Events surface: "get_by_stream").
func (a *API) GetEventsByStream(ctx context.Context, streamType, streamID string, after int64, limit int) Response[[]eventstore.Event] {
	rows, err := a.store.GetByStream(ctx, streamType, streamID, after, limit)
	if err != nil {
		return fail[[]eventstore.Event](err)
	}
	return ok(rows)
}

// GetEventsByCorrelation reads every event sharing a correlation id (§6
// Events surface: "get_by_correlation").
func (a *API) GetEventsByCorrelation(ctx context.Context, correlationID string) Response[[]eventstore.Event] {
	rows, err := a.store.GetByCorrelation(ctx, correlationID)
	if err != nil {
		return fail[[]eventstore.Event](err)
	}
	return ok(rows)
}

// GetEventsAfter reads the log after a global sequence number (§6 Events
// surface: "get_after").
func (a *API) GetEventsAfter(ctx context.Context, after int64, limit int) Response[[]eventstore.Event] {
	rows, err := a.store.GetAfter(ctx, after, limit)
	if err != nil {
		return fail[[]eventstore.Event](err)
	}
	return ok(rows)
}
