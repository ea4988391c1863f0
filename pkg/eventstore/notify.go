package eventstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// fleettoolsEventsChannel is the single Postgres channel the Notifier LISTENs
// on. Unlike the teacher's per-session channels (one per alert_session,
// fanned out to WebSocket subscribers), FleetTools uses one channel plus
// in-process routing by stream_type (§2 Non-goals: no real-time push to
// external subscribers). Nothing in this module issues NOTIFY on it.
const fleettoolsEventsChannel = "fleettools_events"

// Notifier dispatches appended events to in-process handlers registered with
// OnStream — never to external subscribers. It is adapted from the teacher's
// pkg/events.NotifyListener: same dedicated LISTEN connection and
// reconnect-with-backoff loop, but notifications received on that connection
// are drained, not dispatched. No component in this module registers an
// OnStream handler; the scheduler does not wait on the Notifier.
type Notifier struct {
	connString string
	conn       *pgx.Conn // dedicated LISTEN connection
	connMu     sync.Mutex

	running atomic.Bool

	handlers   map[string][]func(Event)
	handlersMu sync.RWMutex

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewNotifier builds a Notifier against the given Postgres connection string.
func NewNotifier(connString string) *Notifier {
	return &Notifier{
		connString: connString,
		handlers:   make(map[string][]func(Event)),
	}
}

// Start establishes the dedicated LISTEN connection and begins receiving.
func (n *Notifier) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, n.connString)
	if err != nil {
		return fmt.Errorf("notifier: failed to connect: %w", err)
	}
	n.connMu.Lock()
	n.conn = conn
	n.connMu.Unlock()

	sanitized := pgx.Identifier{fleettoolsEventsChannel}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+sanitized); err != nil {
		return fmt.Errorf("notifier: LISTEN failed: %w", err)
	}

	n.running.Store(true)
	loopCtx, cancel := context.WithCancel(ctx)
	n.cancelLoop = cancel
	n.loopDone = make(chan struct{})
	go func() {
		defer close(n.loopDone)
		n.receiveLoop(loopCtx)
	}()

	slog.Info("eventstore notifier started")
	return nil
}

// OnStream registers a handler invoked (in-process) whenever an event on the
// given stream_type is appended through a Store built with this Notifier.
func (n *Notifier) OnStream(streamType string, fn func(Event)) {
	n.handlersMu.Lock()
	defer n.handlersMu.Unlock()
	n.handlers[streamType] = append(n.handlers[streamType], fn)
}

// Notify publishes ev to any in-process handlers registered for its stream
// type. Store calls this after a successful commit; it does not talk to
// Postgres NOTIFY, and the receiveLoop below does not dispatch what it
// receives, so handlers see only events appended in this process.
func (n *Notifier) Notify(ev Event) {
	n.dispatch(ev)
}

func (n *Notifier) dispatch(ev Event) {
	n.handlersMu.RLock()
	fns := append([]func(Event){}, n.handlers[ev.StreamType]...)
	n.handlersMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (n *Notifier) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n.connMu.Lock()
		conn := n.conn
		n.connMu.Unlock()
		if conn == nil {
			n.reconnect(ctx)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		_, err := conn.WaitForNotification(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				continue
			}
			slog.Error("notifier receive error", "error", err)
			n.reconnect(ctx)
			continue
		}
		// The notification is discarded: handlers are reached only through
		// Notify's local dispatch.
	}
}

func (n *Notifier) reconnect(ctx context.Context) {
	n.connMu.Lock()
	defer n.connMu.Unlock()
	if n.conn != nil {
		_ = n.conn.Close(ctx)
		n.conn = nil
	}
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		conn, err := pgx.Connect(ctx, n.connString)
		if err != nil {
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		sanitized := pgx.Identifier{fleettoolsEventsChannel}.Sanitize()
		if _, err := conn.Exec(ctx, "LISTEN "+sanitized); err != nil {
			slog.Error("notifier re-LISTEN failed", "error", err)
		}
		n.conn = conn
		return
	}
}

// Stop signals the receive loop to exit and closes the LISTEN connection.
func (n *Notifier) Stop(ctx context.Context) {
	n.running.Store(false)
	if n.cancelLoop != nil {
		n.cancelLoop()
	}
	if n.loopDone != nil {
		<-n.loopDone
	}
	n.connMu.Lock()
	defer n.connMu.Unlock()
	if n.conn != nil {
		_ = n.conn.Close(ctx)
		n.conn = nil
	}
}
