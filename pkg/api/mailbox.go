package api

import (
	"context"

	"github.com/fleettools/coordinator/pkg/mailbox"
)

// AppendMailboxResult is the append operation's output.
type AppendMailboxResult struct {
	Inserted int
}

// AppendMailbox appends events to a mailbox (§6 Mailbox surface:
// "append(stream_id, events)").
func (a *API) AppendMailbox(ctx context.Context, mailboxID string, events []mailbox.MessageInput) Response[AppendMailboxResult] {
	n, err := a.mailbox.Append(ctx, mailboxID, events)
	if err != nil {
		return fail[AppendMailboxResult](err)
	}
	return ok(AppendMailboxResult{Inserted: n})
}

// ReadMailbox reads messages after a sequence number (§6 Mailbox surface:
// "read(stream_id, after?)").
func (a *API) ReadMailbox(ctx context.Context, mailboxID string, after int64, limit int) Response[[]mailbox.Message] {
	rows, err := a.mailbox.Read(ctx, mailboxID, after, limit)
	if err != nil {
		return fail[[]mailbox.Message](err)
	}
	return ok(rows)
}

// MarkMailboxRead marks a message read (§6 Mailbox surface: "mark_read").
func (a *API) MarkMailboxRead(ctx context.Context, messageID, readerID string) Response[struct{}] {
	if err := a.mailbox.MarkRead(ctx, messageID, readerID); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// AckMailbox acknowledges a message, optionally with a response payload (§6
// Mailbox surface: "ack").
func (a *API) AckMailbox(ctx context.Context, messageID, ackerID string, response map[string]interface{}) Response[struct{}] {
	if err := a.mailbox.Ack(ctx, messageID, ackerID, response); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// CreateThreadResult is the create_thread operation's output.
type CreateThreadResult struct {
	ThreadID string
}

// CreateThread mints a thread id for grouping related messages (§6 Mailbox
// surface: "create_thread").
func (a *API) CreateThread(ctx context.Context) Response[CreateThreadResult] {
	return ok(CreateThreadResult{ThreadID: a.mailbox.CreateThread()})
}

// AdvanceCursor moves a consumer's cursor forward (§6 Cursor surface:
// "advance").
func (a *API) AdvanceCursor(ctx context.Context, streamType, streamID, consumerID string, position int64) Response[struct{}] {
	if err := a.mailbox.AdvanceCursor(ctx, streamType, streamID, consumerID, position); err != nil {
		return fail[struct{}](err)
	}
	return ok(struct{}{})
}

// GetCursorResult is the get operation's output.
type GetCursorResult struct {
	Position int64
}

// GetCursor reads a consumer's cursor position (§6 Cursor surface: "get").
func (a *API) GetCursor(ctx context.Context, streamType, streamID, consumerID string) Response[GetCursorResult] {
	pos, err := a.mailbox.GetCursor(ctx, streamType, streamID, consumerID)
	if err != nil {
		return fail[GetCursorResult](err)
	}
	return ok(GetCursorResult{Position: pos})
}
