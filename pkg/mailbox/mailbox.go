// Package mailbox implements the Mailbox & Cursor Service (C4): ordered
// per-stream message delivery with consumer cursors.
package mailbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/cursor"
	"github.com/fleettools/coordinator/ent/message"
	"github.com/fleettools/coordinator/pkg/coreerrors"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

// Service is the Mailbox/Cursor Service (C4).
type Service struct {
	store  *eventstore.Store
	client *ent.Client
}

// New builds a Service.
func New(store *eventstore.Store, client *ent.Client) *Service {
	return &Service{store: store, client: client}
}

// Message is the read-side view of a mailbox entry.
type Message struct {
	ID             string
	MailboxID      string
	SenderID       string
	ThreadID       string
	Type           string
	Content        map[string]interface{}
	Priority       int
	Status         string
	SequenceNumber int64
	CreatedAt      time.Time
}

// MessageInput is one event to append to a mailbox.
type MessageInput struct {
	SenderID string
	ThreadID string
	Type     string
	Content  map[string]interface{}
	Priority int
}

// Append inserts events[] into mailboxID, each becoming a squawk_sent event
// and a projection row. Returns the number inserted.
func (s *Service) Append(ctx context.Context, mailboxID string, events []MessageInput) (int, error) {
	if mailboxID == "" {
		return 0, coreerrors.NewValidationError("mailbox_id", "required")
	}
	inserted := 0
	for _, in := range events {
		if in.Type == "" {
			return inserted, coreerrors.NewValidationError("type", "required")
		}
		id := "msg-" + uuid.NewString()
		data := map[string]interface{}{
			"mailbox_id": mailboxID,
			"type":       in.Type,
			"content":    in.Content,
			"priority":   in.Priority,
		}
		if in.SenderID != "" {
			data["sender_id"] = in.SenderID
		}
		if in.ThreadID != "" {
			data["thread_id"] = in.ThreadID
		}
		if _, err := s.store.Append(ctx, eventstore.Envelope{
			EventType:  eventstore.EventSquawkSent,
			StreamType: eventstore.StreamMailbox,
			StreamID:   id,
			Data:       data,
			OccurredAt: time.Now().UTC(),
		}); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

// CreateThread mints a fresh thread id for grouping related messages. The
// thread itself has no projection row — it is purely a correlating field on
// Message, so this is a pure function, not an append.
func (s *Service) CreateThread() string {
	return "thread-" + uuid.NewString()
}

// Read returns messages for a mailbox after a given sequence number, in
// append order (§4.4 Ordering guarantee). Reads never mutate the log.
func (s *Service) Read(ctx context.Context, mailboxID string, afterSequence int64, limit int) ([]Message, error) {
	q := s.client.Message.Query().
		Where(message.MailboxIDEQ(mailboxID), message.SequenceNumberGT(afterSequence)).
		Order(ent.Asc(message.FieldSequenceNumber))
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read mailbox")
	}
	out := make([]Message, len(rows))
	for i, r := range rows {
		out[i] = toMessage(r)
	}
	return out, nil
}

// MarkRead appends squawk_read for messageID.
func (s *Service) MarkRead(ctx context.Context, messageID, readerID string) error {
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSquawkRead,
		StreamType: eventstore.StreamMailbox,
		StreamID:   messageID,
		Data:       map[string]interface{}{"reader_id": readerID},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// Ack appends squawk_acked for messageID with an optional response payload.
func (s *Service) Ack(ctx context.Context, messageID, ackerID string, response map[string]interface{}) error {
	data := map[string]interface{}{"acker_id": ackerID}
	if response != nil {
		data["response"] = response
	}
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventSquawkAcked,
		StreamType: eventstore.StreamMailbox,
		StreamID:   messageID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// AdvanceCursor moves a consumer's position forward; rejected as
// NonMonotonicCursor if position would decrease (§4.4, invariant 7).
func (s *Service) AdvanceCursor(ctx context.Context, streamType, streamID, consumerID string, position int64) error {
	id := cursorID(streamType, streamID, consumerID)
	_, err := s.store.Append(ctx, eventstore.Envelope{
		EventType:  eventstore.EventCursorAdvanced,
		StreamType: eventstore.StreamCursor,
		StreamID:   id,
		Data: map[string]interface{}{
			"stream_type": streamType,
			"stream_id":   streamID,
			"consumer_id": consumerID,
			"position":    position,
		},
		OccurredAt: time.Now().UTC(),
	})
	return err
}

// GetCursor returns the current cursor position, or 0 if none has been recorded.
func (s *Service) GetCursor(ctx context.Context, streamType, streamID, consumerID string) (int64, error) {
	row, err := s.client.Cursor.Query().Where(
		cursor.StreamTypeEQ(streamType),
		cursor.StreamIDEQ(streamID),
		cursor.ConsumerIDEQ(consumerID),
	).Only(ctx)
	if ent.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to read cursor")
	}
	return row.Position, nil
}

func cursorID(streamType, streamID, consumerID string) string {
	return streamType + ":" + streamID + ":" + consumerID
}

func toMessage(row *ent.Message) Message {
	m := Message{
		ID:             row.ID,
		MailboxID:      row.MailboxID,
		Type:           row.Type,
		Content:        row.Content,
		Priority:       row.Priority,
		Status:         string(row.Status),
		SequenceNumber: row.SequenceNumber,
		CreatedAt:      row.CreatedAt,
	}
	if row.SenderID != nil {
		m.SenderID = *row.SenderID
	}
	if row.ThreadID != nil {
		m.ThreadID = *row.ThreadID
	}
	return m
}
