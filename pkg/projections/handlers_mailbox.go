package projections

import (
	"context"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/cursor"
	"github.com/fleettools/coordinator/ent/message"
	"github.com/fleettools/coordinator/pkg/coreerrors"
	"github.com/fleettools/coordinator/pkg/eventstore"
)

func (e *Engine) registerMailboxHandlers() {
	e.handlers[eventstore.EventSquawkSent] = applySquawkSent
	e.handlers[eventstore.EventSquawkRead] = applySquawkRead
	e.handlers[eventstore.EventSquawkAcked] = applySquawkAcked
	e.handlers[eventstore.EventCursorAdvanced] = applyCursorAdvanced
}

func applySquawkSent(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	msgType, _ := ev.Data["type"].(string)
	content, _ := ev.Data["content"].(map[string]interface{})
	mailboxID, _ := ev.Data["mailbox_id"].(string)
	create := tx.Message.Create().
		SetID(ev.StreamID).
		SetMailboxID(mailboxID).
		SetType(msgType).
		SetContent(content).
		SetStatus(message.StatusPending).
		SetSequenceNumber(ev.SequenceNumber)
	if sender, ok := ev.Data["sender_id"].(string); ok && sender != "" {
		create = create.SetSenderID(sender)
	}
	if thread, ok := ev.Data["thread_id"].(string); ok && thread != "" {
		create = create.SetThreadID(thread)
	}
	if _, ok := ev.Data["priority"]; ok {
		create = create.SetPriority(dataInt(ev.Data, "priority"))
	}
	_, err := create.Save(ctx)
	return err
}

func applySquawkRead(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Message.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	reader, _ := ev.Data["reader_id"].(string)
	update := row.Update().SetReadAt(ev.OccurredAt).SetReadBy(reader)
	if row.Status == message.StatusPending {
		update = update.SetStatus(message.StatusRead)
	}
	_, err = update.Save(ctx)
	return err
}

func applySquawkAcked(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	row, err := tx.Message.Get(ctx, ev.StreamID)
	if err != nil {
		return err
	}
	acker, _ := ev.Data["acker_id"].(string)
	update := row.Update().
		SetStatus(message.StatusAcked).
		SetAckedAt(ev.OccurredAt).
		SetAckedBy(acker)
	if resp, ok := ev.Data["response"].(map[string]interface{}); ok {
		update = update.SetAckResponse(resp)
	}
	_, err = update.Save(ctx)
	return err
}

// applyCursorAdvanced upserts the consumer cursor row, rejecting any attempt
// to move the position backwards (I-7 cursor monotonicity, §4.4
// NonMonotonicCursor).
func applyCursorAdvanced(ctx context.Context, tx *ent.Tx, ev eventstore.Event) error {
	streamType, _ := ev.Data["stream_type"].(string)
	streamID, _ := ev.Data["stream_id"].(string)
	consumerID, _ := ev.Data["consumer_id"].(string)
	position := int64(dataInt(ev.Data, "position"))

	row, err := tx.Cursor.Query().Where(
		cursor.StreamTypeEQ(streamType),
		cursor.StreamIDEQ(streamID),
		cursor.ConsumerIDEQ(consumerID),
	).Only(ctx)
	if ent.IsNotFound(err) {
		_, err = tx.Cursor.Create().
			SetID(ev.StreamID).
			SetStreamType(streamType).
			SetStreamID(streamID).
			SetConsumerID(consumerID).
			SetPosition(position).
			Save(ctx)
		return err
	}
	if err != nil {
		return err
	}
	if position < row.Position {
		return coreerrors.Wrap(coreerrors.KindPrecondition, coreerrors.ErrNonMonotonicCursor,
			"cursor position must be non-decreasing")
	}
	_, err = row.Update().SetPosition(position).Save(ctx)
	return err
}
