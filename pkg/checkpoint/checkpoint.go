// Package checkpoint implements Checkpoint & Recovery (C7): dual-storage
// snapshots of mission state (a DB row plus an on-disk JSON file) and the
// recovery algorithm that restores sorties, locks and messages from one.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleettools/coordinator/ent"
	"github.com/fleettools/coordinator/ent/lock"
	"github.com/fleettools/coordinator/ent/message"
	"github.com/fleettools/coordinator/ent/sortie"
	"github.com/fleettools/coordinator/pkg/config"
	"github.com/fleettools/coordinator/pkg/coreerrors"
	"github.com/fleettools/coordinator/pkg/eventstore"
	"github.com/fleettools/coordinator/pkg/lifecycle"
	"github.com/fleettools/coordinator/pkg/locks"
	"github.com/fleettools/coordinator/pkg/mailbox"
)

// Writer is the Checkpoint & Recovery component (C7).
type Writer struct {
	store     *eventstore.Store
	client    *ent.Client
	lifecycle *lifecycle.Service
	locks     *locks.Manager
	mailbox   *mailbox.Service
	cfg       config.Config
}

// New builds a Writer.
func New(store *eventstore.Store, client *ent.Client, lc *lifecycle.Service, lm *locks.Manager, mb *mailbox.Service, cfg config.Config) *Writer {
	return &Writer{store: store, client: client, lifecycle: lc, locks: lm, mailbox: mb, cfg: cfg}
}

// Summary is the read-side view of a checkpoint row.
type Summary struct {
	ID              string
	MissionID       string
	Timestamp       time.Time
	Trigger         string
	ProgressPercent int
	CreatedBy       string
	Version         int
	LastEventSeq    int64
	IsLatest        bool
	SizeBytes       int
}

// Create assembles a checkpoint for missionID and appends checkpoint_created
// (§4.7 Assembly). trigger is one of progress|error|manual|compaction.
func (w *Writer) Create(ctx context.Context, missionID, trigger, createdBy string) (Summary, error) {
	mission, err := w.lifecycle.GetMission(ctx, missionID)
	if err != nil {
		return Summary{}, err
	}

	sortiesSnapshot, filesModified, blockers, err := w.assembleSorties(ctx, missionID)
	if err != nil {
		return Summary{}, err
	}
	locksSnapshot, err := w.assembleLocks(ctx)
	if err != nil {
		return Summary{}, err
	}
	messagesSnapshot, err := w.assembleMessages(ctx)
	if err != nil {
		return Summary{}, err
	}

	readySet, blockedSet := w.nextSteps(sortiesSnapshot)
	latestSeq, err := w.missionLatestSequence(ctx, missionID)
	if err != nil {
		return Summary{}, err
	}
	recoveryContext := map[string]interface{}{
		"last_action":         lastActionFor(trigger, mission.Title),
		"next_steps":          readySet,
		"blocked":             blockedSet,
		"blockers":            blockers,
		"files_modified":      filesModified,
		"mission_summary":     mission.Title,
		"elapsed_time_ms":     elapsedMs(mission.StartedAt),
		"last_activity_at":    time.Now().UTC().Format(time.RFC3339Nano),
		"last_event_sequence": latestSeq,
	}

	payload := map[string]interface{}{
		"mission_id":                missionID,
		"trigger":                   trigger,
		"progress_percent":          progressPercent(mission),
		"sorties_snapshot":          sortiesSnapshot,
		"active_locks_snapshot":     locksSnapshot,
		"pending_messages_snapshot": messagesSnapshot,
		"recovery_context":          recoveryContext,
		"created_by":                createdBy,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return Summary{}, coreerrors.Wrap(coreerrors.KindInternal, err, "failed to serialize checkpoint payload")
	}
	size := len(encoded)
	if int64(size) > w.cfg.MaxCheckpointBytes {
		return Summary{}, coreerrors.New(coreerrors.KindValidation,
			fmt.Sprintf("checkpoint payload (%d bytes) exceeds MAX_CHECKPOINT_BYTES (%d)", size, w.cfg.MaxCheckpointBytes))
	}
	payload["size_bytes"] = size

	id := "chk-" + uuid.NewString()
	if _, err := w.store.Append(ctx, eventstore.Envelope{
		EventType:     eventstore.EventCheckpointCreated,
		StreamType:    eventstore.StreamCheckpoint,
		StreamID:      id,
		CorrelationID: missionID,
		Data:          payload,
		OccurredAt:    time.Now().UTC(),
	}); err != nil {
		return Summary{}, err
	}

	if err := w.writeFile(missionID, id, payload); err != nil {
		return Summary{}, err
	}

	return Summary{
		ID: id, MissionID: missionID, Timestamp: time.Now().UTC(), Trigger: trigger,
		ProgressPercent: progressPercent(mission), CreatedBy: createdBy, Version: 1,
		LastEventSeq: latestSeq, IsLatest: true, SizeBytes: size,
	}, nil
}

// missionLatestSequence finds the highest sequence number among events
// correlated to missionID, falling back to the log-wide latest if the
// mission has not yet caused any correlated chain (§4.7 recovery_context's
// last_event_sequence: "high-water mark of what this checkpoint has seen").
func (w *Writer) missionLatestSequence(ctx context.Context, missionID string) (int64, error) {
	events, err := w.store.GetByCorrelation(ctx, missionID)
	if err != nil {
		return 0, err
	}
	if len(events) > 0 {
		return events[len(events)-1].SequenceNumber, nil
	}
	return w.store.LatestSequence(ctx)
}

func progressPercent(m lifecycle.Mission) int {
	if m.TotalSorties == 0 {
		return 0
	}
	return int(float64(m.CompletedSorties) / float64(m.TotalSorties) * 100)
}

func elapsedMs(startedAt *time.Time) int64 {
	if startedAt == nil {
		return 0
	}
	return time.Since(*startedAt).Milliseconds()
}

func lastActionFor(trigger, missionTitle string) string {
	switch trigger {
	case "progress":
		return fmt.Sprintf("progress checkpoint for %q", missionTitle)
	case "error":
		return fmt.Sprintf("error checkpoint for %q", missionTitle)
	case "compaction":
		return fmt.Sprintf("pre-compaction checkpoint for %q", missionTitle)
	default:
		return fmt.Sprintf("manual checkpoint for %q", missionTitle)
	}
}

// assembleSorties snapshots every non-terminal sortie of a mission, and
// derives the files_modified union and current blocker reasons alongside it.
func (w *Writer) assembleSorties(ctx context.Context, missionID string) (sorties []map[string]interface{}, filesModified []string, blockers []string, err error) {
	rows, qErr := w.client.Sortie.Query().
		Where(
			sortie.MissionIDEQ(missionID),
			sortie.StatusNotIn(sortie.StatusCompleted, sortie.StatusCancelled, sortie.StatusFailed),
		).All(ctx)
	if qErr != nil {
		return nil, nil, nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, qErr, "failed to load sorties for checkpoint")
	}

	filesSeen := make(map[string]bool)
	for _, r := range rows {
		entry := map[string]interface{}{
			"id":       r.ID,
			"status":   string(r.Status),
			"progress": r.Progress,
			"files":    r.Files,
		}
		if r.AssignedTo != nil {
			entry["assigned_to"] = *r.AssignedTo
		}
		if r.BlockedReason != nil {
			entry["notes"] = *r.BlockedReason
			blockers = append(blockers, *r.BlockedReason)
		}
		sorties = append(sorties, entry)
		for _, f := range r.Files {
			if !filesSeen[f] {
				filesSeen[f] = true
				filesModified = append(filesModified, f)
			}
		}
	}
	return sorties, filesModified, blockers, nil
}

// assembleLocks snapshots every active lock (§4.7 "all status=active locks").
func (w *Writer) assembleLocks(ctx context.Context) ([]map[string]interface{}, error) {
	rows, err := w.client.Lock.Query().Where(lock.StatusEQ(lock.StatusActive)).All(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to load locks for checkpoint")
	}
	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		entry := map[string]interface{}{
			"id":              r.ID,
			"file":            r.File,
			"normalized_path": r.NormalizedPath,
			"reserved_by":     r.ReservedBy,
			"expires_at":      r.ExpiresAt.Format(time.RFC3339Nano),
			"purpose":         string(r.Purpose),
		}
		out = append(out, entry)
	}
	return out, nil
}

// assembleMessages snapshots every undelivered message (§4.7 "all
// undelivered (pending) messages").
func (w *Writer) assembleMessages(ctx context.Context) ([]map[string]interface{}, error) {
	rows, err := w.client.Message.Query().Where(message.StatusEQ(message.StatusPending)).All(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to load messages for checkpoint")
	}
	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		entry := map[string]interface{}{
			"id":              r.ID,
			"mailbox_id":      r.MailboxID,
			"type":            r.Type,
			"content":         r.Content,
			"sequence_number": r.SequenceNumber,
		}
		if r.ThreadID != nil {
			entry["thread_id"] = *r.ThreadID
		}
		out = append(out, entry)
	}
	return out, nil
}

// nextSteps derives next_steps (every pending sortie in the snapshot; their
// dependencies are not checked) and the blocked set (every blocked sortie in
// the snapshot), for the recovery_context (§4.7).
func (w *Writer) nextSteps(sorties []map[string]interface{}) ([]string, []string) {
	ready := make([]string, 0)
	blocked := make([]string, 0)
	for _, s := range sorties {
		status, _ := s["status"].(string)
		id, _ := s["id"].(string)
		switch status {
		case "pending":
			ready = append(ready, id)
		case "blocked":
			blocked = append(blocked, id)
		}
	}
	return ready, blocked
}
