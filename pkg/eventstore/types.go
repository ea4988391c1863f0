// Package eventstore implements the append-only event log (C1): the single
// source of truth every projection in pkg/projections is derived from.
package eventstore

import "time"

// Stream types, one per projection family (§3 Ownership).
const (
	StreamMission    = "mission"
	StreamSortie     = "sortie"
	StreamSpecialist = "specialist"
	StreamLock       = "lock"
	StreamMailbox    = "mailbox"
	StreamCursor     = "cursor"
	StreamCheckpoint = "checkpoint"
)

// Event types form the closed tagged union described in §9 ("dynamic payload
// types ... model as a closed tagged union"). Types not in this list are
// still accepted by Append (so a historical log from a newer schema_version
// replays without error) but the Projection Engine folds them as no-ops.
const (
	EventMissionCreated   = "mission_created"
	EventMissionStarted   = "mission_started"
	EventMissionCompleted = "mission_completed"
	EventMissionCancelled = "mission_cancelled"

	EventSortieCreated   = "sortie_created"
	EventSortieAssigned  = "sortie_assigned"
	EventSortieStarted   = "sortie_started"
	EventSortieProgress  = "sortie_progress"
	EventSortieBlocked   = "sortie_blocked"
	EventSortieUnblocked = "sortie_unblocked"
	EventSortieCompleted = "sortie_completed"
	EventSortieFailed    = "sortie_failed"
	EventSortieCancelled = "sortie_cancelled"
	EventSortieReviewed  = "sortie_review_opened"
	EventSortieApproved  = "sortie_review_approved"
	EventSortieRejected  = "sortie_review_rejected"
	EventSortieRestored  = "sortie_restored"

	EventSpecialistSpawned     = "specialist_spawned"
	EventSpecialistRegistered  = "specialist_registered"
	EventSpecialistHeartbeat   = "specialist_heartbeat"
	EventSpecialistStale       = "specialist_marked_stale"
	EventSpecialistDeregistered = "specialist_deregistered"

	EventCTKReserved      = "ctk_reserved"
	EventCTKConflict      = "ctk_conflict"
	EventCTKReleased      = "ctk_released"
	EventCTKExpired       = "ctk_expired"
	EventCTKForceReleased = "ctk_force_released"
	EventCTKExtended      = "ctk_extended"

	EventSquawkSent = "squawk_sent"
	EventSquawkRead = "squawk_read"
	EventSquawkAcked = "squawk_acked"

	EventCursorAdvanced = "cursor_advanced"

	EventFleetCheckpointed = "fleet_checkpointed"
	EventCheckpointCreated = "checkpoint_created"
	EventFleetRecovered    = "fleet_recovered"
	EventContextCompacted  = "context_compacted"

	EventStreamCompacted = "stream_compacted"
)

// Envelope is the caller-supplied shape passed to Append. The store fills in
// SequenceNumber, RecordedAt and CorrelationID (when absent).
type Envelope struct {
	EventID       string
	EventType     string
	StreamType    string
	StreamID      string
	Data          map[string]interface{}
	CausationID   *string
	CorrelationID string
	Metadata      map[string]interface{}
	OccurredAt    time.Time
	SchemaVersion int
}

// Event is a fully persisted, immutable log entry.
type Event struct {
	ID             string
	SequenceNumber int64
	EventType      string
	StreamType     string
	StreamID       string
	Data           map[string]interface{}
	CausationID    *string
	CorrelationID  string
	Metadata       map[string]interface{}
	OccurredAt     time.Time
	RecordedAt     time.Time
	SchemaVersion  int
}
