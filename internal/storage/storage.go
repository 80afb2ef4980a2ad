// Package storage defines the persistence interfaces for the sync
// engine. The event log is the single source of truth; snapshots and
// cursors are derived and rebuildable.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/projection"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// EventStore persists the append-only, per-order-sequenced event log.
type EventStore interface {
	// AppendEvents atomically assigns contiguous sequence numbers to the
	// events, persists them, and upserts the order snapshot in the same
	// transaction. All events must belong to orderID. It returns the stored
	// events with sequences set.
	AppendEvents(ctx context.Context, orderID string, events []event.Event, snap projection.Snapshot) ([]event.Event, error)
	// GetEventByIdempotencyKey returns a previously accepted event, or
	// ErrNotFound. Used to recognize retried submissions.
	GetEventByIdempotencyKey(ctx context.Context, key string) (event.Event, error)
	// ListEvents returns events for an order with seq > afterSeq, ascending,
	// at most limit.
	ListEvents(ctx context.Context, orderID string, afterSeq uint64, limit int) ([]event.Event, error)
	// GetLatestSeq returns the highest assigned sequence for an order, zero
	// if the order has no events.
	GetLatestSeq(ctx context.Context, orderID string) (uint64, error)
}

// SnapshotStore persists order read models.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, orderID string) (projection.Snapshot, error)
	SaveSnapshot(ctx context.Context, snap projection.Snapshot) error
	// ListSnapshotsByLocation returns snapshots for a location ordered by
	// most recently updated first.
	ListSnapshotsByLocation(ctx context.Context, locationID string, limit int) ([]projection.Snapshot, error)
}

// OutboxStatus is the transport status of a locally authored event.
type OutboxStatus string

const (
	// OutboxPending is queued locally, not yet transmitted.
	OutboxPending OutboxStatus = "PENDING"
	// OutboxUploaded is transmitted but not yet acknowledged.
	OutboxUploaded OutboxStatus = "UPLOADED"
	// OutboxAcknowledged is durably sequenced by the authority.
	OutboxAcknowledged OutboxStatus = "ACKNOWLEDGED"
	// OutboxExpired failed guard or validation at the authority;
	// terminal, never retried.
	OutboxExpired OutboxStatus = "EXPIRED"
)

// OutboxEntry wraps one locally authored event with transport state.
type OutboxEntry struct {
	Event        event.Event
	Status       OutboxStatus
	AttemptCount int
	LastError    string
	EnqueuedAt   time.Time
	UpdatedAt    time.Time
}

// OutboxStore is the device-side durable queue of unconfirmed events.
type OutboxStore interface {
	EnqueueOutbox(ctx context.Context, entry OutboxEntry) error
	// ListPendingOutbox returns PENDING entries in enqueue order, at most limit.
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxEntry, error)
	// ListUnconfirmedOutbox returns one order's PENDING and UPLOADED entries
	// in enqueue order. These are the locally authored events the authority
	// has not acknowledged yet.
	ListUnconfirmedOutbox(ctx context.Context, orderID string) ([]OutboxEntry, error)
	// MarkOutboxUploaded records a transmission attempt for the given event ids.
	MarkOutboxUploaded(ctx context.Context, eventIDs []string) error
	// MarkOutboxAcknowledged records the assigned server sequence.
	MarkOutboxAcknowledged(ctx context.Context, eventID string, seq uint64) error
	// MarkOutboxExpired terminally rejects an entry with a reason.
	MarkOutboxExpired(ctx context.Context, eventID, reason string) error
	// RequeueOutbox returns UPLOADED entries to PENDING after a failed batch.
	RequeueOutbox(ctx context.Context, eventIDs []string, lastError string) error
	// DeletePendingByKind removes unsent entries superseded by a newer local
	// event of the same kind for the same order. Only coalescible kinds are
	// ever passed here.
	DeletePendingByKind(ctx context.Context, orderID string, kind event.Kind) (int, error)
	// PruneAcknowledgedOutbox deletes ACKNOWLEDGED entries updated before cutoff.
	PruneAcknowledgedOutbox(ctx context.Context, cutoff time.Time) (int, error)
}

// CursorStore persists per-device sync watermarks.
type CursorStore interface {
	// GetCursor returns the highest applied sequence for an order, zero if
	// the device has never synced it.
	GetCursor(ctx context.Context, orderID string) (uint64, error)
	SaveCursor(ctx context.Context, orderID string, seq uint64) error
	// ListCursors returns every tracked order and its watermark.
	ListCursors(ctx context.Context) (map[string]uint64, error)
}
