package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/storage"
)

func outboxEntry(eventID string, kind event.Kind) storage.OutboxEntry {
	return storage.OutboxEntry{
		Event: event.Event{
			EventID:        eventID,
			OrderID:        "order-1",
			LocationID:     "loc-1",
			Kind:           kind,
			OriginDeviceID: "device-1",
			PayloadJSON:    []byte(`{}`),
		},
	}
}

func TestOutboxLifecycle(t *testing.T) {
	store := openDeviceStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, eventID := range []string{"evt-1", "evt-2", "evt-3"} {
		entry := outboxEntry(eventID, event.KindItemAdded)
		entry.EnqueuedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.EnqueueOutbox(ctx, entry); err != nil {
			t.Fatalf("enqueue %s: %v", eventID, err)
		}
	}

	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending entries, got %d", len(pending))
	}
	// Enqueue order is upload order.
	if pending[0].Event.EventID != "evt-1" || pending[2].Event.EventID != "evt-3" {
		t.Fatalf("unexpected pending order: %+v", pending)
	}

	if err := store.MarkOutboxUploaded(ctx, []string{"evt-1", "evt-2"}); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}
	pending, err = store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Event.EventID != "evt-3" {
		t.Fatalf("expected only evt-3 pending, got %+v", pending)
	}

	if err := store.MarkOutboxAcknowledged(ctx, "evt-1", 7); err != nil {
		t.Fatalf("mark acknowledged: %v", err)
	}
	if err := store.MarkOutboxExpired(ctx, "evt-2", "ORDER_CLOSED: order is closed"); err != nil {
		t.Fatalf("mark expired: %v", err)
	}

	// Neither terminal state returns to the pending queue.
	pending, err = store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected terminal entries excluded, got %+v", pending)
	}
}

func TestListPendingOutboxKeepsEnqueueOrderWithinSameMillisecond(t *testing.T) {
	store := openDeviceStore(t)
	ctx := context.Background()

	// Two rapid local edits share an enqueue timestamp, and the removal's
	// event id sorts before the add's. Upload order must still follow
	// enqueue order or the removal would be rejected as unknown.
	at := time.Now().UTC()
	add := outboxEntry("zz-add", event.KindItemAdded)
	add.EnqueuedAt = at
	if err := store.EnqueueOutbox(ctx, add); err != nil {
		t.Fatalf("enqueue add: %v", err)
	}
	remove := outboxEntry("aa-remove", event.KindItemRemoved)
	remove.EnqueuedAt = at
	if err := store.EnqueueOutbox(ctx, remove); err != nil {
		t.Fatalf("enqueue remove: %v", err)
	}

	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending entries, got %d", len(pending))
	}
	if pending[0].Event.EventID != "zz-add" || pending[1].Event.EventID != "aa-remove" {
		t.Fatalf("enqueue order lost: got %s then %s",
			pending[0].Event.EventID, pending[1].Event.EventID)
	}
}

func TestEnqueueOutboxDuplicateIsNoop(t *testing.T) {
	store := openDeviceStore(t)
	ctx := context.Background()

	entry := outboxEntry("evt-1", event.KindNoteChanged)
	if err := store.EnqueueOutbox(ctx, entry); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.EnqueueOutbox(ctx, entry); err != nil {
		t.Fatalf("duplicate enqueue: %v", err)
	}

	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected single entry, got %d", len(pending))
	}
}

func TestRequeueOutboxCountsAttempt(t *testing.T) {
	store := openDeviceStore(t)
	ctx := context.Background()

	if err := store.EnqueueOutbox(ctx, outboxEntry("evt-1", event.KindItemAdded)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.MarkOutboxUploaded(ctx, []string{"evt-1"}); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}
	if err := store.RequeueOutbox(ctx, []string{"evt-1"}, "connection refused"); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected requeued entry pending, got %d", len(pending))
	}
	// Upload and requeue each count an attempt.
	if pending[0].AttemptCount != 2 {
		t.Fatalf("expected attempt count 2, got %d", pending[0].AttemptCount)
	}
	if pending[0].LastError != "connection refused" {
		t.Fatalf("expected last error recorded, got %q", pending[0].LastError)
	}
}

func TestDeletePendingByKind(t *testing.T) {
	store := openDeviceStore(t)
	ctx := context.Background()

	for _, entry := range []storage.OutboxEntry{
		outboxEntry("evt-1", event.KindNoteChanged),
		outboxEntry("evt-2", event.KindNoteChanged),
		outboxEntry("evt-3", event.KindItemAdded),
	} {
		if err := store.EnqueueOutbox(ctx, entry); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	// An already-uploaded note must survive the coalesce.
	uploaded := outboxEntry("evt-0", event.KindNoteChanged)
	uploaded.Status = storage.OutboxUploaded
	if err := store.EnqueueOutbox(ctx, uploaded); err != nil {
		t.Fatalf("enqueue uploaded: %v", err)
	}

	deleted, err := store.DeletePendingByKind(ctx, "order-1", event.KindNoteChanged)
	if err != nil {
		t.Fatalf("delete pending by kind: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}

	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Event.EventID != "evt-3" {
		t.Fatalf("expected only the item add pending, got %+v", pending)
	}
}

func TestPruneAcknowledgedOutbox(t *testing.T) {
	store := openDeviceStore(t)
	ctx := context.Background()

	for _, eventID := range []string{"evt-1", "evt-2"} {
		if err := store.EnqueueOutbox(ctx, outboxEntry(eventID, event.KindItemAdded)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := store.MarkOutboxAcknowledged(ctx, "evt-1", 1); err != nil {
		t.Fatalf("mark acknowledged: %v", err)
	}

	// A cutoff in the future catches the just-acknowledged entry but must
	// leave pending entries alone.
	pruned, err := store.PruneAcknowledgedOutbox(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned, got %d", pruned)
	}

	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Event.EventID != "evt-2" {
		t.Fatalf("expected evt-2 still pending, got %+v", pending)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	store := openDeviceStore(t)
	ctx := context.Background()

	applied, err := store.GetCursor(ctx, "order-1")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected zero watermark for unseen order, got %d", applied)
	}

	if err := store.SaveCursor(ctx, "order-1", 4); err != nil {
		t.Fatalf("save cursor: %v", err)
	}
	if err := store.SaveCursor(ctx, "order-1", 9); err != nil {
		t.Fatalf("advance cursor: %v", err)
	}
	if err := store.SaveCursor(ctx, "order-2", 1); err != nil {
		t.Fatalf("save second cursor: %v", err)
	}

	applied, err = store.GetCursor(ctx, "order-1")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if applied != 9 {
		t.Fatalf("expected watermark 9, got %d", applied)
	}

	cursors, err := store.ListCursors(ctx)
	if err != nil {
		t.Fatalf("list cursors: %v", err)
	}
	if len(cursors) != 2 || cursors["order-1"] != 9 || cursors["order-2"] != 1 {
		t.Fatalf("unexpected cursors: %+v", cursors)
	}
}
