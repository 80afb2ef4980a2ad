package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/projection"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/storage"
)

func openAuthorityStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "syncd.db")
	store, err := OpenAuthority(path, event.NewRegistry())
	if err != nil {
		t.Fatalf("open authority store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func openDeviceStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "posagent.db")
	store, err := OpenDevice(path)
	if err != nil {
		t.Fatalf("open device store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func storeEvent(eventID, orderID string, kind event.Kind) event.Event {
	return event.Event{
		EventID:        eventID,
		OrderID:        orderID,
		LocationID:     "loc-1",
		Kind:           kind,
		OriginDeviceID: "device-1",
	}
}

func storeSnapshot(orderID string, lastSeq uint64) projection.Snapshot {
	return projection.Snapshot{
		OrderID:    orderID,
		LocationID: "loc-1",
		Status:     "OPEN",
		LastSeq:    lastSeq,
		UpdatedAt:  time.Now().UTC(),
	}
}

func TestOpenAuthorityRequiresRegistry(t *testing.T) {
	if _, err := OpenAuthority(filepath.Join(t.TempDir(), "x.db"), nil); err == nil {
		t.Fatal("expected error for nil registry")
	}
}

func TestOpenDeviceRequiresPath(t *testing.T) {
	if _, err := OpenDevice(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestCloseNilSafe(t *testing.T) {
	var store *Store
	if err := store.Close(); err != nil {
		t.Fatalf("expected nil-safe close, got %v", err)
	}
}

func TestAppendEventsAssignsContiguousSequences(t *testing.T) {
	store := openAuthorityStore(t)
	ctx := context.Background()

	note := storeEvent("evt-2", "order-1", event.KindNoteChanged)
	note.PayloadJSON = []byte(`{"note":"rush"}`)
	first, err := store.AppendEvents(ctx, "order-1", []event.Event{
		storeEvent("evt-1", "order-1", event.KindOrderCreated),
		note,
	}, storeSnapshot("order-1", 2))
	if err != nil {
		t.Fatalf("append first batch: %v", err)
	}
	if len(first) != 2 || first[0].Seq != 1 || first[1].Seq != 2 {
		t.Fatalf("unexpected sequences: %+v", first)
	}

	second, err := store.AppendEvents(ctx, "order-1", []event.Event{
		storeEvent("evt-3", "order-1", event.KindOrderClosed),
	}, storeSnapshot("order-1", 3))
	if err != nil {
		t.Fatalf("append second batch: %v", err)
	}
	if second[0].Seq != 3 {
		t.Fatalf("expected seq 3, got %d", second[0].Seq)
	}

	latest, err := store.GetLatestSeq(ctx, "order-1")
	if err != nil {
		t.Fatalf("get latest seq: %v", err)
	}
	if latest != 3 {
		t.Fatalf("expected latest seq 3, got %d", latest)
	}
}

func TestAppendEventsSequencesPerOrder(t *testing.T) {
	store := openAuthorityStore(t)
	ctx := context.Background()

	if _, err := store.AppendEvents(ctx, "order-a", []event.Event{
		storeEvent("evt-a1", "order-a", event.KindOrderCreated),
	}, storeSnapshot("order-a", 1)); err != nil {
		t.Fatalf("append order-a: %v", err)
	}

	stored, err := store.AppendEvents(ctx, "order-b", []event.Event{
		storeEvent("evt-b1", "order-b", event.KindOrderCreated),
	}, storeSnapshot("order-b", 1))
	if err != nil {
		t.Fatalf("append order-b: %v", err)
	}
	if stored[0].Seq != 1 {
		t.Fatalf("expected independent counter per order, got seq %d", stored[0].Seq)
	}
}

func TestAppendEventsRejectsDuplicateEventID(t *testing.T) {
	store := openAuthorityStore(t)
	ctx := context.Background()

	if _, err := store.AppendEvents(ctx, "order-1", []event.Event{
		storeEvent("evt-1", "order-1", event.KindOrderCreated),
	}, storeSnapshot("order-1", 1)); err != nil {
		t.Fatalf("append: %v", err)
	}

	dup := storeEvent("evt-1", "order-1", event.KindNoteChanged)
	dup.PayloadJSON = []byte(`{"note":"same id, new body"}`)
	_, err := store.AppendEvents(ctx, "order-1", []event.Event{dup}, storeSnapshot("order-1", 2))
	if err == nil {
		t.Fatal("expected duplicate idempotency key error")
	}
	if !strings.Contains(err.Error(), "duplicate idempotency key") {
		t.Fatalf("unexpected error: %v", err)
	}

	// The failed batch must not consume sequence numbers.
	latest, err := store.GetLatestSeq(ctx, "order-1")
	if err != nil {
		t.Fatalf("get latest seq: %v", err)
	}
	if latest != 1 {
		t.Fatalf("expected latest seq 1 after rollback, got %d", latest)
	}
}

func TestAppendEventsRejectsOrderMismatch(t *testing.T) {
	store := openAuthorityStore(t)

	_, err := store.AppendEvents(context.Background(), "order-1", []event.Event{
		storeEvent("evt-1", "order-2", event.KindOrderCreated),
	}, storeSnapshot("order-1", 1))
	if err == nil {
		t.Fatal("expected order id mismatch error")
	}
}

func TestAppendEventsEmptyBatchIsNoop(t *testing.T) {
	store := openAuthorityStore(t)

	stored, err := store.AppendEvents(context.Background(), "order-1", nil, projection.Snapshot{})
	if err != nil {
		t.Fatalf("append empty batch: %v", err)
	}
	if stored != nil {
		t.Fatalf("expected no stored events, got %+v", stored)
	}
}

func TestGetEventByIdempotencyKey(t *testing.T) {
	store := openAuthorityStore(t)
	ctx := context.Background()

	evt := storeEvent("evt-1", "order-1", event.KindOrderCreated)
	evt.ClientTimestamp = time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	if _, err := store.AppendEvents(ctx, "order-1", []event.Event{evt}, storeSnapshot("order-1", 1)); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.GetEventByIdempotencyKey(ctx, "order-1/evt-1")
	if err != nil {
		t.Fatalf("get by idempotency key: %v", err)
	}
	if got.Seq != 1 || got.Kind != event.KindOrderCreated || got.OriginDeviceID != "device-1" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if !got.ClientTimestamp.Equal(evt.ClientTimestamp) {
		t.Fatalf("expected client timestamp %v, got %v", evt.ClientTimestamp, got.ClientTimestamp)
	}

	if _, err := store.GetEventByIdempotencyKey(ctx, "order-1/missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListEventsPaging(t *testing.T) {
	store := openAuthorityStore(t)
	ctx := context.Background()

	batch := []event.Event{
		storeEvent("evt-1", "order-1", event.KindOrderCreated),
		storeEvent("evt-2", "order-1", event.KindNoteChanged),
		storeEvent("evt-3", "order-1", event.KindGuestCountChanged),
		storeEvent("evt-4", "order-1", event.KindOrderSent),
	}
	batch[1].PayloadJSON = []byte(`{"note":"rush"}`)
	batch[2].PayloadJSON = []byte(`{"guest_count":2}`)
	if _, err := store.AppendEvents(ctx, "order-1", batch, storeSnapshot("order-1", 4)); err != nil {
		t.Fatalf("append: %v", err)
	}

	page, err := store.ListEvents(ctx, "order-1", 1, 2)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(page) != 2 || page[0].Seq != 2 || page[1].Seq != 3 {
		t.Fatalf("unexpected page: %+v", page)
	}

	rest, err := store.ListEvents(ctx, "order-1", 3, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(rest) != 1 || rest[0].Seq != 4 {
		t.Fatalf("unexpected tail page: %+v", rest)
	}

	if _, err := store.ListEvents(ctx, "order-1", 0, 0); err == nil {
		t.Fatal("expected error for non-positive limit")
	}
}

func TestGetLatestSeqUnknownOrder(t *testing.T) {
	store := openAuthorityStore(t)

	latest, err := store.GetLatestSeq(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get latest seq: %v", err)
	}
	if latest != 0 {
		t.Fatalf("expected zero for unknown order, got %d", latest)
	}
}

func TestSnapshotUpsertAndGet(t *testing.T) {
	store := openAuthorityStore(t)
	ctx := context.Background()

	snap := storeSnapshot("order-1", 1)
	snap.ServerName = "dana"
	snap.TabOpen = true
	snap.SubtotalCents = 1200
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	snap.Status = "CLOSED"
	snap.LastSeq = 5
	snap.TabOpen = false
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("update snapshot: %v", err)
	}

	got, err := store.GetSnapshot(ctx, "order-1")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if got.Status != "CLOSED" || got.LastSeq != 5 || got.TabOpen || got.ServerName != "dana" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	if _, err := store.GetSnapshot(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListSnapshotsByLocation(t *testing.T) {
	store := openAuthorityStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, orderID := range []string{"order-1", "order-2", "order-3"} {
		snap := storeSnapshot(orderID, 1)
		snap.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("save snapshot %s: %v", orderID, err)
		}
	}
	other := storeSnapshot("order-other", 1)
	other.LocationID = "loc-2"
	if err := store.SaveSnapshot(ctx, other); err != nil {
		t.Fatalf("save other-location snapshot: %v", err)
	}

	snaps, err := store.ListSnapshotsByLocation(ctx, "loc-1", 2)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected limit respected, got %d snapshots", len(snaps))
	}
	// Most recently updated first.
	if snaps[0].OrderID != "order-3" || snaps[1].OrderID != "order-2" {
		t.Fatalf("unexpected ordering: %s, %s", snaps[0].OrderID, snaps[1].OrderID)
	}
}

func TestPutEventIsIdempotent(t *testing.T) {
	store := openDeviceStore(t)
	ctx := context.Background()

	evt := storeEvent("evt-1", "order-1", event.KindOrderCreated)
	evt.Seq = 1
	if err := store.PutEvent(ctx, evt); err != nil {
		t.Fatalf("put event: %v", err)
	}

	// Same (order, seq) again with a different payload stays a no-op.
	dup := evt
	dup.PayloadJSON = []byte(`{"server_name":"changed"}`)
	if err := store.PutEvent(ctx, dup); err != nil {
		t.Fatalf("put duplicate: %v", err)
	}

	events, err := store.ListEvents(ctx, "order-1", 0, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected a single journal row, got %d", len(events))
	}
	if len(events[0].PayloadJSON) != 0 {
		t.Fatalf("duplicate put must not overwrite, got payload %s", events[0].PayloadJSON)
	}
}

func TestPutEventRequiresSequence(t *testing.T) {
	store := openDeviceStore(t)

	err := store.PutEvent(context.Background(), storeEvent("evt-1", "order-1", event.KindOrderCreated))
	if err == nil {
		t.Fatal("expected error for unsequenced event")
	}
}
