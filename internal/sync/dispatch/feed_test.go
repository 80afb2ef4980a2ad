package dispatch

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
)

type feedRecorder struct {
	mu       sync.Mutex
	batches  [][]string
	directs  []Envelope
	refreshC chan struct{}
}

func newFeedRecorder() *feedRecorder {
	return &feedRecorder{refreshC: make(chan struct{}, 16)}
}

func (r *feedRecorder) refresh(orderIDs []string) {
	r.mu.Lock()
	sorted := append([]string(nil), orderIDs...)
	sort.Strings(sorted)
	r.batches = append(r.batches, sorted)
	r.mu.Unlock()
	r.refreshC <- struct{}{}
}

func (r *feedRecorder) direct(env Envelope) {
	r.mu.Lock()
	r.directs = append(r.directs, env)
	r.mu.Unlock()
}

func (r *feedRecorder) waitRefresh(t *testing.T) {
	t.Helper()
	select {
	case <-r.refreshC:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for refresh")
	}
}

func (r *feedRecorder) snapshot() ([][]string, []Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...), append([]Envelope(nil), r.directs...)
}

func TestDisplayFeedCoalescesRefreshes(t *testing.T) {
	rec := newFeedRecorder()
	feed := NewDisplayFeed(minRefreshInterval, rec.refresh, rec.direct)
	defer feed.Close()

	for seq := uint64(1); seq <= 5; seq++ {
		feed.Observe(Envelope{OrderID: "order-1", Seq: seq, Kind: string(event.KindItemAdded)})
	}
	feed.Observe(Envelope{OrderID: "order-2", Seq: 1, Kind: string(event.KindNoteChanged)})

	rec.waitRefresh(t)
	batches, directs := rec.snapshot()
	if len(batches) != 1 {
		t.Fatalf("expected a single coalesced refresh, got %d", len(batches))
	}
	if len(batches[0]) != 2 || batches[0][0] != "order-1" || batches[0][1] != "order-2" {
		t.Fatalf("expected both orders in the batch, got %v", batches[0])
	}
	if len(directs) != 0 {
		t.Fatalf("no direct deliveries expected, got %+v", directs)
	}
}

func TestDisplayFeedDirectKindsBypassWindow(t *testing.T) {
	rec := newFeedRecorder()
	feed := NewDisplayFeed(time.Hour, rec.refresh, rec.direct)
	defer feed.Close()

	feed.Observe(Envelope{OrderID: "order-1", Seq: 1, Kind: string(event.KindItemRemoved)})
	feed.Observe(Envelope{OrderID: "order-1", Seq: 2, Kind: string(event.KindOrderClosed)})
	feed.Observe(Envelope{OrderID: "order-1", Seq: 3, Kind: string(event.KindCompVoidApplied)})

	_, directs := rec.snapshot()
	if len(directs) != 3 {
		t.Fatalf("expected 3 immediate deliveries, got %d", len(directs))
	}
	if directs[0].Kind != string(event.KindItemRemoved) {
		t.Fatalf("unexpected direct order: %+v", directs)
	}
}

func TestDisplayFeedCloseFlushesPending(t *testing.T) {
	rec := newFeedRecorder()
	feed := NewDisplayFeed(time.Hour, rec.refresh, rec.direct)

	feed.Observe(Envelope{OrderID: "order-1", Seq: 1, Kind: string(event.KindItemAdded)})
	feed.Close()

	batches, _ := rec.snapshot()
	if len(batches) != 1 || len(batches[0]) != 1 || batches[0][0] != "order-1" {
		t.Fatalf("expected final flush on close, got %v", batches)
	}

	// Observations after close are dropped.
	feed.Observe(Envelope{OrderID: "order-2", Seq: 1, Kind: string(event.KindItemAdded)})
	batches, _ = rec.snapshot()
	if len(batches) != 1 {
		t.Fatalf("expected no refresh after close, got %v", batches)
	}
}

func TestDisplayFeedClampsInterval(t *testing.T) {
	feed := NewDisplayFeed(time.Nanosecond, nil, nil)
	defer feed.Close()
	if feed.interval != minRefreshInterval {
		t.Fatalf("expected interval clamped to %v, got %v", minRefreshInterval, feed.interval)
	}
}
