package projection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/reduce"
)

// EventLog is the local journal the applier mirrors sequenced events
// into and rebuilds from.
type EventLog interface {
	PutEvent(ctx context.Context, evt event.Event) error
	ListEvents(ctx context.Context, orderID string, afterSeq uint64, limit int) ([]event.Event, error)
}

// SnapshotWriter persists the derived read model.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

const rebuildPageSize = 200

// Applier maintains a device's local read model from the authoritative
// event stream. Events arrive already sequenced and validated; the
// applier journals them, folds them into order state, and persists the
// snapshot. Applying the same sequence twice is a no-op.
type Applier struct {
	log       EventLog
	snapshots SnapshotWriter
	now       func() time.Time

	mu     sync.Mutex
	states map[string]applierState
}

type applierState struct {
	state      reduce.OrderState
	locationID string
}

// NewApplier creates an applier over a local journal and snapshot store.
func NewApplier(log EventLog, snapshots SnapshotWriter) *Applier {
	return &Applier{
		log:       log,
		snapshots: snapshots,
		now:       time.Now,
		states:    make(map[string]applierState),
	}
}

// ApplyEvent journals one sequenced event and folds it into the order's
// read model. The in-memory state cache is rebuilt from the journal
// whenever it is missing or behind, so restarts pick up where the
// journal left off.
func (a *Applier) ApplyEvent(ctx context.Context, evt event.Event) error {
	evt = evt.Normalize()
	if !evt.Sequenced() {
		return fmt.Errorf("event %s has no sequence", evt.EventID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.log.PutEvent(ctx, evt); err != nil {
		return err
	}

	cached, ok := a.states[evt.OrderID]
	if !ok || cached.state.LastSeq+1 != evt.Seq {
		rebuilt, err := a.rebuild(ctx, evt.OrderID)
		if err != nil {
			return err
		}
		cached = rebuilt
	}

	if cached.state.LastSeq < evt.Seq {
		next, err := reduce.Apply(cached.state, evt)
		if err != nil {
			return fmt.Errorf("fold order %s seq %d: %w", evt.OrderID, evt.Seq, err)
		}
		cached.state = next
	}
	if evt.LocationID != "" {
		cached.locationID = evt.LocationID
	}
	a.states[evt.OrderID] = cached

	snap := Build(evt.OrderID, cached.locationID, cached.state, a.now().UTC())
	if err := a.snapshots.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", evt.OrderID, err)
	}
	return nil
}

// State returns the current folded state for an order, rebuilding from
// the journal if it is not cached.
func (a *Applier) State(ctx context.Context, orderID string) (reduce.OrderState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cached, ok := a.states[orderID]
	if !ok {
		rebuilt, err := a.rebuild(ctx, orderID)
		if err != nil {
			return reduce.OrderState{}, err
		}
		a.states[orderID] = rebuilt
		return rebuilt.state, nil
	}
	return cached.state, nil
}

func (a *Applier) rebuild(ctx context.Context, orderID string) (applierState, error) {
	rebuilt := applierState{state: reduce.Empty()}
	afterSeq := uint64(0)
	for {
		events, err := a.log.ListEvents(ctx, orderID, afterSeq, rebuildPageSize)
		if err != nil {
			return applierState{}, fmt.Errorf("rebuild order %s: %w", orderID, err)
		}
		if len(events) == 0 {
			return rebuilt, nil
		}
		for _, evt := range events {
			next, err := reduce.Apply(rebuilt.state, evt)
			if err != nil {
				return applierState{}, fmt.Errorf("rebuild order %s seq %d: %w", orderID, evt.Seq, err)
			}
			rebuilt.state = next
			if evt.LocationID != "" {
				rebuilt.locationID = evt.LocationID
			}
			afterSeq = evt.Seq
		}
	}
}
