// Package outbox runs the device side of synchronization: locally
// authored events wait in a durable outbox until the authority
// acknowledges them, and remote events are pulled over a per-order
// cursor until the device converges.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/reduce"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/storage"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/sync/sequencer"
)

// Transport is the authority endpoint the agent uploads to and pulls
// from.
type Transport interface {
	SubmitEvents(ctx context.Context, orderID string, events []event.Event) (sequencer.SubmitResult, error)
	PullEvents(ctx context.Context, orderID string, afterSeq uint64, limit int) (sequencer.PullResult, error)
}

// Applier maintains the device's local read model. ApplyEvent receives
// sequenced events in order, exactly once per (order, seq) the device
// has not applied yet; State returns the folded confirmed state.
type Applier interface {
	ApplyEvent(ctx context.Context, evt event.Event) error
	State(ctx context.Context, orderID string) (reduce.OrderState, error)
}

// Store is the durable device-side state the agent needs.
type Store interface {
	storage.OutboxStore
	storage.CursorStore
}

// coalescibleKinds may be replaced by a newer pending event of the same
// kind for the same order while still offline. Anything financial or
// quantity-bearing is never coalesced.
var coalescibleKinds = map[event.Kind]struct{}{
	event.KindNoteChanged:          {},
	event.KindGuestCountChanged:    {},
	event.KindOrderMetadataUpdated: {},
}

// Config controls agent loop behavior.
type Config struct {
	PollInterval     time.Duration
	BatchSize        int
	PullPageSize     int
	MaxAttempts      int
	RetryInitial     time.Duration
	RetryMaxInterval time.Duration
	UploadMaxTries   uint
	AckRetention     time.Duration
}

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.PullPageSize <= 0 {
		c.PullPageSize = 200
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 500 * time.Millisecond
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = 30 * time.Second
	}
	if c.UploadMaxTries == 0 {
		c.UploadMaxTries = 4
	}
	if c.AckRetention <= 0 {
		c.AckRetention = 24 * time.Hour
	}
	return c
}

// Agent drives one device's outbox and cursors.
type Agent struct {
	deviceID  string
	store     Store
	transport Transport
	applier   Applier
	cfg       Config
	now       func() time.Time
}

// New creates an agent for one device. The applier may be nil when the
// device has no local read model to maintain.
func New(deviceID string, store Store, transport Transport, applier Applier, cfg Config) *Agent {
	return &Agent{
		deviceID:  strings.TrimSpace(deviceID),
		store:     store,
		transport: transport,
		applier:   applier,
		cfg:       cfg.normalized(),
		now:       time.Now,
	}
}

// Enqueue records a locally authored event as pending upload. The event
// is stamped with this device's origin id. For coalescible kinds any
// still-pending event of the same kind for the same order is replaced.
func (a *Agent) Enqueue(ctx context.Context, evt event.Event) error {
	evt = evt.Normalize()
	if evt.OriginDeviceID == "" {
		evt.OriginDeviceID = a.deviceID
	}
	if evt.EventID == "" {
		return fmt.Errorf("event id is required")
	}
	if evt.OrderID == "" {
		return fmt.Errorf("order id is required")
	}

	if _, ok := coalescibleKinds[evt.Kind]; ok {
		if _, err := a.store.DeletePendingByKind(ctx, evt.OrderID, evt.Kind); err != nil {
			return fmt.Errorf("coalesce pending %s: %w", evt.Kind, err)
		}
	}
	entry := storage.OutboxEntry{
		Event:      evt,
		Status:     storage.OutboxPending,
		EnqueuedAt: a.now().UTC(),
	}
	if err := a.store.EnqueueOutbox(ctx, entry); err != nil {
		return fmt.Errorf("enqueue event %s: %w", evt.EventID, err)
	}
	return nil
}

// State returns the order as this device currently sees it: the
// confirmed state from the local journal with the order's unconfirmed
// outbox entries folded on top, in enqueue order. An entry the
// authority rejects drops out of the view as soon as it expires; the
// fold stops at the first entry that cannot apply, since everything
// after it depends on it.
func (a *Agent) State(ctx context.Context, orderID string) (reduce.OrderState, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return reduce.OrderState{}, fmt.Errorf("order id is required")
	}
	if a.applier == nil {
		return reduce.OrderState{}, fmt.Errorf("device has no local read model")
	}
	state, err := a.applier.State(ctx, orderID)
	if err != nil {
		return reduce.OrderState{}, fmt.Errorf("confirmed state for %s: %w", orderID, err)
	}
	unconfirmed, err := a.store.ListUnconfirmedOutbox(ctx, orderID)
	if err != nil {
		return reduce.OrderState{}, fmt.Errorf("list unconfirmed for %s: %w", orderID, err)
	}
	for _, entry := range unconfirmed {
		next, err := reduce.Apply(state, entry.Event)
		if err != nil {
			break
		}
		state = next
	}
	return state, nil
}

// Run loops until the context is canceled: upload pending entries, pull
// the backlog for every tracked order, prune old acknowledgements.
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := a.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("outbox: sync tick device=%s: %v", a.deviceID, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one full sync pass.
func (a *Agent) Tick(ctx context.Context) error {
	if err := a.UploadPending(ctx); err != nil {
		return err
	}
	if err := a.SyncAll(ctx); err != nil {
		return err
	}
	cutoff := a.now().Add(-a.cfg.AckRetention)
	if _, err := a.store.PruneAcknowledgedOutbox(ctx, cutoff); err != nil {
		return fmt.Errorf("prune acknowledged outbox: %w", err)
	}
	return nil
}

// UploadPending submits pending outbox entries to the authority in
// per-order batches, preserving local enqueue order within each order.
func (a *Agent) UploadPending(ctx context.Context) error {
	pending, err := a.store.ListPendingOutbox(ctx, a.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list pending outbox: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	for _, orderID := range pendingOrderIDs(pending) {
		var batch []storage.OutboxEntry
		for _, entry := range pending {
			if entry.Event.OrderID == orderID {
				batch = append(batch, entry)
			}
		}
		if err := a.uploadBatch(ctx, orderID, batch); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) uploadBatch(ctx context.Context, orderID string, batch []storage.OutboxEntry) error {
	events := make([]event.Event, 0, len(batch))
	eventIDs := make([]string, 0, len(batch))
	for _, entry := range batch {
		events = append(events, entry.Event)
		eventIDs = append(eventIDs, entry.Event.EventID)
	}
	if err := a.store.MarkOutboxUploaded(ctx, eventIDs); err != nil {
		return fmt.Errorf("mark uploaded: %w", err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = a.cfg.RetryInitial
	expo.MaxInterval = a.cfg.RetryMaxInterval

	result, err := backoff.Retry(ctx, func() (sequencer.SubmitResult, error) {
		return a.transport.SubmitEvents(ctx, orderID, events)
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(a.cfg.UploadMaxTries))
	if err != nil {
		// Transport failure: the batch goes back to pending unless a
		// given entry has burned through its attempt budget.
		if requeueErr := a.requeueOrExpire(ctx, batch, err); requeueErr != nil {
			return requeueErr
		}
		return fmt.Errorf("submit order %s: %w", orderID, err)
	}

	for _, accepted := range result.Accepted {
		if ackErr := a.store.MarkOutboxAcknowledged(ctx, accepted.EventID, accepted.Seq); ackErr != nil {
			return fmt.Errorf("acknowledge event %s: %w", accepted.EventID, ackErr)
		}
	}
	for _, rejected := range result.Rejected {
		log.Printf("outbox: event rejected device=%s order=%s event=%s code=%s: %s",
			a.deviceID, orderID, rejected.EventID, rejected.Code, rejected.Reason)
		reason := rejected.Code
		if rejected.Reason != "" {
			reason = rejected.Code + ": " + rejected.Reason
		}
		if expErr := a.store.MarkOutboxExpired(ctx, rejected.EventID, reason); expErr != nil {
			return fmt.Errorf("expire event %s: %w", rejected.EventID, expErr)
		}
	}
	return nil
}

func (a *Agent) requeueOrExpire(ctx context.Context, batch []storage.OutboxEntry, cause error) error {
	var requeue []string
	for _, entry := range batch {
		if entry.AttemptCount+1 >= a.cfg.MaxAttempts {
			reason := fmt.Sprintf("upload attempts exhausted: %v", cause)
			if err := a.store.MarkOutboxExpired(ctx, entry.Event.EventID, reason); err != nil {
				return fmt.Errorf("expire event %s: %w", entry.Event.EventID, err)
			}
			log.Printf("outbox: event expired device=%s order=%s event=%s after %d attempts",
				a.deviceID, entry.Event.OrderID, entry.Event.EventID, entry.AttemptCount+1)
			continue
		}
		requeue = append(requeue, entry.Event.EventID)
	}
	if len(requeue) == 0 {
		return nil
	}
	if err := a.store.RequeueOutbox(ctx, requeue, cause.Error()); err != nil {
		return fmt.Errorf("requeue outbox: %w", err)
	}
	return nil
}

// SyncAll pulls the backlog for every order the device tracks.
func (a *Agent) SyncAll(ctx context.Context) error {
	cursors, err := a.store.ListCursors(ctx)
	if err != nil {
		return fmt.Errorf("list cursors: %w", err)
	}
	orderIDs := make([]string, 0, len(cursors))
	for orderID := range cursors {
		orderIDs = append(orderIDs, orderID)
	}
	sort.Strings(orderIDs)
	for _, orderID := range orderIDs {
		if err := a.Sync(ctx, orderID); err != nil {
			return err
		}
	}
	return nil
}

// Sync pulls every page after the order's cursor and applies it locally.
// The cursor advances only after an event has been durably applied, so
// a crash mid-page re-pulls rather than skips.
func (a *Agent) Sync(ctx context.Context, orderID string) error {
	for {
		applied, err := a.store.GetCursor(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get cursor for %s: %w", orderID, err)
		}
		page, err := a.transport.PullEvents(ctx, orderID, applied, a.cfg.PullPageSize)
		if err != nil {
			return fmt.Errorf("pull order %s after %d: %w", orderID, applied, err)
		}
		for _, evt := range page.Events {
			if err := a.applyRemote(ctx, evt); err != nil {
				return err
			}
		}
		if !page.HasMore {
			return nil
		}
	}
}

// ObserveRemote handles one pushed event. In-order events apply
// immediately; a gap triggers a full pull so nothing is applied out of
// order; already-applied sequences are dropped.
func (a *Agent) ObserveRemote(ctx context.Context, evt event.Event) error {
	applied, err := a.store.GetCursor(ctx, evt.OrderID)
	if err != nil {
		return fmt.Errorf("get cursor for %s: %w", evt.OrderID, err)
	}
	switch {
	case evt.Seq <= applied:
		return nil
	case evt.Seq == applied+1:
		return a.applyRemote(ctx, evt)
	default:
		return a.Sync(ctx, evt.OrderID)
	}
}

func (a *Agent) applyRemote(ctx context.Context, evt event.Event) error {
	if a.applier != nil {
		if err := a.applier.ApplyEvent(ctx, evt); err != nil {
			return fmt.Errorf("apply order %s seq %d: %w", evt.OrderID, evt.Seq, err)
		}
	}
	// The authority echoes this device's own events back through the
	// stream; acknowledging here reconciles uploads the ack response
	// for which was lost.
	if evt.OriginDeviceID == a.deviceID {
		if err := a.store.MarkOutboxAcknowledged(ctx, evt.EventID, evt.Seq); err != nil {
			return fmt.Errorf("reconcile event %s: %w", evt.EventID, err)
		}
	}
	if err := a.store.SaveCursor(ctx, evt.OrderID, evt.Seq); err != nil {
		return fmt.Errorf("save cursor for %s: %w", evt.OrderID, err)
	}
	return nil
}

// Track registers an order so SyncAll starts pulling it even before any
// event has been applied.
func (a *Agent) Track(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("order id is required")
	}
	applied, err := a.store.GetCursor(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get cursor for %s: %w", orderID, err)
	}
	if applied > 0 {
		return nil
	}
	return a.store.SaveCursor(ctx, orderID, 0)
}

func pendingOrderIDs(entries []storage.OutboxEntry) []string {
	seen := make(map[string]struct{}, len(entries))
	var orderIDs []string
	for _, entry := range entries {
		if _, ok := seen[entry.Event.OrderID]; ok {
			continue
		}
		seen[entry.Event.OrderID] = struct{}{}
		orderIDs = append(orderIDs, entry.Event.OrderID)
	}
	sort.Strings(orderIDs)
	return orderIDs
}
