// Package sequencer assigns the total order to events. For a given
// order, sequences are gapless and strictly increasing even under
// concurrent submission from multiple devices; different orders are
// sequenced fully in parallel.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/guard"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/projection"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/reduce"
	apperrors "github.com/GetwithitMan/gwi-pos-sub015/internal/platform/errors"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/storage"
)

const replayPageSize = 200

// Store is the persistence surface the sequencer needs.
type Store interface {
	AppendEvents(ctx context.Context, orderID string, events []event.Event, snap projection.Snapshot) ([]event.Event, error)
	GetEventByIdempotencyKey(ctx context.Context, key string) (event.Event, error)
	ListEvents(ctx context.Context, orderID string, afterSeq uint64, limit int) ([]event.Event, error)
}

// Notifier receives committed events for real-time fan-out. Dispatch is
// strictly post-commit and best-effort; the write path never depends on
// it succeeding and never awaits it inside the critical section.
type Notifier interface {
	EventCommitted(evt event.Event)
}

// Accepted reports one event that received a server sequence.
type Accepted struct {
	EventID string `json:"event_id"`
	Seq     uint64 `json:"seq"`
}

// Rejected reports one event refused by validation, guard policy, or the
// reducer. Rejection is terminal: the origin device must reconcile, not
// retry.
type Rejected struct {
	EventID string `json:"event_id"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
}

// SubmitResult is the outcome of one batch submission.
type SubmitResult struct {
	Accepted []Accepted `json:"accepted"`
	Rejected []Rejected `json:"rejected"`
}

// PullResult is one page of the backlog.
type PullResult struct {
	Events  []event.Event
	HasMore bool
}

// Sequencer owns the per-order critical sections for one location node.
type Sequencer struct {
	store    Store
	registry *event.Registry
	notifier Notifier
	tracer   trace.Tracer
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a sequencer over the given store and registry. The
// notifier may be nil; committed events are then not fanned out.
func New(store Store, registry *event.Registry, notifier Notifier) *Sequencer {
	return &Sequencer{
		store:    store,
		registry: registry,
		notifier: notifier,
		tracer:   otel.Tracer("sync/sequencer"),
		now:      time.Now,
		locks:    make(map[string]*orderLock),
	}
}

// Submit validates, guards, sequences, and persists a batch of events
// for one order. Duplicate submissions (same idempotency keys) return
// the previously assigned sequences without re-applying anything.
func (s *Sequencer) Submit(ctx context.Context, orderID string, events []event.Event) (SubmitResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return SubmitResult{}, fmt.Errorf("order id is required")
	}
	for i, evt := range events {
		if strings.TrimSpace(evt.OrderID) != orderID {
			return SubmitResult{}, apperrors.WithMetadata(apperrors.CodeBatchOrderMismatch,
				"batch events must all belong to the submitted order", map[string]string{
					"order_id": orderID,
					"event":    fmt.Sprintf("%d", i),
				})
		}
	}

	ctx, span := s.tracer.Start(ctx, "sequencer.Submit",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.Int("batch.size", len(events)),
		))
	defer span.End()

	lock := s.acquire(orderID)
	lock.mu.Lock()
	result, committed, err := s.submitLocked(ctx, orderID, events)
	lock.mu.Unlock()
	s.release(orderID)
	if err != nil {
		return SubmitResult{}, err
	}

	// Post-commit fan-out, outside the critical section.
	if s.notifier != nil {
		for _, evt := range committed {
			s.notifier.EventCommitted(evt)
		}
	}

	span.SetAttributes(
		attribute.Int("batch.accepted", len(result.Accepted)),
		attribute.Int("batch.rejected", len(result.Rejected)),
	)
	return result, nil
}

func (s *Sequencer) submitLocked(ctx context.Context, orderID string, events []event.Event) (SubmitResult, []event.Event, error) {
	state, locationID, err := s.loadState(ctx, orderID)
	if err != nil {
		return SubmitResult{}, nil, err
	}

	var (
		result   SubmitResult
		toAppend []event.Event
	)
	seen := make(map[string]struct{}, len(events))
	for _, evt := range events {
		evt = evt.Normalize()
		if evt.LocationID != "" {
			locationID = evt.LocationID
		}

		// A batch that repeats an event gets one verdict for it; the
		// second copy would otherwise fail the unique index at append
		// time and take the whole batch down with it.
		key := evt.IdempotencyKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		// At-least-once delivery means retried batches are routine; an
		// already-sequenced event reports its original acceptance.
		existing, lookupErr := s.store.GetEventByIdempotencyKey(ctx, key)
		if lookupErr == nil {
			result.Accepted = append(result.Accepted, Accepted{EventID: existing.EventID, Seq: existing.Seq})
			continue
		}
		if !errors.Is(lookupErr, storage.ErrNotFound) {
			return SubmitResult{}, nil, fmt.Errorf("idempotency lookup: %w", lookupErr)
		}

		validated, valErr := s.registry.ValidateForAppend(evt)
		if valErr != nil {
			result.Rejected = append(result.Rejected, Rejected{
				EventID: evt.EventID,
				Code:    string(apperrors.CodeOf(valErr)),
				Reason:  valErr.Error(),
			})
			continue
		}

		// The guard sees the authoritative state as of the immediately
		// preceding event, including earlier events in this batch.
		if decision := guard.Evaluate(state, validated.Kind); !decision.Allowed {
			log.Printf("sequencer: rejected order=%s event=%s kind=%s code=%s", orderID, validated.EventID, validated.Kind, decision.Code)
			result.Rejected = append(result.Rejected, Rejected{
				EventID: validated.EventID,
				Code:    decision.Code,
				Reason:  decision.Reason,
			})
			continue
		}

		next, applyErr := reduce.Apply(state, validated)
		if applyErr != nil {
			result.Rejected = append(result.Rejected, Rejected{
				EventID: validated.EventID,
				Code:    string(apperrors.CodeOf(applyErr)),
				Reason:  applyErr.Error(),
			})
			continue
		}
		state = next
		toAppend = append(toAppend, validated)
	}

	if len(toAppend) == 0 {
		return result, nil, nil
	}

	snap := projection.Build(orderID, locationID, state, s.now().UTC())
	stored, err := s.store.AppendEvents(ctx, orderID, toAppend, snap)
	if err != nil {
		return SubmitResult{}, nil, fmt.Errorf("append events: %w", err)
	}
	for _, evt := range stored {
		result.Accepted = append(result.Accepted, Accepted{EventID: evt.EventID, Seq: evt.Seq})
	}
	return result, stored, nil
}

// Pull returns one ascending page of the backlog after the caller's
// cursor. HasMore signals the device to keep paging before trusting
// push traffic.
func (s *Sequencer) Pull(ctx context.Context, orderID string, afterSeq uint64, limit int) (PullResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return PullResult{}, fmt.Errorf("order id is required")
	}
	if limit <= 0 || limit > replayPageSize {
		limit = replayPageSize
	}

	ctx, span := s.tracer.Start(ctx, "sequencer.Pull",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.Int64("after.seq", int64(afterSeq)),
		))
	defer span.End()

	events, err := s.store.ListEvents(ctx, orderID, afterSeq, limit+1)
	if err != nil {
		return PullResult{}, fmt.Errorf("list events: %w", err)
	}
	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}
	return PullResult{Events: events, HasMore: hasMore}, nil
}

// loadState replays the full event log for an order in pages. The replay
// is the authority's source of truth; snapshots are never consulted on
// the write path.
func (s *Sequencer) loadState(ctx context.Context, orderID string) (reduce.OrderState, string, error) {
	state := reduce.Empty()
	locationID := ""
	afterSeq := uint64(0)
	for {
		events, err := s.store.ListEvents(ctx, orderID, afterSeq, replayPageSize)
		if err != nil {
			return reduce.OrderState{}, "", fmt.Errorf("replay order %s: %w", orderID, err)
		}
		if len(events) == 0 {
			return state, locationID, nil
		}
		for _, evt := range events {
			next, applyErr := reduce.Apply(state, evt)
			if applyErr != nil {
				return reduce.OrderState{}, "", fmt.Errorf("replay order %s seq %d: %w", orderID, evt.Seq, applyErr)
			}
			state = next
			if evt.LocationID != "" {
				locationID = evt.LocationID
			}
			afterSeq = evt.Seq
		}
	}
}

func (s *Sequencer) acquire(orderID string) *orderLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[orderID]
	if !ok {
		lock = &orderLock{}
		s.locks[orderID] = lock
	}
	lock.refs++
	return lock
}

func (s *Sequencer) release(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[orderID]
	if !ok {
		return
	}
	lock.refs--
	if lock.refs <= 0 {
		delete(s.locks, orderID)
	}
}
