package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/projection"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/storage"
)

// AppendEvents atomically appends a batch of events for one order and
// upserts its snapshot in the same transaction.
//
// Sequence numbers are allocated contiguously from the per-order counter,
// so the log has no gaps and no duplicates. The caller (the sequencer)
// holds the per-order critical section; this method only provides the
// transactional append.
func (s *Store) AppendEvents(ctx context.Context, orderID string, events []event.Event, snap projection.Snapshot) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if s.eventRegistry == nil {
		return nil, fmt.Errorf("event registry is required")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}

	// Validate the whole batch before opening a transaction.
	validated := make([]event.Event, len(events))
	for i, evt := range events {
		v, err := s.eventRegistry.ValidateForAppend(evt)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if v.OrderID != orderID {
			return nil, fmt.Errorf("event %d: order id mismatch", i)
		}
		validated[i] = v
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO order_seq (order_id, next_seq) VALUES (?, 1)",
		orderID,
	); err != nil {
		return nil, fmt.Errorf("init order seq: %w", err)
	}

	var baseSeq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT next_seq FROM order_seq WHERE order_id = ?",
		orderID,
	).Scan(&baseSeq); err != nil {
		return nil, fmt.Errorf("get order seq: %w", err)
	}

	appendedAt := time.Now().UTC()
	stored := make([]event.Event, len(validated))
	for i, evt := range validated {
		evt.Seq = uint64(baseSeq) + uint64(i)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (
			    order_id, seq, event_id, location_id, kind, origin_device_id,
			    client_timestamp, idempotency_key, payload_json, appended_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			evt.OrderID,
			int64(evt.Seq),
			evt.EventID,
			evt.LocationID,
			string(evt.Kind),
			evt.OriginDeviceID,
			toMillis(evt.ClientTimestamp),
			evt.IdempotencyKey(),
			evt.PayloadJSON,
			toMillis(appendedAt),
		); err != nil {
			if isConstraintError(err) {
				existing, lookupErr := s.getEventByIdempotencyKeyTx(ctx, tx, evt.IdempotencyKey())
				if lookupErr == nil {
					return nil, fmt.Errorf("event %d: duplicate idempotency key at seq %d", i, existing.Seq)
				}
			}
			return nil, fmt.Errorf("append event %d: %w", i, err)
		}
		stored[i] = evt
	}

	nextSeq := baseSeq + int64(len(validated))
	if _, err := tx.ExecContext(ctx,
		"UPDATE order_seq SET next_seq = ? WHERE order_id = ?",
		nextSeq, orderID,
	); err != nil {
		return nil, fmt.Errorf("update order seq: %w", err)
	}

	if err := upsertSnapshotTx(ctx, tx, snap); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return stored, nil
}

// PutEvent stores an already-sequenced event verbatim, keeping whatever
// sequence the authority assigned. Used by device replicas mirroring the
// log locally; re-inserting a known (order, seq) is a no-op.
func (s *Store) PutEvent(ctx context.Context, evt event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	evt = evt.Normalize()
	if evt.OrderID == "" || evt.EventID == "" {
		return fmt.Errorf("order id and event id are required")
	}
	if !evt.Sequenced() {
		return fmt.Errorf("event %s has no sequence", evt.EventID)
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO events
			(order_id, seq, event_id, location_id, kind, origin_device_id, client_timestamp, idempotency_key, payload_json, appended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.OrderID, int64(evt.Seq), evt.EventID, evt.LocationID, string(evt.Kind),
		evt.OriginDeviceID, toMillis(evt.ClientTimestamp), evt.IdempotencyKey(),
		evt.PayloadJSON, toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put event %s seq %d: %w", evt.EventID, evt.Seq, err)
	}
	return nil
}

// GetEventByIdempotencyKey retrieves an accepted event by its idempotency key.
func (s *Store) GetEventByIdempotencyKey(ctx context.Context, key string) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return event.Event{}, fmt.Errorf("idempotency key is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		eventSelectColumns+" FROM events WHERE idempotency_key = ?",
		key,
	)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, storage.ErrNotFound
	}
	if err != nil {
		return event.Event{}, fmt.Errorf("get event by idempotency key: %w", err)
	}
	return evt, nil
}

func (s *Store) getEventByIdempotencyKeyTx(ctx context.Context, tx *sql.Tx, key string) (event.Event, error) {
	row := tx.QueryRowContext(ctx,
		eventSelectColumns+" FROM events WHERE idempotency_key = ?",
		key,
	)
	return scanEvent(row)
}

// ListEvents returns events for an order ordered by sequence ascending.
func (s *Store) ListEvents(ctx context.Context, orderID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		eventSelectColumns+" FROM events WHERE order_id = ? AND seq > ? ORDER BY seq ASC LIMIT ?",
		orderID, int64(afterSeq), int64(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// GetLatestSeq returns the latest assigned sequence number for an order.
func (s *Store) GetLatestSeq(ctx context.Context, orderID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return 0, fmt.Errorf("order id is required")
	}

	var next sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT next_seq FROM order_seq WHERE order_id = ?",
		orderID,
	).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get latest seq: %w", err)
	}
	if !next.Valid || next.Int64 <= 1 {
		return 0, nil
	}
	return uint64(next.Int64 - 1), nil
}

const eventSelectColumns = `SELECT order_id, seq, event_id, location_id, kind, origin_device_id, client_timestamp, payload_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		evt             event.Event
		seq             int64
		kind            string
		clientTimestamp int64
	)
	if err := row.Scan(
		&evt.OrderID,
		&seq,
		&evt.EventID,
		&evt.LocationID,
		&kind,
		&evt.OriginDeviceID,
		&clientTimestamp,
		&evt.PayloadJSON,
	); err != nil {
		return event.Event{}, err
	}
	evt.Seq = uint64(seq)
	evt.Kind = event.Kind(kind)
	if clientTimestamp > 0 {
		evt.ClientTimestamp = fromMillis(clientTimestamp)
	}
	return evt, nil
}
