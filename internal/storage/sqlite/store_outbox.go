package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/storage"
)

// EnqueueOutbox stores a locally authored event as PENDING.
func (s *Store) EnqueueOutbox(ctx context.Context, entry storage.OutboxEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	evt := entry.Event.Normalize()
	if evt.EventID == "" {
		return fmt.Errorf("event id is required")
	}
	if evt.OrderID == "" {
		return fmt.Errorf("order id is required")
	}
	status := entry.Status
	if status == "" {
		status = storage.OutboxPending
	}
	now := time.Now().UTC()
	enqueuedAt := entry.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = now
	}

	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO device_outbox (
		    event_id, order_id, location_id, kind, origin_device_id,
		    client_timestamp, payload_json, status, server_seq, attempt_count,
		    last_error, enqueued_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		evt.EventID,
		evt.OrderID,
		evt.LocationID,
		string(evt.Kind),
		evt.OriginDeviceID,
		toMillis(evt.ClientTimestamp),
		evt.PayloadJSON,
		string(status),
		entry.AttemptCount,
		entry.LastError,
		toMillis(enqueuedAt),
		toMillis(now),
	); err != nil {
		if isConstraintError(err) {
			// The same local event enqueued twice is a no-op.
			return nil
		}
		return fmt.Errorf("enqueue outbox: %w", err)
	}
	return nil
}

const outboxSelectColumns = `SELECT event_id, order_id, location_id, kind, origin_device_id,
    client_timestamp, payload_json, status, server_seq, attempt_count,
    last_error, enqueued_at, updated_at`

// ListPendingOutbox returns PENDING entries in enqueue order.
func (s *Store) ListPendingOutbox(ctx context.Context, limit int) ([]storage.OutboxEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		outboxSelectColumns+" FROM device_outbox WHERE status = ? ORDER BY rowid ASC LIMIT ?",
		string(storage.OutboxPending), int64(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", err)
	}
	defer rows.Close()

	var entries []storage.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

// ListUnconfirmedOutbox returns one order's PENDING and UPLOADED entries
// in enqueue order.
func (s *Store) ListUnconfirmedOutbox(ctx context.Context, orderID string) ([]storage.OutboxEntry, error) {
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

	rows, err := s.sqlDB.QueryContext(ctx,
		outboxSelectColumns+" FROM device_outbox WHERE order_id = ? AND status IN (?, ?) ORDER BY rowid ASC",
		orderID, string(storage.OutboxPending), string(storage.OutboxUploaded),
	)
	if err != nil {
		return nil, fmt.Errorf("list unconfirmed outbox: %w", err)
	}
	defer rows.Close()

	var entries []storage.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

// MarkOutboxUploaded flips entries to UPLOADED and counts the attempt.
func (s *Store) MarkOutboxUploaded(ctx context.Context, eventIDs []string) error {
	return s.updateOutboxStatus(ctx, eventIDs, storage.OutboxUploaded, "")
}

// MarkOutboxAcknowledged records the server sequence for one entry.
func (s *Store) MarkOutboxAcknowledged(ctx context.Context, eventID string, seq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`UPDATE device_outbox SET status = ?, server_seq = ?, last_error = '', updated_at = ? WHERE event_id = ?`,
		string(storage.OutboxAcknowledged),
		int64(seq),
		toMillis(time.Now().UTC()),
		eventID,
	); err != nil {
		return fmt.Errorf("mark outbox acknowledged: %w", err)
	}
	return nil
}

// MarkOutboxExpired terminally rejects one entry with a reason.
func (s *Store) MarkOutboxExpired(ctx context.Context, eventID, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`UPDATE device_outbox SET status = ?, last_error = ?, updated_at = ? WHERE event_id = ?`,
		string(storage.OutboxExpired),
		reason,
		toMillis(time.Now().UTC()),
		eventID,
	); err != nil {
		return fmt.Errorf("mark outbox expired: %w", err)
	}
	return nil
}

// RequeueOutbox returns UPLOADED entries to PENDING after a failed batch
// so the next upload cycle retries them.
func (s *Store) RequeueOutbox(ctx context.Context, eventIDs []string, lastError string) error {
	return s.updateOutboxStatus(ctx, eventIDs, storage.OutboxPending, lastError)
}

func (s *Store) updateOutboxStatus(ctx context.Context, eventIDs []string, status storage.OutboxStatus, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(eventIDs) == 0 {
		return nil
	}

	now := toMillis(time.Now().UTC())
	args := make([]any, 0, len(eventIDs)+3)
	args = append(args, string(status), lastError, now)
	placeholders := make([]string, len(eventIDs))
	for i, id := range eventIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(
		"UPDATE device_outbox SET status = ?, last_error = ?, attempt_count = attempt_count + 1, updated_at = ? WHERE event_id IN (%s)",
		strings.Join(placeholders, ", "),
	)
	if _, err := s.sqlDB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update outbox status: %w", err)
	}
	return nil
}

// DeletePendingByKind removes unsent entries of one kind for one order.
// The agent only calls this for coalescible kinds; financial and quantity
// mutations are never coalesced.
func (s *Store) DeletePendingByKind(ctx context.Context, orderID string, kind event.Kind) (int, error) {
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

	result, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM device_outbox WHERE order_id = ? AND kind = ? AND status = ?",
		orderID, string(kind), string(storage.OutboxPending),
	)
	if err != nil {
		return 0, fmt.Errorf("delete pending outbox: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted outbox rows: %w", err)
	}
	return int(affected), nil
}

// PruneAcknowledgedOutbox garbage-collects ACKNOWLEDGED entries older
// than the retention cutoff.
func (s *Store) PruneAcknowledgedOutbox(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM device_outbox WHERE status = ? AND updated_at < ?",
		string(storage.OutboxAcknowledged), toMillis(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned outbox rows: %w", err)
	}
	return int(affected), nil
}

func scanOutboxEntry(row rowScanner) (storage.OutboxEntry, error) {
	var (
		entry           storage.OutboxEntry
		kind            string
		clientTimestamp int64
		status          string
		serverSeq       int64
		enqueuedAt      int64
		updatedAt       int64
	)
	if err := row.Scan(
		&entry.Event.EventID,
		&entry.Event.OrderID,
		&entry.Event.LocationID,
		&kind,
		&entry.Event.OriginDeviceID,
		&clientTimestamp,
		&entry.Event.PayloadJSON,
		&status,
		&serverSeq,
		&entry.AttemptCount,
		&entry.LastError,
		&enqueuedAt,
		&updatedAt,
	); err != nil {
		return storage.OutboxEntry{}, err
	}
	entry.Event.Kind = event.Kind(kind)
	if clientTimestamp > 0 {
		entry.Event.ClientTimestamp = fromMillis(clientTimestamp)
	}
	entry.Event.Seq = uint64(serverSeq)
	entry.Status = storage.OutboxStatus(status)
	entry.EnqueuedAt = fromMillis(enqueuedAt)
	entry.UpdatedAt = fromMillis(updatedAt)
	return entry, nil
}
