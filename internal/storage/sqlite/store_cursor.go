package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// GetCursor returns the device's applied-sequence watermark for an order.
// A device that has never synced the order reports zero.
func (s *Store) GetCursor(ctx context.Context, orderID string) (uint64, error) {
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

	var applied int64
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT applied_seq FROM sync_cursors WHERE order_id = ?",
		orderID,
	).Scan(&applied)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get cursor: %w", err)
	}
	return uint64(applied), nil
}

// SaveCursor upserts the watermark for an order.
func (s *Store) SaveCursor(ctx context.Context, orderID string, seq uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("order id is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO sync_cursors (order_id, applied_seq, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (order_id) DO UPDATE SET
		     applied_seq = excluded.applied_seq,
		     updated_at = excluded.updated_at`,
		orderID,
		int64(seq),
		toMillis(time.Now().UTC()),
	); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

// ListCursors returns every tracked order and its watermark.
func (s *Store) ListCursors(ctx context.Context) (map[string]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT order_id, applied_seq FROM sync_cursors ORDER BY order_id",
	)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	cursors := make(map[string]uint64)
	for rows.Next() {
		var orderID string
		var applied int64
		if err := rows.Scan(&orderID, &applied); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		cursors[orderID] = uint64(applied)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cursors: %w", err)
	}
	return cursors, nil
}
