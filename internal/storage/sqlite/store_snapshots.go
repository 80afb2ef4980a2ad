package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/projection"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/storage"
)

const snapshotUpsertSQL = `
INSERT INTO snapshots (
    order_id, location_id, status, server_name, table_label, customer_label,
    guest_count, note, tab_open, item_count, subtotal_cents, discount_cents,
    tax_cents, tip_cents, paid_cents, last_seq, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (order_id) DO UPDATE SET
    location_id = excluded.location_id,
    status = excluded.status,
    server_name = excluded.server_name,
    table_label = excluded.table_label,
    customer_label = excluded.customer_label,
    guest_count = excluded.guest_count,
    note = excluded.note,
    tab_open = excluded.tab_open,
    item_count = excluded.item_count,
    subtotal_cents = excluded.subtotal_cents,
    discount_cents = excluded.discount_cents,
    tax_cents = excluded.tax_cents,
    tip_cents = excluded.tip_cents,
    paid_cents = excluded.paid_cents,
    last_seq = excluded.last_seq,
    updated_at = excluded.updated_at`

func upsertSnapshotTx(ctx context.Context, tx *sql.Tx, snap projection.Snapshot) error {
	if strings.TrimSpace(snap.OrderID) == "" {
		return fmt.Errorf("snapshot order id is required")
	}
	tabOpen := 0
	if snap.TabOpen {
		tabOpen = 1
	}
	if _, err := tx.ExecContext(ctx, snapshotUpsertSQL,
		snap.OrderID,
		snap.LocationID,
		snap.Status,
		snap.ServerName,
		snap.TableLabel,
		snap.CustomerLabel,
		snap.GuestCount,
		snap.Note,
		tabOpen,
		snap.ItemCount,
		snap.SubtotalCents,
		snap.DiscountCents,
		snap.TaxCents,
		snap.TipCents,
		snap.PaidCents,
		int64(snap.LastSeq),
		toMillis(snap.UpdatedAt),
	); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// SaveSnapshot upserts a snapshot outside the append path. Used by
// rebuilds after a divergence alarm.
func (s *Store) SaveSnapshot(ctx context.Context, snap projection.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := upsertSnapshotTx(ctx, tx, snap); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const snapshotSelectColumns = `SELECT order_id, location_id, status, server_name, table_label, customer_label,
    guest_count, note, tab_open, item_count, subtotal_cents, discount_cents,
    tax_cents, tip_cents, paid_cents, last_seq, updated_at`

// GetSnapshot returns the snapshot for an order.
// Returns storage.ErrNotFound if no snapshot exists.
func (s *Store) GetSnapshot(ctx context.Context, orderID string) (projection.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return projection.Snapshot{}, err
	}
	if s == nil || s.sqlDB == nil {
		return projection.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return projection.Snapshot{}, fmt.Errorf("order id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		snapshotSelectColumns+" FROM snapshots WHERE order_id = ?",
		orderID,
	)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return projection.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return projection.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshotsByLocation returns snapshots for a location, most recently
// updated first.
func (s *Store) ListSnapshotsByLocation(ctx context.Context, locationID string, limit int) ([]projection.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return nil, fmt.Errorf("location id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		snapshotSelectColumns+" FROM snapshots WHERE location_id = ? ORDER BY updated_at DESC LIMIT ?",
		locationID, int64(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []projection.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

func scanSnapshot(row rowScanner) (projection.Snapshot, error) {
	var (
		snap      projection.Snapshot
		tabOpen   int
		lastSeq   int64
		updatedAt int64
	)
	if err := row.Scan(
		&snap.OrderID,
		&snap.LocationID,
		&snap.Status,
		&snap.ServerName,
		&snap.TableLabel,
		&snap.CustomerLabel,
		&snap.GuestCount,
		&snap.Note,
		&tabOpen,
		&snap.ItemCount,
		&snap.SubtotalCents,
		&snap.DiscountCents,
		&snap.TaxCents,
		&snap.TipCents,
		&snap.PaidCents,
		&lastSeq,
		&updatedAt,
	); err != nil {
		return projection.Snapshot{}, err
	}
	snap.TabOpen = tabOpen != 0
	snap.LastSeq = uint64(lastSeq)
	snap.UpdatedAt = fromMillis(updatedAt)
	return snap, nil
}
