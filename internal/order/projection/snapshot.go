// Package projection builds flattened order snapshots from reduced
// state. Snapshots are derived artifacts optimized for listing and
// search; they are rebuilt on every event application and never
// hand-edited. Losing one is a performance incident, not a correctness
// incident.
package projection

import (
	"fmt"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/reduce"
	apperrors "github.com/GetwithitMan/gwi-pos-sub015/internal/platform/errors"
)

// Snapshot is the denormalized read model of one order.
type Snapshot struct {
	OrderID       string    `json:"order_id"`
	LocationID    string    `json:"location_id"`
	Status        string    `json:"status"`
	ServerName    string    `json:"server_name,omitempty"`
	TableLabel    string    `json:"table_label,omitempty"`
	CustomerLabel string    `json:"customer_label,omitempty"`
	GuestCount    int       `json:"guest_count,omitempty"`
	Note          string    `json:"note,omitempty"`
	TabOpen       bool      `json:"tab_open,omitempty"`
	ItemCount     int       `json:"item_count"`
	SubtotalCents int64     `json:"subtotal_cents"`
	DiscountCents int64     `json:"discount_cents"`
	TaxCents      int64     `json:"tax_cents"`
	TipCents      int64     `json:"tip_cents"`
	PaidCents     int64     `json:"paid_cents"`
	LastSeq       uint64    `json:"last_seq"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Build projects reduced state into a snapshot.
func Build(orderID, locationID string, state reduce.OrderState, updatedAt time.Time) Snapshot {
	totals := state.ComputeTotals()
	itemCount := 0
	for _, item := range state.Items {
		if item.CompVoidMode != event.CompVoidModeVoid {
			itemCount += item.Quantity
		}
	}
	return Snapshot{
		OrderID:       orderID,
		LocationID:    locationID,
		Status:        string(state.Status),
		ServerName:    state.ServerName,
		TableLabel:    state.TableLabel,
		CustomerLabel: state.Labels["customer_label"],
		GuestCount:    state.GuestCount,
		Note:          state.Note,
		TabOpen:       state.TabOpen,
		ItemCount:     itemCount,
		SubtotalCents: totals.SubtotalCents,
		DiscountCents: totals.DiscountCents,
		TaxCents:      totals.TaxCents,
		TipCents:      totals.TipCents,
		PaidCents:     totals.PaidCents,
		LastSeq:       state.LastSeq,
		UpdatedAt:     updatedAt.UTC().Truncate(time.Millisecond),
	}
}

// Verify replays the full event list for an order and compares the
// result against a stored snapshot. A mismatch is an integrity alarm:
// the snapshot must be rebuilt from the log, never patched in place.
func Verify(stored Snapshot, events []event.Event) error {
	state, err := reduce.Replay(events)
	if err != nil {
		return fmt.Errorf("verify snapshot %s: %w", stored.OrderID, err)
	}
	rebuilt := Build(stored.OrderID, stored.LocationID, state, stored.UpdatedAt)
	if rebuilt != stored {
		return apperrors.WithMetadata(apperrors.CodeSnapshotDiverged, "snapshot diverges from replay", map[string]string{
			"order_id":     stored.OrderID,
			"stored_seq":   fmt.Sprintf("%d", stored.LastSeq),
			"replayed_seq": fmt.Sprintf("%d", state.LastSeq),
		})
	}
	return nil
}
