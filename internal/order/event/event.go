package event

import (
	"strings"
	"time"
)

// Kind identifies the kind of an order event.
type Kind string

// Order lifecycle events.
const (
	// KindOrderCreated records the creation of an order.
	KindOrderCreated Kind = "ORDER_CREATED"
	// KindOrderSent records the order being fired to the kitchen.
	KindOrderSent Kind = "ORDER_SENT"
	// KindOrderClosed records the order being closed.
	KindOrderClosed Kind = "ORDER_CLOSED"
	// KindOrderReopened records a closed order being reopened.
	KindOrderReopened Kind = "ORDER_REOPENED"
	// KindOrderMetadataUpdated records changes to display metadata.
	KindOrderMetadataUpdated Kind = "ORDER_METADATA_UPDATED"
)

// Line item events.
const (
	// KindItemAdded records a line item added to the order.
	KindItemAdded Kind = "ITEM_ADDED"
	// KindItemRemoved records a line item removed from the order.
	KindItemRemoved Kind = "ITEM_REMOVED"
	// KindItemUpdated records changes to an existing line item.
	KindItemUpdated Kind = "ITEM_UPDATED"
)

// Payment events.
const (
	// KindPaymentApplied records a payment against the order.
	KindPaymentApplied Kind = "PAYMENT_APPLIED"
	// KindPaymentVoided records an applied payment being voided.
	KindPaymentVoided Kind = "PAYMENT_VOIDED"
	// KindCompVoidApplied records a comp or void adjustment on an item.
	KindCompVoidApplied Kind = "COMP_VOID_APPLIED"
)

// Discount events.
const (
	// KindDiscountApplied records a discount applied to the order.
	KindDiscountApplied Kind = "DISCOUNT_APPLIED"
	// KindDiscountRemoved records a discount removed from the order.
	KindDiscountRemoved Kind = "DISCOUNT_REMOVED"
)

// Tab and guest events.
const (
	// KindTabOpened records a bar tab being opened on the order.
	KindTabOpened Kind = "TAB_OPENED"
	// KindTabClosed records a tab being closed, optionally closing the order.
	KindTabClosed Kind = "TAB_CLOSED"
	// KindGuestCountChanged records a change to the guest count.
	KindGuestCountChanged Kind = "GUEST_COUNT_CHANGED"
	// KindNoteChanged records a change to the order note.
	KindNoteChanged Kind = "NOTE_CHANGED"
)

// Kinds returns every defined event kind. The slice is a fresh copy on
// each call so callers can reorder it freely.
func Kinds() []Kind {
	return []Kind{
		KindOrderCreated,
		KindItemAdded,
		KindItemRemoved,
		KindItemUpdated,
		KindOrderSent,
		KindPaymentApplied,
		KindPaymentVoided,
		KindOrderClosed,
		KindOrderReopened,
		KindDiscountApplied,
		KindDiscountRemoved,
		KindTabOpened,
		KindTabClosed,
		KindGuestCountChanged,
		KindNoteChanged,
		KindOrderMetadataUpdated,
		KindCompVoidApplied,
	}
}

// IsValid reports whether the kind is one of the defined event kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindOrderCreated, KindItemAdded, KindItemRemoved, KindItemUpdated,
		KindOrderSent, KindPaymentApplied, KindPaymentVoided, KindOrderClosed,
		KindOrderReopened, KindDiscountApplied, KindDiscountRemoved,
		KindTabOpened, KindTabClosed, KindGuestCountChanged, KindNoteChanged,
		KindOrderMetadataUpdated, KindCompVoidApplied:
		return true
	}
	return false
}

// Event represents an immutable fact about one order.
type Event struct {
	// EventID is the client-generated identity, unique per origin device.
	EventID string
	// OrderID is the order this event belongs to.
	OrderID string
	// LocationID scopes the event to a physical location for fan-out.
	LocationID string
	// Seq is the server sequence within the order (starts at 1).
	// Assigned by storage on append; zero until persisted.
	Seq uint64
	// Kind identifies the kind of event.
	Kind Kind
	// OriginDeviceID is the device that authored the event.
	OriginDeviceID string
	// ClientTimestamp is when the device created the event. Advisory only;
	// never used for ordering.
	ClientTimestamp time.Time
	// PayloadJSON holds kind-specific data as JSON.
	PayloadJSON []byte
}

// IdempotencyKey derives the key used to reject duplicate submissions.
func (e Event) IdempotencyKey() string {
	return e.OrderID + "/" + e.EventID
}

// Sequenced reports whether the event has been assigned a server sequence.
func (e Event) Sequenced() bool {
	return e.Seq > 0
}

// Normalize trims identity fields and coerces the client timestamp to UTC
// millisecond precision, matching what storage persists.
func (e Event) Normalize() Event {
	e.EventID = strings.TrimSpace(e.EventID)
	e.OrderID = strings.TrimSpace(e.OrderID)
	e.LocationID = strings.TrimSpace(e.LocationID)
	e.OriginDeviceID = strings.TrimSpace(e.OriginDeviceID)
	if !e.ClientTimestamp.IsZero() {
		e.ClientTimestamp = e.ClientTimestamp.UTC().Truncate(time.Millisecond)
	}
	return e
}
