package event

// Modifier captures one modifier attached to a line item.
type Modifier struct {
	ModifierID string `json:"modifier_id"`
	Name       string `json:"name,omitempty"`
	PriceCents int64  `json:"price_cents,omitempty"`
}

// CreatePayload captures the payload for ORDER_CREATED events.
// TaxRateBasisPoints is snapshotted at creation so replays are not
// affected by later tax-table changes.
type CreatePayload struct {
	ServerName         string `json:"server_name,omitempty"`
	TableLabel         string `json:"table_label,omitempty"`
	GuestCount         int    `json:"guest_count,omitempty"`
	OrderType          string `json:"order_type,omitempty"`
	TaxRateBasisPoints int64  `json:"tax_rate_basis_points,omitempty"`
}

// ItemAddedPayload captures the payload for ITEM_ADDED events.
type ItemAddedPayload struct {
	LineItemID     string     `json:"line_item_id"`
	MenuItemID     string     `json:"menu_item_id"`
	Name           string     `json:"name,omitempty"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	Modifiers      []Modifier `json:"modifiers,omitempty"`
	SeatNumber     int        `json:"seat_number,omitempty"`
	CourseNumber   int        `json:"course_number,omitempty"`
}

// ItemRemovedPayload captures the payload for ITEM_REMOVED events.
type ItemRemovedPayload struct {
	LineItemID string `json:"line_item_id"`
	Reason     string `json:"reason,omitempty"`
}

// ItemUpdatedPayload captures the payload for ITEM_UPDATED events.
// Nil fields leave the current value untouched.
type ItemUpdatedPayload struct {
	LineItemID   string      `json:"line_item_id"`
	Quantity     *int        `json:"quantity,omitempty"`
	SeatNumber   *int        `json:"seat_number,omitempty"`
	CourseNumber *int        `json:"course_number,omitempty"`
	Modifiers    *[]Modifier `json:"modifiers,omitempty"`
}

// SentPayload captures the payload for ORDER_SENT events.
type SentPayload struct {
	CourseNumber int `json:"course_number,omitempty"`
}

// PaymentAppliedPayload captures the payload for PAYMENT_APPLIED events.
type PaymentAppliedPayload struct {
	PaymentID   string `json:"payment_id"`
	AmountCents int64  `json:"amount_cents"`
	TipCents    int64  `json:"tip_cents,omitempty"`
	Method      string `json:"method,omitempty"`
}

// PaymentVoidedPayload captures the payload for PAYMENT_VOIDED events.
type PaymentVoidedPayload struct {
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason,omitempty"`
}

// ClosedPayload captures the payload for ORDER_CLOSED events.
type ClosedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ReopenedPayload captures the payload for ORDER_REOPENED events.
type ReopenedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// DiscountAppliedPayload captures the payload for DISCOUNT_APPLIED events.
// Either AmountCents or PercentBasisPoints is set, never both.
type DiscountAppliedPayload struct {
	DiscountID         string `json:"discount_id"`
	Name               string `json:"name,omitempty"`
	AmountCents        int64  `json:"amount_cents,omitempty"`
	PercentBasisPoints int64  `json:"percent_basis_points,omitempty"`
	LineItemID         string `json:"line_item_id,omitempty"`
}

// DiscountRemovedPayload captures the payload for DISCOUNT_REMOVED events.
type DiscountRemovedPayload struct {
	DiscountID string `json:"discount_id"`
}

// TabOpenedPayload captures the payload for TAB_OPENED events.
type TabOpenedPayload struct {
	TabName      string `json:"tab_name,omitempty"`
	PreauthCents int64  `json:"preauth_cents,omitempty"`
}

// TabClosedPayload captures the payload for TAB_CLOSED events.
// ClosesOrder indicates the tab closure also closes the order.
type TabClosedPayload struct {
	ClosesOrder bool `json:"closes_order,omitempty"`
}

// GuestCountChangedPayload captures the payload for GUEST_COUNT_CHANGED events.
type GuestCountChangedPayload struct {
	GuestCount int `json:"guest_count"`
}

// NoteChangedPayload captures the payload for NOTE_CHANGED events.
type NoteChangedPayload struct {
	Note string `json:"note"`
}

// MetadataUpdatedPayload captures the payload for ORDER_METADATA_UPDATED events.
// Fields carries display-only label updates keyed by field name.
type MetadataUpdatedPayload struct {
	Fields map[string]string `json:"fields"`
}

// CompVoidAppliedPayload captures the payload for COMP_VOID_APPLIED events.
type CompVoidAppliedPayload struct {
	LineItemID  string `json:"line_item_id"`
	Mode        string `json:"mode"`
	Reason      string `json:"reason,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
}

// Comp/void modes.
const (
	CompVoidModeComp = "comp"
	CompVoidModeVoid = "void"
)
