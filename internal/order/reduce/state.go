package reduce

import "github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"

// Status identifies the coarse lifecycle stage of an order.
type Status string

const (
	// StatusOpen is an order accepting mutations.
	StatusOpen Status = "OPEN"
	// StatusSent is an open order whose items have been fired to the kitchen.
	StatusSent Status = "SENT"
	// StatusClosed is a settled order; most mutations are rejected.
	StatusClosed Status = "CLOSED"
	// StatusReopened is a previously closed order reopened for correction.
	// It behaves as open for guard purposes.
	StatusReopened Status = "REOPENED"
)

// KitchenStatus tracks whether a line item has been fired.
type KitchenStatus string

const (
	// KitchenStaged means the item has not been sent to the kitchen.
	KitchenStaged KitchenStatus = "STAGED"
	// KitchenSent means the item has been fired.
	KitchenSent KitchenStatus = "SENT"
)

// LineItem is one ordered item with its modifiers and seat/course routing.
type LineItem struct {
	LineItemID     string
	MenuItemID     string
	Name           string
	Quantity       int
	UnitPriceCents int64
	Modifiers      []event.Modifier
	SeatNumber     int
	CourseNumber   int
	KitchenStatus  KitchenStatus
	// CompVoidMode is empty, "comp", or "void".
	CompVoidMode string
	// CompCents is the comped amount subtracted from the item total when
	// CompVoidMode is "comp".
	CompCents int64
}

// Payment is one tender applied to the order.
type Payment struct {
	PaymentID   string
	AmountCents int64
	TipCents    int64
	Method      string
	Voided      bool
}

// Discount is one discount applied to the order or a line item.
type Discount struct {
	DiscountID         string
	Name               string
	AmountCents        int64
	PercentBasisPoints int64
	LineItemID         string
}

// Totals is the derived money summary of an order.
type Totals struct {
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	TipCents      int64
	PaidCents     int64
}

// OrderState is the reduced representation of one order. It is owned by
// the reducer; no other component mutates it.
type OrderState struct {
	Created            bool
	Status             Status
	ServerName         string
	TableLabel         string
	OrderType          string
	GuestCount         int
	Note               string
	TabOpen            bool
	TabName            string
	TaxRateBasisPoints int64
	Items              []LineItem
	Payments           []Payment
	Discounts          []Discount
	Labels             map[string]string
	// LastSeq is the highest server sequence folded into this state.
	LastSeq uint64
}

// Empty returns the initial state every replay starts from.
func Empty() OrderState {
	return OrderState{}
}

// Closed reports whether the order is in the closed guard state.
func (s OrderState) Closed() bool {
	return s.Status == StatusClosed
}

// Item returns the line item with the given id and whether it exists.
func (s OrderState) Item(lineItemID string) (LineItem, bool) {
	for _, item := range s.Items {
		if item.LineItemID == lineItemID {
			return item, true
		}
	}
	return LineItem{}, false
}

// ItemTotalCents returns the item's extended price including modifiers,
// after comp/void adjustments.
func (li LineItem) ItemTotalCents() int64 {
	if li.CompVoidMode == event.CompVoidModeVoid {
		return 0
	}
	unit := li.UnitPriceCents
	for _, mod := range li.Modifiers {
		unit += mod.PriceCents
	}
	total := unit * int64(li.Quantity)
	if li.CompVoidMode == event.CompVoidModeComp {
		total -= li.CompCents
		if total < 0 {
			total = 0
		}
	}
	return total
}

// ComputeTotals derives the money summary from current state.
func (s OrderState) ComputeTotals() Totals {
	var totals Totals
	for _, item := range s.Items {
		totals.SubtotalCents += item.ItemTotalCents()
	}
	for _, disc := range s.Discounts {
		totals.DiscountCents += discountCents(s, disc)
	}
	if totals.DiscountCents > totals.SubtotalCents {
		totals.DiscountCents = totals.SubtotalCents
	}
	taxable := totals.SubtotalCents - totals.DiscountCents
	totals.TaxCents = taxable * s.TaxRateBasisPoints / 10000
	for _, pay := range s.Payments {
		if pay.Voided {
			continue
		}
		totals.PaidCents += pay.AmountCents
		totals.TipCents += pay.TipCents
	}
	return totals
}

func discountCents(s OrderState, disc Discount) int64 {
	if disc.AmountCents > 0 {
		return disc.AmountCents
	}
	if disc.PercentBasisPoints <= 0 {
		return 0
	}
	base := int64(0)
	if disc.LineItemID != "" {
		item, ok := s.Item(disc.LineItemID)
		if !ok {
			return 0
		}
		base = item.ItemTotalCents()
	} else {
		for _, item := range s.Items {
			base += item.ItemTotalCents()
		}
	}
	return base * disc.PercentBasisPoints / 10000
}
