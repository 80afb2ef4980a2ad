package reduce

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	apperrors "github.com/GetwithitMan/gwi-pos-sub015/internal/platform/errors"
)

// foldFunc applies one event kind to order state.
type foldFunc func(OrderState, event.Event) (OrderState, error)

// folds is the dispatch table covering every event kind. Adding a kind
// means adding exactly one entry and its fold function.
var folds = map[event.Kind]foldFunc{
	event.KindOrderCreated:         foldOrderCreated,
	event.KindItemAdded:            foldItemAdded,
	event.KindItemRemoved:          foldItemRemoved,
	event.KindItemUpdated:          foldItemUpdated,
	event.KindOrderSent:            foldOrderSent,
	event.KindPaymentApplied:       foldPaymentApplied,
	event.KindPaymentVoided:        foldPaymentVoided,
	event.KindOrderClosed:          foldOrderClosed,
	event.KindOrderReopened:        foldOrderReopened,
	event.KindDiscountApplied:      foldDiscountApplied,
	event.KindDiscountRemoved:      foldDiscountRemoved,
	event.KindTabOpened:            foldTabOpened,
	event.KindTabClosed:            foldTabClosed,
	event.KindGuestCountChanged:    foldGuestCountChanged,
	event.KindNoteChanged:          foldNoteChanged,
	event.KindOrderMetadataUpdated: foldMetadataUpdated,
	event.KindCompVoidApplied:      foldCompVoidApplied,
}

// Apply folds one event into order state. It is deterministic and
// side-effect free; rejections are typed errors, never panics.
func Apply(state OrderState, evt event.Event) (OrderState, error) {
	fold, ok := folds[evt.Kind]
	if !ok {
		return state, apperrors.WithMetadata(apperrors.CodeEventKindUnknown, "no fold for event kind", map[string]string{
			"kind": string(evt.Kind),
		})
	}
	next, err := fold(state, evt)
	if err != nil {
		return state, err
	}
	if evt.Seq > next.LastSeq {
		next.LastSeq = evt.Seq
	}
	return next, nil
}

// Replay folds a sequence of events from the empty state. Events must be
// in ascending server sequence order; the fold stops at the first error.
func Replay(events []event.Event) (OrderState, error) {
	state := Empty()
	for _, evt := range events {
		next, err := Apply(state, evt)
		if err != nil {
			return state, fmt.Errorf("replay seq %d: %w", evt.Seq, err)
		}
		state = next
	}
	return state, nil
}

func decodePayload[T any](evt event.Event, into *T) error {
	if len(evt.PayloadJSON) == 0 {
		return nil
	}
	if err := json.Unmarshal(evt.PayloadJSON, into); err != nil {
		return apperrors.Wrap(apperrors.CodeEventPayloadInvalid,
			fmt.Sprintf("decode %s payload", evt.Kind), err)
	}
	return nil
}

func foldOrderCreated(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.CreatePayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	state.Created = true
	state.Status = StatusOpen
	state.ServerName = strings.TrimSpace(payload.ServerName)
	state.TableLabel = strings.TrimSpace(payload.TableLabel)
	state.OrderType = strings.TrimSpace(payload.OrderType)
	state.GuestCount = payload.GuestCount
	state.TaxRateBasisPoints = payload.TaxRateBasisPoints
	return state, nil
}

func foldItemAdded(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.ItemAddedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	state.Items = append(cloneItems(state.Items), LineItem{
		LineItemID:     payload.LineItemID,
		MenuItemID:     payload.MenuItemID,
		Name:           payload.Name,
		Quantity:       payload.Quantity,
		UnitPriceCents: payload.UnitPriceCents,
		Modifiers:      payload.Modifiers,
		SeatNumber:     payload.SeatNumber,
		CourseNumber:   payload.CourseNumber,
		KitchenStatus:  KitchenStaged,
	})
	return state, nil
}

func foldItemRemoved(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.ItemRemovedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	items := cloneItems(state.Items)
	for i, item := range items {
		if item.LineItemID == payload.LineItemID {
			state.Items = append(items[:i], items[i+1:]...)
			return state, nil
		}
	}
	return state, apperrors.WithMetadata(apperrors.CodeItemNotFound, "line item no longer exists", map[string]string{
		"line_item_id": payload.LineItemID,
	})
}

func foldItemUpdated(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.ItemUpdatedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	items := cloneItems(state.Items)
	for i, item := range items {
		if item.LineItemID != payload.LineItemID {
			continue
		}
		if payload.Quantity != nil {
			item.Quantity = *payload.Quantity
		}
		if payload.SeatNumber != nil {
			item.SeatNumber = *payload.SeatNumber
		}
		if payload.CourseNumber != nil {
			item.CourseNumber = *payload.CourseNumber
		}
		if payload.Modifiers != nil {
			item.Modifiers = *payload.Modifiers
		}
		items[i] = item
		state.Items = items
		return state, nil
	}
	return state, apperrors.WithMetadata(apperrors.CodeItemNotFound, "line item no longer exists", map[string]string{
		"line_item_id": payload.LineItemID,
	})
}

func foldOrderSent(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.SentPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	items := cloneItems(state.Items)
	for i, item := range items {
		if payload.CourseNumber > 0 && item.CourseNumber != payload.CourseNumber {
			continue
		}
		items[i].KitchenStatus = KitchenSent
	}
	state.Items = items
	state.Status = StatusSent
	return state, nil
}

func foldPaymentApplied(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.PaymentAppliedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	state.Payments = append(clonePayments(state.Payments), Payment{
		PaymentID:   payload.PaymentID,
		AmountCents: payload.AmountCents,
		TipCents:    payload.TipCents,
		Method:      payload.Method,
	})
	return state, nil
}

func foldPaymentVoided(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.PaymentVoidedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	payments := clonePayments(state.Payments)
	for i, pay := range payments {
		if pay.PaymentID == payload.PaymentID && !pay.Voided {
			payments[i].Voided = true
			state.Payments = payments
			return state, nil
		}
	}
	return state, apperrors.WithMetadata(apperrors.CodePaymentNotFound, "payment not found or already voided", map[string]string{
		"payment_id": payload.PaymentID,
	})
}

func foldOrderClosed(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.ClosedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	state.Status = StatusClosed
	return state, nil
}

// foldOrderReopened flips a closed order back to an open-equivalent
// status. Voiding a payment does not reopen on its own; this event is
// the only path out of CLOSED.
func foldOrderReopened(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.ReopenedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	state.Status = StatusReopened
	return state, nil
}

func foldDiscountApplied(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.DiscountAppliedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	if payload.LineItemID != "" {
		if _, ok := state.Item(payload.LineItemID); !ok {
			return state, apperrors.WithMetadata(apperrors.CodeItemNotFound, "line item no longer exists", map[string]string{
				"line_item_id": payload.LineItemID,
			})
		}
	}
	state.Discounts = append(cloneDiscounts(state.Discounts), Discount{
		DiscountID:         payload.DiscountID,
		Name:               payload.Name,
		AmountCents:        payload.AmountCents,
		PercentBasisPoints: payload.PercentBasisPoints,
		LineItemID:         payload.LineItemID,
	})
	return state, nil
}

func foldDiscountRemoved(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.DiscountRemovedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	discounts := cloneDiscounts(state.Discounts)
	for i, disc := range discounts {
		if disc.DiscountID == payload.DiscountID {
			state.Discounts = append(discounts[:i], discounts[i+1:]...)
			return state, nil
		}
	}
	return state, apperrors.WithMetadata(apperrors.CodeDiscountNotFound, "discount not found", map[string]string{
		"discount_id": payload.DiscountID,
	})
}

func foldTabOpened(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.TabOpenedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	state.TabOpen = true
	state.TabName = strings.TrimSpace(payload.TabName)
	return state, nil
}

func foldTabClosed(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.TabClosedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	state.TabOpen = false
	if payload.ClosesOrder {
		state.Status = StatusClosed
	}
	return state, nil
}

func foldGuestCountChanged(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.GuestCountChangedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	state.GuestCount = payload.GuestCount
	return state, nil
}

func foldNoteChanged(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.NoteChangedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	state.Note = payload.Note
	return state, nil
}

func foldMetadataUpdated(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.MetadataUpdatedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	labels := make(map[string]string, len(state.Labels)+len(payload.Fields))
	for key, value := range state.Labels {
		labels[key] = value
	}
	for key, value := range payload.Fields {
		switch key {
		case "server_name":
			state.ServerName = strings.TrimSpace(value)
		case "table_label":
			state.TableLabel = strings.TrimSpace(value)
		default:
			labels[key] = strings.TrimSpace(value)
		}
	}
	if len(labels) > 0 {
		state.Labels = labels
	}
	return state, nil
}

func foldCompVoidApplied(state OrderState, evt event.Event) (OrderState, error) {
	var payload event.CompVoidAppliedPayload
	if err := decodePayload(evt, &payload); err != nil {
		return state, err
	}
	items := cloneItems(state.Items)
	for i, item := range items {
		if item.LineItemID != payload.LineItemID {
			continue
		}
		items[i].CompVoidMode = payload.Mode
		items[i].CompCents = payload.AmountCents
		state.Items = items
		return state, nil
	}
	return state, apperrors.WithMetadata(apperrors.CodeItemNotFound, "line item no longer exists", map[string]string{
		"line_item_id": payload.LineItemID,
	})
}

// Clone helpers keep Apply value-semantic: callers of Apply can hold the
// previous state without later folds mutating shared backing arrays.

func cloneItems(items []LineItem) []LineItem {
	if len(items) == 0 {
		return nil
	}
	cloned := make([]LineItem, len(items))
	copy(cloned, items)
	return cloned
}

func clonePayments(payments []Payment) []Payment {
	if len(payments) == 0 {
		return nil
	}
	cloned := make([]Payment, len(payments))
	copy(cloned, payments)
	return cloned
}

func cloneDiscounts(discounts []Discount) []Discount {
	if len(discounts) == 0 {
		return nil
	}
	cloned := make([]Discount, len(discounts))
	copy(cloned, discounts)
	return cloned
}
