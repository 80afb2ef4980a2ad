package guard

import (
	"testing"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/reduce"
)

func TestEvaluate(t *testing.T) {
	empty := reduce.Empty()
	open := reduce.OrderState{Created: true, Status: reduce.StatusOpen}
	sent := reduce.OrderState{Created: true, Status: reduce.StatusSent}
	closed := reduce.OrderState{Created: true, Status: reduce.StatusClosed}
	reopened := reduce.OrderState{Created: true, Status: reduce.StatusReopened}

	tests := []struct {
		name     string
		state    reduce.OrderState
		kind     event.Kind
		allowed  bool
		wantCode string
	}{
		{"create missing order", empty, event.KindOrderCreated, true, ""},
		{"mutate missing order", empty, event.KindItemAdded, false, RejectionCodeOrderNotCreated},
		{"note on missing order", empty, event.KindNoteChanged, false, RejectionCodeOrderNotCreated},
		{"create twice", open, event.KindOrderCreated, false, RejectionCodeOrderExists},
		{"create twice when closed", closed, event.KindOrderCreated, false, RejectionCodeOrderExists},
		{"item on open order", open, event.KindItemAdded, true, ""},
		{"payment on sent order", sent, event.KindPaymentApplied, true, ""},
		{"close sent order", sent, event.KindOrderClosed, true, ""},
		{"item on closed order", closed, event.KindItemAdded, false, RejectionCodeOrderClosed},
		{"payment on closed order", closed, event.KindPaymentApplied, false, RejectionCodeOrderClosed},
		{"discount on closed order", closed, event.KindDiscountApplied, false, RejectionCodeOrderClosed},
		{"note on closed order", closed, event.KindNoteChanged, false, RejectionCodeOrderClosed},
		{"void payment on closed order", closed, event.KindPaymentVoided, true, ""},
		{"reopen closed order", closed, event.KindOrderReopened, true, ""},
		{"close closed order", closed, event.KindOrderClosed, true, ""},
		{"tab close on closed order", closed, event.KindTabClosed, true, ""},
		{"item on reopened order", reopened, event.KindItemAdded, true, ""},
		{"close reopened order", reopened, event.KindOrderClosed, true, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := Evaluate(tc.state, tc.kind)
			if decision.Allowed != tc.allowed {
				t.Fatalf("expected allowed=%v, got %+v", tc.allowed, decision)
			}
			if decision.Code != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, decision.Code)
			}
			if !decision.Allowed && decision.Reason == "" {
				t.Fatal("rejections must carry a reason")
			}
		})
	}
}

func TestEvaluateClosedOrderSplitsAllKinds(t *testing.T) {
	// Only these five kinds ever execute against a closed order; every
	// other kind is rejected. Iterating the full registry keeps the
	// split honest when a kind is added.
	allowedOnClosed := map[event.Kind]struct{}{
		event.KindOrderCreated:  {},
		event.KindPaymentVoided: {},
		event.KindOrderClosed:   {},
		event.KindOrderReopened: {},
		event.KindTabClosed:     {},
	}

	closed := reduce.OrderState{Created: true, Status: reduce.StatusClosed}
	blocked := 0
	for _, kind := range event.Kinds() {
		decision := Evaluate(closed, kind)
		_, allow := allowedOnClosed[kind]
		if kind == event.KindOrderCreated {
			// Creating is never blocked by closure, but the order exists.
			if decision.Allowed || decision.Code != RejectionCodeOrderExists {
				t.Fatalf("%s: expected order-exists rejection, got %+v", kind, decision)
			}
			continue
		}
		if decision.Allowed != allow {
			t.Fatalf("%s: expected allowed=%v on closed order, got %+v", kind, allow, decision)
		}
		if !decision.Allowed {
			if decision.Code != RejectionCodeOrderClosed {
				t.Fatalf("%s: expected closed rejection code, got %q", kind, decision.Code)
			}
			blocked++
		}
	}
	if blocked != 12 {
		t.Fatalf("expected 12 kinds blocked on closed orders, got %d", blocked)
	}
}

func TestVoidDoesNotReopen(t *testing.T) {
	// Voiding a payment is legal on a closed order, but any further edit
	// still needs an explicit reopen first.
	closed := reduce.OrderState{Created: true, Status: reduce.StatusClosed}
	if d := Evaluate(closed, event.KindPaymentVoided); !d.Allowed {
		t.Fatalf("expected void allowed on closed order, got %+v", d)
	}
	if d := Evaluate(closed, event.KindItemAdded); d.Allowed {
		t.Fatal("expected item add still rejected after void")
	}
}
