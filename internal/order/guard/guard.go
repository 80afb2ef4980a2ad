// Package guard gates which event kinds are legal given current order
// status. It is evaluated against authoritative state as of the event
// immediately preceding in sequence, never against a client's local
// belief, so a disconnected device cannot queue edits past a closure
// another device already sequenced.
package guard

import (
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/reduce"
)

// Decision is the outcome of a guard check.
type Decision struct {
	Allowed bool
	// Code and Reason describe the rejection when Allowed is false.
	Code   string
	Reason string
}

// Rejection codes surfaced to origin devices as reconciliation signals.
const (
	RejectionCodeOrderClosed     = "ORDER_CLOSED"
	RejectionCodeOrderNotCreated = "ORDER_NOT_CREATED"
	RejectionCodeOrderExists     = "ORDER_ALREADY_EXISTS"
)

// allowedWhenClosed lists the only kinds that execute against a closed
// order. PAYMENT_VOIDED does not reopen the order by itself; an explicit
// ORDER_REOPENED must follow before further mutation.
var allowedWhenClosed = map[event.Kind]struct{}{
	event.KindOrderCreated:  {},
	event.KindPaymentVoided: {},
	event.KindOrderClosed:   {},
	event.KindOrderReopened: {},
	event.KindTabClosed:     {},
}

// Allow accepts the event.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Reject refuses the event with a code and reason. Rejection is terminal
// for the event: it is logged and never retried.
func Reject(code, reason string) Decision {
	return Decision{Code: code, Reason: reason}
}

// Evaluate decides whether an event kind is permitted against the given
// order state. Structural payload validation happens earlier in the
// event registry; Evaluate only looks at lifecycle status.
func Evaluate(state reduce.OrderState, kind event.Kind) Decision {
	if !state.Created {
		if kind == event.KindOrderCreated {
			return Allow()
		}
		return Reject(RejectionCodeOrderNotCreated, "order does not exist")
	}
	if kind == event.KindOrderCreated {
		return Reject(RejectionCodeOrderExists, "order already exists")
	}
	if !state.Closed() {
		return Allow()
	}
	if _, ok := allowedWhenClosed[kind]; ok {
		return Allow()
	}
	return Reject(RejectionCodeOrderClosed, "order is closed")
}
