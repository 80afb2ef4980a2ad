// Package reduce folds order events into current order state.
//
// Apply is a pure state machine: no I/O, no clock, no closed-order
// awareness. Semantic gating lives in the guard package so replay and
// guard rules can be tested in isolation. State at sequence N is always
// reproducible by folding every event with Seq <= N from Empty().
package reduce
