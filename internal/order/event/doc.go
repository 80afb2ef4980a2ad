// Package event defines the canonical event envelope and event-kind registry used by
// the order write path.
//
// Events are immutable business facts about one order. The registry enforces
// envelope completeness and payload validity before persistence assigns the
// server sequence. A stable event contract is the foundation for replay,
// snapshot correctness, and every device that folds the same log.
package event
