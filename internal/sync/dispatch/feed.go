package dispatch

import (
	"sync"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub015/internal/order/event"
)

// minRefreshInterval keeps kitchen displays from repainting on every
// keystroke when a server is building a large order.
const minRefreshInterval = 150 * time.Millisecond

// directKinds must reach the display without waiting for a refresh
// window: a removed or voided item has to leave the ticket immediately.
var directKinds = map[event.Kind]struct{}{
	event.KindItemRemoved:     {},
	event.KindOrderClosed:     {},
	event.KindCompVoidApplied: {},
}

// DisplayFeed adapts the raw event stream for ticket displays. Item
// additions and changes are coalesced into batched refreshes on a
// debounce window; removals bypass the window.
type DisplayFeed struct {
	interval time.Duration
	refresh  func(orderIDs []string)
	direct   func(env Envelope)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	closed  bool
}

// NewDisplayFeed creates a feed with the given refresh window; windows
// shorter than the minimum are clamped. The refresh callback receives
// the distinct order ids touched during the window, and direct receives
// removal events as they arrive. Either callback may be nil.
func NewDisplayFeed(interval time.Duration, refresh func(orderIDs []string), direct func(env Envelope)) *DisplayFeed {
	if interval < minRefreshInterval {
		interval = minRefreshInterval
	}
	return &DisplayFeed{
		interval: interval,
		refresh:  refresh,
		direct:   direct,
		pending:  make(map[string]struct{}),
	}
}

// Observe routes one envelope into the feed.
func (f *DisplayFeed) Observe(env Envelope) {
	if _, ok := directKinds[event.Kind(env.Kind)]; ok {
		if f.direct != nil {
			f.direct(env)
		}
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.pending[env.OrderID] = struct{}{}
	if f.timer == nil {
		f.timer = time.AfterFunc(f.interval, f.flush)
	}
}

// Close stops the feed and fires one final refresh for anything still
// pending.
func (f *DisplayFeed) Close() {
	f.mu.Lock()
	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	orderIDs := f.drainLocked()
	f.mu.Unlock()
	if len(orderIDs) > 0 && f.refresh != nil {
		f.refresh(orderIDs)
	}
}

func (f *DisplayFeed) flush() {
	f.mu.Lock()
	f.timer = nil
	orderIDs := f.drainLocked()
	f.mu.Unlock()
	if len(orderIDs) > 0 && f.refresh != nil {
		f.refresh(orderIDs)
	}
}

func (f *DisplayFeed) drainLocked() []string {
	if len(f.pending) == 0 {
		return nil
	}
	orderIDs := make([]string, 0, len(f.pending))
	for orderID := range f.pending {
		orderIDs = append(orderIDs, orderID)
	}
	f.pending = make(map[string]struct{})
	return orderIDs
}
