package realtime

import (
	"sync"
	"time"

	v1 "github.com/IamJunnn/ecoblox-web-curriculum-sub000/pkg/contracts/chat/v1"
)

// Envelope op costs, in budget units per event.
//
// Typing indicators are transient and not persisted, so they are cheap;
// a message send carries a storage write plus a room fan-out and consumes
// more of the budget. Everything else (joins, read markers, unread queries)
// sits in between.
const (
	costTyping  = 1
	costDefault = 2
	costSend    = 4
)

func opCost(envType string) int {
	switch envType {
	case v1.TypeTypingStart, v1.TypeTypingStop:
		return costTyping
	case v1.TypeSendMessage:
		return costSend
	default:
		return costDefault
	}
}

type rateEntry struct {
	at   time.Time
	cost int
}

// RateLimiter is a per-connection sliding-window limiter over a cost budget.
// The budget is spent per envelope according to opCost, so a client can burst
// typing indicators far longer than it can burst message sends.
type RateLimiter struct {
	mu      sync.Mutex
	entries []rateEntry
	spent   int
	budget  int
	window  time.Duration
}

// NewRateLimiter constructs a RateLimiter. The budget is expressed in cost
// units per window; invalid inputs fall back to the package defaults.
func NewRateLimiter(budget int, window time.Duration) *RateLimiter {
	if budget <= 0 {
		budget = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		entries: make([]rateEntry, 0, 64),
		budget:  budget,
		window:  window,
	}
}

// AllowOp reports whether an envelope of the given type arriving at "now"
// fits the remaining budget, and spends its cost when it does.
func (r *RateLimiter) AllowOp(now time.Time, envType string) bool {
	cost := opCost(envType)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Expire entries that left the window. Entries are appended in
	// chronological order, so expiry only trims the front.
	cut := now.Add(-r.window)
	drop := 0
	for drop < len(r.entries) && !r.entries[drop].at.After(cut) {
		r.spent -= r.entries[drop].cost
		drop++
	}
	if drop > 0 {
		r.entries = append(r.entries[:0], r.entries[drop:]...)
	}

	if r.spent+cost > r.budget {
		return false
	}

	r.entries = append(r.entries, rateEntry{at: now, cost: cost})
	r.spent += cost
	return true
}
