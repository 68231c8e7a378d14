package ratelimit

import (
	"sync"
	"time"
)

const (
	// ChatWindow is the sliding window over which chat messages are counted.
	ChatWindow = 10 * time.Second

	// ChatLimit is the maximum number of chat messages a single connection
	// may send within ChatWindow.
	ChatLimit = 10
)

// ChatLimiter enforces a per-connection sliding window on chat messages.
//
// Unlike the REST limiters this is keyed by connection, lives entirely in
// process memory alongside the connection state, and must release its state
// the moment a connection goes away, so it does not share the ulule store.
type ChatLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	// now is replaceable in tests.
	now func() time.Time
}

// NewChatLimiter returns an empty limiter.
func NewChatLimiter() *ChatLimiter {
	return &ChatLimiter{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records an attempt for connID and reports whether it is within the
// limit. Rejected attempts are not recorded, so a flooding client recovers
// as soon as its earlier messages age out of the window.
func (l *ChatLimiter) Allow(connID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-ChatWindow)

	window := l.windows[connID]
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= ChatLimit {
		l.windows[connID] = kept
		return false
	}

	l.windows[connID] = append(kept, now)
	return true
}

// Forget drops all state for connID. Called on disconnect.
func (l *ChatLimiter) Forget(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, connID)
}
