package session

import (
	"errors"
	"sync"

	"github.com/peercall/broker/internal/v1/metrics"
)

// maxBroadcastIDLength bounds broadcast identifiers supplied by clients.
const maxBroadcastIDLength = 64

// errBroadcastTaken reports that another connection already publishes under
// the requested broadcast ID.
var errBroadcastTaken = errors.New("broadcast id already registered")

// BroadcastRegistry maps broadcast IDs to the single connection publishing
// under each. It is a pure rendezvous: no room state is created for
// broadcasts, and all media exchange after the introduction is point-to-point
// signaling between viewer and publisher.
type BroadcastRegistry struct {
	mu      sync.RWMutex
	entries map[string]ConnectionID
}

func NewBroadcastRegistry() *BroadcastRegistry {
	return &BroadcastRegistry{entries: make(map[string]ConnectionID)}
}

// Register claims broadcastID for connID. Re-registering the same connection
// under the same ID is a no-op success; a different current publisher makes
// the claim fail. A connection publishes at most one broadcast at a time:
// claiming a new ID releases the connection's previous registration.
func (r *BroadcastRegistry) Register(broadcastID string, connID ConnectionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.entries[broadcastID]; ok {
		if current != connID {
			return errBroadcastTaken
		}
		return nil
	}
	for id, owner := range r.entries {
		if owner == connID {
			delete(r.entries, id)
			metrics.ActiveBroadcasts.Dec()
		}
	}
	r.entries[broadcastID] = connID
	metrics.ActiveBroadcasts.Inc()
	return nil
}

// Lookup returns the publisher for broadcastID, if any.
func (r *BroadcastRegistry) Lookup(broadcastID string) (ConnectionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.entries[broadcastID]
	return connID, ok
}

// RemoveOwner drops every broadcast published by connID. Called on
// disconnect; viewers receive no notification, they discover the loss
// through their peer connection.
func (r *BroadcastRegistry) RemoveOwner(connID ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, owner := range r.entries {
		if owner == connID {
			delete(r.entries, id)
			metrics.ActiveBroadcasts.Dec()
		}
	}
}

// Len reports the number of live broadcasts.
func (r *BroadcastRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
