package session

import "sync"

// Room is the in-memory runtime roster for one room. Durable room records
// (name, creator, waiting room, chat history) live in the store; this holds
// only live connections and exists exactly as long as someone is connected.
type Room struct {
	ID RoomID

	mu           sync.RWMutex
	participants map[ConnectionID]*Client
}

func newRoom(id RoomID) *Room {
	return &Room{
		ID:           id,
		participants: make(map[ConnectionID]*Client),
	}
}

// add inserts the client and returns the full roster snapshot (including the
// joiner) plus the set of other participants to notify. Both are taken under
// the same lock as the mutation so the joiner's snapshot is consistent with a
// linearization of concurrent joins.
func (r *Room) add(c *Client) (roster []ParticipantInfo, others []*Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.participants[c.ID] = c
	roster = make([]ParticipantInfo, 0, len(r.participants))
	others = make([]*Client, 0, len(r.participants)-1)
	for _, p := range r.participants {
		roster = append(roster, p.info())
		if p.ID != c.ID {
			others = append(others, p)
		}
	}
	return roster, others
}

// remove deletes the client from the roster. removed is false when the client
// was not present, which callers treat as "someone else already detached it".
func (r *Room) remove(c *Client) (removed bool, remaining []*Client, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[c.ID]; !ok {
		return false, nil, len(r.participants) == 0
	}
	delete(r.participants, c.ID)
	remaining = make([]*Client, 0, len(r.participants))
	for _, p := range r.participants {
		remaining = append(remaining, p)
	}
	return true, remaining, len(remaining) == 0
}

// others snapshots every participant except the given connection.
func (r *Room) others(exclude ConnectionID) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.participants))
	for _, p := range r.participants {
		if p.ID != exclude {
			out = append(out, p)
		}
	}
	return out
}

// members snapshots every participant, sender included.
func (r *Room) members() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

// size reports the current participant count.
func (r *Room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}
