package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomAddReturnsConsistentSnapshot(t *testing.T) {
	h, _, _ := newTestHub()
	room := newRoom("r1")

	a := newTestClient(h, "conn-a", "alice", "user-a")
	b := newTestClient(h, "conn-b", "bob", "")

	roster, others := room.add(a)
	assert.Len(t, roster, 1)
	assert.Empty(t, others)

	roster, others = room.add(b)
	assert.Len(t, roster, 2)
	require.Len(t, others, 1)
	assert.Equal(t, a.ID, others[0].ID)
}

func TestRoomRemoveIsIdempotent(t *testing.T) {
	h, _, _ := newTestHub()
	room := newRoom("r1")

	a := newTestClient(h, "conn-a", "alice", "")
	b := newTestClient(h, "conn-b", "bob", "")
	room.add(a)
	room.add(b)

	removed, remaining, empty := room.remove(a)
	assert.True(t, removed)
	assert.Len(t, remaining, 1)
	assert.False(t, empty)

	removed, _, _ = room.remove(a)
	assert.False(t, removed)

	removed, remaining, empty = room.remove(b)
	assert.True(t, removed)
	assert.Empty(t, remaining)
	assert.True(t, empty)
}

func TestRoomConcurrentJoinsLoseNoUpdates(t *testing.T) {
	h, _, _ := newTestHub()
	room := newRoom("r1")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newTestClient(h, ConnectionID(fmt.Sprintf("conn-%d", i)), "user", "")
			room.add(c)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, room.size())
}

func TestRoomOthersExcludesCaller(t *testing.T) {
	h, _, _ := newTestHub()
	room := newRoom("r1")

	a := newTestClient(h, "conn-a", "alice", "")
	b := newTestClient(h, "conn-b", "bob", "")
	room.add(a)
	room.add(b)

	others := room.others(a.ID)
	require.Len(t, others, 1)
	assert.Equal(t, b.ID, others[0].ID)

	assert.Len(t, room.members(), 2)
}
