package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu    sync.Mutex
	lines []string
}

func (c *fakeConn) Send(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *fakeConn) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) == 0 {
		return ""
	}
	return c.lines[len(c.lines)-1]
}

func (c *fakeConn) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	a, b := &fakeConn{}, &fakeConn{}

	require.True(t, r.Register("alice", a))
	assert.False(t, r.Register("alice", b))

	// the losing session got nothing and holds no binding
	assert.Empty(t, b.all())
	got, ok := r.Get("alice")
	require.True(t, ok)
	assert.Same(t, a, got.(*fakeConn))
}

func TestRegisterBroadcastsSnapshots(t *testing.T) {
	r := NewRegistry()
	a, b := &fakeConn{}, &fakeConn{}

	require.True(t, r.Register("bob", a))
	require.True(t, r.Register("alice", b))

	// both sessions saw the refreshed sorted list after alice joined
	lines := a.all()
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "ONLINE alice,bob", lines[len(lines)-2])
	assert.Equal(t, "STATUSES alice:online,bob:online", lines[len(lines)-1])
}

func TestUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	a := &fakeConn{}
	require.True(t, r.Register("alice", a))

	r.Unregister("alice")
	r.Unregister("alice")
	r.Unregister("ghost")

	assert.Equal(t, 0, r.Count())
	_, ok := r.Get("alice")
	assert.False(t, ok)

	// the name frees up for a new session
	assert.True(t, r.Register("alice", &fakeConn{}))
}

func TestSetStatus(t *testing.T) {
	r := NewRegistry()
	a := &fakeConn{}
	require.True(t, r.Register("alice", a))

	r.SetStatus("alice", "away")
	assert.Equal(t, "STATUSES alice:away", a.last())
	assert.Equal(t, []string{"alice:away"}, r.StatusSnapshot())

	// unknown values normalize to online
	r.SetStatus("alice", "sleeping")
	assert.Equal(t, []string{"alice:online"}, r.StatusSnapshot())

	// offline users are a no-op
	before := len(a.all())
	r.SetStatus("ghost", "away")
	assert.Len(t, a.all(), before)
}

func TestSnapshotsSorted(t *testing.T) {
	r := NewRegistry()
	for _, u := range []string{"carol", "alice", "bob"} {
		require.True(t, r.Register(u, &fakeConn{}))
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.OnlineSnapshot())
	assert.Equal(t, []string{"alice:online", "bob:online", "carol:online"}, r.StatusSnapshot())
}

func TestConcurrentRegisterSingleWinner(t *testing.T) {
	r := NewRegistry()

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan int, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if r.Register("alice", &fakeConn{}) {
				wins <- n
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	assert.Equal(t, 1, count, fmt.Sprintf("expected exactly one winner, got %d", count))
}
