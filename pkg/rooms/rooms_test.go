package rooms

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
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

func (c *fakeConn) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func TestBroadcastExceptSender(t *testing.T) {
	r := NewRegistry()
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	r.Subscribe("lobby", a)
	r.Subscribe("lobby", b)
	r.Subscribe("gaming", c)

	r.Broadcast("lobby", "ROOMFROM lobby alice hi", a)

	assert.Empty(t, a.all())
	assert.Equal(t, []string{"ROOMFROM lobby alice hi"}, b.all())
	assert.Empty(t, c.all())
}

func TestBroadcastNoSubscribers(t *testing.T) {
	r := NewRegistry()
	// no panic, no effect
	r.Broadcast("ghost-town", "SYS hello", nil)
	assert.Equal(t, 0, r.Count())
}

func TestUnsubscribeDropsEmptyRoom(t *testing.T) {
	r := NewRegistry()
	a, b := &fakeConn{}, &fakeConn{}
	r.Subscribe("gaming", a)
	r.Subscribe("gaming", b)
	assert.Equal(t, map[string]int{"gaming": 2}, r.Occupancy())

	r.Unsubscribe("gaming", a)
	assert.Equal(t, map[string]int{"gaming": 1}, r.Occupancy())

	r.Unsubscribe("gaming", b)
	assert.Equal(t, 0, r.Count())

	// idempotent on a gone room
	r.Unsubscribe("gaming", b)
	assert.Equal(t, 0, r.Count())
}

func TestSubscribeIdempotent(t *testing.T) {
	r := NewRegistry()
	a := &fakeConn{}
	r.Subscribe("lobby", a)
	r.Subscribe("lobby", a)
	assert.Equal(t, map[string]int{"lobby": 1}, r.Occupancy())

	r.Broadcast("lobby", "SYS once", nil)
	assert.Equal(t, []string{"SYS once"}, a.all())
}
