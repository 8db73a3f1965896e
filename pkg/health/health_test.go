package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	m := NewMonitor()
	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot(3, 2)
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.ActiveSessions)
	assert.Equal(t, 2, snap.LiveRooms)
	assert.Positive(t, snap.Goroutines)
	assert.GreaterOrEqual(t, snap.Uptime, int64(0))
	assert.False(t, snap.Timestamp.IsZero())
}
