package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gochatd/pkg/health"
	"gochatd/pkg/presence"
	"gochatd/pkg/rooms"
	"gochatd/pkg/store"
)

type nopConn struct{}

func (nopConn) Send(string) {}

func newTestAPI(t *testing.T) (*API, *presence.Registry, *rooms.Registry, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	pr := presence.NewRegistry()
	rm := rooms.NewRegistry()
	return NewAPI(st, pr, rm, health.NewMonitor()), pr, rm, st
}

func doGet(t *testing.T, api *API, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	api.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	api, _, _, _ := newTestAPI(t)

	w := doGet(t, api, "/healthz")

	var snap health.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, 0, snap.ActiveSessions)
	assert.Positive(t, snap.Goroutines)
}

func TestOnlineEndpoint(t *testing.T) {
	api, pr, _, _ := newTestAPI(t)
	require.True(t, pr.Register("alice", nopConn{}))
	require.True(t, pr.Register("bob", nopConn{}))
	pr.SetStatus("bob", "away")

	w := doGet(t, api, "/api/online")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Online   []string `json:"online"`
		Statuses []string `json:"statuses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"alice", "bob"}, body.Online)
	assert.Equal(t, []string{"alice:online", "bob:away"}, body.Statuses)
}

func TestRoomsEndpoint(t *testing.T) {
	api, _, rm, _ := newTestAPI(t)
	rm.Subscribe("lobby", nopConn{})

	w := doGet(t, api, "/api/rooms")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Rooms map[string]int `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]int{"lobby": 1}, body.Rooms)
}

func TestActivityEndpoint(t *testing.T) {
	api, _, _, st := newTestAPI(t)
	st.LogActivity("alice", "LOGIN", "Login successful")
	st.LogActivity("alice", "JOIN_ROOM", "room=lobby")

	w := doGet(t, api, "/api/activity?limit=1")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Activity []store.ActivityEntry `json:"activity"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Activity, 1)
	assert.Equal(t, "JOIN_ROOM", body.Activity[0].Event)
}
