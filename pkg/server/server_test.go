package server

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gochatd/pkg/presence"
	"gochatd/pkg/rooms"
	"gochatd/pkg/store"
)

const lineTimeout = 3 * time.Second

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv := New(":0", store.NewMemoryStore(), presence.NewRegistry(), rooms.NewRegistry())
	t.Cleanup(srv.Shutdown)
	return srv
}

// testClient drives one session over an in-memory pipe. A reader
// goroutine feeds received lines into a channel; expectations scan
// past broadcast noise (ONLINE, STATUSES, join announcements) until
// the wanted line shows up.
type testClient struct {
	t      *testing.T
	conn   net.Conn // nil for websocket clients
	lines  chan string
	wsSend func(line string) error
}

func dialTestServer(t *testing.T, srv *Server) *testClient {
	t.Helper()

	clientEnd, serverEnd := net.Pipe()
	srv.runSession(newTCPTransport(serverEnd))

	c := &testClient{t: t, conn: clientEnd, lines: make(chan string, 256)}
	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(clientEnd)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
	}()
	t.Cleanup(func() { clientEnd.Close() })
	return c
}

func (c *testClient) send(line string) {
	c.t.Helper()
	if c.wsSend != nil {
		require.NoError(c.t, c.wsSend(line))
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(lineTimeout))
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

// expect reads lines until the exact wanted line arrives, failing on
// timeout or a closed connection.
func (c *testClient) expect(want string) {
	c.t.Helper()
	deadline := time.After(lineTimeout)
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %q", want)
			}
			if line == want {
				return
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for %q", want)
		}
	}
}

// expectNext asserts the very next line, with no skipping. Only usable
// where no presence or room broadcast can interleave.
func (c *testClient) expectNext(want string) {
	c.t.Helper()
	select {
	case line, ok := <-c.lines:
		if !ok {
			c.t.Fatalf("connection closed while waiting for %q", want)
		}
		require.Equal(c.t, want, line)
	case <-time.After(lineTimeout):
		c.t.Fatalf("timed out waiting for %q", want)
	}
}

// expectClosed waits for the server to drop the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	deadline := time.After(lineTimeout)
	for {
		select {
		case _, ok := <-c.lines:
			if !ok {
				return
			}
		case <-deadline:
			c.t.Fatal("timed out waiting for connection close")
		}
	}
}

func (c *testClient) register(name string) {
	c.t.Helper()
	c.expect("SYS Login/Register")
	c.send("REGISTER " + name + " secret1")
	c.expect("REGISTER SUCCESSFUL")
	c.expect("SYS Welcome " + name)
	c.expect("JOINED lobby")
	c.expect("SYS Joined room lobby")
}

func TestRegisterAndAutoJoinLobby(t *testing.T) {
	srv := newTestServer(t)
	c := dialTestServer(t, srv)
	c.register("alice")
	assert.Equal(t, 1, srv.ActiveSessions())
}

func TestRegisterDuplicateUsername(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")

	b := dialTestServer(t, srv)
	b.expect("SYS Login/Register")
	b.send("REGISTER alice other12")
	b.expect("ERR REGISTER_USERNAME_TAKEN")

	// still in the auth loop, a fresh name succeeds
	b.send("REGISTER bob secret1")
	b.expect("REGISTER SUCCESSFUL")
}

func TestLoginFlow(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")
	a.send("/quit")
	a.expectClosed()

	b := dialTestServer(t, srv)
	b.expect("SYS Login/Register")
	b.send("LOGIN alice wrong12")
	b.expect("ERR LOGIN_WRONG_PASSWORD")
	b.send("LOGIN nobody secret1")
	b.expect("ERR LOGIN_NO_SUCH_USER")
	b.send("LOGIN alice secret1")
	b.expect("LOGIN SUCCESSFUL")
	b.expect("SYS Welcome back alice")
	b.expect("JOINED lobby")
}

func TestAuthMalformedLinesReprompt(t *testing.T) {
	srv := newTestServer(t)
	c := dialTestServer(t, srv)
	c.expect("SYS Login/Register")

	c.send("LOGIN alice")
	c.expect("ERR Invalid Format. Click REGISTER or LOGIN after filling out username and password.")

	c.send("HELLO alice secret1")
	c.expect("ERR UNKNOWN COMMAND")

	// the session survived both bad lines
	c.send("REGISTER alice secret1")
	c.expect("REGISTER SUCCESSFUL")
}

func TestDuplicateLoginRejected(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")

	b := dialTestServer(t, srv)
	// drain the full banner so the next lines are deterministic
	b.expect("SYS LOGIN <username> <password>")
	b.send("LOGIN alice secret1")
	// the credential outcome and the rejection flush strictly in order
	b.expectNext("LOGIN SUCCESSFUL")
	b.expectNext("ERR Already logged in elsewhere.")
	b.expectClosed()

	// the first session is untouched
	a.send("STATUS away")
	a.expect("SYS Status set to away")
}

func TestLobbyFreeTextFallback(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")
	b := dialTestServer(t, srv)
	b.register("bob")

	a.send("good morning everyone")
	b.expect("ROOMFROM lobby alice good morning everyone")
	// the sender gets their own echo back on this path
	a.expect("ROOMFROM lobby alice good morning everyone")
}

func TestDirectMessages(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")
	b := dialTestServer(t, srv)
	b.register("bob")

	a.send("DM bob lunch at noon?")
	b.expect("DMFROM alice lunch at noon?")
	a.expect("SYS DM sent to bob")

	a.send("DM nobody hi")
	a.expect("ERR User not found: nobody")

	// offline recipients still get the message persisted
	b.send("/quit")
	b.expectClosed()
	a.send("DM bob are you there?")
	a.expect("ERR User not online: bob")

	a.send("DM_HISTORY bob")
	a.expect("DMHISTORYLINE bob alice lunch at noon?")
	a.expect("DMHISTORYLINE bob alice are you there?")
	a.expect("DMHISTORYDONE bob")

	// bob logs back in and finds the message sent while offline
	b2 := dialTestServer(t, srv)
	b2.expect("SYS Login/Register")
	b2.send("LOGIN bob secret1")
	b2.expect("SYS Welcome back bob")
	b2.send("DM_HISTORY alice")
	b2.expect("DMHISTORYLINE alice alice are you there?")
	b2.expect("DMHISTORYDONE alice")
}

func TestRoomLifecycle(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")
	b := dialTestServer(t, srv)
	b.register("bob")

	// first join creates the room with alice as owner
	a.send("JOIN gaming")
	a.expect("JOINED gaming")
	a.expect("SYS Joined room gaming")

	// bob is neither a member nor invited
	b.send("JOIN gaming")
	b.expect("ERR Not a member or not invited to a room gaming")
	b.send("ROOMMSG gaming sneaky")
	b.expect("ERR Not a member of room: gaming")
	b.send("ROOM_HISTORY gaming")
	b.expect("ERR Not allowed to view history for gaming")

	a.send("ROOMMSG nowhere hi")
	a.expect("ERR Room does not exist: nowhere")

	a.send("LEAVE gaming")
	a.expect("SYS Left room gaming")
}

func TestRoomInviteFlow(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")
	b := dialTestServer(t, srv)
	b.register("bob")

	a.send("JOIN gaming")
	a.expect("SYS Joined room gaming")

	a.send("ROOM_INVITE gaming bob")
	a.expect("SYS Invited bob to room gaming")
	b.expect("ROOMINVITE gaming alice")

	a.send("ROOM_INVITE gaming bob")
	a.expect("ERR Invite already exists for bob")

	b.send("ROOM_INVITE_ACCEPT gaming")
	b.expect("JOINED gaming")
	b.expect("SYS Invite accepted for room gaming")
	a.expect("SYS bob joined gaming")

	b.send("ROOMMSG gaming glad to be here")
	a.expect("ROOMFROM gaming bob glad to be here")

	b.send("ROOM_HISTORY gaming")
	b.expect("ROOMHISTORYLINE gaming bob glad to be here")
	b.expect("ROOMHISTORYDONE gaming")
}

func TestRoomInviteConsumedByJoin(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")
	b := dialTestServer(t, srv)
	b.register("bob")

	a.send("JOIN gaming")
	a.expect("SYS Joined room gaming")
	a.send("ROOM_INVITE gaming bob")
	b.expect("ROOMINVITE gaming alice")

	// a plain JOIN consumes the invite
	b.send("JOIN gaming")
	b.expect("JOINED gaming")

	b.send("ROOM_INVITE_ACCEPT gaming")
	b.expect("ERR No pending invite for gaming")
}

func TestRoomInviteDecline(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")
	b := dialTestServer(t, srv)
	b.register("bob")

	a.send("JOIN gaming")
	a.expect("SYS Joined room gaming")
	a.send("ROOM_INVITE gaming bob")
	b.expect("ROOMINVITE gaming alice")

	b.send("ROOM_INVITE_DECLINE gaming")
	b.expect("SYS Invite declined for room gaming")

	b.send("JOIN gaming")
	b.expect("ERR Not a member or not invited to a room gaming")
}

func TestFriendFlow(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")
	b := dialTestServer(t, srv)
	b.register("bob")

	a.send("FRIEND_REQ bob")
	a.expect("SYS Friend request sent to bob")
	b.expect("FRIENDREQFROM alice")

	b.send("FRIEND_REQUEST")
	b.expect("FRIENDREQS alice")

	b.send("FRIEND_ACCEPT alice")
	b.expect("SYS Friend request accepted: alice")
	b.expect("FRIENDS alice")
	a.expect("SYS bob accepted your friend request!")
	a.expect("FRIENDS bob")

	a.send("FRIEND_REQ bob")
	a.expect("ERR Couldn't send friend request")

	a.send("FRIEND_REMOVE bob")
	a.expect("SYS Friend removed: bob")
	a.send("FRIENDS")
	a.expect("FRIENDS ")
}

func TestFriendDecline(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")
	b := dialTestServer(t, srv)
	b.register("bob")

	a.send("FRIEND_REQ bob")
	b.expect("FRIENDREQFROM alice")

	b.send("FRIEND_DECLINE alice")
	b.expect("SYS Friend request declined: alice")
	a.expect("SYS bob rejected your friend request.")

	b.send("FRIEND_ACCEPT alice")
	b.expect("ERR Couldn't accept request.")
}

func TestStatusAndPresenceBroadcasts(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")
	b := dialTestServer(t, srv)
	b.register("bob")

	a.send("STATUS away")
	a.expect("SYS Status set to away")
	b.expect("STATUSES alice:away,bob:online")

	// unknown values normalize to online
	a.send("STATUS sleeping")
	b.expect("STATUSES alice:online,bob:online")

	b.send("ONLINE")
	b.expect("ONLINE alice,bob")
}

func TestQuitFreesUsername(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")
	b := dialTestServer(t, srv)
	b.register("bob")

	a.send("/quit")
	a.expectClosed()

	// bob sees the lobby departure and the shrunken online list
	b.expect("SYS alice left lobby")
	b.expect("ONLINE bob")

	// the name is free again
	c := dialTestServer(t, srv)
	c.expect("SYS Login/Register")
	c.send("LOGIN alice secret1")
	c.expect("LOGIN SUCCESSFUL")
}

func TestUnknownVerbWithArgumentsFallsToLobby(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")
	b := dialTestServer(t, srv)
	b.register("bob")

	a.send("BANANA split please")
	b.expect("ROOMFROM lobby alice BANANA split please")
}

func TestCommandMissingArguments(t *testing.T) {
	srv := newTestServer(t)
	a := dialTestServer(t, srv)
	a.register("alice")

	a.send("JOIN")
	a.expect("ERR Joining room")
	a.send("DM bob")
	a.expect("ERR DMing")
	a.send("STATUS")
	a.expect("ERR Usage: STATUS <online|away|busy>")
}
