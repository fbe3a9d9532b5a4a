package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/revaristo12/chatliver1404/internal/models"
)

type staticResolver struct {
	members map[string]map[string]models.RoomRole
}

func (r *staticResolver) Role(_ context.Context, roomID, userID string) (models.RoomRole, error) {
	return r.members[roomID][userID], nil
}

type wireEvent struct {
	Type   string          `json:"type"`
	RoomID string          `json:"room_id"`
	Data   json.RawMessage `json:"data"`
}

func newHubFixture(t *testing.T, resolver MembershipResolver) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(resolver)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(r.URL.Query().Get("user"), r.URL.Query().Get("name"), w, r)
	}))
	t.Cleanup(server.Close)
	t.Cleanup(hub.Shutdown)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, userID, username string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?user=" + userID + "&name=" + username
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func join(t *testing.T, conn *websocket.Conn, roomID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "join", "room_id": roomID}))
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event wireEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var event wireEvent
	err := conn.ReadJSON(&event)
	require.Error(t, err, "expected no event, got %+v", event)
}

func TestHubPresenceAndMessageFanOut(t *testing.T) {
	resolver := &staticResolver{members: map[string]map[string]models.RoomRole{
		"room-1": {
			"u-alice": models.RoleCreator,
			"u-bob":   models.RoleMember,
		},
	}}
	hub, server := newHubFixture(t, resolver)

	alice := dial(t, server, "u-alice", "alice")
	join(t, alice, "room-1")

	// The joiner sees its own presence event.
	event := readEvent(t, alice)
	require.Equal(t, "presence", event.Type)
	require.Equal(t, "room-1", event.RoomID)

	var presence Presence
	require.NoError(t, json.Unmarshal(event.Data, &presence))
	require.Equal(t, "joined", presence.Event)
	require.Equal(t, "u-alice", presence.UserID)

	bob := dial(t, server, "u-bob", "bob")
	join(t, bob, "room-1")

	// Both connections observe bob's arrival.
	for _, conn := range []*websocket.Conn{alice, bob} {
		event = readEvent(t, conn)
		require.Equal(t, "presence", event.Type)
		require.NoError(t, json.Unmarshal(event.Data, &presence))
		require.Equal(t, "u-bob", presence.UserID)
	}

	message := &models.Message{RoomID: "room-1", Content: "hello"}
	message.ID = "m-1"
	hub.BroadcastMessage("room-1", message)

	for _, conn := range []*websocket.Conn{alice, bob} {
		event = readEvent(t, conn)
		require.Equal(t, "message", event.Type)

		var got models.Message
		require.NoError(t, json.Unmarshal(event.Data, &got))
		require.Equal(t, "m-1", got.ID)
		require.Equal(t, "hello", got.Content)
	}
}

func TestHubIgnoresNonMemberJoin(t *testing.T) {
	resolver := &staticResolver{members: map[string]map[string]models.RoomRole{
		"room-1": {"u-alice": models.RoleCreator},
	}}
	hub, server := newHubFixture(t, resolver)

	mallory := dial(t, server, "u-mallory", "mallory")
	join(t, mallory, "room-1")

	// No rejection reply, no subscription: a later broadcast never reaches
	// the non-member.
	time.Sleep(100 * time.Millisecond)
	hub.BroadcastMessage("room-1", &models.Message{RoomID: "room-1", Content: "secret"})
	expectSilence(t, mallory)
}

func TestHubTypingSkipsSender(t *testing.T) {
	resolver := &staticResolver{members: map[string]map[string]models.RoomRole{
		"room-1": {
			"u-alice": models.RoleMember,
			"u-bob":   models.RoleMember,
		},
	}}
	_, server := newHubFixture(t, resolver)

	alice := dial(t, server, "u-alice", "alice")
	join(t, alice, "room-1")
	readEvent(t, alice) // own presence

	bob := dial(t, server, "u-bob", "bob")
	join(t, bob, "room-1")
	readEvent(t, alice) // bob's presence
	readEvent(t, bob)

	require.NoError(t, alice.WriteJSON(map[string]any{
		"action":  "typing",
		"room_id": "room-1",
		"typing":  true,
	}))

	event := readEvent(t, bob)
	require.Equal(t, "typing", event.Type)

	var typing Typing
	require.NoError(t, json.Unmarshal(event.Data, &typing))
	require.Equal(t, "u-alice", typing.UserID)
	require.True(t, typing.Typing)

	expectSilence(t, alice)
}

func TestHubLeaveAnnouncesDeparture(t *testing.T) {
	resolver := &staticResolver{members: map[string]map[string]models.RoomRole{
		"room-1": {
			"u-alice": models.RoleMember,
			"u-bob":   models.RoleMember,
		},
	}}
	_, server := newHubFixture(t, resolver)

	alice := dial(t, server, "u-alice", "alice")
	join(t, alice, "room-1")
	readEvent(t, alice)

	bob := dial(t, server, "u-bob", "bob")
	join(t, bob, "room-1")
	readEvent(t, alice)
	readEvent(t, bob)

	require.NoError(t, bob.WriteJSON(map[string]string{"action": "leave", "room_id": "room-1"}))

	event := readEvent(t, alice)
	require.Equal(t, "presence", event.Type)

	var presence Presence
	require.NoError(t, json.Unmarshal(event.Data, &presence))
	require.Equal(t, "left", presence.Event)
	require.Equal(t, "u-bob", presence.UserID)
}

type recordingCreator struct {
	hub *Hub

	mu      sync.Mutex
	created []string
}

func (c *recordingCreator) CreateFromClient(_ context.Context, roomID, userID, content string) (*models.Message, error) {
	c.mu.Lock()
	c.created = append(c.created, content)
	c.mu.Unlock()

	message := &models.Message{RoomID: roomID, UserID: userID, Content: content}
	message.ID = "m-" + content
	c.hub.BroadcastMessage(roomID, message)
	return message, nil
}

func (c *recordingCreator) contents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.created...)
}

func TestHubInboundMessagePersistsAndFansOut(t *testing.T) {
	resolver := &staticResolver{members: map[string]map[string]models.RoomRole{
		"room-1": {
			"u-alice": models.RoleMember,
			"u-bob":   models.RoleMember,
		},
	}}
	hub, server := newHubFixture(t, resolver)
	creator := &recordingCreator{hub: hub}
	hub.AttachMessageCreator(creator)

	alice := dial(t, server, "u-alice", "alice")
	join(t, alice, "room-1")
	readEvent(t, alice)

	bob := dial(t, server, "u-bob", "bob")
	join(t, bob, "room-1")
	readEvent(t, alice)
	readEvent(t, bob)

	require.NoError(t, alice.WriteJSON(map[string]string{
		"action":  "message",
		"room_id": "room-1",
		"content": "hello over the wire",
	}))

	// Both subscribers, the author included, receive the committed message.
	for _, conn := range []*websocket.Conn{alice, bob} {
		event := readEvent(t, conn)
		require.Equal(t, "message", event.Type)

		var got models.Message
		require.NoError(t, json.Unmarshal(event.Data, &got))
		require.Equal(t, "hello over the wire", got.Content)
		require.Equal(t, "u-alice", got.UserID)
	}
	require.Equal(t, []string{"hello over the wire"}, creator.contents())
}

func TestHubInboundMessageFromNonSubscriberDropped(t *testing.T) {
	resolver := &staticResolver{members: map[string]map[string]models.RoomRole{
		"room-1": {
			"u-alice": models.RoleMember,
			"u-bob":   models.RoleMember,
		},
	}}
	hub, server := newHubFixture(t, resolver)
	creator := &recordingCreator{hub: hub}
	hub.AttachMessageCreator(creator)

	alice := dial(t, server, "u-alice", "alice")
	join(t, alice, "room-1")
	readEvent(t, alice)

	// Bob is a member but never joined over the socket.
	bob := dial(t, server, "u-bob", "bob")
	require.NoError(t, bob.WriteJSON(map[string]string{
		"action":  "message",
		"room_id": "room-1",
		"content": "drive-by",
	}))

	expectSilence(t, alice)
	require.Empty(t, creator.contents())
}

func TestHubBroadcastOrderConsistentAcrossSubscribers(t *testing.T) {
	resolver := &staticResolver{members: map[string]map[string]models.RoomRole{
		"room-1": {
			"u-alice": models.RoleMember,
			"u-bob":   models.RoleMember,
		},
	}}
	hub, server := newHubFixture(t, resolver)

	alice := dial(t, server, "u-alice", "alice")
	join(t, alice, "room-1")
	readEvent(t, alice)

	bob := dial(t, server, "u-bob", "bob")
	join(t, bob, "room-1")
	readEvent(t, alice)
	readEvent(t, bob)

	const messages = 25
	var wg sync.WaitGroup
	for i := 0; i < messages; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			message := &models.Message{RoomID: "room-1"}
			message.ID = fmt.Sprintf("m-%02d", i)
			hub.BroadcastMessage("room-1", message)
		}(i)
	}
	wg.Wait()

	readIDs := func(conn *websocket.Conn) []string {
		ids := make([]string, 0, messages)
		for i := 0; i < messages; i++ {
			event := readEvent(t, conn)
			require.Equal(t, "message", event.Type)

			var got models.Message
			require.NoError(t, json.Unmarshal(event.Data, &got))
			ids = append(ids, got.ID)
		}
		return ids
	}

	// Whatever order the concurrent broadcasts resolved to, every
	// subscriber of the room observes the same one.
	require.Equal(t, readIDs(alice), readIDs(bob))
}

func newLoopbackConnection(t *testing.T, hub *Hub) *connection {
	t.Helper()

	ready := make(chan *connection, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ready <- &connection{
			hub:      hub,
			socket:   sock,
			userID:   "u-test",
			username: "test",
			rooms:    make(map[string]struct{}),
			send:     make(chan Event, 1),
		}
	}))
	t.Cleanup(server.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-ready:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("connection never established")
		return nil
	}
}

func TestHubEnqueueAfterCloseDoesNotPanic(t *testing.T) {
	hub := NewHub(&staticResolver{})
	conn := newLoopbackConnection(t, hub)

	conn.close()
	require.NotPanics(t, func() {
		hub.enqueue(conn, Event{Type: "pong"})
	})
}
