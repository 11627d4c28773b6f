package main

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	cfg := testConfig()
	rm := newRoomManager(cfg, noopFilter{})

	mux := httprouter.New()
	mux.GET("/ws", serveWS(cfg, rm))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func wsSend(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(clientMessage{Type: event, Data: raw}))
}

// wsWait reads frames until one matches the wanted event, returning its
// payload. Interleaved broadcasts the test does not care about are skipped.
func wsWait(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	for {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %q", event)

		if msg.Type == event {
			return msg.Data
		}
	}
}

// Full round over real websockets: create, join, auto-start, submit, vote,
// result.
func TestGameOverWebsocket(t *testing.T) {
	_, url := newTestServer(t)

	alice := dialWS(t, url)
	wsSend(t, alice, "create-room", createRoomRequest{
		PlayerName:   "Alice",
		MaxPlayers:   2,
		AllowedModes: allModes(),
	})

	var created roomStateData
	require.NoError(t, json.Unmarshal(wsWait(t, alice, "room-created"), &created))
	require.Len(t, created.Code, roomCodeLength)
	assert.Equal(t, 2, created.Settings.MaxPlayers)

	bob := dialWS(t, url)
	wsSend(t, bob, "join-room", joinRoomRequest{RoomCode: created.Code, PlayerName: "Bob"})
	wsWait(t, bob, "join-success")

	// Second join fills the room, so the game starts on both connections.
	var started gameStartData
	require.NoError(t, json.Unmarshal(wsWait(t, bob, "game-start"), &started))
	wsWait(t, alice, "game-start")
	require.Len(t, started.Players, 2)
	assert.Equal(t, started.Players[0].ID, started.TurnID)

	wsSend(t, alice, "submit-dilemma", submitRequest{
		RoomCode: created.Code,
		Option1:  "Pizza",
		Option2:  "Sushi",
		Type:     kindDilemma,
	})

	var prompt dilemmaReceivedData
	require.NoError(t, json.Unmarshal(wsWait(t, bob, "dilemma-received"), &prompt))
	assert.Equal(t, "Pizza", prompt.Option1)
	assert.Equal(t, "Alice", prompt.CreatorName)

	wsSend(t, bob, "vote", voteRequest{RoomCode: created.Code, Choice: 2})

	var result voteResultData
	require.NoError(t, json.Unmarshal(wsWait(t, alice, "vote-result"), &result))
	assert.Equal(t, 2, result.WinningChoice)
	assert.Equal(t, []string{"Bob"}, result.VotesByOption[2])
	assert.Equal(t, int64(6000), result.Delay)
}

func TestJoinUnknownRoomOverWebsocket(t *testing.T) {
	_, url := newTestServer(t)

	conn := dialWS(t, url)
	wsSend(t, conn, "join-room", joinRoomRequest{RoomCode: "ZZZZZZ", PlayerName: "Bob"})

	var payload errorData
	require.NoError(t, json.Unmarshal(wsWait(t, conn, "error"), &payload))
	assert.Equal(t, errRoomNotFound.Error(), payload.Message)
}

// Room codes are matched case-insensitively so typed-in codes still work.
func TestJoinCodeNormalization(t *testing.T) {
	_, url := newTestServer(t)

	alice := dialWS(t, url)
	wsSend(t, alice, "create-room", createRoomRequest{PlayerName: "Alice", MaxPlayers: 3})

	var created roomStateData
	require.NoError(t, json.Unmarshal(wsWait(t, alice, "room-created"), &created))

	bob := dialWS(t, url)
	wsSend(t, bob, "join-room", joinRoomRequest{
		RoomCode:   "  " + strings.ToLower(created.Code) + " ",
		PlayerName: "Bob",
	})

	var joined roomStateData
	require.NoError(t, json.Unmarshal(wsWait(t, bob, "join-success"), &joined))
	assert.Equal(t, created.Code, joined.Code)
}

// One connection belongs to at most one room: creating a second room ends
// membership in the first, which empties and removes it here.
func TestCreateRoomLeavesPreviousRoom(t *testing.T) {
	cfg := testConfig()
	rm := newRoomManager(cfg, noopFilter{})

	client := &Client{send: make(chan any, 64), playerID: "p0"}
	payload, err := json.Marshal(createRoomRequest{PlayerName: "Alice", MaxPlayers: 3})
	require.NoError(t, err)

	client.handleCreateRoom(cfg, rm, payload)
	first := client.currentRoom()
	require.NotNil(t, first)

	client.handleCreateRoom(cfg, rm, payload)
	second := client.currentRoom()
	require.NotNil(t, second)
	require.NotEqual(t, first.code, second.code)

	assert.Nil(t, rm.Get(first.code))
}

func TestJoinRoomLeavesPreviousRoom(t *testing.T) {
	cfg := testConfig()
	rm := newRoomManager(cfg, noopFilter{})

	roomA := rm.CreateRoom(newTestPlayer("ha", "Alice"), Settings{MaxPlayers: 4})
	require.NotNil(t, roomA)
	require.NoError(t, roomA.Join(newTestPlayer("hd", "Dave")))
	roomB := rm.CreateRoom(newTestPlayer("hb", "Carol"), Settings{MaxPlayers: 4})
	require.NotNil(t, roomB)

	bob := &Client{send: make(chan any, 64), playerID: "pb"}
	join := func(code, name string) {
		payload, err := json.Marshal(joinRoomRequest{RoomCode: code, PlayerName: name})
		require.NoError(t, err)
		bob.handleJoinRoom(rm, payload)
	}

	join(roomA.code, "Bob")
	require.Equal(t, roomA, bob.currentRoom())

	// A rejected join leaves the old membership untouched.
	join(roomB.code, "Carol")
	require.Equal(t, roomA, bob.currentRoom())
	roomA.mu.Lock()
	assert.Len(t, roomA.players, 3)
	roomA.mu.Unlock()

	join(roomB.code, "Bob")
	assert.Equal(t, roomB, bob.currentRoom())

	roomA.mu.Lock()
	assert.Equal(t, -1, roomA.playerIndexLocked("pb"))
	assert.Len(t, roomA.players, 2)
	roomA.mu.Unlock()

	roomB.mu.Lock()
	assert.NotEqual(t, -1, roomB.playerIndexLocked("pb"))
	roomB.mu.Unlock()
}

// Closing the socket behaves like an explicit leave: the rest of the room
// hears about it.
func TestDisconnectLeavesRoom(t *testing.T) {
	_, url := newTestServer(t)

	alice := dialWS(t, url)
	wsSend(t, alice, "create-room", createRoomRequest{PlayerName: "Alice", MaxPlayers: 3})

	var created roomStateData
	require.NoError(t, json.Unmarshal(wsWait(t, alice, "room-created"), &created))

	bob := dialWS(t, url)
	wsSend(t, bob, "join-room", joinRoomRequest{RoomCode: created.Code, PlayerName: "Bob"})
	wsWait(t, bob, "join-success")

	carol := dialWS(t, url)
	wsSend(t, carol, "join-room", joinRoomRequest{RoomCode: created.Code, PlayerName: "Carol"})
	wsWait(t, carol, "join-success")

	carol.Close()

	var left playerLeftData
	require.NoError(t, json.Unmarshal(wsWait(t, alice, "player-left"), &left))
	assert.Equal(t, "Carol", left.Name)
	assert.Len(t, left.Remaining, 2)
}
