package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{filterTimeout: 3 * time.Second}
}

func newTestManager(t *testing.T) *RoomManager {
	t.Helper()
	return newRoomManager(testConfig(), noopFilter{})
}

func newTestPlayer(id, name string) *Player {
	return &Player{id: id, name: name, send: make(chan any, 256)}
}

func allModes() []string {
	return []string{kindDilemma, kindQuestion, kindPhoto, kindVotePerson}
}

// setupStartedRoom creates a room at exactly the given capacity, so joining
// the last player auto-starts the game. Queues are drained afterwards so
// tests only see messages caused by their own actions.
func setupStartedRoom(t *testing.T, names ...string) (*RoomManager, *Room, []*Player) {
	t.Helper()

	rm := newTestManager(t)
	players := make([]*Player, len(names))
	players[0] = newTestPlayer("p0", names[0])

	room := rm.CreateRoom(players[0], Settings{
		MaxPlayers:   len(names),
		AllowedModes: allModes(),
	})
	require.NotNil(t, room)

	for i := 1; i < len(names); i++ {
		players[i] = newTestPlayer(fmt.Sprintf("p%d", i), names[i])
		require.NoError(t, room.Join(players[i]))
	}

	for _, p := range players {
		drainMessages(p)
	}

	return rm, room, players
}

// drainMessages empties a player's outbound queue without blocking.
func drainMessages(p *Player) []serverMessage {
	var msgs []serverMessage
	for {
		select {
		case m := <-p.send:
			if sm, ok := m.(serverMessage); ok {
				msgs = append(msgs, sm)
			}
		default:
			return msgs
		}
	}
}

func messagesOfType(msgs []serverMessage, event string) []serverMessage {
	var matched []serverMessage
	for _, m := range msgs {
		if m.Type == event {
			matched = append(matched, m)
		}
	}
	return matched
}

// waitForMessage blocks until the player receives the given event or the
// deadline passes. Used by tests that exercise timers and delayed round
// advances.
func waitForMessage(t *testing.T, p *Player, event string, deadline time.Duration) serverMessage {
	t.Helper()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for {
		select {
		case m := <-p.send:
			if sm, ok := m.(serverMessage); ok && sm.Type == event {
				return sm
			}
		case <-timer.C:
			t.Fatalf("timed out waiting for %q", event)
			return serverMessage{}
		}
	}
}
