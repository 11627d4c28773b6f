package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTimedRoom builds a two-player room with fast timer overrides in
// place before the game starts, since the first countdown is armed by the
// start broadcast itself.
func setupTimedRoom(t *testing.T) (*Room, *Player, *Player) {
	t.Helper()

	rm := newTestManager(t)
	alice := newTestPlayer("p0", "Alice")
	room := rm.CreateRoom(alice, Settings{MaxPlayers: 3, AllowedModes: allModes()})
	require.NotNil(t, room)

	bob := newTestPlayer("p1", "Bob")
	require.NoError(t, room.Join(bob))

	room.timerDuration = 80 * time.Millisecond
	room.timerTick = 20 * time.Millisecond
	room.submitGrace = 30 * time.Millisecond

	require.NoError(t, room.StartRequest(alice.id))

	return room, alice, bob
}

// Scenario: the creator never submits, so the countdown ticks down, expires
// with a final auto-submit request to the creator, and the round is skipped
// after the grace window. The next round arms a fresh countdown.
func TestCreateTimerExpiryShipsRound(t *testing.T) {
	room, alice, bob := setupTimedRoom(t)

	waitForMessage(t, alice, "timer-expired", time.Second)
	skipped := waitForMessage(t, alice, "round-skipped", time.Second)
	assert.Equal(t, 2, skipped.Data.(roundSkippedData).Round)

	next := waitForMessage(t, alice, "new-round", time.Second)
	assert.Equal(t, bob.id, next.Data.(newRoundData).TurnID)
	assert.Equal(t, 2, next.Data.(newRoundData).Round)

	// Give the same broadcast time to land on the other queue, then make
	// sure only the creator was asked to auto-submit.
	time.Sleep(20 * time.Millisecond)
	bobMsgs := drainMessages(bob)
	assert.Empty(t, messagesOfType(bobMsgs, "timer-expired"))
	assert.NotEmpty(t, messagesOfType(bobMsgs, "create-timer-update"))
	assert.Len(t, messagesOfType(bobMsgs, "round-skipped"), 1)

	room.mu.Lock()
	defer room.mu.Unlock()
	assert.Equal(t, 2, room.round)
	assert.Equal(t, 1, room.turnIndex)
	require.NotNil(t, room.timer)
	assert.Equal(t, timerRunning, room.timer.state)
}

// A prompt arriving stops the countdown; the expiry path must not fire
// afterwards.
func TestCreateTimerStoppedBySubmit(t *testing.T) {
	room, alice, bob := setupTimedRoom(t)

	require.NoError(t, room.SubmitPrompt(alice.id, Prompt{
		Option1: "A", Option2: "B", Kind: kindDilemma,
	}))

	waitForMessage(t, bob, "create-timer-stopped", time.Second)

	// Well past the deadline plus grace.
	time.Sleep(150 * time.Millisecond)

	assert.Empty(t, messagesOfType(drainMessages(bob), "round-skipped"))

	room.mu.Lock()
	defer room.mu.Unlock()
	assert.Equal(t, 1, room.round)
	require.NotNil(t, room.prompt)
	assert.Equal(t, timerStopped, room.timer.state)
}

// A prompt can still arrive inside the grace window, and the round may even
// resolve before the window closes. The pending skip must then stand down
// rather than skipping a round that actually completed.
func TestLateSubmitDuringGraceNotSkipped(t *testing.T) {
	rm := newTestManager(t)
	alice := newTestPlayer("p0", "Alice")
	room := rm.CreateRoom(alice, Settings{MaxPlayers: 2, AllowedModes: allModes()})
	require.NotNil(t, room)

	room.timerDuration = 40 * time.Millisecond
	room.timerTick = 10 * time.Millisecond
	room.submitGrace = 200 * time.Millisecond
	room.delayOverride = time.Minute

	bob := newTestPlayer("p1", "Bob")
	require.NoError(t, room.Join(bob))

	waitForMessage(t, alice, "timer-expired", time.Second)

	require.NoError(t, room.SubmitPrompt(alice.id, Prompt{
		Option1: "A", Option2: "B", Kind: kindDilemma,
	}))
	require.NoError(t, room.CastVote(bob.id, Vote{Choice: 1}))

	// Well past the grace deadline.
	time.Sleep(300 * time.Millisecond)

	assert.Empty(t, messagesOfType(drainMessages(bob), "round-skipped"))

	room.mu.Lock()
	defer room.mu.Unlock()
	assert.Equal(t, 2, room.round)
	assert.Equal(t, 1, room.turnIndex)
}

// Skipped rounds do not count toward rare-round cadence.
func TestSkippedRoundsExcludedFromCadence(t *testing.T) {
	_, room, _ := setupStartedRoom(t, "Alice", "Bob", "Carol")

	room.mu.Lock()
	room.settings.RareRoundEnabled = true
	room.settings.RareRoundFrequency = 1
	room.skipRoundLocked()

	assert.Equal(t, 2, room.round)
	assert.Equal(t, 0, room.totalRounds)
	assert.Empty(t, room.rareQuestion)
	room.mu.Unlock()
}

func TestNoTimerWithoutConfiguredLimit(t *testing.T) {
	_, room, players := setupStartedRoom(t, "Alice", "Bob")

	room.mu.Lock()
	assert.Nil(t, room.timer)
	room.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, messagesOfType(drainMessages(players[0]), "create-timer-update"))
}
