package main

import (
	"crypto/rand"
	"math/big"
)

// randomInt returns a uniform random integer in [0, n) via crypto/rand.
func randomInt(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// advanceTurnLocked moves turnIndex to the next creator: sequentially with
// wraparound, or uniformly at random among the other players when the room
// was created with randomTurnOrder (never the same creator twice in a row).
func (r *Room) advanceTurnLocked() {
	n := len(r.players)
	if n == 0 {
		return
	}

	if r.settings.RandomTurnOrder && n >= 2 {
		next := randomInt(n - 1)
		if next >= r.turnIndex {
			next++
		}
		r.turnIndex = next
		return
	}

	r.turnIndex = (r.turnIndex + 1) % n
}
