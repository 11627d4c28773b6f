package main

import (
	"crypto/rand"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	roomCodeLength   = 6
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	maxNameLength  = 12
	maxRoomPlayers = 16

	defaultRareRoundFrequency = 5
)

// Player is one connected participant. The id is the per-connection token
// assigned by the transport layer; send is the same outbound queue the
// websocket write pump drains.
type Player struct {
	id   string
	name string
	send chan any
}

// trySend queues a message for this player without blocking. Slow or dead
// clients miss messages rather than stalling the room.
func (p *Player) trySend(msg any) {
	select {
	case p.send <- msg:
	default:
	}
}

// Settings is the immutable-after-creation configuration snapshot for a room.
type Settings struct {
	MaxPlayers         int      `json:"maxPlayers"`
	AllowedModes       []string `json:"allowedModes"`
	CreateTimerMinutes int      `json:"createTimerMinutes,omitempty"`
	RareRoundEnabled   bool     `json:"rareRoundEnabled,omitempty"`
	RareRoundFrequency int      `json:"rareRoundFrequency,omitempty"`
	RandomTurnOrder    bool     `json:"randomTurnOrder,omitempty"`
	ProfanityFilter    bool     `json:"profanityFilterEnabled,omitempty"`
}

func (s Settings) normalized() Settings {
	if s.MaxPlayers < 1 {
		s.MaxPlayers = 2
	}
	if s.MaxPlayers > maxRoomPlayers {
		s.MaxPlayers = maxRoomPlayers
	}
	if len(s.AllowedModes) == 0 {
		s.AllowedModes = []string{kindDilemma, kindQuestion, kindPhoto}
	}
	if s.RareRoundEnabled && s.RareRoundFrequency < 1 {
		s.RareRoundFrequency = defaultRareRoundFrequency
	}
	return s
}

// Room holds the state of one game session. Every mutation happens under mu,
// including timer ticks and delayed round advances, so handlers for the same
// room never interleave.
type Room struct {
	code     string
	manager  *RoomManager
	settings Settings

	mu         sync.Mutex
	players    []*Player
	started    bool
	closed     bool
	turnIndex  int
	round      int
	prompt     *Prompt
	votes      map[string]Vote
	activity   map[string]time.Time
	lastActive time.Time

	totalRounds  int
	rareQuestion string

	timer *createTimer

	// Overridable in tests; zero values mean production defaults.
	timerDuration time.Duration
	timerTick     time.Duration
	submitGrace   time.Duration
	delayOverride time.Duration
}

func validName(name string) bool {
	return name != "" && len(name) <= maxNameLength
}

func (r *Room) playerByIDLocked(id string) *Player {
	for _, p := range r.players {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (r *Room) playerIndexLocked(id string) int {
	for i, p := range r.players {
		if p.id == id {
			return i
		}
	}
	return -1
}

func (r *Room) playerListLocked() []playerInfo {
	list := make([]playerInfo, 0, len(r.players))
	for _, p := range r.players {
		list = append(list, playerInfo{ID: p.id, Name: p.name})
	}
	return list
}

func (r *Room) broadcastLocked(msg any) {
	for _, p := range r.players {
		p.trySend(msg)
	}
}

func (r *Room) touchLocked(playerID string) {
	now := time.Now()
	r.lastActive = now
	if playerID != "" {
		r.activity[playerID] = now
	}
}

// Join appends a player to an unstarted room, announces the updated roster,
// and starts the game as a side effect once the room reaches its declared
// capacity.
func (r *Room) Join(p *Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errRoomNotFound
	}
	if r.started {
		return errRoomStarted
	}
	if len(r.players) >= r.settings.MaxPlayers {
		return errRoomFull
	}
	for _, existing := range r.players {
		if strings.EqualFold(existing.name, p.name) {
			return errNameTaken
		}
	}

	r.players = append(r.players, p)
	r.touchLocked(p.id)

	p.trySend(newMessage("join-success", roomStateData{
		Code:     r.code,
		Players:  r.playerListLocked(),
		Settings: r.settings,
	}))
	r.broadcastLocked(newMessage("player-update", playerUpdateData{Players: r.playerListLocked()}))

	if len(r.players) == r.settings.MaxPlayers {
		r.startGameLocked()
	}

	return nil
}

// StartRequest handles an explicit start from the host.
func (r *Room) StartRequest(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errRoomNotFound
	}
	if len(r.players) == 0 || r.players[0].id != playerID {
		return errNotHost
	}
	if len(r.players) < 2 {
		return errNotEnoughPlayers
	}

	r.startGameLocked()
	return nil
}

// startGameLocked is idempotent; a room only ever starts once.
func (r *Room) startGameLocked() {
	if r.started {
		return
	}
	r.started = true
	r.touchLocked("")

	r.broadcastLocked(newMessage("game-start", gameStartData{
		TurnID:   r.players[r.turnIndex].id,
		Round:    r.round,
		Players:  r.playerListLocked(),
		Settings: r.settings,
	}))
	r.startCreateTimerLocked()
}

// Activity records a keepalive from a player. Only consulted by the
// optional idle-room reaper.
func (r *Room) Activity(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.playerByIDLocked(playerID) == nil {
		return
	}
	r.touchLocked(playerID)
}

// Leave removes a player and reconciles room state: teardown below the
// player minimum, turn clamp and round restart when the creator leaves,
// and completion re-checks when a pending voter leaves.
func (r *Room) Leave(playerID string) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return
	}

	idx := r.playerIndexLocked(playerID)
	if idx == -1 {
		r.mu.Unlock()
		return
	}

	wasCreator := idx == r.turnIndex
	leavingName := r.players[idx].name

	delete(r.votes, playerID)
	delete(r.activity, playerID)
	r.players = slices.Delete(r.players, idx, idx+1)
	r.touchLocked("")

	r.broadcastLocked(newMessage("player-left", playerLeftData{
		Name:      leavingName,
		Remaining: r.playerListLocked(),
	}))

	if len(r.players) == 0 || (len(r.players) < 2 && r.settings.MaxPlayers > 1) {
		r.teardownLocked("Not enough players left.")
		r.mu.Unlock()
		r.manager.remove(r.code)
		return
	}

	if wasCreator {
		// The round cannot be salvaged without its creator: clamp the
		// turn into the shrunk roster and announce a fresh round.
		r.turnIndex = r.turnIndex % len(r.players)
		r.prompt = nil
		r.votes = make(map[string]Vote)
		if r.started {
			r.announceRoundLocked()
		}
	} else {
		if idx < r.turnIndex {
			r.turnIndex--
		}
		if r.prompt != nil {
			// The departed voter must not leave the room stuck
			// waiting for a vote that can never arrive.
			if len(r.votes) >= len(r.eligibleVotersLocked()) {
				r.finishRoundLocked()
			} else {
				r.broadcastVoteStatusLocked()
			}
		}
	}

	r.broadcastLocked(newMessage("player-update", playerUpdateData{Players: r.playerListLocked()}))
	r.mu.Unlock()
}

// End tears the room down regardless of player count, broadcasting the
// given reason. Used by the idle reaper and process shutdown.
func (r *Room) End(reason string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.teardownLocked(reason)
	r.mu.Unlock()
	r.manager.remove(r.code)
}

func (r *Room) teardownLocked(reason string) {
	r.stopCreateTimerLocked(false)
	r.broadcastLocked(newMessage("game-ended", gameEndedData{Reason: reason}))
	r.closed = true
}

func (r *Room) lastActiveTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActive
}

// RoomManager owns the code → Room table. It is the only cross-room shared
// structure; the check-and-insert on creation runs under its lock so two
// racing creations can never mint the same code.
type RoomManager struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	cfg    *Config
	filter TextFilter
}

func newRoomManager(cfg *Config, filter TextFilter) *RoomManager {
	rm := &RoomManager{
		rooms:  make(map[string]*Room),
		cfg:    cfg,
		filter: filter,
	}
	if cfg.roomTimeout > 0 {
		go rm.reaperLoop(cfg.roomTimeout)
	}
	return rm
}

// newRoomCodeLocked generates a crypto-random room code, retrying until it
// does not collide with a currently-live room.
func (rm *RoomManager) newRoomCodeLocked() string {
	for {
		buf := make([]byte, roomCodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomCodeLength)
		for i := range out {
			out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
		}
		code := string(out)

		if _, exists := rm.rooms[code]; !exists {
			return code
		}
	}
}

// CreateRoom builds a room with the host as sole player. Invalid host names
// are rejected silently at this layer; the transport surfaces the error.
func (rm *RoomManager) CreateRoom(host *Player, settings Settings) *Room {
	if !validName(host.name) {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	code := rm.newRoomCodeLocked()
	now := time.Now()
	room := &Room{
		code:       code,
		manager:    rm,
		settings:   settings.normalized(),
		players:    []*Player{host},
		turnIndex:  0,
		round:      1,
		votes:      make(map[string]Vote),
		activity:   map[string]time.Time{host.id: now},
		lastActive: now,
	}
	rm.rooms[code] = room

	logf(rm.cfg, "ROOMS: %q created room %s", host.name, code)

	return room
}

// Get returns the live room for a code, or nil.
func (rm *RoomManager) Get(code string) *Room {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.rooms[code]
}

func (rm *RoomManager) remove(code string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.rooms, code)
}

// reaperLoop periodically ends rooms that have been idle longer than the
// configured timeout. Disabled unless --room-timeout is set.
func (rm *RoomManager) reaperLoop(idleTimeout time.Duration) {
	ticker := time.NewTicker(idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-idleTimeout)

		rm.mu.Lock()
		stale := make([]*Room, 0)
		for _, room := range rm.rooms {
			stale = append(stale, room)
		}
		rm.mu.Unlock()

		for _, room := range stale {
			if room.lastActiveTime().Before(cutoff) {
				logf(rm.cfg, "ROOMS: Reaping idle room %s", room.code)
				room.End("The room was closed due to inactivity.")
			}
		}
	}
}
