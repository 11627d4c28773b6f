// Dilemmabox is a turn-based party game. Players gather in a room behind a
// six-character code, take turns creating a prompt (a dilemma, a pair of
// questions, a photo pairing, or a "vote for a person" question), and the
// rest of the room votes. Results are tallied and broadcast, then the turn
// rotates.
//
// Features:
// - One WebSocket per client at /ws; rooms addressed by code inside messages
// - Rooms auto-start when full, or on host request with 2+ players
// - Sequential or random turn order, never the same creator twice in a row
// - Live vote-progress updates, last-vote-wins until a round resolves
// - Deterministic tie-break: option 1 wins ties
// - Result display delay scales with room size (or answer count for
//   question rounds) and is shared with clients in the result payload
// - Optional per-round creation countdown with auto-submit and round skip
// - Optional rare rounds every Nth completed round in larger rooms
// - Optional external profanity filter, fail-open
// - In-browser QR button to share a room join link, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Messages coming from clients
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type createRoomRequest struct {
	PlayerName             string   `json:"playerName"`
	MaxPlayers             int      `json:"maxPlayers,omitempty"`
	AllowedModes           []string `json:"allowedModes,omitempty"`
	CreateTimerMinutes     int      `json:"createTimerMinutes,omitempty"`
	RareRoundEnabled       bool     `json:"rareRoundEnabled,omitempty"`
	RareRoundFrequency     int      `json:"rareRoundFrequency,omitempty"`
	RandomTurnOrder        bool     `json:"randomTurnOrder,omitempty"`
	ProfanityFilterEnabled bool     `json:"profanityFilterEnabled,omitempty"`
}

type joinRoomRequest struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type roomRequest struct {
	RoomCode string `json:"roomCode"`
}

type submitRequest struct {
	RoomCode     string `json:"roomCode"`
	Option1      string `json:"option1,omitempty"`
	Option2      string `json:"option2,omitempty"`
	Type         string `json:"type"`
	Question     string `json:"question,omitempty"`
	IsAutoSubmit bool   `json:"isAutoSubmit,omitempty"`
}

type voteRequest struct {
	RoomCode         string `json:"roomCode"`
	Choice           int    `json:"choice,omitempty"`
	Answer           string `json:"answer,omitempty"`
	SelectedPersonID string `json:"selectedPersonId,omitempty"`
}

// Messages sent to clients
type serverMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func newMessage(event string, data any) serverMessage {
	return serverMessage{Type: event, Data: data}
}

type playerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// roomStateData answers both room-created and join-success.
type roomStateData struct {
	Code     string       `json:"code"`
	Players  []playerInfo `json:"players"`
	Settings Settings     `json:"settings"`
}

type playerUpdateData struct {
	Players []playerInfo `json:"players"`
}

type gameStartData struct {
	TurnID   string       `json:"turnId"`
	Round    int          `json:"round"`
	Players  []playerInfo `json:"players"`
	Settings Settings     `json:"settings"`
}

type dilemmaReceivedData struct {
	Option1     string `json:"option1,omitempty"`
	Option2     string `json:"option2,omitempty"`
	Kind        string `json:"type"`
	Question    string `json:"question,omitempty"`
	CreatorName string `json:"creatorName"`
}

type voteStatusEntry struct {
	Name  string `json:"name"`
	Voted bool   `json:"voted"`
}

type answerEntry struct {
	Name   string `json:"name"`
	Text   string `json:"text"`
	Choice int    `json:"choice,omitempty"`
}

type voteResultData struct {
	WinningChoice     int                 `json:"winningChoice"`
	VotesByOption     map[int][]string    `json:"votesByOption"`
	Dilemma           *Prompt             `json:"dilemma"`
	Answers           []answerEntry       `json:"answers"`
	VotePersonResults map[string][]string `json:"votePersonResults,omitempty"`
	Delay             int64               `json:"delay"`
}

type newRoundData struct {
	TurnID            string   `json:"turnId"`
	Round             int      `json:"round"`
	Settings          Settings `json:"settings"`
	IsRareRound       bool     `json:"isRareRound,omitempty"`
	RareRoundQuestion string   `json:"rareRoundQuestion,omitempty"`
}

type playerLeftData struct {
	Name      string       `json:"name"`
	Remaining []playerInfo `json:"remaining"`
}

type gameEndedData struct {
	Reason string `json:"reason"`
}

type createTimerUpdateData struct {
	RemainingSeconds int `json:"remainingSeconds"`
	TotalSeconds     int `json:"totalSeconds"`
}

type roundSkippedData struct {
	Round int `json:"round"`
}

type errorData struct {
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string

	mu   sync.Mutex
	room *Room
}

func (c *Client) setRoom(r *Room) {
	c.mu.Lock()
	c.room = r
	c.mu.Unlock()
}

func (c *Client) currentRoom() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) trySend(msg any) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(err error) {
	c.trySend(newMessage("error", errorData{Message: err.Error()}))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// newPlayerID mints the per-connection identity token. Room logic treats it
// as opaque.
func newPlayerID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

func serveWS(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ROOMS: upgrade error: %v", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 32),
			playerID: newPlayerID(),
		}

		go client.writePump()
		client.readPump(cfg, rm)
	}
}

func (c *Client) readPump(cfg *Config, rm *RoomManager) {
	defer func() {
		// Transport disconnect behaves exactly like leave-room for
		// whichever room this identity belonged to.
		if room := c.currentRoom(); room != nil {
			room.Leave(c.playerID)
		}
		close(c.send)
	}()

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "create-room":
			c.handleCreateRoom(cfg, rm, msg.Data)
		case "join-room":
			c.handleJoinRoom(rm, msg.Data)
		case "start-game-request":
			c.handleStartGame(rm, msg.Data)
		case "submit-dilemma":
			c.handleSubmit(cfg, rm, msg.Data)
		case "vote":
			c.handleVote(rm, msg.Data)
		case "player-activity":
			var req roomRequest
			if json.Unmarshal(msg.Data, &req) == nil {
				if room := rm.Get(normalizeCode(req.RoomCode)); room != nil {
					room.Activity(c.playerID)
				}
			}
		case "leave-room":
			var req roomRequest
			if json.Unmarshal(msg.Data, &req) == nil {
				if room := rm.Get(normalizeCode(req.RoomCode)); room != nil {
					room.Leave(c.playerID)
				}
				c.setRoom(nil)
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c *Client) handleCreateRoom(cfg *Config, rm *RoomManager, data json.RawMessage) {
	var req createRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	if !validName(req.PlayerName) {
		c.sendError(errInvalidName)
		return
	}

	host := &Player{id: c.playerID, name: req.PlayerName, send: c.send}
	settings := Settings{
		MaxPlayers:         req.MaxPlayers,
		AllowedModes:       req.AllowedModes,
		CreateTimerMinutes: req.CreateTimerMinutes,
		RareRoundEnabled:   req.RareRoundEnabled,
		RareRoundFrequency: req.RareRoundFrequency,
		RandomTurnOrder:    req.RandomTurnOrder,
		ProfanityFilter:    req.ProfanityFilterEnabled && cfg.filterURL != "",
	}

	room := rm.CreateRoom(host, settings)
	if room == nil {
		c.sendError(errInvalidName)
		return
	}

	// One room per connection: entering a new room leaves the old one, so
	// no ghost player lingers there as a voter who can never vote.
	if prev := c.currentRoom(); prev != nil {
		prev.Leave(c.playerID)
	}
	c.setRoom(room)

	room.mu.Lock()
	c.trySend(newMessage("room-created", roomStateData{
		Code:     room.code,
		Players:  room.playerListLocked(),
		Settings: room.settings,
	}))
	room.mu.Unlock()
}

func (c *Client) handleJoinRoom(rm *RoomManager, data json.RawMessage) {
	var req joinRoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	if !validName(req.PlayerName) {
		c.sendError(errInvalidName)
		return
	}

	room := rm.Get(normalizeCode(req.RoomCode))
	if room == nil {
		c.sendError(errRoomNotFound)
		return
	}

	player := &Player{id: c.playerID, name: req.PlayerName, send: c.send}
	if err := room.Join(player); err != nil {
		c.sendError(err)
		return
	}

	// Membership in the previous room ends only once the new join succeeds.
	if prev := c.currentRoom(); prev != nil && prev != room {
		prev.Leave(c.playerID)
	}
	c.setRoom(room)

	logf(rm.cfg, "ROOMS: %q joined room %s", req.PlayerName, room.code)
}

func (c *Client) handleStartGame(rm *RoomManager, data json.RawMessage) {
	var req roomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	room := rm.Get(normalizeCode(req.RoomCode))
	if room == nil {
		c.sendError(errRoomNotFound)
		return
	}
	if err := room.StartRequest(c.playerID); err != nil {
		c.sendError(err)
	}
}

func (c *Client) handleSubmit(cfg *Config, rm *RoomManager, data json.RawMessage) {
	var req submitRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	room := rm.Get(normalizeCode(req.RoomCode))
	if room == nil {
		if !req.IsAutoSubmit {
			c.sendError(errRoomNotFound)
		}
		return
	}

	prompt := Prompt{
		Option1:  req.Option1,
		Option2:  req.Option2,
		Kind:     req.Type,
		Question: req.Question,
	}

	// The filter call runs outside the room lock so a slow collaborator
	// stalls only this submission, never the room. Settings are frozen at
	// creation, so the unlocked read is safe.
	if room.settings.ProfanityFilter {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.filterTimeout)
		if prompt.Kind == kindDilemma || prompt.Kind == kindQuestion {
			prompt.Option1 = filterText(ctx, rm.filter, prompt.Option1)
			prompt.Option2 = filterText(ctx, rm.filter, prompt.Option2)
		}
		prompt.Question = filterText(ctx, rm.filter, prompt.Question)
		cancel()
	}

	err := room.SubmitPrompt(c.playerID, prompt)
	if err != nil && !req.IsAutoSubmit {
		// Auto-submit failures are swallowed: the timer-expiry path
		// independently decides whether to skip the round.
		c.sendError(err)
	}
}

func (c *Client) handleVote(rm *RoomManager, data json.RawMessage) {
	var req voteRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}

	room := rm.Get(normalizeCode(req.RoomCode))
	if room == nil {
		return
	}

	vote := Vote{
		Choice:           req.Choice,
		Answer:           req.Answer,
		SelectedPersonID: req.SelectedPersonID,
	}
	if err := room.CastVote(c.playerID, vote); err != nil {
		c.sendError(err)
	}
}
