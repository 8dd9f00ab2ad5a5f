// Package protocol defines the JSON messages exchanged over the game
// WebSocket. Every message, in both directions, carries a "type" tag.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"maze-arena/internal/game"
)

// Message types
const (
	TypeStartSingle = "start_single"
	TypeJoinPair    = "join_pair"
	TypeInput       = "input"

	TypeLobbyStats = "lobby_stats"
	TypeWaiting    = "waiting"
	TypeGameStart  = "game_start"
	TypeState      = "state"
	TypeError      = "error"
)

var (
	ErrMalformed        = errors.New("malformed message")
	ErrUnknownType      = errors.New("unknown message type")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidGhosts    = errors.New("invalid ghost count")
)

// =============================================================================
// CLIENT → SERVER
// =============================================================================

// Inbound is a decoded client intent.
type Inbound struct {
	Type       string
	Direction  game.Direction // input only
	GhostCount int            // start_single only; 0 means server default
}

type rawInbound struct {
	Type       string  `json:"type"`
	Direction  *string `json:"direction,omitempty"`
	GhostCount *int    `json:"ghostCount,omitempty"`
}

// Decode parses one client message.
func Decode(data []byte) (Inbound, error) {
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch raw.Type {
	case TypeStartSingle:
		in := Inbound{Type: raw.Type}
		if raw.GhostCount != nil {
			if *raw.GhostCount < 1 {
				return Inbound{}, fmt.Errorf("%w: %d", ErrInvalidGhosts, *raw.GhostCount)
			}
			in.GhostCount = *raw.GhostCount
		}
		return in, nil

	case TypeJoinPair:
		return Inbound{Type: raw.Type}, nil

	case TypeInput:
		if raw.Direction == nil {
			return Inbound{}, fmt.Errorf("%w: missing", ErrInvalidDirection)
		}
		d, ok := game.ParseDirection(*raw.Direction)
		if !ok {
			return Inbound{}, fmt.Errorf("%w: %q", ErrInvalidDirection, *raw.Direction)
		}
		return Inbound{Type: raw.Type, Direction: d}, nil

	case "":
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)

	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownType, raw.Type)
	}
}

// =============================================================================
// SERVER → CLIENT
// =============================================================================

// LobbyStats is broadcast to every connection on connect/disconnect and
// periodically.
type LobbyStats struct {
	Type        string `json:"type"`
	OnlineCount int    `json:"online_count"`
}

// Waiting is sent to a connection queued for a pair partner.
type Waiting struct {
	Type string `json:"type"`
}

// GameStart announces a session that just entered PLAYING.
type GameStart struct {
	Type      string   `json:"type"`
	Mode      string   `json:"mode"`
	SessionID string   `json:"sessionId"`
	Players   []string `json:"players"`
}

// Error reports a rejected intent. The connection stays open.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PlayerState is one entry of State.Players, keyed by nickname.
type PlayerState struct {
	Pos   game.Position  `json:"pos"`
	Dir   game.Direction `json:"dir"`
	Alive bool           `json:"alive"`
}

// GhostState is one entry of State.Ghosts.
type GhostState struct {
	ID    int            `json:"id"`
	Pos   game.Position  `json:"pos"`
	Dir   game.Direction `json:"dir"`
	Color string         `json:"color"`
}

// State is the per-tick snapshot broadcast.
type State struct {
	Type          string                 `json:"type"`
	SessionID     string                 `json:"sessionId"`
	Mode          string                 `json:"mode"`
	Tick          uint64                 `json:"tick"`
	Grid          [][]int                `json:"grid"`
	Players       map[string]PlayerState `json:"players"`
	Ghosts        []GhostState           `json:"ghosts"`
	Score         int                    `json:"score"`
	GameOver      bool                   `json:"gameOver"`
	PowerModeTime int                    `json:"powerModeTime"`
}

// NewState converts a snapshot into its wire form.
func NewState(s *game.Snapshot) State {
	st := State{
		Type:          TypeState,
		SessionID:     s.SessionID.String(),
		Mode:          s.Mode.String(),
		Tick:          s.Tick,
		Grid:          s.Grid,
		Players:       make(map[string]PlayerState, len(s.Players)),
		Ghosts:        make([]GhostState, len(s.Ghosts)),
		Score:         s.Score,
		GameOver:      s.GameOver(),
		PowerModeTime: s.PowerModeMs,
	}
	for _, p := range s.Players {
		st.Players[p.Nickname] = PlayerState{Pos: p.Pos, Dir: p.Dir, Alive: p.Alive}
	}
	for i, g := range s.Ghosts {
		st.Ghosts[i] = GhostState{ID: g.ID, Pos: g.Pos, Dir: g.Dir, Color: g.Color}
	}
	return st
}

// EncodeState is the session broadcast encoder.
func EncodeState(s *game.Snapshot) ([]byte, error) {
	return json.Marshal(NewState(s))
}

func EncodeLobbyStats(online int) []byte {
	return mustEncode(LobbyStats{Type: TypeLobbyStats, OnlineCount: online})
}

func EncodeWaiting() []byte {
	return mustEncode(Waiting{Type: TypeWaiting})
}

func EncodeGameStart(mode game.Mode, sessionID string, players []string) []byte {
	return mustEncode(GameStart{Type: TypeGameStart, Mode: mode.String(), SessionID: sessionID, Players: players})
}

func EncodeError(msg string) []byte {
	return mustEncode(Error{Type: TypeError, Message: msg})
}

// mustEncode marshals fixed-shape control messages, which cannot fail.
func mustEncode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("protocol: " + err.Error())
	}
	return data
}
