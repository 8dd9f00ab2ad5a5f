package game

import (
	"sync/atomic"
)

// =============================================================================
// SCORING AND TIMING RULES
// =============================================================================

const (
	DotScore          = 10
	PelletScore       = 50
	GhostScore        = 200
	PowerModeDuration = 5000 // ms, set (not added) when a pellet is eaten
	GhostTurnChance   = 0.2  // chance a ghost re-rolls while its heading is still legal
	MinGhosts         = 1
)

// Mode is SINGLE (one player) or PAIR (two players sharing a score).
type Mode uint8

const (
	ModeSingle Mode = iota
	ModePair
)

func (m Mode) String() string {
	if m == ModePair {
		return "pair"
	}
	return "single"
}

// Capacity is the number of player slots for the mode.
func (m Mode) Capacity() int {
	if m == ModePair {
		return 2
	}
	return 1
}

// MarshalText encodes the mode as "single" or "pair".
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// State of a session. WAITING only occurs in PAIR mode.
type State int32

const (
	StateWaiting State = iota
	StatePlaying
	StateGameOver
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StatePlaying:
		return "playing"
	case StateGameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Player is a human-controlled avatar.
//
// Everything except the pending direction and detached flag is owned by the
// session tick goroutine. Connection goroutines only ever call SetPending.
type Player struct {
	Nickname string
	Pos      Position
	LastPos  Position
	Dir      Direction
	Alive    bool

	pending  atomic.Uint32 // Direction, last write wins
	detached atomic.Bool
}

// SetPending records the latest requested direction, replacing any earlier
// one that has not been consumed yet.
func (p *Player) SetPending(d Direction) { p.pending.Store(uint32(d)) }

// Pending returns the unconsumed requested direction, or None.
func (p *Player) Pending() Direction { return Direction(p.pending.Load()) }

// consumePending clears the slot only if it still holds d, so an input that
// races with the tick survives for the next one.
func (p *Player) consumePending(d Direction) {
	p.pending.CompareAndSwap(uint32(d), uint32(None))
}

// Ghost is an autonomous adversary. Home is its spawn cell.
type Ghost struct {
	ID      int
	Pos     Position
	LastPos Position
	Dir     Direction
	Home    Position
	Color   string
}

// World is the arena a session owns: grid, entities, score and timers.
// It is mutated only by Step.
type World struct {
	Mode        Mode
	State       State
	Grid        *Grid
	Players     []*Player
	Ghosts      []*Ghost
	Score       int
	PowerModeMs int
	Tick        uint64
}

// NewWorld builds a fresh arena from tpl with ghostCount ghosts at their
// spawns. Players are added with AddPlayer.
func NewWorld(mode Mode, tpl *Template, ghostCount int) *World {
	w := &World{
		Mode:  mode,
		State: StateWaiting,
		Grid:  tpl.NewGrid(),
	}
	for _, gs := range tpl.GhostSpawns(ghostCount) {
		w.Ghosts = append(w.Ghosts, &Ghost{
			ID:      gs.ID,
			Pos:     gs.Pos,
			LastPos: gs.Pos,
			Dir:     gs.Dir,
			Home:    gs.Pos,
			Color:   gs.Color,
		})
	}
	return w
}

// AddPlayer places a new alive player on the next free spawn.
func (w *World) AddPlayer(tpl *Template, nickname string) *Player {
	spawn := tpl.PlayerSpawn(len(w.Players))
	p := &Player{
		Nickname: nickname,
		Pos:      spawn,
		LastPos:  spawn,
		Alive:    true,
	}
	w.Players = append(w.Players, p)
	return p
}

// Player returns the player with the given nickname, or nil.
func (w *World) Player(nickname string) *Player {
	for _, p := range w.Players {
		if p.Nickname == nickname {
			return p
		}
	}
	return nil
}

// AllDead reports whether no player is alive.
func (w *World) AllDead() bool {
	for _, p := range w.Players {
		if p.Alive {
			return false
		}
	}
	return true
}
