package game

import "github.com/google/uuid"

// PlayerSnapshot is the read-only view of a player.
type PlayerSnapshot struct {
	Nickname string    `json:"nickname"`
	Pos      Position  `json:"pos"`
	Dir      Direction `json:"dir"`
	Alive    bool      `json:"alive"`
}

// GhostSnapshot is the read-only view of a ghost.
type GhostSnapshot struct {
	ID    int       `json:"id"`
	Pos   Position  `json:"pos"`
	Dir   Direction `json:"dir"`
	Color string    `json:"color"`
}

// Snapshot is an immutable copy of a world after a tick. It shares no memory
// with the live arena and is safe to read from any goroutine.
type Snapshot struct {
	SessionID   uuid.UUID        `json:"sessionId"`
	Mode        Mode             `json:"mode"`
	State       State            `json:"state"`
	Tick        uint64           `json:"tick"`
	Grid        [][]int          `json:"grid"`
	Players     []PlayerSnapshot `json:"players"`
	Ghosts      []GhostSnapshot  `json:"ghosts"`
	Score       int              `json:"score"`
	PowerModeMs int              `json:"powerModeTime"`
}

// GameOver reports whether the snapshot is terminal.
func (s *Snapshot) GameOver() bool { return s.State == StateGameOver }

// TakeSnapshot deep-copies w.
func TakeSnapshot(id uuid.UUID, w *World) *Snapshot {
	snap := &Snapshot{
		SessionID:   id,
		Mode:        w.Mode,
		State:       w.State,
		Tick:        w.Tick,
		Grid:        w.Grid.Codes(),
		Players:     make([]PlayerSnapshot, len(w.Players)),
		Ghosts:      make([]GhostSnapshot, len(w.Ghosts)),
		Score:       w.Score,
		PowerModeMs: w.PowerModeMs,
	}
	for i, p := range w.Players {
		snap.Players[i] = PlayerSnapshot{Nickname: p.Nickname, Pos: p.Pos, Dir: p.Dir, Alive: p.Alive}
	}
	for i, g := range w.Ghosts {
		snap.Ghosts[i] = GhostSnapshot{ID: g.ID, Pos: g.Pos, Dir: g.Dir, Color: g.Color}
	}
	return snap
}
