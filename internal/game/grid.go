package game

import (
	"errors"
	"fmt"
)

// Cell is a grid cell code. The numeric values are the wire representation.
type Cell uint8

const (
	Empty  Cell = 0
	Wall   Cell = 1
	Dot    Cell = 2
	Pellet Cell = 3
	Door   Cell = 9
)

// Template parse errors
var (
	ErrEmptyLayout  = errors.New("layout has no rows")
	ErrRaggedLayout = errors.New("layout rows differ in width")
	ErrUnknownCell  = errors.New("unknown cell symbol")
	ErrBadSpawn     = errors.New("spawn outside grid or on a wall")
	ErrNoSpawns     = errors.New("template needs player and ghost spawns")
)

// Position is a column (X) / row (Y) pair.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Grid is a rectangular array of cells stored row-major.
type Grid struct {
	rows  int
	cols  int
	cells []Cell
}

func (g *Grid) Rows() int { return g.rows }
func (g *Grid) Cols() int { return g.cols }

// InBounds reports whether p addresses a cell of the grid.
func (g *Grid) InBounds(p Position) bool {
	return p.X >= 0 && p.X < g.cols && p.Y >= 0 && p.Y < g.rows
}

// At returns the cell at p. Out-of-bounds positions read as Wall.
func (g *Grid) At(p Position) Cell {
	if !g.InBounds(p) {
		return Wall
	}
	return g.cells[p.Y*g.cols+p.X]
}

// Set overwrites the cell at p. Out-of-bounds writes are ignored.
func (g *Grid) Set(p Position, c Cell) {
	if g.InBounds(p) {
		g.cells[p.Y*g.cols+p.X] = c
	}
}

// Count returns how many cells hold c.
func (g *Grid) Count(c Cell) int {
	n := 0
	for _, cell := range g.cells {
		if cell == c {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	cells := make([]Cell, len(g.cells))
	copy(cells, g.cells)
	return &Grid{rows: g.rows, cols: g.cols, cells: cells}
}

// Codes returns the grid as rows of wire cell codes.
func (g *Grid) Codes() [][]int {
	out := make([][]int, g.rows)
	for y := 0; y < g.rows; y++ {
		row := make([]int, g.cols)
		for x := 0; x < g.cols; x++ {
			row[x] = int(g.cells[y*g.cols+x])
		}
		out[y] = row
	}
	return out
}

// GhostSpawn is the initial layout of one ghost. Pos doubles as its home.
type GhostSpawn struct {
	ID    int
	Pos   Position
	Dir   Direction
	Color string
}

// Template is an immutable maze definition. Sessions never touch it
// directly; they play on a grid returned by NewGrid.
type Template struct {
	grid         *Grid
	playerSpawns []Position
	ghostSpawns  []GhostSpawn
}

var cellSymbols = map[rune]Cell{
	'#': Wall,
	'.': Dot,
	'o': Pellet,
	'-': Door,
	' ': Empty,
}

// ParseTemplate builds a template from an ASCII layout.
//
//	#  wall     .  dot     o  pellet
//	-  door        (space) empty
func ParseTemplate(layout []string, players []Position, ghosts []GhostSpawn) (*Template, error) {
	if len(layout) == 0 {
		return nil, ErrEmptyLayout
	}
	if len(players) == 0 || len(ghosts) == 0 {
		return nil, ErrNoSpawns
	}

	cols := len([]rune(layout[0]))
	if cols == 0 {
		return nil, ErrEmptyLayout
	}
	g := &Grid{rows: len(layout), cols: cols, cells: make([]Cell, 0, len(layout)*cols)}

	for y, line := range layout {
		runes := []rune(line)
		if len(runes) != cols {
			return nil, fmt.Errorf("row %d has width %d, want %d: %w", y, len(runes), cols, ErrRaggedLayout)
		}
		for x, r := range runes {
			c, ok := cellSymbols[r]
			if !ok {
				return nil, fmt.Errorf("%q at (%d,%d): %w", r, x, y, ErrUnknownCell)
			}
			g.cells = append(g.cells, c)
		}
	}

	for _, p := range players {
		if !g.InBounds(p) || g.At(p) == Wall {
			return nil, fmt.Errorf("player spawn %v: %w", p, ErrBadSpawn)
		}
	}
	for _, gs := range ghosts {
		if !g.InBounds(gs.Pos) || g.At(gs.Pos) == Wall {
			return nil, fmt.Errorf("ghost %d spawn %v: %w", gs.ID, gs.Pos, ErrBadSpawn)
		}
	}

	t := &Template{
		grid:         g,
		playerSpawns: append([]Position(nil), players...),
		ghostSpawns:  append([]GhostSpawn(nil), ghosts...),
	}
	return t, nil
}

// NewGrid returns a fresh mutable copy of the maze.
func (t *Template) NewGrid() *Grid { return t.grid.Clone() }

func (t *Template) Rows() int { return t.grid.rows }
func (t *Template) Cols() int { return t.grid.cols }

// PlayerSpawn returns the spawn for the i-th player slot. Slots beyond the
// configured spawns reuse the last one.
func (t *Template) PlayerSpawn(i int) Position {
	if i >= len(t.playerSpawns) {
		i = len(t.playerSpawns) - 1
	}
	return t.playerSpawns[i]
}

// MaxGhosts is the number of ghost spawns defined by the template.
func (t *Template) MaxGhosts() int { return len(t.ghostSpawns) }

// GhostSpawns returns the first n ghost spawns.
func (t *Template) GhostSpawns(n int) []GhostSpawn {
	if n > len(t.ghostSpawns) {
		n = len(t.ghostSpawns)
	}
	return append([]GhostSpawn(nil), t.ghostSpawns[:n]...)
}
