package game

import "encoding/json"

// Direction is a facing on the grid. None means "not moving".
type Direction uint8

const (
	None Direction = iota
	Up
	Down
	Left
	Right
)

// allDirections is the fixed evaluation order used when listing legal moves.
var allDirections = [...]Direction{Up, Down, Left, Right}

func (d Direction) String() string {
	switch d {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	case Left:
		return "LEFT"
	case Right:
		return "RIGHT"
	default:
		return ""
	}
}

// Reverse returns the opposite direction. None reverses to None.
func (d Direction) Reverse() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	default:
		return None
	}
}

// Delta returns the column and row offset of a single step.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	default:
		return 0, 0
	}
}

// MarshalJSON encodes None as null and the rest as "UP", "DOWN", ...
func (d Direction) MarshalJSON() ([]byte, error) {
	if d == None {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// ParseDirection parses the wire form of a direction. Only the four
// movement directions are accepted.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "UP":
		return Up, true
	case "DOWN":
		return Down, true
	case "LEFT":
		return Left, true
	case "RIGHT":
		return Right, true
	default:
		return None, false
	}
}
