package game

// defaultLayout is the classic 21x19 maze. Row 10 is the wrap tunnel and the
// ghost house sits behind the door at (9,9).
var defaultLayout = []string{
	"###################",
	"#........#........#",
	"#o##.###.#.###.##o#",
	"#.##.###.#.###.##.#",
	"#........ ........#",
	"#.##.#.#####.#.##.#",
	"#....#...#...#....#",
	"####.### # ###.####",
	"   #.#       #.#   ",
	"####.# ##-## #.####",
	" ....  #   #  .... ",
	"####.# ##### #.####",
	"   #.#       #.#   ",
	"####.#.#####.#.####",
	"#........#........#",
	"#.##.###.#.###.##.#",
	"#o.#..... .....#.o#",
	"##.#.#.#####.#.#.##",
	"#....#...#...#....#",
	"###################",
	"###################",
}

var defaultPlayerSpawns = []Position{
	{X: 9, Y: 16},
	{X: 9, Y: 4},
}

var defaultGhostSpawns = []GhostSpawn{
	{ID: 1, Pos: Position{X: 9, Y: 8}, Dir: Left, Color: "red"},
	{ID: 2, Pos: Position{X: 8, Y: 10}, Dir: Right, Color: "pink"},
	{ID: 3, Pos: Position{X: 9, Y: 10}, Dir: Up, Color: "cyan"},
	{ID: 4, Pos: Position{X: 10, Y: 10}, Dir: Left, Color: "orange"},
}

var defaultTemplate = mustParse(defaultLayout, defaultPlayerSpawns, defaultGhostSpawns)

// DefaultTemplate returns the built-in maze.
func DefaultTemplate() *Template { return defaultTemplate }

func mustParse(layout []string, players []Position, ghosts []GhostSpawn) *Template {
	t, err := ParseTemplate(layout, players, ghosts)
	if err != nil {
		panic("game: invalid built-in maze: " + err.Error())
	}
	return t
}
