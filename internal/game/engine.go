package game

import "time"

// Rand is the random source used by the ghost policy. *math/rand.Rand
// satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// TickEvents summarizes what happened during one Step.
type TickEvents struct {
	Dots        int
	Pellets     int
	GhostsEaten []int    // ghost ids sent home
	Deaths      []string // nicknames
	GameOver    bool
}

// Step advances a PLAYING world by one tick. It is the only code that
// mutates the world once a session is running.
func Step(w *World, rng Rand, interval time.Duration) TickEvents {
	var ev TickEvents
	if w.State != StatePlaying {
		return ev
	}
	w.Tick++

	for _, p := range w.Players {
		p.LastPos = p.Pos
	}
	for _, g := range w.Ghosts {
		g.LastPos = g.Pos
	}

	pelletEaten := false
	for _, p := range w.Players {
		if !p.Alive {
			continue
		}
		movePlayer(w, p)
		switch w.Grid.At(p.Pos) {
		case Dot:
			w.Grid.Set(p.Pos, Empty)
			w.Score += DotScore
			ev.Dots++
		case Pellet:
			w.Grid.Set(p.Pos, Empty)
			w.Score += PelletScore
			w.PowerModeMs = PowerModeDuration
			pelletEaten = true
			ev.Pellets++
		}
	}

	for _, g := range w.Ghosts {
		g.Dir = chooseGhostDirection(w.Grid, g, rng)
		if next, ok := resolveMove(w.Grid, g.Pos, g.Dir); ok {
			g.Pos = next
		}
	}

	resolveCollisions(w, &ev)

	// A timer started this tick is reported at full length.
	if w.PowerModeMs > 0 && !pelletEaten {
		w.PowerModeMs -= int(interval / time.Millisecond)
		if w.PowerModeMs < 0 {
			w.PowerModeMs = 0
		}
	}

	if w.AllDead() {
		w.State = StateGameOver
		ev.GameOver = true
	}
	return ev
}

// movePlayer adopts a legal pending direction, then advances one cell if the
// facing allows it. Illegal moves leave the player in place, facing kept.
func movePlayer(w *World, p *Player) {
	if pd := p.Pending(); pd != None {
		if _, ok := resolveMove(w.Grid, p.Pos, pd); ok {
			p.Dir = pd
			p.consumePending(pd)
		}
	}
	if next, ok := resolveMove(w.Grid, p.Pos, p.Dir); ok {
		p.Pos = next
	}
}

// resolveMove returns the cell reached by one step from pos. Vertical exits
// are illegal, horizontal exits wrap, walls block.
func resolveMove(g *Grid, pos Position, dir Direction) (Position, bool) {
	if dir == None {
		return pos, false
	}
	dx, dy := dir.Delta()
	next := Position{X: pos.X + dx, Y: pos.Y + dy}
	if next.Y < 0 || next.Y >= g.Rows() {
		return pos, false
	}
	if next.X < 0 {
		next.X = g.Cols() - 1
	} else if next.X >= g.Cols() {
		next.X = 0
	}
	if g.At(next) == Wall {
		return pos, false
	}
	return next, true
}

func legalDirections(g *Grid, pos Position) []Direction {
	legal := make([]Direction, 0, len(allDirections))
	for _, d := range allDirections {
		if _, ok := resolveMove(g, pos, d); ok {
			legal = append(legal, d)
		}
	}
	return legal
}

// chooseGhostDirection keeps the current heading with probability
// 1-GhostTurnChance while it stays legal, otherwise picks uniformly among
// legal directions. Reversing is only allowed when nothing else is legal.
func chooseGhostDirection(g *Grid, gh *Ghost, rng Rand) Direction {
	legal := legalDirections(g, gh.Pos)
	if len(legal) == 0 {
		return gh.Dir
	}

	candidates := legal
	if gh.Dir != None {
		back := gh.Dir.Reverse()
		filtered := make([]Direction, 0, len(legal))
		for _, d := range legal {
			if d != back {
				filtered = append(filtered, d)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	currentLegal := false
	for _, d := range legal {
		if d == gh.Dir {
			currentLegal = true
			break
		}
	}
	if currentLegal && rng.Float64() > GhostTurnChance {
		return gh.Dir
	}
	return candidates[rng.Intn(len(candidates))]
}

// collides reports whether p and g share a cell or walked through each
// other during this tick.
func collides(p *Player, g *Ghost) bool {
	if p.Pos == g.Pos {
		return true
	}
	return p.Pos == g.LastPos && p.LastPos == g.Pos
}

func resolveCollisions(w *World, ev *TickEvents) {
	for _, p := range w.Players {
		if !p.Alive {
			continue
		}
		for _, g := range w.Ghosts {
			if !collides(p, g) {
				continue
			}
			if w.PowerModeMs > 0 {
				w.Score += GhostScore
				g.Pos = g.Home
				g.LastPos = g.Home
				ev.GhostsEaten = append(ev.GhostsEaten, g.ID)
				continue
			}
			p.Alive = false
			ev.Deaths = append(ev.Deaths, p.Nickname)
			break
		}
	}
}
