// Package preview renders session snapshots as PNG thumbnails for
// spectators and the lobby page.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"maze-arena/internal/game"
)

const (
	DefaultCellSize = 16
	MaxCellSize     = 48
	hudHeight       = 20
)

var (
	colorBackground = color.RGBA{12, 12, 28, 255}
	colorWall       = color.RGBA{33, 33, 222, 255}
	colorDot        = color.RGBA{255, 184, 151, 255}
	colorDoor       = color.RGBA{255, 184, 255, 255}
	colorPlayer     = color.RGBA{255, 255, 0, 255}
	colorDead       = color.RGBA{90, 90, 90, 255}
	colorFrightened = color.RGBA{40, 40, 255, 255}
	colorText       = color.White
)

var ghostColors = map[string]color.RGBA{
	"red":    {255, 0, 0, 255},
	"pink":   {255, 184, 255, 255},
	"cyan":   {0, 255, 255, 255},
	"orange": {255, 184, 82, 255},
}

// Render draws snap with square cells of cellSize pixels plus a one-line HUD
// below the maze.
func Render(snap *game.Snapshot, cellSize int) image.Image {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	if cellSize > MaxCellSize {
		cellSize = MaxCellSize
	}
	rows := len(snap.Grid)
	cols := 0
	if rows > 0 {
		cols = len(snap.Grid[0])
	}
	cs := float64(cellSize)

	dc := gg.NewContext(cols*cellSize, rows*cellSize+hudHeight)
	dc.SetColor(colorBackground)
	dc.Clear()

	for y, row := range snap.Grid {
		for x, code := range row {
			cx, cy := float64(x)*cs, float64(y)*cs
			switch game.Cell(code) {
			case game.Wall:
				dc.SetColor(colorWall)
				dc.DrawRectangle(cx, cy, cs, cs)
				dc.Fill()
			case game.Dot:
				dc.SetColor(colorDot)
				dc.DrawCircle(cx+cs/2, cy+cs/2, cs/8)
				dc.Fill()
			case game.Pellet:
				dc.SetColor(colorDot)
				dc.DrawCircle(cx+cs/2, cy+cs/2, cs/3)
				dc.Fill()
			case game.Door:
				dc.SetColor(colorDoor)
				dc.DrawRectangle(cx, cy+cs/2-1, cs, 2)
				dc.Fill()
			}
		}
	}

	frightened := snap.PowerModeMs > 0
	for _, g := range snap.Ghosts {
		c, ok := ghostColors[g.Color]
		if !ok {
			c = ghostColors["red"]
		}
		if frightened {
			c = colorFrightened
		}
		drawGhost(dc, g.Pos, cs, c)
	}

	for _, p := range snap.Players {
		c := colorPlayer
		if !p.Alive {
			c = colorDead
		}
		drawPlayer(dc, p, cs, c)
	}

	dc.SetColor(colorText)
	dc.SetFontFace(basicfont.Face7x13)
	hud := fmt.Sprintf("SCORE %d", snap.Score)
	if snap.GameOver() {
		hud += "  GAME OVER"
	} else if frightened {
		hud += fmt.Sprintf("  POWER %.1fs", float64(snap.PowerModeMs)/1000)
	}
	dc.DrawStringAnchored(hud, 4, float64(rows*cellSize)+hudHeight/2, 0, 0.5)

	return dc.Image()
}

// drawPlayer draws a circle with a mouth wedge facing the player's direction.
func drawPlayer(dc *gg.Context, p game.PlayerSnapshot, cs float64, c color.Color) {
	cx := float64(p.Pos.X)*cs + cs/2
	cy := float64(p.Pos.Y)*cs + cs/2
	r := cs/2 - 1

	facing := 0.0
	switch p.Dir {
	case game.Down:
		facing = 90
	case game.Left:
		facing = 180
	case game.Up:
		facing = 270
	}
	mouth := 35.0

	dc.SetColor(c)
	dc.MoveTo(cx, cy)
	dc.DrawArc(cx, cy, r, gg.Radians(facing+mouth), gg.Radians(facing+360-mouth))
	dc.ClosePath()
	dc.Fill()
}

func drawGhost(dc *gg.Context, pos game.Position, cs float64, c color.Color) {
	x := float64(pos.X) * cs
	y := float64(pos.Y) * cs
	r := cs/2 - 1

	dc.SetColor(c)
	dc.DrawArc(x+cs/2, y+cs/2, r, gg.Radians(180), gg.Radians(360))
	dc.DrawRectangle(x+1, y+cs/2, cs-2, cs/2-1)
	dc.Fill()

	dc.SetColor(color.White)
	dc.DrawCircle(x+cs/3, y+cs/2-1, cs/10)
	dc.DrawCircle(x+2*cs/3, y+cs/2-1, cs/10)
	dc.Fill()
}

// EncodePNG renders snap and writes it to w as PNG.
func EncodePNG(w io.Writer, snap *game.Snapshot, cellSize int) error {
	img := Render(snap, cellSize)
	dc := gg.NewContextForImage(img)
	return dc.EncodePNG(w)
}
