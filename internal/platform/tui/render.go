package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/physics"
	"github.com/vovakirdan/rollphys/internal/snapshot"
	"github.com/vovakirdan/rollphys/internal/static"
)

// colorStyles maps core.Color to lipgloss styles.
var colorStyles = map[core.Color]lipgloss.Style{
	core.ColorDefault: lipgloss.NewStyle(),
	core.ColorRed:     lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	core.ColorGreen:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	core.ColorYellow:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	core.ColorBlue:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
	core.ColorCyan:    lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	core.ColorWhite:   lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
	core.ColorOrange:  lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	core.ColorGray:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
}

// playerColors colours the controlled body of each player slot.
var playerColors = [core.MaxPlayers]core.Color{
	core.ColorYellow, core.ColorCyan, core.ColorGreen, core.ColorOrange,
}

// RenderScreen converts a Screen buffer to a styled string for display.
// Groups adjacent cells with the same color to minimize ANSI escape sequences.
func RenderScreen(s *core.Screen) string {
	var sb strings.Builder
	// Pre-allocate with extra space for ANSI codes
	sb.Grow(s.Width()*s.Height()*2 + s.Height())

	for y := range s.Height() {
		if y > 0 {
			sb.WriteRune('\n')
		}

		x := 0
		for x < s.Width() {
			startColor := s.GetCell(x, y).Color

			var run strings.Builder
			for x < s.Width() {
				cell := s.GetCell(x, y)
				if cell.Color != startColor {
					break
				}
				run.WriteRune(cell.Rune)
				x++
			}

			style, ok := colorStyles[startColor]
			if !ok {
				style = colorStyles[core.ColorDefault]
			}
			sb.WriteString(style.Render(run.String()))
		}
	}
	return sb.String()
}

// viewport maps world coordinates onto a rectangle of screen cells. World y
// grows upwards, screen rows grow downwards.
type viewport struct {
	area                   core.Rect
	minX, minY, maxX, maxY float64
}

func toFloat(f core.Fixed) float64 {
	return float64(f.Raw()) / core.Scale
}

func newViewport(bounds core.AABB, area core.Rect) viewport {
	v := viewport{
		area: area,
		minX: toFloat(bounds.Min.X),
		minY: toFloat(bounds.Min.Y),
		maxX: toFloat(bounds.Max.X),
		maxY: toFloat(bounds.Max.Y),
	}
	if v.maxX <= v.minX {
		v.minX, v.maxX = v.minX-10, v.minX+10
	}
	if v.maxY <= v.minY {
		v.minY, v.maxY = v.minY-10, v.minY+10
	}
	return v
}

// cell returns the screen cell containing a world point.
func (v viewport) cell(p core.Vec2) (int, int) {
	fx := (toFloat(p.X) - v.minX) / (v.maxX - v.minX)
	fy := (v.maxY - toFloat(p.Y)) / (v.maxY - v.minY)
	x := v.area.X + int(fx*float64(v.area.W-1)+0.5)
	y := v.area.Y + int(fy*float64(v.area.H-1)+0.5)
	return x, y
}

// cellSize returns the world extent of one cell along x.
func (v viewport) cellSize() float64 {
	if v.area.W <= 1 {
		return v.maxX - v.minX
	}
	return (v.maxX - v.minX) / float64(v.area.W-1)
}

func (v viewport) set(s *core.Screen, x, y int, r rune, c core.Color) {
	if v.area.Contains(x, y) {
		s.SetColored(x, y, r, c)
	}
}

// worldBounds frames the static geometry, or the bodies when there is none.
func worldBounds(w *physics.World) core.AABB {
	b := w.Statics().Bounds()
	if b != (core.AABB{}) {
		return b
	}
	bodies := w.Bodies()
	if len(bodies) == 0 {
		return b
	}
	b = core.CircleBounds(bodies[0].Position, core.ToFixed(1))
	for _, s := range bodies[1:] {
		b = b.Union(core.CircleBounds(s.Position, core.ToFixed(1)))
	}
	return b
}

// DrawWorld renders static colliders and live bodies into area. Bodies
// listed in players are drawn as '@' in their slot colour.
func DrawWorld(s *core.Screen, w *physics.World, players []snapshot.BodyID, area core.Rect) {
	if area.W <= 0 || area.H <= 0 {
		return
	}
	v := newViewport(worldBounds(w), area)

	for _, c := range w.Statics().All() {
		drawCollider(s, v, c)
	}

	slot := make(map[snapshot.BodyID]int, len(players))
	for i, id := range players {
		slot[id] = i
	}
	small := v.cellSize() / 2
	for _, b := range w.Bodies() {
		x, y := v.cell(b.Position)
		if i, ok := slot[b.ID]; ok {
			v.set(s, x, y, '@', playerColors[i%core.MaxPlayers])
			continue
		}
		r, color := 'o', core.ColorWhite
		if def, ok := w.Def(b.ID); ok && toFloat(def.Radius) < small {
			r = '•'
		}
		if b.Sleeping {
			color = core.ColorGray
		}
		v.set(s, x, y, r, color)
	}
}

func drawCollider(s *core.Screen, v viewport, c static.Collider) {
	x0, y0 := v.cell(core.Vec2{X: c.Bounds.Min.X, Y: c.Bounds.Max.Y})
	x1, y1 := v.cell(core.Vec2{X: c.Bounds.Max.X, Y: c.Bounds.Min.Y})
	r, color := '#', core.ColorGray
	if c.Shape.Kind == static.ShapeCircle {
		r, color = 'O', core.ColorBlue
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			v.set(s, x, y, r, color)
		}
	}
}
