// Package maps loads level geometry and turns it into static colliders.
//
// Two encodings are accepted: the JSON format of the original level files
// ({"name", "walls": [[x1,y1,x2,y2,kind]], "hives": [x,y,...], "lives": [[x,y]]})
// and the same structure written as YAML.
package maps

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/static"
)

//go:embed defaults/arena.yaml
var defaultMapYAML []byte

// ErrInvalidMap is wrapped by every parse or validation failure.
var ErrInvalidMap = errors.New("maps: invalid map")

// Wall collision groups: walls are members of group 3 and collide with
// tanks, bullets and each other.
var WallGroups = static.Filter{Memberships: 0b100, Filter: 0b111}

// outline is added to each wall extent so zero-width wall segments still
// have collision thickness.
const outline = 3

// Wall is one axis-aligned wall segment in map units.
type Wall struct {
	X1, Y1, X2, Y2 int
	Kind           int
}

// Point is a position in map units.
type Point struct {
	X, Y int
}

// Map is a parsed level.
type Map struct {
	Name  string
	Walls []Wall
	Hives []Point
	Lives []Point
}

type rawMap struct {
	Name  string  `json:"name" yaml:"name"`
	Walls [][]int `json:"walls" yaml:"walls"`
	Hives []int   `json:"hives" yaml:"hives"`
	Lives [][]int `json:"lives" yaml:"lives"`
}

// Default returns the embedded arena.
func Default() *Map {
	m, err := ParseYAML(defaultMapYAML)
	if err != nil {
		panic(fmt.Sprintf("maps: embedded default map: %v", err))
	}
	return m
}

// Load reads a map file. Files ending in .yaml or .yml are YAML; anything
// else is read as JSON, matching the original .txt level files. An empty
// path returns the embedded default.
func Load(path string) (*Map, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("maps: read %s: %w", path, err)
	}
	var m *Map
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		m, err = ParseYAML(data)
	default:
		m, err = ParseJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseJSON parses the original level format.
func ParseJSON(data []byte) (*Map, error) {
	var raw rawMap
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMap, err)
	}
	return raw.build()
}

// ParseYAML parses the YAML form of the level format.
func ParseYAML(data []byte) (*Map, error) {
	var raw rawMap
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMap, err)
	}
	return raw.build()
}

func (r rawMap) build() (*Map, error) {
	if len(r.Walls) == 0 {
		return nil, fmt.Errorf("%w: no walls", ErrInvalidMap)
	}
	m := &Map{Name: r.Name}
	for i, w := range r.Walls {
		if len(w) != 5 {
			return nil, fmt.Errorf("%w: wall %d has %d values, expected 5", ErrInvalidMap, i, len(w))
		}
		if w[2] < w[0] || w[3] < w[1] {
			return nil, fmt.Errorf("%w: wall %d corners out of order", ErrInvalidMap, i)
		}
		m.Walls = append(m.Walls, Wall{X1: w[0], Y1: w[1], X2: w[2], Y2: w[3], Kind: w[4]})
	}
	if len(r.Hives)%2 != 0 {
		return nil, fmt.Errorf("%w: hives must be x, y pairs", ErrInvalidMap)
	}
	for i := 0; i < len(r.Hives); i += 2 {
		m.Hives = append(m.Hives, Point{X: r.Hives[i], Y: r.Hives[i+1]})
	}
	for i, l := range r.Lives {
		if len(l) != 2 {
			return nil, fmt.Errorf("%w: life %d has %d values, expected 2", ErrInvalidMap, i, len(l))
		}
		m.Lives = append(m.Lives, Point{X: l[0], Y: l[1]})
	}
	return m, nil
}

// origin is the map extent; world coordinates are centred on half of it.
func (m *Map) origin() Point {
	minX, maxX := m.Walls[0].X1, m.Walls[0].X2
	minY, maxY := m.Walls[0].Y1, m.Walls[0].Y2
	for _, w := range m.Walls[1:] {
		minX = min(minX, w.X1)
		maxX = max(maxX, w.X2)
		minY = min(minY, w.Y1)
		maxY = max(maxY, w.Y2)
	}
	return Point{X: maxX - minX, Y: maxY - minY}
}

// ToWorld converts a map position to world coordinates.
func (m *Map) ToWorld(p Point) core.Vec2 {
	o := m.origin()
	return core.V(core.ToFixed(2*p.X-o.X).DivInt(2), core.ToFixed(2*p.Y-o.Y).DivInt(2))
}

// WallCollider returns the box shape and placement of a wall.
func (m *Map) WallCollider(w Wall) (static.Shape, static.Transform) {
	o := m.origin()
	center := core.V(
		core.ToFixed(w.X1+w.X2-o.X).DivInt(2),
		core.ToFixed(w.Y1+w.Y2-o.Y).DivInt(2),
	)
	shape := static.Box(
		core.ToFixed(w.X2-w.X1+outline).DivInt(2),
		core.ToFixed(w.Y2-w.Y1+outline).DivInt(2),
	)
	return shape, static.Transform{Position: center}
}

// Register adds every wall to the registry in file order and returns the
// collider ids, index-aligned with Walls.
func (m *Map) Register(reg *static.Registry) ([]static.ColliderID, error) {
	ids := make([]static.ColliderID, 0, len(m.Walls))
	for i, w := range m.Walls {
		shape, tf := m.WallCollider(w)
		id, err := reg.RegisterFiltered(shape, tf, WallGroups)
		if err != nil {
			return nil, fmt.Errorf("maps: wall %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Spawns returns the player start positions in world coordinates.
func (m *Map) Spawns() []core.Vec2 {
	out := make([]core.Vec2, 0, len(m.Lives))
	for _, p := range m.Lives {
		out = append(out, m.ToWorld(p))
	}
	return out
}

// Markers returns hive positions in world coordinates.
func (m *Map) Markers() []core.Vec2 {
	out := make([]core.Vec2, 0, len(m.Hives))
	for _, p := range m.Hives {
		out = append(out, m.ToWorld(p))
	}
	return out
}
