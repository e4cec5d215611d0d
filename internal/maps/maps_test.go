package maps

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/static"
)

const termJSON = `{
  "name": "TERM",
  "walls": [[0, 0, 100, 0, 3], [0, 50, 100, 50, 3], [0, 0, 0, 50, 1], [100, 0, 100, 50, 2]],
  "hives": [50, 25],
  "lives": [[10, 10], [90, 40]]
}`

func TestParseJSON(t *testing.T) {
	m, err := ParseJSON([]byte(termJSON))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if m.Name != "TERM" || len(m.Walls) != 4 || len(m.Hives) != 1 || len(m.Lives) != 2 {
		t.Fatalf("ParseJSON() = %+v", m)
	}
	if m.Walls[3] != (Wall{X1: 100, Y1: 0, X2: 100, Y2: 50, Kind: 2}) {
		t.Errorf("wall 3 = %+v", m.Walls[3])
	}
	if m.Hives[0] != (Point{50, 25}) {
		t.Errorf("hive = %+v", m.Hives[0])
	}
}

func TestWorldPlacement(t *testing.T) {
	m, err := ParseJSON([]byte(termJSON))
	if err != nil {
		t.Fatal(err)
	}

	// origin is (100, 50), so the map centre lands on the world origin
	if got := m.ToWorld(Point{50, 25}); got != (core.Vec2{}) {
		t.Errorf("ToWorld(centre) = %v, expected origin", got)
	}
	if got := m.ToWorld(Point{10, 10}); got != core.VI(-40, -15) {
		t.Errorf("ToWorld(10,10) = %v", got)
	}

	shape, tf := m.WallCollider(m.Walls[0])
	if tf.Position != core.VI(0, -25) {
		t.Errorf("bottom wall centre = %v, expected (0,-25)", tf.Position)
	}
	if shape.Kind != static.ShapeBox || shape.HalfW != core.Ratio(103, 2) || shape.HalfH != core.Ratio(3, 2) {
		t.Errorf("bottom wall shape = %+v", shape)
	}
}

func TestRegister(t *testing.T) {
	m, err := ParseJSON([]byte(termJSON))
	if err != nil {
		t.Fatal(err)
	}
	reg := static.NewRegistry()
	ids, err := m.Register(reg)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(ids) != 4 || reg.Len() != 4 {
		t.Fatalf("registered %d ids, registry has %d", len(ids), reg.Len())
	}
	c, err := reg.Get(ids[2])
	if err != nil {
		t.Fatal(err)
	}
	if c.Groups != WallGroups {
		t.Errorf("wall groups = %+v, expected %+v", c.Groups, WallGroups)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `walls`},
		{"no walls", `{"name": "x", "walls": []}`},
		{"short wall", `{"walls": [[0, 0, 1, 1]]}`},
		{"reversed wall", `{"walls": [[5, 0, 1, 1, 0]]}`},
		{"odd hives", `{"walls": [[0, 0, 1, 1, 0]], "hives": [1]}`},
		{"bad life", `{"walls": [[0, 0, 1, 1, 0]], "lives": [[1, 2, 3]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJSON([]byte(tt.data)); !errors.Is(err, ErrInvalidMap) {
				t.Errorf("ParseJSON() error = %v, expected ErrInvalidMap", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "TERM.txt")
	if err := os.WriteFile(jsonPath, []byte(termJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	yamlPath := filepath.Join(dir, "term.yaml")
	yamlData := "name: TERM\nwalls:\n  - [0, 0, 100, 0, 3]\nlives:\n  - [10, 10]\n"
	if err := os.WriteFile(yamlPath, []byte(yamlData), 0o600); err != nil {
		t.Fatal(err)
	}

	m, err := Load(jsonPath)
	if err != nil || len(m.Walls) != 4 {
		t.Errorf("Load(json) = %+v, %v", m, err)
	}
	m, err = Load(yamlPath)
	if err != nil || len(m.Walls) != 1 || len(m.Lives) != 1 {
		t.Errorf("Load(yaml) = %+v, %v", m, err)
	}
	m, err = Load("")
	if err != nil || m.Name != "arena" {
		t.Errorf("Load(\"\") = %+v, %v", m, err)
	}
	if _, err := Load(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("Load(missing) should fail")
	}
}

func TestDefaultArena(t *testing.T) {
	m := Default()
	if len(m.Spawns()) != 4 || len(m.Markers()) != 2 {
		t.Errorf("default arena spawns %d markers %d", len(m.Spawns()), len(m.Markers()))
	}
	// spawns sit inside the outer frame
	for _, p := range m.Spawns() {
		if p.X.Abs() >= core.ToFixed(200) || p.Y.Abs() >= core.ToFixed(150) {
			t.Errorf("spawn %v outside arena", p)
		}
	}
}
