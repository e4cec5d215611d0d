// Package tanks implements the arena shooter rules on top of the physics
// world: players steer tanks, fire bullets, and bullets vanish on their
// first hit. All state lives in the world, so the game rewinds with it.
package tanks

import (
	"fmt"

	"github.com/vovakirdan/rollphys/internal/config"
	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/maps"
	"github.com/vovakirdan/rollphys/internal/physics"
	"github.com/vovakirdan/rollphys/internal/scenario"
	"github.com/vovakirdan/rollphys/internal/snapshot"
	"github.com/vovakirdan/rollphys/internal/static"
)

// Body tags.
const (
	TagTank uint32 = iota + 1
	TagBullet
)

// Collision groups: tanks hit everything, bullets hit tanks and walls but
// not each other.
var (
	TankGroups   = static.Filter{Memberships: 0b001, Filter: 0b111}
	BulletGroups = static.Filter{Memberships: 0b010, Filter: 0b101}
)

func init() {
	scenario.Register("tanks", "Tanks arena", func(opts scenario.Options) (scenario.Scenario, error) {
		return New(opts)
	})
}

// Game is one tanks match.
type Game struct {
	cfg     config.SimConfig
	arena   *maps.Map
	world   *physics.World
	walls   []static.ColliderID
	players []snapshot.BodyID
	last    physics.StepEvents
	bounds  core.AABB // wall extent; bullets outside it are gone
	bounded bool
}

// New builds the arena and spawns one tank per player at the map's spawn
// points. Tanks are created first, so player i always owns body i+1.
func New(opts scenario.Options) (*Game, error) {
	arena := opts.Map
	if arena == nil {
		arena = maps.Default()
	}
	spawns := arena.Spawns()
	if len(spawns) == 0 {
		return nil, fmt.Errorf("tanks: map %q has no spawn points", arena.Name)
	}
	n := opts.Players
	if n <= 0 {
		n = core.MaxPlayers
	}
	n = min(n, core.MaxPlayers, len(spawns))

	reg := static.NewRegistry()
	walls, err := arena.Register(reg)
	if err != nil {
		return nil, err
	}

	g := &Game{
		cfg:   opts.Config,
		arena: arena,
		world: physics.NewWorld(opts.Config.Physics, reg),
		walls: walls,
	}
	if reg.Len() > 0 {
		g.bounds, g.bounded = reg.Bounds(), true
	}
	t := opts.Config.Tank
	for i := 0; i < n; i++ {
		id, err := g.world.CreateBody(physics.BodyDef{
			Position:       spawns[i],
			Radius:         config.Fx(t.Radius),
			Mass:           config.Fx(t.Mass),
			LinearDamping:  config.Fx(t.Damping),
			AngularDamping: core.ToFixed(1),
			Restitution:    config.Fx(t.Restitution),
			Friction:       config.Fx(t.Friction),
			LockRotation:   true,
			Groups:         TankGroups,
			Tag:            TagTank,
		})
		if err != nil {
			return nil, fmt.Errorf("tanks: spawn player %d: %w", i+1, err)
		}
		g.players = append(g.players, id)
	}
	return g, nil
}

func (g *Game) ID() string                     { return "tanks" }
func (g *Game) Title() string                  { return "Tanks arena" }
func (g *Game) World() *physics.World          { return g.world }
func (g *Game) Players() []snapshot.BodyID     { return g.players }
func (g *Game) Map() *maps.Map                 { return g.arena }
func (g *Game) Walls() []static.ColliderID     { return g.walls }
func (g *Game) LastEvents() physics.StepEvents { return g.last }

// Step applies movement, then shooting, then advances the world and removes
// bullets that hit something or left the arena.
func (g *Game) Step(input core.MultiInputFrame) error {
	speed := config.Fx(g.cfg.Tank.Speed)
	for i, id := range g.players {
		in := input.Player(core.PlayerID(i))
		dir, ok := direction(in, core.ActionMoveUp, core.ActionMoveDown, core.ActionMoveLeft, core.ActionMoveRight)
		if !ok {
			continue
		}
		if err := g.world.AddLinearVelocity(id, dir.Scale(speed)); err != nil {
			return fmt.Errorf("tanks: move player %d: %w", i+1, err)
		}
	}
	for i, id := range g.players {
		in := input.Player(core.PlayerID(i))
		dir, ok := direction(in, core.ActionFireUp, core.ActionFireDown, core.ActionFireLeft, core.ActionFireRight)
		if !ok {
			continue
		}
		if err := g.fire(id, dir); err != nil {
			return fmt.Errorf("tanks: fire player %d: %w", i+1, err)
		}
	}

	g.last = g.world.Step()
	if err := g.despawnHits(g.last); err != nil {
		return err
	}
	return g.despawnStrays()
}

// direction turns four held actions into a unit vector.
func direction(in core.InputFrame, up, down, left, right core.Action) (core.Vec2, bool) {
	var x, y int
	if in.Has(up) {
		y++
	}
	if in.Has(down) {
		y--
	}
	if in.Has(left) {
		x--
	}
	if in.Has(right) {
		x++
	}
	if x == 0 && y == 0 {
		return core.Vec2{}, false
	}
	dir, _ := core.VI(x, y).Normalize()
	return dir, true
}

func (g *Game) fire(tank snapshot.BodyID, dir core.Vec2) error {
	st, ok := g.world.Body(tank)
	if !ok {
		return fmt.Errorf("%w: tank %d", physics.ErrUnknownBody, tank)
	}
	b := g.cfg.Bullet
	head := dir.Scale(config.Fx(g.cfg.Tank.Radius) + config.Fx(b.Gap))
	_, err := g.world.CreateBody(physics.BodyDef{
		Position:       st.Position.Add(head),
		LinVel:         dir.Scale(config.Fx(b.Speed)),
		Radius:         config.Fx(b.Radius),
		Mass:           config.Fx(b.Mass),
		LinearDamping:  config.Fx(b.Damping),
		AngularDamping: core.ToFixed(1),
		LockRotation:   true,
		Groups:         BulletGroups,
		Swept:          true,
		Tag:            TagBullet,
	})
	return err
}

// despawnHits destroys every bullet that started touching something this
// step. Events are sorted, so destruction order is deterministic.
func (g *Game) despawnHits(ev physics.StepEvents) error {
	for _, p := range ev.Started {
		for _, e := range [2]snapshot.Endpoint{p.A, p.B} {
			if e.IsStatic() {
				continue
			}
			def, live := g.world.Def(e.BodyID())
			if !live || def.Tag != TagBullet {
				continue
			}
			if err := g.world.DestroyBody(e.BodyID()); err != nil {
				return fmt.Errorf("tanks: despawn bullet %d: %w", e.BodyID(), err)
			}
		}
	}
	return nil
}

// despawnStrays destroys bullets outside the walls. A tank pressed against
// a wall spawns its bullets on the far side, and nothing would stop them.
func (g *Game) despawnStrays() error {
	if !g.bounded {
		return nil
	}
	for _, st := range g.world.Bodies() {
		if def, _ := g.world.Def(st.ID); def.Tag != TagBullet || g.bounds.Contains(st.Position) {
			continue
		}
		if err := g.world.DestroyBody(st.ID); err != nil {
			return fmt.Errorf("tanks: despawn stray bullet %d: %w", st.ID, err)
		}
	}
	return nil
}

// Bullets returns the ids of live bullets in ascending order.
func (g *Game) Bullets() []snapshot.BodyID {
	var out []snapshot.BodyID
	for _, st := range g.world.Bodies() {
		if def, _ := g.world.Def(st.ID); def.Tag == TagBullet {
			out = append(out, st.ID)
		}
	}
	return out
}

func (g *Game) Capture() (*snapshot.Snapshot, error) { return g.world.Capture() }
func (g *Game) Restore(s *snapshot.Snapshot) error   { return g.world.Restore(s) }
func (g *Game) Prune(before snapshot.Frame)          { g.world.Prune(before) }
