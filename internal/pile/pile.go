// Package pile is a stacking scenario: a grid of balls drops into a walled
// bin under gravity and comes to rest on a floor and a few pegs. It keeps
// the solver busy with many persistent contacts, which is where warm-start
// accumulators and sleep matter for rollback.
package pile

import (
	"fmt"

	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/physics"
	"github.com/vovakirdan/rollphys/internal/scenario"
	"github.com/vovakirdan/rollphys/internal/snapshot"
	"github.com/vovakirdan/rollphys/internal/static"
)

const (
	columns  = 6
	rows     = 4
	gravity  = -100
	halfBin  = 20 // bin inner half width
	binDepth = 40
	nudge    = 8 // velocity added per held direction
)

func init() {
	scenario.Register("pile", "Ball pile under gravity", func(opts scenario.Options) (scenario.Scenario, error) {
		return New(opts)
	})
}

// Pile is one stacking run. Player slots steer the first balls of the grid.
type Pile struct {
	world   *physics.World
	players []snapshot.BodyID
}

// New builds the bin and the ball grid. A configured gravity of zero is
// replaced by downward gravity, since nothing would pile up otherwise.
func New(opts scenario.Options) (*Pile, error) {
	cfg := opts.Config.Physics
	if cfg.GravityX == 0 && cfg.GravityY == 0 {
		cfg.GravityY = gravity
	}

	reg := static.NewRegistry()
	one := core.ToFixed(1)
	geometry := []struct {
		shape static.Shape
		at    core.Vec2
	}{
		{static.Box(core.ToFixed(halfBin+1), one), core.VI(0, -1)},                   // floor, top at y=0
		{static.Box(one, core.ToFixed(binDepth/2)), core.VI(-halfBin-1, binDepth/2)}, // left wall
		{static.Box(one, core.ToFixed(binDepth/2)), core.VI(halfBin+1, binDepth/2)},  // right wall
		{static.Circle(core.Ratio(3, 2)), core.VI(-7, 6)},
		{static.Circle(core.Ratio(3, 2)), core.VI(7, 6)},
	}
	for _, g := range geometry {
		if _, err := reg.Register(g.shape, static.Transform{Position: g.at}); err != nil {
			return nil, fmt.Errorf("pile: %w", err)
		}
	}

	p := &Pile{world: physics.NewWorld(cfg, reg)}
	n := opts.Players
	if n <= 0 {
		n = core.MaxPlayers
	}
	n = min(n, core.MaxPlayers)

	for r := 0; r < rows; r++ {
		for c := 0; c < columns; c++ {
			// odd rows are offset by half a spacing so the stack interlocks
			x := core.ToFixed(c*5 - 13)
			if r%2 == 1 {
				x += core.Ratio(5, 2)
			}
			id, err := p.world.CreateBody(physics.BodyDef{
				Position:       core.V(x, core.ToFixed(15+r*5)),
				Radius:         core.ToFixed(2),
				Mass:           core.ToFixed(1 + (r+c)%3),
				LinearDamping:  core.Ratio(1, 10),
				AngularDamping: core.Ratio(1, 10),
				Restitution:    core.Ratio(int64((r*columns+c)%4), 10),
				Friction:       core.Ratio(1, 2),
			})
			if err != nil {
				return nil, fmt.Errorf("pile: ball %d,%d: %w", r, c, err)
			}
			if len(p.players) < n {
				p.players = append(p.players, id)
			}
		}
	}
	return p, nil
}

func (p *Pile) ID() string                 { return "pile" }
func (p *Pile) Title() string              { return "Ball pile under gravity" }
func (p *Pile) World() *physics.World      { return p.world }
func (p *Pile) Players() []snapshot.BodyID { return p.players }

// Step nudges each player's ball by its held movement keys and advances the
// world. Fire keys kick the ball upwards.
func (p *Pile) Step(input core.MultiInputFrame) error {
	for i, id := range p.players {
		in := input.Player(core.PlayerID(i))
		var dv core.Vec2
		if in.Has(core.ActionMoveLeft) {
			dv.X -= core.ToFixed(nudge)
		}
		if in.Has(core.ActionMoveRight) {
			dv.X += core.ToFixed(nudge)
		}
		if in.Has(core.ActionMoveUp) {
			dv.Y += core.ToFixed(nudge)
		}
		if in.Has(core.ActionMoveDown) {
			dv.Y -= core.ToFixed(nudge)
		}
		if err := p.world.AddLinearVelocity(id, dv); err != nil {
			return fmt.Errorf("pile: nudge player %d: %w", i+1, err)
		}
		for a := core.ActionFireUp; a <= core.ActionFireRight; a++ {
			if in.Has(a) {
				if err := p.world.ApplyImpulse(id, core.VI(0, 40)); err != nil {
					return fmt.Errorf("pile: kick player %d: %w", i+1, err)
				}
				break
			}
		}
	}
	p.world.Step()
	return nil
}

func (p *Pile) Capture() (*snapshot.Snapshot, error) { return p.world.Capture() }
func (p *Pile) Restore(s *snapshot.Snapshot) error   { return p.world.Restore(s) }
func (p *Pile) Prune(before snapshot.Frame)          { p.world.Prune(before) }
