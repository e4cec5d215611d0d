// Package config provides YAML-based simulation configuration loading and
// solver quality presets.
package config

import (
	"math"

	"github.com/vovakirdan/rollphys/internal/core"
)

// SimConfig contains all configuration for one simulation run.
type SimConfig struct {
	Physics  Physics  `yaml:"physics"`
	Rollback Rollback `yaml:"rollback"`
	Tank     Tank     `yaml:"tank"`
	Bullet   Bullet   `yaml:"bullet"`
	Replay   Replay   `yaml:"replay"`
}

// Physics defines world stepping and solver parameters.
type Physics struct {
	TickRate           int     `yaml:"tick_rate"` // steps per simulated second
	GravityX           float64 `yaml:"gravity_x"`
	GravityY           float64 `yaml:"gravity_y"`
	VelocityIterations int     `yaml:"velocity_iterations"`
	Baumgarte          float64 `yaml:"baumgarte"`       // fraction of penetration corrected per step
	Slop               float64 `yaml:"slop"`            // allowed penetration
	SleepVelocity      float64 `yaml:"sleep_velocity"`  // speed below which a body falls asleep; 0 disables sleep
	WarmStart          bool    `yaml:"warm_start"`      // reuse cached contact impulses
	MaxSweepSteps      int     `yaml:"max_sweep_steps"` // sub-steps for swept (bullet) bodies
}

// Rollback defines the history window.
type Rollback struct {
	MaxDepth int `yaml:"max_depth"` // ring capacity in frames
}

// Tank defines player tank parameters.
type Tank struct {
	Speed       float64 `yaml:"speed"`
	Radius      float64 `yaml:"radius"`
	Damping     float64 `yaml:"damping"`
	Restitution float64 `yaml:"restitution"`
	Friction    float64 `yaml:"friction"`
	Mass        float64 `yaml:"mass"`
}

// Bullet defines projectile parameters.
type Bullet struct {
	Speed   float64 `yaml:"speed"`
	Radius  float64 `yaml:"radius"`
	Damping float64 `yaml:"damping"`
	Mass    float64 `yaml:"mass"`
	Gap     float64 `yaml:"gap"` // spawn distance beyond the tank radius
}

// Replay defines replay bundle output.
type Replay struct {
	SnapshotEvery int `yaml:"snapshot_every"` // frames between stored snapshots
}

// Fx converts a configured decimal to fixed-point, rounding to the nearest
// representable value. Conversion happens once at load, never inside a step.
func Fx(v float64) core.Fixed {
	return core.Fixed(math.Round(v * core.Scale))
}

// Dt returns the fixed step length.
func (p Physics) Dt() core.Fixed {
	if p.TickRate <= 0 {
		return core.Ratio(1, 60)
	}
	return core.Ratio(1, int64(p.TickRate))
}

// Gravity returns the gravity vector.
func (p Physics) Gravity() core.Vec2 {
	return core.V(Fx(p.GravityX), Fx(p.GravityY))
}
