package config

import (
	_ "embed"
)

//go:embed defaults/sim.yaml
var defaultSimYAML []byte

// DefaultSimConfig returns the hardcoded fallback configuration.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Physics: Physics{
			TickRate:           60,
			VelocityIterations: 8,
			Baumgarte:          0.2,
			Slop:               0.05,
			SleepVelocity:      0.5,
			WarmStart:          true,
			MaxSweepSteps:      16,
		},
		Rollback: Rollback{
			MaxDepth: 8,
		},
		Tank: Tank{
			Speed:       150,
			Radius:      10,
			Damping:     30,
			Restitution: 0,
			Friction:    0,
			Mass:        1,
		},
		Bullet: Bullet{
			Speed:   1000,
			Radius:  1,
			Damping: 0.3,
			Mass:    0.01,
			Gap:     5,
		},
		Replay: Replay{
			SnapshotEvery: 30,
		},
	}
}
