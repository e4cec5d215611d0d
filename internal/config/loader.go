package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by Validate failures.
var ErrInvalid = errors.New("config: invalid")

// Load loads the simulation configuration.
// Search order: customPath -> ~/.rollphys/configs/sim.yaml -> ./configs/sim.yaml -> embedded default
// Keys missing from a file keep their default values.
func Load(customPath string) (SimConfig, error) {
	cfg := DefaultSimConfig()

	// Try custom path first
	if customPath != "" {
		data, err := os.ReadFile(customPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", customPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", customPath, err)
		}
		return cfg, cfg.Validate()
	}

	// Try user config directory
	if userCfgPath := userConfigPath("sim.yaml"); userCfgPath != "" {
		if data, err := os.ReadFile(userCfgPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err == nil {
				return cfg, cfg.Validate()
			}
			cfg = DefaultSimConfig()
		}
	}

	// Try local configs directory
	if data, err := os.ReadFile(filepath.Join("configs", "sim.yaml")); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err == nil {
			return cfg, cfg.Validate()
		}
		cfg = DefaultSimConfig()
	}

	// Use embedded default YAML
	if err := yaml.Unmarshal(defaultSimYAML, &cfg); err != nil {
		return DefaultSimConfig(), nil // Fallback to hardcoded if embed fails
	}
	return cfg, nil
}

// userConfigPath returns the path to user config file, or empty if home is unavailable.
func userConfigPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".rollphys", "configs", filename)
}

// Validate rejects values the simulation cannot run with.
func (c SimConfig) Validate() error {
	switch {
	case c.Physics.TickRate <= 0:
		return fmt.Errorf("%w: physics.tick_rate must be positive, got %d", ErrInvalid, c.Physics.TickRate)
	case c.Physics.TickRate > 1000:
		return fmt.Errorf("%w: physics.tick_rate %d exceeds fixed-point resolution", ErrInvalid, c.Physics.TickRate)
	case c.Physics.VelocityIterations < 0:
		return fmt.Errorf("%w: physics.velocity_iterations must not be negative", ErrInvalid)
	case c.Physics.Baumgarte < 0 || c.Physics.Baumgarte > 1:
		return fmt.Errorf("%w: physics.baumgarte must be within [0, 1], got %g", ErrInvalid, c.Physics.Baumgarte)
	case c.Rollback.MaxDepth < 1:
		return fmt.Errorf("%w: rollback.max_depth must be at least 1, got %d", ErrInvalid, c.Rollback.MaxDepth)
	case c.Tank.Radius <= 0 || c.Bullet.Radius <= 0:
		return fmt.Errorf("%w: tank and bullet radius must be positive", ErrInvalid)
	case c.Tank.Mass <= 0 || c.Bullet.Mass <= 0:
		return fmt.Errorf("%w: tank and bullet mass must be positive", ErrInvalid)
	case c.Replay.SnapshotEvery < 1:
		return fmt.Errorf("%w: replay.snapshot_every must be at least 1", ErrInvalid)
	}
	return nil
}

// QualityPreset represents a named solver quality level.
type QualityPreset string

const (
	QualityFast    QualityPreset = "fast"
	QualityNormal  QualityPreset = "normal"
	QualityPrecise QualityPreset = "precise"
)

// ParseQuality validates a preset name. Empty means normal.
func ParseQuality(s string) (QualityPreset, error) {
	switch QualityPreset(s) {
	case "", QualityNormal:
		return QualityNormal, nil
	case QualityFast, QualityPrecise:
		return QualityPreset(s), nil
	}
	return "", fmt.Errorf("%w: unknown quality preset %q (use fast, normal or precise)", ErrInvalid, s)
}

// ApplyQualityPreset adjusts solver settings for a quality preset.
func ApplyQualityPreset(cfg *SimConfig, preset QualityPreset) {
	switch preset {
	case QualityFast:
		cfg.Physics.VelocityIterations = 4
		cfg.Physics.MaxSweepSteps = 4
		cfg.Physics.WarmStart = true
	case QualityPrecise:
		cfg.Physics.VelocityIterations = 16
		cfg.Physics.MaxSweepSteps = 64
		cfg.Physics.WarmStart = true
		cfg.Physics.Slop = 0.01
	}
}
