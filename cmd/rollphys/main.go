// rollphys runs deterministic 2D physics scenarios through a rollback
// driver, records replays and checks that rolled-back runs stay in sync.
//
// Usage:
//
//	rollphys list                   - List available scenarios
//	rollphys simulate <scenario>    - Run headless and record the run
//	rollphys verify <scenario|dir>  - Compare rolled-back and plain runs
//	rollphys watch <scenario>       - Play a scenario in the terminal
//	rollphys history [scenario]     - Show recorded runs
//
// Global flags:
//
//	--config <path>     - Simulation config YAML
//	--quality <preset>  - Solver preset: fast, normal, precise
//	--db <path>         - Run history database (default: ~/.rollphys/runs.db)
//	--log-level <level> - debug, info, warn or error
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/rollphys/internal/config"
	"github.com/vovakirdan/rollphys/internal/maps"
	"github.com/vovakirdan/rollphys/internal/scenario"
	"github.com/vovakirdan/rollphys/internal/storage"

	// Import scenarios to register them
	_ "github.com/vovakirdan/rollphys/internal/pile"
	_ "github.com/vovakirdan/rollphys/internal/tanks"
)

var (
	// Global flags
	flagConfig   string
	flagQuality  string
	flagDBPath   string
	flagLogLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rollphys",
	Short: "Rollback-safe 2D physics runner",
	Long: `rollphys steps deterministic physics scenarios through a rollback
driver that snapshots every frame, rewinds on corrected input and
resimulates to the present.

Available commands:
  list      - Show all available scenarios
  simulate  - Run a scenario headless, optionally writing a replay
  verify    - Check that rollbacks reproduce a plain run or a replay
  watch     - Play a scenario in the terminal
  history   - Show recorded runs and desync reports

Examples:
  rollphys list
  rollphys simulate tanks --frames 1200 --confirm-delay 3 --replay ./replays
  rollphys verify pile --rollback-every 5
  rollphys verify ./replays/tanks-3f1c...
  rollphys watch tanks --map arena.json`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to simulation config YAML")
	rootCmd.PersistentFlags().StringVar(&flagQuality, "quality", "", "Solver preset: fast, normal, precise")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "~/.rollphys/runs.db", "Path to run history database")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
}

func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "rollphys",
	})
	if lvl, err := log.ParseLevel(flagLogLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warn("unknown log level, using info", "level", flagLogLevel)
	}
	return logger
}

// loadConfig reads the simulation config and applies the quality preset.
func loadConfig() (config.SimConfig, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	preset, err := config.ParseQuality(flagQuality)
	if err != nil {
		return cfg, err
	}
	config.ApplyQualityPreset(&cfg, preset)
	return cfg, cfg.Validate()
}

// buildScenario creates a registered scenario. An empty mapPath keeps the
// scenario's own geometry.
func buildScenario(id, mapPath string, players int, cfg config.SimConfig) (scenario.Scenario, error) {
	if !scenario.Exists(id) {
		return nil, fmt.Errorf("unknown scenario %q (run 'rollphys list' to see available scenarios)", id)
	}
	opts := scenario.Options{Config: cfg, Players: players}
	if mapPath != "" {
		m, err := maps.Load(mapPath)
		if err != nil {
			return nil, err
		}
		opts.Map = m
	}
	return scenario.Create(id, opts)
}

// openStore opens the run history. Failure is not fatal: runs still work,
// they are just not recorded.
func openStore(logger *log.Logger) *storage.Store {
	store, err := storage.Open(flagDBPath)
	if err != nil {
		logger.Warn("could not open run history database", "path", flagDBPath, "error", err)
		return nil
	}
	return store
}
