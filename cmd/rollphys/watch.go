package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vovakirdan/rollphys/internal/platform/tui"
	"github.com/vovakirdan/rollphys/internal/scenario"
)

var (
	flagWatchMap     string
	flagWatchPlayers int
	flagWatchSeed    uint64
	flagWatchFPS     int
	flagWatchDepth   int
	flagWatchIdle    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <scenario>",
	Short: "Play a scenario in the terminal",
	Long: `Run a scenario in real time through the rollback driver.

Controls:
  W/A/S/D    - Move player 1
  Arrows     - Fire
  R          - Rewind to the oldest retained frame and resimulate
  C          - Rewind with a corrected input for player 2
  P/Space    - Pause
  N          - Step one frame while paused
  ?          - Show all keys
  Q/Ctrl+C   - Quit

Players 2-4 follow a seeded script unless --idle is set.

Examples:
  rollphys watch tanks
  rollphys watch tanks --map ./arena.json --players 2
  rollphys watch pile --fps 30`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagWatchMap, "map", "", "Arena map file (JSON or YAML)")
	watchCmd.Flags().IntVar(&flagWatchPlayers, "players", 0, "Player count (0 = every spawn point)")
	watchCmd.Flags().Uint64Var(&flagWatchSeed, "seed", 1, "Seed for the scripted players")
	watchCmd.Flags().IntVar(&flagWatchFPS, "fps", 0, "Tick rate (0 = config physics.tick_rate)")
	watchCmd.Flags().IntVar(&flagWatchDepth, "depth", 0, "Rollback window in frames (0 = config rollback.max_depth)")
	watchCmd.Flags().BoolVar(&flagWatchIdle, "idle", false, "Leave players 2-4 without input")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sc, err := buildScenario(args[0], flagWatchMap, flagWatchPlayers, cfg)
	if err != nil {
		return err
	}

	width, height := 80, 24 // Defaults
	if w, h, termErr := term.GetSize(int(os.Stdout.Fd())); termErr == nil {
		width = w
		height = h
	}

	opts := tui.Options{
		TickRate: cfg.Physics.TickRate,
		MaxDepth: cfg.Rollback.MaxDepth,
		Width:    width,
		Height:   height,
	}
	if flagWatchFPS > 0 {
		opts.TickRate = flagWatchFPS
	}
	if flagWatchDepth > 0 {
		opts.MaxDepth = flagWatchDepth
	}
	if !flagWatchIdle {
		opts.Script = scenario.Script(flagWatchSeed, len(sc.Players()))
	}
	// the driver logs nothing while the alternate screen is active
	return tui.Run(sc, opts)
}
