package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/rollphys/internal/config"
	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/replay"
	"github.com/vovakirdan/rollphys/internal/scenario"
	"github.com/vovakirdan/rollphys/internal/snapshot"
	"github.com/vovakirdan/rollphys/internal/storage"
)

// runFlags are shared by simulate and verify.
type runFlags struct {
	frames        int64
	depth         int
	rollbackEvery int
	confirmDelay  int
	seed          uint64
	mapPath       string
	players       int
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.frames, "frames", 600, "Frames to simulate")
	cmd.Flags().IntVar(&f.depth, "depth", 0, "Rollback window in frames (0 = config rollback.max_depth)")
	cmd.Flags().IntVar(&f.rollbackEvery, "rollback-every", 0, "Force a full-depth rollback every N frames")
	cmd.Flags().IntVar(&f.confirmDelay, "confirm-delay", 0, "Predict remote players and confirm their input N frames late")
	cmd.Flags().Uint64Var(&f.seed, "seed", 1, "Seed for the scripted player input")
	cmd.Flags().StringVar(&f.mapPath, "map", "", "Arena map file (JSON or YAML)")
	cmd.Flags().IntVar(&f.players, "players", 0, "Player count (0 = every spawn point)")
}

func (f *runFlags) maxDepth(cfg config.SimConfig) int {
	if f.depth > 0 {
		return f.depth
	}
	return cfg.Rollback.MaxDepth
}

var (
	simFlags      runFlags
	flagReplayDir string
	flagNoStore   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <scenario>",
	Short: "Run a scenario headless",
	Long: `Run a scenario without a terminal UI. Every player is driven by a
seeded input script. With --confirm-delay, players 2-4 are predicted and
their real input arrives late, which forces rollbacks like a networked
session would. Settled frames can be written to a replay bundle.

Examples:
  rollphys simulate tanks
  rollphys simulate tanks --frames 3600 --confirm-delay 4 --depth 8
  rollphys simulate pile --rollback-every 5 --replay ./replays`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	simFlags.register(simulateCmd)
	simulateCmd.Flags().StringVar(&flagReplayDir, "replay", "", "Directory to write a replay bundle into")
	simulateCmd.Flags().BoolVar(&flagNoStore, "no-store", false, "Do not record the run in the history database")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sc, err := buildScenario(args[0], simFlags.mapPath, simFlags.players, cfg)
	if err != nil {
		return err
	}

	var rec *replay.Writer
	var recErr error
	if flagReplayDir != "" {
		if rec, err = replay.Create(flagReplayDir, sc.ID(), cfg.Replay.SnapshotEvery); err != nil {
			return err
		}
		// discard the bundle unless it was closed below
		defer func() {
			if rec == nil {
				return
			}
			if err := rec.Abort(); err != nil {
				logger.Warn("could not discard replay", "dir", rec.Dir(), "error", err)
			}
		}()
	}

	start := time.Now()
	res, err := scenario.Run(sc, scenario.RunOptions{
		Frames:        snapshot.Frame(simFlags.frames),
		MaxDepth:      simFlags.maxDepth(cfg),
		Input:         scenario.Script(simFlags.seed, len(sc.Players())),
		ConfirmDelay:  simFlags.confirmDelay,
		RollbackEvery: simFlags.rollbackEvery,
		Logger:        logger,
		OnSettle: func(f snapshot.Frame, snap *snapshot.Snapshot, in core.MultiInputFrame) {
			if rec != nil && recErr == nil {
				recErr = rec.Record(f, snap, in)
			}
		},
	})
	if err != nil {
		return err
	}
	if recErr != nil {
		return recErr
	}
	elapsed := time.Since(start)

	final := replay.FormatChecksum(res.Final.Checksum())
	run := storage.Run{
		Scenario:          sc.ID(),
		Frames:            simFlags.frames,
		MaxDepth:          simFlags.maxDepth(cfg),
		Rollbacks:         res.Stats.Rollbacks,
		ResimulatedFrames: res.Stats.ResimulatedFrames,
		FinalChecksum:     final,
	}
	if rec != nil {
		err := rec.Close(replay.Manifest{
			Scenario:      sc.ID(),
			Map:           simFlags.mapPath,
			Players:       len(sc.Players()),
			Frames:        simFlags.frames,
			FinalChecksum: final,
			Config:        cfg,
		})
		if err != nil {
			return err
		}
		run.ID = rec.ID()
		run.ReplayDir = rec.Dir()
		logger.Info("replay written", "dir", rec.Dir())
		rec = nil
	}

	printRunSummary(sc, res, elapsed)

	if !flagNoStore {
		saveRun(logger, run)
	}
	return nil
}

func printRunSummary(sc scenario.Scenario, res scenario.RunResult, elapsed time.Duration) {
	st := res.Stats
	fmt.Printf("%s: %d frames in %s\n", sc.Title(), res.Final.Frame(), elapsed.Round(time.Millisecond))
	fmt.Printf("  bodies      %d\n", res.Final.BodyCount())
	fmt.Printf("  rollbacks   %d (deepest %d, superseded %d)\n", st.Rollbacks, st.DeepestRollback, st.Superseded)
	fmt.Printf("  resimulated %d frames\n", st.ResimulatedFrames)
	fmt.Printf("  checksum    %s\n", replay.FormatChecksum(res.Final.Checksum()))
}

func saveRun(logger *log.Logger, run storage.Run) string {
	store := openStore(logger)
	if store == nil {
		return ""
	}
	defer store.Close()

	id, err := store.SaveRun(run)
	if err != nil {
		logger.Warn("could not record run", "error", err)
		return ""
	}
	logger.Debug("run recorded", "id", id)
	return id
}
