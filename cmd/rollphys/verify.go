package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/rollphys/internal/replay"
	"github.com/vovakirdan/rollphys/internal/scenario"
	"github.com/vovakirdan/rollphys/internal/snapshot"
	"github.com/vovakirdan/rollphys/internal/storage"
)

// verifyRollbackEvery is used when verify is given no rollback pressure.
const verifyRollbackEvery = 4

var verifyFlags runFlags

var verifyCmd = &cobra.Command{
	Use:   "verify <scenario|replay-dir>",
	Short: "Check that rollbacks reproduce the same frames",
	Long: `Given a scenario id, run it twice with the same scripted input: once
without rollbacks and once with forced rollbacks or delayed confirmation.
Every settled frame must have the same checksum.

Given a replay bundle directory, re-run the recorded inputs and compare
against the snapshots and final checksum stored in the bundle.

Desynced frames are reported and recorded in the run history.

Examples:
  rollphys verify tanks
  rollphys verify pile --frames 1200 --confirm-delay 4 --depth 8
  rollphys verify ./replays/tanks-3f1c...`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyFlags.register(verifyCmd)
}

// mismatch is one frame where two runs disagree.
type mismatch struct {
	frame    snapshot.Frame
	expected uint64
	actual   uint64
}

// compareChecksums lists frames whose checksums differ, up to limit. A
// length difference is reported at the first missing frame.
func compareChecksums(expected, actual []uint64, limit int) []mismatch {
	var out []mismatch
	for i := 0; i < max(len(expected), len(actual)) && len(out) < limit; i++ {
		var e, a uint64
		if i < len(expected) {
			e = expected[i]
		}
		if i < len(actual) {
			a = actual[i]
		}
		if i >= len(expected) || i >= len(actual) || e != a {
			out = append(out, mismatch{frame: snapshot.Frame(i), expected: e, actual: a})
		}
	}
	return out
}

const maxReported = 20

func runVerify(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	target := args[0]
	if st, err := os.Stat(filepath.Join(target, "manifest.yaml")); err == nil && !st.IsDir() {
		return verifyBundle(logger, target)
	}
	return verifyScenario(logger, target)
}

func verifyScenario(logger *log.Logger, id string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fresh := func() (scenario.Scenario, error) {
		return buildScenario(id, verifyFlags.mapPath, verifyFlags.players, cfg)
	}

	plainSc, err := fresh()
	if err != nil {
		return err
	}
	input := scenario.Script(verifyFlags.seed, len(plainSc.Players()))
	base := scenario.RunOptions{
		Frames:   snapshot.Frame(verifyFlags.frames),
		MaxDepth: verifyFlags.maxDepth(cfg),
		Input:    input,
		Logger:   logger,
	}
	plain, err := scenario.Run(plainSc, base)
	if err != nil {
		return fmt.Errorf("plain run: %w", err)
	}

	rolledSc, err := fresh()
	if err != nil {
		return err
	}
	opts := base
	opts.ConfirmDelay = verifyFlags.confirmDelay
	opts.RollbackEvery = verifyFlags.rollbackEvery
	if opts.ConfirmDelay == 0 && opts.RollbackEvery == 0 {
		opts.RollbackEvery = verifyRollbackEvery
	}
	rolled, err := scenario.Run(rolledSc, opts)
	if err != nil {
		return fmt.Errorf("rollback run: %w", err)
	}

	logger.Info("compared runs", "scenario", id, "frames", verifyFlags.frames,
		"rollbacks", rolled.Stats.Rollbacks, "resimulated", rolled.Stats.ResimulatedFrames)
	diffs := compareChecksums(plain.Checksums, rolled.Checksums, maxReported)

	run := storage.Run{
		Scenario:          id,
		Frames:            verifyFlags.frames,
		MaxDepth:          opts.MaxDepth,
		Rollbacks:         rolled.Stats.Rollbacks,
		ResimulatedFrames: rolled.Stats.ResimulatedFrames,
		FinalChecksum:     replay.FormatChecksum(rolled.Final.Checksum()),
		Verified:          len(diffs) == 0,
	}
	return report(logger, run, diffs, "")
}

func verifyBundle(logger *log.Logger, dir string) error {
	r, err := replay.Open(dir)
	if err != nil {
		return err
	}
	m := r.Manifest()
	if err := m.Config.Validate(); err != nil {
		return fmt.Errorf("replay config: %w", err)
	}
	sc, err := buildScenario(m.Scenario, m.Map, m.Players, m.Config)
	if err != nil {
		return err
	}
	inputs, err := r.Inputs()
	if err != nil {
		return err
	}
	stored, err := r.Frames(sc.World().Statics())
	if err != nil {
		return err
	}

	res, err := scenario.Run(sc, scenario.RunOptions{
		Frames:        snapshot.Frame(m.Frames),
		MaxDepth:      verifyFlags.maxDepth(m.Config),
		Input:         replay.InputFunc(inputs),
		RollbackEvery: verifyFlags.rollbackEvery,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("replaying %s: %w", dir, err)
	}

	var diffs []mismatch
	for _, fr := range stored {
		if len(diffs) == maxReported {
			break
		}
		var got uint64
		if int(fr.Frame) < len(res.Checksums) {
			got = res.Checksums[fr.Frame]
		}
		if got != fr.Checksum {
			diffs = append(diffs, mismatch{frame: fr.Frame, expected: fr.Checksum, actual: got})
		}
	}
	final := replay.FormatChecksum(res.Final.Checksum())
	if final != m.FinalChecksum && len(diffs) < maxReported {
		want, _ := strconv.ParseUint(m.FinalChecksum, 16, 64)
		diffs = append(diffs, mismatch{frame: res.Final.Frame(), expected: want, actual: res.Final.Checksum()})
	}
	logger.Info("replayed bundle", "id", m.ID, "scenario", m.Scenario, "frames", m.Frames, "snapshots", len(stored))

	run := storage.Run{
		Scenario:          m.Scenario,
		Frames:            m.Frames,
		MaxDepth:          verifyFlags.maxDepth(m.Config),
		Rollbacks:         res.Stats.Rollbacks,
		ResimulatedFrames: res.Stats.ResimulatedFrames,
		FinalChecksum:     final,
		ReplayDir:         dir,
		Verified:          len(diffs) == 0,
	}
	return report(logger, run, diffs, m.ID)
}

// reportStore is the part of the run history a verify report writes to.
type reportStore interface {
	SaveRun(storage.Run) (string, error)
	SaveDesync(storage.Desync) (int64, error)
	MarkVerified(runID string) error
}

// recordReport saves the verify run and its desyncs. Failures are logged,
// not returned: the printed report is the result that matters.
func recordReport(logger *log.Logger, store reportStore, run storage.Run, diffs []mismatch, original string) {
	id, err := store.SaveRun(run)
	if err != nil {
		logger.Warn("could not record verify run", "error", err)
		return
	}
	for _, d := range diffs {
		_, err := store.SaveDesync(storage.Desync{
			RunID:    id,
			Frame:    int64(d.frame),
			Expected: replay.FormatChecksum(d.expected),
			Actual:   replay.FormatChecksum(d.actual),
		})
		if err != nil {
			logger.Warn("could not record desync", "run", id, "frame", d.frame, "error", err)
			return
		}
	}
	if original != "" && len(diffs) == 0 {
		if err := store.MarkVerified(original); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("could not mark run verified", "id", original, "error", err)
		}
	}
}

// report prints the outcome, records it and turns desyncs into an error.
// A clean check also marks the original recorded run as verified.
func report(logger *log.Logger, run storage.Run, diffs []mismatch, original string) error {
	if store := openStore(logger); store != nil {
		defer store.Close()
		recordReport(logger, store, run, diffs, original)
	}

	if len(diffs) == 0 {
		fmt.Printf("OK: %d frames match (checksum %s)\n", run.Frames, run.FinalChecksum)
		return nil
	}
	fmt.Printf("DESYNC: %d frames differ", len(diffs))
	if len(diffs) == maxReported {
		fmt.Print(" (showing the first ", maxReported, ")")
	}
	fmt.Println()
	fmt.Printf("  %-8s  %-16s  %s\n", "Frame", "Expected", "Actual")
	for _, d := range diffs {
		fmt.Printf("  %-8d  %s  %s\n", d.frame, replay.FormatChecksum(d.expected), replay.FormatChecksum(d.actual))
	}
	return fmt.Errorf("%s: first desync at frame %d", run.Scenario, diffs[0].frame)
}
