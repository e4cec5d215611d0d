package scenario

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/rollback"
	"github.com/vovakirdan/rollphys/internal/snapshot"
)

// RunOptions configures a headless run.
type RunOptions struct {
	Frames   snapshot.Frame
	MaxDepth int
	Input    InputFunc

	// ConfirmDelay > 0 plays the run like a networked session: every
	// player but the first is predicted to repeat their last confirmed
	// input, and the real input arrives ConfirmDelay frames later.
	ConfirmDelay int

	// RollbackEvery > 0 forces a rollback to the oldest retained frame
	// every so many ticks with unchanged inputs.
	RollbackEvery int

	Logger *log.Logger

	// OnSettle receives every frame once it is final, in order.
	OnSettle func(frame snapshot.Frame, snap *snapshot.Snapshot, input core.MultiInputFrame)
}

// RunResult summarises a headless run.
type RunResult struct {
	Final     *snapshot.Snapshot
	Checksums []uint64 // index = frame
	Stats     rollback.Stats
}

// Run drives sc for opts.Frames frames and returns the checksum of every
// settled frame. Whatever the rollback settings, a deterministic scenario
// must produce identical checksums.
func Run(sc Scenario, opts RunOptions) (RunResult, error) {
	if opts.Input == nil {
		return RunResult{}, fmt.Errorf("scenario: run needs an input source")
	}
	if opts.ConfirmDelay > 0 && opts.ConfirmDelay+2 > opts.MaxDepth {
		return RunResult{}, fmt.Errorf("scenario: confirm delay %d needs max depth of at least %d, got %d",
			opts.ConfirmDelay, opts.ConfirmDelay+2, opts.MaxDepth)
	}

	var res RunResult
	drv, err := rollback.NewDriver(sc, rollback.Options{
		MaxDepth: opts.MaxDepth,
		Logger:   opts.Logger,
		OnSettle: func(f snapshot.Frame, snap *snapshot.Snapshot, in core.MultiInputFrame) {
			res.Checksums = append(res.Checksums, snap.Checksum())
			if opts.OnSettle != nil {
				opts.OnSettle(f, snap, in)
			}
		},
	})
	if err != nil {
		return res, err
	}
	start := drv.CurrentFrame()

	var confirmed core.MultiInputFrame
	for f := start + 1; f <= start+opts.Frames; f++ {
		in := opts.Input(f)
		if opts.ConfirmDelay > 0 {
			in = predict(in, confirmed)
		}
		if err := drv.Tick(in); err != nil {
			return res, err
		}

		if opts.ConfirmDelay > 0 {
			if c := f - snapshot.Frame(opts.ConfirmDelay); c > start {
				confirmed = opts.Input(c)
				if _, err := drv.Confirm(c, confirmed); err != nil {
					return res, fmt.Errorf("scenario: confirm frame %d: %w", c, err)
				}
			}
		}
		if opts.RollbackEvery > 0 && int(f-start)%opts.RollbackEvery == 0 {
			if err := drv.Rollback(drv.OldestRetained(), nil); err != nil {
				return res, err
			}
		}
	}

	// late confirmations for the tail of the run
	if opts.ConfirmDelay > 0 {
		end := start + opts.Frames
		for c := max(end-snapshot.Frame(opts.ConfirmDelay)+1, start+1); c <= end; c++ {
			if _, err := drv.Confirm(c, opts.Input(c)); err != nil {
				return res, fmt.Errorf("scenario: confirm frame %d: %w", c, err)
			}
		}
	}

	if err := drv.Flush(); err != nil {
		return res, err
	}
	res.Final, err = drv.Snapshot(drv.CurrentFrame())
	if err != nil {
		return res, err
	}
	res.Stats = drv.Stats()
	if opts.Logger != nil {
		opts.Logger.Debug("run finished", "frames", opts.Frames, "rollbacks", res.Stats.Rollbacks)
	}
	return res, nil
}

// predict keeps the local player's real input and assumes everybody else
// repeats what they last sent.
func predict(real, confirmed core.MultiInputFrame) core.MultiInputFrame {
	out := confirmed
	out.SetPlayer(core.Player1, real.Player(core.Player1))
	return out
}
