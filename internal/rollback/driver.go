// Package rollback implements the restore/resimulate driver: it steps a
// deterministic simulation frame by frame, keeps recent snapshots and inputs,
// and on request rewinds to a past frame and replays forward with corrected
// inputs.
package rollback

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/history"
	"github.com/vovakirdan/rollphys/internal/snapshot"
)

var (
	// ErrRollbackTooDeep is returned when the target frame has left the
	// retained window.
	ErrRollbackTooDeep = errors.New("rollback: target older than retained history")
	// ErrFutureFrame is returned for targets or corrections past the current frame.
	ErrFutureFrame = errors.New("rollback: frame is in the future")
	// ErrBadCorrection is returned for a correction that resimulation would never read.
	ErrBadCorrection = errors.New("rollback: correction outside resimulated range")
	// ErrHalted is returned after a simulation failure left the driver unusable.
	ErrHalted = errors.New("rollback: driver halted after simulation failure")
)

// Simulation is the deterministic state the driver steps. Step advances the
// state by exactly one frame; Capture and Restore must round-trip.
type Simulation interface {
	Step(input core.MultiInputFrame) error
	Capture() (*snapshot.Snapshot, error)
	Restore(s *snapshot.Snapshot) error
}

// Pruner is implemented by simulations that keep per-frame bookkeeping which
// can be dropped once a frame can no longer be restored.
type Pruner interface {
	Prune(before snapshot.Frame)
}

// State is the driver's position in its state machine.
type State int

const (
	StateLive State = iota
	StateRollbackRequested
	StateRestoring
	StateResimulating
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateRollbackRequested:
		return "rollback-requested"
	case StateRestoring:
		return "restoring"
	case StateResimulating:
		return "resimulating"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Correction replaces the logged input that produced Frame.
type Correction struct {
	Frame snapshot.Frame
	Input core.MultiInputFrame
}

// FrameEvent is passed to the OnFrame hook after every captured frame.
type FrameEvent struct {
	Frame    snapshot.Frame
	State    State // StateLive or StateResimulating
	Snapshot *snapshot.Snapshot
}

// Options configures a Driver.
type Options struct {
	// MaxDepth is the ring capacity: how many frames back a rollback may go.
	MaxDepth int

	Logger *log.Logger

	// OnFrame runs after each frame is stepped and stored. It may call
	// RequestRollback; during resimulation that supersedes the running one.
	OnFrame func(FrameEvent)

	// OnSettle runs once for each frame as it leaves the rollback window,
	// in frame order. The snapshot and input are final.
	OnSettle func(frame snapshot.Frame, snap *snapshot.Snapshot, input core.MultiInputFrame)
}

// Stats counts driver activity.
type Stats struct {
	Ticks             int
	Rollbacks         int
	ResimulatedFrames int
	Superseded        int
	DeepestRollback   int
}

type request struct {
	target      snapshot.Frame
	corrections []Correction
}

// Driver orchestrates stepping, capture, restore and resimulation. It is not
// safe for concurrent use; all calls must come from the tick loop.
type Driver struct {
	sim    Simulation
	opts   Options
	logger *log.Logger

	ring    *history.Ring
	inputs  *inputLog
	current snapshot.Frame
	settled snapshot.Frame // highest frame handed to OnSettle

	state   State
	pending *request
	resimAt snapshot.Frame // last frame resimulated so far
	// interrupted is set while a superseded resimulation is unfinished
	interrupted bool
	halted      error
	stats       Stats
}

// NewDriver captures the simulation's current state as the first retained
// frame and returns a live driver.
func NewDriver(sim Simulation, opts Options) (*Driver, error) {
	if opts.MaxDepth < 1 {
		return nil, fmt.Errorf("rollback: max depth must be at least 1, got %d", opts.MaxDepth)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	snap, err := sim.Capture()
	if err != nil {
		return nil, fmt.Errorf("rollback: initial capture: %w", err)
	}

	d := &Driver{
		sim:     sim,
		opts:    opts,
		logger:  logger,
		ring:    history.NewRing(opts.MaxDepth),
		inputs:  newInputLog(opts.MaxDepth),
		current: snap.Frame(),
		settled: snap.Frame() - 1,
	}
	if err := d.ring.Put(d.current, snap); err != nil {
		return nil, err
	}
	d.inputs.put(d.current, core.MultiInputFrame{})
	return d, nil
}

// State returns the current state machine position.
func (d *Driver) State() State {
	return d.state
}

// CurrentFrame returns the newest simulated frame.
func (d *Driver) CurrentFrame() snapshot.Frame {
	return d.current
}

// OldestRetained returns the oldest frame a rollback may target.
func (d *Driver) OldestRetained() snapshot.Frame {
	return d.ring.OldestRetained()
}

// MaxDepth returns the configured window size.
func (d *Driver) MaxDepth() int {
	return d.ring.Cap()
}

// Snapshot returns the stored snapshot for a retained frame.
func (d *Driver) Snapshot(frame snapshot.Frame) (*snapshot.Snapshot, error) {
	return d.ring.Get(frame)
}

// Input returns the logged input that produced a retained frame.
func (d *Driver) Input(frame snapshot.Frame) (core.MultiInputFrame, bool) {
	return d.inputs.get(frame)
}

// Stats returns activity counters.
func (d *Driver) Stats() Stats {
	return d.stats
}

// Tick finishes any pending rollback, then steps one live frame with input,
// captures it and stores it.
func (d *Driver) Tick(input core.MultiInputFrame) error {
	if d.halted != nil {
		return d.halted
	}
	if d.pending != nil {
		if err := d.Process(); err != nil {
			return err
		}
	}

	next := d.current + 1
	d.settle(next - snapshot.Frame(d.ring.Cap()))

	if err := d.sim.Step(input); err != nil {
		return d.halt(fmt.Errorf("rollback: step to frame %d: %w", next, err))
	}
	snap, err := d.store(next, input)
	if err != nil {
		return d.halt(err)
	}
	d.current = next
	d.stats.Ticks++

	if p, ok := d.sim.(Pruner); ok {
		p.Prune(d.ring.OldestRetained())
	}
	d.emit(FrameEvent{Frame: next, State: StateLive, Snapshot: snap})

	// a hook may have asked for a rollback
	if d.pending != nil {
		return d.Process()
	}
	return nil
}

// store captures the simulation, checks it is at frame and records both
// snapshot and input.
func (d *Driver) store(frame snapshot.Frame, input core.MultiInputFrame) (*snapshot.Snapshot, error) {
	snap, err := d.sim.Capture()
	if err != nil {
		return nil, fmt.Errorf("rollback: capture frame %d: %w", frame, err)
	}
	if snap.Frame() != frame {
		return nil, fmt.Errorf("rollback: simulation captured frame %d, expected %d", snap.Frame(), frame)
	}
	if err := d.ring.Put(frame, snap); err != nil {
		return nil, err
	}
	d.inputs.put(frame, input)
	return snap, nil
}

func (d *Driver) emit(ev FrameEvent) {
	if d.opts.OnFrame != nil {
		d.opts.OnFrame(ev)
	}
}

// settle hands every frame up to and including f to OnSettle.
func (d *Driver) settle(f snapshot.Frame) {
	if d.opts.OnSettle == nil {
		d.settled = max(d.settled, f)
		return
	}
	for d.settled < f {
		g := d.settled + 1
		snap, err := d.ring.Get(g)
		if err != nil {
			d.settled = g
			continue
		}
		in, _ := d.inputs.get(g)
		d.opts.OnSettle(g, snap, in)
		d.settled = g
	}
}

// Flush settles every retained frame. Call it once the run is over.
func (d *Driver) Flush() error {
	if d.halted != nil {
		return d.halted
	}
	if d.pending != nil {
		if err := d.Process(); err != nil {
			return err
		}
	}
	d.settle(d.current)
	return nil
}

func (d *Driver) halt(err error) error {
	d.halted = fmt.Errorf("%w: %w", ErrHalted, err)
	d.state = StateLive
	d.pending = nil
	d.interrupted = false
	d.logger.Error("simulation failed", "frame", d.current, "error", err)
	return err
}

// RequestRollback queues a rollback to target, replacing the logged inputs
// named by corrections. Requests made before Process runs merge: the
// earliest target wins and later corrections for the same frame override
// earlier ones. A request made while resimulating supersedes the running
// one.
func (d *Driver) RequestRollback(target snapshot.Frame, corrections []Correction) {
	if d.pending == nil {
		d.pending = &request{target: target}
	} else {
		d.pending.target = min(d.pending.target, target)
	}
	d.pending.corrections = append(d.pending.corrections, corrections...)

	if d.state == StateLive {
		d.state = StateRollbackRequested
	}
}

// Rollback requests a rollback and processes it immediately.
func (d *Driver) Rollback(target snapshot.Frame, corrections []Correction) error {
	d.RequestRollback(target, corrections)
	return d.Process()
}

// Process runs pending rollbacks until the driver is live again at the
// frame it was at before. A rejected request leaves the simulation and the
// input log as they were; if it superseded a running resimulation, that
// resimulation is completed first.
func (d *Driver) Process() error {
	if d.halted != nil {
		return d.halted
	}
	var rejected error
	for d.pending != nil {
		req := d.pending
		d.pending = nil

		if err := d.validate(req); err != nil {
			d.logger.Warn("rollback rejected", "target", req.target, "current", d.current, "error", err)
			if rejected == nil {
				rejected = err
			}
			if !d.interrupted {
				break
			}
			req = &request{target: d.resimAt}
		}
		if err := d.run(req); err != nil {
			return err
		}
	}
	d.state = StateLive
	return rejected
}

func (d *Driver) validate(req *request) error {
	if req.target > d.current {
		return fmt.Errorf("%w: target %d, current %d", ErrFutureFrame, req.target, d.current)
	}
	if oldest := d.ring.OldestRetained(); req.target < oldest {
		return fmt.Errorf("%w: target %d, oldest retained %d", ErrRollbackTooDeep, req.target, oldest)
	}
	for _, c := range req.corrections {
		if c.Frame > d.current {
			return fmt.Errorf("%w: correction for frame %d, current %d", ErrFutureFrame, c.Frame, d.current)
		}
		if c.Frame <= req.target {
			return fmt.Errorf("%w: correction for frame %d, target %d", ErrBadCorrection, c.Frame, req.target)
		}
	}
	return nil
}

// run performs Restoring and Resimulating for one request. A superseding
// request arriving from OnFrame ends this run early and is picked up by
// Process.
func (d *Driver) run(req *request) error {
	d.state = StateRestoring
	snap, err := d.ring.Get(req.target)
	if err != nil {
		d.state = StateLive
		return fmt.Errorf("%w: %w", ErrRollbackTooDeep, err)
	}
	for _, c := range req.corrections {
		d.inputs.put(c.Frame, c.Input)
	}
	if err := d.sim.Restore(snap); err != nil {
		return d.halt(fmt.Errorf("rollback: restore frame %d: %w", req.target, err))
	}

	d.stats.Rollbacks++
	depth := int(d.current - req.target)
	d.stats.DeepestRollback = max(d.stats.DeepestRollback, depth)
	d.logger.Debug("rollback", "target", req.target, "current", d.current, "corrections", len(req.corrections))

	d.state = StateResimulating
	d.resimAt = req.target
	for f := req.target + 1; f <= d.current; f++ {
		in, ok := d.inputs.get(f)
		if !ok {
			return d.halt(fmt.Errorf("rollback: no input logged for frame %d", f))
		}
		if err := d.sim.Step(in); err != nil {
			return d.halt(fmt.Errorf("rollback: resimulate frame %d: %w", f, err))
		}
		snap, err := d.store(f, in)
		if err != nil {
			return d.halt(err)
		}
		d.resimAt = f
		d.stats.ResimulatedFrames++
		d.emit(FrameEvent{Frame: f, State: StateResimulating, Snapshot: snap})

		if d.pending != nil {
			// Frames past resimAt are still stale, so a later target
			// restarts from the last fresh frame instead.
			d.pending.target = min(d.pending.target, d.resimAt)
			d.stats.Superseded++
			d.interrupted = true
			d.logger.Debug("rollback superseded", "resimulated", d.resimAt, "new_target", d.pending.target)
			return nil
		}
	}
	d.interrupted = false
	return nil
}

// Confirm records the authoritative input that produced frame. When it
// differs from the input used, the driver rolls back to frame-1 and
// resimulates. It reports whether a rollback happened.
func (d *Driver) Confirm(frame snapshot.Frame, input core.MultiInputFrame) (bool, error) {
	if frame > d.current {
		return false, fmt.Errorf("%w: confirm frame %d, current %d", ErrFutureFrame, frame, d.current)
	}
	used, ok := d.inputs.get(frame)
	if !ok {
		return false, fmt.Errorf("%w: confirm frame %d, oldest retained %d", ErrRollbackTooDeep, frame, d.ring.OldestRetained())
	}
	if used == input {
		return false, nil
	}
	if err := d.Rollback(frame-1, []Correction{{Frame: frame, Input: input}}); err != nil {
		return false, err
	}
	return true, nil
}
