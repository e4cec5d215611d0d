package rollback

import (
	"errors"
	"testing"

	"github.com/vovakirdan/rollphys/internal/config"
	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/history"
	"github.com/vovakirdan/rollphys/internal/physics"
	"github.com/vovakirdan/rollphys/internal/snapshot"
	"github.com/vovakirdan/rollphys/internal/static"
)

// worldSim drives one ball per player slot; movement bits add velocity.
type worldSim struct {
	w      *physics.World
	pruned snapshot.Frame
	failAt snapshot.Frame // Step fails when producing this frame; 0 disables
}

func newWorldSim(t *testing.T) *worldSim {
	t.Helper()
	cfg := config.DefaultSimConfig().Physics
	cfg.GravityY = -50

	reg := static.NewRegistry()
	if _, err := reg.Register(static.Box(core.ToFixed(40), core.ToFixed(1)), static.Transform{Position: core.VI(0, -1)}); err != nil {
		t.Fatal(err)
	}
	w := physics.NewWorld(cfg, reg)
	for i := 0; i < core.MaxPlayers; i++ {
		_, err := w.CreateBody(physics.BodyDef{
			Position: core.VI(i*3-5, 2+i),
			Radius:   core.ToFixed(1),
			Mass:     core.ToFixed(1),
			Friction: config.Fx(0.4),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return &worldSim{w: w}
}

func (s *worldSim) Step(in core.MultiInputFrame) error {
	if s.failAt != 0 && s.w.Frame()+1 == s.failAt {
		return errors.New("boom")
	}
	for p := core.Player1; p < core.MaxPlayers; p++ {
		f := in.Player(p)
		var dv core.Vec2
		if f.Has(core.ActionMoveRight) {
			dv.X += core.ToFixed(4)
		}
		if f.Has(core.ActionMoveLeft) {
			dv.X -= core.ToFixed(4)
		}
		if f.Has(core.ActionMoveUp) {
			dv.Y += core.ToFixed(6)
		}
		if err := s.w.AddLinearVelocity(snapshot.BodyID(p)+1, dv); err != nil {
			return err
		}
	}
	s.w.Step()
	return nil
}

func (s *worldSim) Capture() (*snapshot.Snapshot, error)  { return s.w.Capture() }
func (s *worldSim) Restore(snap *snapshot.Snapshot) error { return s.w.Restore(snap) }
func (s *worldSim) Prune(before snapshot.Frame) {
	s.pruned = before
	s.w.Prune(before)
}

// script is the authoritative input for a frame.
func script(f snapshot.Frame) core.MultiInputFrame {
	var in core.MultiInputFrame
	var p1, p2 core.InputFrame
	if f%3 == 0 {
		p1.Set(core.ActionMoveRight)
	}
	if f%4 == 1 {
		p2.Set(core.ActionMoveUp)
	}
	if f%5 == 2 {
		p2.Set(core.ActionMoveLeft)
	}
	in.SetPlayer(core.Player1, p1)
	in.SetPlayer(core.Player2, p2)
	return in
}

// wrong is a misprediction that differs from script at every frame.
func wrong(f snapshot.Frame) core.MultiInputFrame {
	in := script(f)
	var p3 core.InputFrame
	p3.Set(core.ActionMoveUp)
	p3.Set(core.ActionMoveLeft)
	in.SetPlayer(core.Player3, p3)
	return in
}

func newDriver(t *testing.T, sim Simulation, opts Options) *Driver {
	t.Helper()
	if opts.MaxDepth == 0 {
		opts.MaxDepth = 8
	}
	d, err := NewDriver(sim, opts)
	if err != nil {
		t.Fatalf("NewDriver() error = %v", err)
	}
	return d
}

// runTo ticks d up to frame n using input(f) for each frame f.
func runTo(t *testing.T, d *Driver, n snapshot.Frame, input func(snapshot.Frame) core.MultiInputFrame) {
	t.Helper()
	for f := d.CurrentFrame() + 1; f <= n; f++ {
		if err := d.Tick(input(f)); err != nil {
			t.Fatalf("Tick(frame %d) error = %v", f, err)
		}
	}
}

func currentSum(t *testing.T, d *Driver) uint64 {
	t.Helper()
	s, err := d.Snapshot(d.CurrentFrame())
	if err != nil {
		t.Fatalf("Snapshot(current) error = %v", err)
	}
	return s.Checksum()
}

// reference runs the authoritative script without any rollback.
func reference(t *testing.T, n snapshot.Frame) uint64 {
	t.Helper()
	d := newDriver(t, newWorldSim(t), Options{})
	runTo(t, d, n, script)
	return currentSum(t, d)
}

func TestRollbackScenarioCapacityEight(t *testing.T) {
	sim := newWorldSim(t)
	d := newDriver(t, sim, Options{MaxDepth: 8})
	runTo(t, d, 10, script)
	before := currentSum(t, d)

	if got := d.OldestRetained(); got != 3 {
		t.Fatalf("OldestRetained() = %d, expected 3", got)
	}
	for _, f := range []snapshot.Frame{0, 1, 2} {
		if _, err := d.Snapshot(f); !errors.Is(err, history.ErrNotFound) {
			t.Errorf("Snapshot(%d) error = %v, expected ErrNotFound", f, err)
		}
	}

	if err := d.Rollback(3, nil); err != nil {
		t.Fatalf("Rollback(3) error = %v", err)
	}
	if d.State() != StateLive || d.CurrentFrame() != 10 {
		t.Errorf("after rollback: state %v frame %d, expected live at 10", d.State(), d.CurrentFrame())
	}
	if after := currentSum(t, d); after != before {
		t.Errorf("rollback with unchanged inputs diverged: %x vs %x", after, before)
	}
	if st := d.Stats(); st.Rollbacks != 1 || st.ResimulatedFrames != 7 {
		t.Errorf("Stats() = %+v, expected 1 rollback and 7 resimulated frames", st)
	}

	err := d.Rollback(1, nil)
	if !errors.Is(err, ErrRollbackTooDeep) {
		t.Fatalf("Rollback(1) error = %v, expected ErrRollbackTooDeep", err)
	}
	if d.State() != StateLive || currentSum(t, d) != before {
		t.Error("rejected rollback changed the driver")
	}
	if sim.pruned != 3 {
		t.Errorf("Prune called with %d, expected 3", sim.pruned)
	}
}

func TestRollbackWithCorrectionsConverges(t *testing.T) {
	want := reference(t, 12)

	d := newDriver(t, newWorldSim(t), Options{})
	predicted := func(f snapshot.Frame) core.MultiInputFrame {
		if f == 7 || f == 9 {
			return wrong(f)
		}
		return script(f)
	}
	runTo(t, d, 12, predicted)
	if currentSum(t, d) == want {
		t.Fatal("misprediction had no effect; test inputs are too weak")
	}

	err := d.Rollback(6, []Correction{{Frame: 7, Input: script(7)}, {Frame: 9, Input: script(9)}})
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if got := currentSum(t, d); got != want {
		t.Errorf("corrected state = %x, expected %x", got, want)
	}
	if in, ok := d.Input(7); !ok || in != script(7) {
		t.Errorf("Input(7) = %v, expected corrected input", in)
	}
}

func TestConfirm(t *testing.T) {
	want := reference(t, 10)

	d := newDriver(t, newWorldSim(t), Options{})
	runTo(t, d, 10, func(f snapshot.Frame) core.MultiInputFrame {
		if f == 8 {
			return wrong(f)
		}
		return script(f)
	})

	rolled, err := d.Confirm(5, script(5))
	if err != nil || rolled {
		t.Errorf("Confirm(matching) = %v, %v; expected no rollback", rolled, err)
	}
	rolled, err = d.Confirm(8, script(8))
	if err != nil || !rolled {
		t.Fatalf("Confirm(mismatch) = %v, %v; expected rollback", rolled, err)
	}
	if got := currentSum(t, d); got != want {
		t.Errorf("state after Confirm = %x, expected %x", got, want)
	}

	if _, err := d.Confirm(11, script(11)); !errors.Is(err, ErrFutureFrame) {
		t.Errorf("Confirm(future) error = %v", err)
	}
	if _, err := d.Confirm(1, wrong(1)); !errors.Is(err, ErrRollbackTooDeep) {
		t.Errorf("Confirm(evicted) error = %v", err)
	}
}

func TestSupersedeEarlierTarget(t *testing.T) {
	want := reference(t, 10)

	var d *Driver
	armed := false
	d = newDriver(t, newWorldSim(t), Options{
		OnFrame: func(ev FrameEvent) {
			if armed && ev.State == StateResimulating && ev.Frame == 8 {
				armed = false
				d.RequestRollback(4, []Correction{{Frame: 5, Input: script(5)}})
			}
		},
	})
	runTo(t, d, 10, func(f snapshot.Frame) core.MultiInputFrame {
		if f == 5 || f == 8 {
			return wrong(f)
		}
		return script(f)
	})

	armed = true
	if err := d.Rollback(7, []Correction{{Frame: 8, Input: script(8)}}); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if got := currentSum(t, d); got != want {
		t.Errorf("state = %x, expected %x", got, want)
	}
	st := d.Stats()
	if st.Superseded != 1 || st.Rollbacks != 2 {
		t.Errorf("Stats() = %+v, expected 1 superseded and 2 rollbacks", st)
	}
	if d.State() != StateLive {
		t.Errorf("State() = %v, expected live", d.State())
	}
}

func TestSupersedeLaterTargetRestartsFromFreshFrame(t *testing.T) {
	want := reference(t, 10)

	var d *Driver
	armed := false
	d = newDriver(t, newWorldSim(t), Options{
		OnFrame: func(ev FrameEvent) {
			if armed && ev.State == StateResimulating && ev.Frame == 5 {
				armed = false
				d.RequestRollback(9, []Correction{{Frame: 10, Input: script(10)}})
			}
		},
	})
	runTo(t, d, 10, func(f snapshot.Frame) core.MultiInputFrame {
		if f == 4 || f == 10 {
			return wrong(f)
		}
		return script(f)
	})

	armed = true
	if err := d.Rollback(3, []Correction{{Frame: 4, Input: script(4)}}); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if got := currentSum(t, d); got != want {
		t.Errorf("state = %x, expected %x", got, want)
	}
	if st := d.Stats(); st.Superseded != 1 {
		t.Errorf("Superseded = %d, expected 1", st.Superseded)
	}
}

func TestRejectedSupersedeStillFinishes(t *testing.T) {
	want := reference(t, 10)

	var d *Driver
	armed := false
	d = newDriver(t, newWorldSim(t), Options{
		OnFrame: func(ev FrameEvent) {
			if armed && ev.State == StateResimulating {
				armed = false
				d.RequestRollback(-5, nil)
			}
		},
	})
	runTo(t, d, 10, script)

	armed = true
	err := d.Rollback(4, nil)
	if !errors.Is(err, ErrRollbackTooDeep) {
		t.Fatalf("Rollback() error = %v, expected ErrRollbackTooDeep", err)
	}
	if d.State() != StateLive || d.CurrentFrame() != 10 {
		t.Errorf("state %v frame %d, expected live at 10", d.State(), d.CurrentFrame())
	}
	if got := currentSum(t, d); got != want {
		t.Errorf("state = %x, expected completed resimulation %x", got, want)
	}
	if err := d.Tick(script(11)); err != nil {
		t.Errorf("Tick() after rejected supersede error = %v", err)
	}
}

func TestRequestsMergeBeforeProcess(t *testing.T) {
	d := newDriver(t, newWorldSim(t), Options{})
	runTo(t, d, 10, script)

	d.RequestRollback(6, []Correction{{Frame: 7, Input: wrong(7)}})
	d.RequestRollback(4, []Correction{{Frame: 5, Input: wrong(5)}})
	if d.State() != StateRollbackRequested {
		t.Errorf("State() = %v, expected rollback-requested", d.State())
	}

	// Tick processes the pending request first
	if err := d.Tick(script(11)); err != nil {
		t.Fatal(err)
	}
	st := d.Stats()
	if st.Rollbacks != 1 || st.ResimulatedFrames != 6 {
		t.Errorf("Stats() = %+v, expected one rollback over 6 frames", st)
	}
	if in, _ := d.Input(5); in != wrong(5) {
		t.Error("correction for frame 5 not applied")
	}
	if in, _ := d.Input(7); in != wrong(7) {
		t.Error("correction for frame 7 not applied")
	}
}

func TestRejectedRequests(t *testing.T) {
	d := newDriver(t, newWorldSim(t), Options{})
	runTo(t, d, 6, script)
	before := currentSum(t, d)

	tests := []struct {
		name        string
		target      snapshot.Frame
		corrections []Correction
		want        error
	}{
		{"future target", 7, nil, ErrFutureFrame},
		{"future correction", 3, []Correction{{Frame: 9}}, ErrFutureFrame},
		{"correction at target", 3, []Correction{{Frame: 3}}, ErrBadCorrection},
		{"too deep", -1, nil, ErrRollbackTooDeep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := d.Rollback(tt.target, tt.corrections); !errors.Is(err, tt.want) {
				t.Errorf("Rollback() error = %v, expected %v", err, tt.want)
			}
			if d.State() != StateLive {
				t.Errorf("State() = %v, expected live", d.State())
			}
		})
	}

	if currentSum(t, d) != before {
		t.Error("rejected requests changed the simulation")
	}
	if in, _ := d.Input(3); in != script(3) {
		t.Error("rejected request touched the input log")
	}
}

func TestOnSettle(t *testing.T) {
	var frames []snapshot.Frame
	d := newDriver(t, newWorldSim(t), Options{
		MaxDepth: 4,
		OnSettle: func(f snapshot.Frame, snap *snapshot.Snapshot, in core.MultiInputFrame) {
			if snap.Frame() != f {
				t.Errorf("settled snapshot frame %d for %d", snap.Frame(), f)
			}
			if f > 0 && in != script(f) {
				t.Errorf("settled input for %d = %v", f, in)
			}
			frames = append(frames, f)
		},
	})
	runTo(t, d, 10, script)

	// window is 7..10, so 0..6 are final
	if len(frames) != 7 || frames[0] != 0 || frames[6] != 6 {
		t.Fatalf("settled frames = %v, expected 0..6", frames)
	}
	if err := d.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(frames) != 11 || frames[10] != 10 {
		t.Errorf("settled frames after Flush = %v, expected 0..10", frames)
	}
}

func TestSimulationFailureHalts(t *testing.T) {
	sim := newWorldSim(t)
	sim.failAt = 3
	d := newDriver(t, sim, Options{})

	runTo(t, d, 2, script)
	if err := d.Tick(script(3)); err == nil {
		t.Fatal("Tick() should fail when the simulation does")
	}
	if err := d.Tick(script(3)); !errors.Is(err, ErrHalted) {
		t.Errorf("Tick() after failure error = %v, expected ErrHalted", err)
	}
	if err := d.Rollback(1, nil); !errors.Is(err, ErrHalted) {
		t.Errorf("Rollback() after failure error = %v, expected ErrHalted", err)
	}
}

func TestNewDriverValidation(t *testing.T) {
	if _, err := NewDriver(newWorldSim(t), Options{MaxDepth: 0}); err == nil {
		t.Error("NewDriver() with zero depth should fail")
	}
}
