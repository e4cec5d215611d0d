package physics

import (
	"errors"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/vovakirdan/rollphys/internal/config"
	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/snapshot"
	"github.com/vovakirdan/rollphys/internal/static"
)

func testPhysics() config.Physics {
	p := config.DefaultSimConfig().Physics
	p.GravityY = -100
	return p
}

func ball(x, y int) BodyDef {
	return BodyDef{
		Position:    core.VI(x, y),
		Radius:      core.ToFixed(1),
		Mass:        core.ToFixed(1),
		Friction:    config.Fx(0.5),
		Restitution: 0,
	}
}

// floorWorld is a 100 unit wide floor whose top surface is y=0.
func floorWorld(t testing.TB, cfg config.Physics) (*World, static.ColliderID) {
	t.Helper()
	reg := static.NewRegistry()
	floor, err := reg.Register(static.Box(core.ToFixed(50), core.ToFixed(1)), static.Transform{Position: core.VI(0, -1)})
	if err != nil {
		t.Fatal(err)
	}
	return NewWorld(cfg, reg), floor
}

func mustCreate(t testing.TB, w *World, def BodyDef) snapshot.BodyID {
	t.Helper()
	id, err := w.CreateBody(def)
	if err != nil {
		t.Fatalf("CreateBody() error = %v", err)
	}
	return id
}

func mustCapture(t testing.TB, w *World) *snapshot.Snapshot {
	t.Helper()
	s, err := w.Capture()
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	return s
}

func TestCreateBody(t *testing.T) {
	w := NewWorld(testPhysics(), nil)

	if _, err := w.CreateBody(BodyDef{Mass: core.ToFixed(1)}); !errors.Is(err, ErrInvalidBody) {
		t.Errorf("CreateBody(no radius) error = %v, expected ErrInvalidBody", err)
	}
	if _, err := w.CreateBody(BodyDef{Radius: core.ToFixed(1)}); !errors.Is(err, ErrInvalidBody) {
		t.Errorf("CreateBody(no mass) error = %v, expected ErrInvalidBody", err)
	}

	a := mustCreate(t, w, ball(0, 0))
	b := mustCreate(t, w, ball(5, 0))
	if a != 1 || b != 2 {
		t.Errorf("ids = %d, %d; expected 1, 2", a, b)
	}
	if w.BodyCount() != 2 {
		t.Errorf("BodyCount() = %d, expected 2", w.BodyCount())
	}

	def, ok := w.Def(a)
	if !ok || def.Groups != static.DefaultFilter {
		t.Errorf("Def() groups = %+v, expected default filter", def.Groups)
	}
	if err := w.ApplyImpulse(99, core.VI(1, 0)); !errors.Is(err, ErrUnknownBody) {
		t.Errorf("ApplyImpulse(99) error = %v", err)
	}
}

func TestNarrowPhase(t *testing.T) {
	t.Run("circle circle", func(t *testing.T) {
		n, depth, ok := circleCircle(core.VI(0, 0), core.ToFixed(1), core.V(config.Fx(1.5), 0), core.ToFixed(1))
		if !ok {
			t.Fatal("expected contact")
		}
		if n != core.VI(1, 0) || depth != config.Fx(0.5) {
			t.Errorf("normal %v depth %v, expected (1,0) 0.5", n, depth)
		}
		if _, _, ok := circleCircle(core.VI(0, 0), core.ToFixed(1), core.VI(3, 0), core.ToFixed(1)); ok {
			t.Error("separated circles reported a contact")
		}
	})

	t.Run("circle above box", func(t *testing.T) {
		n, depth, ok := circleBox(core.VI(0, 0), core.ToFixed(10), core.ToFixed(1), core.V(0, config.Fx(1.5)), core.ToFixed(1))
		if !ok {
			t.Fatal("expected contact")
		}
		if n != core.VI(0, 1) || depth != config.Fx(0.5) {
			t.Errorf("normal %v depth %v, expected (0,1) 0.5", n, depth)
		}
	})

	t.Run("centre inside box", func(t *testing.T) {
		n, depth, ok := circleBox(core.VI(0, 0), core.ToFixed(10), core.ToFixed(1), core.V(core.ToFixed(3), config.Fx(-0.5)), core.ToFixed(1))
		if !ok {
			t.Fatal("expected contact")
		}
		if n != core.VI(0, -1) || depth != config.Fx(1.5) {
			t.Errorf("normal %v depth %v, expected (0,-1) 1.5", n, depth)
		}
	})

	t.Run("circle beside box", func(t *testing.T) {
		if _, _, ok := circleBox(core.VI(0, 0), core.ToFixed(1), core.ToFixed(1), core.VI(5, 0), core.ToFixed(1)); ok {
			t.Error("separated circle and box reported a contact")
		}
	})
}

func TestBodySettlesOnFloor(t *testing.T) {
	w, floor := floorWorld(t, testPhysics())
	id := mustCreate(t, w, ball(0, 5))

	started := false
	for i := 0; i < 300; i++ {
		ev := w.Step()
		for _, p := range ev.Started {
			if p == (Pair{A: snapshot.Static(floor), B: snapshot.Body(id)}) {
				started = true
			}
		}
	}

	st, _ := w.Body(id)
	if !started {
		t.Error("no Started event between ball and floor")
	}
	if st.Position.Y < config.Fx(0.85) || st.Position.Y > config.Fx(1.05) {
		t.Errorf("resting y = %v, expected about 1", st.Position.Y)
	}
	if !st.Sleeping {
		t.Error("resting ball should be asleep")
	}
	if w.Frame() != 300 {
		t.Errorf("Frame() = %d, expected 300", w.Frame())
	}

	cs := w.Contacts()
	if len(cs) != 1 || cs[0].NormalImpulse <= 0 {
		t.Errorf("Contacts() = %+v, expected one contact with a positive normal impulse", cs)
	}

	if err := w.ApplyImpulse(id, core.VI(0, 50)); err != nil {
		t.Fatal(err)
	}
	if st, _ := w.Body(id); st.Sleeping {
		t.Error("impulse should wake the body")
	}
}

func TestCollisionGroupsFilterPairs(t *testing.T) {
	cfg := testPhysics()
	cfg.GravityY = 0
	w := NewWorld(cfg, nil)

	bullet := static.Filter{Memberships: 0b010, Filter: 0b101}
	a := ball(0, 0)
	a.Groups = bullet
	b := ball(1, 0)
	b.Groups = bullet
	mustCreate(t, w, a)
	mustCreate(t, w, b)

	if ev := w.Step(); len(ev.Started) != 0 {
		t.Errorf("bullets collided with each other: %v", ev.Started)
	}

	player := ball(0, 1)
	player.Groups = static.Filter{Memberships: 0b001, Filter: 0b111}
	mustCreate(t, w, player)
	if ev := w.Step(); len(ev.Started) == 0 {
		t.Error("player should collide with overlapping bullets")
	}
}

func TestBounceStartsAndStops(t *testing.T) {
	cfg := testPhysics()
	cfg.GravityY = 0
	w := NewWorld(cfg, nil)

	left := ball(-5, 0)
	left.LinVel = core.VI(20, 0)
	left.Restitution = core.ToFixed(1)
	right := ball(5, 0)
	right.LinVel = core.VI(-20, 0)
	right.Restitution = core.ToFixed(1)
	a := mustCreate(t, w, left)
	b := mustCreate(t, w, right)
	want := Pair{A: snapshot.Body(a), B: snapshot.Body(b)}

	var started, stopped bool
	for i := 0; i < 120; i++ {
		ev := w.Step()
		started = started || slices.Contains(ev.Started, want)
		stopped = stopped || (started && slices.Contains(ev.Stopped, want))
	}
	if !started || !stopped {
		t.Errorf("started=%v stopped=%v, expected both", started, stopped)
	}

	sa, _ := w.Body(a)
	sb, _ := w.Body(b)
	if sa.LinVel.X >= 0 || sb.LinVel.X <= 0 {
		t.Errorf("velocities after bounce = %v, %v; expected separating", sa.LinVel, sb.LinVel)
	}
}

func bulletWorld(t *testing.T, swept bool) (*World, snapshot.BodyID, static.ColliderID) {
	cfg := testPhysics()
	cfg.GravityY = 0
	reg := static.NewRegistry()
	wall, err := reg.Register(static.Box(config.Fx(0.5), core.ToFixed(10)), static.Transform{Position: core.VI(20, 0)})
	if err != nil {
		t.Fatal(err)
	}
	w := NewWorld(cfg, reg)
	def := BodyDef{
		LinVel: core.VI(1000, 0),
		Radius: core.ToFixed(1),
		Mass:   config.Fx(0.01),
		Swept:  swept,
	}
	return w, mustCreate(t, w, def), wall
}

func TestSweptBodyStopsAtThinWall(t *testing.T) {
	w, id, wall := bulletWorld(t, true)

	hit := false
	for i := 0; i < 5; i++ {
		ev := w.Step()
		hit = hit || slices.Contains(ev.Started, Pair{A: snapshot.Static(wall), B: snapshot.Body(id)})
	}
	st, _ := w.Body(id)
	if st.Position.X >= core.ToFixed(20) {
		t.Errorf("swept bullet x = %v, expected it to stop before the wall", st.Position.X)
	}
	if !hit {
		t.Error("swept bullet never reported a contact with the wall")
	}

	w, id, _ = bulletWorld(t, false)
	for i := 0; i < 3; i++ {
		w.Step()
	}
	st, _ = w.Body(id)
	if st.Position.X <= core.ToFixed(25) {
		t.Errorf("unswept bullet x = %v, expected it to tunnel", st.Position.X)
	}
}

// pile builds a small stack of balls on the floor, some of them touching.
func pile(t testing.TB) *World {
	t.Helper()
	w, _ := floorWorld(t, testPhysics())
	for i := 0; i < 6; i++ {
		def := ball(i*2-5, 1+i%3*2)
		def.LinVel = core.VI(i-3, 0)
		mustCreate(t, w, def)
	}
	return w
}

func TestCaptureRestoreRoundTrip(t *testing.T) {
	w := pile(t)
	for i := 0; i < 20; i++ {
		w.Step()
	}
	s1 := mustCapture(t, w)
	if s1.ContactCount() == 0 {
		t.Fatal("expected contacts after 20 frames")
	}

	for i := 0; i < 15; i++ {
		w.Step()
	}
	if err := w.Restore(s1); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	s2 := mustCapture(t, w)
	if !s2.Equal(s1) {
		t.Errorf("capture after restore = %v (sum %x), expected %v (sum %x)", s2, s2.Checksum(), s1, s1.Checksum())
	}
	if !slices.Equal(w.Contacts(), s1.Contacts()) {
		t.Error("contact accumulators were not rehydrated")
	}
}

func TestRollbackConvergence(t *testing.T) {
	w := pile(t)
	for i := 0; i < 10; i++ {
		w.Step()
	}
	base := mustCapture(t, w)

	run := func() *snapshot.Snapshot {
		for i := 0; i < 40; i++ {
			if i == 5 {
				_ = w.ApplyImpulse(3, core.VI(10, 20))
			}
			w.Step()
		}
		return mustCapture(t, w)
	}

	first := run()
	if err := w.Restore(base); err != nil {
		t.Fatal(err)
	}
	second := run()

	if !first.Equal(second) {
		t.Errorf("resimulation diverged: %x vs %x", first.Checksum(), second.Checksum())
	}
}

func TestIndependentWorldsAgree(t *testing.T) {
	a := pile(t)
	b := pile(t)
	for i := 0; i < 90; i++ {
		a.Step()
		b.Step()
	}
	if mustCapture(t, a).Checksum() != mustCapture(t, b).Checksum() {
		t.Error("identical worlds diverged")
	}
}

func TestRestoreRemovesAndRevivesBodies(t *testing.T) {
	cfg := testPhysics()
	cfg.GravityY = 0
	w := NewWorld(cfg, nil)
	a := mustCreate(t, w, ball(0, 0))
	b := mustCreate(t, w, ball(10, 0))
	w.Step()
	s := mustCapture(t, w)

	late := mustCreate(t, w, ball(20, 0))
	if err := w.DestroyBody(b); err != nil {
		t.Fatal(err)
	}
	w.Step()
	if w.RetiredCount() != 1 {
		t.Errorf("RetiredCount() = %d, expected 1", w.RetiredCount())
	}

	if err := w.Restore(s); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if _, ok := w.Body(late); ok {
		t.Error("body created after the snapshot survived restore")
	}
	got, ok := w.Body(b)
	want, _ := s.Body(b)
	if !ok || got != want {
		t.Errorf("revived body = %+v, expected %+v", got, want)
	}
	if _, ok := w.Body(a); !ok {
		t.Error("body a lost")
	}
	if w.RetiredCount() != 0 {
		t.Errorf("RetiredCount() after revive = %d, expected 0", w.RetiredCount())
	}

	// the allocator rewinds with the snapshot
	if id := mustCreate(t, w, ball(30, 0)); id != late {
		t.Errorf("CreateBody() after restore = %d, expected reissued %d", id, late)
	}
}

func TestRestoreBodySetMismatch(t *testing.T) {
	cfg := testPhysics()
	w := NewWorld(cfg, nil)
	mustCreate(t, w, ball(0, 0))
	w.Step()
	s := mustCapture(t, w)

	if err := w.DestroyBody(1); err != nil {
		t.Fatal(err)
	}
	w.Step()
	w.Prune(w.Frame())

	before := w.Bodies()
	if err := w.Restore(s); !errors.Is(err, ErrBodySetMismatch) {
		t.Fatalf("Restore() error = %v, expected ErrBodySetMismatch", err)
	}
	if !slices.Equal(before, w.Bodies()) {
		t.Error("failed restore modified the world")
	}

	other := NewWorld(cfg, nil)
	for i := 0; i < 3; i++ {
		mustCreate(t, other, ball(i*5, 0))
	}
	foreign := mustCapture(t, other)
	if err := w.Restore(foreign); !errors.Is(err, ErrBodySetMismatch) {
		t.Errorf("Restore(foreign) error = %v, expected ErrBodySetMismatch", err)
	}
}

func TestRestoreRejectsUnknownStatic(t *testing.T) {
	w1, floor := floorWorld(t, testPhysics())
	mustCreate(t, w1, ball(0, 1))
	for i := 0; i < 5; i++ {
		w1.Step()
	}
	s := mustCapture(t, w1)
	if s.ContactCount() == 0 {
		t.Fatalf("expected a floor contact, floor %d", floor)
	}

	w2 := NewWorld(testPhysics(), nil)
	mustCreate(t, w2, ball(0, 1))
	if err := w2.Restore(s); !errors.Is(err, ErrBodySetMismatch) || !errors.Is(err, static.ErrInvalidID) {
		t.Errorf("Restore() error = %v, expected body set mismatch on invalid collider", err)
	}
}

func TestStaticGeometryUnchanged(t *testing.T) {
	w := pile(t)
	before := w.Statics().All()

	s := mustCapture(t, w)
	for cycle := 0; cycle < 10; cycle++ {
		for i := 0; i < 7; i++ {
			w.Step()
		}
		if err := w.Restore(s); err != nil {
			t.Fatal(err)
		}
		w.Step()
		s = mustCapture(t, w)
	}

	if !slices.Equal(before, w.Statics().All()) {
		t.Error("static geometry changed across capture/restore cycles")
	}
	if _, err := w.Statics().Register(static.Circle(core.ToFixed(1)), static.Transform{}); !errors.Is(err, static.ErrFrozen) {
		t.Errorf("Register() after world creation error = %v, expected ErrFrozen", err)
	}
}

func TestWarmStartToggle(t *testing.T) {
	run := func(warm bool) *snapshot.Snapshot {
		cfg := testPhysics()
		cfg.WarmStart = warm
		cfg.SleepVelocity = 0
		w, _ := floorWorld(t, cfg)
		mustCreate(t, w, ball(0, 1))
		mustCreate(t, w, ball(0, 3))
		for i := 0; i < 60; i++ {
			w.Step()
		}
		return mustCapture(t, w)
	}

	cold := run(false)
	warm := run(true)
	if warm.Checksum() == cold.Checksum() {
		t.Error("warm starting had no effect on a resting stack")
	}
	for _, c := range warm.Contacts() {
		if c.NormalImpulse <= 0 {
			t.Errorf("resting contact %s has normal impulse %v", c.Key, c.NormalImpulse)
		}
	}
}

// Two resimulations from the same snapshot over the same impulses agree
// bit for bit.
func TestDeterminismProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		w, _ := floorWorld(t, testPhysics())
		n := rapid.IntRange(1, 8).Draw(rt, "bodies")
		for i := 0; i < n; i++ {
			def := ball(rapid.IntRange(-20, 20).Draw(rt, "x"), rapid.IntRange(1, 20).Draw(rt, "y"))
			def.Restitution = config.Fx(float64(rapid.IntRange(0, 10).Draw(rt, "e")) / 10)
			def.LockRotation = rapid.Bool().Draw(rt, "locked")
			if _, err := w.CreateBody(def); err != nil {
				rt.Fatal(err)
			}
		}
		warmup := rapid.IntRange(0, 30).Draw(rt, "warmup")
		for i := 0; i < warmup; i++ {
			w.Step()
		}
		base, err := w.Capture()
		if err != nil {
			rt.Fatal(err)
		}

		frames := rapid.IntRange(1, 40).Draw(rt, "frames")
		kicks := make([]core.Vec2, frames)
		for i := range kicks {
			if rapid.IntRange(0, 4).Draw(rt, "kick?") == 0 {
				kicks[i] = core.VI(rapid.IntRange(-30, 30).Draw(rt, "kx"), rapid.IntRange(-30, 30).Draw(rt, "ky"))
			}
		}
		target := snapshot.BodyID(rapid.IntRange(1, n).Draw(rt, "target"))

		run := func() uint64 {
			if err := w.Restore(base); err != nil {
				rt.Fatal(err)
			}
			for _, k := range kicks {
				_ = w.ApplyImpulse(target, k)
				w.Step()
			}
			s, err := w.Capture()
			if err != nil {
				rt.Fatal(err)
			}
			return s.Checksum()
		}

		if a, b := run(), run(); a != b {
			rt.Fatalf("resimulations differ: %x vs %x", a, b)
		}
	})
}
