package pile

import (
	"slices"
	"testing"

	"github.com/vovakirdan/rollphys/internal/config"
	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/scenario"
)

func newPile(t *testing.T) *Pile {
	t.Helper()
	p, err := New(scenario.Options{Config: config.DefaultSimConfig()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestPileStaysInBin(t *testing.T) {
	p := newPile(t)
	if n := p.World().BodyCount(); n != rows*columns {
		t.Fatalf("BodyCount() = %d, expected %d", n, rows*columns)
	}

	for i := 0; i < 400; i++ {
		if err := p.Step(core.MultiInputFrame{}); err != nil {
			t.Fatal(err)
		}
	}

	limit := core.ToFixed(halfBin + 1)
	for _, b := range p.World().Bodies() {
		if b.Position.Y <= 0 || b.Position.X.Abs() >= limit {
			t.Errorf("body %d escaped the bin: %v", b.ID, b.Position)
		}
	}
	if len(p.World().Contacts()) == 0 {
		t.Error("a settled pile should have contacts")
	}
}

func TestPileRollbackMatchesPlainRun(t *testing.T) {
	input := scenario.Script(3, core.MaxPlayers)
	run := func(opts scenario.RunOptions) scenario.RunResult {
		t.Helper()
		opts.Frames = 180
		opts.MaxDepth = 10
		opts.Input = input
		res, err := scenario.Run(newPile(t), opts)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		return res
	}

	plain := run(scenario.RunOptions{})
	rolled := run(scenario.RunOptions{ConfirmDelay: 4, RollbackEvery: 7})
	if !slices.Equal(plain.Checksums, rolled.Checksums) {
		t.Fatal("rollback run diverged from the plain run")
	}
	if rolled.Stats.ResimulatedFrames == 0 {
		t.Error("rolled run never resimulated")
	}
}

func TestRegistered(t *testing.T) {
	sc, err := scenario.Create("pile", scenario.Options{Config: config.DefaultSimConfig(), Players: 2})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sc.ID() != "pile" || len(sc.Players()) != 2 {
		t.Errorf("Create() = %s with %d players", sc.ID(), len(sc.Players()))
	}
}
