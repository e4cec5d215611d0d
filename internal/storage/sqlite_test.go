package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreOpenClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestStoreNestedPath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "deep", "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() with nested path failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created in nested directory")
	}
}

func TestStoreExpandHomePath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	store, err := Open("~/.rollphys/runs.db")
	if err != nil {
		t.Fatalf("Open(~) failed: %v", err)
	}
	defer store.Close()

	home, _ := os.UserHomeDir()
	if _, err := os.Stat(filepath.Join(home, ".rollphys", "runs.db")); err != nil {
		t.Errorf("database not created under home: %v", err)
	}
}

func TestStoreSaveAndRetrieveRun(t *testing.T) {
	store := openTestStore(t)

	id, err := store.SaveRun(Run{
		Scenario:          "tanks",
		Frames:            600,
		MaxDepth:          8,
		Rollbacks:         12,
		ResimulatedFrames: 84,
		FinalChecksum:     "00000000deadbeef",
		ReplayDir:         "/tmp/replays/tanks-x",
	})
	if err != nil {
		t.Fatalf("SaveRun() failed: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("SaveRun() id = %q, expected a uuid", id)
	}

	got, err := store.RunByID(id)
	if err != nil {
		t.Fatalf("RunByID() failed: %v", err)
	}
	if got.Scenario != "tanks" || got.Frames != 600 || got.Rollbacks != 12 ||
		got.ResimulatedFrames != 84 || got.FinalChecksum != "00000000deadbeef" ||
		got.ReplayDir != "/tmp/replays/tanks-x" || got.Verified {
		t.Errorf("RunByID() = %+v", got)
	}

	if err := store.MarkVerified(id); err != nil {
		t.Fatalf("MarkVerified() failed: %v", err)
	}
	got, _ = store.RunByID(id)
	if !got.Verified {
		t.Error("run not marked verified")
	}
}

func TestStoreRunNotFound(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.RunByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RunByID(missing) error = %v, expected ErrNotFound", err)
	}
	if err := store.MarkVerified("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkVerified(missing) error = %v, expected ErrNotFound", err)
	}
}

func TestStoreRecentRuns(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 5; i++ {
		scenario := "tanks"
		if i%2 == 1 {
			scenario = "pile"
		}
		if _, err := store.SaveRun(Run{Scenario: scenario, Frames: int64(i), FinalChecksum: "x"}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.RecentRuns("", 10)
	if err != nil {
		t.Fatalf("RecentRuns() failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("RecentRuns() returned %d runs, expected 5", len(all))
	}
	// same timestamp resolution, so insertion order breaks the tie
	if all[0].Frames != 4 {
		t.Errorf("newest run has frames %d, expected 4", all[0].Frames)
	}

	piles, err := store.RecentRuns("pile", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(piles) != 2 {
		t.Errorf("RecentRuns(pile) returned %d runs, expected 2", len(piles))
	}

	limited, _ := store.RecentRuns("", 3)
	if len(limited) != 3 {
		t.Errorf("RecentRuns(limit 3) returned %d runs", len(limited))
	}
}

func TestStoreDesyncs(t *testing.T) {
	store := openTestStore(t)

	runID, err := store.SaveRun(Run{Scenario: "tanks", Frames: 100, FinalChecksum: "a"})
	if err != nil {
		t.Fatal(err)
	}
	other, err := store.SaveRun(Run{Scenario: "pile", Frames: 100, FinalChecksum: "b"})
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range []int64{17, 18} {
		if _, err := store.SaveDesync(Desync{RunID: runID, Frame: f, Expected: "e", Actual: "a"}); err != nil {
			t.Fatalf("SaveDesync() failed: %v", err)
		}
	}
	if _, err := store.SaveDesync(Desync{RunID: other, Frame: 3, Expected: "e", Actual: "a"}); err != nil {
		t.Fatal(err)
	}

	ds, err := store.Desyncs(runID, 0)
	if err != nil {
		t.Fatalf("Desyncs() failed: %v", err)
	}
	if len(ds) != 2 || ds[0].Frame != 18 || ds[1].Frame != 17 {
		t.Errorf("Desyncs(run) = %+v, expected frames 18, 17", ds)
	}
	all, _ := store.Desyncs("", 0)
	if len(all) != 3 {
		t.Errorf("Desyncs(all) returned %d, expected 3", len(all))
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if len(stats) != 2 || stats[0].Scenario != "pile" || stats[1].Scenario != "tanks" {
		t.Fatalf("Stats() = %+v", stats)
	}
	if stats[1].Runs != 1 || stats[1].Frames != 100 || stats[1].Desyncs != 2 {
		t.Errorf("tanks stats = %+v", stats[1])
	}
}
