package history

import (
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/vovakirdan/rollphys/internal/snapshot"
)

type fataler interface {
	Fatalf(format string, args ...any)
}

func snapAt(t fataler, f snapshot.Frame) *snapshot.Snapshot {
	s, err := snapshot.Capture(f, nil, nil)
	if err != nil {
		t.Fatalf("Capture(%d) error = %v", f, err)
	}
	return s
}

func TestRingWindow(t *testing.T) {
	r := NewRing(8)
	for f := snapshot.Frame(0); f <= 10; f++ {
		if err := r.Put(f, snapAt(t, f)); err != nil {
			t.Fatalf("Put(%d) error = %v", f, err)
		}
	}

	if got := r.OldestRetained(); got != 3 {
		t.Errorf("OldestRetained() = %d, expected 3", got)
	}
	if got := r.Len(); got != 8 {
		t.Errorf("Len() = %d, expected 8", got)
	}

	tests := []struct {
		frame snapshot.Frame
		found bool
	}{
		{0, false},
		{2, false},
		{3, true},
		{7, true},
		{10, true},
		{11, false},
		{-1, false},
	}
	for _, tt := range tests {
		s, err := r.Get(tt.frame)
		if tt.found {
			if err != nil {
				t.Errorf("Get(%d) error = %v", tt.frame, err)
			} else if s.Frame() != tt.frame {
				t.Errorf("Get(%d) returned frame %d", tt.frame, s.Frame())
			}
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%d) error = %v, expected ErrNotFound", tt.frame, err)
		}
	}
}

func TestRingPutTooOld(t *testing.T) {
	r := NewRing(4)
	for f := snapshot.Frame(0); f <= 9; f++ {
		_ = r.Put(f, snapAt(t, f))
	}

	if err := r.Put(5, snapAt(t, 5)); !errors.Is(err, ErrTooOld) {
		t.Errorf("Put(5) error = %v, expected ErrTooOld", err)
	}
	if err := r.Put(6, snapAt(t, 6)); err != nil {
		t.Errorf("Put(6) inside window error = %v", err)
	}
}

func TestRingPutTooOldBeforeFull(t *testing.T) {
	r := NewRing(8)
	_ = r.Put(5, snapAt(t, 5))
	_ = r.Put(6, snapAt(t, 6))

	if err := r.Put(3, snapAt(t, 3)); !errors.Is(err, ErrTooOld) {
		t.Errorf("Put(3) error = %v, expected ErrTooOld", err)
	}
	if got := r.OldestRetained(); got != 5 {
		t.Errorf("OldestRetained() = %d after rejected put, expected 5", got)
	}
	if _, err := r.Get(3); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(3) error = %v, expected ErrNotFound", err)
	}
	if err := r.Put(5, snapAt(t, 5)); err != nil {
		t.Errorf("Put(5) overwrite error = %v", err)
	}
}

func TestRingOverwriteKeepsNewest(t *testing.T) {
	r := NewRing(4)
	for f := snapshot.Frame(0); f <= 6; f++ {
		_ = r.Put(f, snapAt(t, f))
	}

	replacement, err := snapshot.Capture(4, []snapshot.BodyState{{ID: 1}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Put(4, replacement); err != nil {
		t.Fatalf("Put(4) error = %v", err)
	}

	if n, _ := r.Newest(); n != 6 {
		t.Errorf("Newest() = %d after overwrite, expected 6", n)
	}
	got, err := r.Get(4)
	if err != nil {
		t.Fatal(err)
	}
	if got != replacement {
		t.Error("Get(4) did not return the overwritten snapshot")
	}
	if _, err := r.Get(6); err != nil {
		t.Errorf("Get(6) error = %v after overwriting 4", err)
	}
}

func TestRingEmpty(t *testing.T) {
	r := NewRing(3)
	if _, err := r.Get(0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(0) on empty ring error = %v", err)
	}
	if _, ok := r.Newest(); ok {
		t.Error("Newest() reported a frame on an empty ring")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, expected 0", r.Len())
	}
	if err := r.Put(0, nil); err == nil {
		t.Error("Put(nil) should fail")
	}
}

func TestRingStartsLate(t *testing.T) {
	r := NewRing(8)
	_ = r.Put(100, snapAt(t, 100))
	_ = r.Put(101, snapAt(t, 101))

	if got := r.OldestRetained(); got != 100 {
		t.Errorf("OldestRetained() = %d, expected 100", got)
	}
	if _, err := r.Get(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(99) error = %v", err)
	}

	r.Reset()
	if r.Len() != 0 {
		t.Errorf("Len() after Reset = %d", r.Len())
	}
}

// With newest frame N and capacity C, Get(f) succeeds iff N-C < f <= N
// for any run of consecutive puts.
func TestRingBoundProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := rapid.IntRange(1, 16).Draw(t, "capacity")
		start := snapshot.Frame(rapid.Int64Range(0, 1000).Draw(t, "start"))
		n := rapid.IntRange(1, 64).Draw(t, "puts")

		r := NewRing(c)
		for i := 0; i < n; i++ {
			f := start + snapshot.Frame(i)
			if err := r.Put(f, snapAt(t, f)); err != nil {
				t.Fatalf("Put(%d) error = %v", f, err)
			}
		}
		newest := start + snapshot.Frame(n-1)

		for f := start - 2; f <= newest+2; f++ {
			_, err := r.Get(f)
			want := f > newest-snapshot.Frame(c) && f <= newest && f >= start
			if (err == nil) != want {
				t.Fatalf("Get(%d) err = %v, expected found=%v (newest %d, cap %d)", f, err, want, newest, c)
			}
		}
		if r.Len() > c {
			t.Fatalf("Len() = %d exceeds capacity %d", r.Len(), c)
		}
	})
}
