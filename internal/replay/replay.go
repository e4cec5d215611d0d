// Package replay stores finished runs as bundles on disk.
//
// A bundle is a directory <root>/<scenario>-<uuid>/ holding:
//
//	manifest.yaml   run parameters and the final checksum
//	inputs.bin.sz   snappy stream of per-frame inputs
//	frames.bin.zst  zstd stream of encoded snapshots taken every N frames
//
// Only settled frames are written, so a bundle never contains a frame a
// rollback later changed.
package replay

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/rollphys/internal/config"
	"github.com/vovakirdan/rollphys/internal/core"
	"github.com/vovakirdan/rollphys/internal/snapshot"
)

const (
	manifestFile = "manifest.yaml"
	inputsFile   = "inputs.bin.sz"
	framesFile   = "frames.bin.zst"

	inputRecordSize = 8 + 2*core.MaxPlayers
	maxFrameSize    = 64 << 20
)

// ErrCorrupt is wrapped by every malformed-bundle failure.
var ErrCorrupt = errors.New("replay: corrupt bundle")

// Manifest describes a bundle.
type Manifest struct {
	ID            string           `yaml:"id"`
	Scenario      string           `yaml:"scenario"`
	Map           string           `yaml:"map,omitempty"` // map file; empty means the scenario default
	Players       int              `yaml:"players"`
	Frames        int64            `yaml:"frames"`
	SnapshotEvery int              `yaml:"snapshot_every"`
	FinalChecksum string           `yaml:"final_checksum"`
	CreatedAt     time.Time        `yaml:"created_at"`
	Config        config.SimConfig `yaml:"config"`
}

// FormatChecksum renders a snapshot checksum the way manifests and the run
// history store it.
func FormatChecksum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

// Writer records settled frames into a new bundle.
type Writer struct {
	id    string
	dir   string
	every int

	inputsFile *os.File
	inputs     *snappy.Writer
	framesFile *os.File
	frames     *zstd.Encoder

	lastFrame snapshot.Frame
	written   int64
	closed    bool
}

// Create makes a new bundle directory under root. A snapshot is stored for
// every frame divisible by every; every <= 0 stores none.
func Create(root, scenarioID string, every int) (*Writer, error) {
	id := uuid.NewString()
	dir := filepath.Join(root, scenarioID+"-"+id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("replay: create bundle: %w", err)
	}

	w := &Writer{id: id, dir: dir, every: every, lastFrame: -1}
	var err error
	if w.inputsFile, err = os.Create(filepath.Join(dir, inputsFile)); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("replay: create inputs: %w", err)
	}
	w.inputs = snappy.NewBufferedWriter(w.inputsFile)

	if w.framesFile, err = os.Create(filepath.Join(dir, framesFile)); err != nil {
		w.inputsFile.Close()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("replay: create frames: %w", err)
	}
	if w.frames, err = zstd.NewWriter(w.framesFile); err != nil {
		w.inputsFile.Close()
		w.framesFile.Close()
		os.RemoveAll(dir)
		return nil, fmt.Errorf("replay: zstd: %w", err)
	}
	return w, nil
}

// ID returns the bundle's run id.
func (w *Writer) ID() string { return w.id }

// Dir returns the bundle directory.
func (w *Writer) Dir() string { return w.dir }

// Record appends one settled frame. Frames must arrive in increasing order.
func (w *Writer) Record(frame snapshot.Frame, snap *snapshot.Snapshot, input core.MultiInputFrame) error {
	if frame <= w.lastFrame {
		return fmt.Errorf("replay: frame %d recorded after %d", frame, w.lastFrame)
	}
	w.lastFrame = frame

	var rec [inputRecordSize]byte
	binary.BigEndian.PutUint64(rec[0:], uint64(frame))
	for p := 0; p < core.MaxPlayers; p++ {
		binary.BigEndian.PutUint16(rec[8+2*p:], uint16(input.Player(core.PlayerID(p))))
	}
	if _, err := w.inputs.Write(rec[:]); err != nil {
		return fmt.Errorf("replay: write input %d: %w", frame, err)
	}
	w.written++

	if w.every <= 0 || frame%snapshot.Frame(w.every) != 0 {
		return nil
	}
	data, err := snap.MarshalBinary()
	if err != nil {
		return err
	}
	var hdr [12]byte
	binary.BigEndian.PutUint64(hdr[0:], uint64(frame))
	binary.BigEndian.PutUint32(hdr[8:], uint32(len(data)))
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], snap.Checksum())
	for _, part := range [][]byte{hdr[:], data, sum[:]} {
		if _, err := w.frames.Write(part); err != nil {
			return fmt.Errorf("replay: write frame %d: %w", frame, err)
		}
	}
	return nil
}

// Close flushes both streams and writes the manifest. ID and SnapshotEvery
// are filled in from the writer.
func (w *Writer) Close(m Manifest) error {
	if w.closed {
		return fmt.Errorf("replay: bundle %s already closed", w.id)
	}
	if err := w.closeStreams(); err != nil {
		return fmt.Errorf("replay: close streams: %w", err)
	}

	m.ID = w.id
	m.SnapshotEvery = w.every
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("replay: encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("replay: write manifest: %w", err)
	}
	return nil
}

// Abort discards an unfinished bundle: any open streams are closed and the
// bundle directory is removed. It is safe after a failed Close.
func (w *Writer) Abort() error {
	if !w.closed {
		_ = w.closeStreams()
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("replay: remove bundle: %w", err)
	}
	return nil
}

func (w *Writer) closeStreams() error {
	w.closed = true
	var errs []error
	errs = append(errs, w.inputs.Close(), w.inputsFile.Close())
	errs = append(errs, w.frames.Close(), w.framesFile.Close())
	return errors.Join(errs...)
}

// InputRecord is one logged input.
type InputRecord struct {
	Frame snapshot.Frame
	Input core.MultiInputFrame
}

// FrameRecord is one stored snapshot.
type FrameRecord struct {
	Frame    snapshot.Frame
	Snapshot *snapshot.Snapshot
	Checksum uint64
}

// Reader reads a bundle back.
type Reader struct {
	dir      string
	manifest Manifest
}

// Open reads the manifest of the bundle at dir.
func Open(dir string) (*Reader, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("replay: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", ErrCorrupt, err)
	}
	if m.ID == "" || m.Scenario == "" {
		return nil, fmt.Errorf("%w: manifest lacks id or scenario", ErrCorrupt)
	}
	return &Reader{dir: dir, manifest: m}, nil
}

// Manifest returns the bundle manifest.
func (r *Reader) Manifest() Manifest {
	return r.manifest
}

// Inputs returns every logged input in frame order.
func (r *Reader) Inputs() ([]InputRecord, error) {
	f, err := os.Open(filepath.Join(r.dir, inputsFile))
	if err != nil {
		return nil, fmt.Errorf("replay: open inputs: %w", err)
	}
	defer f.Close()

	src := snappy.NewReader(f)
	var out []InputRecord
	var rec [inputRecordSize]byte
	for {
		if _, err := io.ReadFull(src, rec[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("%w: inputs: %w", ErrCorrupt, err)
		}
		ir := InputRecord{Frame: snapshot.Frame(binary.BigEndian.Uint64(rec[0:]))}
		for p := 0; p < core.MaxPlayers; p++ {
			ir.Input.SetPlayer(core.PlayerID(p), core.InputFrame(binary.BigEndian.Uint16(rec[8+2*p:])))
		}
		if n := len(out); n > 0 && ir.Frame <= out[n-1].Frame {
			return nil, fmt.Errorf("%w: input frame %d out of order", ErrCorrupt, ir.Frame)
		}
		out = append(out, ir)
	}
}

// Frames decodes every stored snapshot. statics, when non-nil, validates
// static contact endpoints. A stored checksum that does not match its
// snapshot is reported as corruption.
func (r *Reader) Frames(statics snapshot.StaticValidator) ([]FrameRecord, error) {
	f, err := os.Open(filepath.Join(r.dir, framesFile))
	if err != nil {
		return nil, fmt.Errorf("replay: open frames: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("replay: zstd: %w", err)
	}
	defer dec.Close()
	src := bufio.NewReader(dec)

	var out []FrameRecord
	var hdr [12]byte
	for {
		if _, err := io.ReadFull(src, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("%w: frame header: %w", ErrCorrupt, err)
		}
		frame := snapshot.Frame(binary.BigEndian.Uint64(hdr[0:]))
		size := binary.BigEndian.Uint32(hdr[8:])
		if size > maxFrameSize {
			return nil, fmt.Errorf("%w: frame %d claims %d bytes", ErrCorrupt, frame, size)
		}
		buf := make([]byte, int(size)+8)
		if _, err := io.ReadFull(src, buf); err != nil {
			return nil, fmt.Errorf("%w: frame %d: %w", ErrCorrupt, frame, err)
		}
		snap, err := snapshot.Decode(buf[:size], statics)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %w", ErrCorrupt, frame, err)
		}
		sum := binary.BigEndian.Uint64(buf[size:])
		if snap.Frame() != frame || snap.Checksum() != sum {
			return nil, fmt.Errorf("%w: frame %d checksum mismatch", ErrCorrupt, frame)
		}
		out = append(out, FrameRecord{Frame: frame, Snapshot: snap, Checksum: sum})
	}
}

// InputFunc returns a lookup over the recorded inputs; frames that were
// never recorded have no input.
func InputFunc(records []InputRecord) func(snapshot.Frame) core.MultiInputFrame {
	byFrame := make(map[snapshot.Frame]core.MultiInputFrame, len(records))
	for _, r := range records {
		byFrame[r.Frame] = r.Input
	}
	return func(f snapshot.Frame) core.MultiInputFrame {
		return byFrame[f]
	}
}
