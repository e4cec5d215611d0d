package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/vovakirdan/rollphys/internal/core"
)

// ErrCorrupt is returned by Decode for malformed input.
var ErrCorrupt = errors.New("snapshot: corrupt encoding")

// Encoded layout, all integers big-endian:
//
//	frame         int64
//	body count    uint32
//	bodies        id u32, pos.x, pos.y, angle, vel.x, vel.y, angvel (i64 each), flags u8
//	contact count uint32
//	contacts      a.kind u8, a.id u32, b.kind u8, b.id u32, point u8,
//	              normal.x, normal.y, depth, normal impulse, tangent impulse (i64 each)
//	next body id  uint32
const (
	headerSize  = 8 + 4
	bodySize    = 4 + 6*8 + 1
	contactSize = 1 + 4 + 1 + 4 + 1 + 5*8
	trailerSize = 4 + 4 // contact count lives between the sections
)

const flagSleeping = 1 << 0

// EncodedSize returns the exact size of the encoded form.
func (s *Snapshot) EncodedSize() int {
	return headerSize + len(s.bodies)*bodySize + len(s.contacts)*contactSize + trailerSize
}

// MarshalBinary encodes the snapshot in its flat, order-deterministic form.
func (s *Snapshot) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, s.EncodedSize()))
}

// AppendBinary appends the encoded form to dst.
func (s *Snapshot) AppendBinary(dst []byte) ([]byte, error) {
	be := binary.BigEndian

	dst = be.AppendUint64(dst, uint64(s.frame))
	dst = be.AppendUint32(dst, uint32(len(s.bodies)))
	for _, b := range s.bodies {
		dst = be.AppendUint32(dst, uint32(b.ID))
		dst = appendFixed(dst, b.Position.X)
		dst = appendFixed(dst, b.Position.Y)
		dst = appendFixed(dst, b.Angle)
		dst = appendFixed(dst, b.LinVel.X)
		dst = appendFixed(dst, b.LinVel.Y)
		dst = appendFixed(dst, b.AngVel)
		var flags byte
		if b.Sleeping {
			flags |= flagSleeping
		}
		dst = append(dst, flags)
	}

	dst = be.AppendUint32(dst, uint32(len(s.contacts)))
	for _, c := range s.contacts {
		dst = append(dst, byte(c.Key.A.Kind))
		dst = be.AppendUint32(dst, c.Key.A.ID)
		dst = append(dst, byte(c.Key.B.Kind))
		dst = be.AppendUint32(dst, c.Key.B.ID)
		dst = append(dst, c.Key.Point)
		dst = appendFixed(dst, c.Normal.X)
		dst = appendFixed(dst, c.Normal.Y)
		dst = appendFixed(dst, c.Depth)
		dst = appendFixed(dst, c.NormalImpulse)
		dst = appendFixed(dst, c.TangentImpulse)
	}

	dst = be.AppendUint32(dst, uint32(s.nextBodyID))
	return dst, nil
}

func appendFixed(dst []byte, f core.Fixed) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(f))
}

// Decode parses an encoded snapshot and re-validates its invariants.
// The statics validator is optional.
func Decode(data []byte, statics StaticValidator) (*Snapshot, error) {
	r := reader{buf: data}

	s := &Snapshot{frame: Frame(r.u64())}

	n := r.u32()
	if r.err == nil && uint64(n)*bodySize > uint64(len(r.buf)) {
		return nil, fmt.Errorf("%w: body count %d exceeds input", ErrCorrupt, n)
	}
	s.bodies = make([]BodyState, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		b := BodyState{ID: BodyID(r.u32())}
		b.Position.X = r.fixed()
		b.Position.Y = r.fixed()
		b.Angle = r.fixed()
		b.LinVel.X = r.fixed()
		b.LinVel.Y = r.fixed()
		b.AngVel = r.fixed()
		flags := r.u8()
		if flags&^flagSleeping != 0 {
			return nil, fmt.Errorf("%w: unknown body flags %#x", ErrCorrupt, flags)
		}
		b.Sleeping = flags&flagSleeping != 0
		if i > 0 && b.ID <= s.bodies[i-1].ID {
			return nil, fmt.Errorf("%w: bodies not in ascending id order", ErrCorrupt)
		}
		s.bodies = append(s.bodies, b)
	}

	m := r.u32()
	if r.err == nil && uint64(m)*contactSize > uint64(len(r.buf)) {
		return nil, fmt.Errorf("%w: contact count %d exceeds input", ErrCorrupt, m)
	}
	s.contacts = make([]ContactEdge, 0, m)
	for i := uint32(0); i < m && r.err == nil; i++ {
		var c ContactEdge
		c.Key.A = Endpoint{Kind: EndpointKind(r.u8()), ID: r.u32()}
		c.Key.B = Endpoint{Kind: EndpointKind(r.u8()), ID: r.u32()}
		c.Key.Point = r.u8()
		c.Normal.X = r.fixed()
		c.Normal.Y = r.fixed()
		c.Depth = r.fixed()
		c.NormalImpulse = r.fixed()
		c.TangentImpulse = r.fixed()
		if i > 0 && !s.contacts[i-1].Key.Less(c.Key) {
			return nil, fmt.Errorf("%w: contacts not in ascending key order", ErrCorrupt)
		}
		s.contacts = append(s.contacts, c)
	}

	s.nextBodyID = BodyID(r.u32())

	if r.err != nil {
		return nil, r.err
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(r.buf))
	}
	if err := s.validate(statics); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return s, nil
}

// Checksum hashes the encoded form. Two peers holding the same state produce
// the same checksum, so comparing checksums detects desyncs.
func (s *Snapshot) Checksum() uint64 {
	buf, _ := s.MarshalBinary() // never fails
	return xxhash.Sum64(buf)
}

// StateChecksum hashes everything except the frame number.
func (s *Snapshot) StateChecksum() uint64 {
	buf, _ := s.MarshalBinary()
	return xxhash.Sum64(buf[8:])
}

// reader is a sticky-error cursor over the encoded bytes.
type reader struct {
	buf []byte
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if len(r.buf) < n {
		r.err = fmt.Errorf("%w: unexpected end of input", ErrCorrupt)
		return false
	}
	return true
}

func (r *reader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[0]
	r.buf = r.buf[1:]
	return v
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	return v
}

func (r *reader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return v
}

func (r *reader) fixed() core.Fixed {
	return core.Fixed(int64(r.u64()))
}
