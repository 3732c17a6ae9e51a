// Package encoding holds the little-endian and UTF-16LE helpers shared by the
// SMB2 codec, the NTLM messages and NDR marshaling.
package encoding

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"
)

// ErrShortBuffer is returned by Reader when a field runs past the input.
var ErrShortBuffer = errors.New("encoding: short buffer")

var le = binary.LittleEndian

func PutUint16LE(b []byte, v uint16) { le.PutUint16(b, v) }
func PutUint32LE(b []byte, v uint32) { le.PutUint32(b, v) }
func PutUint64LE(b []byte, v uint64) { le.PutUint64(b, v) }

func Uint16LE(b []byte) uint16 { return le.Uint16(b) }
func Uint32LE(b []byte) uint32 { return le.Uint32(b) }
func Uint64LE(b []byte) uint64 { return le.Uint64(b) }

func AppendUint16LE(b []byte, v uint16) []byte { return le.AppendUint16(b, v) }
func AppendUint32LE(b []byte, v uint32) []byte { return le.AppendUint32(b, v) }
func AppendUint64LE(b []byte, v uint64) []byte { return le.AppendUint64(b, v) }

// Writer appends little-endian fields to a growing buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with room for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

func (w *Writer) U8(v uint8) *Writer   { w.buf = append(w.buf, v); return w }
func (w *Writer) U16(v uint16) *Writer { w.buf = le.AppendUint16(w.buf, v); return w }
func (w *Writer) U32(v uint32) *Writer { w.buf = le.AppendUint32(w.buf, v); return w }
func (w *Writer) U64(v uint64) *Writer { w.buf = le.AppendUint64(w.buf, v); return w }

// Raw appends b unchanged.
func (w *Writer) Raw(b []byte) *Writer { w.buf = append(w.buf, b...); return w }

// Zero appends n zero bytes.
func (w *Writer) Zero(n int) *Writer {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
	return w
}

// Align pads with zeros until the length is a multiple of n.
func (w *Writer) Align(n int) *Writer {
	if r := len(w.buf) % n; r != 0 {
		w.Zero(n - r)
	}
	return w
}

// PatchU16 overwrites a previously written uint16 at off.
func (w *Writer) PatchU16(off int, v uint16) { le.PutUint16(w.buf[off:], v) }

// PatchU32 overwrites a previously written uint32 at off.
func (w *Writer) PatchU32(off int, v uint32) { le.PutUint32(w.buf[off:], v) }

func (w *Writer) Len() int      { return len(w.buf) }
func (w *Writer) Bytes() []byte { return w.buf }

// Reader walks a byte slice field by field. The first short read latches
// ErrShortBuffer; later reads return zero values.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = ErrShortBuffer
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) U8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) U16() uint16 {
	if b := r.take(2); b != nil {
		return le.Uint16(b)
	}
	return 0
}

func (r *Reader) U32() uint32 {
	if b := r.take(4); b != nil {
		return le.Uint32(b)
	}
	return 0
}

func (r *Reader) U64() uint64 {
	if b := r.take(8); b != nil {
		return le.Uint64(b)
	}
	return 0
}

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *Reader) Skip(n int) { r.take(n) }

// Align advances to the next multiple of n.
func (r *Reader) Align(n int) {
	if rem := r.off % n; rem != 0 {
		r.Skip(n - rem)
	}
}

func (r *Reader) Offset() int    { return r.off }
func (r *Reader) Remaining() int { return len(r.buf) - r.off }
func (r *Reader) Err() error     { return r.err }

// ToUTF16LE encodes s as UTF-16LE without a terminator.
func ToUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, 0, len(units)*2)
	for _, u := range units {
		b = le.AppendUint16(b, u)
	}
	return b
}

// ToUTF16LEWithNull encodes s followed by a two-byte NUL.
func ToUTF16LEWithNull(s string) []byte {
	return append(ToUTF16LE(s), 0, 0)
}

// FromUTF16LE decodes UTF-16LE bytes, ignoring a trailing odd byte.
func FromUTF16LE(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = le.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units))
}

// Slice returns buf[off:off+n] when the range is in bounds.
func Slice(buf []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off+n > len(buf) {
		return nil, false
	}
	return buf[off : off+n], true
}
