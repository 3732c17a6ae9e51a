package dcerpc

import (
	"github.com/ineffectivecoder/smbclient/internal/encoding"
)

// NDRWriter builds NDR 2.0 stub data. Scalars are aligned to their own
// size; unique pointers get increasing referent IDs.
type NDRWriter struct {
	buf      []byte
	referent uint32
}

// NewNDRWriter creates a new NDR writer
func NewNDRWriter() *NDRWriter {
	return &NDRWriter{referent: 0x00020000}
}

// Bytes returns the encoded data
func (w *NDRWriter) Bytes() []byte {
	return w.buf
}

// Len returns the current length
func (w *NDRWriter) Len() int {
	return len(w.buf)
}

// Align pads the buffer to a multiple of n
func (w *NDRWriter) Align(n int) {
	for len(w.buf)%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *NDRWriter) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *NDRWriter) WriteUint16(v uint16) {
	w.Align(2)
	w.buf = encoding.AppendUint16LE(w.buf, v)
}

func (w *NDRWriter) WriteUint32(v uint32) {
	w.Align(4)
	w.buf = encoding.AppendUint32LE(w.buf, v)
}

// WriteBytes writes raw bytes without alignment
func (w *NDRWriter) WriteBytes(data []byte) {
	w.buf = append(w.buf, data...)
}

// WritePointer writes a non-null unique pointer referent
func (w *NDRWriter) WritePointer() {
	w.referent += 4
	w.WriteUint32(w.referent)
}

// WriteNullPointer writes a null pointer
func (w *NDRWriter) WriteNullPointer() {
	w.WriteUint32(0)
}

// WriteUnicodeString writes a NUL terminated conformant varying wchar
// string.
func (w *NDRWriter) WriteUnicodeString(s string) {
	u := encoding.ToUTF16LEWithNull(s)
	n := uint32(len(u) / 2)
	w.WriteUint32(n)
	w.WriteUint32(0)
	w.WriteUint32(n)
	w.WriteBytes(u)
	w.Align(4)
}

// WriteRPCUnicodeStringHeader writes the Length/MaximumLength/pointer part
// of an RPC_UNICODE_STRING; the characters follow later via
// WriteRPCUnicodeStringBody.
func (w *NDRWriter) WriteRPCUnicodeStringHeader(s string) {
	n := uint16(len(encoding.ToUTF16LE(s)))
	w.WriteUint16(n)
	w.WriteUint16(n)
	if n == 0 {
		w.WriteNullPointer()
		return
	}
	w.WritePointer()
}

// WriteRPCUnicodeStringBody writes the deferred character array of an
// RPC_UNICODE_STRING (no terminator).
func (w *NDRWriter) WriteRPCUnicodeStringBody(s string) {
	u := encoding.ToUTF16LE(s)
	if len(u) == 0 {
		return
	}
	n := uint32(len(u) / 2)
	w.WriteUint32(n)
	w.WriteUint32(0)
	w.WriteUint32(n)
	w.WriteBytes(u)
	w.Align(4)
}

// NDRReader parses NDR 2.0 stub data
type NDRReader struct {
	buf    []byte
	offset int
}

// NewNDRReader creates a new NDR reader
func NewNDRReader(data []byte) *NDRReader {
	return &NDRReader{buf: data}
}

// Align aligns the offset to the specified boundary
func (r *NDRReader) Align(n int) {
	r.offset += (n - r.offset%n) % n
}

func (r *NDRReader) ReadUint8() (uint8, error) {
	if r.offset+1 > len(r.buf) {
		return 0, ErrBufferTooSmall
	}
	v := r.buf[r.offset]
	r.offset++
	return v, nil
}

func (r *NDRReader) ReadUint16() (uint16, error) {
	r.Align(2)
	if r.offset+2 > len(r.buf) {
		return 0, ErrBufferTooSmall
	}
	v := encoding.Uint16LE(r.buf[r.offset:])
	r.offset += 2
	return v, nil
}

func (r *NDRReader) ReadUint32() (uint32, error) {
	r.Align(4)
	if r.offset+4 > len(r.buf) {
		return 0, ErrBufferTooSmall
	}
	v := encoding.Uint32LE(r.buf[r.offset:])
	r.offset += 4
	return v, nil
}

// ReadBytes reads n unaligned bytes
func (r *NDRReader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.offset+n > len(r.buf) {
		return nil, ErrBufferTooSmall
	}
	data := make([]byte, n)
	copy(data, r.buf[r.offset:r.offset+n])
	r.offset += n
	return data, nil
}

// ReadUnicodeString reads a conformant varying wchar string, dropping a
// trailing NUL.
func (r *NDRReader) ReadUnicodeString() (string, error) {
	if _, err := r.ReadUint32(); err != nil { // max count
		return "", err
	}
	if _, err := r.ReadUint32(); err != nil { // offset
		return "", err
	}
	count, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	data, err := r.ReadBytes(int(count) * 2)
	if err != nil {
		return "", err
	}
	if n := len(data); n >= 2 && data[n-2] == 0 && data[n-1] == 0 {
		data = data[:n-2]
	}
	return encoding.FromUTF16LE(data), nil
}

// RPCUnicodeString is the fixed part of an RPC_UNICODE_STRING.
type RPCUnicodeString struct {
	Length    uint16
	MaxLength uint16
	Referent  uint32
}

// ReadRPCUnicodeStringHeader reads Length, MaximumLength and the pointer.
func (r *NDRReader) ReadRPCUnicodeStringHeader() (RPCUnicodeString, error) {
	var s RPCUnicodeString
	var err error
	if s.Length, err = r.ReadUint16(); err != nil {
		return s, err
	}
	if s.MaxLength, err = r.ReadUint16(); err != nil {
		return s, err
	}
	s.Referent, err = r.ReadUint32()
	return s, err
}

// ReadRPCUnicodeStringBody reads the deferred characters for h. A null
// referent yields "".
func (r *NDRReader) ReadRPCUnicodeStringBody(h RPCUnicodeString) (string, error) {
	if h.Referent == 0 {
		return "", nil
	}
	return r.ReadUnicodeString()
}

// Skip skips n bytes
func (r *NDRReader) Skip(n int) error {
	if r.offset+n > len(r.buf) {
		return ErrBufferTooSmall
	}
	r.offset += n
	return nil
}

// Remaining returns remaining bytes
func (r *NDRReader) Remaining() int {
	return len(r.buf) - r.offset
}

// Offset returns current offset
func (r *NDRReader) Offset() int {
	return r.offset
}
