package types

import "github.com/ineffectivecoder/smbclient/internal/encoding"

// ReadRequest is SMB2 READ.
type ReadRequest struct {
	FileID FileID
	Offset uint64
	Length uint32
}

func (r *ReadRequest) Marshal() []byte {
	w := encoding.NewWriter(49)
	w.U16(49).U8(0x50).U8(0).U32(r.Length).U64(r.Offset)
	r.FileID.put(w)
	w.U32(0).U32(0).U32(0).U16(0).U16(0).U8(0)
	return w.Bytes()
}

// ReadResponse holds the data returned by READ.
type ReadResponse struct {
	DataRemaining uint32
	Data          []byte
}

func (r *ReadResponse) Unmarshal(buf []byte) error {
	if len(buf) < 16 {
		return ErrBufferTooSmall
	}
	rd := encoding.NewReader(buf)
	rd.Skip(2)
	off := rd.U8()
	rd.Skip(1)
	n := rd.U32()
	r.DataRemaining = rd.U32()
	r.Data = bufferAt(buf, uint16(off), n)
	if n > 0 && r.Data == nil {
		return ErrBufferTooSmall
	}
	return rd.Err()
}

// WriteRequest is SMB2 WRITE with the data inline after the fixed part.
type WriteRequest struct {
	FileID FileID
	Offset uint64
	Data   []byte
}

func (r *WriteRequest) Marshal() []byte {
	w := encoding.NewWriter(48 + len(r.Data))
	w.U16(49).U16(SMB2HeaderSize + 48).U32(uint32(len(r.Data))).U64(r.Offset)
	r.FileID.put(w)
	w.U32(0).U32(0).U16(0).U16(0).U32(0)
	w.Raw(r.Data)
	return w.Bytes()
}

// WriteResponse reports how many bytes the server accepted.
type WriteResponse struct {
	Count uint32
}

func (r *WriteResponse) Unmarshal(buf []byte) error {
	if len(buf) < 16 {
		return ErrBufferTooSmall
	}
	r.Count = encoding.Uint32LE(buf[4:8])
	return nil
}
