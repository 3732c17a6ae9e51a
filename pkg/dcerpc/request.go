package dcerpc

import (
	"github.com/ineffectivecoder/smbclient/internal/encoding"
)

// defaultMaxFrag is the fragment size offered in BIND.
const defaultMaxFrag = 4280

// requestHeaderSize is the common header plus the REQUEST fixed part.
const requestHeaderSize = 24

// Request represents an RPC REQUEST message
type Request struct {
	Header    CommonHeader
	AllocHint uint32
	ContextID uint16
	Opnum     uint16
	StubData  []byte
}

// NewRequest creates a single-fragment RPC request
func NewRequest(opnum uint16, stubData []byte, callID uint32) *Request {
	return &Request{
		Header: CommonHeader{
			Version:            RPCVersionMajor,
			VersionMinor:       RPCVersionMinor,
			PacketType:         PacketTypeRequest,
			PacketFlags:        PacketFlagFirstFrag | PacketFlagLastFrag,
			DataRepresentation: NDRDataRepresentation,
			CallID:             callID,
		},
		AllocHint: uint32(len(stubData)),
		Opnum:     opnum,
		StubData:  stubData,
	}
}

// Marshal serializes the request. AllocHint is left as set so that later
// fragments can report the remaining stub size.
func (r *Request) Marshal() []byte {
	r.Header.FragLength = uint16(requestHeaderSize + len(r.StubData))

	w := encoding.NewWriter(int(r.Header.FragLength))
	w.Raw(r.Header.Marshal())
	w.U32(r.AllocHint).U16(r.ContextID).U16(r.Opnum)
	w.Raw(r.StubData)
	return w.Bytes()
}

// fragmentRequest splits stub into REQUEST PDUs no larger than maxFrag.
// The result always has at least one element.
func fragmentRequest(opnum uint16, stub []byte, callID uint32, maxFrag int) [][]byte {
	room := max(maxFrag-requestHeaderSize, 8)
	var frags [][]byte
	for off := 0; ; {
		end := min(len(stub), off+room)
		req := NewRequest(opnum, stub[off:end], callID)
		req.AllocHint = uint32(len(stub) - off)
		req.Header.PacketFlags = 0
		if off == 0 {
			req.Header.PacketFlags |= PacketFlagFirstFrag
		}
		if end == len(stub) {
			req.Header.PacketFlags |= PacketFlagLastFrag
		}
		frags = append(frags, req.Marshal())
		if end == len(stub) {
			return frags
		}
		off = end
	}
}

// Response represents an RPC RESPONSE message
type Response struct {
	Header      CommonHeader
	AllocHint   uint32
	ContextID   uint16
	CancelCount uint8
	StubData    []byte
}

// Unmarshal deserializes a response
func (r *Response) Unmarshal(buf []byte) error {
	if len(buf) < requestHeaderSize {
		return ErrBufferTooSmall
	}
	if err := r.Header.Unmarshal(buf); err != nil {
		return err
	}
	r.AllocHint = encoding.Uint32LE(buf[16:20])
	r.ContextID = encoding.Uint16LE(buf[20:22])
	r.CancelCount = buf[22]

	end := int(r.Header.FragLength) - int(r.Header.AuthLength)
	if r.Header.AuthLength > 0 {
		end -= 8 // sec_trailer
	}
	if end > len(buf) || end < requestHeaderSize {
		return ErrBufferTooSmall
	}
	r.StubData = append([]byte(nil), buf[requestHeaderSize:end]...)
	return nil
}

// Fault represents an RPC FAULT response
type Fault struct {
	Header      CommonHeader
	AllocHint   uint32
	ContextID   uint16
	CancelCount uint8
	Status      uint32 // NTSTATUS or RPC status
}

// Unmarshal deserializes a fault response
func (r *Fault) Unmarshal(buf []byte) error {
	if len(buf) < 28 {
		return ErrBufferTooSmall
	}
	if err := r.Header.Unmarshal(buf); err != nil {
		return err
	}
	r.AllocHint = encoding.Uint32LE(buf[16:20])
	r.ContextID = encoding.Uint16LE(buf[20:22])
	r.CancelCount = buf[22]
	r.Status = encoding.Uint32LE(buf[24:28])
	return nil
}

// Common RPC status codes
const (
	RPCStatusAccessDenied        uint32 = 0x00000005
	RPCStatusInvalidParameter    uint32 = 0x00000057
	RPCStatusProcedureOutOfRange uint32 = 0x1C010002
	RPCStatusUnknownIf           uint32 = 0x1C010003
)
