package types

import "github.com/ineffectivecoder/smbclient/internal/encoding"

// Header is the 64-byte sync SMB2 header. For async responses Reserved and
// TreeID together carry the AsyncId.
type Header struct {
	CreditCharge  uint16
	Status        NTStatus
	Command       Command
	CreditRequest uint16
	Flags         HeaderFlags
	NextCommand   uint32
	MessageID     uint64
	Reserved      uint32
	TreeID        uint32
	SessionID     uint64
	Signature     [16]byte
}

// NewHeader returns a request header asking for one credit.
func NewHeader(cmd Command, messageID uint64) *Header {
	return &Header{
		CreditCharge:  1,
		CreditRequest: 1,
		Command:       cmd,
		MessageID:     messageID,
	}
}

func (h *Header) Marshal() []byte {
	w := encoding.NewWriter(SMB2HeaderSize)
	w.Raw(SMB2ProtocolID[:]).U16(SMB2HeaderSize).U16(h.CreditCharge)
	w.U32(uint32(h.Status)).U16(uint16(h.Command)).U16(h.CreditRequest)
	w.U32(uint32(h.Flags)).U32(h.NextCommand).U64(h.MessageID)
	w.U32(h.Reserved).U32(h.TreeID).U64(h.SessionID)
	w.Raw(h.Signature[:])
	return w.Bytes()
}

func (h *Header) Unmarshal(buf []byte) error {
	if len(buf) < SMB2HeaderSize {
		return ErrBufferTooSmall
	}
	r := encoding.NewReader(buf)
	if [4]byte(r.Bytes(4)) != SMB2ProtocolID {
		return errBadProtocolID
	}
	if r.U16() != SMB2HeaderSize {
		return errBadStructureSize
	}
	h.CreditCharge = r.U16()
	h.Status = NTStatus(r.U32())
	h.Command = Command(r.U16())
	h.CreditRequest = r.U16()
	h.Flags = HeaderFlags(r.U32())
	h.NextCommand = r.U32()
	h.MessageID = r.U64()
	h.Reserved = r.U32()
	h.TreeID = r.U32()
	h.SessionID = r.U64()
	copy(h.Signature[:], r.Bytes(16))
	return r.Err()
}

func (h *Header) IsResponse() bool { return h.Flags&FlagsServerToRedir != 0 }
func (h *Header) IsSigned() bool   { return h.Flags&FlagsSigned != 0 }
func (h *Header) IsAsync() bool    { return h.Flags&FlagsAsyncCommand != 0 }

// bufferAt extracts a variable-length field whose offset is measured from
// the start of the SMB2 header, given the body that follows the header.
func bufferAt(body []byte, offset uint16, length uint32) []byte {
	if length == 0 {
		return nil
	}
	b, ok := encoding.Slice(body, int(offset)-SMB2HeaderSize, int(length))
	if !ok {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
