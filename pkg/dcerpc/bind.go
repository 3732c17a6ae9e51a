package dcerpc

import (
	"github.com/ineffectivecoder/smbclient/internal/encoding"
)

// BindRequest represents an RPC BIND request
type BindRequest struct {
	Header      CommonHeader
	MaxXmitFrag uint16
	MaxRecvFrag uint16
	AssocGroup  uint32
	CtxItems    []ContextItem
}

// ContextItem represents a presentation context for binding
type ContextItem struct {
	ContextID        uint16
	AbstractSyntax   SyntaxID
	TransferSyntaxes []SyntaxID
}

// NewBindRequest creates a bind request for one interface over NDR.
func NewBindRequest(interfaceUUID UUID, interfaceVersion uint32, callID uint32) *BindRequest {
	return &BindRequest{
		Header: CommonHeader{
			Version:            RPCVersionMajor,
			VersionMinor:       RPCVersionMinor,
			PacketType:         PacketTypeBind,
			PacketFlags:        PacketFlagFirstFrag | PacketFlagLastFrag,
			DataRepresentation: NDRDataRepresentation,
			CallID:             callID,
		},
		MaxXmitFrag: defaultMaxFrag,
		MaxRecvFrag: defaultMaxFrag,
		CtxItems: []ContextItem{{
			AbstractSyntax:   SyntaxID{UUID: interfaceUUID, Version: interfaceVersion},
			TransferSyntaxes: []SyntaxID{NDRSyntax},
		}},
	}
}

// Marshal serializes the bind request
func (r *BindRequest) Marshal() []byte {
	size := 16 + 12
	for _, item := range r.CtxItems {
		size += 4 + 20 + 20*len(item.TransferSyntaxes)
	}
	r.Header.FragLength = uint16(size)

	w := encoding.NewWriter(size)
	w.Raw(r.Header.Marshal())
	w.U16(r.MaxXmitFrag).U16(r.MaxRecvFrag).U32(r.AssocGroup)
	w.U8(uint8(len(r.CtxItems))).Zero(3)
	for _, item := range r.CtxItems {
		w.U16(item.ContextID).U8(uint8(len(item.TransferSyntaxes))).U8(0)
		w.Raw(item.AbstractSyntax.Marshal())
		for _, ts := range item.TransferSyntaxes {
			w.Raw(ts.Marshal())
		}
	}
	return w.Bytes()
}

// BindAckResult represents the result of a context negotiation
type BindAckResult struct {
	Result         uint16
	Reason         uint16
	TransferSyntax SyntaxID
}

// BindAck represents an RPC BIND_ACK response
type BindAck struct {
	Header      CommonHeader
	MaxXmitFrag uint16
	MaxRecvFrag uint16
	AssocGroup  uint32
	SecAddr     string
	Results     []BindAckResult
}

// Unmarshal deserializes a bind ack response
func (r *BindAck) Unmarshal(buf []byte) error {
	if err := r.Header.Unmarshal(buf); err != nil {
		return err
	}
	rd := encoding.NewReader(buf)
	rd.Skip(16)
	r.MaxXmitFrag = rd.U16()
	r.MaxRecvFrag = rd.U16()
	r.AssocGroup = rd.U32()
	if n := int(rd.U16()); n > 0 {
		addr := rd.Bytes(n)
		if len(addr) > 0 {
			r.SecAddr = string(addr[:len(addr)-1]) // NUL terminated
		}
	}
	rd.Align(4)
	count := int(rd.U8())
	rd.Skip(3)
	for range count {
		res := BindAckResult{Result: rd.U16(), Reason: rd.U16()}
		if err := res.TransferSyntax.Unmarshal(rd.Bytes(20)); err != nil {
			return ErrBufferTooSmall
		}
		r.Results = append(r.Results, res)
	}
	if rd.Err() != nil {
		return ErrBufferTooSmall
	}
	return nil
}

// IsAccepted returns true if the first presentation context was accepted
func (r *BindAck) IsAccepted() bool {
	return len(r.Results) > 0 && r.Results[0].Result == 0
}
