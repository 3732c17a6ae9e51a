package types

import "github.com/ineffectivecoder/smbclient/internal/encoding"

// NegotiateRequest is SMB2 NEGOTIATE (StructureSize 36). Negotiate contexts
// are not sent, so 3.1.1 is never offered.
type NegotiateRequest struct {
	SecurityMode SecurityMode
	Capabilities Capabilities
	ClientGUID   [16]byte
	Dialects     []Dialect
}

func NewNegotiateRequest(guid [16]byte, signingRequired bool) *NegotiateRequest {
	mode := NegotiateSigningEnabled
	if signingRequired {
		mode |= NegotiateSigningRequired
	}
	return &NegotiateRequest{
		SecurityMode: mode,
		Capabilities: GlobalCapDFS | GlobalCapLargeMTU | GlobalCapEncryption,
		ClientGUID:   guid,
		Dialects:     DefaultDialects,
	}
}

func (r *NegotiateRequest) Marshal() []byte {
	w := encoding.NewWriter(36 + 2*len(r.Dialects))
	w.U16(36).U16(uint16(len(r.Dialects))).U16(uint16(r.SecurityMode)).U16(0)
	w.U32(uint32(r.Capabilities)).Raw(r.ClientGUID[:])
	w.U32(0).U16(0).U16(0)
	for _, d := range r.Dialects {
		w.U16(uint16(d))
	}
	return w.Bytes()
}

// NegotiateResponse is the fixed part of the NEGOTIATE response plus its
// GSS security buffer.
type NegotiateResponse struct {
	SecurityMode    SecurityMode
	DialectRevision Dialect
	ServerGUID      [16]byte
	Capabilities    Capabilities
	MaxTransactSize uint32
	MaxReadSize     uint32
	MaxWriteSize    uint32
	SystemTime      uint64
	SecurityBuffer  []byte
}

func (r *NegotiateResponse) Unmarshal(buf []byte) error {
	if len(buf) < 64 {
		return ErrBufferTooSmall
	}
	rd := encoding.NewReader(buf)
	if rd.U16() != 65 {
		return errBadStructureSize
	}
	r.SecurityMode = SecurityMode(rd.U16())
	r.DialectRevision = Dialect(rd.U16())
	rd.Skip(2)
	copy(r.ServerGUID[:], rd.Bytes(16))
	r.Capabilities = Capabilities(rd.U32())
	r.MaxTransactSize = rd.U32()
	r.MaxReadSize = rd.U32()
	r.MaxWriteSize = rd.U32()
	r.SystemTime = rd.U64()
	rd.Skip(8)
	secOff := rd.U16()
	secLen := rd.U16()
	r.SecurityBuffer = bufferAt(buf, secOff, uint32(secLen))
	return rd.Err()
}

func (r *NegotiateResponse) RequiresSigning() bool {
	return r.SecurityMode&NegotiateSigningRequired != 0
}
