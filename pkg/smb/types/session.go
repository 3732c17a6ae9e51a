package types

import "github.com/ineffectivecoder/smbclient/internal/encoding"

const (
	SessionFlagIsGuest     uint16 = 0x0001
	SessionFlagIsNull      uint16 = 0x0002
	SessionFlagEncryptData uint16 = 0x0004
)

// SessionSetupRequest carries one leg of the GSS exchange.
type SessionSetupRequest struct {
	SecurityMode   SecurityMode
	SecurityBuffer []byte
}

func NewSessionSetupRequest(token []byte) *SessionSetupRequest {
	return &SessionSetupRequest{SecurityMode: NegotiateSigningEnabled, SecurityBuffer: token}
}

func (r *SessionSetupRequest) Marshal() []byte {
	w := encoding.NewWriter(24 + len(r.SecurityBuffer))
	w.U16(25).U8(0).U8(uint8(r.SecurityMode))
	w.U32(uint32(GlobalCapDFS)).U32(0)
	w.U16(SMB2HeaderSize + 24).U16(uint16(len(r.SecurityBuffer)))
	w.U64(0)
	w.Raw(r.SecurityBuffer)
	return w.Bytes()
}

type SessionSetupResponse struct {
	SessionFlags   uint16
	SecurityBuffer []byte
}

func (r *SessionSetupResponse) Unmarshal(buf []byte) error {
	rd := encoding.NewReader(buf)
	if rd.U16() != 9 {
		if rd.Err() != nil {
			return ErrBufferTooSmall
		}
		return errBadStructureSize
	}
	r.SessionFlags = rd.U16()
	off := rd.U16()
	n := rd.U16()
	if err := rd.Err(); err != nil {
		return ErrBufferTooSmall
	}
	r.SecurityBuffer = bufferAt(buf, off, uint32(n))
	return nil
}

func (r *SessionSetupResponse) IsGuest() bool { return r.SessionFlags&SessionFlagIsGuest != 0 }
func (r *SessionSetupResponse) IsNull() bool  { return r.SessionFlags&SessionFlagIsNull != 0 }

// EmptyRequest encodes the 4-byte bodies shared by LOGOFF, TREE_DISCONNECT
// and ECHO.
func EmptyRequest() []byte {
	return encoding.NewWriter(4).U16(4).U16(0).Bytes()
}
