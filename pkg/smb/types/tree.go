package types

import "github.com/ineffectivecoder/smbclient/internal/encoding"

// TreeConnectRequest targets a UNC path (\\server\share).
type TreeConnectRequest struct {
	Path []byte
}

func NewTreeConnectRequest(unc string) *TreeConnectRequest {
	return &TreeConnectRequest{Path: encoding.ToUTF16LE(unc)}
}

func (r *TreeConnectRequest) Marshal() []byte {
	w := encoding.NewWriter(8 + len(r.Path))
	w.U16(9).U16(0).U16(SMB2HeaderSize + 8).U16(uint16(len(r.Path)))
	w.Raw(r.Path)
	return w.Bytes()
}

type TreeConnectResponse struct {
	ShareType     ShareType
	ShareFlags    uint32
	Capabilities  uint32
	MaximalAccess AccessMask
}

func (r *TreeConnectResponse) Unmarshal(buf []byte) error {
	if len(buf) < 16 {
		return ErrBufferTooSmall
	}
	rd := encoding.NewReader(buf)
	if rd.U16() != 16 {
		return errBadStructureSize
	}
	r.ShareType = ShareType(rd.U8())
	rd.Skip(1)
	r.ShareFlags = rd.U32()
	r.Capabilities = rd.U32()
	r.MaximalAccess = AccessMask(rd.U32())
	return rd.Err()
}
