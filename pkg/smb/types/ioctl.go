package types

import "github.com/ineffectivecoder/smbclient/internal/encoding"

// FSCTL codes
const (
	FsctlPipeTransceive uint32 = 0x0011C017
	FsctlPipeWait       uint32 = 0x00110018
)

// ioctlIsFsctl marks the request as an FSCTL rather than a device IOCTL.
const ioctlIsFsctl uint32 = 0x00000001

// IoctlRequest is SMB2 IOCTL with the input inline.
type IoctlRequest struct {
	CtlCode           uint32
	FileID            FileID
	Input             []byte
	MaxOutputResponse uint32
}

func (r *IoctlRequest) Marshal() []byte {
	w := encoding.NewWriter(56 + len(r.Input))
	w.U16(57).U16(0).U32(r.CtlCode)
	r.FileID.put(w)
	inputOff := uint32(0)
	if len(r.Input) > 0 {
		inputOff = SMB2HeaderSize + 56
	}
	w.U32(inputOff).U32(uint32(len(r.Input))).U32(0)
	w.U32(0).U32(0).U32(r.MaxOutputResponse)
	w.U32(ioctlIsFsctl).U32(0)
	w.Raw(r.Input)
	return w.Bytes()
}

// IoctlResponse holds the output buffer of an IOCTL response.
type IoctlResponse struct {
	CtlCode uint32
	Output  []byte
}

func (r *IoctlResponse) Unmarshal(buf []byte) error {
	if len(buf) < 48 {
		return ErrBufferTooSmall
	}
	rd := encoding.NewReader(buf)
	if rd.U16() != 49 {
		return errBadStructureSize
	}
	rd.Skip(2)
	r.CtlCode = rd.U32()
	rd.Skip(16 + 8)
	outOff := rd.U32()
	outLen := rd.U32()
	if err := rd.Err(); err != nil {
		return err
	}
	if outLen == 0 {
		r.Output = nil
		return nil
	}
	b, ok := encoding.Slice(buf, int(outOff)-SMB2HeaderSize, int(outLen))
	if !ok {
		return ErrBufferTooSmall
	}
	r.Output = append([]byte(nil), b...)
	return nil
}
