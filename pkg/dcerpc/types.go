// Package dcerpc provides connection-oriented DCE/RPC over SMB named pipes.
package dcerpc

import (
	"github.com/ineffectivecoder/smbclient/internal/encoding"
)

// RPC Protocol versions
const (
	RPCVersionMajor = 5
	RPCVersionMinor = 0
)

// PacketType is the PTYPE field of the common header.
type PacketType uint8

const (
	PacketTypeRequest      PacketType = 0
	PacketTypeResponse     PacketType = 2
	PacketTypeFault        PacketType = 3
	PacketTypeBind         PacketType = 11
	PacketTypeBindAck      PacketType = 12
	PacketTypeBindNak      PacketType = 13
	PacketTypeAlterContext PacketType = 14
)

// Packet flags
const (
	PacketFlagFirstFrag  uint8 = 0x01
	PacketFlagLastFrag   uint8 = 0x02
	PacketFlagDidNotExec uint8 = 0x20
)

// NDRDataRepresentation is little-endian, ASCII, IEEE float.
const NDRDataRepresentation = 0x00000010

// CommonHeader represents the common RPC header (16 bytes)
type CommonHeader struct {
	Version            uint8
	VersionMinor       uint8
	PacketType         PacketType
	PacketFlags        uint8
	DataRepresentation uint32
	FragLength         uint16
	AuthLength         uint16
	CallID             uint32
}

// Marshal serializes the common header
func (h *CommonHeader) Marshal() []byte {
	w := encoding.NewWriter(16)
	w.U8(h.Version).U8(h.VersionMinor).U8(uint8(h.PacketType)).U8(h.PacketFlags)
	w.U32(h.DataRepresentation).U16(h.FragLength).U16(h.AuthLength).U32(h.CallID)
	return w.Bytes()
}

// Unmarshal deserializes a common header
func (h *CommonHeader) Unmarshal(buf []byte) error {
	if len(buf) < 16 {
		return ErrBufferTooSmall
	}
	h.Version = buf[0]
	h.VersionMinor = buf[1]
	h.PacketType = PacketType(buf[2])
	h.PacketFlags = buf[3]
	h.DataRepresentation = encoding.Uint32LE(buf[4:8])
	h.FragLength = encoding.Uint16LE(buf[8:10])
	h.AuthLength = encoding.Uint16LE(buf[10:12])
	h.CallID = encoding.Uint32LE(buf[12:16])
	return nil
}
