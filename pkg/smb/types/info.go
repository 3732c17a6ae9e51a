package types

import (
	"github.com/ineffectivecoder/smbclient/internal/encoding"
)

// QUERY_INFO / SET_INFO InfoType values.
const (
	InfoTypeFile       uint8 = 0x01
	InfoTypeFilesystem uint8 = 0x02
	InfoTypeSecurity   uint8 = 0x03
)

// File information classes used with InfoTypeFile.
const (
	FileBasicInformation          uint8 = 4
	FileStandardInformation       uint8 = 5
	FileInternalInformation       uint8 = 6
	FileRenameInformation         uint8 = 10
	FileDispositionInformation    uint8 = 13
	FileAllInformation            uint8 = 18
	FileEndOfFileInformation      uint8 = 20
	FileNetworkOpenInformation    uint8 = 34
	FileFsFullSizeInformation     uint8 = 7
	FileFsAttributeInformation    uint8 = 5
	FilesystemPersistentACLs      uint32 = 0x00000008
	FilesystemSupportsObjectIDs   uint32 = 0x00010000
	FilesystemNamedStreamsSupport uint32 = 0x00040000
)

// Security information flags for InfoTypeSecurity AdditionalInformation.
const (
	OwnerSecurityInformation uint32 = 0x00000001
	GroupSecurityInformation uint32 = 0x00000002
	DACLSecurityInformation  uint32 = 0x00000004
	SACLSecurityInformation  uint32 = 0x00000008
)

type QueryInfoRequest struct {
	FileID         FileID
	InfoType       uint8
	InfoClass      uint8
	OutputSize     uint32
	AdditionalInfo uint32
}

func (r *QueryInfoRequest) Marshal() []byte {
	w := encoding.NewWriter(41)
	w.U16(41).U8(r.InfoType).U8(r.InfoClass).U32(r.OutputSize)
	w.U16(0).U16(0).U32(0).U32(r.AdditionalInfo).U32(0)
	r.FileID.put(w)
	w.U8(0)
	return w.Bytes()
}

type SetInfoRequest struct {
	FileID         FileID
	InfoType       uint8
	InfoClass      uint8
	AdditionalInfo uint32
	Buffer         []byte
}

func (r *SetInfoRequest) Marshal() []byte {
	w := encoding.NewWriter(32 + len(r.Buffer))
	w.U16(33).U8(r.InfoType).U8(r.InfoClass).U32(uint32(len(r.Buffer)))
	w.U16(SMB2HeaderSize + 32).U16(0).U32(r.AdditionalInfo)
	r.FileID.put(w)
	w.Raw(r.Buffer)
	return w.Bytes()
}

// BasicInfo is FILE_BASIC_INFORMATION. Zero time fields mean "leave
// unchanged" when sent in SET_INFO.
type BasicInfo struct {
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	FileAttributes FileAttributes
}

func (b *BasicInfo) Marshal() []byte {
	w := encoding.NewWriter(40)
	w.U64(b.CreationTime).U64(b.LastAccessTime).U64(b.LastWriteTime).U64(b.ChangeTime)
	w.U32(uint32(b.FileAttributes)).U32(0)
	return w.Bytes()
}

func (b *BasicInfo) Unmarshal(buf []byte) error {
	if len(buf) < 36 {
		return ErrBufferTooSmall
	}
	rd := encoding.NewReader(buf)
	b.CreationTime = rd.U64()
	b.LastAccessTime = rd.U64()
	b.LastWriteTime = rd.U64()
	b.ChangeTime = rd.U64()
	b.FileAttributes = FileAttributes(rd.U32())
	return rd.Err()
}

// AllInfo is the fixed prefix of FILE_ALL_INFORMATION: basic, standard and
// internal information back to back. The trailing name is not decoded.
type AllInfo struct {
	Basic       BasicInfo
	Standard    StandardInfo
	IndexNumber uint64
}

func (a *AllInfo) Unmarshal(buf []byte) error {
	if len(buf) < 72 {
		return ErrBufferTooSmall
	}
	if err := a.Basic.Unmarshal(buf[0:40]); err != nil {
		return err
	}
	if err := a.Standard.Unmarshal(buf[40:64]); err != nil {
		return err
	}
	a.IndexNumber = encoding.Uint64LE(buf[64:72])
	return nil
}

// NetworkOpenInfo is FILE_NETWORK_OPEN_INFORMATION, the cheapest class that
// carries times, sizes and attributes together.
type NetworkOpenInfo struct {
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	AllocationSize uint64
	EndOfFile      uint64
	FileAttributes FileAttributes
}

func (n *NetworkOpenInfo) Unmarshal(buf []byte) error {
	if len(buf) < 52 {
		return ErrBufferTooSmall
	}
	rd := encoding.NewReader(buf)
	n.CreationTime = rd.U64()
	n.LastAccessTime = rd.U64()
	n.LastWriteTime = rd.U64()
	n.ChangeTime = rd.U64()
	n.AllocationSize = rd.U64()
	n.EndOfFile = rd.U64()
	n.FileAttributes = FileAttributes(rd.U32())
	return rd.Err()
}

// StandardInfo is FILE_STANDARD_INFORMATION.
type StandardInfo struct {
	AllocationSize uint64
	EndOfFile      uint64
	NumberOfLinks  uint32
	DeletePending  bool
	Directory      bool
}

func (s *StandardInfo) Unmarshal(buf []byte) error {
	if len(buf) < 22 {
		return ErrBufferTooSmall
	}
	rd := encoding.NewReader(buf)
	s.AllocationSize = rd.U64()
	s.EndOfFile = rd.U64()
	s.NumberOfLinks = rd.U32()
	s.DeletePending = rd.U8() != 0
	s.Directory = rd.U8() != 0
	return rd.Err()
}

// MarshalRenameInfo encodes FILE_RENAME_INFORMATION_TYPE_2 for SMB2.
// target is the share-relative path of the new name.
func MarshalRenameInfo(target string, replace bool) []byte {
	name := encoding.ToUTF16LE(target)
	w := encoding.NewWriter(20 + len(name))
	if replace {
		w.U8(1)
	} else {
		w.U8(0)
	}
	w.Zero(7).U64(0).U32(uint32(len(name))).Raw(name)
	return w.Bytes()
}

// MarshalDispositionInfo encodes FILE_DISPOSITION_INFORMATION.
func MarshalDispositionInfo(deletePending bool) []byte {
	if deletePending {
		return []byte{1}
	}
	return []byte{0}
}

// MarshalEndOfFileInfo encodes FILE_END_OF_FILE_INFORMATION.
func MarshalEndOfFileInfo(size uint64) []byte {
	return encoding.NewWriter(8).U64(size).Bytes()
}

// InternalInfo returns the 64-bit file index from FILE_INTERNAL_INFORMATION.
func InternalInfo(buf []byte) (uint64, error) {
	if len(buf) < 8 {
		return 0, ErrBufferTooSmall
	}
	return encoding.Uint64LE(buf), nil
}

// FsAttributeInfo is FILE_FS_ATTRIBUTE_INFORMATION.
type FsAttributeInfo struct {
	Attributes     uint32
	MaxNameLength  uint32
	FilesystemName string
}

func (f *FsAttributeInfo) Unmarshal(buf []byte) error {
	if len(buf) < 12 {
		return ErrBufferTooSmall
	}
	rd := encoding.NewReader(buf)
	f.Attributes = rd.U32()
	f.MaxNameLength = rd.U32()
	n := int(rd.U32())
	name := rd.Bytes(n)
	if rd.Err() != nil {
		return ErrBufferTooSmall
	}
	f.FilesystemName = encoding.FromUTF16LE(name)
	return nil
}
