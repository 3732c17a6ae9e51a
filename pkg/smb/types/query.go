package types

import "github.com/ineffectivecoder/smbclient/internal/encoding"

// Directory information classes.
const (
	FileDirectoryInformation       uint8 = 0x01
	FileFullDirectoryInformation   uint8 = 0x02
	FileBothDirectoryInformation   uint8 = 0x03
	FileIdBothDirectoryInformation uint8 = 0x25
)

const (
	QueryDirectoryRestart     uint8 = 0x01
	QueryDirectorySingleEntry uint8 = 0x02
	QueryDirectoryReopen      uint8 = 0x10
)

// DefaultQueryDirectoryBuffer is the output buffer size requested per
// QUERY_DIRECTORY round trip.
const DefaultQueryDirectoryBuffer = 64 * 1024

type QueryDirectoryRequest struct {
	FileID     FileID
	InfoClass  uint8
	Flags      uint8
	Pattern    string
	OutputSize uint32
}

func (r *QueryDirectoryRequest) Marshal() []byte {
	name := encoding.ToUTF16LE(r.Pattern)
	w := encoding.NewWriter(32 + len(name) + 1)
	w.U16(33).U8(r.InfoClass).U8(r.Flags).U32(0)
	r.FileID.put(w)
	w.U16(SMB2HeaderSize + 32).U16(uint16(len(name))).U32(r.OutputSize)
	w.Raw(name)
	if len(name) == 0 {
		w.U8(0)
	}
	return w.Bytes()
}

// QueryDirectoryResponse and QueryInfoResponse share the same layout.
type OutputBufferResponse struct {
	Buffer []byte
}

func (r *OutputBufferResponse) Unmarshal(buf []byte) error {
	if len(buf) < 8 {
		return ErrBufferTooSmall
	}
	off := encoding.Uint16LE(buf[2:4])
	n := encoding.Uint32LE(buf[4:8])
	r.Buffer = bufferAt(buf, off, n)
	if n > 0 && r.Buffer == nil {
		return ErrBufferTooSmall
	}
	return nil
}

// DirEntry is one FILE_ID_BOTH_DIR_INFORMATION (or FILE_BOTH_DIR_INFORMATION)
// record.
type DirEntry struct {
	FileIndex      uint32
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	EndOfFile      uint64
	AllocationSize uint64
	FileAttributes FileAttributes
	ShortName      string
	FileID         uint64
	Name           string
}

func (e *DirEntry) IsDir() bool { return e.FileAttributes&FileAttributeDirectory != 0 }

// ParseDirEntries walks a NextEntryOffset-chained buffer of the given class.
func ParseDirEntries(class uint8, data []byte) ([]DirEntry, error) {
	fixed := 94
	if class == FileIdBothDirectoryInformation {
		fixed = 104
	}
	var out []DirEntry
	for off := 0; off < len(data); {
		rec, ok := encoding.Slice(data, off, fixed)
		if !ok {
			return out, ErrBufferTooSmall
		}
		rd := encoding.NewReader(rec)
		next := rd.U32()
		e := DirEntry{FileIndex: rd.U32()}
		e.CreationTime = rd.U64()
		e.LastAccessTime = rd.U64()
		e.LastWriteTime = rd.U64()
		e.ChangeTime = rd.U64()
		e.EndOfFile = rd.U64()
		e.AllocationSize = rd.U64()
		e.FileAttributes = FileAttributes(rd.U32())
		nameLen := int(rd.U32())
		rd.Skip(4)
		shortLen := int(rd.U8())
		rd.Skip(1)
		short := rd.Bytes(24)
		if shortLen <= 24 {
			e.ShortName = encoding.FromUTF16LE(short[:shortLen])
		}
		if class == FileIdBothDirectoryInformation {
			rd.Skip(2)
			e.FileID = rd.U64()
		}
		name, ok := encoding.Slice(data, off+fixed, nameLen)
		if !ok {
			return out, ErrBufferTooSmall
		}
		e.Name = encoding.FromUTF16LE(name)
		out = append(out, e)
		if next == 0 {
			break
		}
		off += int(next)
	}
	return out, nil
}
