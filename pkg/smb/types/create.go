package types

import "github.com/ineffectivecoder/smbclient/internal/encoding"

// FileID is the 16-byte handle returned by CREATE.
type FileID struct {
	Persistent uint64
	Volatile   uint64
}

func (f FileID) IsZero() bool { return f.Persistent == 0 && f.Volatile == 0 }

func (f FileID) put(w *encoding.Writer) { w.U64(f.Persistent).U64(f.Volatile) }

func readFileID(r *encoding.Reader) FileID {
	return FileID{Persistent: r.U64(), Volatile: r.U64()}
}

const (
	ImpersonationImpersonation uint32 = 2

	OplockLevelNone uint8 = 0x00
)

// CreateAction values reported in the CREATE response.
const (
	FileSuperseded  uint32 = 0
	FileOpened      uint32 = 1
	FileCreated     uint32 = 2
	FileOverwritten uint32 = 3
)

// CreateRequest is SMB2 CREATE without create contexts.
type CreateRequest struct {
	DesiredAccess     AccessMask
	FileAttributes    FileAttributes
	ShareAccess       ShareAccess
	CreateDisposition CreateDisposition
	CreateOptions     CreateOptions
	Name              string
}

func NewCreateRequest(name string, access AccessMask, disposition CreateDisposition, options CreateOptions) *CreateRequest {
	return &CreateRequest{
		DesiredAccess:     access,
		FileAttributes:    FileAttributeNormal,
		ShareAccess:       FileShareAll,
		CreateDisposition: disposition,
		CreateOptions:     options,
		Name:              name,
	}
}

// NewCreatePipeRequest opens an existing named pipe on IPC$.
func NewCreatePipeRequest(name string, access AccessMask) *CreateRequest {
	return &CreateRequest{
		DesiredAccess:     access,
		ShareAccess:       FileShareRead | FileShareWrite,
		CreateDisposition: FileOpen,
		Name:              name,
	}
}

func (r *CreateRequest) Marshal() []byte {
	name := encoding.ToUTF16LE(r.Name)
	w := encoding.NewWriter(56 + len(name) + 1)
	w.U16(57).U8(0).U8(OplockLevelNone).U32(ImpersonationImpersonation)
	w.U64(0).U64(0)
	w.U32(uint32(r.DesiredAccess)).U32(uint32(r.FileAttributes)).U32(uint32(r.ShareAccess))
	w.U32(uint32(r.CreateDisposition)).U32(uint32(r.CreateOptions))
	w.U16(SMB2HeaderSize + 56).U16(uint16(len(name)))
	w.U32(0).U32(0)
	w.Raw(name)
	if len(name) == 0 {
		w.U8(0)
	}
	return w.Bytes()
}

// CreateResponse is the fixed part of the CREATE response.
type CreateResponse struct {
	OplockLevel    uint8
	CreateAction   uint32
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	AllocationSize uint64
	EndOfFile      uint64
	FileAttributes FileAttributes
	FileID         FileID
}

func (r *CreateResponse) Unmarshal(buf []byte) error {
	if len(buf) < 88 {
		return ErrBufferTooSmall
	}
	rd := encoding.NewReader(buf)
	rd.Skip(2)
	r.OplockLevel = rd.U8()
	rd.Skip(1)
	r.CreateAction = rd.U32()
	r.CreationTime = rd.U64()
	r.LastAccessTime = rd.U64()
	r.LastWriteTime = rd.U64()
	r.ChangeTime = rd.U64()
	r.AllocationSize = rd.U64()
	r.EndOfFile = rd.U64()
	r.FileAttributes = FileAttributes(rd.U32())
	rd.Skip(4)
	r.FileID = readFileID(rd)
	return rd.Err()
}

// CloseFlagPostQueryAttrib asks the server to return attributes on CLOSE.
const CloseFlagPostQueryAttrib uint16 = 0x0001

func MarshalCloseRequest(id FileID, flags uint16) []byte {
	w := encoding.NewWriter(24)
	w.U16(24).U16(flags).U32(0)
	id.put(w)
	return w.Bytes()
}

// MarshalFlushRequest encodes FLUSH for id.
func MarshalFlushRequest(id FileID) []byte {
	w := encoding.NewWriter(24)
	w.U16(24).U16(0).U32(0)
	id.put(w)
	return w.Bytes()
}
