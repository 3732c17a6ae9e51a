package types

import (
	"testing"

	"github.com/ineffectivecoder/smbclient/internal/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader(CommandCreate, 42)
	h.TreeID = 7
	h.SessionID = 0x1122334455667788
	h.Flags = FlagsSigned
	buf := h.Marshal()
	require.Len(t, buf, SMB2HeaderSize)

	var got Header
	require.NoError(t, got.Unmarshal(buf))
	assert.Equal(t, CommandCreate, got.Command)
	assert.Equal(t, uint64(42), got.MessageID)
	assert.Equal(t, uint32(7), got.TreeID)
	assert.Equal(t, uint64(0x1122334455667788), got.SessionID)
	assert.True(t, got.IsSigned())
	assert.False(t, got.IsResponse())
}

func TestHeaderRejectsBadProtocol(t *testing.T) {
	buf := NewHeader(CommandEcho, 1).Marshal()
	buf[0] = 0xFF
	var h Header
	assert.Error(t, h.Unmarshal(buf))
	assert.ErrorIs(t, h.Unmarshal(buf[:10]), ErrBufferTooSmall)
}

func TestCreateRequestLayout(t *testing.T) {
	req := NewCreateRequest(`dir\file.txt`, GenericRead, FileOpen, FileNonDirectoryFile)
	buf := req.Marshal()
	assert.Equal(t, uint16(57), encoding.Uint16LE(buf[0:2]))
	assert.Equal(t, uint16(120), encoding.Uint16LE(buf[44:46]))
	assert.Equal(t, uint16(len(`dir\file.txt`)*2), encoding.Uint16LE(buf[46:48]))
	assert.Equal(t, `dir\file.txt`, encoding.FromUTF16LE(buf[56:]))

	// Empty names still carry one buffer byte.
	assert.Len(t, NewCreateRequest("", GenericRead, FileOpen, 0).Marshal(), 57)
}

func buildDirEntry(name string, attrs FileAttributes, size uint64, last bool) []byte {
	n := encoding.ToUTF16LE(name)
	w := encoding.NewWriter(104 + len(n))
	w.U32(0).U32(0)
	w.U64(1).U64(2).U64(3).U64(4)
	w.U64(size).U64(size)
	w.U32(uint32(attrs)).U32(uint32(len(n))).U32(0)
	w.U8(0).U8(0).Zero(24)
	w.U16(0).U64(99)
	w.Raw(n)
	w.Align(8)
	b := w.Bytes()
	if !last {
		encoding.PutUint32LE(b[0:4], uint32(len(b)))
	}
	return b
}

func TestParseDirEntries(t *testing.T) {
	data := append(buildDirEntry(".", FileAttributeDirectory, 0, false),
		buildDirEntry("report.txt", FileAttributeArchive, 1234, true)...)

	entries, err := ParseDirEntries(FileIdBothDirectoryInformation, data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ".", entries[0].Name)
	assert.True(t, entries[0].IsDir())
	assert.Equal(t, "report.txt", entries[1].Name)
	assert.Equal(t, uint64(1234), entries[1].EndOfFile)
	assert.Equal(t, uint64(99), entries[1].FileID)
	assert.False(t, entries[1].IsDir())
}

func TestParseDirEntriesTruncated(t *testing.T) {
	data := buildDirEntry("name", 0, 0, true)
	_, err := ParseDirEntries(FileIdBothDirectoryInformation, data[:50])
	assert.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestRenameInfo(t *testing.T) {
	buf := MarshalRenameInfo(`a\b.txt`, true)
	assert.Equal(t, byte(1), buf[0])
	assert.Equal(t, uint32(14), encoding.Uint32LE(buf[16:20]))
	assert.Equal(t, `a\b.txt`, encoding.FromUTF16LE(buf[20:]))
}

func TestOutputBufferResponse(t *testing.T) {
	w := encoding.NewWriter(16)
	w.U16(9).U16(SMB2HeaderSize + 8).U32(4).Raw([]byte{1, 2, 3, 4})
	var r OutputBufferResponse
	require.NoError(t, r.Unmarshal(w.Bytes()))
	assert.Equal(t, []byte{1, 2, 3, 4}, r.Buffer)
}

func TestNetworkOpenInfo(t *testing.T) {
	w := encoding.NewWriter(56)
	w.U64(10).U64(20).U64(30).U64(40).U64(4096).U64(17).U32(uint32(FileAttributeDirectory)).U32(0)
	var n NetworkOpenInfo
	require.NoError(t, n.Unmarshal(w.Bytes()))
	assert.Equal(t, uint64(17), n.EndOfFile)
	assert.Equal(t, uint64(30), n.LastWriteTime)
	assert.Equal(t, FileAttributeDirectory, n.FileAttributes)
}

func TestStatusClasses(t *testing.T) {
	assert.True(t, StatusSuccess.IsSuccess())
	assert.True(t, StatusBufferOverflow.IsSuccess())
	assert.False(t, StatusAccessDenied.IsSuccess())
	assert.True(t, StatusAccessDenied.IsError())
	assert.False(t, StatusNoMoreFiles.IsError())
	assert.Equal(t, "QUERY_INFO", CommandQueryInfo.String())
}

func TestAllInfo(t *testing.T) {
	w := encoding.NewWriter(100)
	w.U64(10).U64(20).U64(30).U64(40).U32(uint32(FileAttributeDirectory)).U32(0)
	w.U64(4096).U64(0).U32(1).U8(0).U8(1).U16(0)
	w.U64(0xABCDEF)
	w.Zero(28)

	var info AllInfo
	require.NoError(t, info.Unmarshal(w.Bytes()))
	assert.Equal(t, uint64(30), info.Basic.LastWriteTime)
	assert.Equal(t, FileAttributeDirectory, info.Basic.FileAttributes)
	assert.True(t, info.Standard.Directory)
	assert.Equal(t, uint32(1), info.Standard.NumberOfLinks)
	assert.Equal(t, uint64(0xABCDEF), info.IndexNumber)

	assert.ErrorIs(t, info.Unmarshal(make([]byte, 40)), ErrBufferTooSmall)
}

func TestIoctlTransceive(t *testing.T) {
	id := FileID{Persistent: 1, Volatile: 2}
	req := &IoctlRequest{CtlCode: FsctlPipeTransceive, FileID: id, Input: []byte{1, 2, 3}, MaxOutputResponse: 4280}
	buf := req.Marshal()
	require.Len(t, buf, 59)
	assert.Equal(t, uint16(57), encoding.Uint16LE(buf[0:2]))
	assert.Equal(t, FsctlPipeTransceive, encoding.Uint32LE(buf[4:8]))
	assert.Equal(t, uint32(SMB2HeaderSize+56), encoding.Uint32LE(buf[24:28]))
	assert.Equal(t, uint32(3), encoding.Uint32LE(buf[28:32]))
	assert.Equal(t, uint32(4280), encoding.Uint32LE(buf[44:48]))
	assert.Equal(t, []byte{1, 2, 3}, buf[56:])

	w := encoding.NewWriter(64)
	w.U16(49).U16(0).U32(FsctlPipeTransceive).Zero(16)
	w.U32(0).U32(0).U32(SMB2HeaderSize + 48).U32(4).U32(0).U32(0)
	w.Raw([]byte("resp"))
	var resp IoctlResponse
	require.NoError(t, resp.Unmarshal(w.Bytes()))
	assert.Equal(t, []byte("resp"), resp.Output)
}
