package smb

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ineffectivecoder/smbclient/pkg/debug"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

// OpenSpec describes a CREATE request. Zero Attributes means
// FILE_ATTRIBUTE_NORMAL.
type OpenSpec struct {
	Access      types.AccessMask
	Disposition types.CreateDisposition
	Options     types.CreateOptions
	Attributes  types.FileAttributes
}

// File represents an open file, directory or named pipe handle. ReadAt and
// WriteAt may be used concurrently; directory enumeration may not.
type File struct {
	tree       *Tree
	fileID     types.FileID
	name       string
	action     uint32
	size       uint64
	attributes types.FileAttributes
	created    uint64
	modified   uint64

	dirStarted bool

	closeOnce sync.Once
	closeErr  error
}

// NormalizePath converts a slash separated share-relative path to the
// backslash form SMB2 expects, without a leading separator.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "/", `\`)
	for strings.Contains(p, `\\`) {
		p = strings.ReplaceAll(p, `\\`, `\`)
	}
	return strings.Trim(p, `\`)
}

// Open issues CREATE for path on the share.
func (t *Tree) Open(ctx context.Context, path string, spec OpenSpec) (*File, error) {
	path = NormalizePath(path)
	req := types.NewCreateRequest(path, spec.Access, spec.Disposition, spec.Options)
	if spec.Attributes != 0 {
		req.FileAttributes = spec.Attributes
	}
	return t.create(ctx, path, req)
}

// OpenPipe opens a named pipe on an IPC$ tree for reading and writing.
func (t *Tree) OpenPipe(ctx context.Context, pipeName string) (*File, error) {
	if !t.IsPipe() {
		return nil, fmt.Errorf("%w: %s is not an IPC share", ErrInvalidParameter, t.shareName)
	}
	name := strings.TrimPrefix(NormalizePath(pipeName), `pipe\`)
	access := types.FileReadData | types.FileWriteData | types.FileReadEA |
		types.FileReadAttributes | types.ReadControl | types.Synchronize
	return t.create(ctx, name, types.NewCreatePipeRequest(name, access))
}

// OpenDirectory opens a directory handle suitable for ReadDir.
func (t *Tree) OpenDirectory(ctx context.Context, path string) (*File, error) {
	return t.Open(ctx, path, OpenSpec{
		Access:      types.FileReadData | types.FileReadAttributes | types.ReadControl | types.Synchronize,
		Disposition: types.FileOpen,
		Options:     types.FileDirectoryFile,
	})
}

func (t *Tree) create(ctx context.Context, path string, req *types.CreateRequest) (*File, error) {
	resp, err := t.call(ctx, &request{
		Command: types.CommandCreate,
		Body:    req.Marshal(),
	})
	if err != nil {
		return nil, fmt.Errorf("create %q failed: %w", path, err)
	}

	var createResp types.CreateResponse
	if err := createResp.Unmarshal(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to parse create response: %w", err)
	}

	debug.Debug("opened",
		debug.KeyShare, t.shareName,
		debug.KeyPath, path,
		"action", createResp.CreateAction)
	return &File{
		tree:       t,
		fileID:     createResp.FileID,
		name:       path,
		action:     createResp.CreateAction,
		size:       createResp.EndOfFile,
		attributes: createResp.FileAttributes,
		created:    createResp.CreationTime,
		modified:   createResp.LastWriteTime,
	}, nil
}

// ReadAt reads len(p) bytes at off, issuing as many READ requests as the
// negotiated limits require. It returns io.EOF when the end of file is
// reached before p is full.
func (f *File) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset", ErrInvalidParameter)
	}
	s := f.tree.session
	total := 0
	for total < len(p) {
		chunk := min(len(p)-total, s.chunkSize(s.neg.MaxReadSize))
		n, err := f.readChunk(ctx, p[total:total+chunk], uint64(off)+uint64(total))
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
		if n < chunk && f.tree.IsPipe() {
			break
		}
	}
	return total, nil
}

func (f *File) readChunk(ctx context.Context, p []byte, off uint64) (int, error) {
	req := &types.ReadRequest{FileID: f.fileID, Offset: off, Length: uint32(len(p))}
	resp, err := f.tree.call(ctx, &request{
		Command:     types.CommandRead,
		Body:        req.Marshal(),
		PayloadSize: len(p),
		Accept:      []types.NTStatus{types.StatusBufferOverflow},
	})
	if err != nil {
		if st, ok := StatusOf(err); ok && st == types.StatusEndOfFile {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("read %q failed: %w", f.name, err)
	}

	var readResp types.ReadResponse
	if err := readResp.Unmarshal(resp.Body); err != nil {
		return 0, fmt.Errorf("failed to parse read response: %w", err)
	}
	n := copy(p, readResp.Data)
	f.tree.session.config.Metrics.RecordBytes("read", n)
	return n, nil
}

// WriteAt writes p at off in chunks. A short count is returned with a nil
// error when the server accepts less than a full chunk.
func (f *File) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset", ErrInvalidParameter)
	}
	s := f.tree.session
	total := 0
	for total < len(p) {
		chunk := min(len(p)-total, s.chunkSize(s.neg.MaxWriteSize))
		req := &types.WriteRequest{
			FileID: f.fileID,
			Offset: uint64(off) + uint64(total),
			Data:   p[total : total+chunk],
		}
		resp, err := f.tree.call(ctx, &request{
			Command:     types.CommandWrite,
			Body:        req.Marshal(),
			PayloadSize: chunk,
		})
		if err != nil {
			return total, fmt.Errorf("write %q failed: %w", f.name, err)
		}

		var writeResp types.WriteResponse
		if err := writeResp.Unmarshal(resp.Body); err != nil {
			return total, fmt.Errorf("failed to parse write response: %w", err)
		}
		n := int(writeResp.Count)
		total += n
		s.config.Metrics.RecordBytes("write", n)
		if n < chunk {
			break
		}
	}
	return total, nil
}

// Transceive writes in to a message-mode pipe and returns its reply. When
// the reply exceeds the ioctl output limit the remainder is read with READ.
func (f *File) Transceive(ctx context.Context, in []byte, maxOut int) ([]byte, error) {
	req := &types.IoctlRequest{
		CtlCode:           types.FsctlPipeTransceive,
		FileID:            f.fileID,
		Input:             in,
		MaxOutputResponse: uint32(maxOut),
	}
	resp, err := f.tree.call(ctx, &request{
		Command:     types.CommandIoctl,
		Body:        req.Marshal(),
		PayloadSize: max(len(in), maxOut),
		Accept:      []types.NTStatus{types.StatusBufferOverflow},
	})
	if err != nil {
		return nil, fmt.Errorf("pipe transceive on %q failed: %w", f.name, err)
	}

	var ioResp types.IoctlResponse
	if err := ioResp.Unmarshal(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to parse ioctl response: %w", err)
	}
	out := ioResp.Output
	for status := resp.Header.Status; status == types.StatusBufferOverflow; {
		buf := make([]byte, maxOut)
		rresp, err := f.tree.call(ctx, &request{
			Command:     types.CommandRead,
			Body:        (&types.ReadRequest{FileID: f.fileID, Length: uint32(maxOut)}).Marshal(),
			PayloadSize: maxOut,
			Accept:      []types.NTStatus{types.StatusBufferOverflow},
		})
		if err != nil {
			return nil, fmt.Errorf("pipe read on %q failed: %w", f.name, err)
		}
		var rr types.ReadResponse
		if err := rr.Unmarshal(rresp.Body); err != nil {
			return nil, fmt.Errorf("failed to parse read response: %w", err)
		}
		n := copy(buf, rr.Data)
		out = append(out, buf[:n]...)
		status = rresp.Header.Status
	}
	return out, nil
}

// Flush asks the server to persist buffered writes.
func (f *File) Flush(ctx context.Context) error {
	_, err := f.tree.call(ctx, &request{
		Command: types.CommandFlush,
		Body:    types.MarshalFlushRequest(f.fileID),
	})
	if err != nil {
		return fmt.Errorf("flush %q failed: %w", f.name, err)
	}
	return nil
}

// Close closes the handle. Only the first call reaches the server; later
// calls return the first result.
func (f *File) Close(ctx context.Context) error {
	f.closeOnce.Do(func() {
		_, err := f.tree.call(ctx, &request{
			Command: types.CommandClose,
			Body:    types.MarshalCloseRequest(f.fileID, 0),
		})
		if err != nil {
			f.closeErr = fmt.Errorf("close %q failed: %w", f.name, err)
		}
	})
	return f.closeErr
}

// Name returns the share-relative path the file was opened with.
func (f *File) Name() string {
	return f.name
}

// Size returns the end of file reported at open time.
func (f *File) Size() int64 {
	return int64(f.size)
}

// IsDirectory returns true if this is a directory
func (f *File) IsDirectory() bool {
	return f.attributes&types.FileAttributeDirectory != 0
}

// FileID returns the SMB file ID
func (f *File) FileID() types.FileID {
	return f.fileID
}

// Attributes returns the file attributes
func (f *File) Attributes() types.FileAttributes {
	return f.attributes
}

// Created reports whether CREATE made a new file.
func (f *File) Created() bool {
	return f.action == types.FileCreated
}

// Tree returns the tree the file was opened on.
func (f *File) Tree() *Tree {
	return f.tree
}

// windowsEpochDiff is the number of 100ns intervals from 1601 to 1970.
const windowsEpochDiff = 116444736000000000

// TimeToFiletime converts Go time to Windows FILETIME
func TimeToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100 + windowsEpochDiff)
}

// FiletimeToTime converts Windows FILETIME to Go time
func FiletimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	return time.Unix(0, (int64(ft)-windowsEpochDiff)*100)
}
