package smb

import (
	"context"
	"fmt"
	"time"

	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

// FileInfo describes a file or directory, either from QUERY_INFO on an
// open handle or from a directory listing.
type FileInfo struct {
	Name           string
	Size           int64
	AllocationSize int64
	Attributes     types.FileAttributes
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	FileIndex      uint64
	Links          uint32
	IsDir          bool
}

// maxInfoOutput bounds QUERY_INFO replies.
const maxInfoOutput = 64 * 1024

// queryInfo issues QUERY_INFO and returns the output buffer.
func (f *File) queryInfo(ctx context.Context, infoType, class uint8, additional uint32) ([]byte, error) {
	req := &types.QueryInfoRequest{
		FileID:         f.fileID,
		InfoType:       infoType,
		InfoClass:      class,
		OutputSize:     maxInfoOutput,
		AdditionalInfo: additional,
	}
	resp, err := f.tree.call(ctx, &request{
		Command:     types.CommandQueryInfo,
		Body:        req.Marshal(),
		PayloadSize: maxInfoOutput,
	})
	if err != nil {
		return nil, err
	}
	var out types.OutputBufferResponse
	if err := out.Unmarshal(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to parse query info response: %w", err)
	}
	return out.Buffer, nil
}

// setInfo issues SET_INFO with buf as the information buffer.
func (f *File) setInfo(ctx context.Context, infoType, class uint8, additional uint32, buf []byte) error {
	req := &types.SetInfoRequest{
		FileID:         f.fileID,
		InfoType:       infoType,
		InfoClass:      class,
		AdditionalInfo: additional,
		Buffer:         buf,
	}
	_, err := f.tree.call(ctx, &request{
		Command: types.CommandSetInfo,
		Body:    req.Marshal(),
	})
	return err
}

// Stat queries FILE_ALL_INFORMATION.
func (f *File) Stat(ctx context.Context) (*FileInfo, error) {
	buf, err := f.queryInfo(ctx, types.InfoTypeFile, types.FileAllInformation, 0)
	if err != nil {
		return nil, fmt.Errorf("stat %q failed: %w", f.name, err)
	}
	var all types.AllInfo
	if err := all.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("failed to parse file information: %w", err)
	}
	return &FileInfo{
		Name:           f.name,
		Size:           int64(all.Standard.EndOfFile),
		AllocationSize: int64(all.Standard.AllocationSize),
		Attributes:     all.Basic.FileAttributes,
		CreationTime:   FiletimeToTime(all.Basic.CreationTime),
		LastAccessTime: FiletimeToTime(all.Basic.LastAccessTime),
		LastWriteTime:  FiletimeToTime(all.Basic.LastWriteTime),
		ChangeTime:     FiletimeToTime(all.Basic.ChangeTime),
		FileIndex:      all.IndexNumber,
		Links:          all.Standard.NumberOfLinks,
		IsDir:          all.Standard.Directory,
	}, nil
}

// SetBasicInfo updates times and attributes. Zero fields are left
// unchanged by the server.
func (f *File) SetBasicInfo(ctx context.Context, info *types.BasicInfo) error {
	if err := f.setInfo(ctx, types.InfoTypeFile, types.FileBasicInformation, 0, info.Marshal()); err != nil {
		return fmt.Errorf("set basic info on %q failed: %w", f.name, err)
	}
	return nil
}

// SetTimes sets the access and write times, leaving the rest unchanged.
func (f *File) SetTimes(ctx context.Context, atime, mtime time.Time) error {
	return f.SetBasicInfo(ctx, &types.BasicInfo{
		LastAccessTime: TimeToFiletime(atime),
		LastWriteTime:  TimeToFiletime(mtime),
	})
}

// Rename moves the open file to target, a path relative to the same share.
// The handle must have been opened with DELETE access.
func (f *File) Rename(ctx context.Context, target string, replace bool) error {
	target = NormalizePath(target)
	if err := f.setInfo(ctx, types.InfoTypeFile, types.FileRenameInformation, 0,
		types.MarshalRenameInfo(target, replace)); err != nil {
		return fmt.Errorf("rename %q to %q failed: %w", f.name, target, err)
	}
	f.name = target
	return nil
}

// Truncate sets the end of file.
func (f *File) Truncate(ctx context.Context, size int64) error {
	if size < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidParameter)
	}
	if err := f.setInfo(ctx, types.InfoTypeFile, types.FileEndOfFileInformation, 0,
		types.MarshalEndOfFileInfo(uint64(size))); err != nil {
		return fmt.Errorf("truncate %q failed: %w", f.name, err)
	}
	f.size = uint64(size)
	return nil
}

// SetDeleteOnClose marks the file for deletion when the last handle closes.
func (f *File) SetDeleteOnClose(ctx context.Context) error {
	if err := f.setInfo(ctx, types.InfoTypeFile, types.FileDispositionInformation, 0,
		types.MarshalDispositionInfo(true)); err != nil {
		return fmt.Errorf("delete %q failed: %w", f.name, err)
	}
	return nil
}

// SecurityDescriptor returns the self-relative security descriptor
// restricted to the parts selected by additional (OWNER, GROUP, DACL...).
func (f *File) SecurityDescriptor(ctx context.Context, additional uint32) ([]byte, error) {
	buf, err := f.queryInfo(ctx, types.InfoTypeSecurity, 0, additional)
	if err != nil {
		return nil, fmt.Errorf("query security on %q failed: %w", f.name, err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("empty security descriptor for %q", f.name)
	}
	return buf, nil
}

// SetSecurityDescriptor writes the parts of sd selected by additional.
// The handle needs WRITE_DAC and/or WRITE_OWNER.
func (f *File) SetSecurityDescriptor(ctx context.Context, additional uint32, sd []byte) error {
	if err := f.setInfo(ctx, types.InfoTypeSecurity, 0, additional, sd); err != nil {
		return fmt.Errorf("set security on %q failed: %w", f.name, err)
	}
	return nil
}

// FsAttributes returns FILE_FS_ATTRIBUTE_INFORMATION for the volume.
func (f *File) FsAttributes(ctx context.Context) (*types.FsAttributeInfo, error) {
	buf, err := f.queryInfo(ctx, types.InfoTypeFilesystem, types.FileFsAttributeInformation, 0)
	if err != nil {
		return nil, fmt.Errorf("query filesystem attributes failed: %w", err)
	}
	var info types.FsAttributeInfo
	if err := info.Unmarshal(buf); err != nil {
		return nil, err
	}
	return &info, nil
}
