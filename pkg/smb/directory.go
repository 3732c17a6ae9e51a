package smb

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

// ReadDir returns the next batch of entries from an open directory handle.
// The first call starts the enumeration with pattern ("*" when empty);
// io.EOF is returned once the server reports no more files. "." and ".."
// are returned as the server sends them.
func (f *File) ReadDir(ctx context.Context, pattern string) ([]FileInfo, error) {
	req := &types.QueryDirectoryRequest{
		FileID:     f.fileID,
		InfoClass:  types.FileIdBothDirectoryInformation,
		OutputSize: types.DefaultQueryDirectoryBuffer,
	}
	if !f.dirStarted {
		if pattern == "" {
			pattern = "*"
		}
		req.Pattern = pattern
		req.Flags = types.QueryDirectoryRestart
	}

	resp, err := f.tree.call(ctx, &request{
		Command:     types.CommandQueryDirectory,
		Body:        req.Marshal(),
		PayloadSize: int(req.OutputSize),
		Accept:      []types.NTStatus{types.StatusNoMoreFiles},
	})
	if err != nil {
		if st, ok := StatusOf(err); ok && st == types.StatusNoSuchFile && !f.dirStarted {
			// empty match on the first query
			f.dirStarted = true
			return nil, io.EOF
		}
		return nil, fmt.Errorf("query directory %q failed: %w", f.name, err)
	}
	f.dirStarted = true
	if resp.Header.Status == types.StatusNoMoreFiles {
		return nil, io.EOF
	}

	var out types.OutputBufferResponse
	if err := out.Unmarshal(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to parse query directory response: %w", err)
	}
	entries, err := types.ParseDirEntries(types.FileIdBothDirectoryInformation, out.Buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to parse directory entries: %w", err)
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, dirEntryInfo(e))
	}
	return infos, nil
}

func dirEntryInfo(e types.DirEntry) FileInfo {
	return FileInfo{
		Name:           e.Name,
		Size:           int64(e.EndOfFile),
		AllocationSize: int64(e.AllocationSize),
		IsDir:          e.IsDir(),
		Attributes:     e.FileAttributes,
		CreationTime:   FiletimeToTime(e.CreationTime),
		LastAccessTime: FiletimeToTime(e.LastAccessTime),
		LastWriteTime:  FiletimeToTime(e.LastWriteTime),
		ChangeTime:     FiletimeToTime(e.ChangeTime),
		FileIndex:      e.FileID,
	}
}

// ListDirectory lists every entry of path, including "." and "..".
func (t *Tree) ListDirectory(ctx context.Context, path string) ([]FileInfo, error) {
	dir, err := t.OpenDirectory(ctx, path)
	if err != nil {
		return nil, err
	}
	defer dir.Close(ctx)

	var all []FileInfo
	for {
		batch, err := dir.ReadDir(ctx, "*")
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return all, err
		}
		all = append(all, batch...)
	}
}

// Mkdir creates a directory
func (t *Tree) Mkdir(ctx context.Context, path string) error {
	f, err := t.Open(ctx, path, OpenSpec{
		Access:      types.FileReadAttributes | types.Synchronize,
		Disposition: types.FileCreate,
		Options:     types.FileDirectoryFile,
		Attributes:  types.FileAttributeDirectory,
	})
	if err != nil {
		return err
	}
	return f.Close(ctx)
}

// Rmdir removes an empty directory
func (t *Tree) Rmdir(ctx context.Context, path string) error {
	return t.remove(ctx, path, types.FileDirectoryFile)
}

// Remove deletes a file
func (t *Tree) Remove(ctx context.Context, path string) error {
	return t.remove(ctx, path, types.FileNonDirectoryFile)
}

// remove opens path with DELETE_ON_CLOSE; the server deletes it when the
// handle is closed. Non-empty directories fail at CREATE time or at CLOSE
// with STATUS_DIRECTORY_NOT_EMPTY.
func (t *Tree) remove(ctx context.Context, path string, kind types.CreateOptions) error {
	f, err := t.Open(ctx, path, OpenSpec{
		Access:      types.Delete | types.FileReadAttributes,
		Disposition: types.FileOpen,
		Options:     kind | types.FileDeleteOnClose,
	})
	if err != nil {
		return err
	}
	return f.Close(ctx)
}
