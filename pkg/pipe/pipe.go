// Package pipe provides named pipe operations over SMB.
package pipe

import (
	"context"
	"fmt"

	"github.com/ineffectivecoder/smbclient/pkg/smb"
)

// Well-known named pipes
const (
	PipeSrvsvc = "srvsvc" // Server Service
	PipeLsarpc = "lsarpc" // LSA Remote
)

// maxTransact is the ioctl output limit for one transceive. Longer replies
// are drained with READ.
const maxTransact = 65536

// Pipe represents a named pipe connection
type Pipe struct {
	file *smb.File
	tree *smb.Tree
	name string
}

// Open opens a named pipe on an IPC$ tree.
func Open(ctx context.Context, tree *smb.Tree, pipeName string) (*Pipe, error) {
	file, err := tree.OpenPipe(ctx, pipeName)
	if err != nil {
		return nil, fmt.Errorf("failed to open pipe %s: %w", pipeName, err)
	}
	return &Pipe{
		file: file,
		tree: tree,
		name: pipeName,
	}, nil
}

// Read reads one message from the pipe.
// Named pipes ignore the offset; it is always 0.
func (p *Pipe) Read(ctx context.Context, buf []byte) (int, error) {
	return p.file.ReadAt(ctx, buf, 0)
}

// Write writes data to the pipe
func (p *Pipe) Write(ctx context.Context, data []byte) (int, error) {
	return p.file.WriteAt(ctx, data, 0)
}

// Transact writes request and returns the complete reply in one
// FSCTL_PIPE_TRANSCEIVE exchange.
func (p *Pipe) Transact(ctx context.Context, request []byte) ([]byte, error) {
	resp, err := p.file.Transceive(ctx, request, maxTransact)
	if err != nil {
		return nil, fmt.Errorf("transact on %s failed: %w", p.name, err)
	}
	return resp, nil
}

// Close closes the pipe
func (p *Pipe) Close(ctx context.Context) error {
	if p.file != nil {
		return p.file.Close(ctx)
	}
	return nil
}

// Name returns the pipe name
func (p *Pipe) Name() string {
	return p.name
}

// Tree returns the parent tree
func (p *Pipe) Tree() *smb.Tree {
	return p.tree
}
