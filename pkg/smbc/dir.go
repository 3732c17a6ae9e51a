package smbc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ineffectivecoder/smbclient/pkg/debug"
	"github.com/ineffectivecoder/smbclient/pkg/smb"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
	"github.com/ineffectivecoder/smbclient/pkg/srvsvc"
)

// DirentType is the kind of a directory entry. The values match
// libsmbclient's SMBC_* constants.
type DirentType int

const (
	DirentWorkgroup    DirentType = 1
	DirentServer       DirentType = 2
	DirentFileShare    DirentType = 3
	DirentPrinterShare DirentType = 4
	DirentCommsShare   DirentType = 5
	DirentIPCShare     DirentType = 6
	DirentDir          DirentType = 7
	DirentFile         DirentType = 8
	DirentLink         DirentType = 9
)

var direntTypeNames = map[DirentType]string{
	DirentWorkgroup:    "workgroup",
	DirentServer:       "server",
	DirentFileShare:    "share",
	DirentPrinterShare: "printer",
	DirentCommsShare:   "comms",
	DirentIPCShare:     "ipc",
	DirentDir:          "dir",
	DirentFile:         "file",
	DirentLink:         "link",
}

func (t DirentType) String() string {
	if s, ok := direntTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("DirentType(%d)", int(t))
}

// Dirent is one directory entry. Comment carries the share remark in share
// listings.
type Dirent struct {
	Name    string
	Comment string
	Type    DirentType
}

// Dir is an open directory, share list or workgroup list. A Dir must not
// be used from more than one goroutine at a time.
type Dir struct {
	c    *Context
	sess *session
	h    handle
	id   uint64
	uri  string

	pending []Dirent
	done    bool
	closed  bool
}

// OpenDir opens uri for listing. smb:// lists the configured workgroup,
// smb://host/ lists the server's shares and anything deeper lists a
// directory.
func (c *Context) OpenDir(ctx context.Context, uri string) (*Dir, error) {
	u, err := c.parse("opendir", uri)
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()

	switch {
	case u.IsBrowse():
		return &Dir{c: c, uri: uri, done: true, pending: []Dirent{
			{Name: c.Options().Workgroup, Type: DirentWorkgroup},
		}}, nil
	case u.IsServer():
		if strings.EqualFold(u.Host, c.Options().Workgroup) {
			return nil, newErr("opendir", uri, NotSupported, fmt.Errorf("workgroup browsing needs NetBIOS"))
		}
		return c.openShareList(ctx, u, uri)
	}

	t, err := c.resolve(ctx, "opendir", uri)
	if err != nil {
		return nil, err
	}
	h, err := t.tree.open(ctx, t.uri.Path, smb.OpenSpec{
		Access:      types.FileReadData | types.FileReadAttributes | types.Synchronize,
		Disposition: types.FileOpen,
		Options:     types.FileDirectoryFile,
	})
	if err != nil {
		c.release(t)
		return nil, wrapErr("opendir", uri, err)
	}
	return &Dir{c: c, sess: t.sess, h: h, id: t.sess.track(h), uri: uri}, nil
}

func (c *Context) openShareList(ctx context.Context, u *URI, uri string) (*Dir, error) {
	s, err := c.session(ctx, u)
	if err != nil {
		return nil, wrapErr("opendir", uri, err)
	}
	shares, err := s.conn.shares(ctx, u.Host)
	if err != nil {
		c.conns.release(s)
		return nil, wrapErr("opendir", uri, err)
	}
	debug.Debug("listed shares", debug.KeyServer, u.Host, debug.KeyCount, len(shares))

	d := &Dir{c: c, sess: s, uri: uri, done: true}
	for _, sh := range shares {
		d.pending = append(d.pending, Dirent{Name: sh.Name, Comment: sh.Remark, Type: shareDirentType(sh)})
	}
	return d, nil
}

func shareDirentType(s srvsvc.ShareInfo) DirentType {
	switch s.BaseType() {
	case srvsvc.TypePrintQ:
		return DirentPrinterShare
	case srvsvc.TypeDevice:
		return DirentCommsShare
	case srvsvc.TypeIPC:
		return DirentIPCShare
	default:
		return DirentFileShare
	}
}

func fileDirent(info smb.FileInfo) Dirent {
	switch {
	case info.Attributes&types.FileAttributeReparsePoint != 0:
		return Dirent{Name: info.Name, Type: DirentLink}
	case info.IsDir:
		return Dirent{Name: info.Name, Type: DirentDir}
	default:
		return Dirent{Name: info.Name, Type: DirentFile}
	}
}

func (d *Dir) check() error {
	if d.closed {
		return newErr("readdir", d.uri, InvalidArgument, ErrClosed)
	}
	if d.c.conns.isClosed() {
		return newErr("readdir", d.uri, Fault, ErrContextClosed)
	}
	return nil
}

// ReadEntries returns every remaining entry in server order. A second call
// after the listing is drained returns nothing.
func (d *Dir) ReadEntries(ctx context.Context) ([]Dirent, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	ctx, cancel := d.c.opContext(ctx)
	defer cancel()

	for !d.done {
		batch, err := d.h.ReadDir(ctx, "*")
		if errors.Is(err, io.EOF) {
			d.done = true
			break
		}
		if err != nil {
			return nil, wrapErr("readdir", d.uri, err)
		}
		for _, info := range batch {
			d.pending = append(d.pending, fileDirent(info))
		}
	}
	out := d.pending
	d.pending = nil
	if out == nil {
		out = []Dirent{}
	}
	return out, nil
}

// Close releases the directory handle. Closing twice is a no-op.
func (d *Dir) Close(ctx context.Context) error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.sess == nil {
		return nil
	}
	defer d.c.conns.release(d.sess)
	if d.h == nil {
		return nil
	}
	d.sess.untrack(d.id)
	if d.c.conns.isClosed() {
		return nil
	}
	ctx, cancel := d.c.opContext(ctx)
	defer cancel()
	return wrapErr("closedir", d.uri, d.h.Close(ctx))
}
