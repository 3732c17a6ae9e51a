package smbc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ineffectivecoder/smbclient/internal/metrics"
	"github.com/ineffectivecoder/smbclient/pkg/auth"
	"github.com/ineffectivecoder/smbclient/pkg/lsarpc"
	"github.com/ineffectivecoder/smbclient/pkg/secdesc"
	"github.com/ineffectivecoder/smbclient/pkg/smb"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
	"github.com/ineffectivecoder/smbclient/pkg/srvsvc"
)

// ConnectionKey identifies a shareable connection.
type ConnectionKey struct {
	Host      string
	Port      int
	Transport string
}

func (k ConnectionKey) String() string {
	return fmt.Sprintf("%s://%s:%d", k.Transport, k.Host, k.Port)
}

// dialConfig is the per-connection subset of Options.
type dialConfig struct {
	Timeout        time.Duration
	Workstation    string
	SOCKS5         string
	RequireSigning bool
	Metrics        *metrics.Metrics
}

// The interfaces below are the seam between the public API and the wire
// client. The smb-backed implementation follows; tests use an in-memory
// one.

type dialer interface {
	dial(ctx context.Context, key ConnectionKey, cfg dialConfig) (conn, error)
}

// conn is one negotiated connection carrying at most one session.
type conn interface {
	authenticate(ctx context.Context, creds auth.Credentials) error
	tree(ctx context.Context, share string) (tree, error)
	shares(ctx context.Context, server string) ([]srvsvc.ShareInfo, error)
	lookupSids(ctx context.Context, sids []secdesc.SID) ([]lsarpc.TranslatedName, error)
	lookupNames(ctx context.Context, names []string) ([]lsarpc.TranslatedSID, error)
	broken() error
	close(ctx context.Context) error
}

type tree interface {
	open(ctx context.Context, path string, spec smb.OpenSpec) (handle, error)
	mkdir(ctx context.Context, path string) error
	rmdir(ctx context.Context, path string) error
	remove(ctx context.Context, path string) error
	disconnect(ctx context.Context) error
}

// handle is satisfied by *smb.File.
type handle interface {
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	WriteAt(ctx context.Context, p []byte, off int64) (int, error)
	Stat(ctx context.Context) (*smb.FileInfo, error)
	ReadDir(ctx context.Context, pattern string) ([]smb.FileInfo, error)
	Truncate(ctx context.Context, size int64) error
	Rename(ctx context.Context, target string, replace bool) error
	SetBasicInfo(ctx context.Context, info *types.BasicInfo) error
	SecurityDescriptor(ctx context.Context, additional uint32) ([]byte, error)
	SetSecurityDescriptor(ctx context.Context, additional uint32, sd []byte) error
	Close(ctx context.Context) error
}

var _ handle = (*smb.File)(nil)

type smbDialer struct{}

func (smbDialer) dial(ctx context.Context, key ConnectionKey, cfg dialConfig) (conn, error) {
	c := smb.NewClient(smb.ClientConfig{
		Timeout:        cfg.Timeout,
		RequireSigning: cfg.RequireSigning,
		Socks5URL:      cfg.SOCKS5,
		Workstation:    cfg.Workstation,
		Metrics:        cfg.Metrics,
	})
	if err := c.Connect(ctx, key.Host, key.Port); err != nil {
		return nil, err
	}
	return &smbConn{client: c}, nil
}

// smbConn adapts *smb.Client and keeps the lsarpc binding open for the
// lifetime of the connection.
type smbConn struct {
	client *smb.Client

	mu  sync.Mutex
	lsa *lsarpc.Client
}

func (c *smbConn) authenticate(ctx context.Context, creds auth.Credentials) error {
	return c.client.Authenticate(ctx, creds)
}

func (c *smbConn) tree(ctx context.Context, share string) (tree, error) {
	t, err := c.client.Tree(ctx, share)
	if err != nil {
		return nil, err
	}
	return smbTree{t}, nil
}

func (c *smbConn) shares(ctx context.Context, server string) ([]srvsvc.ShareInfo, error) {
	ipc, err := c.client.IPC(ctx)
	if err != nil {
		return nil, err
	}
	srv, err := srvsvc.NewClient(ctx, ipc)
	if err != nil {
		return nil, err
	}
	defer srv.Close(ctx)
	return srv.EnumShares(ctx, server)
}

func (c *smbConn) lsaClient(ctx context.Context) (*lsarpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lsa != nil {
		return c.lsa, nil
	}
	ipc, err := c.client.IPC(ctx)
	if err != nil {
		return nil, err
	}
	lsa, err := lsarpc.NewClient(ctx, ipc)
	if err != nil {
		return nil, err
	}
	c.lsa = lsa
	return lsa, nil
}

func (c *smbConn) lookupSids(ctx context.Context, sids []secdesc.SID) ([]lsarpc.TranslatedName, error) {
	lsa, err := c.lsaClient(ctx)
	if err != nil {
		return nil, err
	}
	return lsa.LookupSids(ctx, sids)
}

func (c *smbConn) lookupNames(ctx context.Context, names []string) ([]lsarpc.TranslatedSID, error) {
	lsa, err := c.lsaClient(ctx)
	if err != nil {
		return nil, err
	}
	return lsa.LookupNames(ctx, names)
}

func (c *smbConn) broken() error {
	return c.client.Broken()
}

func (c *smbConn) close(ctx context.Context) error {
	c.mu.Lock()
	lsa := c.lsa
	c.lsa = nil
	c.mu.Unlock()
	if lsa != nil && c.client.Broken() == nil {
		lsa.Close(ctx)
	}
	return c.client.Close(ctx)
}

type smbTree struct {
	t *smb.Tree
}

func (t smbTree) open(ctx context.Context, path string, spec smb.OpenSpec) (handle, error) {
	f, err := t.t.Open(ctx, path, spec)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (t smbTree) mkdir(ctx context.Context, path string) error  { return t.t.Mkdir(ctx, path) }
func (t smbTree) rmdir(ctx context.Context, path string) error  { return t.t.Rmdir(ctx, path) }
func (t smbTree) remove(ctx context.Context, path string) error { return t.t.Remove(ctx, path) }
func (t smbTree) disconnect(ctx context.Context) error          { return t.t.Disconnect(ctx) }
