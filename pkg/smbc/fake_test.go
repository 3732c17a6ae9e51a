package smbc

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ineffectivecoder/smbclient/pkg/auth"
	"github.com/ineffectivecoder/smbclient/pkg/lsarpc"
	"github.com/ineffectivecoder/smbclient/pkg/secdesc"
	"github.com/ineffectivecoder/smbclient/pkg/smb"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
	"github.com/ineffectivecoder/smbclient/pkg/srvsvc"
)

// fakeServer is an in-memory server behind the backend interfaces. Paths
// are matched case-insensitively like a Windows share.
type fakeServer struct {
	mu sync.Mutex

	users     map[string]string
	anonymous bool
	refuse    bool
	shares    []srvsvc.ShareInfo
	accounts  map[string]secdesc.SID

	nodes     map[string]*fakeNode
	nextIndex uint64

	dials    int
	attempts []string
	closed   int

	stall           bool   // next create times out and breaks its connection
	onTree          func() // runs once after the next tree connect
	treeConnects    int
	treeDisconnects int
}

type fakeNode struct {
	name  string
	dir   bool
	data  []byte
	attrs types.FileAttributes
	sd    *secdesc.Descriptor
	atime time.Time
	mtime time.Time
	index uint64
}

var (
	sidAlice  = secdesc.MustParseSID("S-1-5-21-1004336348-1177238915-682003330-1104")
	sidBob    = secdesc.MustParseSID("S-1-5-21-1004336348-1177238915-682003330-1105")
	sidAdmins = secdesc.MustParseSID("S-1-5-32-544")
)

func newFakeServer() *fakeServer {
	s := &fakeServer{
		users: map[string]string{"alice": "secret"},
		shares: []srvsvc.ShareInfo{
			{Name: "data", Type: srvsvc.TypeDisk, Remark: "team data"},
			{Name: "IPC$", Type: srvsvc.TypeIPC | srvsvc.TypeSpecial, Remark: "Remote IPC"},
			{Name: "laser", Type: srvsvc.TypePrintQ},
		},
		accounts: map[string]secdesc.SID{
			`corp\alice`:             sidAlice,
			`corp\bob`:               sidBob,
			`builtin\administrators`: sidAdmins,
		},
		nodes: map[string]*fakeNode{},
	}
	s.nodes[""] = s.newNode("", true)
	return s
}

func (s *fakeServer) newNode(name string, dir bool) *fakeNode {
	s.nextIndex++
	owner, group := sidAlice, sidAdmins
	now := time.Unix(1700000000, 0)
	n := &fakeNode{
		name:  name,
		dir:   dir,
		attrs: types.FileAttributeNormal,
		index: s.nextIndex,
		atime: now,
		mtime: now,
		sd: &secdesc.Descriptor{
			Revision: 1,
			Owner:    &owner,
			Group:    &group,
			DACL: &secdesc.ACL{Revision: 2, ACEs: []secdesc.ACE{
				{Type: secdesc.AccessAllowed, Mask: 0x001f01ff, SID: sidAdmins},
			}},
		},
	}
	if dir {
		n.attrs = types.FileAttributeDirectory
	}
	return n
}

func fakeKey(p string) string {
	return strings.ToLower(strings.Trim(strings.ReplaceAll(p, `\`, "/"), "/"))
}

func fakeParent(k string) string {
	d := path.Dir(k)
	if d == "." {
		return ""
	}
	return d
}

func fakeStatus(cmd types.Command, st types.NTStatus) error {
	return &smb.NTStatusError{Command: cmd, Status: st}
}

// put stores a file for test setup.
func (s *fakeServer) put(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.newNode(path.Base(p), false)
	n.data = append([]byte(nil), data...)
	s.nodes[fakeKey(p)] = n
}

func (s *fakeServer) mkdirAll(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ""
	for _, part := range strings.Split(fakeKey(p), "/") {
		k = path.Join(k, part)
		if _, ok := s.nodes[k]; !ok {
			s.nodes[k] = s.newNode(part, true)
		}
	}
}

func (s *fakeServer) node(p string) *fakeNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodes[fakeKey(p)]
}

type fakeDialer struct {
	srv *fakeServer
}

func (d fakeDialer) dial(ctx context.Context, k ConnectionKey, cfg dialConfig) (conn, error) {
	d.srv.mu.Lock()
	defer d.srv.mu.Unlock()
	d.srv.dials++
	if d.srv.refuse {
		return nil, smb.ErrConnectionRefused
	}
	return &fakeConn{srv: d.srv}, nil
}

type fakeConn struct {
	srv *fakeServer
	err error // guarded by srv.mu
}

func (c *fakeConn) authenticate(ctx context.Context, creds auth.Credentials) error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	switch cr := creds.(type) {
	case *auth.AnonymousCredentials:
		c.srv.attempts = append(c.srv.attempts, "anonymous")
		if c.srv.anonymous {
			return nil
		}
	case *auth.PasswordCredentials:
		c.srv.attempts = append(c.srv.attempts, "ntlm:"+cr.Username())
		if pw, ok := c.srv.users[cr.Username()]; ok && pw == cr.Password() {
			return nil
		}
	case *auth.KerberosCredentials:
		c.srv.attempts = append(c.srv.attempts, "kerberos:"+cr.Username())
	}
	return fakeStatus(types.CommandSessionSetup, types.StatusLogonFailure)
}

func (c *fakeConn) tree(ctx context.Context, share string) (tree, error) {
	c.srv.mu.Lock()
	var t tree
	for _, sh := range c.srv.shares {
		if strings.EqualFold(sh.Name, share) {
			c.srv.treeConnects++
			t = &fakeTree{srv: c.srv, conn: c}
		}
	}
	hook := c.srv.onTree
	c.srv.onTree = nil
	c.srv.mu.Unlock()

	if t == nil {
		return nil, fakeStatus(types.CommandTreeConnect, types.StatusBadNetworkName)
	}
	if hook != nil {
		hook()
	}
	return t, nil
}

func (c *fakeConn) shares(ctx context.Context, server string) ([]srvsvc.ShareInfo, error) {
	return c.srv.shares, nil
}

func (c *fakeConn) lookupSids(ctx context.Context, sids []secdesc.SID) ([]lsarpc.TranslatedName, error) {
	out := make([]lsarpc.TranslatedName, len(sids))
	for i, sid := range sids {
		out[i] = lsarpc.TranslatedName{Use: lsarpc.SidTypeUnknown}
		for name, s := range c.srv.accounts {
			if s.Equal(sid) {
				domain, user, _ := strings.Cut(name, `\`)
				out[i] = lsarpc.TranslatedName{Name: user, Domain: strings.ToUpper(domain), Use: lsarpc.SidTypeUser}
			}
		}
	}
	return out, nil
}

func (c *fakeConn) lookupNames(ctx context.Context, names []string) ([]lsarpc.TranslatedSID, error) {
	out := make([]lsarpc.TranslatedSID, len(names))
	mapped := 0
	for i, n := range names {
		if sid, ok := c.srv.accounts[strings.ToLower(n)]; ok {
			out[i] = lsarpc.TranslatedSID{SID: sid, Use: lsarpc.SidTypeUser}
			mapped++
		} else {
			out[i] = lsarpc.TranslatedSID{Use: lsarpc.SidTypeUnknown}
		}
	}
	if mapped == 0 {
		return nil, lsarpc.ErrNoneMapped
	}
	return out, nil
}

func (c *fakeConn) broken() error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	return c.err
}

func (c *fakeConn) close(ctx context.Context) error {
	c.srv.mu.Lock()
	c.srv.closed++
	c.srv.mu.Unlock()
	return nil
}

type fakeTree struct {
	srv  *fakeServer
	conn *fakeConn
}

func (t *fakeTree) disconnect(ctx context.Context) error {
	t.srv.mu.Lock()
	t.srv.treeDisconnects++
	t.srv.mu.Unlock()
	return nil
}

func (t *fakeTree) open(ctx context.Context, p string, spec smb.OpenSpec) (handle, error) {
	s := t.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stall {
		s.stall = false
		t.conn.err = smb.ErrTimeout
		return nil, fmt.Errorf("create: %w", smb.ErrTimeout)
	}
	k := fakeKey(p)
	n, ok := s.nodes[k]
	if ok {
		if spec.Disposition == types.FileCreate {
			return nil, fakeStatus(types.CommandCreate, types.StatusObjectNameCollision)
		}
		if spec.Options&types.FileDirectoryFile != 0 && !n.dir {
			return nil, fakeStatus(types.CommandCreate, types.StatusNotADirectory)
		}
		if spec.Options&types.FileNonDirectoryFile != 0 && n.dir {
			return nil, fakeStatus(types.CommandCreate, types.StatusFileIsADirectory)
		}
		switch spec.Disposition {
		case types.FileOverwrite, types.FileOverwriteIf, types.FileSupersede:
			n.data = nil
		}
		return &fakeHandle{srv: s, key: k}, nil
	}

	switch spec.Disposition {
	case types.FileOpen, types.FileOverwrite:
		return nil, fakeStatus(types.CommandCreate, types.StatusObjectNameNotFound)
	}
	if pn, ok := s.nodes[fakeParent(k)]; !ok || !pn.dir {
		return nil, fakeStatus(types.CommandCreate, types.StatusObjectPathNotFound)
	}
	n = s.newNode(path.Base(k), spec.Options&types.FileDirectoryFile != 0)
	if spec.Attributes&types.FileAttributeReadOnly != 0 {
		n.attrs = types.FileAttributeReadOnly
	}
	s.nodes[k] = n
	return &fakeHandle{srv: s, key: k}, nil
}

func (t *fakeTree) mkdir(ctx context.Context, p string) error {
	s := t.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	k := fakeKey(p)
	if _, ok := s.nodes[k]; ok {
		return fakeStatus(types.CommandCreate, types.StatusObjectNameCollision)
	}
	if pn, ok := s.nodes[fakeParent(k)]; !ok || !pn.dir {
		return fakeStatus(types.CommandCreate, types.StatusObjectPathNotFound)
	}
	s.nodes[k] = s.newNode(path.Base(p), true)
	return nil
}

func (t *fakeTree) rmdir(ctx context.Context, p string) error {
	s := t.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	k := fakeKey(p)
	n, ok := s.nodes[k]
	switch {
	case !ok:
		return fakeStatus(types.CommandCreate, types.StatusObjectNameNotFound)
	case !n.dir:
		return fakeStatus(types.CommandCreate, types.StatusNotADirectory)
	}
	for other := range s.nodes {
		if other != k && fakeParent(other) == k {
			return fakeStatus(types.CommandClose, types.StatusDirectoryNotEmpty)
		}
	}
	delete(s.nodes, k)
	return nil
}

func (t *fakeTree) remove(ctx context.Context, p string) error {
	s := t.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	k := fakeKey(p)
	n, ok := s.nodes[k]
	switch {
	case !ok:
		return fakeStatus(types.CommandCreate, types.StatusObjectNameNotFound)
	case n.dir:
		return fakeStatus(types.CommandCreate, types.StatusFileIsADirectory)
	}
	delete(s.nodes, k)
	return nil
}

type fakeHandle struct {
	srv    *fakeServer
	key    string
	listed bool
	closed bool
}

func (h *fakeHandle) lookup() (*fakeNode, error) {
	if h.closed {
		return nil, fakeStatus(types.CommandRead, types.StatusFileClosed)
	}
	n, ok := h.srv.nodes[h.key]
	if !ok {
		return nil, fakeStatus(types.CommandRead, types.StatusFileClosed)
	}
	return n, nil
}

func (h *fakeHandle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	n, err := h.lookup()
	if err != nil {
		return 0, err
	}
	if off >= int64(len(n.data)) {
		return 0, io.EOF
	}
	c := copy(p, n.data[off:])
	if c < len(p) {
		return c, io.EOF
	}
	return c, nil
}

func (h *fakeHandle) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	n, err := h.lookup()
	if err != nil {
		return 0, err
	}
	if end := off + int64(len(p)); end > int64(len(n.data)) {
		n.data = append(n.data, make([]byte, end-int64(len(n.data)))...)
	}
	return copy(n.data[off:], p), nil
}

func (h *fakeHandle) info(n *fakeNode) smb.FileInfo {
	return smb.FileInfo{
		Name:           n.name,
		Size:           int64(len(n.data)),
		Attributes:     n.attrs,
		LastAccessTime: n.atime,
		LastWriteTime:  n.mtime,
		ChangeTime:     n.mtime,
		FileIndex:      n.index,
		Links:          1,
		IsDir:          n.dir,
	}
}

func (h *fakeHandle) Stat(ctx context.Context) (*smb.FileInfo, error) {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	n, err := h.lookup()
	if err != nil {
		return nil, err
	}
	info := h.info(n)
	return &info, nil
}

func (h *fakeHandle) ReadDir(ctx context.Context, pattern string) ([]smb.FileInfo, error) {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	n, err := h.lookup()
	if err != nil {
		return nil, err
	}
	if !n.dir {
		return nil, fakeStatus(types.CommandQueryDirectory, types.StatusInvalidParameter)
	}
	if h.listed {
		return nil, io.EOF
	}
	h.listed = true
	out := []smb.FileInfo{
		{Name: ".", IsDir: true, Attributes: types.FileAttributeDirectory},
		{Name: "..", IsDir: true, Attributes: types.FileAttributeDirectory},
	}
	var children []string
	for k := range h.srv.nodes {
		if k != "" && k != h.key && fakeParent(k) == h.key {
			children = append(children, k)
		}
	}
	sort.Strings(children)
	for _, k := range children {
		out = append(out, h.info(h.srv.nodes[k]))
	}
	return out, nil
}

func (h *fakeHandle) Truncate(ctx context.Context, size int64) error {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	n, err := h.lookup()
	if err != nil {
		return err
	}
	if size <= int64(len(n.data)) {
		n.data = n.data[:size]
	} else {
		n.data = append(n.data, make([]byte, size-int64(len(n.data)))...)
	}
	return nil
}

func (h *fakeHandle) Rename(ctx context.Context, target string, replace bool) error {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	n, err := h.lookup()
	if err != nil {
		return err
	}
	dst := fakeKey(target)
	if _, ok := h.srv.nodes[dst]; ok && !replace {
		return fakeStatus(types.CommandSetInfo, types.StatusObjectNameCollision)
	}
	if pn, ok := h.srv.nodes[fakeParent(dst)]; !ok || !pn.dir {
		return fakeStatus(types.CommandSetInfo, types.StatusObjectPathNotFound)
	}
	delete(h.srv.nodes, h.key)
	n.name = path.Base(dst)
	h.srv.nodes[dst] = n
	h.key = dst
	return nil
}

func (h *fakeHandle) SetBasicInfo(ctx context.Context, info *types.BasicInfo) error {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	n, err := h.lookup()
	if err != nil {
		return err
	}
	if info.FileAttributes != 0 {
		n.attrs = info.FileAttributes
		if n.dir {
			n.attrs |= types.FileAttributeDirectory
		}
	}
	if info.LastAccessTime != 0 {
		n.atime = smb.FiletimeToTime(info.LastAccessTime)
	}
	if info.LastWriteTime != 0 {
		n.mtime = smb.FiletimeToTime(info.LastWriteTime)
	}
	return nil
}

func (h *fakeHandle) SecurityDescriptor(ctx context.Context, additional uint32) ([]byte, error) {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	n, err := h.lookup()
	if err != nil {
		return nil, err
	}
	return n.sd.Marshal(), nil
}

func (h *fakeHandle) SetSecurityDescriptor(ctx context.Context, additional uint32, raw []byte) error {
	h.srv.mu.Lock()
	defer h.srv.mu.Unlock()
	n, err := h.lookup()
	if err != nil {
		return err
	}
	in, err := secdesc.Parse(raw)
	if err != nil {
		return fakeStatus(types.CommandSetInfo, types.StatusInvalidParameter)
	}
	if additional&secdesc.OwnerSecurityInformation != 0 {
		n.sd.Owner = in.Owner
	}
	if additional&secdesc.GroupSecurityInformation != 0 {
		n.sd.Group = in.Group
	}
	if additional&secdesc.DACLSecurityInformation != 0 {
		n.sd.DACL = in.DACL
	}
	return nil
}

func (h *fakeHandle) Close(ctx context.Context) error {
	h.closed = true
	return nil
}
