package smbc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ineffectivecoder/smbclient/pkg/auth"
	"github.com/ineffectivecoder/smbclient/pkg/debug"
)

// session is one authenticated connection plus the trees and handles
// opened through it. The smb layer serializes requests on it.
type session struct {
	key   ConnectionKey
	ident string
	conn  conn
	creds Credentials

	mu         sync.Mutex
	trees      map[string]tree
	refs       int
	handles    map[uint64]handle
	nextHandle uint64
}

func newSession(key ConnectionKey, ident string, c conn, creds Credentials) *session {
	return &session{
		key:     key,
		ident:   ident,
		conn:    c,
		creds:   creds,
		trees:   make(map[string]tree),
		handles: make(map[uint64]handle),
	}
}

// tree returns the connected tree for share.
func (s *session) tree(ctx context.Context, share string) (tree, error) {
	name := strings.ToUpper(share)
	s.mu.Lock()
	t, ok := s.trees[name]
	s.mu.Unlock()
	if ok {
		return t, nil
	}
	t, err := s.conn.tree(ctx, share)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	cur, ok := s.trees[name]
	if !ok {
		s.trees[name] = t
	}
	s.mu.Unlock()
	if !ok {
		return t, nil
	}
	// Lost a race with another connect to the same share.
	if cur != t {
		if err := t.disconnect(ctx); err != nil {
			debug.Debug("duplicate tree disconnect failed", debug.KeyShare, share, debug.KeyError, err)
		}
	}
	return cur, nil
}

// track registers an open handle and returns its local ID.
func (s *session) track(h handle) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandle++
	s.handles[s.nextHandle] = h
	return s.nextHandle
}

func (s *session) untrack(id uint64) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

// openHandles returns the number of tracked handles.
func (s *session) openHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *session) failed() bool {
	return s.conn.broken() != nil
}

// shutdown closes tracked handles and the connection.
func (s *session) shutdown(ctx context.Context) error {
	s.mu.Lock()
	handles := s.handles
	s.handles = make(map[uint64]handle)
	s.trees = make(map[string]tree)
	s.mu.Unlock()

	if !s.failed() {
		for _, h := range handles {
			h.Close(ctx)
		}
	}
	return s.conn.close(ctx)
}

type sessionKey struct {
	ConnectionKey
	ident string
}

// credentialSource is what acquire knows about credentials for one call.
type credentialSource struct {
	inline   *Credentials
	seed     *Credentials
	resolver CredentialResolver
}

// connManager owns every session of a Context.
type connManager struct {
	dialer dialer

	mu       sync.Mutex
	sessions map[sessionKey]*session
	retired  []*session
	closed   bool
}

func newConnManager(d dialer) *connManager {
	return &connManager{dialer: d, sessions: make(map[sessionKey]*session)}
}

// acquire returns a session for u, reusing a live one for the same server
// and identity. The returned session must be released.
func (m *connManager) acquire(ctx context.Context, u *URI, opts Options, src credentialSource) (*session, error) {
	key := u.Key()
	sk := sessionKey{ConnectionKey: key}
	if src.inline != nil {
		sk.ident = strings.ToLower(src.inline.Workgroup + `\` + src.inline.Username)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrContextClosed
	}
	if s, ok := m.sessions[sk]; ok {
		if !s.failed() {
			s.refs++
			m.mu.Unlock()
			return s, nil
		}
		debug.Debug("discarding failed session", debug.KeyServer, key.Host, debug.KeyError, s.conn.broken())
		delete(m.sessions, sk)
		m.retired = append(m.retired, s)
	}
	m.mu.Unlock()

	s, err := m.connect(ctx, key, sk.ident, u, opts, src)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		s.shutdown(ctx)
		return nil, ErrContextClosed
	}
	if existing, ok := m.sessions[sk]; ok && !existing.failed() {
		// lost a race with another acquire
		m.retired = append(m.retired, s)
		existing.refs++
		return existing, nil
	}
	s.refs = 1
	m.sessions[sk] = s
	return s, nil
}

// release drops a claim. Sessions stay cached until close.
func (m *connManager) release(s *session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	if s.refs > 0 {
		s.refs--
	}
	m.mu.Unlock()
}

// close shuts down every session, referenced or not.
func (m *connManager) close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	all := m.retired
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = nil
	m.retired = nil
	m.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := s.shutdown(ctx); err != nil && !s.failed() {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *connManager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// connect dials and authenticates, walking the credential sources in
// order: inline URI credentials, pre-seeded ones, the resolver, then an
// anonymous session.
func (m *connManager) connect(ctx context.Context, key ConnectionKey, ident string, u *URI, opts Options, src credentialSource) (*session, error) {
	c, err := m.dialer.dial(ctx, key, dialConfig{
		Timeout:        opts.Timeout,
		Workstation:    opts.NetBIOSName,
		SOCKS5:         opts.SOCKS5,
		RequireSigning: opts.RequireSigning,
		Metrics:        opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	var (
		lastErr  error
		tried    Credentials
		resolved bool
	)
	try := func(creds Credentials) (bool, error) {
		if creds.Workgroup == "" {
			creds.Workgroup = opts.Workgroup
		}
		tried = creds
		err := authenticate(ctx, c, creds, opts)
		if err == nil {
			return true, nil
		}
		lastErr = err
		if c.broken() != nil || KindOf(err) != PermissionDenied {
			return false, err
		}
		debug.Debug("authentication rejected", debug.KeyServer, key.Host, debug.KeyUser, creds.Username, debug.KeyError, err)
		return false, nil
	}

	var candidates []*Credentials
	if src.inline != nil {
		candidates = append(candidates, src.inline)
	}
	if src.seed != nil && ident == "" {
		candidates = append(candidates, src.seed)
	}
	for _, cand := range candidates {
		ok, err := try(*cand)
		if err != nil {
			c.close(ctx)
			return nil, err
		}
		if ok {
			return newSession(key, ident, c, tried), nil
		}
	}

	if src.resolver != nil {
		current := tried
		if current.Workgroup == "" {
			current.Workgroup = opts.Workgroup
		}
		creds, err := src.resolver.ResolveCredentials(ctx, u.Host, u.Share, current)
		switch {
		case err != nil:
			debug.Debug("credential resolver failed", debug.KeyServer, key.Host, debug.KeyShare, u.Share, debug.KeyError, err)
		case !creds.IsAnonymous():
			resolved = true
			ok, err := try(creds)
			if err != nil {
				c.close(ctx)
				return nil, err
			}
			if ok {
				return newSession(key, ident, c, tried), nil
			}
		}
	}

	if !opts.NoAutoAnonymousLogin {
		ok, err := try(Credentials{})
		if err != nil {
			c.close(ctx)
			return nil, err
		}
		if ok {
			return newSession(key, ident, c, tried), nil
		}
	}
	c.close(ctx)

	if lastErr == nil {
		lastErr = errors.New("no credentials available")
	}
	debug.Debug("authentication failed", debug.KeyServer, key.Host, "resolver_used", resolved, debug.KeyError, lastErr)
	return nil, newErr("connect", u.String(), PermissionDenied, lastErr)
}

// authenticate runs session setup, trying Kerberos first when enabled.
func authenticate(ctx context.Context, c conn, creds Credentials, opts Options) error {
	if creds.IsAnonymous() {
		return c.authenticate(ctx, auth.NewAnonymousCredentials())
	}
	if opts.UseKerberos {
		kc, err := kerberosCredentials(creds)
		if err == nil {
			err = c.authenticate(ctx, kc)
			kc.Close()
		}
		if err == nil {
			return nil
		}
		if !opts.FallbackAfterKerberos || c.broken() != nil {
			return newErr("kerberos", "", PermissionDenied, err)
		}
		debug.Debug("kerberos failed, falling back to NTLM", debug.KeyUser, creds.Username, debug.KeyError, err)
	}
	return c.authenticate(ctx, auth.NewPasswordCredentials(creds.Workgroup, creds.Username, creds.Password))
}

// kerberosCredentials uses the password when given, else the ticket cache.
func kerberosCredentials(creds Credentials) (*auth.KerberosCredentials, error) {
	realm := strings.ToUpper(creds.Workgroup)
	if creds.Password != "" {
		return auth.NewKerberosCredentialsFromPassword(creds.Username, realm, creds.Password)
	}
	path := strings.TrimPrefix(os.Getenv("KRB5CCNAME"), "FILE:")
	if path == "" {
		path = fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
	}
	return auth.NewKerberosCredentialsFromCCache(path, realm)
}
