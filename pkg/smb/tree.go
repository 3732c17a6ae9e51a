package smb

import (
	"context"
	"fmt"
	"strings"

	"github.com/ineffectivecoder/smbclient/pkg/debug"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

// Tree represents a connected share
type Tree struct {
	session   *Session
	treeID    uint32
	shareType types.ShareType
	shareName string
	maxAccess types.AccessMask
	encrypt   bool
}

// TreeConnect connects to a share
func (s *Session) TreeConnect(ctx context.Context, shareName string) (*Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authenticated {
		return nil, ErrNotConnected
	}
	shareName = strings.Trim(shareName, `\/`)
	unc := fmt.Sprintf(`\\%s\%s`, s.transport.RemoteHost(), shareName)

	resp, err := s.callLocked(ctx, &request{
		Command: types.CommandTreeConnect,
		Body:    types.NewTreeConnectRequest(unc).Marshal(),
	})
	if err != nil {
		return nil, fmt.Errorf("tree connect %s failed: %w", unc, err)
	}

	var treeResp types.TreeConnectResponse
	if err := treeResp.Unmarshal(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to parse tree connect response: %w", err)
	}

	t := &Tree{
		session:   s,
		treeID:    resp.Header.TreeID,
		shareType: treeResp.ShareType,
		shareName: shareName,
		maxAccess: treeResp.MaximalAccess,
		encrypt:   treeResp.ShareFlags&types.ShareFlagEncryptData != 0,
	}
	if t.encrypt {
		if err := s.enableEncryption(); err != nil {
			return nil, fmt.Errorf("share %s requires encryption: %w", shareName, err)
		}
	}

	debug.Debug("tree connected",
		debug.KeyShare, shareName,
		debug.KeyTree, t.treeID,
		"share_type", t.shareType,
		"encrypted", t.encrypt)
	return t, nil
}

// call issues req on the tree's session with the tree ID filled in.
func (t *Tree) call(ctx context.Context, req *request) (*response, error) {
	req.TreeID = t.treeID
	req.Encrypt = req.Encrypt || t.encrypt
	return t.session.call(ctx, req)
}

// Disconnect sends TREE_DISCONNECT.
func (t *Tree) Disconnect(ctx context.Context) error {
	_, err := t.call(ctx, &request{
		Command: types.CommandTreeDisconnect,
		Body:    types.EmptyRequest(),
	})
	if err != nil {
		return fmt.Errorf("tree disconnect failed: %w", err)
	}
	return nil
}

// TreeID returns the tree ID
func (t *Tree) TreeID() uint32 {
	return t.treeID
}

// ShareType returns the share type
func (t *Tree) ShareType() types.ShareType {
	return t.shareType
}

// ShareName returns the share name
func (t *Tree) ShareName() string {
	return t.shareName
}

// MaximalAccess returns the maximal access rights
func (t *Tree) MaximalAccess() types.AccessMask {
	return t.maxAccess
}

// IsPipe returns true if this is an IPC$ (named pipe) share
func (t *Tree) IsPipe() bool {
	return t.shareType == types.ShareTypePipe
}

// IsDisk returns true if this is a disk share
func (t *Tree) IsDisk() bool {
	return t.shareType == types.ShareTypeDisk
}

// Session returns the parent session
func (t *Tree) Session() *Session {
	return t.session
}
