package smb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ineffectivecoder/smbclient/internal/metrics"
	"github.com/ineffectivecoder/smbclient/pkg/debug"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

const (
	// creditUnit is the payload size covered by one credit.
	creditUnit = 64 * 1024

	// maxLargeMTUChunk caps READ/WRITE size on multi-credit dialects.
	maxLargeMTUChunk = 1024 * 1024

	// targetCredits is the balance the client tries to keep granted.
	targetCredits = 128
)

// Session represents an authenticated SMB session. Requests are serialized:
// one is in flight at a time.
type Session struct {
	mu        sync.Mutex
	transport *Transport
	neg       *NegotiateResult
	config    SessionConfig

	sessionID uint64
	messageID uint64
	credits   int

	sessionKey []byte
	signer     signer
	sealer     *sealer
	encryptAll bool

	authenticated bool
	guest         bool
	anonymous     bool

	// broken latches the first transport failure; the session is unusable
	// afterwards.
	broken error
}

// SessionConfig configures session behavior
type SessionConfig struct {
	RequireSigning bool
	Workstation    string // NetBIOS name sent during NTLM authentication
	Metrics        *metrics.Metrics
}

// NewSession creates a new session from a negotiation result
func NewSession(transport *Transport, neg *NegotiateResult, config SessionConfig) *Session {
	return &Session{
		transport: transport,
		neg:       neg,
		config:    config,
		messageID: 1, // NEGOTIATE used 0
		credits:   max(1, int(neg.Credits)),
	}
}

// request describes one outgoing SMB2 command.
type request struct {
	Command types.Command
	TreeID  uint32
	Body    []byte
	// PayloadSize is the READ/WRITE/QUERY payload the request may move,
	// used to compute the credit charge.
	PayloadSize int
	Encrypt     bool
	// Accept lists non-success statuses returned as a response rather
	// than an error.
	Accept []types.NTStatus
}

// response is a decoded reply: its header and the bytes after it.
type response struct {
	Header types.Header
	Body   []byte
}

// call sends req and waits for its final response.
func (s *Session) call(ctx context.Context, req *request) (*response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callLocked(ctx, req)
}

func (s *Session) callLocked(ctx context.Context, req *request) (*response, error) {
	if s.broken != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, s.broken)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	charge := s.creditCharge(req.PayloadSize)
	msgID := s.messageID
	s.messageID += uint64(charge)

	header := types.NewHeader(req.Command, msgID)
	header.SessionID = s.sessionID
	header.TreeID = req.TreeID
	if s.neg.Dialect > types.DialectSMB2_0_2 {
		header.CreditCharge = uint16(charge)
	} else {
		header.CreditCharge = 0
	}
	header.CreditRequest = uint16(charge)
	if s.credits < targetCredits {
		header.CreditRequest += uint16(targetCredits - s.credits)
	}
	s.credits -= charge

	msg := append(header.Marshal(), req.Body...)
	encrypt := s.sealer != nil && (req.Encrypt || s.encryptAll)
	switch {
	case encrypt:
		sealed, err := s.sealer.seal(msg)
		if err != nil {
			return nil, err
		}
		msg = sealed
	case s.shouldSign(req.Command):
		signMessage(s.signer, msg)
	}

	stop := context.AfterFunc(ctx, s.transport.Interrupt)
	defer stop()

	start := time.Now()
	if err := s.transport.Send(ctx, msg); err != nil {
		return nil, s.fail(ctx, err)
	}

	for {
		raw, err := s.transport.Recv(ctx)
		if err != nil {
			return nil, s.fail(ctx, err)
		}

		wasEncrypted := isEncryptedMessage(raw)
		if wasEncrypted {
			if s.sealer == nil {
				return nil, errors.New("received encrypted message without session keys")
			}
			if raw, err = s.sealer.open(raw); err != nil {
				return nil, fmt.Errorf("failed to decrypt response: %w", err)
			}
		}

		var resp response
		if err := resp.Header.Unmarshal(raw); err != nil {
			return nil, fmt.Errorf("failed to parse response header: %w", err)
		}
		s.credits += int(resp.Header.CreditRequest)

		if resp.Header.MessageID != msgID {
			debug.Debug("discarding unsolicited message",
				debug.KeyCommand, resp.Header.Command.String(), "message_id", resp.Header.MessageID)
			continue
		}
		if resp.Header.Status == types.StatusPending && resp.Header.IsAsync() {
			continue
		}
		if !wasEncrypted && resp.Header.IsSigned() && s.signer != nil {
			if !verifySignature(s.signer, raw) {
				return nil, fmt.Errorf("%s: %w", req.Command, ErrBadSignature)
			}
		}

		status := resp.Header.Status
		s.config.Metrics.RecordRequest(req.Command.String(), StatusName(status), time.Since(start).Seconds())
		debug.Debug("response",
			debug.KeyCommand, req.Command.String(),
			debug.KeyStatus, StatusName(status),
			debug.KeySession, s.sessionID,
			debug.KeyTree, req.TreeID)

		if !status.IsSuccess() && !slices.Contains(req.Accept, status) {
			return nil, StatusToError(req.Command, status)
		}
		resp.Body = raw[types.SMB2HeaderSize:]
		return &resp, nil
	}
}

// creditCharge is ceil(payload/64K) on multi-credit dialects and 1
// otherwise.
func (s *Session) creditCharge(payload int) int {
	if !s.neg.LargeMTU() || payload <= creditUnit {
		return 1
	}
	return (payload + creditUnit - 1) / creditUnit
}

// shouldSign reports whether an outgoing request is signed.
func (s *Session) shouldSign(cmd types.Command) bool {
	if s.signer == nil || cmd == types.CommandSessionSetup {
		return false
	}
	return s.config.RequireSigning || s.neg.RequiresSigning
}

// fail latches a transport error. A cancelled context wins over the
// deadline error produced by Interrupt.
func (s *Session) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	s.broken = err
	s.transport.Close()
	if s.authenticated {
		s.config.Metrics.SessionClosed()
		s.authenticated = false
	}
	debug.Warn("session failed", debug.KeyServer, s.transport.RemoteHost(), debug.KeyError, err)
	return err
}

// chunkSize returns the largest READ/WRITE payload the session allows right
// now, bounded by limit (the server's MaxReadSize or MaxWriteSize).
func (s *Session) chunkSize(limit uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := creditUnit
	if s.neg.LargeMTU() {
		n = min(maxLargeMTUChunk, max(1, s.credits)*creditUnit)
	}
	if limit > 0 {
		n = min(n, int(limit))
	}
	return n
}

// Broken returns the transport error that made the session unusable, or nil.
func (s *Session) Broken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

// Logoff ends the session on the server and closes the transport.
func (s *Session) Logoff(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.authenticated && s.broken == nil {
		_, err = s.callLocked(ctx, &request{Command: types.CommandLogoff, Body: types.EmptyRequest()})
		s.config.Metrics.SessionClosed()
	}
	s.authenticated = false
	if s.broken == nil {
		s.broken = ErrNotConnected
	}
	if cerr := s.transport.Close(); err == nil {
		err = cerr
	}
	return err
}

// SessionID returns the session ID
func (s *Session) SessionID() uint64 {
	return s.sessionID
}

// IsAuthenticated returns true if authenticated
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// IsGuest returns true if the server mapped the logon to guest
func (s *Session) IsGuest() bool {
	return s.guest
}

// IsAnonymous returns true for null sessions
func (s *Session) IsAnonymous() bool {
	return s.anonymous
}

// Dialect returns the negotiated dialect
func (s *Session) Dialect() types.Dialect {
	return s.neg.Dialect
}

// IsEncrypted returns true if every message on the session is encrypted
func (s *Session) IsEncrypted() bool {
	return s.encryptAll
}

// IsSigned returns true if requests are signed
func (s *Session) IsSigned() bool {
	return s.shouldSign(types.CommandCreate)
}

// Negotiated returns the negotiation result the session was built on.
func (s *Session) Negotiated() *NegotiateResult {
	return s.neg
}

// RemoteHost returns the server the session is connected to.
func (s *Session) RemoteHost() string {
	return s.transport.RemoteHost()
}
