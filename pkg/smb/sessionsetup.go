package smb

import (
	"context"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/ineffectivecoder/smbclient/pkg/auth"
	"github.com/ineffectivecoder/smbclient/pkg/debug"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

// Authenticate performs SESSION_SETUP with creds. Credentials that implement
// auth.KerberosProvider use Kerberos, everything else NTLMv2. nil or
// anonymous credentials produce a null session.
func (s *Session) Authenticate(ctx context.Context, creds auth.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.authenticated {
		return errors.New("session already authenticated")
	}

	var (
		key   []byte
		flags uint16
		err   error
		mech  = "ntlm"
	)
	if kp, ok := creds.(auth.KerberosProvider); ok {
		mech = "kerberos"
		key, flags, err = s.setupKerberos(ctx, kp)
	} else {
		key, flags, err = s.setupNTLM(ctx, creds)
	}
	s.config.Metrics.RecordSessionSetup(mech, err == nil)
	if err != nil {
		s.sessionID = 0
		return err
	}

	s.authenticated = true
	s.guest = flags&types.SessionFlagIsGuest != 0
	s.anonymous = flags&types.SessionFlagIsNull != 0 || creds == nil || creds.IsAnonymous()

	if !s.guest && !s.anonymous {
		s.signer = newSigner(s.neg.Dialect, key)
	}
	if s.signer == nil && !s.guest && !s.anonymous && (s.config.RequireSigning || s.neg.RequiresSigning) {
		return ErrSigningRequired
	}

	s.sessionKey = key
	if flags&types.SessionFlagEncryptData != 0 {
		if err := s.enableEncryption(); err != nil {
			return err
		}
		s.encryptAll = true
	}

	user := ""
	if creds != nil {
		user = creds.Username()
	}
	debug.Info("session established",
		debug.KeyServer, s.transport.RemoteHost(),
		debug.KeyUser, user,
		debug.KeySession, fmt.Sprintf("%#x", s.sessionID),
		"mechanism", mech,
		"guest", s.guest,
		"signed", s.shouldSign(types.CommandCreate),
		"encrypted", s.encryptAll)
	return nil
}

// enableEncryption derives the SMB3 sealing keys. Shares flagged for
// encryption call it lazily when the session itself is not encrypted.
func (s *Session) enableEncryption() error {
	if s.sealer != nil {
		return nil
	}
	if !s.neg.SupportsEncryption() || len(s.sessionKey) == 0 {
		return fmt.Errorf("%w: encryption requires SMB 3.x and a session key", ErrNotSupported)
	}
	sl, err := newSealer(s.sessionKey, s.sessionID)
	if err != nil {
		return fmt.Errorf("failed to derive encryption keys: %w", err)
	}
	s.sealer = sl
	return nil
}

// sessionSetup sends one leg of the GSS exchange.
func (s *Session) sessionSetup(ctx context.Context, token []byte) (*response, *types.SessionSetupResponse, error) {
	resp, err := s.callLocked(ctx, &request{
		Command: types.CommandSessionSetup,
		Body:    types.NewSessionSetupRequest(token).Marshal(),
		Accept:  []types.NTStatus{types.StatusMoreProcessingReq},
	})
	if err != nil {
		return nil, nil, err
	}
	s.sessionID = resp.Header.SessionID

	var setup types.SessionSetupResponse
	if err := setup.Unmarshal(resp.Body); err != nil {
		return nil, nil, fmt.Errorf("failed to parse session setup response: %w", err)
	}
	return resp, &setup, nil
}

// setupNTLM runs the two-leg NTLMSSP exchange inside SPNEGO.
func (s *Session) setupNTLM(ctx context.Context, creds auth.Credentials) ([]byte, uint16, error) {
	if creds == nil {
		creds = auth.NewAnonymousCredentials()
	}
	client := auth.NewNTLMClient(creds, s.config.Workstation)
	mechs := []asn1.ObjectIdentifier{auth.OIDNTLMSSP}

	token, err := auth.WrapNegTokenInit(client.Negotiate(), mechs...)
	if err != nil {
		return nil, 0, err
	}
	resp, setup, err := s.sessionSetup(ctx, token)
	if err != nil {
		return nil, 0, fmt.Errorf("session setup (negotiate) failed: %w", err)
	}
	if resp.Header.Status != types.StatusMoreProcessingReq {
		return nil, 0, fmt.Errorf("session setup: expected challenge, got %s", StatusName(resp.Header.Status))
	}

	challenge := auth.UnwrapNTLMSSP(setup.SecurityBuffer)
	if challenge == nil {
		return nil, 0, errors.New("failed to extract NTLMSSP challenge")
	}
	authMsg, err := client.Authenticate(challenge)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build NTLM authenticate message: %w", err)
	}

	mechList, err := auth.MechTypeList(mechs...)
	if err != nil {
		return nil, 0, err
	}
	mic, err := client.MechListMIC(mechList)
	if err != nil {
		return nil, 0, err
	}
	if token, err = auth.WrapNegTokenResp(authMsg, mic); err != nil {
		return nil, 0, err
	}

	resp, setup, err = s.sessionSetup(ctx, token)
	if err != nil {
		return nil, 0, fmt.Errorf("session setup (authenticate) failed: %w", err)
	}
	if resp.Header.Status != types.StatusSuccess {
		return nil, 0, StatusToError(types.CommandSessionSetup, resp.Header.Status)
	}
	return client.SessionKey(), setup.SessionFlags, nil
}

// setupKerberos sends a single AP-REQ for cifs/<host>. Mutual
// authentication is not requested, so one round trip completes the logon.
func (s *Session) setupKerberos(ctx context.Context, kp auth.KerberosProvider) ([]byte, uint16, error) {
	spn := "cifs/" + s.transport.RemoteHost()
	token, key, err := kp.SPNEGOToken(spn)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	resp, setup, err := s.sessionSetup(ctx, token)
	if err != nil {
		return nil, 0, fmt.Errorf("kerberos session setup failed: %w", err)
	}
	if resp.Header.Status != types.StatusSuccess {
		if state, _, perr := auth.ParseNegTokenResp(setup.SecurityBuffer); perr == nil && state == auth.NegStateReject {
			return nil, 0, fmt.Errorf("%w: server rejected kerberos", ErrAuthFailed)
		}
		return nil, 0, fmt.Errorf("%w: kerberos exchange needs another leg", ErrNotSupported)
	}
	return key, setup.SessionFlags, nil
}
