package smb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ineffectivecoder/smbclient/pkg/debug"
	"github.com/ineffectivecoder/smbclient/pkg/smb/types"
)

// NegotiateResult holds the result of dialect negotiation
type NegotiateResult struct {
	Dialect         types.Dialect
	ServerGUID      [16]byte
	MaxTransactSize uint32
	MaxReadSize     uint32
	MaxWriteSize    uint32
	RequiresSigning bool
	SecurityBuffer  []byte // SPNEGO hint from the server
	Capabilities    types.Capabilities
	Credits         uint16 // granted by the NEGOTIATE response
}

// SupportsEncryption reports whether SMB3 encryption is available.
func (n *NegotiateResult) SupportsEncryption() bool {
	return n.Dialect >= types.DialectSMB3_0 && n.Capabilities&types.GlobalCapEncryption != 0
}

// LargeMTU reports whether multi-credit requests are allowed.
func (n *NegotiateResult) LargeMTU() bool {
	return n.Dialect > types.DialectSMB2_0_2 && n.Capabilities&types.GlobalCapLargeMTU != 0
}

// Negotiate performs SMB2 dialect negotiation on a fresh transport. It uses
// MessageID 0.
func Negotiate(ctx context.Context, t *Transport, requireSigning bool) (*NegotiateResult, error) {
	req := types.NewNegotiateRequest([16]byte(uuid.New()), requireSigning)
	header := types.NewHeader(types.CommandNegotiate, 0)
	header.CreditCharge = 0

	msg := append(header.Marshal(), req.Marshal()...)
	if err := t.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("negotiate failed: %w", err)
	}

	var (
		resp       []byte
		respHeader types.Header
	)
	for {
		var err error
		if resp, err = t.Recv(ctx); err != nil {
			return nil, fmt.Errorf("negotiate failed: %w", err)
		}
		if len(resp) >= 4 && [4]byte(resp[:4]) == types.SMB1ProtocolID {
			return nil, fmt.Errorf("%w: server answered with SMB1", ErrNotSupported)
		}
		if err := respHeader.Unmarshal(resp); err != nil {
			return nil, fmt.Errorf("failed to parse response header: %w", err)
		}
		if respHeader.Status != types.StatusPending {
			break
		}
	}

	if !respHeader.Status.IsSuccess() {
		return nil, StatusToError(types.CommandNegotiate, respHeader.Status)
	}

	var negResp types.NegotiateResponse
	if err := negResp.Unmarshal(resp[types.SMB2HeaderSize:]); err != nil {
		return nil, fmt.Errorf("failed to parse negotiate response: %w", err)
	}
	if negResp.DialectRevision == types.DialectWildcard {
		return nil, errors.New("server returned wildcard dialect")
	}

	debug.Debug("negotiated", debug.KeyServer, t.RemoteHost(), debug.KeyDialect, DialectName(negResp.DialectRevision))

	return &NegotiateResult{
		Dialect:         negResp.DialectRevision,
		ServerGUID:      negResp.ServerGUID,
		MaxTransactSize: negResp.MaxTransactSize,
		MaxReadSize:     negResp.MaxReadSize,
		MaxWriteSize:    negResp.MaxWriteSize,
		RequiresSigning: negResp.RequiresSigning(),
		SecurityBuffer:  negResp.SecurityBuffer,
		Capabilities:    negResp.Capabilities,
		Credits:         respHeader.CreditRequest,
	}, nil
}

// DialectName returns a human-readable dialect name
func DialectName(d types.Dialect) string {
	switch d {
	case types.DialectSMB2_0_2:
		return "SMB 2.0.2"
	case types.DialectSMB2_1:
		return "SMB 2.1"
	case types.DialectSMB3_0:
		return "SMB 3.0"
	case types.DialectSMB3_0_2:
		return "SMB 3.0.2"
	case types.DialectSMB3_1_1:
		return "SMB 3.1.1"
	default:
		return fmt.Sprintf("Unknown (0x%04X)", uint16(d))
	}
}
