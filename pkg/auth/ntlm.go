package auth

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ineffectivecoder/smbclient/internal/crypto"
	"github.com/ineffectivecoder/smbclient/internal/encoding"
)

// NTLM message signatures and types
var ntlmSignature = []byte{'N', 'T', 'L', 'M', 'S', 'S', 'P', 0}

const (
	NtLmNegotiate    = 0x00000001 // Type 1
	NtLmChallenge    = 0x00000002 // Type 2
	NtLmAuthenticate = 0x00000003 // Type 3
)

// NTLMSSP negotiate flags
const (
	NtlmsspNegotiateUnicode                 uint32 = 0x00000001
	NtlmsspRequestTarget                    uint32 = 0x00000004
	NtlmsspNegotiateSign                    uint32 = 0x00000010
	NtlmsspNegotiateSeal                    uint32 = 0x00000020
	NtlmsspNegotiateNTLM                    uint32 = 0x00000200
	NtlmsspNegotiateAnonymous               uint32 = 0x00000800
	NtlmsspNegotiateAlwaysSign              uint32 = 0x00008000
	NtlmsspNegotiateExtendedSessionSecurity uint32 = 0x00080000
	NtlmsspNegotiateTargetInfo              uint32 = 0x00800000
	NtlmsspNegotiateVersion                 uint32 = 0x02000000
	NtlmsspNegotiate128                     uint32 = 0x20000000
	NtlmsspNegotiateKeyExchange             uint32 = 0x40000000
	NtlmsspNegotiate56                      uint32 = 0x80000000
)

// DefaultNegotiateFlags for NTLMv2 authentication
var DefaultNegotiateFlags = NtlmsspNegotiateUnicode |
	NtlmsspRequestTarget |
	NtlmsspNegotiateSign |
	NtlmsspNegotiateNTLM |
	NtlmsspNegotiateAlwaysSign |
	NtlmsspNegotiateExtendedSessionSecurity |
	NtlmsspNegotiateTargetInfo |
	NtlmsspNegotiateVersion |
	NtlmsspNegotiate128 |
	NtlmsspNegotiateKeyExchange |
	NtlmsspNegotiate56

// ntlmVersion is the Version field sent in every message: 10.0.19041, rev 15.
var ntlmVersion = []byte{10, 0, 0x61, 0x4a, 0, 0, 0, 15}

// AV_PAIR IDs
const (
	MsvAvEOL             uint16 = 0x0000
	MsvAvNbComputerName  uint16 = 0x0001
	MsvAvNbDomainName    uint16 = 0x0002
	MsvAvDnsComputerName uint16 = 0x0003
	MsvAvDnsDomainName   uint16 = 0x0004
	MsvAvFlags           uint16 = 0x0006
	MsvAvTimestamp       uint16 = 0x0007
)

// msvAvFlagMICPresent marks an AUTHENTICATE message carrying a MIC.
const msvAvFlagMICPresent = 0x00000002

// AvPair represents an AV_PAIR structure in TargetInfo
type AvPair struct {
	ID    uint16
	Value []byte
}

// ParseAvPairs parses an AV_PAIR list, stopping at MsvAvEOL.
func ParseAvPairs(data []byte) []AvPair {
	var pairs []AvPair
	r := encoding.NewReader(data)
	for r.Remaining() >= 4 {
		id, n := r.U16(), r.U16()
		if id == MsvAvEOL {
			break
		}
		v := r.Bytes(int(n))
		if r.Err() != nil {
			break
		}
		pairs = append(pairs, AvPair{ID: id, Value: v})
	}
	return pairs
}

// MarshalAvPairs serializes an AV_PAIR list and terminates it.
func MarshalAvPairs(pairs []AvPair) []byte {
	w := encoding.NewWriter(64)
	for _, p := range pairs {
		w.U16(p.ID).U16(uint16(len(p.Value))).Raw(p.Value)
	}
	w.U32(0)
	return w.Bytes()
}

// FindAvPair finds an AV_PAIR by ID
func FindAvPair(pairs []AvPair, id uint16) *AvPair {
	for i := range pairs {
		if pairs[i].ID == id {
			return &pairs[i]
		}
	}
	return nil
}

// ChallengeMessage is the parsed NTLMSSP CHALLENGE (Type 2).
type ChallengeMessage struct {
	Flags           uint32
	ServerChallenge []byte
	TargetName      string
	TargetInfo      []byte
}

var errBadNTLMMessage = errors.New("auth: malformed NTLMSSP message")

// ParseChallengeMessage parses a Type 2 message.
func ParseChallengeMessage(buf []byte) (*ChallengeMessage, error) {
	if len(buf) < 48 || !bytes.Equal(buf[:8], ntlmSignature) {
		return nil, errBadNTLMMessage
	}
	if t := encoding.Uint32LE(buf[8:12]); t != NtLmChallenge {
		return nil, fmt.Errorf("auth: expected CHALLENGE message, got type %d", t)
	}
	msg := &ChallengeMessage{
		Flags:           encoding.Uint32LE(buf[20:24]),
		ServerChallenge: append([]byte{}, buf[24:32]...),
	}
	if name, ok := field(buf, 12); ok {
		msg.TargetName = encoding.FromUTF16LE(name)
	}
	if info, ok := field(buf, 40); ok {
		msg.TargetInfo = append([]byte{}, info...)
	}
	return msg, nil
}

// field resolves a (len, maxlen, offset) descriptor at off.
func field(buf []byte, off int) ([]byte, bool) {
	n := int(encoding.Uint16LE(buf[off:]))
	start := int(encoding.Uint32LE(buf[off+4:]))
	return encoding.Slice(buf, start, n)
}

// NTLMClient drives one NTLMSSP exchange. It is single use.
type NTLMClient struct {
	creds       Credentials
	workstation string
	flags       uint32

	negotiate  []byte
	sessionKey []byte
	keyExch    bool
	micPresent bool
}

// NewNTLMClient prepares an exchange for creds. workstation is sent as the
// client's NetBIOS name.
func NewNTLMClient(creds Credentials, workstation string) *NTLMClient {
	return &NTLMClient{
		creds:       creds,
		workstation: strings.ToUpper(workstation),
		flags:       DefaultNegotiateFlags,
	}
}

// Negotiate returns the Type 1 message.
func (c *NTLMClient) Negotiate() []byte {
	w := encoding.NewWriter(40)
	w.Raw(ntlmSignature).U32(NtLmNegotiate).U32(c.flags)
	w.Zero(16) // domain and workstation fields, not supplied
	w.Raw(ntlmVersion)
	c.negotiate = w.Bytes()
	return c.negotiate
}

// Authenticate consumes the server's Type 2 message and returns Type 3.
func (c *NTLMClient) Authenticate(challenge []byte) ([]byte, error) {
	if c.negotiate == nil {
		c.Negotiate()
	}
	chal, err := ParseChallengeMessage(challenge)
	if err != nil {
		return nil, err
	}

	flags := c.flags & chal.Flags
	flags |= NtlmsspNegotiateUnicode | NtlmsspNegotiateVersion

	var (
		lm, nt, encKey []byte
		domain, user   string
	)

	if c.creds == nil || c.creds.IsAnonymous() {
		flags |= NtlmsspNegotiateAnonymous
		flags &^= NtlmsspNegotiateKeyExchange
		lm = []byte{0}
	} else {
		src, ok := c.creds.(hashSource)
		if !ok {
			return nil, fmt.Errorf("auth: %T cannot be used for NTLM", c.creds)
		}
		domain, user = c.creds.Domain(), c.creds.Username()
		v2 := NTLMv2Hash(src.ntHash(), user, domain)

		clientChallenge, err := randomBytes(8)
		if err != nil {
			return nil, err
		}

		pairs := ParseAvPairs(chal.TargetInfo)
		timestamp := nowFiletime()
		if ts := FindAvPair(pairs, MsvAvTimestamp); ts != nil && len(ts.Value) == 8 {
			timestamp = ts.Value
			c.micPresent = true
			pairs = setAvFlags(pairs, msvAvFlagMICPresent)
		}

		var baseKey []byte
		nt, baseKey = ntlmv2Response(v2, chal.ServerChallenge, clientChallenge, timestamp, MarshalAvPairs(pairs))
		if c.micPresent {
			lm = make([]byte, 24)
		} else {
			lm = lmv2Response(v2, chal.ServerChallenge, clientChallenge)
		}

		c.sessionKey = baseKey
		if flags&NtlmsspNegotiateKeyExchange != 0 {
			exported, err := randomBytes(16)
			if err != nil {
				return nil, err
			}
			if encKey, err = crypto.RC4(baseKey, exported); err != nil {
				return nil, fmt.Errorf("auth: encrypt session key: %w", err)
			}
			c.sessionKey = exported
			c.keyExch = true
		}
	}

	msg := c.marshalAuthenticate(flags, lm, nt, domain, user, encKey)
	if c.micPresent {
		mic := crypto.HMACMD5(c.sessionKey, c.negotiate, challenge, msg)
		copy(msg[72:88], mic)
	}
	return msg, nil
}

// marshalAuthenticate lays out a Type 3 message with a zeroed MIC.
func (c *NTLMClient) marshalAuthenticate(flags uint32, lm, nt []byte, domain, user string, encKey []byte) []byte {
	const headerLen = 88
	payloads := [][]byte{
		lm,
		nt,
		encoding.ToUTF16LE(domain),
		encoding.ToUTF16LE(user),
		encoding.ToUTF16LE(c.workstation),
		encKey,
	}

	w := encoding.NewWriter(headerLen + 512)
	w.Raw(ntlmSignature).U32(NtLmAuthenticate)
	off := headerLen
	for _, p := range payloads {
		w.U16(uint16(len(p))).U16(uint16(len(p))).U32(uint32(off))
		off += len(p)
	}
	w.U32(flags).Raw(ntlmVersion).Zero(16)
	for _, p := range payloads {
		w.Raw(p)
	}
	return w.Bytes()
}

// setAvFlags ORs v into MsvAvFlags, adding the pair if absent.
func setAvFlags(pairs []AvPair, v uint32) []AvPair {
	if p := FindAvPair(pairs, MsvAvFlags); p != nil && len(p.Value) == 4 {
		p.Value = encoding.AppendUint32LE(nil, encoding.Uint32LE(p.Value)|v)
		return pairs
	}
	return append(pairs, AvPair{ID: MsvAvFlags, Value: encoding.AppendUint32LE(nil, v)})
}

// SessionKey returns the exported session key, or nil for anonymous logons.
func (c *NTLMClient) SessionKey() []byte {
	return c.sessionKey
}

// MechListMIC signs the DER-encoded SPNEGO mechanism list with sequence
// number zero. It returns nil when the exchange carried no MIC.
func (c *NTLMClient) MechListMIC(mechTypes []byte) ([]byte, error) {
	if !c.micPresent || c.sessionKey == nil {
		return nil, nil
	}
	return messageSignature(c.sessionKey, 0, mechTypes, c.keyExch)
}
