// Package lsarpc implements the SID and name translation calls of the
// Local Security Authority (Translation Methods) Remote Protocol (MS-LSAT).
package lsarpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/ineffectivecoder/smbclient/pkg/dcerpc"
	"github.com/ineffectivecoder/smbclient/pkg/pipe"
	"github.com/ineffectivecoder/smbclient/pkg/secdesc"
	"github.com/ineffectivecoder/smbclient/pkg/smb"
)

// LSARPC_UUID is the lsarpc interface, version 0.0.
var LSARPC_UUID = dcerpc.MustParseUUID("12345778-1234-abcd-ef00-0123456789ab")

// Opnums
const (
	OpLsarClose       = 0
	OpLsarLookupNames = 14
	OpLsarLookupSids  = 15
	OpLsarOpenPolicy2 = 44
)

// Access masks for OpenPolicy2
const (
	PolicyLookupNames uint32 = 0x00000800
	MaximumAllowed    uint32 = 0x02000000
)

// lookupWksta is LsapLookupWksta.
const lookupWksta = 1

// NTSTATUS values the lookup calls return on partial success.
const (
	StatusSomeNotMapped uint32 = 0x00000107
	StatusNoneMapped    uint32 = 0xC0000073
)

// SID_NAME_USE
const (
	SidTypeUser           uint16 = 1
	SidTypeGroup          uint16 = 2
	SidTypeDomain         uint16 = 3
	SidTypeAlias          uint16 = 4
	SidTypeWellKnownGroup uint16 = 5
	SidTypeDeletedAccount uint16 = 6
	SidTypeInvalid        uint16 = 7
	SidTypeUnknown        uint16 = 8
	SidTypeComputer       uint16 = 9
)

// ErrNoneMapped is returned by LookupNames when no name resolved.
var ErrNoneMapped = errors.New("lsarpc: none mapped")

// StatusError is a failing NTSTATUS from an LSA call.
type StatusError struct {
	Op     string
	Status uint32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned NTSTATUS 0x%08X", e.Op, e.Status)
}

// Handle is a 20-byte policy handle
type Handle [20]byte

// TranslatedName is the result of resolving one SID.
type TranslatedName struct {
	Name   string
	Domain string
	Use    uint16
}

// Mapped reports whether the server knew the SID.
func (n TranslatedName) Mapped() bool {
	return n.Use != SidTypeUnknown && n.Use != SidTypeInvalid && n.Name != ""
}

// String returns DOMAIN\name, or just the name when there is no domain.
func (n TranslatedName) String() string {
	if n.Domain == "" {
		return n.Name
	}
	return n.Domain + `\` + n.Name
}

// TranslatedSID is the result of resolving one name.
type TranslatedSID struct {
	SID secdesc.SID
	Use uint16
}

// Mapped reports whether the server knew the name.
func (s TranslatedSID) Mapped() bool {
	return s.Use != SidTypeUnknown && s.Use != SidTypeInvalid && s.SID.Revision != 0
}

// Client is an LSARPC client holding an open policy handle.
type Client struct {
	rpc    *dcerpc.Client
	pipe   *pipe.Pipe
	policy Handle
}

// NewClient opens \PIPE\lsarpc on an IPC$ tree, binds, and opens the
// policy with lookup rights.
func NewClient(ctx context.Context, tree *smb.Tree) (*Client, error) {
	p, err := pipe.Open(ctx, tree, pipe.PipeLsarpc)
	if err != nil {
		return nil, err
	}
	rpc := dcerpc.NewClient(p)
	if err := rpc.Bind(ctx, LSARPC_UUID, 0); err != nil {
		p.Close(ctx)
		return nil, fmt.Errorf("failed to bind to LSARPC: %w", err)
	}
	c := &Client{rpc: rpc, pipe: p}
	if err := c.OpenPolicy2(ctx, "", MaximumAllowed); err != nil {
		p.Close(ctx)
		return nil, err
	}
	return c, nil
}

// OpenPolicy2 opens the policy object. serverName may be empty.
func (c *Client) OpenPolicy2(ctx context.Context, serverName string, access uint32) error {
	resp, err := c.rpc.Call(ctx, OpLsarOpenPolicy2, encodeOpenPolicy2(serverName, access))
	if err != nil {
		return fmt.Errorf("LsarOpenPolicy2 failed: %w", err)
	}
	h, status, err := parseHandleResponse(resp)
	if err != nil {
		return err
	}
	if status != 0 {
		return &StatusError{Op: "LsarOpenPolicy2", Status: status}
	}
	c.policy = h
	return nil
}

// LookupSids resolves SIDs to names. The result has one entry per input
// SID; unknown SIDs come back with Use set to SidTypeUnknown.
func (c *Client) LookupSids(ctx context.Context, sids []secdesc.SID) ([]TranslatedName, error) {
	if len(sids) == 0 {
		return nil, nil
	}
	resp, err := c.rpc.Call(ctx, OpLsarLookupSids, encodeLookupSids(c.policy, sids))
	if err != nil {
		return nil, fmt.Errorf("LsarLookupSids failed: %w", err)
	}
	return parseLookupSidsResponse(resp, len(sids))
}

// LookupNames resolves account names (optionally DOMAIN\name) to SIDs.
// It returns ErrNoneMapped when nothing resolved.
func (c *Client) LookupNames(ctx context.Context, names []string) ([]TranslatedSID, error) {
	if len(names) == 0 {
		return nil, nil
	}
	resp, err := c.rpc.Call(ctx, OpLsarLookupNames, encodeLookupNames(c.policy, names))
	if err != nil {
		return nil, fmt.Errorf("LsarLookupNames failed: %w", err)
	}
	return parseLookupNamesResponse(resp, len(names))
}

// Close releases the policy handle and the pipe.
func (c *Client) Close(ctx context.Context) error {
	var closeErr error
	if c.policy != (Handle{}) {
		w := dcerpc.NewNDRWriter()
		w.WriteBytes(c.policy[:])
		if resp, err := c.rpc.Call(ctx, OpLsarClose, w.Bytes()); err != nil {
			closeErr = fmt.Errorf("LsarClose failed: %w", err)
		} else if _, status, err := parseHandleResponse(resp); err == nil && status != 0 {
			closeErr = &StatusError{Op: "LsarClose", Status: status}
		}
		c.policy = Handle{}
	}
	if err := c.pipe.Close(ctx); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}

func encodeOpenPolicy2(serverName string, access uint32) []byte {
	w := dcerpc.NewNDRWriter()
	if serverName == "" {
		w.WriteNullPointer()
	} else {
		w.WritePointer()
		w.WriteUnicodeString(`\\` + serverName)
	}
	// LSAPR_OBJECT_ATTRIBUTES, all members null
	w.WriteUint32(24)
	w.WriteNullPointer() // RootDirectory
	w.WriteNullPointer() // ObjectName
	w.WriteUint32(0)     // Attributes
	w.WriteNullPointer() // SecurityDescriptor
	w.WriteNullPointer() // SecurityQualityOfService
	w.WriteUint32(access)
	return w.Bytes()
}

func encodeLookupSids(policy Handle, sids []secdesc.SID) []byte {
	w := dcerpc.NewNDRWriter()
	w.WriteBytes(policy[:])

	// LSAPR_SID_ENUM_BUFFER
	w.WriteUint32(uint32(len(sids)))
	w.WritePointer()
	w.WriteUint32(uint32(len(sids)))
	for range sids {
		w.WritePointer()
	}
	for _, sid := range sids {
		writeSID(w, sid)
	}

	// empty LSAPR_TRANSLATED_NAMES
	w.WriteUint32(0)
	w.WriteNullPointer()

	w.WriteUint16(lookupWksta)
	w.WriteUint32(0) // MappedCount
	return w.Bytes()
}

func encodeLookupNames(policy Handle, names []string) []byte {
	w := dcerpc.NewNDRWriter()
	w.WriteBytes(policy[:])

	w.WriteUint32(uint32(len(names)))
	w.WriteUint32(uint32(len(names))) // conformance
	for _, n := range names {
		w.WriteRPCUnicodeStringHeader(n)
	}
	for _, n := range names {
		w.WriteRPCUnicodeStringBody(n)
	}

	// empty LSAPR_TRANSLATED_SIDS
	w.WriteUint32(0)
	w.WriteNullPointer()

	w.WriteUint16(lookupWksta)
	w.WriteUint32(0)
	return w.Bytes()
}

// writeSID writes an RPC_SID with its conformance count.
func writeSID(w *dcerpc.NDRWriter, sid secdesc.SID) {
	w.WriteUint32(uint32(len(sid.SubAuthorities)))
	w.WriteBytes(sid.Marshal())
}

func parseHandleResponse(resp []byte) (Handle, uint32, error) {
	var h Handle
	if len(resp) < 24 {
		return h, 0, fmt.Errorf("policy handle response too short: %d bytes", len(resp))
	}
	copy(h[:], resp[:20])
	r := dcerpc.NewNDRReader(resp[20:])
	status, err := r.ReadUint32()
	return h, status, err
}

// scanner wraps NDRReader with a sticky error.
type scanner struct {
	r   *dcerpc.NDRReader
	err error
}

func (s *scanner) u16() uint16 {
	if s.err != nil {
		return 0
	}
	v, err := s.r.ReadUint16()
	s.err = err
	return v
}

func (s *scanner) u32() uint32 {
	if s.err != nil {
		return 0
	}
	v, err := s.r.ReadUint32()
	s.err = err
	return v
}

func (s *scanner) rpcString() dcerpc.RPCUnicodeString {
	if s.err != nil {
		return dcerpc.RPCUnicodeString{}
	}
	h, err := s.r.ReadRPCUnicodeStringHeader()
	s.err = err
	return h
}

func (s *scanner) rpcStringBody(h dcerpc.RPCUnicodeString) string {
	if s.err != nil {
		return ""
	}
	v, err := s.r.ReadRPCUnicodeStringBody(h)
	s.err = err
	return v
}

func (s *scanner) sid() secdesc.SID {
	if s.err != nil {
		return secdesc.SID{}
	}
	s.u32() // conformance
	hdr, err := s.r.ReadBytes(8)
	if err != nil {
		s.err = err
		return secdesc.SID{}
	}
	rest, err := s.r.ReadBytes(4 * int(hdr[1]))
	if err != nil {
		s.err = err
		return secdesc.SID{}
	}
	sid, _, err := secdesc.DecodeSID(append(hdr, rest...))
	s.err = err
	return sid
}

// count reads an array conformance and checks it against the entries
// already announced and the bytes left.
func (s *scanner) count(want uint32, elemSize int) bool {
	n := s.u32()
	if s.err != nil {
		return false
	}
	if n < want || int(want)*elemSize > s.r.Remaining() {
		s.err = fmt.Errorf("array conformance %d for %d entries", n, want)
		return false
	}
	return true
}

type domainInfo struct {
	name string
	sid  secdesc.SID
}

// referencedDomains reads a PLSAPR_REFERENCED_DOMAIN_LIST.
func (s *scanner) referencedDomains() []domainInfo {
	if s.u32() == 0 {
		return nil
	}
	entries := s.u32()
	ptr := s.u32()
	s.u32() // MaxEntries
	if ptr == 0 || !s.count(entries, 12) {
		return nil
	}
	names := make([]dcerpc.RPCUnicodeString, entries)
	sidPtrs := make([]uint32, entries)
	for i := range names {
		names[i] = s.rpcString()
		sidPtrs[i] = s.u32()
	}
	domains := make([]domainInfo, entries)
	for i := range domains {
		domains[i].name = s.rpcStringBody(names[i])
		if sidPtrs[i] != 0 {
			domains[i].sid = s.sid()
		}
	}
	return domains
}

func domainAt(domains []domainInfo, idx uint32) (domainInfo, bool) {
	i := int(int32(idx))
	if i < 0 || i >= len(domains) {
		return domainInfo{}, false
	}
	return domains[i], true
}

func lookupStatus(op string, s *scanner) error {
	s.u32() // MappedCount
	status := s.u32()
	if s.err != nil {
		return fmt.Errorf("malformed %s response: %w", op, s.err)
	}
	switch status {
	case 0, StatusSomeNotMapped, StatusNoneMapped:
		return nil
	}
	return &StatusError{Op: op, Status: status}
}

func parseLookupSidsResponse(resp []byte, want int) ([]TranslatedName, error) {
	s := &scanner{r: dcerpc.NewNDRReader(resp)}
	domains := s.referencedDomains()

	out := make([]TranslatedName, want)
	for i := range out {
		out[i].Use = SidTypeUnknown
	}

	entries := s.u32()
	if s.u32() != 0 && s.count(entries, 16) {
		type nameRef struct {
			use    uint16
			name   dcerpc.RPCUnicodeString
			domain uint32
		}
		refs := make([]nameRef, entries)
		for i := range refs {
			refs[i].use = s.u16()
			refs[i].name = s.rpcString()
			refs[i].domain = s.u32()
		}
		for i, ref := range refs {
			name := s.rpcStringBody(ref.name)
			if i >= want {
				continue
			}
			out[i] = TranslatedName{Name: name, Use: ref.use}
			if d, ok := domainAt(domains, ref.domain); ok {
				out[i].Domain = d.name
			}
		}
	}
	if err := lookupStatus("LsarLookupSids", s); err != nil {
		return nil, err
	}
	return out, nil
}

func parseLookupNamesResponse(resp []byte, want int) ([]TranslatedSID, error) {
	s := &scanner{r: dcerpc.NewNDRReader(resp)}
	domains := s.referencedDomains()

	out := make([]TranslatedSID, want)
	for i := range out {
		out[i].Use = SidTypeUnknown
	}

	mapped := 0
	entries := s.u32()
	if s.u32() != 0 && s.count(entries, 12) {
		for i := 0; i < int(entries); i++ {
			use := s.u16()
			rid := s.u32()
			d, ok := domainAt(domains, s.u32())
			if i >= want || !ok || use == SidTypeUnknown || use == SidTypeInvalid {
				continue
			}
			sid := secdesc.SID{
				Revision:       d.sid.Revision,
				Authority:      d.sid.Authority,
				SubAuthorities: append([]uint32(nil), d.sid.SubAuthorities...),
			}
			if use != SidTypeDomain {
				sid.SubAuthorities = append(sid.SubAuthorities, rid)
			}
			out[i] = TranslatedSID{SID: sid, Use: use}
			mapped++
		}
	}
	if err := lookupStatus("LsarLookupNames", s); err != nil {
		return nil, err
	}
	if mapped == 0 {
		return nil, ErrNoneMapped
	}
	return out, nil
}
