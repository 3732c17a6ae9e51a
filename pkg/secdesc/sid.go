// Package secdesc models Windows security descriptors: SIDs, ACEs and the
// self-relative binary layout returned by QUERY_INFO(SECURITY), plus the
// text form used by the system.nt_sec_desc.* extended attributes.
//
// The SID binary format is
//
//	Revision(1) + SubAuthorityCount(1) + IdentifierAuthority(6, big-endian)
//	+ SubAuthorities(4*N, little-endian)
//
// and its string form is "S-{Revision}-{Authority}-{SubAuth1}-...".
package secdesc

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ineffectivecoder/smbclient/internal/encoding"
)

// maxSubAuthorities is the MS-DTYP limit.
const maxSubAuthorities = 15

var errShortBuffer = errors.New("security descriptor truncated")

// SID is a security identifier.
type SID struct {
	Revision       uint8
	Authority      uint64 // 48 bits
	SubAuthorities []uint32
}

// Size returns the binary size of the SID.
func (s SID) Size() int {
	return 8 + 4*len(s.SubAuthorities)
}

// Marshal encodes the SID.
func (s SID) Marshal() []byte {
	w := encoding.NewWriter(s.Size())
	w.U8(s.Revision).U8(uint8(len(s.SubAuthorities)))
	for i := 5; i >= 0; i-- {
		w.U8(uint8(s.Authority >> (8 * i)))
	}
	for _, sa := range s.SubAuthorities {
		w.U32(sa)
	}
	return w.Bytes()
}

// DecodeSID parses a binary SID and returns it with the bytes consumed.
func DecodeSID(data []byte) (SID, int, error) {
	if len(data) < 8 {
		return SID{}, 0, fmt.Errorf("SID too short: %d bytes", len(data))
	}
	s := SID{Revision: data[0]}
	count := int(data[1])
	for _, b := range data[2:8] {
		s.Authority = s.Authority<<8 | uint64(b)
	}
	size := 8 + 4*count
	if len(data) < size {
		return SID{}, 0, fmt.Errorf("SID data too short for %d sub-authorities", count)
	}
	s.SubAuthorities = make([]uint32, count)
	for i := range count {
		s.SubAuthorities[i] = encoding.Uint32LE(data[8+4*i:])
	}
	return s, size, nil
}

// String formats the SID as S-1-5-21-...
func (s SID) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "S-%d-%d", s.Revision, s.Authority)
	for _, sa := range s.SubAuthorities {
		fmt.Fprintf(&b, "-%d", sa)
	}
	return b.String()
}

// ParseSID parses the S-R-A-S1-... form. The authority may be given in hex
// (0x...) as Windows prints authorities of 2^32 and above.
func ParseSID(str string) (SID, error) {
	if len(str) < 2 || !strings.EqualFold(str[:2], "S-") {
		return SID{}, fmt.Errorf("invalid SID %q: must start with S-", str)
	}
	parts := strings.Split(str[2:], "-")
	if len(parts) < 2 || len(parts)-2 > maxSubAuthorities {
		return SID{}, fmt.Errorf("invalid SID %q", str)
	}
	rev, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return SID{}, fmt.Errorf("invalid SID revision in %q: %w", str, err)
	}
	auth, err := strconv.ParseUint(parts[1], 0, 48)
	if err != nil {
		return SID{}, fmt.Errorf("invalid SID authority in %q: %w", str, err)
	}
	s := SID{Revision: uint8(rev), Authority: auth, SubAuthorities: make([]uint32, len(parts)-2)}
	for i, p := range parts[2:] {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return SID{}, fmt.Errorf("invalid SID sub-authority in %q: %w", str, err)
		}
		s.SubAuthorities[i] = uint32(v)
	}
	return s, nil
}

// MustParseSID panics on malformed input. Used for well-known SIDs.
func MustParseSID(str string) SID {
	s, err := ParseSID(str)
	if err != nil {
		panic(err)
	}
	return s
}

// IsSID reports whether str looks like a string SID rather than a name.
func IsSID(str string) bool {
	_, err := ParseSID(str)
	return err == nil
}

// Equal reports whether two SIDs are identical.
func (s SID) Equal(o SID) bool {
	return s.Revision == o.Revision && s.Authority == o.Authority &&
		slices.Equal(s.SubAuthorities, o.SubAuthorities)
}

// Well-known SIDs
var (
	Everyone       = MustParseSID("S-1-1-0")
	CreatorOwner   = MustParseSID("S-1-3-0")
	LocalSystem    = MustParseSID("S-1-5-18")
	Administrators = MustParseSID("S-1-5-32-544")
	Users          = MustParseSID("S-1-5-32-545")
)
