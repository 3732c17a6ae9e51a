package dcerpc

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ineffectivecoder/smbclient/internal/encoding"
)

// UUID is a DCE UUID in wire order: the first three fields little-endian.
type UUID [16]byte

// String formats the UUID in canonical form
func (u UUID) String() string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		encoding.Uint32LE(u[0:4]),
		encoding.Uint16LE(u[4:6]),
		encoding.Uint16LE(u[6:8]),
		u[8:10],
		u[10:16])
}

// ParseUUID parses a canonical UUID string (with or without dashes) into
// wire order.
func ParseUUID(s string) (UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	var u UUID
	u[0], u[1], u[2], u[3] = id[3], id[2], id[1], id[0]
	u[4], u[5] = id[5], id[4]
	u[6], u[7] = id[7], id[6]
	copy(u[8:], id[8:])
	return u, nil
}

// MustParseUUID parses a UUID and panics on error
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// SyntaxID represents an interface or transfer syntax identifier
type SyntaxID struct {
	UUID    UUID
	Version uint32
}

// Marshal serializes the syntax ID
func (s *SyntaxID) Marshal() []byte {
	buf := make([]byte, 20)
	copy(buf[0:16], s.UUID[:])
	encoding.PutUint32LE(buf[16:20], s.Version)
	return buf
}

// Unmarshal deserializes a syntax ID
func (s *SyntaxID) Unmarshal(buf []byte) error {
	if len(buf) < 20 {
		return ErrBufferTooSmall
	}
	copy(s.UUID[:], buf[0:16])
	s.Version = encoding.Uint32LE(buf[16:20])
	return nil
}

// NDRSyntax is the NDR 2.0 transfer syntax.
var NDRSyntax = SyntaxID{
	UUID:    MustParseUUID("8a885d04-1ceb-11c9-9fe8-08002b104860"),
	Version: 2,
}
