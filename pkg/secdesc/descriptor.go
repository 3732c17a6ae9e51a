package secdesc

import (
	"fmt"

	"github.com/ineffectivecoder/smbclient/internal/encoding"
)

// Security information selectors for QUERY_INFO/SET_INFO AdditionalInfo.
const (
	OwnerSecurityInformation uint32 = 0x00000001
	GroupSecurityInformation uint32 = 0x00000002
	DACLSecurityInformation  uint32 = 0x00000004
	SACLSecurityInformation  uint32 = 0x00000008
)

// Control flags
const (
	ControlDACLPresent  uint16 = 0x0004
	ControlSACLPresent  uint16 = 0x0010
	ControlSelfRelative uint16 = 0x8000
)

// ACE types
const (
	AccessAllowed uint8 = 0x00
	AccessDenied  uint8 = 0x01
	SystemAudit   uint8 = 0x02
)

// ACE flags
const (
	ObjectInherit    uint8 = 0x01
	ContainerInherit uint8 = 0x02
	NoPropagate      uint8 = 0x04
	InheritOnly      uint8 = 0x08
	Inherited        uint8 = 0x10
)

const (
	headerSize    = 20
	aclHeaderSize = 8
	aceHeaderSize = 8
)

// ACE is one access control entry. Object holds the object-type fields of
// object ACEs between the mask and the SID; Extra holds trailing
// application data. Both are carried through unchanged.
type ACE struct {
	Type   uint8
	Flags  uint8
	Mask   uint32
	SID    SID
	Object []byte
	Extra  []byte
}

func (a *ACE) size() int {
	return aceHeaderSize + len(a.Object) + a.SID.Size() + len(a.Extra)
}

// isObjectACE reports the ACE types whose SID follows object GUIDs.
func isObjectACE(t uint8) bool {
	switch t {
	case 0x05, 0x06, 0x07, 0x08, 0x0B, 0x0C, 0x0F, 0x10:
		return true
	}
	return false
}

// ACL is a discretionary or system access control list.
type ACL struct {
	Revision uint8
	ACEs     []ACE
}

// Descriptor is a parsed security descriptor. Absent parts are nil.
type Descriptor struct {
	Revision uint8
	Control  uint16
	Owner    *SID
	Group    *SID
	DACL     *ACL
	SACL     []byte // raw, passed through
}

// Parse decodes a self-relative security descriptor.
func Parse(buf []byte) (*Descriptor, error) {
	if len(buf) < headerSize {
		return nil, errShortBuffer
	}
	d := &Descriptor{
		Revision: buf[0],
		Control:  encoding.Uint16LE(buf[2:4]),
	}
	ownerOff := int(encoding.Uint32LE(buf[4:8]))
	groupOff := int(encoding.Uint32LE(buf[8:12]))
	saclOff := int(encoding.Uint32LE(buf[12:16]))
	daclOff := int(encoding.Uint32LE(buf[16:20]))

	if ownerOff != 0 {
		s, err := sidAt(buf, ownerOff)
		if err != nil {
			return nil, fmt.Errorf("owner: %w", err)
		}
		d.Owner = &s
	}
	if groupOff != 0 {
		s, err := sidAt(buf, groupOff)
		if err != nil {
			return nil, fmt.Errorf("group: %w", err)
		}
		d.Group = &s
	}
	if d.Control&ControlDACLPresent != 0 && daclOff != 0 {
		acl, err := parseACL(buf, daclOff)
		if err != nil {
			return nil, fmt.Errorf("dacl: %w", err)
		}
		d.DACL = acl
	}
	if d.Control&ControlSACLPresent != 0 && saclOff != 0 {
		if saclOff+aclHeaderSize > len(buf) {
			return nil, errShortBuffer
		}
		size := int(encoding.Uint16LE(buf[saclOff+2:]))
		raw, ok := encoding.Slice(buf, saclOff, size)
		if !ok {
			return nil, errShortBuffer
		}
		d.SACL = append([]byte(nil), raw...)
	}
	return d, nil
}

func sidAt(buf []byte, off int) (SID, error) {
	if off >= len(buf) {
		return SID{}, errShortBuffer
	}
	s, _, err := DecodeSID(buf[off:])
	return s, err
}

func parseACL(buf []byte, off int) (*ACL, error) {
	if off+aclHeaderSize > len(buf) {
		return nil, errShortBuffer
	}
	acl := &ACL{Revision: buf[off]}
	size := int(encoding.Uint16LE(buf[off+2:]))
	count := int(encoding.Uint16LE(buf[off+4:]))
	body, ok := encoding.Slice(buf, off, size)
	if !ok {
		return nil, errShortBuffer
	}

	pos := aclHeaderSize
	for i := range count {
		if pos+aceHeaderSize > len(body) {
			return nil, fmt.Errorf("ace %d: %w", i, errShortBuffer)
		}
		ace := ACE{Type: body[pos], Flags: body[pos+1], Mask: encoding.Uint32LE(body[pos+4:])}
		aceSize := int(encoding.Uint16LE(body[pos+2:]))
		raw, ok := encoding.Slice(body, pos, aceSize)
		if !ok || aceSize < aceHeaderSize {
			return nil, fmt.Errorf("ace %d: %w", i, errShortBuffer)
		}
		rest := raw[aceHeaderSize:]
		if isObjectACE(ace.Type) {
			n := objectFieldsSize(rest)
			if n > len(rest) {
				return nil, fmt.Errorf("ace %d: %w", i, errShortBuffer)
			}
			ace.Object = append([]byte(nil), rest[:n]...)
			rest = rest[n:]
		}
		s, n, err := DecodeSID(rest)
		if err != nil {
			return nil, fmt.Errorf("ace %d: %w", i, err)
		}
		ace.SID = s
		if len(rest) > n {
			ace.Extra = append([]byte(nil), rest[n:]...)
		}
		acl.ACEs = append(acl.ACEs, ace)
		pos += aceSize
	}
	return acl, nil
}

// objectFieldsSize returns the length of Flags + optional GUIDs.
func objectFieldsSize(b []byte) int {
	if len(b) < 4 {
		return 4
	}
	flags := encoding.Uint32LE(b)
	n := 4
	if flags&0x1 != 0 {
		n += 16
	}
	if flags&0x2 != 0 {
		n += 16
	}
	return n
}

// Marshal encodes d in self-relative form with parts laid out as SACL,
// DACL, owner, group.
func (d *Descriptor) Marshal() []byte {
	control := d.Control | ControlSelfRelative
	control &^= ControlDACLPresent | ControlSACLPresent
	if d.DACL != nil {
		control |= ControlDACLPresent
	}
	if d.SACL != nil {
		control |= ControlSACLPresent
	}
	rev := d.Revision
	if rev == 0 {
		rev = 1
	}

	w := encoding.NewWriter(256)
	w.U8(rev).U8(0).U16(control).Zero(16)

	if d.SACL != nil {
		w.PatchU32(12, uint32(w.Len()))
		w.Raw(d.SACL)
	}
	if d.DACL != nil {
		w.PatchU32(16, uint32(w.Len()))
		w.Raw(d.DACL.Marshal())
	}
	if d.Owner != nil {
		w.PatchU32(4, uint32(w.Len()))
		w.Raw(d.Owner.Marshal())
	}
	if d.Group != nil {
		w.PatchU32(8, uint32(w.Len()))
		w.Raw(d.Group.Marshal())
	}
	return w.Bytes()
}

// Marshal encodes the ACL.
func (a *ACL) Marshal() []byte {
	size := aclHeaderSize
	for i := range a.ACEs {
		size += a.ACEs[i].size()
	}
	rev := a.Revision
	if rev == 0 {
		rev = 2
	}
	w := encoding.NewWriter(size)
	w.U8(rev).U8(0).U16(uint16(size)).U16(uint16(len(a.ACEs))).U16(0)
	for i := range a.ACEs {
		ace := &a.ACEs[i]
		w.U8(ace.Type).U8(ace.Flags).U16(uint16(ace.size())).U32(ace.Mask)
		w.Raw(ace.Object).Raw(ace.SID.Marshal()).Raw(ace.Extra)
	}
	return w.Bytes()
}

// SecurityInformation returns the AdditionalInfo selector covering the
// parts present in d.
func (d *Descriptor) SecurityInformation() uint32 {
	var info uint32
	if d.Owner != nil {
		info |= OwnerSecurityInformation
	}
	if d.Group != nil {
		info |= GroupSecurityInformation
	}
	if d.DACL != nil {
		info |= DACLSecurityInformation
	}
	return info
}
