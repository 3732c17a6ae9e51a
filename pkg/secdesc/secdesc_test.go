package secdesc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const domainUser = "S-1-5-21-1004336348-1177238915-682003330-1001"

func TestSIDRoundTrip(t *testing.T) {
	for _, str := range []string{"S-1-1-0", "S-1-5-32-544", domainUser, "S-1-0"} {
		s, err := ParseSID(str)
		require.NoError(t, err, str)
		assert.Equal(t, str, s.String())

		decoded, n, err := DecodeSID(s.Marshal())
		require.NoError(t, err)
		assert.Equal(t, s.Size(), n)
		assert.True(t, s.Equal(decoded))
	}
}

func TestParseSIDErrors(t *testing.T) {
	for _, bad := range []string{"", "S-", "X-1-5", "S-1", "S-1-5-abc", "S-300-5", "S-1-5-99999999999"} {
		_, err := ParseSID(bad)
		assert.Error(t, err, bad)
	}
	assert.False(t, IsSID(`DOMAIN\user`))
	assert.True(t, IsSID("s-1-5-18"))
}

func testDescriptor() *Descriptor {
	owner := MustParseSID(domainUser)
	group := MustParseSID("S-1-5-21-1004336348-1177238915-682003330-513")
	return &Descriptor{
		Revision: 1,
		Owner:    &owner,
		Group:    &group,
		DACL: &ACL{ACEs: []ACE{
			{Type: AccessAllowed, Flags: ObjectInherit | ContainerInherit, Mask: 0x001f01ff, SID: Administrators},
			{Type: AccessAllowed, Flags: 0, Mask: 0x001200a9, SID: Everyone},
		}},
	}
}

func TestDescriptorRoundTrip(t *testing.T) {
	d := testDescriptor()
	raw := d.Marshal()

	got, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, ControlSelfRelative|ControlDACLPresent, got.Control)
	assert.True(t, got.Owner.Equal(*d.Owner))
	assert.True(t, got.Group.Equal(*d.Group))
	require.Len(t, got.DACL.ACEs, 2)
	assert.Equal(t, uint32(0x001f01ff), got.DACL.ACEs[0].Mask)
	assert.True(t, got.DACL.ACEs[1].SID.Equal(Everyone))
	assert.Equal(t, raw, got.Marshal())
}

func TestParseObjectACE(t *testing.T) {
	d := &Descriptor{DACL: &ACL{ACEs: []ACE{{
		Type:   0x05,
		Mask:   0x100,
		Object: append([]byte{1, 0, 0, 0}, make([]byte, 16)...),
		SID:    Everyone,
	}}}}
	got, err := Parse(d.Marshal())
	require.NoError(t, err)
	require.Len(t, got.DACL.ACEs, 1)
	assert.Len(t, got.DACL.ACEs[0].Object, 20)
	assert.True(t, got.DACL.ACEs[0].SID.Equal(Everyone))
}

func TestParseTruncated(t *testing.T) {
	raw := testDescriptor().Marshal()
	for _, n := range []int{0, 10, 30, len(raw) - 4} {
		_, err := Parse(raw[:n])
		assert.Error(t, err, "length %d", n)
	}
}

func TestFormat(t *testing.T) {
	d := testDescriptor()
	assert.Equal(t,
		"REVISION:1,OWNER:"+domainUser+",GROUP:S-1-5-21-1004336348-1177238915-682003330-513,"+
			"ACL:S-1-5-32-544:0/3/0x001f01ff,ACL:S-1-1-0:0/0/0x001200a9",
		d.Format(nil))

	names := func(s SID) string {
		if s.Equal(Everyone) {
			return `\Everyone`
		}
		return ""
	}
	assert.Contains(t, d.Format(names), `ACL:\Everyone:0/0/0x001200a9`)
	assert.Contains(t, d.Format(names), "ACL:S-1-5-32-544:")
}

func TestParseTextRoundTrip(t *testing.T) {
	d := testDescriptor()
	parsed, err := ParseText(d.Format(nil), nil)
	require.NoError(t, err)
	assert.Equal(t, d.Marshal(), parsed.Marshal())
}

func TestParseTextSeparatorsAndNames(t *testing.T) {
	lookup := func(name string) (SID, error) {
		if name == `BUILTIN\Users` {
			return Users, nil
		}
		return SID{}, errors.New("none mapped")
	}
	d, err := ParseText("OWNER:S-1-5-18\tACL:BUILTIN\\Users:ALLOWED/0/READ\nACL:S-1-1-0:1/0/0x10", lookup)
	require.NoError(t, err)
	assert.True(t, d.Owner.Equal(LocalSystem))
	assert.Nil(t, d.Group)
	require.Len(t, d.DACL.ACEs, 2)
	assert.True(t, d.DACL.ACEs[0].SID.Equal(Users))
	assert.Equal(t, uint32(0x001200a9), d.DACL.ACEs[0].Mask)
	assert.Equal(t, AccessDenied, d.DACL.ACEs[1].Type)

	_, err = ParseText(`OWNER:nobody`, lookup)
	assert.Error(t, err)
	_, err = ParseText(`OWNER:nobody`, nil)
	assert.ErrorIs(t, err, ErrSyntax)
	_, err = ParseText("ACL:S-1-1-0:0/0", nil)
	assert.ErrorIs(t, err, ErrSyntax)
	_, err = ParseText("BOGUS:1", nil)
	assert.ErrorIs(t, err, ErrSyntax)
	_, err = ParseText("", nil)
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestApply(t *testing.T) {
	add := &Descriptor{DACL: &ACL{ACEs: []ACE{{Type: AccessDenied, Mask: 0x10, SID: Users}}}}

	d := testDescriptor()
	require.NoError(t, d.Apply(add, MergeCreate))
	require.Len(t, d.DACL.ACEs, 3)
	assert.Equal(t, AccessDenied, d.DACL.ACEs[0].Type, "deny entries sort first")

	assert.ErrorIs(t, d.Apply(add, MergeCreate), ErrExists)

	missing := &Descriptor{DACL: &ACL{ACEs: []ACE{{Type: AccessAllowed, Mask: 1, SID: LocalSystem}}}}
	assert.ErrorIs(t, d.Apply(missing, MergeReplace), ErrNotFound)

	update := &Descriptor{DACL: &ACL{ACEs: []ACE{{Type: AccessAllowed, Mask: 0x001f01ff, SID: Everyone}}}}
	require.NoError(t, d.Apply(update, MergeUpsert))
	ace, ok := d.FindACE(Everyone)
	require.True(t, ok)
	assert.Equal(t, uint32(0x001f01ff), ace.Mask)
	assert.Len(t, d.DACL.ACEs, 3)

	owner := LocalSystem
	assert.ErrorIs(t, d.Apply(&Descriptor{Owner: &owner}, MergeCreate), ErrExists)
	require.NoError(t, d.Apply(&Descriptor{Owner: &owner}, MergeReplace))
	assert.Equal(t, "S-1-5-18", d.FormatOwner(nil))
}

func TestRemovePrincipal(t *testing.T) {
	d := testDescriptor()
	d.DACL.ACEs = append(d.DACL.ACEs, ACE{Type: AccessDenied, Mask: 0x2, SID: Everyone})

	require.NoError(t, d.RemovePrincipal(Everyone))
	require.Len(t, d.DACL.ACEs, 1)
	assert.True(t, d.DACL.ACEs[0].SID.Equal(Administrators))
	assert.ErrorIs(t, d.RemovePrincipal(Everyone), ErrNotFound)

	assert.ErrorIs(t, (&Descriptor{}).RemovePrincipal(Everyone), ErrNotFound)
}

func TestSecurityInformation(t *testing.T) {
	assert.Equal(t, OwnerSecurityInformation|GroupSecurityInformation|DACLSecurityInformation,
		testDescriptor().SecurityInformation())
	assert.Zero(t, (&Descriptor{}).SecurityInformation())
}
