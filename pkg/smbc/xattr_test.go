package smbc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineffectivecoder/smbclient/pkg/secdesc"
)

const (
	adminsACE = "S-1-5-32-544:0/0/0x001f01ff"
	aliceSID  = "S-1-5-21-1004336348-1177238915-682003330-1104"
)

func TestParseXattrName(t *testing.T) {
	tests := []struct {
		in   string
		want xattrName
	}{
		{"system.nt_sec_desc.*", xattrName{field: fieldAll}},
		{"system.nt_sec_desc.*+", xattrName{field: fieldAll, names: true}},
		{"system.*", xattrName{field: fieldAll}},
		{"system.*+", xattrName{field: fieldAll, names: true}},
		{"system.nt_sec_desc.revision", xattrName{field: fieldRevision}},
		{"system.nt_sec_desc.OWNER+", xattrName{field: fieldOwner, names: true}},
		{"system.nt_sec_desc.group", xattrName{field: fieldGroup}},
		{"system.nt_sec_desc.acl:S-1-1-0", xattrName{field: fieldACL, principal: "S-1-1-0"}},
		{`system.nt_sec_desc.acl+:CORP\Bob`, xattrName{field: fieldACL, names: true, principal: `CORP\Bob`}},
	}
	for _, tt := range tests {
		got, err := parseXattrName(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{
		"user.comment",
		"system.nt_sec_desc.",
		"system.nt_sec_desc.revision+",
		"system.nt_sec_desc.acl:",
		"system.nt_sec_desc.dacl:S-1-1-0",
	} {
		_, err := parseXattrName(bad)
		assert.Error(t, err, bad)
	}
}

func TestGetXattr(t *testing.T) {
	srv := newFakeServer()
	srv.put("f", nil)
	c := newTestContext(t, srv)
	ctx := context.Background()
	uri := dataURI + "f"

	all, err := c.GetXattr(ctx, uri, "system.nt_sec_desc.*")
	require.NoError(t, err)
	assert.Equal(t, "REVISION:1,OWNER:"+aliceSID+",GROUP:S-1-5-32-544,ACL:"+adminsACE, all)

	named, err := c.GetXattr(ctx, uri, "system.*+")
	require.NoError(t, err)
	assert.Equal(t, `REVISION:1,OWNER:CORP\alice,GROUP:BUILTIN\administrators,ACL:BUILTIN\administrators:0/0/0x001f01ff`, named)

	for name, want := range map[string]string{
		"system.nt_sec_desc.revision":                    "1",
		"system.nt_sec_desc.owner":                       aliceSID,
		"system.nt_sec_desc.owner+":                      `CORP\alice`,
		"system.nt_sec_desc.group+":                      `BUILTIN\administrators`,
		"system.nt_sec_desc.acl:S-1-5-32-544":            "0/0/0x001f01ff",
		`system.nt_sec_desc.acl+:BUILTIN\Administrators`: "0/0/0x001f01ff",
	} {
		got, err := c.GetXattr(ctx, uri, name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err = c.GetXattr(ctx, uri, `system.nt_sec_desc.acl:CORP\bob`)
	assert.ErrorIs(t, err, ErrNoEntry)
	_, err = c.GetXattr(ctx, uri, `system.nt_sec_desc.acl:CORP\nobody`)
	assert.ErrorIs(t, err, ErrNoEntry)
	_, err = c.GetXattr(ctx, uri, "user.mime_type")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSetXattrACL(t *testing.T) {
	srv := newFakeServer()
	srv.put("f", nil)
	c := newTestContext(t, srv)
	ctx := context.Background()
	uri := dataURI + "f"

	require.NoError(t, c.SetXattr(ctx, uri, `system.nt_sec_desc.acl:CORP\bob`, "0/0/0x001200a9", 0))
	got, err := c.GetXattr(ctx, uri, `system.nt_sec_desc.acl+:CORP\bob`)
	require.NoError(t, err)
	assert.Equal(t, "0/0/0x001200a9", got)
	assert.Len(t, srv.node("f").sd.DACL.ACEs, 2)

	err = c.SetXattr(ctx, uri, `system.nt_sec_desc.acl:CORP\bob`, "ALLOWED/0/FULL", XattrCreate)
	assert.ErrorIs(t, err, ErrExists)

	require.NoError(t, c.SetXattr(ctx, uri, `system.nt_sec_desc.acl:CORP\bob`, "ALLOWED/0/FULL", XattrReplace))
	ace, ok := srv.node("f").sd.FindACE(sidBob)
	require.True(t, ok)
	assert.Equal(t, uint32(0x001f01ff), ace.Mask)

	err = c.SetXattr(ctx, uri, "system.nt_sec_desc.acl:S-1-1-0", "0/0/0x1", XattrReplace)
	assert.ErrorIs(t, err, ErrNoEntry)

	err = c.SetXattr(ctx, uri, "system.nt_sec_desc.acl:S-1-1-0", "sometimes/0/0x1", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	err = c.SetXattr(ctx, uri, "system.nt_sec_desc.acl:S-1-1-0", "0/0/0x1", 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	err = c.SetXattr(ctx, uri, "system.nt_sec_desc.revision", "2", 0)
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestSetXattrOwner(t *testing.T) {
	srv := newFakeServer()
	srv.put("f", nil)
	c := newTestContext(t, srv)
	ctx := context.Background()
	uri := dataURI + "f"

	err := c.SetXattr(ctx, uri, "system.nt_sec_desc.owner", `CORP\bob`, XattrCreate)
	assert.ErrorIs(t, err, ErrExists)

	require.NoError(t, c.SetXattr(ctx, uri, "system.nt_sec_desc.owner", `CORP\bob`, 0))
	assert.True(t, srv.node("f").sd.Owner.Equal(sidBob))
	assert.True(t, srv.node("f").sd.Group.Equal(sidAdmins))
}

func TestSetXattrFullDescriptorReplaces(t *testing.T) {
	srv := newFakeServer()
	srv.put("f", nil)
	c := newTestContext(t, srv)
	ctx := context.Background()
	uri := dataURI + "f"

	require.NoError(t, c.SetXattr(ctx, uri, "system.nt_sec_desc.*",
		"OWNER:S-1-5-32-544\tACL:CORP\\bob:ALLOWED/3/READ\nACL:S-1-1-0:DENIED/0/0x2", 0))

	sd := srv.node("f").sd
	assert.True(t, sd.Owner.Equal(sidAdmins))
	assert.True(t, sd.Group.Equal(sidAdmins))
	require.Len(t, sd.DACL.ACEs, 2)
	// canonical order puts the deny first
	assert.Equal(t, secdesc.AccessDenied, sd.DACL.ACEs[0].Type)
	assert.True(t, sd.DACL.ACEs[1].SID.Equal(sidBob))
	assert.Equal(t, uint8(3), sd.DACL.ACEs[1].Flags)

	err := c.SetXattr(ctx, uri, "system.nt_sec_desc.*", "ACL:S-1-1-0:DENIED/0/0x2", XattrCreate)
	assert.ErrorIs(t, err, ErrExists)
	err = c.SetXattr(ctx, uri, "system.nt_sec_desc.*", "OWNER:nobody", 0)
	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestRemoveXattr(t *testing.T) {
	srv := newFakeServer()
	srv.put("f", nil)
	c := newTestContext(t, srv)
	ctx := context.Background()
	uri := dataURI + "f"

	require.NoError(t, c.SetXattr(ctx, uri, `system.nt_sec_desc.acl:CORP\bob`, "0/0/0x001200a9", 0))
	n := srv.node("f")
	n.sd.DACL.ACEs = append(n.sd.DACL.ACEs, secdesc.ACE{Type: secdesc.AccessDenied, Mask: 0x2, SID: sidBob})
	require.NoError(t, c.RemoveXattr(ctx, uri, `system.nt_sec_desc.acl:CORP\bob`))
	_, ok := srv.node("f").sd.FindACE(sidBob)
	assert.False(t, ok)
	assert.Len(t, srv.node("f").sd.DACL.ACEs, 1)

	assert.ErrorIs(t, c.RemoveXattr(ctx, uri, `system.nt_sec_desc.acl:CORP\bob`), ErrNoEntry)
	assert.ErrorIs(t, c.RemoveXattr(ctx, uri, "system.nt_sec_desc.owner"), ErrInvalidArgument)

	require.NoError(t, c.RemoveXattr(ctx, uri, "system.nt_sec_desc.*"))
	assert.Empty(t, srv.node("f").sd.DACL.ACEs)

	names, err := c.ListXattr(ctx, uri)
	require.NoError(t, err)
	assert.Contains(t, names, "system.nt_sec_desc.*+")
}
