package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineffectivecoder/smbclient/pkg/smbc"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"ls", []string{"ls"}},
		{"get  a.txt   b.txt", []string{"get", "a.txt", "b.txt"}},
		{`cd "My Documents"`, []string{"cd", "My Documents"}},
		{`setxattr f 'system.nt_sec_desc.acl:CORP\bob' "0/0/0x1"`, []string{"setxattr", "f", `system.nt_sec_desc.acl:CORP\bob`, "0/0/0x1"}},
		{`echo "it's"`, []string{"echo", "it's"}},
		{`put a ""`, []string{"put", "a", ""}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseArgs(tt.in), tt.in)
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		cwd, arg, want string
	}{
		{"", "", ""},
		{"", "a", "a"},
		{"a/b", "c", "a/b/c"},
		{"a/b", "..", "a"},
		{"a/b", "../../..", ""},
		{"a/b", "/x/y", "x/y"},
		{"a", `sub\file.txt`, "a/sub/file.txt"},
		{"a", "./b/", "a/b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolvePath(tt.cwd, tt.arg), "%s + %s", tt.cwd, tt.arg)
	}
}

func TestRemoteURI(t *testing.T) {
	targetHost, targetPort, currentShare, currentPath = "fs01", 0, "data", "docs"
	t.Cleanup(func() { targetHost, targetPort, currentShare, currentPath = "", 0, "", "" })

	assert.Equal(t, "smb://fs01/data/docs/a%20b.txt", remoteURI("a b.txt"))
	assert.Equal(t, "smb://fs01/data", remoteURI("/"))
	assert.Equal(t, "smb://other/x/y", remoteURI("smb://other/x/y"))
	assert.Equal(t, "smb://fs01/", serverURI())

	targetPort = 1445
	u, err := smbc.ParseURI(remoteURI(".."))
	require.NoError(t, err)
	assert.Equal(t, 1445, u.Port)
	assert.Equal(t, "data", u.Share)
	assert.Empty(t, u.Path)
}

func TestOptionValue(t *testing.T) {
	assert.Equal(t, true, optionValue("true"))
	assert.Equal(t, 5000, optionValue("5000"))
	assert.Equal(t, "CORP", optionValue("CORP"))
}

func TestXattrFlag(t *testing.T) {
	f, err := xattrFlag("")
	require.NoError(t, err)
	assert.Equal(t, smbc.XattrFlag(0), f)

	f, err = xattrFlag("CREATE")
	require.NoError(t, err)
	assert.Equal(t, smbc.XattrCreate, f)

	f, err = xattrFlag("replace")
	require.NoError(t, err)
	assert.Equal(t, smbc.XattrReplace, f)

	_, err = xattrFlag("upsert")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{"ls", "dir", "cd", "get", "put", "getxattr", "acl", "acledit", "shares", "exit", "quit"} {
		assert.NotNil(t, commands.Get(name), name)
	}
	assert.Same(t, commands.Get("ls"), commands.Get("dir"))

	seen := map[string]bool{}
	for _, cmd := range commands.List() {
		assert.False(t, seen[cmd.Name], "duplicate %s", cmd.Name)
		seen[cmd.Name] = true
		assert.Contains(t, categoryOrder, cmd.Category, cmd.Name)
	}
	assert.Equal(t, []string{"rm", "rmdir", "rmxattr"}, completeCommands("rm"))
}
