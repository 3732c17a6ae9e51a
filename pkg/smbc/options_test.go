package smbc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineffectivecoder/smbclient/internal/config"
	"github.com/ineffectivecoder/smbclient/pkg/debug"
)

func TestSetOption(t *testing.T) {
	c := newTestContext(t, newFakeServer())

	require.NoError(t, c.SetOption("workgroup", "LAB"))
	require.NoError(t, c.SetOption("netbiosName", "WS01"))
	require.NoError(t, c.SetOption("timeout", 1500))
	require.NoError(t, c.SetOption("optionFullTimeNames", true))
	require.NoError(t, c.SetOption("optionUseKerberos", true))
	require.NoError(t, c.SetOption("socks5", "socks5://127.0.0.1:1080"))

	o := c.Options()
	assert.Equal(t, "LAB", o.Workgroup)
	assert.Equal(t, "WS01", o.NetBIOSName)
	assert.Equal(t, 1500*time.Millisecond, o.Timeout)
	assert.True(t, o.FullTimeNames)
	assert.True(t, o.UseKerberos)
	assert.Equal(t, "socks5://127.0.0.1:1080", o.SOCKS5)

	require.NoError(t, c.SetOption("timeout", 3*time.Second))
	assert.Equal(t, 3*time.Second, c.Options().Timeout)
}

func TestSetOptionErrors(t *testing.T) {
	c := newTestContext(t, newFakeServer())

	for _, tc := range []struct {
		name  string
		value any
	}{
		{"workgroup", 7},
		{"debug", "loud"},
		{"debug", -1},
		{"timeout", "soon"},
		{"timeout", -5},
		{"optionUseKerberos", "yes"},
		{"netbiosName", "A-NAME-FAR-TOO-LONG"},
		{"noSuchOption", true},
	} {
		err := c.SetOption(tc.name, tc.value)
		assert.ErrorIs(t, err, ErrInvalidArgument, "%s=%v", tc.name, tc.value)
	}
	assert.Equal(t, "CORP", c.Options().Workgroup)
}

func TestConfigure(t *testing.T) {
	c := newTestContext(t, newFakeServer())

	assert.ErrorIs(t, c.Configure(Options{Timeout: -time.Second}), ErrInvalidArgument)
	require.NoError(t, c.Configure(Options{Workgroup: "HOME", NoAutoAnonymousLogin: true}))
	assert.Equal(t, "HOME", c.Options().Workgroup)
	assert.True(t, c.Options().NoAutoAnonymousLogin)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Workgroup = "ACME"
	cfg.UseKerberos = true
	cfg.FallbackAfterKerberos = true
	cfg.Timeout = 7 * time.Second

	o := OptionsFromConfig(cfg)
	assert.Equal(t, "ACME", o.Workgroup)
	assert.Equal(t, cfg.NetBIOSName, o.NetBIOSName)
	assert.Equal(t, 7*time.Second, o.Timeout)
	assert.True(t, o.UseKerberos)
	assert.True(t, o.FallbackAfterKerberos)
	assert.True(t, o.DebugToStderr)

	for _, fn := range []Option{WithWorkgroup("X"), WithTimeout(time.Second), WithKerberos(false), WithNoAutoAnonymousLogin()} {
		fn(&o)
	}
	assert.Equal(t, "X", o.Workgroup)
	assert.Equal(t, time.Second, o.Timeout)
	assert.False(t, o.FallbackAfterKerberos)
	assert.True(t, o.NoAutoAnonymousLogin)
}

func TestDebugLevelCanBeLowered(t *testing.T) {
	t.Cleanup(func() {
		debug.SetLevel(0)
		debug.SetOutput("stderr")
	})
	c := newTestContext(t, newFakeServer())

	require.NoError(t, c.SetOption("debug", 5))
	assert.Equal(t, 5, debug.Level())
	require.NoError(t, c.SetOption("debug", 0))
	assert.Equal(t, 0, debug.Level())

	require.NoError(t, c.Configure(Options{Debug: 3}))
	assert.Equal(t, 3, debug.Level())
	require.NoError(t, c.Configure(Options{}))
	assert.Equal(t, 0, debug.Level())
}

func TestDebugToStderrSwitchesBack(t *testing.T) {
	t.Cleanup(func() { debug.SetOutput("stderr") })
	c := newTestContext(t, newFakeServer())

	require.NoError(t, c.SetOption("optionDebugToStderr", true))
	assert.Equal(t, "stderr", debug.Output())
	require.NoError(t, c.SetOption("optionDebugToStderr", false))
	assert.Equal(t, "stdout", debug.Output())

	cfg := config.Default()
	assert.Equal(t, "stderr", cfg.DebugOutput)
	assert.Empty(t, OptionsFromConfig(cfg).DebugFile)
	cfg.DebugOutput = "/var/log/smbc.log"
	o := OptionsFromConfig(cfg)
	assert.False(t, o.DebugToStderr)
	assert.Equal(t, "/var/log/smbc.log", o.DebugFile)
}
