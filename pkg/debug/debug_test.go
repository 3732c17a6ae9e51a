package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	t.Setenv(EnvLevel, "")
	var buf bytes.Buffer

	InitWithWriter(&buf, 0)
	Info("hidden")
	Debug("hidden")
	Warn("hidden")
	Error("hidden")
	assert.Empty(t, buf.String())

	SetLevel(1)
	Debug("hidden")
	Warn("shown", KeyServer, "fs1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "server=fs1")

	buf.Reset()
	SetLevel(2)
	Info("info line")
	Printf("trace %d\n", 1)
	assert.Contains(t, buf.String(), "info line")
	assert.NotContains(t, buf.String(), "trace")

	buf.Reset()
	SetLevel(5)
	Printf("trace %d\n", 2)
	assert.Contains(t, buf.String(), `msg="trace 2"`)
}

func TestSetLevelClamps(t *testing.T) {
	SetLevel(42)
	assert.Equal(t, MaxLevel, Level())
	SetLevel(-1)
	assert.Equal(t, 0, Level())
}

func TestEnvOverride(t *testing.T) {
	t.Setenv(EnvLevel, "7")
	assert.NoError(t, Init(Config{Level: 1, Output: "stderr"}))
	assert.Equal(t, 7, Level())

	t.Setenv(EnvLevel, "junk")
	assert.NoError(t, Init(Config{Level: 2, Output: "stderr"}))
	assert.Equal(t, 2, Level())
}

func TestSetOutput(t *testing.T) {
	t.Cleanup(func() { SetOutput("stderr") })

	assert.NoError(t, Init(Config{}))
	assert.Equal(t, "stderr", Output())

	SetOutput("stdout")
	assert.Equal(t, "stdout", Output())
	SetOutput("stderr")
	assert.Equal(t, "stderr", Output())

	path := filepath.Join(t.TempDir(), "smbc.log")
	SetOutput(path)
	assert.Equal(t, path, Output())
	SetLevel(1)
	Warn("to file")
	SetOutput("stderr")

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
