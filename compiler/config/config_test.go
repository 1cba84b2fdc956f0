package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, "nasm", c.Target)
	assert.Equal(t, "main", c.Entry)
	assert.NoError(t, c.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	c, err := Load(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)

	path := filepath.Join(dir, FileName)

	err = os.WriteFile(path, []byte(`
target = "llvm"
max_steps = 1000

[dump]
tac = true

[log]
verbosity = "frame"
`), 0o644)
	require.NoError(t, err)

	c, err = Load(path)
	require.NoError(t, err)

	assert.Equal(t, &Config{
		Target:   "llvm",
		Entry:    "main",
		MaxSteps: 1000,
		Dump:     Dump{TAC: true},
		Log:      Log{Verbosity: "frame"},
	}, c)
}

func TestValidate(t *testing.T) {
	for _, data := range []string{
		`target = "arm64"`,
		`entry = ""`,
		`max_steps = -1`,
	} {
		err := Default().Decode([]byte(data))
		assert.ErrorIs(t, err, ErrConfig, "%s", data)
	}

	err := Default().Decode([]byte(`target = [`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfig)
}

func TestEncode(t *testing.T) {
	c := Default()
	c.Output = "a.asm"

	data, err := c.Encode()
	require.NoError(t, err)

	d := &Config{}

	err = d.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, c, d)
}
