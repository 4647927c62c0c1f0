package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetConvertFlags(t *testing.T) {
	t.Cleanup(func() {
		convertType = "text"
		convertRaw = false
	})
}

func TestConvertCmd_Use(t *testing.T) {
	assert.Equal(t, "convert [flags] <file[::mime]>...", convertCmd.Use)
	assert.NotNil(t, convertCmd.Flags().Lookup("type"))
	assert.NotNil(t, convertCmd.Flags().Lookup("raw"))
}

func TestConvertCmd_RequiresArgs(t *testing.T) {
	setupServices(t)
	resetConvertFlags(t)

	_, _, err := execute(t, "", "convert")
	assert.Error(t, err)
}

func TestConvertCmd_Text(t *testing.T) {
	env := setupServices(t)
	resetConvertFlags(t)
	p := env.writeFile(t, "note.txt", "hello world")

	out, _, err := execute(t, "", "convert", p)
	require.NoError(t, err)
	assert.Contains(t, out, p)
	assert.Contains(t, out, `    "hello world"`)
	assert.NotContains(t, out, "(from cache)")
}

func TestConvertCmd_Raw(t *testing.T) {
	env := setupServices(t)
	resetConvertFlags(t)
	p := env.writeFile(t, "note.txt", "hello world")

	out, _, err := execute(t, "", "convert", "--raw", p)
	require.NoError(t, err)
	assert.Equal(t, `"hello world"`, out)
}

func TestConvertCmd_NoConversionPossible(t *testing.T) {
	env := setupServices(t)
	resetConvertFlags(t)
	p := env.writeFile(t, "note.txt", "hello world")

	out, _, err := execute(t, "", "convert", "-t", "dummy", p)
	require.NoError(t, err)
	assert.Contains(t, out, noConversion)
}

func TestConvertCmd_UnknownType(t *testing.T) {
	env := setupServices(t)
	resetConvertFlags(t)
	p := env.writeFile(t, "note.txt", "hello world")

	_, _, err := execute(t, "", "convert", "-t", "nonsense", p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonsense")
}

func TestConvertCmd_NotConfigured(t *testing.T) {
	resetConvertFlags(t)
	saved := conversionService
	conversionService = nil
	defer func() { conversionService = saved }()

	_, _, err := execute(t, "", "convert", "/tmp/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
