package logging

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopWhenDisabled(t *testing.T) {
	root := t.TempDir()
	logger, err := New(root, "", false)
	require.NoError(t, err)
	logger.Info("dropped")

	_, err = os.Stat(Path(root))
	assert.True(t, os.IsNotExist(err))
}

func TestWritesToProjectLog(t *testing.T) {
	root := t.TempDir()
	logger, err := New(root, "warn", false)
	require.NoError(t, err)

	logger.Info("below level")
	logger.Warn("kept")
	_ = logger.Sync()

	data, err := os.ReadFile(Path(root))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"kept"`)
	assert.NotContains(t, string(data), "below level")
}

func TestInvalidLevel(t *testing.T) {
	_, err := New(t.TempDir(), "loud", false)
	assert.Error(t, err)
}
