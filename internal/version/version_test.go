package version

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/SkipVault/internal/logger"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "version.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1.2.3"}`), 0o644))

	assert.Equal(t, "1.2.3", Load(path, logger.Discard()).Version)
	assert.Equal(t, "0.0.0", Load(filepath.Join(dir, "missing.json"), logger.Discard()).Version)

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o644))
	assert.Equal(t, "0.0.0", Load(path, logger.Discard()).Version)
}

func TestLoad_BuildTimeOverride(t *testing.T) {
	Version = "9.9.9"
	t.Cleanup(func() { Version = "" })
	assert.Equal(t, "9.9.9", Load("does-not-matter", logger.Discard()).Version)
}
