package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsFillMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "pool:\n  size: 64\nstorage:\n  dir: /tmp/luna\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Pool.Size)
	assert.Equal(t, "lru", cfg.Pool.Policy)
	assert.Equal(t, "/tmp/luna", cfg.Storage.Dir)
	assert.Equal(t, "segment", cfg.Storage.Base)
	assert.Equal(t, 4096, cfg.Storage.PageSize)
	assert.True(t, cfg.Wal.Enabled)
	assert.Equal(t, "./data/wal", cfg.Wal.Dir)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
