package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("GENSTUDIO_TEST_HOST", "db.internal")

	assert.Equal(t, "host: db.internal", expandEnv("host: ${GENSTUDIO_TEST_HOST}"))
	assert.Equal(t, "port: 5432", expandEnv("port: ${GENSTUDIO_TEST_UNSET:5432}"))
	assert.Equal(t, "key: ", expandEnv("key: ${GENSTUDIO_TEST_UNSET:}"))
	assert.Equal(t, "raw: ${GENSTUDIO_TEST_UNSET}", expandEnv("raw: ${GENSTUDIO_TEST_UNSET}"))
}

func TestLoadDir_Defaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("app:\n  name: studio-test\n"), 0o600))

	cfg, err := LoadDir(dir)
	require.NoError(t, err)

	assert.Equal(t, "studio-test", cfg.App.Name)
	assert.Equal(t, 10*time.Minute, cfg.Generation.Timeout)
	assert.Equal(t, 60*time.Second, cfg.LLM.InterpretTimeout)
	assert.Equal(t, 4, cfg.Attachments.MaxFiles)
	assert.Equal(t, int64(10<<20), cfg.Attachments.MaxFileSize)
	assert.Equal(t, "/v1/generate/music", cfg.Generation.Music.Path)
}

func TestLoadDir_EnvFileOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("APP_ENV", "staging")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("generation:\n  timeout: 5m\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.staging.yaml"), []byte("generation:\n  timeout: 2m\n"), 0o600))

	cfg, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Generation.Timeout)
}

func TestLoadDir_RejectsTooManyAttachmentSlots(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("attachments:\n  max_files: 6\n"), 0o600))

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attachments.max_files")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("attachments:\n  max_files: 2\n"), 0o600))
	cfg, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Attachments.MaxFiles)
}

func TestLoadDir_MissingBaseFile(t *testing.T) {
	_, err := LoadDir(t.TempDir())
	assert.Error(t, err)
}
