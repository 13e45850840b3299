package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadConfig_ShouldApplyDefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	config, err := LoadConfig("")

	require.NoError(t, err)
	assert.Equal(t, ":5001", config.Server.Addr)
	assert.Equal(t, []string{"*"}, config.Server.AllowedOrigins)
	assert.Equal(t, "./downloads", config.Staging.Dir)
	assert.Equal(t, time.Hour, config.Staging.Retention)
	assert.Equal(t, 5*time.Minute, config.Staging.SweepInterval)
	assert.Equal(t, "yt-dlp", config.Extractor.Binary)
	assert.Equal(t, 120*time.Second, config.Extractor.WholeTimeout)
	assert.Equal(t, 10*time.Minute, config.Extractor.SegmentTimeout)
}

func TestLoadConfig_ShouldReadFileAndEnvironment(t *testing.T) {
	// given
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":7000"
  allowed_origins:
    - https://app.example
staging:
  dir: /var/clipgrab
  retention: 2h
extractor:
  whole_timeout: 90s
`), 0644))
	t.Setenv("CLIPGRAB_SERVER_ADDR", ":8000")
	t.Setenv("CLIPGRAB_LOGGING_LEVEL", "debug")

	// when
	config, err := LoadConfig(path)

	// then
	require.NoError(t, err)
	assert.Equal(t, ":8000", config.Server.Addr)
	assert.Equal(t, []string{"https://app.example"}, config.Server.AllowedOrigins)
	assert.Equal(t, "/var/clipgrab", config.Staging.Dir)
	assert.Equal(t, 2*time.Hour, config.Staging.Retention)
	assert.Equal(t, 90*time.Second, config.Extractor.WholeTimeout)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadConfig_ShouldLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CLIPGRAB_EXTRACTOR_BINARY=/opt/yt-dlp\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("CLIPGRAB_EXTRACTOR_BINARY") })

	config, err := LoadConfig("")

	require.NoError(t, err)
	assert.Equal(t, "/opt/yt-dlp", config.Extractor.Binary)
}

func TestLoadConfig_ShouldFailForMissingExplicitFile(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := LoadConfig("does-not-exist.yaml")

	assert.ErrorContains(t, err, "failed to read config file")
}

func TestConfig_Validate_ShouldRequireRetentionAboveTimeouts(t *testing.T) {
	chdir(t, t.TempDir())
	config, err := LoadConfig("")
	require.NoError(t, err)

	config.Staging.Retention = 5 * time.Minute

	assert.ErrorContains(t, config.Validate(), "must exceed the extractor timeouts")
}
