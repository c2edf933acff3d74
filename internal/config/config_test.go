package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Registers the sqlite adapter used as the default engine type.
	_ "github.com/leapstack-labs/livegate/pkg/adapters/sqlite"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "livegate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8844", cfg.Listen.Addr())
	assert.Equal(t, "sqlite", cfg.Engine.Type)
	assert.Equal(t, "main", cfg.Engine.Schema)
	assert.Equal(t, int64(DefaultMaxRows), cfg.Limits.MaxRows)
	assert.Equal(t, DefaultRatePerSec, cfg.Rate.PerSec)
	assert.False(t, cfg.Watch.Enabled)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
listen:
  port: 9000
engine:
  type: sqlite
  path: /data/app.db
  schema: app
limits:
  max_rows: 500
watch:
  enabled: true
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Listen.Port)
	assert.Equal(t, "/data/app.db", cfg.Engine.Path)
	assert.Equal(t, "app", cfg.Engine.Schema)
	assert.Equal(t, int64(500), cfg.Limits.MaxRows)
	assert.True(t, cfg.Watch.Enabled)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
engine:
  type: sqlite
  path: /data/app.db
`)
	t.Setenv("LIVEGATE_ENGINE__PATH", "/env/app.db")
	t.Setenv("LIVEGATE_VERBOSE", "true")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/env/app.db", cfg.Engine.Path)
	assert.True(t, cfg.Verbose)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("LIVEGATE_LISTEN__PORT", "9000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", DefaultPort, "")
	flags.String("engine-path", "", "")
	require.NoError(t, flags.Parse([]string{"--port=9100", "--engine-path=/flag/app.db"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Listen.Port)
	assert.Equal(t, "/flag/app.db", cfg.Engine.Path)
}

func TestLoadExpandsDSNEnvVars(t *testing.T) {
	path := writeConfig(t, `
engine:
  type: sqlite
  dsn: postgres://gateway:${LIVEGATE_TEST_PASSWORD}@db/app
`)
	t.Setenv("LIVEGATE_TEST_PASSWORD", "hunter2")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://gateway:hunter2@db/app", cfg.Engine.DSN)
}

func TestLoadRejectsUnknownEngine(t *testing.T) {
	path := writeConfig(t, `
engine:
  type: oracle
`)
	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}
