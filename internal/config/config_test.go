package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func flags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(flags(t))
	require.NoError(t, err)
	assert.Equal(t, def().Port, cfg.Port)
	assert.Equal(t, "/api/v2", cfg.BasePath)
	assert.Empty(t, cfg.DBURL)
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autodojo.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":"9000","dslDir":"models","title":"Books","basePath":"api/v3/"}`), 0o644))

	t.Setenv("AUTODOJO_DSL_DIR", "env-models")
	t.Setenv("AUTODOJO_AUTO_MIGRATE", "yes")
	t.Setenv("AUTODOJO_PORT", "7000")

	cfg, err := Load(flags(t, "--config", path, "--port", "6000"))
	require.NoError(t, err)
	// флаг > env > json
	assert.Equal(t, "6000", cfg.Port)
	assert.Equal(t, "env-models", cfg.DSLDir)
	assert.Equal(t, "Books", cfg.Title)
	assert.Equal(t, "/api/v3", cfg.BasePath)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, "info", cfg.LogLevel) // умолчание
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":`), 0o644))
	_, err := Load(flags(t, "--config", path))
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	log, err := Config{LogLevel: "debug"}.Logger()
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	_, err = Config{LogLevel: "loud"}.Logger()
	assert.Error(t, err)
}
