package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noEnvFile points --env-file at a path that does not exist.
func noEnvFile(t *testing.T) string {
	return "--env-file=" + filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig([]string{noEnvFile(t)}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Port)
	assert.Equal(t, ":12345", cfg.Addr())
	assert.Empty(t, cfg.WebSocketAddr)
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "relay.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("port: 1000\nhost: 10.0.0.1\nmax_line_size: 128\n"), 0o600))

	t.Setenv("CHAT_PORT", "2000")
	t.Setenv("CHAT_MAX_LINE_SIZE", "256")

	cfg, err := loadConfig([]string{
		noEnvFile(t),
		"--config", yamlPath,
		"-p", "3000",
		"--write-timeout", "2s",
		"--allowed-origins", "http://a.example,http://b.example",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", cfg.Host, "yaml over defaults")
	assert.Equal(t, 256, cfg.MaxLineSize, "env over yaml")
	assert.Equal(t, 3000, cfg.Port, "flag over env")
	assert.Equal(t, 2*time.Second, cfg.WriteTimeout)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
}

func TestLoadConfigEnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "relay.env")
	require.NoError(t, os.WriteFile(envPath, []byte("CHAT_WS_ADDR=:8081\n"), 0o600))

	// Registers cleanup that restores the variable godotenv is about to set.
	t.Setenv("CHAT_WS_ADDR", "")
	require.NoError(t, os.Unsetenv("CHAT_WS_ADDR"))

	cfg, err := loadConfig([]string{"--env-file", envPath}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.WebSocketAddr)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig([]string{noEnvFile(t), "--help"}, io.Discard)
	assert.ErrorIs(t, err, pflag.ErrHelp)

	_, err = loadConfig([]string{noEnvFile(t), "--port", "nope"}, io.Discard)
	assert.Error(t, err)

	_, err = loadConfig([]string{noEnvFile(t), "extra"}, io.Discard)
	assert.Error(t, err)

	_, err = loadConfig([]string{noEnvFile(t), "--config", filepath.Join(t.TempDir(), "missing.yaml")}, io.Discard)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
