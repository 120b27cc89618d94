package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, BackendFile, cfg.Store)
	assert.Equal(t, "certproof.audit", cfg.KafkaTopic)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
data_dir: /var/lib/certproof
store: memory
font_path: /usr/share/fonts/dejavu.ttf
token_ttl: 24h
`), 0o644))
	t.Setenv("CERTPROOF_ADDR", ":9999")
	t.Setenv("CERTPROOF_KAFKA_BROKERS", "b1:9092, b2:9092,b1:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Addr, "env wins over file")
	assert.Equal(t, BackendMemory, cfg.Store)
	assert.Equal(t, "/var/lib/certproof", cfg.DataDir)
	assert.Equal(t, "/usr/share/fonts/dejavu.ttf", cfg.FontPath)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.KafkaBrokers)
}

func TestLoadMissingFileIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.NoError(t, err)
}

func TestValidateBackendRequirements(t *testing.T) {
	t.Setenv("CERTPROOF_STORE", "postgres")
	_, err := Load("")
	assert.Error(t, err, "postgres backend needs a URL")

	t.Setenv("CERTPROOF_STORE", "redis")
	_, err = Load("")
	assert.Error(t, err, "redis backend needs a URL")

	t.Setenv("CERTPROOF_STORE", "carrier-pigeon")
	_, err = Load("")
	assert.Error(t, err)
}

func TestEnsureSecretPersistsAndReuses(t *testing.T) {
	dir := t.TempDir()

	first, err := EnsureSecret(dir)
	require.NoError(t, err)
	require.Len(t, first, 64)

	second, err := EnsureSecret(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(filepath.Join(dir, "secret.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnsureSecretEnvWins(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	got, err := EnsureSecret(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)
}
