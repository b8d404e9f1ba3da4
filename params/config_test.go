package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DB_IN_MEMORY", "true")
	t.Setenv("API_ADDR", ":9090")
	t.Setenv("FACTORY_KEY", "k")
	t.Setenv("REGISTRY_MODE", "http")
	t.Setenv("REGISTRY_URL", "http://registry")
	t.Setenv("REGISTRY_TIMEOUT_MS", "250")
	t.Setenv("DISPATCH_MODE", "kafka")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.True(t, cfg.Node.InMemory)
	assert.Equal(t, ":9090", cfg.API.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Registry.Timeout)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Dispatch.KafkaBrokers)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FACTORY_KEY=from-file\nDISPATCH_BUFFER=16\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("FACTORY_KEY")
		os.Unsetenv("DISPATCH_BUFFER")
	})

	cfg := LoadFromEnv(path)
	assert.Equal(t, "from-file", cfg.Registration.FactoryKey)
	assert.Equal(t, 16, cfg.Dispatch.Buffer)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "factory key missing")

	cfg.Registration.FactoryKey = "k"
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Registry.Mode = "http"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Dispatch.Mode = "carrier-pigeon"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Registration.Token2Address = bad.Registration.Token1Address
	assert.Error(t, bad.Validate())
}
