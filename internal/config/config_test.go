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
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err) // explicit path must exist

	cfg, err = loadFromDir(t, "")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 10*time.Second, cfg.LLM.Timeout())
	assert.Equal(t, 5*time.Minute, cfg.Context.TTL())
	assert.InDelta(t, 0.8, cfg.LLM.TrustThreshold, 1e-9)
	assert.Equal(t, 2, cfg.LLM.MaxRetries)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Rules.File)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coursebot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
llm:
  model: gpt-4o
  trust_threshold: 0.9
  max_retries: 5
  headers:
    X-Org: tutoring
context:
  ttl_seconds: 60
database:
  url: postgres://localhost/coursebot
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.InDelta(t, 0.9, cfg.LLM.TrustThreshold, 1e-9)
	assert.Equal(t, 5, cfg.LLM.MaxRetries)
	assert.Equal(t, map[string]string{"x-org": "tutoring"}, cfg.LLM.Headers)
	assert.Equal(t, time.Minute, cfg.Context.TTL())
	assert.Equal(t, "postgres://localhost/coursebot", cfg.Database.URL)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COURSEBOT_SERVER_PORT", "7070")
	t.Setenv("COURSEBOT_LLM_API_KEY", "sk-test")
	t.Setenv("COURSEBOT_DATABASE_URL", "postgres://db/coursebot")
	t.Setenv("COURSEBOT_RULES_FILE", "rules.yaml")

	cfg, err := loadFromDir(t, "")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "postgres://db/coursebot", cfg.Database.URL)
	assert.Equal(t, "rules.yaml", cfg.Rules.File)
}

func TestValidate(t *testing.T) {
	cfg, err := loadFromDir(t, "")
	require.NoError(t, err)

	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Server.Port = 8080
	cfg.LLM.TrustThreshold = 1.5
	assert.Error(t, cfg.Validate())

	cfg.LLM.TrustThreshold = 0.8
	cfg.Context.TTLSeconds = 0
	assert.Error(t, cfg.Validate())
}

// loadFromDir runs Load with the working directory moved to an empty temp
// dir, so a developer's local coursebot.yaml cannot leak into the test.
func loadFromDir(t *testing.T, path string) (*Config, error) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(orig) })
	return Load(path)
}
