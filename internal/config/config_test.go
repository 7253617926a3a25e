package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAddress, cfg.Server.Address)
	assert.Equal(t, []string{DefaultAllowedOrigin}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "pdf", cfg.Server.UploadField)
	assert.Equal(t, DefaultMaxChars, cfg.Summary.MaxChars)
	assert.Equal(t, float32(0.7), cfg.Summary.Temperature)
	assert.Equal(t, 500, cfg.Summary.MaxTokens)
	assert.Equal(t, DefaultModel, cfg.Summary.Model)
	assert.Equal(t, DefaultBaseURL, cfg.Summary.BaseURL)
	assert.Equal(t, 30, cfg.Summary.TimeoutSeconds)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadJSONAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"address": ":9000"},
		"summary": {"max_chars": 1000, "api_key": "from-file"},
		"ledger": {"driver": "sqlite3", "dsn": "ledger.db"}
	}`), 0o600))

	t.Setenv("GROQ_API_KEY", "from-env")
	t.Setenv("PDFSUM_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 1000, cfg.Summary.MaxChars)
	assert.Equal(t, "from-env", cfg.Summary.APIKey)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.Ledger.DSN)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
summary:
  provider: claude
  model: claude-3-5-haiku-latest
ledger:
  driver: none
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "claude", cfg.Summary.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.Summary.Model)
	assert.Empty(t, cfg.Summary.BaseURL)
	assert.Equal(t, "none", cfg.Ledger.Driver)
}

func TestServerPortFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER", "4000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.Server.Address)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.Summary.Provider = "mystery"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Summary.Provider = "gemini"
	cfg.Summary.Model = ""
	require.Error(t, cfg.Validate())
}

func TestRedactedHidesSecrets(t *testing.T) {
	cfg := Default()
	cfg.Summary.APIKey = "sk-secret"
	cfg.Redis.Password = "pw"

	red := cfg.Redacted()
	assert.Equal(t, "***", red.Summary.APIKey)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "sk-secret", cfg.Summary.APIKey)
}

func TestRedactedMasksLedgerDSNPassword(t *testing.T) {
	cfg := Default()
	cfg.Ledger.Driver = "mysql"
	cfg.Ledger.DSN = "app:hunter2@tcp(db:3306)/pdfsum?parseTime=true"

	red := cfg.Redacted()
	assert.NotContains(t, red.Ledger.DSN, "hunter2")
	assert.Contains(t, red.Ledger.DSN, "app:***@tcp(db:3306)/pdfsum")
	assert.Contains(t, cfg.Ledger.DSN, "hunter2")

	cfg.Ledger.DSN = "not a dsn"
	assert.Equal(t, "***", cfg.Redacted().Ledger.DSN)

	cfg.Ledger.Driver = "sqlite3"
	cfg.Ledger.DSN = "data/ledger.db"
	assert.Equal(t, "data/ledger.db", cfg.Redacted().Ledger.DSN)
}
