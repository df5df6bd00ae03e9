package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Default Config Tests
// =============================================================================

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, ".voicetasks", filepath.Base(cfg.DataDir))

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)

	assert.Equal(t, "whisper-1", cfg.OpenAI.WhisperModel)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.GPTModel)
	assert.Equal(t, "openai", cfg.Analyzer)

	assert.Equal(t, 20, cfg.Pipeline.MaxItems)
	assert.Equal(t, 24*time.Hour, cfg.Calendar.DefaultOffset.Std())
	assert.Equal(t, 30*time.Minute, cfg.Calendar.DefaultDuration.Std())
	assert.Equal(t, 9, cfg.Calendar.DefaultStartHour)
	assert.Equal(t, "primary", cfg.Calendar.Google.CalendarID)
}

// =============================================================================
// Load Config Tests
// =============================================================================

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load("/non/existent/path/config.json")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_ValidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	data := `{
		"data_dir": "` + tmpDir + `",
		"server": {"port": 9090, "host": "0.0.0.0"},
		"access": {"admin_user_id": "1001", "invitation_ttl": "48h"},
		"pipeline": {"max_items": 5},
		"calendar": {"default_duration": "45m", "timezone": "Africa/Cairo"}
	}`
	require.NoError(t, os.WriteFile(configPath, []byte(data), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"1001"}, cfg.Access.Admins())
	assert.Equal(t, 48*time.Hour, cfg.Access.InvitationTTL.Std())
	assert.Equal(t, 5, cfg.Pipeline.MaxItems)
	assert.Equal(t, 45*time.Minute, cfg.Calendar.DefaultDuration.Std())
	assert.Equal(t, "Africa/Cairo", cfg.Location().String())

	// fields absent from the file keep their defaults
	assert.Equal(t, "whisper-1", cfg.OpenAI.WhisperModel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"openai":{"gpt_model":"gpt-3.5-turbo"},"server":{"port":3000}}`), 0644))

	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("GPT_MODEL", "gpt-4o")
	t.Setenv("ADMIN_USER_ID", "42")
	t.Setenv("ADMIN_USER_IDS", "43, 42,44")
	t.Setenv("INVITATION_TTL", "0")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.GPTModel)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, []string{"42", "43", "44"}, cfg.Access.Admins())
	assert.Zero(t, cfg.Access.InvitationTTL)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestLoad_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{ invalid json }"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_InvalidEnvDuration(t *testing.T) {
	t.Setenv("INVITATION_TTL", "a week")

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("VOICETASKS_TEST_DOTENV=from-file\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("VOICETASKS_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env"), path))
	assert.Equal(t, "from-file", os.Getenv("VOICETASKS_TEST_DOTENV"))
}

// =============================================================================
// Validate Tests
// =============================================================================

func validConfig() *Config {
	cfg := Default()
	cfg.Access.AdminUserID = "1"
	cfg.OpenAI.APIKey = "sk-test"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing admin", func(c *Config) { c.Access.AdminUserID = "" }, "ADMIN_USER_ID"},
		{"missing openai key", func(c *Config) { c.OpenAI.APIKey = "" }, "OPENAI_API_KEY"},
		{"claude without key", func(c *Config) { c.Analyzer = "claude" }, "ANTHROPIC_API_KEY"},
		{"unknown analyzer", func(c *Config) { c.Analyzer = "bard" }, "unknown analyzer"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"negative ttl", func(c *Config) { c.Access.InvitationTTL = Duration(-time.Hour) }, "ttl"},
		{"bad start hour", func(c *Config) { c.Calendar.DefaultStartHour = 24 }, "start hour"},
		{"bad timezone", func(c *Config) { c.Calendar.Timezone = "Mars/Olympus" }, "timezone"},
		{"google without creds", func(c *Config) { c.Calendar.Google.Enabled = true }, "google"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "ADMIN_USER_ID") && strings.Contains(err.Error(), "OPENAI_API_KEY"))
}

// =============================================================================
// Save Config Tests
// =============================================================================

func TestSave_CreatesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.json")

	cfg := Default()
	cfg.DataDir = tmpDir
	cfg.Server.Port = 9999

	require.NoError(t, cfg.Save(configPath))

	loaded, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Server.Port)
	assert.Equal(t, cfg.Calendar.DefaultDuration, loaded.Calendar.DefaultDuration)
}

func TestSave_EmptyPath(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.DataDir = tmpDir

	require.NoError(t, cfg.Save(""))
	_, err := os.Stat(filepath.Join(tmpDir, "config.json"))
	assert.NoError(t, err)
}

func TestSave_DoesNotSaveSecrets(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.OpenAI.APIKey = "sk-super-secret"
	cfg.Claude.APIKey = "claude-secret"
	cfg.Bot.Token = "bot-secret"
	cfg.Server.APIToken = "api-secret"
	cfg.Calendar.Google.RefreshToken = "refresh-secret"

	require.NoError(t, cfg.Save(configPath))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	for _, secret := range []string{"sk-super-secret", "claude-secret", "bot-secret", "api-secret", "refresh-secret"} {
		assert.NotContains(t, string(data), secret)
	}

	// the in-memory config is untouched
	assert.Equal(t, "sk-super-secret", cfg.OpenAI.APIKey)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "calendar")
}
