// Package config handles voice-task service configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/egcoder/telegram-ai-bot/internal/logging"
)

// Config holds all configuration
type Config struct {
	// Paths
	DataDir string `json:"data_dir" env:"DATA_DIR"`

	// Server
	Server ServerConfig `json:"server"`

	// Messaging bot
	Bot BotConfig `json:"bot"`

	// Access control
	Access AccessConfig `json:"access"`

	// Services
	OpenAI   OpenAIConfig `json:"openai"`
	Claude   ClaudeConfig `json:"claude"`
	Analyzer string       `json:"analyzer" env:"ANALYZER"` // openai | claude

	// Processing
	Pipeline PipelineConfig `json:"pipeline"`
	Calendar CalendarConfig `json:"calendar"`
	Storage  StorageConfig  `json:"storage"`
	Logging  logging.Config `json:"logging"`
}

// ServerConfig for HTTP server
type ServerConfig struct {
	Port           int      `json:"port" env:"PORT"`
	Host           string   `json:"host" env:"SERVER_HOST"`
	APIToken       string   `json:"api_token,omitempty" env:"API_TOKEN"`
	AllowedOrigins []string `json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// BotConfig for the messaging transport
type BotConfig struct {
	Token    string `json:"token,omitempty" env:"TELEGRAM_BOT_TOKEN"`
	Username string `json:"username" env:"TELEGRAM_BOT_USERNAME"`
}

// AccessConfig for the access gate
type AccessConfig struct {
	AdminUserID   string   `json:"admin_user_id" env:"ADMIN_USER_ID"`
	AdminUserIDs  []string `json:"admin_user_ids" env:"ADMIN_USER_IDS" envSeparator:","`
	InvitationTTL Duration `json:"invitation_ttl" env:"INVITATION_TTL"` // 0 = no expiry
	SweepInterval Duration `json:"sweep_interval" env:"INVITATION_SWEEP_INTERVAL"`
}

// Admins returns the configured admin identities, deduplicated, in order.
func (a AccessConfig) Admins() []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range append([]string{a.AdminUserID}, a.AdminUserIDs...) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// OpenAIConfig for transcription and analysis
type OpenAIConfig struct {
	APIKey       string `json:"api_key,omitempty" env:"OPENAI_API_KEY"`
	BaseURL      string `json:"base_url" env:"OPENAI_BASE_URL"`
	WhisperModel string `json:"whisper_model" env:"WHISPER_MODEL"`
	GPTModel     string `json:"gpt_model" env:"GPT_MODEL"`
}

// ClaudeConfig for Claude API
type ClaudeConfig struct {
	APIKey  string `json:"api_key,omitempty" env:"ANTHROPIC_API_KEY"`
	BaseURL string `json:"base_url" env:"ANTHROPIC_BASE_URL"`
	Model   string `json:"model" env:"CLAUDE_MODEL"`
}

// PipelineConfig for voice request processing
type PipelineConfig struct {
	MaxItems       int      `json:"max_items" env:"MAX_ACTION_ITEMS"`
	RequestTimeout Duration `json:"request_timeout" env:"REQUEST_TIMEOUT"`
	MaxAudioBytes  int64    `json:"max_audio_bytes" env:"MAX_AUDIO_BYTES"`
	ResolverCache  int      `json:"resolver_cache" env:"RESOLVER_CACHE_SIZE"`
}

// CalendarConfig for calendar links and optional direct insertion
type CalendarConfig struct {
	DefaultOffset    Duration     `json:"default_offset" env:"CALENDAR_DEFAULT_OFFSET"`
	DefaultDuration  Duration     `json:"default_duration" env:"CALENDAR_EVENT_DURATION"`
	DefaultStartHour int          `json:"default_start_hour" env:"CALENDAR_DEFAULT_START_HOUR"`
	Timezone         string       `json:"timezone" env:"TZ_NAME"`
	Google           GoogleConfig `json:"google"`
}

// GoogleConfig for pushing events to Google Calendar
type GoogleConfig struct {
	Enabled      bool   `json:"enabled" env:"GOOGLE_CALENDAR_ENABLED"`
	ClientID     string `json:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `json:"client_secret,omitempty" env:"GOOGLE_CLIENT_SECRET"`
	RefreshToken string `json:"refresh_token,omitempty" env:"GOOGLE_REFRESH_TOKEN"`
	CalendarID   string `json:"calendar_id" env:"GOOGLE_CALENDAR_ID"`
}

// StorageConfig for the access store
type StorageConfig struct {
	Path     string `json:"path" env:"DATABASE_PATH"`
	InMemory bool   `json:"in_memory" env:"DATABASE_IN_MEMORY"`
}

// Duration is a time.Duration that reads and writes as "24h" style text.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "0" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns default configuration
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".voicetasks")

	logCfg := logging.DefaultConfig()
	logCfg.Path = filepath.Join(dataDir, "logs")

	return &Config{
		DataDir: dataDir,
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Access: AccessConfig{
			InvitationTTL: Duration(7 * 24 * time.Hour),
			SweepInterval: Duration(time.Hour),
		},
		OpenAI: OpenAIConfig{
			BaseURL:      "https://api.openai.com/v1",
			WhisperModel: "whisper-1",
			GPTModel:     "gpt-4o",
		},
		Claude: ClaudeConfig{
			BaseURL: "https://api.anthropic.com/v1",
			Model:   "claude-3-opus-20240229",
		},
		Analyzer: "openai",
		Pipeline: PipelineConfig{
			MaxItems:       20,
			RequestTimeout: Duration(2 * time.Minute),
			MaxAudioBytes:  25 << 20,
			ResolverCache:  1024,
		},
		Calendar: CalendarConfig{
			DefaultOffset:    Duration(24 * time.Hour),
			DefaultDuration:  Duration(30 * time.Minute),
			DefaultStartHour: 9,
			Google: GoogleConfig{
				CalendarID: "primary",
			},
		},
		Storage: StorageConfig{
			Path: filepath.Join(dataDir, "voicetasks.db"),
		},
		Logging: logCfg,
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load loads config from file, falling back to defaults, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if dir := os.Getenv("DATA_DIR"); dir != "" {
			cfg.DataDir = dir
		}
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// Validate reports every missing or inconsistent setting.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Access.Admins()) == 0 {
		errs = append(errs, errors.New("missing ADMIN_USER_ID"))
	}
	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("missing OPENAI_API_KEY"))
	}
	switch c.Analyzer {
	case "openai":
	case "claude":
		if c.Claude.APIKey == "" {
			errs = append(errs, errors.New("missing ANTHROPIC_API_KEY for claude analyzer"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown analyzer %q", c.Analyzer))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	if c.Access.InvitationTTL < 0 {
		errs = append(errs, errors.New("invitation ttl must not be negative"))
	}
	if c.Pipeline.MaxItems < 0 {
		errs = append(errs, errors.New("max items must not be negative"))
	}
	if h := c.Calendar.DefaultStartHour; h < 0 || h > 23 {
		errs = append(errs, fmt.Errorf("invalid default start hour %d", h))
	}
	if c.Calendar.Timezone != "" {
		if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("invalid timezone %q: %w", c.Calendar.Timezone, err))
		}
	}
	if g := c.Calendar.Google; g.Enabled && (g.ClientID == "" || g.ClientSecret == "" || g.RefreshToken == "") {
		errs = append(errs, errors.New("google calendar enabled without client credentials"))
	}

	return errors.Join(errs...)
}

// Location returns the configured timezone, or the local zone.
func (c *Config) Location() *time.Location {
	if c.Calendar.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Save saves config to file
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	// Secrets stay in the environment
	safeCfg := *c
	safeCfg.Server.APIToken = ""
	safeCfg.Bot.Token = ""
	safeCfg.OpenAI.APIKey = ""
	safeCfg.Claude.APIKey = ""
	safeCfg.Calendar.Google.ClientSecret = ""
	safeCfg.Calendar.Google.RefreshToken = ""

	data, err := json.MarshalIndent(safeCfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
