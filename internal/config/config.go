package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Summary SummaryConfig `json:"summary" yaml:"summary"`
	Ledger  LedgerConfig  `json:"ledger" yaml:"ledger"`
	Redis   RedisConfig   `json:"redis" yaml:"redis"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Client  ClientConfig  `json:"client" yaml:"client"`
}

// ServerConfig controls the HTTP listener and upload limits.
type ServerConfig struct {
	Address        string   `json:"address" yaml:"address"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	UploadField    string   `json:"upload_field" yaml:"upload_field"`
	MaxUploadMB    int      `json:"max_upload_mb" yaml:"max_upload_mb"`
	UploadDir      string   `json:"upload_dir" yaml:"upload_dir"`
	AudioDir       string   `json:"audio_dir" yaml:"audio_dir"`
}

// SummaryConfig describes the chat-completion collaborator.
type SummaryConfig struct {
	Provider       string  `json:"provider" yaml:"provider"`
	BaseURL        string  `json:"base_url" yaml:"base_url"`
	Model          string  `json:"model" yaml:"model"`
	APIKey         string  `json:"api_key" yaml:"api_key"`
	MaxChars       int     `json:"max_chars" yaml:"max_chars"`
	Temperature    float32 `json:"temperature" yaml:"temperature"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// LedgerConfig selects where in-flight temp uploads are recorded.
type LedgerConfig struct {
	Driver               string `json:"driver" yaml:"driver"`
	DSN                  string `json:"dsn" yaml:"dsn"`
	Host                 string `json:"host" yaml:"host"`
	Port                 int    `json:"port" yaml:"port"`
	Username             string `json:"username" yaml:"username"`
	Password             string `json:"password" yaml:"password"`
	DBName               string `json:"db_name" yaml:"db_name"`
	Params               string `json:"params" yaml:"params"`
	TTLMinutes           int    `json:"ttl_minutes" yaml:"ttl_minutes"`
	CleanIntervalMinutes int    `json:"clean_interval_minutes" yaml:"clean_interval_minutes"`
}

// RedisConfig is used when the ledger driver is redis.
type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// LogConfig sets the logrus level and formatter.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// ClientConfig is read by the pdfsum CLI.
type ClientConfig struct {
	ServerURL string  `json:"server_url" yaml:"server_url"`
	SpeechWPM int     `json:"speech_wpm" yaml:"speech_wpm"`
	Rate      float64 `json:"rate" yaml:"rate"`
}

const (
	DefaultAddress        = ":3000"
	DefaultAllowedOrigin  = "http://localhost:5173"
	DefaultUploadField    = "pdf"
	DefaultMaxUploadMB    = 10
	DefaultProvider       = "openai"
	DefaultBaseURL        = "https://api.groq.com/openai/v1"
	DefaultModel          = "llama3-70b-8192"
	DefaultMaxChars       = 3000
	DefaultTemperature    = 0.7
	DefaultMaxTokens      = 500
	DefaultTimeoutSeconds = 30
	DefaultLedgerDriver   = "sqlite3"
	DefaultLedgerDSN      = "./data/uploads.db"
	DefaultServerURL      = "http://localhost:3000"
	DefaultSpeechWPM      = 180
)

// Default returns a configuration with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from the provided path, then overlays the
// environment. A missing default file is not an error; an explicit path must exist.
func Load(path string) (*Config, error) {
	// .env is optional, real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv("PDFSUM_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	cfg := &Config{}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := decodeFile(absPath, cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if cfg.Ledger.DSN != "" && isFileDriver(cfg.Ledger.Driver) && !filepath.IsAbs(cfg.Ledger.DSN) && cfg.Ledger.DSN != ":memory:" {
		cfg.Ledger.DSN = filepath.Join(filepath.Dir(absPath), cfg.Ledger.DSN)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Summary.APIKey, "GROQ_API_KEY")
	setString(&c.Summary.APIKey, "PDFSUM_API_KEY")
	setString(&c.Summary.Provider, "PDFSUM_PROVIDER")
	setString(&c.Summary.Model, "PDFSUM_MODEL")
	setString(&c.Summary.BaseURL, "PDFSUM_BASE_URL")
	setString(&c.Server.Address, "PDFSUM_ADDR")
	setString(&c.Server.UploadDir, "PDFSUM_UPLOAD_DIR")
	setString(&c.Server.AudioDir, "PDFSUM_AUDIO_DIR")
	setString(&c.Ledger.Driver, "PDFSUM_LEDGER_DRIVER")
	setString(&c.Ledger.DSN, "PDFSUM_LEDGER_DSN")
	setString(&c.Log.Level, "PDFSUM_LOG_LEVEL")
	setString(&c.Client.ServerURL, "PDFSUM_SERVER_URL")

	// SERVER may carry a bare port
	if port := strings.TrimSpace(os.Getenv("SERVER")); port != "" && os.Getenv("PDFSUM_ADDR") == "" {
		if !strings.Contains(port, ":") {
			port = ":" + port
		}
		c.Server.Address = port
	}
	if origins := strings.TrimSpace(os.Getenv("PDFSUM_ALLOWED_ORIGINS")); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	if err := setInt(&c.Summary.MaxChars, "PDFSUM_MAX_CHARS"); err != nil {
		return err
	}
	if err := setInt(&c.Summary.TimeoutSeconds, "PDFSUM_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	if err := setInt(&c.Server.MaxUploadMB, "PDFSUM_MAX_UPLOAD_MB"); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{DefaultAllowedOrigin}
	}
	if c.Server.UploadField == "" {
		c.Server.UploadField = DefaultUploadField
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = DefaultMaxUploadMB
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = filepath.Join(os.TempDir(), "pdfsum-uploads")
	}
	if c.Server.AudioDir == "" {
		c.Server.AudioDir = "./data/audio"
	}
	if c.Summary.Provider == "" {
		c.Summary.Provider = DefaultProvider
	}
	if c.Summary.BaseURL == "" && c.Summary.Provider == DefaultProvider {
		c.Summary.BaseURL = DefaultBaseURL
	}
	if c.Summary.Model == "" && c.Summary.Provider == DefaultProvider {
		c.Summary.Model = DefaultModel
	}
	if c.Summary.MaxChars <= 0 {
		c.Summary.MaxChars = DefaultMaxChars
	}
	if c.Summary.Temperature == 0 {
		c.Summary.Temperature = DefaultTemperature
	}
	if c.Summary.MaxTokens <= 0 {
		c.Summary.MaxTokens = DefaultMaxTokens
	}
	if c.Summary.TimeoutSeconds <= 0 {
		c.Summary.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = DefaultLedgerDriver
	}
	if c.Ledger.DSN == "" && isFileDriver(c.Ledger.Driver) {
		c.Ledger.DSN = DefaultLedgerDSN
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Client.ServerURL == "" {
		c.Client.ServerURL = DefaultServerURL
	}
	if c.Client.SpeechWPM <= 0 {
		c.Client.SpeechWPM = DefaultSpeechWPM
	}
	if c.Client.Rate <= 0 {
		c.Client.Rate = 1
	}
}

// Validate checks the server-side settings. The api key is not required here
// so the CLI can load the same file without one.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Summary.Provider) {
	case "openai", "claude", "gemini":
	default:
		return fmt.Errorf("unsupported summary provider: %s", c.Summary.Provider)
	}
	switch strings.ToLower(c.Ledger.Driver) {
	case "sqlite", "sqlite3", "mysql", "redis", "none":
	default:
		return fmt.Errorf("unsupported ledger driver: %s", c.Ledger.Driver)
	}
	if strings.TrimSpace(c.Summary.Model) == "" {
		return errors.New("summary model must be configured")
	}
	if c.Summary.Temperature < 0 || c.Summary.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", c.Summary.Temperature)
	}
	return nil
}

// Redacted returns a copy safe for logging.
func (c *Config) Redacted() Config {
	out := *c
	if out.Summary.APIKey != "" {
		out.Summary.APIKey = "***"
	}
	if out.Ledger.Password != "" {
		out.Ledger.Password = "***"
	}
	out.Ledger.DSN = redactDSN(out.Ledger.Driver, out.Ledger.DSN)
	if out.Redis.Password != "" {
		out.Redis.Password = "***"
	}
	return out
}

// redactDSN masks the password inside a mysql DSN. A DSN that does not parse
// is masked whole.
func redactDSN(driver, dsn string) string {
	if dsn == "" || !strings.EqualFold(driver, "mysql") {
		return dsn
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "***"
	}
	if mc.Passwd != "" {
		mc.Passwd = "***"
	}
	return mc.FormatDSN()
}

func isFileDriver(driver string) bool {
	d := strings.ToLower(driver)
	return d == "" || d == "sqlite" || d == "sqlite3"
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
