// Package config loads guardian daemon settings from a JSON or YAML file,
// a .env file, and GUARDIAN_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level guardian configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Agent    AgentConfig    `json:"agent" yaml:"agent"`
	Memory   MemoryConfig   `json:"memory" yaml:"memory"`
	Events   EventsConfig   `json:"events" yaml:"events"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// ProviderConfig holds LLM provider settings.
type ProviderConfig struct {
	Type    string `json:"type" yaml:"type"` // "openai" (default) or "anthropic"
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
}

// StoreConfig selects the ticket store backend.
type StoreConfig struct {
	Type    string `json:"type" yaml:"type"` // sqlite, bolt, log, postgres
	DataDir string `json:"data_dir" yaml:"data_dir"`
	DSN     string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	MaxIterations      int    `json:"max_iterations" yaml:"max_iterations"`
	CallTimeoutSeconds int    `json:"call_timeout_seconds" yaml:"call_timeout_seconds"`
	PromptFile         string `json:"prompt_file,omitempty" yaml:"prompt_file,omitempty"`
	CompactThreshold   int    `json:"compact_threshold" yaml:"compact_threshold"`
}

// MemoryConfig controls conversation sessions.
type MemoryConfig struct {
	SessionTTLMinutes int `json:"session_ttl_minutes" yaml:"session_ttl_minutes"`
	// SweepSchedule is a cron expression for evicting idle sessions in the
	// background; empty leaves eviction to the next access.
	SweepSchedule string `json:"sweep_schedule,omitempty" yaml:"sweep_schedule,omitempty"`
}

// EventsConfig enables ticket event publishing to Kafka.
type EventsConfig struct {
	KafkaBrokers []string `json:"kafka_brokers,omitempty" yaml:"kafka_brokers,omitempty"`
	Topic        string   `json:"topic,omitempty" yaml:"topic,omitempty"`
}

// LogConfig controls the daemon logger.
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
}

// Store backend names.
const (
	StoreSQLite   = "sqlite"
	StoreBolt     = "bolt"
	StoreLog      = "log"
	StorePostgres = "postgres"
)

// Default returns a config with every optional field filled in.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8000},
		Provider: ProviderConfig{Type: "openai"},
		Store:    StoreConfig{Type: StoreSQLite, DataDir: "./data"},
		Agent: AgentConfig{
			MaxIterations:      10,
			CallTimeoutSeconds: 60,
		},
		Memory: MemoryConfig{SessionTTLMinutes: 60},
		Log:    LogConfig{Level: "info", MaxSizeMB: 50, MaxBackups: 3},
	}
}

// Load reads configuration from a JSON or YAML file (chosen by extension),
// overlays GUARDIAN_* environment variables, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds a config from defaults and GUARDIAN_* variables.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from dir/.env into the process
// environment. Variables that are already set win. A missing file is not
// an error.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays any GUARDIAN_* variables that are set.
func (c *Config) ApplyEnv() error {
	envString(&c.Server.Host, "GUARDIAN_HOST")
	if err := envInt(&c.Server.Port, "GUARDIAN_PORT"); err != nil {
		return err
	}

	envString(&c.Provider.Type, "GUARDIAN_PROVIDER")
	envString(&c.Provider.APIKey, "GUARDIAN_API_KEY")
	if c.Provider.APIKey == "" {
		// Vendor variables as a fallback.
		switch c.Provider.Type {
		case "anthropic":
			c.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	envString(&c.Provider.BaseURL, "GUARDIAN_BASE_URL")
	envString(&c.Provider.Model, "GUARDIAN_MODEL")

	envString(&c.Store.Type, "GUARDIAN_STORE")
	envString(&c.Store.DataDir, "GUARDIAN_DATA_DIR")
	envString(&c.Store.DSN, "GUARDIAN_STORE_DSN")

	for key, dst := range map[string]*int{
		"GUARDIAN_MAX_ITERATIONS":       &c.Agent.MaxIterations,
		"GUARDIAN_CALL_TIMEOUT_SECONDS": &c.Agent.CallTimeoutSeconds,
		"GUARDIAN_COMPACT_THRESHOLD":    &c.Agent.CompactThreshold,
		"GUARDIAN_SESSION_TTL_MINUTES":  &c.Memory.SessionTTLMinutes,
		"GUARDIAN_LOG_MAX_SIZE_MB":      &c.Log.MaxSizeMB,
		"GUARDIAN_LOG_MAX_BACKUPS":      &c.Log.MaxBackups,
	} {
		if err := envInt(dst, key); err != nil {
			return err
		}
	}
	envString(&c.Agent.PromptFile, "GUARDIAN_PROMPT_FILE")
	envString(&c.Memory.SweepSchedule, "GUARDIAN_SESSION_SWEEP")

	if v := os.Getenv("GUARDIAN_KAFKA_BROKERS"); v != "" {
		c.Events.KafkaBrokers = splitList(v)
	}
	envString(&c.Events.Topic, "GUARDIAN_KAFKA_TOPIC")

	envString(&c.Log.Level, "GUARDIAN_LOG_LEVEL")
	envString(&c.Log.File, "GUARDIAN_LOG_FILE")
	return nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}

	switch c.Provider.Type {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Sprintf("provider.type %q is not one of openai, anthropic", c.Provider.Type))
	}
	if c.Provider.APIKey == "" {
		errs = append(errs, "provider.api_key is required")
	}

	switch c.Store.Type {
	case StoreSQLite, StoreBolt, StoreLog:
		if c.Store.DataDir == "" {
			errs = append(errs, "store.data_dir is required")
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			errs = append(errs, "store.dsn is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.type %q is not one of sqlite, bolt, log, postgres", c.Store.Type))
	}

	if c.Agent.MaxIterations < 1 {
		errs = append(errs, "agent.max_iterations must be at least 1")
	}
	if c.Agent.CallTimeoutSeconds < 1 {
		errs = append(errs, "agent.call_timeout_seconds must be at least 1")
	}
	if c.Agent.CompactThreshold < 0 {
		errs = append(errs, "agent.compact_threshold must not be negative")
	}
	if c.Memory.SessionTTLMinutes < 0 {
		errs = append(errs, "memory.session_ttl_minutes must not be negative")
	}
	if c.Memory.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Memory.SweepSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("memory.sweep_schedule %q: %v", c.Memory.SweepSchedule, err))
		}
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// StorePath returns the file used by file-based store backends.
func (c *Config) StorePath() string {
	switch c.Store.Type {
	case StoreBolt:
		return filepath.Join(c.Store.DataDir, "tickets.bolt")
	case StoreLog:
		return filepath.Join(c.Store.DataDir, "tickets.jsonl")
	default:
		return filepath.Join(c.Store.DataDir, "tickets.db")
	}
}

// CallTimeout returns the per-call model timeout.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Agent.CallTimeoutSeconds) * time.Second
}

// SessionTTL returns the idle session lifetime; zero disables eviction.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Memory.SessionTTLMinutes) * time.Minute
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
	}
	return lvl, nil
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
