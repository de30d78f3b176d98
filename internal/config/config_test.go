package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
  "server": {"host": "127.0.0.1", "port": 9000},
  "provider": {"type": "openai", "api_key": "sk-test-key", "model": "gpt-4o"},
  "store": {"type": "bolt", "data_dir": "/tmp/guardian-test"},
  "agent": {"max_iterations": 5, "call_timeout_seconds": 30, "compact_threshold": 8000},
  "memory": {"session_ttl_minutes": 15},
  "events": {"kafka_brokers": ["kafka:9092"], "topic": "tickets"},
  "log": {"level": "debug"}
}`

const validYAML = `
server:
  port: 9100
provider:
  type: anthropic
  api_key: sk-ant
store:
  type: log
  data_dir: /var/lib/guardian
agent:
  prompt_file: prompt.yaml
`

// clearEnv unsets every variable ApplyEnv reads so host settings do not
// leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "GUARDIAN_") || key == "OPENAI_API_KEY" || key == "ANTHROPIC_API_KEY" {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_JSON(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "config.json", validJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Addr() != "127.0.0.1:9000" {
		t.Errorf("expected addr 127.0.0.1:9000, got %s", cfg.Addr())
	}
	if cfg.Provider.APIKey != "sk-test-key" {
		t.Errorf("unexpected api key %q", cfg.Provider.APIKey)
	}
	if cfg.StorePath() != filepath.Join("/tmp/guardian-test", "tickets.bolt") {
		t.Errorf("unexpected store path %s", cfg.StorePath())
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("expected max_iterations 5, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.CallTimeout() != 30*time.Second {
		t.Errorf("expected 30s call timeout, got %s", cfg.CallTimeout())
	}
	if cfg.SessionTTL() != 15*time.Minute {
		t.Errorf("expected 15m ttl, got %s", cfg.SessionTTL())
	}
	if len(cfg.Events.KafkaBrokers) != 1 || cfg.Events.Topic != "tickets" {
		t.Errorf("unexpected events config %+v", cfg.Events)
	}
}

func TestLoad_YAMLKeepsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "config.yaml", validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9100 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Provider.Type != "anthropic" {
		t.Errorf("expected anthropic, got %s", cfg.Provider.Type)
	}
	if cfg.StorePath() != filepath.Join("/var/lib/guardian", "tickets.jsonl") {
		t.Errorf("unexpected store path %s", cfg.StorePath())
	}
	if cfg.Agent.MaxIterations != 10 || cfg.Agent.CallTimeoutSeconds != 60 {
		t.Errorf("defaults lost: %+v", cfg.Agent)
	}
	if cfg.Agent.PromptFile != "prompt.yaml" {
		t.Errorf("unexpected prompt file %q", cfg.Agent.PromptFile)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("GUARDIAN_PORT", "7000")
	t.Setenv("GUARDIAN_STORE", "sqlite")
	t.Setenv("GUARDIAN_KAFKA_BROKERS", "a:9092, b:9092")

	cfg, err := Load(writeConfig(t, "config.json", validJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("expected env port 7000, got %d", cfg.Server.Port)
	}
	if cfg.Store.Type != StoreSQLite {
		t.Errorf("expected env store sqlite, got %s", cfg.Store.Type)
	}
	if len(cfg.Events.KafkaBrokers) != 2 || cfg.Events.KafkaBrokers[1] != "b:9092" {
		t.Errorf("unexpected brokers %v", cfg.Events.KafkaBrokers)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	if _, err := Load(writeConfig(t, "config.json", "{not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-from-vendor-var")
	t.Setenv("GUARDIAN_MAX_ITERATIONS", "4")
	t.Setenv("GUARDIAN_LOG_LEVEL", "warn")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Provider.APIKey != "sk-from-vendor-var" {
		t.Errorf("expected OPENAI_API_KEY fallback, got %q", cfg.Provider.APIKey)
	}
	if cfg.Agent.MaxIterations != 4 {
		t.Errorf("expected 4 iterations, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected warn, got %s", cfg.Log.Level)
	}
}

func TestLoadFromEnv_BadInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("GUARDIAN_API_KEY", "k")
	t.Setenv("GUARDIAN_PORT", "eighty")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Provider.Type = "llama"
	cfg.Store.Type = "postgres"
	cfg.Agent.MaxIterations = 0
	cfg.Log.Level = "loud"
	cfg.Memory.SweepSchedule = "every now and then"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"server.port",
		"provider.type",
		"provider.api_key",
		"store.dsn",
		"agent.max_iterations",
		"memory.sweep_schedule",
		"log.level",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in error:\n%s", want, err)
		}
	}
}

func TestValidate_SweepSchedule(t *testing.T) {
	for _, sched := range []string{"@every 5m", "*/10 * * * *", "@hourly"} {
		cfg := Default()
		cfg.Provider.APIKey = "sk"
		cfg.Memory.SweepSchedule = sched
		if err := cfg.Validate(); err != nil {
			t.Errorf("schedule %q: unexpected error: %v", sched, err)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GUARDIAN_API_KEY=sk-dotenv\nGUARDIAN_PORT=8123\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GUARDIAN_PORT", "9999") // already set: must win

	if err := LoadDotEnv(dir); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("GUARDIAN_API_KEY") })

	if got := os.Getenv("GUARDIAN_API_KEY"); got != "sk-dotenv" {
		t.Errorf("expected key from .env, got %q", got)
	}
	if got := os.Getenv("GUARDIAN_PORT"); got != "9999" {
		t.Errorf("existing variable overwritten: %q", got)
	}
}

func TestLoadDotEnv_Missing(t *testing.T) {
	if err := LoadDotEnv(t.TempDir()); err != nil {
		t.Fatalf("missing .env should not fail: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "warn", "error"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q): %v", s, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}
