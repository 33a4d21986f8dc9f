package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/aschepis/backscratcher/skillloop/skill"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_ORG_ID",
		"ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", "OLLAMA_HOST", "OLLAMA_MODEL",
		"SKILLLOOP_SKILL_SERVICE_URL", "SKILLLOOP_SESSION_ID", "SKILLLOOP_SKILL_SERVICE_TOKEN",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxTurns != 20 {
		t.Errorf("Expected default max turns 20, got %d", cfg.MaxTurns)
	}
	if cfg.Executor != ExecutorHTTP {
		t.Errorf("Expected default executor %q, got %q", ExecutorHTTP, cfg.Executor)
	}
	if !strings.HasPrefix(cfg.SkillService.URL, "unix://") || !strings.HasSuffix(cfg.SkillService.URL, defaultSocketName) {
		t.Errorf("Expected default unix socket URL, got %q", cfg.SkillService.URL)
	}
	def := skill.DefaultRetryConfig()
	if cfg.Retry.MaxAttempts != def.MaxAttempts || cfg.Retry.BaseDelay != def.BaseDelay {
		t.Errorf("Expected default retry config, got %+v", cfg.Retry)
	}
	if strings.HasPrefix(cfg.Transcript.Path, "~") {
		t.Errorf("Expected transcript path to be expanded, got %q", cfg.Transcript.Path)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearProviderEnv(t)

	path := writeConfig(t, `
llm_providers: [ollama]
llm:
  - provider: ollama
    model: llama3.2:3b
seed: 7
max_turns: 5
parallel_tools: true
retry:
  max_attempts: 4
  base_delay: 250ms
  per_attempt_timeout: 2s
  retryable_kinds: [timeout]
executor: local
tools:
  - name: get_weather
    description: Get the current weather
    parameters:
      type: object
      properties:
        location:
          type: string
      required: [location]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Seed == nil || *cfg.Seed != 7 {
		t.Errorf("Expected seed 7, got %v", cfg.Seed)
	}
	if cfg.MaxTurns != 5 || !cfg.ParallelTools || cfg.Executor != ExecutorLocal {
		t.Errorf("Unexpected loop settings: %+v", cfg)
	}
	if cfg.Retry.MaxAttempts != 4 || cfg.Retry.BaseDelay != 250*time.Millisecond || cfg.Retry.PerAttemptTimeout != 2*time.Second {
		t.Errorf("Unexpected retry config: %+v", cfg.Retry)
	}
	if cfg.Retry.BackoffMultiplier != 2.0 {
		t.Errorf("Expected unset multiplier to keep its default, got %g", cfg.Retry.BackoffMultiplier)
	}
	if len(cfg.Retry.RetryableKinds) != 1 || cfg.Retry.RetryableKinds[0] != skill.KindTimeout {
		t.Errorf("Expected retryable kinds [timeout], got %v", cfg.Retry.RetryableKinds)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].Name != "get_weather" || len(cfg.Tools[0].Schema.Required) != 1 {
		t.Fatalf("Unexpected tools: %+v", cfg.Tools)
	}

	key, err := cfg.ResolveProvider()
	if err != nil {
		t.Fatalf("ResolveProvider: %v", err)
	}
	if key.Provider != llm.ProviderOllama || key.Model != "llama3.2:3b" {
		t.Errorf("Unexpected provider %+v", key)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("SKILLLOOP_SKILL_SERVICE_URL", "http://localhost:8468")
	t.Setenv("SKILLLOOP_SESSION_ID", "session-1")
	t.Setenv("SKILLLOOP_SKILL_SERVICE_TOKEN", "secret")

	path := writeConfig(t, "openai:\n  api_key: sk-file\n  model: gpt-4\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-env" || cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("Expected env to win over file, got %+v", cfg.OpenAI)
	}
	if cfg.SkillService.URL != "http://localhost:8468" || cfg.SkillService.SessionID != "session-1" || cfg.SkillService.AuthToken != "secret" {
		t.Errorf("Unexpected skill service config %+v", cfg.SkillService)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("SKILLLOOP_CONFIG", "/etc/skillloop.yaml")
	if got := GetConfigPath(); got != "/etc/skillloop.yaml" {
		t.Errorf("Expected env path, got %q", got)
	}

	t.Setenv("SKILLLOOP_CONFIG", "")
	if got := GetConfigPath(); !strings.HasSuffix(got, filepath.Join(".skillloop", "config.yaml")) {
		t.Errorf("Unexpected default path %q", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown executor", func(c *Config) { c.Executor = "grpc" }},
		{"zero max turns", func(c *Config) { c.MaxTurns = 0 }},
		{"bad retry", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"http without url", func(c *Config) { c.SkillService.URL = "" }},
		{"mcp without server", func(c *Config) { c.Executor = ExecutorMCP }},
		{"preference without provider", func(c *Config) { c.LLM = []LLMPreference{{Model: "gpt-4"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearProviderEnv(t)
	if _, err := Load(writeConfig(t, "max_turns: [")); err == nil {
		t.Error("Expected parse error")
	}
}
