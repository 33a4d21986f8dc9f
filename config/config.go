package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/aschepis/backscratcher/skillloop/skill"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Executor kinds.
const (
	ExecutorLocal = "local"
	ExecutorHTTP  = "http"
	ExecutorMCP   = "mcp"
)

const (
	defaultSocketName = "tangent.service"
	defaultOllamaHost = "http://localhost:11434"
)

// AnthropicConfig represents configuration for Anthropic LLM provider.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`  // Anthropic API key
	BaseURL string `yaml:"base_url,omitempty"` // Custom base URL (default: official API)
}

// OllamaConfig represents configuration for Ollama LLM provider.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"`  // Ollama host (default: "http://localhost:11434")
	Model string `yaml:"model,omitempty"` // Default model name
}

// OpenAIConfig represents configuration for OpenAI LLM provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`      // OpenAI API key
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Model        string `yaml:"model,omitempty"`        // Default model name
	Organization string `yaml:"organization,omitempty"` // Organization ID
}

// LLMPreference represents a single LLM provider/model preference.
// The first available provider from the preference list is used.
type LLMPreference struct {
	Provider string `yaml:"provider"`        // Required: "anthropic", "ollama", or "openai"
	Model    string `yaml:"model,omitempty"` // Optional: uses provider default if omitted
}

// SkillServiceConfig points at a skill service speaking the skill-invocations protocol.
type SkillServiceConfig struct {
	URL       string `yaml:"url,omitempty"` // http(s):// or unix:///path
	SessionID string `yaml:"session_id,omitempty"`
	AuthToken string `yaml:"auth_token,omitempty"`
}

// MCPServerConfig represents configuration for an MCP server.
type MCPServerConfig struct {
	Command string   `yaml:"command,omitempty"` // For STDIO transport
	URL     string   `yaml:"url,omitempty"`     // For HTTP transport
	Args    []string `yaml:"args,omitempty"`    // Additional args for STDIO command
	Env     []string `yaml:"env,omitempty"`     // Environment variables for STDIO
}

// TranscriptConfig controls run recording.
type TranscriptConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// Config is the complete skillloop configuration.
type Config struct {
	// LLM provider configurations
	Anthropic    AnthropicConfig `yaml:"anthropic,omitempty"`
	Ollama       OllamaConfig    `yaml:"ollama,omitempty"`
	OpenAI       OpenAIConfig    `yaml:"openai,omitempty"`
	LLMProviders []string        `yaml:"llm_providers,omitempty"`
	LLM          []LLMPreference `yaml:"llm,omitempty"`

	// Loop settings
	SystemPrompt  string            `yaml:"system_prompt,omitempty"`
	Seed          *int              `yaml:"seed,omitempty"`
	MaxTurns      int               `yaml:"max_turns,omitempty"`
	MaxTokens     int64             `yaml:"max_tokens,omitempty"`
	Temperature   *float64          `yaml:"temperature,omitempty"`
	ParallelTools bool              `yaml:"parallel_tools,omitempty"`
	Retry         skill.RetryConfig `yaml:"retry,omitempty"`

	// Skill execution surface
	Executor     string             `yaml:"executor,omitempty"`
	SkillService SkillServiceConfig `yaml:"skill_service,omitempty"`
	MCPServer    MCPServerConfig    `yaml:"mcp_server,omitempty"`
	Tools        []llm.ToolSpec     `yaml:"tools,omitempty"`

	Transcript TranscriptConfig `yaml:"transcript,omitempty"`
}

// GetConfigPath returns the default config file path.
// Can be overridden via SKILLLOOP_CONFIG environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("SKILLLOOP_CONFIG"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.skillloop/config.yaml"
	}
	return filepath.Join(homeDir, ".skillloop", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// defaultSkillServiceURL returns the unix socket a local skill service listens on.
func defaultSkillServiceURL() string {
	if xdgRuntimeDir := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntimeDir != "" {
		if _, err := os.Stat(xdgRuntimeDir); err == nil {
			return "unix://" + filepath.Join(xdgRuntimeDir, defaultSocketName)
		}
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "unix://" + filepath.Join(os.TempDir(), defaultSocketName)
	}
	return "unix://" + filepath.Join(homeDir, ".local", "run", defaultSocketName)
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		LLMProviders: []string{llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderOllama},
		Ollama: OllamaConfig{
			Host: defaultOllamaHost,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   llm.DefaultOpenAIModel,
		},
		SystemPrompt: "You are a helpful assistant. Use the available tools when they help answer the user.",
		MaxTurns:     20,
		MaxTokens:    4096,
		Retry:        skill.DefaultRetryConfig(),
		Executor:     ExecutorHTTP,
		SkillService: SkillServiceConfig{
			URL: defaultSkillServiceURL(),
		},
		Transcript: TranscriptConfig{
			Path: "~/.skillloop/transcripts.db",
		},
	}
}

// Load reads the config file at path, if it exists, merges it onto the
// defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}
		if err := Merge(&cfg, data); err != nil {
			return nil, err
		}
	}

	applyEnv(&cfg)

	cfg.Transcript.Path = expandPath(cfg.Transcript.Path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Merge parses YAML and merges it onto cfg, file values taking precedence.
func Merge(cfg *Config, data []byte) error {
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if !lo.Contains([]string{ExecutorLocal, ExecutorHTTP, ExecutorMCP}, c.Executor) {
		return fmt.Errorf("unknown executor %q (want %s, %s or %s)", c.Executor, ExecutorLocal, ExecutorHTTP, ExecutorMCP)
	}
	if c.MaxTurns < 1 {
		return fmt.Errorf("max_turns must be at least 1, got %d", c.MaxTurns)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	switch c.Executor {
	case ExecutorHTTP:
		if c.SkillService.URL == "" {
			return fmt.Errorf("skill_service.url is required for the http executor")
		}
	case ExecutorMCP:
		if c.MCPServer.URL == "" && c.MCPServer.Command == "" {
			return fmt.Errorf("mcp_server.url or mcp_server.command is required for the mcp executor")
		}
	}
	for _, pref := range c.LLM {
		if pref.Provider == "" {
			return fmt.Errorf("llm preference is missing a provider")
		}
	}
	return nil
}
