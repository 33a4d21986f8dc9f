package config

import "os"

// envOverride binds an environment variable to a config field. Empty values
// leave the field untouched.
type envOverride struct {
	name   string
	target func(*Config) *string
}

var envOverrides = []envOverride{
	{"ANTHROPIC_API_KEY", func(c *Config) *string { return &c.Anthropic.APIKey }},
	{"ANTHROPIC_BASE_URL", func(c *Config) *string { return &c.Anthropic.BaseURL }},
	{"OLLAMA_HOST", func(c *Config) *string { return &c.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) *string { return &c.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) *string { return &c.OpenAI.APIKey }},
	{"OPENAI_BASE_URL", func(c *Config) *string { return &c.OpenAI.BaseURL }},
	{"OPENAI_MODEL", func(c *Config) *string { return &c.OpenAI.Model }},
	{"OPENAI_ORG_ID", func(c *Config) *string { return &c.OpenAI.Organization }},
	{"SKILLLOOP_SKILL_SERVICE_URL", func(c *Config) *string { return &c.SkillService.URL }},
	{"SKILLLOOP_SESSION_ID", func(c *Config) *string { return &c.SkillService.SessionID }},
	{"SKILLLOOP_SKILL_SERVICE_TOKEN", func(c *Config) *string { return &c.SkillService.AuthToken }},
}

// applyEnv applies environment overrides. Secrets are expected to arrive this
// way rather than through the config file.
func applyEnv(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			*o.target(cfg) = v
		}
	}
	if cfg.Ollama.Host == "" {
		cfg.Ollama.Host = defaultOllamaHost
	}
}
