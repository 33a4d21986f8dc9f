package config

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aschepis/backscratcher/skillloop/llm"
	llmanthropic "github.com/aschepis/backscratcher/skillloop/llm/anthropic"
	llmollama "github.com/aschepis/backscratcher/skillloop/llm/ollama"
	llmopenai "github.com/aschepis/backscratcher/skillloop/llm/openai"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// ProviderConfig returns the resolved credentials and endpoints for the provider registry.
func (c *Config) ProviderConfig() *llm.ProviderConfig {
	return &llm.ProviderConfig{
		AnthropicAPIKey: c.Anthropic.APIKey,
		OllamaHost:      c.Ollama.Host,
		OllamaModel:     c.Ollama.Model,
		OpenAIAPIKey:    c.OpenAI.APIKey,
		OpenAIBaseURL:   c.OpenAI.BaseURL,
		OpenAIModel:     c.OpenAI.Model,
		OpenAIOrg:       c.OpenAI.Organization,
	}
}

// ResolveProvider picks the provider and model from the LLM preferences.
func (c *Config) ResolveProvider() (*llm.ClientKey, error) {
	registry := llm.NewProviderRegistry(c.ProviderConfig(), c.LLMProviders)
	prefs := lo.Map(c.LLM, func(p LLMPreference, _ int) llm.Preference {
		return llm.Preference{Provider: p.Provider, Model: p.Model}
	})
	return registry.Resolve(prefs)
}

// NewLLMClient creates the model client for the resolved provider.
func (c *Config) NewLLMClient(logger zerolog.Logger) (llm.Client, *llm.ClientKey, error) {
	key, err := c.ResolveProvider()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve llm provider: %w", err)
	}

	var client llm.Client
	switch key.Provider {
	case llm.ProviderAnthropic:
		var opts []option.RequestOption
		if c.Anthropic.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(c.Anthropic.BaseURL))
		}
		client, err = llmanthropic.NewAnthropicClient(key.APIKey, key.Model, logger, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create anthropic client: %w", err)
		}

	case llm.ProviderOllama:
		client, err = llmollama.NewOllamaClient(key.Host, key.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create ollama client: %w", err)
		}

	case llm.ProviderOpenAI:
		client, err = llmopenai.NewOpenAIClient(key.APIKey, key.BaseURL, key.Model, key.Organization)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create openai client: %w", err)
		}

	default:
		return nil, nil, fmt.Errorf("unknown provider: %s", key.Provider)
	}

	logger.Info().Str("provider", key.Provider).Str("model", key.Model).Msg("Resolved LLM provider")
	return client, key, nil
}
