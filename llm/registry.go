package llm

import (
	"fmt"
	"sync"

	"github.com/samber/lo"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

// Default models used when neither the preference nor the provider config names one.
const (
	DefaultOpenAIModel    = "gpt-4"
	DefaultAnthropicModel = "claude-haiku-4-5"
)

// Preference represents a single provider/model preference.
type Preference struct {
	Provider string
	Model    string
}

// ClientKey uniquely identifies an LLM client configuration.
type ClientKey struct {
	Provider     string
	Model        string
	APIKey       string // For credential-based providers
	Host         string // For Ollama
	BaseURL      string // For OpenAI
	Organization string // For OpenAI
}

// ProviderConfig holds the configuration needed for provider resolution.
// Credentials arrive here already resolved; this package never reads the environment.
type ProviderConfig struct {
	AnthropicAPIKey string
	OllamaHost      string
	OllamaModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIOrg       string
}

// ProviderRegistry manages LLM provider selection and configuration resolution.
// Client creation is handled by the caller to avoid import cycles.
type ProviderRegistry struct {
	enabledProviders []string // In priority order
	mu               sync.RWMutex
	config           *ProviderConfig
}

// NewProviderRegistry creates a new ProviderRegistry with the given config and enabled providers.
func NewProviderRegistry(providerConfig *ProviderConfig, enabledProviders []string) *ProviderRegistry {
	if providerConfig == nil {
		providerConfig = &ProviderConfig{}
	}
	return &ProviderRegistry{
		enabledProviders: lo.Uniq(enabledProviders),
		config:           providerConfig,
	}
}

// IsProviderEnabled checks if a provider is in the enabled providers list.
func (r *ProviderRegistry) IsProviderEnabled(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Contains(r.enabledProviders, provider)
}

// IsProviderConfigured checks if a provider has the required configuration (API keys, hosts, etc.).
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isProviderConfiguredUnlocked(provider)
}

// Resolve returns a ClientKey for the first usable provider from prefs.
// Without preferences the first enabled, configured provider wins.
func (r *ProviderRegistry) Resolve(prefs []Preference) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(prefs) == 0 {
		prefs = lo.Map(r.enabledProviders, func(p string, _ int) Preference {
			return Preference{Provider: p}
		})
	}
	if len(prefs) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}

	var attempted []string
	var lastErr error
	for _, pref := range prefs {
		attempted = append(attempted, pref.Provider)
		if !lo.Contains(r.enabledProviders, pref.Provider) {
			continue
		}
		if !r.isProviderConfiguredUnlocked(pref.Provider) {
			continue
		}
		key, err := r.resolveProviderConfig(pref.Provider, pref.Model)
		if err != nil {
			lastErr = err
			continue
		}
		return key, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("no available provider from %v (enabled: %v): %w", attempted, r.enabledProviders, lastErr)
	}
	return nil, fmt.Errorf("no available provider from %v (enabled: %v)", attempted, r.enabledProviders)
}

// isProviderConfiguredUnlocked is the unlocked version of IsProviderConfigured.
// Must be called with r.mu already locked.
func (r *ProviderRegistry) isProviderConfiguredUnlocked(provider string) bool {
	switch provider {
	case ProviderAnthropic:
		return r.config.AnthropicAPIKey != ""
	case ProviderOllama:
		// Ollama doesn't require API key, just needs host (which has a default)
		return true
	case ProviderOpenAI:
		return r.config.OpenAIAPIKey != ""
	default:
		return false
	}
}

// resolveProviderConfig resolves provider-specific configuration and returns a ClientKey.
func (r *ProviderRegistry) resolveProviderConfig(provider, modelOverride string) (*ClientKey, error) {
	key := &ClientKey{
		Provider: provider,
		Model:    modelOverride,
	}

	switch provider {
	case ProviderAnthropic:
		key.APIKey = r.config.AnthropicAPIKey
		if key.Model == "" {
			key.Model = DefaultAnthropicModel
		}

	case ProviderOllama:
		key.Host = r.config.OllamaHost
		if key.Host == "" {
			key.Host = "http://localhost:11434"
		}
		if key.Model == "" {
			key.Model = r.config.OllamaModel
		}
		if key.Model == "" {
			return nil, fmt.Errorf("ollama model not specified and no default configured")
		}

	case ProviderOpenAI:
		key.APIKey = r.config.OpenAIAPIKey
		key.BaseURL = r.config.OpenAIBaseURL
		key.Organization = r.config.OpenAIOrg
		if key.Model == "" {
			key.Model = r.config.OpenAIModel
		}
		if key.Model == "" {
			key.Model = DefaultOpenAIModel
		}

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}
