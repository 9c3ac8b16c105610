package embedding

import "fmt"

// Config selects and configures an embedding provider.
type Config struct {
	Provider          string // "ollama" (default) or "openai"
	BaseURL           string
	APIKey            string
	Model             string
	RequestsPerMinute int // 0 disables rate limiting
	Burst             int
}

// NewProvider creates the embedding provider named by cfg.Provider, wrapping
// it with a rate limiter when RequestsPerMinute is set.
func NewProvider(cfg Config) (Provider, error) {
	var provider Provider
	switch cfg.Provider {
	case "openai":
		provider = NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "ollama", "":
		provider = NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.Provider)
	}
	if cfg.RequestsPerMinute > 0 {
		provider = NewRateLimitedProvider(provider, cfg.RequestsPerMinute, cfg.Burst)
	}
	return provider, nil
}
