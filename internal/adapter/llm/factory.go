package llm

import (
	"fmt"
	"log/slog"

	"pocketsage/internal/domain"
	"pocketsage/internal/infra/config"
)

// NewProvider builds a single provider from its configuration.
func NewProvider(cfg config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(cfg, logger), nil
	case "ollama":
		return NewOllamaProvider(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}

// BuildStack assembles the configured provider chain: each provider
// optionally wrapped in a circuit breaker, with the default provider in
// front and the configured fallbacks behind it when failover is enabled.
func BuildStack(cfg config.LLMConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no llm providers configured")
	}

	byName := make(map[string]domain.LLMProvider, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := NewProvider(pc, logger)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		byName[pc.Name] = p
	}

	primary, ok := byName[cfg.DefaultProvider]
	if !ok {
		return nil, fmt.Errorf("default provider %q not configured", cfg.DefaultProvider)
	}

	if !cfg.Failover.Enabled || len(cfg.Failover.Fallbacks) == 0 {
		return primary, nil
	}

	fallbacks := make([]domain.LLMProvider, 0, len(cfg.Failover.Fallbacks))
	for _, name := range cfg.Failover.Fallbacks {
		fb, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("fallback provider %q not configured", name)
		}
		if name == cfg.DefaultProvider {
			continue
		}
		fallbacks = append(fallbacks, fb)
	}

	return NewFailoverProvider(primary, fallbacks, logger), nil
}
