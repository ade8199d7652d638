package llm

import (
	"context"
	"fmt"
	"log/slog"

	"pocketsage/internal/domain"
)

// Compile-time interface assertions.
var (
	_ domain.LLMProvider          = (*FailoverProvider)(nil)
	_ domain.StreamingLLMProvider = (*FailoverProvider)(nil)
)

// FailoverProvider wraps a primary LLM provider with fallback providers.
// If the primary fails, it tries each fallback in order.
type FailoverProvider struct {
	primary   domain.LLMProvider
	fallbacks []domain.LLMProvider
	logger    *slog.Logger
}

// NewFailoverProvider creates a failover-capable provider.
func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	return &FailoverProvider{
		primary:   primary,
		fallbacks: fallbacks,
		logger:    logger,
	}
}

// Chat tries the primary provider first, then each fallback on failure.
// When every backend fails the error wraps ErrModelUnavailable with the
// per-provider failures aggregated.
func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := f.primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	f.logger.Warn("primary LLM failed, trying fallbacks",
		"primary", f.primary.Name(), "error", err)

	allErrors := []string{fmt.Sprintf("%s: %v", f.primary.Name(), err)}

	for _, fb := range f.fallbacks {
		resp, err = fb.Chat(ctx, req)
		if err == nil {
			f.logger.Info("failover succeeded", "provider", fb.Name())
			return resp, nil
		}
		f.logger.Warn("fallback LLM failed", "provider", fb.Name(), "error", err)
		allErrors = append(allErrors, fmt.Sprintf("%s: %v", fb.Name(), err))
	}

	return nil, fmt.Errorf("%w: [%s]", domain.ErrModelUnavailable, joinErrors(allErrors))
}

// ChatStream tries streaming from the primary, then each fallback,
// skipping providers that cannot stream.
func (f *FailoverProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	var allErrors []string

	if sp, ok := f.primary.(domain.StreamingLLMProvider); ok {
		ch, err := sp.ChatStream(ctx, req)
		if err == nil {
			return ch, nil
		}
		f.logger.Warn("primary streaming LLM failed, trying fallbacks",
			"primary", f.primary.Name(), "error", err)
		allErrors = append(allErrors, fmt.Sprintf("%s: %v", f.primary.Name(), err))
	}

	for _, fb := range f.fallbacks {
		if sp, ok := fb.(domain.StreamingLLMProvider); ok {
			ch, err := sp.ChatStream(ctx, req)
			if err == nil {
				f.logger.Info("streaming failover succeeded", "provider", fb.Name())
				return ch, nil
			}
			f.logger.Warn("fallback streaming LLM failed", "provider", fb.Name(), "error", err)
			allErrors = append(allErrors, fmt.Sprintf("%s: %v", fb.Name(), err))
		}
	}

	if len(allErrors) > 0 {
		return nil, fmt.Errorf("%w: [%s]", domain.ErrModelUnavailable, joinErrors(allErrors))
	}
	return nil, fmt.Errorf("%w: no streaming-capable providers", domain.ErrModelUnavailable)
}

// Name returns a composite name.
func (f *FailoverProvider) Name() string {
	return f.primary.Name() + "+failover"
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	result := errs[0]
	for i := 1; i < len(errs); i++ {
		result += "; " + errs[i]
	}
	return result
}
