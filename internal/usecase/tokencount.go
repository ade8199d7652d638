package usecase

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	"pocketsage/internal/domain"
)

// TokenCounter estimates token counts for budget enforcement. When the
// BPE encoding is available it counts exactly; otherwise it falls back
// to the ceil(chars/4) heuristic.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the named encoding (e.g. "cl100k_base"). Load
// failures are logged and degrade to the heuristic, never fatal.
func NewTokenCounter(encoding string, logger *slog.Logger) *TokenCounter {
	if encoding == "" {
		return &TokenCounter{}
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		if logger != nil {
			logger.Warn("token encoding unavailable, using heuristic",
				"encoding", encoding, "error", err)
		}
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// Count returns the token count of text.
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if tc.enc != nil {
		return len(tc.enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// CountMessage returns the token cost of one turn.
func (tc *TokenCounter) CountMessage(msg domain.ChatMessage) int {
	return tc.Count(msg.Content)
}

// estimateTokens is the ceil(chars/4) heuristic used when no encoder
// is loaded.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
