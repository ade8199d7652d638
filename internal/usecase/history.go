package usecase

import (
	"log/slog"
	"sync"
	"time"

	"pocketsage/internal/domain"
)

// History is the bounded conversation window sent to the model. It
// holds at most MaxMessages recent turns and guarantees that the kept
// turns plus the system prompt fit the token budget.
type History struct {
	mu       sync.RWMutex
	messages []domain.ChatMessage

	maxMessages int
	tokenBudget int
	counter     *TokenCounter
	logger      *slog.Logger
}

// HistoryConfig bounds a History.
type HistoryConfig struct {
	MaxMessages int
	TokenBudget int
}

// NewHistory creates an empty history with the given bounds. A nil
// counter falls back to heuristic token estimation.
func NewHistory(cfg HistoryConfig, counter *TokenCounter, logger *slog.Logger) *History {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 10
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 1800
	}
	if counter == nil {
		counter = &TokenCounter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &History{
		maxMessages: cfg.MaxMessages,
		tokenBudget: cfg.TokenBudget,
		counter:     counter,
		logger:      logger,
	}
}

// Append adds a turn with the given role, stamping the time.
func (h *History) Append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, domain.ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// Messages returns a copy of the current window.
func (h *History) Messages() []domain.ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make([]domain.ChatMessage, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// Len returns the number of kept turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Prune enforces both bounds: keep the most recent maxMessages turns,
// then drop from the front until the window plus systemPrompt fits the
// token budget. Running Prune on an already-pruned history is a no-op.
func (h *History) Prune(systemPrompt string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	before := len(h.messages)
	if len(h.messages) > h.maxMessages {
		h.messages = h.messages[len(h.messages)-h.maxMessages:]
	}

	used := h.counter.Count(systemPrompt)
	for _, msg := range h.messages {
		used += h.counter.CountMessage(msg)
	}
	for used > h.tokenBudget && len(h.messages) > 0 {
		used -= h.counter.CountMessage(h.messages[0])
		h.messages = h.messages[1:]
	}

	if dropped := before - len(h.messages); dropped > 0 {
		h.logger.Debug("history pruned",
			"dropped", dropped, "kept", len(h.messages), "tokens", used)
	}
}

// EstimateTokens returns the token cost of the current window plus
// the system prompt.
func (h *History) EstimateTokens(systemPrompt string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := h.counter.Count(systemPrompt)
	for _, msg := range h.messages {
		total += h.counter.CountMessage(msg)
	}
	return total
}

// Clear drops all turns.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}
