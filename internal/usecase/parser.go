package usecase

import (
	"encoding/json"
	"log/slog"
	"strings"

	"pocketsage/internal/domain"
)

// ParsedResponse is the structured view of one model reply.
type ParsedResponse struct {
	Thought string
	Action  *domain.ToolCall
	Answer  string
}

// ResponseParser extracts THOUGHT / ACTION / ANSWER segments from raw
// model output. The protocol is line-oriented; unprefixed lines attach
// to whichever segment is open.
type ResponseParser struct {
	logger *slog.Logger

	// keepAnswerWithAction keeps an ANSWER that arrives in the same
	// reply as an ACTION. Default policy discards it: a model that
	// answers before seeing the observation is guessing.
	keepAnswerWithAction bool
}

// NewResponseParser creates a parser with the given answer policy.
func NewResponseParser(logger *slog.Logger, keepAnswerWithAction bool) *ResponseParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseParser{logger: logger, keepAnswerWithAction: keepAnswerWithAction}
}

// Parse splits raw output into protocol segments and decodes the
// action. A malformed action payload is logged and dropped; the rest
// of the reply is still used.
func (p *ResponseParser) Parse(raw string) ParsedResponse {
	var thought, action, answer strings.Builder
	var current *strings.Builder

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case hasPrefixFold(trimmed, "THOUGHT:"):
			thought.WriteString(strings.TrimSpace(trimmed[len("THOUGHT:"):]))
			current = &thought
		case hasPrefixFold(trimmed, "ACTION:"):
			action.WriteString(strings.TrimSpace(trimmed[len("ACTION:"):]))
			current = &action
		case hasPrefixFold(trimmed, "ANSWER:"):
			if answer.Len() > 0 {
				answer.WriteString("\n")
			}
			answer.WriteString(strings.TrimSpace(trimmed[len("ANSWER:"):]))
			current = &answer
		case current != nil && trimmed != "":
			current.WriteString("\n")
			current.WriteString(trimmed)
		}
	}

	parsed := ParsedResponse{
		Thought: strings.TrimSpace(thought.String()),
		Answer:  strings.TrimSpace(answer.String()),
	}

	if actionText := strings.TrimSpace(action.String()); actionText != "" {
		call, err := parseActionText(actionText)
		if err != nil {
			p.logger.Warn("dropping malformed action", "action", actionText, "error", err)
		} else {
			parsed.Action = call
		}
	}

	if parsed.Action != nil && parsed.Answer != "" && !p.keepAnswerWithAction {
		p.logger.Debug("discarding answer that accompanied an action",
			"tool", parsed.Action.Name)
		parsed.Answer = ""
	}

	return parsed
}

// parseActionText decodes `tool {json}`, `tool()`, or a bare `tool`.
func parseActionText(text string) (*domain.ToolCall, error) {
	if i := strings.IndexByte(text, '{'); i >= 0 {
		name := strings.TrimSpace(text[:i])
		if name == "" {
			return nil, domain.NewDomainError("parseAction", domain.ErrMalformedAction, "missing tool name")
		}
		var params map[string]any
		if err := json.Unmarshal([]byte(text[i:]), &params); err != nil {
			return nil, domain.NewDomainError("parseAction", domain.ErrMalformedAction, err.Error())
		}
		return &domain.ToolCall{Name: name, Params: params}, nil
	}

	name := strings.TrimSuffix(strings.TrimSpace(text), "()")
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \t") {
		return nil, domain.NewDomainError("parseAction", domain.ErrMalformedAction, text)
	}
	return &domain.ToolCall{Name: name}, nil
}

// CleanRaw strips protocol prefixes from raw output, yielding a
// best-effort answer when the model never emitted ANSWER.
func CleanRaw(raw string) string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range []string{"THOUGHT:", "ACTION:", "ANSWER:"} {
			if hasPrefixFold(trimmed, prefix) {
				trimmed = strings.TrimSpace(trimmed[len(prefix):])
				break
			}
		}
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// MatchToolName resolves a possibly misspelled tool name against known
// names: exact match, then unique prefix, then edit distance of at
// most 2 when lengths differ by at most 2.
func MatchToolName(name string, known []string) (string, bool) {
	for _, k := range known {
		if k == name {
			return k, true
		}
	}

	var prefixMatch string
	prefixCount := 0
	for _, k := range known {
		if strings.HasPrefix(k, name) {
			prefixMatch = k
			prefixCount++
		}
	}
	if prefixCount == 1 {
		return prefixMatch, true
	}

	best := ""
	bestDist := 3
	bestCount := 0
	for _, k := range known {
		diff := len(k) - len(name)
		if diff < -2 || diff > 2 {
			continue
		}
		d := editDistance(name, k)
		switch {
		case d < bestDist:
			best, bestDist, bestCount = k, d, 1
		case d == bestDist:
			bestCount++
		}
	}
	if bestDist <= 2 && bestCount == 1 {
		return best, true
	}
	return "", false
}

// editDistance is the Levenshtein distance between a and b.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
