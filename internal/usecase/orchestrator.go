package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"pocketsage/internal/domain"
	"pocketsage/internal/infra/tracer"
)

// Model call retry tuning.
const (
	maxLLMRetries  = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
)

// defaultPersona opens the system prompt when no persona is configured.
const defaultPersona = "You are a helpful on-device assistant."

// protocolPrompt always follows the persona; a configured persona must
// not displace the reply protocol the parser depends on.
const protocolPrompt = `Reply using this protocol, one directive per line:
THOUGHT: your reasoning about what to do next
ACTION: tool_name {"param": "value"}
ANSWER: your final reply to the user

Use at most one ACTION per reply. After an ACTION you will receive an
OBSERVATION with the tool's output. When you can answer, reply with
ANSWER alone.`

// ToolRunner is the slice of the tool registry the loop needs.
type ToolRunner interface {
	Available() []domain.Tool
	Invoke(ctx context.Context, call domain.ToolCall) *domain.ToolResult
	Exhausted() []string
}

// OrchestratorDeps holds injected dependencies for the reasoning loop.
type OrchestratorDeps struct {
	LLM             domain.LLMProvider
	Tools           ToolRunner
	History         *History
	Parser          *ResponseParser
	Logger          *slog.Logger
	ErrorClassifier *ErrorClassifier // optional, nil = no model-call retry
	SessionLocker   *SessionLocker   // optional, nil = no per-session locking

	MaxIterations    int
	ObservationLimit int
	SystemPrompt     string // persona only; the reply protocol is always appended
}

// RunOpts carries per-run options and progress callbacks.
type RunOpts struct {
	SessionID string
	OnThought func(string)
	OnAction  func(domain.ToolCall)
	OnToken   func(string)
}

// Orchestrator drives the bounded think-act-observe loop.
type Orchestrator struct {
	deps OrchestratorDeps
}

// NewOrchestrator creates an orchestrator, applying defaults for
// unset bounds.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 5
	}
	if deps.ObservationLimit <= 0 {
		deps.ObservationLimit = 500
	}
	persona := strings.TrimSpace(deps.SystemPrompt)
	if persona == "" {
		persona = defaultPersona
	}
	deps.SystemPrompt = persona + "\n\n" + protocolPrompt
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Parser == nil {
		deps.Parser = NewResponseParser(deps.Logger, false)
	}
	return &Orchestrator{deps: deps}
}

// Run processes one user message through the loop. It returns a
// RunResult for every outcome except cancellation and total model
// failure; hitting the iteration cap is a graceful result, not an
// error.
func (o *Orchestrator) Run(ctx context.Context, userMsg string, opts RunOpts) (*domain.RunResult, error) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.run")
	defer span.End()

	if o.deps.SessionLocker != nil && opts.SessionID != "" {
		unlock, err := o.deps.SessionLocker.Lock(ctx, opts.SessionID)
		if err != nil {
			return nil, domain.NewDomainError("Orchestrator.Run", err, "session lock")
		}
		defer unlock()
		ctx = domain.ContextWithSessionID(ctx, opts.SessionID)
	}

	o.deps.History.Append(domain.RoleUser, userMsg)
	o.deps.History.Prune(o.deps.SystemPrompt)

	// Scratch turns live only inside this run; History keeps just the
	// user message and the final answer.
	working := o.deps.History.Messages()
	result := &domain.RunResult{}

	for i := 0; i < o.deps.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		result.Iterations = i + 1
		span.AddEvent("orchestrator.iteration",
			trace.WithAttributes(tracer.IntAttr("iteration", i)))

		prompt := o.buildSystemPrompt()
		content, usage, err := o.callModel(ctx, domain.ChatRequest{
			SystemPrompt: prompt,
			Messages:     working,
		}, opts.OnToken)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		result.TokensUsed += usage.TotalTokens

		parsed := o.deps.Parser.Parse(content)
		if parsed.Thought != "" {
			result.Thought = parsed.Thought
			if opts.OnThought != nil {
				opts.OnThought(parsed.Thought)
			}
		}

		if parsed.Action != nil {
			working = o.runAction(ctx, *parsed.Action, content, working, result, opts)
			continue
		}

		if parsed.Answer != "" {
			return o.finish(span, result, parsed.Answer), nil
		}

		// No protocol markers at all: treat the cleaned raw text as
		// the answer rather than burning iterations.
		if cleaned := CleanRaw(content); cleaned != "" {
			o.deps.Logger.Debug("using raw reply as answer", "iteration", i)
			return o.finish(span, result, cleaned), nil
		}
	}

	result.FailedTools = o.deps.Tools.Exhausted()
	answer := o.maxIterationsMessage(result.FailedTools)
	o.deps.Logger.Warn("reasoning loop hit iteration cap",
		"iterations", result.Iterations, "failed_tools", result.FailedTools)
	return o.finish(span, result, answer), nil
}

// runAction resolves, invokes, and records one tool call, returning
// the working context extended with the scratch turns.
func (o *Orchestrator) runAction(ctx context.Context, call domain.ToolCall, reply string, working []domain.ChatMessage, result *domain.RunResult, opts RunOpts) []domain.ChatMessage {
	if matched, ok := MatchToolName(call.Name, o.toolNames()); ok && matched != call.Name {
		o.deps.Logger.Debug("fuzzy-matched tool name", "requested", call.Name, "matched", matched)
		call.Name = matched
	}

	result.Action = &call
	if opts.OnAction != nil {
		opts.OnAction(call)
	}

	res := o.deps.Tools.Invoke(ctx, call)
	observation := truncate(formatObservation(res), o.deps.ObservationLimit)

	working = append(working, domain.ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   reply,
		Timestamp: time.Now(),
	})
	working = append(working, domain.ChatMessage{
		Role:      domain.RoleUser,
		Content:   "OBSERVATION: " + observation,
		Timestamp: time.Now(),
	})
	return working
}

func (o *Orchestrator) finish(span trace.Span, result *domain.RunResult, answer string) *domain.RunResult {
	result.FinalAnswer = answer
	o.deps.History.Append(domain.RoleAssistant, answer)
	o.deps.History.Prune(o.deps.SystemPrompt)
	tracer.SetOK(span)
	return result
}

// callModel invokes the provider, streaming when possible and retrying
// transient failures with jittered backoff.
func (o *Orchestrator) callModel(ctx context.Context, req domain.ChatRequest, onToken func(string)) (string, domain.Usage, error) {
	sp, canStream := o.deps.LLM.(domain.StreamingLLMProvider)
	streaming := canStream && onToken != nil

	maxAttempts := 1
	if o.deps.ErrorClassifier != nil {
		maxAttempts = maxLLMRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var content string
		var usage domain.Usage
		var callErr error

		if streaming {
			content, usage, callErr = o.streamOnce(ctx, sp, req, onToken)
		} else {
			llmCtx, llmSpan := tracer.StartSpan(ctx, "orchestrator.llm_call")
			resp, err := o.deps.LLM.Chat(llmCtx, req)
			llmSpan.End()
			if err != nil {
				callErr = err
			} else {
				content = resp.Message.Content
				usage = resp.Usage
			}
		}

		if callErr == nil {
			return content, usage, nil
		}
		lastErr = callErr

		if o.deps.ErrorClassifier == nil {
			break
		}
		if o.deps.ErrorClassifier.Classify(callErr).Category != ErrorCategoryRetryable {
			break
		}
		if attempt < maxAttempts-1 {
			delay := retryBackoff(attempt)
			o.deps.Logger.Info("retrying model call after error",
				"attempt", attempt+1, "delay", delay, "error", callErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", domain.Usage{}, ctx.Err()
			}
		}
	}

	return "", domain.Usage{}, lastErr
}

func (o *Orchestrator) streamOnce(ctx context.Context, sp domain.StreamingLLMProvider, req domain.ChatRequest, onToken func(string)) (string, domain.Usage, error) {
	llmCtx, llmSpan := tracer.StartSpan(ctx, "orchestrator.llm_stream")
	deltaCh, err := sp.ChatStream(llmCtx, req)
	llmSpan.End()
	if err != nil {
		return "", domain.Usage{}, err
	}

	var content strings.Builder
	var usage domain.Usage
	for delta := range deltaCh {
		if delta.Content != "" {
			content.WriteString(delta.Content)
			onToken(delta.Content)
		}
		if delta.Usage != nil {
			usage = *delta.Usage
		}
	}
	return content.String(), usage, nil
}

// buildSystemPrompt appends the currently available tools to the base
// prompt as `name(param:type, ...): description` lines. Exhausted and
// offline tools are not offered to the model.
func (o *Orchestrator) buildSystemPrompt() string {
	tools := o.deps.Tools.Available()
	if len(tools) == 0 {
		return o.deps.SystemPrompt + "\n\nNo tools are available right now; answer directly."
	}

	var b strings.Builder
	b.WriteString(o.deps.SystemPrompt)
	b.WriteString("\n\nAvailable tools:\n")
	for _, t := range tools {
		b.WriteString(formatToolLine(t))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatToolLine(t domain.Tool) string {
	names := make([]string, 0, len(t.Parameters.Properties))
	for name := range t.Parameters.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]string, 0, len(names))
	for _, name := range names {
		params = append(params, name+":"+t.Parameters.Properties[name].Type)
	}
	return fmt.Sprintf("%s(%s): %s", t.Name, strings.Join(params, ", "), t.Description)
}

func (o *Orchestrator) toolNames() []string {
	tools := o.deps.Tools.Available()
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}

func (o *Orchestrator) maxIterationsMessage(failed []string) string {
	if len(failed) == 0 {
		return "I couldn't finish working that out in time. Could you rephrase or simplify the request?"
	}
	return fmt.Sprintf(
		"I wasn't able to complete that. The following tools kept failing: %s. Please try again later.",
		strings.Join(failed, ", "))
}

// formatObservation turns a tool result into the observation text the
// model sees. Formatted output wins; otherwise structured data is
// snippeted as JSON.
func formatObservation(res *domain.ToolResult) string {
	if !res.Success {
		if res.Error != "" {
			return "error: " + res.Error
		}
		return "error: tool failed"
	}
	if res.Formatted != "" {
		return res.Formatted
	}
	if len(res.Data) > 0 {
		data, err := json.Marshal(res.Data)
		if err == nil {
			return string(data)
		}
	}
	return "ok"
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// retryBackoff computes exponential backoff with 0-25% jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}
