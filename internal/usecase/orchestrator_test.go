package usecase

import (
	"context"
	"strings"
	"testing"

	"pocketsage/internal/domain"
)

// scriptedLLM replays canned replies and records the last request.
type scriptedLLM struct {
	replies []string
	calls   int
	lastReq domain.ChatRequest
	err     error
}

func (s *scriptedLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls
	s.calls++
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return &domain.ChatResponse{
		Message: domain.ChatMessage{Role: domain.RoleAssistant, Content: s.replies[i]},
		Usage:   domain.Usage{TotalTokens: 7},
	}, nil
}

func (s *scriptedLLM) Name() string { return "scripted" }

// fakeRunner is a scriptable ToolRunner.
type fakeRunner struct {
	tools     []domain.Tool
	results   map[string]*domain.ToolResult
	exhausted []string
	calls     []domain.ToolCall
}

func (f *fakeRunner) Available() []domain.Tool { return f.tools }
func (f *fakeRunner) Exhausted() []string      { return f.exhausted }

func (f *fakeRunner) Invoke(_ context.Context, call domain.ToolCall) *domain.ToolResult {
	f.calls = append(f.calls, call)
	if res, ok := f.results[call.Name]; ok {
		return res
	}
	return domain.NonRetryable(&domain.ToolResult{Success: false, Error: "tool not found"})
}

func batteryTool() domain.Tool {
	return domain.Tool{
		Name:        "get_battery_status",
		Description: "Report the battery level.",
	}
}

func weatherTool() domain.Tool {
	return domain.Tool{
		Name:        "get_weather",
		Description: "Fetch the current weather.",
		Parameters: domain.ParamSpec{
			Properties: map[string]domain.Param{
				"city": {Type: "string"},
			},
		},
	}
}

func newTestOrchestrator(llm domain.LLMProvider, runner ToolRunner, maxIter int) *Orchestrator {
	return NewOrchestrator(OrchestratorDeps{
		LLM:           llm,
		Tools:         runner,
		History:       newTestHistory(10, 1800),
		Logger:        testLogger(),
		MaxIterations: maxIter,
	})
}

func TestRunAnswerTerminates(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"ANSWER: hi there"}}
	o := newTestOrchestrator(llm, &fakeRunner{}, 5)

	result, err := o.Run(context.Background(), "hello", RunOpts{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalAnswer != "hi there" {
		t.Errorf("FinalAnswer = %q", result.FinalAnswer)
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d", result.Iterations)
	}
	if result.TokensUsed != 7 {
		t.Errorf("TokensUsed = %d", result.TokensUsed)
	}
}

func TestRunActionThenAnswer(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		"THOUGHT: I should check.\nACTION: get_battery_status {}",
		"ANSWER: The battery is at 82%.",
	}}
	runner := &fakeRunner{
		tools: []domain.Tool{batteryTool()},
		results: map[string]*domain.ToolResult{
			"get_battery_status": {Success: true, Formatted: "Battery at 82% (charging)."},
		},
	}
	o := newTestOrchestrator(llm, runner, 5)

	var seenThought string
	var seenAction domain.ToolCall
	result, err := o.Run(context.Background(), "how's the battery?", RunOpts{
		OnThought: func(s string) { seenThought = s },
		OnAction:  func(c domain.ToolCall) { seenAction = c },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.FinalAnswer != "The battery is at 82%." {
		t.Errorf("FinalAnswer = %q", result.FinalAnswer)
	}
	if result.Action == nil || result.Action.Name != "get_battery_status" {
		t.Errorf("Action = %+v", result.Action)
	}
	if seenThought != "I should check." {
		t.Errorf("OnThought got %q", seenThought)
	}
	if seenAction.Name != "get_battery_status" {
		t.Errorf("OnAction got %+v", seenAction)
	}

	// The second request must carry the observation.
	last := llm.lastReq.Messages[len(llm.lastReq.Messages)-1]
	if !strings.HasPrefix(last.Content, "OBSERVATION: Battery at 82%") {
		t.Errorf("last turn = %q", last.Content)
	}

	// Scratch turns are not persisted: only the user message and the
	// final answer survive.
	if o.deps.History.Len() != 2 {
		t.Errorf("History.Len = %d, want 2", o.deps.History.Len())
	}
}

func TestRunMaxIterationsNamesFailedTools(t *testing.T) {
	llm := &scriptedLLM{replies: []string{`ACTION: get_weather {"city": "lisbon"}`}}
	runner := &fakeRunner{
		tools: []domain.Tool{weatherTool()},
		results: map[string]*domain.ToolResult{
			"get_weather": {Success: false, Error: "connection refused"},
		},
		exhausted: []string{"get_weather"},
	}
	o := newTestOrchestrator(llm, runner, 4)

	result, err := o.Run(context.Background(), "weather in lisbon?", RunOpts{})
	if err != nil {
		t.Fatalf("Run returned error instead of graceful result: %v", err)
	}
	if result.Iterations != 4 {
		t.Errorf("Iterations = %d, want 4", result.Iterations)
	}
	if !strings.Contains(result.FinalAnswer, "get_weather") {
		t.Errorf("FinalAnswer %q does not name the failing tool", result.FinalAnswer)
	}
	if len(result.FailedTools) != 1 || result.FailedTools[0] != "get_weather" {
		t.Errorf("FailedTools = %v", result.FailedTools)
	}
}

func TestRunFuzzyToolMatch(t *testing.T) {
	llm := &scriptedLLM{replies: []string{
		`ACTION: get_weathr {"city": "porto"}`,
		"ANSWER: Sunny.",
	}}
	runner := &fakeRunner{
		tools: []domain.Tool{weatherTool()},
		results: map[string]*domain.ToolResult{
			"get_weather": {Success: true, Formatted: "Sunny, 21C."},
		},
	}
	o := newTestOrchestrator(llm, runner, 5)

	if _, err := o.Run(context.Background(), "weather?", RunOpts{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(runner.calls) != 1 || runner.calls[0].Name != "get_weather" {
		t.Errorf("calls = %+v", runner.calls)
	}
}

func TestRunRawFallbackAnswer(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"Hello! How can I help you today?"}}
	o := newTestOrchestrator(llm, &fakeRunner{}, 5)

	result, err := o.Run(context.Background(), "hi", RunOpts{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalAnswer != "Hello! How can I help you today?" {
		t.Errorf("FinalAnswer = %q", result.FinalAnswer)
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d", result.Iterations)
	}
}

func TestRunObservationTruncated(t *testing.T) {
	long := strings.Repeat("x", 1200)
	llm := &scriptedLLM{replies: []string{
		"ACTION: get_battery_status {}",
		"ANSWER: done",
	}}
	runner := &fakeRunner{
		tools: []domain.Tool{batteryTool()},
		results: map[string]*domain.ToolResult{
			"get_battery_status": {Success: true, Formatted: long},
		},
	}
	o := newTestOrchestrator(llm, runner, 5)

	if _, err := o.Run(context.Background(), "battery?", RunOpts{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	last := llm.lastReq.Messages[len(llm.lastReq.Messages)-1]
	obs := strings.TrimPrefix(last.Content, "OBSERVATION: ")
	if len(obs) != 503 { // 500 chars plus ellipsis
		t.Errorf("observation length = %d", len(obs))
	}
	if !strings.HasSuffix(obs, "...") {
		t.Errorf("observation not marked truncated: %q", obs[len(obs)-10:])
	}
}

func TestRunSystemPromptListsTools(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"ANSWER: ok"}}
	runner := &fakeRunner{tools: []domain.Tool{weatherTool(), batteryTool()}}
	o := newTestOrchestrator(llm, runner, 5)

	if _, err := o.Run(context.Background(), "hi", RunOpts{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	prompt := llm.lastReq.SystemPrompt
	if !strings.Contains(prompt, "get_weather(city:string): Fetch the current weather.") {
		t.Errorf("prompt missing weather line:\n%s", prompt)
	}
	if !strings.Contains(prompt, "get_battery_status(): Report the battery level.") {
		t.Errorf("prompt missing battery line:\n%s", prompt)
	}
}

func TestConfiguredPersonaKeepsProtocol(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"ANSWER: ok"}}
	o := NewOrchestrator(OrchestratorDeps{
		LLM:          llm,
		Tools:        &fakeRunner{},
		History:      newTestHistory(10, 1800),
		Logger:       testLogger(),
		SystemPrompt: "You are a pirate assistant.",
	})

	if _, err := o.Run(context.Background(), "hi", RunOpts{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	prompt := llm.lastReq.SystemPrompt
	if !strings.Contains(prompt, "You are a pirate assistant.") {
		t.Errorf("prompt dropped the persona:\n%s", prompt)
	}
	// The persona augments the reply protocol, never replaces it.
	for _, directive := range []string{"THOUGHT:", "ACTION:", "ANSWER:", "OBSERVATION"} {
		if !strings.Contains(prompt, directive) {
			t.Errorf("prompt missing %s instructions:\n%s", directive, prompt)
		}
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &scriptedLLM{replies: []string{"ANSWER: hi"}}
	o := newTestOrchestrator(llm, &fakeRunner{}, 5)

	if _, err := o.Run(ctx, "hello", RunOpts{}); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestRunModelFailure(t *testing.T) {
	llm := &scriptedLLM{err: domain.ErrModelUnavailable}
	o := newTestOrchestrator(llm, &fakeRunner{}, 5)

	_, err := o.Run(context.Background(), "hello", RunOpts{})
	if err == nil {
		t.Fatal("expected error when no backend responds")
	}
	if domain.ErrorCodeOf(err) != domain.CodeModelUnavailable {
		t.Errorf("code = %s", domain.ErrorCodeOf(err))
	}
}

func TestRunSessionLockSerializes(t *testing.T) {
	llm := &scriptedLLM{replies: []string{"ANSWER: ok"}}
	o := NewOrchestrator(OrchestratorDeps{
		LLM:           llm,
		Tools:         &fakeRunner{},
		History:       newTestHistory(10, 1800),
		Logger:        testLogger(),
		SessionLocker: NewSessionLocker(),
	})

	result, err := o.Run(context.Background(), "hi", RunOpts{SessionID: "s1"})
	if err != nil || result.FinalAnswer != "ok" {
		t.Fatalf("Run = %+v, %v", result, err)
	}
	if o.deps.SessionLocker.ActiveCount() != 0 {
		t.Errorf("lock leaked: ActiveCount = %d", o.deps.SessionLocker.ActiveCount())
	}
}
