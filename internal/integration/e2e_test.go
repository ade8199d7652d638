package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pocketsage/internal/adapter/tool"
	"pocketsage/internal/domain"
	"pocketsage/internal/nlu"
	"pocketsage/internal/usecase"
)

func TestIntentFastPathEndToEnd(t *testing.T) {
	log := QuietLogger()
	ctx := NewTestContext(t, 5*time.Second)

	var launched []string
	var vibrated []int
	caps := tool.Capabilities{
		Toast: func(_ context.Context, _ string) error { return nil },
		LaunchApp: func(_ context.Context, app string) error {
			launched = append(launched, app)
			return nil
		},
		Vibrate: func(_ context.Context, ms int) error {
			vibrated = append(vibrated, ms)
			return nil
		},
	}

	registry := tool.NewRegistry(log)
	for _, dt := range tool.DeviceTools(caps, log) {
		require.NoError(t, registry.Register(dt))
	}

	scheduler := usecase.NewReminderScheduler(func(usecase.Reminder) {}, log)
	scheduler.Start()
	defer scheduler.Stop()

	d := usecase.NewDispatcher(log)
	d.RegisterHandler(&usecase.ReminderHandler{Scheduler: scheduler})
	d.RegisterHandler(&usecase.AppLaunchHandler{Tools: registry})
	d.RegisterHandler(&usecase.DeviceSkillHandler{Tools: registry})

	c := nlu.NewClassifier()

	intent := c.Parse("remind me to call mom tomorrow at 9am")
	require.True(t, intent.Actionable())
	res := d.Execute(ctx, intent)
	require.True(t, res.Success, "dispatch failed: %s", res.Message)
	assert.Contains(t, res.Message, "call mom")
	assert.Len(t, scheduler.Upcoming(), 1)

	res = d.Execute(ctx, c.Parse("open the spotify app"))
	require.True(t, res.Success, "dispatch failed: %s", res.Message)
	assert.Equal(t, []string{"spotify"}, launched)

	res = d.Execute(ctx, c.Parse("vibrate for 250 ms"))
	require.True(t, res.Success, "dispatch failed: %s", res.Message)
	assert.Equal(t, []int{250}, vibrated)
}

func TestReasoningLoopEndToEnd(t *testing.T) {
	log := QuietLogger()
	ctx := NewTestContext(t, 10*time.Second)

	registry := tool.NewRegistry(log)
	caps := tool.Capabilities{
		Battery: func(_ context.Context) (tool.BatteryStatus, error) {
			return tool.BatteryStatus{Level: 82}, nil
		},
	}
	for _, dt := range tool.DeviceTools(caps, log) {
		require.NoError(t, registry.Register(dt))
	}

	provider := &ScriptedProvider{Replies: []string{
		"THOUGHT: The battery tool can answer this.\nACTION: get_battery_status {}",
		"ANSWER: Your battery is at 82%.",
	}}

	history := usecase.NewHistory(usecase.HistoryConfig{}, nil, log)
	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		LLM:             provider,
		Tools:           registry,
		History:         history,
		Logger:          log,
		ErrorClassifier: usecase.NewErrorClassifier(),
	})

	result, err := orch.Run(ctx, "how much battery do I have left?", usecase.RunOpts{})
	require.NoError(t, err)
	assert.Equal(t, "Your battery is at 82%.", result.FinalAnswer)
	assert.Equal(t, 2, result.Iterations)

	// Only the user turn and the final answer survive in history.
	assert.Equal(t, 2, history.Len())

	// The second model call saw the tool observation.
	msgs := provider.LastReq.Messages
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1].Content, "OBSERVATION:")
}

func TestPersistentlyFailingToolIsNamedAtIterationCap(t *testing.T) {
	log := QuietLogger()
	ctx := NewTestContext(t, 10*time.Second)

	registry := tool.NewRegistry(log)
	require.NoError(t, registry.Register(domain.Tool{
		Name:        "always_fails",
		Description: "Never works.",
		Execute: func(_ context.Context, _ map[string]any) (*domain.ToolResult, error) {
			return &domain.ToolResult{Error: "boom"}, nil
		},
	}))

	// The model never gives up on the broken tool.
	provider := &ScriptedProvider{Replies: []string{
		"THOUGHT: Trying the tool again.\nACTION: always_fails {}",
	}}

	history := usecase.NewHistory(usecase.HistoryConfig{}, nil, log)
	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		LLM:             provider,
		Tools:           registry,
		History:         history,
		Logger:          log,
		ErrorClassifier: usecase.NewErrorClassifier(),
		MaxIterations:   4,
	})

	result, err := orch.Run(ctx, "do the thing", usecase.RunOpts{})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Iterations)
	assert.Equal(t, []string{"always_fails"}, result.FailedTools)
	assert.Contains(t, result.FinalAnswer, "always_fails")
}

func TestSearchIntentPassesThroughToModel(t *testing.T) {
	log := QuietLogger()
	ctx := NewTestContext(t, 5*time.Second)

	d := usecase.NewDispatcher(log)
	c := nlu.NewClassifier()

	res := d.Execute(ctx, c.Parse("what is the capital of peru?"))
	require.True(t, res.Success)
	assert.True(t, res.PassToAI())
}

func TestOfflineKeepsRemoteToolsOutOfPrompt(t *testing.T) {
	log := QuietLogger()
	ctx := NewTestContext(t, 5*time.Second)

	registry := tool.NewRegistry(log)
	require.NoError(t, registry.Register(domain.Tool{
		Name:            "web_search",
		Description:     "Search the web.",
		Source:          domain.SourceRemote,
		RequiresNetwork: true,
		Execute: func(_ context.Context, _ map[string]any) (*domain.ToolResult, error) {
			return &domain.ToolResult{Success: true, Formatted: "results"}, nil
		},
	}))
	registry.SetOnline(false)

	provider := &ScriptedProvider{Replies: []string{"ANSWER: Hello."}}
	history := usecase.NewHistory(usecase.HistoryConfig{}, nil, log)
	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		LLM:             provider,
		Tools:           registry,
		History:         history,
		Logger:          log,
		ErrorClassifier: usecase.NewErrorClassifier(),
	})

	_, err := orch.Run(ctx, "hi", usecase.RunOpts{})
	require.NoError(t, err)
	assert.NotContains(t, provider.LastReq.SystemPrompt, "web_search")
}
