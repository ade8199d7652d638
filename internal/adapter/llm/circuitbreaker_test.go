package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"pocketsage/internal/domain"
	"pocketsage/internal/infra/config"
)

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &stubProvider{name: "flaky", err: errors.New("boom")}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{
		MaxFailures: 3,
		Timeout:     time.Minute,
	}, testLogger())

	for i := 0; i < 3; i++ {
		if _, err := cb.Chat(context.Background(), domain.ChatRequest{}); err == nil {
			t.Fatalf("call %d unexpectedly succeeded", i+1)
		}
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	before := inner.calls
	_, err := cb.Chat(context.Background(), domain.ChatRequest{})
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("open-circuit err = %v, want ErrModelUnavailable", err)
	}
	if inner.calls != before {
		t.Error("open circuit still reached the provider")
	}
}

func TestCircuitBreakerPassesSuccess(t *testing.T) {
	inner := &stubProvider{name: "ok", reply: "hi"}
	cb := NewCircuitBreakerProvider(inner, config.CircuitBreakerConfig{}, testLogger())

	resp, err := cb.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "hi" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if cb.Counts().TotalSuccesses != 1 {
		t.Errorf("TotalSuccesses = %d, want 1", cb.Counts().TotalSuccesses)
	}
}

func TestCircuitBreakerStreamUnsupported(t *testing.T) {
	cb := NewCircuitBreakerProvider(&stubProvider{name: "plain"}, config.CircuitBreakerConfig{}, testLogger())
	if _, err := cb.ChatStream(context.Background(), domain.ChatRequest{}); err == nil {
		t.Fatal("ChatStream succeeded on a non-streaming provider")
	}
}
