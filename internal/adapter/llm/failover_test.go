package llm

import (
	"context"
	"errors"
	"testing"

	"pocketsage/internal/domain"
)

// stubProvider returns a canned response or error.
type stubProvider struct {
	name  string
	reply string
	err   error
	calls int
}

func (s *stubProvider) Chat(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.ChatResponse{
		Message: domain.ChatMessage{Role: domain.RoleAssistant, Content: s.reply},
	}, nil
}

func (s *stubProvider) Name() string { return s.name }

func TestFailoverPrimaryHealthy(t *testing.T) {
	primary := &stubProvider{name: "a", reply: "from a"}
	fallback := &stubProvider{name: "b", reply: "from b"}
	f := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, testLogger())

	resp, err := f.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "from a" {
		t.Errorf("content = %q, want primary's", resp.Message.Content)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called %d times with healthy primary", fallback.calls)
	}
}

func TestFailoverUsesFallback(t *testing.T) {
	primary := &stubProvider{name: "a", err: errors.New("down")}
	fallback := &stubProvider{name: "b", reply: "from b"}
	f := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, testLogger())

	resp, err := f.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "from b" {
		t.Errorf("content = %q, want fallback's", resp.Message.Content)
	}
}

func TestFailoverAllFail(t *testing.T) {
	primary := &stubProvider{name: "a", err: errors.New("down")}
	fallback := &stubProvider{name: "b", err: errors.New("also down")}
	f := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, testLogger())

	_, err := f.Chat(context.Background(), domain.ChatRequest{})
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestFailoverName(t *testing.T) {
	f := NewFailoverProvider(&stubProvider{name: "a"}, nil, testLogger())
	if f.Name() != "a+failover" {
		t.Errorf("Name = %q", f.Name())
	}
}
