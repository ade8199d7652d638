package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"pocketsage/internal/domain"
	"pocketsage/internal/infra/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) (*OpenAIProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewOpenAIProvider(config.ProviderConfig{
		Name:    "test",
		Type:    "openai",
		BaseURL: srv.URL,
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
	}, testLogger())
	return p, srv
}

func TestOpenAIChat(t *testing.T) {
	var gotReq openaiRequest
	var gotAuth string
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(openaiResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o-mini",
			Choices: []openaiChoice{{
				Message: openaiMessage{Role: "assistant", Content: "THOUGHT: hi\nANSWER: hello"},
			}},
			Usage:   openaiUsage{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20},
			Created: 1700000000,
		})
	})

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		SystemPrompt: "be brief",
		Messages: []domain.ChatMessage{
			{Role: domain.RoleUser, Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("request model = %q, want configured default", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[0].Content != "be brief" {
		t.Errorf("system prompt not first message: %+v", gotReq.Messages)
	}

	if resp.Message.Content != "THOUGHT: hi\nANSWER: hello" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 20 {
		t.Errorf("TotalTokens = %d, want 20", resp.Usage.TotalTokens)
	}
}

func TestOpenAIChatErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{http.StatusBadGateway, domain.ErrModelUnavailable},
	}
	for _, c := range cases {
		p, _ := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(c.status)
			w.Write([]byte(`{"error":"nope"}`))
		})
		_, err := p.Chat(context.Background(), domain.ChatRequest{})
		if !errors.Is(err, c.want) {
			t.Errorf("status %d: err = %v, want %v", c.status, err, c.want)
		}
	}
}

func TestOpenAIChatStream(t *testing.T) {
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"AN"}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"SWER: hi"}}]}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	})

	ch, err := p.ChatStream(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	var text string
	var done bool
	for delta := range ch {
		text += delta.Content
		if delta.Done {
			done = true
		}
	}
	if text != "ANSWER: hi" {
		t.Errorf("streamed text = %q", text)
	}
	if !done {
		t.Error("stream never signalled Done")
	}
}
