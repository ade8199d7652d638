// Package integration wires real components together (no mocks of the
// core) and checks whole-path behavior: classifier to dispatcher to
// tools, and the reasoning loop against a scripted model.
package integration

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"pocketsage/internal/domain"
)

// QuietLogger returns a logger that discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewTestContext creates a context with a timeout tied to the test lifetime.
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// ScriptedProvider replays canned replies in order. Calls past the end
// of the script repeat the final reply.
type ScriptedProvider struct {
	Replies []string
	Calls   int
	LastReq domain.ChatRequest
}

func (p *ScriptedProvider) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p.LastReq = req
	i := p.Calls
	if i >= len(p.Replies) {
		i = len(p.Replies) - 1
	}
	p.Calls++
	return &domain.ChatResponse{
		Message: domain.ChatMessage{Role: domain.RoleAssistant, Content: p.Replies[i]},
		Usage:   domain.Usage{TotalTokens: 9},
	}, nil
}

func (p *ScriptedProvider) Name() string { return "scripted" }
