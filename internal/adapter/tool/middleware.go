package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"pocketsage/internal/domain"
)

// Handler adapts a typed handler function into a domain.ToolFunc.
// Params are decoded into P through JSON, so P's struct tags define the
// accepted parameter names. The handler may return:
//   - (*domain.ToolResult, nil) for custom formatting
//   - (string, nil) for a plain-text success
//   - (any other value, nil) which is JSON-formatted into a success
//   - (nil, error) which becomes a failure result
func Handler[P any](name string, logger *slog.Logger, fn func(ctx context.Context, params P) (any, error)) domain.ToolFunc {
	return func(ctx context.Context, raw map[string]any) (*domain.ToolResult, error) {
		var p P
		if err := decodeParams(raw, &p); err != nil {
			return domain.NonRetryable(&domain.ToolResult{
				Error: fmt.Sprintf("invalid params: %v", err),
			}), nil
		}

		out, err := fn(ctx, p)
		if err != nil {
			logger.Warn(name+" failed", "error", err)
			return nil, err
		}
		return formatResult(out)
	}
}

// decodeParams maps loosely-typed params onto a typed struct.
func decodeParams(raw map[string]any, dst any) error {
	if raw == nil {
		raw = map[string]any{}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// formatResult converts a handler's return value into a ToolResult.
func formatResult(out any) (*domain.ToolResult, error) {
	switch v := out.(type) {
	case *domain.ToolResult:
		return v, nil
	case string:
		return &domain.ToolResult{Success: true, Formatted: v}, nil
	case nil:
		return &domain.ToolResult{Success: true}, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return &domain.ToolResult{
				Error: fmt.Sprintf("failed to format response: %v", err),
			}, nil
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			return &domain.ToolResult{Success: true, Formatted: string(data)}, nil
		}
		return &domain.ToolResult{Success: true, Data: payload}, nil
	}
}

// ErrResult creates a failure ToolResult for validation errors inside
// handlers that should reach the model without being logged as warnings.
func ErrResult(format string, args ...any) (*domain.ToolResult, error) {
	return &domain.ToolResult{Error: fmt.Sprintf(format, args...)}, nil
}

// TextResult creates a plain text success ToolResult.
func TextResult(format string, args ...any) *domain.ToolResult {
	return &domain.ToolResult{Success: true, Formatted: fmt.Sprintf(format, args...)}
}
