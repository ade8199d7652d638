package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ToolSource identifies where a tool's implementation lives.
type ToolSource string

const (
	SourceLocal  ToolSource = "local"
	SourceRemote ToolSource = "remote"
)

// Tool defaults applied by the registry when the descriptor leaves them unset.
const (
	DefaultToolRetries = 2
	DefaultToolTimeout = 5 * time.Second
)

// ToolFunc executes a tool with already-decoded parameters.
type ToolFunc func(ctx context.Context, params map[string]any) (*ToolResult, error)

// Param describes one parameter of a tool.
type Param struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ParamSpec is a JSON-schema-shaped parameter specification.
type ParamSpec struct {
	Properties map[string]Param `json:"properties,omitempty"`
	Required   []string         `json:"required,omitempty"`
}

// JSONSchema renders the spec as a JSON Schema object document.
func (p ParamSpec) JSONSchema() json.RawMessage {
	doc := struct {
		Type       string           `json:"type"`
		Properties map[string]Param `json:"properties,omitempty"`
		Required   []string         `json:"required,omitempty"`
	}{Type: "object", Properties: p.Properties, Required: p.Required}
	data, err := json.Marshal(doc)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}

// Tool is a capability descriptor. Registration is an upsert by Name;
// the registry owns the descriptor after Register.
type Tool struct {
	Name            string
	Description     string
	Parameters      ParamSpec
	Execute         ToolFunc
	Source          ToolSource
	RequiresNetwork bool
	MaxRetries      int           // attempts before the tool is exhausted
	Timeout         time.Duration // per-call execution deadline
}

// ToolCall is a parsed request to invoke a tool, typically extracted from
// a model's ACTION line.
type ToolCall struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// ToolResult is the outcome of executing a tool. A nil Retryable means
// the failure counts toward backoff; an explicit false means it must not
// (e.g. the tool does not exist at all).
type ToolResult struct {
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Formatted string         `json:"formatted,omitempty"`
	Error     string         `json:"error,omitempty"`
	Retryable *bool          `json:"retryable,omitempty"`
}

// IsRetryable reports whether a failed result should count toward backoff.
func (r *ToolResult) IsRetryable() bool {
	return r.Retryable == nil || *r.Retryable
}

// ToolStatus is the observability view of one registered tool.
type ToolStatus struct {
	Name         string `json:"name"`
	Available    bool   `json:"available"`
	FailureCount int    `json:"failure_count"`
	LastError    string `json:"last_error,omitempty"`
}

// NonRetryable marks a result as not counting toward backoff.
func NonRetryable(r *ToolResult) *ToolResult {
	f := false
	r.Retryable = &f
	return r
}
