package tool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"pocketsage/internal/domain"
	"pocketsage/internal/infra/tracer"
)

// maxBackoff caps the exponential backoff window per tool.
const maxBackoff = 30 * time.Second

// failureState tracks outstanding failures for one tool. It exists only
// while the tool has unresolved failures and is deleted on success.
type failureState struct {
	attempts     int
	lastError    string
	backoffUntil time.Time
}

// Registry holds tool descriptors and their transient failure state.
// Registration is an upsert by name. The registry applies defaults for
// unset retry and timeout fields, validates parameters against each
// tool's schema before execution, and enforces per-tool exponential
// backoff on retryable failures.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]domain.Tool
	failures   map[string]*failureState
	validators map[string]*schemaValidator
	limiters   *limiterSet
	online     bool
	logger     *slog.Logger
	now        func() time.Time

	defaultRetries int
	defaultTimeout time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock injects a time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithRemoteRateLimit limits remote tool invocations to n calls per minute
// per tool. Zero disables limiting.
func WithRemoteRateLimit(n int) RegistryOption {
	return func(r *Registry) { r.limiters = newLimiterSet(n) }
}

// WithToolDefaults overrides the retry limit and timeout applied to
// tools registered without their own. Non-positive values keep the
// built-in defaults.
func WithToolDefaults(retries int, timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		if retries > 0 {
			r.defaultRetries = retries
		}
		if timeout > 0 {
			r.defaultTimeout = timeout
		}
	}
}

// NewRegistry creates an empty tool registry. The registry starts in the
// online state.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:      make(map[string]domain.Tool),
		failures:   make(map[string]*failureState),
		validators: make(map[string]*schemaValidator),
		online:     true,
		logger:     logger,
		now:        time.Now,

		defaultRetries: domain.DefaultToolRetries,
		defaultTimeout: domain.DefaultToolTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a tool by name, applying defaults for unset
// optional fields. Replacing a tool clears its failure state.
func (r *Registry) Register(t domain.Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if t.Execute == nil {
		return fmt.Errorf("tool %q has no execute function", t.Name)
	}
	if t.MaxRetries <= 0 {
		t.MaxRetries = r.defaultRetries
	}
	if t.Timeout <= 0 {
		t.Timeout = r.defaultTimeout
	}
	if t.Source == "" {
		t.Source = domain.SourceLocal
	}

	validator, err := compileParamSchema(t.Parameters)
	if err != nil {
		r.logger.Warn("schema validation disabled for tool",
			"tool", t.Name, "error", err)
		validator = nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	r.validators[t.Name] = validator
	delete(r.failures, t.Name)
	return nil
}

// Unregister removes a tool and its failure state. Removing an unknown
// name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.validators, name)
	delete(r.failures, name)
}

// Get retrieves a tool descriptor by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return domain.Tool{}, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// List returns registered tools sorted by name, excluding any whose
// RequiresNetwork is set while the registry is offline.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		if t.RequiresNetwork && !r.online {
			continue
		}
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Available returns the tools eligible for the next model prompt: the
// List set minus exhausted tools, so the model is not invited to retry
// a broken tool. Exhausted tools remain invocable via Invoke.
func (r *Registry) Available() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		if t.RequiresNetwork && !r.online {
			continue
		}
		if f, ok := r.failures[t.Name]; ok && f.attempts >= t.MaxRetries {
			continue
		}
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Status returns the per-tool observability view, sorted by name. A tool
// is reported unavailable while exhausted or inside its backoff window.
func (r *Registry) Status() []domain.ToolStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	statuses := make([]domain.ToolStatus, 0, len(r.tools))
	for name, t := range r.tools {
		s := domain.ToolStatus{Name: name, Available: true}
		if f, ok := r.failures[name]; ok {
			s.FailureCount = f.attempts
			s.LastError = f.lastError
			if f.attempts >= t.MaxRetries || now.Before(f.backoffUntil) {
				s.Available = false
			}
		}
		if t.RequiresNetwork && !r.online {
			s.Available = false
		}
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// SetOnline updates the network availability flag consulted for tools
// that declare RequiresNetwork.
func (r *Registry) SetOnline(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = online
}

// ResetFailures clears failure state. With no arguments it clears every
// tool, otherwise only the named ones. Used when connectivity returns.
func (r *Registry) ResetFailures(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(names) == 0 {
		r.failures = make(map[string]*failureState)
		return
	}
	for _, n := range names {
		delete(r.failures, n)
	}
}

// Exhausted returns the names of tools whose failure count has reached
// their retry limit, sorted.
func (r *Registry) Exhausted() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, t := range r.tools {
		if f, ok := r.failures[name]; ok && f.attempts >= t.MaxRetries {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Invoke executes a registered tool by name with backoff, network,
// rate limit, and schema checks applied. Failures are returned as
// result values; the error return is reserved for a nil context or
// similar caller bugs, so callers may ignore it after a nil check.
func (r *Registry) Invoke(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	r.mu.RLock()
	t, ok := r.tools[call.Name]
	validator := r.validators[call.Name]
	online := r.online
	r.mu.RUnlock()

	if !ok {
		return domain.NonRetryable(&domain.ToolResult{
			Error: fmt.Sprintf("unknown tool %q", call.Name),
		})
	}

	if res := r.rejectBackingOff(call.Name); res != nil {
		return res
	}

	if t.RequiresNetwork && !online {
		return domain.NonRetryable(&domain.ToolResult{
			Error: fmt.Sprintf("tool %q requires network and the system is offline", call.Name),
		})
	}

	if t.Source == domain.SourceRemote && r.limiters != nil && !r.limiters.allow(call.Name) {
		return domain.NonRetryable(&domain.ToolResult{
			Error: fmt.Sprintf("tool %q rate limit exceeded", call.Name),
		})
	}

	if validator != nil {
		if err := validator.validate(call.Params); err != nil {
			return domain.NonRetryable(&domain.ToolResult{
				Error: fmt.Sprintf("invalid parameters for %q: %v", call.Name, err),
			})
		}
	}

	result := r.execute(ctx, t, call.Params)

	r.record(call.Name, result)
	return result
}

// rejectBackingOff rejects a call made inside a tool's backoff window
// with a synthetic non-retryable failure. The rejected call still
// counts as an attempt: a tool that keeps getting picked while backing
// off reaches exhaustion and drops out of the prompt list instead of
// sitting under its retry limit for the whole window.
func (r *Registry) rejectBackingOff(name string) *domain.ToolResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.failures[name]
	if !ok {
		return nil
	}
	now := r.now()
	if !now.Before(f.backoffUntil) {
		return nil
	}

	f.attempts++
	return domain.NonRetryable(&domain.ToolResult{
		Error: fmt.Sprintf("tool %q is temporarily unavailable (retry after %s)",
			name, f.backoffUntil.Sub(now).Round(time.Millisecond)),
	})
}

// execute runs the tool under its deadline, converting timeouts,
// handler errors, and panics into failure results.
func (r *Registry) execute(ctx context.Context, t domain.Tool, params map[string]any) (result *domain.ToolResult) {
	ctx, span := tracer.StartSpan(ctx, "tool.execute",
		trace.WithAttributes(
			tracer.StringAttr("tool.name", t.Name),
			tracer.StringAttr("tool.source", string(t.Source)),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked",
				"tool", t.Name, "panic", rec, "stack", string(debug.Stack()))
			result = &domain.ToolResult{
				Error: fmt.Sprintf("tool %q crashed: %v", t.Name, rec),
			}
			tracer.RecordError(span, fmt.Errorf("panic: %v", rec))
		}
	}()

	res, err := t.Execute(ctx, params)
	switch {
	// The tool's own result wins even when the deadline expired while
	// it was finishing; only an empty-handed return maps to a timeout.
	case err == nil && res != nil:
		result = res
		if res.Success {
			tracer.SetOK(span)
		}
	case ctx.Err() != nil:
		result = &domain.ToolResult{
			Error: fmt.Sprintf("tool %q timed out after %s", t.Name, t.Timeout),
		}
		tracer.RecordError(span, ctx.Err())
	case err != nil:
		result = &domain.ToolResult{Error: err.Error()}
		if classifyToolError(err) {
			retryable := true
			result.Retryable = &retryable
			result.Error += " (transient, may succeed on retry)"
		}
		tracer.RecordError(span, err)
	default:
		result = &domain.ToolResult{Error: fmt.Sprintf("tool %q returned no result", t.Name)}
		tracer.RecordError(span, fmt.Errorf("nil result"))
	}
	return result
}

// record updates failure state from a result. A success clears the
// tool's failure state entirely. A retryable failure increments the
// attempt count and extends the backoff window exponentially.
func (r *Registry) record(name string, result *domain.ToolResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tools[name]
	if !ok {
		return
	}

	if result.Success {
		delete(r.failures, name)
		return
	}
	if !result.IsRetryable() {
		return
	}

	f := r.failures[name]
	if f == nil {
		f = &failureState{}
		r.failures[name] = f
	}
	f.attempts++
	f.lastError = result.Error
	f.backoffUntil = r.now().Add(backoffDelay(f.attempts))

	r.logger.Warn("tool failure recorded",
		"tool", name,
		"attempts", f.attempts,
		"backoff_until", f.backoffUntil,
		"exhausted", f.attempts >= t.MaxRetries,
		"error", result.Error)
}

// backoffDelay is 2^attempts seconds, capped at maxBackoff.
func backoffDelay(attempts int) time.Duration {
	if attempts > 5 {
		return maxBackoff
	}
	d := time.Second << attempts
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
