package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Context   ContextConfig   `yaml:"context"`
	LLM       LLMConfig       `yaml:"llm"`
	Tools     ToolsConfig     `yaml:"tools"`
	Reminders RemindersConfig `yaml:"reminders"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// AgentConfig holds reasoning-loop behavior settings.
type AgentConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"`
	// SystemPrompt is the assistant persona. The reply protocol is
	// appended by the loop and cannot be configured away.
	SystemPrompt string `yaml:"system_prompt"`
	// KeepAnswerWithAction disables the default policy of discarding a
	// final answer that appears alongside an action in the same model turn.
	KeepAnswerWithAction bool `yaml:"keep_answer_with_action"`
	// ObservationLimit caps the characters of a tool observation fed
	// back into the working context.
	ObservationLimit int `yaml:"observation_limit"`
	// IntentThreshold is the minimum classifier confidence for direct
	// dispatch; below it the utterance goes to the reasoning loop.
	IntentThreshold float64 `yaml:"intent_threshold"`
}

// ContextConfig bounds the conversation history fed to the model.
type ContextConfig struct {
	MaxMessages int    `yaml:"max_messages"` // hard cap on retained turns
	TokenBudget int    `yaml:"token_budget"` // history + system prompt budget
	ModelWindow int    `yaml:"model_window"` // informational, for validation
	Encoding    string `yaml:"encoding"`     // tiktoken encoding name
	DataDir     string `yaml:"data_dir"`     // session persistence root
}

// LLMConfig holds inference backend settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// FailoverConfig holds backend failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "openai" or "ollama"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// ToolsConfig holds tool system settings.
type ToolsConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	DefaultRetries int           `yaml:"default_retries"`

	// Notes tool.
	NotesEnabled bool   `yaml:"notes_enabled"`
	NotesDataDir string `yaml:"notes_data_dir"`

	// Remote tool rate limiting (calls per minute per tool).
	RemoteRateLimit int `yaml:"remote_rate_limit"`

	// MCP bridge to the device capability server.
	MCPEnabled bool        `yaml:"mcp_enabled"`
	MCPServers []MCPServer `yaml:"mcp_servers,omitempty"`
}

// MCPServer configures an MCP server connection.
type MCPServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
}

// RemindersConfig holds the reminder/timer scheduler settings.
type RemindersConfig struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// defaultDataDir returns the persistent data directory under
// $HOME/.pocketsage/data, falling back to "./data".
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".pocketsage", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Agent: AgentConfig{
			MaxIterations:    5,
			Timeout:          120 * time.Second,
			SystemPrompt:     "You are pocketsage, a helpful on-device assistant.",
			ObservationLimit: 500,
			IntentThreshold:  0.55,
		},
		Context: ContextConfig{
			MaxMessages: 10,
			TokenBudget: 1800,
			ModelWindow: 2048,
			Encoding:    "cl100k_base",
			DataDir:     filepath.Join(dataDir, "sessions"),
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
		},
		Tools: ToolsConfig{
			DefaultTimeout:  5 * time.Second,
			DefaultRetries:  2,
			NotesEnabled:    false,
			NotesDataDir:    filepath.Join(dataDir, "notes"),
			RemoteRateLimit: 60,
		},
		Reminders: RemindersConfig{
			Enabled: false,
			DataDir: filepath.Join(dataDir, "reminders"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("POCKETSAGE_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps POCKETSAGE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POCKETSAGE_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("POCKETSAGE_LLM_FAILOVER_FALLBACKS"); v != "" {
		cfg.LLM.Failover.Enabled = true
		cfg.LLM.Failover.Fallbacks = splitAndTrim(v)
	}
	if v := os.Getenv("POCKETSAGE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("POCKETSAGE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("POCKETSAGE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("POCKETSAGE_AGENT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv("POCKETSAGE_AGENT_INTENT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.Agent.IntentThreshold = f
		}
	}
	if v := os.Getenv("POCKETSAGE_CONTEXT_MAX_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Context.MaxMessages = n
		}
	}
	if v := os.Getenv("POCKETSAGE_CONTEXT_TOKEN_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Context.TokenBudget = n
		}
	}
	if v := os.Getenv("POCKETSAGE_CONTEXT_DATA_DIR"); v != "" {
		cfg.Context.DataDir = v
	}
	if v := os.Getenv("POCKETSAGE_TOOLS_DEFAULT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Tools.DefaultTimeout = d
		}
	}
	if v := os.Getenv("POCKETSAGE_TOOLS_NOTES_ENABLED"); v == "true" {
		cfg.Tools.NotesEnabled = true
	}
	if v := os.Getenv("POCKETSAGE_TOOLS_NOTES_DATA_DIR"); v != "" {
		cfg.Tools.NotesDataDir = v
	}
	if v := os.Getenv("POCKETSAGE_TOOLS_MCP_ENABLED"); v == "true" {
		cfg.Tools.MCPEnabled = true
	}
	if v := os.Getenv("POCKETSAGE_REMINDERS_ENABLED"); v == "true" {
		cfg.Reminders.Enabled = true
	}
	if v := os.Getenv("POCKETSAGE_REMINDERS_DATA_DIR"); v != "" {
		cfg.Reminders.DataDir = v
	}

	// Per-provider API key overrides: POCKETSAGE_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envKey := fmt.Sprintf("POCKETSAGE_LLM_PROVIDER_%s_API_KEY",
			strings.ToUpper(cfg.LLM.Providers[i].Name))
		if v := os.Getenv(envKey); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}
}

// Validate checks cross-field constraints after load and overrides.
func Validate(cfg *Config) error {
	if cfg.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.ObservationLimit <= 0 {
		return fmt.Errorf("agent.observation_limit must be positive, got %d", cfg.Agent.ObservationLimit)
	}
	if cfg.Agent.IntentThreshold < 0 || cfg.Agent.IntentThreshold > 1 {
		return fmt.Errorf("agent.intent_threshold must be in [0,1], got %v", cfg.Agent.IntentThreshold)
	}
	if cfg.Context.MaxMessages <= 0 {
		return fmt.Errorf("context.max_messages must be positive, got %d", cfg.Context.MaxMessages)
	}
	if cfg.Context.TokenBudget <= 0 {
		return fmt.Errorf("context.token_budget must be positive, got %d", cfg.Context.TokenBudget)
	}
	if cfg.Context.ModelWindow > 0 && cfg.Context.TokenBudget > cfg.Context.ModelWindow {
		return fmt.Errorf("context.token_budget %d exceeds model_window %d",
			cfg.Context.TokenBudget, cfg.Context.ModelWindow)
	}
	if cfg.Tools.DefaultRetries < 0 {
		return fmt.Errorf("tools.default_retries must not be negative, got %d", cfg.Tools.DefaultRetries)
	}
	if cfg.Tools.RemoteRateLimit < 0 {
		return fmt.Errorf("tools.remote_rate_limit must not be negative, got %d", cfg.Tools.RemoteRateLimit)
	}

	names := make(map[string]bool, len(cfg.LLM.Providers))
	for _, p := range cfg.LLM.Providers {
		if p.Name == "" {
			return fmt.Errorf("llm.providers entry missing name")
		}
		if names[p.Name] {
			return fmt.Errorf("llm.providers has duplicate name %q", p.Name)
		}
		names[p.Name] = true
		switch p.Type {
		case "openai", "ollama":
		default:
			return fmt.Errorf("llm.providers[%s].type must be openai or ollama, got %q", p.Name, p.Type)
		}
	}
	if len(cfg.LLM.Providers) > 0 && !names[cfg.LLM.DefaultProvider] {
		return fmt.Errorf("llm.default_provider %q not found in providers", cfg.LLM.DefaultProvider)
	}
	for _, fb := range cfg.LLM.Failover.Fallbacks {
		if !names[fb] {
			return fmt.Errorf("llm.failover fallback %q not found in providers", fb)
		}
	}

	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logger.level must be debug, info, warn, or error, got %q", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logger.format must be text or json, got %q", cfg.Logger.Format)
	}

	for _, s := range cfg.Tools.MCPServers {
		switch s.Transport {
		case "stdio":
			if s.Command == "" {
				return fmt.Errorf("mcp server %q uses stdio but has no command", s.Name)
			}
		case "http":
			if s.URL == "" {
				return fmt.Errorf("mcp server %q uses http but has no url", s.Name)
			}
		default:
			return fmt.Errorf("mcp server %q has unknown transport %q", s.Name, s.Transport)
		}
	}

	return nil
}

// splitAndTrim splits a comma separated list, trimming whitespace and
// dropping empty entries.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// validatePermissions rejects config files readable or writable by group/other
// beyond 0644.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
