package llm

import (
	"testing"

	"pocketsage/internal/infra/config"
)

func TestNewProviderUnknownType(t *testing.T) {
	_, err := NewProvider(config.ProviderConfig{Name: "x", Type: "carrier-pigeon"}, testLogger())
	if err == nil {
		t.Fatal("NewProvider accepted an unknown type")
	}
}

func TestBuildStackRequiresProviders(t *testing.T) {
	_, err := BuildStack(config.LLMConfig{}, testLogger())
	if err == nil {
		t.Fatal("BuildStack succeeded with no providers")
	}
}

func TestBuildStackFailover(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "cloud",
		Providers: []config.ProviderConfig{
			{Name: "cloud", Type: "openai", Model: "gpt-4o-mini"},
			{Name: "local", Type: "ollama", Model: "llama3"},
		},
		Failover: config.FailoverConfig{Enabled: true, Fallbacks: []string{"local"}},
	}

	p, err := BuildStack(cfg, testLogger())
	if err != nil {
		t.Fatalf("BuildStack: %v", err)
	}
	if p.Name() != "cloud+failover" {
		t.Errorf("Name = %q, want cloud+failover", p.Name())
	}
}

func TestBuildStackPlain(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "local",
		Providers: []config.ProviderConfig{
			{Name: "local", Type: "ollama", Model: "llama3"},
		},
	}

	p, err := BuildStack(cfg, testLogger())
	if err != nil {
		t.Fatalf("BuildStack: %v", err)
	}
	if p.Name() != "local" {
		t.Errorf("Name = %q, want local", p.Name())
	}
}
