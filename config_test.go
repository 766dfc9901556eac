package phx

import (
	"strings"
	"testing"
)

func TestResolveConfigRequiresURL(t *testing.T) {
	t.Setenv("PHX_SOCKET_URL", "")
	_, err := resolveConfig(Config{})
	if err == nil {
		t.Fatal("expected error for missing URL")
	}
	if !strings.Contains(err.Error(), "PHX_SOCKET_URL") {
		t.Errorf("error should mention the env fallback, got: %v", err)
	}
}

func TestResolveConfigEnvFallback(t *testing.T) {
	t.Setenv("PHX_SOCKET_URL", "wss://env.example/socket/websocket")
	t.Setenv("PHX_API_KEY", "env-key")

	cfg, err := resolveConfig(Config{})
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.URL != "wss://env.example/socket/websocket" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.APIKey != "env-key" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
}

func TestResolveConfigExplicitWinsOverEnv(t *testing.T) {
	t.Setenv("PHX_SOCKET_URL", "ws://env.example/socket")

	cfg, err := resolveConfig(Config{URL: "ws://explicit.example/socket"})
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.URL != "ws://explicit.example/socket" {
		t.Errorf("URL = %q, explicit value should win", cfg.URL)
	}
}

func TestResolveConfigRejectsBadScheme(t *testing.T) {
	for _, badURL := range []string{"http://example.com/socket", "ftp://example.com", "not a url at all ://"} {
		if _, err := resolveConfig(Config{URL: badURL}); err == nil {
			t.Errorf("URL %q should be rejected", badURL)
		}
	}
}

func TestEndpointQuery(t *testing.T) {
	cfg := Config{
		URL:    "ws://localhost:4000/socket/websocket",
		APIKey: "secret",
		Params: map[string]any{"user_id": 42, "token": "abc"},
	}

	endpoint := cfg.endpoint("2.0.0")
	for _, want := range []string{"vsn=2.0.0", "api_key=secret", "user_id=42", "token=abc"} {
		if !strings.Contains(endpoint, want) {
			t.Errorf("endpoint %q missing %q", endpoint, want)
		}
	}
}

func TestEndpointPreservesExistingQuery(t *testing.T) {
	cfg := Config{URL: "ws://localhost:4000/socket/websocket?shard=7"}
	endpoint := cfg.endpoint("1.0.0")
	if !strings.Contains(endpoint, "shard=7") || !strings.Contains(endpoint, "vsn=1.0.0") {
		t.Errorf("endpoint = %q", endpoint)
	}
}
