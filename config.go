package phx

import (
	"fmt"
	"net/url"
	"os"
)

// Config holds the configuration for a Socket.
type Config struct {
	// URL is the WebSocket URL of the Phoenix endpoint,
	// e.g. "ws://localhost:4000/socket/websocket".
	// Fallback: PHX_SOCKET_URL environment variable.
	URL string

	// APIKey is an optional authentication key appended to the connect URL.
	// Fallback: PHX_API_KEY environment variable.
	APIKey string

	// Params are opaque connect parameters appended to the connect URL
	// query string.
	Params map[string]any
}

// resolveConfig fills empty fields from environment variables and validates
// required fields.
func resolveConfig(cfg Config) (Config, error) {
	if cfg.URL == "" {
		cfg.URL = os.Getenv("PHX_SOCKET_URL")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("PHX_API_KEY")
	}

	if cfg.URL == "" {
		return cfg, fmt.Errorf("URL is required (set in Config or PHX_SOCKET_URL env)")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return cfg, fmt.Errorf("invalid URL %q: %w", cfg.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return cfg, fmt.Errorf("URL scheme must be ws or wss, got %q", u.Scheme)
	}

	return cfg, nil
}

// endpoint builds the connect URL with the api key, protocol version, and
// connect params in the query string.
func (c Config) endpoint(vsn string) string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return c.URL // validated at construction; keep the raw URL on a re-parse failure
	}
	q := u.Query()
	if c.APIKey != "" {
		q.Set("api_key", c.APIKey)
	}
	q.Set("vsn", vsn)
	for k, v := range c.Params {
		q.Set(k, fmt.Sprint(v))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
