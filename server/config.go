// ABOUTME: Server configuration loaded from SHROOMBOARD_* environment variables.
// ABOUTME: Enforces security constraint: remote access requires auth token.
package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
)

// ConfigError represents configuration validation errors.
var (
	ErrRemoteWithoutToken = errors.New(
		"SHROOMBOARD_ALLOW_REMOTE is true but SHROOMBOARD_AUTH_TOKEN is not set; refusing to start without authentication",
	)
	ErrNonLoopbackBind = errors.New(
		"SHROOMBOARD_BIND is a non-loopback address but SHROOMBOARD_ALLOW_REMOTE is not true; set SHROOMBOARD_ALLOW_REMOTE=true and SHROOMBOARD_AUTH_TOKEN to allow remote access",
	)
)

// Config holds server configuration loaded from environment variables.
type Config struct {
	Home          string // Data directory (SHROOMBOARD_HOME; empty means XDG default)
	Bind          string // Socket address (SHROOMBOARD_BIND, default: 127.0.0.1:7710)
	AllowRemote   bool   // Allow non-loopback connections (SHROOMBOARD_ALLOW_REMOTE, default: false)
	AuthToken     string // Bearer token for API auth (SHROOMBOARD_AUTH_TOKEN, optional)
	DefaultModel  string // LLM model name (SHROOMBOARD_DEFAULT_MODEL, optional)
	SearchModel   string // Model for web-grounded queries (SHROOMBOARD_SEARCH_MODEL, optional)
	FallbackPool  string // Path to a YAML fallback idea pool (SHROOMBOARD_FALLBACK_POOL, optional)
	DailyQuota    int    // Anonymous generations per day (SHROOMBOARD_DAILY_QUOTA, default: 20)
	PublicBaseURL string // Public URL for the server (SHROOMBOARD_PUBLIC_BASE_URL)
}

// ConfigFromEnv loads configuration from SHROOMBOARD_* environment variables
// with sensible defaults.
func ConfigFromEnv() (*Config, error) {
	// Home stays empty when SHROOMBOARD_HOME is unset; the daemon resolves
	// the XDG default itself.
	home := os.Getenv("SHROOMBOARD_HOME")

	bind := envOrDefault("SHROOMBOARD_BIND", "127.0.0.1:7710")

	allowRemote := false
	if v := os.Getenv("SHROOMBOARD_ALLOW_REMOTE"); v == "true" || v == "1" || v == "yes" {
		allowRemote = true
	}

	authToken := os.Getenv("SHROOMBOARD_AUTH_TOKEN")
	defaultModel := os.Getenv("SHROOMBOARD_DEFAULT_MODEL")
	searchModel := os.Getenv("SHROOMBOARD_SEARCH_MODEL")
	fallbackPool := os.Getenv("SHROOMBOARD_FALLBACK_POOL")

	dailyQuota := 20
	if v := os.Getenv("SHROOMBOARD_DAILY_QUOTA"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid SHROOMBOARD_DAILY_QUOTA %q", v)
		}
		dailyQuota = n
	}

	publicBaseURL := envOrDefault("SHROOMBOARD_PUBLIC_BASE_URL", fmt.Sprintf("http://%s", bind))

	// Security: remote access requires auth token
	if allowRemote && authToken == "" {
		return nil, ErrRemoteWithoutToken
	}

	// Security: refuse non-loopback binds unless explicitly opting into remote access.
	// Checks both IP literals and hostnames; only 127.0.0.0/8, ::1, and "localhost"
	// are considered safe.
	if !allowRemote {
		if host, _, err := net.SplitHostPort(bind); err == nil && host != "" {
			ip := net.ParseIP(host)
			switch {
			case ip != nil && ip.IsLoopback():
				// Safe: 127.x.x.x or ::1
			case ip != nil:
				// Non-loopback IP literal (e.g. 0.0.0.0, 192.168.x.x)
				return nil, fmt.Errorf("%w: SHROOMBOARD_BIND=%s", ErrNonLoopbackBind, bind)
			case host == "localhost":
				// Safe: conventional loopback hostname
			default:
				// Non-localhost hostname (e.g. myhost, example.com)
				return nil, fmt.Errorf("%w: SHROOMBOARD_BIND=%s", ErrNonLoopbackBind, bind)
			}
		}
	}

	return &Config{
		Home:          home,
		Bind:          bind,
		AllowRemote:   allowRemote,
		AuthToken:     authToken,
		DefaultModel:  defaultModel,
		SearchModel:   searchModel,
		FallbackPool:  fallbackPool,
		DailyQuota:    dailyQuota,
		PublicBaseURL: publicBaseURL,
	}, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
