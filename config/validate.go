package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"shadowpay/crypto"
)

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("RPCAddress must not be empty")
	}
	switch c.Storage.Backend {
	case "leveldb":
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("DataDir is required for the leveldb backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.ProgramID != "" {
		if _, err := crypto.ParseAddress(c.ProgramID); err != nil {
			return fmt.Errorf("ProgramID: %w", err)
		}
	}
	if c.Rent.LamportsPerByteYear == 0 || c.Rent.ExemptionYears == 0 {
		return fmt.Errorf("rent: LamportsPerByteYear and ExemptionYears must be positive")
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.RequireAuth && strings.TrimSpace(c.RPC.JWTSecretEnv) == "" {
		return fmt.Errorf("rpc: RequireAuth needs JWTSecretEnv")
	}
	switch c.Index.Driver {
	case "":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Index.DSN) == "" {
			return fmt.Errorf("index: DSN is required for driver %q", c.Index.Driver)
		}
	default:
		return fmt.Errorf("index: unknown driver %q", c.Index.Driver)
	}
	if endpoint := strings.TrimSpace(c.Webhook.Endpoint); endpoint != "" {
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook: Endpoint must be an http(s) URL")
		}
		if strings.TrimSpace(c.Webhook.SecretEnv) == "" {
			return fmt.Errorf("webhook: SecretEnv is required when Endpoint is set")
		}
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a configured level name onto slog.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", level)
	}
}
