package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the MICROSERVICE_ prefix.  Boolean
// values accept "1", "true", "yes" (case-insensitive).  Durations
// accept Go syntax ("30s") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("MICROSERVICE_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("MICROSERVICE_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := os.Getenv("MICROSERVICE_ADDR"); v != "" {
		cfg.SetAddress(v) //nolint:errcheck // a bad value leaves host/port untouched
	}
	if v := envDuration("MICROSERVICE_READ_TIMEOUT"); v > 0 {
		cfg.ReadTimeout = v
	}
	if v := envDuration("MICROSERVICE_WRITE_TIMEOUT"); v > 0 {
		cfg.WriteTimeout = v
	}
	if v := envDuration("MICROSERVICE_IDLE_TIMEOUT"); v > 0 {
		cfg.IdleTimeout = v
	}
	if v := envDuration("MICROSERVICE_GRACE"); v > 0 {
		cfg.GracePeriod = v
	}
	if envBool("MICROSERVICE_REUSE_PORT") {
		cfg.ReusePort = true
	}
	if envBool("MICROSERVICE_HTTP1_ONLY") {
		cfg.HTTP1Only = true
	}
	if v := envInt("MICROSERVICE_MAX_STREAMS"); v > 0 {
		cfg.MaxConcurrentStreams = uint32(v)
	}

	// SSH tunnel
	if v := os.Getenv("MICROSERVICE_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := envInt("MICROSERVICE_REMOTE_PORT"); v > 0 {
		cfg.RemotePort = v
	}
	if v := os.Getenv("MICROSERVICE_REMOTE_BIND_ADDRESS"); v != "" {
		cfg.RemoteBindAddress = v
	}
	if v := os.Getenv("MICROSERVICE_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("MICROSERVICE_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("MICROSERVICE_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("MICROSERVICE_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("MICROSERVICE_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}
