// Package config defines the runtime configuration for the service and
// provides helpers for parsing addresses and [user@]host[:port] tunnel targets.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	ncerr "microservice/internal/errors"
	"microservice/util"
)

// Config holds every tuneable for one server process.
type Config struct {
	// ── Listener ─────────────────────────────────────────────────────
	Host         string
	Port         int
	ReadTimeout  time.Duration // time allowed to read one request head (0 = none)
	WriteTimeout time.Duration // time allowed to write one response (0 = none)
	IdleTimeout  time.Duration // keep-alive wait for the next request (0 = none)
	GracePeriod  time.Duration // shutdown wait for open sessions
	ReusePort    bool          // SO_REUSEPORT on the local socket

	// ── Protocol ─────────────────────────────────────────────────────
	HTTP1Only            bool // refuse the HTTP/2 preface
	MaxConcurrentStreams uint32
	MaxHeaderBytes       int

	// ── Invocation ───────────────────────────────────────────────────
	Invoke bool // read JSON events from stdin instead of listening

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec        string // raw user@host[:port] from -T
	TunnelEnabled     bool
	TunnelUser        string
	TunnelHost        string
	TunnelPort        int
	SSHKeyPath        string
	SSHPassword       bool // true → prompt interactively
	UseSSHAgent       bool
	StrictHostKey     bool
	KnownHostsPath    string
	RemoteBindAddress string
	RemotePort        int

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	DryRun  bool
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Host:                 DefaultHost,
		Port:                 DefaultPort,
		IdleTimeout:          DefaultIdleTimeout,
		GracePeriod:          DefaultGracePeriod,
		MaxConcurrentStreams: DefaultMaxConcurrentStreams,
		MaxHeaderBytes:       DefaultMaxHeaderBytes,
		Verbose:              1,
	}
}

// Address returns the listen address as "host:port".
func (c *Config) Address() string {
	return util.FormatAddr(c.Host, c.Port)
}

// SetAddress splits a "host:port" string into Host and Port.
func (c *Config) SetAddress(addr string) error {
	host, port, err := util.SplitAddr(addr)
	if err != nil {
		return &ncerr.ConfigError{Field: "addr", Value: addr, Message: err.Error(),
			Hint: "use host:port, e.g. 127.0.0.1:8080"}
	}
	c.Host = host
	c.Port = port
	return nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &ncerr.ConfigError{Field: "port", Value: c.Port, Message: "out of range 0-65535"}
	}

	for _, d := range []struct {
		field string
		v     time.Duration
	}{
		{"read-timeout", c.ReadTimeout},
		{"write-timeout", c.WriteTimeout},
		{"idle-timeout", c.IdleTimeout},
		{"grace", c.GracePeriod},
	} {
		if d.v < 0 {
			return &ncerr.ConfigError{Field: d.field, Value: d.v, Message: "must not be negative"}
		}
	}

	if c.MaxHeaderBytes < 0 {
		return &ncerr.ConfigError{Field: "max-header-bytes", Value: c.MaxHeaderBytes, Message: "must not be negative"}
	}

	if c.TunnelEnabled {
		if c.Invoke {
			return &ncerr.ConfigError{Field: "tunnel", Message: "cannot be combined with --invoke"}
		}
		if c.TunnelHost == "" {
			return &ncerr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
		}
		if c.RemotePort < 1 || c.RemotePort > 65535 {
			return &ncerr.ConfigError{
				Field:   "remote-port",
				Value:   c.RemotePort,
				Message: "required with --tunnel (1-65535)",
				Hint:    "add --remote-port 8080 to expose the service on the gateway",
			}
		}
	}

	return nil
}
