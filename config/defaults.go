package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultHost is the interface the service binds to.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the TCP port the service binds to.
	DefaultPort = 8080

	// DefaultIdleTimeout bounds how long a keep-alive connection may sit
	// without a request before the session ends.
	DefaultIdleTimeout = 2 * time.Minute

	// DefaultGracePeriod is how long shutdown waits for sessions to finish.
	DefaultGracePeriod = 5 * time.Second

	// DefaultMaxConcurrentStreams caps in-flight HTTP/2 streams per
	// connection.
	DefaultMaxConcurrentStreams = 250

	// DefaultMaxHeaderBytes caps the size of one HTTP/1 request head.
	DefaultMaxHeaderBytes = 1 << 20

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout is the SSH gateway connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultTunnelAttempts is how many times to try reaching the gateway
	// before giving up.
	DefaultTunnelAttempts = 5

	// DefaultTunnelKeepAlive is the SSH keepalive period for a published
	// tunnel.
	DefaultTunnelKeepAlive = 30 * time.Second
)
