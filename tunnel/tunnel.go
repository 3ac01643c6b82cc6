// Package tunnel publishes the service through an SSH gateway with a
// remote port forward, the equivalent of `ssh -R`.  Connections that
// reach the gateway port arrive as a [net.Listener] and are served by
// the same accept loop as local TCP connections.
package tunnel

import (
	"context"
	"net"
)

// Tunnel abstracts an encrypted gateway connection that can accept
// connections on the gateway's side.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Listen asks the gateway to listen on bindAddr:port and forward
	// every connection it accepts back through the tunnel.
	Listen(bindAddr string, port int) (net.Listener, error)

	// Close tears down the tunnel and frees resources.
	Close() error

	// IsAlive reports whether the underlying connection is still up.
	IsAlive() bool
}
