// Package transport provides the listeners the accept loop serves:
// a plain TCP socket, or a port on an SSH gateway forwarded back
// through a tunnel.  What happens on an accepted connection is the
// session layer's job.
package transport

import (
	"context"
	"net"
)

// Listener opens the server's listening endpoint.  Implementations
// report an endpoint that cannot be opened as *errors.BindError.
type Listener interface {
	// Listen opens the endpoint.  ctx bounds only the setup.
	Listen(ctx context.Context) (net.Listener, error)

	// String describes the endpoint for log lines.
	String() string
}
