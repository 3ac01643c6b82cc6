package transport

import (
	"context"
	"net"
	"syscall"
	"time"

	ncerr "microservice/internal/errors"
)

// TCPListener binds a local TCP address.
type TCPListener struct {
	Address   string        // host:port; port 0 picks a free one
	KeepAlive time.Duration // TCP keep-alive period (0 = OS default, <0 = off)

	// ReusePort sets SO_REUSEPORT so several processes can share the
	// address and the kernel balances connections between them.
	ReusePort bool
}

// Listen binds the address.
func (l *TCPListener) Listen(ctx context.Context) (net.Listener, error) {
	lc := net.ListenConfig{KeepAlive: l.KeepAlive}
	if l.ReusePort {
		lc.Control = func(_, _ string, rc syscall.RawConn) error {
			return setReusePort(rc)
		}
	}
	ln, err := lc.Listen(ctx, "tcp", l.Address)
	if err != nil {
		return nil, ncerr.Bind(l.Address, err)
	}
	return ln, nil
}

func (l *TCPListener) String() string { return "tcp " + l.Address }
