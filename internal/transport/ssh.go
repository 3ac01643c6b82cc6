package transport

import (
	"context"
	"net"

	ncerr "microservice/internal/errors"
	"microservice/internal/metrics"
	"microservice/internal/retry"
	"microservice/tunnel"
	"microservice/util"
)

// SSHListener publishes the service on an SSH gateway.  The gateway
// listens on RemoteBindAddress:RemotePort and forwards each connection
// back through the tunnel; reconnects are handled underneath.
type SSHListener struct {
	Config            *tunnel.SSHConfig
	RemoteBindAddress string
	RemotePort        int
	Backoff           *retry.Backoff
	Logger            *util.Logger
	Metrics           *metrics.Collector

	// Tunnel overrides the SSH tunnel built from Config.
	Tunnel tunnel.Tunnel
}

// Listen connects the tunnel and requests the remote forward.  Failure
// after the backoff budget is a *BindError for the remote address.
func (l *SSHListener) Listen(ctx context.Context) (net.Listener, error) {
	t := l.Tunnel
	if t == nil {
		t = tunnel.NewSSHTunnel(l.Config, l.Logger)
	}
	l.Logger.Verbose("establishing SSH tunnel to %s", l.gateway())

	p, err := tunnel.Publish(ctx, t, tunnel.PublishOptions{
		BindAddr: l.RemoteBindAddress,
		Port:     l.RemotePort,
		Backoff:  l.Backoff,
		Logger:   l.Logger,
		Metrics:  l.Metrics,
	})
	if err != nil {
		return nil, ncerr.Bind(l.remote(), err)
	}
	return p, nil
}

func (l *SSHListener) String() string {
	return "ssh " + l.remote() + " via " + l.gateway()
}

func (l *SSHListener) remote() string {
	return util.FormatAddr(l.RemoteBindAddress, l.RemotePort)
}

func (l *SSHListener) gateway() string {
	if l.Config == nil {
		return "tunnel"
	}
	return l.Config.User + "@" + l.Config.Addr()
}
