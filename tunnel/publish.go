package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	ncerr "microservice/internal/errors"
	"microservice/internal/metrics"
	"microservice/internal/retry"
	"microservice/util"
)

// Publisher is a [net.Listener] on the far side of a [Tunnel].  When the
// tunnel drops it reconnects and re-requests the forward, so the accept
// loop above it only sees the outage as a slow Accept.
type Publisher struct {
	tunnel   Tunnel
	bindAddr string
	port     int
	backoff  *retry.Backoff
	logger   *util.Logger
	metrics  *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	cur net.Listener
}

// PublishOptions configures [Publish].
type PublishOptions struct {
	BindAddr string
	Port     int
	Backoff  *retry.Backoff // nil: retry.DefaultBackoff()
	Logger   *util.Logger
	Metrics  *metrics.Collector
}

// Publish connects t and requests the remote forward, retrying with
// backoff.  The returned Publisher stays usable until Close or until a
// reconnect exhausts the backoff.
func Publish(ctx context.Context, t Tunnel, opts PublishOptions) (*Publisher, error) {
	b := opts.Backoff
	if b == nil {
		b = retry.DefaultBackoff()
	}
	p := &Publisher{
		tunnel:   t,
		bindAddr: opts.BindAddr,
		port:     opts.Port,
		backoff:  b,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	ln, err := p.establish()
	if err != nil {
		p.cancel()
		return nil, err
	}
	p.cur = ln
	p.logger.Info("published on gateway at %s", ln.Addr())
	return p, nil
}

// establish runs Connect and Listen under the backoff policy.
func (p *Publisher) establish() (net.Listener, error) {
	var ln net.Listener
	err := p.backoff.Do(p.ctx, func(attempt int) error {
		if err := p.tunnel.Connect(p.ctx); err != nil {
			p.logger.Warn("tunnel connect attempt %d: %v", attempt, err)
			if isConfigFailure(err) {
				return retry.Permanent(err)
			}
			return err
		}
		l, err := p.tunnel.Listen(p.bindAddr, p.port)
		if err != nil {
			p.logger.Warn("tunnel listen attempt %d: %v", attempt, err)
			p.tunnel.Close()
			return err
		}
		ln = l
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("publish via tunnel: %w", err)
	}
	return ln, nil
}

// isConfigFailure reports whether err comes from local auth or host-key
// setup, which a retry cannot fix.
func isConfigFailure(err error) bool {
	var se *ncerr.SSHError
	return errors.As(err, &se) && (se.Op == "auth" || se.Op == "hostkey")
}

// Accept implements [net.Listener].
func (p *Publisher) Accept() (net.Conn, error) {
	for {
		p.mu.Lock()
		ln := p.cur
		p.mu.Unlock()
		if ln == nil {
			return nil, net.ErrClosed
		}

		conn, err := ln.Accept()
		if err == nil {
			return conn, nil
		}
		if p.ctx.Err() != nil {
			return nil, net.ErrClosed
		}
		if !errors.Is(err, ncerr.ErrTunnelClosed) {
			return nil, err
		}

		p.logger.Warn("tunnel lost, reconnecting")
		p.metrics.TunnelReconnect()
		p.tunnel.Close()

		next, err := p.establish()
		if err != nil {
			if p.ctx.Err() != nil {
				return nil, net.ErrClosed
			}
			return nil, errors.Join(ncerr.ErrTunnelClosed, err)
		}

		p.mu.Lock()
		if p.ctx.Err() != nil {
			p.mu.Unlock()
			next.Close()
			return nil, net.ErrClosed
		}
		p.cur = next
		p.mu.Unlock()
		p.logger.Info("tunnel re-established at %s", next.Addr())
	}
}

// Close stops accepting, cancels the forward, and closes the tunnel.
func (p *Publisher) Close() error {
	p.cancel()
	p.mu.Lock()
	ln := p.cur
	p.cur = nil
	p.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	return p.tunnel.Close()
}

// Addr implements [net.Listener].
func (p *Publisher) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil {
		return p.cur.Addr()
	}
	return &gatewayAddr{host: p.bindAddr, port: p.port}
}
