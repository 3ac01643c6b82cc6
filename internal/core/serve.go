package core

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	ncerr "microservice/internal/errors"
	"microservice/internal/metrics"
	"microservice/internal/proto"
	"microservice/internal/retry"
	"microservice/internal/router"
	"microservice/internal/session"
	"microservice/internal/transport"
	"microservice/util"
)

// ServeMode accepts connections and runs one session per connection on
// its own goroutine.
type ServeMode struct {
	Listener    transport.Listener
	Handler     router.Handler
	Options     proto.Options
	GracePeriod time.Duration // wait for open sessions on shutdown
	Logger      *util.Logger
	Metrics     *metrics.Collector

	// Ready, when set, is called with the bound address before the
	// first Accept.
	Ready func(net.Addr)
}

// Run binds the listener and serves until ctx is cancelled.  A listener
// that cannot be opened is returned as *BindError before any connection
// is accepted.
func (m *ServeMode) Run(ctx context.Context) error {
	ln, err := m.Listener.Listen(ctx)
	if err != nil {
		return err
	}
	return m.Serve(ctx, ln)
}

// Serve runs the accept loop on ln and closes it on return.  Accept
// failures are logged, counted and paced; they never end the loop.  It
// returns nil once ctx is cancelled or ln is closed.
func (m *ServeMode) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	addr := ln.Addr()
	m.Logger.Info("Server running on http://%s", addr)
	if m.Ready != nil {
		m.Ready(addr)
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	// Sessions outlive the accept loop by up to the grace period.
	sessCtx, cancelSessions := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSessions()

	var (
		wg     sync.WaitGroup
		pacing = retry.AcceptBackoff().Pacer()
		runErr error
	)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			if errors.Is(err, ncerr.ErrTunnelClosed) {
				runErr = err
				break
			}

			ae := ncerr.Accept(addr.String(), err)
			m.Metrics.RecordError(metrics.ErrAccept, ae.Error())
			if ncerr.IsRetryable(ae) {
				m.Logger.Warn("%v", ae)
			} else {
				m.Logger.Error("%v", ae)
			}
			if pacing.Fail(ctx) != nil {
				break
			}
			continue
		}
		pacing.Reset()

		wg.Add(1)
		go func() {
			defer wg.Done()
			session.New(conn, m.Options, m.Logger, m.Metrics).Run(sessCtx, m.Handler)
		}()
	}

	m.drain(&wg, cancelSessions)
	m.Logger.Info("shutdown metrics: %s", m.Metrics.JSON())
	return runErr
}

// drain waits up to the grace period for sessions, then closes the rest.
func (m *ServeMode) drain(wg *sync.WaitGroup, cancelSessions context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if m.GracePeriod > 0 {
		m.Logger.Verbose("waiting up to %s for %d open connection(s)",
			m.GracePeriod, m.Metrics.ActiveConnections())
		t := time.NewTimer(m.GracePeriod)
		defer t.Stop()
		select {
		case <-done:
			return
		case <-t.C:
		}
	}
	cancelSessions()
	<-done
}
