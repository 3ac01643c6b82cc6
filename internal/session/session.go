// Package session represents a single connection lifecycle: negotiate
// the protocol, serve exchanges until the peer or the server is done,
// close the socket.
//
// A Session owns its connection exclusively and shares nothing mutable
// with other sessions; failures end the session and are reported to the
// injected logger and metrics, never to the caller.
package session

import (
	"context"
	"errors"
	"io"
	"net"

	ncerr "microservice/internal/errors"
	"microservice/internal/metrics"
	"microservice/internal/proto"
	"microservice/internal/router"
	"microservice/util"
)

// Session encapsulates the runtime context for a single connection.
type Session struct {
	Conn    net.Conn
	Logger  *util.Logger
	Metrics *metrics.Collector
	Options proto.Options
}

// New creates a Session for conn.  The codec options inherit logger and
// metrics so protocol-level reports reach the same sinks.
func New(conn net.Conn, opts proto.Options, logger *util.Logger, m *metrics.Collector) *Session {
	opts.Logger = logger
	opts.Metrics = m
	return &Session{
		Conn:    conn,
		Logger:  logger,
		Metrics: m,
		Options: opts,
	}
}

// Run serves the connection with h until it ends and then closes it.
// Cancelling ctx closes the connection, which unblocks any pending read
// or write.
func (s *Session) Run(ctx context.Context, h router.Handler) {
	log := s.Logger.With(s.Conn.RemoteAddr().String())
	s.Metrics.ConnectionOpened()
	defer s.Metrics.ConnectionClosed()
	defer s.Conn.Close()

	stop := context.AfterFunc(ctx, func() { s.Conn.Close() })
	defer stop()

	log.Verbose("connected")

	c, err := proto.Negotiate(s.Conn, &s.Options)
	if err != nil {
		s.report(log, err)
		return
	}
	s.Metrics.Negotiated(c.Proto())
	log.Debug("negotiated %s", c.Proto())

	err = c.Serve(ctx, router.Recover(h, func(err error) {
		s.Metrics.RecordError(metrics.ErrHandler, err.Error())
		log.Error("%v", err)
	}))
	if ctx.Err() != nil {
		log.Debug("closed by shutdown")
		return
	}
	s.report(log, err)
	log.Verbose("closed")
}

// report logs err at a level matching its kind and counts it.  Typed
// errors already name the peer, so they go to the unprefixed logger.
func (s *Session) report(log *util.Logger, err error) {
	var (
		pe *ncerr.ProtocolError
		ie *ncerr.IOError
	)
	switch {
	case err == nil, errors.Is(err, io.EOF):
	case errors.As(err, &pe):
		s.Metrics.RecordError(metrics.ErrProtocol, err.Error())
		s.Logger.Warn("%v", err)
	case errors.As(err, &ie):
		if util.IsClosed(ie.Err) || util.IsTimeout(ie.Err) {
			s.Logger.Verbose("%v", err)
			return
		}
		s.Metrics.RecordError(metrics.ErrIO, err.Error())
		s.Logger.Warn("%v", err)
	default:
		s.Metrics.RecordError(metrics.ErrIO, err.Error())
		log.Error("%v", err)
	}
}
