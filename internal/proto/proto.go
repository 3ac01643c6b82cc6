// Package proto negotiates the HTTP version spoken on one connection and
// serves it.
//
// Negotiation peeks at the first bytes of the stream: the HTTP/2 client
// preface selects the multiplexed codec, anything else the HTTP/1 codec.
// The choice is made once and fixed for the connection's lifetime.  Both
// codecs satisfy [Conn], so callers never branch on the version.
package proto

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"golang.org/x/net/http2"

	ncerr "microservice/internal/errors"
	"microservice/internal/metrics"
	"microservice/internal/router"
	"microservice/util"
)

// Protocol names reported by [Conn.Proto].
const (
	HTTP1 = "HTTP/1.1"
	HTTP2 = "HTTP/2.0"
)

// Conn serves one negotiated connection.
type Conn interface {
	// Proto returns HTTP1 or HTTP2.
	Proto() string

	// Serve runs request/response exchanges until the peer goes away,
	// the connection fails, or keep-alive ends.  A clean end returns nil.
	Serve(ctx context.Context, h router.Handler) error
}

// Options tune both codecs.  Zero values mean "no limit" except where
// noted.
type Options struct {
	ReadTimeout          time.Duration // one request head (HTTP/1)
	WriteTimeout         time.Duration // one response
	IdleTimeout          time.Duration // wait for the next request / first bytes
	MaxHeaderBytes       int           // HTTP/1 request head budget (0 = 1 MiB)
	MaxConcurrentStreams uint32        // HTTP/2 (0 = library default)
	HTTP1Only            bool

	Logger  *util.Logger
	Metrics *metrics.Collector
}

const defaultMaxHeaderBytes = 1 << 20

func (o *Options) maxHeaderBytes() int64 {
	if o.MaxHeaderBytes > 0 {
		return int64(o.MaxHeaderBytes)
	}
	return defaultMaxHeaderBytes
}

var errHTTP2Disabled = errors.New("HTTP/2 preface received but HTTP/2 is disabled")

// Negotiate inspects the start of conn and returns the codec for it.
// It returns io.EOF if the peer closes before sending a single byte.
func Negotiate(conn net.Conn, opts *Options) (Conn, error) {
	remote := conn.RemoteAddr().String()
	cr := &connReader{conn: conn}
	br := util.GetReader(cr)

	if opts.IdleTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(opts.IdleTimeout)) //nolint:errcheck
	}

	isH2, err := sniff(br)
	if err != nil {
		util.PutReader(br)
		return nil, classifySniff(remote, err)
	}
	conn.SetReadDeadline(time.Time{}) //nolint:errcheck

	if !isH2 {
		return newHTTP1Conn(conn, cr, br, opts), nil
	}
	if opts.HTTP1Only {
		util.PutReader(br)
		return nil, ncerr.Protocol(HTTP2, remote, errHTTP2Disabled)
	}
	return newHTTP2Conn(conn, br, opts), nil
}

// sniff compares the stream, one byte at a time, with the HTTP/2
// client preface.  Reading byte-wise keeps a short HTTP/1 request from
// blocking while waiting for a full preface's worth of input.
func sniff(br *bufio.Reader) (bool, error) {
	for i := 1; i <= len(http2.ClientPreface); i++ {
		b, err := br.Peek(i)
		if err != nil {
			if len(b) > 0 && errors.Is(err, io.EOF) {
				return false, errTruncatedPreface
			}
			return false, err
		}
		if b[i-1] != http2.ClientPreface[i-1] {
			return false, nil
		}
	}
	return true, nil
}

var errTruncatedPreface = errors.New("stream ended inside the connection preface")

func classifySniff(remote string, err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, errTruncatedPreface):
		return ncerr.Protocol("", remote, errors.Join(ncerr.ErrBadPreface, err))
	default:
		return ncerr.IO("read", remote, err)
	}
}

// connReader is the source under the connection's bufio.Reader.  While
// a request head is being read it enforces the head size budget.
type connReader struct {
	conn    net.Conn
	limited bool
	remain  int64
}

var errHeadTooLarge = errors.New("request head too large")

func (cr *connReader) Read(p []byte) (int, error) {
	if cr.limited {
		if cr.remain <= 0 {
			return 0, errHeadTooLarge
		}
		if int64(len(p)) > cr.remain {
			p = p[:cr.remain]
		}
	}
	n, err := cr.conn.Read(p)
	if cr.limited {
		cr.remain -= int64(n)
	}
	return n, err
}

func (cr *connReader) setLimit(n int64) {
	cr.limited = true
	cr.remain = n
}

func (cr *connReader) unlimit() { cr.limited = false }

// bufferedConn replays bytes already pulled into r before reading the
// socket again, so the HTTP/2 server sees the preface we peeked at.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }
