package proto

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/http2"

	ncerr "microservice/internal/errors"
	"microservice/internal/metrics"
	"microservice/internal/router"
)

// http2Conn serves cleartext HTTP/2 with prior knowledge.  Framing,
// HPACK, flow control and stream multiplexing come from x/net/http2;
// each stream runs the handler on its own goroutine, independent of
// the others on the same connection.
type http2Conn struct {
	conn   *tappedConn
	opts   *Options
	remote string

	mu      sync.Mutex
	errKind string // first connection-level error the server counted
}

func newHTTP2Conn(conn net.Conn, br *bufio.Reader, opts *Options) *http2Conn {
	return &http2Conn{
		conn:   &tappedConn{bufferedConn: &bufferedConn{Conn: conn, r: br}},
		opts:   opts,
		remote: conn.RemoteAddr().String(),
	}
}

func (c *http2Conn) Proto() string { return HTTP2 }

// Serve implements [Conn].  The http2 server is built per connection so
// that no state is shared between sessions.
func (c *http2Conn) Serve(ctx context.Context, h router.Handler) error {
	srv := &http2.Server{
		MaxConcurrentStreams: c.opts.MaxConcurrentStreams,
		IdleTimeout:          c.opts.IdleTimeout,
		CountError:           c.countError,
	}

	base := &http.Server{
		WriteTimeout: c.opts.WriteTimeout,
	}
	if c.opts.Logger != nil {
		base.ErrorLog = c.opts.Logger.StdLogger("http2: ")
	}

	srv.ServeConn(c.conn, &http2.ServeConnOpts{
		Context:    ctx,
		BaseConfig: base,
		Handler:    streamHandler(h, c.opts.Metrics),
	})

	code, goAway := c.conn.goAwayCode()
	c.mu.Lock()
	kind := c.errKind
	c.mu.Unlock()

	switch {
	case kind != "":
		return ncerr.Protocol(HTTP2, c.remote, fmt.Errorf("connection error: %s", kind))
	case goAway:
		return ncerr.Protocol(HTTP2, c.remote, fmt.Errorf("connection error: %s", code))
	}
	return nil
}

// countError receives the http2 server's error classifications.  Stream
// errors reset one stream and leave the connection up, so only the
// first connection-level kind is kept.
func (c *http2Conn) countError(errType string) {
	if strings.HasPrefix(errType, "stream_") {
		return
	}
	c.mu.Lock()
	if c.errKind == "" {
		c.errKind = errType
	}
	c.mu.Unlock()
}

// ── GOAWAY tap ───────────────────────────────────────────────────────

// tappedConn follows the frames the server writes.  Some framing
// violations (an oversize frame, for one) end the connection with a
// GOAWAY but never reach CountError, so the GOAWAY's code is recorded.
type tappedConn struct {
	*bufferedConn

	mu  sync.Mutex
	tap frameTap
}

func (c *tappedConn) Write(p []byte) (int, error) {
	n, err := c.bufferedConn.Write(p)
	c.mu.Lock()
	c.tap.observe(p[:n])
	c.mu.Unlock()
	return n, err
}

// goAwayCode returns the code of the first GOAWAY written with an error
// code other than NO_ERROR.
func (c *tappedConn) goAwayCode() (http2.ErrCode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tap.code, c.tap.seen
}

const frameHeaderLen = 9

// frameTap splits an outgoing byte stream into frames.  Writes may cut
// a frame anywhere, so header and GOAWAY payload are accumulated.
type frameTap struct {
	hdr  [frameHeaderLen]byte
	nhdr int
	left int // payload bytes remaining in the current frame

	goAway bool
	body   [8]byte // last-stream-id, error code
	nbody  int

	code http2.ErrCode
	seen bool
}

func (t *frameTap) observe(p []byte) {
	for len(p) > 0 {
		if t.nhdr < frameHeaderLen {
			n := copy(t.hdr[t.nhdr:], p)
			t.nhdr += n
			p = p[n:]
			if t.nhdr < frameHeaderLen {
				return
			}
			t.left = int(t.hdr[0])<<16 | int(t.hdr[1])<<8 | int(t.hdr[2])
			t.goAway = http2.FrameType(t.hdr[3]) == http2.FrameGoAway
			t.nbody = 0
			if t.left == 0 {
				t.nhdr = 0
			}
			continue
		}

		n := min(len(p), t.left)
		if t.goAway && t.nbody < len(t.body) {
			t.nbody += copy(t.body[t.nbody:], p[:n])
			if t.nbody == len(t.body) && !t.seen {
				if code := http2.ErrCode(binary.BigEndian.Uint32(t.body[4:])); code != http2.ErrCodeNo {
					t.code, t.seen = code, true
				}
			}
		}
		t.left -= n
		p = p[n:]
		if t.left == 0 {
			t.nhdr = 0
		}
	}
}

// streamHandler adapts h to the http2 server, one call per stream.
func streamHandler(h router.Handler, m *metrics.Collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := h.ServeRequest(r.Context(), router.FromHTTP(r))
		if err := router.WriteHTTP(w, resp); err != nil {
			m.RecordError(metrics.ErrIO, err.Error())
			return
		}
		m.RequestServed(resp.ContentLength())
	})
}
