package proto

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	ncerr "microservice/internal/errors"
	"microservice/internal/router"
	"microservice/util"
)

// maxDrainBytes bounds how much of an unread request body is discarded
// to keep a connection alive.  Larger leftovers close the connection.
const maxDrainBytes = 256 << 10

// http1Conn speaks HTTP/1.0 and HTTP/1.1 with one exchange in flight:
// each response is fully written and flushed before the next request
// is read, so pipelined requests are answered in arrival order.
type http1Conn struct {
	conn   net.Conn
	cr     *connReader
	br     *bufio.Reader
	bw     *bufio.Writer
	opts   *Options
	remote string

	cur        *http.Request // request being answered
	closeAfter bool          // keep-alive ended after cur
	served     int
}

func newHTTP1Conn(conn net.Conn, cr *connReader, br *bufio.Reader, opts *Options) *http1Conn {
	return &http1Conn{
		conn:   conn,
		cr:     cr,
		br:     br,
		bw:     util.GetWriter(conn),
		opts:   opts,
		remote: conn.RemoteAddr().String(),
	}
}

func (c *http1Conn) Proto() string { return HTTP1 }

// Serve implements [Conn].
func (c *http1Conn) Serve(ctx context.Context, h router.Handler) error {
	defer c.release()

	for {
		req, err := c.NextRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		resp := h.ServeRequest(ctx, req)
		if err := c.SendResponse(resp); err != nil {
			return err
		}
		if c.closeAfter {
			return nil
		}
	}
}

// NextRequest reads the next request head.  io.EOF means there is no
// next request: the peer closed between requests, the idle timeout
// passed, or the previous exchange ended keep-alive.
func (c *http1Conn) NextRequest() (*router.Request, error) {
	if c.closeAfter {
		return nil, io.EOF
	}
	if err := c.finishPrevious(); err != nil {
		return nil, err
	}

	// Wait for the first byte under the idle timeout.
	if c.served > 0 {
		var deadline time.Time
		if c.opts.IdleTimeout > 0 {
			deadline = time.Now().Add(c.opts.IdleTimeout)
		}
		c.conn.SetReadDeadline(deadline) //nolint:errcheck
	}
	if _, err := c.br.Peek(1); err != nil {
		if util.IsClosed(err) || util.IsTimeout(err) {
			return nil, io.EOF
		}
		return nil, ncerr.IO("read", c.remote, err)
	}

	if c.opts.ReadTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)) //nolint:errcheck
	} else {
		c.conn.SetReadDeadline(time.Time{}) //nolint:errcheck
	}

	// Allow a buffer's worth of slack for bytes bufio reads ahead.
	c.cr.setLimit(c.opts.maxHeaderBytes() + int64(util.DefaultBufSize))
	hr, err := http.ReadRequest(c.br)
	c.cr.unlimit()
	if err != nil {
		switch {
		case util.IsTimeout(err):
			return nil, ncerr.IO("read", c.remote, err)
		case errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrUnexpectedEOF):
			return nil, ncerr.IO("read", c.remote, err)
		default:
			return nil, ncerr.Protocol(HTTP1, c.remote, err)
		}
	}

	c.cur = hr
	// ReadRequest applies the version defaults: 1.1 persists unless
	// "Connection: close", 1.0 closes unless "Connection: keep-alive".
	c.closeAfter = hr.Close

	req := router.FromHTTP(hr)
	req.RemoteAddr = c.remote
	return req, nil
}

// SendResponse encodes resp as the answer to the request last returned
// by NextRequest and flushes it to the connection.
func (c *http1Conn) SendResponse(resp *router.Response) error {
	if c.cur == nil {
		return ncerr.Protocol(HTTP1, c.remote, errors.New("response without a request"))
	}
	if c.opts.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)) //nolint:errcheck
	}

	header := resp.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if header.Get("Date") == "" {
		header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}

	hr := &http.Response{
		StatusCode:    resp.Status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		ContentLength: resp.ContentLength(),
		Body:          io.NopCloser(resp.BodyReader()),
		Close:         c.closeAfter,
		Request:       c.cur,
	}
	if hr.ContentLength < 0 {
		if c.cur.ProtoAtLeast(1, 1) {
			hr.TransferEncoding = []string{"chunked"}
		} else {
			// A 1.0 peer can only find the end of an unsized body at EOF.
			hr.Close = true
			c.closeAfter = true
		}
	}
	if !hr.Close && !c.cur.ProtoAtLeast(1, 1) {
		header.Set("Connection", "keep-alive")
	}

	if err := hr.Write(c.bw); err != nil {
		return ncerr.IO("write", c.remote, err)
	}
	if err := c.bw.Flush(); err != nil {
		return ncerr.IO("flush", c.remote, err)
	}

	c.served++
	c.opts.Metrics.RequestServed(hr.ContentLength)
	return nil
}

// finishPrevious discards whatever the handler left unread of the
// previous request body so the next head starts at the right byte.
// Body.Close is never called: it drains without bound.
func (c *http1Conn) finishPrevious() error {
	if c.cur == nil {
		return nil
	}
	body := c.cur.Body
	c.cur = nil

	n, err := io.CopyN(io.Discard, body, maxDrainBytes+1)
	if err != nil && !errors.Is(err, io.EOF) {
		return ncerr.IO("read", c.remote, err)
	}
	if n > maxDrainBytes {
		return io.EOF
	}
	return nil
}

func (c *http1Conn) release() {
	c.cur = nil
	util.PutReader(c.br)
	util.PutWriter(c.bw)
	c.br, c.bw = nil, nil
}
