// Package router holds the request/response model and the service's
// one handler: a pure match over (method, path).
//
// The handler touches no shared mutable state, so sessions call it
// concurrently without synchronization.  It is total: every request
// gets a well-formed response, never an error.
package router

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// Request is an immutable view of one decoded request.  The negotiator
// builds it per exchange and nothing keeps it after the handler returns.
type Request struct {
	Method     string
	Path       string
	RawQuery   string
	Proto      string // "HTTP/1.1", "HTTP/2.0", ...
	Header     http.Header
	Body       io.Reader // never nil
	RemoteAddr string
}

// Response is built by a handler and handed to the negotiator for
// encoding.  It must not be mutated after it is returned.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// Stream, when non-nil, replaces Body and is copied to the client
	// with an unknown length.
	Stream io.Reader
}

// ContentLength returns the body length, or -1 for a streamed body.
func (r *Response) ContentLength() int64 {
	if r.Stream != nil {
		return -1
	}
	return int64(len(r.Body))
}

// BodyReader returns the body as a reader regardless of its form.
func (r *Response) BodyReader() io.Reader {
	if r.Stream != nil {
		return r.Stream
	}
	return bytes.NewReader(r.Body)
}

// Handler turns a request into a response.
type Handler interface {
	ServeRequest(ctx context.Context, req *Request) *Response
}

// HandlerFunc adapts an ordinary function to [Handler].
type HandlerFunc func(ctx context.Context, req *Request) *Response

// ServeRequest calls f(ctx, req).
func (f HandlerFunc) ServeRequest(ctx context.Context, req *Request) *Response {
	return f(ctx, req)
}

type route struct {
	method string
	path   string
}

// Router dispatches on the exact (method, path) pair.  Anything without
// a route gets [NotFound].
type Router struct {
	routes map[route]HandlerFunc
}

// New returns the service's routing table.
func New() *Router {
	return &Router{routes: map[route]HandlerFunc{
		{http.MethodGet, "/"}: Index,
	}}
}

// ServeRequest implements [Handler].
func (rt *Router) ServeRequest(ctx context.Context, req *Request) *Response {
	if h, ok := rt.routes[route{req.Method, req.Path}]; ok {
		return h(ctx, req)
	}
	return NotFound(ctx, req)
}

// Index serves the landing page.
func Index(context.Context, *Request) *Response {
	return &Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/html"}},
		Body:   []byte(IndexHTML),
	}
}

// NotFound is the response for every unrouted request.
func NotFound(context.Context, *Request) *Response {
	return &Response{
		Status: http.StatusNotFound,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte(NotFoundBody),
	}
}

// InternalError is the response substituted for a failed handler.
func InternalError() *Response {
	return &Response{
		Status: http.StatusInternalServerError,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte(InternalErrorBody),
	}
}
