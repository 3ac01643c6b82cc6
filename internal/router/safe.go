package router

import (
	"context"
	"fmt"

	ncerr "microservice/internal/errors"
)

// FallibleFunc is a handler that may fail.
type FallibleFunc func(ctx context.Context, req *Request) (*Response, error)

// Fallible makes f total: an error (or a nil response) becomes a 500
// response and is passed to report as a *HandlerError.  report may be
// nil.
func Fallible(f FallibleFunc, report func(error)) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) *Response {
		resp, err := f(ctx, req)
		if err == nil && resp == nil {
			err = fmt.Errorf("nil response")
		}
		if err != nil {
			if report != nil {
				report(ncerr.Handler(req.Method, req.Path, err))
			}
			return InternalError()
		}
		return resp
	})
}

// Recover converts a panic in h into a 500 response so that one bad
// request never takes its connection down.
func Recover(h Handler, report func(error)) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (resp *Response) {
		defer func() {
			if v := recover(); v != nil {
				if report != nil {
					report(ncerr.Handler(req.Method, req.Path, fmt.Errorf("panic: %v", v)))
				}
				resp = InternalError()
			}
		}()
		resp = h.ServeRequest(ctx, req)
		if resp == nil {
			if report != nil {
				report(ncerr.Handler(req.Method, req.Path, fmt.Errorf("nil response")))
			}
			resp = InternalError()
		}
		return resp
	})
}
