package router

import (
	"io"
	"net/http"
	"strconv"
)

// FromHTTP converts a net/http request into a [Request].  The body is
// passed through untouched.
func FromHTTP(r *http.Request) *Request {
	body := io.Reader(r.Body)
	if r.Body == nil {
		body = http.NoBody
	}
	return &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		Proto:      r.Proto,
		Header:     r.Header,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
	}
}

// WriteHTTP encodes resp onto a net/http response writer.
func WriteHTTP(w http.ResponseWriter, resp *Response) error {
	h := w.Header()
	for k, vv := range resp.Header {
		h[k] = append([]string(nil), vv...)
	}
	if n := resp.ContentLength(); n >= 0 {
		h.Set("Content-Length", strconv.FormatInt(n, 10))
	}
	w.WriteHeader(resp.Status)

	if resp.Stream != nil {
		_, err := io.Copy(w, resp.Stream)
		return err
	}
	_, err := w.Write(resp.Body)
	return err
}

// HTTPHandler exposes h as a net/http handler.  The HTTP/2 codec and
// platforms that invoke plain Go handler functions both go through it.
func HTTPHandler(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := h.ServeRequest(r.Context(), FromHTTP(r))
		WriteHTTP(w, resp) //nolint:errcheck // the peer is gone; nothing left to report to
	})
}
