// Package invoke runs the request handler on serverless-style events
// instead of sockets.  An [Event] carries one request as JSON and the
// handler's response comes back as a [Result]; the router sees the same
// [router.Request] it would get from a connection.
package invoke

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	ncerr "microservice/internal/errors"
	"microservice/internal/router"
	"microservice/util"
)

// Event is one invocation request.
type Event struct {
	Method          string            `json:"method"`
	Path            string            `json:"path"`
	Query           string            `json:"query,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	IsBase64Encoded bool              `json:"isBase64Encoded,omitempty"`
}

// Result is the handler's response to an Event.  Bodies that are not
// valid UTF-8 are base64 encoded.
type Result struct {
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body"`
	IsBase64Encoded bool              `json:"isBase64Encoded,omitempty"`
}

// maxEventBytes bounds one line of input.
const maxEventBytes = 6 << 20

// Request converts ev into the router's request type.
func (ev *Event) Request() (*router.Request, error) {
	body := []byte(ev.Body)
	if ev.IsBase64Encoded {
		var err error
		body, err = base64.StdEncoding.DecodeString(ev.Body)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
	}

	method := ev.Method
	if method == "" {
		method = http.MethodGet
	}
	path, query := ev.Path, ev.Query
	if i := strings.IndexByte(path, '?'); i >= 0 && query == "" {
		path, query = path[:i], path[i+1:]
	}
	if path == "" {
		path = "/"
	}

	header := make(http.Header, len(ev.Headers))
	for k, v := range ev.Headers {
		header.Set(k, v)
	}

	return &router.Request{
		Method:     method,
		Path:       path,
		RawQuery:   query,
		Proto:      "HTTP/1.1",
		Header:     header,
		Body:       bytes.NewReader(body),
		RemoteAddr: "invoke",
	}, nil
}

// Invoke runs h on ev.  A malformed event is a *ProtocolError; the
// handler itself cannot fail.
func Invoke(ctx context.Context, h router.Handler, ev *Event) (*Result, error) {
	req, err := ev.Request()
	if err != nil {
		return nil, ncerr.Protocol("", "event", err)
	}
	return NewResult(h.ServeRequest(ctx, req))
}

// NewResult encodes resp.  Multi-valued headers are joined with ", ".
func NewResult(resp *router.Response) (*Result, error) {
	body, err := io.ReadAll(resp.BodyReader())
	if err != nil {
		return nil, ncerr.IO("read", "invoke", err)
	}

	res := &Result{StatusCode: resp.Status}
	if len(resp.Header) > 0 {
		res.Headers = make(map[string]string, len(resp.Header))
		for k, vv := range resp.Header {
			res.Headers[k] = strings.Join(vv, ", ")
		}
	}
	if utf8.Valid(body) {
		res.Body = string(body)
	} else {
		res.Body = base64.StdEncoding.EncodeToString(body)
		res.IsBase64Encoded = true
	}
	return res, nil
}

// Serve reads newline-delimited events from r and writes one Result per
// event to w, in order.  A line that is not a valid event is answered
// with a 400 result and logged; blank lines are skipped.  Serve returns
// at EOF, on a write error, or when ctx is done.
func Serve(ctx context.Context, h router.Handler, r io.Reader, w io.Writer, logger *util.Logger) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, util.DefaultBufSize), maxEventBytes)
	bw := util.GetWriter(w)
	defer util.PutWriter(bw)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	for n := 1; sc.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		res, err := handleLine(ctx, h, line)
		if err != nil {
			logger.Warn("event %d: %v", n, err)
			res = badEvent(err)
		}
		if err := enc.Encode(res); err != nil {
			return ncerr.IO("write", "invoke", err)
		}
		if err := bw.Flush(); err != nil {
			return ncerr.IO("write", "invoke", err)
		}
	}
	if err := sc.Err(); err != nil {
		return ncerr.IO("read", "invoke", err)
	}
	return nil
}

func handleLine(ctx context.Context, h router.Handler, line []byte) (*Result, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, ncerr.Protocol("", "event", err)
	}
	return Invoke(ctx, h, &ev)
}

func badEvent(err error) *Result {
	return &Result{
		StatusCode: http.StatusBadRequest,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       "400 Bad Request: " + err.Error(),
	}
}
