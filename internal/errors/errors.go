// Package errors provides the service's error taxonomy.
//
// Every per-connection failure is one of these types so the accept loop
// and sessions can decide, by type alone, whether a failure is fatal
// (BindError), skipped (AcceptError), or contained to one connection
// (ProtocolError, IOError, HandlerError).
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrTunnelClosed = errors.New("tunnel is closed")
	ErrNotConnected = errors.New("not connected")
	ErrBadPreface   = errors.New("malformed connection preface")
)

// ── Structured error types ───────────────────────────────────────────

// BindError reports that the listening address could not be bound.  It
// is the only error allowed to reach the process boundary.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// AcceptError reports a failed accept() call.  The loop logs it and
// keeps accepting.
type AcceptError struct {
	Addr      string
	Err       error
	Retryable bool
}

func (e *AcceptError) Error() string {
	s := fmt.Sprintf("accept %s: %v", e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *AcceptError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed preface or framing violation.  It
// terminates only the connection it happened on.
type ProtocolError struct {
	Proto  string // "HTTP/1.1", "HTTP/2.0", or "" before negotiation
	Remote string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Proto == "" {
		return fmt.Sprintf("protocol error from %s: %v", e.Remote, e.Err)
	}
	return fmt.Sprintf("%s protocol error from %s: %v", e.Proto, e.Remote, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IOError reports a read or write failure mid-exchange.
type IOError struct {
	Op     string // "read", "write", "flush"
	Remote string
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Remote, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// HandlerError reports a failure inside a fallible handler.  It is
// mapped to a 500 response and never ends the session.
type HandlerError struct {
	Method string
	Path   string
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "forward"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Bind wraps a listen failure.
func Bind(addr string, err error) *BindError {
	return &BindError{Addr: addr, Err: err}
}

// Accept wraps an accept failure, detecting retryability from the
// underlying error.
func Accept(addr string, err error) *AcceptError {
	return &AcceptError{Addr: addr, Err: err, Retryable: classifyRetryable(err)}
}

// Protocol wraps a framing or preface failure.
func Protocol(proto, remote string, err error) *ProtocolError {
	return &ProtocolError{Proto: proto, Remote: remote, Err: err}
}

// IO wraps a mid-exchange read or write failure.
func IO(op, remote string, err error) *IOError {
	return &IOError{Op: op, Remote: remote, Err: err}
}

// Handler wraps a handler failure.
func Handler(method, path string, err error) *HandlerError {
	return &HandlerError{Method: method, Path: path, Err: err}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ae *AcceptError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return classifyRetryable(err)
}

// IsProtocol reports whether err is a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	// net.OpError with Temporary() hint
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// Callers that already import this package as ncerr use these instead
// of a second errors import.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }
