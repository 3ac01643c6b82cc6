package errors

import (
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
)

func TestTaxonomy_Format(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "bind",
			err:  Bind("127.0.0.1:8080", fmt.Errorf("address already in use")),
			want: "bind 127.0.0.1:8080: address already in use",
		},
		{
			name: "accept retryable",
			err:  &AcceptError{Addr: ":8080", Err: io.EOF, Retryable: true},
			want: "accept :8080: EOF (retryable)",
		},
		{
			name: "protocol before negotiation",
			err:  Protocol("", "10.0.0.1:5000", ErrBadPreface),
			want: "protocol error from 10.0.0.1:5000: malformed connection preface",
		},
		{
			name: "protocol http1",
			err:  Protocol("HTTP/1.1", "10.0.0.1:5000", fmt.Errorf("bad request line")),
			want: "HTTP/1.1 protocol error from 10.0.0.1:5000: bad request line",
		},
		{
			name: "io",
			err:  IO("write", "10.0.0.1:5000", io.ErrShortWrite),
			want: "write 10.0.0.1:5000: short write",
		},
		{
			name: "handler",
			err:  Handler("GET", "/", fmt.Errorf("boom")),
			want: "handler GET /: boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTaxonomy_Unwrap(t *testing.T) {
	for _, err := range []error{
		Bind("x", io.EOF),
		Accept("x", io.EOF),
		Protocol("", "x", io.EOF),
		IO("read", "x", io.EOF),
		Handler("GET", "/", io.EOF),
		WrapSSH("auth", "host", 22, io.EOF),
	} {
		if !Is(err, io.EOF) {
			t.Errorf("%T should unwrap to io.EOF", err)
		}
	}
}

func TestSSHError_Format(t *testing.T) {
	err := WrapSSH("handshake", "bastion.example.com", 22, fmt.Errorf("connection refused"))
	want := "ssh handshake bastion.example.com:22: connection refused"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value",
			err:  ConfigError{Field: "port", Value: 70000, Message: "out of range"},
			want: "config: --port=70000: out of range",
		},
		{
			name: "with hint",
			err:  ConfigError{Field: "remote-port", Message: "required with --tunnel", Hint: "add --remote-port 8080"},
			want: "config: --remote-port: required with --tunnel\n  hint: add --remote-port 8080",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if IsRetryable(io.EOF) {
		t.Error("io.EOF should not be retryable")
	}
	if !IsRetryable(&AcceptError{Err: io.EOF, Retryable: true}) {
		t.Error("AcceptError with Retryable=true should be retryable")
	}

	// Running out of file descriptors clears once sessions close.
	opErr := &net.OpError{Op: "accept", Net: "tcp", Err: syscall.EMFILE}
	if !Accept(":0", opErr).Retryable {
		t.Error("EMFILE accept error should be retryable")
	}
}

func TestIsProtocol(t *testing.T) {
	wrapped := fmt.Errorf("session: %w", Protocol("", "x", ErrBadPreface))
	if !IsProtocol(wrapped) {
		t.Error("wrapped ProtocolError should be detected")
	}
	if IsProtocol(IO("read", "x", io.EOF)) {
		t.Error("IOError is not a ProtocolError")
	}
	if !Is(wrapped, ErrBadPreface) {
		t.Error("should unwrap to ErrBadPreface")
	}
}
