package proto

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/http2"

	ncerr "microservice/internal/errors"
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantH2  bool
		wantErr error
	}{
		{"http1 get", "GET / HTTP/1.1\r\nHost: x\r\n\r\n", false, nil},
		{"one byte", "G", false, nil},
		{"preface", http2.ClientPreface, true, nil},
		{"preface and frames", http2.ClientPreface + "\x00\x00\x00\x04\x00\x00\x00\x00\x00", true, nil},
		{"diverges late", "PRI * HTTP/2.0\r\n\r\nXX", false, nil},
		{"truncated preface", "PRI * HTTP/2.0\r\n", false, errTruncatedPreface},
		{"empty", "", false, io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := bufio.NewReader(strings.NewReader(tt.input))
			got, err := sniff(br)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.wantH2 {
				t.Errorf("h2 = %v, want %v", got, tt.wantH2)
			}
		})
	}
}

// TestSniff_NoConsume checks that sniffing leaves every byte in the
// buffer for the chosen codec.
func TestSniff_NoConsume(t *testing.T) {
	input := "GET / HTTP/1.1\r\n\r\n"
	br := bufio.NewReader(strings.NewReader(input))
	if _, err := sniff(br); err != nil {
		t.Fatal(err)
	}
	rest, _ := io.ReadAll(br)
	if string(rest) != input {
		t.Errorf("buffer = %q, want %q", rest, input)
	}
}

// negotiatePipe runs Negotiate on one end of a pipe while write feeds
// the other end.
func negotiatePipe(t *testing.T, opts *Options, write func(c net.Conn)) (Conn, error) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	go write(client)

	type result struct {
		conn Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := Negotiate(server, opts)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-time.After(3 * time.Second):
		t.Fatal("Negotiate blocked")
		return nil, nil
	}
}

// TestNegotiate_ShortRequest verifies a request shorter than the
// preface is recognised without waiting for more input.
func TestNegotiate_ShortRequest(t *testing.T) {
	c, err := negotiatePipe(t, &Options{}, func(c net.Conn) {
		c.Write([]byte("GET / HTTP/1.0\r\n\r\n")) //nolint:errcheck
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Proto() != HTTP1 {
		t.Errorf("Proto = %q, want %q", c.Proto(), HTTP1)
	}
}

func TestNegotiate_Preface(t *testing.T) {
	c, err := negotiatePipe(t, &Options{}, func(c net.Conn) {
		c.Write([]byte(http2.ClientPreface)) //nolint:errcheck
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Proto() != HTTP2 {
		t.Errorf("Proto = %q, want %q", c.Proto(), HTTP2)
	}
}

func TestNegotiate_HTTP1Only(t *testing.T) {
	_, err := negotiatePipe(t, &Options{HTTP1Only: true}, func(c net.Conn) {
		c.Write([]byte(http2.ClientPreface)) //nolint:errcheck
	})
	var pe *ncerr.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ProtocolError", err)
	}
	if pe.Proto != HTTP2 {
		t.Errorf("Proto = %q", pe.Proto)
	}
}

func TestNegotiate_ClosedBeforeData(t *testing.T) {
	_, err := negotiatePipe(t, &Options{}, func(c net.Conn) {
		c.Close()
	})
	if !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestNegotiate_TruncatedPreface(t *testing.T) {
	_, err := negotiatePipe(t, &Options{}, func(c net.Conn) {
		c.Write([]byte("PRI * HTTP/2.0\r\n")) //nolint:errcheck
		c.Close()
	})
	if !errors.Is(err, ncerr.ErrBadPreface) {
		t.Errorf("err = %v, want ErrBadPreface", err)
	}
	if !ncerr.IsProtocol(err) {
		t.Errorf("IsProtocol(%v) = false", err)
	}
}

func TestNegotiate_IdleTimeout(t *testing.T) {
	_, err := negotiatePipe(t, &Options{IdleTimeout: 50 * time.Millisecond}, func(net.Conn) {})
	var ioe *ncerr.IOError
	if !errors.As(err, &ioe) {
		t.Fatalf("err = %v, want *IOError", err)
	}
}

func TestConnReader_Limit(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go client.Write([]byte("0123456789")) //nolint:errcheck

	cr := &connReader{conn: server}
	cr.setLimit(4)
	buf := make([]byte, 10)
	n, err := cr.Read(buf)
	if err != nil || n != 4 {
		t.Fatalf("Read = %d, %v; want 4, nil", n, err)
	}
	if _, err := cr.Read(buf); !errors.Is(err, errHeadTooLarge) {
		t.Errorf("err = %v, want errHeadTooLarge", err)
	}

	cr.unlimit()
	n, err = cr.Read(buf)
	if err != nil || string(buf[:n]) != "456789" {
		t.Errorf("Read after unlimit = %q, %v", buf[:n], err)
	}
}
