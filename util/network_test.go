package util

import (
	"testing"
)

func TestFormatAddr(t *testing.T) {
	if got := FormatAddr("1.2.3.4", 22); got != "1.2.3.4:22" {
		t.Errorf("got %q, want %q", got, "1.2.3.4:22")
	}
	if got := FormatAddr("::1", 8080); got != "[::1]:8080" {
		t.Errorf("got %q, want %q", got, "[::1]:8080")
	}
}

func TestSplitAddr(t *testing.T) {
	tests := []struct {
		addr     string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"127.0.0.1:8080", "127.0.0.1", 8080, false},
		{":9000", "", 9000, false},
		{"[::1]:0", "::1", 0, false},
		{"localhost", "", 0, true},
		{"host:http", "", 0, true},
		{"host:70000", "", 0, true},
	}

	for _, tt := range tests {
		host, port, err := SplitAddr(tt.addr)
		if (err != nil) != tt.wantErr {
			t.Errorf("SplitAddr(%q) err=%v wantErr=%v", tt.addr, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("SplitAddr(%q) = %q,%d want %q,%d",
				tt.addr, host, port, tt.wantHost, tt.wantPort)
		}
	}
}

func TestFindFreePort(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	if port < 1 || port > 65535 {
		t.Errorf("port %d out of range", port)
	}
}
