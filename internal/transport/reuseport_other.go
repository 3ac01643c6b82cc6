//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package transport

import (
	"errors"
	"syscall"
)

func setReusePort(syscall.RawConn) error {
	return errors.New("SO_REUSEPORT is not supported on this platform")
}
