package tunnel

// forward.go - remote port forward listener.
//
// ssh.Client.Listen matches forwarded-tcpip channels against the exact
// bind address it sent.  Gateways that echo back a different address
// (0.0.0.0 for "") would have every channel rejected, so the listener
// below registers its own forwarded-tcpip handler and sends the
// tcpip-forward request itself.

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "microservice/internal/errors"
)

// ── Wire format structs (RFC 4254) ──────────────────────────────────

// channelForwardMsg is the payload of "tcpip-forward" and
// "cancel-tcpip-forward" (RFC 4254 §7.1).
type channelForwardMsg struct {
	Addr string
	Port uint32
}

// forwardReply is the reply to "tcpip-forward" when port 0 was asked.
type forwardReply struct {
	Port uint32
}

// forwardedTCPPayload is the channel-open payload for
// "forwarded-tcpip" (RFC 4254 §7.2).
type forwardedTCPPayload struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

// ── forwardListener ─────────────────────────────────────────────────

// forwardListener implements [net.Listener] over forwarded-tcpip
// channels.
type forwardListener struct {
	client   *ssh.Client
	bindAddr string
	bindPort uint32
	incoming <-chan ssh.NewChannel
	done     chan struct{}
	once     sync.Once
}

// Accept waits for the next connection forwarded by the gateway.  It
// returns net.ErrClosed after Close and ErrTunnelClosed once the SSH
// connection is gone.  A channel that fails to open is returned as a
// plain error; the listener stays usable.
func (l *forwardListener) Accept() (net.Conn, error) {
	var newCh ssh.NewChannel
	select {
	case <-l.done:
		return nil, net.ErrClosed
	case ch, ok := <-l.incoming:
		if !ok {
			return nil, ncerr.ErrTunnelClosed
		}
		newCh = ch
	}

	ch, reqs, err := newCh.Accept()
	if err != nil {
		return nil, fmt.Errorf("open forwarded-tcpip channel: %w", err)
	}
	go ssh.DiscardRequests(reqs)

	raddr := &net.TCPAddr{}
	var payload forwardedTCPPayload
	if err := ssh.Unmarshal(newCh.ExtraData(), &payload); err == nil {
		raddr = &net.TCPAddr{
			IP:   net.ParseIP(payload.OriginAddr),
			Port: int(payload.OriginPort),
		}
	}
	return &chanConn{Channel: ch, laddr: l.Addr(), raddr: raddr}, nil
}

// Close cancels the remote port forward and unblocks Accept.
func (l *forwardListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		msg := channelForwardMsg{Addr: l.bindAddr, Port: l.bindPort}
		l.client.SendRequest("cancel-tcpip-forward", true, ssh.Marshal(&msg)) //nolint:errcheck
	})
	return nil
}

// Addr returns the address the gateway listens on.
func (l *forwardListener) Addr() net.Addr {
	return &gatewayAddr{host: l.bindAddr, port: int(l.bindPort)}
}

// gatewayAddr is an address on the gateway; the host may be a name.
type gatewayAddr struct {
	host string
	port int
}

func (a *gatewayAddr) Network() string { return "tcp" }
func (a *gatewayAddr) String() string  { return net.JoinHostPort(a.host, strconv.Itoa(a.port)) }

// ── chanConn ─────────────────────────────────────────────────────────

// chanConn wraps an [ssh.Channel] to satisfy [net.Conn].  Channels have
// no deadlines; the deadline setters accept and ignore them, and a
// stuck channel is released by closing it.
type chanConn struct {
	ssh.Channel
	laddr net.Addr
	raddr net.Addr
}

func (c *chanConn) LocalAddr() net.Addr                { return c.laddr }
func (c *chanConn) RemoteAddr() net.Addr               { return c.raddr }
func (c *chanConn) SetDeadline(_ time.Time) error      { return nil }
func (c *chanConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *chanConn) SetWriteDeadline(_ time.Time) error { return nil }

// ── Constructor ──────────────────────────────────────────────────────

// listenRemoteForward sends a tcpip-forward request and returns a
// listener that receives every forwarded-tcpip channel.  A zero
// bindPort lets the gateway choose; the chosen port is reported by
// Addr.
func listenRemoteForward(client *ssh.Client, bindAddr string, bindPort int) (net.Listener, error) {
	incoming := client.HandleChannelOpen("forwarded-tcpip")
	if incoming == nil {
		return nil, fmt.Errorf("forwarded-tcpip handler already registered")
	}

	msg := channelForwardMsg{Addr: bindAddr, Port: uint32(bindPort)}
	ok, reply, err := client.SendRequest("tcpip-forward", true, ssh.Marshal(&msg))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tcpip-forward %s denied by gateway",
			net.JoinHostPort(bindAddr, strconv.Itoa(bindPort)))
	}

	port := uint32(bindPort)
	if port == 0 {
		var r forwardReply
		if err := ssh.Unmarshal(reply, &r); err == nil {
			port = r.Port
		}
	}

	return &forwardListener{
		client:   client,
		bindAddr: bindAddr,
		bindPort: port,
		incoming: incoming,
		done:     make(chan struct{}),
	}, nil
}
