package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "microservice/internal/errors"
	"microservice/util"
)

// SSHConfig holds everything needed to dial an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// KeepAliveInterval is how often keepalive@openssh.com is sent.  A
	// failed keepalive closes the connection so listeners notice.
	// Zero disables keepalives.
	KeepAliveInterval time.Duration

	// AllowKeyboardInteractive adds keyboard-interactive with empty
	// answers as a last auth method.  Public tunnel services
	// (serveo.net, localhost.run) authenticate that way.
	AllowKeyboardInteractive bool
}

// Addr returns the gateway address as host:port.
func (c *SSHConfig) Addr() string {
	return util.FormatAddr(c.Host, c.Port)
}

// SSHTunnel implements [Tunnel] over golang.org/x/crypto/ssh.
type SSHTunnel struct {
	config *SSHConfig
	client *ssh.Client
	logger *util.Logger
	mu     sync.RWMutex
	alive  bool
}

// NewSSHTunnel creates a tunnel that is ready to [Connect].
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHTunnel{config: cfg, logger: logger}
}

// Connect dials the SSH gateway and completes the handshake.  A tunnel
// that is already connected is replaced.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	authMethods, err := BuildAuthMethods(t.config)
	if err != nil {
		return ncerr.WrapSSH("auth", t.config.Host, t.config.Port, err)
	}

	hkCallback, err := hostKeyCallback(t.config)
	if err != nil {
		return ncerr.WrapSSH("hostkey", t.config.Host, t.config.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            t.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         t.config.ConnTimeout,
		// Tunnel services print the public URL in the pre-auth banner.
		BannerCallback: func(message string) error {
			t.logger.Info("gateway: %s", strings.TrimSpace(message))
			return nil
		},
	}

	addr := t.config.Addr()
	t.logger.Debug("SSH: dialing %s as %s", addr, t.config.User)

	dialer := net.Dialer{Timeout: t.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ncerr.WrapSSH("dial", t.config.Host, t.config.Port, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return ncerr.WrapSSH("handshake", t.config.Host, t.config.Port, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	t.mu.Lock()
	old := t.client
	t.client = client
	t.alive = true
	t.mu.Unlock()
	if old != nil {
		old.Close()
	}

	go t.monitor(client)
	go t.drainServerMessages(client)
	if t.config.KeepAliveInterval > 0 {
		go t.keepalive(client, t.config.KeepAliveInterval)
	}
	return nil
}

// Listen implements [Tunnel].
func (t *SSHTunnel) Listen(bindAddr string, port int) (net.Listener, error) {
	t.mu.RLock()
	client, alive := t.client, t.alive
	t.mu.RUnlock()

	if !alive || client == nil {
		return nil, ncerr.ErrNotConnected
	}
	ln, err := listenRemoteForward(client, bindAddr, port)
	if err != nil {
		return nil, ncerr.WrapSSH("tcpip-forward", t.config.Host, t.config.Port, err)
	}
	return ln, nil
}

// Close shuts down the SSH connection.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the tunnel is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// monitor blocks until client's connection closes and flips the alive
// flag if client is still the current one.
func (t *SSHTunnel) monitor(client *ssh.Client) {
	err := client.Wait()

	t.mu.Lock()
	if t.client == client {
		t.alive = false
	}
	t.mu.Unlock()

	if err != nil && !util.IsClosed(err) {
		t.logger.Verbose("SSH tunnel closed: %v", err)
	} else {
		t.logger.Debug("SSH tunnel closed")
	}
}

// keepalive pings the gateway every interval.  The first failure closes
// client, which ends every listener and channel on it.
func (t *SSHTunnel) keepalive(client *ssh.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		t.mu.RLock()
		current := t.client == client && t.alive
		t.mu.RUnlock()
		if !current {
			return
		}
		if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			t.logger.Warn("SSH keepalive to %s failed: %v", t.config.Addr(), err)
			client.Close()
			return
		}
		t.logger.Debug("SSH keepalive OK")
	}
}

// drainServerMessages copies the gateway's session output to the log.
// Tunnel services report the generated public URL this way; gateways
// that refuse sessions are ignored.
func (t *SSHTunnel) drainServerMessages(client *ssh.Client) {
	sess, err := client.NewSession()
	if err != nil {
		t.logger.Debug("SSH: no session for gateway messages: %v", err)
		return
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return
	}
	_ = sess.Shell()

	var wg sync.WaitGroup
	wg.Add(2)
	go t.logStream(&wg, stdout)
	go t.logStream(&wg, stderr)
	wg.Wait()
}

func (t *SSHTunnel) logStream(wg *sync.WaitGroup, r io.Reader) {
	defer wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if msg := strings.TrimSpace(string(buf[:n])); msg != "" {
				t.logger.Info("gateway: %s", msg)
			}
		}
		if err != nil {
			return
		}
	}
}

// String describes the tunnel for log lines.
func (t *SSHTunnel) String() string {
	return fmt.Sprintf("%s@%s", t.config.User, t.config.Addr())
}
