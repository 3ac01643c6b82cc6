// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of the server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// recentErrorLimit bounds the error history kept for snapshots.
const recentErrorLimit = 8

// Collector tracks runtime metrics for one server.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	http1Conns        atomic.Int64
	http2Conns        atomic.Int64
	requestsTotal     atomic.Int64
	bytesOut          atomic.Int64
	tunnelReconnects  atomic.Int64

	errs [numErrorKinds]atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
	recent       *queue.Queue // of string, oldest first
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now(), recent: queue.New()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// Negotiated records which protocol a connection settled on.
func (c *Collector) Negotiated(proto string) {
	if c == nil {
		return
	}
	if proto == "HTTP/2.0" {
		c.http2Conns.Add(1)
	} else {
		c.http1Conns.Add(1)
	}
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── Exchange metrics ─────────────────────────────────────────────────

// RequestServed records one completed request/response exchange.
func (c *Collector) RequestServed(bytesOut int64) {
	if c == nil {
		return
	}
	c.requestsTotal.Add(1)
	if bytesOut > 0 {
		c.bytesOut.Add(bytesOut)
	}
}

// TotalRequests returns the number of exchanges completed.
func (c *Collector) TotalRequests() int64 {
	if c == nil {
		return 0
	}
	return c.requestsTotal.Load()
}

// TotalBytesOut returns total response body bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Tunnel metrics ───────────────────────────────────────────────────

// TunnelReconnect records a tunnel (re)connection attempt.
func (c *Collector) TunnelReconnect() {
	if c == nil {
		return
	}
	c.tunnelReconnects.Add(1)
}

// TunnelReconnects returns the total tunnel reconnection count.
func (c *Collector) TunnelReconnects() int64 {
	if c == nil {
		return 0
	}
	return c.tunnelReconnects.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// ErrorKind classifies recorded errors.
type ErrorKind int

const (
	ErrAccept   ErrorKind = iota // listener Accept failed
	ErrProtocol                  // peer spoke malformed HTTP
	ErrIO                        // socket read/write failed mid-session
	ErrHandler                   // handler panicked or failed

	numErrorKinds
)

var errorKindNames = [numErrorKinds]string{"accept", "protocol", "io", "handler"}

func (k ErrorKind) String() string {
	if k < 0 || k >= numErrorKinds {
		return "unknown"
	}
	return errorKindNames[k]
}

// RecordError increments the counter for kind and keeps msg as the
// most recent error.  Unknown kinds only update the last error.
func (c *Collector) RecordError(kind ErrorKind, msg string) {
	if c == nil {
		return
	}
	if kind >= 0 && kind < numErrorKinds {
		c.errs[kind].Add(1)
	}
	entry := kind.String() + ": " + msg

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = time.Now()
	c.lastErrorMsg = entry
	if c.recent == nil {
		c.recent = queue.New()
	}
	c.recent.Add(entry)
	if c.recent.Length() > recentErrorLimit {
		c.recent.Remove()
	}
}

// Errors returns the count recorded for one kind.
func (c *Collector) Errors(kind ErrorKind) int64 {
	if c == nil || kind < 0 || kind >= numErrorKinds {
		return 0
	}
	return c.errs[kind].Load()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	var n int64
	for k := ErrorKind(0); k < numErrorKinds; k++ {
		n += c.Errors(k)
	}
	return n
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string   `json:"uptime"`
	ConnectionsActive int64    `json:"connections_active"`
	ConnectionsTotal  int64    `json:"connections_total"`
	HTTP1Connections  int64    `json:"http1_connections"`
	HTTP2Connections  int64    `json:"http2_connections"`
	RequestsTotal     int64    `json:"requests_total"`
	BytesOut          int64    `json:"bytes_out"`
	TunnelReconnects  int64    `json:"tunnel_reconnects,omitempty"`
	AcceptErrors      int64    `json:"accept_errors"`
	ProtocolErrors    int64    `json:"protocol_errors"`
	IOErrors          int64    `json:"io_errors"`
	HandlerErrors     int64    `json:"handler_errors"`
	LastError         string   `json:"last_error,omitempty"`
	LastErrorMessage  string   `json:"last_error_message,omitempty"`
	RecentErrors      []string `json:"recent_errors,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		HTTP1Connections:  c.http1Conns.Load(),
		HTTP2Connections:  c.http2Conns.Load(),
		RequestsTotal:     c.requestsTotal.Load(),
		BytesOut:          c.bytesOut.Load(),
		TunnelReconnects:  c.tunnelReconnects.Load(),
		AcceptErrors:      c.errs[ErrAccept].Load(),
		ProtocolErrors:    c.errs[ErrProtocol].Load(),
		IOErrors:          c.errs[ErrIO].Load(),
		HandlerErrors:     c.errs[ErrHandler].Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	if c.recent != nil {
		for i := 0; i < c.recent.Length(); i++ {
			s.RecentErrors = append(s.RecentErrors, c.recent.Get(i).(string))
		}
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
