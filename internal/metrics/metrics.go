// Package metrics provides lightweight, lock-free counters for the
// activity of FTP sessions: connections, commands, replies, transfers
// and bytes moved.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one or more sessions.
type Collector struct {
	controlActive atomic.Int64
	controlTotal  atomic.Int64
	dataTotal     atomic.Int64
	commands      atomic.Int64
	replies       [6]atomic.Int64 // indexed by first digit of the code
	transfersOK   atomic.Int64
	transfersFail atomic.Int64
	bytesDown     atomic.Int64
	bytesUp       atomic.Int64
	errorsTotal   atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ControlOpened records a new control connection.
func (c *Collector) ControlOpened() {
	if c == nil {
		return
	}
	c.controlActive.Add(1)
	c.controlTotal.Add(1)
}

// ControlClosed decrements the active control connection counter.
func (c *Collector) ControlClosed() {
	if c == nil {
		return
	}
	c.controlActive.Add(-1)
}

// DataOpened records a passive data connection.
func (c *Collector) DataOpened() {
	if c == nil {
		return
	}
	c.dataTotal.Add(1)
}

// ActiveControl returns the number of open control connections.
func (c *Collector) ActiveControl() int64 {
	if c == nil {
		return 0
	}
	return c.controlActive.Load()
}

// ── Protocol metrics ─────────────────────────────────────────────────

// CommandSent counts one command written to a control channel.
func (c *Collector) CommandSent() {
	if c == nil {
		return
	}
	c.commands.Add(1)
}

// ReplyReceived counts one reply by its class.
func (c *Collector) ReplyReceived(code int) {
	if c == nil {
		return
	}
	class := code / 100
	if class < 1 || class > 5 {
		return
	}
	c.replies[class].Add(1)
}

// Commands returns the number of commands sent.
func (c *Collector) Commands() int64 {
	if c == nil {
		return 0
	}
	return c.commands.Load()
}

// Replies returns the number of replies whose code starts with class.
func (c *Collector) Replies(class int) int64 {
	if c == nil || class < 1 || class > 5 {
		return 0
	}
	return c.replies[class].Load()
}

// ── Transfer metrics ─────────────────────────────────────────────────

// TransferFinished records the outcome of one data transfer.
func (c *Collector) TransferFinished(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.transfersOK.Add(1)
	} else {
		c.transfersFail.Add(1)
	}
}

// BytesDownloaded records n bytes read from a data connection.
func (c *Collector) BytesDownloaded(n int64) {
	if c == nil {
		return
	}
	c.bytesDown.Add(n)
}

// BytesUploaded records n bytes written to a data connection.
func (c *Collector) BytesUploaded(n int64) {
	if c == nil {
		return
	}
	c.bytesUp.Add(n)
}

// TotalBytesDown returns total bytes downloaded.
func (c *Collector) TotalBytesDown() int64 {
	if c == nil {
		return 0
	}
	return c.bytesDown.Load()
}

// TotalBytesUp returns total bytes uploaded.
func (c *Collector) TotalBytesUp() int64 {
	if c == nil {
		return 0
	}
	return c.bytesUp.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string   `json:"uptime"`
	ControlActive    int64    `json:"control_active"`
	ControlTotal     int64    `json:"control_total"`
	DataConnections  int64    `json:"data_connections"`
	Commands         int64    `json:"commands"`
	Replies          [5]int64 `json:"replies_by_class"`
	TransfersOK      int64    `json:"transfers_ok"`
	TransfersFailed  int64    `json:"transfers_failed"`
	BytesDown        int64    `json:"bytes_down"`
	BytesUp          int64    `json:"bytes_up"`
	ErrorsTotal      int64    `json:"errors_total"`
	LastError        string   `json:"last_error,omitempty"`
	LastErrorMessage string   `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:          time.Since(c.startTime).Truncate(time.Second).String(),
		ControlActive:   c.controlActive.Load(),
		ControlTotal:    c.controlTotal.Load(),
		DataConnections: c.dataTotal.Load(),
		Commands:        c.commands.Load(),
		TransfersOK:     c.transfersOK.Load(),
		TransfersFailed: c.transfersFail.Load(),
		BytesDown:       c.bytesDown.Load(),
		BytesUp:         c.bytesUp.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
	}
	for class := 1; class <= 5; class++ {
		s.Replies[class-1] = c.replies[class].Load()
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
