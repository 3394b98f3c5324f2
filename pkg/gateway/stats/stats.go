// Package stats holds process-wide gateway counters.
package stats

import (
	"sync/atomic"
	"time"
)

type Counters struct {
	startedAt time.Time

	totalConnections    atomic.Int64
	activeConnections   atomic.Int64
	totalChunks         atomic.Int64
	totalTranscriptions atomic.Int64
}

func New() *Counters {
	return &Counters{startedAt: time.Now()}
}

func (c *Counters) ConnectionOpened() {
	if c == nil {
		return
	}
	c.totalConnections.Add(1)
	c.activeConnections.Add(1)
}

func (c *Counters) ConnectionClosed() {
	if c == nil {
		return
	}
	c.activeConnections.Add(-1)
}

func (c *Counters) AddChunks(n int64) {
	if c == nil {
		return
	}
	c.totalChunks.Add(n)
}

func (c *Counters) TranscriptionFinalized() {
	if c == nil {
		return
	}
	c.totalTranscriptions.Add(1)
}

func (c *Counters) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.totalConnections.Load()
}

func (c *Counters) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.activeConnections.Load()
}

func (c *Counters) TotalChunks() int64 {
	if c == nil {
		return 0
	}
	return c.totalChunks.Load()
}

func (c *Counters) TotalTranscriptions() int64 {
	if c == nil {
		return 0
	}
	return c.totalTranscriptions.Load()
}

func (c *Counters) Uptime() time.Duration {
	if c == nil {
		return 0
	}
	return time.Since(c.startedAt)
}
