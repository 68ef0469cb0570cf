// Package metrics tracks connection and I/O counters for a worker,
// logged on shutdown since the module has no persisted or exported
// process state.
package metrics

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets are cumulative histogram boundaries in nanoseconds,
// covering the latency of a single recv or send operation from 10us to
// 1s.
var LatencyBuckets = []uint64{
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
}

const numLatencyBuckets = 6

// Metrics accumulates counters for one worker's ring engine.
type Metrics struct {
	Accepted  atomic.Uint64
	Closed    atomic.Uint64
	RecvOps   atomic.Uint64
	SendOps   atomic.Uint64
	RecvBytes atomic.Uint64
	SendBytes atomic.Uint64
	Errors    atomic.Uint64

	ActiveConns atomic.Int64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// New returns a Metrics with StartTime set to now.
func New() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) Accept() {
	m.Accepted.Add(1)
	m.ActiveConns.Add(1)
}

func (m *Metrics) Close() {
	m.Closed.Add(1)
	m.ActiveConns.Add(-1)
}

func (m *Metrics) RecordRecv(n int, latency time.Duration) {
	m.RecvOps.Add(1)
	m.RecvBytes.Add(uint64(n))
	m.recordLatency(uint64(latency.Nanoseconds()))
}

func (m *Metrics) RecordSend(n int, latency time.Duration) {
	m.SendOps.Add(1)
	m.SendBytes.Add(uint64(n))
	m.recordLatency(uint64(latency.Nanoseconds()))
}

func (m *Metrics) RecordError() {
	m.Errors.Add(1)
}

func (m *Metrics) recordLatency(ns uint64) {
	m.TotalLatencyNs.Add(ns)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if ns <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Snapshot is a point-in-time, immutable copy suitable for logging.
type Snapshot struct {
	Accepted      uint64
	Closed        uint64
	ActiveConns   int64
	RecvOps       uint64
	SendOps       uint64
	RecvBytes     uint64
	SendBytes     uint64
	Errors        uint64
	AvgLatencyNs  uint64
	UptimeSeconds float64
}

func (m *Metrics) Snapshot() Snapshot {
	opCount := m.OpCount.Load()
	var avg uint64
	if opCount > 0 {
		avg = m.TotalLatencyNs.Load() / opCount
	}
	return Snapshot{
		Accepted:      m.Accepted.Load(),
		Closed:        m.Closed.Load(),
		ActiveConns:   m.ActiveConns.Load(),
		RecvOps:       m.RecvOps.Load(),
		SendOps:       m.SendOps.Load(),
		RecvBytes:     m.RecvBytes.Load(),
		SendBytes:     m.SendBytes.Load(),
		Errors:        m.Errors.Load(),
		AvgLatencyNs:  avg,
		UptimeSeconds: time.Since(time.Unix(0, m.StartTime.Load())).Seconds(),
	}
}
