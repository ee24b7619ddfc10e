package pipeline

import (
	"sync/atomic"
)

// Metrics contains pipeline counters.
type Metrics struct {
	Received     atomic.Uint64
	Filtered     atomic.Uint64
	Recorded     atomic.Uint64
	RecordErrors atomic.Uint64
	Decoded      atomic.Uint64
	DecodeErrors atomic.Uint64
	Skipped      atomic.Uint64 // decoded but not IPv4 TCP/UDP/ICMP
	Reported     atomic.Uint64
	ReportErrors atomic.Uint64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		Received:     m.Received.Load(),
		Filtered:     m.Filtered.Load(),
		Recorded:     m.Recorded.Load(),
		RecordErrors: m.RecordErrors.Load(),
		Decoded:      m.Decoded.Load(),
		DecodeErrors: m.DecodeErrors.Load(),
		Skipped:      m.Skipped.Load(),
		Reported:     m.Reported.Load(),
		ReportErrors: m.ReportErrors.Load(),
	}
}

// Stats represents pipeline statistics.
type Stats struct {
	Received     uint64
	Filtered     uint64
	Recorded     uint64
	RecordErrors uint64
	Decoded      uint64
	DecodeErrors uint64
	Skipped      uint64
	Reported     uint64
	ReportErrors uint64
}
