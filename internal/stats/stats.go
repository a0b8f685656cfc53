// Package stats collects running counters for the proxy's request
// pipeline: totals, cache hits, upstream errors, and latency, surfaced
// at /api/v1/stats.
package stats

import (
	"sync/atomic"
)

// Stats collects proxy request statistics. All methods are safe for
// concurrent use.
type Stats struct {
	requestsTotal  atomic.Uint64
	batchesTotal   atomic.Uint64
	cacheHits      atomic.Uint64
	upstreamErrors atomic.Uint64
	latencyTotalNs atomic.Uint64
}

// New creates a new request statistics collector.
func New() *Stats {
	return &Stats{}
}

// RecordRequest records one dispatched JSON-RPC request (one element of
// a batch counts as one request).
func (s *Stats) RecordRequest() {
	s.requestsTotal.Add(1)
}

// RecordBatch records one inbound HTTP request that carried a batch
// body.
func (s *Stats) RecordBatch() {
	s.batchesTotal.Add(1)
}

// RecordCacheHit records a request served from any cache tier.
func (s *Stats) RecordCacheHit() {
	s.cacheHits.Add(1)
}

// RecordUpstreamError records a request whose response carried a
// JSON-RPC or upstream error.
func (s *Stats) RecordUpstreamError() {
	s.upstreamErrors.Add(1)
}

// RecordLatency records request latency in nanoseconds.
func (s *Stats) RecordLatency(ns int64) {
	if ns > 0 {
		s.latencyTotalNs.Add(uint64(ns))
	}
}

// Snapshot is a point-in-time view of the proxy's running statistics.
type Snapshot struct {
	RequestsTotal  uint64
	BatchesTotal   uint64
	CacheHits      uint64
	UpstreamErrors uint64
	AvgLatencyMs   float64
}

// Snapshot returns the current statistics.
func (s *Stats) Snapshot() Snapshot {
	total := s.requestsTotal.Load()
	latencyNs := s.latencyTotalNs.Load()

	avgLatencyMs := 0.0
	if total > 0 {
		avgLatencyMs = float64(latencyNs) / float64(total) / 1e6
	}

	return Snapshot{
		RequestsTotal:  total,
		BatchesTotal:   s.batchesTotal.Load(),
		CacheHits:      s.cacheHits.Load(),
		UpstreamErrors: s.upstreamErrors.Load(),
		AvgLatencyMs:   avgLatencyMs,
	}
}
