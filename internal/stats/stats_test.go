package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotZeroValue(t *testing.T) {
	s := New()
	snap := s.Snapshot()
	assert.Zero(t, snap.RequestsTotal)
	assert.Zero(t, snap.AvgLatencyMs)
}

func TestRecordRequestAndLatency(t *testing.T) {
	s := New()
	s.RecordRequest()
	s.RecordRequest()
	s.RecordLatency(1_000_000)
	s.RecordLatency(3_000_000)

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.Equal(t, 2.0, snap.AvgLatencyMs)
}

func TestRecordCacheHitAndUpstreamError(t *testing.T) {
	s := New()
	s.RecordCacheHit()
	s.RecordUpstreamError()
	s.RecordBatch()

	snap := s.Snapshot()
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.UpstreamErrors)
	assert.Equal(t, uint64(1), snap.BatchesTotal)
}

func TestRecordLatencyIgnoresNonPositive(t *testing.T) {
	s := New()
	s.RecordRequest()
	s.RecordLatency(0)
	s.RecordLatency(-5)

	snap := s.Snapshot()
	assert.Zero(t, snap.AvgLatencyMs)
}

func TestConcurrentRecordRequest(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordRequest()
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(100), s.Snapshot().RequestsTotal)
}
