package build

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewBuildMetrics(t *testing.T) {
	snapshot := NewBuildMetrics().GetSnapshot()

	assert.Zero(t, snapshot.TotalRequests)
	assert.Zero(t, snapshot.CacheHitRate)
}

func TestBuildMetrics_RecordCompile(t *testing.T) {
	bm := NewBuildMetrics()

	bm.RecordCompile(CompileResult{Path: "a.coffee", Duration: 10 * time.Millisecond})
	bm.RecordCompile(CompileResult{Path: "b.coffee", Duration: 30 * time.Millisecond, Error: errors.New("boom")})
	bm.RecordCompile(CompileResult{Path: "a.coffee", Duration: time.Hour, CacheHit: true})
	bm.RecordCompile(CompileResult{Path: "a.coffee", CacheHit: true})

	snapshot := bm.GetSnapshot()
	assert.Equal(t, int64(4), snapshot.TotalRequests)
	assert.Equal(t, int64(1), snapshot.Compilations)
	assert.Equal(t, int64(1), snapshot.Failures)
	assert.Equal(t, int64(2), snapshot.CacheHits)
	assert.Equal(t, 40*time.Millisecond, snapshot.TotalDuration, "cache hits are not timed")
	assert.Equal(t, 20*time.Millisecond, snapshot.AverageDuration)
	assert.InDelta(t, 50.0, snapshot.CacheHitRate, 0.001)
	assert.InDelta(t, 50.0, bm.GetSuccessRate(), 0.001)
}

func TestBuildMetrics_Reset(t *testing.T) {
	bm := NewBuildMetrics()
	bm.RecordCompile(CompileResult{Duration: time.Second})
	bm.Reset()

	assert.Equal(t, MetricsSnapshot{}, bm.GetSnapshot())
	assert.Zero(t, bm.GetSuccessRate())
}

func TestBuildMetrics_Concurrent(t *testing.T) {
	bm := NewBuildMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bm.RecordCompile(CompileResult{CacheHit: i%2 == 0, Duration: time.Millisecond})
			_ = bm.GetSnapshot()
		}(i)
	}
	wg.Wait()

	snapshot := bm.GetSnapshot()
	assert.Equal(t, int64(50), snapshot.TotalRequests)
	assert.Equal(t, int64(25), snapshot.CacheHits)
	assert.Equal(t, int64(25), snapshot.Compilations)
}
