package build

import (
	"sync"
	"time"
)

// CompileResult is the outcome of one pipeline request.
type CompileResult struct {
	Path     string
	Duration time.Duration
	CacheHit bool
	Error    error
}

// BuildMetrics tracks pipeline performance
type BuildMetrics struct {
	TotalRequests   int64
	Compilations    int64
	CacheHits       int64
	Failures        int64
	AverageDuration time.Duration
	TotalDuration   time.Duration
	mutex           sync.RWMutex
}

// MetricsSnapshot is a point-in-time copy of BuildMetrics.
type MetricsSnapshot struct {
	TotalRequests   int64         `json:"total_requests"`
	Compilations    int64         `json:"compilations"`
	CacheHits       int64         `json:"cache_hits"`
	Failures        int64         `json:"failures"`
	AverageDuration time.Duration `json:"average_duration_ns"`
	TotalDuration   time.Duration `json:"total_duration_ns"`
	CacheHitRate    float64       `json:"cache_hit_rate"`
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// RecordCompile records a pipeline result in the metrics. Durations are
// averaged over compilations only; cache hits do not dilute them.
func (bm *BuildMetrics) RecordCompile(result CompileResult) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalRequests++

	if result.CacheHit {
		bm.CacheHits++
		return
	}

	if result.Error != nil {
		bm.Failures++
	} else {
		bm.Compilations++
	}

	bm.TotalDuration += result.Duration
	if n := bm.Compilations + bm.Failures; n > 0 {
		bm.AverageDuration = bm.TotalDuration / time.Duration(n)
	}
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() MetricsSnapshot {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	snapshot := MetricsSnapshot{
		TotalRequests:   bm.TotalRequests,
		Compilations:    bm.Compilations,
		CacheHits:       bm.CacheHits,
		Failures:        bm.Failures,
		AverageDuration: bm.AverageDuration,
		TotalDuration:   bm.TotalDuration,
	}
	if bm.TotalRequests > 0 {
		snapshot.CacheHitRate = float64(bm.CacheHits) / float64(bm.TotalRequests) * 100.0
	}
	return snapshot
}

// Reset resets all metrics
func (bm *BuildMetrics) Reset() {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalRequests = 0
	bm.Compilations = 0
	bm.CacheHits = 0
	bm.Failures = 0
	bm.AverageDuration = 0
	bm.TotalDuration = 0
}

// GetSuccessRate returns the share of compilations that succeeded as a
// percentage.
func (bm *BuildMetrics) GetSuccessRate() float64 {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	total := bm.Compilations + bm.Failures
	if total == 0 {
		return 0.0
	}

	return float64(bm.Compilations) / float64(total) * 100.0
}
