package apiclient

import (
	"sync"
	"time"
)

const maxLatencySamples = 100

// healthTracker accumulates the advanced-mode connection health signal:
// recent latencies and a running success/error count, condensed into a
// single score (§4.7 "Advanced mode health metrics").
type healthTracker struct {
	mu         sync.Mutex
	latencies  []float64 // ring of up to maxLatencySamples, oldest evicted first
	successes  int
	errors     int
}

func newHealthTracker() *healthTracker {
	return &healthTracker{latencies: make([]float64, 0, maxLatencySamples)}
}

func (h *healthTracker) record(success bool, latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if success {
		h.successes++
	} else {
		h.errors++
	}

	if len(h.latencies) >= maxLatencySamples {
		h.latencies = h.latencies[1:]
	}
	h.latencies = append(h.latencies, latencyMs)
}

// HealthSnapshot is the point-in-time advanced-mode health report.
type HealthSnapshot struct {
	SuccessCount     int
	ErrorCount       int
	AvgLatencyMs     float64
	SuccessRate      float64
	LatencyScore     float64
	HealthScore      float64
}

// Snapshot computes the current health score: 70% success rate, 30% a
// latency score that decays to zero at a 5-second average (§4.7).
func (h *healthTracker) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := h.successes + h.errors
	var successRate float64
	if total > 0 {
		successRate = float64(h.successes) / float64(total)
	}

	var avgLatency float64
	if len(h.latencies) > 0 {
		var sum float64
		for _, l := range h.latencies {
			sum += l
		}
		avgLatency = sum / float64(len(h.latencies))
	}

	latencyScore := 1 - avgLatency/5000
	if latencyScore < 0 {
		latencyScore = 0
	}

	return HealthSnapshot{
		SuccessCount: h.successes,
		ErrorCount:   h.errors,
		AvgLatencyMs: avgLatency,
		SuccessRate:  successRate,
		LatencyScore: latencyScore,
		HealthScore:  successRate*0.7 + latencyScore*0.3,
	}
}

// timeSince is a thin wrapper so call sites read naturally; kept separate
// from time.Since only to give latency recording a single seam.
func timeSince(start time.Time) float64 {
	return float64(time.Since(start).Milliseconds())
}
