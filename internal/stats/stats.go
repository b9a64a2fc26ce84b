// Package stats keeps rolling-window aggregates of outline parse runs.
package stats

import (
	"slices"
	"sync"
	"time"
)

// Run describes one parsed document.
type Run struct {
	Duration   time.Duration
	Lines      int
	Paragraphs int
	Fallbacks  int // paragraphs that fell back to a flat node
}

type sample struct {
	at  time.Time
	run Run
}

// Snapshot is a point-in-time aggregate of the runs inside the window.
type Snapshot struct {
	Count      int     `json:"count"`
	Lines      int     `json:"lines"`
	Paragraphs int     `json:"paragraphs"`
	Fallbacks  int     `json:"fallbacks"`
	MinMs      float64 `json:"min_ms"`
	MaxMs      float64 `json:"max_ms"`
	AvgMs      float64 `json:"avg_ms"`
	P50Ms      float64 `json:"p50_ms"`
	P95Ms      float64 `json:"p95_ms"`
	P99Ms      float64 `json:"p99_ms"`
}

// ParseStats tracks recent parse runs. Safe for concurrent use.
type ParseStats struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration
	now     func() time.Time
}

func NewParseStats(window time.Duration) *ParseStats {
	if window <= 0 {
		window = time.Hour
	}
	return &ParseStats{
		samples: make([]sample, 0, 256),
		window:  window,
		now:     time.Now,
	}
}

func (s *ParseStats) Record(r Run) {
	if r.Duration < 0 {
		r.Duration = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	s.samples = append(s.samples, sample{at: now, run: r})
}

func (s *ParseStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	if len(s.samples) == 0 {
		return Snapshot{}
	}

	var snap Snapshot
	ms := make([]float64, len(s.samples))
	var sum float64
	for i, sm := range s.samples {
		ms[i] = float64(sm.run.Duration) / float64(time.Millisecond)
		sum += ms[i]
		snap.Lines += sm.run.Lines
		snap.Paragraphs += sm.run.Paragraphs
		snap.Fallbacks += sm.run.Fallbacks
	}
	slices.Sort(ms)

	snap.Count = len(ms)
	snap.MinMs = ms[0]
	snap.MaxMs = ms[len(ms)-1]
	snap.AvgMs = sum / float64(len(ms))
	snap.P50Ms = percentile(ms, 50)
	snap.P95Ms = percentile(ms, 95)
	snap.P99Ms = percentile(ms, 99)
	return snap
}

func (s *ParseStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	s.samples = slices.DeleteFunc(s.samples, func(sm sample) bool {
		return sm.at.Before(cutoff)
	})
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return sorted[0]
	case pct >= 100:
		return sorted[len(sorted)-1]
	}
	rank := float64(len(sorted)-1) * pct / 100
	lo := int(rank)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*(rank-float64(lo))
}
