package main

import (
	"github.com/xor-shift/rngserver/common"
	"math"
	"sync"
)

// runningStats is Welford's online mean and variance.
type runningStats struct {
	Count    uint64  `json:"count"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`

	m2 float64
}

func (s *runningStats) add(x float64) {
	if s.Count == 0 {
		s.Min, s.Max = x, x
	}

	s.Count++
	delta := x - s.Mean
	s.Mean += delta / float64(s.Count)
	s.m2 += delta * (x - s.Mean)
	s.Variance = s.m2 / float64(s.Count)

	s.Min = math.Min(s.Min, x)
	s.Max = math.Max(s.Max, x)
}

type statsKey struct {
	SessionID    uint64
	Distribution common.Distribution
}

type sessionStats struct {
	SessionID    uint64              `json:"sessionId"`
	Distribution common.Distribution `json:"dist"`
	runningStats
}

type tracker struct {
	mu        sync.Mutex
	lastBatch common.DrawBatch
	stats     map[statsKey]*runningStats
}

func newTracker() *tracker {
	return &tracker{stats: map[statsKey]*runningStats{}}
}

func (t *tracker) add(batch common.DrawBatch) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastBatch = batch

	key := statsKey{SessionID: batch.SessionID, Distribution: batch.Distribution}
	stats, ok := t.stats[key]
	if !ok {
		stats = &runningStats{}
		t.stats[key] = stats
	}

	for _, v := range batch.Values() {
		stats.add(v)
	}
}

func (t *tracker) last() common.DrawBatch {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lastBatch
}

func (t *tracker) snapshot() []sessionStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	ret := make([]sessionStats, 0, len(t.stats))
	for key, stats := range t.stats {
		ret = append(ret, sessionStats{
			SessionID:    key.SessionID,
			Distribution: key.Distribution,
			runningStats: *stats,
		})
	}

	return ret
}
