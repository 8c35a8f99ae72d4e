// Package anomaly provides pluggable statistical outlier scoring for
// correlation values.
package anomaly

import (
	"math"
	"sync"
)

// Scores returned by the built-in scorers.
const (
	AnomalousScore = 0.8
	NormalScore    = 0.2
)

// Scorer maps a set of correlation values to an anomaly magnitude in [0, 1].
// Implementations may be stateful but must be safe for concurrent use.
type Scorer interface {
	Score(values []float64) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(values []float64) float64

// Score calls f(values).
func (f ScorerFunc) Score(values []float64) float64 { return f(values) }

// StdDevScorer flags a value set as anomalous when any member lies more
// than Sigmas population standard deviations from the set's mean.
type StdDevScorer struct {
	Sigmas float64
}

// NewStdDevScorer returns the default two-sigma scorer.
func NewStdDevScorer() *StdDevScorer {
	return &StdDevScorer{Sigmas: 2}
}

// Score returns AnomalousScore or NormalScore.
func (s *StdDevScorer) Score(values []float64) float64 {
	if len(values) == 0 {
		return NormalScore
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	std := math.Sqrt(ss / float64(len(values)))
	if std == 0 {
		return NormalScore
	}
	for _, v := range values {
		if math.Abs(v-mean) > s.Sigmas*std {
			return AnomalousScore
		}
	}
	return NormalScore
}

// ZScorer keeps a running Welford tracker across calls and flags values
// whose z-score against everything seen so far exceeds Threshold.
type ZScorer struct {
	Threshold float64
	Warmup    int64 // observations required before flagging

	mu      sync.Mutex
	tracker Tracker
}

// NewZScorer returns a three-sigma running scorer with a short warmup.
func NewZScorer() *ZScorer {
	return &ZScorer{Threshold: AnomalyThreshold, Warmup: 5}
}

// Score checks each value against history, then folds it into the tracker.
func (z *ZScorer) Score(values []float64) float64 {
	z.mu.Lock()
	defer z.mu.Unlock()

	score := NormalScore
	for _, v := range values {
		if z.tracker.Count >= z.Warmup && math.Abs(z.tracker.ZScore(v)) > z.Threshold {
			score = AnomalousScore
		}
		z.tracker.Update(v)
	}
	return score
}

var (
	_ Scorer = (*StdDevScorer)(nil)
	_ Scorer = (*ZScorer)(nil)
	_ Scorer = ScorerFunc(nil)
)
