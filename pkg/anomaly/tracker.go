package anomaly

import "math"

// AnomalyThreshold is the default z-score above which a value is anomalous.
const AnomalyThreshold = 3.0

// Tracker keeps a running mean and variance with Welford's online algorithm.
type Tracker struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"` // sum of squared differences from the mean
}

// Update folds a new observation into the tracker.
func (t *Tracker) Update(v float64) {
	t.Count++
	delta := v - t.Mean
	t.Mean += delta / float64(t.Count)
	t.M2 += delta * (v - t.Mean)
}

// Variance returns the sample variance, or 0 with fewer than two observations.
func (t *Tracker) Variance() float64 {
	if t.Count < 2 {
		return 0
	}
	return t.M2 / float64(t.Count-1)
}

// StdDev returns the sample standard deviation.
func (t *Tracker) StdDev() float64 {
	return math.Sqrt(t.Variance())
}

// ZScore returns how many standard deviations v lies from the mean.
// With zero variance any differing value scores 100.
func (t *Tracker) ZScore(v float64) float64 {
	sd := t.StdDev()
	if sd == 0 {
		if v == t.Mean {
			return 0
		}
		return 100
	}
	return (v - t.Mean) / sd
}
