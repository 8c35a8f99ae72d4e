package stats

import (
	"math"
	"sort"

	"github.com/teslashibe/go-correlate/pkg/sensor"
)

// DefaultAlignTolerance is the widest timestamp gap (ms) a nearest-neighbour
// join accepts.
const DefaultAlignTolerance int64 = 1000

// MaxLagLimit caps the lag search range.
const MaxLagLimit = 50

// peakEpsilon keeps the earlier visited lag when two lags score the same
// within floating point noise.
const peakEpsilon = 1e-12

// Aligned is a pair of series joined on timestamp.
type Aligned struct {
	Timestamps []int64
	X          []float64
	Y          []float64
}

// Len returns the number of joined samples.
func (a Aligned) Len() int { return len(a.X) }

// Align joins each sample of a to the nearest-in-time sample of b.
// Samples of a with no b sample within tolerance ms are dropped.
// Both series must be timestamp-ordered.
func Align(a, b sensor.TimeSeries, tolerance int64) Aligned {
	var out Aligned
	if a.Len() == 0 || b.Len() == 0 {
		return out
	}
	for i, t := range a.Timestamps {
		j := sort.Search(len(b.Timestamps), func(k int) bool { return b.Timestamps[k] >= t })

		best, bestDiff := -1, int64(math.MaxInt64)
		for _, k := range []int{j - 1, j} {
			if k < 0 || k >= len(b.Timestamps) {
				continue
			}
			d := b.Timestamps[k] - t
			if d < 0 {
				d = -d
			}
			if d < bestDiff {
				best, bestDiff = k, d
			}
		}
		if best < 0 || bestDiff > tolerance {
			continue
		}
		out.Timestamps = append(out.Timestamps, t)
		out.X = append(out.X, a.Values[i])
		out.Y = append(out.Y, b.Values[best])
	}
	return out
}

// MaxLag returns the lag search bound for an aligned length n:
// min(50, n/4).
func MaxLag(n int) int {
	return min(MaxLagLimit, n/4)
}

// CrossCorrelation is the outcome of a lag search.
type CrossCorrelation struct {
	// MaxCorrelation is the signed coefficient with the largest magnitude.
	MaxCorrelation float64 `json:"max_correlation"`
	// Lag is measured in samples; positive means y trails x.
	Lag int `json:"lag"`
	// Correlations holds one coefficient per lag from -MaxLag to +MaxLag.
	Correlations []float64 `json:"correlations"`
	MaxLag       int       `json:"max_lag"`
	Samples      int       `json:"samples"`
	// Significance is the heuristic from Significance, not a p-value.
	Significance float64 `json:"significance"`
}

// At returns the coefficient recorded for lag.
func (c CrossCorrelation) At(lag int) float64 {
	i := lag + c.MaxLag
	if i < 0 || i >= len(c.Correlations) {
		return 0
	}
	return c.Correlations[i]
}

// CrossCorrelate shifts y against x over [-L, L] and records the Pearson
// coefficient on each overlap. Tied peaks resolve to lag 0, then to the
// smallest positive lag (y trailing x), then to the smallest negative lag.
// Periodic inputs tie at every multiple of their period, and the forward
// reading keeps the cause-then-effect direction of the x, y order.
func CrossCorrelate(x, y []float64) CrossCorrelation {
	n := min(len(x), len(y))
	L := MaxLag(n)
	cc := CrossCorrelation{
		Correlations: make([]float64, 2*L+1),
		MaxLag:       L,
		Samples:      n,
	}
	if n == 0 {
		return cc
	}

	for lag := -L; lag <= L; lag++ {
		var a, b []float64
		if lag >= 0 {
			a, b = x[:n-lag], y[lag:n]
		} else {
			a, b = x[-lag:n], y[:n+lag]
		}
		cc.Correlations[lag+L] = Pearson(a, b)
	}

	best := math.Inf(-1)
	visit := func(lag int) {
		c := math.Abs(cc.Correlations[lag+L])
		if c > best+peakEpsilon {
			best = c
			cc.MaxCorrelation = cc.Correlations[lag+L]
			cc.Lag = lag
		}
	}
	for lag := 0; lag <= L; lag++ {
		visit(lag)
	}
	for lag := -1; lag >= -L; lag-- {
		visit(lag)
	}

	cc.Significance = Significance(cc.MaxCorrelation, n)
	return cc
}
