// Package stats implements the numerical core used to relate sensor
// streams: descriptive statistics, Pearson correlation, timestamp
// alignment, lag-searched cross-correlation and a power-iteration
// eigenvalue estimate.
//
// Degenerate input (empty series, zero variance, too little overlap)
// yields zero values instead of errors.
package stats

import "math"

// MinOverlap is the smallest overlap Pearson will evaluate.
const MinOverlap = 3

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Variance returns the population variance.
func Variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(xs))
}

// StdDev returns the population standard deviation.
func StdDev(xs []float64) float64 {
	return math.Sqrt(Variance(xs))
}

// Covariance returns the population covariance over the common prefix of xs and ys.
func Covariance(xs, ys []float64) float64 {
	n := min(len(xs), len(ys))
	if n == 0 {
		return 0
	}
	mx, my := Mean(xs[:n]), Mean(ys[:n])
	var s float64
	for i := 0; i < n; i++ {
		s += (xs[i] - mx) * (ys[i] - my)
	}
	return s / float64(n)
}

// Pearson returns covariance / sqrt(varX * varY) over the common prefix.
// It returns 0 when either variance is 0 or fewer than MinOverlap samples overlap.
func Pearson(xs, ys []float64) float64 {
	n := min(len(xs), len(ys))
	if n < MinOverlap {
		return 0
	}
	xs, ys = xs[:n], ys[:n]
	mx, my := Mean(xs), Mean(ys)

	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	r := cov / math.Sqrt(vx*vy)
	return math.Max(-1, math.Min(1, r))
}

// Measures bundles the descriptive statistics of two aligned series.
type Measures struct {
	MeanX       float64 `json:"mean_x"`
	MeanY       float64 `json:"mean_y"`
	VarianceX   float64 `json:"variance_x"`
	VarianceY   float64 `json:"variance_y"`
	StdDevX     float64 `json:"std_dev_x"`
	StdDevY     float64 `json:"std_dev_y"`
	Covariance  float64 `json:"covariance"`
	Correlation float64 `json:"correlation"` // zero-lag Pearson
}

// Describe computes Measures over the common prefix of xs and ys.
func Describe(xs, ys []float64) Measures {
	n := min(len(xs), len(ys))
	xs, ys = xs[:n], ys[:n]
	vx, vy := Variance(xs), Variance(ys)
	return Measures{
		MeanX:       Mean(xs),
		MeanY:       Mean(ys),
		VarianceX:   vx,
		VarianceY:   vy,
		StdDevX:     math.Sqrt(vx),
		StdDevY:     math.Sqrt(vy),
		Covariance:  Covariance(xs, ys),
		Correlation: Pearson(xs, ys),
	}
}

// Significance is a heuristic confidence figure derived from the
// t-statistic of a correlation coefficient:
//
//	clamp(|r| * sqrt((n-2)/(1-r^2)) / 3, 0, 1)
//
// It is not a calibrated p-value. A t of 3 or more maps to 1.
func Significance(r float64, n int) float64 {
	if n < MinOverlap || r == 0 {
		return 0
	}
	r2 := r * r
	if r2 >= 1 {
		return 1
	}
	t := math.Abs(r) * math.Sqrt(float64(n-2)/(1-r2))
	return math.Max(0, math.Min(1, t/3))
}

// Clamp01 limits v to [0, 1].
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
