package stats

import "math"

// DefaultPowerIterations is the fixed iteration count for DominantEigenvalue.
const DefaultPowerIterations = 10

// DominantEigenvalue approximates the largest-magnitude eigenvalue of a
// square matrix by power iteration from an all-ones vector, followed by a
// Rayleigh quotient. Convergence is not checked: iterations is a tuning
// knob, not a guarantee. Returns 0 for an empty matrix or when the
// iterate collapses to zero.
func DominantEigenvalue(m [][]float64, iterations int) float64 {
	n := len(m)
	if n == 0 {
		return 0
	}
	if iterations < 1 {
		iterations = 1
	}

	v := make([]float64, n)
	inv := 1 / math.Sqrt(float64(n))
	for i := range v {
		v[i] = inv
	}

	w := make([]float64, n)
	for k := 0; k < iterations; k++ {
		mulVec(m, v, w)
		norm := 0.0
		for _, x := range w {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			return 0
		}
		for i := range v {
			v[i] = w[i] / norm
		}
	}

	mulVec(m, v, w)
	var lambda float64
	for i := range v {
		lambda += v[i] * w[i]
	}
	return lambda
}

func mulVec(m [][]float64, v, out []float64) {
	for i, row := range m {
		var s float64
		for j, x := range row {
			if j < len(v) {
				s += x * v[j]
			}
		}
		out[i] = s
	}
}
