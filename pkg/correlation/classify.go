package correlation

import (
	"math"

	"github.com/teslashibe/go-correlate/pkg/spectral"
)

// Strength breakpoints on |correlation|.
const (
	VeryStrongThreshold = 0.8
	StrongThreshold     = 0.6
	ModerateThreshold   = 0.4
	WeakThreshold       = 0.2
)

// Pattern thresholds.
const (
	causalSpatialThreshold  = 0.3
	randomThreshold         = 0.1
	multiSyncMaxThreshold   = 0.8
	multiSyncMeanThreshold  = 0.6
	multiCausalEigThreshold = 0.7
	multiLinearMaxThreshold = 0.5
)

// StrengthFor buckets a correlation by magnitude.
func StrengthFor(correlation float64) Strength {
	c := math.Abs(correlation)
	switch {
	case c >= VeryStrongThreshold:
		return VeryStrong
	case c >= StrongThreshold:
		return Strong
	case c >= ModerateThreshold:
		return Moderate
	case c >= WeakThreshold:
		return Weak
	}
	return None
}

// ClassifyPattern labels a pairwise relationship. Branches overlap, so the
// order below decides the outcome:
//
//  1. positive, shifted, and spatially close (> 0.3): causal-chain
//  2. positive with no shift: synchronous
//  3. any shift: lagged
//  4. |correlation| < 0.1: random
//  5. a dominant frequency is present: resonant
//  6. otherwise linear
func ClassifyPattern(correlation float64, lag int, spatial *Spatial, freq *spectral.Features) Pattern {
	switch {
	case correlation > 0 && lag != 0 && spatial != nil && spatial.Correlation > causalSpatialThreshold:
		return CausalChain
	case correlation > 0 && lag == 0:
		return Synchronous
	case lag != 0:
		return Lagged
	case math.Abs(correlation) < randomThreshold:
		return Random
	case freq != nil && freq.HasDominant():
		return Resonant
	}
	return Linear
}

// ClassifyMultiPattern labels a multi-source matrix from its max and mean
// |off-diagonal| values and eigen-significance.
func ClassifyMultiPattern(maxCorr, meanCorr, eigenSignificance float64) Pattern {
	switch {
	case maxCorr > multiSyncMaxThreshold && meanCorr > multiSyncMeanThreshold:
		return Synchronous
	case eigenSignificance > multiCausalEigThreshold:
		return CausalChain
	case maxCorr > multiLinearMaxThreshold:
		return Linear
	}
	return Random
}
