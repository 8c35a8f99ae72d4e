// Package spectral derives frequency-domain features from the per-band
// magnitudes carried by audio readings.
package spectral

import (
	"sort"

	"github.com/teslashibe/go-correlate/pkg/sensor"
)

// RolloffFraction is the share of cumulative magnitude that defines rolloff.
const RolloffFraction = 0.85

// Features summarizes an aggregate magnitude spectrum. All fields are zero
// when no spectrum data is available.
type Features struct {
	DominantFrequency float64 `json:"dominant_frequency"`
	SpectralCentroid  float64 `json:"spectral_centroid"`
	Bandwidth         float64 `json:"bandwidth"`
	Rolloff           float64 `json:"rolloff"`
	Readings          int     `json:"readings"` // readings that carried a spectrum
}

// HasDominant reports whether a dominant frequency was found.
func (f Features) HasDominant() bool {
	return f.DominantFrequency > 0
}

// Analyze sums band magnitudes across readings and extracts the dominant
// frequency, magnitude-weighted centroid, observed bandwidth and 85% rolloff.
func Analyze(readings []sensor.AudioReading) Features {
	mags := make(map[float64]float64)
	var f Features
	for _, r := range readings {
		if len(r.Spectrum) == 0 {
			continue
		}
		f.Readings++
		for i, m := range r.Spectrum {
			if m <= 0 {
				continue
			}
			mags[r.BandFrequency(i)] += m
		}
	}
	if len(mags) == 0 {
		return Features{Readings: f.Readings}
	}

	freqs := make([]float64, 0, len(mags))
	for fr := range mags {
		freqs = append(freqs, fr)
	}
	sort.Float64s(freqs)

	var total, weighted, peak float64
	for _, fr := range freqs {
		m := mags[fr]
		total += m
		weighted += fr * m
		if m > peak {
			peak = m
			f.DominantFrequency = fr
		}
	}

	f.SpectralCentroid = weighted / total
	f.Bandwidth = freqs[len(freqs)-1] - freqs[0]

	threshold := RolloffFraction * total
	var cum float64
	for _, fr := range freqs {
		cum += mags[fr]
		if cum >= threshold {
			f.Rolloff = fr
			break
		}
	}
	return f
}
