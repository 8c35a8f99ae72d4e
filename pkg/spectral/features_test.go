package spectral

import (
	"math"
	"testing"

	"github.com/teslashibe/go-correlate/pkg/sensor"
)

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAnalyze_NoSpectrum(t *testing.T) {
	f := Analyze([]sensor.AudioReading{{Amplitude: 0.4}, {Amplitude: 0.2}})
	if f.DominantFrequency != 0 || f.SpectralCentroid != 0 || f.Bandwidth != 0 || f.Rolloff != 0 {
		t.Errorf("expected all-zero features, got %+v", f)
	}
	if f.HasDominant() {
		t.Error("HasDominant should be false")
	}
	if Analyze(nil).Readings != 0 {
		t.Error("nil input should count no readings")
	}
}

func TestAnalyze_SingleReading(t *testing.T) {
	// Bands centered at 50, 150, 250, 350 Hz.
	r := sensor.AudioReading{BinHz: 100, Spectrum: []float64{1, 4, 3, 2}}
	f := Analyze([]sensor.AudioReading{r})

	if !floatEquals(f.DominantFrequency, 150) {
		t.Errorf("DominantFrequency: got %v, want 150", f.DominantFrequency)
	}
	// (50*1 + 150*4 + 250*3 + 350*2) / 10 = 210
	if !floatEquals(f.SpectralCentroid, 210) {
		t.Errorf("SpectralCentroid: got %v, want 210", f.SpectralCentroid)
	}
	if !floatEquals(f.Bandwidth, 300) {
		t.Errorf("Bandwidth: got %v, want 300", f.Bandwidth)
	}
	// cumulative 1, 5, 8 (>= 8.5? no), 10 -> 350
	if !floatEquals(f.Rolloff, 350) {
		t.Errorf("Rolloff: got %v, want 350", f.Rolloff)
	}
	if f.Readings != 1 {
		t.Errorf("Readings: got %d, want 1", f.Readings)
	}
}

func TestAnalyze_AggregatesAcrossReadings(t *testing.T) {
	readings := []sensor.AudioReading{
		{BinHz: 100, Spectrum: []float64{0, 2, 0}},
		{BinHz: 100, Spectrum: []float64{0, 0, 3}},
		{BinHz: 100, Spectrum: []float64{0, 2, 0}},
	}
	f := Analyze(readings)

	// 150 Hz accumulates 4, 250 Hz has 3.
	if !floatEquals(f.DominantFrequency, 150) {
		t.Errorf("DominantFrequency: got %v, want 150", f.DominantFrequency)
	}
	// Zero-magnitude bands do not widen the observed range.
	if !floatEquals(f.Bandwidth, 100) {
		t.Errorf("Bandwidth: got %v, want 100", f.Bandwidth)
	}
	if f.Readings != 3 {
		t.Errorf("Readings: got %d, want 3", f.Readings)
	}
}
