package correlation

import (
	"testing"

	"github.com/teslashibe/go-correlate/pkg/spectral"
)

func TestStrengthFor(t *testing.T) {
	tests := []struct {
		corr float64
		want Strength
	}{
		{0, None},
		{0.19, None},
		{0.2, Weak},
		{-0.39, Weak},
		{0.4, Moderate},
		{0.6, Strong},
		{-0.79, Strong},
		{0.8, VeryStrong},
		{-1, VeryStrong},
	}
	for _, tt := range tests {
		if got := StrengthFor(tt.corr); got != tt.want {
			t.Errorf("StrengthFor(%v) = %s, want %s", tt.corr, got, tt.want)
		}
	}
}

func TestStrengthFor_Monotonic(t *testing.T) {
	prev := None
	for i := 0; i <= 100; i++ {
		s := StrengthFor(float64(i) / 100)
		if s.Rank() < prev.Rank() {
			t.Fatalf("strength decreased at %d: %s after %s", i, s, prev)
		}
		prev = s
	}
}

func TestClassifyPattern(t *testing.T) {
	near := &Spatial{Correlation: 0.5}
	far := &Spatial{Correlation: 0.1}
	tonal := &spectral.Features{DominantFrequency: 440, Readings: 1}

	tests := []struct {
		name    string
		corr    float64
		lag     int
		spatial *Spatial
		freq    *spectral.Features
		want    Pattern
	}{
		{"causal chain", 0.7, 2, near, nil, CausalChain},
		{"lagged with distant spatial", 0.7, 2, far, nil, Lagged},
		{"synchronous", 0.7, 0, near, nil, Synchronous},
		{"negative lagged", -0.7, -3, nil, nil, Lagged},
		{"random", -0.05, 0, nil, nil, Random},
		{"resonant", -0.5, 0, nil, tonal, Resonant},
		{"linear", -0.5, 0, nil, &spectral.Features{}, Linear},
		{"synchronous beats resonant", 0.5, 0, nil, tonal, Synchronous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyPattern(tt.corr, tt.lag, tt.spatial, tt.freq); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyMultiPattern(t *testing.T) {
	tests := []struct {
		max, mean, eig float64
		want           Pattern
	}{
		{0.9, 0.7, 0.9, Synchronous},
		{0.9, 0.5, 0.8, CausalChain},
		{0.6, 0.3, 0.5, Linear},
		{0.4, 0.3, 0.5, Random},
	}
	for _, tt := range tests {
		if got := ClassifyMultiPattern(tt.max, tt.mean, tt.eig); got != tt.want {
			t.Errorf("ClassifyMultiPattern(%v, %v, %v) = %s, want %s", tt.max, tt.mean, tt.eig, got, tt.want)
		}
	}
}

func TestTypeSources(t *testing.T) {
	x, y, ok := EnvironmentalMotion.Sources()
	if !ok || x != "environmental" || y != "motion" {
		t.Errorf("EnvironmentalMotion.Sources() = %s, %s, %v", x, y, ok)
	}
	if _, _, ok := MultiSource.Sources(); ok {
		t.Error("MultiSource should not have a pairwise source split")
	}
	if !MultiSource.Valid() || Type("bogus").Valid() {
		t.Error("Valid mismatch")
	}
}
