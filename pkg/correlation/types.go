// Package correlation relates independently sampled sensor streams.
//
// An Engine buffers motion, EMF, audio and environmental readings in
// bounded time windows and periodically computes lagged cross-correlation,
// spatial proximity correlation, frequency features and a multi-stream
// eigen summary. Results above the configured threshold are classified by
// strength and pattern, scored for anomalies, kept in a bounded history and
// published as typed events.
//
// The significance and eigen-significance figures are heuristics. They are
// useful for ranking and alerting but are not calibrated statistical tests.
package correlation

import (
	"github.com/teslashibe/go-correlate/pkg/sensor"
	"github.com/teslashibe/go-correlate/pkg/spectral"
	"github.com/teslashibe/go-correlate/pkg/stats"
)

// Type identifies which streams a result relates.
type Type string

const (
	MotionEMF           Type = "motion-emf"
	MotionAudio         Type = "motion-audio"
	EMFAudio            Type = "emf-audio"
	EnvironmentalMotion Type = "environmental-motion"
	MultiSource         Type = "multi-source"
)

// AllTypes lists every correlation type in evaluation order.
var AllTypes = []Type{MotionEMF, MotionAudio, EMFAudio, EnvironmentalMotion, MultiSource}

// Sources returns the streams a pairwise type compares, in (x, y) order.
// ok is false for MultiSource and unknown types.
func (t Type) Sources() (x, y sensor.Source, ok bool) {
	switch t {
	case MotionEMF:
		return sensor.Motion, sensor.EMF, true
	case MotionAudio:
		return sensor.Motion, sensor.Audio, true
	case EMFAudio:
		return sensor.EMF, sensor.Audio, true
	case EnvironmentalMotion:
		return sensor.Environmental, sensor.Motion, true
	}
	return "", "", false
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	if t == MultiSource {
		return true
	}
	_, _, ok := t.Sources()
	return ok
}

// Strength is a qualitative bucket of |correlation|.
type Strength string

const (
	None       Strength = "none"
	Weak       Strength = "weak"
	Moderate   Strength = "moderate"
	Strong     Strength = "strong"
	VeryStrong Strength = "very-strong"
)

// Rank orders strengths from None (0) to VeryStrong (4).
func (s Strength) Rank() int {
	switch s {
	case Weak:
		return 1
	case Moderate:
		return 2
	case Strong:
		return 3
	case VeryStrong:
		return 4
	}
	return 0
}

// AtLeast reports whether s is as strong as other.
func (s Strength) AtLeast(other Strength) bool {
	return s.Rank() >= other.Rank()
}

// Pattern is a qualitative label for the shape of a relationship.
type Pattern string

const (
	Synchronous Pattern = "synchronous"
	Lagged      Pattern = "lagged"
	CausalChain Pattern = "causal-chain"
	Resonant    Pattern = "resonant"
	Linear      Pattern = "linear"
	Random      Pattern = "random"
)

// Spatial is the proximity association between motion and EMF locations.
type Spatial struct {
	Correlation     float64 `json:"correlation"` // mean of 1/(1+distance)
	SampleCount     int     `json:"sample_count"`
	AverageDistance float64 `json:"average_distance"`
}

// MultiSourceAnalysis describes the correlation matrix across all streams
// with data.
type MultiSourceAnalysis struct {
	Sources            []sensor.Source `json:"sources"`
	Matrix             [][]float64     `json:"matrix"`
	MeanCorrelation    float64         `json:"mean_correlation"` // mean |off-diagonal|
	MaxCorrelation     float64         `json:"max_correlation"`  // max |off-diagonal|
	DominantEigenvalue float64         `json:"dominant_eigenvalue"`
	// EigenSignificance is |dominant eigenvalue| / N, a rough proxy for how
	// much one common factor explains the matrix.
	EigenSignificance float64 `json:"eigen_significance"`
}

// Result is one detected correlation. Results are immutable once built;
// History and events hand out deep copies.
type Result struct {
	ID           string                  `json:"id"`
	Timestamp    int64                   `json:"timestamp"`
	Type         Type                    `json:"type"`
	Strength     Strength                `json:"strength"`
	Confidence   float64                 `json:"confidence"`
	Sources      []sensor.Source         `json:"sources"`
	Pattern      Pattern                 `json:"pattern"`
	Temporal     *stats.CrossCorrelation `json:"temporal,omitempty"`
	Spatial      *Spatial                `json:"spatial,omitempty"`
	Frequency    *spectral.Features      `json:"frequency,omitempty"`
	Multi        *MultiSourceAnalysis    `json:"multi,omitempty"`
	Statistics   stats.Measures          `json:"statistics"`
	AnomalyScore float64                 `json:"anomaly_score"`
	Significance float64                 `json:"significance"`
}

// UnixMilli returns the result timestamp.
func (r Result) UnixMilli() int64 { return r.Timestamp }

// TemporalCorrelation returns the lag-searched coefficient, or 0 when the
// result carries no temporal analysis.
func (r Result) TemporalCorrelation() float64 {
	if r.Temporal == nil {
		return 0
	}
	return r.Temporal.MaxCorrelation
}

// BaselineKey identifies the (type, source set) a result contributes to.
func (r Result) BaselineKey() string {
	key := string(r.Type) + ":"
	for i, s := range r.Sources {
		if i > 0 {
			key += ","
		}
		key += string(s)
	}
	return key
}

// Clone returns a deep copy.
func (r Result) Clone() Result {
	out := r
	out.Sources = append([]sensor.Source(nil), r.Sources...)
	if r.Temporal != nil {
		t := *r.Temporal
		t.Correlations = append([]float64(nil), r.Temporal.Correlations...)
		out.Temporal = &t
	}
	if r.Spatial != nil {
		s := *r.Spatial
		out.Spatial = &s
	}
	if r.Frequency != nil {
		f := *r.Frequency
		out.Frequency = &f
	}
	if r.Multi != nil {
		m := *r.Multi
		m.Sources = append([]sensor.Source(nil), r.Multi.Sources...)
		m.Matrix = make([][]float64, len(r.Multi.Matrix))
		for i, row := range r.Multi.Matrix {
			m.Matrix[i] = append([]float64(nil), row...)
		}
		out.Multi = &m
	}
	return out
}
