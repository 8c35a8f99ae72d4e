package correlation

import (
	"math"

	"github.com/teslashibe/go-correlate/pkg/anomaly"
	"github.com/teslashibe/go-correlate/pkg/sensor"
	"github.com/teslashibe/go-correlate/pkg/spectral"
	"github.com/teslashibe/go-correlate/pkg/stats"
)

const (
	// MinMultiSources is how many streams must hold data for a
	// multi-source analysis.
	MinMultiSources = 3

	sampleBonusMax   = 0.2
	sampleBonusCount = 100.0
	spatialWeightMin = 0.7
)

// Analyzer turns a Snapshot into results for one cycle. It holds the
// cycle's configuration so a mid-cycle update cannot change its inputs.
type Analyzer struct {
	cfg    Config
	scorer anomaly.Scorer
	newID  func() string
}

// NewAnalyzer creates an analyzer. A nil scorer uses the two-sigma default.
func NewAnalyzer(cfg Config, scorer anomaly.Scorer, newID func() string) *Analyzer {
	if scorer == nil {
		scorer = anomaly.NewStdDevScorer()
	}
	if newID == nil {
		newID = newResultID
	}
	return &Analyzer{cfg: cfg, scorer: scorer, newID: newID}
}

// Analyze dispatches to the pairwise or multi-source analysis for t.
// prior carries recent |correlation| values of the same type for anomaly
// scoring. It returns nil when no result qualifies.
func (a *Analyzer) Analyze(t Type, snap Snapshot, prior []float64) *Result {
	if t == MultiSource {
		return a.MultiSource(snap)
	}
	return a.Pairwise(t, snap, prior)
}

// Pairwise relates the two streams of a pairwise type.
func (a *Analyzer) Pairwise(t Type, snap Snapshot, prior []float64) *Result {
	xs, ys, ok := t.Sources()
	if !ok {
		return nil
	}

	aligned := stats.Align(snap.Series(xs), snap.Series(ys), a.cfg.AlignTolerance.Milliseconds())
	if aligned.Len() < stats.MinOverlap {
		return nil
	}

	cc := stats.CrossCorrelate(aligned.X, aligned.Y)
	magnitude := math.Abs(cc.MaxCorrelation)
	if magnitude < a.cfg.MinCorrelation {
		return nil
	}

	var spatial *Spatial
	if t == MotionEMF {
		spatial = SpatialCorrelation(snap.Motion, snap.EMF, a.cfg.SpatialRadius)
	}

	var freq *spectral.Features
	if t == MotionAudio || t == EMFAudio {
		f := spectral.Analyze(snap.Audio)
		freq = &f
	}

	confidence := magnitude * cc.Significance
	if spatial != nil {
		confidence *= spatialWeightMin + (1-spatialWeightMin)*spatial.Correlation
	}
	confidence += sampleBonusMax * math.Min(1, float64(aligned.Len())/sampleBonusCount)

	scoreInput := append(append([]float64(nil), prior...), magnitude)

	return &Result{
		ID:           a.newID(),
		Timestamp:    snap.At,
		Type:         t,
		Strength:     StrengthFor(cc.MaxCorrelation),
		Confidence:   stats.Clamp01(confidence),
		Sources:      []sensor.Source{xs, ys},
		Pattern:      ClassifyPattern(cc.MaxCorrelation, cc.Lag, spatial, freq),
		Temporal:     &cc,
		Spatial:      spatial,
		Frequency:    freq,
		Statistics:   stats.Describe(aligned.X, aligned.Y),
		AnomalyScore: a.scorer.Score(scoreInput),
		Significance: cc.Significance,
	}
}

// MultiSource builds the correlation matrix across every stream with data
// and summarizes it with a power-iteration eigenvalue estimate.
func (a *Analyzer) MultiSource(snap Snapshot) *Result {
	sources := snap.Available()
	n := len(sources)
	if n < MinMultiSources {
		return nil
	}

	series := make([]sensor.TimeSeries, n)
	for i, src := range sources {
		series[i] = snap.Series(src)
	}

	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1
	}

	tol := a.cfg.AlignTolerance.Milliseconds()
	offDiag := make([]float64, 0, n*(n-1)/2)
	var sumAbs, maxAbs, maxSigned float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			aligned := stats.Align(series[i], series[j], tol)
			c := stats.CrossCorrelate(aligned.X, aligned.Y).MaxCorrelation
			matrix[i][j], matrix[j][i] = c, c
			offDiag = append(offDiag, c)
			sumAbs += math.Abs(c)
			if math.Abs(c) > maxAbs {
				maxAbs, maxSigned = math.Abs(c), c
			}
		}
	}
	if maxAbs < a.cfg.MinCorrelation {
		return nil
	}
	meanAbs := sumAbs / float64(len(offDiag))

	lambda := stats.DominantEigenvalue(matrix, a.cfg.PowerIterations)
	eigSig := math.Abs(lambda) / float64(n)

	return &Result{
		ID:         a.newID(),
		Timestamp:  snap.At,
		Type:       MultiSource,
		Strength:   StrengthFor(maxAbs),
		Confidence: stats.Clamp01((meanAbs + maxAbs) / 2),
		Sources:    append([]sensor.Source(nil), sources...),
		Pattern:    ClassifyMultiPattern(maxAbs, meanAbs, eigSig),
		Multi: &MultiSourceAnalysis{
			Sources:            append([]sensor.Source(nil), sources...),
			Matrix:             matrix,
			MeanCorrelation:    meanAbs,
			MaxCorrelation:     maxAbs,
			DominantEigenvalue: lambda,
			EigenSignificance:  eigSig,
		},
		Statistics:   stats.Measures{Correlation: maxSigned},
		AnomalyScore: a.scorer.Score(offDiag),
		Significance: stats.Clamp01(eigSig),
	}
}

// SpatialCorrelation scores how close motion activity is to EMF readings.
// Every (area-weighted motion centroid, EMF location) pair within radius
// contributes 1/(1+distance); pairs farther apart are ignored. It returns
// nil when no pair is in range.
func SpatialCorrelation(motion []sensor.MotionReading, emf []sensor.EMFReading, radius float64) *Spatial {
	centroids := make([]sensor.Point, 0, len(motion))
	for _, m := range motion {
		if c, ok := m.Centroid(); ok {
			centroids = append(centroids, c)
		}
	}

	var score, distance float64
	var count int
	for _, e := range emf {
		if e.Location == nil {
			continue
		}
		for _, c := range centroids {
			d := math.Hypot(c.X-e.Location.X, c.Y-e.Location.Y)
			if d > radius {
				continue
			}
			score += 1 / (1 + d)
			distance += d
			count++
		}
	}
	if count == 0 {
		return nil
	}
	return &Spatial{
		Correlation:     score / float64(count),
		SampleCount:     count,
		AverageDistance: distance / float64(count),
	}
}
