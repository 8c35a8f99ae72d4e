package correlation

import (
	"math"
	"math/rand"
	"testing"

	"github.com/teslashibe/go-correlate/pkg/sensor"
)

func wave(i int) float64 { return float64((i * 7) % 11) }

func TestSpatialCorrelation(t *testing.T) {
	motion := []sensor.MotionReading{
		{Timestamp: 1, Confidence: 1, Regions: []sensor.MotionRegion{
			{Area: 3, Centroid: sensor.Point{X: 0, Y: 0}},
			{Area: 1, Centroid: sensor.Point{X: 0, Y: 0}},
		}},
		{Timestamp: 2, Confidence: 1},
	}
	emf := []sensor.EMFReading{
		{Timestamp: 1, FieldStrength: 1, Location: &sensor.Point{X: 3, Y: 4}},
		{Timestamp: 2, FieldStrength: 1, Location: &sensor.Point{X: 100, Y: 100}},
		{Timestamp: 3, FieldStrength: 1},
	}

	sp := SpatialCorrelation(motion, emf, 10)
	if sp == nil {
		t.Fatal("expected spatial result")
	}
	if sp.SampleCount != 1 {
		t.Errorf("SampleCount = %d, want 1", sp.SampleCount)
	}
	if !floatEquals(sp.AverageDistance, 5) || !floatEquals(sp.Correlation, 1.0/6) {
		t.Errorf("got %+v", sp)
	}

	if SpatialCorrelation(motion, emf, 4) != nil {
		t.Error("expected nil when nothing is within radius")
	}
	if SpatialCorrelation(nil, emf, 10) != nil {
		t.Error("expected nil without motion")
	}
}

func TestPairwise_Resonant(t *testing.T) {
	var snap Snapshot
	for i := 0; i < 40; i++ {
		ts := base + int64(i)*1000
		snap.Motion = append(snap.Motion, motionAt(ts, wave(i)))
		snap.Audio = append(snap.Audio, sensor.AudioReading{
			Timestamp: ts,
			Amplitude: 20 - wave(i),
			Spectrum:  []float64{0, 5, 1},
			BinHz:     100,
		})
	}
	snap.At = base + 39_000

	a := NewAnalyzer(DefaultConfig(), nil, sequentialIDs())
	r := a.Pairwise(MotionAudio, snap, nil)
	if r == nil {
		t.Fatal("expected a result")
	}
	if r.Temporal.Lag != 0 || r.Temporal.MaxCorrelation > -0.99 {
		t.Errorf("temporal = %+v", r.Temporal)
	}
	if r.Frequency == nil || !floatEquals(r.Frequency.DominantFrequency, 150) {
		t.Fatalf("frequency = %+v", r.Frequency)
	}
	if r.Pattern != Resonant {
		t.Errorf("Pattern = %s, want resonant", r.Pattern)
	}
	if r.Strength != VeryStrong {
		t.Errorf("Strength = %s", r.Strength)
	}
	if r.Spatial != nil {
		t.Error("motion-audio should not carry spatial data")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		t.Errorf("Confidence = %v", r.Confidence)
	}
}

func TestPairwise_CausalChain(t *testing.T) {
	var snap Snapshot
	loc := &sensor.Point{X: 1, Y: 0}
	for i := 0; i < 40; i++ {
		ts := base + int64(i)*1000
		m := motionAt(ts, wave(i))
		m.Regions[0].Centroid = sensor.Point{X: 0, Y: 0}
		snap.Motion = append(snap.Motion, m)
		snap.EMF = append(snap.EMF, sensor.EMFReading{Timestamp: ts, FieldStrength: wave(i - 2), Location: loc})
	}
	snap.At = base + 39_000

	a := NewAnalyzer(DefaultConfig(), nil, sequentialIDs())
	r := a.Pairwise(MotionEMF, snap, nil)
	if r == nil {
		t.Fatal("expected a result")
	}
	if r.Temporal.Lag != 2 {
		t.Errorf("Lag = %d, want 2", r.Temporal.Lag)
	}
	if r.Spatial == nil || !floatEquals(r.Spatial.Correlation, 0.5) {
		t.Fatalf("Spatial = %+v", r.Spatial)
	}
	if r.Pattern != CausalChain {
		t.Errorf("Pattern = %s, want causal-chain", r.Pattern)
	}
}

func TestPairwise_BelowThreshold(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var snap Snapshot
	for i := 0; i < 200; i++ {
		ts := base + int64(i)*1000
		snap.Motion = append(snap.Motion, motionAt(ts, rng.Float64()))
		snap.EMF = append(snap.EMF, sensor.EMFReading{Timestamp: ts, FieldStrength: rng.Float64()})
	}
	cfg := DefaultConfig()
	cfg.MinCorrelation = 0.9
	if r := NewAnalyzer(cfg, nil, nil).Pairwise(MotionEMF, snap, nil); r != nil {
		t.Errorf("expected nil, got %+v", r.Temporal)
	}
}

func TestPairwise_TooFewSamples(t *testing.T) {
	snap := Snapshot{
		Motion: []sensor.MotionReading{motionAt(base, 1), motionAt(base+1000, 0)},
		EMF:    []sensor.EMFReading{{Timestamp: base, FieldStrength: 1}, {Timestamp: base + 1000}},
	}
	if r := NewAnalyzer(DefaultConfig(), nil, nil).Pairwise(MotionEMF, snap, nil); r != nil {
		t.Error("expected nil with two aligned samples")
	}
}

func TestMultiSource_Synchronous(t *testing.T) {
	var snap Snapshot
	for i := 0; i < 40; i++ {
		ts := base + int64(i)*1000
		snap.Motion = append(snap.Motion, motionAt(ts, wave(i)))
		snap.EMF = append(snap.EMF, sensor.EMFReading{Timestamp: ts, FieldStrength: 2 * wave(i)})
		snap.Audio = append(snap.Audio, sensor.AudioReading{Timestamp: ts, Amplitude: 3*wave(i) + 1})
	}

	a := NewAnalyzer(DefaultConfig(), nil, sequentialIDs())
	r := a.MultiSource(snap)
	if r == nil {
		t.Fatal("expected a multi-source result")
	}
	if len(r.Sources) != 3 || r.Multi == nil {
		t.Fatalf("unexpected result: %+v", r)
	}
	for i, row := range r.Multi.Matrix {
		if row[i] != 1 {
			t.Errorf("diagonal[%d] = %v", i, row[i])
		}
		for j := range row {
			if row[j] != r.Multi.Matrix[j][i] {
				t.Errorf("matrix not symmetric at %d,%d", i, j)
			}
		}
	}
	if math.Abs(r.Multi.DominantEigenvalue-3) > 1e-6 {
		t.Errorf("eigenvalue = %v, want 3", r.Multi.DominantEigenvalue)
	}
	if r.Pattern != Synchronous || r.Strength != VeryStrong {
		t.Errorf("pattern %s strength %s", r.Pattern, r.Strength)
	}
	if r.Temporal != nil {
		t.Error("multi-source result should not carry a temporal analysis")
	}
}

func TestMultiSource_NeedsThreeStreams(t *testing.T) {
	var snap Snapshot
	for i := 0; i < 40; i++ {
		ts := base + int64(i)*1000
		snap.Motion = append(snap.Motion, motionAt(ts, wave(i)))
		snap.EMF = append(snap.EMF, sensor.EMFReading{Timestamp: ts, FieldStrength: wave(i)})
	}
	if r := NewAnalyzer(DefaultConfig(), nil, nil).MultiSource(snap); r != nil {
		t.Error("expected nil with two streams")
	}
}
