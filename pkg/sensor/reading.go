// Package sensor defines the typed readings produced by the motion, EMF,
// audio and environmental acquisition paths, and the scalar time series
// the correlation engine derives from them.
//
// Readings are treated as immutable once created. Timestamps are Unix
// epoch milliseconds.
package sensor

import (
	"fmt"
)

// Source identifies one of the four independently sampled streams.
type Source string

const (
	Motion        Source = "motion"
	EMF           Source = "emf"
	Audio         Source = "audio"
	Environmental Source = "environmental"
)

// Sources lists every stream in canonical order.
var Sources = []Source{Motion, EMF, Audio, Environmental}

// ParseSource converts a wire name into a Source.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case Motion, EMF, Audio, Environmental:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown sensor source %q", s)
}

// Reading is implemented by every typed reading.
type Reading interface {
	// UnixMilli returns the capture time in epoch milliseconds.
	UnixMilli() int64
	// Source reports which stream the reading belongs to.
	Source() Source
	// Scalar is the single value the reading contributes to its time series.
	Scalar() float64
}

// Point is a 2D location in the monitored space (arbitrary distance units).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MotionRegion is one connected area of detected motion.
type MotionRegion struct {
	Area     float64 `json:"area"`
	Centroid Point   `json:"centroid"`
	Velocity Point   `json:"velocity"`
}

// MotionReading is a frame-level motion detection.
type MotionReading struct {
	Timestamp  int64          `json:"timestamp"`
	Regions    []MotionRegion `json:"regions"`
	Confidence float64        `json:"confidence"`
}

func (r MotionReading) UnixMilli() int64 { return r.Timestamp }
func (r MotionReading) Source() Source   { return Motion }

// Scalar is confidence scaled by the number of moving regions.
func (r MotionReading) Scalar() float64 {
	return r.Confidence * float64(len(r.Regions))
}

// Centroid returns the area-weighted centroid of all regions.
// Regions with no area fall back to an unweighted mean.
func (r MotionReading) Centroid() (Point, bool) {
	if len(r.Regions) == 0 {
		return Point{}, false
	}
	var sx, sy, total float64
	for _, reg := range r.Regions {
		sx += reg.Centroid.X * reg.Area
		sy += reg.Centroid.Y * reg.Area
		total += reg.Area
	}
	if total <= 0 {
		for _, reg := range r.Regions {
			sx += reg.Centroid.X
			sy += reg.Centroid.Y
		}
		n := float64(len(r.Regions))
		return Point{X: sx / n, Y: sy / n}, true
	}
	return Point{X: sx / total, Y: sy / total}, true
}

// EMFReading is an electromagnetic field strength sample.
type EMFReading struct {
	Timestamp     int64   `json:"timestamp"`
	FieldStrength float64 `json:"field_strength"`
	FrequencyHz   float64 `json:"frequency_hz,omitempty"`
	Location      *Point  `json:"location,omitempty"`
}

func (r EMFReading) UnixMilli() int64 { return r.Timestamp }
func (r EMFReading) Source() Source   { return EMF }
func (r EMFReading) Scalar() float64  { return r.FieldStrength }

// DefaultSpectrumBinHz is used when an audio reading carries a spectrum
// without declaring its bin width.
const DefaultSpectrumBinHz = 100.0

// AudioReading is an amplitude sample with an optional band spectrum.
type AudioReading struct {
	Timestamp   int64     `json:"timestamp"`
	Amplitude   float64   `json:"amplitude"`
	FrequencyHz float64   `json:"frequency_hz,omitempty"`
	Spectrum    []float64 `json:"spectrum,omitempty"` // per-band magnitude
	BinHz       float64   `json:"bin_hz,omitempty"`   // width of each spectrum band
}

func (r AudioReading) UnixMilli() int64 { return r.Timestamp }
func (r AudioReading) Source() Source   { return Audio }
func (r AudioReading) Scalar() float64  { return r.Amplitude }

// BandFrequency returns the center frequency of spectrum band i.
func (r AudioReading) BandFrequency(i int) float64 {
	bin := r.BinHz
	if bin <= 0 {
		bin = DefaultSpectrumBinHz
	}
	return (float64(i) + 0.5) * bin
}

// EnvironmentalKind names what an environmental sensor measures.
type EnvironmentalKind string

const (
	Temperature EnvironmentalKind = "temperature"
	Humidity    EnvironmentalKind = "humidity"
	Pressure    EnvironmentalKind = "pressure"
	Composite   EnvironmentalKind = "composite"
)

// EnvironmentalReading is a single environmental measurement. Composite
// stations report temperature, humidity and pressure together.
type EnvironmentalReading struct {
	Timestamp   int64             `json:"timestamp"`
	Kind        EnvironmentalKind `json:"kind"`
	Value       float64           `json:"value"`
	Temperature *float64          `json:"temperature,omitempty"`
	Humidity    *float64          `json:"humidity,omitempty"`
	Pressure    *float64          `json:"pressure,omitempty"`
}

func (r EnvironmentalReading) UnixMilli() int64 { return r.Timestamp }
func (r EnvironmentalReading) Source() Source   { return Environmental }

// Scalar sums temperature, humidity and pressure when any of them is present.
// The sum is not physically normalized. Single-kind readings use Value.
func (r EnvironmentalReading) Scalar() float64 {
	if r.Temperature == nil && r.Humidity == nil && r.Pressure == nil {
		return r.Value
	}
	var sum float64
	for _, v := range []*float64{r.Temperature, r.Humidity, r.Pressure} {
		if v != nil {
			sum += *v
		}
	}
	return sum
}
