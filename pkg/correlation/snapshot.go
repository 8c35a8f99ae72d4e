package correlation

import "github.com/teslashibe/go-correlate/pkg/sensor"

// Snapshot is a point-in-time copy of every stream buffer. Analysis runs
// on snapshots so ingestion never waits on a cycle.
type Snapshot struct {
	At            int64 // epoch ms the snapshot was taken
	Motion        []sensor.MotionReading
	EMF           []sensor.EMFReading
	Audio         []sensor.AudioReading
	Environmental []sensor.EnvironmentalReading
}

// Count returns the number of readings buffered for src.
func (s Snapshot) Count(src sensor.Source) int {
	switch src {
	case sensor.Motion:
		return len(s.Motion)
	case sensor.EMF:
		return len(s.EMF)
	case sensor.Audio:
		return len(s.Audio)
	case sensor.Environmental:
		return len(s.Environmental)
	}
	return 0
}

// Total sums the readings across all streams.
func (s Snapshot) Total() int {
	return len(s.Motion) + len(s.EMF) + len(s.Audio) + len(s.Environmental)
}

// Available lists the streams that currently hold data, in canonical order.
func (s Snapshot) Available() []sensor.Source {
	var out []sensor.Source
	for _, src := range sensor.Sources {
		if s.Count(src) > 0 {
			out = append(out, src)
		}
	}
	return out
}

// Series extracts the scalar time series for src.
func (s Snapshot) Series(src sensor.Source) sensor.TimeSeries {
	switch src {
	case sensor.Motion:
		return sensor.Extract(s.Motion)
	case sensor.EMF:
		return sensor.Extract(s.EMF)
	case sensor.Audio:
		return sensor.Extract(s.Audio)
	case sensor.Environmental:
		return sensor.Extract(s.Environmental)
	}
	return sensor.TimeSeries{}
}
