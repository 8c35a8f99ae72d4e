package sensor

import "sort"

// TimeSeries holds parallel timestamps and scalar values for one source,
// ordered by timestamp.
type TimeSeries struct {
	Timestamps []int64
	Values     []float64
}

// Len returns the number of samples.
func (ts TimeSeries) Len() int {
	return len(ts.Values)
}

// Extract derives a timestamp-ordered series from a reading collection.
// Readings with equal timestamps keep their arrival order.
func Extract[R Reading](readings []R) TimeSeries {
	idx := make([]int, len(readings))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return readings[idx[a]].UnixMilli() < readings[idx[b]].UnixMilli()
	})

	ts := TimeSeries{
		Timestamps: make([]int64, len(readings)),
		Values:     make([]float64, len(readings)),
	}
	for i, j := range idx {
		ts.Timestamps[i] = readings[j].UnixMilli()
		ts.Values[i] = readings[j].Scalar()
	}
	return ts
}
