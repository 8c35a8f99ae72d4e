package correlation

import (
	"math"

	"github.com/teslashibe/go-correlate/pkg/buffer"
)

const (
	// RecentWindow is how many prior same-type results feed anomaly scoring.
	RecentWindow = 50

	baselineDecay = 0.9
)

// History is the bounded result log plus per-(type, sources) baselines.
// It is not safe for concurrent use; the Engine guards it.
type History struct {
	results   *buffer.Ring[Result]
	baselines map[string]float64
}

// NewHistory creates a history holding at most capacity results.
func NewHistory(capacity int) *History {
	return &History{
		results:   buffer.New[Result](capacity),
		baselines: make(map[string]float64),
	}
}

// Len returns the number of stored results.
func (h *History) Len() int { return h.results.Len() }

// Append stores r, evicting the oldest result when full, and folds its
// temporal correlation into the baseline for its key.
func (h *History) Append(r Result) {
	h.results.Push(r)
	key := r.BaselineKey()
	h.baselines[key] = baselineDecay*h.baselines[key] + (1-baselineDecay)*math.Abs(r.TemporalCorrelation())
}

// Results returns deep copies of the stored results, oldest first.
func (h *History) Results() []Result {
	snap := h.results.Snapshot()
	out := make([]Result, len(snap))
	for i, r := range snap {
		out[i] = r.Clone()
	}
	return out
}

// RecentMagnitudes returns |max correlation| of up to limit most recent
// results of type t, oldest first.
func (h *History) RecentMagnitudes(t Type, limit int) []float64 {
	snap := h.results.Snapshot()
	var out []float64
	for i := len(snap) - 1; i >= 0 && len(out) < limit; i-- {
		if snap[i].Type != t {
			continue
		}
		v := snap[i].TemporalCorrelation()
		if snap[i].Multi != nil {
			v = snap[i].Multi.MaxCorrelation
		}
		out = append(out, math.Abs(v))
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Baselines returns a copy of the baseline map.
func (h *History) Baselines() map[string]float64 {
	out := make(map[string]float64, len(h.baselines))
	for k, v := range h.baselines {
		out[k] = v
	}
	return out
}

// Clear drops all results and baselines.
func (h *History) Clear() {
	h.results.Clear()
	clear(h.baselines)
}
