package correlation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-correlate/pkg/stats"
)

// HistoryCap is the maximum number of results retained.
const HistoryCap = 500

// Config holds all tunable parameters for the engine.
type Config struct {
	// Buffering
	TimeWindow    time.Duration `yaml:"time_window"`     // readings older than now-TimeWindow are pruned
	MaxBufferSize int           `yaml:"max_buffer_size"` // per-source cap, oldest dropped first

	// Thresholds
	SpatialRadius  float64 `yaml:"spatial_radius"`  // distance units
	MinCorrelation float64 `yaml:"min_correlation"` // |correlation| needed to emit a result

	// Scheduling
	AnalysisInterval time.Duration `yaml:"analysis_interval"` // delay between cycle end and next start
	CycleTimeout     time.Duration `yaml:"cycle_timeout"`     // 0 disables the per-cycle budget
	MinSamples       int           `yaml:"min_samples"`       // total buffered readings required per cycle

	EnabledTypes []Type `yaml:"enabled_types"`

	// Numerics
	PowerIterations int           `yaml:"power_iterations"`
	AlignTolerance  time.Duration `yaml:"align_tolerance"`
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		TimeWindow:    60 * time.Second,
		MaxBufferSize: 1000,

		SpatialRadius:  10,
		MinCorrelation: 0.3,

		AnalysisInterval: 5 * time.Second,
		CycleTimeout:     2 * time.Second,
		MinSamples:       10,

		EnabledTypes: append([]Type(nil), AllTypes...),

		PowerIterations: stats.DefaultPowerIterations,
		AlignTolerance:  time.Duration(stats.DefaultAlignTolerance) * time.Millisecond,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.TimeWindow <= 0 {
		return fmt.Errorf("time_window must be positive, got %v", c.TimeWindow)
	}
	if c.MaxBufferSize < 1 {
		return fmt.Errorf("max_buffer_size must be at least 1, got %d", c.MaxBufferSize)
	}
	if c.SpatialRadius < 0 {
		return fmt.Errorf("spatial_radius must not be negative, got %v", c.SpatialRadius)
	}
	if c.MinCorrelation < 0 || c.MinCorrelation > 1 {
		return fmt.Errorf("min_correlation must be within [0, 1], got %v", c.MinCorrelation)
	}
	if c.AnalysisInterval <= 0 {
		return fmt.Errorf("analysis_interval must be positive, got %v", c.AnalysisInterval)
	}
	if c.CycleTimeout < 0 {
		return fmt.Errorf("cycle_timeout must not be negative, got %v", c.CycleTimeout)
	}
	if c.MinSamples < 0 {
		return fmt.Errorf("min_samples must not be negative, got %d", c.MinSamples)
	}
	if c.PowerIterations < 1 {
		return fmt.Errorf("power_iterations must be at least 1, got %d", c.PowerIterations)
	}
	if c.AlignTolerance < 0 {
		return fmt.Errorf("align_tolerance must not be negative, got %v", c.AlignTolerance)
	}
	for _, t := range c.EnabledTypes {
		if !t.Valid() {
			return fmt.Errorf("unknown correlation type %q", t)
		}
	}
	return nil
}

// Enabled reports whether t is in EnabledTypes.
func (c Config) Enabled(t Type) bool {
	for _, e := range c.EnabledTypes {
		if e == t {
			return true
		}
	}
	return false
}

func (c Config) clone() Config {
	c.EnabledTypes = append([]Type(nil), c.EnabledTypes...)
	return c
}

// configJSON is the wire form: durations in milliseconds.
type configJSON struct {
	TimeWindowMs       int64   `json:"time_window_ms"`
	MaxBufferSize      int     `json:"max_buffer_size"`
	SpatialRadius      float64 `json:"spatial_radius"`
	MinCorrelation     float64 `json:"min_correlation_threshold"`
	AnalysisIntervalMs int64   `json:"analysis_interval_ms"`
	CycleTimeoutMs     int64   `json:"cycle_timeout_ms"`
	MinSamples         int     `json:"min_samples"`
	EnabledTypes       []Type  `json:"enabled_types"`
	PowerIterations    int     `json:"power_iterations"`
	AlignToleranceMs   int64   `json:"align_tolerance_ms"`
}

// MarshalJSON renders durations as milliseconds.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		TimeWindowMs:       c.TimeWindow.Milliseconds(),
		MaxBufferSize:      c.MaxBufferSize,
		SpatialRadius:      c.SpatialRadius,
		MinCorrelation:     c.MinCorrelation,
		AnalysisIntervalMs: c.AnalysisInterval.Milliseconds(),
		CycleTimeoutMs:     c.CycleTimeout.Milliseconds(),
		MinSamples:         c.MinSamples,
		EnabledTypes:       c.EnabledTypes,
		PowerIterations:    c.PowerIterations,
		AlignToleranceMs:   c.AlignTolerance.Milliseconds(),
	})
}

// ConfigPatch is a partial configuration update. Nil fields are left
// unchanged; a nil EnabledTypes keeps the current set.
type ConfigPatch struct {
	TimeWindowMs       *int64   `json:"time_window_ms,omitempty"`
	MaxBufferSize      *int     `json:"max_buffer_size,omitempty"`
	SpatialRadius      *float64 `json:"spatial_radius,omitempty"`
	MinCorrelation     *float64 `json:"min_correlation_threshold,omitempty"`
	AnalysisIntervalMs *int64   `json:"analysis_interval_ms,omitempty"`
	CycleTimeoutMs     *int64   `json:"cycle_timeout_ms,omitempty"`
	MinSamples         *int     `json:"min_samples,omitempty"`
	EnabledTypes       []Type   `json:"enabled_types,omitempty"`
	PowerIterations    *int     `json:"power_iterations,omitempty"`
	AlignToleranceMs   *int64   `json:"align_tolerance_ms,omitempty"`
}

// Apply merges p over c and returns the result. c is not modified.
func (c Config) Apply(p ConfigPatch) Config {
	out := c.clone()
	if p.TimeWindowMs != nil {
		out.TimeWindow = time.Duration(*p.TimeWindowMs) * time.Millisecond
	}
	if p.MaxBufferSize != nil {
		out.MaxBufferSize = *p.MaxBufferSize
	}
	if p.SpatialRadius != nil {
		out.SpatialRadius = *p.SpatialRadius
	}
	if p.MinCorrelation != nil {
		out.MinCorrelation = *p.MinCorrelation
	}
	if p.AnalysisIntervalMs != nil {
		out.AnalysisInterval = time.Duration(*p.AnalysisIntervalMs) * time.Millisecond
	}
	if p.CycleTimeoutMs != nil {
		out.CycleTimeout = time.Duration(*p.CycleTimeoutMs) * time.Millisecond
	}
	if p.MinSamples != nil {
		out.MinSamples = *p.MinSamples
	}
	if p.EnabledTypes != nil {
		out.EnabledTypes = append([]Type(nil), p.EnabledTypes...)
	}
	if p.PowerIterations != nil {
		out.PowerIterations = *p.PowerIterations
	}
	if p.AlignToleranceMs != nil {
		out.AlignTolerance = time.Duration(*p.AlignToleranceMs) * time.Millisecond
	}
	return out
}
