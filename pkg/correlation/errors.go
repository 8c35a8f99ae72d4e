package correlation

import "errors"

var (
	// ErrCycleInProgress is returned by RunCycle when another cycle has not
	// finished yet.
	ErrCycleInProgress = errors.New("correlation: analysis cycle already in progress")

	// ErrInsufficientData is returned when fewer than MinSamples readings are
	// buffered. The scheduler treats it as a quiet skip.
	ErrInsufficientData = errors.New("correlation: insufficient data")

	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("correlation: engine closed")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("correlation: invalid configuration")
)
