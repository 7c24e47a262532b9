// Package metrics provides the instrumentation surface used across kgpath,
// with a no-op default and a Prometheus-backed implementation.
package metrics

import (
	"time"
)

// Recorder defines the metrics surface used across the codebase.
type Recorder interface {
	ObserveBackendQuery(op string, success bool, seconds float64)
	SetBreakerState(name, state string)
	IncSamples(outcome string)
	ObserveSampleSeconds(success bool, seconds float64)
	IncCache(cache string, hit bool)
	AddScoresComputed(n int)
	ObserveEncodeSeconds(seconds float64)
	SetTrainingLoss(split string, epoch int, loss float64)
	ObserveHTTPRequest(route string, status int, seconds float64)
}

// Sample outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
)

// Noop implements Recorder with no-ops.
type Noop struct{}

var _ Recorder = Noop{}

func (Noop) ObserveBackendQuery(string, bool, float64) {}
func (Noop) SetBreakerState(string, string)            {}
func (Noop) IncSamples(string)                         {}
func (Noop) ObserveSampleSeconds(bool, float64)        {}
func (Noop) IncCache(string, bool)                     {}
func (Noop) AddScoresComputed(int)                     {}
func (Noop) ObserveEncodeSeconds(float64)              {}
func (Noop) SetTrainingLoss(string, int, float64)      {}
func (Noop) ObserveHTTPRequest(string, int, float64)   {}

// OrNoop returns r, or Noop when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop{}
	}
	return r
}

// TimeBackend is a helper to time graph backend operations.
func TimeBackend(r Recorder, op string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		OrNoop(r).ObserveBackendQuery(op, success, time.Since(start).Seconds())
	}
}
