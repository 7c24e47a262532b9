package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
)

// SampleOutcome is one row of the per-run sample log.
type SampleOutcome struct {
	RunID      string    `parquet:"run_id"`
	SampleID   string    `parquet:"sample_id"`
	Line       int       `parquet:"line"`
	Status     string    `parquet:"status"`
	Paths      int       `parquet:"paths"`
	DurationMs int64     `parquet:"duration_ms"`
	Error      string    `parquet:"error"`
	Timestamp  time.Time `parquet:"timestamp"`
}

// SampleTracker records the outcome of every sample in a run and writes
// them to samples_<run id>.parquet on Close.
type SampleTracker struct {
	mu       sync.Mutex
	path     string
	outcomes []SampleOutcome
	closed   bool
}

// NewSampleTracker creates a tracker writing under outputDir.
func NewSampleTracker(outputDir, runID string) (*SampleTracker, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}
	return &SampleTracker{
		path: filepath.Join(outputDir, fmt.Sprintf("samples_%s.parquet", runID)),
	}, nil
}

// Record appends an outcome. A nil tracker ignores the call.
func (t *SampleTracker) Record(o SampleOutcome) {
	if t == nil {
		return
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.outcomes = append(t.outcomes, o)
	}
}

// Len returns the number of recorded outcomes.
func (t *SampleTracker) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.outcomes)
}

// Path is the file written by Close.
func (t *SampleTracker) Path() string { return t.path }

// Close writes the outcomes. Later calls do nothing.
func (t *SampleTracker) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := parquet.WriteFile(t.path, t.outcomes); err != nil {
		return fmt.Errorf("failed to write sample log %s: %w", t.path, err)
	}
	return nil
}
