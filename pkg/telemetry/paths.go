package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/soundprediction/kgpath/pkg/types"
)

// PathRow is one triplet of one path of one sample.
type PathRow struct {
	SampleID  string `parquet:"sample_id"`
	PathIndex int    `parquet:"path_index"`
	Hop       int    `parquet:"hop"`
	Subject   string `parquet:"subject"`
	Relation  string `parquet:"relation"`
	Object    string `parquet:"object"`
}

// PathsWriter streams sample paths to a Parquet file.
type PathsWriter struct {
	mu   sync.Mutex
	file *os.File
	w    *parquet.GenericWriter[PathRow]
	rows int64
}

// NewPathsWriter creates (or truncates) the file at path.
func NewPathsWriter(path string) (*PathsWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create paths file: %w", err)
	}
	return &PathsWriter{file: f, w: parquet.NewGenericWriter[PathRow](f)}, nil
}

// RowsFor flattens a sample's paths.
func RowsFor(sample *types.Sample) []PathRow {
	var rows []PathRow
	for i, p := range sample.Paths {
		for hop, t := range p {
			rows = append(rows, PathRow{
				SampleID:  sample.ID,
				PathIndex: i,
				Hop:       hop,
				Subject:   string(t.Subject),
				Relation:  string(t.Relation),
				Object:    string(t.Object),
			})
		}
	}
	return rows
}

// WriteSample appends the rows of one sample.
func (pw *PathsWriter) WriteSample(sample *types.Sample) error {
	rows := RowsFor(sample)
	if len(rows) == 0 {
		return nil
	}
	pw.mu.Lock()
	defer pw.mu.Unlock()
	n, err := pw.w.Write(rows)
	pw.rows += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write paths for sample %s: %w", sample.ID, err)
	}
	return nil
}

// Rows returns the number of rows written so far.
func (pw *PathsWriter) Rows() int64 {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.rows
}

// Close finishes the Parquet footer and closes the file.
func (pw *PathsWriter) Close() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	werr := pw.w.Close()
	ferr := pw.file.Close()
	if werr != nil {
		return fmt.Errorf("failed to finish paths file: %w", werr)
	}
	return ferr
}
