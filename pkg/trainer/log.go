package trainer

import (
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// LogFile is the per-epoch metrics file written next to the artifact.
const LogFile = "training_log.parquet"

// EpochLog is one row of the training log.
type EpochLog struct {
	Epoch         int     `parquet:"epoch"`
	TrainLoss     float64 `parquet:"train_loss"`
	ValLoss       float64 `parquet:"val_loss"`
	ValAccuracy   float64 `parquet:"val_accuracy"`
	TrainExamples int     `parquet:"train_examples"`
	ValExamples   int     `parquet:"val_examples"`
	Steps         int     `parquet:"steps"`
	DurationMs    int64   `parquet:"duration_ms"`
}

// WriteLog writes epochs to path.
func WriteLog(path string, epochs []EpochLog) error {
	if err := parquet.WriteFile(path, epochs); err != nil {
		return fmt.Errorf("failed to write training log: %w", err)
	}
	return nil
}

// ReadLog reads a training log.
func ReadLog(path string) ([]EpochLog, error) {
	return parquet.ReadFile[EpochLog](path)
}
