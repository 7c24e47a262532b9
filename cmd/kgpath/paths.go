package kgpath

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soundprediction/kgpath"
	"github.com/soundprediction/kgpath/pkg/runner"
	"github.com/soundprediction/kgpath/pkg/telemetry"
	"github.com/soundprediction/kgpath/pkg/utils"
)

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Find relation paths for every sample of a JSONL file",
	Long: `Read grounded samples (id, question, question_entities, answer_entities)
from a JSONL file and write each one back with a "paths" field listing the
relation paths that connect its question entities to its answer entities.

Samples whose search fails are skipped and counted; the run ends with a
summary line. The command exits non-zero only when reading, writing or
setup fails.`,
	Example: `  kgpath paths --ground-path data/ground.jsonl --output-path data/paths.jsonl
  kgpath paths -i ground.jsonl -o - --db-driver memory --triples kg.tsv --max-path 10`,
	RunE: runPaths,
}

func init() {
	rootCmd.AddCommand(pathsCmd)

	pathsCmd.Flags().StringP("ground-path", "i", "", "grounded JSONL input (- for stdin)")
	pathsCmd.Flags().StringP("output-path", "o", "", "JSONL output with paths (- for stdout)")
	pathsCmd.Flags().String("parquet-output", "", "also write paths to this Parquet file, one row per triplet")
	pathsCmd.Flags().Int("workers", 1, "samples searched concurrently")
	pathsCmd.Flags().Bool("repair-input", false, "try jsonrepair on malformed input lines (truncated lines are still skipped)")
	pathsCmd.Flags().Bool("metrics", false, "record Prometheus metrics")
	pathsCmd.Flags().Bool("tracing", false, "emit OpenTelemetry spans")
	addSearchFlags(pathsCmd)
	addGraphFlags(pathsCmd)
	addEncoderFlags(pathsCmd)

	_ = pathsCmd.MarkFlagRequired("ground-path")
	_ = pathsCmd.MarkFlagRequired("output-path")
}

func runPaths(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog := setupLogging(cfg)
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := kgpath.NewClient(ctx, cfg, kgpath.Options{
		Recorder: recorderOrNil(newRecorder(cfg)),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	inPath, _ := cmd.Flags().GetString("ground-path")
	outPath, _ := cmd.Flags().GetString("output-path")
	in, closeIn, err := openInput(inPath)
	if err != nil {
		return err
	}
	defer closeIn()
	out, closeOut, err := createOutput(outPath)
	if err != nil {
		return err
	}

	opts := runner.Options{RunID: utils.GenerateUUID()}
	if cfg.Telemetry.ParquetPath != "" {
		tracker, err := telemetry.NewSampleTracker(cfg.Telemetry.ParquetPath, opts.RunID)
		if err != nil {
			closeOut()
			return err
		}
		opts.Tracker = tracker
	}
	if p, _ := cmd.Flags().GetString("parquet-output"); p != "" {
		pw, err := telemetry.NewPathsWriter(p)
		if err != nil {
			closeOut()
			return err
		}
		opts.Paths = pw
	}

	summary, runErr := client.NewRunner(opts).Run(ctx, in, out)

	if err := closeOut(); err != nil && runErr == nil {
		runErr = err
	}
	if err := opts.Tracker.Close(); err != nil {
		logger.Error("Failed to write sample outcomes", "error", err)
	}
	if opts.Paths != nil {
		if err := opts.Paths.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("failed to write parquet paths: %w", err)
		}
	}

	fmt.Fprintln(cmd.ErrOrStderr(), summary.String())
	return runErr
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// createOutput returns a buffered writer; the close func flushes it.
func createOutput(path string) (io.Writer, func() error, error) {
	if path == "-" {
		w := bufio.NewWriter(os.Stdout)
		return w, w.Flush, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	w := bufio.NewWriter(f)
	var closed bool
	return w, func() error {
		if closed {
			return nil
		}
		closed = true
		if err := w.Flush(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}, nil
}
