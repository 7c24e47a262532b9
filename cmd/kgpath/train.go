package kgpath

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soundprediction/kgpath/pkg/trainer"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the relation scorer with a contrastive objective",
	Long: `Train the relation encoder on JSONL examples with fields query, positive
and negatives. The first 95% of examples are used for training and the rest
for validation. The trained encoder is saved to --output-dir together with
a per-epoch training_log.parquet, and can be loaded by the scorer with
--scorer-model.

If --model-name-or-path points at a saved encoder, training continues from
it; otherwise a new encoder is initialized and the name is recorded as its
base model.`,
	Example: `  kgpath train -i data/retrieval/train.jsonl -o artifacts/scorer
  kgpath train --fast-dev-run`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringP("input", "i", "data/retrieval/train.jsonl", "training data: JSONL with query, positive, negatives")
	trainCmd.Flags().StringP("output-dir", "o", "artifacts/scorer", "directory the trained encoder is saved to")
	trainCmd.Flags().String("model-name-or-path", "intfloat/e5-small", "saved encoder to continue from, or base model name")
	trainCmd.Flags().Int("batch-size", 16, "batch size")
	trainCmd.Flags().Int("max-epochs", 10, "max epochs")
	trainCmd.Flags().Float64("learning-rate", 0.05, "Adagrad learning rate")
	trainCmd.Flags().Int64("seed", 42, "random seed for initialization, shuffling and dropout")
	trainCmd.Flags().Bool("fast-dev-run", false, "fast dev run for debugging, only use 1 batch for training and validation")
	trainCmd.Flags().Bool("metrics", false, "record Prometheus metrics")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog := setupLogging(cfg)
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	input, _ := cmd.Flags().GetString("input")
	examples, skipped, err := trainer.LoadExamples(input, logger)
	if err != nil {
		return err
	}
	logger.Info("Loaded training data", "path", input, "examples", len(examples), "skipped", skipped)

	t, err := trainer.New(examples, trainer.Options{
		Config:   cfg.Trainer,
		Recorder: recorderOrNil(newRecorder(cfg)),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	report, err := t.Fit(ctx, examples)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Trained on %d examples, validated on %d\n", report.Train, report.Validation)
	for _, e := range report.Epochs {
		fmt.Fprintf(out, "epoch %d: train_loss=%.4f val_loss=%.4f val_accuracy=%.3f\n", e.Epoch, e.TrainLoss, e.ValLoss, e.ValAccuracy)
	}
	if report.OutputDir != "" {
		fmt.Fprintf(out, "Saved encoder to %s\n", report.OutputDir)
	}
	return nil
}
