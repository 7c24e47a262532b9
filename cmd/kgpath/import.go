package kgpath

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soundprediction/kgpath/pkg/driver"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load TSV triples and labels into a writable graph backend",
	Long: `Load "subject<TAB>relation<TAB>object" triples and optional "id<TAB>label"
labels into a neo4j or ladybug backend, in batches. Lines starting with #
are ignored.`,
	Example: `  kgpath import --db-driver neo4j --db-uri bolt://localhost:7687 --triples kg.tsv --labels labels.tsv`,
	RunE:    runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Int("batch-size", driver.DefaultLoadBatchSize, "triples per write")
	addGraphFlags(importCmd)
	_ = importCmd.MarkFlagRequired("triples")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog := setupLogging(cfg)
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.Driver == string(driver.GraphProviderMemory) {
		return fmt.Errorf("the memory backend reads --triples directly; import needs neo4j or ladybug")
	}

	triplesPath, labelsPath := cfg.Database.TriplesPath, cfg.Database.LabelsPath
	graph, err := driver.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer graph.Close()

	loader := driver.AsLoader(graph)
	if loader == nil {
		return fmt.Errorf("%s backend does not support loading triples", graph.Provider())
	}

	triples, err := os.Open(triplesPath)
	if err != nil {
		return fmt.Errorf("failed to open triples: %w", err)
	}
	defer triples.Close()

	var labels io.Reader
	if labelsPath != "" {
		f, err := os.Open(labelsPath)
		if err != nil {
			return fmt.Errorf("failed to open labels: %w", err)
		}
		defer f.Close()
		labels = f
	}

	batchSize, _ := cmd.Flags().GetInt("batch-size")
	stats, err := driver.LoadTSV(ctx, loader, triples, labels, batchSize, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d triples in %d batches and %d labels into %s\n",
		stats.Triples, stats.Batches, stats.Labels, graph.Provider())
	return nil
}
