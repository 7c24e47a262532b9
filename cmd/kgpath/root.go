package kgpath

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundprediction/kgpath/pkg/config"
	"github.com/soundprediction/kgpath/pkg/logger"
	"github.com/soundprediction/kgpath/pkg/metrics"
	"github.com/soundprediction/kgpath/pkg/telemetry"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "kgpath",
		Short: "kgpath: relation paths and relation scoring over knowledge graphs",
		Long: `kgpath finds relation paths between question entities and answer entities
in a knowledge graph, trains a relation scorer with a contrastive objective,
and serves path search and scoring over HTTP.

Configuration can be provided through config files, KGPATH_* environment
variables, or command-line flags.`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kgpath.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "color", "log format (color, text, json)")
	rootCmd.PersistentFlags().String("telemetry-parquet-path", "", "directory for error logs and per-sample outcomes in Parquet")

	// Bind flags to viper
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("telemetry.parquet_path", rootCmd.PersistentFlags().Lookup("telemetry-parquet-path"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".kgpath")
	}

	viper.SetEnvPrefix("KGPATH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads configuration and applies the flags the user changed.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	overrideConfigWithFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging builds the process logger. When telemetry.parquet_path is
// set, error records are also kept in Parquet; the returned func flushes
// them.
func setupLogging(cfg *config.Config) (*slog.Logger, func()) {
	log := logger.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	closer := func() {}

	if cfg.Telemetry.ParquetPath != "" {
		ph, err := telemetry.NewParquetHandler(log.Handler(), cfg.Telemetry.ParquetPath)
		if err != nil {
			log.Warn("Failed to initialize error tracking", "error", err)
		} else {
			log = slog.New(ph)
			closer = func() {
				if err := ph.Close(); err != nil {
					fmt.Fprintln(os.Stderr, "failed to flush error log:", err)
				}
			}
		}
	}
	slog.SetDefault(log)
	return log, closer
}

// newRecorder returns a Prometheus recorder when metrics are enabled, and
// nil otherwise.
func newRecorder(cfg *config.Config) *metrics.Prometheus {
	if !cfg.Telemetry.Metrics {
		return nil
	}
	return metrics.NewPrometheus()
}

func recorderOrNil(p *metrics.Prometheus) metrics.Recorder {
	if p == nil {
		return nil
	}
	return p
}

func addGraphFlags(cmd *cobra.Command) {
	cmd.Flags().String("db-driver", "wikidata", "graph backend (wikidata, neo4j, ladybug, memory)")
	cmd.Flags().String("wikidata-endpoint", "http://localhost:1234/api/endpoint/sparql", "wikidata SPARQL endpoint")
	cmd.Flags().String("db-uri", "", "database URI or path (neo4j, ladybug)")
	cmd.Flags().String("db-username", "", "database username")
	cmd.Flags().String("db-password", "", "database password")
	cmd.Flags().String("db-database", "", "database name")
	cmd.Flags().String("triples", "", "TSV triples file for the memory backend")
	cmd.Flags().String("labels", "", "TSV labels file for the memory backend")
}

func addEncoderFlags(cmd *cobra.Command) {
	cmd.Flags().String("encoder-provider", "native", "encoder provider (native, openai, embedeverything)")
	cmd.Flags().String("scorer-model", "artifacts/scorer", "encoder artifact directory or model name")
	cmd.Flags().String("encoder-api-key", "", "API key for the openai provider")
	cmd.Flags().String("encoder-base-url", "", "base URL for the openai provider")
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-path", 100, "maximum number of paths per sample")
	cmd.Flags().String("strategy", "enumerate", "search strategy (enumerate, ranked, beam)")
	cmd.Flags().String("pair-error-policy", "fail_sample", "backend failure for one entity pair (fail_sample, skip_pair)")
	cmd.Flags().Int("beam-width", 10, "beams kept per hop (beam strategy)")
	cmd.Flags().Int("max-hops", 2, "maximum path length (beam strategy)")
	cmd.Flags().Duration("sample-timeout", 5*time.Minute, "deadline for one sample")
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	// Database flags
	setString(cmd, "db-driver", &cfg.Database.Driver)
	setString(cmd, "wikidata-endpoint", &cfg.Database.Endpoint)
	setString(cmd, "db-uri", &cfg.Database.URI)
	setString(cmd, "db-username", &cfg.Database.Username)
	setString(cmd, "db-password", &cfg.Database.Password)
	setString(cmd, "db-database", &cfg.Database.Database)
	setString(cmd, "triples", &cfg.Database.TriplesPath)
	setString(cmd, "labels", &cfg.Database.LabelsPath)

	// Encoder flags
	setString(cmd, "encoder-provider", &cfg.Encoder.Provider)
	setString(cmd, "scorer-model", &cfg.Encoder.Model)
	setString(cmd, "encoder-api-key", &cfg.Encoder.APIKey)
	setString(cmd, "encoder-base-url", &cfg.Encoder.BaseURL)

	// Search and runner flags
	setInt(cmd, "max-path", &cfg.Search.MaxPath)
	setString(cmd, "strategy", &cfg.Search.Strategy)
	setString(cmd, "pair-error-policy", &cfg.Search.PairErrorPolicy)
	setInt(cmd, "beam-width", &cfg.Search.BeamWidth)
	setInt(cmd, "max-hops", &cfg.Search.MaxHops)
	setInt(cmd, "workers", &cfg.Runner.Workers)
	setDuration(cmd, "sample-timeout", &cfg.Runner.SampleTimeout)
	setBool(cmd, "repair-input", &cfg.Runner.RepairInput)

	// Trainer flags
	setString(cmd, "model-name-or-path", &cfg.Trainer.ModelNameOrPath)
	setString(cmd, "output-dir", &cfg.Trainer.OutputDir)
	setInt(cmd, "max-epochs", &cfg.Trainer.MaxEpochs)
	setInt(cmd, "batch-size", &cfg.Trainer.BatchSize)
	setFloat(cmd, "learning-rate", &cfg.Trainer.LearningRate)
	setBool(cmd, "fast-dev-run", &cfg.Trainer.FastDevRun)
	if cmd.Flags().Changed("seed") {
		cfg.Trainer.Seed, _ = cmd.Flags().GetInt64("seed")
	}

	// Server flags
	setString(cmd, "host", &cfg.Server.Host)
	setInt(cmd, "port", &cfg.Server.Port)
	setString(cmd, "mode", &cfg.Server.Mode)

	// Telemetry flags
	setBool(cmd, "metrics", &cfg.Telemetry.Metrics)
	setBool(cmd, "tracing", &cfg.Telemetry.Tracing)
}

func setString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

func setInt(cmd *cobra.Command, name string, dst *int) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetInt(name)
	}
}

func setFloat(cmd *cobra.Command, name string, dst *float64) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetFloat64(name)
	}
}

func setBool(cmd *cobra.Command, name string, dst *bool) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetBool(name)
	}
}

func setDuration(cmd *cobra.Command, name string, dst *time.Duration) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetDuration(name)
	}
}
