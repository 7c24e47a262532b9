package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Graph backend configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Encoder used by the relation scorer
	Encoder EncoderConfig `mapstructure:"encoder"`

	// Relation scorer configuration
	Scorer ScorerConfig `mapstructure:"scorer"`

	// Path search configuration
	Search SearchConfig `mapstructure:"search"`

	// Batch runner configuration
	Runner RunnerConfig `mapstructure:"runner"`

	// Contrastive training configuration
	Trainer TrainerConfig `mapstructure:"trainer"`

	// Retry configuration for graph backend calls
	Retry RetryConfig `mapstructure:"retry"`

	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	// Alert configuration
	Alert AlertConfig `mapstructure:"alert"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // color, text, json
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig selects and configures the graph backend.
type DatabaseConfig struct {
	Driver   string        `mapstructure:"driver"` // wikidata, neo4j, ladybug, memory
	URI      string        `mapstructure:"uri"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`

	// Wikidata SPARQL endpoint
	Endpoint string `mapstructure:"endpoint"`

	// In-memory backend sources
	TriplesPath string `mapstructure:"triples_path"`
	LabelsPath  string `mapstructure:"labels_path"`

	LabelCache LabelCacheConfig `mapstructure:"label_cache"`
}

// LabelCacheConfig configures label lookups caching.
type LabelCacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Size    int    `mapstructure:"size"`
	Path    string `mapstructure:"path"` // badger directory, empty for memory only
}

// EncoderConfig holds encoder configuration
type EncoderConfig struct {
	Provider string `mapstructure:"provider"` // native, openai, embedeverything
	Model    string `mapstructure:"model"`    // artifact directory or model name
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// ScorerConfig holds relation scorer configuration
type ScorerConfig struct {
	Cache CacheConfig `mapstructure:"cache"`
}

// CacheConfig configures the score memo.
type CacheConfig struct {
	Size     int           `mapstructure:"size"`
	TTL      time.Duration `mapstructure:"ttl"`
	Store    string        `mapstructure:"store"` // none, badger, redis
	Path     string        `mapstructure:"path"`
	RedisURL string        `mapstructure:"redis_url"`
	Prefix   string        `mapstructure:"prefix"`
}

// SearchConfig holds path search configuration
type SearchConfig struct {
	Strategy        string `mapstructure:"strategy"` // enumerate, ranked, beam
	MaxPath         int    `mapstructure:"max_path"`
	PairErrorPolicy string `mapstructure:"pair_error_policy"` // fail_sample, skip_pair
	CollectFactor   int    `mapstructure:"collect_factor"`
	BeamWidth       int    `mapstructure:"beam_width"`
	MaxHops         int    `mapstructure:"max_hops"`
	RelationLimit   int    `mapstructure:"relation_limit"`
	ObjectLimit     int    `mapstructure:"object_limit"`
}

// RunnerConfig holds batch runner configuration
type RunnerConfig struct {
	Workers       int           `mapstructure:"workers"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	SampleTimeout time.Duration `mapstructure:"sample_timeout"`
	RepairInput   bool          `mapstructure:"repair_input"`
}

// TrainerConfig holds contrastive training configuration
type TrainerConfig struct {
	ModelNameOrPath string  `mapstructure:"model_name_or_path"`
	OutputDir       string  `mapstructure:"output_dir"`
	MaxEpochs       int     `mapstructure:"max_epochs"`
	BatchSize       int     `mapstructure:"batch_size"`
	MaxLength       int     `mapstructure:"max_length"`
	LearningRate    float64 `mapstructure:"learning_rate"`
	Temperature     float64 `mapstructure:"temperature"`
	TrainRatio      float64 `mapstructure:"train_ratio"`
	Dropout         float64 `mapstructure:"dropout"`
	Dimensions      int     `mapstructure:"dimensions"`
	Workers         int     `mapstructure:"workers"`
	Seed            int64   `mapstructure:"seed"`
	FastDevRun      bool    `mapstructure:"fast_dev_run"`
}

// RetryConfig holds retry configuration for backend calls
type RetryConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// AlertConfig holds configuration for alerting
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	// ParquetPath is the directory for error logs and sample tracking.
	// Empty disables both.
	ParquetPath string `mapstructure:"parquet_path"`
	Metrics     bool   `mapstructure:"metrics"`
	Tracing     bool   `mapstructure:"tracing"`
}

// Configuration errors
var (
	ErrUnknownDriver   = errors.New("unknown database driver")
	ErrUnknownProvider = errors.New("unknown encoder provider")
	ErrUnknownStrategy = errors.New("unknown search strategy")
	ErrUnknownStore    = errors.New("unknown cache store")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Default returns the configuration with only defaults applied.
func Default() *Config {
	v := viper.New()
	setDefaultsOn(v)
	config := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(config)
	return config
}

// setDefaults sets default configuration values
func setDefaults() {
	setDefaultsOn(viper.GetViper())
}

func setDefaultsOn(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	// Database defaults
	v.SetDefault("database.driver", "wikidata")
	v.SetDefault("database.endpoint", "http://localhost:1234/api/endpoint/sparql")
	v.SetDefault("database.uri", "")
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "")
	v.SetDefault("database.timeout", 30*time.Second)
	v.SetDefault("database.label_cache.enabled", true)
	v.SetDefault("database.label_cache.size", 100000)
	v.SetDefault("database.label_cache.path", "")

	// Encoder defaults
	v.SetDefault("encoder.provider", "native")
	v.SetDefault("encoder.model", "artifacts/scorer")

	// Scorer cache defaults
	v.SetDefault("scorer.cache.size", 500000)
	v.SetDefault("scorer.cache.ttl", time.Duration(0))
	v.SetDefault("scorer.cache.store", "none")
	v.SetDefault("scorer.cache.prefix", "kgpath:score:")

	// Search defaults
	v.SetDefault("search.strategy", "enumerate")
	v.SetDefault("search.max_path", 100)
	v.SetDefault("search.pair_error_policy", "fail_sample")
	v.SetDefault("search.collect_factor", 4)
	v.SetDefault("search.beam_width", 10)
	v.SetDefault("search.max_hops", 2)
	v.SetDefault("search.relation_limit", 200)
	v.SetDefault("search.object_limit", 50)

	// Runner defaults
	v.SetDefault("runner.workers", 1)
	v.SetDefault("runner.chunk_size", 64)
	v.SetDefault("runner.sample_timeout", 5*time.Minute)
	v.SetDefault("runner.repair_input", false)

	// Trainer defaults
	v.SetDefault("trainer.model_name_or_path", "intfloat/e5-small")
	v.SetDefault("trainer.output_dir", "artifacts/scorer")
	v.SetDefault("trainer.max_epochs", 10)
	v.SetDefault("trainer.batch_size", 16)
	v.SetDefault("trainer.max_length", 32)
	v.SetDefault("trainer.learning_rate", 0.05)
	v.SetDefault("trainer.temperature", 0.05)
	v.SetDefault("trainer.train_ratio", 0.95)
	v.SetDefault("trainer.dropout", 0.1)
	v.SetDefault("trainer.dimensions", 128)
	v.SetDefault("trainer.workers", 0)
	v.SetDefault("trainer.seed", 42)

	// Retry defaults
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", time.Second)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.backoff_factor", 2.0)

	// Circuit breaker defaults
	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.max_requests", 1)
	v.SetDefault("circuit_breaker.interval", 60)
	v.SetDefault("circuit_breaker.timeout", 30)
	v.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	// Alert defaults
	v.SetDefault("alert.smtp_port", 587)

	// Telemetry defaults
	v.SetDefault("telemetry.metrics", true)
	v.SetDefault("telemetry.tracing", false)
	home, err := os.UserHomeDir()
	if err == nil {
		v.SetDefault("telemetry.parquet_path", filepath.Join(home, ".kgpath", "telemetry"))
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	// Database credentials
	if uri := os.Getenv("NEO4J_URI"); uri != "" && config.Database.Driver == "neo4j" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}

	// ladybug database path
	if dbPath := os.Getenv("LADYBUG_DB_PATH"); dbPath != "" && config.Database.Driver == "ladybug" {
		config.Database.URI = dbPath
	}

	// Wikidata endpoint
	if endpoint := os.Getenv("WIKIDATA_ENDPOINT"); endpoint != "" {
		config.Database.Endpoint = endpoint
	}

	// Encoder credentials
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" && config.Encoder.APIKey == "" {
		config.Encoder.APIKey = apiKey
	}

	// Shared score cache
	if url := os.Getenv("REDIS_URL"); url != "" {
		config.Scorer.Cache.RedisURL = url
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Telemetry settings
	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}

// Validate checks enumerated settings and numeric bounds.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "wikidata", "neo4j", "ladybug", "memory":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Database.Driver)
	}
	switch strings.ToLower(c.Encoder.Provider) {
	case "native", "openai", "embedeverything":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Encoder.Provider)
	}
	switch strings.ToLower(c.Search.Strategy) {
	case "enumerate", "ranked", "beam":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, c.Search.Strategy)
	}
	switch strings.ToLower(c.Scorer.Cache.Store) {
	case "", "none", "badger", "redis":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Scorer.Cache.Store)
	}
	switch c.Search.PairErrorPolicy {
	case "", "fail_sample", "skip_pair":
	default:
		return fmt.Errorf("%w: search.pair_error_policy %q", ErrInvalidValue, c.Search.PairErrorPolicy)
	}
	if c.Scorer.Cache.Size < 0 {
		return fmt.Errorf("%w: scorer.cache.size must not be negative", ErrInvalidValue)
	}
	if c.Trainer.TrainRatio <= 0 || c.Trainer.TrainRatio > 1 {
		return fmt.Errorf("%w: trainer.train_ratio must be in (0, 1]", ErrInvalidValue)
	}
	if c.Trainer.Temperature <= 0 {
		return fmt.Errorf("%w: trainer.temperature must be positive", ErrInvalidValue)
	}
	if c.Trainer.Dropout < 0 || c.Trainer.Dropout >= 1 {
		return fmt.Errorf("%w: trainer.dropout must be in [0, 1)", ErrInvalidValue)
	}
	return nil
}
