// Package config loads and validates the settings of a triangle counting job.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-triangles/pkg/partition"
)

// Environment variables that override file values
const (
	EnvPartitions  = "TTP_PARTITIONS"
	EnvStrategy    = "TTP_STRATEGY"
	EnvWorkers     = "TTP_WORKERS"
	EnvReducers    = "TTP_REDUCERS"
	EnvWorkDir     = "TTP_WORK_DIR"
	EnvDatabaseURL = "TTP_DATABASE_URL"
	EnvS3Endpoint  = "AWS_ENDPOINT_URL_S3"
	EnvS3Region    = "AWS_REGION"
	EnvS3AccessKey = "AWS_ACCESS_KEY_ID"
	EnvS3SecretKey = "AWS_SECRET_ACCESS_KEY"
)

const (
	// MaxPartitions bounds p; the number of triple groups grows as p^3
	MaxPartitions = 4096
	// DefaultMaxAttempts is how often a failed task is run before the job aborts
	DefaultMaxAttempts = 3
	// DefaultTaskTimeout bounds a single remote group task
	DefaultTaskTimeout = 2 * time.Minute
)

// Config is the complete job configuration
type Config struct {
	Input     InputConfig     `yaml:"input"`
	Partition PartitionConfig `yaml:"partition"`
	Engine    EngineConfig    `yaml:"engine"`
	Remote    RemoteConfig    `yaml:"remote"`
	Output    OutputConfig    `yaml:"output"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	History   HistoryConfig   `yaml:"history"`
	LogLevel  string          `yaml:"log_level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	LogFormat string          `yaml:"log_format" validate:"omitempty,oneof=json text"`
}

// InputConfig describes where the edge list comes from
type InputConfig struct {
	URI string   `yaml:"uri"`
	S3  S3Config `yaml:"s3"`
}

// S3Config configures the S3 input source
type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// PartitionConfig selects p and the vertex partition function
type PartitionConfig struct {
	Count    int    `yaml:"count" validate:"min=2,max=4096"`
	Strategy string `yaml:"strategy" validate:"oneof=modulo hash"`
}

// EngineConfig tunes the in-process stage runner
type EngineConfig struct {
	Workers          int    `yaml:"workers" validate:"min=1"`
	Reducers         int    `yaml:"reducers" validate:"min=1"`
	Splits           int    `yaml:"splits" validate:"min=0"`
	MaxAttempts      int    `yaml:"max_attempts" validate:"min=1,max=10"`
	WorkDir          string `yaml:"work_dir" validate:"required"`
	KeepIntermediate bool   `yaml:"keep_intermediate"`
}

// RemoteConfig enables distributed group counting
type RemoteConfig struct {
	Enabled     bool          `yaml:"enabled"`
	TasksAddr   string        `yaml:"tasks_addr"`
	ResultsAddr string        `yaml:"results_addr"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// OutputConfig controls the printed result
type OutputConfig struct {
	ByType bool `yaml:"by_type"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// HistoryConfig controls persistence of finished runs
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DatabaseURL string `yaml:"database_url"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	workers := runtime.NumCPU()
	return &Config{
		Partition: PartitionConfig{
			Count:    partition.DefaultPartitionCount,
			Strategy: partition.StrategyModulo,
		},
		Engine: EngineConfig{
			Workers:     workers,
			Reducers:    2 * workers,
			MaxAttempts: DefaultMaxAttempts,
			WorkDir:     filepath.Join(os.TempDir(), "ttp"),
		},
		Remote: RemoteConfig{
			TasksAddr:   "tcp://0.0.0.0:7100",
			ResultsAddr: "tcp://0.0.0.0:7101",
			TaskTimeout: DefaultTaskTimeout,
		},
		Input: InputConfig{
			S3: S3Config{Region: "us-east-1"},
		},
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load reads a YAML file on top of the defaults. An empty path yields the defaults.
// Environment overrides are applied after the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads an optional .env file into the process environment.
// A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from TTP_* and AWS_* environment variables
func (c *Config) ApplyEnv() error {
	if err := envInt(EnvPartitions, &c.Partition.Count); err != nil {
		return err
	}
	if err := envInt(EnvWorkers, &c.Engine.Workers); err != nil {
		return err
	}
	if err := envInt(EnvReducers, &c.Engine.Reducers); err != nil {
		return err
	}
	envString(EnvStrategy, &c.Partition.Strategy)
	envString(EnvWorkDir, &c.Engine.WorkDir)
	envString(EnvS3Endpoint, &c.Input.S3.Endpoint)
	envString(EnvS3Region, &c.Input.S3.Region)
	envString(EnvS3AccessKey, &c.Input.S3.AccessKey)
	envString(EnvS3SecretKey, &c.Input.S3.SecretKey)
	if envString(EnvDatabaseURL, &c.History.DatabaseURL) {
		c.History.Enabled = true
	}
	return nil
}

// Validate checks struct tags first, then cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, formatValidationError(err))
	}

	return NewConfigValidator().
		RangeInt("Partition.Count", c.Partition.Count, 2, MaxPartitions).
		Positive("Engine.Workers", c.Engine.Workers).
		Positive("Engine.Reducers", c.Engine.Reducers).
		When(c.Remote.Enabled, func(cv *ConfigValidator) {
			cv.SocketAddr("Remote.TasksAddr", c.Remote.TasksAddr).
				SocketAddr("Remote.ResultsAddr", c.Remote.ResultsAddr).
				Distinct("Remote.ResultsAddr", c.Remote.ResultsAddr, "Remote.TasksAddr", c.Remote.TasksAddr).
				MinDuration("Remote.TaskTimeout", c.Remote.TaskTimeout, time.Second)
		}).
		When(c.History.Enabled, func(cv *ConfigValidator) {
			cv.Required("History.DatabaseURL", c.History.DatabaseURL)
		}).
		Validate()
}

func envString(key string, dst *string) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
		return true
	}
	return false
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, v)
	}
	*dst = n
	return nil
}

var validate = validator.New()

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Namespace()
		param := e.Param()

		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}

	return err
}
