// Package config loads docconv settings from an optional file, DOCCONV_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nicholasgasior/docconv-go"
)

// EnvPrefix prefixes every environment override, e.g. DOCCONV_BATCH_RETRIES.
const EnvPrefix = "DOCCONV"

// Store drivers accepted by workflow.store.driver.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config is the resolved configuration.
type Config struct {
	Conversion *Conversion
	Batch      *Batch
	Workflow   *Workflow
	Logger     *Logger
	Quality    *docconv.RuleSet
	// File is the configuration file that was read, if any.
	File  string
	Viper *viper.Viper
}

// Conversion holds single-conversion settings.
type Conversion struct {
	MaxFileSize    int64
	DefaultQuality docconv.Quality
}

// Batch holds batch defaults.
type Batch struct {
	Concurrency int
	Retries     int
	Timeout     time.Duration
	RetryDelay  time.Duration
}

// Workflow holds workflow scheduler settings.
type Workflow struct {
	Store    *Store
	Parallel int
}

// Store selects the workflow persistence backend. Source is a file path for
// the file and sqlite drivers and an address or redis:// URL for redis.
type Store struct {
	Driver   string
	Source   string
	Password string
	DB       int
}

// Logger holds logging settings.
type Logger struct {
	Level      string
	Format     string
	Output     string
	OutputFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("conversion.max_file_size", docconv.DefaultMaxFileSize)
	v.SetDefault("conversion.default_quality", string(docconv.DefaultQuality))
	v.SetDefault("batch.concurrency", 0)
	v.SetDefault("batch.retries", docconv.DefaultRetries)
	v.SetDefault("batch.timeout", 300*time.Second)
	v.SetDefault("batch.retry_delay", time.Second)
	v.SetDefault("workflow.store.driver", DriverFile)
	v.SetDefault("workflow.store.source", "workflows.json")
	v.SetDefault("workflow.store.password", "")
	v.SetDefault("workflow.store.db", 0)
	v.SetDefault("workflow.parallel", 1)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.output", "stderr")
	v.SetDefault("logger.output_file", "")
}

// Load reads the configuration. An explicit path must exist; without one,
// docconv.{yaml,json,toml} is looked up in the working directory,
// $HOME/.docconv and /etc/docconv, and its absence is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("docconv")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".docconv"))
		}
		v.AddConfigPath("/etc/docconv")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	quality, err := docconv.QualityRulesFromViper(v.Sub("quality"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Conversion: getConversionConfig(v),
		Batch:      getBatchConfig(v),
		Workflow:   getWorkflowConfig(v),
		Logger:     getLoggerConfig(v),
		Quality:    quality,
		File:       v.ConfigFileUsed(),
		Viper:      v,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getConversionConfig(v *viper.Viper) *Conversion {
	return &Conversion{
		MaxFileSize:    v.GetInt64("conversion.max_file_size"),
		DefaultQuality: docconv.Quality(strings.ToLower(v.GetString("conversion.default_quality"))),
	}
}

func getBatchConfig(v *viper.Viper) *Batch {
	return &Batch{
		Concurrency: v.GetInt("batch.concurrency"),
		Retries:     v.GetInt("batch.retries"),
		Timeout:     v.GetDuration("batch.timeout"),
		RetryDelay:  v.GetDuration("batch.retry_delay"),
	}
}

func getWorkflowConfig(v *viper.Viper) *Workflow {
	return &Workflow{
		Store: &Store{
			Driver:   strings.ToLower(v.GetString("workflow.store.driver")),
			Source:   v.GetString("workflow.store.source"),
			Password: v.GetString("workflow.store.password"),
			DB:       v.GetInt("workflow.store.db"),
		},
		Parallel: v.GetInt("workflow.parallel"),
	}
}

func getLoggerConfig(v *viper.Viper) *Logger {
	return &Logger{
		Level:      v.GetString("logger.level"),
		Format:     v.GetString("logger.format"),
		Output:     v.GetString("logger.output"),
		OutputFile: v.GetString("logger.output_file"),
	}
}

// Validate checks settings that cannot be fixed up silently.
func (c *Config) Validate() error {
	if _, err := docconv.ParseQuality(string(c.Conversion.DefaultQuality)); err != nil {
		return &docconv.ConfigurationError{Key: "conversion.default_quality", Value: string(c.Conversion.DefaultQuality), Reason: "must be one of low, medium, high"}
	}
	if c.Conversion.MaxFileSize < 0 {
		return &docconv.ConfigurationError{Key: "conversion.max_file_size", Value: fmt.Sprint(c.Conversion.MaxFileSize), Reason: "must not be negative"}
	}
	if c.Batch.Concurrency < 0 {
		return &docconv.ConfigurationError{Key: "batch.concurrency", Value: fmt.Sprint(c.Batch.Concurrency), Reason: "must not be negative"}
	}
	if c.Batch.Timeout < 0 || c.Batch.RetryDelay < 0 {
		return &docconv.ConfigurationError{Key: "batch", Reason: "durations must not be negative"}
	}
	switch c.Workflow.Store.Driver {
	case DriverMemory, DriverFile, DriverSQLite, DriverRedis:
	default:
		return &docconv.ConfigurationError{Key: "workflow.store.driver", Value: c.Workflow.Store.Driver, Reason: "must be one of memory, file, sqlite, redis"}
	}
	if c.Workflow.Store.Driver != DriverMemory && c.Workflow.Store.Source == "" {
		return &docconv.ConfigurationError{Key: "workflow.store.source", Reason: "required for driver " + c.Workflow.Store.Driver}
	}
	if c.Workflow.Parallel < 1 {
		return &docconv.ConfigurationError{Key: "workflow.parallel", Value: fmt.Sprint(c.Workflow.Parallel), Reason: "must be at least 1"}
	}
	switch c.Logger.Format {
	case "text", "json":
	default:
		return &docconv.ConfigurationError{Key: "logger.format", Value: c.Logger.Format, Reason: "must be text or json"}
	}
	return nil
}

// ConverterOptions returns the converter options implied by the configuration.
func (c *Config) ConverterOptions() []docconv.Option {
	return []docconv.Option{
		docconv.WithMaxFileSize(c.Conversion.MaxFileSize),
		docconv.WithQualityRules(c.Quality),
	}
}
